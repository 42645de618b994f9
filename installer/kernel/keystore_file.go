package kernel

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// FileKeyStore 把注册表式的键值保存到一个 YAML 文件中：
//
//	Software\Microsoft\Windows\CurrentVersion\Uninstall\MyApp:
//	  DisplayName: MyApp
//	  NoModify: 1
type FileKeyStore struct {
	path string
	mu   sync.Mutex
}

func NewFileKeyStore(path string) *FileKeyStore {
	return &FileKeyStore{path: path}
}

func (s *FileKeyStore) load() (map[string]map[string]any, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return map[string]map[string]any{}, nil
	}
	if err != nil {
		return nil, err
	}
	keys := map[string]map[string]any{}
	if err := yaml.Unmarshal(data, &keys); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	return keys, nil
}

func (s *FileKeyStore) save(keys map[string]map[string]any) error {
	data, err := yaml.Marshal(keys)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o644)
}

func (s *FileKeyStore) set(key, name string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.load()
	if err != nil {
		return err
	}
	if keys[key] == nil {
		keys[key] = map[string]any{}
	}
	keys[key][name] = value
	return s.save(keys)
}

func (s *FileKeyStore) SetString(key, name, value string) error {
	return s.set(key, name, value)
}

func (s *FileKeyStore) SetDWord(key, name string, value uint32) error {
	return s.set(key, name, value)
}

func (s *FileKeyStore) GetString(key, name string) (string, error) {
	vals, err := s.Values(key)
	if err != nil {
		return "", err
	}
	v, ok := vals[name].(string)
	if !ok {
		return "", ErrKeyNotFound
	}
	return v, nil
}

func (s *FileKeyStore) DeleteKey(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.load()
	if err != nil {
		return err
	}
	if _, ok := keys[key]; !ok {
		return ErrKeyNotFound
	}
	delete(keys, key)
	return s.save(keys)
}

// Values 读取一个键下的全部值，键不存在时返回 ErrKeyNotFound。
func (s *FileKeyStore) Values(key string) (map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys, err := s.load()
	if err != nil {
		return nil, err
	}
	v, ok := keys[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return v, nil
}
