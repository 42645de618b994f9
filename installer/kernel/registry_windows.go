//go:build windows

package kernel

import (
	"errors"

	"golang.org/x/sys/windows/registry"
)

// winKeyStore 写 HKEY_CURRENT_USER，按用户安装不需要管理员权限。
type winKeyStore struct {
	root registry.Key
}

// NewKeyStore 平台默认的 KeyStore。
func NewKeyStore() (KeyStore, error) {
	return &winKeyStore{root: registry.CURRENT_USER}, nil
}

func (s *winKeyStore) open(path string) (registry.Key, error) {
	k, _, err := registry.CreateKey(s.root, path, registry.SET_VALUE)
	return k, err
}

func (s *winKeyStore) SetString(path, name, value string) error {
	k, err := s.open(path)
	if err != nil {
		return err
	}
	defer k.Close()
	return k.SetStringValue(name, value)
}

func (s *winKeyStore) SetDWord(path, name string, value uint32) error {
	k, err := s.open(path)
	if err != nil {
		return err
	}
	defer k.Close()
	return k.SetDWordValue(name, value)
}

func (s *winKeyStore) GetString(path, name string) (string, error) {
	k, err := registry.OpenKey(s.root, path, registry.QUERY_VALUE)
	if errors.Is(err, registry.ErrNotExist) {
		return "", ErrKeyNotFound
	}
	if err != nil {
		return "", err
	}
	defer k.Close()
	v, _, err := k.GetStringValue(name)
	if errors.Is(err, registry.ErrNotExist) {
		return "", ErrKeyNotFound
	}
	return v, err
}

func (s *winKeyStore) DeleteKey(path string) error {
	err := registry.DeleteKey(s.root, path)
	if errors.Is(err, registry.ErrNotExist) {
		return ErrKeyNotFound
	}
	return err
}
