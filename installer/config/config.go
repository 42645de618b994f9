// Package config loads installer settings from YAML, .env and INSTALLER_* environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	goversion "github.com/hashicorp/go-version"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the installer configuration. The product section doubles as the
// meta.yaml embedded in a packed setup.
type Config struct {
	Product   Product   `yaml:"product"`
	Install   Install   `yaml:"install"`
	Uninstall Uninstall `yaml:"uninstall"`
	Log       Log       `yaml:"log"`
}

type Product struct {
	Name         string `yaml:"name"`
	ExeName      string `yaml:"exeName"`
	Version      string `yaml:"version"`
	Publisher    string `yaml:"publisher"`
	ShortcutName string `yaml:"shortcutName"` // empty means Name
}

type Install struct {
	// Dir overrides the base directory; the product name is still appended.
	Dir                   string        `yaml:"dir"`
	SourceDir             string        `yaml:"sourceDir"`
	CreateDesktopShortcut *bool         `yaml:"createDesktopShortcut"`
	GracePeriod           time.Duration `yaml:"gracePeriod"`
}

type Uninstall struct {
	PollInterval time.Duration `yaml:"pollInterval"`
	MaxAttempts  int           `yaml:"maxAttempts"`
}

type Log struct {
	Dir   string `yaml:"dir"`
	Level string `yaml:"level"`
}

// DesktopShortcut reports the configured default for the desktop shortcut option.
func (i Install) DesktopShortcut() bool {
	return i.CreateDesktopShortcut == nil || *i.CreateDesktopShortcut
}

// Load reads a YAML config file, applies env overrides and defaults, then validates.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse is Load without the file read.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return Finish(&cfg)
}

// Finish applies .env / environment overrides, defaults and validation to cfg.
// Only operator-side runs (pack, --config) use it.
func Finish(cfg *Config) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()
	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("invalid environment override: %w", err)
	}
	return Normalize(cfg)
}

// ParseMeta parses the meta.yaml baked into a setup. The end user's environment
// and working directory never override it.
func ParseMeta(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse embedded metadata: %w", err)
	}
	return Normalize(&cfg)
}

// Normalize applies defaults and validation without any environment overlay.
func Normalize(cfg *Config) (*Config, error) {
	setDefaults(cfg)
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(name string, dst *string) {
		if v, ok := os.LookupEnv(name); ok && v != "" {
			*dst = v
		}
	}
	str("INSTALLER_PRODUCT_NAME", &cfg.Product.Name)
	str("INSTALLER_EXE_NAME", &cfg.Product.ExeName)
	str("INSTALLER_VERSION", &cfg.Product.Version)
	str("INSTALLER_PUBLISHER", &cfg.Product.Publisher)
	str("INSTALLER_INSTALL_DIR", &cfg.Install.Dir)
	str("INSTALLER_SOURCE_DIR", &cfg.Install.SourceDir)
	str("INSTALLER_LOG_DIR", &cfg.Log.Dir)
	str("INSTALLER_LOG_LEVEL", &cfg.Log.Level)

	if v := os.Getenv("INSTALLER_DESKTOP_SHORTCUT"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("INSTALLER_DESKTOP_SHORTCUT: %w", err)
		}
		cfg.Install.CreateDesktopShortcut = &b
	}
	if v := os.Getenv("INSTALLER_GRACE_PERIOD"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("INSTALLER_GRACE_PERIOD: %w", err)
		}
		cfg.Install.GracePeriod = d
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Product.Name == "" {
		cfg.Product.Name = "MyApp"
	}
	if cfg.Product.ExeName == "" {
		cfg.Product.ExeName = cfg.Product.Name + ".exe"
	}
	if cfg.Product.ShortcutName == "" {
		cfg.Product.ShortcutName = cfg.Product.Name
	}
	if cfg.Install.GracePeriod == 0 {
		cfg.Install.GracePeriod = 1500 * time.Millisecond
	}
	if cfg.Uninstall.PollInterval == 0 {
		cfg.Uninstall.PollInterval = time.Second
	}
	if cfg.Uninstall.MaxAttempts == 0 {
		cfg.Uninstall.MaxAttempts = 120
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func validate(cfg *Config) error {
	if strings.ContainsAny(cfg.Product.Name, `\/:*?"<>|`) {
		return fmt.Errorf("product name %q contains path characters", cfg.Product.Name)
	}
	if strings.ContainsAny(cfg.Product.ExeName, `\/`) {
		return fmt.Errorf("exeName %q must be a file name", cfg.Product.ExeName)
	}
	if cfg.Product.Version != "" && cfg.Product.Version != "latest" {
		if _, err := goversion.NewVersion(cfg.Product.Version); err != nil {
			return fmt.Errorf("version %q: %w", cfg.Product.Version, err)
		}
	}
	if cfg.Install.GracePeriod < 0 || cfg.Uninstall.PollInterval < 0 || cfg.Uninstall.MaxAttempts < 0 {
		return fmt.Errorf("durations and attempts must not be negative")
	}
	return nil
}
