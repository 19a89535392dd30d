// Package config manages the launcher configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. LAUNCHER_DISTRO_NAME.
const EnvPrefix = "LAUNCHER"

// AppConfig holds the launcher configuration
type AppConfig struct {
	// AppName is the executable name of the installer companion app
	AppName    string `mapstructure:"app_name" yaml:"app_name"`
	DistroName string `mapstructure:"distro_name" yaml:"distro_name"`
	// MustSkipFallback makes a failed installer fatal instead of falling back to the plain setup
	MustSkipFallback bool `mapstructure:"must_skip_fallback" yaml:"must_skip_fallback"`
	// RequiresNewConsole gives the companion its own console
	RequiresNewConsole bool `mapstructure:"requires_new_console" yaml:"requires_new_console"`
	// CompanionExe is resolved next to the launcher when relative; empty disables the companion
	CompanionExe string   `mapstructure:"companion_exe" yaml:"companion_exe"`
	Verbose      bool     `mapstructure:"verbose" yaml:"verbose"`
	LogFile      string   `mapstructure:"log_file" yaml:"log_file,omitempty"`
	Timeouts     Timeouts `mapstructure:"timeouts" yaml:"timeouts"`
}

// Timeouts holds the bounded waits of the launcher
type Timeouts struct {
	Guard     time.Duration `mapstructure:"guard" yaml:"guard"`
	Handshake time.Duration `mapstructure:"handshake" yaml:"handshake"`
	PollDelay time.Duration `mapstructure:"poll_delay" yaml:"poll_delay"`
	// Installer bounds the wait for the installer to finish; zero waits forever
	Installer time.Duration `mapstructure:"installer" yaml:"installer"`
}

// Default returns the built-in configuration
func Default() AppConfig {
	return AppConfig{
		AppName:      "ubuntu_wsl_setup.exe",
		DistroName:   "Ubuntu",
		CompanionExe: "ubuntu_wsl_splash.exe",
		Timeouts: Timeouts{
			Guard:     5 * time.Second,
			Handshake: 2 * time.Second,
			PollDelay: 3 * time.Second,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("app_name", d.AppName)
	v.SetDefault("distro_name", d.DistroName)
	v.SetDefault("must_skip_fallback", d.MustSkipFallback)
	v.SetDefault("requires_new_console", d.RequiresNewConsole)
	v.SetDefault("companion_exe", d.CompanionExe)
	v.SetDefault("verbose", d.Verbose)
	v.SetDefault("log_file", d.LogFile)
	v.SetDefault("timeouts.guard", d.Timeouts.Guard)
	v.SetDefault("timeouts.handshake", d.Timeouts.Handshake)
	v.SetDefault("timeouts.poll_delay", d.Timeouts.PollDelay)
	v.SetDefault("timeouts.installer", d.Timeouts.Installer)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the YAML file at path, when given, on top of the defaults. Environment variables
// override both.
func Load(path string) (AppConfig, error) {
	v := newViper()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return AppConfig{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

var (
	ErrMissingDistro = errors.New("distro_name is required")
	ErrInvalidName   = errors.New("distro_name may only contain letters, digits, '.', '-' and '_'")
	ErrNegative      = errors.New("timeouts cannot be negative")
)

// Validate checks the configuration is usable
func (c AppConfig) Validate() error {
	if c.DistroName == "" {
		return ErrMissingDistro
	}
	for _, r := range c.DistroName {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' || r == '.' || r == '-' || r == '_') {
			return fmt.Errorf("%w: %q", ErrInvalidName, c.DistroName)
		}
	}
	t := c.Timeouts
	if t.Guard < 0 || t.Handshake < 0 || t.PollDelay < 0 || t.Installer < 0 {
		return ErrNegative
	}
	return nil
}

// CompanionPath resolves CompanionExe against dir. Empty means there is no companion.
func (c AppConfig) CompanionPath(dir string) string {
	if c.CompanionExe == "" || filepath.IsAbs(c.CompanionExe) {
		return c.CompanionExe
	}
	return filepath.Join(dir, c.CompanionExe)
}

// YAML renders the configuration in the format Load reads
func (c AppConfig) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes the configuration to path
func (c AppConfig) Save(path string) error {
	data, err := c.YAML()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
