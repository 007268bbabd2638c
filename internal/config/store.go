package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	appName      = "sprinkler"
	scheduleFile = "schedules.yaml"

	// fileVersion is written to every saved file
	fileVersion = 1
)

// document is the on-disk layout of the schedule file.
type document struct {
	Version int `yaml:"version"`
	Config  `yaml:",inline"`
}

// GetConfigDir returns the OS-appropriate configuration directory:
//   - Linux: $XDG_CONFIG_HOME/sprinkler or $HOME/.config/sprinkler
//   - macOS: $HOME/.config/sprinkler
//   - Windows: %LOCALAPPDATA%\sprinkler
func GetConfigDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData != "" {
			return filepath.Join(localAppData, appName), nil
		}
		userProfile := os.Getenv("USERPROFILE")
		if userProfile == "" {
			return "", fmt.Errorf("cannot determine user profile directory (LOCALAPPDATA and USERPROFILE not set)")
		}
		return filepath.Join(userProfile, "AppData", "Local", appName), nil

	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil

	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, appName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("cannot determine home directory: %w", err)
		}
		return filepath.Join(homeDir, ".config", appName), nil
	}
}

// DefaultPath returns the default schedule file location.
func DefaultPath() (string, error) {
	dir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, scheduleFile), nil
}

// Store loads and saves the relay configuration as YAML.
type Store struct {
	Path string

	mu sync.Mutex
}

// NewStore creates a store for path. An empty path selects DefaultPath.
func NewStore(path string) (*Store, error) {
	if path == "" {
		var err error
		path, err = DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to get config path: %w", err)
		}
	}
	return &Store{Path: path}, nil
}

// Load reads the configuration. A missing file yields Default().
func (s *Store) Load() (Config, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Config{}, fmt.Errorf("failed to parse config file: %w", err)
	}
	if doc.Version != 0 && doc.Version != fileVersion {
		return Config{}, fmt.Errorf("unsupported config version: %d (expected %d)", doc.Version, fileVersion)
	}

	cfg := doc.Config.Normalize()
	if cfg.Schedules == nil {
		cfg.Schedules = []Schedule{}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config file: %w", err)
	}
	return cfg, nil
}

// Save writes cfg atomically: a temporary file is written and renamed over
// the target.
func (s *Store) Save(cfg Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(document{Version: fileVersion, Config: cfg})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := []byte(`# Sprinkler Relay Schedules
# Managed by sprinkler-relay. Edits made while the relay is running are
# overwritten by the next setSchedule request.
#
# Location: ` + s.Path + `

`)
	data = append(header, data...)

	tmpPath := s.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}

	if err := os.Rename(tmpPath, s.Path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to save config file: %w", err)
	}

	return nil
}
