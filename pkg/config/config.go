package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"
)

type RemoteConfig struct {
	Enabled         bool   `json:"enabled" env:"DIALOGBRIDGE_REMOTE_ENABLED"`
	EndpointPrefix  string `json:"endpoint_prefix" env:"DIALOGBRIDGE_REMOTE_ENDPOINT_PREFIX"`
	SocketDir       string `json:"socket_dir" env:"DIALOGBRIDGE_REMOTE_SOCKET_DIR"`
	WriteQueueSize  int    `json:"write_queue_size" env:"DIALOGBRIDGE_REMOTE_WRITE_QUEUE_SIZE"`
	MaxMessageBytes int    `json:"max_message_bytes" env:"DIALOGBRIDGE_REMOTE_MAX_MESSAGE_BYTES"`
	ForwardFinished bool   `json:"forward_finished" env:"DIALOGBRIDGE_REMOTE_FORWARD_FINISHED"`
}

type AuditConfig struct {
	Enabled      bool   `json:"enabled" env:"DIALOGBRIDGE_AUDIT_ENABLED"`
	Path         string `json:"path" env:"DIALOGBRIDGE_AUDIT_PATH"`
	MaxSizeBytes int64  `json:"max_size_bytes" env:"DIALOGBRIDGE_AUDIT_MAX_SIZE_BYTES"`
	MaxBackups   int    `json:"max_backups" env:"DIALOGBRIDGE_AUDIT_MAX_BACKUPS"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"DIALOGBRIDGE_LOG_LEVEL"`
	File   string `json:"file" env:"DIALOGBRIDGE_LOG_FILE"`
	Redact bool   `json:"redact" env:"DIALOGBRIDGE_LOG_REDACT"`
}

type Config struct {
	Remote  RemoteConfig  `json:"remote"`
	Audit   AuditConfig   `json:"audit"`
	Logging LoggingConfig `json:"logging"`
	mu      sync.RWMutex
}

func DefaultConfig() *Config {
	return &Config{
		Remote: RemoteConfig{
			Enabled:         true,
			EndpointPrefix:  "dialogbridge",
			SocketDir:       os.TempDir(),
			WriteQueueSize:  64,
			MaxMessageBytes: 1 << 20,
			ForwardFinished: true,
		},
		Audit: AuditConfig{
			Enabled:      false,
			Path:         ResolveRuntimePaths().AuditPath,
			MaxSizeBytes: 10 * 1024 * 1024,
			MaxBackups:   3,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Redact: true,
		},
	}
}

// LoadConfig reads path over the defaults and then applies environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply environment overrides: %w", err)
	}

	cfg.Remote.SocketDir = expandHome(cfg.Remote.SocketDir)
	cfg.Audit.Path = expandHome(cfg.Audit.Path)
	cfg.Logging.File = expandHome(cfg.Logging.File)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the bridge cannot run with.
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var errs []error
	if strings.TrimSpace(c.Remote.EndpointPrefix) == "" {
		errs = append(errs, errors.New("remote.endpoint_prefix must not be empty"))
	}
	if strings.ContainsAny(c.Remote.EndpointPrefix, `/\`) {
		errs = append(errs, errors.New("remote.endpoint_prefix must not contain path separators"))
	}
	if c.Remote.WriteQueueSize <= 0 {
		errs = append(errs, fmt.Errorf("remote.write_queue_size must be positive, got %d", c.Remote.WriteQueueSize))
	}
	if c.Remote.MaxMessageBytes <= 0 {
		errs = append(errs, fmt.Errorf("remote.max_message_bytes must be positive, got %d", c.Remote.MaxMessageBytes))
	}
	if c.Audit.Enabled {
		if c.Audit.Path == "" {
			errs = append(errs, errors.New("audit.path is required when audit is enabled"))
		}
		if c.Audit.MaxSizeBytes <= 0 {
			errs = append(errs, fmt.Errorf("audit.max_size_bytes must be positive, got %d", c.Audit.MaxSizeBytes))
		}
	}
	return errors.Join(errs...)
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func (c *Config) Lock()    { c.mu.Lock() }
func (c *Config) Unlock()  { c.mu.Unlock() }
func (c *Config) RLock()   { c.mu.RLock() }
func (c *Config) RUnlock() { c.mu.RUnlock() }
