// Package config holds the runtime configuration of the sbom-enricher.
// A Config is built once at startup (defaults, then an optional YAML file, then
// environment variables) and passed explicitly to the components that need it.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ortelius/sbom-enricher/util"
	"gopkg.in/yaml.v2"
)

// ErrMissingCredentials is returned by Validate when the selected vulnerability store
// cannot be reached with the configured settings.
var ErrMissingCredentials = errors.New("missing vulnerability store credentials")

// Supported vulnerability store drivers
const (
	DriverArango  = "arangodb"
	DriverMySQL   = "mysql"
	DriverSQLite  = "sqlite"
	DriverOffline = "offline"
)

// Config holds the configuration for the sbom-enricher
type Config struct {
	VulnDB   VulnDBConfig `yaml:"vulndb"`
	UV       UVConfig     `yaml:"uv"`
	Server   ServerConfig `yaml:"server"`
	LogLevel string       `yaml:"log_level"`
}

// VulnDBConfig describes how to reach the vulnerability store
type VulnDBConfig struct {
	Driver         string        `yaml:"driver"` // arangodb, mysql, sqlite or offline
	URL            string        `yaml:"url"`    // arangodb endpoint, overrides host and port
	Host           string        `yaml:"host"`
	Port           string        `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	Name           string        `yaml:"name"` // database name
	Path           string        `yaml:"path"` // sqlite database or offline file
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// UVConfig controls the dependency tree tool
type UVConfig struct {
	Command string        `yaml:"command"` // may include arguments, e.g. "python -m uv"
	Timeout time.Duration `yaml:"timeout"`
}

// ServerConfig controls the HTTP service
type ServerConfig struct {
	Port string `yaml:"port"`
}

// Default returns a Config with sensible defaults
func Default() *Config {
	return &Config{
		VulnDB: VulnDBConfig{
			Driver:         DriverArango,
			Host:           "localhost",
			Name:           "vulnmgt",
			ConnectTimeout: 30 * time.Second,
		},
		UV: UVConfig{
			Command: "uv",
			Timeout: 5 * time.Minute,
		},
		Server: ServerConfig{
			Port: "8080",
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, the YAML file at path (if any) and the environment
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	cfg.VulnDB.Driver = strings.ToLower(strings.TrimSpace(cfg.VulnDB.Driver))
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.VulnDB.Driver = util.GetEnvDefault("VULNDB_DRIVER", c.VulnDB.Driver)
	c.VulnDB.URL = util.GetEnvDefault("VULNDB_URL", c.VulnDB.URL)
	c.VulnDB.Host = util.GetEnvDefault("VULNDB_HOST", c.VulnDB.Host)
	c.VulnDB.Port = util.GetEnvDefault("VULNDB_PORT", c.VulnDB.Port)
	c.VulnDB.User = util.GetEnvDefault("VULNDB_USER", c.VulnDB.User)
	c.VulnDB.Password = util.GetEnvDefault("VULNDB_PASS", c.VulnDB.Password)
	c.VulnDB.Name = util.GetEnvDefault("VULNDB_NAME", c.VulnDB.Name)
	c.VulnDB.Path = util.GetEnvDefault("VULNDB_PATH", c.VulnDB.Path)
	c.UV.Command = util.GetEnvDefault("UV_COMMAND", c.UV.Command)
	c.Server.Port = util.GetEnvDefault("MS_PORT", c.Server.Port)
	c.LogLevel = util.GetEnvDefault("LOG_LEVEL", c.LogLevel)

	var err error
	if c.VulnDB.ConnectTimeout, err = envDuration("VULNDB_CONNECT_TIMEOUT", c.VulnDB.ConnectTimeout); err != nil {
		return err
	}
	if c.UV.Timeout, err = envDuration("UV_TIMEOUT", c.UV.Timeout); err != nil {
		return err
	}
	return nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	val := util.GetEnvDefault(key, "")
	if val == "" {
		return def, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return d, nil
}

// Validate checks that the configuration is usable. Store settings are only
// checked when enrich is true.
func (c *Config) Validate(enrich bool) error {
	if c.UV.Timeout <= 0 {
		return fmt.Errorf("uv timeout must be positive, got %s", c.UV.Timeout)
	}
	if util.IsEmpty(c.UV.Command) {
		return errors.New("uv command is empty")
	}
	if !enrich {
		return nil
	}

	db := c.VulnDB
	switch db.Driver {
	case DriverArango, DriverMySQL:
		if util.IsEmpty(db.User) || util.IsEmpty(db.Password) {
			return fmt.Errorf("%w: %s requires VULNDB_USER and VULNDB_PASS", ErrMissingCredentials, db.Driver)
		}
		if util.IsEmpty(db.URL) && util.IsEmpty(db.Host) {
			return fmt.Errorf("%w: %s requires VULNDB_HOST or VULNDB_URL", ErrMissingCredentials, db.Driver)
		}
	case DriverSQLite, DriverOffline:
		if util.IsEmpty(db.Path) {
			return fmt.Errorf("%w: %s requires VULNDB_PATH", ErrMissingCredentials, db.Driver)
		}
	default:
		return fmt.Errorf("unsupported vulnerability store driver %q", db.Driver)
	}
	return nil
}

// Endpoint returns the ArangoDB endpoint URL
func (db VulnDBConfig) Endpoint() string {
	if db.URL != "" {
		return db.URL
	}
	return "http://" + db.Host + ":" + util.GetStringOrDefault(db.Port, "8529")
}

// DSN returns the data source name for the database/sql drivers
func (db VulnDBConfig) DSN() string {
	if db.Driver == DriverMySQL {
		port := util.GetStringOrDefault(db.Port, "3306")
		return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s", db.User, db.Password, db.Host, port, db.Name)
	}
	return db.Path
}
