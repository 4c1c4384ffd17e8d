package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the config file created by `pennywise init`.
const FileName = "pennywise.yaml"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Environment variables read by SecretsFromEnv.
const (
	EnvEncryptionKey       = "PENNYWISE_ENCRYPTION_KEY"
	EnvEncryptionKeyLegacy = "ENCRYPTION_KEY"
	EnvDatabaseURL         = "DATABASE_URL"
	EnvMongoURI            = "MONGO_URI"
)

// Config represents the top-level pennywise.yaml configuration. Secrets are
// never stored here; see Secrets.
type Config struct {
	Store   StoreConfig  `yaml:"store"`
	Server  ServerConfig `yaml:"server"`
	Import  ImportConfig `yaml:"import"`
	Log     LogConfig    `yaml:"log"`
	Sources []Source     `yaml:"sources,omitempty"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver   string `yaml:"driver"`
	Database string `yaml:"database,omitempty"` // mongo database name
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins,omitempty"`
}

// ImportConfig controls CLI imports. Dir is relative to the project root.
type ImportConfig struct {
	Dir             string `yaml:"dir"`
	DefaultCategory string `yaml:"default_category"`
	DefaultUser     string `yaml:"default_user,omitempty"`
	ApplyBalance    bool   `yaml:"apply_balance"`
}

// LogConfig controls the zerolog output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Source tells `import --scan` how to read files whose name matches Match.
type Source struct {
	Name         string `yaml:"name"`
	Match        string `yaml:"match"`  // filepath.Match pattern on the base name
	Format       string `yaml:"format"` // heuristic, chase or mapped
	Mapping      string `yaml:"mapping,omitempty"`
	SkipHeader   bool   `yaml:"skip_header,omitempty"`
	AccountID    string `yaml:"account_id,omitempty"`
	ApplyBalance bool   `yaml:"apply_balance,omitempty"`
}

// Matches reports whether filename belongs to s.
func (s Source) Matches(filename string) bool {
	ok, err := filepath.Match(s.Match, filepath.Base(filename))
	return err == nil && ok
}

// SourceFor returns the first source matching filename.
func (c *Config) SourceFor(filename string) (Source, bool) {
	for _, s := range c.Sources {
		if s.Matches(filename) {
			return s, true
		}
	}
	return Source{}, false
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverPostgres, DriverMongo:
	default:
		return fmt.Errorf("store.driver %q: want %s, %s or %s", c.Store.Driver, DriverMemory, DriverPostgres, DriverMongo)
	}
	for i, s := range c.Sources {
		if _, err := filepath.Match(s.Match, ""); err != nil {
			return fmt.Errorf("sources[%d].match %q: %w", i, s.Match, err)
		}
		if s.Format == "mapped" && s.Mapping == "" {
			return fmt.Errorf("sources[%d]: mapped format needs a mapping", i)
		}
	}
	return nil
}

// Load reads a pennywise.yaml file from disk.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Save writes a Config to a YAML file.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// Default returns a Config with sensible defaults for a new project.
func Default() *Config {
	return &Config{
		Store: StoreConfig{
			Driver:   DriverMemory,
			Database: "pennywise",
		},
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Import: ImportConfig{
			Dir:             "import",
			DefaultCategory: "Uncategorized",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Secrets holds values that only ever come from the environment.
type Secrets struct {
	EncryptionKey string
	DatabaseURL   string
	MongoURI      string
}

// LoadEnv loads .env-style files into the process environment. Variables
// already set win. Missing files are ignored. With no paths, ".env" is tried.
func LoadEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// SecretsFromEnv reads the encryption key and connection strings.
func SecretsFromEnv() Secrets {
	key := strings.TrimSpace(os.Getenv(EnvEncryptionKey))
	if key == "" {
		key = strings.TrimSpace(os.Getenv(EnvEncryptionKeyLegacy))
	}
	return Secrets{
		EncryptionKey: key,
		DatabaseURL:   os.Getenv(EnvDatabaseURL),
		MongoURI:      os.Getenv(EnvMongoURI),
	}
}
