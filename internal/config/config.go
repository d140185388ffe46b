// Package config loads service configuration.
//
// Sources are layered, later ones winning: built-in defaults, an optional
// YAML file, a .env file, VANISHBIN_* environment variables and finally
// command-line flags.
package config

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "VANISHBIN_"

// Config holds all configuration for the vanishbin service.
type Config struct {
	Addr           string      `yaml:"addr" validate:"required"`
	BaseURL        string      `yaml:"base_url" validate:"omitempty,http_url"`
	BehindProxy    bool        `yaml:"behind_proxy"`
	Mode           string      `yaml:"mode" validate:"oneof=fixed sliding"`
	MaxBytes       int         `yaml:"max_bytes" validate:"gt=0"`
	OpaqueNotFound bool        `yaml:"opaque_not_found"`
	IDKind         string      `yaml:"id_kind" validate:"oneof=nanoid xid"`
	IDLength       int         `yaml:"id_length" validate:"gte=8,lte=64"`
	Metrics        bool        `yaml:"metrics"`
	FingerprintKey string      `yaml:"fingerprint_key" validate:"max=64"`
	Store          StoreConfig `yaml:"store"`
	Log            LogConfig   `yaml:"log"`
}

type StoreConfig struct {
	Backend string        `yaml:"backend" validate:"oneof=bolt sqlite mongo dynamodb memory"`
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`

	MongoURI        string `yaml:"mongo_uri"`
	MongoDatabase   string `yaml:"mongo_database"`
	MongoCollection string `yaml:"mongo_collection"`

	DynamoTable    string `yaml:"dynamo_table"`
	DynamoRegion   string `yaml:"dynamo_region"`
	DynamoEndpoint string `yaml:"dynamo_endpoint" validate:"omitempty,url"`
}

type LogConfig struct {
	Level      string `yaml:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" validate:"oneof=text json"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:     ":8080",
		Mode:     "sliding",
		MaxBytes: 1 << 20,
		IDKind:   "nanoid",
		IDLength: 12,
		Store: StoreConfig{
			Backend:         "bolt",
			Path:            "./vanishbin.db",
			Timeout:         5 * time.Second,
			MongoDatabase:   "vanishbin",
			MongoCollection: "pastes",
			DynamoTable:     "vanishbin-pastes",
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load builds the configuration for the given command-line arguments
// (without the program name).
func Load(args []string) (*Config, error) {
	return load(args, os.LookupEnv)
}

func load(args []string, lookup func(string) (string, bool)) (*Config, error) {
	// First pass only discovers -config and -env-file.
	scratch := Default()
	var configPath, envFile string
	pre := newFlagSet(&scratch, &configPath, &envFile)
	if err := pre.Parse(args); err != nil {
		return nil, err
	}

	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	if configPath == "" {
		configPath, _ = lookup(envPrefix + "CONFIG")
	}

	cfg := Default()
	if configPath != "" {
		if err := cfg.loadFile(configPath); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	fs := newFlagSet(&cfg, &configPath, &envFile)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) loadFile(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func newFlagSet(c *Config, configPath, envFile *string) *flag.FlagSet {
	fs := flag.NewFlagSet("vanishbin", flag.ContinueOnError)
	fs.StringVar(configPath, "config", *configPath, "path to YAML config file")
	fs.StringVar(envFile, "env-file", *envFile, "path to .env file (default .env)")

	fs.StringVar(&c.Addr, "addr", c.Addr, "listen address")
	fs.StringVar(&c.BaseURL, "base-url", c.BaseURL, "canonical base URL (optional)")
	fs.BoolVar(&c.BehindProxy, "behind-proxy", c.BehindProxy, "trust X-Forwarded-* headers")
	fs.StringVar(&c.Mode, "mode", c.Mode, "expiration mode: fixed or sliding")
	fs.IntVar(&c.MaxBytes, "max-bytes", c.MaxBytes, "maximum paste size in bytes")
	fs.BoolVar(&c.OpaqueNotFound, "opaque-not-found", c.OpaqueNotFound, "report every unavailable paste as not found")
	fs.StringVar(&c.IDKind, "id-kind", c.IDKind, "id generator: nanoid or xid")
	fs.IntVar(&c.IDLength, "id-length", c.IDLength, "nanoid length")
	fs.BoolVar(&c.Metrics, "metrics", c.Metrics, "expose /metrics")
	fs.StringVar(&c.FingerprintKey, "fingerprint-key", c.FingerprintKey, "key for client fingerprints in logs (random if empty)")

	fs.StringVar(&c.Store.Backend, "store", c.Store.Backend, "store backend: bolt, sqlite, mongo, dynamodb or memory")
	fs.StringVar(&c.Store.Path, "data", c.Store.Path, "path to data file (bolt, sqlite)")
	fs.DurationVar(&c.Store.Timeout, "store-timeout", c.Store.Timeout, "timeout for each store call")
	fs.StringVar(&c.Store.MongoURI, "mongo-uri", c.Store.MongoURI, "MongoDB connection URI")
	fs.StringVar(&c.Store.MongoDatabase, "mongo-database", c.Store.MongoDatabase, "MongoDB database")
	fs.StringVar(&c.Store.MongoCollection, "mongo-collection", c.Store.MongoCollection, "MongoDB collection")
	fs.StringVar(&c.Store.DynamoTable, "dynamo-table", c.Store.DynamoTable, "DynamoDB table")
	fs.StringVar(&c.Store.DynamoRegion, "dynamo-region", c.Store.DynamoRegion, "DynamoDB region")
	fs.StringVar(&c.Store.DynamoEndpoint, "dynamo-endpoint", c.Store.DynamoEndpoint, "DynamoDB endpoint override")

	fs.StringVar(&c.Log.Level, "log-level", c.Log.Level, "log level: debug, info, warn or error")
	fs.StringVar(&c.Log.Format, "log-format", c.Log.Format, "log format: text or json")
	fs.StringVar(&c.Log.File, "log-file", c.Log.File, "also write logs to this rotating file")
	return fs
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(dst *string) func(string) error {
		return func(v string) error { *dst = v; return nil }
	}
	num := func(dst *int) func(string) error {
		return func(v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return err
			}
			*dst = n
			return nil
		}
	}
	boolean := func(dst *bool) func(string) error {
		return func(v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return err
			}
			*dst = b
			return nil
		}
	}
	duration := func(dst *time.Duration) func(string) error {
		return func(v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return err
			}
			*dst = d
			return nil
		}
	}

	vars := []struct {
		name string
		set  func(string) error
	}{
		{"ADDR", str(&c.Addr)},
		{"BASE_URL", str(&c.BaseURL)},
		{"BEHIND_PROXY", boolean(&c.BehindProxy)},
		{"MODE", str(&c.Mode)},
		{"MAX_BYTES", num(&c.MaxBytes)},
		{"OPAQUE_NOT_FOUND", boolean(&c.OpaqueNotFound)},
		{"ID_KIND", str(&c.IDKind)},
		{"ID_LENGTH", num(&c.IDLength)},
		{"METRICS", boolean(&c.Metrics)},
		{"FINGERPRINT_KEY", str(&c.FingerprintKey)},
		{"STORE_BACKEND", str(&c.Store.Backend)},
		{"STORE_PATH", str(&c.Store.Path)},
		{"STORE_TIMEOUT", duration(&c.Store.Timeout)},
		{"MONGO_URI", str(&c.Store.MongoURI)},
		{"MONGO_DATABASE", str(&c.Store.MongoDatabase)},
		{"MONGO_COLLECTION", str(&c.Store.MongoCollection)},
		{"DYNAMO_TABLE", str(&c.Store.DynamoTable)},
		{"DYNAMO_REGION", str(&c.Store.DynamoRegion)},
		{"DYNAMO_ENDPOINT", str(&c.Store.DynamoEndpoint)},
		{"LOG_LEVEL", str(&c.Log.Level)},
		{"LOG_FORMAT", str(&c.Log.Format)},
		{"LOG_FILE", str(&c.Log.File)},
	}
	for _, v := range vars {
		raw, ok := lookup(envPrefix + v.name)
		if !ok || raw == "" {
			continue
		}
		if err := v.set(raw); err != nil {
			return fmt.Errorf("%s%s: %w", envPrefix, v.name, err)
		}
	}
	return nil
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateStore, StoreConfig{})
	return v
}

// validateStore checks the settings each backend needs.
func validateStore(sl validator.StructLevel) {
	s := sl.Current().Interface().(StoreConfig)
	switch s.Backend {
	case "bolt", "sqlite":
		if s.Path == "" {
			sl.ReportError(s.Path, "Path", "path", "required_for_backend", s.Backend)
		}
	case "mongo":
		if s.MongoURI == "" {
			sl.ReportError(s.MongoURI, "MongoURI", "mongo_uri", "required_for_backend", s.Backend)
		}
		if s.MongoDatabase == "" || s.MongoCollection == "" {
			sl.ReportError(s.MongoCollection, "MongoCollection", "mongo_collection", "required_for_backend", s.Backend)
		}
	case "dynamodb":
		if s.DynamoTable == "" {
			sl.ReportError(s.DynamoTable, "DynamoTable", "dynamo_table", "required_for_backend", s.Backend)
		}
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		if fe.Param() != "" {
			return fmt.Errorf("invalid config %s: failed %s=%s (got %v)", fe.Namespace(), fe.Tag(), fe.Param(), fe.Value())
		}
		return fmt.Errorf("invalid config %s: failed %s (got %v)", fe.Namespace(), fe.Tag(), fe.Value())
	}
	return fmt.Errorf("invalid config: %w", err)
}
