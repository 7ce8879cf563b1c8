package utils

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"oncostats/pkg/database"
)

const (
	SourceCSV      = "csv"
	SourceSQLite   = "sqlite"
	SourcePostgres = "postgres"
)

type Config struct {
	// Where datasets come from: csv (DataDir), sqlite (DBPath) or postgres (DBDSN).
	Source  string `yaml:"source"`
	DataDir string `yaml:"data_dir"`
	DBPath  string `yaml:"db_path"`
	DBDSN   string `yaml:"db_dsn"`

	// Optional catalog override; empty means the built-in catalog.
	Catalog string `yaml:"catalog"`

	HTTPAddr    string   `yaml:"http_addr"`
	TCPAddr     string   `yaml:"tcp_addr"`
	GRPCAddr    string   `yaml:"grpc_addr"`
	UDPAddr     string   `yaml:"udp_addr"` // dataset change notices; empty disables
	CORSOrigins []string `yaml:"cors_origins"`
	HeroImage   string   `yaml:"hero_image"`

	LoadTimeout time.Duration `yaml:"load_timeout"`
	Watch       bool          `yaml:"watch"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

func DefaultConfig() Config {
	return Config{
		Source:      SourceCSV,
		DataDir:     "data",
		DBPath:      database.DefaultConfig().Path,
		HTTPAddr:    ":8080",
		TCPAddr:     ":7070",
		GRPCAddr:    ":9090",
		UDPAddr:     ":7071",
		CORSOrigins: []string{"http://localhost:3000", "http://127.0.0.1:3000"},
		HeroImage:   "data/cancer1.webp",
		LoadTimeout: 5 * time.Second,
		Watch:       true,
		LogLevel:    "info",
		LogFormat:   "json",
	}
}

// DotEnvFile is read into the process environment, without overriding
// variables already set, before config is resolved. A missing file is fine.
var DotEnvFile = ".env"

// LoadConfig layers defaults, then the YAML file named by path (or
// ONCOSTATS_CONFIG when path is empty), then ONCOSTATS_* env vars.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if DotEnvFile != "" {
		if err := godotenv.Load(DotEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", DotEnvFile, err)
		}
	}

	if path == "" {
		path = os.Getenv("ONCOSTATS_CONFIG")
	}
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str("ONCOSTATS_SOURCE", &cfg.Source)
	str("ONCOSTATS_DATA_DIR", &cfg.DataDir)
	str("ONCOSTATS_DB_PATH", &cfg.DBPath)
	str("ONCOSTATS_DB_DSN", &cfg.DBDSN)
	str("ONCOSTATS_CATALOG", &cfg.Catalog)
	str("ONCOSTATS_HTTP_ADDR", &cfg.HTTPAddr)
	str("ONCOSTATS_TCP_ADDR", &cfg.TCPAddr)
	str("ONCOSTATS_GRPC_ADDR", &cfg.GRPCAddr)
	str("ONCOSTATS_UDP_ADDR", &cfg.UDPAddr)
	str("ONCOSTATS_HERO_IMAGE", &cfg.HeroImage)
	str("ONCOSTATS_LOG_LEVEL", &cfg.LogLevel)
	str("ONCOSTATS_LOG_FORMAT", &cfg.LogFormat)

	if v := os.Getenv("ONCOSTATS_CORS_ORIGINS"); v != "" {
		cfg.CORSOrigins = nil
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}
	if v := os.Getenv("ONCOSTATS_LOAD_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("ONCOSTATS_LOAD_TIMEOUT: %w", err)
		}
		cfg.LoadTimeout = d
	}
	if v := os.Getenv("ONCOSTATS_WATCH"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("ONCOSTATS_WATCH: %w", err)
		}
		cfg.Watch = b
	}
	return nil
}

func (c Config) Validate() error {
	switch c.Source {
	case SourceCSV:
		if c.DataDir == "" {
			return fmt.Errorf("config: data_dir required for csv source")
		}
	case SourceSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("config: db_path required for sqlite source")
		}
	case SourcePostgres:
		if c.DBDSN == "" {
			return fmt.Errorf("config: db_dsn required for postgres source")
		}
	default:
		return fmt.Errorf("config: unknown source %q", c.Source)
	}
	if c.LoadTimeout <= 0 {
		return fmt.Errorf("config: load_timeout must be positive")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		return fmt.Errorf("config: unknown log_format %q", c.LogFormat)
	}
	return nil
}

// Database returns the database settings for the sqlite or postgres
// source; for the csv source it still names the sqlite file import and
// export write to.
func (c Config) Database() database.Config {
	if c.Source == SourcePostgres {
		return database.Config{Driver: database.DriverPostgres, DSN: c.DBDSN}
	}
	return database.Config{Driver: database.DriverSQLite, Path: c.DBPath}
}
