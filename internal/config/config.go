package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full service configuration, loaded from a YAML file with
// environment-variable overrides.
type Config struct {
	Env        string `yaml:"env" env:"CLINICORE_ENV" env-default:"local"`
	DB         `yaml:"db"`
	HTTPServer `yaml:"http_server"`
	Auth       `yaml:"auth"`
}

type DB struct {
	DSN string `yaml:"dsn" env:"CLINICORE_PG_DSN" env-default:""`
}

type HTTPServer struct {
	Address       string        `yaml:"address" env:"CLINICORE_HTTP_ADDR" env-default:":8080"`
	IdleTimeout   time.Duration `yaml:"idle_timeout" env-default:"60s"`
	ReadTimeout   time.Duration `yaml:"read_timeout" env-default:"15s"`
	WriteTimeout  time.Duration `yaml:"write_timeout" env-default:"15s"`
	MaxBodyBytes  int64         `yaml:"max_body_bytes" env-default:"1048576"`
	RateBurst     int           `yaml:"rate_burst" env-default:"20"`
	RatePerSecond int           `yaml:"rate_per_second" env-default:"10"`
}

type Auth struct {
	SigningSecret      string        `yaml:"signing_secret" env:"CLINICORE_AUTH_SECRET" env-required:"true"`
	AccessTTL          time.Duration `yaml:"access_ttl" env-default:"15m"`
	RefreshTTL         time.Duration `yaml:"refresh_ttl" env-default:"336h"`
	SessionMaxLifetime time.Duration `yaml:"session_max_lifetime" env-default:"720h"`
}

// MustLoad loads configuration from path, or from the environment alone when
// path is empty, and panics on failure. Intended for main().
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// Load reads the YAML file at path (when non-empty) and applies environment
// overrides on top.
func Load(path string) (*Config, error) {
	var cfg Config
	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, err
		}
		return &cfg, nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}
