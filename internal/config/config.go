package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

var (
	ErrConfigNotLoaded = errors.New("config not loaded")
)

type Environment string

const (
	Production  Environment = "prod"
	Development Environment = "dev"
)

func (e *Environment) SetValue(s string) error {
	*e = Environment(s)
	if *e != Production && *e != Development {
		return configNotLoadedErr(`only "prod" and "dev" environments are allowed`)
	}
	return nil
}

// BackendMode selects the persistence/auth collaborator implementation.
type BackendMode string

const (
	// ModeHosted talks to the hosted backend service over its REST API.
	ModeHosted BackendMode = "hosted"
	// ModePostgres runs against a self-hosted Postgres database.
	ModePostgres BackendMode = "postgres"
	// ModeMemory keeps everything in process. Development only.
	ModeMemory BackendMode = "memory"
)

func (m *BackendMode) SetValue(s string) error {
	*m = BackendMode(s)
	switch *m {
	case ModeHosted, ModePostgres, ModeMemory:
		return nil
	}
	return configNotLoadedErr(`backend mode must be "hosted", "postgres" or "memory"`)
}

type Config struct {
	App struct {
		Env Environment `yaml:"env" env:"ENV" env-required:""`
	} `yaml:"app" env-prefix:"APP_" env-required:""`

	Server struct {
		Host   string `yaml:"host" env:"HOST" env-default:"localhost"`
		Port   int    `yaml:"port" env:"PORT" env-default:"8080"`
		WebDir string `yaml:"web_dir" env:"WEB_DIR" env-default:"web"`
	} `yaml:"server" env-prefix:"SERVER_"`

	Backend struct {
		Mode    BackendMode `yaml:"mode" env:"MODE" env-default:"hosted"`
		BaseURL string      `yaml:"base_url" env:"BASE_URL"`
		APIKey  string      `yaml:"api_key" env:"API_KEY"`
	} `yaml:"backend" env-prefix:"BACKEND_"`

	DB struct {
		DSN string `yaml:"dsn" env:"DB_DSN"`
	} `yaml:"db" env-prefix:"DB_"`

	JWT struct {
		AccessTokenTTL   time.Duration `yaml:"access_token_ttl" env:"ACCESS_TOKEN_TTL" env-default:"2h"`
		AuthorizationTTL time.Duration `yaml:"authorization_ttl" env:"AUTHORIZATION_TTL" env-default:"24h"`
		Secret           string        `yaml:"secret" env:"SECRET"`
	} `yaml:"jwt" env-prefix:"JWT_"`
}

func Load(filePath string) (*Config, error) {
	cfg := &Config{}
	if err := cleanenv.ReadConfig(filePath, cfg); err != nil {
		return nil, configNotLoadedErr("config not loaded: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func MustLoad(filePath string) *Config {
	cfg, err := Load(filePath)
	if err != nil {
		panic(err)
	}
	return cfg
}

// Required settings depend on the selected backend mode, so they
// cannot be expressed with env-required tags alone.
func (c *Config) validate() error {
	switch c.Backend.Mode {
	case ModeHosted:
		if c.Backend.BaseURL == "" || c.Backend.APIKey == "" {
			return configNotLoadedErr("hosted backend requires base_url and api_key")
		}
	case ModePostgres:
		if c.DB.DSN == "" {
			return configNotLoadedErr("postgres backend requires db.dsn")
		}
		if c.JWT.Secret == "" {
			return configNotLoadedErr("postgres backend requires jwt.secret")
		}
	}
	return nil
}

func configNotLoadedErr(format string, args ...any) error {
	return errors.Join(fmt.Errorf(format, args...), ErrConfigNotLoaded)
}
