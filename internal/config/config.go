// Package config loads relay configuration from an optional YAML file with
// environment variable overrides. Env wins over file, file wins over defaults.
package config

import (
	"os"
	"strconv"
	"strings"

	yaml "gopkg.in/yaml.v3"
)

type Config struct {
	Port         string  `yaml:"port"`
	DatabaseURL  string  `yaml:"databaseUrl"`
	RedisURL     string  `yaml:"redisUrl"`
	AuthMode     string  `yaml:"authMode"` // url, hmac, static
	AuthURL      string  `yaml:"authUrl"`
	HMACSecret   string  `yaml:"hmacSecret"`
	AllowOrigins string  `yaml:"allowOrigins"`
	RateRPS      float64 `yaml:"rateRps"`
	RateBurst    int     `yaml:"rateBurst"`
	LogLevel     string  `yaml:"logLevel"`
	// WatchOrgs lists organizations whose change feeds the bridge follows.
	WatchOrgs []string `yaml:"watchOrgs"`
}

// Load reads the file at path (skipped when path is empty or missing) and
// applies env overrides and defaults.
func Load(path string) (Config, error) {
	cfg := Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, err
			}
		} else if !os.IsNotExist(err) {
			return Config{}, err
		}
	}
	overlayEnv(&cfg)
	applyDefaults(&cfg)
	return cfg, nil
}

// FromEnv builds a config from environment only, honoring RELAY_CONFIG as an
// optional file path.
func FromEnv() (Config, error) {
	return Load(os.Getenv("RELAY_CONFIG"))
}

func overlayEnv(cfg *Config) {
	setStr(&cfg.Port, "PORT")
	setStr(&cfg.DatabaseURL, "DATABASE_URL")
	setStr(&cfg.RedisURL, "REDIS_URL")
	setStr(&cfg.AuthMode, "AUTH_MODE")
	setStr(&cfg.AuthURL, "AUTH_URL")
	setStr(&cfg.HMACSecret, "AUTH_HMAC_SECRET")
	setStr(&cfg.AllowOrigins, "ALLOW_ORIGINS")
	setStr(&cfg.LogLevel, "LOG_LEVEL")
	if v := os.Getenv("RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateRPS = f
		}
	}
	if v := os.Getenv("RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateBurst = n
		}
	}
	if v := os.Getenv("WATCH_ORGS"); v != "" {
		orgs := []string{}
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				orgs = append(orgs, p)
			}
		}
		cfg.WatchOrgs = orgs
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.AuthMode == "" {
		cfg.AuthMode = "static"
	}
	if cfg.AllowOrigins == "" {
		cfg.AllowOrigins = "*"
	}
	if cfg.RateRPS <= 0 {
		cfg.RateRPS = 10
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = 20
	}
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
