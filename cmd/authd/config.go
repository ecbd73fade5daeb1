package main

import (
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type appConfig struct {
	Addr        string `yaml:"addr" env:"AUTHD_ADDR" env-default:":8080"`
	PostgresDSN string `yaml:"postgres_dsn" env:"AUTHD_POSTGRES_DSN" env-required:"true"`
	RedisAddr   string `yaml:"redis_addr" env:"AUTHD_REDIS_ADDR" env-default:"localhost:6379"`
	RedisDB     int    `yaml:"redis_db" env:"AUTHD_REDIS_DB" env-default:"0"`

	Issuer       string        `yaml:"issuer" env:"AUTHD_ISSUER" env-default:"authcore"`
	AccessTTL    time.Duration `yaml:"access_ttl" env:"AUTHD_ACCESS_TTL" env-default:"15m"`
	RefreshTTL   time.Duration `yaml:"refresh_ttl" env:"AUTHD_REFRESH_TTL" env-default:"168h"`
	ChallengeTTL time.Duration `yaml:"challenge_ttl" env:"AUTHD_CHALLENGE_TTL" env-default:"5m"`
	SessionTTL   time.Duration `yaml:"session_ttl" env:"AUTHD_SESSION_TTL" env-default:"168h"`

	LockoutThreshold int `yaml:"lockout_threshold" env:"AUTHD_LOCKOUT_THRESHOLD" env-default:"5"`

	PrivateKeyFile string `yaml:"private_key_file" env:"AUTHD_PRIVATE_KEY_FILE"`
	PublicKeyFile  string `yaml:"public_key_file" env:"AUTHD_PUBLIC_KEY_FILE"`

	AuditLogFile string `yaml:"audit_log_file" env:"AUTHD_AUDIT_LOG_FILE"`
}

// loadConfig reads an optional YAML file named by AUTHD_CONFIG and
// lets environment variables override it.
func loadConfig() (appConfig, error) {
	var cfg appConfig
	if path := os.Getenv("AUTHD_CONFIG"); path != "" {
		if err := cleanenv.ReadConfig(path, &cfg); err != nil {
			return cfg, err
		}
		return cfg, nil
	}
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
