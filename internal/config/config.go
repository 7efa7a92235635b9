package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Env              string        `mapstructure:"ENV"`
	Port             string        `mapstructure:"PORT"`
	DatabaseURL      string        `mapstructure:"DATABASE_URL"`
	StaffKey         string        `mapstructure:"STAFF_KEY"`
	CORSAllowed      string        `mapstructure:"CORS_ALLOWED_ORIGINS"`
	RequestTimeout   time.Duration `mapstructure:"REQUEST_TIMEOUT"`
	LogLevel         string        `mapstructure:"LOG_LEVEL"`
	MaxUploadSizeMB  int64         `mapstructure:"MAX_UPLOAD_MB"`
	RedisURL         string        `mapstructure:"REDIS_URL"`
	LockTTL          time.Duration `mapstructure:"LOCK_TTL"`
	LockWait         time.Duration `mapstructure:"LOCK_WAIT"`
	Geocoder         string        `mapstructure:"GEOCODER"`
	PincodeTablePath string        `mapstructure:"PINCODE_TABLE_PATH"`
	NominatimURL     string        `mapstructure:"NOMINATIM_URL"`
	NominatimCountry string        `mapstructure:"NOMINATIM_COUNTRY"`
	AutoMigrate      bool          `mapstructure:"AUTO_MIGRATE"`
}

func Load() (Config, error) {
	return LoadWith(viper.New())
}

// LoadWith reads .env and the environment into v, so callers can bind
// command-line flags on the same instance first.
func LoadWith(v *viper.Viper) (Config, error) {
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("STAFF_KEY", "")
	v.SetDefault("REQUEST_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("MAX_UPLOAD_MB", 20)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("LOCK_TTL", "30s")
	v.SetDefault("LOCK_WAIT", "5s")
	v.SetDefault("GEOCODER", "static")
	v.SetDefault("PINCODE_TABLE_PATH", "")
	v.SetDefault("NOMINATIM_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("NOMINATIM_COUNTRY", "India")
	v.SetDefault("AUTO_MIGRATE", false)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Logger builds the process logger the way every binary uses it.
func Logger(cfg Config, service string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	base := log.Logger
	if cfg.Env == "dev" {
		base = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return base.Level(level).With().Str("service", service).Logger()
}
