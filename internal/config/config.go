package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"gitlab.com/timkado/api/waitlist-ops/internal/validator"
)

// Store drivers
const (
	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the service
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"logLevel"`
	LogEncoding string `mapstructure:"logEncoding"`
	Server      struct {
		Port            int           `mapstructure:"port" validate:"gt=0"`
		ReadTimeout     time.Duration `mapstructure:"readTimeout"`
		WriteTimeout    time.Duration `mapstructure:"writeTimeout"`
		AllowedOrigins  []string      `mapstructure:"allowedOrigins"`
		DefaultReturnTo string        `mapstructure:"defaultReturnTo"`
	} `mapstructure:"server"`
	Store    StoreConfig `mapstructure:"store"`
	Database struct {
		PostgresDSN         string `mapstructure:"postgresDSN"`
		PostgresAutoMigrate bool   `mapstructure:"postgresAutoMigrate"`
	} `mapstructure:"database"`
	Ops struct {
		BasicUser string `mapstructure:"basicUser"`
		BasicPass string `mapstructure:"basicPass"`
		Realm     string `mapstructure:"realm"`
	} `mapstructure:"ops"`
	Metrics struct {
		Enabled bool `mapstructure:"enabled"`
		Port    int  `mapstructure:"port" validate:"gt=0"`
	} `mapstructure:"metrics"`
}

// StoreConfig selects and tunes the waitlist store backend
type StoreConfig struct {
	Driver   string     `mapstructure:"driver" validate:"oneof=file postgres"`
	Path     string     `mapstructure:"path"`     // JSON document path (file driver)
	LockPath string     `mapstructure:"lockPath"` // lock marker path (file driver)
	Lock     LockConfig `mapstructure:"lock"`
}

// LockConfig holds the writer lock wait policy
type LockConfig struct {
	Timeout       time.Duration `mapstructure:"timeout" validate:"gt=0"`
	RetryInterval time.Duration `mapstructure:"retryInterval" validate:"gt=0"`
	OnTimeout     string        `mapstructure:"onTimeout" validate:"oneof=proceed reject"` // proceed (fail-open) or reject
}

// LoadConfig reads configuration from file or environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("environment", "development")
	v.SetDefault("logLevel", "info")
	v.SetDefault("logEncoding", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 10*time.Second)
	v.SetDefault("server.writeTimeout", 15*time.Second)
	v.SetDefault("server.allowedOrigins", []string{"*"})
	v.SetDefault("server.defaultReturnTo", "/coming-soon")
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 2112)
	v.SetDefault("ops.realm", "Orbitlink Ops")

	// Store defaults: single-node file store with a fail-open lock
	v.SetDefault("store.driver", DriverFile)
	v.SetDefault("store.path", "waitlist.json")
	v.SetDefault("store.lockPath", "waitlist.lock")
	v.SetDefault("store.lock.timeout", 2500*time.Millisecond)
	v.SetDefault("store.lock.retryInterval", 60*time.Millisecond)
	v.SetDefault("store.lock.onTimeout", "proceed")

	v.SetConfigName("default")
	v.SetConfigType("yaml")

	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./internal/config")
	v.AddConfigPath("$HOME/.waitlist-ops")
	v.AddConfigPath("/etc/waitlist-ops")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, env vars and defaults still apply
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindEnvs(v, Config{})

	// Read directly from ENV for critical values
	if lgLevel := os.Getenv("LOG_LEVEL"); lgLevel != "" {
		v.Set("logLevel", lgLevel)
	}
	if p := os.Getenv("WAITLIST_PATH"); p != "" {
		v.Set("store.path", p)
	}
	if dsn := os.Getenv("POSTGRES_DSN"); dsn != "" {
		v.Set("database.postgresDSN", dsn)
	}
	if user := os.Getenv("OPS_BASIC_USER"); user != "" {
		v.Set("ops.basicUser", user)
	}
	if pass := os.Getenv("OPS_BASIC_PASS"); pass != "" {
		v.Set("ops.basicPass", pass)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := validator.Validate(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if config.Store.Driver == DriverPostgres && config.Database.PostgresDSN == "" {
		return nil, fmt.Errorf("invalid config: database.postgresDSN is required for the postgres store driver")
	}

	return &config, nil
}

// bindEnvs recursively binds environment variables to config struct fields
func bindEnvs(v *viper.Viper, cfg interface{}, parts ...string) {
	ifv := reflect.ValueOf(cfg)
	ift := reflect.TypeOf(cfg)
	for i := 0; i < ift.NumField(); i++ {
		fieldVal := ifv.Field(i)
		fieldType := ift.Field(i)

		tag := fieldType.Tag.Get("mapstructure")
		if tag == "" || tag == "-" {
			continue
		}

		path := append(append([]string{}, parts...), tag)
		key := strings.Join(path, ".")

		if fieldType.Type.Kind() == reflect.Struct {
			bindEnvs(v, fieldVal.Interface(), path...)
			continue
		}

		_ = v.BindEnv(key)
	}
}
