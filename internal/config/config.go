// Package config loads the service configuration once at startup. The
// resulting Config is passed explicitly to every adapter; nothing reads the
// environment after Load returns.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/Shivanand-hulikatti/event-feed/internal/database"
	"github.com/Shivanand-hulikatti/event-feed/internal/docstore/mongostore"
)

// EnvPrefix prefixes every environment override, e.g. EVENTS_SERVER_PORT.
const EnvPrefix = "EVENTS"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
)

// Config is the full service configuration.
type Config struct {
	App      AppConfig         `mapstructure:"app"`
	Server   ServerConfig      `mapstructure:"server"`
	Store    StoreConfig       `mapstructure:"store"`
	Postgres database.Config   `mapstructure:"postgres"`
	Mongo    mongostore.Config `mapstructure:"mongo"`
	Auth     AuthConfig        `mapstructure:"auth"`
	Log      LogConfig         `mapstructure:"log"`
}

// AppConfig scopes the stored data.
type AppConfig struct {
	// Namespace prefixes every collection path.
	Namespace        string `mapstructure:"namespace"`
	PlaceholderPhoto string `mapstructure:"placeholder_photo"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	WebDir          string        `mapstructure:"web_dir"`
}

type StoreConfig struct {
	Driver string `mapstructure:"driver"`
}

// AuthConfig controls the identity provider.
type AuthConfig struct {
	TokenSecret string        `mapstructure:"token_secret"`
	TokenTTL    time.Duration `mapstructure:"token_ttl"`
	// BootstrapToken, when set, is tried once at startup the way a client
	// would sign in with a token handed to it by its host.
	BootstrapToken string `mapstructure:"bootstrap_token"`
	// AdminEmails narrows administrator access to these credentialed
	// accounts. Empty means every credentialed account is an admin.
	AdminEmails []string `mapstructure:"admin_emails"`
	BcryptCost  int      `mapstructure:"bcrypt_cost"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		App: AppConfig{
			Namespace:        "default",
			PlaceholderPhoto: "https://placehold.co/600x400?text=Event",
		},
		Server: ServerConfig{
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			WebDir:          "./web",
		},
		Store:    StoreConfig{Driver: DriverMemory},
		Postgres: database.DefaultConfig(),
		Mongo:    mongostore.Config{URI: "mongodb://localhost:27017/?replicaSet=rs0", Database: "events"},
		Auth: AuthConfig{
			TokenTTL:   24 * time.Hour,
			BcryptCost: 10,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads configuration from defaults, the optional file and the
// environment, in increasing precedence. An empty file skips the file.
func Load(v *viper.Viper, file string) (Config, error) {
	setDefaults(v, Defaults())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	// comma separated lists from the environment arrive as one element
	if len(cfg.Auth.AdminEmails) == 1 && strings.Contains(cfg.Auth.AdminEmails[0], ",") {
		cfg.Auth.AdminEmails = strings.Split(cfg.Auth.AdminEmails[0], ",")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// setDefaults registers every key so AutomaticEnv can override it during
// Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("app.namespace", d.App.Namespace)
	v.SetDefault("app.placeholder_photo", d.App.PlaceholderPhoto)

	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.shutdown_timeout", d.Server.ShutdownTimeout)
	v.SetDefault("server.web_dir", d.Server.WebDir)

	v.SetDefault("store.driver", d.Store.Driver)

	v.SetDefault("postgres.host", d.Postgres.Host)
	v.SetDefault("postgres.port", d.Postgres.Port)
	v.SetDefault("postgres.user", d.Postgres.User)
	v.SetDefault("postgres.password", d.Postgres.Password)
	v.SetDefault("postgres.dbname", d.Postgres.DBName)
	v.SetDefault("postgres.sslmode", d.Postgres.SSLMode)
	v.SetDefault("postgres.max_conns", d.Postgres.MaxConns)

	v.SetDefault("mongo.uri", d.Mongo.URI)
	v.SetDefault("mongo.database", d.Mongo.Database)

	v.SetDefault("auth.token_secret", d.Auth.TokenSecret)
	v.SetDefault("auth.token_ttl", d.Auth.TokenTTL)
	v.SetDefault("auth.bootstrap_token", d.Auth.BootstrapToken)
	admins := d.Auth.AdminEmails
	if admins == nil {
		admins = []string{}
	}
	v.SetDefault("auth.admin_emails", admins)
	v.SetDefault("auth.bcrypt_cost", d.Auth.BcryptCost)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// Validate rejects configurations the service cannot start with.
func (c Config) Validate() error {
	var errs []error
	switch c.Store.Driver {
	case DriverMemory, DriverPostgres, DriverMongo:
	default:
		errs = append(errs, fmt.Errorf("store.driver %q: want memory, postgres or mongo", c.Store.Driver))
	}
	if strings.TrimSpace(c.App.Namespace) == "" {
		errs = append(errs, errors.New("app.namespace is required"))
	}
	if strings.Contains(c.App.Namespace, "/") {
		errs = append(errs, errors.New("app.namespace must not contain '/'"))
	}
	if len(c.Auth.TokenSecret) < 16 {
		errs = append(errs, errors.New("auth.token_secret must be at least 16 bytes"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	return errors.Join(errs...)
}
