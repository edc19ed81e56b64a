// config.go

// Environment variable loading and validation.
// A .env file in the working directory, if present, is loaded first; real env vars win.
package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Fitbit defaults; any OAuth 2.0 provider with PKCE works when these are overridden.
const (
	DefaultBaseURL     = "http://localhost:8000"
	DefaultAuthURL     = "https://www.fitbit.com/oauth2/authorize"
	DefaultTokenURL    = "https://api.fitbit.com/oauth2/token"
	DefaultResourceURL = "https://api.fitbit.com/1/user/-/activities/date/today.json"
)

// DefaultScopes is the full Fitbit scope list, in request order.
var DefaultScopes = []string{
	"activity", "heartrate", "location", "nutrition", "oxygen_saturation", "profile",
	"respiratory_rate", "settings", "sleep", "social", "temperature", "weight",
}

// Token store backends.
const (
	TokenStoreFile     = "file"
	TokenStorePostgres = "postgres"
	TokenStoreSQLite   = "sqlite"
	TokenStoreNone     = "none"
)

// Config holds all env configuration vars for famfit.
// The env tag names the variable a field came from; validation errors use it.
type Config struct {
	BaseURL  string     `env:"URL" validate:"required,url"`
	Port     string     `env:"PORT" validate:"required,numeric"`
	LogLevel slog.Level `env:"LOG_LEVEL"`

	// OAuth client registration.
	ClientID     string `env:"OAUTH_CLIENT_ID" validate:"required"`
	ClientSecret Secret `env:"OAUTH_CLIENT_SECRET" validate:"required_if=ClientAuth confidential"`
	ClientAuth   string `env:"OAUTH_CLIENT_AUTH" validate:"oneof=public confidential"`
	RedirectURL  string `env:"OAUTH_REDIRECT_URL" validate:"required,url"`

	// Provider endpoints. When Issuer is set and AuthURL/TokenURL are not, they are discovered.
	Issuer      string   `env:"OAUTH_ISSUER" validate:"omitempty,url"`
	AuthURL     string   `env:"OAUTH_AUTH_URL" validate:"required_without=Issuer,omitempty,url"`
	TokenURL    string   `env:"OAUTH_TOKEN_URL" validate:"required_without=Issuer,omitempty,url"`
	ResourceURL string   `env:"RESOURCE_URL" validate:"required,url"`
	Scopes      []string `env:"OAUTH_SCOPES"`

	// StateSecret, when set, is the state value sent with every authorization request.
	StateSecret Secret `env:"STATE_SECRET"`

	// SessionSecret seeds the login cookie keys. Generated at startup when unset.
	SessionSecret          Secret `env:"SESSION_SECRET" validate:"required,min=16"`
	SessionSecretGenerated bool   `env:"-"`
	CookieSecure           bool   `env:"COOKIE_SECURE"`

	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT"`
	LoginTTL        time.Duration `env:"LOGIN_TTL"`

	// Pending logins go to Redis when RedisURL is set, memory otherwise.
	RedisURL string `env:"REDIS_URL" validate:"omitempty,url"`

	TokenStore  string `env:"TOKEN_STORE" validate:"oneof=file postgres sqlite none"`
	TokenDir    string `env:"TOKEN_DIR" validate:"required_if=TokenStore file"`
	DatabaseURL Secret `env:"DATABASE_URL" validate:"required_if=TokenStore postgres,required_if=TokenStore sqlite"`
}

// LoadConfig reads environment variables (after an optional .env) and returns a validated Config.
func LoadConfig() (*Config, error) {
	if err := loadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.BaseURL = strings.TrimRight(envOr("URL", DefaultBaseURL), "/")
	cfg.Port = envOr("PORT", "8000")
	cfg.LogLevel = parseLevel(os.Getenv("LOG_LEVEL"))

	cfg.ClientID = envFirst("OAUTH_CLIENT_ID", "OAUTH_ID")
	cfg.ClientSecret = NewSecret(envFirst("OAUTH_CLIENT_SECRET", "OAUTH_SECRET"))
	// Default to Basic auth when a secret is configured, public PKCE client otherwise
	cfg.ClientAuth = strings.ToLower(os.Getenv("OAUTH_CLIENT_AUTH"))
	if cfg.ClientAuth == "" {
		cfg.ClientAuth = "public"
		if !cfg.ClientSecret.IsZero() {
			cfg.ClientAuth = "confidential"
		}
	}
	cfg.RedirectURL = envOr("OAUTH_REDIRECT_URL", cfg.BaseURL+"/callback")

	cfg.Issuer = os.Getenv("OAUTH_ISSUER")
	cfg.AuthURL = os.Getenv("OAUTH_AUTH_URL")
	cfg.TokenURL = os.Getenv("OAUTH_TOKEN_URL")
	if cfg.Issuer == "" {
		if cfg.AuthURL == "" {
			cfg.AuthURL = DefaultAuthURL
		}
		if cfg.TokenURL == "" {
			cfg.TokenURL = DefaultTokenURL
		}
	}
	cfg.ResourceURL = envOr("RESOURCE_URL", DefaultResourceURL)
	cfg.Scopes = DefaultScopes
	if v, ok := os.LookupEnv("OAUTH_SCOPES"); ok {
		cfg.Scopes = splitScopes(v)
	}

	cfg.StateSecret = NewSecret(os.Getenv("STATE_SECRET"))

	cfg.SessionSecret = NewSecret(os.Getenv("SESSION_SECRET"))
	if cfg.SessionSecret.IsZero() {
		generated, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.SessionSecret = generated
		cfg.SessionSecretGenerated = true
	}
	cfg.CookieSecure = envBool("COOKIE_SECURE", strings.HasPrefix(cfg.BaseURL, "https://"))

	cfg.UpstreamTimeout = envDuration("UPSTREAM_TIMEOUT", 5*time.Second)
	cfg.LoginTTL = envDuration("LOGIN_TTL", 10*time.Minute)

	cfg.RedisURL = os.Getenv("REDIS_URL")

	cfg.TokenStore = strings.ToLower(envOr("TOKEN_STORE", TokenStoreFile))
	cfg.TokenDir = envOr("TOKEN_DIR", "tokens")
	cfg.DatabaseURL = NewSecret(os.Getenv("DATABASE_URL"))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cfg against its validate tags and reports failures by env var name.
func (c *Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterCustomTypeFunc(func(field reflect.Value) any {
		if s, ok := field.Interface().(Secret); ok {
			return s.Value()
		}
		return nil
	}, Secret{})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("env")
	})

	err := v.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validating config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, describe(fe))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// describe renders a field error without echoing the value (it may be a secret).
func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_if", "required_without":
		return fe.Field() + " is required"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	default:
		return fe.Field() + " is not a valid " + fe.Tag()
	}
}

// loadDotEnv loads file (default ".env") without overriding variables already set.
// A missing file is not an error.
func loadDotEnv(file string) error {
	if file == "" {
		file = ".env"
	}
	if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading %s: %w", file, err)
	}
	return nil
}

func randomSecret() (Secret, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return Secret{}, fmt.Errorf("generating session secret: %w", err)
	}
	return NewSecret(hex.EncodeToString(b[:])), nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// splitScopes accepts comma and/or whitespace separated scopes, keeping order.
func splitScopes(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}

// envOr returns the env var or def when unset/empty.
func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// envFirst returns the first non-empty of the given env vars.
func envFirst(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// envBool reads an env var as bool, returning def if missing or unparseable.
func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return b
}

// envDuration reads an env var as time.Duration, returning def if missing or unparseable.
func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("invalid env var, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}
