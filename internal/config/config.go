package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Configuration keys. Each key is also the environment variable it is read from.
const (
	KeyClientSecretPath = "GOOGLE_CLIENT_SECRET_PATH"
	KeyTokenPath        = "GOOGLE_TOKEN_PATH"
	KeyGmailEndpoint    = "GMAIL_API_ENDPOINT"
	KeyCallbackAddr     = "OAUTH_CALLBACK_ADDR"
	KeyAuthTimeout      = "OAUTH_AUTH_TIMEOUT"
	KeyNoBrowser        = "OAUTH_NO_BROWSER"
	KeyInteractiveAuth  = "GMAIL_INTERACTIVE_AUTH"
	KeyMetricsAddr      = "METRICS_ADDR"
	KeyLogLevel         = "LOG_LEVEL"
)

// Defaults applied when neither a flag nor the environment provides a value.
const (
	DefaultClientSecretPath = "client_secret.json"
	DefaultTokenPath        = "token.json"
	DefaultCallbackAddr     = "127.0.0.1:0"
	DefaultAuthTimeout      = 5 * time.Minute
	DefaultLogLevel         = "info"
)

// Config holds the resolved runtime settings.
type Config struct {
	// ClientSecretPath points to the OAuth client credential JSON downloaded
	// from the Google Cloud console.
	ClientSecretPath string

	// TokenPath is where the OAuth token record is persisted.
	TokenPath string

	// GmailEndpoint overrides the Gmail API base URL. Empty means production.
	GmailEndpoint string

	// CallbackAddr is the loopback address the interactive authorization
	// flow listens on for the OAuth redirect.
	CallbackAddr string

	// AuthTimeout bounds how long the interactive flow waits for consent.
	AuthTimeout time.Duration

	// NoBrowser disables opening the consent URL automatically.
	NoBrowser bool

	// InteractiveAuth allows the first-run authorization flow when no token
	// is stored. When false a missing token is reported as an auth error.
	InteractiveAuth bool

	// MetricsAddr enables the metrics and health listener when non-empty.
	MetricsAddr string

	// LogLevel is one of debug, info, warn, error.
	LogLevel string
}

// New returns a viper instance with defaults and environment bindings for
// every configuration key.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyClientSecretPath, DefaultClientSecretPath)
	v.SetDefault(KeyTokenPath, DefaultTokenPath)
	v.SetDefault(KeyGmailEndpoint, "")
	v.SetDefault(KeyCallbackAddr, DefaultCallbackAddr)
	v.SetDefault(KeyAuthTimeout, DefaultAuthTimeout)
	v.SetDefault(KeyNoBrowser, false)
	v.SetDefault(KeyInteractiveAuth, true)
	v.SetDefault(KeyMetricsAddr, "")
	v.SetDefault(KeyLogLevel, DefaultLogLevel)

	for _, key := range []string{
		KeyClientSecretPath, KeyTokenPath, KeyGmailEndpoint, KeyCallbackAddr,
		KeyAuthTimeout, KeyNoBrowser, KeyInteractiveAuth, KeyMetricsAddr, KeyLogLevel,
	} {
		// BindEnv only fails when called without a key.
		_ = v.BindEnv(key, key)
	}

	return v
}

// BindFlags binds command-line flags to configuration keys. Flags that were
// not set on the command line do not override the environment.
func BindFlags(v *viper.Viper, flags *pflag.FlagSet, bindings map[string]string) error {
	for key, flagName := range bindings {
		flag := flags.Lookup(flagName)
		if flag == nil {
			return fmt.Errorf("unknown flag %q for key %s", flagName, key)
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %q: %w", flagName, err)
		}
	}
	return nil
}

// LoadDotEnv loads environment variables from the given .env files. Missing
// files are ignored; variables already present in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// Load resolves a Config from v and validates it.
func Load(v *viper.Viper) (Config, error) {
	cfg := Config{
		ClientSecretPath: v.GetString(KeyClientSecretPath),
		TokenPath:        v.GetString(KeyTokenPath),
		GmailEndpoint:    v.GetString(KeyGmailEndpoint),
		CallbackAddr:     v.GetString(KeyCallbackAddr),
		AuthTimeout:      v.GetDuration(KeyAuthTimeout),
		NoBrowser:        v.GetBool(KeyNoBrowser),
		InteractiveAuth:  v.GetBool(KeyInteractiveAuth),
		MetricsAddr:      v.GetString(KeyMetricsAddr),
		LogLevel:         v.GetString(KeyLogLevel),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c Config) Validate() error {
	if c.ClientSecretPath == "" {
		return fmt.Errorf("%s must not be empty", KeyClientSecretPath)
	}
	if c.TokenPath == "" {
		return fmt.Errorf("%s must not be empty", KeyTokenPath)
	}
	if c.AuthTimeout <= 0 {
		return fmt.Errorf("%s must be positive, got %s", KeyAuthTimeout, c.AuthTimeout)
	}
	if c.CallbackAddr == "" {
		return fmt.Errorf("%s must not be empty", KeyCallbackAddr)
	}
	return nil
}
