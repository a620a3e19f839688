package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/teemow/gmail-mcp/internal/config"
	"github.com/teemow/gmail-mcp/internal/google"
	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
)

// Flag names shared by serve and auth.
const (
	flagClientSecretPath = "client-secret-path"
	flagTokenPath        = "token-path"
	flagCallbackAddr     = "callback-addr"
	flagAuthTimeout      = "auth-timeout"
	flagNoBrowser        = "no-browser"
	flagLogLevel         = "log-level"
	flagDebug            = "debug"
	flagGmailEndpoint    = "gmail-endpoint"
	flagInteractiveAuth  = "interactive-auth"
	flagMetricsAddr      = "metrics-addr"
)

// authFlagBindings maps configuration keys to the flags every command
// that touches credentials accepts.
var authFlagBindings = map[string]string{
	config.KeyClientSecretPath: flagClientSecretPath,
	config.KeyTokenPath:        flagTokenPath,
	config.KeyCallbackAddr:     flagCallbackAddr,
	config.KeyAuthTimeout:      flagAuthTimeout,
	config.KeyNoBrowser:        flagNoBrowser,
	config.KeyLogLevel:         flagLogLevel,
}

// serveFlagBindings extends authFlagBindings with the serve-only flags.
var serveFlagBindings = mergeBindings(authFlagBindings, map[string]string{
	config.KeyGmailEndpoint:   flagGmailEndpoint,
	config.KeyInteractiveAuth: flagInteractiveAuth,
	config.KeyMetricsAddr:     flagMetricsAddr,
})

func mergeBindings(maps ...map[string]string) map[string]string {
	out := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			out[k] = v
		}
	}
	return out
}

// addAuthFlags registers the credential and authorization flow flags.
func addAuthFlags(flags *pflag.FlagSet) {
	flags.String(flagClientSecretPath, config.DefaultClientSecretPath,
		"Path to the OAuth client credential JSON (env "+config.KeyClientSecretPath+")")
	flags.String(flagTokenPath, config.DefaultTokenPath,
		"Path of the stored OAuth token (env "+config.KeyTokenPath+")")
	flags.String(flagCallbackAddr, config.DefaultCallbackAddr,
		"Loopback address for the OAuth redirect listener (env "+config.KeyCallbackAddr+")")
	flags.Duration(flagAuthTimeout, config.DefaultAuthTimeout,
		"How long to wait for consent in the browser (env "+config.KeyAuthTimeout+")")
	flags.Bool(flagNoBrowser, false,
		"Print the consent URL instead of opening a browser (env "+config.KeyNoBrowser+")")
	flags.String(flagLogLevel, config.DefaultLogLevel,
		"Log level: debug, info, warn, error (env "+config.KeyLogLevel+")")
	flags.Bool(flagDebug, false, "Enable debug logging (same as --log-level=debug)")
}

// loadSettings resolves the configuration from flags, the environment and
// an optional .env file in the working directory.
func loadSettings(flags *pflag.FlagSet, bindings map[string]string) (config.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return config.Config{}, err
	}

	v := config.New()
	if err := config.BindFlags(v, flags, bindings); err != nil {
		return config.Config{}, err
	}

	cfg, err := config.Load(v)
	if err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	if debug, _ := flags.GetBool(flagDebug); debug {
		cfg.LogLevel = "debug"
	}
	return cfg, nil
}

// newLogger returns the process logger. It always writes to stderr.
func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.New(os.Stderr, level), nil
}

// newTokenManager loads the OAuth client credentials and returns a token
// manager over the configured token file. When interactive is set, a
// missing or unusable token triggers the loopback consent flow.
func newTokenManager(cfg config.Config, logger *slog.Logger, metrics *instrumentation.Metrics, interactive bool) (*google.TokenManager, error) {
	conf, err := google.LoadOAuthConfig(cfg.ClientSecretPath, google.DefaultOAuthScopes...)
	if err != nil {
		return nil, err
	}

	opts := []google.TokenManagerOption{
		google.WithLogger(logger),
		google.WithMetrics(metrics),
	}
	if interactive {
		flow := google.AuthFlowConfig{
			CallbackAddr: cfg.CallbackAddr,
			Timeout:      cfg.AuthTimeout,
			Out:          os.Stderr,
			Metrics:      metrics,
			Logger:       logger,
		}
		if !cfg.NoBrowser {
			flow.OpenBrowser = google.OpenBrowser
		}
		opts = append(opts, google.WithAuthorizer(google.NewInteractiveAuthorizer(conf, flow)))
	}

	return google.NewTokenManager(conf, google.NewTokenStore(cfg.TokenPath), opts...), nil
}
