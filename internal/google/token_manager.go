package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
)

// expiryMargin is how long before its expiry a token is treated as expired.
const expiryMargin = 60 * time.Second

// Authorizer obtains a brand new token from the user.
type Authorizer interface {
	Authorize(ctx context.Context) (*oauth2.Token, error)
}

// TokenManager owns the OAuth token for the configured account. It hands out
// a valid access token, refreshing and persisting it as needed.
type TokenManager struct {
	mu    sync.Mutex
	token *oauth2.Token

	conf       *oauth2.Config
	store      *TokenStore
	authorizer Authorizer
	metrics    *instrumentation.Metrics
	logger     *slog.Logger
	now        func() time.Time
}

// TokenManagerOption configures a TokenManager.
type TokenManagerOption func(*TokenManager)

// WithAuthorizer enables first-run interactive authorization.
func WithAuthorizer(a Authorizer) TokenManagerOption {
	return func(tm *TokenManager) { tm.authorizer = a }
}

// WithMetrics records token refresh outcomes.
func WithMetrics(m *instrumentation.Metrics) TokenManagerOption {
	return func(tm *TokenManager) { tm.metrics = m }
}

// WithLogger sets the logger. The default discards output.
func WithLogger(l *slog.Logger) TokenManagerOption {
	return func(tm *TokenManager) { tm.logger = l }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) TokenManagerOption {
	return func(tm *TokenManager) { tm.now = now }
}

// NewTokenManager returns a manager that refreshes through conf and
// persists to store.
func NewTokenManager(conf *oauth2.Config, store *TokenStore, opts ...TokenManagerOption) *TokenManager {
	tm := &TokenManager{
		conf:   conf,
		store:  store,
		logger: logging.Discard(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(tm)
	}
	tm.logger = logging.WithService(tm.logger, "oauth")
	return tm
}

// HasToken reports whether a token is held in memory or stored on disk.
func (tm *TokenManager) HasToken() bool {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	return tm.token != nil || tm.store.Exists()
}

// GetValidToken returns an access token that stays valid for at least the
// expiry margin. It fails with *AuthError when no usable credentials exist.
func (tm *TokenManager) GetValidToken(ctx context.Context) (string, error) {
	tok, err := tm.validToken(ctx)
	if err != nil {
		return "", err
	}
	return tok.AccessToken, nil
}

// TokenSource returns an oauth2.TokenSource backed by the manager. Every
// call goes through the expiry check, so it must not be wrapped in
// oauth2.ReuseTokenSource.
func (tm *TokenManager) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &managedSource{ctx: ctx, tm: tm}
}

type managedSource struct {
	ctx context.Context
	tm  *TokenManager
}

func (s *managedSource) Token() (*oauth2.Token, error) {
	return s.tm.validToken(s.ctx)
}

// Authorize runs the interactive flow regardless of any stored token and
// persists the result.
func (tm *TokenManager) Authorize(ctx context.Context) error {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	_, err := tm.authorize(ctx)
	return err
}

func (tm *TokenManager) validToken(ctx context.Context) (*oauth2.Token, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if tm.token == nil {
		tok, err := tm.store.Load()
		switch {
		case errors.Is(err, ErrNoToken):
			return tm.authorize(ctx)
		case err != nil:
			return nil, &AuthError{Reason: ReasonNoCredentials, Err: err}
		}
		tm.token = tok
	}

	if tm.fresh(tm.token) {
		return copyToken(tm.token), nil
	}

	if tm.token.RefreshToken == "" {
		return nil, &AuthError{
			Reason: ReasonRefreshFailed,
			Err:    fmt.Errorf("token at %s expired and holds no refresh token, run the auth command", tm.store.Path()),
		}
	}
	return tm.refresh(ctx)
}

func (tm *TokenManager) fresh(tok *oauth2.Token) bool {
	if tok.AccessToken == "" {
		return false
	}
	if tok.Expiry.IsZero() {
		return true
	}
	return tok.Expiry.Add(-expiryMargin).After(tm.now())
}

// refresh exchanges the refresh token for a new access token. On failure the
// stored token is left untouched. Callers must hold tm.mu.
func (tm *TokenManager) refresh(ctx context.Context) (*oauth2.Token, error) {
	logger := logging.WithOperation(tm.logger, instrumentation.OperationRefresh)
	refreshToken := tm.token.RefreshToken

	tok, err := tm.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
			tm.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultExpired)
			logger.Warn("refresh token rejected, re-authorization required", logging.Err(err))
			return nil, &AuthError{Reason: ReasonRefreshRevoked, Err: err}
		}
		tm.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultFailure)
		logger.Warn("token refresh failed", logging.Err(err))
		return nil, &AuthError{Reason: ReasonRefreshFailed, Err: err}
	}

	if tok.RefreshToken == "" {
		tok.RefreshToken = refreshToken
	}
	tm.metrics.RecordOAuthTokenRefresh(ctx, instrumentation.OAuthResultSuccess)
	logger.Debug("token refreshed", slog.Time("expiry", tok.Expiry))

	tm.update(tok)
	return copyToken(tok), nil
}

// authorize runs the interactive flow. Callers must hold tm.mu.
func (tm *TokenManager) authorize(ctx context.Context) (*oauth2.Token, error) {
	if tm.authorizer == nil {
		return nil, &AuthError{
			Reason: ReasonNoCredentials,
			Err:    fmt.Errorf("no usable token at %s and interactive authorization is disabled", tm.store.Path()),
		}
	}

	tok, err := tm.authorizer.Authorize(ctx)
	if err != nil {
		return nil, newAuthError(ReasonInteractiveFailed, err)
	}

	tm.update(tok)
	return copyToken(tok), nil
}

// update is the only place the held token changes. Callers must hold tm.mu.
func (tm *TokenManager) update(tok *oauth2.Token) {
	tm.token = copyToken(tok)
	if err := tm.store.Save(tm.token); err != nil {
		// The in-memory token is still usable for this process.
		tm.logger.Error("failed to persist token", logging.Path(tm.store.Path()), logging.Err(err))
		return
	}
	tm.logger.Debug("token persisted", logging.Path(tm.store.Path()))
}

func copyToken(tok *oauth2.Token) *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  tok.AccessToken,
		TokenType:    tok.TokenType,
		RefreshToken: tok.RefreshToken,
		Expiry:       tok.Expiry,
	}
}

// NewHTTPClient returns an HTTP client that authorizes every request with a
// token from ts. The client is configured to use HTTP/1.1.
func NewHTTPClient(ts oauth2.TokenSource) *http.Client {
	return &http.Client{
		Transport: &oauth2.Transport{
			Source: ts,
			Base: &http.Transport{
				Proxy:             http.ProxyFromEnvironment,
				ForceAttemptHTTP2: false,
			},
		},
	}
}
