package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/teemow/gmail-mcp/internal/instrumentation"
	"github.com/teemow/gmail-mcp/internal/logging"
)

const successPage = `<!DOCTYPE html>
<html>
<head><title>gmail-mcp - Authorization Complete</title></head>
<body>
<h1>Authorization successful</h1>
<p>You can close this window and return to your terminal.</p>
</body>
</html>`

// AuthFlowConfig configures the interactive authorization flow.
type AuthFlowConfig struct {
	// CallbackAddr is the loopback host:port the redirect listener binds to.
	CallbackAddr string

	// Timeout bounds the wait for the user's consent.
	Timeout time.Duration

	// OpenBrowser is called with the consent URL. Nil only prints the URL.
	OpenBrowser func(url string) error

	// Out receives the consent URL. Defaults to os.Stderr.
	Out io.Writer

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// InteractiveAuthorizer obtains a token through the installed-app loopback
// flow: the user grants consent in a browser and Google redirects to a
// short-lived local listener with the authorization code.
type InteractiveAuthorizer struct {
	conf *oauth2.Config
	cfg  AuthFlowConfig
}

// NewInteractiveAuthorizer returns an Authorizer for conf.
func NewInteractiveAuthorizer(conf *oauth2.Config, cfg AuthFlowConfig) *InteractiveAuthorizer {
	if cfg.CallbackAddr == "" {
		cfg.CallbackAddr = "127.0.0.1:0"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if cfg.Out == nil {
		cfg.Out = os.Stderr
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &InteractiveAuthorizer{conf: conf, cfg: cfg}
}

// Authorize runs the flow to completion. Every failure is an *AuthError
// with ReasonInteractiveFailed.
func (a *InteractiveAuthorizer) Authorize(ctx context.Context) (*oauth2.Token, error) {
	logger := logging.WithOperation(a.cfg.Logger, instrumentation.OperationAuthorize)

	tok, err := a.authorize(ctx, logger)
	if err != nil {
		a.cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultFailure)
		logger.Error("interactive authorization failed", logging.Err(err))
		return nil, &AuthError{Reason: ReasonInteractiveFailed, Err: err}
	}

	a.cfg.Metrics.RecordOAuthAuth(ctx, instrumentation.OAuthResultSuccess)
	logger.Info("interactive authorization completed")
	return tok, nil
}

type callbackResult struct {
	code string
	err  error
}

func (a *InteractiveAuthorizer) authorize(ctx context.Context, logger *slog.Logger) (*oauth2.Token, error) {
	ln, err := net.Listen("tcp", a.cfg.CallbackAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to start callback listener on %s: %w", a.cfg.CallbackAddr, err)
	}

	conf := *a.conf
	conf.RedirectURL = "http://" + ln.Addr().String() + "/"
	state := uuid.NewString()

	results := make(chan callbackResult, 1)
	srv := &http.Server{
		Handler:           callbackHandler(state, results),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case results <- callbackResult{err: fmt.Errorf("callback server failed: %w", err)}:
			default:
			}
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	authURL := conf.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
	fmt.Fprintf(a.cfg.Out, "Open the following URL in your browser to authorize read-only Gmail access:\n\n%s\n\n", authURL)
	logger.Info("waiting for authorization", slog.String("redirect_url", conf.RedirectURL), slog.Duration("timeout", a.cfg.Timeout))

	if a.cfg.OpenBrowser != nil {
		if err := a.cfg.OpenBrowser(authURL); err != nil {
			logger.Warn("could not open browser", logging.Err(err))
		}
	}

	waitCtx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var res callbackResult
	select {
	case res = <-results:
	case <-waitCtx.Done():
		return nil, fmt.Errorf("timed out waiting for authorization: %w", waitCtx.Err())
	}
	if res.err != nil {
		return nil, res.err
	}

	tok, err := conf.Exchange(ctx, res.code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange authorization code: %w", err)
	}
	return tok, nil
}

func callbackHandler(state string, results chan<- callbackResult) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}

		q := r.URL.Query()
		var res callbackResult
		switch {
		case q.Get("error") != "":
			res.err = fmt.Errorf("authorization denied: %s", q.Get("error"))
		case q.Get("state") != state:
			res.err = errors.New("state mismatch in authorization callback")
		case q.Get("code") == "":
			res.err = errors.New("no code in authorization callback")
		default:
			res.code = q.Get("code")
		}

		if res.err != nil {
			http.Error(w, res.err.Error(), http.StatusBadRequest)
		} else {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = io.WriteString(w, successPage)
		}

		// first callback wins
		select {
		case results <- res:
		default:
		}
	})
}
