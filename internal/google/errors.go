package google

import (
	"errors"
	"fmt"
)

// AuthReason classifies why credentials could not be produced.
type AuthReason string

const (
	// ReasonNoCredentials means no token is stored and interactive
	// authorization is disabled.
	ReasonNoCredentials AuthReason = "no_credentials"
	// ReasonMissingClientSecret means the client secret file is absent or unreadable.
	ReasonMissingClientSecret AuthReason = "missing_client_secret"
	// ReasonRefreshRevoked means the token endpoint rejected the refresh
	// token with invalid_grant.
	ReasonRefreshRevoked AuthReason = "refresh_revoked"
	// ReasonRefreshFailed covers every other refresh failure.
	ReasonRefreshFailed AuthReason = "refresh_failed"
	// ReasonInteractiveFailed means the browser authorization flow did not complete.
	ReasonInteractiveFailed AuthReason = "interactive_failed"
	// ReasonTokenRejected means the Gmail API answered 401 for a token
	// that looked valid locally.
	ReasonTokenRejected AuthReason = "token_rejected"
)

// AuthError reports a failure to obtain or use credentials.
type AuthError struct {
	Reason AuthReason
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("authentication failed: %s", e.Reason)
	}
	return fmt.Sprintf("authentication failed (%s): %v", e.Reason, e.Err)
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

// newAuthError returns err unchanged when it already is an *AuthError.
func newAuthError(reason AuthReason, err error) error {
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr
	}
	return &AuthError{Reason: reason, Err: err}
}

// IsAuthError reports whether err is or wraps an *AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}
