package google

import (
	gmail "google.golang.org/api/gmail/v1"
)

// DefaultOAuthScopes are the scopes requested during authorization. The
// server only reads mail, so the read-only Gmail scope is sufficient.
var DefaultOAuthScopes = []string{
	gmail.GmailReadonlyScope,
}
