// Package google manages the OAuth2 credentials used to reach the Gmail API.
//
// It loads the installed-app client secret, persists the user's token to a
// JSON file, refreshes it before it expires and, on first run, obtains one
// through a loopback authorization flow in the user's browser.
//
// All failures are reported as *AuthError so callers can tell credential
// problems apart from transport or API errors.
package google
