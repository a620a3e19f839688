// Package config resolves runtime settings for the gmail-mcp server.
//
// Values are looked up in this order: command-line flags bound with
// BindFlags, process environment, an optional .env file, and finally the
// built-in defaults. Keys use the environment variable names documented on
// the Key* constants.
package config
