// Package account parses the multi-account refresh-token list.
package account

import (
	"errors"
	"strings"
)

// ErrNoCredentials is returned by Parse when the raw list contains no usable token.
var ErrNoCredentials = errors.New("no refresh tokens configured")

// Credential is one account's refresh token plus the masked label used in
// reports. Immutable after Parse.
type Credential struct {
	refreshToken string
	label        string
}

// Token returns the raw refresh token.
func (c Credential) Token() string { return c.refreshToken }

// Label returns the masked display form of the token.
func (c Credential) Label() string { return c.label }

// maskToken keeps the first and last four characters and stars the middle,
// so reports identify the account without leaking the credential.
func maskToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:4] + strings.Repeat("*", len(token)-8) + token[len(token)-4:]
}

// Parse splits a comma-delimited refresh-token list into ordered credentials.
// Segments are trimmed and empty ones dropped. An empty result is a
// configuration error: the run must not proceed without at least one account.
func Parse(raw string) ([]Credential, error) {
	var creds []Credential
	for _, part := range strings.Split(raw, ",") {
		token := strings.TrimSpace(part)
		if token == "" {
			continue
		}
		creds = append(creds, Credential{refreshToken: token, label: maskToken(token)})
	}
	if len(creds) == 0 {
		return nil, ErrNoCredentials
	}
	return creds, nil
}
