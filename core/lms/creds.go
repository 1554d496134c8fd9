package lms

import (
	"context"
	"net/http"
)

// StaticCredentials serves one fixed session cookie for every user. It backs
// local development against a hand-copied browser session, and tests. An
// empty value behaves like an expired session so the reconnect path is
// exercised instead of sending unauthenticated requests upstream.
type StaticCredentials string

var _ CredentialProvider = StaticCredentials("")

func (c StaticCredentials) SessionCookie(context.Context, string) (string, error) {
	if c == "" {
		return "", newAPIError(http.StatusUnauthorized, "no session credential configured")
	}
	return string(c), nil
}
