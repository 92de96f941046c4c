// Package auth provides the bearer credential the remote store calls carry.
//
// A Provider keeps one OAuth token in the local cache. Before handing it
// out it checks the local expiry bookkeeping and then asks the userinfo
// endpoint whether the token still works, because a server can revoke a
// token that still looks fresh locally. A rejected or expired token is
// renewed silently with the refresh token. When that fails the caller gets
// ErrAuthRequired and must send the user through the consent flow again.
package auth

import (
	"errors"
	"time"

	"golang.org/x/oauth2"
)

const (
	// ExpiryBuffer is how long before its expiry a token stops being used.
	ExpiryBuffer = 60 * time.Second

	// DefaultTokenLifetime is assumed when the token endpoint omits expires_in.
	DefaultTokenLifetime = time.Hour

	// DefaultTimeout bounds one credential resolution.
	DefaultTimeout = 5 * time.Second
)

var (
	// ErrAuthRequired means no usable credential exists and silent renewal
	// failed. Only interactive sign-in can fix it.
	ErrAuthRequired = errors.New("authentication required")

	// ErrInvalidToken is returned by a Validator when the server rejects
	// the token.
	ErrInvalidToken = errors.New("token rejected by server")

	// ErrUnreachable means the auth servers could not be asked. The
	// credential may still be fine.
	ErrUnreachable = errors.New("auth server unreachable")
)

// Credential is an access token ready to be sent as a bearer header.
type Credential struct {
	AccessToken string
	TokenType   string
	Expiry      time.Time
	Account     string
}

// Token converts the credential for use with oauth2 transports.
func (c Credential) Token() *oauth2.Token {
	return &oauth2.Token{
		AccessToken: c.AccessToken,
		TokenType:   c.TokenType,
		Expiry:      c.Expiry,
	}
}

// Usable reports whether the token is present and not within
// ExpiryBuffer of its expiry at now.
func (c Credential) Usable(now time.Time) bool {
	return fresh(c.AccessToken, c.Expiry, now)
}

func fresh(accessToken string, expiry, now time.Time) bool {
	if accessToken == "" {
		return false
	}
	return expiry.IsZero() || now.Add(ExpiryBuffer).Before(expiry)
}

func credentialFrom(tok *oauth2.Token, account string) Credential {
	return Credential{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		Expiry:      tok.Expiry,
		Account:     account,
	}
}
