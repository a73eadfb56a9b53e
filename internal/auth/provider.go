// Package auth implements the default bearer-token provider using the
// two-legged OAuth2 JWT flow for Google service accounts.
package auth

import (
	"context"
	"log/slog"

	"golang.org/x/oauth2/jwt"

	"github.com/tinywideclouds/go-fcm-multicast/pkg/dispatch"
)

// messagingScope is the OAuth2 scope granting FCM send capability.
const messagingScope = "https://www.googleapis.com/auth/firebase.messaging"

// defaultTokenURI is used when the key file carries no token_uri.
const defaultTokenURI = "https://oauth2.googleapis.com/token"

// GoogleTokenProvider signs a JWT with the service account's private key
// and exchanges it for a short-lived access token.
type GoogleTokenProvider struct {
	logger *slog.Logger
}

func NewGoogleTokenProvider(logger *slog.Logger) *GoogleTokenProvider {
	return &GoogleTokenProvider{
		logger: logger.With("component", "GoogleTokenProvider"),
	}
}

// AccessToken implements dispatch.AccessTokenProvider.
func (p *GoogleTokenProvider) AccessToken(ctx context.Context, account *dispatch.ServiceAccount) (string, error) {
	tokenURI := account.TokenURI
	if tokenURI == "" {
		tokenURI = defaultTokenURI
	}

	cfg := &jwt.Config{
		Email:        account.ClientEmail,
		PrivateKey:   []byte(account.PrivateKey),
		PrivateKeyID: account.PrivateKeyID,
		Scopes:       []string{messagingScope},
		TokenURL:     tokenURI,
	}

	tok, err := cfg.TokenSource(ctx).Token()
	if err != nil {
		return "", &dispatch.AuthError{Err: err}
	}

	p.logger.Debug("Access token acquired", "issuer", account.ClientEmail, "expiry", tok.Expiry)
	return tok.AccessToken, nil
}
