// Package fcmclient is the public entry point for sending one message to
// many FCM device tokens over multiplexed HTTP/2 connections.
package fcmclient

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/tinywideclouds/go-fcm-multicast/fcmclient/config"
	"github.com/tinywideclouds/go-fcm-multicast/internal/auth"
	"github.com/tinywideclouds/go-fcm-multicast/internal/engine"
	"github.com/tinywideclouds/go-fcm-multicast/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-multicast/pkg/push"
)

// Client sends multicast pushes for one service account. Construction is
// cheap; a Client is safe for concurrent use and holds no process-wide
// state, so independently constructed clients cannot influence each other.
type Client struct {
	account  *dispatch.ServiceAccount
	provider dispatch.AccessTokenProvider
	engine   *engine.Engine
	logger   *slog.Logger
}

// Option customizes client construction.
type Option func(*options)

type options struct {
	transport func() http.RoundTripper
}

// WithTransport overrides the per-connection transport factory. The
// default opens one dedicated HTTP/2 session per connection.
func WithTransport(factory func() http.RoundTripper) Option {
	return func(o *options) { o.transport = factory }
}

// New builds a client. The service account is required and must carry a
// project ID; both are checked here so misconfiguration surfaces before
// any network call. A nil provider selects the default Google OAuth2 JWT
// provider.
func New(cfg *config.Config, provider dispatch.AccessTokenProvider, logger *slog.Logger, opts ...Option) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg == nil || cfg.ServiceAccount == nil {
		return nil, dispatch.ErrMissingCredentials
	}
	if cfg.ServiceAccount.ProjectID == "" {
		return nil, dispatch.ErrMissingProjectID
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	if provider == nil {
		provider = auth.NewGoogleTokenProvider(logger)
	}

	eng := engine.New(engine.Config{
		Endpoint:                cfg.Endpoint,
		MaxConnections:          cfg.MaxConnections,
		MaxStreamsPerConnection: cfg.MaxStreamsPerConnection,
		RetryDelay:              cfg.RetryDelay,
		MaxRetries:              cfg.MaxRetries,
		MaxServerRetries:        cfg.MaxServerRetries,
		Transport:               o.transport,
	}, logger)

	return &Client{
		account:  cfg.ServiceAccount,
		provider: provider,
		engine:   eng,
		logger:   logger.With("component", "FCMClient"),
	}, nil
}

// SendMulticast delivers msg to every token. It fetches one bearer token,
// fans the message out in batches and returns the tokens the gateway
// reported as permanently invalid so the caller can prune its records.
// It fails with the first fatal error: configuration, authentication, or
// an unrecoverable gateway response.
func (c *Client) SendMulticast(ctx context.Context, msg *push.Message, tokens []string) ([]string, error) {
	if msg == nil {
		return nil, fmt.Errorf("fcmclient: message is required")
	}
	if len(tokens) == 0 {
		c.logger.Debug("No recipients, nothing to send")
		return nil, nil
	}

	bearer, err := c.provider.AccessToken(ctx, c.account)
	if err != nil {
		return nil, err
	}

	return c.engine.Send(ctx, c.account.ProjectID, bearer, msg, tokens)
}
