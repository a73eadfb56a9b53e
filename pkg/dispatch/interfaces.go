// Package dispatch contains the public contracts and domain models shared
// between the client entry point and the internal dispatch engine.
package dispatch

import "context"

// AccessTokenProvider exchanges service-account credentials for a
// short-lived bearer token. The client calls it exactly once per send
// operation and treats the returned token as valid for the whole
// operation; no mid-operation refresh happens.
//
// Implementations own their own caching and refresh policy. The default
// implementation lives in internal/auth.
type AccessTokenProvider interface {
	AccessToken(ctx context.Context, account *ServiceAccount) (string, error)
}
