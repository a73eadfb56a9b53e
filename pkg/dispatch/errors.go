package dispatch

import (
	"errors"
	"fmt"
)

// Configuration errors, surfaced before any network activity.
var (
	ErrMissingCredentials = errors.New("dispatch: service account credentials are required")
	ErrMissingProjectID   = errors.New("dispatch: service account has no project_id")
)

// AuthError wraps a failed bearer-token exchange. It aborts the whole
// send operation before any batch starts.
type AuthError struct {
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("dispatch: token exchange failed: %v", e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// GatewayError is a structured error returned by the FCM gateway that is
// neither retryable nor an invalid-recipient signal. One GatewayError is
// fatal for the whole send operation.
type GatewayError struct {
	// HTTPStatus is the HTTP response status code.
	HTTPStatus int
	// Code and Status mirror the gateway's error body.
	Code    int
	Status  string
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("dispatch: gateway rejected request (http %d, %s): %s", e.HTTPStatus, e.Status, e.Message)
}
