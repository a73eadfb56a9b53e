package engine

import (
	"context"
	"time"
)

// retryPolicy bounds and paces re-sends of transiently failed requests.
// Server-side failures (5xx-class responses and bodies carrying the
// generic server-error marker) get the larger budget.
type retryPolicy struct {
	delay             time.Duration
	maxAttempts       int
	maxServerAttempts int
}

func (p retryPolicy) bound(serverSide bool) int {
	if serverSide {
		return p.maxServerAttempts
	}
	return p.maxAttempts
}

// wait blocks for the fixed retry delay, or until the context ends.
func (p retryPolicy) wait(ctx context.Context) error {
	t := time.NewTimer(p.delay)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// retryState tracks one request through the retry machine: the recipient,
// the connection the next attempt will use, and the attempt counter. The
// request's goroutine owns the value, so a request never has two retries
// in flight at once.
type retryState struct {
	token string
	conn  *Connection
	tries int
}
