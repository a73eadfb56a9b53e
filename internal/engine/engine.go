// Package engine implements the multicast dispatch core: batching,
// connection lifecycle, per-recipient request fan-out, response
// classification, bounded retries and result aggregation.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tinywideclouds/go-fcm-multicast/internal/batch"
	"github.com/tinywideclouds/go-fcm-multicast/pkg/push"
)

// DefaultEndpoint is the production FCM gateway.
const DefaultEndpoint = "https://fcm.googleapis.com"

const (
	defaultMaxConnections          = 10
	defaultMaxStreamsPerConnection = 100
	defaultRetryDelay              = time.Second
	defaultMaxRetries              = 3
	defaultMaxServerRetries        = 10
)

// Config is the instance-scoped engine configuration. Every client owns
// its own copy; nothing here is process-wide.
type Config struct {
	Endpoint                string
	MaxConnections          int
	MaxStreamsPerConnection int
	RetryDelay              time.Duration
	MaxRetries              int
	MaxServerRetries        int

	// Transport overrides the per-connection transport factory. Nil means
	// a dedicated HTTP/2 transport per connection.
	Transport func() http.RoundTripper
}

func (c *Config) applyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = DefaultEndpoint
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = defaultMaxConnections
	}
	if c.MaxStreamsPerConnection <= 0 {
		c.MaxStreamsPerConnection = defaultMaxStreamsPerConnection
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = defaultRetryDelay
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
	if c.MaxServerRetries <= 0 {
		c.MaxServerRetries = defaultMaxServerRetries
	}
}

// Engine runs send operations. It is safe for concurrent use; each
// operation gets its own connections and aggregator.
type Engine struct {
	cfg    Config
	policy retryPolicy
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Engine {
	cfg.applyDefaults()
	return &Engine{
		cfg: cfg,
		policy: retryPolicy{
			delay:             cfg.RetryDelay,
			maxAttempts:       cfg.MaxRetries,
			maxServerAttempts: cfg.MaxServerRetries,
		},
		logger: logger.With("component", "DispatchEngine"),
	}
}

// operation is the shared read-only context of one send operation.
type operation struct {
	msg     *push.Message
	bearer  string
	sendURL string
	conns   *ConnManager
	agg     *aggregator
	logger  *slog.Logger
}

// Send dispatches msg to every token and returns the permanently-invalid
// recipients, or the first fatal error. Requests still in flight when a
// fatal error resolves the operation are not cancelled; they drain in the
// background.
func (e *Engine) Send(ctx context.Context, projectID, bearer string, msg *push.Message, tokens []string) ([]string, error) {
	batches := batch.Partition(tokens, e.cfg.MaxConnections, e.cfg.MaxStreamsPerConnection)
	if len(batches) == 0 {
		return nil, nil
	}

	// Catch unencodable payloads before any network traffic.
	if _, err := encodeMessage(msg); err != nil {
		return nil, fmt.Errorf("message payload is not encodable: %w", err)
	}

	opLogger := e.logger.With("op_id", uuid.NewString())
	op := &operation{
		msg:     msg,
		bearer:  bearer,
		sendURL: fmt.Sprintf("%s/v1/projects/%s/messages:send", strings.TrimSuffix(e.cfg.Endpoint, "/"), projectID),
		conns:   newConnManager(e.cfg.Transport, opLogger),
		agg:     newAggregator(len(batches)),
		logger:  opLogger,
	}
	op.logger.Info("Dispatch started", "recipients", len(tokens), "batches", len(batches))

	for i, b := range batches {
		go e.runBatch(ctx, op, i, b)
	}

	invalid, err := op.agg.wait()
	if err != nil {
		op.logger.Error("Dispatch failed", "err", err)
		return nil, err
	}
	op.logger.Info("Dispatch complete", "invalid", len(invalid))
	return invalid, nil
}

// runBatch drives one batch over one connection to a terminal state. A
// semaphore bounds in-flight requests at the stream concurrency limit;
// the WaitGroup is the batch's completion barrier.
func (e *Engine) runBatch(ctx context.Context, op *operation, idx int, tokens []string) {
	logger := op.logger.With("batch", idx, "size", len(tokens))
	conn := op.conns.Open()
	state := &batchState{}

	sem := make(chan struct{}, e.cfg.MaxStreamsPerConnection)
	var wg sync.WaitGroup
	for _, tok := range tokens {
		sem <- struct{}{}
		wg.Add(1)
		go func(token string) {
			defer wg.Done()
			defer func() { <-sem }()
			e.deliver(ctx, op, conn, state, token, logger)
		}(tok)
	}
	wg.Wait()

	conn.Close()
	completed, invalid := state.snapshot()
	logger.Debug("Batch complete", "completed", completed, "invalid", len(invalid))
	op.agg.batchDone(invalid)
}

// deliver resolves one request to a terminal state, re-sending transient
// failures up to the retry bound. The sequential loop owns the request's
// retryState, so duplicate concurrent retries cannot happen.
func (e *Engine) deliver(ctx context.Context, op *operation, conn *Connection, state *batchState, token string, logger *slog.Logger) {
	st := retryState{token: token, conn: conn}
	for {
		status, body, err := e.post(ctx, op, st.conn, token)

		var cl classification
		if err != nil {
			// Transport faults kill the session; retries move to the
			// shared replacement connection.
			st.conn.Destroy()
			cl = classification{outcome: outcomeRetry, err: err}
		} else {
			cl = classify(status, body)
		}

		switch cl.outcome {
		case outcomeDelivered:
			state.markCompleted()
			return

		case outcomeInvalid:
			state.addInvalid(st.token)
			state.markCompleted()
			return

		case outcomeFatal:
			state.markCompleted()
			op.agg.fail(cl.err)
			return

		case outcomeRetry:
			if st.tries >= e.policy.bound(cl.serverSide) {
				// A permanently failing request must not block the batch:
				// record it and advance the completion counter anyway.
				logger.Warn("Request failed after exhausting retries",
					"token", st.token, "tries", st.tries, "err", cl.err)
				state.markCompleted()
				return
			}
			st.tries++
			if werr := e.policy.wait(ctx); werr != nil {
				logger.Warn("Retry abandoned, context ended", "token", st.token, "err", werr)
				state.markCompleted()
				return
			}
			if !st.conn.Alive() {
				st.conn = st.conn.Replacement()
			}
		}
	}
}
