package engine_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-fcm-multicast/internal/engine"
	"github.com/tinywideclouds/go-fcm-multicast/pkg/dispatch"
	"github.com/tinywideclouds/go-fcm-multicast/pkg/push"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// requestToken extracts the recipient token from a send request body.
func requestToken(t *testing.T, r *http.Request) string {
	t.Helper()
	var body struct {
		Message struct {
			Token string `json:"token"`
		} `json:"message"`
	}
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body.Message.Token
}

// gateway is a scriptable fake FCM endpoint. respond maps a token to a
// canned reply; unmapped tokens succeed.
type gateway struct {
	t       *testing.T
	mu      sync.Mutex
	hits    map[string]int
	respond func(token string, attempt int) (int, string)
}

func newGateway(t *testing.T, respond func(token string, attempt int) (int, string)) *gateway {
	return &gateway{t: t, hits: make(map[string]int), respond: respond}
}

func (g *gateway) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(g.t, http.MethodPost, r.Method)
		assert.Equal(g.t, "/v1/projects/test-project/messages:send", r.URL.Path)
		assert.Equal(g.t, "Bearer test-bearer", r.Header.Get("Authorization"))

		token := requestToken(g.t, r)

		g.mu.Lock()
		g.hits[token]++
		attempt := g.hits[token]
		g.mu.Unlock()

		status, body := http.StatusOK, fmt.Sprintf(`{"name":"projects/test-project/messages/%s"}`, token)
		if g.respond != nil {
			if s, b := g.respond(token, attempt); s != 0 {
				status, body = s, b
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

func (g *gateway) attempts(token string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.hits[token]
}

func (g *gateway) totalRequests() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.hits {
		total += n
	}
	return total
}

const (
	unregisteredBody = `{"error":{"code":404,"status":"NOT_FOUND","message":"Requested entity was not found.",
		"details":[{"@type":"type.googleapis.com/google.firebase.fcm.v1.FcmError","errorCode":"UNREGISTERED"}]}}`
	unavailableBody = `{"error":{"code":503,"status":"UNAVAILABLE","message":"Try again later"}}`
	fatalBody       = `{"error":{"code":400,"status":"INVALID_ARGUMENT","message":"Invalid message payload"}}`
)

func newEngine(srv *httptest.Server, cfg engine.Config) *engine.Engine {
	cfg.Endpoint = srv.URL
	if cfg.Transport == nil {
		cfg.Transport = func() http.RoundTripper { return http.DefaultTransport.(*http.Transport).Clone() }
	}
	if cfg.RetryDelay == 0 {
		cfg.RetryDelay = time.Millisecond
	}
	return engine.New(cfg, newTestLogger())
}

func testMessage() *push.Message {
	return &push.Message{
		Notification: &push.Notification{Title: "Hello", Body: "World"},
		Data:         map[string]string{"id": "1"},
	}
}

func tokenList(n int) []string {
	tokens := make([]string, n)
	for i := range tokens {
		tokens[i] = fmt.Sprintf("token-%d", i)
	}
	return tokens
}

func TestSend_AllDelivered(t *testing.T) {
	gw := newGateway(t, nil)
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	eng := newEngine(srv, engine.Config{MaxConnections: 3, MaxStreamsPerConnection: 4})
	tokens := tokenList(25)

	invalid, err := eng.Send(context.Background(), "test-project", "test-bearer", testMessage(), tokens)
	require.NoError(t, err)
	assert.Empty(t, invalid)

	// One request per recipient, each exactly once.
	assert.Equal(t, len(tokens), gw.totalRequests())
	for _, tok := range tokens {
		assert.Equal(t, 1, gw.attempts(tok), "token %s", tok)
	}
}

func TestSend_InvalidRecipientsAggregated(t *testing.T) {
	dead := map[string]bool{"token-3": true, "token-7": true, "token-19": true}
	gw := newGateway(t, func(token string, attempt int) (int, string) {
		if dead[token] {
			return 404, unregisteredBody
		}
		return 0, ""
	})
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	eng := newEngine(srv, engine.Config{MaxConnections: 2, MaxStreamsPerConnection: 5})

	invalid, err := eng.Send(context.Background(), "test-project", "test-bearer", testMessage(), tokenList(20))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"token-3", "token-7", "token-19"}, invalid)
	// An invalid classification is terminal: no retries for dead tokens.
	for tok := range dead {
		assert.Equal(t, 1, gw.attempts(tok))
	}
}

func TestSend_TransientFailureRetriesThenSucceeds(t *testing.T) {
	gw := newGateway(t, func(token string, attempt int) (int, string) {
		if token == "token-1" && attempt <= 2 {
			return 503, unavailableBody
		}
		return 0, ""
	})
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	eng := newEngine(srv, engine.Config{MaxConnections: 1, MaxStreamsPerConnection: 10})

	invalid, err := eng.Send(context.Background(), "test-project", "test-bearer", testMessage(), tokenList(3))
	require.NoError(t, err)
	assert.Empty(t, invalid)

	// Two failures plus the successful re-send, one terminal outcome.
	assert.Equal(t, 3, gw.attempts("token-1"))
	assert.Equal(t, 1, gw.attempts("token-0"))
}

func TestSend_RetryBoundExhaustionDoesNotHangOperation(t *testing.T) {
	gw := newGateway(t, func(token string, attempt int) (int, string) {
		if token == "token-0" {
			return 503, unavailableBody
		}
		return 0, ""
	})
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	eng := newEngine(srv, engine.Config{
		MaxConnections:          1,
		MaxStreamsPerConnection: 10,
		MaxServerRetries:        2,
	})

	invalid, err := eng.Send(context.Background(), "test-project", "test-bearer", testMessage(), tokenList(4))

	// A permanently failing request is recorded but does not fail the
	// operation or block its batch.
	require.NoError(t, err)
	assert.Empty(t, invalid)
	assert.Equal(t, 3, gw.attempts("token-0")) // initial send + 2 retries
}

func TestSend_FatalGatewayErrorShortCircuits(t *testing.T) {
	gw := newGateway(t, func(token string, attempt int) (int, string) {
		if token == "token-0" {
			return 400, fatalBody
		}
		return 0, ""
	})
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	eng := newEngine(srv, engine.Config{MaxConnections: 4, MaxStreamsPerConnection: 2})

	_, err := eng.Send(context.Background(), "test-project", "test-bearer", testMessage(), tokenList(8))
	require.Error(t, err)

	var gwErr *dispatch.GatewayError
	require.True(t, errors.As(err, &gwErr))
	assert.Equal(t, "INVALID_ARGUMENT", gwErr.Status)
}

// flakyTransport fails the first request per token at the transport level
// and delegates afterwards, simulating a connection dying mid-batch.
type flakyTransport struct {
	inner http.RoundTripper
	mu    sync.Mutex
	seen  map[string]bool
}

func (f *flakyTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	raw, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	_ = req.Body.Close()

	var body struct {
		Message struct {
			Token string `json:"token"`
		} `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, err
	}

	f.mu.Lock()
	first := !f.seen[body.Message.Token]
	f.seen[body.Message.Token] = true
	f.mu.Unlock()

	if first {
		return nil, errors.New("stream reset")
	}

	clone := req.Clone(req.Context())
	clone.Body = io.NopCloser(bytes.NewReader(raw))
	return f.inner.RoundTrip(clone)
}

func TestSend_TransportErrorsRetryOnReplacementConnection(t *testing.T) {
	gw := newGateway(t, nil)
	srv := httptest.NewServer(gw.handler())
	defer srv.Close()

	flaky := &flakyTransport{inner: http.DefaultTransport, seen: make(map[string]bool)}
	eng := newEngine(srv, engine.Config{
		MaxConnections:          1,
		MaxStreamsPerConnection: 4,
		Transport:               func() http.RoundTripper { return flaky },
	})

	invalid, err := eng.Send(context.Background(), "test-project", "test-bearer", testMessage(), tokenList(4))
	require.NoError(t, err)
	assert.Empty(t, invalid)

	// Every request eventually lands after its transport-level failure.
	for _, tok := range tokenList(4) {
		assert.Equal(t, 1, gw.attempts(tok))
	}
}

func TestSend_NoRecipients(t *testing.T) {
	eng := engine.New(engine.Config{Endpoint: "http://unused"}, newTestLogger())
	invalid, err := eng.Send(context.Background(), "test-project", "test-bearer", testMessage(), nil)
	require.NoError(t, err)
	assert.Nil(t, invalid)
}
