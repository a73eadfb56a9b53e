package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tinywideclouds/go-fcm-multicast/pkg/push"
)

// sendBody is the FCM v1 request envelope.
type sendBody struct {
	Message *push.Message `json:"message"`
}

func encodeMessage(msg *push.Message) ([]byte, error) {
	return json.Marshal(sendBody{Message: msg})
}

// post issues one request for a single recipient over the given connection
// and buffers the full response body. The message is deep-copied with the
// recipient token set, so concurrent requests never share payload state.
func (e *Engine) post(ctx context.Context, op *operation, conn *Connection, token string) (int, []byte, error) {
	body, err := encodeMessage(op.msg.WithToken(token))
	if err != nil {
		return 0, nil, fmt.Errorf("encode message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, op.sendURL, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+op.bearer)

	resp, err := conn.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, buf, nil
}
