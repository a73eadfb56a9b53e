package engine

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tinywideclouds/go-fcm-multicast/pkg/dispatch"
)

// outcome is the terminal category assigned to one gateway response.
type outcome int

const (
	outcomeDelivered outcome = iota
	outcomeInvalid
	outcomeRetry
	outcomeFatal
)

// classification is one classified response. serverSide selects the larger
// retry budget for 5xx-class failures.
type classification struct {
	outcome    outcome
	serverSide bool
	err        error
}

// gatewayResponse is the FCM v1 response body shape.
type gatewayResponse struct {
	Name  string            `json:"name"`
	Error *gatewayErrorBody `json:"error"`
}

type gatewayErrorBody struct {
	Code    int           `json:"code"`
	Message string        `json:"message"`
	Status  string        `json:"status"`
	Details []errorDetail `json:"details"`
}

type errorDetail struct {
	Type      string `json:"@type"`
	ErrorCode string `json:"errorCode"`
}

// serverErrorMarker flags opaque bodies (HTML error pages and the like)
// that still indicate a server-side fault.
var serverErrorMarker = []byte("Internal")

// classify assigns an outcome to one fully buffered gateway response.
func classify(httpStatus int, body []byte) classification {
	var parsed gatewayResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return classification{
			outcome:    outcomeRetry,
			serverSide: httpStatus >= 500 && httpStatus < 600 || bytes.Contains(body, serverErrorMarker),
			err:        fmt.Errorf("unparseable gateway response (http %d): %w: %s", httpStatus, err, truncate(body)),
		}
	}

	if parsed.Error == nil {
		return classification{outcome: outcomeDelivered}
	}

	e := parsed.Error
	if e.unregistered() {
		return classification{outcome: outcomeInvalid}
	}

	if httpStatus >= 500 && httpStatus < 600 || e.Status == "INTERNAL" || e.Status == "UNAVAILABLE" {
		return classification{
			outcome:    outcomeRetry,
			serverSide: true,
			err:        fmt.Errorf("gateway server error (http %d, %s): %s", httpStatus, e.Status, e.Message),
		}
	}

	return classification{
		outcome: outcomeFatal,
		err: &dispatch.GatewayError{
			HTTPStatus: httpStatus,
			Code:       e.Code,
			Status:     e.Status,
			Message:    e.Message,
		},
	}
}

// unregistered reports whether the error names a permanently invalid
// recipient: the dedicated UNREGISTERED code, or an argument-validation
// error that explicitly blames the registration token.
func (e *gatewayErrorBody) unregistered() bool {
	if e.Status == "UNREGISTERED" {
		return true
	}
	for _, d := range e.Details {
		if d.ErrorCode == "UNREGISTERED" {
			return true
		}
	}
	return e.Status == "INVALID_ARGUMENT" &&
		strings.Contains(strings.ToLower(e.Message), "registration token")
}

func truncate(body []byte) string {
	const max = 256
	if len(body) <= max {
		return string(body)
	}
	return string(body[:max]) + "..."
}
