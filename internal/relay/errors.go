package relay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nubank/neura-chat/internal/provider"
)

// Request-level failures. These are reported with an HTTP status before any
// stream is opened.
var (
	ErrUnauthorized = errors.New("API key required")
	ErrInvalidInput = errors.New("messages are required and must be a non-empty array")
	ErrRateLimited  = errors.New("rate limit exceeded")
)

const (
	msgStreamFailure = "error processing response stream"
	msgUnexpected    = "unexpected relay failure"
	msgCancelled     = "request cancelled"
)

// TimeoutMessage is the error frame text sent when the exchange ceiling fires.
func TimeoutMessage(d time.Duration) string {
	return fmt.Sprintf("backend timeout after %s", d)
}

// frameMessage maps a session failure to the text of its terminal error frame.
// ctxErr is the session context's error at the time of failure and wins over
// whatever the transport reported.
func frameMessage(err, ctxErr error, timeout time.Duration, reading bool) string {
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return TimeoutMessage(timeout)
	case errors.Is(ctxErr, context.Canceled):
		return msgCancelled
	}

	var be *provider.BackendError
	var se *provider.StreamError
	switch {
	case errors.As(err, &be):
		return be.Error()
	case errors.As(err, &se):
		return se.Error()
	case errors.Is(err, provider.ErrNoBody):
		return err.Error()
	case reading:
		return msgStreamFailure
	default:
		return "backend connection failed: " + err.Error()
	}
}
