package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/nubank/neura-chat/internal"
)

// Generator starts a streaming generation and hands back the raw NDJSON body.
// The caller owns the returned body and must close it.
type Generator interface {
	Model() string
	Generate(ctx context.Context, req internal.GenerateRequest) (io.ReadCloser, error)
}

var ErrNoBody = errors.New("no response body from backend")

// BackendError is returned when the backend answers with a non-2xx status.
type BackendError struct {
	Status int
	Body   string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("backend returned %d: %s", e.Status, e.Body)
}

// StreamError is an error object sent by the backend in place of a chunk.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return "backend error: " + e.Message }

// MockProvider streams a canned reply without a backend, for offline development.
type MockProvider struct{}

func (MockProvider) Model() string { return "mock-neura" }

func (MockProvider) Generate(ctx context.Context, req internal.GenerateRequest) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	reply := "Understood. (mock) You asked: \"" + lastHumanTurn(req.Prompt) + "\""

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, word := range strings.SplitAfter(reply, " ") {
		_ = enc.Encode(internal.GenerateChunk{Model: req.Model, Response: word})
	}
	_ = enc.Encode(internal.GenerateChunk{Model: req.Model, Done: true})
	return io.NopCloser(&buf), nil
}

func lastHumanTurn(prompt string) string {
	idx := strings.LastIndex(prompt, "Human: ")
	if idx < 0 {
		return ""
	}
	line := prompt[idx+len("Human: "):]
	if nl := strings.IndexByte(line, '\n'); nl >= 0 {
		line = line[:nl]
	}
	return line
}
