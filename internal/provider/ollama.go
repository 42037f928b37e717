package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nubank/neura-chat/internal"
)

const (
	generatePath = "/api/generate"

	// cap on how much of an error body is echoed back to the client
	maxErrorBody = 4 << 10
)

// OllamaProvider talks to a local Ollama server.
type OllamaProvider struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewOllamaProvider builds a provider for baseURL. A nil client uses a plain
// http.Client with no timeout: the exchange ceiling comes from the context.
func NewOllamaProvider(baseURL, model string, client *http.Client) *OllamaProvider {
	if client == nil {
		client = &http.Client{}
	}
	return &OllamaProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		client:  client,
	}
}

func (p *OllamaProvider) Model() string { return p.model }

// Generate POSTs req to /api/generate and returns the streaming body.
// Non-2xx answers are turned into *BackendError after a best-effort read of
// the body.
func (p *OllamaProvider) Generate(ctx context.Context, req internal.GenerateRequest) (io.ReadCloser, error) {
	if req.Model == "" {
		req.Model = p.model
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode generate request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+generatePath, bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/x-ndjson")

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		text := strings.TrimSpace(string(body))
		if readErr != nil || text == "" {
			text = "Unknown error"
		}
		return nil, &BackendError{Status: resp.StatusCode, Body: text}
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, ErrNoBody
	}
	return resp.Body, nil
}
