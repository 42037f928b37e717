// Package chatclient consumes the relay's event stream the way the browser
// client does: it applies an overall ceiling and a per-event inactivity
// timeout, and reassembles the assistant's reply fragment by fragment.
package chatclient

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nubank/neura-chat/internal"
)

const (
	DefaultCeiling    = 120 * time.Second
	DefaultInactivity = 30 * time.Second

	chatPath = "/api/chat"
)

var (
	// ErrEmptyResponse means the stream completed without any text. It is an
	// application-level failure, not a transport one.
	ErrEmptyResponse = errors.New("empty response from model")
	ErrInactivity    = errors.New("no response from model")
	ErrTimeout       = errors.New("request timed out")
)

// HTTPError is a non-2xx answer from the relay, before any stream was opened.
type HTTPError struct {
	Status  int
	Message string
}

func (e *HTTPError) Error() string { return e.Message }

// StreamError is a terminal error frame received on the stream.
type StreamError struct {
	Message string
}

func (e *StreamError) Error() string { return e.Message }

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	ceiling    time.Duration
	inactivity time.Duration
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithCeiling(d time.Duration) Option {
	return func(c *Client) { c.ceiling = d }
}

func WithInactivity(d time.Duration) Option {
	return func(c *Client) { c.inactivity = d }
}

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{},
		ceiling:    DefaultCeiling,
		inactivity: DefaultInactivity,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Send posts req and reads the reply stream. onText, if set, is called with
// the full text accumulated so far after every fragment. The accumulated
// text is returned even when an error ends the exchange.
func (c *Client) Send(ctx context.Context, req internal.ChatRequest, onText func(string)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.ceiling)
	defer cancel()

	resp, err := c.post(ctx, req)
	if err != nil {
		return "", c.ctxErr(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", httpError(resp)
	}

	events := make(chan event)
	go readEvents(ctx, resp.Body, events)

	timer := time.NewTimer(c.inactivity)
	defer timer.Stop()

	var acc strings.Builder
	for {
		select {
		case <-ctx.Done():
			return acc.String(), c.ctxErr(ctx, ctx.Err())
		case <-timer.C:
			cancel()
			return acc.String(), fmt.Errorf("%w within %s", ErrInactivity, c.inactivity)
		case ev, ok := <-events:
			if !ok {
				if err := ctx.Err(); err != nil {
					return acc.String(), c.ctxErr(ctx, err)
				}
				if strings.TrimSpace(acc.String()) == "" {
					return acc.String(), ErrEmptyResponse
				}
				return acc.String(), nil
			}
			if !timer.Stop() {
				<-timer.C
			}
			timer.Reset(c.inactivity)

			if ev.err != nil {
				return acc.String(), c.ctxErr(ctx, ev.err)
			}
			var f struct {
				Text  string `json:"text"`
				Error string `json:"error"`
			}
			if err := json.Unmarshal([]byte(ev.data), &f); err != nil {
				return acc.String(), fmt.Errorf("malformed event %q: %w", ev.data, err)
			}
			if f.Error != "" {
				return acc.String(), &StreamError{Message: f.Error}
			}
			acc.WriteString(f.Text)
			if onText != nil {
				onText(acc.String())
			}
		}
	}
}

func (c *Client) post(ctx context.Context, req internal.ChatRequest) (*http.Response, error) {
	b, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+chatPath, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	return c.httpClient.Do(httpReq)
}

func (c *Client) ctxErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrTimeout, c.ceiling)
	}
	return err
}

func httpError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	if json.Unmarshal(data, &body) == nil && body.Error != "" {
		return &HTTPError{Status: resp.StatusCode, Message: body.Error}
	}
	return &HTTPError{Status: resp.StatusCode, Message: "Error: " + resp.Status}
}

type event struct {
	data string
	err  error
}

// readEvents splits an event stream into the data payloads of its events and
// closes out when the stream ends cleanly.
func readEvents(ctx context.Context, r io.Reader, out chan<- event) {
	defer close(out)

	send := func(ev event) bool {
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	br := bufio.NewReader(r)
	var data []string
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "" && len(data) > 0:
			if !send(event{data: strings.Join(data, "\n")}) {
				return
			}
			data = data[:0]
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				send(event{err: err})
				return
			}
			if len(data) > 0 {
				send(event{data: strings.Join(data, "\n")})
			}
			return
		}
	}
}
