package relay

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nubank/neura-chat/internal"
	"github.com/nubank/neura-chat/internal/provider"
)

var conversation = []internal.Message{
	{Role: internal.RoleSystem, Content: "You are Neura AI."},
	{Role: internal.RoleUser, Content: "Hi"},
}

func ollamaBackend(t *testing.T, h http.HandlerFunc) *provider.OllamaProvider {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return provider.NewOllamaProvider(srv.URL, "qwen2.5:3b", nil)
}

func openSession(t *testing.T, gen provider.Generator, timeout time.Duration) *Session {
	t.Helper()
	s, err := New(gen, timeout, nil).Open(context.Background(), Request{
		Messages:   conversation,
		Credential: "secret",
	})
	require.NoError(t, err)
	return s
}

func collect(t *testing.T, s *Session) []internal.Frame {
	t.Helper()
	var frames []internal.Frame
	for i := 0; i < 1000; i++ {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			return frames
		}
		require.NoError(t, err)
		frames = append(frames, f)
	}
	t.Fatal("session never terminated")
	return nil
}

func TestRelayTextThenDone(t *testing.T) {
	var prompt string
	gen := ollamaBackend(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		prompt = string(body)
		io.WriteString(w, "{\"response\":\"Hi\"}\n{\"response\":\" there\"}\n{\"done\":true}\n")
	})

	s := openSession(t, gen, time.Second)
	frames := collect(t, s)

	assert.Equal(t, []internal.Frame{internal.TextFrame("Hi"), internal.TextFrame(" there")}, frames)
	assert.Equal(t, "done", s.Reason())
	assert.Contains(t, prompt, `"stream":true`)
	assert.Contains(t, prompt, `You are Neura AI.\n\nHuman: Hi\nAssistant:`)
}

func TestRelayPartialLinesAcrossReads(t *testing.T) {
	gen := ollamaBackend(t, func(w http.ResponseWriter, r *http.Request) {
		f := w.(http.Flusher)
		for _, part := range []string{`{"respo`, `nse":"a"}` + "\n" + `{"response":`, `"b"}` + "\n", `{"done":true}`} {
			io.WriteString(w, part)
			f.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	})

	frames := collect(t, openSession(t, gen, time.Second))

	assert.Equal(t, []internal.Frame{internal.TextFrame("a"), internal.TextFrame("b")}, frames)
}

func TestRelayEOFWithoutDone(t *testing.T) {
	gen := ollamaBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"response":"only"}`)
	})

	s := openSession(t, gen, time.Second)
	frames := collect(t, s)

	assert.Equal(t, []internal.Frame{internal.TextFrame("only")}, frames)
	assert.Equal(t, "eof", s.Reason())
}

func TestRelaySkipsMalformedLines(t *testing.T) {
	gen := ollamaBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{\"response\":\"x\"}\nnot json\n\n{\"done\":false}\n{\"done\":true}\n")
	})

	frames := collect(t, openSession(t, gen, time.Second))

	// the chunk without a response field still yields an (empty) fragment
	assert.Equal(t, []internal.Frame{internal.TextFrame("x"), internal.TextFrame("")}, frames)
}

func TestRelaySkipsNonObjectLines(t *testing.T) {
	gen := ollamaBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "null\n[1,2]\n\"hi\"\n42\n{\"response\":\"Hi\"}\n{\"done\":true}\n")
	})

	frames := collect(t, openSession(t, gen, time.Second))

	assert.Equal(t, []internal.Frame{internal.TextFrame("Hi")}, frames)
}

func TestRelayBackendStatusError(t *testing.T) {
	gen := ollamaBackend(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model crashed", http.StatusInternalServerError)
	})

	s := openSession(t, gen, time.Second)
	frames := collect(t, s)

	require.Len(t, frames, 1)
	assert.True(t, frames[0].IsError())
	assert.Contains(t, frames[0].Error, "500")
	assert.Contains(t, frames[0].Error, "model crashed")
	assert.Equal(t, "error", s.Reason())
}

func TestRelayBackendUnreachable(t *testing.T) {
	gen := provider.NewOllamaProvider("http://127.0.0.1:1", "m", nil)

	frames := collect(t, openSession(t, gen, time.Second))

	require.Len(t, frames, 1)
	assert.True(t, strings.HasPrefix(frames[0].Error, "backend connection failed"))
}

func TestRelayBackendErrorChunk(t *testing.T) {
	gen := ollamaBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "{\"response\":\"par\"}\n{\"error\":\"out of memory\"}\n{\"response\":\"never\"}\n")
	})

	frames := collect(t, openSession(t, gen, time.Second))

	require.Len(t, frames, 2)
	assert.Equal(t, internal.TextFrame("par"), frames[0])
	assert.Equal(t, "backend error: out of memory", frames[1].Error)
}

func TestRelayTimeoutReleasesBackend(t *testing.T) {
	released := make(chan struct{})
	gen := ollamaBackend(t, func(w http.ResponseWriter, r *http.Request) {
		// The server only watches for a client disconnect once the body is consumed.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
		close(released)
	})

	start := time.Now()
	frames := collect(t, openSession(t, gen, 100*time.Millisecond))

	require.Len(t, frames, 1)
	assert.Equal(t, TimeoutMessage(100*time.Millisecond), frames[0].Error)
	assert.Less(t, time.Since(start), 2*time.Second)

	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("backend request was not cancelled")
	}
}

func TestRelayTimeoutMidStream(t *testing.T) {
	gen := ollamaBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		io.WriteString(w, "{\"response\":\"first\"}\n")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	})

	frames := collect(t, openSession(t, gen, 150*time.Millisecond))

	require.Len(t, frames, 2)
	assert.Equal(t, internal.TextFrame("first"), frames[0])
	assert.Equal(t, TimeoutMessage(150*time.Millisecond), frames[1].Error)
}

// blockingBody never returns data and ignores contexts; only Close unblocks it.
type blockingBody struct {
	once   sync.Once
	closed chan struct{}
}

func (b *blockingBody) Read(p []byte) (int, error) {
	<-b.closed
	return 0, errors.New("read on closed body")
}

func (b *blockingBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return nil
}

type stubGenerator struct {
	body io.ReadCloser
	err  error
}

func (g stubGenerator) Model() string { return "stub" }

func (g stubGenerator) Generate(ctx context.Context, req internal.GenerateRequest) (io.ReadCloser, error) {
	return g.body, g.err
}

func TestRelayTimeoutClosesStubbornBody(t *testing.T) {
	body := &blockingBody{closed: make(chan struct{})}

	frames := collect(t, openSession(t, stubGenerator{body: body}, 50*time.Millisecond))

	require.Len(t, frames, 1)
	assert.Equal(t, TimeoutMessage(50*time.Millisecond), frames[0].Error)
	select {
	case <-body.closed:
	default:
		t.Fatal("body left open")
	}
}

func TestRelayNoBody(t *testing.T) {
	frames := collect(t, openSession(t, stubGenerator{err: provider.ErrNoBody}, time.Second))

	require.Len(t, frames, 1)
	assert.Equal(t, provider.ErrNoBody.Error(), frames[0].Error)
}

func TestRelayCallerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	released := make(chan struct{})
	gen := ollamaBackend(t, func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
		close(released)
	})
	s, err := New(gen, time.Minute, nil).Open(ctx, Request{Messages: conversation, Credential: "k"})
	require.NoError(t, err)

	time.AfterFunc(50*time.Millisecond, cancel)
	frames := collect(t, s)

	require.Len(t, frames, 1)
	assert.Equal(t, msgCancelled, frames[0].Error)
	select {
	case <-released:
	case <-time.After(2 * time.Second):
		t.Fatal("backend request was not cancelled")
	}
}

func TestOpenValidates(t *testing.T) {
	r := New(provider.MockProvider{}, 0, nil)

	_, err := r.Open(context.Background(), Request{Messages: conversation})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = r.Open(context.Background(), Request{Credential: "k"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	s, err := r.Open(context.Background(), Request{Messages: conversation, Credential: "k"})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "mock-neura", s.Model())
	assert.Equal(t, DefaultTimeout, r.Timeout())
}

func TestOpenKeepsRequestedModel(t *testing.T) {
	s, err := New(provider.MockProvider{}, time.Second, nil).Open(context.Background(), Request{
		Messages:   conversation,
		Model:      "gemma:2b",
		Credential: "k",
	})
	require.NoError(t, err)
	defer s.Close()
	assert.Equal(t, "gemma:2b", s.Model())
}

func TestSessionIsNotRestartable(t *testing.T) {
	s := openSession(t, provider.MockProvider{}, time.Second)
	require.NotEmpty(t, collect(t, s))

	_, err := s.Next()
	assert.ErrorIs(t, err, io.EOF)
}
