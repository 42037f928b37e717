// Package relay owns one chat exchange at a time: it calls the backend's
// streaming generate endpoint and re-frames each NDJSON chunk as a
// client-facing event.
package relay

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/nubank/neura-chat/internal"
	"github.com/nubank/neura-chat/internal/prompt"
	"github.com/nubank/neura-chat/internal/provider"
)

const DefaultTimeout = 120 * time.Second

// Request is one chat exchange as received from the caller.
type Request struct {
	Messages   []internal.Message
	Model      string
	Credential string
}

type Relay struct {
	gen     provider.Generator
	timeout time.Duration
	log     *zap.Logger
}

func New(gen provider.Generator, timeout time.Duration, log *zap.Logger) *Relay {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Relay{gen: gen, timeout: timeout, log: log}
}

func (r *Relay) Timeout() time.Duration { return r.timeout }

// DefaultModel is the model used when a request does not name one.
func (r *Relay) DefaultModel() string { return r.gen.Model() }

// Open validates req and prepares a session. The backend is not contacted
// until the first call to Next, so the caller can commit its response first.
// The session's ceiling starts counting here.
func (r *Relay) Open(ctx context.Context, req Request) (*Session, error) {
	if strings.TrimSpace(req.Credential) == "" {
		return nil, ErrUnauthorized
	}
	if len(req.Messages) == 0 {
		return nil, ErrInvalidInput
	}

	model := req.Model
	if model == "" {
		model = r.gen.Model()
	}

	sctx, cancel := context.WithTimeout(ctx, r.timeout)
	id := uuid.NewString()
	return &Session{
		ID:      id,
		ctx:     sctx,
		cancel:  cancel,
		gen:     r.gen,
		timeout: r.timeout,
		started: time.Now(),
		req: internal.GenerateRequest{
			Model:  model,
			Prompt: prompt.Format(req.Messages),
			Stream: true,
		},
		log: r.log.With(zap.String("session", id), zap.String("model", model)),
	}, nil
}

// Session is a single, non-restartable exchange. Frames are pulled with Next
// until it returns io.EOF.
type Session struct {
	ID string

	ctx     context.Context
	cancel  context.CancelFunc
	gen     provider.Generator
	req     internal.GenerateRequest
	timeout time.Duration
	started time.Time
	log     *zap.Logger

	body      io.ReadCloser
	reader    *bufio.Reader
	stopClose func() bool
	closeOnce sync.Once

	connected bool
	done      bool
	frames    int
	reason    string
}

// Model is the backend model this session talks to.
func (s *Session) Model() string { return s.req.Model }

// Reason says how the session ended: "done", "eof", "error", "closed", or ""
// while it is still open.
func (s *Session) Reason() string { return s.reason }

// Next returns the next client frame. After the terminal frame (or a normal
// end of stream) it returns io.EOF and the backend connection is released.
func (s *Session) Next() (internal.Frame, error) {
	if s.done {
		return internal.Frame{}, io.EOF
	}

	if !s.connected {
		s.connected = true
		if err := s.connect(); err != nil {
			return s.fail(err, false), nil
		}
	}

	for {
		line, err := s.reader.ReadBytes('\n')

		if trimmed := strings.TrimSpace(string(line)); trimmed != "" {
			var chunk *internal.GenerateChunk
			if jerr := json.Unmarshal([]byte(trimmed), &chunk); jerr != nil || chunk == nil {
				s.log.Warn("skipping malformed backend line", zap.String("line", trimmed), zap.Error(jerr))
			} else if chunk.Error != "" {
				return s.fail(&provider.StreamError{Message: chunk.Error}, true), nil
			} else if chunk.Done {
				s.finish("done")
				return internal.Frame{}, io.EOF
			} else {
				s.frames++
				return internal.TextFrame(chunk.Response), nil
			}
		}

		if err != nil {
			if errors.Is(err, io.EOF) && s.ctx.Err() == nil {
				s.finish("eof")
				return internal.Frame{}, io.EOF
			}
			return s.fail(err, true), nil
		}
	}
}

// Close releases the backend connection. It is safe to call more than once
// and is a no-op for the outcome of a session that already ended.
func (s *Session) Close() {
	if !s.done {
		s.finish("closed")
	}
}

func (s *Session) connect() error {
	s.log.Info("sending request to backend", zap.Int("prompt_bytes", len(s.req.Prompt)))

	body, err := s.gen.Generate(s.ctx, s.req)
	if err != nil {
		return err
	}
	s.body = body
	s.reader = bufio.NewReader(body)
	// Generators are not required to honour ctx while reading; closing the
	// body unblocks any pending Read once the ceiling fires.
	s.stopClose = context.AfterFunc(s.ctx, s.closeBody)
	return nil
}

func (s *Session) fail(err error, reading bool) internal.Frame {
	msg := frameMessage(err, s.ctx.Err(), s.timeout, reading)
	s.log.Error("relay session failed", zap.Error(err), zap.String("frame", msg))
	s.finish("error")
	return internal.ErrorFrame(msg)
}

func (s *Session) finish(reason string) {
	s.done = true
	s.reason = reason
	if s.stopClose != nil {
		s.stopClose()
	}
	s.closeBody()
	s.cancel()
	s.log.Info("relay session finished",
		zap.String("reason", reason),
		zap.Int("frames", s.frames),
		zap.Duration("elapsed", time.Since(s.started)))
}

func (s *Session) closeBody() {
	s.closeOnce.Do(func() {
		if s.body != nil {
			s.body.Close()
		}
	})
}
