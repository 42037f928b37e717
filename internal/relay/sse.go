package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/nubank/neura-chat/internal"
)

// SetStreamHeaders marks a response as a server-sent event stream.
func SetStreamHeaders(h http.Header) {
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("Connection", "keep-alive")
}

// WriteFrame writes f as a single `data: <json>\n\n` event.
func WriteFrame(w io.Writer, f internal.Frame) (int, error) {
	b, err := json.Marshal(f)
	if err != nil {
		return 0, err
	}
	return fmt.Fprintf(w, "data: %s\n\n", b)
}

// Summary describes what Pump wrote.
type Summary struct {
	Frames int
	Bytes  int
	Error  string
}

// Pump commits a 200 event-stream response and copies every frame of s into
// it, flushing after each one. It always closes s. A panic while producing
// frames is reported to the client as a generic error frame.
func Pump(w http.ResponseWriter, s *Session, log *zap.Logger) (sum Summary) {
	if log == nil {
		log = zap.NewNop()
	}
	defer s.Close()

	SetStreamHeaders(w.Header())
	w.Header().Set("X-Request-ID", s.ID)
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	flush := func() {
		if flusher != nil {
			flusher.Flush()
		}
	}
	flush()

	write := func(f internal.Frame) bool {
		n, err := WriteFrame(w, f)
		sum.Bytes += n
		if err != nil {
			log.Warn("client stream write failed", zap.String("session", s.ID), zap.Error(err))
			return false
		}
		sum.Frames++
		if f.IsError() {
			sum.Error = f.Error
		}
		flush()
		return true
	}

	defer func() {
		if r := recover(); r != nil {
			log.Error("relay panicked", zap.String("session", s.ID), zap.Any("panic", r))
			if sum.Error == "" {
				write(internal.ErrorFrame(msgUnexpected))
			}
		}
	}()

	for {
		f, err := s.Next()
		if errors.Is(err, io.EOF) {
			return sum
		}
		if err != nil {
			write(internal.ErrorFrame(msgUnexpected))
			return sum
		}
		if !write(f) || f.IsError() {
			return sum
		}
	}
}
