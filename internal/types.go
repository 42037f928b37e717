package internal

import (
	"encoding/json"
	"time"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// ChatRequest is the body accepted by POST /api/chat.
type ChatRequest struct {
	Messages []Message `json:"messages"`
	Model    string    `json:"model,omitempty"`
}

// --- Client-facing stream ---

// Frame is one event of the client stream: a text fragment or a terminal error.
type Frame struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func TextFrame(text string) Frame { return Frame{Text: text} }

func ErrorFrame(msg string) Frame { return Frame{Error: msg} }

func (f Frame) IsError() bool { return f.Error != "" }

// MarshalJSON writes exactly one of {"text":...} or {"error":...}.
func (f Frame) MarshalJSON() ([]byte, error) {
	if f.IsError() {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{f.Error})
	}
	return json.Marshal(struct {
		Text string `json:"text"`
	}{f.Text})
}

// --- Backend stream ---

// GenerateRequest is the body sent to the backend's /api/generate endpoint.
type GenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// GenerateChunk is one NDJSON line of the backend's streaming response.
type GenerateChunk struct {
	Model    string `json:"model,omitempty"`
	Response string `json:"response"`
	Done     bool   `json:"done"`
	Error    string `json:"error,omitempty"`
}
