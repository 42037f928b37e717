package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/peterh/liner"

	"github.com/nubank/neura-chat/internal"
	"github.com/nubank/neura-chat/internal/chatclient"
	"github.com/nubank/neura-chat/internal/store"
)

// lineReader is the part of *liner.State the chat loop needs.
type lineReader interface {
	Prompt(prompt string) (string, error)
	AppendHistory(item string)
}

type chat struct {
	client *chatclient.Client
	conv   *store.MemoryStore
	system string
	model  string
	out    io.Writer
	errOut io.Writer
}

// run reads lines until /exit, Ctrl-D, or Ctrl-C at an empty prompt.
func (c *chat) run(in lineReader) {
	for {
		line, err := in.Prompt("> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				fmt.Fprintln(c.out)
			}
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		in.AppendHistory(line)

		if c.command(line) {
			return
		}
	}
}

// command handles one input line and reports whether the loop should stop.
func (c *chat) command(line string) bool {
	switch {
	case line == "/exit":
		return true
	case line == "/reset":
		c.conv.Reset()
		fmt.Fprintln(c.out, "conversation cleared")
	case line == "/model" || strings.HasPrefix(line, "/model "):
		if name := strings.TrimSpace(strings.TrimPrefix(line, "/model")); name != "" {
			c.model = name
		}
		fmt.Fprintln(c.out, "model:", c.model)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()
		c.ask(ctx, line)
	}
	return false
}

func (c *chat) ask(ctx context.Context, text string) {
	user := internal.Message{Role: internal.RoleUser, Content: text, CreatedAt: time.Now()}
	req := internal.ChatRequest{
		Messages: c.conv.Window(c.system, store.DefaultWindow, user),
		Model:    c.model,
	}
	c.conv.Append(user)
	c.conv.Append(internal.Message{Role: internal.RoleAssistant, CreatedAt: time.Now()})

	printed := 0
	_, err := c.client.Send(ctx, req, func(acc string) {
		c.conv.SetLast(acc)
		fmt.Fprint(c.out, acc[printed:])
		printed = len(acc)
	})
	fmt.Fprintln(c.out)

	if err != nil {
		note := chatclient.FailureNote(err, c.model)
		c.conv.SetLast(note)
		if errors.Is(err, context.Canceled) {
			note = "cancelled"
		}
		fmt.Fprintln(c.errOut, note)
	}
}
