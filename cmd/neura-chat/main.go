// Command neura-chat is a terminal client for the relay. It keeps the
// conversation in memory and prints the assistant's reply as it streams.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/peterh/liner"

	"github.com/nubank/neura-chat/internal/chatclient"
	"github.com/nubank/neura-chat/internal/config"
	"github.com/nubank/neura-chat/internal/store"
)

const defaultSystemPrompt = "You are Neura AI, an assistant skilled at coding and data analysis."

func main() {
	_ = godotenv.Load()

	baseURL := flag.String("url", envOr("NEURA_URL", "http://localhost:"+envOr("PORT", config.DefaultPort)), "relay base URL")
	apiKey := flag.String("key", os.Getenv("NEURA_API_KEY"), "API key sent as bearer credential")
	model := flag.String("model", envOr("DEFAULT_MODEL", config.DefaultModel), "model to request")
	system := flag.String("system", defaultSystemPrompt, "system prompt")
	inactivity := flag.Duration("inactivity", chatclient.DefaultInactivity, "per-event inactivity timeout")
	ceiling := flag.Duration("timeout", chatclient.DefaultCeiling, "overall timeout per reply")
	flag.Parse()

	if *apiKey == "" {
		fmt.Fprintln(os.Stderr, "an API key is required (-key or NEURA_API_KEY)")
		os.Exit(2)
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	c := &chat{
		client: chatclient.New(*baseURL, *apiKey,
			chatclient.WithInactivity(*inactivity),
			chatclient.WithCeiling(*ceiling)),
		conv:   store.NewMemoryStore(),
		system: *system,
		model:  *model,
		out:    os.Stdout,
		errOut: os.Stderr,
	}

	fmt.Printf("Neura chat (%s, model %s). /reset, /model <name>, /exit\n", *baseURL, *model)
	c.run(line)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
