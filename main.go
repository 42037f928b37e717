package main

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nubank/neura-chat/internal/api"
	"github.com/nubank/neura-chat/internal/config"
	"github.com/nubank/neura-chat/internal/logging"
	"github.com/nubank/neura-chat/internal/provider"
	"github.com/nubank/neura-chat/internal/ratelimit"
	"github.com/nubank/neura-chat/internal/relay"
)

func main() {
	cfg := config.Load() // loads .env if present

	log := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	defer log.Sync()

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}

	// Backend: Ollama unless the mock is requested for offline work
	var gen provider.Generator
	if cfg.Ollama.Mock {
		gen = provider.MockProvider{}
	} else {
		gen = provider.NewOllamaProvider(cfg.Ollama.Host, cfg.Ollama.DefaultModel, nil)
	}

	limiter := ratelimit.New(cfg.RateLimit.Interval, cfg.RateLimit.Capacity)
	rl := relay.New(gen, cfg.Ollama.Timeout, log)

	r := api.NewRouter(api.NewHandler(rl, log), api.Options{
		CORSOrigin: cfg.CORSOrigin,
		Limiter:    limiter,
		Logger:     log,
	})

	log.Info("neura chat relay listening",
		zap.String("port", cfg.Port),
		zap.String("backend", cfg.Ollama.Host),
		zap.String("model", gen.Model()),
		zap.Bool("mock", cfg.Ollama.Mock),
		zap.Duration("timeout", cfg.Ollama.Timeout),
		zap.Duration("rate_interval", cfg.RateLimit.Interval),
		zap.Int("rate_capacity", cfg.RateLimit.Capacity))

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}
