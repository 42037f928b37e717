package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nubank/neura-chat/internal"
	"github.com/nubank/neura-chat/internal/ratelimit"
	"github.com/nubank/neura-chat/internal/relay"
)

type Handler struct {
	relay   *relay.Relay
	log     *zap.Logger
	started time.Time
}

func NewHandler(r *relay.Relay, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{relay: r, log: log, started: time.Now()}
}

// Options configures the router built by NewRouter.
type Options struct {
	CORSOrigin string
	Limiter    *ratelimit.Limiter
	Logger     *zap.Logger
}

// NewRouter wires the HTTP surface: health, model and the chat relay.
func NewRouter(h *Handler, opts Options) *gin.Engine {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	limiter := opts.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultInterval, ratelimit.DefaultCapacity)
	}

	r := gin.New()
	r.Use(gin.Recovery(), RequestLogger(log))
	if opts.CORSOrigin != "" {
		r.Use(CORS(opts.CORSOrigin))
	}

	r.GET("/health", h.Health)
	r.GET("/api/model", h.Model)
	r.POST("/api/chat", RequireCredential(), RateLimit(limiter, log), h.Chat)
	return r
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"ok": true, "uptime": time.Since(h.started).Round(time.Second).String()})
}

func (h *Handler) Model(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"model": h.relay.DefaultModel()})
}

// Chat relays one conversation to the backend and streams the reply as
// server-sent events. Once the stream is committed, backend failures are
// reported in-band as an error frame.
func (h *Handler) Chat(c *gin.Context) {
	var req internal.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug("invalid chat body", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": relay.ErrInvalidInput.Error()})
		return
	}

	session, err := h.relay.Open(c.Request.Context(), relay.Request{
		Messages:   req.Messages,
		Model:      req.Model,
		Credential: c.GetString(credentialKey),
	})
	switch {
	case errors.Is(err, relay.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	case errors.Is(err, relay.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		h.log.Error("open relay session", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	h.log.Info("processing chat request",
		zap.String("session", session.ID),
		zap.String("model", session.Model()),
		zap.Int("messages", len(req.Messages)))

	start := time.Now()
	sum := relay.Pump(c.Writer, session, h.log)
	h.log.Info("chat stream closed",
		zap.String("session", session.ID),
		zap.String("reason", session.Reason()),
		zap.Int("frames", sum.Frames),
		zap.Int("bytes", sum.Bytes),
		zap.String("error", sum.Error),
		zap.Duration("duration", time.Since(start)))
}
