package sse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/friendzone/friendzone-server/cache"
	"github.com/friendzone/friendzone-server/chat"
	"github.com/friendzone/friendzone-server/config"
	mw "github.com/friendzone/friendzone-server/middleware"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler streams a chat's messages as server-sent events.
type Handler struct {
	svc    *chat.Service
	c      cache.Cache
	sec    config.SecurityConfig
	logger *zap.Logger
}

// NewHandler creates a new SSE Handler.
func NewHandler(svc *chat.Service, c cache.Cache, sec config.SecurityConfig, logger *zap.Logger) *Handler {
	return &Handler{svc: svc, c: c, sec: sec, logger: logger}
}

// ServeChat handles GET /sse/chats/:id?token=<jwt>.
// EventSource cannot set headers, so the token travels as a query param.
// It first replays recent history, then streams every message inserted
// into the chat, in insertion order, until the client disconnects.
func (h *Handler) ServeChat(c *gin.Context) {
	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}

	userID, ok := h.authenticate(c)
	if !ok {
		return
	}

	subCtx, subCancel := context.WithCancel(c.Request.Context())
	defer subCancel()

	msgCh, unsub, err := h.svc.Subscribe(subCtx, chatID, userID)
	if err != nil {
		if errors.Is(err, chat.ErrChatNotFound) || errors.Is(err, chat.ErrNotParticipant) {
			c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
			return
		}
		h.logger.Error("sse subscribe failed", zap.Error(err))
		c.Status(http.StatusInternalServerError)
		return
	}
	defer unsub()

	// Set SSE headers.
	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	// Send initial connected event, then replay recent history.
	fmt.Fprintf(c.Writer, "event: connected\ndata: {}\n\n")
	history, err := h.svc.RecentHistory(subCtx, chatID, 50)
	if err == nil {
		for _, payload := range history {
			fmt.Fprintf(c.Writer, "event: history\ndata: %s\n\n", payload)
		}
	}
	c.Writer.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-msgCh:
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(c.Writer, "event: message\ndata: %s\n\n", data)
			c.Writer.Flush()

		case <-ticker.C:
			// Keepalive comment to prevent proxy timeouts.
			fmt.Fprintf(c.Writer, ": keepalive\n\n")
			c.Writer.Flush()

		case <-c.Request.Context().Done():
			return
		}
	}
}

// authenticate validates the query token and its session, returning the
// caller's user ID.
func (h *Handler) authenticate(c *gin.Context) (int64, bool) {
	tokenStr := c.Query("token")
	if tokenStr == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return 0, false
	}

	claims, err := mw.ParseToken(tokenStr, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return 0, false
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.c.Exists(ctx, mw.SessionKeyPrefix+tokenStr)
	if err != nil || !exists {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "session expired"})
		return 0, false
	}
	return claims.UserID, true
}
