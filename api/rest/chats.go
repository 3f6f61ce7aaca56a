package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/friendzone/friendzone-server/chat"
	mw "github.com/friendzone/friendzone-server/middleware"
	"github.com/friendzone/friendzone-server/model"
	"github.com/gin-gonic/gin"
)

// ChatHandler exposes the conversation manager over REST.
type ChatHandler struct {
	svc *chat.Service
}

// NewChatHandler creates a new ChatHandler.
func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{svc: svc}
}

// Open handles POST /api/chats: get-or-create the chat with another user.
func (h *ChatHandler) Open(c *gin.Context) {
	userID := mw.GetUserID(c)
	var body struct {
		UserID int64 `json:"userId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, err := h.svc.GetOrCreate(c.Request.Context(), userID, body.UserID)
	if err != nil {
		if errors.Is(err, chat.ErrSelfChat) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "cannot chat with yourself"})
		} else if errors.Is(err, chat.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"chat": ch})
}

// List handles GET /api/chats.
func (h *ChatHandler) List(c *gin.Context) {
	userID := mw.GetUserID(c)
	chats, err := h.svc.ListChats(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"chats": chats})
}

// ListMessages handles GET /api/chats/:id/messages. Returns the whole
// history in creation order.
func (h *ChatHandler) ListMessages(c *gin.Context) {
	userID := mw.GetUserID(c)
	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	msgs, err := h.svc.ListMessages(c.Request.Context(), chatID, userID)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// Send handles POST /api/chats/:id/messages.
func (h *ChatHandler) Send(c *gin.Context) {
	userID := mw.GetUserID(c)
	chatID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body struct {
		Text        string             `json:"text"`
		Attachments []model.Attachment `json:"attachments"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.svc.Send(c.Request.Context(), chatID, userID, body.Text, body.Attachments)
	if err != nil {
		h.writeChatError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

// MarkRead handles POST /api/messages/:id/read.
func (h *ChatHandler) MarkRead(c *gin.Context) {
	userID := mw.GetUserID(c)
	msgID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.svc.MarkRead(c.Request.Context(), msgID, userID); err != nil {
		h.writeChatError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked read"})
}

func (h *ChatHandler) writeChatError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, chat.ErrChatNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, chat.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
	case errors.Is(err, chat.ErrNotParticipant):
		// Hide the chat's existence from non-participants.
		c.JSON(http.StatusNotFound, gin.H{"error": "chat not found"})
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrAttachmentType),
		errors.Is(err, chat.ErrAttachmentSize):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
