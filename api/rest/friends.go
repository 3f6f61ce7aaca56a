package rest

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/friendzone/friendzone-server/audit"
	mw "github.com/friendzone/friendzone-server/middleware"
	"github.com/friendzone/friendzone-server/social"
	"github.com/gin-gonic/gin"
)

// FriendHandler exposes the friendship manager over REST.
type FriendHandler struct {
	svc   *social.Service
	audit *audit.Service
}

// NewFriendHandler creates a new FriendHandler.
func NewFriendHandler(svc *social.Service, auditSvc *audit.Service) *FriendHandler {
	return &FriendHandler{svc: svc, audit: auditSvc}
}

// List handles GET /api/friends.
func (h *FriendHandler) List(c *gin.Context) {
	userID := mw.GetUserID(c)
	friends, err := h.svc.ListFriends(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// ListRequests handles GET /api/friends/requests.
func (h *FriendHandler) ListRequests(c *gin.Context) {
	userID := mw.GetUserID(c)
	incoming, outgoing, err := h.svc.ListRequests(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"incoming": incoming, "outgoing": outgoing})
}

// SendRequest handles POST /api/friends/requests.
func (h *FriendHandler) SendRequest(c *gin.Context) {
	userID := mw.GetUserID(c)
	var body struct {
		ReceiverID int64 `json:"receiverId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.svc.SendRequest(c.Request.Context(), userID, body.ReceiverID)
	if err != nil {
		switch {
		case errors.Is(err, social.ErrSelfRequest):
			c.JSON(http.StatusConflict, gin.H{"error": "cannot befriend yourself"})
		case errors.Is(err, social.ErrDuplicateRequest):
			c.JSON(http.StatusConflict, gin.H{"error": "a request already exists"})
		case errors.Is(err, social.ErrUserNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	h.audit.Log(audit.Entry{
		TraceID:  mw.GetTraceID(c),
		UserID:   &userID,
		Action:   "friend_request_send",
		Request:  body,
		Response: gin.H{"request_id": req.ID},
		IP:       c.ClientIP(),
	})
	c.JSON(http.StatusCreated, gin.H{"request": req})
}

// Respond handles POST /api/friends/requests/:id/respond.
func (h *FriendHandler) Respond(c *gin.Context) {
	userID := mw.GetUserID(c)
	reqID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var body struct {
		Approve *bool `json:"approve" binding:"required"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	req, err := h.svc.Respond(c.Request.Context(), reqID, userID, *body.Approve)
	if err != nil {
		switch {
		case errors.Is(err, social.ErrRequestNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "request not found"})
		case errors.Is(err, social.ErrAlreadyResolved):
			c.JSON(http.StatusConflict, gin.H{"error": "request already resolved"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		}
		return
	}
	h.audit.Log(audit.Entry{
		TraceID:  mw.GetTraceID(c),
		UserID:   &userID,
		Action:   "friend_request_respond",
		Request:  gin.H{"request_id": reqID, "approve": *body.Approve},
		IP:       c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"request": req})
}

// Remove handles DELETE /api/friends/:id. The id is the other user;
// removing an absent relationship still succeeds.
func (h *FriendHandler) Remove(c *gin.Context) {
	userID := mw.GetUserID(c)
	otherID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if err := h.svc.Remove(c.Request.Context(), userID, otherID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	h.audit.Log(audit.Entry{
		TraceID: mw.GetTraceID(c),
		UserID:  &userID,
		Action:  "friend_remove",
		Request: gin.H{"other_id": otherID},
		IP:      c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"message": "removed"})
}

// Status handles GET /api/friends/status/:id.
func (h *FriendHandler) Status(c *gin.Context) {
	userID := mw.GetUserID(c)
	otherID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	status, req, err := h.svc.Status(c.Request.Context(), userID, otherID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	resp := gin.H{"status": status}
	if req != nil {
		resp["requestId"] = req.ID
	}
	c.JSON(http.StatusOK, resp)
}
