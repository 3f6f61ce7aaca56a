package rest

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/friendzone/friendzone-server/audit"
	"github.com/friendzone/friendzone-server/cache"
	"github.com/friendzone/friendzone-server/config"
	"github.com/friendzone/friendzone-server/db"
	mw "github.com/friendzone/friendzone-server/middleware"
	"github.com/friendzone/friendzone-server/model"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AuthHandler handles the identity and session endpoints under /api/users.
type AuthHandler struct {
	db    *gorm.DB
	cache cache.Cache
	sec   config.SecurityConfig
	audit *audit.Service
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(gdb *gorm.DB, c cache.Cache, sec config.SecurityConfig, auditSvc *audit.Service) *AuthHandler {
	return &AuthHandler{db: gdb, cache: c, sec: sec, audit: auditSvc}
}

type signupRequest struct {
	Username  string `json:"username" binding:"required,min=2,max=32"`
	Password  string `json:"password" binding:"required,min=4,max=64"`
	FullName  string `json:"fullName" binding:"required,min=1,max=64"`
	UserImage string `json:"userImage"`
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type tokenRequest struct {
	Token string `json:"token" binding:"required"`
}

// sessionResponse is the body returned by signup and login.
type sessionResponse struct {
	Token     string `json:"token"`
	UserID    int64  `json:"userId"`
	Username  string `json:"username"`
	FullName  string `json:"fullName"`
	SessionID string `json:"sessionId"`
	UserImage string `json:"userImage,omitempty"`
}

// Signup handles POST /api/users/signup.
func (h *AuthHandler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), 12)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	user := model.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		FullName:     req.FullName,
		UserImage:    req.UserImage,
	}
	if err := h.db.Create(&user).Error; err != nil {
		// Unique index on username: two concurrent signups race here, not
		// at an application-level existence check.
		if db.IsUniqueViolation(err) {
			c.JSON(http.StatusConflict, gin.H{"error": "username already taken"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed"})
		}
		return
	}

	resp, err := h.openSession(c, &user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	h.audit.Log(audit.Entry{
		TraceID: mw.GetTraceID(c),
		UserID:  &user.ID,
		Action:  "signup",
		Request: map[string]string{"username": req.Username},
		IP:      c.ClientIP(),
	})
	c.JSON(http.StatusCreated, resp)
}

// Login handles POST /api/users/login. The error body is identical for an
// unknown username and a wrong password.
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var user model.User
	err := h.db.Where("username = ?", req.Username).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}

	resp, err := h.openSession(c, &user)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token error"})
		return
	}
	h.audit.Log(audit.Entry{
		TraceID: mw.GetTraceID(c),
		UserID:  &user.ID,
		Action:  "login",
		Request: map[string]string{"username": req.Username},
		IP:      c.ClientIP(),
	})
	c.JSON(http.StatusOK, resp)
}

// ValidateToken handles POST /api/users/validate-token. A bad token is not
// an error: the response is 200 with valid=false. Only a cache outage is
// reported as a failure, so clients can tell "retry later" from "log in
// again".
func (h *AuthHandler) ValidateToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	claims, err := mw.ParseToken(req.Token, h.sec.JWTSecret)
	if err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	exists, err := h.cache.Exists(ctx, mw.SessionKeyPrefix+req.Token)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session store unavailable"})
		return
	}
	if !exists {
		c.JSON(http.StatusOK, gin.H{"valid": false})
		return
	}

	var user model.User
	if err := h.db.First(&user, claims.UserID).Error; err != nil {
		c.JSON(http.StatusOK, gin.H{"valid": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "user": user.PublicProfile()})
}

// Logout handles POST /api/users/logout. Logging out an already dead token
// succeeds.
func (h *AuthHandler) Logout(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	_ = h.cache.Del(ctx, mw.SessionKeyPrefix+req.Token)
	h.audit.Log(audit.Entry{
		TraceID: mw.GetTraceID(c),
		Action:  "logout",
		IP:      c.ClientIP(),
	})
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// openSession issues a JWT, registers it in the session cache, and builds
// the response body shared by signup and login.
func (h *AuthHandler) openSession(c *gin.Context, user *model.User) (*sessionResponse, error) {
	token, err := mw.GenerateToken(user.ID, h.sec.JWTSecret, h.sec.JWTTTLH)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.cache.Set(ctx, mw.SessionKeyPrefix+token, strconv.FormatInt(user.ID, 10), h.sec.JWTTTLH); err != nil {
		return nil, err
	}

	return &sessionResponse{
		Token:     token,
		UserID:    user.ID,
		Username:  user.Username,
		FullName:  user.FullName,
		SessionID: uuid.New().String(),
		UserImage: user.UserImage,
	}, nil
}
