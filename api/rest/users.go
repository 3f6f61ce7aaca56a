package rest

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/friendzone/friendzone-server/model"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// UserHandler serves public profile lookup and search.
type UserHandler struct {
	db *gorm.DB
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(gdb *gorm.DB) *UserHandler {
	return &UserHandler{db: gdb}
}

const searchLimit = 10

// Search handles GET /api/users/search?q=. Case-insensitive substring
// match on username or full name, capped at 10 results.
func (h *UserHandler) Search(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing query"})
		return
	}

	pattern := "%" + strings.ToLower(q) + "%"
	var users []model.User
	err := h.db.
		Where("LOWER(username) LIKE ? OR LOWER(full_name) LIKE ?", pattern, pattern).
		Order("username").
		Limit(searchLimit).
		Find(&users).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	profiles := make([]model.Profile, len(users))
	for i := range users {
		profiles[i] = users[i].PublicProfile()
	}
	c.JSON(http.StatusOK, gin.H{"users": profiles})
}

// Get handles GET /api/users/:id.
func (h *UserHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var user model.User
	if err := h.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "user not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user.PublicProfile()})
}
