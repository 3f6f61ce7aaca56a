package rest_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/friendzone/friendzone-server/api/rest"
	"github.com/friendzone/friendzone-server/audit"
	"github.com/friendzone/friendzone-server/chat"
	"github.com/friendzone/friendzone-server/config"
	mw "github.com/friendzone/friendzone-server/middleware"
	"github.com/friendzone/friendzone-server/social"
	"github.com/friendzone/friendzone-server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testSecurity = config.SecurityConfig{
	JWTSecret: "test-secret",
	JWTTTLH:   time.Hour,
}

// newTestServer wires the full REST surface against in-memory storage,
// mirroring the production route table.
func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, ps := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })

	socialSvc := social.NewService(db, logger)
	chatSvc := chat.NewService(db, c, ps, config.ChatConfig{}, logger)

	authH := rest.NewAuthHandler(db, c, testSecurity, auditSvc)
	userH := rest.NewUserHandler(db)
	friendH := rest.NewFriendHandler(socialSvc, auditSvc)
	chatH := rest.NewChatHandler(chatSvc)

	r := gin.New()
	api := r.Group("/api")
	{
		usersG := api.Group("/users")
		usersG.POST("/signup", authH.Signup)
		usersG.POST("/login", authH.Login)
		usersG.POST("/validate-token", authH.ValidateToken)
		usersG.POST("/logout", authH.Logout)
		usersG.GET("/search", mw.Auth(testSecurity, c), userH.Search)
		usersG.GET("/:id", mw.Auth(testSecurity, c), userH.Get)

		friendsG := api.Group("/friends")
		friendsG.Use(mw.Auth(testSecurity, c))
		friendsG.GET("", friendH.List)
		friendsG.GET("/requests", friendH.ListRequests)
		friendsG.POST("/requests", friendH.SendRequest)
		friendsG.POST("/requests/:id/respond", friendH.Respond)
		friendsG.DELETE("/:id", friendH.Remove)
		friendsG.GET("/status/:id", friendH.Status)

		chatsG := api.Group("/chats")
		chatsG.Use(mw.Auth(testSecurity, c))
		chatsG.POST("", chatH.Open)
		chatsG.GET("", chatH.List)
		chatsG.GET("/:id/messages", chatH.ListMessages)
		chatsG.POST("/:id/messages", chatH.Send)

		api.POST("/messages/:id/read", mw.Auth(testSecurity, c), chatH.MarkRead)
	}
	return r
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), "body: %s", w.Body.String())
	return out
}

// signup registers a user and returns their token and user ID.
func signup(t *testing.T, r *gin.Engine, username string) (token string, userID int64) {
	t.Helper()
	w := doJSON(t, r, http.MethodPost, "/api/users/signup", "", gin.H{
		"username": username,
		"password": "hunter22",
		"fullName": "User " + username,
	})
	require.Equal(t, http.StatusCreated, w.Code, "signup %s: %s", username, w.Body.String())
	body := decode(t, w)
	return body["token"].(string), int64(body["userId"].(float64))
}
