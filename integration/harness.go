package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apirest "github.com/friendzone/friendzone-server/api/rest"
	"github.com/friendzone/friendzone-server/api/sse"
	apows "github.com/friendzone/friendzone-server/api/ws"
	"github.com/friendzone/friendzone-server/audit"
	"github.com/friendzone/friendzone-server/cache"
	"github.com/friendzone/friendzone-server/chat"
	"github.com/friendzone/friendzone-server/config"
	mw "github.com/friendzone/friendzone-server/middleware"
	"github.com/friendzone/friendzone-server/social"
	"github.com/friendzone/friendzone-server/testutil"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// TestServer wraps a real HTTP server with all subsystems wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Chat   *chat.Service
	Social *social.Service
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
	WSURL  string // ws://127.0.0.1:<port>
	Sec    config.SecurityConfig
}

// NewTestServer creates a fully wired server for integration testing.
// It mirrors the dependency wiring in main.go.
func NewTestServer(t *testing.T) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	sec := config.SecurityConfig{
		JWTSecret:      "integration-test-secret",
		JWTTTLH:        72 * time.Hour,
		RateLimitRPS:   1000,
		RateLimitBurst: 2000,
		AllowedOrigins: []string{}, // allow all origins
	}
	chatCfg := config.ChatConfig{
		MaxAttachmentBytes: 10 * 1024 * 1024,
		HistoryCacheSize:   50,
	}

	auditSvc := audit.New(db, logger)
	t.Cleanup(func() { auditSvc.Stop(nil) })

	socialSvc := social.NewService(db, logger)
	chatSvc := chat.NewService(db, c, pubsub, chatCfg, logger)

	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(sec.RateLimitRPS), sec.RateLimitBurst))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	authH := apirest.NewAuthHandler(db, c, sec, auditSvc)
	userH := apirest.NewUserHandler(db)
	friendH := apirest.NewFriendHandler(socialSvc, auditSvc)
	chatH := apirest.NewChatHandler(chatSvc)

	api := r.Group("/api")
	{
		usersG := api.Group("/users")
		usersG.POST("/signup", authH.Signup)
		usersG.POST("/login", authH.Login)
		usersG.POST("/validate-token", authH.ValidateToken)
		usersG.POST("/logout", authH.Logout)
		usersG.GET("/search", mw.Auth(sec, c), userH.Search)
		usersG.GET("/:id", mw.Auth(sec, c), userH.Get)

		friendsG := api.Group("/friends")
		friendsG.Use(mw.Auth(sec, c))
		friendsG.GET("", friendH.List)
		friendsG.GET("/requests", friendH.ListRequests)
		friendsG.POST("/requests", friendH.SendRequest)
		friendsG.POST("/requests/:id/respond", friendH.Respond)
		friendsG.DELETE("/:id", friendH.Remove)
		friendsG.GET("/status/:id", friendH.Status)

		chatsG := api.Group("/chats")
		chatsG.Use(mw.Auth(sec, c))
		chatsG.POST("", chatH.Open)
		chatsG.GET("", chatH.List)
		chatsG.GET("/:id/messages", chatH.ListMessages)
		chatsG.POST("/:id/messages", chatH.Send)

		api.POST("/messages/:id/read", mw.Auth(sec, c), chatH.MarkRead)
	}

	sseH := sse.NewHandler(chatSvc, c, sec, logger)
	r.GET("/sse/chats/:id", sseH.ServeChat)

	wsH := apows.NewHandler(chatSvc, c, sec, logger)
	r.GET("/ws/chats/:id", wsH.ServeChat)

	server := httptest.NewServer(r)
	url := server.URL
	wsURL := "ws" + url[len("http"):]

	return &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Chat:   chatSvc,
		Social: socialSvc,
		Server: server,
		URL:    url,
		WSURL:  wsURL,
		Sec:    sec,
	}
}

// Close shuts down the test server.
func (ts *TestServer) Close() {
	ts.Server.Close()
}

// --- HTTP helpers ---

// PostJSON sends a POST request with JSON body and optional Bearer token.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest("POST", ts.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Get sends a GET request with optional Bearer token.
func (ts *TestServer) Get(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("GET", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// Delete sends a DELETE request with optional Bearer token.
func (ts *TestServer) Delete(t *testing.T, path string, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest("DELETE", ts.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// ReadJSON reads and decodes a JSON response body into the given target.
func ReadJSON(t *testing.T, resp *http.Response, target interface{}) {
	t.Helper()
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, target), "body: %s", string(data))
}

// --- Account helpers ---

// Signup registers a user and returns the token and user ID.
func (ts *TestServer) Signup(t *testing.T, username string) (token string, userID int64) {
	t.Helper()
	resp := ts.PostJSON(t, "/api/users/signup", map[string]string{
		"username": username,
		"password": username + "pass",
		"fullName": "User " + username,
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	token = result["token"].(string)
	userID = int64(result["userId"].(float64))
	return
}

// OpenChat gets or creates the chat with otherID and returns the chat ID.
func (ts *TestServer) OpenChat(t *testing.T, token string, otherID int64) int64 {
	t.Helper()
	resp := ts.PostJSON(t, "/api/chats", map[string]int64{"userId": otherID}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var result map[string]interface{}
	ReadJSON(t, resp, &result)
	ch := result["chat"].(map[string]interface{})
	return int64(ch["user_chat_id"].(float64))
}

// --- WebSocket client ---

// WSClient wraps a gorilla/websocket connection for integration testing.
type WSClient struct {
	Conn   *websocket.Conn
	t      *testing.T
	readCh chan readResult
}

type readResult struct {
	data []byte
	err  error
}

// ConnectChatWS dials the per-chat WS endpoint with the given JWT token.
func (ts *TestServer) ConnectChatWS(t *testing.T, token string, chatID int64) *WSClient {
	t.Helper()
	url := fmt.Sprintf("%s/ws/chats/%d?token=%s", ts.WSURL, chatID, token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	require.NoError(t, err, "WS dial failed")
	wc := &WSClient{Conn: conn, t: t, readCh: make(chan readResult, 256)}
	go wc.readLoop()
	return wc
}

func (wc *WSClient) readLoop() {
	for {
		_, data, err := wc.Conn.ReadMessage()
		wc.readCh <- readResult{data, err}
		if err != nil {
			return
		}
	}
}

// Recv reads one JSON frame from the WebSocket with a timeout.
func (wc *WSClient) Recv(timeout time.Duration) map[string]interface{} {
	wc.t.Helper()
	select {
	case res := <-wc.readCh:
		require.NoError(wc.t, res.err, "WS read failed")
		var msg map[string]interface{}
		require.NoError(wc.t, json.Unmarshal(res.data, &msg), "frame: %s", string(res.data))
		return msg
	case <-time.After(timeout):
		wc.t.Fatal("timed out waiting for WS frame")
		return nil
	}
}

// Close closes the WebSocket connection.
func (wc *WSClient) Close() {
	_ = wc.Conn.Close()
}

// UniqueID returns a short unique string suitable for usernames.
var testCounter uint64

func UniqueID(prefix string) string {
	n := atomic.AddUint64(&testCounter, 1)
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano()%100000, n)
}
