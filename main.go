package main

import (
	"fmt"
	"log"
	"os"

	apirest "github.com/friendzone/friendzone-server/api/rest"
	"github.com/friendzone/friendzone-server/api/sse"
	apows "github.com/friendzone/friendzone-server/api/ws"
	"github.com/friendzone/friendzone-server/audit"
	"github.com/friendzone/friendzone-server/cache"
	"github.com/friendzone/friendzone-server/chat"
	"github.com/friendzone/friendzone-server/config"
	dbadapter "github.com/friendzone/friendzone-server/db"
	mw "github.com/friendzone/friendzone-server/middleware"
	"github.com/friendzone/friendzone-server/model"
	"github.com/friendzone/friendzone-server/social"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	if cfg.Security.JWTSecret == "" {
		log.Fatal("security.jwt_secret must be set")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized")

	// ---- Audit ----
	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(nil)

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized")

	// ---- Services ----
	socialSvc := social.NewService(db, logger)
	chatSvc := chat.NewService(db, c, pubsub, cfg.Chat, logger)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(db, c, cfg.Security, auditSvc)
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
		usersG.GET("/search", mw.Auth(cfg.Security, c), userH.Search)
		usersG.GET("/:id", mw.Auth(cfg.Security, c), userH.Get)

		friendsG := api.Group("/friends")
		friendsG.Use(mw.Auth(cfg.Security, c))
		friendsG.GET("", friendH.List)
		friendsG.GET("/requests", friendH.ListRequests)
		friendsG.POST("/requests", friendH.SendRequest)
		friendsG.POST("/requests/:id/respond", friendH.Respond)
		friendsG.DELETE("/:id", friendH.Remove)
		friendsG.GET("/status/:id", friendH.Status)

		chatsG := api.Group("/chats")
		chatsG.Use(mw.Auth(cfg.Security, c))
		chatsG.POST("", chatH.Open)
		chatsG.GET("", chatH.List)
		chatsG.GET("/:id/messages", chatH.ListMessages)
		chatsG.POST("/:id/messages", chatH.Send)

		api.POST("/messages/:id/read", mw.Auth(cfg.Security, c), chatH.MarkRead)
	}

	// ---- Realtime streams ----
	sseH := sse.NewHandler(chatSvc, c, cfg.Security, logger)
	r.GET("/sse/chats/:id", sseH.ServeChat)

	wsH := apows.NewHandler(chatSvc, c, cfg.Security, logger)
	r.GET("/ws/chats/:id", wsH.ServeChat)

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	logger.Info("Server listening", zap.String("addr", addr))
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
