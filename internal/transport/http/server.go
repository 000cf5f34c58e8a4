package http

import (
	"time"

	"github.com/gin-gonic/gin"

	appsvc "missionchat/internal/app"
	"missionchat/internal/bootstrap"
	"missionchat/internal/cache"
	"missionchat/internal/engine"
	"missionchat/internal/platform/rabbitmq"
	"missionchat/internal/repository"
	"missionchat/internal/transport/http/handler"
	"missionchat/internal/transport/http/middleware"
)

func NewRouter(app *bootstrap.App) *gin.Engine {
	gin.SetMode(app.Config.App.GinMode)
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	healthHandler := handler.NewHealthHandler(app)
	router.GET("/healthz", healthHandler.Check)

	userRepo := repository.NewUserRepository(app.MySQL)
	messageRepo := repository.NewMessageRepository(app.MySQL)
	publisher := rabbitmq.NewMessagePublisher(app.MQConn, app.Config.RabbitMQ.MessagePersistQueue)
	historyCache := cache.NewHistoryCache(
		app.Redis,
		time.Duration(app.Config.Redis.HistoryTTLSeconds)*time.Second,
		time.Duration(app.Config.Redis.HistoryDirtyTTLSeconds)*time.Second,
	)
	queryEngine := engine.NewClient(engine.Config{
		BaseURL: app.Config.Engine.BaseURL,
		APIKey:  app.Config.Engine.APIKey,
		Timeout: time.Duration(app.Config.Engine.TimeoutSeconds) * time.Second,
	})
	limiter := appsvc.NewRateLimiter(
		time.Duration(app.Config.Chat.RateWindowSeconds)*time.Second,
		app.Config.Chat.GuestRateLimit,
		app.Config.Chat.RegisteredLimit,
	)
	sessionManager := appsvc.NewSessionManager(time.Duration(app.Config.Chat.SessionTTLHours) * time.Hour)

	authService := appsvc.NewAuthService(
		userRepo,
		app.Config.Auth.JWTSecret,
		time.Duration(app.Config.Auth.JWTExpireMinute)*time.Minute,
	)
	chatService := appsvc.NewChatService(
		messageRepo,
		publisher,
		historyCache,
		queryEngine,
		limiter,
		app.Config.Chat.MaxSourceResults,
	)

	guestPolicy := appsvc.GuestHistoryPolicy(app.Config.Chat.GuestHistoryPolicy)
	authHandler := handler.NewAuthHandler(authService, chatService, sessionManager, guestPolicy)
	sessionHandler := handler.NewSessionHandler(sessionManager)
	chatHandler := handler.NewChatHandler(chatService, sessionManager, app.Config.Chat.CompactSourceLimit)

	jwtSecret := app.Config.Auth.JWTSecret
	v1 := router.Group("/api/v1")

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", authHandler.Register)
	authGroup.POST("/login", authHandler.Login)
	authGroup.GET("/me", middleware.AuthJWT(jwtSecret), authHandler.Me)
	authGroup.POST("/deactivate", middleware.AuthJWT(jwtSecret), authHandler.Deactivate)

	sessionGroup := v1.Group("/session")
	sessionGroup.POST("/guest", sessionHandler.StartGuest)
	sessionGroup.POST("/logout", sessionHandler.Logout)

	chatGroup := v1.Group("/chat")
	chatGroup.POST("/query", middleware.OptionalAuthJWT(jwtSecret), chatHandler.Query)
	chatGroup.GET("/history", middleware.AuthJWT(jwtSecret), chatHandler.Transcript)
	chatGroup.GET("/messages", middleware.AuthJWT(jwtSecret), chatHandler.UserHistory)
	chatGroup.GET("/sessions", middleware.AuthJWT(jwtSecret), chatHandler.Sessions)
	chatGroup.DELETE("/sessions/:id", middleware.AuthJWT(jwtSecret), chatHandler.DeleteSession)
	chatGroup.GET("/stats", middleware.AuthJWT(jwtSecret), chatHandler.Stats)
	chatGroup.GET("/export", middleware.AuthJWT(jwtSecret), chatHandler.Export)

	return router
}
