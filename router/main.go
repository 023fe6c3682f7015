package router

import (
	"log"
	"os"
	"time"

	"github.com/advisorop/advisorop-api/config"
	"github.com/advisorop/advisorop-api/database"
	"github.com/advisorop/advisorop-api/handlers"
	auth_handlers "github.com/advisorop/advisorop-api/handlers/auth"
	chat_handlers "github.com/advisorop/advisorop-api/handlers/chat"
	"github.com/advisorop/advisorop-api/services"
	"github.com/advisorop/advisorop-api/services/openai"
	"github.com/advisorop/advisorop-api/utils/auth"
	"github.com/advisorop/advisorop-api/utils/cache"
	"github.com/advisorop/advisorop-api/utils/middleware"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

func SetupRoutes(app *fiber.App, store database.Storage, retention *services.RetentionPolicy) {
	getEnv, err := config.Get()
	if err != nil {
		log.Fatal("Failed to load environment configuration")
	}

	jwtSecret := getEnv.JWT_SECRET
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET environment variable is not set")
	}

	jwtIssuer := getEnv.JWT_ISSUER
	if jwtIssuer == "" {
		jwtIssuer = "advisorop-api"
	}

	jwtConfig := auth.JWTConfig{
		Secret:        jwtSecret,
		Expiry:        24 * time.Hour,     // Access token expires in 24 hours
		RefreshExpiry: 7 * 24 * time.Hour, // Refresh token expires in 7 days
		Issuer:        jwtIssuer,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)

	// Get DB instance (type assert from interface)
	db, ok := store.GetDB().(*gorm.DB)
	if !ok {
		log.Fatal("Failed to get GORM DB instance")
	}

	redisURL := getEnv.REDIS_URL
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	redisCache, err := cache.NewRedisCache(redisURL)
	if err != nil {
		log.Printf("Warning: Failed to connect to Redis: %v. Brute force protection and profile caching will be disabled.", err)
		redisCache = nil
	}

	var bruteForceProtection *middleware.BruteForceProtection
	if redisCache != nil {
		bruteForceProtection = middleware.NewBruteForceProtection(redisCache)
	}

	authMiddleware := middleware.NewAuthMiddleware(jwtManager, db)

	authHandler := auth_handlers.NewAuthHandler(db, jwtManager, bruteForceProtection)

	// Completion gateway
	gateway, err := openai.NewClient(getEnv.OPENAI_API_KEY, os.Getenv("OPENAI_BASE_URL"))
	if err != nil {
		log.Fatal("Failed to initialize completion gateway: ", err)
	}

	profileService := services.NewAIConfigService(db, redisCache)

	chatService := services.NewChatService(db, gateway, profileService, retention)
	chatService.SetGatewayTimeout(getEnv.GATEWAY_TIMEOUT)
	chatHandler := chat_handlers.NewChatHandler(db, chatService)

	// Apply security middleware
	allowedOrigins := os.Getenv("ALLOWED_ORIGINS")
	if allowedOrigins == "" {
		allowedOrigins = "http://localhost:3000,http://localhost:3001"
	}

	middleware.SetupSecurity(app, middleware.SecurityConfig{
		AllowedOrigins:    allowedOrigins,
		RateLimitRequests: 100,             // 100 requests
		RateLimitWindow:   1 * time.Minute, // per minute
	})

	// Health check endpoint (public)
	app.Get("/ping", func(c *fiber.Ctx) error {
		return handlers.HandleCheckHealth(c, store)
	})

	// API v1 group
	api := app.Group("/api/v1")

	// Auth routes (public)
	authGroup := api.Group("/auth")
	authGroup.Post("/register", authHandler.Register)

	// Login with brute force protection
	if bruteForceProtection != nil {
		authGroup.Post("/login", bruteForceProtection.CheckAndRecordAttempt(), authHandler.Login)
	} else {
		authGroup.Post("/login", authHandler.Login)
	}

	authGroup.Post("/refresh", authHandler.Refresh)
	authGroup.Get("/me", authMiddleware.Required(), authHandler.Me)

	// Chat routes; authentication is optional so anonymous sessions work,
	// but an authenticated caller becomes the session owner
	chatGroup := api.Group("/chat", authMiddleware.Optional())
	chatGroup.Post("/", chatHandler.SendMessage)
	chatGroup.Get("/", chatHandler.GetChat)
	chatGroup.Post("/new", chatHandler.NewSession)
	chatGroup.Get("/history", authMiddleware.Required(), chatHandler.ListSessions)
	chatGroup.Post("/archive/:session_key", chatHandler.Archive)
	chatGroup.Get("/stats/:session_key", chatHandler.Stats)
}
