package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DaryoAI/middleware"
	"DaryoAI/pkg/cache"
	"DaryoAI/pkg/catalog"
	"DaryoAI/pkg/config"
	"DaryoAI/pkg/database"
	"DaryoAI/pkg/llm"
	"DaryoAI/pkg/logger"
	"DaryoAI/pkg/prompt"
	"DaryoAI/pkg/selector"
	"DaryoAI/pkg/services"
	"DaryoAI/pkg/session"
	"DaryoAI/pkg/usage"
	"DaryoAI/routes"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("config: %v", err)
	}
	zl, err := logger.New(config.IsProduction)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()
	config.LogSummary(zl)

	db, err := database.Connect(database.Config{Driver: config.DBDriver, DSN: config.DBDSN, Verbose: config.IsStaging}, true)
	if err != nil {
		zl.Fatal("failed to connect database", zap.Error(err))
	}
	ctx := context.Background()
	if err := database.SeedUsageLimits(ctx, db, config.DefaultDailyLimit, config.MuhbirDailyLimit); err != nil {
		zl.Fatal("failed to seed usage limits", zap.Error(err))
	}

	bgCtx, stopBackground := context.WithCancel(ctx)
	defer stopBackground()

	var store cache.Store
	if config.RedisURL != "" {
		rs, err := cache.ConnectRedis(ctx, config.RedisURL, "daryoai:")
		if err != nil {
			zl.Warn("redis unavailable, using in-memory catalog cache", zap.Error(err))
		} else {
			defer rs.Close()
			store = rs
		}
	}
	if store == nil {
		mem := cache.NewMemoryStore(config.CatalogCacheMaxItems)
		go mem.Janitor(bgCtx, time.Minute)
		store = mem
	}
	cat := catalog.New(db, store, time.Duration(config.CatalogCacheTTLSeconds)*time.Second, zl)

	completer, err := llm.New(llm.Config{
		Provider:        config.LLMProvider,
		APIKey:          config.LLMAPIKey,
		Model:           config.LLMModel,
		BaseURL:         config.LLMBaseURL,
		Temperature:     config.LLMTemperature,
		MaxOutputTokens: config.LLMMaxOutputTokens,
		Timeout:         time.Duration(config.LLMTimeoutSeconds) * time.Second,
	}, zl)
	if err != nil {
		zl.Fatal("failed to configure completion provider", zap.Error(err))
	}

	prompts := prompt.Default()
	if config.PromptsFile != "" {
		if prompts, err = prompt.LoadFile(config.PromptsFile); err != nil {
			zl.Fatal("failed to load prompts", zap.String("file", config.PromptsFile), zap.Error(err))
		}
	}
	assembler := prompt.NewAssembler(prompts, config.HistoryAllowed)

	sessions := session.NewStore(db, config.MaxClients, zl)
	limiter := usage.NewLimiter(db, config.Location)
	chat := services.NewChatService(
		sessions,
		limiter,
		selector.NewModelSelector(cat, completer, assembler, zl),
		assembler,
		completer,
		zl,
	)

	middleware.SetRateLimitConfig(
		time.Duration(config.RateLimitWindowSeconds)*time.Second,
		config.RateLimitCapacity,
		config.UserConcurrencyLimit,
	)
	middleware.SetDuplicateTTL(time.Duration(config.DuplicateWindowSeconds) * time.Second)

	if config.IsProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(zl))
	r.Use(cors.New(cors.Config{
		AllowOrigins:     config.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Requested-With", middleware.APIKeyHeader},
		ExposeHeaders:    []string{"Content-Length", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	routes.RegisterRoutes(r, routes.Deps{
		DB:          db,
		Chat:        chat,
		Sessions:    sessions,
		Limiter:     limiter,
		Catalog:     cat,
		Ingester:    services.NewIngester(db, cat, zl),
		Log:         zl,
		AdminPrefix: config.AdminPathPrefix,
	})

	srv := &http.Server{
		Addr:    ":" + config.Port,
		Handler: r,
	}
	go func() {
		zl.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zl.Info("shutting down server...")
	stopBackground()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("forced shutdown", zap.Error(err))
	}
	zl.Info("server exited")
}

func requestLogger(zl *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		zl.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		)
	}
}
