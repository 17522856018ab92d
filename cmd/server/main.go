package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"chat-realtime/internal/auth"
	"chat-realtime/internal/config"
	"chat-realtime/internal/database"
	"chat-realtime/internal/handlers"
	"chat-realtime/internal/registry"
	"chat-realtime/internal/services"
	"chat-realtime/internal/websocket"
	"chat-realtime/pkg/logger"

	"golang.org/x/sync/errgroup"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.JSON)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize database
	pg, err := database.NewPostgresDB(ctx, cfg.Database.URL)
	if err != nil {
		logger.Fatal("Failed to connect to database: %v", err)
	}
	defer pg.Close()

	if cfg.Database.Migrate {
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("Failed to migrate database: %v", err)
		}
	}

	var db database.Database = pg
	if cfg.Redis.Addr != "" {
		store, closeStore, err := database.NewRedisStore(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("Failed to connect to redis: %v", err)
		}
		defer closeStore()
		db = database.NewCachedDatabase(pg, store, cfg.Redis.TTL)
		logger.Info("Membership cache enabled at %s (ttl %s)", cfg.Redis.Addr, cfg.Redis.TTL)
	}

	// Initialize services
	reg := registry.New()
	authService := auth.NewService(db, cfg)
	groupService := services.NewGroupService(db, reg, cfg.Server.HistoryLimit)
	directService := services.NewDirectService(db, reg, cfg.Server.HistoryLimit)
	presenceService := services.NewPresenceService(reg, groupService)
	typingService := services.NewTypingService(reg)

	hub := websocket.NewHub(reg, presenceService, directService, groupService, typingService, cfg.WebSocket)

	// Initialize handlers
	handler := handlers.SetupRoutes(
		handlers.NewAuthHandlers(authService),
		handlers.NewGroupHandlers(groupService, authService),
		handlers.NewMessageHandlers(directService, presenceService, authService),
		handlers.NewWebSocketHandlers(authService, hub),
	)

	server := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("🚀 Server started on http://localhost%s", cfg.Server.Port)
		logger.Info("📡 WebSocket endpoint: ws://localhost%s/ws", cfg.Server.Port)
		printAPIEndpoints()

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Server shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// hijacked websocket connections are not tracked by the server
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown error: %v", err)
		}
		return hub.Shutdown(cfg.Server.ShutdownTimeout)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("Exited with error: %v", err)
	}
	logger.Info("Server stopped")
}

func printAPIEndpoints() {
	logger.Info("🔗 API endpoints:")
	logger.Info("   POST   /register")
	logger.Info("   POST   /login")
	logger.Info("   GET    /ws?token=...")
	logger.Info("   GET    /users/online")
	logger.Info("   GET    /messages/{peerID}")
	logger.Info("   GET    /groups")
	logger.Info("   POST   /groups")
	logger.Info("   GET    /groups/{id}/members")
	logger.Info("   POST   /groups/{id}/members")
	logger.Info("   DELETE /groups/{id}/members/{userID}")
	logger.Info("   POST   /groups/{id}/admins/{userID}")
	logger.Info("   DELETE /groups/{id}/admins/{userID}")
	logger.Info("   GET    /groups/{id}/messages")
}
