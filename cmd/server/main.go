package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal/chat"
	"chat-relay/internal/config"
	"chat-relay/internal/identity"
	myMiddleware "chat-relay/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/redis/go-redis/v9"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Config & Flags
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	addr := flag.String("addr", cfg.Addr, "http service address")
	flag.Parse()

	log := logs.GetLoggerFromString(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Identity (resume tokens)
	secret := cfg.ResumeSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("RESUME_SECRET is not set, resume tokens will not survive a restart")
	}
	identities := identity.NewService(secret, cfg.ResumeTokenTTL)

	// 3. Moderation
	censorChar, _ := cfg.CensorRune()
	moderator, err := chat.NewModerator(cfg.Words(), censorChar)
	if err != nil {
		return fmt.Errorf("moderation setup failed: %w", err)
	}

	// 4. Engine
	engine := chat.NewEngine(log, chat.Options{
		HistorySize:      cfg.HistorySize,
		ReceiptCapacity:  cfg.ReceiptCapacity,
		OfflineRetention: cfg.OfflineRetention,
		MaxImageChars:    cfg.MaxImageChars,
		Moderator:        moderator,
		Tokens:           identities,
	})

	// 5. Optional Redis mirror (Platform Layer)
	var mirror chat.Mirror
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr: cfg.RedisAddr,
		})
		defer func() { _ = redisClient.Close() }()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		log.Info("✅ Connected to Redis", "addr", cfg.RedisAddr)

		redisMirror := chat.NewRedisMirror(log, redisClient, cfg.RedisChannelPrefix, cfg.MirrorBuffer)
		go redisMirror.Run(ctx)
		mirror = redisMirror
	}

	// 6. Start the Hub engine
	dispatcher := chat.NewDispatcher(log, engine.Registry(), mirror)
	hub := chat.NewHub(log, engine, dispatcher, cfg.PruneInterval)
	go hub.Run(ctx)

	// 7. Define Routes
	chatHandler := chat.NewHandler(hub, log, cfg.MaxImageChars, cfg.SendBuffer)
	identityMiddleware := myMiddleware.NewIdentityMiddleware(identities, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	chatHandler.Routes(r, identityMiddleware.Handle)

	server := &http.Server{
		Addr:              *addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("🚀 Server starting", "addr", *addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	<-hub.Done()
	log.Info("Program stopped cleanly")
	return nil
}
