package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nestlinghq/nestling/internal/database"
	"github.com/nestlinghq/nestling/internal/email"
	"github.com/nestlinghq/nestling/internal/logging"
	"github.com/nestlinghq/nestling/internal/media"
	"github.com/nestlinghq/nestling/internal/push"
	"github.com/nestlinghq/nestling/internal/server"
)

func main() {
	logger := logging.Setup(os.Getenv("NESTLING_LOG_LEVEL"))

	port := os.Getenv("NESTLING_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("NESTLING_DB_PATH")
	if dbPath == "" {
		dbPath = "nestling.db"
	}

	baseURL := os.Getenv("NESTLING_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	emailClient := email.NewClient(
		os.Getenv("NESTLING_POSTMARK_TOKEN"),
		os.Getenv("NESTLING_FROM_EMAIL"),
		baseURL,
	)

	pushCfg := push.Config{
		VAPIDPublicKey:  os.Getenv("NESTLING_VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("NESTLING_VAPID_PRIVATE_KEY"),
	}
	if pushCfg.VAPIDPublicKey == "" || pushCfg.VAPIDPrivateKey == "" {
		slog.Warn("VAPID keys not set, push notifications disabled")
	}

	cfg := server.Config{
		BaseURL:      baseURL,
		SecureCookie: os.Getenv("NESTLING_COOKIE_SECURE") == "true",
		S3: media.S3Config{
			Endpoint:  os.Getenv("NESTLING_S3_ENDPOINT"),
			Bucket:    os.Getenv("NESTLING_S3_BUCKET"),
			Region:    os.Getenv("NESTLING_S3_REGION"),
			AccessKey: os.Getenv("NESTLING_S3_ACCESS_KEY"),
			SecretKey: os.Getenv("NESTLING_S3_SECRET_KEY"),
		},
		Push: pushCfg,
	}

	srv := server.New(db, cfg, emailClient, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				if n, err := srv.InvitationStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired invitations", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired invitations", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	sweepStop := make(chan struct{})
	go srv.TipService().SweepLoop(5*time.Minute, sweepStop)
	defer close(sweepStop)

	if sched := srv.PushScheduler(); sched != nil {
		sched.Start(context.Background())
		defer sched.Stop()
	}

	go func() {
		slog.Info("nestling starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
