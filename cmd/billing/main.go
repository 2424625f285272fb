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

	"github.com/loomchat/billing/internal/backup"
	"github.com/loomchat/billing/internal/config"
	"github.com/loomchat/billing/internal/database"
	"github.com/loomchat/billing/internal/email"
	"github.com/loomchat/billing/internal/logging"
	"github.com/loomchat/billing/internal/provider"
	"github.com/loomchat/billing/internal/provider/stripeprovider"
	"github.com/loomchat/billing/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	var billingProvider provider.BillingProvider
	stripeClient, err := stripeprovider.New(stripeprovider.Config{
		SecretKey:      cfg.Stripe.SecretKey,
		WebhookSecret:  cfg.Stripe.WebhookSecret,
		PriceIDs:       cfg.Stripe.PremiumPriceIDs,
		DefaultPriceID: cfg.Stripe.PremiumPriceID,
		SuccessURL:     baseURL + "/account?checkout=success",
		CancelURL:      baseURL + "/pricing",
	})
	if err != nil {
		slog.Warn("payment provider not configured, checkout disabled", "error", err)
	} else {
		billingProvider = stripeClient
	}

	var emailClient *email.Client
	if cfg.Email.PostmarkToken != "" {
		emailClient = email.NewClient(cfg.Email.PostmarkToken, cfg.Email.FromEmail, baseURL+"/account")
	}

	srv := server.New(db, server.Config{
		Provider:    billingProvider,
		EmailClient: emailClient,
		BaseURL:     baseURL,
		JWTSecret:   []byte(cfg.JWTSecret),
		AdminToken:  cfg.AdminToken,
	}, logger)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()

	backupManager := backup.NewManager(backup.Config{
		Endpoint:      cfg.Backup.Endpoint,
		Bucket:        cfg.Backup.Bucket,
		Region:        cfg.Backup.Region,
		AccessKey:     cfg.Backup.AccessKey,
		SecretKey:     cfg.Backup.SecretKey,
		Passphrase:    cfg.Backup.Passphrase,
		RetentionDays: cfg.Backup.RetentionDays,
		Hour:          cfg.Backup.Hour,
	}, db, logger.With("component", "backup"))
	go backupManager.Start(bgCtx)

	// Hourly rate limiter cleanup
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			case <-bgCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("billing service starting", "addr", ":"+cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	bgCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
