// Entry point for the sentrygate HTTP service. Wires the store, alert sink,
// external intel clients and the chi router, then serves until interrupted.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"sentrygate/alert"
	"sentrygate/captcha"
	"sentrygate/catalog"
	"sentrygate/config"
	"sentrygate/dbopen"
	"sentrygate/intel"
	"sentrygate/shield"
	"sentrygate/store"
	"sentrygate/web"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := store.Init(db); err != nil {
		slog.Error("init schema", "error", err)
		os.Exit(1)
	}
	st := store.New(db)

	var sink alert.Sink = alert.Nop{}
	if cfg.WebhookURL != "" {
		sink = alert.NewWebhook(cfg.WebhookURL, alert.WithLogger(logger))
	} else {
		slog.Warn("no webhook configured, alerts disabled")
	}

	var verifier captcha.Verifier
	if cfg.CaptchaSecret != "" {
		verifier = captcha.NewClient(cfg.CaptchaSecret, cfg.CaptchaURL)
	}

	threat := intel.NewThreatClient(cfg.ThreatAPIKey, cfg.ThreatAPIURL)
	reviewer := intel.NewCodeAuditClient(cfg.LLMAPIKey, cfg.LLMAPIURL)

	flags := catalog.Default()
	if cfg.FlagCatalogPath != "" {
		flags, err = catalog.LoadFile(cfg.FlagCatalogPath)
		if err != nil {
			slog.Error("load flag catalog", "path", cfg.FlagCatalogPath, "error", err)
			os.Exit(1)
		}
	}

	throttle := shield.NewThrottle(10, 20)
	throttle.StartGC(ctx.Done())

	if cfg.AuditRetentionDays > 0 {
		go auditJanitor(ctx, st, cfg.AuditRetentionDays)
	}

	srv := web.New(cfg, st, sink, verifier, threat, reviewer, flags)
	httpSrv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(throttle),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "port", cfg.Port)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

// auditJanitor trims audit rows past the retention horizon once a day.
func auditJanitor(ctx context.Context, st *store.Store, retentionDays int) {
	tick := time.NewTicker(24 * time.Hour)
	defer tick.Stop()
	for {
		n, err := st.CleanupAudit(ctx, retentionDays)
		if err != nil {
			slog.Warn("audit cleanup", "error", err)
		} else if n > 0 {
			slog.Info("audit cleanup", "removed", n)
		}
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
	}
}
