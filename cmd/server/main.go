package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/autovolt/voice-agent/internal/api"
	"github.com/autovolt/voice-agent/internal/config"
	"github.com/autovolt/voice-agent/internal/dispatch"
	"github.com/autovolt/voice-agent/internal/executor"
	"github.com/autovolt/voice-agent/internal/notify"
	"github.com/autovolt/voice-agent/internal/panelws"
	"github.com/autovolt/voice-agent/internal/store"
)

func main() {
	// Load .env file if present (ignored if missing)
	_ = godotenv.Load()

	cfg := config.Load()

	st := store.New()
	reg := panelws.NewRegistry()
	notifier := notify.NewPanel(reg, st)

	execClient := executor.NewClient(
		cfg.Executor.BaseURL,
		time.Duration(cfg.Executor.TimeoutSec)*time.Second,
		cfg.Executor.MaxRetries,
		time.Duration(cfg.Executor.BackoffMs)*time.Millisecond,
	)

	disp := dispatch.New(cfg, st, reg, execClient, notifier)

	wss := panelws.NewServer(cfg, st, reg)
	wss.OnMessage = disp.OnPanelMessage
	wss.OnDisconnect = disp.OnPanelDisconnect

	h := api.NewHandlers(cfg, st, disp)
	mux := http.NewServeMux()
	mux.Handle("/", api.NewRouter(h))
	mux.HandleFunc("/ws/panel", wss.HandlePanelWS)
	mux.Handle("/metrics", promhttp.Handler())

	addr := ":" + cfg.Server.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           logMiddleware(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Graceful shutdown on SIGINT/SIGTERM
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigc
		log.Printf("shutdown signal received; stopping server...")
		// Tear sessions down before draining HTTP: pending confirmations
		// must be discarded, not left armed.
		tctx, tcancel := context.WithTimeout(context.Background(), 3*time.Second)
		for _, id := range st.ListSessionIDs() {
			disp.RemoveSession(tctx, id)
		}
		tcancel()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}()

	log.Printf("server starting on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Println("server error:", err)
		os.Exit(1)
	}
}

func logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(start))
	})
}
