package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/config"
	"github.com/afoxnyc3/invoice-agent/internal/ingest"
	"github.com/afoxnyc3/invoice-agent/internal/pkg/httputil"
	"github.com/afoxnyc3/invoice-agent/internal/queue"
	"github.com/afoxnyc3/invoice-agent/internal/ratelimit"
)

func main() {
	log.Println("Starting invoice-agent Webhook Receiver...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}
	cfg, err := config.LoadFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sqsClient, err := queue.NewSQSClient(ctx, cfg.Queue.AWSRegion, cfg.Storage.GetAWSProfile())
	if err != nil {
		log.Fatalf("connect to SQS: %v", err)
	}
	notifications := queue.New(sqsClient, cfg.Queue.NotificationsURL, cfg.Queue.NotificationsURL+"-poison",
		queue.WithMaxDequeues(cfg.Queue.MaxDequeues()))

	limiter := ratelimit.New(cfg.RateLimit)
	receiver := ingest.NewReceiver(cfg.Graph.ClientState, notifications, limiter)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhook", receiver.ServeHTTP)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		httputil.OK(w, map[string]string{"status": "healthy", "service": "invoice-agent-webhook"})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("Webhook Receiver listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("webhook server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down Webhook Receiver...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("webhook server shutdown: %v", err)
	}
	log.Println("Webhook Receiver stopped")
}
