// Command worker runs a NoETL worker process: registration, heartbeat,
// and the claim-execute-emit loop against a running orchestrator
// (§4.9), grounded on original_source's crates/worker-pool/src/worker.rs
// reference semantics and cmd/appserver/main.go's flag-overrides-config
// shape.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/noetl/noetl/internal/config"
	"github.com/noetl/noetl/internal/httpapi"
	"github.com/noetl/noetl/internal/logging"
	"github.com/noetl/noetl/internal/tool"
	"github.com/noetl/noetl/internal/worker"
)

func main() {
	serverURL := flag.String("server", "", "orchestrator base URL (overrides config/env)")
	token := flag.String("token", "", "bearer token presented to the orchestrator")
	poolName := flag.String("pool", "", "worker pool name (overrides config/env)")
	workerID := flag.String("id", "", "worker id (defaults to a fresh UUID)")
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if trimmed := strings.TrimSpace(*serverURL); trimmed != "" {
		cfg.Worker.ServerURL = trimmed
	}
	if trimmed := strings.TrimSpace(*poolName); trimmed != "" {
		cfg.Worker.PoolName = trimmed
	}
	if strings.TrimSpace(cfg.Worker.ServerURL) == "" {
		log.Fatal("orchestrator server URL is required (-server, NOETL_WORKER_SERVER_URL, or config file)")
	}

	logger := logging.New(logging.Config{
		Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output,
	})

	heartbeat, err := time.ParseDuration(cfg.Worker.HeartbeatInterval)
	if err != nil || heartbeat <= 0 {
		heartbeat = 10 * time.Second
	}

	id := strings.TrimSpace(*workerID)
	if id == "" {
		id = uuid.NewString()
	}

	client := httpapi.NewClient(cfg.Worker.ServerURL, *token)
	registry := tool.NewDefaultRegistry()
	executor := worker.NewExecutor(registry, client, id)

	w := worker.New(worker.Config{
		WorkerID:           id,
		PoolName:           cfg.Worker.PoolName,
		ServerURL:          cfg.Worker.ServerURL,
		Subject:            cfg.Bus.Subject,
		MaxConcurrentTasks: cfg.Worker.Concurrency,
		HeartbeatInterval:  heartbeat,
	}, client, nil, executor)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("worker shutting down")
		w.Stop()
	}()

	logger.Infof("worker polling %s for pool %q", cfg.Worker.ServerURL, cfg.Worker.PoolName)
	if err := w.Run(ctx); err != nil {
		log.Fatalf("worker run: %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return config.LoadFile(trimmed)
	}
	return config.Load()
}
