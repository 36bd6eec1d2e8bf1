// Command orchestrator runs the NoETL control plane: the REST API
// (§6), the event-driven step-transition engine (§4.7), and the
// Postgres-backed catalog/event/credential/keychain/execution stores,
// grounded on cmd/appserver/main.go's flag-overrides-config,
// connect-migrate-serve shape.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/noetl/noetl/internal/bus"
	"github.com/noetl/noetl/internal/catalog"
	"github.com/noetl/noetl/internal/claim"
	"github.com/noetl/noetl/internal/config"
	"github.com/noetl/noetl/internal/credential"
	"github.com/noetl/noetl/internal/crypto"
	"github.com/noetl/noetl/internal/event"
	"github.com/noetl/noetl/internal/execution"
	"github.com/noetl/noetl/internal/httpapi"
	"github.com/noetl/noetl/internal/keychain"
	"github.com/noetl/noetl/internal/logging"
	"github.com/noetl/noetl/internal/orchestrator"
	"github.com/noetl/noetl/internal/registry"
	postgresstorage "github.com/noetl/noetl/internal/storage/postgres"
	"github.com/noetl/noetl/internal/tool"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides config/env)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides config/env)")
	configPath := flag.String("config", "", "path to a YAML config file")
	runMigrations := flag.Bool("migrate", true, "apply embedded database migrations on startup")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if trimmed := strings.TrimSpace(*dsn); trimmed != "" {
		cfg.Database.DSN = trimmed
	}
	if err := cfg.Validate(true); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := logging.New(logging.Config{
		Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: cfg.Logging.Output,
	})

	rootCtx := context.Background()

	db, err := postgresstorage.Open(rootCtx, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("connect to postgres: %v", err)
	}
	configurePool(db, cfg)
	defer db.Close()

	if *runMigrations || cfg.Database.MigrateOnStart {
		if err := postgresstorage.Migrate(db.DB); err != nil {
			log.Fatalf("apply migrations: %v", err)
		}
	}

	encryptionKey, err := base64.StdEncoding.DecodeString(cfg.Security.EncryptionKeyBase64)
	if err != nil {
		log.Fatalf("decode encryption key: %v", err)
	}
	encryptor, err := crypto.NewEncryptor(encryptionKey)
	if err != nil {
		log.Fatalf("build encryptor: %v", err)
	}

	schema := cfg.Database.Schema

	eventStore := event.NewPostgresStore(db, schema)
	catalogSvc := catalog.New(catalog.NewPostgresStore(db, schema))
	credentialSvc := credential.New(credential.NewPostgresStore(db, schema), encryptor)

	sealer, err := keychain.NewSealer(encryptionKey)
	if err != nil {
		log.Fatalf("build keychain sealer: %v", err)
	}
	keychainSvc := keychain.New(keychain.NewPostgresStore(db, schema), sealer, nil)

	commandBus, err := bus.NewWithDB(db.DB, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("start command bus: %v", err)
	}

	orch := orchestrator.New(eventStore, commandBus, credentialSvc, cfg.Worker.ServerURL, cfg.Bus.Subject)
	executionSvc := execution.New(execution.NewPostgresStore(db, schema), orch, execution.ProjectionFolder{Events: eventStore})
	claimer := claim.New(eventStore)

	var reg *registry.Registry
	if registryDSN := strings.TrimSpace(cfg.Worker.RuntimeRegistryDSN); registryDSN != "" {
		store, err := registry.NewRedisStore(registryDSN, "")
		if err != nil {
			log.Fatalf("connect to runtime registry: %v", err)
		}
		reg = registry.New(store, 0)
	}

	var validator httpapi.JWTValidator
	if hmac := httpapi.NewHMACValidator(cfg.Security.AuthJWTSecret); hmac != nil {
		validator = hmac
	}

	authTokenTTL := 12 * time.Hour
	if parsed, err := time.ParseDuration(cfg.Security.AuthTokenTTL); err == nil && parsed > 0 {
		authTokenTTL = parsed
	}

	handler := httpapi.NewHandler(httpapi.Deps{
		Catalog:      catalogSvc,
		Credentials:  credentialSvc,
		Keychain:     keychainSvc,
		Executions:   executionSvc,
		Events:       eventStore,
		Claimer:      claimer,
		Orchestrator: orch,
		Registry:     reg,
		Tools:        tool.NewDefaultRegistry(),
		Auth:         validator,
		AuthSecret:   cfg.Security.AuthJWTSecret,
		AuthPassword: cfg.Security.AuthPassword,
		AuthTokenTTL: authTokenTTL,
		BusSubject:   cfg.Bus.Subject,
	})

	listenAddr := determineAddr(*addr, cfg)
	server := &http.Server{Addr: listenAddr, Handler: handler}

	go func() {
		logger.Infof("orchestrator listening on %s", listenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
	if err := commandBus.Close(); err != nil {
		logger.Warnf("close bus: %v", err)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		return config.LoadFile(trimmed)
	}
	return config.Load()
}

func determineAddr(flagAddr string, cfg *config.Config) string {
	if addr := strings.TrimSpace(flagAddr); addr != "" {
		return addr
	}
	host := strings.TrimSpace(cfg.Server.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Server.Port
	if port == 0 {
		port = 8080
	}
	return fmt.Sprintf("%s:%d", host, port)
}

func configurePool(db *sqlx.DB, cfg *config.Config) {
	if cfg.Database.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	}
	if cfg.Database.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	}
	if cfg.Database.ConnMaxLifeSecs > 0 {
		db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifeSecs) * time.Second)
	}
}
