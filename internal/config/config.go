// Package config loads the NoETL Config struct from environment
// variables, an optional .env file, and an optional YAML override file,
// the way pkg/config does in the teacher.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig controls the orchestrator's HTTP API.
type ServerConfig struct {
	Host string `json:"host" yaml:"host" env:"NOETL_SERVER_HOST"`
	Port int    `json:"port" yaml:"port" env:"NOETL_SERVER_PORT"`
}

// DatabaseConfig controls the Postgres-backed catalog/event/credential/
// keychain/runtime schema.
type DatabaseConfig struct {
	DSN             string `json:"dsn" yaml:"dsn" env:"NOETL_DATABASE_DSN"`
	Schema          string `json:"schema" yaml:"schema" env:"NOETL_DATABASE_SCHEMA"`
	MaxOpenConns    int    `json:"max_open_conns" yaml:"max_open_conns" env:"NOETL_DATABASE_MAX_OPEN_CONNS"`
	MaxIdleConns    int    `json:"max_idle_conns" yaml:"max_idle_conns" env:"NOETL_DATABASE_MAX_IDLE_CONNS"`
	ConnMaxLifeSecs int    `json:"conn_max_lifetime_secs" yaml:"conn_max_lifetime_secs" env:"NOETL_DATABASE_CONN_MAX_LIFETIME_SECS"`
	MigrateOnStart  bool   `json:"migrate_on_start" yaml:"migrate_on_start" env:"NOETL_DATABASE_MIGRATE_ON_START"`
}

// LoggingConfig controls application logging; mirrors logging.Config's
// fields so it decodes straight from the same env vars.
type LoggingConfig struct {
	Level      string `json:"level" yaml:"level" env:"NOETL_LOG_LEVEL"`
	Format     string `json:"format" yaml:"format" env:"NOETL_LOG_FORMAT"`
	Output     string `json:"output" yaml:"output" env:"NOETL_LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" yaml:"file_prefix" env:"NOETL_LOG_FILE_PREFIX"`
}

// BusConfig controls the command notification bus (§4.8).
type BusConfig struct {
	Subject          string `json:"subject" yaml:"subject" env:"NOETL_BUS_SUBJECT"`
	CallbackPrefix   string `json:"callback_prefix" yaml:"callback_prefix" env:"NOETL_BUS_CALLBACK_PREFIX"`
	RetentionSeconds int    `json:"retention_seconds" yaml:"retention_seconds" env:"NOETL_BUS_RETENTION_SECONDS"`
}

// SecurityConfig controls the shared AEAD key used by the Encryptor
// (§4.1) and the keychain's scoped key derivation (§4.11).
type SecurityConfig struct {
	EncryptionKeyBase64          string `json:"encryption_key_base64" yaml:"encryption_key_base64" env:"NOETL_ENCRYPTION_KEY"`
	EnableAzureAmbientCredential bool   `json:"enable_azure_ambient_credential" yaml:"enable_azure_ambient_credential" env:"NOETL_CREDENTIAL_AMBIENT_AZURE"`
	AuthJWTSecret                string `json:"auth_jwt_secret" yaml:"auth_jwt_secret" env:"NOETL_AUTH_JWT_SECRET"`
	AuthPassword                 string `json:"auth_password" yaml:"auth_password" env:"NOETL_AUTH_PASSWORD"`
	AuthTokenTTL                 string `json:"auth_token_ttl" yaml:"auth_token_ttl" env:"NOETL_AUTH_TOKEN_TTL"`
}

// WorkerConfig controls the worker runtime's pool identity, concurrency
// and heartbeat cadence.
type WorkerConfig struct {
	PoolName           string `json:"pool_name" yaml:"pool_name" env:"NOETL_WORKER_POOL_NAME"`
	Concurrency        int    `json:"concurrency" yaml:"concurrency" env:"NOETL_WORKER_CONCURRENCY"`
	HeartbeatInterval  string `json:"heartbeat_interval" yaml:"heartbeat_interval" env:"NOETL_WORKER_HEARTBEAT_INTERVAL"`
	OfflineAfter       string `json:"offline_after" yaml:"offline_after" env:"NOETL_WORKER_OFFLINE_AFTER"`
	ServerURL          string `json:"server_url" yaml:"server_url" env:"NOETL_WORKER_SERVER_URL"`
	RuntimeRegistryDSN string `json:"runtime_registry_dsn" yaml:"runtime_registry_dsn" env:"NOETL_WORKER_RUNTIME_REGISTRY_DSN"`
}

// Config is the top-level configuration structure shared by the
// orchestrator, worker, and CLI binaries.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Database DatabaseConfig `json:"database" yaml:"database"`
	Logging  LoggingConfig  `json:"logging" yaml:"logging"`
	Bus      BusConfig      `json:"bus" yaml:"bus"`
	Security SecurityConfig `json:"security" yaml:"security"`
	Worker   WorkerConfig   `json:"worker" yaml:"worker"`
}

// New returns a Config populated with defaults.
func New() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Schema:          "noetl",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifeSecs: 300,
			MigrateOnStart:  true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
		Bus: BusConfig{
			Subject:          "noetl.commands",
			CallbackPrefix:   "noetl.callbacks",
			RetentionSeconds: 3600,
		},
		Worker: WorkerConfig{
			PoolName:          "default",
			Concurrency:       4,
			HeartbeatInterval: "10s",
			OfflineAfter:      "30s",
		},
		Security: SecurityConfig{
			AuthTokenTTL: "12h",
		},
	}
}

// Load loads configuration from an optional .env file, an optional
// CONFIG_FILE (or configs/config.yaml) YAML override, then environment
// variables, in that order of increasing precedence.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := New()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := loadFromFile(path, cfg); err != nil {
			return nil, err
		}
	} else {
		_ = loadFromFile("configs/config.yaml", cfg)
	}

	if err := envdecode.Decode(cfg); err != nil {
		if !strings.Contains(err.Error(), "none of the target fields were set") {
			return nil, fmt.Errorf("decode env: %w", err)
		}
	}

	return cfg, nil
}

// LoadFile reads configuration from a YAML file only, skipping env/
// .env resolution. Used by tests and the orchestrator and worker
// binaries' -config flag.
func LoadFile(path string) (*Config, error) {
	cfg := New()
	if err := loadFromFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	expanded, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// Validate enforces the startup invariants spec.md §9 requires: the
// encryption key must be present whenever credentials or the keychain
// will be touched. Its decoded length is not checked here; the
// Encryptor rejects a key that is not 32 bytes when it is built.
func (c *Config) Validate(requireEncryptionKey bool) error {
	if requireEncryptionKey && strings.TrimSpace(c.Security.EncryptionKeyBase64) == "" {
		return fmt.Errorf("NOETL_ENCRYPTION_KEY is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("NOETL_DATABASE_DSN is required")
	}
	return nil
}
