// Package config holds the ledger server settings and the administrator
// credentials.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"voting-ledger/models"
)

const envPrefix = "LEDGER_"

type StoreKind string

const (
	StoreJSON     StoreKind = "json"
	StoreMemory   StoreKind = "memory"
	StorePostgres StoreKind = "postgres"
)

type Config struct {
	StorageDir     string
	Store          string
	PostgresDSN    string
	Port           int
	Difficulty     int
	QueueSize      int
	SnapshotKeep   int
	AdminKeyFile   string
	Development    bool
	RequestTimeout time.Duration
}

func Default() *Config {
	return &Config{
		StorageDir:     "data",
		Store:          string(StoreJSON),
		Port:           8080,
		Difficulty:     1,
		QueueSize:      1024,
		SnapshotKeep:   5,
		RequestTimeout: 10 * time.Second,
	}
}

// BindFlags registers the settings on fs. Flag defaults come from the
// LEDGER_* environment, falling back to Default().
func (c *Config) BindFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.StringVar(&c.StorageDir, "storage", envString("STORAGE", d.StorageDir), "Directory for the journal, snapshots and admin credentials")
	fs.StringVar(&c.Store, "store", envString("STORE", d.Store), "Journal backend: json, memory or postgres")
	fs.StringVar(&c.PostgresDSN, "dsn", envString("POSTGRES_DSN", ""), "Postgres DSN for --store=postgres")
	fs.IntVar(&c.Port, "port", envInt("PORT", d.Port), "HTTP listen port")
	fs.IntVar(&c.Difficulty, "difficulty", envInt("DIFFICULTY", d.Difficulty), "Journal proof-of-work difficulty in leading zero bytes (0-2)")
	fs.IntVar(&c.QueueSize, "queue", envInt("QUEUE_SIZE", d.QueueSize), "Maximum queued mutating requests")
	fs.IntVar(&c.SnapshotKeep, "snapshots", envInt("SNAPSHOTS", d.SnapshotKeep), "Result snapshots to keep")
	fs.StringVar(&c.AdminKeyFile, "admin-key", envString("ADMIN_KEY_FILE", ""), "Admin credentials file (default <storage>/admin_credentials.json)")
	fs.DurationVar(&c.RequestTimeout, "timeout", envDuration("REQUEST_TIMEOUT", d.RequestTimeout), "Per-request timeout")
	fs.BoolVar(&c.Development, "dev", envBool("DEV", false), "Human-readable development logging")
}

func (c *Config) Validate() error {
	switch StoreKind(c.Store) {
	case StoreJSON, StoreMemory:
	case StorePostgres:
		if c.PostgresDSN == "" {
			return errors.New("--dsn is required with --store=postgres")
		}
	default:
		return fmt.Errorf("unknown store %q", c.Store)
	}
	if c.Difficulty < 0 || c.Difficulty > models.MaxDifficulty {
		return fmt.Errorf("difficulty must be between 0 and %d", models.MaxDifficulty)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.QueueSize < 1 {
		return errors.New("queue size must be positive")
	}
	if c.RequestTimeout <= 0 {
		return errors.New("request timeout must be positive")
	}
	return nil
}

// AdminKeyPath resolves the admin credentials file.
func (c *Config) AdminKeyPath() string {
	if c.AdminKeyFile != "" {
		return c.AdminKeyFile
	}
	return filepath.Join(c.StorageDir, adminCredentialsFile)
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(envPrefix + key); ok {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return def
	}
	return d
}

func envBool(key string, def bool) bool {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return def
	}
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return def
}
