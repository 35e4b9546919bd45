package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/steveyegge/stepview/internal/storage/badger"
	"github.com/steveyegge/stepview/internal/storage/sqlite"
	"github.com/steveyegge/stepview/internal/types"
)

// Key-value namespaces
const (
	// NamespaceSynced holds user configuration (stored settings)
	NamespaceSynced = "synced"
	// NamespaceLocal holds working state such as the last session snapshot
	NamespaceLocal = "local"
)

// Storage defines the interface for inbox storage backends. Alert items and
// seen markers are stored per entity so that mutations never rewrite the
// whole inbox.
type Storage interface {
	// Alert inbox
	ListAlerts(ctx context.Context, limit int) ([]types.AlertItem, error) // newest first; limit <= 0 returns all
	CountAlerts(ctx context.Context) (int, error)
	CountUnread(ctx context.Context) (int, error)
	UpsertAlerts(ctx context.Context, items []types.AlertItem) error
	SetRead(ctx context.Context, id string, read bool) (bool, error)
	SetAllRead(ctx context.Context) (int, error)
	DeleteAlert(ctx context.Context, id string) (bool, error)
	DeleteReadAlerts(ctx context.Context) (int, error)
	TrimAlerts(ctx context.Context, keep int) (int, error)

	// Seen markers
	SeenMarkers(ctx context.Context) (map[string]time.Time, error)
	MarkSeen(ctx context.Context, markers map[string]time.Time) error
	TrimSeen(ctx context.Context, keep int) (int, error)

	// Key-value
	Get(ctx context.Context, namespace, key string) ([]byte, error) // nil when absent
	Set(ctx context.Context, namespace, key string, value []byte) error

	// Lifecycle
	Close() error
}

// Config holds storage configuration
type Config struct {
	// Backend is "sqlite" or "badger"
	// Default: "sqlite"
	Backend string

	// Path is the database file (sqlite) or directory (badger).
	// Special value ":memory:" creates an in-memory store (useful for tests)
	// Default: ".stepview/stepview.db"
	Path string
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Backend: "sqlite",
		Path:    ".stepview/stepview.db",
	}
}

// NewStorage opens the configured backend
func NewStorage(ctx context.Context, cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		cfg.Path = DefaultConfig().Path
	}

	switch cfg.Backend {
	case "", "sqlite":
		return sqlite.New(ctx, cfg.Path)
	case "badger":
		return badger.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
