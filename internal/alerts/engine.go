// Package alerts polls the tracker for recently updated issues, deduplicates
// them against the seen-marker set and maintains the notification inbox.
//
// A poll cycle runs to completion:
//
//  1. Skip when alerts are disabled or no base URL is configured.
//  2. Load the seen-marker set.
//  3. Query issues updated within the lookback window (one page of 25).
//  4. Every issue whose marker (key:updated) is unseen becomes an unread
//     AlertItem and fires a notification.
//  5. New items are merged into the inbox, replacing items with the same id,
//     and the inbox is trimmed to the newest 120.
//  6. The new batch is broadcast to subscribed UI surfaces.
//  7. Markers are recorded and the set is trimmed to the newest 400.
//
// A failed query aborts the cycle before anything is written.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/steveyegge/stepview/internal/metrics"
	"github.com/steveyegge/stepview/internal/types"
)

// ErrPollInProgress is returned when a poll is requested while another one
// is still running
var ErrPollInProgress = errors.New("poll already in progress")

// IssueSearcher runs the recently-updated query
type IssueSearcher interface {
	SearchRecent(ctx context.Context, s types.Settings) ([]types.Issue, error)
}

// Store is the subset of storage the engine needs
type Store interface {
	ListAlerts(ctx context.Context, limit int) ([]types.AlertItem, error)
	CountAlerts(ctx context.Context) (int, error)
	CountUnread(ctx context.Context) (int, error)
	UpsertAlerts(ctx context.Context, items []types.AlertItem) error
	SetRead(ctx context.Context, id string, read bool) (bool, error)
	SetAllRead(ctx context.Context) (int, error)
	DeleteAlert(ctx context.Context, id string) (bool, error)
	DeleteReadAlerts(ctx context.Context) (int, error)
	TrimAlerts(ctx context.Context, keep int) (int, error)

	SeenMarkers(ctx context.Context) (map[string]time.Time, error)
	MarkSeen(ctx context.Context, markers map[string]time.Time) error
	TrimSeen(ctx context.Context, keep int) (int, error)
}

// Notification is a platform notification for one new alert
type Notification struct {
	ID    string // sanitized, see SanitizeNotificationID
	Title string
	Body  string
	Link  string
}

// Notifier displays notifications. Delivery is fire-and-forget.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Broadcaster delivers new-alert batches to listening UI surfaces.
// Delivery is best-effort.
type Broadcaster interface {
	Broadcast(items []types.AlertItem)
}

// SettingsFunc returns the settings in effect for one invocation
type SettingsFunc func(ctx context.Context) types.Settings

// Config wires an Engine
type Config struct {
	Searcher    IssueSearcher
	Store       Store
	Settings    SettingsFunc
	Notifier    Notifier    // optional
	Broadcaster Broadcaster // optional
	Logger      *slog.Logger
	Now         func() time.Time
}

// Engine owns the inbox and the seen-marker set
type Engine struct {
	searcher    IssueSearcher
	store       Store
	settings    SettingsFunc
	notifier    Notifier
	broadcaster Broadcaster
	logger      *slog.Logger
	now         func() time.Time

	// mu serializes inbox mutations across the scheduler, the control
	// socket and the HTTP surface
	mu      sync.Mutex
	polling atomic.Bool
}

// NewEngine creates an engine
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Searcher == nil {
		return nil, fmt.Errorf("searcher is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Settings == nil {
		return nil, fmt.Errorf("settings source is required")
	}
	e := &Engine{
		searcher:    cfg.Searcher,
		store:       cfg.Store,
		settings:    cfg.Settings,
		notifier:    cfg.Notifier,
		broadcaster: cfg.Broadcaster,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Poll runs one poll cycle. It returns ErrPollInProgress if another cycle
// is running and the upstream error if the query failed.
func (e *Engine) Poll(ctx context.Context) (types.PollResult, error) {
	if !e.polling.CompareAndSwap(false, true) {
		metrics.RecordPoll(metrics.PollOverlap, 0, 0)
		return types.PollResult{}, ErrPollInProgress
	}
	defer e.polling.Store(false)

	start := time.Now()
	result, err := e.poll(ctx)
	switch {
	case err != nil:
		metrics.RecordPoll(metrics.PollFailed, 0, 0)
	case result.Skipped:
		metrics.RecordPoll(metrics.PollSkipped, 0, 0)
	default:
		metrics.RecordPoll(metrics.PollOK, result.NewCount, time.Since(start).Seconds())
	}
	return result, err
}

func (e *Engine) poll(ctx context.Context) (types.PollResult, error) {
	s := e.settings(ctx)
	if !s.AlertEnabled || s.BaseURL == "" {
		return types.PollResult{Skipped: true}, nil
	}

	seen, err := e.store.SeenMarkers(ctx)
	if err != nil {
		e.logger.Warn("failed to load seen markers, treating as empty", "error", err)
		seen = map[string]time.Time{}
	}

	issues, err := e.searcher.SearchRecent(ctx, s)
	if err != nil {
		return types.PollResult{}, fmt.Errorf("failed to query recent issues: %w", err)
	}

	now := e.now().UTC().Truncate(time.Millisecond)
	marked := make(map[string]time.Time)
	var newItems []types.AlertItem
	for _, issue := range issues {
		if err := issue.Validate(); err != nil {
			e.logger.Debug("skipping record", "error", err)
			continue
		}
		marker := types.Marker(issue.Key, issue.Updated)
		if _, ok := seen[marker]; ok {
			continue
		}
		if _, ok := marked[marker]; ok {
			continue
		}
		marked[marker] = now

		item := types.AlertItem{
			ID:           marker,
			Key:          issue.Key,
			Summary:      issue.Summary,
			Status:       issue.Status,
			Updated:      issue.Updated,
			UpdatedLabel: FormatUpdated(issue.Updated),
			Link:         s.BaseURL + "/browse/" + issue.Key,
			// Query order (most recently updated first) survives the
			// newest-first inbox sort and the trim
			CreatedAt: now.Add(-time.Duration(len(newItems)) * time.Millisecond),
		}
		newItems = append(newItems, item)

		if e.notifier != nil {
			e.notifier.Notify(ctx, NotificationFor(item))
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if len(newItems) > 0 {
		if err := e.store.UpsertAlerts(ctx, newItems); err != nil {
			e.logger.Warn("failed to persist new alerts", "count", len(newItems), "error", err)
		}
		if _, err := e.store.TrimAlerts(ctx, types.InboxPersistCap); err != nil {
			e.logger.Warn("failed to trim inbox", "error", err)
		}
		if e.broadcaster != nil {
			e.broadcaster.Broadcast(newItems)
		}
	}

	if err := e.store.MarkSeen(ctx, marked); err != nil {
		e.logger.Warn("failed to record seen markers", "error", err)
	}
	if _, err := e.store.TrimSeen(ctx, types.SeenMarkerCap); err != nil {
		e.logger.Warn("failed to trim seen markers", "error", err)
	}

	return types.PollResult{NewCount: len(newItems), NewItems: newItems}, nil
}
