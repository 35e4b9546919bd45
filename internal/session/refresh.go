package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/steveyegge/stepview/internal/grouping"
	"github.com/steveyegge/stepview/internal/metrics"
	"github.com/steveyegge/stepview/internal/recommend"
	"github.com/steveyegge/stepview/internal/types"
)

var (
	// ErrStale is returned when a newer refresh superseded this one. The
	// session was left untouched.
	ErrStale = errors.New("refresh superseded by a newer request")

	// ErrNoIssueKey is returned when the refresh target is not an issue
	ErrNoIssueKey = errors.New("no issue key")
)

// IssueSource fetches issues from the tracker
type IssueSource interface {
	GetIssue(ctx context.Context, key string, s types.Settings) (types.Issue, error)
	FetchIssues(ctx context.Context, keys []string, s types.Settings) ([]types.Issue, error)
	Search(ctx context.Context, jql string, maxResults int, fields []string) ([]types.Issue, error)
}

// SettingsResolver returns the settings in effect for an issue
type SettingsResolver func(ctx context.Context, issueKey string) types.Settings

// Refresher rebuilds a session for an issue
type Refresher struct {
	source   IssueSource
	settings SettingsResolver
	logger   *slog.Logger
}

// NewRefresher creates a refresher
func NewRefresher(source IssueSource, settings SettingsResolver, logger *slog.Logger) *Refresher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{source: source, settings: settings, logger: logger}
}

// Refresh analyzes key (an issue key or an issue page URL) and applies the
// result to sess. Without force, refreshing the already active issue
// returns the last result without any request. ErrStale means a newer
// refresh started while this one was in flight.
func (r *Refresher) Refresh(ctx context.Context, sess *Session, target string, force bool) (*Result, error) {
	key, ok := ExtractIssueKey(target)
	if !ok {
		sess.Clear()
		return nil, fmt.Errorf("%w: %q", ErrNoIssueKey, target)
	}
	if !force && key == sess.ActiveKey() {
		if last := sess.Last(); last != nil && last.IssueKey == key {
			return last, nil
		}
	}

	token := sess.begin(key)
	res, err := r.build(ctx, key)
	if err != nil {
		if !sess.isLatest(token) {
			metrics.RecordRefresh(metrics.RefreshStale)
			return nil, ErrStale
		}
		metrics.RecordRefresh(metrics.RefreshError)
		return nil, err
	}
	if !sess.apply(token, res) {
		metrics.RecordRefresh(metrics.RefreshStale)
		r.logger.Debug("discarding stale refresh", "issue", key, "generation", token)
		return nil, ErrStale
	}
	metrics.RecordRefresh(metrics.RefreshOK)
	return res, nil
}

// build fetches and computes everything for key without touching the session
func (r *Refresher) build(ctx context.Context, key string) (*Result, error) {
	s := r.settings(ctx, key)

	base, err := r.source.GetIssue(ctx, key, s)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	if base.Key == "" {
		base.Key = key
	}

	extraction := grouping.ExtractRelatedKeys(base, s)

	var (
		related    []types.Issue
		candidates []types.Issue
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		issues, err := r.source.FetchIssues(gctx, extraction.Keys, s)
		if err != nil {
			return fmt.Errorf("failed to fetch related issues: %w", err)
		}
		related = issues
		return nil
	})
	g.Go(func() error {
		// Recommendations are optional; a failed search leaves them empty
		issues, err := r.source.Search(gctx, recommend.BuildQuery(base), recommend.CandidatePoolSize, recommend.CandidateFields)
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				r.logger.Warn("failed to fetch recommendation candidates", "issue", key, "error", err)
			}
			return nil
		}
		candidates = issues
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Result{
		IssueKey:     strings.ToUpper(base.Key),
		Issue:        base,
		Groups:       grouping.Group(related, s),
		TotalRelated: extraction.Total,
		Truncated:    extraction.Truncated,
		Recommended:  recommend.Score(base, candidates),
	}, nil
}
