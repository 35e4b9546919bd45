package alerts

import (
	"context"
	"errors"

	"github.com/steveyegge/stepview/internal/types"
)

// Inbox protocol. Every operation returns the refreshed payload: the newest
// 40 items plus the unread count across the whole persisted inbox. Store
// failures are logged and degrade to an empty or stale payload; they are
// never returned.

// GetInbox returns the current payload
func (e *Engine) GetInbox(ctx context.Context) types.InboxPayload {
	return e.payload(ctx)
}

// MarkRead sets the read flag of one item. Unknown ids are ignored.
func (e *Engine) MarkRead(ctx context.Context, id string, read bool) types.InboxPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.SetRead(ctx, id, read); err != nil {
		e.logger.Warn("failed to update alert", "id", id, "error", err)
	}
	return e.payload(ctx)
}

// MarkAllRead marks every item read
func (e *Engine) MarkAllRead(ctx context.Context) types.InboxPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.SetAllRead(ctx); err != nil {
		e.logger.Warn("failed to mark alerts read", "error", err)
	}
	return e.payload(ctx)
}

// DeleteOne removes one item. Unknown ids are ignored.
func (e *Engine) DeleteOne(ctx context.Context, id string) types.InboxPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.DeleteAlert(ctx, id); err != nil {
		e.logger.Warn("failed to delete alert", "id", id, "error", err)
	}
	return e.payload(ctx)
}

// DeleteRead removes every read item
func (e *Engine) DeleteRead(ctx context.Context) types.InboxPayload {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.store.DeleteReadAlerts(ctx); err != nil {
		e.logger.Warn("failed to delete read alerts", "error", err)
	}
	return e.payload(ctx)
}

// PollNow runs a poll on demand. Unlike the scheduled path the poll error
// is returned to the caller, together with the unchanged payload. An
// overlapping request waits for nothing and reports ErrPollInProgress.
func (e *Engine) PollNow(ctx context.Context) (types.InboxPayload, types.PollResult, error) {
	result, err := e.Poll(ctx)
	if err != nil && !errors.Is(err, ErrPollInProgress) {
		e.logger.Info("manual poll failed", "error", err)
	}
	return e.payload(ctx), result, err
}

// StoredCount returns the number of persisted items, which may exceed the
// exposed page. Store failures count as empty.
func (e *Engine) StoredCount(ctx context.Context) int {
	n, err := e.store.CountAlerts(ctx)
	if err != nil {
		e.logger.Warn("failed to count alerts", "error", err)
		return 0
	}
	return n
}

func (e *Engine) payload(ctx context.Context) types.InboxPayload {
	payload := types.InboxPayload{Items: []types.AlertItem{}}

	items, err := e.store.ListAlerts(ctx, types.InboxExposeCap)
	if err != nil {
		e.logger.Warn("failed to load inbox", "error", err)
	} else if items != nil {
		payload.Items = items
	}

	unread, err := e.store.CountUnread(ctx)
	if err != nil {
		e.logger.Warn("failed to count unread alerts", "error", err)
	}
	payload.UnreadCount = unread
	return payload
}
