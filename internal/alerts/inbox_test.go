package alerts

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/stepview/internal/types"
)

func seedInbox(t *testing.T, f *fixture, n int, read func(i int) bool) {
	t.Helper()
	var items []types.AlertItem
	for i := 0; i < n; i++ {
		items = append(items, types.AlertItem{
			ID:        fmt.Sprintf("K-%d:2024-05-01T10:00:00.000+0000", i),
			Key:       fmt.Sprintf("K-%d", i),
			Updated:   "2024-05-01T10:00:00.000+0000",
			Link:      fmt.Sprintf("https://example.atlassian.net/browse/K-%d", i),
			CreatedAt: f.now.Add(time.Duration(i) * time.Second),
			IsRead:    read(i),
		})
	}
	f.seed(t, items...)
}

func TestMarkAllRead(t *testing.T) {
	f := newFixture(t)
	seedInbox(t, f, 5, func(i int) bool { return i < 2 })

	require.Equal(t, 3, f.engine.GetInbox(context.Background()).UnreadCount)

	payload := f.engine.MarkAllRead(context.Background())
	assert.Zero(t, payload.UnreadCount)
	require.Len(t, payload.Items, 5)
	for _, item := range payload.Items {
		assert.True(t, item.IsRead, item.ID)
	}
}

func TestStoredCountExceedsExposedPage(t *testing.T) {
	f := newFixture(t)
	seedInbox(t, f, types.InboxExposeCap+7, func(int) bool { return false })

	payload := f.engine.GetInbox(context.Background())
	assert.Len(t, payload.Items, types.InboxExposeCap)
	assert.Equal(t, types.InboxExposeCap+7, f.engine.StoredCount(context.Background()))
}

func TestMarkRead(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedInbox(t, f, 3, func(int) bool { return false })
	id := "K-1:2024-05-01T10:00:00.000+0000"

	payload := f.engine.MarkRead(ctx, id, true)
	assert.Equal(t, 2, payload.UnreadCount)

	payload = f.engine.MarkRead(ctx, id, false)
	assert.Equal(t, 3, payload.UnreadCount)

	// Unknown ids leave the inbox as is
	payload = f.engine.MarkRead(ctx, "nope", true)
	assert.Equal(t, 3, payload.UnreadCount)
	assert.Len(t, payload.Items, 3)
}

func TestDeleteOperations(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	seedInbox(t, f, 6, func(i int) bool { return i%2 == 0 })

	payload := f.engine.DeleteOne(ctx, "K-5:2024-05-01T10:00:00.000+0000")
	require.Len(t, payload.Items, 5)
	assert.Equal(t, "K-4", payload.Items[0].Key)
	assert.Equal(t, 2, payload.UnreadCount)

	payload = f.engine.DeleteOne(ctx, "missing")
	assert.Len(t, payload.Items, 5)

	payload = f.engine.DeleteRead(ctx)
	require.Len(t, payload.Items, 2)
	for _, item := range payload.Items {
		assert.False(t, item.IsRead)
	}
	assert.Equal(t, 2, payload.UnreadCount)
}

func TestInboxExposesNewestForty(t *testing.T) {
	f := newFixture(t)
	seedInbox(t, f, 55, func(i int) bool { return i < 10 })

	payload := f.engine.GetInbox(context.Background())
	require.Len(t, payload.Items, types.InboxExposeCap)
	assert.Equal(t, "K-54", payload.Items[0].Key)
	assert.Equal(t, "K-15", payload.Items[len(payload.Items)-1].Key)
	// Unread count covers the whole persisted inbox
	assert.Equal(t, 45, payload.UnreadCount)
}

func TestEmptyInboxPayload(t *testing.T) {
	f := newFixture(t)
	payload := f.engine.GetInbox(context.Background())
	assert.NotNil(t, payload.Items)
	assert.Empty(t, payload.Items)
	assert.Zero(t, payload.UnreadCount)
}
