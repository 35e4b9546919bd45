package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/stepview/internal/alerts"
	"github.com/steveyegge/stepview/internal/control"
	"github.com/steveyegge/stepview/internal/types"
)

type stubSearcher struct {
	issues []types.Issue
	err    error
}

func (s stubSearcher) SearchRecent(ctx context.Context, settings types.Settings) ([]types.Issue, error) {
	return s.issues, s.err
}

func newLocalInbox(t *testing.T, searcher alerts.IssueSearcher) localInbox {
	t.Helper()
	engine, err := alerts.NewEngine(alerts.Config{
		Searcher: searcher,
		Store:    memStore(t),
		Settings: func(ctx context.Context) types.Settings {
			return types.Settings{BaseURL: "https://acme.atlassian.net", AlertEnabled: true, AlertLookbackMin: 10}
		},
		Logger: logger,
		Now:    func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	return localInbox{engine: engine}
}

func TestLocalInbox(t *testing.T) {
	ctx := context.Background()
	inbox := newLocalInbox(t, stubSearcher{issues: []types.Issue{
		{Key: "CHK-1", Summary: "Checkout fails", Status: "Open", Updated: "2024-05-01T11:58:00.000+0000"},
		{Key: "CHK-2", Summary: "Login slow", Updated: "2024-05-01T11:59:00.000+0000"},
	}})

	reply, err := inbox.Poll(ctx)
	require.NoError(t, err)
	assert.Empty(t, reply.Error)
	assert.Equal(t, 2, reply.Result.NewCount)
	assert.Equal(t, 2, reply.Inbox.UnreadCount)

	id := reply.Inbox.Items[0].ID
	p, err := inbox.MarkRead(ctx, id, true)
	require.NoError(t, err)
	assert.Equal(t, 1, p.UnreadCount)

	p, err = inbox.DeleteRead(ctx)
	require.NoError(t, err)
	assert.Len(t, p.Items, 1)

	p, err = inbox.MarkAllRead(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, p.UnreadCount)

	p, err = inbox.Delete(ctx, p.Items[0].ID)
	require.NoError(t, err)
	assert.Empty(t, p.Items)

	p, err = inbox.Inbox(ctx)
	require.NoError(t, err)
	assert.Empty(t, p.Items)
}

func TestLocalInboxPollFailure(t *testing.T) {
	inbox := newLocalInbox(t, stubSearcher{err: errors.New("connection refused")})
	reply, err := inbox.Poll(context.Background())
	require.NoError(t, err)
	assert.Contains(t, reply.Error, "connection refused")
	assert.False(t, reply.InProgress)
}

func TestPrintInbox(t *testing.T) {
	payload := types.InboxPayload{
		Items: []types.AlertItem{
			{ID: "CHK-1:t2", Key: "CHK-1", Summary: "Checkout fails", Status: "Open", UpdatedLabel: "2024-05-01 11:58:00"},
			{ID: "CHK-2:t1", Key: "CHK-2", Summary: "Login slow", Updated: "not a time", IsRead: true},
		},
		UnreadCount: 1,
	}

	var buf bytes.Buffer
	printInbox(&buf, payload, false)
	out := buf.String()
	assert.Contains(t, out, "Inbox (1 unread)")
	assert.Contains(t, out, "● CHK-1 [Open] Checkout fails")
	assert.Contains(t, out, "2024-05-01 11:58:00  CHK-1:t2")
	assert.Contains(t, out, "○ CHK-2 Login slow")
	assert.Contains(t, out, "not a time  CHK-2:t1")

	buf.Reset()
	printInbox(&buf, payload, true)
	assert.NotContains(t, buf.String(), "CHK-2")

	buf.Reset()
	printInbox(&buf, types.InboxPayload{}, false)
	assert.Contains(t, buf.String(), "Nothing here")
}

func TestPrintPollReply(t *testing.T) {
	tests := []struct {
		name  string
		reply control.PollReply
		want  string
	}{
		{name: "new", reply: control.PollReply{Result: types.PollResult{NewCount: 3}}, want: "3 new updates"},
		{name: "skipped", reply: control.PollReply{Result: types.PollResult{Skipped: true}}, want: "Polling is off"},
		{name: "busy", reply: control.PollReply{Error: "x", InProgress: true}, want: "already running"},
		{name: "failed", reply: control.PollReply{Error: "boom"}, want: "Poll failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			printPollReply(&buf, tt.reply)
			assert.Contains(t, buf.String(), tt.want)
		})
	}
}
