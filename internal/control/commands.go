package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steveyegge/stepview/internal/alerts"
	"github.com/steveyegge/stepview/internal/types"
)

// Inbox is the inbox protocol the daemon exposes over the socket
type Inbox interface {
	GetInbox(ctx context.Context) types.InboxPayload
	MarkRead(ctx context.Context, id string, read bool) types.InboxPayload
	MarkAllRead(ctx context.Context) types.InboxPayload
	DeleteOne(ctx context.Context, id string) types.InboxPayload
	DeleteRead(ctx context.Context) types.InboxPayload
	PollNow(ctx context.Context) (types.InboxPayload, types.PollResult, error)
}

// PollReply is the Data of a poll command. A failed poll is still a
// successful command: the inbox is returned along with the failure.
type PollReply struct {
	Inbox      types.InboxPayload `json:"inbox"`
	Result     types.PollResult   `json:"result"`
	Error      string             `json:"error,omitempty"`
	InProgress bool               `json:"in_progress,omitempty"`
}

// Status is the Data of a status command
type Status struct {
	PID           int       `json:"pid"`
	StartedAt     time.Time `json:"started_at"`
	BaseURL       string    `json:"base_url"`
	AlertsEnabled bool      `json:"alerts_enabled"`
	PollInterval  string    `json:"poll_interval"`
	SchedulerOn   bool      `json:"scheduler_running"`
	Backend       string    `json:"backend"`
	HTTPAddr      string    `json:"http_addr,omitempty"`
	UnreadCount   int       `json:"unread_count"`
	StoredCount   int       `json:"stored_count"`
}

// NewInboxHandler maps socket commands onto the inbox protocol. status
// fills in the daemon-level fields of a status reply.
func NewInboxHandler(inbox Inbox, status func() Status) Handler {
	return func(ctx context.Context, cmd Command) (any, error) {
		switch cmd.Type {
		case CmdInbox:
			return inbox.GetInbox(ctx), nil
		case CmdMarkRead:
			if cmd.ID == "" {
				return nil, fmt.Errorf("mark_read requires an id")
			}
			return inbox.MarkRead(ctx, cmd.ID, !cmd.Unread), nil
		case CmdMarkAllRead:
			return inbox.MarkAllRead(ctx), nil
		case CmdDelete:
			if cmd.ID == "" {
				return nil, fmt.Errorf("delete requires an id")
			}
			return inbox.DeleteOne(ctx, cmd.ID), nil
		case CmdDeleteRead:
			return inbox.DeleteRead(ctx), nil
		case CmdPoll:
			payload, result, err := inbox.PollNow(ctx)
			reply := PollReply{Inbox: payload, Result: result}
			if err != nil {
				reply.Error = err.Error()
				reply.InProgress = errors.Is(err, alerts.ErrPollInProgress)
			}
			return reply, nil
		case CmdStatus:
			var st Status
			if status != nil {
				st = status()
			}
			st.UnreadCount = inbox.GetInbox(ctx).UnreadCount
			return st, nil
		default:
			return nil, fmt.Errorf("unknown command type %q", cmd.Type)
		}
	}
}
