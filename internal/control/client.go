package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/steveyegge/stepview/internal/types"
)

// ErrDaemonNotRunning is returned when nothing listens on the socket
var ErrDaemonNotRunning = errors.New("daemon is not running")

// Client sends control commands to a running daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new control client
func NewClient(socketPath string) *Client {
	return &Client{
		socketPath: socketPath,
		timeout:    30 * time.Second,
	}
}

// SetTimeout sets the client timeout for commands
func (c *Client) SetTimeout(timeout time.Duration) {
	c.timeout = timeout
}

// SendCommand sends a command to the daemon and waits for the response
func (c *Client) SendCommand(ctx context.Context, cmd Command) (*Response, error) {
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDaemonNotRunning, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, fmt.Errorf("failed to set deadline: %w", err)
	}

	if err := json.NewEncoder(conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	return &resp, nil
}

// call sends cmd and decodes a successful response's Data into out
func (c *Client) call(ctx context.Context, cmd Command, out any) error {
	resp, err := c.SendCommand(ctx, cmd)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("%s failed: %s", cmd.Type, resp.Error)
	}
	if out == nil || len(resp.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", cmd.Type, err)
	}
	return nil
}

func (c *Client) inbox(ctx context.Context, cmd Command) (types.InboxPayload, error) {
	var payload types.InboxPayload
	err := c.call(ctx, cmd, &payload)
	return payload, err
}

// Inbox returns the current inbox payload
func (c *Client) Inbox(ctx context.Context) (types.InboxPayload, error) {
	return c.inbox(ctx, Command{Type: CmdInbox})
}

// MarkRead sets or clears the read flag of one item
func (c *Client) MarkRead(ctx context.Context, id string, read bool) (types.InboxPayload, error) {
	return c.inbox(ctx, Command{Type: CmdMarkRead, ID: id, Unread: !read})
}

// MarkAllRead marks every item read
func (c *Client) MarkAllRead(ctx context.Context) (types.InboxPayload, error) {
	return c.inbox(ctx, Command{Type: CmdMarkAllRead})
}

// Delete removes one item
func (c *Client) Delete(ctx context.Context, id string) (types.InboxPayload, error) {
	return c.inbox(ctx, Command{Type: CmdDelete, ID: id})
}

// DeleteRead removes every read item
func (c *Client) DeleteRead(ctx context.Context) (types.InboxPayload, error) {
	return c.inbox(ctx, Command{Type: CmdDeleteRead})
}

// Poll asks the daemon to poll now
func (c *Client) Poll(ctx context.Context) (PollReply, error) {
	var reply PollReply
	err := c.call(ctx, Command{Type: CmdPoll}, &reply)
	return reply, err
}

// Status requests the current daemon status
func (c *Client) Status(ctx context.Context) (Status, error) {
	var st Status
	err := c.call(ctx, Command{Type: CmdStatus}, &st)
	return st, err
}
