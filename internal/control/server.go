// Package control is the local command channel between the CLI and a
// running daemon: one JSON command and one JSON response per connection
// over a Unix domain socket.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Command types
const (
	CmdInbox       = "inbox"
	CmdMarkRead    = "mark_read"
	CmdMarkAllRead = "mark_all_read"
	CmdDelete      = "delete"
	CmdDeleteRead  = "delete_read"
	CmdPoll        = "poll"
	CmdStatus      = "status"
)

// Command represents a control command sent to the daemon
type Command struct {
	Type      string    `json:"type"`
	ID        string    `json:"id,omitempty"`     // Alert id (mark_read, delete)
	Unread    bool      `json:"unread,omitempty"` // mark_read: clear the flag instead
	Timestamp time.Time `json:"timestamp"`
}

// Response represents a response to a control command
type Response struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Handler executes a command and returns the value encoded as Data
type Handler func(ctx context.Context, cmd Command) (any, error)

// Server manages the control socket
type Server struct {
	socketPath string
	listener   net.Listener
	logger     *slog.Logger
	mu         sync.RWMutex
	running    bool
	stopCh     chan struct{}
	doneCh     chan struct{}

	onCommand Handler
}

// NewServer creates a new control server. A stale socket file left by a
// crashed daemon is removed.
func NewServer(socketPath string, onCommand Handler, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	dir := filepath.Dir(socketPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create socket directory: %w", err)
	}
	if err := os.RemoveAll(socketPath); err != nil {
		return nil, fmt.Errorf("failed to remove existing socket: %w", err)
	}

	return &Server{
		socketPath: socketPath,
		logger:     logger,
		onCommand:  onCommand,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start begins listening for control commands
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("control server already running")
	}

	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to create control socket: %w", err)
	}

	s.listener = listener
	s.running = true
	s.mu.Unlock()

	s.logger.Info("control server listening", "socket", s.socketPath)

	go s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	defer close(s.doneCh)
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		_ = s.listener.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		// Accept timeout lets the loop observe ctx and stopCh
		if err := s.listener.(*net.UnixListener).SetDeadline(time.Now().Add(1 * time.Second)); err != nil {
			s.logger.Warn("control: failed to set deadline", "error", err)
			continue
		}

		conn, err := s.listener.Accept()
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Warn("control: accept error", "error", err)
			continue
		}

		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		s.logger.Warn("control: failed to set read deadline", "error", err)
		return
	}

	var cmd Command
	if err := json.NewDecoder(conn).Decode(&cmd); err != nil {
		s.sendError(conn, fmt.Sprintf("failed to decode command: %v", err))
		return
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}

	resp := s.dispatch(ctx, cmd)
	// Polls may take a while; the write gets its own budget
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if err := s.sendResponse(conn, resp); err != nil {
		s.logger.Warn("control: failed to send response", "command", cmd.Type, "error", err)
	}
}

func (s *Server) dispatch(ctx context.Context, cmd Command) Response {
	if s.onCommand == nil {
		return Response{
			Success: false,
			Message: "No command handler registered",
			Error:   "server misconfiguration",
		}
	}

	value, err := s.onCommand(ctx, cmd)
	if err != nil {
		s.logger.Debug("control command failed", "command", cmd.Type, "error", err)
		return Response{
			Success: false,
			Message: fmt.Sprintf("Command failed: %v", err),
			Error:   err.Error(),
		}
	}

	resp := Response{
		Success: true,
		Message: fmt.Sprintf("Command '%s' completed successfully", cmd.Type),
	}
	if value != nil {
		data, err := json.Marshal(value)
		if err != nil {
			return Response{Success: false, Message: "failed to encode response", Error: err.Error()}
		}
		resp.Data = data
	}
	return resp
}

func (s *Server) sendError(conn net.Conn, message string) {
	resp := Response{
		Success: false,
		Message: message,
		Error:   message,
	}
	_ = s.sendResponse(conn, resp)
}

func (s *Server) sendResponse(conn net.Conn, resp Response) error {
	return json.NewEncoder(conn).Encode(resp)
}

// Stop stops the control server and removes the socket file
func (s *Server) Stop() error {
	s.mu.Lock()
	if !s.running {
		started := s.listener != nil
		s.mu.Unlock()
		if started {
			// The loop already exited on context cancellation
			_ = os.RemoveAll(s.socketPath)
		}
		return nil
	}
	s.mu.Unlock()

	close(s.stopCh)

	if err := s.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		s.logger.Warn("control: error closing listener", "error", err)
	}

	select {
	case <-s.doneCh:
	case <-time.After(5 * time.Second):
		s.logger.Warn("control: timeout waiting for server shutdown")
	}

	if err := os.RemoveAll(s.socketPath); err != nil {
		s.logger.Warn("control: failed to remove socket file", "error", err)
	}

	s.logger.Info("control server stopped")
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// SocketPath returns the path to the control socket
func (s *Server) SocketPath() string {
	return s.socketPath
}
