// Package api is the local HTTP surface of the daemon: the inbox protocol
// over JSON, a server-sent event stream of new alerts and the Prometheus
// metrics endpoint.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/steveyegge/stepview/internal/alerts"
	"github.com/steveyegge/stepview/internal/types"
)

// Inbox is the inbox protocol served over HTTP
type Inbox interface {
	GetInbox(ctx context.Context) types.InboxPayload
	MarkRead(ctx context.Context, id string, read bool) types.InboxPayload
	MarkAllRead(ctx context.Context) types.InboxPayload
	DeleteOne(ctx context.Context, id string) types.InboxPayload
	DeleteRead(ctx context.Context) types.InboxPayload
	PollNow(ctx context.Context) (types.InboxPayload, types.PollResult, error)
	ResolveNotification(ctx context.Context, notificationID string) (string, bool)
}

// ErrorResponse is the body of every non-2xx reply
type ErrorResponse struct {
	Error string `json:"error"`
}

// PollResponse is the reply of POST /poll
type PollResponse struct {
	Inbox  types.InboxPayload `json:"inbox"`
	Result types.PollResult   `json:"result"`
	Error  string             `json:"error,omitempty"`
}

// Config configures the HTTP surface
type Config struct {
	Addr   string
	Inbox  Inbox
	Hub    *Hub
	Logger *slog.Logger

	// Heartbeat is the idle interval between keep-alive events on the
	// event stream. Default: 30s
	Heartbeat time.Duration
}

// Server serves the HTTP surface
type Server struct {
	addr      string
	inbox     Inbox
	hub       *Hub
	logger    *slog.Logger
	heartbeat time.Duration
	router    *gin.Engine

	mu       sync.Mutex
	srv      *http.Server
	listener net.Listener
	doneCh   chan struct{}

	// closing ends open event streams on Stop
	closing   chan struct{}
	closeOnce sync.Once
}

// NewServer builds the router. Call Start to listen.
func NewServer(cfg Config) (*Server, error) {
	if cfg.Inbox == nil {
		return nil, fmt.Errorf("inbox is required")
	}
	if cfg.Hub == nil {
		return nil, fmt.Errorf("hub is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 30 * time.Second
	}

	s := &Server{
		addr:      cfg.Addr,
		inbox:     cfg.Inbox,
		hub:       cfg.Hub,
		logger:    cfg.Logger,
		heartbeat: cfg.Heartbeat,
		closing:   make(chan struct{}),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	inbox := r.Group("/inbox", s.originGuard())
	inbox.GET("", s.handleInbox)
	inbox.POST("/read-all", s.handleMarkAllRead)
	inbox.POST("/:id/read", s.handleMarkRead)
	inbox.DELETE("/read", s.handleDeleteRead)
	inbox.DELETE("/:id", s.handleDelete)

	r.POST("/poll", s.originGuard(), s.handlePoll)
	r.GET("/open/:notificationID", s.handleOpen)
	r.GET("/events", s.handleEvents)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	return r
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Debug("http request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration", time.Since(start),
		)
	}
}

// originGuard rejects browser requests from pages outside the allow-list.
// Requests without an Origin header (CLI, curl) pass.
func (s *Server) originGuard() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && !s.hub.Allowed(origin) {
			c.AbortWithStatusJSON(http.StatusForbidden, ErrorResponse{Error: fmt.Sprintf("origin %q is not allowed", origin)})
			return
		}
		c.Next()
	}
}

// handleOpen redirects a clicked notification to its issue page
func (s *Server) handleOpen(c *gin.Context) {
	id := c.Param("notificationID")
	link, ok := s.inbox.ResolveNotification(c.Request.Context(), id)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: fmt.Sprintf("no alert for notification %q", id)})
		return
	}
	c.Redirect(http.StatusFound, link)
}

func (s *Server) handleInbox(c *gin.Context) {
	c.JSON(http.StatusOK, s.inbox.GetInbox(c.Request.Context()))
}

// handleMarkRead marks one item read, or unread with ?unread=true
func (s *Server) handleMarkRead(c *gin.Context) {
	read := c.Query("unread") != "true"
	c.JSON(http.StatusOK, s.inbox.MarkRead(c.Request.Context(), c.Param("id"), read))
}

func (s *Server) handleMarkAllRead(c *gin.Context) {
	c.JSON(http.StatusOK, s.inbox.MarkAllRead(c.Request.Context()))
}

func (s *Server) handleDelete(c *gin.Context) {
	c.JSON(http.StatusOK, s.inbox.DeleteOne(c.Request.Context(), c.Param("id")))
}

func (s *Server) handleDeleteRead(c *gin.Context) {
	c.JSON(http.StatusOK, s.inbox.DeleteRead(c.Request.Context()))
}

func (s *Server) handlePoll(c *gin.Context) {
	payload, result, err := s.inbox.PollNow(c.Request.Context())
	resp := PollResponse{Inbox: payload, Result: result}
	switch {
	case errors.Is(err, alerts.ErrPollInProgress):
		resp.Error = err.Error()
		c.JSON(http.StatusConflict, resp)
	case err != nil:
		resp.Error = err.Error()
		c.JSON(http.StatusBadGateway, resp)
	default:
		c.JSON(http.StatusOK, resp)
	}
}

// handleEvents streams new-alert batches as "alerts" events. The first
// event is "ready" and carries the subscriber id.
func (s *Server) handleEvents(c *gin.Context) {
	origin := c.GetHeader("Origin")
	if !s.hub.Allowed(origin) {
		c.JSON(http.StatusForbidden, ErrorResponse{Error: fmt.Sprintf("origin %q is not allowed", origin)})
		return
	}

	id, ch, cancel := s.hub.Subscribe()
	defer cancel()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.SSEvent("ready", id)
	c.Writer.Flush()

	heartbeat := time.NewTicker(s.heartbeat)
	defer heartbeat.Stop()
	ctx := c.Request.Context()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case <-s.closing:
			return false
		case data := <-ch:
			c.SSEvent("alerts", string(data))
			return true
		case <-heartbeat.C:
			c.SSEvent("ping", time.Now().UTC().Format(time.RFC3339))
			return true
		}
	})
}

// Start listens on the configured address and serves in the background
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return fmt.Errorf("http server is already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.listener = ln
	s.srv = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.doneCh = make(chan struct{})

	srv, done := s.srv, s.doneCh
	go func() {
		defer close(done)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", "error", err)
		}
	}()

	s.logger.Info("http surface listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the bound address, or "" when not running
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down. Open event streams are closed.
func (s *Server) Stop(ctx context.Context) error {
	s.closeOnce.Do(func() { close(s.closing) })

	s.mu.Lock()
	srv, done := s.srv, s.doneCh
	s.srv = nil
	s.listener = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	err := srv.Shutdown(ctx)
	if err != nil {
		_ = srv.Close()
	}
	<-done
	if err != nil {
		return fmt.Errorf("failed to stop http server: %w", err)
	}
	return nil
}
