package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/stepview/internal/alerts"
	"github.com/steveyegge/stepview/internal/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeInbox records the calls it receives
type fakeInbox struct {
	mu      sync.Mutex
	calls   []string
	payload types.InboxPayload
	pollErr error
	result  types.PollResult
}

func (f *fakeInbox) record(call string) types.InboxPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
	return f.payload
}

func (f *fakeInbox) GetInbox(ctx context.Context) types.InboxPayload {
	return f.record("get")
}

func (f *fakeInbox) MarkRead(ctx context.Context, id string, read bool) types.InboxPayload {
	if read {
		return f.record("read " + id)
	}
	return f.record("unread " + id)
}

func (f *fakeInbox) MarkAllRead(ctx context.Context) types.InboxPayload {
	return f.record("read-all")
}

func (f *fakeInbox) DeleteOne(ctx context.Context, id string) types.InboxPayload {
	return f.record("delete " + id)
}

func (f *fakeInbox) DeleteRead(ctx context.Context) types.InboxPayload {
	return f.record("delete-read")
}

func (f *fakeInbox) PollNow(ctx context.Context) (types.InboxPayload, types.PollResult, error) {
	return f.record("poll"), f.result, f.pollErr
}

func (f *fakeInbox) ResolveNotification(ctx context.Context, notificationID string) (string, bool) {
	f.record("open " + notificationID)
	if notificationID == "stepview:X-1:t1" {
		return "https://example.atlassian.net/browse/X-1", true
	}
	return "", false
}

func (f *fakeInbox) lastCall() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func newTestServer(t *testing.T, inbox *fakeInbox, origins ...string) (*Server, *Hub) {
	t.Helper()
	hub := NewHub(origins, nil)
	srv, err := NewServer(Config{Inbox: inbox, Hub: hub, Heartbeat: time.Hour})
	require.NoError(t, err)
	return srv, hub
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(Config{Hub: NewHub(nil, nil)})
	assert.Error(t, err)
	_, err = NewServer(Config{Inbox: &fakeInbox{}})
	assert.Error(t, err)
}

func TestInboxRoutes(t *testing.T) {
	inbox := &fakeInbox{payload: types.InboxPayload{
		Items:       []types.AlertItem{{ID: "X-1:t1", Key: "X-1", Summary: "A"}},
		UnreadCount: 1,
	}}
	srv, _ := newTestServer(t, inbox)

	tests := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/inbox", "get"},
		{http.MethodPost, "/inbox/X-1:t1/read", "read X-1:t1"},
		{http.MethodPost, "/inbox/X-1:t1/read?unread=true", "unread X-1:t1"},
		{http.MethodPost, "/inbox/read-all", "read-all"},
		{http.MethodDelete, "/inbox/X-1:t1", "delete X-1:t1"},
		{http.MethodDelete, "/inbox/read", "delete-read"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, req)

			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.want, inbox.lastCall())

			var payload types.InboxPayload
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &payload))
			assert.Equal(t, 1, payload.UnreadCount)
			require.Len(t, payload.Items, 1)
			assert.Equal(t, "X-1", payload.Items[0].Key)
		})
	}
}

func TestPollRoute(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode int
		wantErr  bool
	}{
		{name: "ok", wantCode: http.StatusOK},
		{name: "in progress", err: alerts.ErrPollInProgress, wantCode: http.StatusConflict, wantErr: true},
		{name: "upstream failure", err: errors.New("failed to query recent issues: boom"), wantCode: http.StatusBadGateway, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inbox := &fakeInbox{pollErr: tt.err, result: types.PollResult{NewCount: 2}}
			srv, _ := newTestServer(t, inbox)

			w := httptest.NewRecorder()
			srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/poll", nil))
			assert.Equal(t, tt.wantCode, w.Code)

			var resp PollResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			assert.Equal(t, 2, resp.Result.NewCount)
			assert.Equal(t, tt.wantErr, resp.Error != "")
		})
	}
}

func TestMutatingRoutesCheckOrigin(t *testing.T) {
	routes := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/inbox/read-all"},
		{http.MethodPost, "/inbox/X-1:t1/read"},
		{http.MethodDelete, "/inbox/read"},
		{http.MethodDelete, "/inbox/X-1:t1"},
		{http.MethodPost, "/poll"},
	}
	tests := []struct {
		name     string
		origin   string
		wantCode int
	}{
		{name: "foreign page", origin: "https://evil.example.com", wantCode: http.StatusForbidden},
		{name: "allowed ui", origin: "http://localhost:5173", wantCode: http.StatusOK},
		{name: "tracker page", origin: "https://example.atlassian.net", wantCode: http.StatusOK},
		{name: "no origin", wantCode: http.StatusOK},
	}
	for _, tt := range tests {
		for _, route := range routes {
			t.Run(tt.name+" "+route.method+" "+route.path, func(t *testing.T) {
				inbox := &fakeInbox{}
				srv, hub := newTestServer(t, inbox, "http://localhost:5173")
				hub.SetBaseURL("https://example.atlassian.net")

				req := httptest.NewRequest(route.method, route.path, nil)
				if tt.origin != "" {
					req.Header.Set("Origin", tt.origin)
				}
				w := httptest.NewRecorder()
				srv.Handler().ServeHTTP(w, req)

				assert.Equal(t, tt.wantCode, w.Code)
				if tt.wantCode == http.StatusForbidden {
					assert.Empty(t, inbox.lastCall(), "handler must not run")
				}
			})
		}
	}
}

func TestOpenNotification(t *testing.T) {
	srv, _ := newTestServer(t, &fakeInbox{})

	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open/stepview:X-1:t1", nil))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "https://example.atlassian.net/browse/X-1", w.Header().Get("Location"))

	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/open/stepview:NOPE-1:t1", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	srv, _ := newTestServer(t, &fakeInbox{})
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestEventsRejectsUnknownOrigin(t *testing.T) {
	srv, hub := newTestServer(t, &fakeInbox{}, "http://localhost:5173")
	hub.SetBaseURL("https://example.atlassian.net")

	for _, origin := range []string{"", "https://evil.example.com", "not a url"} {
		req := httptest.NewRequest(http.MethodGet, "/events", nil)
		if origin != "" {
			req.Header.Set("Origin", origin)
		}
		w := httptest.NewRecorder()
		srv.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code, "origin %q", origin)
	}
	assert.Equal(t, 0, hub.Subscribers())
}

// readEvent reads the next event name and data from an event stream
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var event, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		case line == "" && event != "":
			return event, data
		}
	}
}

func TestEventsStreamsBroadcasts(t *testing.T) {
	srv, hub := newTestServer(t, &fakeInbox{})
	hub.SetBaseURL("https://Example.atlassian.net/")

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/events", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.atlassian.net")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "https://example.atlassian.net", resp.Header.Get("Access-Control-Allow-Origin"))

	r := bufio.NewReader(resp.Body)
	event, id := readEvent(t, r)
	assert.Equal(t, "ready", event)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, hub.Subscribers())

	hub.Broadcast([]types.AlertItem{{ID: "X-1:t1", Key: "X-1", Summary: "Checkout fails"}})

	event, data := readEvent(t, r)
	assert.Equal(t, "alerts", event)
	var items []types.AlertItem
	require.NoError(t, json.Unmarshal([]byte(data), &items))
	require.Len(t, items, 1)
	assert.Equal(t, "X-1", items[0].Key)

	cancel()
	require.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStartStop(t *testing.T) {
	hub := NewHub(nil, nil)
	srv, err := NewServer(Config{Addr: "127.0.0.1:0", Inbox: &fakeInbox{}, Hub: hub})
	require.NoError(t, err)

	require.NoError(t, srv.Start())
	assert.Error(t, srv.Start())

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.Equal(t, "", srv.Addr())
	require.NoError(t, srv.Stop(ctx))
}
