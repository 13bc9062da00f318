package ibgw

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// fakeGateway upgrades each stream request, drains inbound frames for holdFor,
// then drops the session, forcing the client through its reconnect path.
func fakeGateway(sessions *atomic.Int32, holdFor time.Duration) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		sessions.Add(1)
		conn.SetReadDeadline(time.Now().Add(holdFor))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		conn.Close()
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/stream"
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

// go test -race -v --run TestListenReconnectsUnderConcurrentRequests
func TestListenReconnectsUnderConcurrentRequests(t *testing.T) {
	var sessions atomic.Int32
	srv := fakeGateway(&sessions, 30*time.Millisecond)
	defer srv.Close()

	c := NewClient(wsURL(srv), time.Second, zap.NewNop())
	c.reconnectWait = 10 * time.Millisecond

	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}

	listenDone := make(chan struct{})
	go func() {
		c.Listen()
		close(listenDone)
	}()

	// Request traffic keeps flowing while sessions drop and reconnect; write
	// errors during the gaps are expected.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		until := time.Now().Add(400 * time.Millisecond)
		for time.Now().Before(until) {
			_ = c.RequestExecutions()
			_ = c.RequestAccountSummary("DU1234567")
			time.Sleep(2 * time.Millisecond)
		}
	}()
	<-writerDone

	if got := sessions.Load(); got < 2 {
		t.Errorf("expected at least one reconnect, saw %d sessions", got)
	}

	c.Close()
	select {
	case <-listenDone:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not exit after close")
	}
}

// go test -v --run TestSetEndpointAppliesOnReconnect
func TestSetEndpointAppliesOnReconnect(t *testing.T) {
	var oldSessions, newSessions atomic.Int32
	oldGW := fakeGateway(&oldSessions, 30*time.Millisecond)
	defer oldGW.Close()
	newGW := fakeGateway(&newSessions, 10*time.Second)
	defer newGW.Close()

	c := NewClient(wsURL(oldGW), time.Second, zap.NewNop())
	c.reconnectWait = 10 * time.Millisecond

	if err := c.Connect(); err != nil {
		t.Fatalf("connect: %v", err)
	}
	listenDone := make(chan struct{})
	go func() {
		c.Listen()
		close(listenDone)
	}()

	// The live session stays on the old gateway; the next cycle moves over
	c.SetEndpoint(wsURL(newGW))

	waitFor(t, 2*time.Second, func() bool { return newSessions.Load() >= 1 })
	if oldSessions.Load() != 1 {
		t.Errorf("endpoint change should not re-dial the old gateway, saw %d sessions", oldSessions.Load())
	}

	c.Close()
	select {
	case <-listenDone:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not exit after close")
	}
}

// go test -v --run TestNewClientHandshakeTimeout
func TestNewClientHandshakeTimeout(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/v1/stream", 3*time.Second, zap.NewNop())
	if c.dialer.HandshakeTimeout != 3*time.Second {
		t.Errorf("dial timeout not applied to handshake: %v", c.dialer.HandshakeTimeout)
	}

	// Zero keeps the dialer default
	c = NewClient("ws://127.0.0.1:1/v1/stream", 0, zap.NewNop())
	if c.dialer.HandshakeTimeout != websocket.DefaultDialer.HandshakeTimeout {
		t.Errorf("zero timeout should keep the default, got %v", c.dialer.HandshakeTimeout)
	}
}
