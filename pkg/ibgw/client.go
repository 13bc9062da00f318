package ibgw

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// State is the transport-level session state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// Client handles the websocket session to the broker terminal gateway and
// message routing. The session is read-only: the only outbound frames are
// subscriptions and data requests, never order operations.
type Client struct {
	urlMu sync.RWMutex
	url   string

	args    []string
	dialer  websocket.Dialer
	handler func([]byte)
	stateFn func(State)
	logger  *zap.Logger

	reconnectWait time.Duration

	// writeMu guards conn for both frame writes (gorilla allows one
	// concurrent writer) and the pointer itself: the poller writes request
	// frames while the listen goroutine swaps connections on reconnect.
	writeMu sync.Mutex
	conn    *websocket.Conn
	closed  atomic.Bool
}

// NewClient creates a gateway client for the given stream URL. dialTimeout
// bounds the websocket handshake; zero keeps the dialer default.
func NewClient(url string, dialTimeout time.Duration, logger *zap.Logger) *Client {
	dialer := *websocket.DefaultDialer
	if dialTimeout > 0 {
		dialer.HandshakeTimeout = dialTimeout
	}
	return &Client{
		url: url,
		args: []string{
			TopicExecution,
			TopicAccountValue,
			TopicCommission,
			TopicManagedAccounts,
		},
		dialer:        dialer,
		logger:        logger,
		reconnectWait: 3 * time.Second,
	}
}

// SetMessageHandler sets the function to handle incoming frames.
func (c *Client) SetMessageHandler(h func([]byte)) {
	c.handler = h
}

// SetStateHandler sets the function notified on session state transitions.
func (c *Client) SetStateHandler(h func(State)) {
	c.stateFn = h
}

// SetEndpoint changes the gateway URL for future dials. The live session is
// untouched; the new endpoint takes effect on the next connect cycle.
func (c *Client) SetEndpoint(url string) {
	c.urlMu.Lock()
	c.url = url
	c.urlMu.Unlock()
}

func (c *Client) endpoint() string {
	c.urlMu.RLock()
	defer c.urlMu.RUnlock()
	return c.url
}

// Connect establishes the websocket session and subscribes to the event
// topics. It does not start the listener.
func (c *Client) Connect() error {
	c.setState(StateConnecting)

	conn, _, err := c.dialer.Dial(c.endpoint(), nil)
	if err != nil {
		c.logger.Error("failed to connect to gateway", zap.String("url", c.endpoint()), zap.Error(err))
		c.setState(StateDisconnected)
		return err
	}
	if old := c.swapConn(conn); old != nil {
		_ = old.Close()
	}
	c.logger.Info("gateway connected", zap.String("url", c.endpoint()))

	if err := c.subscribe(); err != nil {
		c.logger.Error("failed to send subscription", zap.Error(err))
		c.dropConn()
		c.setState(StateDisconnected)
		return err
	}

	c.setState(StateConnected)
	return nil
}

// Listen reads frames until the client is closed, reconnecting indefinitely
// on read errors. The gateway replays recent executions after a reconnect;
// the downstream merge makes that safe.
func (c *Client) Listen() {
	for {
		conn := c.current()
		if conn == nil {
			return
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Error("gateway read error", zap.Error(err))
			c.setState(StateDisconnected)

			for {
				time.Sleep(c.reconnectWait)
				if c.closed.Load() {
					return
				}
				if err := c.reconnectAndResubscribe(); err != nil {
					c.logger.Warn("retrying gateway reconnect...")
					continue
				}
				c.logger.Info("gateway reconnected")
				break
			}
			continue // start listening again with the new connection
		}

		if c.handler != nil {
			c.handler(msg)
		}
	}
}

// RequestExecutions asks the terminal to replay execution reports for the
// current session.
func (c *Client) RequestExecutions() error {
	return c.writeJSON(request{
		Op:    "reqExecutions",
		ReqID: uuid.NewString(),
	})
}

// RequestAccountSummary polls the NetLiquidation value for one account.
func (c *Client) RequestAccountSummary(account string) error {
	return c.writeJSON(request{
		Op:      "reqAccountSummary",
		ReqID:   uuid.NewString(),
		Account: account,
		Tags:    []string{"NetLiquidation"},
	})
}

// Close shuts the session down for good; Listen will not reconnect.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.setState(StateDisconnected)
	if old := c.swapConn(nil); old != nil {
		return old.Close()
	}
	return nil
}

func (c *Client) subscribe() error {
	return c.writeJSON(request{
		Op:   "subscribe",
		Args: c.args,
	})
}

func (c *Client) reconnectAndResubscribe() error {
	c.setState(StateConnecting)

	conn, _, err := c.dialer.Dial(c.endpoint(), nil)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}
	if old := c.swapConn(conn); old != nil {
		_ = old.Close()
	}

	if err := c.subscribe(); err != nil {
		c.dropConn()
		c.setState(StateDisconnected)
		return fmt.Errorf("gateway subscribe failed: %w", err)
	}

	c.setState(StateConnected)
	return nil
}

// current returns the live connection, nil when closed or never connected.
func (c *Client) current() *websocket.Conn {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn
}

// swapConn installs a new connection and hands back the previous one for the
// caller to close. Closing outside the lock is safe: gorilla permits Close
// concurrent with reads, and no writer can still hold the old pointer.
func (c *Client) swapConn(conn *websocket.Conn) *websocket.Conn {
	c.writeMu.Lock()
	old := c.conn
	c.conn = conn
	c.writeMu.Unlock()
	return old
}

// dropConn closes and clears the current connection.
func (c *Client) dropConn() {
	if old := c.swapConn(nil); old != nil {
		_ = old.Close()
	}
}

func (c *Client) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("gateway not connected")
	}
	return c.conn.WriteJSON(v)
}

func (c *Client) setState(s State) {
	if c.stateFn != nil {
		c.stateFn(s)
	}
}
