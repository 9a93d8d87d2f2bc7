package signal

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"synthnet/internal/core/domain"
	"synthnet/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// ClientHandlers receives inbound signaling traffic. Nil handlers are
// skipped. Callbacks run on the client's read goroutine; handlers that
// block stall the signaling stream.
type ClientHandlers struct {
	OnControllerInfo   func(controllerID string)
	OnOffer            func(source string, data json.RawMessage)
	OnAnswer           func(source string, data json.RawMessage)
	OnICECandidate     func(source string, data json.RawMessage)
	OnControllerKicked func(source, newControllerID string)
	OnServerError      func(message string)
}

// Client is the reconnecting signaling-relay client used by synth and
// controller processes. It registers on every (re)connect and keeps the
// socket alive with application heartbeats.
type Client struct {
	url      string
	clientID domain.ClientID
	handlers ClientHandlers

	heartbeatInterval time.Duration
	retryConfig       retry.Config

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	closed  bool

	logger *zap.SugaredLogger
}

func NewClient(url string, clientID domain.ClientID, handlers ClientHandlers, logger *zap.SugaredLogger) *Client {
	return &Client{
		url:               url,
		clientID:          clientID,
		handlers:          handlers,
		heartbeatInterval: 25 * time.Second,
		retryConfig: retry.Config{
			MaxAttempts:  10,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
			Jitter:       true,
		},
		logger: logger,
	}
}

// ID returns the client's registered identity.
func (c *Client) ID() domain.ClientID {
	return c.clientID
}

// Run connects, registers, and processes inbound messages until ctx is
// cancelled or Close is called, redialing on socket loss.
func (c *Client) Run(ctx context.Context) error {
	for {
		if c.isClosed() {
			return nil
		}

		var conn *websocket.Conn
		err := retry.Do(ctx, c.retryConfig, func() error {
			var dialErr error
			conn, _, dialErr = websocket.DefaultDialer.DialContext(ctx, c.url, nil)
			return dialErr
		})
		if err != nil {
			return err
		}

		c.mu.Lock()
		if c.closed {
			c.mu.Unlock()
			conn.Close()
			return nil
		}
		c.conn = conn
		c.mu.Unlock()

		c.logger.Infow("signaling connected", "url", c.url, "client_id", c.clientID)

		if !c.SendSignal(map[string]interface{}{"type": "register", "id": string(c.clientID)}) {
			conn.Close()
			continue
		}

		c.readUntilError(ctx, conn)

		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
		conn.Close()

		if ctx.Err() != nil {
			return ctx.Err()
		}
		if c.isClosed() {
			return nil
		}
		c.logger.Warnw("signaling connection lost, redialing", "client_id", c.clientID)
	}
}

func (c *Client) readUntilError(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		ticker := time.NewTicker(c.heartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !c.SendSignal(map[string]interface{}{"type": "heartbeat"}) {
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		var msg SignalMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !c.isClosed() && websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Infow("signaling read failed", "error", err)
			}
			return
		}
		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg SignalMessage) {
	switch msg.Type {
	case "controller-info":
		if c.handlers.OnControllerInfo != nil {
			// controllerId is a JSON null on controller loss, which
			// surfaces here as the empty string.
			id := ""
			if msg.ControllerID != nil {
				id = *msg.ControllerID
			}
			c.handlers.OnControllerInfo(id)
		}
	case "offer":
		if c.handlers.OnOffer != nil {
			c.handlers.OnOffer(msg.Source, relayPayload(msg))
		}
	case "answer":
		if c.handlers.OnAnswer != nil {
			c.handlers.OnAnswer(msg.Source, relayPayload(msg))
		}
	case "ice-candidate":
		if c.handlers.OnICECandidate != nil {
			c.handlers.OnICECandidate(msg.Source, relayPayload(msg))
		}
	case "controller-kicked":
		if c.handlers.OnControllerKicked != nil {
			c.handlers.OnControllerKicked(msg.Source, msg.NewControllerID)
		}
	case "error":
		if c.handlers.OnServerError != nil {
			c.handlers.OnServerError(msg.Message)
		}
	default:
		c.logger.Debugw("ignoring signaling message of unknown type", "type", msg.Type)
	}
}

// relayPayload prefers data but accepts the alternate sdp field.
func relayPayload(msg SignalMessage) json.RawMessage {
	if len(msg.Data) > 0 {
		return msg.Data
	}
	return msg.SDP
}

// SendSignal implements ports.SignalSender. Returns false when there is
// no live socket or the write fails; the caller treats that as "peer
// unreachable for now".
func (c *Client) SendSignal(msg map[string]interface{}) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return false
	}
	if err := conn.WriteJSON(msg); err != nil {
		c.logger.Infow("signaling send failed", "error", err)
		return false
	}
	return true
}

// Close stops the client permanently.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
