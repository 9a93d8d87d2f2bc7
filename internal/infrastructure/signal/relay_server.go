package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"synthnet/internal/core/domain"
	"synthnet/internal/core/ports"
	"synthnet/pkg/validation"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Should be configured properly for production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Metrics is the collector surface the relay reports to. A nil-safe
// no-op implementation is used when monitoring is disabled.
type Metrics interface {
	RecordClientConnected()
	RecordClientDisconnected()
	RecordControllerElection()
	RecordRelayed(msgType string)
	RecordQueued(msgType string)
	RecordDropped(reason string)
	RecordRateLimited()
}

type nopMetrics struct{}

func (nopMetrics) RecordClientConnected()    {}
func (nopMetrics) RecordClientDisconnected() {}
func (nopMetrics) RecordControllerElection() {}
func (nopMetrics) RecordRelayed(string)      {}
func (nopMetrics) RecordQueued(string)       {}
func (nopMetrics) RecordDropped(string)      {}
func (nopMetrics) RecordRateLimited()        {}

// SignalMessage is the JSON envelope for every frame on the signaling
// socket. Relay types carry their negotiation payload in Data; some
// controllers put raw SDP under the sdp key instead, so both are kept.
type SignalMessage struct {
	Type            string          `json:"type"`
	ID              string          `json:"id,omitempty"`
	Source          string          `json:"source,omitempty"`
	Target          string          `json:"target,omitempty"`
	Data            json.RawMessage `json:"data,omitempty"`
	SDP             json.RawMessage `json:"sdp,omitempty"`
	NewControllerID string          `json:"newControllerId,omitempty"`
	ControllerID    *string         `json:"controllerId,omitempty"`
	Message         string          `json:"message,omitempty"`
}

// controllerInfoMessage is sent as a reply to discovery and broadcast on
// every election. ControllerID is null when no controller is registered.
type controllerInfoMessage struct {
	Type         string  `json:"type"`
	ControllerID *string `json:"controllerId"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// clientConn wraps a socket with a write lock: relay, broadcast, and
// mailbox drain all write from different goroutines.
type clientConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *clientConn) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *clientConn) writeRaw(payload []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

func (c *clientConn) writePing(deadline time.Time) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(deadline)
	return c.conn.WriteMessage(websocket.PingMessage, nil)
}

// RelayServer registers clients by ID, tracks the single active
// controller, and relays or queues negotiation messages between peers.
type RelayServer struct {
	mailbox    ports.MailboxRepository
	controller ports.ControllerRepository

	connections map[domain.ClientID]*clientConn
	mu          sync.RWMutex

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	rateLimit      bool
	messagesPerSec float64
	burst          int

	metrics Metrics
	logger  *zap.SugaredLogger
}

func NewRelayServer(mailbox ports.MailboxRepository, controller ports.ControllerRepository, logger *zap.SugaredLogger) *RelayServer {
	return &RelayServer{
		mailbox:      mailbox,
		controller:   controller,
		connections:  make(map[domain.ClientID]*clientConn),
		pingInterval: 30 * time.Second,
		readTimeout:  60 * time.Second,
		writeTimeout: 10 * time.Second,
		metrics:      nopMetrics{},
		logger:       logger,
	}
}

// SetPingInterval sets the ping interval for WebSocket connections
func (s *RelayServer) SetPingInterval(interval time.Duration) {
	s.pingInterval = interval
}

// SetReadTimeout sets the read deadline window for WebSocket connections
func (s *RelayServer) SetReadTimeout(timeout time.Duration) {
	s.readTimeout = timeout
}

// SetMetrics installs a metrics collector
func (s *RelayServer) SetMetrics(m Metrics) {
	if m != nil {
		s.metrics = m
	}
}

// SetRateLimit enables per-connection inbound message rate limiting
func (s *RelayServer) SetRateLimit(messagesPerSec float64, burst int) {
	s.rateLimit = true
	s.messagesPerSec = messagesPerSec
	s.burst = burst
}

// HandleWebSocket owns one client socket from upgrade to close. The
// client is anonymous until its register message arrives.
func (s *RelayServer) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Errorw("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	client := &clientConn{conn: conn}
	var clientID domain.ClientID

	var limiter *rate.Limiter
	if s.rateLimit {
		limiter = rate.NewLimiter(rate.Limit(s.messagesPerSec), s.burst)
	}

	conn.SetReadDeadline(time.Now().Add(s.readTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.readTimeout))
		return nil
	})

	pingTicker := time.NewTicker(s.pingInterval)
	defer pingTicker.Stop()

	messageChan := make(chan []byte, 16)
	errorChan := make(chan error, 1)

	go func() {
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				errorChan <- err
				return
			}
			conn.SetReadDeadline(time.Now().Add(s.readTimeout))
			messageChan <- raw
		}
	}()

	for {
		select {
		case raw := <-messageChan:
			if limiter != nil && !limiter.Allow() {
				s.metrics.RecordRateLimited()
				s.logger.Warnw("rate limit exceeded, dropping message", "client_id", clientID)
				continue
			}
			clientID = s.handleMessage(context.Background(), client, clientID, raw)

		case <-pingTicker.C:
			if err := client.writePing(time.Now().Add(s.writeTimeout)); err != nil {
				s.logger.Infow("error sending ping", "client_id", clientID, "error", err)
				goto cleanup
			}

		case err := <-errorChan:
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				s.logger.Infow("error reading message from client", "client_id", clientID, "error", err)
			}
			goto cleanup
		}
	}

cleanup:
	s.unregister(context.Background(), client, clientID)
}

// handleMessage dispatches one inbound frame and returns the connection's
// registered ID, which changes only when a register message binds it.
func (s *RelayServer) handleMessage(ctx context.Context, client *clientConn, clientID domain.ClientID, raw []byte) domain.ClientID {
	var msg SignalMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		s.metrics.RecordDropped("malformed_json")
		s.logger.Warnw("dropping malformed signaling message", "client_id", clientID, "error", err)
		return clientID
	}
	if msg.Type == "" {
		s.metrics.RecordDropped("missing_type")
		s.logger.Warnw("dropping signaling message without type", "client_id", clientID)
		return clientID
	}

	switch msg.Type {
	case "register":
		return s.handleRegister(ctx, client, clientID, msg)

	case "get-controller":
		s.sendControllerInfo(ctx, client)

	case "heartbeat":
		// Keep-alive only; the read deadline was already refreshed.

	case "controller-kicked":
		s.handleControllerKicked(ctx, clientID, msg)

	case "offer", "answer", "ice-candidate":
		s.handleRelay(ctx, clientID, msg)

	default:
		s.metrics.RecordDropped("unknown_type")
		s.logger.Warnw("dropping signaling message of unknown type",
			"client_id", clientID,
			"type", msg.Type,
		)
	}

	return clientID
}

// handleRegister binds the socket to an ID and runs controller election
// or mailbox drain depending on the role the ID carries.
func (s *RelayServer) handleRegister(ctx context.Context, client *clientConn, prevID domain.ClientID, msg SignalMessage) domain.ClientID {
	if msg.ID == "" {
		// Registration is the one failure the sender must hear about:
		// without an ID it can never participate.
		client.writeJSON(errorMessage{Type: "error", Message: "register requires an id"})
		s.metrics.RecordDropped("register_missing_id")
		return prevID
	}
	if err := validation.ValidateClientID(msg.ID); err != nil {
		client.writeJSON(errorMessage{Type: "error", Message: fmt.Sprintf("invalid id: %v", err)})
		s.metrics.RecordDropped("register_invalid_id")
		return prevID
	}

	id := domain.ClientID(msg.ID)

	s.mu.Lock()
	if existing, ok := s.connections[id]; ok && existing != client {
		existing.conn.Close()
		s.logger.Infow("closing old connection for re-registering client", "client_id", id)
	}
	s.connections[id] = client
	s.mu.Unlock()

	s.metrics.RecordClientConnected()
	s.logger.Infow("client registered", "client_id", id, "controller", domain.IsControllerID(id))

	if domain.IsControllerID(id) {
		// Last writer wins; there is no negotiation between controllers.
		if err := s.controller.Set(ctx, id); err != nil {
			s.logger.Errorw("failed to record active controller", "client_id", id, "error", err)
		}
		s.metrics.RecordControllerElection()
		s.broadcastControllerInfo(id, string(id))
		return id
	}

	s.drainMailbox(ctx, id, client)
	s.sendControllerInfo(ctx, client)
	return id
}

// drainMailbox delivers every queued message for the client in enqueue
// order. Delivery failures drop the entry; they are never requeued.
func (s *RelayServer) drainMailbox(ctx context.Context, id domain.ClientID, client *clientConn) {
	err := s.mailbox.DrainAndDeliver(ctx, id, func(payload []byte) error {
		return client.writeRaw(payload)
	})
	if err != nil {
		s.logger.Warnw("mailbox drain failed", "client_id", id, "error", err)
	}
}

func (s *RelayServer) handleControllerKicked(ctx context.Context, clientID domain.ClientID, msg SignalMessage) {
	if msg.Target == "" {
		s.metrics.RecordDropped("missing_target")
		s.logger.Warnw("dropping controller-kicked without target", "client_id", clientID)
		return
	}

	out := SignalMessage{
		Type:            "controller-kicked",
		Source:          string(clientID),
		NewControllerID: msg.NewControllerID,
	}
	s.deliverOrQueue(ctx, domain.ClientID(msg.Target), out)
}

// handleRelay forwards offer/answer/ice-candidate to the target, queuing
// when the target has no open socket.
func (s *RelayServer) handleRelay(ctx context.Context, clientID domain.ClientID, msg SignalMessage) {
	if clientID == "" {
		s.metrics.RecordDropped("unregistered_sender")
		s.logger.Warnw("dropping relay message from unregistered socket", "type", msg.Type)
		return
	}
	if msg.Target == "" {
		s.metrics.RecordDropped("missing_target")
		s.logger.Warnw("dropping relay message without target", "client_id", clientID, "type", msg.Type)
		return
	}
	if len(msg.Data) == 0 && len(msg.SDP) == 0 {
		s.metrics.RecordDropped("missing_payload")
		s.logger.Warnw("dropping relay message without payload", "client_id", clientID, "type", msg.Type)
		return
	}

	out := SignalMessage{
		Type:   msg.Type,
		Source: string(clientID),
		Data:   msg.Data,
		SDP:    msg.SDP,
	}

	if msg.Type == "ice-candidate" {
		out.Data = RepairICECandidatePayload(out.Data)
	}

	s.deliverOrQueue(ctx, domain.ClientID(msg.Target), out)
}

// deliverOrQueue writes to the target's socket when it is connected,
// else parks the message in its mailbox.
func (s *RelayServer) deliverOrQueue(ctx context.Context, target domain.ClientID, msg SignalMessage) {
	payload, err := json.Marshal(msg)
	if err != nil {
		s.metrics.RecordDropped("marshal_failed")
		s.logger.Errorw("failed to marshal relay message", "target", target, "error", err)
		return
	}

	s.mu.RLock()
	client, online := s.connections[target]
	s.mu.RUnlock()

	if online {
		if err := client.writeRaw(payload); err != nil {
			// At-most-once: a failed socket write loses the message
			// rather than starting a duplicate storm via the mailbox.
			s.metrics.RecordDropped("write_failed")
			s.logger.Infow("failed to deliver relay message", "target", target, "error", err)
			return
		}
		s.metrics.RecordRelayed(msg.Type)
		s.logger.Debugw("relayed signaling message", "type", msg.Type, "source", msg.Source, "target", target)
		return
	}

	if err := s.mailbox.Enqueue(ctx, target, payload); err != nil {
		s.logger.Warnw("failed to queue message for offline target", "target", target, "error", err)
		return
	}
	s.metrics.RecordQueued(msg.Type)
	s.logger.Infow("queued signaling message for offline target", "type", msg.Type, "target", target)
}

func (s *RelayServer) sendControllerInfo(ctx context.Context, client *clientConn) {
	current, err := s.controller.Get(ctx)
	if err != nil {
		s.logger.Errorw("failed to read active controller", "error", err)
	}

	info := controllerInfoMessage{Type: "controller-info"}
	if current != "" {
		id := string(current)
		info.ControllerID = &id
	}
	if err := client.writeJSON(info); err != nil {
		s.logger.Infow("failed to send controller-info", "error", err)
	}
}

// broadcastControllerInfo notifies every connected socket except the
// subject itself. controllerID is empty on controller loss, which is
// broadcast the same way as controller gain.
func (s *RelayServer) broadcastControllerInfo(exclude domain.ClientID, controllerID string) {
	info := controllerInfoMessage{Type: "controller-info"}
	if controllerID != "" {
		info.ControllerID = &controllerID
	}

	s.mu.RLock()
	targets := make(map[domain.ClientID]*clientConn, len(s.connections))
	for id, client := range s.connections {
		if id != exclude {
			targets[id] = client
		}
	}
	s.mu.RUnlock()

	for id, client := range targets {
		if err := client.writeJSON(info); err != nil {
			s.logger.Infow("failed to broadcast controller-info", "client_id", id, "error", err)
		}
	}
}

// unregister removes the socket from the registry and, when it held the
// controller slot, clears and broadcasts the loss.
func (s *RelayServer) unregister(ctx context.Context, client *clientConn, clientID domain.ClientID) {
	if clientID == "" {
		return
	}

	s.mu.Lock()
	// A reconnect may already have rebound the ID to a newer socket.
	if current, ok := s.connections[clientID]; ok && current == client {
		delete(s.connections, clientID)
	}
	s.mu.Unlock()

	s.metrics.RecordClientDisconnected()

	if domain.IsControllerID(clientID) {
		cleared, err := s.controller.ClearIfOwner(ctx, clientID)
		if err != nil {
			s.logger.Errorw("failed to clear active controller", "client_id", clientID, "error", err)
		}
		if cleared {
			// Every client depends on the controller; its loss is
			// broadcast just like its arrival.
			s.broadcastControllerInfo(clientID, "")
		}
	}

	s.logger.Infow("client disconnected", "client_id", clientID)
}

// Additional methods for connection management

func (s *RelayServer) ConnectedClients() []domain.ClientID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]domain.ClientID, 0, len(s.connections))
	for id := range s.connections {
		ids = append(ids, id)
	}
	return ids
}

func (s *RelayServer) IsClientConnected(id domain.ClientID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.connections[id]
	return ok
}

