package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"synthnet/internal/core/domain"
	"synthnet/internal/core/ports"
	"synthnet/pkg/cache"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// Config tunes the lifecycle manager's supervision behaviour.
type Config struct {
	HeartbeatInterval    time.Duration
	ReconnectDelay       time.Duration
	MaxReconnectAttempts int
	DisconnectGrace      time.Duration
	ICEConfigURL         string
}

// DefaultConfig returns the supervision defaults.
func DefaultConfig() Config {
	return Config{
		HeartbeatInterval:    10 * time.Second,
		ReconnectDelay:       5 * time.Second,
		MaxReconnectAttempts: 5,
		DisconnectGrace:      2 * time.Second,
	}
}

// MessageHandler receives every text frame that arrives on a session's
// data channels.
type MessageHandler func(target domain.ClientID, channelLabel string, payload []byte)

// StatusHandler observes connection status changes, for a UI layer or
// the synth process's own bookkeeping.
type StatusHandler func(target domain.ClientID, status ConnectionStatus)

// Manager owns every peer connection session, keyed by target ID. It
// runs negotiation, supervises liveness, and applies the reconnection
// policy. All session state is mutated under mu; pion callbacks and
// timers funnel through it.
type Manager struct {
	cfg     Config
	localID domain.ClientID

	signals ports.SignalSender

	onMessage MessageHandler
	onStatus  StatusHandler

	mu       sync.Mutex
	sessions map[domain.ClientID]*Session

	httpClient *http.Client
	iceCache   *cache.Cache
	logger     *zap.SugaredLogger
}

// iceCacheTTL bounds how long a fetched ICE server list is reused before
// the relay's config endpoint is consulted again.
const iceCacheTTL = 5 * time.Minute

// fetchICEServersCached returns the ICE server list, consulting the
// relay's config endpoint at most once per cache window.
func (m *Manager) fetchICEServersCached(ctx context.Context) []webrtc.ICEServer {
	key := "ice:" + m.cfg.ICEConfigURL
	if cached, ok := m.iceCache.Get(key); ok {
		return cached.([]webrtc.ICEServer)
	}

	servers := FetchICEServers(ctx, m.httpClient, m.cfg.ICEConfigURL)
	m.iceCache.SetWithTTL(key, servers, iceCacheTTL)
	return servers
}

func NewManager(localID domain.ClientID, cfg Config, signals ports.SignalSender, logger *zap.SugaredLogger) *Manager {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	if cfg.DisconnectGrace <= 0 {
		cfg.DisconnectGrace = 2 * time.Second
	}
	return &Manager{
		cfg:        cfg,
		localID:    localID,
		signals:    signals,
		sessions:   make(map[domain.ClientID]*Session),
		httpClient: &http.Client{Timeout: 5 * time.Second},
		iceCache:   cache.New(iceCacheTTL),
		logger:     logger,
	}
}

// OnMessage installs the data-channel message handler.
func (m *Manager) OnMessage(fn MessageHandler) { m.onMessage = fn }

// OnStatus installs the status observer.
func (m *Manager) OnStatus(fn StatusHandler) { m.onStatus = fn }

func (m *Manager) notifyStatus(target domain.ClientID, status ConnectionStatus) {
	if m.onStatus != nil {
		go m.onStatus(target, status)
	}
}

// IsConnected reports whether the reliable channel to the target is open
// and the transport agrees.
func (m *Manager) IsConnected(target domain.ClientID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess, ok := m.sessions[target]
	if !ok || sess.pc == nil {
		return false
	}
	return sess.connected &&
		sess.channelOpen(domain.ChannelReliable) &&
		sess.pc.ConnectionState() == webrtc.PeerConnectionStateConnected
}

// InitiateConnection establishes a session toward the target as the
// offering side. Already-connected sessions are left alone; stale ones
// are torn down first.
func (m *Manager) InitiateConnection(ctx context.Context, target domain.ClientID) error {
	if m.IsConnected(target) {
		m.logger.Debugw("already connected, skipping initiate", "target", target)
		return nil
	}

	m.mu.Lock()
	prev := m.sessions[target]
	attempts := 0
	if prev != nil {
		attempts = prev.reconnectAttempts
	}
	if m.cfg.MaxReconnectAttempts > 0 && attempts > m.cfg.MaxReconnectAttempts {
		m.mu.Unlock()
		m.logger.Warnw("reconnect attempts exhausted, waiting for external trigger",
			"target", target,
			"attempts", attempts,
		)
		return fmt.Errorf("reconnect attempts exhausted for %s", target)
	}
	if prev != nil {
		m.teardownLocked(prev)
	}

	sess := newSession(target)
	sess.reconnectAttempts = attempts
	m.sessions[target] = sess
	m.mu.Unlock()

	m.notifyStatus(target, StatusConnecting)

	servers := m.fetchICEServersCached(ctx)
	pc, err := NewPeerConnection(servers)
	if err != nil {
		return m.failNegotiation(target, fmt.Errorf("create peer connection: %w", err))
	}

	m.mu.Lock()
	// The session may have been closed while we were fetching config.
	if m.sessions[target] != sess {
		m.mu.Unlock()
		pc.Close()
		return fmt.Errorf("session for %s was closed during setup", target)
	}
	sess.pc = pc
	sess.negotiation = NegotiationMakingOffer
	m.mu.Unlock()

	m.installCallbacks(sess, pc)

	if err := m.createChannels(sess, pc); err != nil {
		return m.failNegotiation(target, err)
	}

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		return m.failNegotiation(target, fmt.Errorf("create offer: %w", err))
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		return m.failNegotiation(target, fmt.Errorf("set local description: %w", err))
	}

	if !m.sendDescription(target, "offer", offer) {
		return m.failNegotiation(target, fmt.Errorf("signaling send failed for offer to %s", target))
	}

	m.logger.Infow("offer sent", "target", target, "attempt", attempts)
	return nil
}

// createChannels creates both data channels as the offering side.
func (m *Manager) createChannels(sess *Session, pc *webrtc.PeerConnection) error {
	ordered := true
	reliable, err := pc.CreateDataChannel(domain.ChannelReliable, &webrtc.DataChannelInit{
		Ordered: &ordered,
	})
	if err != nil {
		return fmt.Errorf("create reliable channel: %w", err)
	}

	unordered := false
	var zeroRetransmits uint16
	streaming, err := pc.CreateDataChannel(domain.ChannelStreaming, &webrtc.DataChannelInit{
		Ordered:        &unordered,
		MaxRetransmits: &zeroRetransmits,
	})
	if err != nil {
		return fmt.Errorf("create streaming channel: %w", err)
	}

	m.mu.Lock()
	sess.reliable = reliable
	sess.streaming = streaming
	m.mu.Unlock()

	m.installChannelCallbacks(sess, reliable)
	m.installChannelCallbacks(sess, streaming)
	return nil
}

// installCallbacks wires transport-level observers for a session.
func (m *Manager) installCallbacks(sess *Session, pc *webrtc.PeerConnection) {
	target := sess.targetID

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return // end of candidates
		}
		init := c.ToJSON()
		data, err := json.Marshal(init)
		if err != nil {
			return
		}
		m.signals.SendSignal(map[string]interface{}{
			"type":   "ice-candidate",
			"target": string(target),
			"data":   json.RawMessage(data),
		})
	})

	// Answering side receives the channels the offerer created. Only the
	// two known labels are accepted.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		label := dc.Label()
		m.mu.Lock()
		if m.sessions[target] != sess {
			m.mu.Unlock()
			return
		}
		switch label {
		case domain.ChannelReliable:
			sess.reliable = dc
		case domain.ChannelStreaming:
			sess.streaming = dc
		default:
			m.mu.Unlock()
			m.logger.Warnw("ignoring data channel with unknown label", "target", target, "label", label)
			return
		}
		m.mu.Unlock()
		m.installChannelCallbacks(sess, dc)
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		m.handleTransportState(sess, state.String())
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		m.handleTransportState(sess, state.String())
	})
}

// handleTransportState reconciles the local connected flag with what the
// transport reports, applying a grace period before treating degradation
// as real.
func (m *Manager) handleTransportState(sess *Session, state string) {
	target := sess.targetID
	m.logger.Debugw("transport state", "target", target, "state", state)

	switch state {
	case "connected", "completed":
		m.mu.Lock()
		if m.sessions[target] == sess && !sess.connected {
			// Benign ordering race: the channel open event may not
			// have arrived yet. Trust the transport.
			sess.connected = true
			if sess.graceTimer != nil {
				sess.graceTimer.Stop()
				sess.graceTimer = nil
			}
		}
		m.mu.Unlock()

	case "failed", "disconnected", "closed":
		m.mu.Lock()
		if m.sessions[target] != sess || sess.graceTimer != nil {
			m.mu.Unlock()
			return
		}
		// Give the transport a moment to recover on its own before
		// tearing down.
		sess.graceTimer = time.AfterFunc(m.cfg.DisconnectGrace, func() {
			m.mu.Lock()
			stale := m.sessions[target] != sess
			if !stale {
				sess.graceTimer = nil
			}
			recovered := false
			if !stale && sess.pc != nil {
				cs := sess.pc.ConnectionState()
				recovered = cs == webrtc.PeerConnectionStateConnected
			}
			m.mu.Unlock()

			if stale || recovered {
				return
			}
			m.logger.Warnw("transport did not recover within grace period", "target", target)
			m.handleEvent(target, EventConnectionLost)
		})
		m.mu.Unlock()
	}
}

// installChannelCallbacks wires open/close/message handlers for one
// data channel.
func (m *Manager) installChannelCallbacks(sess *Session, dc *webrtc.DataChannel) {
	target := sess.targetID
	label := dc.Label()

	dc.OnOpen(func() {
		m.logger.Infow("data channel open", "target", target, "label", label)

		if label != domain.ChannelReliable {
			return
		}

		m.mu.Lock()
		if m.sessions[target] != sess {
			m.mu.Unlock()
			return
		}
		sess.connected = true
		sess.negotiation = NegotiationIdle
		sess.reconnectAttempts = 0
		sess.stopHeartbeat()
		stop := make(chan struct{})
		sess.heartbeatStop = stop
		m.mu.Unlock()

		m.notifyStatus(target, StatusConnected)
		go m.heartbeatLoop(target, sess, stop)
	})

	dc.OnClose(func() {
		m.logger.Infow("data channel closed", "target", target, "label", label)
	})

	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if m.onMessage != nil {
			m.onMessage(target, label, msg.Data)
		}
	})
}

// heartbeatLoop sends heartbeat_ping on the reliable channel until the
// session closes. A send failure while supposedly connected triggers a
// connection re-verification.
func (m *Manager) heartbeatLoop(target domain.ClientID, sess *Session, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			payload, _ := json.Marshal(map[string]interface{}{
				"type":      domain.MsgHeartbeatPing,
				"timestamp": time.Now().UnixMilli(),
				"clientId":  string(m.localID),
			})
			if !m.SendDataOnChannel(target, domain.ChannelReliable, payload) {
				m.logger.Warnw("heartbeat send failed, re-verifying connection", "target", target)
				m.verifyConnection(target, sess)
			}
		}
	}
}

func (m *Manager) verifyConnection(target domain.ClientID, sess *Session) {
	m.mu.Lock()
	healthy := m.sessions[target] == sess &&
		sess.pc != nil &&
		sess.pc.ConnectionState() == webrtc.PeerConnectionStateConnected &&
		sess.channelOpen(domain.ChannelReliable)
	m.mu.Unlock()

	if !healthy {
		m.handleEvent(target, EventConnectionLost)
	}
}

// ProcessOffer handles an incoming offer, resolving glare by
// lexicographic politeness: the polite peer abandons its own offer and
// answers; the impolite peer ignores the incoming one.
func (m *Manager) ProcessOffer(ctx context.Context, data json.RawMessage, from domain.ClientID) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(data, &offer); err != nil || offer.SDP == "" {
		return fmt.Errorf("invalid offer from %s", from)
	}

	m.mu.Lock()
	sess := m.sessions[from]
	if sess != nil && sess.negotiation == NegotiationMakingOffer {
		if !domain.PolitePeer(m.localID, from) {
			m.mu.Unlock()
			m.logger.Infow("glare: ignoring offer, remote side yields", "from", from)
			return nil
		}
		// Polite side: abandon the local offer and answer theirs.
		m.logger.Infow("glare: abandoning local offer", "from", from)
		m.teardownLocked(sess)
		sess = nil
	}
	m.mu.Unlock()

	if sess == nil || sess.pc == nil {
		created, err := m.newAnsweringSession(ctx, from)
		if err != nil {
			return m.failNegotiation(from, err)
		}
		sess = created
	}

	m.mu.Lock()
	if m.sessions[from] != sess {
		m.mu.Unlock()
		return fmt.Errorf("session for %s was replaced during offer handling", from)
	}
	sess.negotiation = NegotiationAnswering
	pc := sess.pc
	m.mu.Unlock()

	if err := pc.SetRemoteDescription(offer); err != nil {
		return m.failNegotiation(from, fmt.Errorf("set remote offer: %w", err))
	}

	m.flushPendingCandidates(sess)

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return m.failNegotiation(from, fmt.Errorf("create answer: %w", err))
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		return m.failNegotiation(from, fmt.Errorf("set local answer: %w", err))
	}

	if !m.sendDescription(from, "answer", answer) {
		return m.failNegotiation(from, fmt.Errorf("signaling send failed for answer to %s", from))
	}

	m.mu.Lock()
	if m.sessions[from] == sess {
		sess.negotiation = NegotiationIdle
	}
	m.mu.Unlock()

	m.logger.Infow("answer sent", "target", from)
	return nil
}

func (m *Manager) newAnsweringSession(ctx context.Context, from domain.ClientID) (*Session, error) {
	servers := m.fetchICEServersCached(ctx)
	pc, err := NewPeerConnection(servers)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	sess := newSession(from)
	sess.pc = pc

	m.mu.Lock()
	if prev := m.sessions[from]; prev != nil {
		m.teardownLocked(prev)
	}
	m.sessions[from] = sess
	m.mu.Unlock()

	m.installCallbacks(sess, pc)
	m.notifyStatus(from, StatusConnecting)
	return sess, nil
}

// ProcessAnswer applies a remote answer, ignoring empties, answers with
// no matching session, and late duplicates arriving after the signaling
// state is already stable.
func (m *Manager) ProcessAnswer(ctx context.Context, data json.RawMessage, from domain.ClientID) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(data, &answer); err != nil || answer.SDP == "" {
		m.logger.Infow("ignoring empty or malformed answer", "from", from)
		return nil
	}

	m.mu.Lock()
	sess := m.sessions[from]
	if sess == nil || sess.pc == nil {
		m.mu.Unlock()
		m.logger.Infow("ignoring answer with no session", "from", from)
		return nil
	}
	if sess.pc.SignalingState() == webrtc.SignalingStateStable {
		m.mu.Unlock()
		m.logger.Infow("ignoring duplicate answer, signaling already stable", "from", from)
		return nil
	}
	pc := sess.pc
	m.mu.Unlock()

	if err := pc.SetRemoteDescription(answer); err != nil {
		return m.failNegotiation(from, fmt.Errorf("set remote answer: %w", err))
	}

	m.flushPendingCandidates(sess)

	m.mu.Lock()
	if m.sessions[from] == sess {
		sess.negotiation = NegotiationIdle
	}
	m.mu.Unlock()
	return nil
}

// AddRemoteICECandidate applies or queues a remote candidate. Null and
// empty candidates are end-of-candidates markers, not errors.
func (m *Manager) AddRemoteICECandidate(data json.RawMessage, from domain.ClientID) error {
	if len(data) == 0 || string(data) == "null" {
		return nil
	}

	var init webrtc.ICECandidateInit
	if err := json.Unmarshal(data, &init); err != nil {
		m.logger.Warnw("discarding unparseable ICE candidate", "from", from, "error", err)
		return nil
	}
	if init.Candidate == "" {
		return nil // explicit end-of-candidates
	}

	repairCandidate(&init)

	m.mu.Lock()
	sess := m.sessions[from]
	if sess == nil || sess.pc == nil {
		m.mu.Unlock()
		m.logger.Infow("discarding ICE candidate with no session", "from", from)
		return nil
	}
	if sess.pc.RemoteDescription() == nil {
		// Candidates can outrun the SDP on the signaling path; hold
		// them in receipt order until the description lands.
		sess.pendingCandidates = append(sess.pendingCandidates, init)
		m.mu.Unlock()
		return nil
	}
	pc := sess.pc
	m.mu.Unlock()

	if err := pc.AddICECandidate(init); err != nil {
		m.logCandidateError(from, err)
	}
	return nil
}

// flushPendingCandidates applies queued candidates in receipt order.
func (m *Manager) flushPendingCandidates(sess *Session) {
	m.mu.Lock()
	pending := sess.pendingCandidates
	sess.pendingCandidates = nil
	pc := sess.pc
	m.mu.Unlock()

	if pc == nil {
		return
	}
	for _, init := range pending {
		if err := pc.AddICECandidate(init); err != nil {
			m.logCandidateError(sess.targetID, err)
		}
	}
}

// logCandidateError distinguishes benign candidate failures (duplicates,
// candidates for a defunct transport) from real ones.
func (m *Manager) logCandidateError(from domain.ClientID, err error) {
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "duplicate") || strings.Contains(msg, "closed") || strings.Contains(msg, "failed") {
		m.logger.Infow("benign ICE candidate failure", "from", from, "error", err)
		return
	}
	m.logger.Errorw("failed to add ICE candidate", "from", from, "error", err)
}

// repairCandidate defaults the directional indices when a transport
// omitted both; AddICECandidate requires at least one.
func repairCandidate(init *webrtc.ICECandidateInit) {
	if init.SDPMid == nil && init.SDPMLineIndex == nil {
		mid := "0"
		var idx uint16
		init.SDPMid = &mid
		init.SDPMLineIndex = &idx
	}
}

// CloseConnection tears the session down. User-initiated closes never
// auto-reconnect; transport-initiated ones feed the reconnection state
// machine.
func (m *Manager) CloseConnection(target domain.ClientID, userInitiated bool) {
	m.mu.Lock()
	sess := m.sessions[target]
	if sess == nil {
		m.mu.Unlock()
		return
	}

	// Best-effort goodbye on the reliable channel.
	if sess.channelOpen(domain.ChannelReliable) {
		payload, _ := json.Marshal(map[string]interface{}{
			"type":      domain.MsgDisconnectNotice,
			"reason":    closeReason(userInitiated),
			"timestamp": time.Now().UnixMilli(),
			"clientId":  string(m.localID),
		})
		sess.reliable.Send(payload)
	}

	attempts := sess.reconnectAttempts
	m.teardownLocked(sess)
	delete(m.sessions, target)
	m.mu.Unlock()

	if userInitiated {
		m.notifyStatus(target, StatusClosed)
		m.handleEvent(target, EventUserDisconnected)
		return
	}

	m.scheduleReconnect(target, attempts)
}

func closeReason(userInitiated bool) string {
	if userInitiated {
		return "user_disconnect"
	}
	return "connection_failure"
}

// scheduleReconnect arms exactly one retry timer for the target, or
// gives up when the attempt budget is spent.
func (m *Manager) scheduleReconnect(target domain.ClientID, attempts int) {
	if m.cfg.MaxReconnectAttempts > 0 && attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Warnw("giving up on reconnection until external trigger",
			"target", target,
			"attempts", attempts,
		)
		m.notifyStatus(target, StatusFailed)
		return
	}

	m.mu.Lock()
	sess := m.sessions[target]
	if sess == nil {
		sess = newSession(target)
		m.sessions[target] = sess
	}
	sess.reconnectAttempts = attempts + 1
	if sess.retryTimer != nil {
		// A retry is already pending; never stack timers.
		m.mu.Unlock()
		return
	}
	sess.retryTimer = time.AfterFunc(m.cfg.ReconnectDelay, func() {
		m.handleEvent(target, EventRetryTimerFired)
	})
	m.mu.Unlock()

	m.notifyStatus(target, StatusReconnecting)
	m.logger.Infow("reconnect scheduled",
		"target", target,
		"attempt", attempts+1,
		"delay", m.cfg.ReconnectDelay,
	)
}

// handleEvent is the reconnection state machine's single entry point.
func (m *Manager) handleEvent(target domain.ClientID, event ReconnectEvent) {
	m.logger.Debugw("reconnect event", "target", target, "event", event.String())

	switch event {
	case EventConnectionLost:
		m.notifyStatus(target, StatusReconnecting)
		m.CloseConnection(target, false)

	case EventUserDisconnected:
		// Terminal: timers were cancelled in teardown, nothing rearms.

	case EventRetryTimerFired:
		m.mu.Lock()
		if sess := m.sessions[target]; sess != nil {
			sess.retryTimer = nil
		}
		m.mu.Unlock()
		if err := m.InitiateConnection(context.Background(), target); err != nil {
			m.logger.Warnw("reconnect attempt failed", "target", target, "error", err)
		}

	case EventControllerInfoReceived:
		// Fresh controller identity resets the attempt budget.
		m.mu.Lock()
		if sess := m.sessions[target]; sess != nil {
			sess.reconnectAttempts = 0
		}
		m.mu.Unlock()
	}
}

// ResetReconnectBudget feeds a controller-info event for the target,
// re-arming auto-reconnect after exhaustion.
func (m *Manager) ResetReconnectBudget(target domain.ClientID) {
	m.handleEvent(target, EventControllerInfoReceived)
}

// SendDataOnChannel writes payload to the named channel. Returns false
// when the channel is missing or not open. A reliable-channel send
// exception marks the connection suspect and schedules re-verification.
func (m *Manager) SendDataOnChannel(target domain.ClientID, label string, payload []byte) bool {
	m.mu.Lock()
	sess := m.sessions[target]
	if sess == nil || !sess.channelOpen(label) {
		m.mu.Unlock()
		return false
	}
	ch := sess.channelByLabel(label)
	m.mu.Unlock()

	if err := ch.Send(payload); err != nil {
		m.logger.Warnw("data channel send failed", "target", target, "label", label, "error", err)
		if label == domain.ChannelReliable {
			m.mu.Lock()
			if m.sessions[target] == sess {
				sess.connected = false
			}
			m.mu.Unlock()
			go m.verifyConnection(target, sess)
		}
		return false
	}
	return true
}

// failNegotiation logs a negotiation failure and tears down with
// reconnection semantics. Negotiation failures are recoverable, never
// fatal to the process.
func (m *Manager) failNegotiation(target domain.ClientID, err error) error {
	m.logger.Errorw("negotiation failed", "target", target, "error", err)
	m.CloseConnection(target, false)
	return err
}

// sendDescription ships an SDP to the target via the signaling channel.
func (m *Manager) sendDescription(target domain.ClientID, msgType string, desc webrtc.SessionDescription) bool {
	data, err := json.Marshal(desc)
	if err != nil {
		return false
	}
	return m.signals.SendSignal(map[string]interface{}{
		"type":   msgType,
		"target": string(target),
		"data":   json.RawMessage(data),
	})
}

// teardownLocked releases a session's resources. Caller holds m.mu.
func (m *Manager) teardownLocked(sess *Session) {
	sess.cancelTimers()
	sess.stopHeartbeat()
	sess.connected = false
	sess.negotiation = NegotiationIdle
	sess.pendingCandidates = nil

	if sess.reliable != nil {
		sess.reliable.Close()
		sess.reliable = nil
	}
	if sess.streaming != nil {
		sess.streaming.Close()
		sess.streaming = nil
	}
	if sess.pc != nil {
		sess.pc.Close()
		sess.pc = nil
	}
}

// Close shuts down every session without reconnection.
func (m *Manager) Close() {
	m.mu.Lock()
	targets := make([]domain.ClientID, 0, len(m.sessions))
	for id := range m.sessions {
		targets = append(targets, id)
	}
	m.mu.Unlock()

	for _, target := range targets {
		m.CloseConnection(target, true)
	}
	m.iceCache.Stop()
}

// Sessions returns the IDs of all current sessions.
func (m *Manager) Sessions() []domain.ClientID {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := make([]domain.ClientID, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}
