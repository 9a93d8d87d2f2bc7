package webrtc

import (
	"time"

	"synthnet/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// NegotiationState tracks which side of an SDP exchange a session is on.
// It guards against overlapping negotiations and is the basis for glare
// resolution.
type NegotiationState int

const (
	NegotiationIdle NegotiationState = iota
	NegotiationMakingOffer
	NegotiationAnswering
)

func (s NegotiationState) String() string {
	switch s {
	case NegotiationIdle:
		return "idle"
	case NegotiationMakingOffer:
		return "making-offer"
	case NegotiationAnswering:
		return "answering"
	default:
		return "unknown"
	}
}

// ReconnectEvent drives the reconnection state machine. User-initiated
// close and automatic retry must never race: every transition goes
// through one of these events under the session lock.
type ReconnectEvent int

const (
	EventConnectionLost ReconnectEvent = iota
	EventUserDisconnected
	EventRetryTimerFired
	EventControllerInfoReceived
)

func (e ReconnectEvent) String() string {
	switch e {
	case EventConnectionLost:
		return "connection-lost"
	case EventUserDisconnected:
		return "user-disconnected"
	case EventRetryTimerFired:
		return "retry-timer-fired"
	case EventControllerInfoReceived:
		return "controller-info-received"
	default:
		return "unknown"
	}
}

// ConnectionStatus is the externally observable session state.
type ConnectionStatus string

const (
	StatusIdle         ConnectionStatus = "idle"
	StatusConnecting   ConnectionStatus = "connecting"
	StatusConnected    ConnectionStatus = "connected"
	StatusReconnecting ConnectionStatus = "reconnecting"
	StatusClosed       ConnectionStatus = "closed"
	StatusFailed       ConnectionStatus = "failed"
)

// Session owns one peer connection and its two data channels toward a
// single target. All fields are guarded by the Manager's mutex.
type Session struct {
	targetID domain.ClientID

	pc        *webrtc.PeerConnection
	reliable  *webrtc.DataChannel
	streaming *webrtc.DataChannel

	negotiation NegotiationState

	// Remote candidates that arrived before the remote description was
	// set; flushed in receipt order once it is.
	pendingCandidates []webrtc.ICECandidateInit

	connected bool

	reconnectAttempts int
	retryTimer        *time.Timer
	graceTimer        *time.Timer

	// heartbeatStop closes the heartbeat goroutine for this session's
	// reliable channel.
	heartbeatStop chan struct{}

	createdAt time.Time
}

func newSession(targetID domain.ClientID) *Session {
	return &Session{
		targetID:    targetID,
		negotiation: NegotiationIdle,
		createdAt:   time.Now(),
	}
}

// cancelTimers stops any pending retry or grace timer. Must run on every
// teardown path or a zombie timer can resurrect a closed connection.
func (s *Session) cancelTimers() {
	if s.retryTimer != nil {
		s.retryTimer.Stop()
		s.retryTimer = nil
	}
	if s.graceTimer != nil {
		s.graceTimer.Stop()
		s.graceTimer = nil
	}
}

// stopHeartbeat terminates the session's heartbeat goroutine, if running.
func (s *Session) stopHeartbeat() {
	if s.heartbeatStop != nil {
		close(s.heartbeatStop)
		s.heartbeatStop = nil
	}
}

// channelByLabel returns the session's channel with the given label.
func (s *Session) channelByLabel(label string) *webrtc.DataChannel {
	switch label {
	case domain.ChannelReliable:
		return s.reliable
	case domain.ChannelStreaming:
		return s.streaming
	default:
		return nil
	}
}

// channelOpen reports whether the labelled channel exists and is open.
func (s *Session) channelOpen(label string) bool {
	ch := s.channelByLabel(label)
	return ch != nil && ch.ReadyState() == webrtc.DataChannelStateOpen
}
