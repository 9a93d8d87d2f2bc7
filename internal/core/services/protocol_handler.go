package services

import (
	"encoding/json"
	"fmt"

	"synthnet/internal/core/domain"
	"synthnet/internal/core/ports"
	"synthnet/pkg/validation"

	"go.uber.org/zap"
)

// SendFunc writes a reply onto a named data channel. Returns false when
// the channel is unavailable; the handler logs and moves on.
type SendFunc func(channelLabel string, payload []byte) bool

// ProtocolHandler interprets JSON frames from the data channels and
// drives the audio engine. Every inbound message terminates in either a
// successful side effect or an error_report emission; nothing crashes
// the handler.
type ProtocolHandler struct {
	engine ports.AudioEngine
	logger *zap.SugaredLogger
}

func NewProtocolHandler(engine ports.AudioEngine, logger *zap.SugaredLogger) *ProtocolHandler {
	return &ProtocolHandler{
		engine: engine,
		logger: logger,
	}
}

// envelope is the minimal decode used to pick a dispatch arm.
type envelope struct {
	Type string `json:"type"`
}

// HandleMessage processes one frame from channelLabel, replying through
// send where a response is warranted.
func (h *ProtocolHandler) HandleMessage(channelLabel string, raw []byte, send SendFunc) {
	var msgType string
	defer func() {
		if r := recover(); r != nil {
			h.logger.Errorw("panic during message dispatch", "type", msgType, "panic", r)
			h.sendErrorReport(send, domain.ChannelReliable, msgType, domain.ErrCodeProcessingError,
				fmt.Sprintf("internal error processing %q", msgType))
		}
	}()

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		h.sendErrorReport(send, domain.ChannelReliable, "", domain.ErrCodeProcessingError,
			fmt.Sprintf("malformed JSON: %v", err))
		return
	}
	msgType = env.Type

	if domain.ReliableOnly(msgType) && channelLabel == domain.ChannelStreaming {
		// Lenient by contract: the streaming channel gives no ordering
		// guarantee, so control messages here are a caller bug, but
		// rejecting them would hide state rather than surface it.
		h.logger.Warnw("control message received on streaming channel", "type", msgType)
	}

	switch msgType {
	case domain.MsgSetActiveInstrument:
		h.handleSetActiveInstrument(raw, send)
	case domain.MsgSynthParam:
		h.handleSynthParam(raw, send)
	case domain.MsgSynthParamsFull:
		h.handleSynthParamsFull(raw, send)
	case domain.MsgInstrumentCommand:
		h.handleInstrumentCommand(raw, send)
	case domain.MsgPlay:
		h.engine.PlayPhasor()
	case domain.MsgStop:
		h.engine.StopPhasor()
	case domain.MsgSetTempo:
		h.handleSetTempo(raw, send)
	case domain.MsgSynchronisePhasors:
		// Phasor reset is the moment next_phasor_reset updates land.
		h.engine.SynchronisePhasor()
		h.engine.ApplyQueuedParamsNow()
	case domain.MsgNoteOn:
		h.handleNoteOn(raw, send)
	case domain.MsgNoteOff:
		h.handleNoteOff(raw)
	case domain.MsgSetPortamento:
		h.handleSetPortamento(raw, send)
	case domain.MsgSaveStateToBank:
		h.handleSaveBank(raw, send)
	case domain.MsgLoadStateFromBank:
		h.handleLoadBank(raw, send)
	case domain.MsgRequestResolvedState:
		h.handleResolvedStateRequest(send)
	case domain.MsgInstrumentDefinition:
		h.handleInstrumentDefinition(raw, send)
	case domain.MsgAppPing:
		h.handleAppPing(raw, channelLabel, send)
	case domain.MsgDisconnectNotice, domain.MsgHeartbeatPing:
		// Connection-maintenance traffic; no reply required.
		h.logger.Debugw("maintenance message", "type", msgType)
	default:
		h.sendErrorReport(send, domain.ChannelReliable, msgType, domain.ErrCodeUnknownMessageType,
			fmt.Sprintf("unrecognised message type %q", msgType))
	}
}

func (h *ProtocolHandler) handleSetActiveInstrument(raw []byte, send SendFunc) {
	var msg struct {
		InstrumentID  string                 `json:"instrument_id"`
		InitialParams map[string]interface{} `json:"initial_params"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.InstrumentID == "" {
		h.invalidPayload(send, domain.MsgSetActiveInstrument, "instrument_id is required")
		return
	}

	if err := h.engine.ActivateInstrument(msg.InstrumentID, msg.InitialParams); err != nil {
		h.logger.Errorw("instrument activation failed", "instrument_id", msg.InstrumentID, "error", err)
	}
}

func (h *ProtocolHandler) handleSynthParam(raw []byte, send SendFunc) {
	var msg struct {
		Param       string          `json:"param"`
		Value       json.RawMessage `json:"value"`
		ApplyTiming string          `json:"apply_timing"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Param == "" || len(msg.Value) == 0 {
		h.invalidPayload(send, domain.MsgSynthParam, "param and value are required")
		return
	}

	timing, ok := normaliseTiming(msg.ApplyTiming)
	if !ok {
		h.invalidPayload(send, domain.MsgSynthParam, fmt.Sprintf("unknown apply_timing %q", msg.ApplyTiming))
		return
	}

	var value interface{}
	if err := json.Unmarshal(msg.Value, &value); err != nil {
		h.invalidPayload(send, domain.MsgSynthParam, "value is not valid JSON")
		return
	}

	if err := h.applyParam(msg.Param, value, timing); err != nil {
		h.logger.Errorw("parameter update failed", "param", msg.Param, "error", err)
	}
}

func (h *ProtocolHandler) handleSynthParamsFull(raw []byte, send SendFunc) {
	var msg struct {
		Params      map[string]interface{} `json:"params"`
		ApplyTiming string                 `json:"apply_timing"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Params == nil {
		h.invalidPayload(send, domain.MsgSynthParamsFull, "params object is required")
		return
	}

	timing, ok := normaliseTiming(msg.ApplyTiming)
	if !ok {
		h.invalidPayload(send, domain.MsgSynthParamsFull, fmt.Sprintf("unknown apply_timing %q", msg.ApplyTiming))
		return
	}

	// Each key routes independently; one bad key must not abort the rest.
	for key, value := range msg.Params {
		if err := h.applyParam(key, value, timing); err != nil {
			h.logger.Errorw("bulk parameter update failed", "param", key, "error", err)
		}
	}
}

// applyParam routes a single key to the nested state tree or the flat
// setter. Nested routing requires an active instrument; without one the
// dot path is meaningless and falls through to the flat map.
func (h *ProtocolHandler) applyParam(key string, value interface{}, timing string) error {
	if h.engine.ActiveInstrumentID() != "" && domain.IsNestedParam(key) {
		return h.engine.UpdateNestedParam(key, value, timing)
	}
	return h.engine.UpdateSynthParam(key, value, timing)
}

func (h *ProtocolHandler) handleInstrumentCommand(raw []byte, send SendFunc) {
	var msg struct {
		Name string                 `json:"name"`
		Args map[string]interface{} `json:"args"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Name == "" {
		h.invalidPayload(send, domain.MsgInstrumentCommand, "name is required")
		return
	}

	if err := h.engine.ExecuteInstrumentCommand(msg.Name, msg.Args); err != nil {
		h.logger.Errorw("instrument command failed", "name", msg.Name, "error", err)
	}
}

func (h *ProtocolHandler) handleSetTempo(raw []byte, send SendFunc) {
	var msg struct {
		CPM *float64 `json:"cpm"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.CPM == nil || *msg.CPM <= 0 {
		h.invalidPayload(send, domain.MsgSetTempo, "cpm must be a number > 0")
		return
	}

	if err := h.engine.SetTempo(*msg.CPM); err != nil {
		h.logger.Errorw("tempo change failed", "cpm", *msg.CPM, "error", err)
	}
}

func (h *ProtocolHandler) handleNoteOn(raw []byte, send SendFunc) {
	var msg map[string]interface{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		h.invalidPayload(send, domain.MsgNoteOn, "malformed note_on")
		return
	}
	if _, ok := validation.CoerceFloat(msg["pitch"]); !ok {
		h.invalidPayload(send, domain.MsgNoteOn, "pitch must be a number")
		return
	}

	// The engine gets the whole message: velocity, duration, and any
	// instrument-specific extras ride along.
	h.engine.HandleExternalNoteOn(msg)
}

func (h *ProtocolHandler) handleNoteOff(raw []byte) {
	var msg map[string]interface{}
	if err := json.Unmarshal(raw, &msg); err != nil {
		msg = map[string]interface{}{}
	}
	h.engine.HandleExternalNoteOff(msg)
}

func (h *ProtocolHandler) handleSetPortamento(raw []byte, send SendFunc) {
	var msg struct {
		DurationMS *float64 `json:"duration_ms"`
		Curve      string   `json:"curve"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.DurationMS == nil || *msg.DurationMS < 0 {
		h.invalidPayload(send, domain.MsgSetPortamento, "duration_ms must be a number >= 0")
		return
	}

	h.engine.SetParameterPortamento(*msg.DurationMS, msg.Curve)
}

func (h *ProtocolHandler) handleSaveBank(raw []byte, send SendFunc) {
	index, ok := h.decodeBankIndex(raw, domain.MsgSaveStateToBank, send)
	if !ok {
		return
	}

	result := h.engine.SaveStateToBank(index)
	h.sendBankAck(send, domain.MsgSaveBankAck, index, result)
}

func (h *ProtocolHandler) handleLoadBank(raw []byte, send SendFunc) {
	index, ok := h.decodeBankIndex(raw, domain.MsgLoadStateFromBank, send)
	if !ok {
		return
	}

	result := h.engine.LoadStateFromBank(index)
	h.sendBankAck(send, domain.MsgLoadBankAck, index, result)
}

func (h *ProtocolHandler) decodeBankIndex(raw []byte, msgType string, send SendFunc) (int, bool) {
	var msg struct {
		BankIndex *int `json:"bank_index"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.BankIndex == nil {
		h.invalidPayload(send, msgType, "bank_index is required")
		return 0, false
	}
	if err := validation.ValidateBankIndex(*msg.BankIndex); err != nil {
		h.invalidPayload(send, msgType, err.Error())
		return 0, false
	}
	return *msg.BankIndex, true
}

// sendBankAck reports the bank operation's outcome. On failure the
// status carries the operation's own error string, not a generic code.
func (h *ProtocolHandler) sendBankAck(send SendFunc, ackType string, index int, result ports.BankResult) {
	status := "success"
	if !result.Success {
		status = result.Error
		if status == "" {
			status = "error"
		}
	}

	h.reply(send, domain.ChannelReliable, map[string]interface{}{
		"type":          ackType,
		"bank_index":    index,
		"status":        status,
		"instrument_id": result.InstrumentID,
	})
}

func (h *ProtocolHandler) handleResolvedStateRequest(send SendFunc) {
	state := h.engine.GetCurrentResolvedState()

	h.reply(send, domain.ChannelReliable, map[string]interface{}{
		"type":                   domain.MsgResolvedStateReport,
		"instrument_id":          h.engine.ActiveInstrumentID(),
		"is_playing":             h.engine.IsPlaying(),
		"is_muted":               h.engine.IsMuted(),
		"audio_context_state":    h.engine.AudioContextState(),
		"params":                 state.Params,
		"global_settings":        state.GlobalSettings,
		"dynamic_internal_state": state.DynamicInternalState,
	})
}

func (h *ProtocolHandler) handleInstrumentDefinition(raw []byte, send SendFunc) {
	var msg struct {
		InstrumentID string                 `json:"instrument_id"`
		Definition   map[string]interface{} `json:"definition"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.InstrumentID == "" {
		h.invalidPayload(send, domain.MsgInstrumentDefinition, "instrument_id is required")
		return
	}

	// Advisory only: cached for recovery, never persisted here.
	h.engine.CacheInstrumentDefinition(msg.InstrumentID, msg.Definition)
}

func (h *ProtocolHandler) handleAppPing(raw []byte, channelLabel string, send SendFunc) {
	var msg struct {
		Timestamp *float64 `json:"timestamp"`
	}
	if err := json.Unmarshal(raw, &msg); err != nil || msg.Timestamp == nil {
		h.invalidPayload(send, domain.MsgAppPing, "timestamp must be a number")
		return
	}

	// Pong goes back on whichever channel the ping used, so round-trip
	// timing measures the channel the caller cares about.
	h.reply(send, channelLabel, map[string]interface{}{
		"type":               domain.MsgAppPong,
		"original_timestamp": *msg.Timestamp,
	})
}

func (h *ProtocolHandler) invalidPayload(send SendFunc, msgType, detail string) {
	h.sendErrorReport(send, domain.ChannelReliable, msgType, domain.ErrCodeInvalidPayload, detail)
}

func (h *ProtocolHandler) sendErrorReport(send SendFunc, channelLabel, originalType, code, detail string) {
	h.logger.Warnw("protocol error", "original_type", originalType, "code", code, "detail", detail)
	h.reply(send, channelLabel, map[string]interface{}{
		"type":                  domain.MsgErrorReport,
		"original_message_type": originalType,
		"error_code":            code,
		"message":               detail,
	})
}

func (h *ProtocolHandler) reply(send SendFunc, channelLabel string, msg map[string]interface{}) {
	if send == nil {
		return
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		h.logger.Errorw("failed to marshal reply", "type", msg["type"], "error", err)
		return
	}
	if !send(channelLabel, payload) {
		h.logger.Infow("reply dropped, channel unavailable", "type", msg["type"], "channel", channelLabel)
	}
}

// normaliseTiming maps the wire apply_timing value to a canonical one.
func normaliseTiming(timing string) (string, bool) {
	switch timing {
	case "", domain.ApplyImmediate:
		return domain.ApplyImmediate, true
	case domain.ApplyNextPhasorReset:
		return domain.ApplyNextPhasorReset, true
	default:
		return "", false
	}
}
