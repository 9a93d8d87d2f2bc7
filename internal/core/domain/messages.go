package domain

import "strings"

// Data channel labels. Exactly these two channels exist per peer
// connection; any other label arriving via ondatachannel is ignored.
const (
	ChannelReliable  = "reliable_control"
	ChannelStreaming = "streaming_updates"
)

// Data-channel message types.
const (
	MsgSetActiveInstrument  = "set_active_instrument"
	MsgSynthParam           = "synth_param"
	MsgSynthParamsFull      = "synth_params_full"
	MsgInstrumentCommand    = "instrument_command"
	MsgPlay                 = "play"
	MsgStop                 = "stop"
	MsgSetTempo             = "set_tempo"
	MsgSynchronisePhasors   = "synchronise_phasors"
	MsgNoteOn               = "note_on"
	MsgNoteOff              = "note_off"
	MsgSetPortamento        = "set_parameter_portamento"
	MsgSaveStateToBank      = "save_state_to_bank"
	MsgLoadStateFromBank    = "load_state_from_bank"
	MsgRequestResolvedState = "request_current_resolved_state"
	MsgInstrumentDefinition = "instrument_definition"
	MsgAppPing              = "app_ping"
	MsgAppPong              = "app_pong"
	MsgSaveBankAck          = "save_state_to_bank_ack"
	MsgLoadBankAck          = "load_state_from_bank_ack"
	MsgResolvedStateReport  = "current_resolved_state_report"
	MsgErrorReport          = "error_report"
	MsgDisconnectNotice     = "disconnect_notification"
	MsgHeartbeatPing        = "heartbeat_ping"
)

// error_report codes.
const (
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"
	ErrCodeProcessingError    = "message_processing_error"
)

// ApplyTiming qualifies when a parameter update takes effect.
const (
	ApplyImmediate       = "immediate"
	ApplyNextPhasorReset = "next_phasor_reset"
)

// Key prefixes that route a parameter to the nested-instrument state
// tree instead of the flat parameter map.
const (
	PrefixParameters     = "parameters."
	PrefixGlobalSettings = "global_settings."
)

// IsNestedParam reports whether a parameter key addresses the nested
// dot-path state shape rather than the flat map.
func IsNestedParam(key string) bool {
	return strings.HasPrefix(key, PrefixParameters) || strings.HasPrefix(key, PrefixGlobalSettings)
}

// reliableOnly lists the message types expected only on the reliable
// channel. Receiving one on the streaming channel is logged but still
// processed: ordering there is best-effort and the sender has been
// warned by contract, not by rejection.
var reliableOnly = map[string]bool{
	MsgSetActiveInstrument:  true,
	MsgInstrumentCommand:    true,
	MsgPlay:                 true,
	MsgStop:                 true,
	MsgSetTempo:             true,
	MsgSynchronisePhasors:   true,
	MsgSaveStateToBank:      true,
	MsgLoadStateFromBank:    true,
	MsgRequestResolvedState: true,
	MsgInstrumentDefinition: true,
	MsgSetPortamento:        true,
}

// ReliableOnly reports whether the type belongs on the reliable channel.
func ReliableOnly(msgType string) bool {
	return reliableOnly[msgType]
}
