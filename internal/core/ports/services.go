package ports

// BankResult is the outcome of a bank save/load on the audio engine.
type BankResult struct {
	Success      bool
	InstrumentID string
	Error        string
}

// ResolvedState is the engine's snapshot of its effective state, as
// reported in current_resolved_state_report.
type ResolvedState struct {
	Params               map[string]interface{}
	GlobalSettings       map[string]interface{}
	DynamicInternalState map[string]interface{}
}

// AudioEngine is the synthesis collaborator. The core never builds audio
// graphs itself; it drives this interface and reports what it returns.
type AudioEngine interface {
	ActivateInstrument(id string, initialParams map[string]interface{}) error
	UpdateSynthParam(param string, value interface{}, applyTiming string) error
	// UpdateNestedParam takes a dot-path key ("parameters.X.value",
	// "global_settings.Y") for instruments with nested state.
	UpdateNestedParam(path string, value interface{}, applyTiming string) error
	ExecuteInstrumentCommand(name string, args map[string]interface{}) error

	PlayPhasor()
	StopPhasor()
	SetTempo(cpm float64) error
	// SynchronisePhasor resets the phasor to the reference phase and
	// flushes both queued-parameter buffers.
	SynchronisePhasor()
	ApplyQueuedParamsNow()

	HandleExternalNoteOn(msg map[string]interface{})
	HandleExternalNoteOff(msg map[string]interface{})
	SetParameterPortamento(durationMS float64, curve string)

	SaveStateToBank(index int) BankResult
	LoadStateFromBank(index int) BankResult

	GetCurrentResolvedState() ResolvedState
	CacheInstrumentDefinition(id string, definition map[string]interface{})

	ActiveInstrumentID() string
	IsPlaying() bool
	IsMuted() bool
	AudioContextState() string
}

// SignalSender transmits a signaling message without exposing transport
// details. Returns false when the message could not be handed to the
// transport (not when the far end failed to receive it).
type SignalSender interface {
	SendSignal(msg map[string]interface{}) bool
}
