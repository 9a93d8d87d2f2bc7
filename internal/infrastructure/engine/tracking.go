// Package engine provides an in-memory AudioEngine used by the headless
// synth process and by tests. It tracks every command the protocol layer
// issues and resolves state exactly as a rendering engine would, minus
// the audio graph.
package engine

import (
	"fmt"
	"strings"
	"sync"

	"synthnet/internal/core/domain"
	"synthnet/internal/core/ports"
	"synthnet/pkg/validation"

	"go.uber.org/zap"
)

type bankSnapshot struct {
	instrumentID   string
	params         map[string]interface{}
	nested         map[string]interface{}
	globalSettings map[string]interface{}
}

// BankState is the serializable form of one saved bank slot.
type BankState struct {
	InstrumentID   string                 `json:"instrumentId"`
	Params         map[string]interface{} `json:"params"`
	Nested         map[string]interface{} `json:"nested,omitempty"`
	GlobalSettings map[string]interface{} `json:"globalSettings,omitempty"`
}

// TrackingEngine is a state-tracking ports.AudioEngine.
type TrackingEngine struct {
	mu sync.Mutex

	instrumentID string
	definitions  map[string]map[string]interface{}

	params         map[string]interface{} // flat parameter map
	nested         map[string]interface{} // "parameters.*" dot paths, prefix stripped
	globalSettings map[string]interface{} // "global_settings.*" dot paths, prefix stripped

	queuedFlat   map[string]interface{}
	queuedNested map[string]interface{}

	playing bool
	muted   bool
	cpm     float64

	portamentoMS    float64
	portamentoCurve string

	banks map[int]bankSnapshot

	lastCommand     string
	lastCommandArgs map[string]interface{}

	logger *zap.SugaredLogger
}

func NewTrackingEngine(logger *zap.SugaredLogger) *TrackingEngine {
	return &TrackingEngine{
		definitions:    make(map[string]map[string]interface{}),
		params:         make(map[string]interface{}),
		nested:         make(map[string]interface{}),
		globalSettings: make(map[string]interface{}),
		queuedFlat:     make(map[string]interface{}),
		queuedNested:   make(map[string]interface{}),
		cpm:            60,
		banks:          make(map[int]bankSnapshot),
		logger:         logger,
	}
}

func (e *TrackingEngine) ActivateInstrument(id string, initialParams map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.instrumentID = id
	e.nested = make(map[string]interface{})
	e.globalSettings = make(map[string]interface{})
	e.queuedNested = make(map[string]interface{})

	for key, value := range initialParams {
		e.storeLocked(key, value)
	}

	e.logger.Infow("instrument activated", "instrument_id", id, "initial_params", len(initialParams))
	return nil
}

func (e *TrackingEngine) UpdateSynthParam(param string, value interface{}, applyTiming string) error {
	if err := validation.ValidateParamKey(param); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if applyTiming == domain.ApplyNextPhasorReset {
		e.queuedFlat[param] = value
		return nil
	}
	e.storeLocked(param, value)
	return nil
}

func (e *TrackingEngine) UpdateNestedParam(path string, value interface{}, applyTiming string) error {
	if err := validation.ValidateParamKey(path); err != nil {
		return err
	}
	if !domain.IsNestedParam(path) {
		return fmt.Errorf("not a nested parameter path: %s", path)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.instrumentID == "" {
		return domain.ErrNoActiveInstrument
	}

	if applyTiming == domain.ApplyNextPhasorReset {
		e.queuedNested[path] = value
		return nil
	}
	e.storeLocked(path, value)
	return nil
}

// storeLocked routes one key to its state map. The mute key goes
// through the wire boolean coercion table. Caller holds e.mu.
func (e *TrackingEngine) storeLocked(key string, value interface{}) {
	switch {
	case key == "mute":
		if muted, ok := validation.CoerceBool(value); ok {
			e.muted = muted
		} else {
			e.logger.Warnw("ignoring non-boolean mute value", "value", value)
		}
	case strings.HasPrefix(key, domain.PrefixParameters):
		e.nested[strings.TrimPrefix(key, domain.PrefixParameters)] = value
	case strings.HasPrefix(key, domain.PrefixGlobalSettings):
		e.globalSettings[strings.TrimPrefix(key, domain.PrefixGlobalSettings)] = value
	default:
		e.params[key] = value
	}
}

func (e *TrackingEngine) ExecuteInstrumentCommand(name string, args map[string]interface{}) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.lastCommand = name
	e.lastCommandArgs = args

	switch name {
	case "mute":
		e.muted = true
	case "unmute":
		e.muted = false
	}

	e.logger.Debugw("instrument command", "name", name)
	return nil
}

func (e *TrackingEngine) PlayPhasor() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = true
}

func (e *TrackingEngine) StopPhasor() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
}

func (e *TrackingEngine) SetTempo(cpm float64) error {
	if cpm <= 0 {
		return fmt.Errorf("cpm must be > 0, got %v", cpm)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.cpm = cpm
	return nil
}

func (e *TrackingEngine) SynchronisePhasor() {
	e.mu.Lock()
	defer e.mu.Unlock()
	// Phase snaps to the reference point; queued updates are flushed by
	// the caller via ApplyQueuedParamsNow.
	e.logger.Debugw("phasor synchronised", "cpm", e.cpm)
}

func (e *TrackingEngine) ApplyQueuedParamsNow() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for key, value := range e.queuedFlat {
		e.storeLocked(key, value)
	}
	for key, value := range e.queuedNested {
		e.storeLocked(key, value)
	}
	e.queuedFlat = make(map[string]interface{})
	e.queuedNested = make(map[string]interface{})
}

func (e *TrackingEngine) HandleExternalNoteOn(msg map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.params["last_note_on"] = msg["pitch"]
}

func (e *TrackingEngine) HandleExternalNoteOff(msg map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.params, "last_note_on")
}

func (e *TrackingEngine) SetParameterPortamento(durationMS float64, curve string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.portamentoMS = durationMS
	e.portamentoCurve = curve
}

func (e *TrackingEngine) SaveStateToBank(index int) ports.BankResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.instrumentID == "" {
		return ports.BankResult{Success: false, Error: domain.ErrNoActiveInstrument.Error()}
	}

	e.banks[index] = bankSnapshot{
		instrumentID:   e.instrumentID,
		params:         copyMap(e.params),
		nested:         copyMap(e.nested),
		globalSettings: copyMap(e.globalSettings),
	}
	return ports.BankResult{Success: true, InstrumentID: e.instrumentID}
}

func (e *TrackingEngine) LoadStateFromBank(index int) ports.BankResult {
	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot, ok := e.banks[index]
	if !ok {
		return ports.BankResult{Success: false, Error: domain.ErrBankNotFound.Error()}
	}

	e.instrumentID = snapshot.instrumentID
	e.params = copyMap(snapshot.params)
	e.nested = copyMap(snapshot.nested)
	e.globalSettings = copyMap(snapshot.globalSettings)
	return ports.BankResult{Success: true, InstrumentID: snapshot.instrumentID}
}

func (e *TrackingEngine) GetCurrentResolvedState() ports.ResolvedState {
	e.mu.Lock()
	defer e.mu.Unlock()

	return ports.ResolvedState{
		Params:         mergeMaps(e.params, e.nested),
		GlobalSettings: copyMap(e.globalSettings),
		DynamicInternalState: map[string]interface{}{
			"cpm":              e.cpm,
			"portamento_ms":    e.portamentoMS,
			"portamento_curve": e.portamentoCurve,
			"queued_updates":   len(e.queuedFlat) + len(e.queuedNested),
		},
	}
}

func (e *TrackingEngine) CacheInstrumentDefinition(id string, definition map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.definitions[id] = definition
}

func (e *TrackingEngine) ActiveInstrumentID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instrumentID
}

func (e *TrackingEngine) IsPlaying() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.playing
}

func (e *TrackingEngine) IsMuted() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.muted
}

func (e *TrackingEngine) AudioContextState() string {
	return "running"
}

// ExportBanks returns a serializable copy of every saved bank slot.
func (e *TrackingEngine) ExportBanks() map[int]BankState {
	e.mu.Lock()
	defer e.mu.Unlock()

	exported := make(map[int]BankState, len(e.banks))
	for index, snapshot := range e.banks {
		exported[index] = BankState{
			InstrumentID:   snapshot.instrumentID,
			Params:         copyMap(snapshot.params),
			Nested:         copyMap(snapshot.nested),
			GlobalSettings: copyMap(snapshot.globalSettings),
		}
	}
	return exported
}

// ImportBanks replaces the saved bank slots with a restored snapshot.
func (e *TrackingEngine) ImportBanks(banks map[int]BankState) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.banks = make(map[int]bankSnapshot, len(banks))
	for index, state := range banks {
		e.banks[index] = bankSnapshot{
			instrumentID:   state.InstrumentID,
			params:         copyMap(state.Params),
			nested:         copyMap(state.Nested),
			globalSettings: copyMap(state.GlobalSettings),
		}
	}
}

// LastCommand returns the most recent instrument command. Tests only.
func (e *TrackingEngine) LastCommand() (string, map[string]interface{}) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastCommand, e.lastCommandArgs
}

// Param returns the current value of a flat or nested key.
func (e *TrackingEngine) Param(key string) (interface{}, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch {
	case strings.HasPrefix(key, domain.PrefixParameters):
		v, ok := e.nested[strings.TrimPrefix(key, domain.PrefixParameters)]
		return v, ok
	case strings.HasPrefix(key, domain.PrefixGlobalSettings):
		v, ok := e.globalSettings[strings.TrimPrefix(key, domain.PrefixGlobalSettings)]
		return v, ok
	default:
		v, ok := e.params[key]
		return v, ok
	}
}

func copyMap(src map[string]interface{}) map[string]interface{} {
	dst := make(map[string]interface{}, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func mergeMaps(base, overlay map[string]interface{}) map[string]interface{} {
	merged := copyMap(base)
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
