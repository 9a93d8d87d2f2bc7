package services

import (
	"encoding/json"
	"testing"

	"synthnet/internal/core/domain"
	"synthnet/internal/core/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type MockAudioEngine struct {
	mock.Mock
}

func (m *MockAudioEngine) ActivateInstrument(id string, initialParams map[string]interface{}) error {
	args := m.Called(id, initialParams)
	return args.Error(0)
}

func (m *MockAudioEngine) UpdateSynthParam(param string, value interface{}, applyTiming string) error {
	args := m.Called(param, value, applyTiming)
	return args.Error(0)
}

func (m *MockAudioEngine) UpdateNestedParam(path string, value interface{}, applyTiming string) error {
	args := m.Called(path, value, applyTiming)
	return args.Error(0)
}

func (m *MockAudioEngine) ExecuteInstrumentCommand(name string, cmdArgs map[string]interface{}) error {
	args := m.Called(name, cmdArgs)
	return args.Error(0)
}

func (m *MockAudioEngine) PlayPhasor() { m.Called() }
func (m *MockAudioEngine) StopPhasor() { m.Called() }

func (m *MockAudioEngine) SetTempo(cpm float64) error {
	args := m.Called(cpm)
	return args.Error(0)
}

func (m *MockAudioEngine) SynchronisePhasor()    { m.Called() }
func (m *MockAudioEngine) ApplyQueuedParamsNow() { m.Called() }

func (m *MockAudioEngine) HandleExternalNoteOn(msg map[string]interface{})  { m.Called(msg) }
func (m *MockAudioEngine) HandleExternalNoteOff(msg map[string]interface{}) { m.Called(msg) }

func (m *MockAudioEngine) SetParameterPortamento(durationMS float64, curve string) {
	m.Called(durationMS, curve)
}

func (m *MockAudioEngine) SaveStateToBank(index int) ports.BankResult {
	args := m.Called(index)
	return args.Get(0).(ports.BankResult)
}

func (m *MockAudioEngine) LoadStateFromBank(index int) ports.BankResult {
	args := m.Called(index)
	return args.Get(0).(ports.BankResult)
}

func (m *MockAudioEngine) GetCurrentResolvedState() ports.ResolvedState {
	args := m.Called()
	return args.Get(0).(ports.ResolvedState)
}

func (m *MockAudioEngine) CacheInstrumentDefinition(id string, definition map[string]interface{}) {
	m.Called(id, definition)
}

func (m *MockAudioEngine) ActiveInstrumentID() string {
	return m.Called().String(0)
}

func (m *MockAudioEngine) IsPlaying() bool {
	return m.Called().Bool(0)
}

func (m *MockAudioEngine) IsMuted() bool {
	return m.Called().Bool(0)
}

func (m *MockAudioEngine) AudioContextState() string {
	return m.Called().String(0)
}

// sentReply captures one reply written through the SendFunc.
type sentReply struct {
	channel string
	payload map[string]interface{}
}

type replyRecorder struct {
	replies []sentReply
}

func (r *replyRecorder) send(channelLabel string, payload []byte) bool {
	var decoded map[string]interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		panic(err)
	}
	r.replies = append(r.replies, sentReply{channel: channelLabel, payload: decoded})
	return true
}

func newHandler(engine ports.AudioEngine) *ProtocolHandler {
	return NewProtocolHandler(engine, zap.NewNop().Sugar())
}

func TestAppPingPongsOnArrivalChannel(t *testing.T) {
	engine := new(MockAudioEngine)
	h := newHandler(engine)

	for _, channel := range []string{domain.ChannelReliable, domain.ChannelStreaming} {
		rec := &replyRecorder{}
		h.HandleMessage(channel, []byte(`{"type":"app_ping","timestamp":12345.5}`), rec.send)

		require.Len(t, rec.replies, 1)
		assert.Equal(t, channel, rec.replies[0].channel)
		assert.Equal(t, domain.MsgAppPong, rec.replies[0].payload["type"])
		assert.Equal(t, 12345.5, rec.replies[0].payload["original_timestamp"])
	}
	engine.AssertExpectations(t)
}

func TestAppPingWithoutTimestampIsInvalid(t *testing.T) {
	engine := new(MockAudioEngine)
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"app_ping"}`), rec.send)

	require.Len(t, rec.replies, 1)
	assert.Equal(t, domain.MsgErrorReport, rec.replies[0].payload["type"])
	assert.Equal(t, domain.ErrCodeInvalidPayload, rec.replies[0].payload["error_code"])
	assert.Equal(t, domain.MsgAppPing, rec.replies[0].payload["original_message_type"])
}

func TestSetActiveInstrument(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("ActivateInstrument", "drone_synth", map[string]interface{}{"cutoff": float64(800)}).Return(nil)
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable,
		[]byte(`{"type":"set_active_instrument","instrument_id":"drone_synth","initial_params":{"cutoff":800}}`),
		rec.send)

	assert.Empty(t, rec.replies)
	engine.AssertExpectations(t)
}

func TestSetActiveInstrumentRequiresID(t *testing.T) {
	engine := new(MockAudioEngine)
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"set_active_instrument"}`), rec.send)

	require.Len(t, rec.replies, 1)
	assert.Equal(t, domain.ErrCodeInvalidPayload, rec.replies[0].payload["error_code"])
	engine.AssertNotCalled(t, "ActivateInstrument", mock.Anything, mock.Anything)
}

func TestSynthParamFlatRouting(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("ActiveInstrumentID").Return("drone_synth")
	engine.On("UpdateSynthParam", "cutoff", float64(1200), domain.ApplyImmediate).Return(nil)
	h := newHandler(engine)

	h.HandleMessage(domain.ChannelStreaming,
		[]byte(`{"type":"synth_param","param":"cutoff","value":1200}`), nil)

	engine.AssertExpectations(t)
}

func TestSynthParamNestedRouting(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("ActiveInstrumentID").Return("drone_synth")
	engine.On("UpdateNestedParam", "parameters.osc1.detune", float64(0.1), domain.ApplyNextPhasorReset).Return(nil)
	h := newHandler(engine)

	h.HandleMessage(domain.ChannelReliable,
		[]byte(`{"type":"synth_param","param":"parameters.osc1.detune","value":0.1,"apply_timing":"next_phasor_reset"}`),
		nil)

	engine.AssertExpectations(t)
}

func TestSynthParamNestedKeyFallsBackWithoutInstrument(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("ActiveInstrumentID").Return("")
	engine.On("UpdateSynthParam", "parameters.osc1.detune", float64(0.1), domain.ApplyImmediate).Return(nil)
	h := newHandler(engine)

	h.HandleMessage(domain.ChannelReliable,
		[]byte(`{"type":"synth_param","param":"parameters.osc1.detune","value":0.1}`), nil)

	engine.AssertExpectations(t)
}

func TestSynthParamMissingValueIsInvalid(t *testing.T) {
	engine := new(MockAudioEngine)
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"synth_param","param":"cutoff"}`), rec.send)

	require.Len(t, rec.replies, 1)
	assert.Equal(t, domain.ErrCodeInvalidPayload, rec.replies[0].payload["error_code"])
	engine.AssertNotCalled(t, "UpdateSynthParam", mock.Anything, mock.Anything, mock.Anything)
}

func TestSynthParamRejectsUnknownTiming(t *testing.T) {
	engine := new(MockAudioEngine)
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable,
		[]byte(`{"type":"synth_param","param":"cutoff","value":1,"apply_timing":"someday"}`), rec.send)

	require.Len(t, rec.replies, 1)
	assert.Equal(t, domain.ErrCodeInvalidPayload, rec.replies[0].payload["error_code"])
}

func TestSynthParamsFullAppliesEveryKey(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("ActiveInstrumentID").Return("drone_synth")
	engine.On("UpdateSynthParam", "cutoff", float64(500), domain.ApplyImmediate).Return(nil)
	engine.On("UpdateNestedParam", "global_settings.volume", float64(0.8), domain.ApplyImmediate).Return(nil)
	h := newHandler(engine)

	h.HandleMessage(domain.ChannelReliable,
		[]byte(`{"type":"synth_params_full","params":{"cutoff":500,"global_settings.volume":0.8}}`), nil)

	engine.AssertExpectations(t)
}

func TestPlayStopAndSync(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("PlayPhasor").Return()
	engine.On("StopPhasor").Return()
	engine.On("SynchronisePhasor").Return()
	engine.On("ApplyQueuedParamsNow").Return()
	h := newHandler(engine)

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"play"}`), nil)
	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"stop"}`), nil)
	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"synchronise_phasors"}`), nil)

	engine.AssertExpectations(t)
	engine.AssertNumberOfCalls(t, "ApplyQueuedParamsNow", 1)
}

func TestSetTempoValidation(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("SetTempo", 90.0).Return(nil)
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"set_tempo","cpm":90}`), rec.send)
	assert.Empty(t, rec.replies)

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"set_tempo","cpm":0}`), rec.send)
	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"set_tempo"}`), rec.send)

	require.Len(t, rec.replies, 2)
	for _, reply := range rec.replies {
		assert.Equal(t, domain.ErrCodeInvalidPayload, reply.payload["error_code"])
	}
	engine.AssertNumberOfCalls(t, "SetTempo", 1)
}

func TestNoteOnRequiresNumericPitch(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("HandleExternalNoteOn", mock.Anything).Return()
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelStreaming, []byte(`{"type":"note_on","pitch":60,"velocity":0.9}`), rec.send)
	assert.Empty(t, rec.replies)

	h.HandleMessage(domain.ChannelStreaming, []byte(`{"type":"note_on","pitch":"C4"}`), rec.send)
	require.Len(t, rec.replies, 1)
	assert.Equal(t, domain.ErrCodeInvalidPayload, rec.replies[0].payload["error_code"])

	engine.AssertNumberOfCalls(t, "HandleExternalNoteOn", 1)
}

func TestSaveBankAckShapes(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("SaveStateToBank", 3).Return(ports.BankResult{Success: true, InstrumentID: "drone_synth"})
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"save_state_to_bank","bank_index":3}`), rec.send)

	require.Len(t, rec.replies, 1)
	reply := rec.replies[0].payload
	assert.Equal(t, domain.MsgSaveBankAck, reply["type"])
	assert.Equal(t, float64(3), reply["bank_index"])
	assert.Equal(t, "success", reply["status"])
	assert.Equal(t, "drone_synth", reply["instrument_id"])
}

func TestLoadBankFailureCarriesErrorStatus(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("LoadStateFromBank", 9).Return(ports.BankResult{Success: false, Error: "bank not found"})
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"load_state_from_bank","bank_index":9}`), rec.send)

	require.Len(t, rec.replies, 1)
	reply := rec.replies[0].payload
	assert.Equal(t, domain.MsgLoadBankAck, reply["type"])
	assert.Equal(t, "bank not found", reply["status"])
}

func TestBankIndexOutOfRangeIsInvalid(t *testing.T) {
	engine := new(MockAudioEngine)
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"save_state_to_bank","bank_index":500}`), rec.send)

	require.Len(t, rec.replies, 1)
	assert.Equal(t, domain.ErrCodeInvalidPayload, rec.replies[0].payload["error_code"])
	engine.AssertNotCalled(t, "SaveStateToBank", mock.Anything)
}

func TestResolvedStateReport(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("GetCurrentResolvedState").Return(ports.ResolvedState{
		Params:               map[string]interface{}{"cutoff": 500.0},
		GlobalSettings:       map[string]interface{}{"volume": 0.8},
		DynamicInternalState: map[string]interface{}{"cpm": 120.0},
	})
	engine.On("ActiveInstrumentID").Return("drone_synth")
	engine.On("IsPlaying").Return(true)
	engine.On("IsMuted").Return(false)
	engine.On("AudioContextState").Return("running")
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"request_current_resolved_state"}`), rec.send)

	require.Len(t, rec.replies, 1)
	reply := rec.replies[0].payload
	assert.Equal(t, domain.MsgResolvedStateReport, reply["type"])
	assert.Equal(t, "drone_synth", reply["instrument_id"])
	assert.Equal(t, true, reply["is_playing"])
	assert.Equal(t, false, reply["is_muted"])
	assert.Equal(t, "running", reply["audio_context_state"])
	assert.Equal(t, map[string]interface{}{"cutoff": float64(500)}, reply["params"])
}

func TestUnknownMessageType(t *testing.T) {
	engine := new(MockAudioEngine)
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"launch_missiles"}`), rec.send)

	require.Len(t, rec.replies, 1)
	assert.Equal(t, domain.MsgErrorReport, rec.replies[0].payload["type"])
	assert.Equal(t, domain.ErrCodeUnknownMessageType, rec.replies[0].payload["error_code"])
	assert.Equal(t, "launch_missiles", rec.replies[0].payload["original_message_type"])
}

func TestMalformedJSON(t *testing.T) {
	engine := new(MockAudioEngine)
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{not json`), rec.send)

	require.Len(t, rec.replies, 1)
	assert.Equal(t, domain.ErrCodeProcessingError, rec.replies[0].payload["error_code"])
}

func TestEngineErrorsDoNotProduceErrorReports(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("ActivateInstrument", "ghost", mock.Anything).Return(assert.AnError)
	h := newHandler(engine)
	rec := &replyRecorder{}

	// Valid payload, failing engine: logged, not reported to the peer.
	h.HandleMessage(domain.ChannelReliable,
		[]byte(`{"type":"set_active_instrument","instrument_id":"ghost"}`), rec.send)

	assert.Empty(t, rec.replies)
}

func TestControlMessageOnStreamingChannelStillProcessed(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("PlayPhasor").Return()
	h := newHandler(engine)

	h.HandleMessage(domain.ChannelStreaming, []byte(`{"type":"play"}`), nil)

	engine.AssertExpectations(t)
}

func TestMaintenanceMessagesAreSilent(t *testing.T) {
	engine := new(MockAudioEngine)
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"heartbeat_ping"}`), rec.send)
	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"disconnect_notification"}`), rec.send)

	assert.Empty(t, rec.replies)
}

func TestPanicInDispatchBecomesProcessingError(t *testing.T) {
	engine := new(MockAudioEngine)
	// No expectation set: the mock panics on the unexpected call.
	h := newHandler(engine)
	rec := &replyRecorder{}

	h.HandleMessage(domain.ChannelReliable, []byte(`{"type":"play"}`), rec.send)

	require.Len(t, rec.replies, 1)
	assert.Equal(t, domain.ErrCodeProcessingError, rec.replies[0].payload["error_code"])
	assert.Equal(t, domain.MsgPlay, rec.replies[0].payload["original_message_type"])
}

func TestSetPortamento(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("SetParameterPortamento", 250.0, "exponential").Return()
	h := newHandler(engine)

	h.HandleMessage(domain.ChannelReliable,
		[]byte(`{"type":"set_parameter_portamento","duration_ms":250,"curve":"exponential"}`), nil)

	engine.AssertExpectations(t)
}

func TestInstrumentDefinitionIsCached(t *testing.T) {
	engine := new(MockAudioEngine)
	engine.On("CacheInstrumentDefinition", "drone_synth", map[string]interface{}{"params": []interface{}{"cutoff"}}).Return()
	h := newHandler(engine)

	h.HandleMessage(domain.ChannelReliable,
		[]byte(`{"type":"instrument_definition","instrument_id":"drone_synth","definition":{"params":["cutoff"]}}`), nil)

	engine.AssertExpectations(t)
}
