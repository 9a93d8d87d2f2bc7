package signal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"synthnet/internal/infrastructure/repositories/memory"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type relayFixture struct {
	server  *RelayServer
	mailbox *memory.MemoryMailboxRepository
	ts      *httptest.Server
}

func newRelayFixture(t *testing.T) *relayFixture {
	t.Helper()

	mailbox := memory.NewMemoryMailboxRepository(time.Minute)
	controller := memory.NewMemoryControllerRepository()
	server := NewRelayServer(mailbox, controller, zap.NewNop().Sugar())

	ts := httptest.NewServer(http.HandlerFunc(server.HandleWebSocket))
	t.Cleanup(ts.Close)

	return &relayFixture{server: server, mailbox: mailbox, ts: ts}
}

func (f *relayFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(f.ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func register(t *testing.T, conn *websocket.Conn, id string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "register", "id": id}))
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &msg))
	return msg
}

func TestSynthRegistrationGetsControllerInfo(t *testing.T) {
	f := newRelayFixture(t)
	conn := f.dial(t)

	register(t, conn, "synth-1")

	msg := readMessage(t, conn)
	assert.Equal(t, "controller-info", msg["type"])
	assert.Nil(t, msg["controllerId"])
}

func TestRegisterWithoutIDIsRejected(t *testing.T) {
	f := newRelayFixture(t)
	conn := f.dial(t)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{"type": "register"}))

	msg := readMessage(t, conn)
	assert.Equal(t, "error", msg["type"])
	assert.Contains(t, msg["message"], "id")
}

func TestControllerElectionIsBroadcast(t *testing.T) {
	f := newRelayFixture(t)

	synth := f.dial(t)
	register(t, synth, "synth-1")
	readMessage(t, synth) // controller-info: none yet

	controller := f.dial(t)
	register(t, controller, "controller-1")

	msg := readMessage(t, synth)
	assert.Equal(t, "controller-info", msg["type"])
	assert.Equal(t, "controller-1", msg["controllerId"])
}

func TestControllerDepartureBroadcastsLoss(t *testing.T) {
	f := newRelayFixture(t)

	synth := f.dial(t)
	register(t, synth, "synth-1")
	readMessage(t, synth)

	controller := f.dial(t)
	register(t, controller, "controller-1")
	readMessage(t, synth) // election broadcast

	controller.Close()

	msg := readMessage(t, synth)
	assert.Equal(t, "controller-info", msg["type"])
	assert.Nil(t, msg["controllerId"])
}

func TestGetControllerQuery(t *testing.T) {
	f := newRelayFixture(t)

	controller := f.dial(t)
	register(t, controller, "controller-1")

	synth := f.dial(t)
	register(t, synth, "synth-1")
	msg := readMessage(t, synth)
	require.Equal(t, "controller-info", msg["type"])
	assert.Equal(t, "controller-1", msg["controllerId"])

	require.NoError(t, synth.WriteJSON(map[string]interface{}{"type": "get-controller"}))
	msg = readMessage(t, synth)
	assert.Equal(t, "controller-info", msg["type"])
	assert.Equal(t, "controller-1", msg["controllerId"])
}

func TestOfferIsRelayedWithSourceStamped(t *testing.T) {
	f := newRelayFixture(t)

	controller := f.dial(t)
	register(t, controller, "controller-1")

	synth := f.dial(t)
	register(t, synth, "synth-1")
	readMessage(t, synth) // controller-info

	require.NoError(t, controller.WriteJSON(map[string]interface{}{
		"type":   "offer",
		"target": "synth-1",
		"source": "forged-id",
		"data":   map[string]interface{}{"type": "offer", "sdp": "v=0..."},
	}))

	msg := readMessage(t, synth)
	assert.Equal(t, "offer", msg["type"])
	// The relay stamps the registered sender, ignoring any claimed source.
	assert.Equal(t, "controller-1", msg["source"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "v=0...", data["sdp"])
}

func TestRelayedICECandidateIsRepaired(t *testing.T) {
	f := newRelayFixture(t)

	controller := f.dial(t)
	register(t, controller, "controller-1")

	synth := f.dial(t)
	register(t, synth, "synth-1")
	readMessage(t, synth)

	require.NoError(t, controller.WriteJSON(map[string]interface{}{
		"type":   "ice-candidate",
		"target": "synth-1",
		"data":   map[string]interface{}{"candidate": "candidate:1"},
	}))

	msg := readMessage(t, synth)
	require.Equal(t, "ice-candidate", msg["type"])
	data := msg["data"].(map[string]interface{})
	assert.Equal(t, "0", data["sdpMid"])
	assert.Equal(t, float64(0), data["sdpMLineIndex"])
}

func TestMessagesForOfflineTargetAreQueuedAndDrained(t *testing.T) {
	f := newRelayFixture(t)

	controller := f.dial(t)
	register(t, controller, "controller-1")

	require.NoError(t, controller.WriteJSON(map[string]interface{}{
		"type":   "offer",
		"target": "synth-late",
		"data":   map[string]interface{}{"sdp": "queued-offer"},
	}))

	// Wait for the enqueue to land before the target registers.
	require.Eventually(t, func() bool {
		return f.mailbox.Pending("synth-late") == 1
	}, time.Second, 10*time.Millisecond)

	synth := f.dial(t)
	register(t, synth, "synth-late")

	// Queued traffic drains before the registration's controller-info.
	msg := readMessage(t, synth)
	assert.Equal(t, "offer", msg["type"])
	assert.Equal(t, "controller-1", msg["source"])

	msg = readMessage(t, synth)
	assert.Equal(t, "controller-info", msg["type"])
}

func TestRelayFromUnregisteredSocketIsDropped(t *testing.T) {
	f := newRelayFixture(t)

	synth := f.dial(t)
	register(t, synth, "synth-1")
	readMessage(t, synth)

	anonymous := f.dial(t)
	require.NoError(t, anonymous.WriteJSON(map[string]interface{}{
		"type":   "offer",
		"target": "synth-1",
		"data":   map[string]interface{}{"sdp": "v=0"},
	}))

	synth.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, err := synth.ReadMessage()
	assert.Error(t, err, "nothing should be relayed for an unregistered sender")
}

func TestControllerKickedIsForwarded(t *testing.T) {
	f := newRelayFixture(t)

	oldController := f.dial(t)
	register(t, oldController, "controller-old")

	newController := f.dial(t)
	register(t, newController, "controller-new")
	readMessage(t, oldController) // election broadcast for controller-new

	require.NoError(t, newController.WriteJSON(map[string]interface{}{
		"type":            "controller-kicked",
		"target":          "controller-old",
		"newControllerId": "controller-new",
	}))

	msg := readMessage(t, oldController)
	assert.Equal(t, "controller-kicked", msg["type"])
	assert.Equal(t, "controller-new", msg["newControllerId"])
	assert.Equal(t, "controller-new", msg["source"])
}

func TestReRegisterClosesOldSocket(t *testing.T) {
	f := newRelayFixture(t)

	first := f.dial(t)
	register(t, first, "synth-1")
	readMessage(t, first)

	second := f.dial(t)
	register(t, second, "synth-1")
	msg := readMessage(t, second)
	assert.Equal(t, "controller-info", msg["type"])

	// The displaced socket is closed by the relay.
	first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	assert.True(t, f.server.IsClientConnected("synth-1"))
}
