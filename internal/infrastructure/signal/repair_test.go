package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepairFillsMissingMidAndIndex(t *testing.T) {
	payload := []byte(`{"candidate":"candidate:1 1 udp 2130706431 192.0.2.1 54400 typ host"}`)

	repaired := RepairICECandidatePayload(payload)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(repaired, &out))
	assert.Equal(t, "0", out["sdpMid"])
	assert.Equal(t, float64(0), out["sdpMLineIndex"])
}

func TestRepairTreatsNullsAsMissing(t *testing.T) {
	payload := []byte(`{"candidate":"candidate:1","sdpMid":null,"sdpMLineIndex":null}`)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(RepairICECandidatePayload(payload), &out))
	assert.Equal(t, "0", out["sdpMid"])
	assert.Equal(t, float64(0), out["sdpMLineIndex"])
}

func TestRepairLeavesExplicitMidAlone(t *testing.T) {
	payload := []byte(`{"candidate":"candidate:1","sdpMid":"audio"}`)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(RepairICECandidatePayload(payload), &out))
	assert.Equal(t, "audio", out["sdpMid"])
	_, hasIdx := out["sdpMLineIndex"]
	assert.False(t, hasIdx)
}

func TestRepairLeavesExplicitIndexAlone(t *testing.T) {
	payload := []byte(`{"candidate":"candidate:1","sdpMLineIndex":2}`)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(RepairICECandidatePayload(payload), &out))
	assert.Equal(t, float64(2), out["sdpMLineIndex"])
	_, hasMid := out["sdpMid"]
	assert.False(t, hasMid)
}

func TestRepairPassesThroughUnparseablePayloads(t *testing.T) {
	assert.Equal(t, []byte(nil), RepairICECandidatePayload(nil))
	assert.Equal(t, []byte("not json"), RepairICECandidatePayload([]byte("not json")))
}
