package signal

import "encoding/json"

// RepairICECandidatePayload fills in sdpMid and sdpMLineIndex when a
// candidate payload carries neither. Some transports omit both, and the
// receiving peer's API requires at least one to apply the candidate.
// Payloads that cannot be parsed are returned unchanged; the receiver
// deals with them.
func RepairICECandidatePayload(payload []byte) []byte {
	if len(payload) == 0 {
		return payload
	}

	var candidate map[string]interface{}
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return payload
	}

	mid, hasMid := candidate["sdpMid"]
	idx, hasIdx := candidate["sdpMLineIndex"]
	if (hasMid && mid != nil) || (hasIdx && idx != nil) {
		return payload
	}

	candidate["sdpMid"] = "0"
	candidate["sdpMLineIndex"] = 0

	repaired, err := json.Marshal(candidate)
	if err != nil {
		return payload
	}
	return repaired
}
