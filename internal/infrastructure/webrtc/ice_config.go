package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pion/webrtc/v3"
)

// Public STUN fallback used when the relay's config endpoint cannot be
// reached. TURN requires credentials from that same endpoint, so the
// fallback is STUN-only.
var fallbackSTUNServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

type iceConfigResponse struct {
	ICEServers []struct {
		URLs       []string `json:"urls"`
		Username   string   `json:"username,omitempty"`
		Credential string   `json:"credential,omitempty"`
	} `json:"iceServers"`
}

// FetchICEServers retrieves the ICE server list from the relay's config
// endpoint, falling back to public STUN on any failure.
func FetchICEServers(ctx context.Context, client *http.Client, configURL string) []webrtc.ICEServer {
	fallback := []webrtc.ICEServer{{URLs: fallbackSTUNServers}}
	if configURL == "" {
		return fallback
	}
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, configURL, nil)
	if err != nil {
		return fallback
	}
	resp, err := client.Do(req)
	if err != nil {
		return fallback
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fallback
	}

	var parsed iceConfigResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fallback
	}
	if len(parsed.ICEServers) == 0 {
		return fallback
	}

	servers := make([]webrtc.ICEServer, 0, len(parsed.ICEServers))
	for _, s := range parsed.ICEServers {
		servers = append(servers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	return servers
}

// NewPeerConnection creates a peer connection configured with the given
// ICE servers.
func NewPeerConnection(servers []webrtc.ICEServer) (*webrtc.PeerConnection, error) {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{ICEServers: servers})
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}
	return pc, nil
}
