package http

import (
	"context"
	"net/http"
	"time"

	"synthnet/internal/infrastructure/repositories"
	"synthnet/internal/infrastructure/signal"
	"synthnet/pkg/config"
	apperrors "synthnet/pkg/errors"

	"github.com/gin-gonic/gin"
)

// RelayHandler serves the relay's HTTP surface: the ICE configuration
// endpoint synths fetch before negotiating, plus health and readiness.
type RelayHandler struct {
	cfg       *config.Config
	relay     *signal.RelayServer
	stores    *repositories.Stores
	startTime time.Time
}

func NewRelayHandler(cfg *config.Config, relay *signal.RelayServer, stores *repositories.Stores) *RelayHandler {
	return &RelayHandler{
		cfg:       cfg,
		relay:     relay,
		stores:    stores,
		startTime: time.Now(),
	}
}

func (h *RelayHandler) SetupRoutes(router *gin.Engine) {
	router.GET("/webrtc-config", h.GetWebRTCConfig)
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}

type iceServerPayload struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// GetWebRTCConfig hands out the STUN/TURN server list from config so
// peers never need credentials baked in.
func (h *RelayHandler) GetWebRTCConfig(c *gin.Context) {
	servers := make([]iceServerPayload, 0, len(h.cfg.WebRTC.ICEServers))
	for _, s := range h.cfg.WebRTC.ICEServers {
		servers = append(servers, iceServerPayload{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	if len(servers) == 0 {
		servers = append(servers, iceServerPayload{
			URLs: []string{"stun:stun.l.google.com:19302"},
		})
	}

	c.JSON(http.StatusOK, gin.H{"iceServers": servers})
}

func (h *RelayHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "healthy",
		"timestamp":         time.Now(),
		"uptime":            time.Since(h.startTime).String(),
		"connected_clients": h.relay.ConnectedClients(),
	})
}

// Ready reports whether the backing store is reachable.
func (h *RelayHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.stores.HealthCheck(ctx); err != nil {
		c.Error(apperrors.Wrap(err, apperrors.CodeServiceUnavailable, "store unavailable", http.StatusServiceUnavailable))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"timestamp":    time.Now(),
		"dependencies": "ok",
	})
}
