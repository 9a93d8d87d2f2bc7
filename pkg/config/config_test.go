package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, ":8081", cfg.Signal.Address)
	assert.Equal(t, 10*time.Second, cfg.Peer.HeartbeatInterval)
	assert.Equal(t, 5, cfg.Peer.MaxReconnectAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Mailbox.TTL)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.Signal.Address)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
signal:
  address: ":9000"
peer:
  heartbeat_interval: 3s
  config_url: "http://relay:9000/webrtc-config"
mailbox:
  ttl: 90s
logging:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Signal.Address)
	assert.Equal(t, 3*time.Second, cfg.Peer.HeartbeatInterval)
	assert.Equal(t, "http://relay:9000/webrtc-config", cfg.Peer.ConfigURL)
	assert.Equal(t, 90*time.Second, cfg.Mailbox.TTL)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Untouched values keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Signal.PingInterval)
	assert.Equal(t, 5, cfg.Peer.MaxReconnectAttempts)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
mailbox:
  ttl: -1s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, "mailbox.ttl")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SYNTHNET_SIGNAL_ADDRESS", ":7777")
	t.Setenv("SYNTHNET_REDIS_ADDRESS", "redis:6379")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, ":7777", cfg.Signal.Address)
	assert.Equal(t, "redis:6379", cfg.Redis.Address)
	assert.True(t, cfg.Redis.Enabled)
}

func TestValidateRateLimiting(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimiting.Enabled = true
	cfg.RateLimiting.MessagesPerSecond = 0

	assert.ErrorContains(t, cfg.Validate(), "messages_per_second")
}

func TestValidateRedisRequiresAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Redis.Enabled = true
	cfg.Redis.Address = ""

	assert.ErrorContains(t, cfg.Validate(), "redis.address")
}
