package smppconf

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadClientConfigDefaults(t *testing.T) {
	os.Unsetenv("SMPP_BIND_TIMEOUT")
	os.Unsetenv("SMPP_RESPONSE_TIMEOUT")
	os.Unsetenv("SMPP_ENQUIRE_LINK_INTERVAL")
	cfg, err := LoadClientConfig()
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.BindTimeout)
	assert.Equal(t, 30*time.Second, cfg.ResponseTimeout)
	assert.Equal(t, 60*time.Second, cfg.EnquireLinkInterval)
}

func TestLoadClientConfigOverride(t *testing.T) {
	os.Setenv("SMPP_SYSTEM_ID", "myuser")
	defer os.Unsetenv("SMPP_SYSTEM_ID")
	cfg, err := LoadClientConfig()
	require.NoError(t, err)
	assert.Equal(t, "myuser", cfg.SystemID)
}

func TestLoadServerConfigDefaults(t *testing.T) {
	os.Unsetenv("SMPP_LISTEN_ADDR")
	os.Unsetenv("SMPP_MAX_CONNECTIONS")
	os.Unsetenv("SMPP_ENQUIRE_LINK_INTERVAL")
	cfg, err := LoadServerConfig()
	require.NoError(t, err)
	assert.Equal(t, ":2775", cfg.Addr)
	assert.Equal(t, 1000, cfg.MaxConnections)
	assert.Equal(t, 60*time.Second, cfg.EnquireLinkInterval)
}
