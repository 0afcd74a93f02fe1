package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jrsteele09/izikwen-client/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("IZIKWEN_BASE_URL", "")
	t.Setenv("IZIKWEN_WS_BASE_URL", "")
	t.Setenv("IZIKWEN_REQUEST_TIMEOUT", "")
	t.Setenv("IZIKWEN_WS_RECONNECT_STEP", "")
	t.Setenv("IZIKWEN_WS_RECONNECT_MAX", "")

	c := config.Realtime{}
	require.Equal(t, "http://localhost:8080", config.API{}.GetBaseURL())
	require.Equal(t, 15*time.Second, config.API{}.GetRequestTimeout())
	require.Equal(t, "ws://localhost:8080", c.GetRealtimeBaseURL())
	require.Equal(t, "/ws/orders", c.GetUserOrdersPath())
	require.Equal(t, "/ws/admin/orders", c.GetAdminOrdersPath())
	require.Equal(t, 500*time.Millisecond, c.GetReconnectStep())
	require.Equal(t, 8*time.Second, c.GetReconnectMax())
}

func TestRealtimeBaseURLFollowsAPIBaseURL(t *testing.T) {
	t.Setenv("IZIKWEN_WS_BASE_URL", "")
	t.Setenv("IZIKWEN_BASE_URL", "https://api.izikwen.test/")

	require.Equal(t, "https://api.izikwen.test", config.API{}.GetBaseURL())
	require.Equal(t, "wss://api.izikwen.test", config.Realtime{}.GetRealtimeBaseURL())
}

func TestInvalidDurationFallsBack(t *testing.T) {
	t.Setenv("IZIKWEN_REQUEST_TIMEOUT", "soon")
	require.Equal(t, 15*time.Second, config.API{}.GetRequestTimeout())

	t.Setenv("IZIKWEN_REQUEST_TIMEOUT", "3s")
	require.Equal(t, 3*time.Second, config.API{}.GetRequestTimeout())
}

func TestLoadFileDoesNotOverrideEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "izikwen.yaml")
	err := os.WriteFile(path, []byte("IZIKWEN_STORE_DRIVER: redis\nIZIKWEN_REDIS_DB: \"4\"\n"), 0o600)
	require.NoError(t, err)

	t.Setenv("IZIKWEN_STORE_DRIVER", "sqlite")
	t.Setenv("IZIKWEN_REDIS_DB", "")
	require.NoError(t, os.Unsetenv("IZIKWEN_REDIS_DB"))

	require.NoError(t, config.LoadFile(path))
	require.Equal(t, "sqlite", config.Storage{}.GetStoreDriver())
	require.Equal(t, 4, config.Storage{}.GetRedisDB())
}
