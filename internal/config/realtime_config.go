package config

import (
	"strings"
	"time"
)

type RealtimeConfig interface {
	GetRealtimeBaseURL() string
	GetUserOrdersPath() string
	GetAdminOrdersPath() string
	GetReconnectStep() time.Duration
	GetReconnectMax() time.Duration
}

type Realtime struct{}

var _ RealtimeConfig = Realtime{}

// GetRealtimeBaseURL defaults to the REST base URL with its scheme switched to ws/wss.
func (Realtime) GetRealtimeBaseURL() string {
	if v := GetEnv("IZIKWEN_WS_BASE_URL", ""); v != "" {
		return strings.TrimRight(v, "/")
	}
	return WebsocketURL(API{}.GetBaseURL())
}

func (Realtime) GetUserOrdersPath() string {
	return GetEnv("IZIKWEN_WS_ORDERS_PATH", "/ws/orders")
}

func (Realtime) GetAdminOrdersPath() string {
	return GetEnv("IZIKWEN_WS_ADMIN_ORDERS_PATH", "/ws/admin/orders")
}

func (Realtime) GetReconnectStep() time.Duration {
	return GetEnvDuration("IZIKWEN_WS_RECONNECT_STEP", 500*time.Millisecond)
}

func (Realtime) GetReconnectMax() time.Duration {
	return GetEnvDuration("IZIKWEN_WS_RECONNECT_MAX", 8*time.Second)
}

// WebsocketURL maps an http(s) URL onto its ws(s) equivalent.
func WebsocketURL(httpURL string) string {
	switch {
	case strings.HasPrefix(httpURL, "https://"):
		return "wss://" + strings.TrimPrefix(httpURL, "https://")
	case strings.HasPrefix(httpURL, "http://"):
		return "ws://" + strings.TrimPrefix(httpURL, "http://")
	}
	return httpURL
}
