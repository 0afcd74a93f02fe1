package config

import (
	"strings"
	"time"
)

const (
	baseURLVar        = "IZIKWEN_BASE_URL"
	requestTimeoutVar = "IZIKWEN_REQUEST_TIMEOUT"
)

type API struct{}

var _ APIConfig = API{}

// GetBaseURL returns the REST base URL without a trailing slash (e.g. "http://10.0.0.119:8080").
func (API) GetBaseURL() string {
	return strings.TrimRight(GetEnv(baseURLVar, "http://localhost:8080"), "/")
}

func (API) GetRequestTimeout() time.Duration {
	return GetEnvDuration(requestTimeoutVar, 15*time.Second)
}
