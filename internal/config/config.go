package config

import (
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

type Config interface {
	EnvConfig
	APIConfig
	RealtimeConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetLogLevel() string
}

type APIConfig interface {
	GetBaseURL() string
	GetRequestTimeout() time.Duration
}

type mainConfig struct {
	EnvVars
	API
	Realtime
	Storage
}

// New loads a .env file and the optional YAML seed file into the process
// environment, then returns the env-backed configuration.
func New() Config {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found, using process environment")
	}
	if path := GetEnv(configFileVar, ""); path != "" {
		if err := LoadFile(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Failed to load config file")
		}
	}
	return mainConfig{}
}
