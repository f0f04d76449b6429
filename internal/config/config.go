package config

import (
	"time"
)

type DB struct {
	Path string `envconfig:"DB_PATH" default:"wallet.db" validate:"required"`
}

// Metrics ...
type Metrics struct {
	Port      string `envconfig:"METRICS_PORT" default:"9090"`
	Namespace string `envconfig:"METRICS_NAMESPACE" default:"wallet"`
	Subsystem string `envconfig:"METRICS_SUBSYSTEM" default:"work_queue"`
}

type System struct {
	ReadTimeout    time.Duration `envconfig:"READ_TIMEOUT" default:"300s"`
	ReadBufferSize int           `envconfig:"READ_BUFFER_SIZE" default:"16384"`
}

// Tasks ...
type Tasks struct {
	ProfileCacheTTL   time.Duration `envconfig:"PROFILE_CACHE_TTL" default:"6h"`
	RateCacheTTL      time.Duration `envconfig:"RATE_CACHE_TTL" default:"5m"`
	RelayPollInterval time.Duration `envconfig:"RELAY_POLL_INTERVAL" default:"500ms"`
	RelayWaitTimeout  time.Duration `envconfig:"RELAY_WAIT_TIMEOUT" default:"30s"`
}

type Config struct {
	DB      DB
	Metrics Metrics
	System  System
	Tasks   Tasks
}
