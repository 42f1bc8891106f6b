package app

import (
	"errors"
	"fmt"
	"time"
)

// DefaultWorkerCount is used when Config.WorkerCount is zero.
const DefaultWorkerCount = 10

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	PipelinePath string // .yml, .yaml, .json or .jsonc
	TasksPath    string // directory of .hcl task manifests, optional
	WorkDir      string // defaults to the pipeline file's directory

	// Variables overlay the pipeline's own variables.
	Variables map[string]string
	// Parameters are exposed to expressions as `parameters`.
	Parameters map[string]string

	LogFormat       string
	LogLevel        string
	HealthcheckPort int
	WorkerCount     int
	JobTimeout      time.Duration

	LogDir      string // per-step log files, optional
	EventsOut   string // CBOR event log, optional
	SocketIOURL string // socket.io event forwarding, optional
	TUI         bool
	Verbose     bool
}

// NewConfig validates cfg and fills in defaults.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.PipelinePath == "" {
		return nil, errors.New("PipelinePath is a required configuration field and cannot be empty")
	}

	switch {
	case cfg.WorkerCount == 0:
		cfg.WorkerCount = DefaultWorkerCount
	case cfg.WorkerCount < 0:
		return nil, fmt.Errorf("WorkerCount must be at least 1, got %d", cfg.WorkerCount)
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid LogFormat %q: must be 'text' or 'json'", cfg.LogFormat)
	}

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	if cfg.HealthcheckPort < 0 || cfg.HealthcheckPort > 65535 {
		return nil, fmt.Errorf("HealthcheckPort %d is out of range", cfg.HealthcheckPort)
	}
	if cfg.JobTimeout < 0 {
		return nil, fmt.Errorf("JobTimeout must not be negative, got %s", cfg.JobTimeout)
	}

	return &cfg, nil
}
