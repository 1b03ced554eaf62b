package chunkgrid

import (
	"context"
	"fmt"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"

	"github.com/chunkgrid/chunkgrid/runtime/scheduler"
	"github.com/chunkgrid/chunkgrid/service/messaging/memory"
	"github.com/chunkgrid/chunkgrid/service/worker"
)

// Config is a serialisable representation of the engine configuration. The
// zero-value is useful; nested fields inherit their package defaults.
type Config struct {
	Scheduler  scheduler.Config `json:"scheduler" yaml:"scheduler"`
	Workers    worker.Config    `json:"workers" yaml:"workers"`
	Queue      memory.Config    `json:"queue" yaml:"queue"`
	Checkpoint CheckpointConfig `json:"checkpoint" yaml:"checkpoint"`
}

// CheckpointConfig selects the checkpoint backend; an empty BaseURL disables
// checkpointing.
type CheckpointConfig struct {
	BaseURL string `json:"baseURL" yaml:"baseURL"`
}

// DefaultConfig returns a Config populated with package defaults.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: scheduler.DefaultConfig(),
		Workers:   worker.DefaultConfig(),
		Queue:     memory.DefaultConfig(),
	}
}

// Validate returns an error describing invalid settings or nil.
func (c *Config) Validate() error {
	if c == nil {
		return nil
	}
	if c.Scheduler.EventBuffer <= 0 {
		return fmt.Errorf("scheduler.eventBuffer must be > 0")
	}
	if c.Scheduler.HeartbeatTimeout <= 0 {
		return fmt.Errorf("scheduler.heartbeatTimeout must be > 0")
	}
	if c.Scheduler.LivenessInterval <= 0 {
		return fmt.Errorf("scheduler.livenessInterval must be > 0")
	}
	if c.Workers.HeartbeatInterval <= 0 {
		return fmt.Errorf("workers.heartbeatInterval must be > 0")
	}
	return nil
}

// LoadConfig reads a YAML configuration from the supplied URL (any scheme
// the file system abstraction supports) on top of the defaults.
func LoadConfig(ctx context.Context, URL string) (*Config, error) {
	fs := afs.New()
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
	}
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", URL, err)
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
