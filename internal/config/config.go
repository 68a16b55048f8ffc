// Package config holds the runtime's boot-time knobs and the fsnotify-
// backed watcher that applies hot-reloadable ones (profiler/log minimum
// level) without a restart, in the teacher's config-struct-plus-watcher
// idiom.
package config

import (
	"fmt"

	"gecko/internal/services"
)

// Config is the boot-time configuration for a runtime instance. Ring
// capacities, worker count, and sink paths are fixed for the process
// lifetime; MinProfilerLevel and MinLogLevel may additionally be changed
// at runtime through a Watcher.
type Config struct {
	ProfilerRingCapacity int
	LoggerRingCapacity   int
	LoggerBatchSize      int
	WorkerCount          int

	// ProfilerMaxLevel is the ceiling for MinProfilerLevel: Validate
	// rejects a Config whose MinProfilerLevel is more detailed than it.
	// Nothing else reads it; a level applied later through a Watcher is
	// not checked against it.
	ProfilerMaxLevel  services.ProfLevel
	MinProfilerLevel  services.ProfLevel
	MinLogLevel       services.LogLevel

	TraceFilePath        string
	TraceFileFlushEvery  int
	LogFilePath          string
	LogMsgpackFilePath   string
}

// Option mutates a Config during construction, the teacher's functional-
// options idiom.
type Option func(*Config)

// WithProfilerRingCapacity overrides the profiler ring's capacity.
func WithProfilerRingCapacity(n int) Option {
	return func(c *Config) { c.ProfilerRingCapacity = n }
}

// WithLoggerRingCapacity overrides the logger ring's capacity.
func WithLoggerRingCapacity(n int) Option {
	return func(c *Config) { c.LoggerRingCapacity = n }
}

// WithWorkerCount overrides the job system's worker pool size.
func WithWorkerCount(n int) Option {
	return func(c *Config) { c.WorkerCount = n }
}

// WithTraceFilePath sets the crash-safe trace sink's output path.
func WithTraceFilePath(path string) Option {
	return func(c *Config) { c.TraceFilePath = path }
}

// WithLogFilePath sets the text log sink's output path.
func WithLogFilePath(path string) Option {
	return func(c *Config) { c.LogFilePath = path }
}

// Default returns a Config with the reference design's defaults, then
// applies opts in order.
func Default(opts ...Option) Config {
	c := Config{
		ProfilerRingCapacity: 4096,
		LoggerRingCapacity:   2048,
		LoggerBatchSize:      128,
		WorkerCount:          4,
		ProfilerMaxLevel:     services.LevelDetailed,
		MinProfilerLevel:     services.LevelNormal,
		MinLogLevel:          services.LogInfo,
		TraceFileFlushEvery:  100,
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// Validate checks Config for internally-inconsistent values.
func (c Config) Validate() error {
	if c.ProfilerRingCapacity <= 0 {
		return fmt.Errorf("config: profiler ring capacity must be positive, got %d", c.ProfilerRingCapacity)
	}
	if c.LoggerRingCapacity <= 0 {
		return fmt.Errorf("config: logger ring capacity must be positive, got %d", c.LoggerRingCapacity)
	}
	if c.WorkerCount <= 0 {
		return fmt.Errorf("config: worker count must be positive, got %d", c.WorkerCount)
	}
	if c.MinProfilerLevel > c.ProfilerMaxLevel {
		return fmt.Errorf("config: min profiler level %v exceeds build-time max level %v", c.MinProfilerLevel, c.ProfilerMaxLevel)
	}
	return nil
}
