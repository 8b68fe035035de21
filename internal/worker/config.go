// Package worker provides background job processing for SafeRoute.
package worker

import (
	"time"
)

// IngestConfig holds configuration for the location fix ingest job.
type IngestConfig struct {
	// Concurrency is the number of concurrent fix processors for batch
	// replay. Fixes for the same user are serialized by the tracker
	// regardless of this setting.
	// Default: 3
	Concurrency int

	// Timeout is the timeout for processing a single fix.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxStale drops fixes recorded longer than this before arrival.
	// Queued-up fixes from a phone that was offline for an hour describe
	// where the user was, not where they are.
	// Default: 5 minutes
	MaxStale time.Duration
}

// DefaultIngestConfig returns the default ingest configuration.
func DefaultIngestConfig() IngestConfig {
	return IngestConfig{
		Concurrency: 3,
		Timeout:     10 * time.Second,
		MaxStale:    5 * time.Minute,
	}
}

// withDefaults fills zero fields with defaults.
func (c IngestConfig) withDefaults() IngestConfig {
	def := DefaultIngestConfig()
	if c.Concurrency <= 0 {
		c.Concurrency = def.Concurrency
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.MaxStale <= 0 {
		c.MaxStale = def.MaxStale
	}
	return c
}
