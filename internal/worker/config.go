package worker

import (
	"errors"
	"fmt"
	"time"

	"github.com/roach88/witnessgen/internal/ir"
)

// StuckPolicy decides what happens to jobs left in progress past the stuck
// timeout, typically by a worker that died mid-job.
type StuckPolicy string

const (
	// StuckRequeue returns stuck jobs to the queue automatically.
	StuckRequeue StuckPolicy = "requeue"

	// StuckManual only reports stuck jobs; an operator requeues them.
	StuckManual StuckPolicy = "manual"
)

// Config controls a worker's loop.
type Config struct {
	// Rounds are the rounds this worker claims. Empty means all.
	Rounds []ir.Round

	// PollInterval is how long an idle worker waits before claiming again.
	PollInterval time.Duration

	// MaxAttempts is the attempt ceiling. A failed job with this many
	// attempts is left failed.
	MaxAttempts int

	// BackoffBase is the delay before the first retry. Each further attempt
	// doubles it, up to BackoffMax.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	StuckPolicy  StuckPolicy
	StuckTimeout time.Duration
}

// DefaultConfig returns the production worker settings.
func DefaultConfig() Config {
	return Config{
		Rounds:       ir.Rounds(),
		PollInterval: 2 * time.Second,
		MaxAttempts:  5,
		BackoffBase:  5 * time.Second,
		BackoffMax:   5 * time.Minute,
		StuckPolicy:  StuckRequeue,
		StuckTimeout: 30 * time.Minute,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	for _, r := range c.Rounds {
		if !r.Valid() {
			errs = append(errs, fmt.Errorf("unknown round %d", uint8(r)))
		}
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll interval must be positive"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, errors.New("max attempts must be at least 1"))
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		errs = append(errs, fmt.Errorf("invalid backoff curve base=%s max=%s", c.BackoffBase, c.BackoffMax))
	}
	switch c.StuckPolicy {
	case StuckRequeue, StuckManual:
	default:
		errs = append(errs, fmt.Errorf("unknown stuck policy %q", c.StuckPolicy))
	}
	if c.StuckTimeout <= 0 {
		errs = append(errs, errors.New("stuck timeout must be positive"))
	}
	return errors.Join(errs...)
}

// Backoff returns the delay before retrying a job that has failed attempts
// times: BackoffBase doubled per prior attempt, capped at BackoffMax.
func (c Config) Backoff(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := c.BackoffBase
	for i := 1; i < attempts; i++ {
		d *= 2
		if d >= c.BackoffMax {
			return c.BackoffMax
		}
	}
	return min(d, c.BackoffMax)
}
