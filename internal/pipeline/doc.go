// Package pipeline is the entry point for new work: it records a sealed
// batch and queues its basic circuit jobs.
package pipeline
