package store

import (
	"context"
	"errors"
)

type snapshotLoader interface {
	Load(ctx context.Context) Records
}

// Stats summarizes the pending-state store for the operator.
type Stats struct {
	Users        int
	Confirmed    int
	JoinRequests int
}

// Summarize counts users, confirmed users and recorded join requests.
func Summarize(records Records) Stats {
	stats := Stats{Users: len(records)}
	for _, record := range records {
		if record.Confirmed {
			stats.Confirmed++
		}
		stats.JoinRequests += len(record.JoinedChannels)
	}
	return stats
}

// StatsProvider computes Stats from whichever backend is configured without
// leaking storage details to callers.
type StatsProvider struct {
	loader snapshotLoader
}

// NewStatsProvider constructs a StatsProvider backed by loader.
func NewStatsProvider(loader snapshotLoader) *StatsProvider {
	return &StatsProvider{loader: loader}
}

// Stats loads the current snapshot and summarizes it.
func (p *StatsProvider) Stats(ctx context.Context) (Stats, error) {
	if ctx == nil {
		return Stats{}, errors.New("context is required")
	}
	if p == nil || p.loader == nil {
		return Stats{}, errors.New("stats provider is not initialized")
	}

	return Summarize(p.loader.Load(ctx)), nil
}
