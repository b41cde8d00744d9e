package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type SweepStore interface {
	ListOrganizationIDs(ctx context.Context) ([]string, error)
	CreateSweepRun(ctx context.Context, status string) (string, error)
	FinishSweepRun(ctx context.Context, runID string, status string, summary []byte) error
}

const (
	RunStatusRunning = "RUNNING"
	RunStatusSuccess = "SUCCESS"
	RunStatusFailed  = "FAILED"
)

// SweepJob periodically rebuilds every organization's aggregate record
// from its complaint snapshot. It is a reconciliation pass: event-driven
// updates stay authoritative between ticks, the sweep heals whatever they
// missed. One organization failing never aborts the pass.
type SweepJob struct {
	Service *StatsService
	Store   SweepStore
	Logger  zerolog.Logger

	Interval time.Duration
	Workers  int
}

type SweepSummary struct {
	Organizations int               `json:"organizations"`
	Updated       int               `json:"updated"`
	Skipped       int               `json:"skipped"`
	Failed        int               `json:"failed"`
	ElapsedMs     int64             `json:"elapsed_ms"`
	Errors        map[string]string `json:"errors,omitempty"`
}

// Start runs the sweep on a fixed interval until the context is canceled.
func (j *SweepJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.Logger.Info().Dur("interval", interval).Int("workers", j.workers()).Msg("reconciliation sweep started")

	for {
		select {
		case <-ctx.Done():
			j.Logger.Info().Msg("reconciliation sweep stopped")
			return
		case <-ticker.C:
			j.runTracked(ctx)
		}
	}
}

func (j *SweepJob) runTracked(ctx context.Context) {
	runID, err := j.Store.CreateSweepRun(ctx, RunStatusRunning)
	if err != nil {
		j.Logger.Error().Err(err).Msg("failed to create sweep run")
		return
	}

	summary, err := j.RunOnce(ctx, time.Now().UTC())
	status := RunStatusSuccess
	if err != nil {
		status = RunStatusFailed
		j.Logger.Error().Err(err).Msg("sweep failed")
	}

	b, _ := json.Marshal(summary)
	if finishErr := j.Store.FinishSweepRun(ctx, runID, status, b); finishErr != nil {
		j.Logger.Error().Err(finishErr).Msg("failed to finish sweep run")
	}
}

// RunOnce recomputes every organization once, spreading the work over a
// bounded pool of workers. Per-organization errors are collected in the
// summary, not returned.
func (j *SweepJob) RunOnce(ctx context.Context, now time.Time) (SweepSummary, error) {
	start := time.Now()

	ids, err := j.Store.ListOrganizationIDs(ctx)
	if err != nil {
		return SweepSummary{}, err
	}

	summary := SweepSummary{Organizations: len(ids)}
	var mu sync.Mutex

	work := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < j.workers(); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range work {
				err := j.Service.RecomputeOrganization(ctx, id, now)

				mu.Lock()
				switch {
				case err == nil:
					summary.Updated++
				case errors.Is(err, ErrComputation):
					summary.Skipped++
					j.Logger.Warn().Err(err).Str("organization_id", id).Msg("skipping organization with invalid stats")
				default:
					summary.Failed++
					if summary.Errors == nil {
						summary.Errors = map[string]string{}
					}
					summary.Errors[id] = err.Error()
					j.Logger.Error().Err(err).Str("organization_id", id).Msg("organization recompute failed")
				}
				mu.Unlock()
			}
		}()
	}

loop:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break loop
		case work <- id:
		}
	}
	close(work)
	wg.Wait()

	summary.ElapsedMs = time.Since(start).Milliseconds()
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

func (j *SweepJob) workers() int {
	if j.Workers <= 0 {
		return 4
	}
	return j.Workers
}
