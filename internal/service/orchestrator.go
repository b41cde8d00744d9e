package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wespeak/backend/internal/db"
	"github.com/wespeak/backend/internal/models"
	"github.com/wespeak/backend/internal/sentiment"
	"github.com/wespeak/backend/internal/stats"
)

// ErrComputation marks a stats record too corrupt to apply deltas to.
// The sweep skips and logs these instead of aborting the pass.
var ErrComputation = errors.New("invalid stats record")

type OrganizationStore interface {
	GetOrganization(ctx context.Context, id string) (models.Organization, error)
	SaveStats(ctx context.Context, id string, stats models.Stats, isCrisis bool, version int64) error
}

type ComplaintStore interface {
	ListComplaints(ctx context.Context, companyID string) ([]models.Complaint, error)
	CountReplies(ctx context.Context, companyID string) (int, error)
	CountUsers(ctx context.Context) (int, error)
}

// StatsService folds complaint lifecycle events into an organization's
// aggregate record. Every mutation runs under a per-organization lock and
// a version-guarded save, so event updates and the reconciliation sweep
// are linearized per organization.
type StatsService struct {
	Orgs       OrganizationStore
	Complaints ComplaintStore
	Sentiment  sentiment.Scorer
	Logger     zerolog.Logger

	CrisisExponent   float64
	CrisisPopulation string
	EpochYear        int
	FoldOnReopen     bool
	ConflictRetries  int

	locks keyedMutex
}

// OnComplaintCreated applies the new-complaint delta: one point off the
// score, counter up, sentiment votes, fold, crisis re-check. The
// complaint itself is already persisted by the caller.
func (s *StatsService) OnComplaintCreated(ctx context.Context, c models.Complaint) error {
	gained, lost := s.voteDeltas(ctx, c)
	now := time.Now().UTC()

	return s.mutate(ctx, c.CompanyID, func(org models.Organization) (models.Stats, bool, error) {
		next := stats.ApplyCreated(org.Stats)
		next.GainedVotes += gained
		next.LostVotes += lost
		next.DataGraph = stats.FoldAt(next.DataGraph, next.Score, now, s.EpochYear)
		return next, s.checkCrisis(ctx, org), nil
	})
}

// OnComplaintStateChanged reacts to a transition into resolved or
// reimbursed; other transitions do not move the aggregate record.
// c carries the new state.
func (s *StatsService) OnComplaintStateChanged(ctx context.Context, c models.Complaint) error {
	if !c.State.Closed() {
		return nil
	}
	now := time.Now().UTC()

	return s.mutate(ctx, c.CompanyID, func(org models.Organization) (models.Stats, bool, error) {
		next := stats.ApplyClosed(org.Stats, c, now)
		next.DataGraph = stats.FoldAt(next.DataGraph, next.Score, now, s.EpochYear)
		return next, s.checkCrisis(ctx, org), nil
	})
}

// OnComplaintReopened reverses the resolved delta. Whether the series is
// re-folded is configurable; the legacy flow did not agree with itself
// here, so both behaviors are supported.
func (s *StatsService) OnComplaintReopened(ctx context.Context, c models.Complaint) error {
	now := time.Now().UTC()

	return s.mutate(ctx, c.CompanyID, func(org models.Organization) (models.Stats, bool, error) {
		next := stats.ApplyReopened(org.Stats, c, now)
		if s.FoldOnReopen {
			next.DataGraph = stats.FoldAt(next.DataGraph, next.Score, now, s.EpochYear)
		}
		return next, s.checkCrisis(ctx, org), nil
	})
}

// RecomputeOrganization is the batch path: aggregate counts rebuilt from
// the full complaint set, score folded into the series, crisis re-checked.
// Idempotent for a fixed complaint snapshot and clock.
func (s *StatsService) RecomputeOrganization(ctx context.Context, orgID string, now time.Time) error {
	return s.mutate(ctx, orgID, func(org models.Organization) (models.Stats, bool, error) {
		complaints, err := s.Complaints.ListComplaints(ctx, org.ID)
		if err != nil {
			return models.Stats{}, false, err
		}
		replies, err := s.Complaints.CountReplies(ctx, org.ID)
		if err != nil {
			return models.Stats{}, false, err
		}

		next := stats.Recompute(org.Stats, complaints, replies, now)
		next.DataGraph = stats.FoldAt(next.DataGraph, next.Score, now, s.EpochYear)
		return next, s.crisisOrCurrent(ctx, org, complaints), nil
	})
}

// mutate runs one read-modify-write cycle under the organization's lock,
// retrying a bounded number of times when the save loses a version race.
func (s *StatsService) mutate(ctx context.Context, orgID string, fn func(models.Organization) (models.Stats, bool, error)) error {
	unlock := s.locks.lock(orgID)
	defer unlock()

	retries := s.ConflictRetries
	if retries <= 0 {
		retries = 3
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		org, err := s.Orgs.GetOrganization(ctx, orgID)
		if err != nil {
			return err
		}
		if err := org.Stats.Validate(); err != nil {
			return fmt.Errorf("%w: organization %s: %v", ErrComputation, orgID, err)
		}

		next, isCrisis, err := fn(org)
		if err != nil {
			return err
		}

		err = s.Orgs.SaveStats(ctx, orgID, next, isCrisis, org.StatsVersion)
		if err == nil {
			return nil
		}
		if !errors.Is(err, db.ErrConflict) {
			return err
		}
		lastErr = err
		s.Logger.Warn().Str("organization_id", orgID).Int("attempt", attempt+1).Msg("stats save conflict, retrying")
	}
	return lastErr
}

// voteDeltas runs the sentiment side-effect for a new complaint. Scorer
// failures are logged and cost nothing; the rest of the update proceeds.
func (s *StatsService) voteDeltas(ctx context.Context, c models.Complaint) (gained, lost int) {
	if s.Sentiment == nil {
		return 0, 0
	}
	compound, err := s.Sentiment.Score(ctx, c.Message)
	if err != nil {
		s.Logger.Warn().Err(err).Str("complaint_id", c.ID).Msg("sentiment scoring failed, skipping vote update")
		return 0, 0
	}
	if compound >= sentiment.GainThreshold {
		gained = 1
	}
	if compound <= sentiment.LoseThreshold && !c.Reimbursement {
		lost = 1
	}
	return gained, lost
}

// checkCrisis re-evaluates the crisis flag. The threshold step is
// best-effort: if the complaint or population lookup fails the current
// flag is kept and the stats update proceeds.
func (s *StatsService) checkCrisis(ctx context.Context, org models.Organization) bool {
	complaints, err := s.Complaints.ListComplaints(ctx, org.ID)
	if err != nil {
		s.Logger.Warn().Err(err).Str("organization_id", org.ID).Msg("complaint lookup failed, keeping crisis flag")
		return org.IsCrisis
	}
	return s.crisisOrCurrent(ctx, org, complaints)
}

func (s *StatsService) crisisOrCurrent(ctx context.Context, org models.Organization, complaints []models.Complaint) bool {
	population, err := s.population(ctx, org)
	if err != nil {
		s.Logger.Warn().Err(err).Str("organization_id", org.ID).Msg("population lookup failed, keeping crisis flag")
		return org.IsCrisis
	}
	return stats.InCrisis(complaints, population, s.exponent())
}

func (s *StatsService) population(ctx context.Context, org models.Organization) (int, error) {
	if s.CrisisPopulation == stats.PopulationFollowers {
		return org.Followers, nil
	}
	return s.Complaints.CountUsers(ctx)
}

func (s *StatsService) exponent() float64 {
	if s.CrisisExponent == 0 {
		return stats.DefaultCrisisExponent
	}
	return s.CrisisExponent
}

// keyedMutex hands out one mutex per organization id. Entries are never
// evicted; the map grows with the number of distinct organizations seen.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*sync.Mutex{}
	}
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
