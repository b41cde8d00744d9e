package stats

import (
	"time"

	"github.com/wespeak/backend/internal/models"
	"github.com/wespeak/backend/internal/utils"
)

// StartingScore is the reputation every organization begins with and the
// score of any organization without complaints.
const StartingScore = 100

// unresolvedPenalty weighs each day a complaint stays open.
const unresolvedPenalty = 0.25

// Recompute derives the full aggregate record from an organization's
// complaint population. replies comes from the chat collaborator. The
// vote counters are event-driven only, so the previous values carry over.
func Recompute(prev models.Stats, complaints []models.Complaint, replies int, now time.Time) models.Stats {
	next := prev
	next.Replies = replies
	next.ComplaintsCounter = len(complaints)

	if len(complaints) == 0 {
		next.Score = StartingScore
		next.Resolves = 0
		next.Reimbursed = 0
		next.ResolveRate = 0
		next.ResponseRate = 0
		return next
	}

	unresolved := 0
	daysUnresolved := 0
	resolves := 0
	reimbursed := 0
	for _, c := range complaints {
		switch {
		case c.State == models.StateResolved:
			resolves++
		case c.State == models.StateReimbursed:
			reimbursed++
		default:
			unresolved++
			daysUnresolved += utils.DaysBetween(c.Created, now)
		}
	}

	next.Score = StartingScore - (float64(unresolved) + unresolvedPenalty*float64(daysUnresolved))
	next.Resolves = resolves
	next.Reimbursed = reimbursed
	next.ResolveRate = rate(resolves, next.ComplaintsCounter)
	next.ResponseRate = rate(replies, next.ComplaintsCounter)
	return next
}

// ApplyCreated is the incremental path for a newly filed complaint: one
// unresolved complaint with zero days outstanding costs exactly one point.
func ApplyCreated(s models.Stats) models.Stats {
	s.Score--
	s.ComplaintsCounter++
	s.ResolveRate = rate(s.Resolves, s.ComplaintsCounter)
	s.ResponseRate = rate(s.Replies, s.ComplaintsCounter)
	return s
}

// ApplyClosed credits back the point the complaint cost at creation plus
// the age bonus, and bumps the matching counter.
func ApplyClosed(s models.Stats, c models.Complaint, now time.Time) models.Stats {
	s.Score += closeDelta(c, now)
	if c.State == models.StateReimbursed {
		s.Reimbursed++
	} else {
		s.Resolves++
	}
	s.ResolveRate = rate(s.Resolves, s.ComplaintsCounter)
	s.ResponseRate = rate(s.Replies, s.ComplaintsCounter)
	return s
}

// ApplyReopened reverses ApplyClosed for a complaint that was resolved.
func ApplyReopened(s models.Stats, c models.Complaint, now time.Time) models.Stats {
	s.Score -= closeDelta(c, now)
	s.Resolves--
	s.ResolveRate = rate(s.Resolves, s.ComplaintsCounter)
	s.ResponseRate = rate(s.Replies, s.ComplaintsCounter)
	return s
}

func closeDelta(c models.Complaint, now time.Time) float64 {
	return 1 + unresolvedPenalty*float64(utils.DaysBetween(c.Created, now))
}

func rate(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return utils.RoundTo(float64(part)/float64(total)*100, 1)
}
