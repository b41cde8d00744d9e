package models

import (
	"fmt"
	"time"
)

// ComplaintState follows the legacy numeric lifecycle. Normal flow is
// monotonic; a reopen moves a closed complaint back to StateDelivered.
type ComplaintState int

const (
	StateSubmitted ComplaintState = iota
	StateDelivered
	StateProcessed
	StateUnresolved
	StateResolved
	StateReimbursed
)

// Closed reports whether the complaint no longer counts as unresolved.
func (s ComplaintState) Closed() bool {
	return s == StateResolved || s == StateReimbursed
}

func (s ComplaintState) Valid() bool {
	return s >= StateSubmitted && s <= StateReimbursed
}

func (s ComplaintState) String() string {
	switch s {
	case StateSubmitted:
		return "submitted"
	case StateDelivered:
		return "delivered"
	case StateProcessed:
		return "processed"
	case StateUnresolved:
		return "unresolved"
	case StateResolved:
		return "resolved"
	case StateReimbursed:
		return "reimbursed"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type Complaint struct {
	ID            string         `json:"id"`
	CompanyID     string         `json:"company_id"`
	UserID        string         `json:"user_id,omitempty"`
	Topic         string         `json:"topic"`
	Message       string         `json:"message"`
	Location      string         `json:"location,omitempty"`
	Reimbursement bool           `json:"reimbursement"`
	Anonymous     bool           `json:"anonymous"`
	State         ComplaintState `json:"state"`
	Reopen        bool           `json:"reopen"`
	Created       time.Time      `json:"created"`
}

// DataGraph holds the four rolling-average series. JSON keys keep the
// legacy names ("day" is the 2-hour buckets of the current day). Fixed
// array sizes make the bucket counts part of the type.
type DataGraph struct {
	Day   [12]float64 `json:"day"`
	Days  [31]float64 `json:"days"`
	Month [12]float64 `json:"month"`
	Year  [12]float64 `json:"year"`
}

// Stats is the aggregate reputation record persisted per organization.
type Stats struct {
	ComplaintsCounter int       `json:"complaintsCounter"`
	Score             float64   `json:"score"`
	Replies           int       `json:"replies"`
	Resolves          int       `json:"resolves"`
	Reimbursed        int       `json:"reimbursed"`
	ResolveRate       float64   `json:"resolveRate"`
	ResponseRate      float64   `json:"responseRate"`
	GainedVotes       int       `json:"gainedVotes"`
	LostVotes         int       `json:"lostVotes"`
	DataGraph         DataGraph `json:"dataGraph"`
}

// NewStats returns the defaults every organization starts with.
func NewStats() Stats {
	return Stats{Score: 100}
}

// Validate rejects records that event deltas would silently corrupt further.
func (s Stats) Validate() error {
	if s.ComplaintsCounter < 0 {
		return fmt.Errorf("negative complaintsCounter %d", s.ComplaintsCounter)
	}
	if s.Resolves < 0 || s.Reimbursed < 0 || s.Replies < 0 {
		return fmt.Errorf("negative counters: resolves=%d reimbursed=%d replies=%d", s.Resolves, s.Reimbursed, s.Replies)
	}
	if s.GainedVotes < 0 || s.LostVotes < 0 {
		return fmt.Errorf("negative vote counters: gained=%d lost=%d", s.GainedVotes, s.LostVotes)
	}
	return nil
}

type Organization struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Sector       string    `json:"sector,omitempty"`
	Info         string    `json:"info,omitempty"`
	Followers    int       `json:"followers"`
	IsCrisis     bool      `json:"is_crisis"`
	Stats        Stats     `json:"stats"`
	StatsVersion int64     `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// SweepRun records one reconciliation pass over all organizations.
type SweepRun struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at"`
	Status     string     `json:"status"`
	Summary    []byte     `json:"summary"`
}
