package stats

import (
	"testing"
	"time"

	"github.com/wespeak/backend/internal/models"
)

var testNow = time.Date(2024, time.May, 20, 12, 0, 0, 0, time.UTC)

func TestRecomputeZeroComplaints(t *testing.T) {
	prev := models.Stats{Score: 42, Resolves: 3, ResolveRate: 50}
	got := Recompute(prev, nil, 0, testNow)

	if got.Score != 100 {
		t.Fatalf("expected score 100, got %v", got.Score)
	}
	if got.ResolveRate != 0 || got.ResponseRate != 0 {
		t.Fatalf("expected zero rates, got %v / %v", got.ResolveRate, got.ResponseRate)
	}
	if got.ComplaintsCounter != 0 || got.Resolves != 0 {
		t.Fatalf("expected counters reset, got %+v", got)
	}
}

func TestRecomputeBatch(t *testing.T) {
	complaints := []models.Complaint{
		{State: models.StateResolved, Created: testNow.AddDate(0, 0, -10)},
		{State: models.StateReimbursed, Created: testNow.AddDate(0, 0, -8)},
		{State: models.StateUnresolved, Created: testNow.AddDate(0, 0, -4)},
	}
	got := Recompute(models.NewStats(), complaints, 2, testNow)

	// One unresolved complaint, 4 days old: 100 - (1 + 0.25*4) = 98.
	if got.Score != 98 {
		t.Fatalf("expected score 98, got %v", got.Score)
	}
	if got.ComplaintsCounter != 3 || got.Resolves != 1 || got.Reimbursed != 1 {
		t.Fatalf("unexpected counters: %+v", got)
	}
	if got.ResolveRate != 33.3 {
		t.Fatalf("expected resolveRate 33.3, got %v", got.ResolveRate)
	}
	if got.ResponseRate != 66.7 {
		t.Fatalf("expected responseRate 66.7, got %v", got.ResponseRate)
	}
}

func TestApplyCreatedCostsOnePoint(t *testing.T) {
	s := models.NewStats()
	got := ApplyCreated(s)

	if got.Score != 99 {
		t.Fatalf("expected score 99, got %v", got.Score)
	}
	if got.ComplaintsCounter != 1 {
		t.Fatalf("expected counter 1, got %d", got.ComplaintsCounter)
	}
}

func TestApplyClosedCreditsAge(t *testing.T) {
	s := models.Stats{Score: 95, ComplaintsCounter: 4}
	c := models.Complaint{State: models.StateResolved, Created: testNow.AddDate(0, 0, -4)}
	got := ApplyClosed(s, c, testNow)

	if got.Score != 97 {
		t.Fatalf("expected 95 + (1 + 0.25*4) = 97, got %v", got.Score)
	}
	if got.Resolves != 1 || got.Reimbursed != 0 {
		t.Fatalf("expected resolves=1, got %+v", got)
	}
	if got.ResolveRate != 25.0 {
		t.Fatalf("expected resolveRate 25.0, got %v", got.ResolveRate)
	}
}

func TestApplyClosedReimbursed(t *testing.T) {
	s := models.Stats{Score: 95, ComplaintsCounter: 2}
	c := models.Complaint{State: models.StateReimbursed, Created: testNow}
	got := ApplyClosed(s, c, testNow)

	if got.Reimbursed != 1 || got.Resolves != 0 {
		t.Fatalf("expected reimbursed counter bump, got %+v", got)
	}
}

func TestApplyReopenedReversesClose(t *testing.T) {
	base := models.Stats{Score: 95, ComplaintsCounter: 4}
	c := models.Complaint{State: models.StateResolved, Created: testNow.AddDate(0, 0, -4)}

	closed := ApplyClosed(base, c, testNow)
	reopened := ApplyReopened(closed, c, testNow)

	if reopened.Score != base.Score {
		t.Fatalf("expected score restored to %v, got %v", base.Score, reopened.Score)
	}
	if reopened.Resolves != base.Resolves {
		t.Fatalf("expected resolves restored, got %d", reopened.Resolves)
	}
}

func TestResolutionScenario(t *testing.T) {
	s := models.NewStats()

	s = ApplyCreated(s)
	if s.Score != 99 || s.ComplaintsCounter != 1 {
		t.Fatalf("after filing: %+v", s)
	}

	created := testNow.AddDate(0, 0, -3)
	c := models.Complaint{State: models.StateResolved, Created: created}
	s = ApplyClosed(s, c, testNow)

	if s.Score != 101.75 {
		t.Fatalf("expected 99 + (1 + 0.25*3) = 101.75, got %v", s.Score)
	}
	if s.Resolves != 1 {
		t.Fatalf("expected resolves 1, got %d", s.Resolves)
	}
	if s.ResolveRate != 100.0 {
		t.Fatalf("expected resolveRate 100.0, got %v", s.ResolveRate)
	}
}
