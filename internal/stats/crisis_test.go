package stats

import (
	"testing"

	"github.com/wespeak/backend/internal/models"
)

func unresolvedComplaints(n int) []models.Complaint {
	out := make([]models.Complaint, n)
	for i := range out {
		out[i] = models.Complaint{State: models.StateUnresolved}
	}
	return out
}

func TestCrisisThreshold(t *testing.T) {
	// 100 users: threshold = 100^0.4 ~ 6.31.
	if InCrisis(unresolvedComplaints(6), 100, DefaultCrisisExponent) {
		t.Fatalf("6 unresolved complaints must not trip the threshold")
	}
	if !InCrisis(unresolvedComplaints(7), 100, DefaultCrisisExponent) {
		t.Fatalf("7 unresolved complaints must trip the threshold")
	}
}

func TestCrisisIgnoresClosedComplaints(t *testing.T) {
	complaints := append(unresolvedComplaints(6),
		models.Complaint{State: models.StateResolved},
		models.Complaint{State: models.StateReimbursed},
	)
	if InCrisis(complaints, 100, DefaultCrisisExponent) {
		t.Fatalf("resolved and reimbursed complaints must not count")
	}
}

func TestCrisisZeroPopulation(t *testing.T) {
	// 0^0.4 = 0, so any unresolved complaint is a crisis.
	if !InCrisis(unresolvedComplaints(1), 0, DefaultCrisisExponent) {
		t.Fatalf("expected crisis with zero population")
	}
}
