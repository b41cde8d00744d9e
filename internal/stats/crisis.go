package stats

import (
	"math"

	"github.com/wespeak/backend/internal/models"
)

// DefaultCrisisExponent is the legacy population exponent.
const DefaultCrisisExponent = 0.4

// Population sources for the crisis threshold. The legacy backend sizes
// the threshold against the whole registered user base; the follower
// variant sizes it against the organization's own audience instead.
const (
	PopulationGlobal    = "global"
	PopulationFollowers = "followers"
)

// InCrisis flags an organization whose unresolved complaint load reaches
// population^exponent.
func InCrisis(complaints []models.Complaint, population int, exponent float64) bool {
	threshold := math.Pow(float64(population), exponent)

	unresolved := 0
	for _, c := range complaints {
		if !c.State.Closed() {
			unresolved++
		}
	}
	return float64(unresolved) >= threshold
}
