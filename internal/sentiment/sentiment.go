package sentiment

import "context"

// Scorer produces a compound polarity score in [-1, 1] for a complaint
// message. Positive is favorable to the organization.
type Scorer interface {
	Score(ctx context.Context, text string) (float64, error)
}

// Vote thresholds: at or above GainThreshold the complaint still earns
// the organization a gained vote; at or below LoseThreshold (and with no
// reimbursement requested) it costs one.
const (
	GainThreshold = 0.3
	LoseThreshold = -0.3
)
