package sentiment

import (
	"context"

	"github.com/grassmudhorses/vader-go/lexicon"
	"github.com/grassmudhorses/vader-go/sentitext"
)

// VaderScorer scores text with the bundled VADER lexicon, the same model
// the legacy backend used. It never fails and needs no network.
type VaderScorer struct{}

func (VaderScorer) Score(ctx context.Context, text string) (float64, error) {
	parsed := sentitext.Parse(text, lexicon.DefaultLexicon)
	return sentitext.PolarityScore(parsed).Compound, nil
}
