package ranked

import (
	"fmt"
	"sort"
	"time"

	"factorlab/internal/engine"
	"factorlab/types"

	"github.com/shopspring/decimal"
)

// StaticRanker always returns the same order.
type StaticRanker []types.Security

func (r StaticRanker) Rank(time.Time) ([]types.Security, error) {
	return append([]types.Security(nil), r...), nil
}

// MomentumRanker orders the universe by trailing return over the lookback window,
// highest first. Ties go to the lower symbol.
type MomentumRanker struct {
	market       engine.ReturnSource
	universe     []types.Security
	lookbackDays int
}

func NewMomentumRanker(market engine.ReturnSource, universe []types.Security, lookbackDays int) *MomentumRanker {
	return &MomentumRanker{
		market:       market,
		universe:     universe,
		lookbackDays: lookbackDays,
	}
}

func (r *MomentumRanker) Rank(on time.Time) ([]types.Security, error) {
	type scored struct {
		security types.Security
		score    decimal.Decimal
	}
	from := on.AddDate(0, 0, -r.lookbackDays)

	scores := make([]scored, 0, len(r.universe))
	for _, s := range r.universe {
		score, err := r.market.QueryRangeReturn(s, from, on)
		if err != nil {
			return nil, fmt.Errorf("momentum of %s: %w", s, err)
		}
		scores = append(scores, scored{security: s, score: score})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if c := scores[i].score.Cmp(scores[j].score); c != 0 {
			return c > 0
		}
		return scores[i].security.ID.Symbol < scores[j].security.ID.Symbol
	})

	ranked := make([]types.Security, 0, len(scores))
	for _, s := range scores {
		ranked = append(ranked, s.security)
	}
	return ranked, nil
}
