// Package ranked builds equal-weight top-N positions from an ordered ranking.
package ranked

import (
	"errors"
	"fmt"
	"time"

	"factorlab/internal/calendar"
	"factorlab/internal/engine"
	"factorlab/types"

	"github.com/shopspring/decimal"
)

type Direction string

const (
	Long  Direction = "long"
	Short Direction = "short"
)

var ErrUnknownDirection = errors.New("unknown factor direction")

// Ranker orders the universe best first for a date.
type Ranker interface {
	Rank(on time.Time) ([]types.Security, error)
}

// Factor holds the first TopN securities of the ranking (long) or of the reversed
// ranking (short), each at weight 1/N.
type Factor struct {
	ranker    Ranker
	direction Direction
	topN      int
}

func NewFactor(ranker Ranker, direction Direction, topN int) (*Factor, error) {
	switch direction {
	case Long, Short:
	default:
		return nil, fmt.Errorf("%q: %w", direction, ErrUnknownDirection)
	}
	if topN <= 0 {
		return nil, fmt.Errorf("top n must be positive, got %d", topN)
	}
	return &Factor{ranker: ranker, direction: direction, topN: topN}, nil
}

func (f *Factor) GetPosition(on time.Time) (types.Position, error) {
	ranked, err := f.ranker.Rank(on)
	if err != nil {
		return nil, fmt.Errorf("rank on %s: %w", on.Format(calendar.DateFormat), err)
	}
	if len(ranked) == 0 {
		return types.Position{}, nil
	}

	if f.direction == Short {
		reversed := make([]types.Security, len(ranked))
		for i, s := range ranked {
			reversed[len(ranked)-1-i] = s
		}
		ranked = reversed
	}
	n := min(f.topN, len(ranked))
	weight := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(n)))
	return types.NewPosition(ranked[:n], weight), nil
}

// SetPortfolioAtStart buys the position of the first calendar date at index 0.
func (f *Factor) SetPortfolioAtStart(ledger engine.LedgerWriter) error {
	position, err := f.GetPosition(ledger.Date(0))
	if err != nil {
		return err
	}
	for _, h := range position {
		if err := ledger.AddSecurityWeight(h.Security, h.Weight, 0); err != nil {
			return fmt.Errorf("seed %s: %w", h.Security.Display(), err)
		}
	}
	return nil
}
