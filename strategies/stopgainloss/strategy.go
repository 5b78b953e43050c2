// Package stopgainloss holds the order policies that trade outside the rebalance
// cadence.
package stopgainloss

import (
	"errors"

	"factorlab/internal/engine"
	"factorlab/types"

	"github.com/shopspring/decimal"
)

var ErrNotInitialized = errors.New("strategy used before Init")

// DefaultLimit disables a stop in practice: a 100% move since the last rebalance.
var DefaultLimit = decimal.NewFromInt(1)

// StopGainAndLoss sells a whole holding once its return since the last rebalance
// exceeds GainLimit or falls below -LossLimit, and blacklists the security.
type StopGainAndLoss struct {
	GainLimit decimal.Decimal
	LossLimit decimal.Decimal

	blacklist *types.Blacklist
	portfolio engine.PortfolioApi
}

func New(gainLimit, lossLimit decimal.Decimal, blacklist *types.Blacklist) *StopGainAndLoss {
	return &StopGainAndLoss{
		GainLimit: gainLimit,
		LossLimit: lossLimit,
		blacklist: blacklist,
	}
}

// Init fails without a blacklist: stopped securities must reach the rebalancer.
func (s *StopGainAndLoss) Init(api engine.PortfolioApi) error {
	if s.blacklist == nil {
		return engine.ErrNoBlacklist
	}
	s.portfolio = api
	return nil
}

func (s *StopGainAndLoss) GetOrder(security types.Security, index, lastRebalanceIndex int) (types.Order, error) {
	if s.portfolio == nil {
		return types.Order{}, ErrNotInitialized
	}
	current := s.portfolio.SecurityValue(security, index)
	last := s.portfolio.SecurityValue(security, lastRebalanceIndex)
	if current.IsZero() || last.IsZero() {
		return types.Noop(), nil
	}

	rangeReturn := current.Sub(last).Div(last)
	var trigger types.Trigger
	switch {
	case rangeReturn.GreaterThan(s.GainLimit):
		trigger = types.TriggerStopGain
	case rangeReturn.LessThan(s.LossLimit.Neg()):
		trigger = types.TriggerStopLoss
	default:
		return types.Noop(), nil
	}

	s.blacklist.Add(security)
	weight := s.portfolio.SecurityWeight(security, index)
	return types.NewOrder(types.OrderSell, security, weight, trigger), nil
}

// NoStrategy never trades.
type NoStrategy struct{}

func (NoStrategy) Init(engine.PortfolioApi) error { return nil }

func (NoStrategy) GetOrder(types.Security, int, int) (types.Order, error) {
	return types.Noop(), nil
}
