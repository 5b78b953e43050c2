package engine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"factorlab/internal/calendar"
	"factorlab/types"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var ErrDuplicateHolding = errors.New("security appears twice in target position")

// Rebalancer moves the ledger's holdings toward the factor's target position.
type Rebalancer struct {
	cfg       *RebalanceConfig
	portfolio *Portfolio
	factor    PositionSource
	blacklist *types.Blacklist
	log       zerolog.Logger
}

type weightChange struct {
	security types.Security
	delta    decimal.Decimal
}

func NewRebalancer(cfg *RebalanceConfig, portfolio *Portfolio, factor PositionSource, blacklist *types.Blacklist, logger zerolog.Logger) *Rebalancer {
	return &Rebalancer{
		cfg:       cfg,
		portfolio: portfolio,
		factor:    factor,
		blacklist: blacklist,
		log:       logger,
	}
}

func (r *Rebalancer) Disabled() bool { return r.cfg.disabled }

// Due reports whether the cadence calls for a rebalance at index. The last calendar
// index never rebalances.
func (r *Rebalancer) Due(index, lastRebalanceIndex int) (bool, error) {
	if r.cfg.disabled {
		return false, nil
	}
	if index+1 >= r.portfolio.Len() {
		return false, nil
	}

	switch r.cfg.interval {
	case types.Daily:
		return index%r.cfg.period == 0, nil
	case types.Monthly:
		cal := r.portfolio.Calendar()
		if !cal.IsMonthEnd(index) {
			return false, nil
		}
		months, err := cal.MonthsBetween(lastRebalanceIndex, index)
		if err != nil {
			return false, err
		}
		return months >= r.cfg.period, nil
	default:
		return false, fmt.Errorf("no implementation for %q: %w", r.cfg.interval, types.ErrUnknownCadenceMode)
	}
}

// Run rebalances at index and records the turnover. Either every weight change is
// applied or, when one of them would overdraw cash or a holding, none is.
func (r *Rebalancer) Run(index int) (decimal.Decimal, error) {
	if err := r.portfolio.checkWritable(index); err != nil {
		return decimal.Zero, err
	}
	on := r.portfolio.Date(index)
	target, err := r.factor.GetPosition(on)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get position on %s: %w", on.Format(calendar.DateFormat), err)
	}
	if err := checkDuplicates(target); err != nil {
		return decimal.Zero, err
	}

	changes := r.diff(r.reconcile(target), index)
	if err := r.dryRun(changes, index); err != nil {
		return decimal.Zero, fmt.Errorf("rebalance on %s aborted: %w", on.Format(calendar.DateFormat), err)
	}

	turnover := decimal.Zero
	for _, c := range changes {
		turnover = turnover.Add(c.delta.Abs())
	}
	for _, c := range changes {
		switch c.delta.Sign() {
		case -1:
			err = r.portfolio.ReduceSecurityWeight(c.security, c.delta.Abs(), index)
		case 1:
			err = r.portfolio.AddSecurityWeight(c.security, c.delta, index)
		}
		if err != nil {
			return decimal.Zero, err
		}
	}
	if err := r.portfolio.setTurnover(index, turnover); err != nil {
		return decimal.Zero, err
	}

	r.log.Info().
		Str("date", on.Format(calendar.DateFormat)).
		Str("changes", formatChanges(changes)).
		Str("turnover", turnover.StringFixed(4)).
		Msg("rebalance")
	return turnover, nil
}

// reconcile drops blacklisted securities from the target and spreads their weight
// over the remaining candidates, holding back the rounding buffer.
func (r *Rebalancer) reconcile(target types.Position) types.Position {
	buffer := r.cfg.roundingBuffer
	residual := decimal.Zero
	valid := 0

	position := make(types.Position, 0, len(target))
	for _, h := range target {
		if r.blacklist.Contains(h.Security) {
			position = append(position, types.Holding{Security: h.Security, Weight: decimal.Zero})
			residual = residual.Add(h.Weight)
			continue
		}
		valid++
		weight := h.Weight
		// Only reached when nothing in the target is blacklisted.
		if valid == len(target) {
			weight = weight.Sub(buffer)
		}
		position = append(position, types.Holding{Security: h.Security, Weight: nonNegative(weight)})
	}

	// With every candidate blacklisted the residual stays in cash. The share rounds
	// down so that the spread never exceeds residual minus the buffer.
	if residual.IsPositive() && valid > 0 {
		residual = residual.Sub(buffer)
		share := residual.Div(decimal.NewFromInt(int64(valid))).RoundFloor(3)
		for i := range position {
			if position[i].Weight.IsZero() {
				continue
			}
			position[i].Weight = nonNegative(position[i].Weight.Add(share))
		}
	}
	return position
}

// diff returns the weight changes from the holdings at index to the target, sorted
// ascending so that every sell precedes every buy.
func (r *Rebalancer) diff(target types.Position, index int) []weightChange {
	inTarget := make(map[types.SecurityID]struct{}, len(target))
	for _, h := range target {
		inTarget[h.Security.ID] = struct{}{}
	}

	var changes []weightChange
	for _, s := range r.portfolio.Securities() {
		if _, ok := inTarget[s.ID]; ok {
			continue
		}
		weight := r.portfolio.SecurityWeight(s, index)
		if weight.IsPositive() {
			changes = append(changes, weightChange{security: s, delta: weight.Neg()})
		}
	}
	for _, h := range target {
		current := r.portfolio.SecurityWeight(h.Security, index)
		changes = append(changes, weightChange{security: h.Security, delta: h.Weight.Sub(current)})
	}

	sort.SliceStable(changes, func(i, j int) bool {
		return changes[i].delta.LessThan(changes[j].delta)
	})
	return changes
}

// dryRun replays the changes against a copy of cash and weights.
func (r *Rebalancer) dryRun(changes []weightChange, index int) error {
	total := r.portfolio.TotalValue(index)
	slack := tolerance.Mul(total)
	cash := r.portfolio.Cash(index)
	weights := make(map[types.SecurityID]decimal.Decimal, len(changes))

	for _, c := range changes {
		current, ok := weights[c.security.ID]
		if !ok {
			current = r.portfolio.SecurityWeight(c.security, index)
		}
		switch c.delta.Sign() {
		case -1:
			reduce := c.delta.Abs()
			if reduce.GreaterThan(current.Add(tolerance)) {
				return fmt.Errorf("reduce %s by %s, held %s: %w",
					c.security.Display(), reduce.StringFixed(4), current.StringFixed(4), ErrInsufficientHolding)
			}
			cash = cash.Add(reduce.Mul(total))
		case 1:
			need := c.delta.Mul(total)
			if cash.Sub(need).LessThan(slack.Neg()) {
				return fmt.Errorf("add %s by %s, cash %s: %w",
					c.security.Display(), c.delta.StringFixed(4), cash.StringFixed(2), ErrInsufficientCash)
			}
			cash = cash.Sub(need)
		}
		weights[c.security.ID] = current.Add(c.delta)
	}
	return nil
}

func checkDuplicates(target types.Position) error {
	seen := make(map[types.SecurityID]struct{}, len(target))
	for _, h := range target {
		if _, ok := seen[h.Security.ID]; ok {
			return fmt.Errorf("%s: %w", h.Security, ErrDuplicateHolding)
		}
		seen[h.Security.ID] = struct{}{}
	}
	return nil
}

func formatChanges(changes []weightChange) string {
	parts := make([]string, 0, len(changes))
	for _, c := range changes {
		parts = append(parts, fmt.Sprintf("(%s, %s)", c.security.Display(), c.delta.StringFixed(3)))
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
