package types

import (
	"github.com/shopspring/decimal"
)

// Holding is one entry of a target position.
type Holding struct {
	Security Security
	Weight   decimal.Decimal
}

// Position is a ranked target position. Weights sum to at most one.
type Position []Holding

func NewPosition(securities []Security, weight decimal.Decimal) Position {
	position := make(Position, 0, len(securities))
	for _, s := range securities {
		position = append(position, Holding{Security: s, Weight: weight})
	}
	return position
}

// TotalWeight returns the sum of all weights in the position.
func (p Position) TotalWeight() decimal.Decimal {
	total := decimal.Zero
	for _, h := range p {
		total = total.Add(h.Weight)
	}
	return total
}

// Blacklist is the append-only set of securities excluded from future rebalances.
type Blacklist struct {
	members map[SecurityID]struct{}
	order   []Security
}

func NewBlacklist() *Blacklist {
	return &Blacklist{
		members: make(map[SecurityID]struct{}),
	}
}

// Add blacklists the security. Adding a security twice has no effect.
func (b *Blacklist) Add(s Security) {
	if _, ok := b.members[s.ID]; ok {
		return
	}
	b.members[s.ID] = struct{}{}
	b.order = append(b.order, s)
}

// Contains, Len and List treat a nil blacklist as empty.
func (b *Blacklist) Contains(s Security) bool {
	if b == nil {
		return false
	}
	_, ok := b.members[s.ID]
	return ok
}

func (b *Blacklist) Len() int {
	if b == nil {
		return 0
	}
	return len(b.order)
}

// List returns the blacklisted securities in the order they were added.
func (b *Blacklist) List() []Security {
	if b == nil {
		return nil
	}
	return append([]Security(nil), b.order...)
}
