package types

import (
	"errors"
	"fmt"
)

// Cadence is the interval mode that decides when a rebalance is due.
type Cadence string

const (
	// Daily rebalances every N trading days.
	Daily Cadence = "1d"
	// Monthly rebalances on the last trading day of every Nth month.
	Monthly Cadence = "1mo"
)

var ErrUnknownCadenceMode = errors.New("unknown rebalance cadence mode")

var ConvertCadence = map[string]Cadence{
	"1d":  Daily,
	"1mo": Monthly,
}

func ParseCadence(s string) (Cadence, error) {
	c, ok := ConvertCadence[s]
	if !ok {
		return "", fmt.Errorf("no implementation for %q: %w", s, ErrUnknownCadenceMode)
	}
	return c, nil
}
