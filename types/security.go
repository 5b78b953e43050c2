package types

import (
	"errors"
	"fmt"
	"strings"
)

// SymbolKind is the kind of identifier a security is known by.
type SymbolKind string

const (
	SymbolTicker SymbolKind = "TICKER"
	// SymbolFund is a Lipper fund identifier.
	SymbolFund SymbolKind = "FUND"
	// SymbolLocal is a SEDOL local security identifier.
	SymbolLocal SymbolKind = "LOCAL"
)

var ErrUnknownSymbolKind = errors.New("unknown symbol kind")

var ConvertSymbolKind = map[string]SymbolKind{
	"ticker": SymbolTicker,
	"fund":   SymbolFund,
	"lipper": SymbolFund,
	"local":  SymbolLocal,
	"sedol":  SymbolLocal,
}

func ParseSymbolKind(s string) (SymbolKind, error) {
	kind, ok := ConvertSymbolKind[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("%q: %w", s, ErrUnknownSymbolKind)
	}
	return kind, nil
}

// SecurityID identifies a security. Two securities with the same ID are the same
// security whatever their sector tag.
type SecurityID struct {
	Kind   SymbolKind `json:"kind"`
	Symbol string     `json:"symbol"`
}

func (id SecurityID) String() string {
	return id.Symbol
}

type Security struct {
	ID     SecurityID `json:"id"`
	Name   string     `json:"name"`
	Sector string     `json:"sector"`
}

func NewTicker(ticker, sector string) Security {
	return Security{ID: SecurityID{Kind: SymbolTicker, Symbol: ticker}, Sector: sector}
}

func NewFund(lipperID, sector string) Security {
	return Security{ID: SecurityID{Kind: SymbolFund, Symbol: lipperID}, Sector: sector}
}

func NewLocal(sedol, sector string) Security {
	return Security{ID: SecurityID{Kind: SymbolLocal, Symbol: sedol}, Sector: sector}
}

func (s Security) String() string {
	return s.ID.Symbol
}

// Display renders the security with its sector, e.g. "Energy(XLE)".
func (s Security) Display() string {
	if s.Sector != "" {
		return fmt.Sprintf("%s(%s)", s.Sector, s.ID.Symbol)
	}
	return s.ID.Symbol
}

// Is reports whether both securities share the same identity.
func (s Security) Is(other Security) bool {
	return s.ID == other.ID
}
