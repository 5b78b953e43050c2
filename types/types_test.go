package types

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestBlacklist(t *testing.T) {
	xle := NewTicker("XLE", "Energy")
	xlk := NewTicker("XLK", "Tech")

	b := NewBlacklist()
	b.Add(xle)
	b.Add(xlk)
	b.Add(NewTicker("XLE", "Other sector"))

	if b.Len() != 2 {
		t.Errorf("Len() = %d, want 2", b.Len())
	}
	if !b.Contains(NewTicker("XLE", "")) {
		t.Error("Contains() = false for the same id with another sector")
	}
	if b.Contains(NewFund("XLE", "")) {
		t.Error("Contains() = true for another symbol kind")
	}

	list := b.List()
	if len(list) != 2 || list[0] != xle || list[1] != xlk {
		t.Errorf("List() = %v, want [XLE XLK]", list)
	}
	list[0] = xlk
	if b.List()[0] != xle {
		t.Error("List() exposes internal state")
	}
}

func TestBlacklist_NilIsEmpty(t *testing.T) {
	var b *Blacklist
	if b.Contains(NewTicker("XLE", "")) || b.Len() != 0 || b.List() != nil {
		t.Errorf("nil blacklist = %v/%d/%v, want empty", b.Contains(NewTicker("XLE", "")), b.Len(), b.List())
	}
}

func TestParseCadence(t *testing.T) {
	tests := []struct {
		in      string
		want    Cadence
		wantErr error
	}{
		{"1d", Daily, nil},
		{"1mo", Monthly, nil},
		{"1w", "", ErrUnknownCadenceMode},
		{"", "", ErrUnknownCadenceMode},
	}
	for _, tt := range tests {
		got, err := ParseCadence(tt.in)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ParseCadence(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseCadence(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseSymbolKind(t *testing.T) {
	tests := []struct {
		in      string
		want    SymbolKind
		wantErr error
	}{
		{"ticker", SymbolTicker, nil},
		{" TICKER ", SymbolTicker, nil},
		{"lipper", SymbolFund, nil},
		{"FUND", SymbolFund, nil},
		{"sedol", SymbolLocal, nil},
		{"bond", "", ErrUnknownSymbolKind},
	}
	for _, tt := range tests {
		got, err := ParseSymbolKind(tt.in)
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("ParseSymbolKind(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseSymbolKind(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSecurity_Display(t *testing.T) {
	if got := NewTicker("XLE", "Energy").Display(); got != "Energy(XLE)" {
		t.Errorf("Display() = %q, want %q", got, "Energy(XLE)")
	}
	if got := NewFund("40012345", "").Display(); got != "40012345" {
		t.Errorf("Display() = %q, want %q", got, "40012345")
	}
}

func TestPosition_TotalWeight(t *testing.T) {
	p := NewPosition([]Security{NewTicker("A", ""), NewTicker("B", "")}, decimal.RequireFromString("0.25"))
	if !p.TotalWeight().Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("TotalWeight() = %s, want 0.5", p.TotalWeight())
	}
}

func TestOrder_IsStop(t *testing.T) {
	s := NewTicker("XLE", "")
	if !NewOrder(OrderSell, s, decimal.NewFromInt(1), TriggerStopLoss).IsStop() {
		t.Error("IsStop() = false for a stop-loss order")
	}
	if NewOrder(OrderBuy, s, decimal.NewFromInt(1), TriggerNone).IsStop() {
		t.Error("IsStop() = true for a plain order")
	}
	if Noop().Type != OrderNoop {
		t.Errorf("Noop().Type = %v, want %v", Noop().Type, OrderNoop)
	}
}
