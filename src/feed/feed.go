package feed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"trade-performance/src/engine"
)

// TradeFeed returns the account's fills for one instrument. The order of the
// returned slice is unspecified; the matcher sorts.
type TradeFeed interface {
	FetchTrades(ctx context.Context, q Query) ([]engine.Trade, error)
}

// Query asks for trades with Since <= time < Until.
type Query struct {
	Instrument Instrument
	Since      time.Time
	Until      time.Time
}

func (q Query) Validate() error {
	if q.Instrument.Base == "" || q.Instrument.Quote == "" {
		return fmt.Errorf("query needs an instrument")
	}
	if !q.Until.After(q.Since) {
		return fmt.Errorf("query window is empty: %s .. %s", q.Since.Format(time.RFC3339), q.Until.Format(time.RFC3339))
	}
	return nil
}

type Instrument struct {
	Base  string
	Quote string
}

// Symbol is the exchange's concatenated form, e.g. BTCEUR.
func (i Instrument) Symbol() string {
	return i.Base + i.Quote
}

func (i Instrument) String() string {
	return i.Base + "/" + i.Quote
}

// ParseInstrument accepts BASE/QUOTE, BASE-QUOTE or BASE_QUOTE in any case.
func ParseInstrument(s string) (Instrument, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '/' || r == '-' || r == '_'
	})
	if len(parts) != 2 {
		return Instrument{}, fmt.Errorf("instrument %q is not BASE/QUOTE", s)
	}
	return Instrument{Base: parts[0], Quote: parts[1]}, nil
}

// ParseInstruments parses a configured list, rejecting duplicates.
func ParseInstruments(list []string) ([]Instrument, error) {
	out := make([]Instrument, 0, len(list))
	seen := make(map[string]struct{}, len(list))
	for _, s := range list {
		inst, err := ParseInstrument(s)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[inst.Symbol()]; dup {
			return nil, fmt.Errorf("instrument %s listed twice", inst)
		}
		seen[inst.Symbol()] = struct{}{}
		out = append(out, inst)
	}
	return out, nil
}

// LookupInstrument finds s among the known instruments. The concatenated
// exchange symbol (BTCEUR) is accepted as well as the separated forms.
func LookupInstrument(known []Instrument, s string) (Instrument, bool) {
	want := strings.ToUpper(strings.TrimSpace(s))
	if inst, err := ParseInstrument(want); err == nil {
		want = inst.Symbol()
	}
	for _, inst := range known {
		if inst.Symbol() == want {
			return inst, true
		}
	}
	return Instrument{}, false
}
