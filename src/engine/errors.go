package engine

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// InvalidTradeError aborts a whole matching run.
type InvalidTradeError struct {
	TradeID int64
	Field   string
	Reason  string
}

func (e *InvalidTradeError) Error() string {
	return fmt.Sprintf("invalid trade %d: %s %s", e.TradeID, e.Field, e.Reason)
}

// InsufficientLotsError marks a sell whose originating buy predates the observed window.
// It is recorded per sell and never aborts a run.
type InsufficientLotsError struct {
	SellTradeID int64
	Requested   decimal.Decimal
	Unmatched   decimal.Decimal
}

func (e *InsufficientLotsError) Error() string {
	return fmt.Sprintf("insufficient lots for sell %d: %s of %s unmatched",
		e.SellTradeID, e.Unmatched.String(), e.Requested.String())
}

type RateUnavailableError struct {
	Asset string
	Quote string
	Err   error
}

func (e *RateUnavailableError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("rate unavailable for %s/%s", e.Asset, e.Quote)
	}
	return fmt.Sprintf("rate unavailable for %s/%s: %v", e.Asset, e.Quote, e.Err)
}

func (e *RateUnavailableError) Unwrap() error {
	return e.Err
}
