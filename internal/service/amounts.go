package service

import (
	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/models"
	"github.com/shopspring/decimal"
)

// spend is the parsed money block shared by expenses and petty-cash outflows.
type spend struct {
	beforeTax decimal.Decimal
	tax       decimal.Decimal
	roundOff  decimal.Decimal
	total     decimal.Decimal
}

// parseSpend parses the four amount fields strictly. A blank or zero total is
// derived as before-tax plus tax plus round-off.
func parseSpend(beforeTax, tax, roundOff, total models.AmountInput) (spend, error) {
	var (
		s   spend
		err error
	)
	if s.beforeTax, err = beforeTax.Strict("amount_before_tax"); err != nil {
		return spend{}, err
	}
	if s.tax, err = tax.Strict("hst"); err != nil {
		return spend{}, err
	}
	if s.roundOff, err = roundOff.Strict("round_off"); err != nil {
		return spend{}, err
	}
	if s.total, err = total.Strict("total_amount"); err != nil {
		return spend{}, err
	}

	if s.beforeTax.IsNegative() || s.tax.IsNegative() {
		return spend{}, invalid("amount_before_tax and hst must not be negative")
	}
	if s.total.IsZero() {
		s.total = domain.RoundCurrency(s.beforeTax.Add(s.tax).Add(s.roundOff))
	}
	if s.total.IsNegative() {
		return spend{}, invalid("total_amount must not be negative")
	}
	if !domain.WithinRange(s.total) {
		return spend{}, invalid("total_amount %s is out of range", s.total.StringFixed(domain.CurrencyPlaces))
	}
	return s, nil
}

// receiptNumber drops blank receipt numbers so they are stored as absent.
func receiptNumber(n *string) *string {
	if n == nil {
		return nil
	}
	v := trim(*n)
	if v == "" {
		return nil
	}
	return &v
}
