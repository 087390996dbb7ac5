package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/shopspring/decimal"
)

// AmountInput is a currency value as typed into a form. It accepts JSON strings,
// numbers and null, and keeps the raw text so callers choose strict or lenient parsing.
type AmountInput string

func (a *AmountInput) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AmountInput(s)
		return nil
	}
	*a = AmountInput(b)
	return nil
}

// Blank reports whether nothing was entered.
func (a AmountInput) Blank() bool {
	return strings.TrimSpace(string(a)) == ""
}

// Lenient parses the amount, coercing garbage to zero.
func (a AmountInput) Lenient() decimal.Decimal {
	return domain.ParseAmountLenient(string(a))
}

// Strict parses the amount; blank is zero, anything non-numeric or out of range is a validation error.
func (a AmountInput) Strict(field string) (decimal.Decimal, error) {
	d, err := domain.ParseAmount(string(a))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s %q: %w", field, string(a), err)
	}
	return d, nil
}

// RequestInput is the payload of create and edit-and-resubmit.
type RequestInput struct {
	Month       string      `json:"month" validate:"required"`
	Description string      `json:"description"`
	RecipientID *int64      `json:"recipient_id,omitempty"`
	Event       EventInput  `json:"event"`
	Lines       []LineInput `json:"lines"`
}

// EventInput describes the requested event of a budget request.
type EventInput struct {
	Name  string `json:"name" validate:"required,max=100"`
	Date  string `json:"date" validate:"required"`
	Notes string `json:"notes"`
}

// LineInput is one breakdown form row; blank rows are skipped.
type LineInput struct {
	CategoryID  int64       `json:"category_id"`
	Description string      `json:"description"`
	Amount      AmountInput `json:"amount"`
}

// Blank reports whether the row was left empty: no description and no non-zero amount.
func (l LineInput) Blank() bool {
	return strings.TrimSpace(l.Description) == "" && l.Amount.Lenient().IsZero()
}

// DecisionInput carries the optional reviewer note of approve/reject.
type DecisionInput struct {
	Note string `json:"note"`
}

// StatementInput opens a petty-cash statement.
type StatementInput struct {
	CityID         int64       `json:"city_id"`
	Month          string      `json:"month" validate:"required,max=20"`
	OpeningBalance AmountInput `json:"opening_balance"`
	CarriedForward AmountInput `json:"carried_forward"`
	CashInHand     AmountInput `json:"cash_in_hand"`
	ApprovedBy     *int64      `json:"approved_by,omitempty"`
}

// PettyCashExpenseInput posts a cash outflow to a statement.
type PettyCashExpenseInput struct {
	EventID         int64       `json:"event_id" validate:"required,gt=0"`
	NatureOfExpense string      `json:"nature_of_expense" validate:"required,max=100"`
	Vendor          string      `json:"vendor" validate:"max=100"`
	AmountBeforeTax AmountInput `json:"amount_before_tax"`
	Tax             AmountInput `json:"hst"`
	RoundOff        AmountInput `json:"round_off"`
	TotalAmount     AmountInput `json:"total_amount"`
	ReceiptNumber   *string     `json:"receipt_number,omitempty"`
	SpentAt         string      `json:"spent_at" validate:"max=100"`
	VolunteerName   string      `json:"volunteer_name" validate:"max=100"`
}

// ExpenseInput records a categorised expense against an event.
type ExpenseInput struct {
	EventID         int64       `json:"event_id" validate:"required,gt=0"`
	CategoryID      int64       `json:"category_id" validate:"required,gt=0"`
	Vendor          string      `json:"vendor" validate:"required,max=100"`
	ItemDesc        string      `json:"item_desc" validate:"max=100"`
	AmountBeforeTax AmountInput `json:"amount_before_tax"`
	Tax             AmountInput `json:"hst"`
	RoundOff        AmountInput `json:"round_off"`
	TotalAmount     AmountInput `json:"total_amount"`
	ReceiptNumber   *string     `json:"receipt_number,omitempty"`
	SpentAt         string      `json:"spent_at" validate:"max=100"`
	VolunteerName   string      `json:"volunteer_name" validate:"max=100"`
}

// EventCreateInput registers an actual chapter event.
type EventCreateInput struct {
	CityID         int64  `json:"city_id"`
	Name           string `json:"name" validate:"required,max=50"`
	Date           string `json:"date" validate:"required"`
	AttendeesCount int    `json:"attendees_count" validate:"gte=0"`
}
