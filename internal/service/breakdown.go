package service

import (
	"context"
	"errors"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/models"
	"github.com/punchamoorthee/chapterbudget/internal/store"
	"github.com/shopspring/decimal"
)

// BreakdownLedger owns the nested set of a request: its requested event and the
// breakdown lines under it. The set is replaced as a whole, never patched.
type BreakdownLedger struct{}

// ReplaceNestedSet deletes the request's event and lines, inserts ev and the
// non-blank lines, then writes the event total.
//
// Amounts are parsed leniently: text that is not a number counts as zero.
// A total that sums to exactly zero is not written, so the column keeps its default.
func (BreakdownLedger) ReplaceNestedSet(ctx context.Context, tx store.Tx, requestID int64, ev domain.RequestedEvent, lines []models.LineInput) (*domain.EventDetail, error) {
	if _, err := tx.DeleteBreakdownLines(ctx, requestID); err != nil {
		return nil, err
	}
	if _, err := tx.DeleteRequestedEvents(ctx, requestID); err != nil {
		return nil, err
	}

	ev.ID = 0
	ev.RequestID = requestID
	ev.TotalAmount = decimal.NullDecimal{}
	eventID, err := tx.InsertRequestedEvent(ctx, &ev)
	if err != nil {
		return nil, err
	}
	ev.ID = eventID

	detail := &domain.EventDetail{RequestedEvent: ev, Lines: make([]domain.BreakdownLine, 0, len(lines))}
	total := decimal.Zero
	for i, in := range lines {
		if in.Blank() {
			continue
		}
		amount := in.Amount.Lenient()
		if amount.IsNegative() {
			return nil, invalid("line %d: amount %s must not be negative", i+1, amount.StringFixed(domain.CurrencyPlaces))
		}
		if in.CategoryID <= 0 {
			return nil, invalid("line %d: category is required", i+1)
		}
		if _, err := tx.GetCategory(ctx, in.CategoryID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return nil, invalid("line %d: unknown category %d", i+1, in.CategoryID)
			}
			return nil, err
		}

		line := domain.BreakdownLine{
			EventID:     eventID,
			CategoryID:  in.CategoryID,
			Description: in.Description,
			Amount:      amount,
		}
		id, err := tx.InsertBreakdownLine(ctx, &line)
		if err != nil {
			return nil, err
		}
		line.ID = id
		detail.Lines = append(detail.Lines, line)
		total = total.Add(amount)
	}

	if !domain.WithinRange(total) {
		return nil, invalid("event total %s is out of range", total.StringFixed(domain.CurrencyPlaces))
	}
	if !total.IsZero() {
		if err := tx.UpdateRequestedEventTotal(ctx, eventID, total); err != nil {
			return nil, err
		}
		detail.TotalAmount = decimal.NewNullDecimal(total)
	}
	return detail, nil
}
