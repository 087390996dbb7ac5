package service

import (
	"context"
	"errors"
	"time"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/store"
)

// ReceiptAutoCreator opens an empty receipt slot for every expense that carries
// a receipt number. The slot's file path stays empty until an upload fills it.
type ReceiptAutoCreator struct {
	now func() time.Time
}

// OnExpenseInserted runs after exp is inserted, inside the same transaction.
// It returns the receipt of the expense, or nil when none is warranted.
// An expense never ends up with more than one receipt.
func (c ReceiptAutoCreator) OnExpenseInserted(ctx context.Context, tx store.Tx, exp *domain.Expense) (*domain.Receipt, bool, error) {
	if exp.ReceiptNumber == nil {
		return nil, false, nil
	}

	existing, err := tx.GetReceiptByExpense(ctx, exp.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return nil, false, err
	}

	r := &domain.Receipt{ExpenseID: exp.ID, UploadedAt: c.now().UTC()}
	id, err := tx.InsertReceipt(ctx, r)
	if errors.Is(err, domain.ErrConflict) {
		existing, err := tx.GetReceiptByExpense(ctx, exp.ID)
		return existing, false, err
	}
	if err != nil {
		return nil, false, err
	}
	r.ID = id
	return r, true, nil
}
