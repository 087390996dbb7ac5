package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"testing"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/models"
	"github.com/punchamoorthee/chapterbudget/internal/store"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) openStatement(t *testing.T, opening string) *domain.PettyCashStatement {
	t.Helper()
	stmt, err := f.pettyCash.OpenStatement(context.Background(), f.treasurer, models.StatementInput{
		Month:          "2025-03",
		OpeningBalance: models.AmountInput(opening),
	})
	require.NoError(t, err)
	return stmt
}

func (f *fixture) cashExpense(total string) models.PettyCashExpenseInput {
	return models.PettyCashExpenseInput{
		EventID:         f.eventID,
		NatureOfExpense: "Snacks",
		Vendor:          "Corner Store",
		TotalAmount:     models.AmountInput(total),
		SpentAt:         "Toronto",
		VolunteerName:   "Ravi",
	}
}

func TestOpenStatement(t *testing.T) {
	f := newFixture(t)
	stmt := f.openStatement(t, "100.00")

	assert.Equal(t, f.toronto, stmt.CityID)
	assert.Equal(t, "2025-03", stmt.Month)
	assert.True(t, stmt.TotalSpent.IsZero())
	assert.True(t, stmt.ClosingBalance.Equal(stmt.OpeningBalance))
	assert.Equal(t, f.treasurer.UserID, stmt.PreparedBy)

	_, err := f.pettyCash.OpenStatement(context.Background(), f.treasurer, models.StatementInput{
		CityID: f.ottawa, Month: "2025-03", OpeningBalance: "10",
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.pettyCash.OpenStatement(context.Background(), f.treasurer, models.StatementInput{
		Month: "2025-03", OpeningBalance: "ten",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = f.pettyCash.OpenStatement(context.Background(), f.admin, models.StatementInput{
		CityID: 999, Month: "2025-03", OpeningBalance: "10",
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestPostExpenseReconciles(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stmt := f.openStatement(t, "100.00")

	posting, replay, err := f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, f.cashExpense("25.00"), "", "")
	require.NoError(t, err)
	assert.Nil(t, replay)
	assert.Equal(t, "25.00", posting.Statement.TotalSpent.StringFixed(2))
	assert.Equal(t, "75.00", posting.Statement.ClosingBalance.StringFixed(2))
	assert.Equal(t, "75.00", posting.Expense.BalanceOnHandAfter.StringFixed(2))

	posting, _, err = f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, f.cashExpense("30.10"), "", "")
	require.NoError(t, err)
	assert.Equal(t, "44.90", posting.Statement.ClosingBalance.StringFixed(2))
	assert.Equal(t, "44.90", posting.Expense.BalanceOnHandAfter.StringFixed(2))

	detail, err := f.pettyCash.GetStatement(ctx, stmt.ID)
	require.NoError(t, err)
	require.Len(t, detail.Expenses, 2)
	assert.Equal(t, "75.00", detail.Expenses[0].BalanceOnHandAfter.StringFixed(2))
	assert.Equal(t, "55.10", detail.Statement.TotalSpent.StringFixed(2))
	assert.True(t, detail.Statement.ClosingBalance.Equal(detail.Statement.OpeningBalance.Sub(detail.Statement.TotalSpent)))
}

func TestPostExpenseDerivesTotal(t *testing.T) {
	f := newFixture(t)
	stmt := f.openStatement(t, "50")

	in := f.cashExpense("")
	in.AmountBeforeTax = "10.00"
	in.Tax = "1.30"
	in.RoundOff = "-0.05"
	posting, _, err := f.pettyCash.PostExpense(context.Background(), f.treasurer, stmt.ID, in, "", "")
	require.NoError(t, err)
	assert.Equal(t, "11.25", posting.Expense.TotalAmount.StringFixed(2))
	assert.Equal(t, "38.75", posting.Statement.ClosingBalance.StringFixed(2))
}

func TestPostExpenseRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stmt := f.openStatement(t, "100")

	tests := []struct {
		name    string
		actor   domain.Actor
		stmtID  int64
		mutate  func(in *models.PettyCashExpenseInput)
		wantErr error
	}{
		{name: "non-numeric total", actor: f.treasurer, stmtID: stmt.ID, mutate: func(in *models.PettyCashExpenseInput) { in.TotalAmount = "lots" }, wantErr: domain.ErrValidation},
		{name: "huge exponent total", actor: f.treasurer, stmtID: stmt.ID, mutate: func(in *models.PettyCashExpenseInput) { in.TotalAmount = "1e30000000" }, wantErr: domain.ErrValidation},
		{name: "total above column range", actor: f.treasurer, stmtID: stmt.ID, mutate: func(in *models.PettyCashExpenseInput) { in.TotalAmount = "123456789" }, wantErr: domain.ErrValidation},
		{name: "derived total above column range", actor: f.treasurer, stmtID: stmt.ID, mutate: func(in *models.PettyCashExpenseInput) {
			in.TotalAmount = ""
			in.AmountBeforeTax = "99999999.99"
			in.Tax = "1"
		}, wantErr: domain.ErrValidation},
		{name: "negative total", actor: f.treasurer, stmtID: stmt.ID, mutate: func(in *models.PettyCashExpenseInput) { in.TotalAmount = "-4" }, wantErr: domain.ErrValidation},
		{name: "missing nature", actor: f.treasurer, stmtID: stmt.ID, mutate: func(in *models.PettyCashExpenseInput) { in.NatureOfExpense = "  " }, wantErr: domain.ErrValidation},
		{name: "unknown event", actor: f.treasurer, stmtID: stmt.ID, mutate: func(in *models.PettyCashExpenseInput) { in.EventID = 999 }, wantErr: domain.ErrValidation},
		{name: "unknown statement", actor: f.treasurer, stmtID: 999, mutate: func(*models.PettyCashExpenseInput) {}, wantErr: domain.ErrNotFound},
		{name: "other city", actor: f.otherTreasurer, stmtID: stmt.ID, mutate: func(*models.PettyCashExpenseInput) {}, wantErr: domain.ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := f.cashExpense("5")
			tt.mutate(&in)
			_, _, err := f.pettyCash.PostExpense(ctx, tt.actor, tt.stmtID, in, "", "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	detail, err := f.pettyCash.GetStatement(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Empty(t, detail.Expenses)
	assert.True(t, detail.Statement.TotalSpent.IsZero())
}

func TestPostExpenseRefusesStatementOverflow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stmt := f.openStatement(t, "0")

	_, _, err := f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, f.cashExpense("99999999.99"), "", "")
	require.NoError(t, err)
	_, _, err = f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, f.cashExpense("0.01"), "", "")
	assert.ErrorIs(t, err, domain.ErrValidation)

	detail, err := f.pettyCash.GetStatement(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Expenses, 1)
	assert.Equal(t, "99999999.99", detail.Statement.TotalSpent.StringFixed(2))
}

func TestPostExpenseIdempotency(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stmt := f.openStatement(t, "100")

	first, replay, err := f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, f.cashExpense("25"), "key-1", "hash-a")
	require.NoError(t, err)
	require.Nil(t, replay)

	again, replay, err := f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, f.cashExpense("25"), "key-1", "hash-a")
	require.NoError(t, err)
	assert.Nil(t, again)
	require.NotNil(t, replay)
	assert.Equal(t, http.StatusCreated, replay.ResponseStatus)

	var replayed domain.PettyCashPosting
	require.NoError(t, json.Unmarshal(replay.ResponseBody, &replayed))
	assert.Equal(t, first.Expense.ID, replayed.Expense.ID)

	_, _, err = f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, f.cashExpense("99"), "key-1", "hash-b")
	assert.ErrorIs(t, err, domain.ErrIdempotencyMismatch)

	detail, err := f.pettyCash.GetStatement(ctx, stmt.ID)
	require.NoError(t, err)
	assert.Len(t, detail.Expenses, 1, "a replay never posts twice")
	assert.Equal(t, "75.00", detail.Statement.ClosingBalance.StringFixed(2))
}

func TestFailedPostReleasesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stmt := f.openStatement(t, "100")

	bad := f.cashExpense("5")
	bad.EventID = 999
	_, _, err := f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, bad, "key-2", "hash")
	require.ErrorIs(t, err, domain.ErrValidation)

	_, replay, err := f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, f.cashExpense("5"), "key-2", "hash")
	require.NoError(t, err)
	assert.Nil(t, replay)
}

func TestConcurrentPostsLoseNoUpdates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stmt := f.openStatement(t, "1000")

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, f.cashExpense("12.50"), fmt.Sprintf("k-%d", i), "h")
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	audit, err := f.pettyCash.Audit(ctx, stmt.ID)
	require.NoError(t, err)
	assert.True(t, audit.Balanced)
	assert.Equal(t, "250.00", audit.StoredSpent.StringFixed(2))
	assert.Equal(t, "750.00", audit.StoredClosing.StringFixed(2))

	detail, err := f.pettyCash.GetStatement(ctx, stmt.ID)
	require.NoError(t, err)
	seen := map[string]bool{}
	for _, e := range detail.Expenses {
		seen[e.BalanceOnHandAfter.StringFixed(2)] = true
	}
	assert.Len(t, seen, workers, "every posting observed a distinct running balance")
}

func TestAuditDetectsDrift(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	stmt := f.openStatement(t, "100")
	_, _, err := f.pettyCash.PostExpense(ctx, f.treasurer, stmt.ID, f.cashExpense("10"), "", "")
	require.NoError(t, err)

	// write totals behind the reconciler's back
	err = f.store.InTx(ctx, func(tx store.Tx) error {
		return tx.UpdateStatementTotals(ctx, stmt.ID, decimal.NewFromInt(3), decimal.NewFromInt(97))
	})
	require.NoError(t, err)

	audit, err := f.pettyCash.Audit(ctx, stmt.ID)
	require.NoError(t, err)
	assert.False(t, audit.Balanced)
	assert.Equal(t, "90.00", audit.ComputedClosing.StringFixed(2))
	assert.Equal(t, "97.00", audit.StoredClosing.StringFixed(2))

	_, err = f.pettyCash.Audit(ctx, 999)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
