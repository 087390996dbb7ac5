package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/logging"
	"github.com/punchamoorthee/chapterbudget/internal/models"
	"github.com/punchamoorthee/chapterbudget/internal/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const pettyCashModule = "pettycash"

func trim(s string) string { return strings.TrimSpace(s) }

// PettyCashReconciler keeps a statement's running totals in step with its
// expense rows. Every petty-cash expense must enter the store through Insert.
type PettyCashReconciler struct{}

// Insert locks the statement, stamps the expense with the new closing balance,
// inserts it and writes the recomputed totals, all inside tx.
// Concurrent inserts against one statement serialize on the statement lock.
func (PettyCashReconciler) Insert(ctx context.Context, tx store.Tx, exp domain.PettyCashExpense) (*domain.PettyCashPosting, error) {
	stmt, err := tx.LockStatement(ctx, exp.StatementID)
	if err != nil {
		return nil, err
	}

	spent := domain.RoundCurrency(stmt.TotalSpent.Add(exp.TotalAmount))
	closing := domain.RoundCurrency(stmt.OpeningBalance.Sub(spent))
	if !domain.WithinRange(spent) || !domain.WithinRange(closing) {
		return nil, invalid("statement %d totals would exceed %s", stmt.ID, domain.MaxAmount.StringFixed(domain.CurrencyPlaces))
	}

	exp.BalanceOnHandAfter = closing
	id, err := tx.InsertPettyCashExpense(ctx, &exp)
	if err != nil {
		return nil, err
	}
	exp.ID = id

	if err := tx.UpdateStatementTotals(ctx, stmt.ID, spent, closing); err != nil {
		return nil, err
	}
	stmt.TotalSpent = spent
	stmt.ClosingBalance = closing
	return &domain.PettyCashPosting{Expense: exp, Statement: *stmt}, nil
}

// PettyCash manages monthly petty-cash statements and their outflows.
type PettyCash struct {
	store      store.Store
	reconciler PettyCashReconciler
	log        logrus.FieldLogger
}

func NewPettyCash(st store.Store, logger logrus.FieldLogger) *PettyCash {
	return &PettyCash{store: st, log: logger}
}

// OpenStatement creates a statement with nothing spent yet, so its closing
// balance starts equal to the opening balance.
func (p *PettyCash) OpenStatement(ctx context.Context, actor domain.Actor, in models.StatementInput) (*domain.PettyCashStatement, error) {
	if !actor.Authenticated() {
		return nil, forbidden("an authenticated user is required")
	}
	if in.CityID == 0 {
		in.CityID = actor.CityID
	}
	if !actor.CanActForCity(in.CityID) {
		return nil, forbidden("treasurers can only open statements for their own city")
	}
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	month, err := domain.ParseMonth(in.Month)
	if err != nil {
		return nil, err
	}
	opening, err := in.OpeningBalance.Strict("opening_balance")
	if err != nil {
		return nil, err
	}
	if opening.IsNegative() {
		return nil, invalid("opening_balance must not be negative")
	}
	carried, err := in.CarriedForward.Strict("carried_forward")
	if err != nil {
		return nil, err
	}
	cash, err := in.CashInHand.Strict("cash_in_hand")
	if err != nil {
		return nil, err
	}

	stmt := &domain.PettyCashStatement{
		CityID:         in.CityID,
		Month:          domain.FormatMonth(month),
		OpeningBalance: opening,
		TotalSpent:     decimal.Zero,
		ClosingBalance: opening,
		CarriedForward: carried,
		CashInHand:     cash,
		PreparedBy:     actor.UserID,
		ApprovedBy:     in.ApprovedBy,
	}
	err = p.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetCity(ctx, stmt.CityID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return invalid("unknown city %d", stmt.CityID)
			}
			return err
		}
		id, err := tx.InsertStatement(ctx, stmt)
		if err != nil {
			return err
		}
		stmt.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.log.WithFields(logrus.Fields{
		"pcs_id":  stmt.ID,
		"city_id": stmt.CityID,
		"month":   stmt.Month,
	}).Info("petty cash statement opened")
	return stmt, nil
}

// GetStatement returns the header and its expenses in posting order.
func (p *PettyCash) GetStatement(ctx context.Context, statementID int64) (*domain.StatementDetail, error) {
	var detail *domain.StatementDetail
	err := p.store.InTx(ctx, func(tx store.Tx) error {
		stmt, err := tx.GetStatement(ctx, statementID)
		if err != nil {
			return err
		}
		expenses, err := tx.ListPettyCashExpenses(ctx, statementID)
		if err != nil {
			return err
		}
		if expenses == nil {
			expenses = []domain.PettyCashExpense{}
		}
		detail = &domain.StatementDetail{Statement: *stmt, Expenses: expenses}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// PostExpense records a cash outflow through the reconciler.
//
// With a non-empty idempotency key the first successful response is stored and
// replayed for later calls with the same key and request hash. A stored record
// is returned as the second value; the caller writes it back verbatim.
func (p *PettyCash) PostExpense(ctx context.Context, actor domain.Actor, statementID int64, in models.PettyCashExpenseInput, idempotencyKey, reqHash string) (*domain.PettyCashPosting, *domain.IdempotencyRecord, error) {
	posting, replay, err := p.postExpense(ctx, actor, statementID, in, idempotencyKey, reqHash)
	if replay == nil {
		reconciliationsTotal.WithLabelValues(outcome(err)).Inc()
	}

	switch {
	case err == nil && replay != nil:
		p.log.WithField("idempotency_key", idempotencyKey).Info("petty cash expense replayed")
	case err == nil:
		p.log.WithFields(logrus.Fields{
			"pcs_id":          posting.Statement.ID,
			"pcx_id":          posting.Expense.ID,
			"total_spent":     posting.Statement.TotalSpent.StringFixed(domain.CurrencyPlaces),
			"closing_balance": posting.Statement.ClosingBalance.StringFixed(domain.CurrencyPlaces),
		}).Info("petty cash expense posted")
	case !isDomainError(err):
		logging.LogError(p.log, pettyCashModule, "PostExpense", "transaction failed", in, err)
	}
	return posting, replay, err
}

func (p *PettyCash) postExpense(ctx context.Context, actor domain.Actor, statementID int64, in models.PettyCashExpenseInput, idempotencyKey, reqHash string) (*domain.PettyCashPosting, *domain.IdempotencyRecord, error) {
	if !actor.Authenticated() {
		return nil, nil, forbidden("an authenticated user is required")
	}
	in.NatureOfExpense = trim(in.NatureOfExpense)
	in.Vendor = trim(in.Vendor)
	if err := models.Validate(in); err != nil {
		return nil, nil, err
	}
	amounts, err := parseSpend(in.AmountBeforeTax, in.Tax, in.RoundOff, in.TotalAmount)
	if err != nil {
		return nil, nil, err
	}

	var (
		posting *domain.PettyCashPosting
		replay  *domain.IdempotencyRecord
	)
	err = p.store.InTx(ctx, func(tx store.Tx) error {
		// 1. Idempotency check
		if idempotencyKey != "" {
			rec, err := tx.GetIdempotencyRecord(ctx, idempotencyKey)
			switch {
			case err == nil:
				if rec.RequestHash != reqHash {
					return domain.ErrIdempotencyMismatch
				}
				if rec.Status != "completed" {
					return domain.ErrConflict
				}
				replay = rec
				return nil
			case !errors.Is(err, domain.ErrNotFound):
				return err
			}

			// 2. Reservation; a concurrent holder of the key surfaces as ErrConflict
			if err := tx.ReserveIdempotencyKey(ctx, idempotencyKey, reqHash); err != nil {
				return err
			}
		}

		// 3. References and authorization
		stmt, err := tx.GetStatement(ctx, statementID)
		if err != nil {
			return err
		}
		if !actor.CanActForCity(stmt.CityID) {
			return forbidden("statement %d belongs to another city", statementID)
		}
		if _, err := tx.GetEvent(ctx, in.EventID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return invalid("unknown event %d", in.EventID)
			}
			return err
		}

		// 4. Insert and reconcile
		posting, err = p.reconciler.Insert(ctx, tx, domain.PettyCashExpense{
			StatementID:     statementID,
			EventID:         in.EventID,
			NatureOfExpense: in.NatureOfExpense,
			Vendor:          in.Vendor,
			AmountBeforeTax: amounts.beforeTax,
			Tax:             amounts.tax,
			RoundOff:        amounts.roundOff,
			TotalAmount:     amounts.total,
			ReceiptNumber:   receiptNumber(in.ReceiptNumber),
			SpentAt:         trim(in.SpentAt),
			VolunteerName:   trim(in.VolunteerName),
		})
		if err != nil {
			return err
		}

		// 5. Finalize idempotency
		if idempotencyKey == "" {
			return nil
		}
		body, err := json.Marshal(posting)
		if err != nil {
			return err
		}
		return tx.CompleteIdempotencyKey(ctx, idempotencyKey, http.StatusCreated, body)
	})
	if err != nil {
		return nil, nil, err
	}
	return posting, replay, nil
}

// Audit recomputes a statement's totals from its expense rows and compares
// them with the stored header.
func (p *PettyCash) Audit(ctx context.Context, statementID int64) (*domain.StatementAudit, error) {
	detail, err := p.GetStatement(ctx, statementID)
	if err != nil {
		return nil, err
	}
	stmt := detail.Statement

	computed := decimal.Zero
	for _, e := range detail.Expenses {
		computed = computed.Add(e.TotalAmount)
	}
	computed = domain.RoundCurrency(computed)
	computedClosing := domain.RoundCurrency(stmt.OpeningBalance.Sub(computed))

	audit := &domain.StatementAudit{
		StatementID:     stmt.ID,
		StoredClosing:   stmt.ClosingBalance,
		ComputedClosing: computedClosing,
		StoredSpent:     stmt.TotalSpent,
		ComputedSpent:   computed,
		Balanced:        stmt.TotalSpent.Equal(computed) && stmt.ClosingBalance.Equal(computedClosing),
	}
	if !audit.Balanced {
		p.log.WithFields(logrus.Fields{
			"pcs_id":           stmt.ID,
			"stored_closing":   stmt.ClosingBalance.StringFixed(domain.CurrencyPlaces),
			"computed_closing": computedClosing.StringFixed(domain.CurrencyPlaces),
		}).Warn("petty cash statement out of balance")
	}
	return audit, nil
}
