package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/logging"
	"github.com/punchamoorthee/chapterbudget/internal/models"
	"github.com/punchamoorthee/chapterbudget/internal/store"
	"github.com/sirupsen/logrus"
)

const expensesModule = "expenses"

// Expenses books actual spend against chapter events.
type Expenses struct {
	store    store.Store
	receipts ReceiptAutoCreator
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewExpenses(st store.Store, logger logrus.FieldLogger) *Expenses {
	e := &Expenses{store: st, log: logger, now: time.Now}
	e.receipts = ReceiptAutoCreator{now: func() time.Time { return e.now() }}
	return e
}

// CreateEvent registers an actual event for the actor's city, or any city for admins.
func (e *Expenses) CreateEvent(ctx context.Context, actor domain.Actor, in models.EventCreateInput) (*domain.Event, error) {
	if !actor.Authenticated() {
		return nil, forbidden("an authenticated user is required")
	}
	in.Name = strings.TrimSpace(in.Name)
	if in.CityID == 0 {
		in.CityID = actor.CityID
	}
	if !actor.CanActForCity(in.CityID) {
		return nil, forbidden("treasurers can only create events for their own city")
	}
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	date, err := domain.ParseDate("date", in.Date)
	if err != nil {
		return nil, err
	}

	ev := &domain.Event{
		CityID:         in.CityID,
		Name:           in.Name,
		EventDate:      date,
		AttendeesCount: in.AttendeesCount,
		PreparedBy:     actor.UserID,
	}
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetCity(ctx, ev.CityID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return invalid("unknown city %d", ev.CityID)
			}
			return err
		}
		id, err := tx.InsertEvent(ctx, ev)
		if err != nil {
			return err
		}
		ev.ID = id
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

func (e *Expenses) GetEvent(ctx context.Context, eventID int64) (*domain.Event, error) {
	var ev *domain.Event
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		ev, err = tx.GetEvent(ctx, eventID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// RecordExpense inserts an expense and, when it carries a receipt number,
// its receipt placeholder in the same transaction.
func (e *Expenses) RecordExpense(ctx context.Context, actor domain.Actor, in models.ExpenseInput) (*domain.ExpenseDetail, error) {
	if !actor.Authenticated() {
		return nil, forbidden("an authenticated user is required")
	}
	in.Vendor = strings.TrimSpace(in.Vendor)
	in.ItemDesc = strings.TrimSpace(in.ItemDesc)
	if err := models.Validate(in); err != nil {
		return nil, err
	}
	amounts, err := parseSpend(in.AmountBeforeTax, in.Tax, in.RoundOff, in.TotalAmount)
	if err != nil {
		return nil, err
	}

	var (
		detail  *domain.ExpenseDetail
		created bool
	)
	err = e.store.InTx(ctx, func(tx store.Tx) error {
		ev, err := tx.GetEvent(ctx, in.EventID)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return invalid("unknown event %d", in.EventID)
			}
			return err
		}
		if !actor.CanActForCity(ev.CityID) {
			return forbidden("event %d belongs to another city", in.EventID)
		}
		if _, err := tx.GetCategory(ctx, in.CategoryID); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return invalid("unknown category %d", in.CategoryID)
			}
			return err
		}

		exp := domain.Expense{
			EventID:         in.EventID,
			CategoryID:      in.CategoryID,
			Vendor:          in.Vendor,
			ItemDesc:        in.ItemDesc,
			AmountBeforeTax: amounts.beforeTax,
			Tax:             amounts.tax,
			RoundOff:        amounts.roundOff,
			TotalAmount:     amounts.total,
			ReceiptNumber:   receiptNumber(in.ReceiptNumber),
			SpentAt:         trim(in.SpentAt),
			VolunteerName:   trim(in.VolunteerName),
		}
		id, err := tx.InsertExpense(ctx, &exp)
		if err != nil {
			return err
		}
		exp.ID = id

		receipt, isNew, err := e.receipts.OnExpenseInserted(ctx, tx, &exp)
		if err != nil {
			return err
		}
		created = isNew
		detail = &domain.ExpenseDetail{Expense: exp, Receipt: receipt}
		return nil
	})
	if err != nil {
		if !isDomainError(err) {
			logging.LogError(e.log, expensesModule, "RecordExpense", "transaction failed", in, err)
		}
		return nil, err
	}

	if created {
		receiptsAutoCreated.Inc()
	}
	e.log.WithFields(logrus.Fields{
		"expense_id": detail.ID,
		"event_id":   detail.EventID,
		"receipt":    detail.Receipt != nil,
	}).Info("expense recorded")
	return detail, nil
}

// GetExpense returns an expense with its receipt placeholder, if any.
func (e *Expenses) GetExpense(ctx context.Context, expenseID int64) (*domain.ExpenseDetail, error) {
	var detail *domain.ExpenseDetail
	err := e.store.InTx(ctx, func(tx store.Tx) error {
		exp, err := tx.GetExpense(ctx, expenseID)
		if err != nil {
			return err
		}
		detail = &domain.ExpenseDetail{Expense: *exp}
		r, err := tx.GetReceiptByExpense(ctx, expenseID)
		switch {
		case err == nil:
			detail.Receipt = r
		case !errors.Is(err, domain.ErrNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}
