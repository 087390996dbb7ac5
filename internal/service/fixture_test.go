package service

import (
	"context"
	"testing"
	"time"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/logging"
	"github.com/punchamoorthee/chapterbudget/internal/models"
	"github.com/punchamoorthee/chapterbudget/internal/store"
	"github.com/stretchr/testify/require"
)

// fixture is a store seeded with two cities, two categories, an admin,
// a treasurer per city and one actual event in the first city.
type fixture struct {
	store store.Store

	toronto, ottawa   int64
	catFood, catVenue int64
	eventID           int64

	admin, treasurer, otherTreasurer domain.Actor

	lifecycle *Lifecycle
	pettyCash *PettyCash
	expenses  *Expenses
	reports   *Reports
}

var fixedNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	return newFixtureOn(t, store.NewMemory())
}

func newFixtureOn(t *testing.T, st store.Store) *fixture {
	t.Helper()
	ctx := context.Background()
	f := &fixture{store: st}

	err := f.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		if f.toronto, err = tx.InsertCity(ctx, &domain.City{Name: "Toronto", Province: "ON"}); err != nil {
			return err
		}
		if f.ottawa, err = tx.InsertCity(ctx, &domain.City{Name: "Ottawa", Province: "ON"}); err != nil {
			return err
		}
		if f.catFood, err = tx.InsertCategory(ctx, &domain.Category{Name: "Food"}); err != nil {
			return err
		}
		if f.catVenue, err = tx.InsertCategory(ctx, &domain.Category{Name: "Venue"}); err != nil {
			return err
		}
		adminID, err := tx.InsertUser(ctx, &domain.User{Name: "Asha", Email: "asha@example.org", Role: domain.RoleAdmin})
		if err != nil {
			return err
		}
		treasurerID, err := tx.InsertUser(ctx, &domain.User{Name: "Ravi", Email: "ravi@example.org", Role: domain.RoleTreasurer, CityID: f.toronto})
		if err != nil {
			return err
		}
		otherID, err := tx.InsertUser(ctx, &domain.User{Name: "Meena", Email: "meena@example.org", Role: domain.RoleTreasurer, CityID: f.ottawa})
		if err != nil {
			return err
		}
		f.admin = domain.Actor{UserID: adminID, Role: domain.RoleAdmin}
		f.treasurer = domain.Actor{UserID: treasurerID, Role: domain.RoleTreasurer, CityID: f.toronto}
		f.otherTreasurer = domain.Actor{UserID: otherID, Role: domain.RoleTreasurer, CityID: f.ottawa}

		f.eventID, err = tx.InsertEvent(ctx, &domain.Event{
			CityID:     f.toronto,
			Name:       "Spring Fundraiser",
			EventDate:  time.Date(2025, 3, 15, 0, 0, 0, 0, time.UTC),
			PreparedBy: treasurerID,
		})
		return err
	})
	require.NoError(t, err)

	logger := logging.Discard()
	f.lifecycle = NewLifecycle(f.store, logger)
	f.lifecycle.now = func() time.Time { return fixedNow }
	f.pettyCash = NewPettyCash(f.store, logger)
	f.expenses = NewExpenses(f.store, logger)
	f.expenses.now = func() time.Time { return fixedNow }
	f.reports = NewReports(f.store)
	return f
}

func (f *fixture) requestInput(month string, lines ...models.LineInput) models.RequestInput {
	return models.RequestInput{
		Month:       month,
		Description: "Spring fundraiser supplies",
		Event:       models.EventInput{Name: "Fundraiser", Date: "2025-03-15"},
		Lines:       lines,
	}
}

func line(categoryID int64, amount string) models.LineInput {
	return models.LineInput{CategoryID: categoryID, Description: "item", Amount: models.AmountInput(amount)}
}

// createRequest submits a request as the fixture treasurer and fails the test on error.
func (f *fixture) createRequest(t *testing.T, month string, lines ...models.LineInput) *domain.RequestDetail {
	t.Helper()
	detail, err := f.lifecycle.Create(context.Background(), f.treasurer, f.requestInput(month, lines...))
	require.NoError(t, err)
	return detail
}

// snapshot counts the rows that belong to a request.
type snapshot struct {
	request   bool
	events    int
	lines     int
	approvals int
}

func (f *fixture) snapshot(t *testing.T, requestID int64) snapshot {
	t.Helper()
	ctx := context.Background()
	var s snapshot
	err := f.store.InTx(ctx, func(tx store.Tx) error {
		if _, err := tx.GetRequest(ctx, requestID); err == nil {
			s.request = true
		}
		events, err := tx.ListRequestedEvents(ctx, requestID)
		if err != nil {
			return err
		}
		s.events = len(events)
		for _, ev := range events {
			lines, err := tx.ListBreakdownLines(ctx, ev.ID)
			if err != nil {
				return err
			}
			s.lines += len(lines)
		}
		approvals, err := tx.ListApprovals(ctx, requestID)
		s.approvals = len(approvals)
		return err
	})
	require.NoError(t, err)
	return s
}
