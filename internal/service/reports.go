package service

import (
	"cmp"
	"context"
	"slices"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/store"
	"github.com/shopspring/decimal"
)

// Reports computes the read-only aggregations. Nothing here is stored; every
// call reflects the committed state at the time of the call.
type Reports struct {
	store store.Store
}

func NewReports(st store.Store) *Reports {
	return &Reports{store: st}
}

// MonthlyTotals sums the event totals of APPROVED requests per city and month,
// latest month first. Cities without approved spend in a month do not appear.
func (r *Reports) MonthlyTotals(ctx context.Context) ([]domain.MonthlyTotal, error) {
	var rows []domain.ApprovedAmount
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		rows, err = tx.ListApprovedAmounts(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	return aggregateMonthly(rows), nil
}

type cityMonth struct {
	cityID int64
	month  string
}

// aggregateMonthly groups by city id, not name: chapters that share a name
// get separate rows and are told apart by CityID.
func aggregateMonthly(rows []domain.ApprovedAmount) []domain.MonthlyTotal {
	index := map[cityMonth]int{}
	out := []domain.MonthlyTotal{}
	for _, row := range rows {
		k := cityMonth{cityID: row.CityID, month: domain.FormatMonth(row.Month)}
		i, ok := index[k]
		if !ok {
			i = len(out)
			index[k] = i
			out = append(out, domain.MonthlyTotal{CityID: row.CityID, City: row.CityName, Month: k.month, Total: decimal.Zero})
		}
		out[i].Total = out[i].Total.Add(row.Total)
	}

	slices.SortFunc(out, func(a, b domain.MonthlyTotal) int {
		return cmp.Or(
			cmp.Compare(b.Month, a.Month),
			cmp.Compare(a.City, b.City),
			cmp.Compare(a.CityID, b.CityID),
		)
	})
	for i := range out {
		out[i].Total = domain.RoundCurrency(out[i].Total)
	}
	return out
}

type eventVendor struct {
	eventID int64
	vendor  string
}

// EventExpenses sums recorded expenses per event and vendor, biggest spend first.
func (r *Reports) EventExpenses(ctx context.Context) ([]domain.EventExpenseSummary, error) {
	out := []domain.EventExpenseSummary{}
	err := r.store.InTx(ctx, func(tx store.Tx) error {
		expenses, err := tx.ListExpenses(ctx)
		if err != nil {
			return err
		}

		names := map[int64]string{}
		index := map[eventVendor]int{}
		for _, e := range expenses {
			if _, ok := names[e.EventID]; !ok {
				ev, err := tx.GetEvent(ctx, e.EventID)
				if err != nil {
					return err
				}
				names[e.EventID] = ev.Name
			}
			k := eventVendor{eventID: e.EventID, vendor: e.Vendor}
			i, ok := index[k]
			if !ok {
				i = len(out)
				index[k] = i
				out = append(out, domain.EventExpenseSummary{
					EventID:    e.EventID,
					EventName:  names[e.EventID],
					Vendor:     e.Vendor,
					TotalSpent: decimal.Zero,
				})
			}
			out[i].TotalSpent = out[i].TotalSpent.Add(e.TotalAmount)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	slices.SortFunc(out, func(a, b domain.EventExpenseSummary) int {
		return cmp.Or(
			b.TotalSpent.Cmp(a.TotalSpent),
			cmp.Compare(a.EventID, b.EventID),
			cmp.Compare(a.Vendor, b.Vendor),
		)
	})
	return out, nil
}
