package store

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"sort"
	"sync"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/shopspring/decimal"
)

// Memory is an in-process transactional store. Each unit of work runs on a clone
// of the state that replaces it on commit, and a single mutex serialises units,
// so every row is effectively locked for the whole transaction.
// Foreign keys are checked on insert and delete like the Postgres schema does.
type Memory struct {
	mu    sync.Mutex
	state memState
}

type memState struct {
	seq        map[string]int64
	cities     map[int64]domain.City
	categories map[int64]domain.Category
	users      map[int64]domain.User
	requests   map[int64]domain.BudgetRequest
	reqEvents  map[int64]domain.RequestedEvent
	lines      map[int64]domain.BreakdownLine
	approvals  map[int64]domain.Approval
	events     map[int64]domain.Event
	expenses   map[int64]domain.Expense
	receipts   map[int64]domain.Receipt
	statements map[int64]domain.PettyCashStatement
	pcExpenses map[int64]domain.PettyCashExpense
	idem       map[string]domain.IdempotencyRecord
}

func newMemState() memState {
	return memState{
		seq:        map[string]int64{},
		cities:     map[int64]domain.City{},
		categories: map[int64]domain.Category{},
		users:      map[int64]domain.User{},
		requests:   map[int64]domain.BudgetRequest{},
		reqEvents:  map[int64]domain.RequestedEvent{},
		lines:      map[int64]domain.BreakdownLine{},
		approvals:  map[int64]domain.Approval{},
		events:     map[int64]domain.Event{},
		expenses:   map[int64]domain.Expense{},
		receipts:   map[int64]domain.Receipt{},
		statements: map[int64]domain.PettyCashStatement{},
		pcExpenses: map[int64]domain.PettyCashExpense{},
		idem:       map[string]domain.IdempotencyRecord{},
	}
}

// clone copies every table. Row values are copied by assignment; pointer fields
// are never mutated in place, so sharing them between snapshots is safe.
func (s memState) clone() memState {
	return memState{
		seq:        maps.Clone(s.seq),
		cities:     maps.Clone(s.cities),
		categories: maps.Clone(s.categories),
		users:      maps.Clone(s.users),
		requests:   maps.Clone(s.requests),
		reqEvents:  maps.Clone(s.reqEvents),
		lines:      maps.Clone(s.lines),
		approvals:  maps.Clone(s.approvals),
		events:     maps.Clone(s.events),
		expenses:   maps.Clone(s.expenses),
		receipts:   maps.Clone(s.receipts),
		statements: maps.Clone(s.statements),
		pcExpenses: maps.Clone(s.pcExpenses),
		idem:       maps.Clone(s.idem),
	}
}

func (s memState) next(table string) int64 {
	s.seq[table]++
	return s.seq[table]
}

func NewMemory() *Memory {
	return &Memory{state: newMemState()}
}

func (m *Memory) InTx(ctx context.Context, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	work := m.state.clone()
	if err := fn(&memTx{s: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	m.state = work
	return nil
}

func (m *Memory) Close() {}

var _ Tx = (*memTx)(nil)

type memTx struct {
	s memState
}

func notFound(what string, id any) error {
	return fmt.Errorf("%w: %s %v", domain.ErrNotFound, what, id)
}

func missingParent(what string, id int64) error {
	return fmt.Errorf("%w: %s %d does not exist", domain.ErrValidation, what, id)
}

func stillReferenced(what string, id int64) error {
	return fmt.Errorf("delete %s %d: still referenced", what, id)
}

func sortedValues[K comparable, V any](m map[K]V, less func(a, b V) bool) []V {
	out := slices.Collect(maps.Values(m))
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// --- reference data ---

func (t *memTx) InsertCity(_ context.Context, c *domain.City) (int64, error) {
	row := *c
	row.ID = t.s.next("city")
	t.s.cities[row.ID] = row
	return row.ID, nil
}

func (t *memTx) GetCity(_ context.Context, id int64) (*domain.City, error) {
	c, ok := t.s.cities[id]
	if !ok {
		return nil, notFound("city", id)
	}
	return &c, nil
}

func (t *memTx) ListCities(_ context.Context) ([]domain.City, error) {
	return sortedValues(t.s.cities, func(a, b domain.City) bool {
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	}), nil
}

func (t *memTx) InsertCategory(_ context.Context, c *domain.Category) (int64, error) {
	row := *c
	row.ID = t.s.next("category")
	t.s.categories[row.ID] = row
	return row.ID, nil
}

func (t *memTx) GetCategory(_ context.Context, id int64) (*domain.Category, error) {
	c, ok := t.s.categories[id]
	if !ok {
		return nil, notFound("category", id)
	}
	return &c, nil
}

func (t *memTx) ListCategories(_ context.Context) ([]domain.Category, error) {
	return sortedValues(t.s.categories, func(a, b domain.Category) bool {
		if a.Name != b.Name {
			return a.Name < b.Name
		}
		return a.ID < b.ID
	}), nil
}

func (t *memTx) InsertUser(_ context.Context, u *domain.User) (int64, error) {
	if u.CityID != 0 {
		if _, ok := t.s.cities[u.CityID]; !ok {
			return 0, missingParent("city", u.CityID)
		}
	}
	for _, existing := range t.s.users {
		if existing.Email == u.Email {
			return 0, fmt.Errorf("%w: email %s already registered", domain.ErrConflict, u.Email)
		}
	}
	row := *u
	row.ID = t.s.next("users")
	t.s.users[row.ID] = row
	return row.ID, nil
}

// --- budget requests ---

func (t *memTx) InsertRequest(_ context.Context, r *domain.BudgetRequest) (int64, error) {
	if _, ok := t.s.cities[r.CityID]; !ok {
		return 0, missingParent("city", r.CityID)
	}
	row := *r
	row.ID = t.s.next("budget_request")
	t.s.requests[row.ID] = row
	return row.ID, nil
}

func (t *memTx) GetRequest(_ context.Context, id int64) (*domain.BudgetRequest, error) {
	r, ok := t.s.requests[id]
	if !ok {
		return nil, notFound("budget request", id)
	}
	return &r, nil
}

func (t *memTx) LockRequest(ctx context.Context, id int64) (*domain.BudgetRequest, error) {
	return t.GetRequest(ctx, id)
}

func (t *memTx) UpdateRequest(_ context.Context, r *domain.BudgetRequest) error {
	if _, ok := t.s.requests[r.ID]; !ok {
		return notFound("budget request", r.ID)
	}
	t.s.requests[r.ID] = *r
	return nil
}

func (t *memTx) UpdateRequestStatus(_ context.Context, id int64, status domain.RequestStatus) error {
	r, ok := t.s.requests[id]
	if !ok {
		return notFound("budget request", id)
	}
	r.Status = status
	t.s.requests[id] = r
	return nil
}

func (t *memTx) DeleteRequest(_ context.Context, id int64) error {
	if _, ok := t.s.requests[id]; !ok {
		return notFound("budget request", id)
	}
	for _, e := range t.s.reqEvents {
		if e.RequestID == id {
			return stillReferenced("budget request", id)
		}
	}
	for _, a := range t.s.approvals {
		if a.RequestID == id {
			return stillReferenced("budget request", id)
		}
	}
	delete(t.s.requests, id)
	return nil
}

func (t *memTx) ListRequests(_ context.Context, f RequestFilter) ([]domain.BudgetRequest, error) {
	out := make([]domain.BudgetRequest, 0)
	for _, r := range t.s.requests {
		if f.RequesterID != 0 && r.RequesterID != f.RequesterID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if f.OldestFirst {
			a, b = b, a
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	return out, nil
}

// --- nested set ---

func (t *memTx) InsertRequestedEvent(_ context.Context, e *domain.RequestedEvent) (int64, error) {
	if _, ok := t.s.requests[e.RequestID]; !ok {
		return 0, missingParent("budget request", e.RequestID)
	}
	row := *e
	row.ID = t.s.next("requested_event")
	t.s.reqEvents[row.ID] = row
	return row.ID, nil
}

func (t *memTx) ListRequestedEvents(_ context.Context, requestID int64) ([]domain.RequestedEvent, error) {
	out := make([]domain.RequestedEvent, 0, 1)
	for _, e := range t.s.reqEvents {
		if e.RequestID == requestID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) UpdateRequestedEventTotal(_ context.Context, eventID int64, total decimal.Decimal) error {
	e, ok := t.s.reqEvents[eventID]
	if !ok {
		return notFound("requested event", eventID)
	}
	e.TotalAmount = decimal.NewNullDecimal(total)
	t.s.reqEvents[eventID] = e
	return nil
}

func (t *memTx) DeleteRequestedEvents(_ context.Context, requestID int64) (int64, error) {
	var n int64
	for id, e := range t.s.reqEvents {
		if e.RequestID != requestID {
			continue
		}
		for _, l := range t.s.lines {
			if l.EventID == id {
				return 0, stillReferenced("requested event", id)
			}
		}
		delete(t.s.reqEvents, id)
		n++
	}
	return n, nil
}

func (t *memTx) InsertBreakdownLine(_ context.Context, l *domain.BreakdownLine) (int64, error) {
	if _, ok := t.s.reqEvents[l.EventID]; !ok {
		return 0, missingParent("requested event", l.EventID)
	}
	if _, ok := t.s.categories[l.CategoryID]; !ok {
		return 0, missingParent("category", l.CategoryID)
	}
	row := *l
	row.ID = t.s.next("requested_break_down_line")
	t.s.lines[row.ID] = row
	return row.ID, nil
}

func (t *memTx) ListBreakdownLines(_ context.Context, eventID int64) ([]domain.BreakdownLine, error) {
	out := make([]domain.BreakdownLine, 0)
	for _, l := range t.s.lines {
		if l.EventID == eventID {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) DeleteBreakdownLines(_ context.Context, requestID int64) (int64, error) {
	var n int64
	for id, l := range t.s.lines {
		if e, ok := t.s.reqEvents[l.EventID]; ok && e.RequestID == requestID {
			delete(t.s.lines, id)
			n++
		}
	}
	return n, nil
}

// --- approvals ---

func (t *memTx) InsertApproval(_ context.Context, a *domain.Approval) (int64, error) {
	if _, ok := t.s.requests[a.RequestID]; !ok {
		return 0, missingParent("budget request", a.RequestID)
	}
	row := *a
	row.ID = t.s.next("approval")
	t.s.approvals[row.ID] = row
	return row.ID, nil
}

func (t *memTx) ListApprovals(_ context.Context, requestID int64) ([]domain.Approval, error) {
	out := make([]domain.Approval, 0)
	for _, a := range t.s.approvals {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memTx) DeleteApprovals(_ context.Context, requestID int64) (int64, error) {
	var n int64
	for id, a := range t.s.approvals {
		if a.RequestID == requestID {
			delete(t.s.approvals, id)
			n++
		}
	}
	return n, nil
}

// --- events, expenses, receipts ---

func (t *memTx) InsertEvent(_ context.Context, e *domain.Event) (int64, error) {
	if _, ok := t.s.cities[e.CityID]; !ok {
		return 0, missingParent("city", e.CityID)
	}
	row := *e
	row.ID = t.s.next("event")
	t.s.events[row.ID] = row
	return row.ID, nil
}

func (t *memTx) GetEvent(_ context.Context, id int64) (*domain.Event, error) {
	e, ok := t.s.events[id]
	if !ok {
		return nil, notFound("event", id)
	}
	return &e, nil
}

func (t *memTx) InsertExpense(_ context.Context, e *domain.Expense) (int64, error) {
	if _, ok := t.s.events[e.EventID]; !ok {
		return 0, missingParent("event", e.EventID)
	}
	if _, ok := t.s.categories[e.CategoryID]; !ok {
		return 0, missingParent("category", e.CategoryID)
	}
	row := *e
	row.ID = t.s.next("expense")
	t.s.expenses[row.ID] = row
	return row.ID, nil
}

func (t *memTx) GetExpense(_ context.Context, id int64) (*domain.Expense, error) {
	e, ok := t.s.expenses[id]
	if !ok {
		return nil, notFound("expense", id)
	}
	return &e, nil
}

func (t *memTx) ListExpenses(_ context.Context) ([]domain.Expense, error) {
	return sortedValues(t.s.expenses, func(a, b domain.Expense) bool { return a.ID < b.ID }), nil
}

func (t *memTx) GetReceiptByExpense(_ context.Context, expenseID int64) (*domain.Receipt, error) {
	for _, r := range t.s.receipts {
		if r.ExpenseID == expenseID {
			return &r, nil
		}
	}
	return nil, notFound("receipt for expense", expenseID)
}

func (t *memTx) InsertReceipt(_ context.Context, r *domain.Receipt) (int64, error) {
	if _, ok := t.s.expenses[r.ExpenseID]; !ok {
		return 0, missingParent("expense", r.ExpenseID)
	}
	for _, existing := range t.s.receipts {
		if existing.ExpenseID == r.ExpenseID {
			return 0, fmt.Errorf("%w: expense %d already has a receipt", domain.ErrConflict, r.ExpenseID)
		}
	}
	row := *r
	row.ID = t.s.next("receipt")
	t.s.receipts[row.ID] = row
	return row.ID, nil
}

// --- petty cash ---

func (t *memTx) InsertStatement(_ context.Context, s *domain.PettyCashStatement) (int64, error) {
	if _, ok := t.s.cities[s.CityID]; !ok {
		return 0, missingParent("city", s.CityID)
	}
	row := *s
	row.ID = t.s.next("petty_cash_statement")
	t.s.statements[row.ID] = row
	return row.ID, nil
}

func (t *memTx) GetStatement(_ context.Context, id int64) (*domain.PettyCashStatement, error) {
	s, ok := t.s.statements[id]
	if !ok {
		return nil, notFound("petty cash statement", id)
	}
	return &s, nil
}

func (t *memTx) LockStatement(ctx context.Context, id int64) (*domain.PettyCashStatement, error) {
	return t.GetStatement(ctx, id)
}

func (t *memTx) UpdateStatementTotals(_ context.Context, id int64, totalSpent, closing decimal.Decimal) error {
	s, ok := t.s.statements[id]
	if !ok {
		return notFound("petty cash statement", id)
	}
	s.TotalSpent = totalSpent
	s.ClosingBalance = closing
	t.s.statements[id] = s
	return nil
}

func (t *memTx) InsertPettyCashExpense(_ context.Context, e *domain.PettyCashExpense) (int64, error) {
	if _, ok := t.s.statements[e.StatementID]; !ok {
		return 0, missingParent("petty cash statement", e.StatementID)
	}
	if _, ok := t.s.events[e.EventID]; !ok {
		return 0, missingParent("event", e.EventID)
	}
	row := *e
	row.ID = t.s.next("petty_cash_expense")
	t.s.pcExpenses[row.ID] = row
	return row.ID, nil
}

func (t *memTx) ListPettyCashExpenses(_ context.Context, statementID int64) ([]domain.PettyCashExpense, error) {
	out := make([]domain.PettyCashExpense, 0)
	for _, e := range t.s.pcExpenses {
		if e.StatementID == statementID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// --- reporting ---

func (t *memTx) ListApprovedAmounts(_ context.Context) ([]domain.ApprovedAmount, error) {
	totals := make(map[int64]decimal.Decimal)
	for _, e := range t.s.reqEvents {
		totals[e.RequestID] = totals[e.RequestID].Add(e.Total())
	}
	out := make([]domain.ApprovedAmount, 0)
	for _, r := range t.s.requests {
		if r.Status != domain.StatusApproved {
			continue
		}
		out = append(out, domain.ApprovedAmount{
			RequestID: r.ID,
			CityID:    r.CityID,
			CityName:  t.s.cities[r.CityID].Name,
			Month:     r.Month,
			Total:     totals[r.ID],
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestID < out[j].RequestID })
	return out, nil
}

// --- idempotency ---

func (t *memTx) GetIdempotencyRecord(_ context.Context, key string) (*domain.IdempotencyRecord, error) {
	rec, ok := t.s.idem[key]
	if !ok {
		return nil, notFound("idempotency key", key)
	}
	rec.ResponseBody = slices.Clone(rec.ResponseBody)
	return &rec, nil
}

func (t *memTx) ReserveIdempotencyKey(_ context.Context, key, requestHash string) error {
	if _, ok := t.s.idem[key]; ok {
		return fmt.Errorf("%w: idempotency key %s", domain.ErrConflict, key)
	}
	t.s.idem[key] = domain.IdempotencyRecord{Key: key, RequestHash: requestHash, Status: "in_progress"}
	return nil
}

func (t *memTx) CompleteIdempotencyKey(_ context.Context, key string, status int, body []byte) error {
	rec, ok := t.s.idem[key]
	if !ok {
		return notFound("idempotency key", key)
	}
	rec.Status = "completed"
	rec.ResponseStatus = status
	rec.ResponseBody = slices.Clone(body)
	t.s.idem[key] = rec
	return nil
}
