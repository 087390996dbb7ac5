package store

import (
	"context"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/shopspring/decimal"
)

// Store runs units of work. A non-nil error from fn rolls the whole unit back.
type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
	Close()
}

// RequestFilter narrows ListRequests. Zero values mean "any".
type RequestFilter struct {
	RequesterID int64
	Status      domain.RequestStatus
	// OldestFirst orders by creation time ascending; the default is newest first.
	OldestFirst bool
}

// Tx is the row-level surface the services work against inside one transaction.
// Lock* methods take a write lock on the row that is held until commit or rollback.
// Methods return domain.ErrNotFound (wrapped) for missing rows.
type Tx interface {
	// reference data
	InsertCity(ctx context.Context, c *domain.City) (int64, error)
	GetCity(ctx context.Context, id int64) (*domain.City, error)
	ListCities(ctx context.Context) ([]domain.City, error)
	InsertCategory(ctx context.Context, c *domain.Category) (int64, error)
	GetCategory(ctx context.Context, id int64) (*domain.Category, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	InsertUser(ctx context.Context, u *domain.User) (int64, error)

	// budget requests
	InsertRequest(ctx context.Context, r *domain.BudgetRequest) (int64, error)
	GetRequest(ctx context.Context, id int64) (*domain.BudgetRequest, error)
	LockRequest(ctx context.Context, id int64) (*domain.BudgetRequest, error)
	UpdateRequest(ctx context.Context, r *domain.BudgetRequest) error
	UpdateRequestStatus(ctx context.Context, id int64, status domain.RequestStatus) error
	DeleteRequest(ctx context.Context, id int64) error
	ListRequests(ctx context.Context, f RequestFilter) ([]domain.BudgetRequest, error)

	// nested set
	InsertRequestedEvent(ctx context.Context, e *domain.RequestedEvent) (int64, error)
	ListRequestedEvents(ctx context.Context, requestID int64) ([]domain.RequestedEvent, error)
	UpdateRequestedEventTotal(ctx context.Context, eventID int64, total decimal.Decimal) error
	DeleteRequestedEvents(ctx context.Context, requestID int64) (int64, error)
	InsertBreakdownLine(ctx context.Context, l *domain.BreakdownLine) (int64, error)
	ListBreakdownLines(ctx context.Context, eventID int64) ([]domain.BreakdownLine, error)
	DeleteBreakdownLines(ctx context.Context, requestID int64) (int64, error)

	// approvals
	InsertApproval(ctx context.Context, a *domain.Approval) (int64, error)
	ListApprovals(ctx context.Context, requestID int64) ([]domain.Approval, error)
	DeleteApprovals(ctx context.Context, requestID int64) (int64, error)

	// events, expenses, receipts
	InsertEvent(ctx context.Context, e *domain.Event) (int64, error)
	GetEvent(ctx context.Context, id int64) (*domain.Event, error)
	InsertExpense(ctx context.Context, e *domain.Expense) (int64, error)
	GetExpense(ctx context.Context, id int64) (*domain.Expense, error)
	ListExpenses(ctx context.Context) ([]domain.Expense, error)
	GetReceiptByExpense(ctx context.Context, expenseID int64) (*domain.Receipt, error)
	// InsertReceipt returns domain.ErrConflict when the expense already has a receipt.
	InsertReceipt(ctx context.Context, r *domain.Receipt) (int64, error)

	// petty cash
	InsertStatement(ctx context.Context, s *domain.PettyCashStatement) (int64, error)
	GetStatement(ctx context.Context, id int64) (*domain.PettyCashStatement, error)
	LockStatement(ctx context.Context, id int64) (*domain.PettyCashStatement, error)
	UpdateStatementTotals(ctx context.Context, id int64, totalSpent, closing decimal.Decimal) error
	InsertPettyCashExpense(ctx context.Context, e *domain.PettyCashExpense) (int64, error)
	ListPettyCashExpenses(ctx context.Context, statementID int64) ([]domain.PettyCashExpense, error)

	// reporting
	ListApprovedAmounts(ctx context.Context) ([]domain.ApprovedAmount, error)

	// idempotency
	GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error)
	// ReserveIdempotencyKey returns domain.ErrConflict when the key is already taken.
	ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error
	CompleteIdempotencyKey(ctx context.Context, key string, status int, body []byte) error
}
