package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/shopspring/decimal"
)

// Postgres is the pgx-backed Store.
type Postgres struct {
	Db *pgxpool.Pool
}

func NewPostgres(ctx context.Context, connString string, maxConns int32) (*Postgres, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &Postgres{Db: pool}, nil
}

func (s *Postgres) Close() {
	s.Db.Close()
}

// Migrate creates any missing tables and indexes.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.Db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// InTx runs fn in a READ COMMITTED transaction. Writers serialise on the rows they
// lock with FOR UPDATE, and a locked read always returns the latest committed version.
func (s *Postgres) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("tx begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("tx commit failed: %w", err)
	}
	return nil
}

var _ Tx = (*pgTx)(nil)

type pgTx struct {
	tx pgx.Tx
}

// translate maps driver errors onto the domain taxonomy.
func translate(op string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return fmt.Errorf("%s: %w: %s", op, domain.ErrConflict, pgErr.Detail)
		case "23503", "23514", "22001", "22003":
			return fmt.Errorf("%s: %w: %s", op, domain.ErrValidation, pgErr.Message)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func (t *pgTx) insertReturningID(ctx context.Context, op, sql string, args ...any) (int64, error) {
	var id int64
	if err := t.tx.QueryRow(ctx, sql, args...).Scan(&id); err != nil {
		return 0, translate(op, err)
	}
	return id, nil
}

func (t *pgTx) execAffected(ctx context.Context, op, sql string, args ...any) (int64, error) {
	tag, err := t.tx.Exec(ctx, sql, args...)
	if err != nil {
		return 0, translate(op, err)
	}
	return tag.RowsAffected(), nil
}

func (t *pgTx) execOne(ctx context.Context, op, sql string, args ...any) error {
	n, err := t.execAffected(ctx, op, sql, args...)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	return nil
}

// --- reference data ---

func (t *pgTx) InsertCity(ctx context.Context, c *domain.City) (int64, error) {
	return t.insertReturningID(ctx, "insert city",
		"INSERT INTO city (name, province) VALUES ($1, $2) RETURNING city_id", c.Name, c.Province)
}

func (t *pgTx) GetCity(ctx context.Context, id int64) (*domain.City, error) {
	var c domain.City
	err := t.tx.QueryRow(ctx, "SELECT city_id, name, province FROM city WHERE city_id = $1", id).
		Scan(&c.ID, &c.Name, &c.Province)
	if err != nil {
		return nil, translate("get city", err)
	}
	return &c, nil
}

func (t *pgTx) ListCities(ctx context.Context) ([]domain.City, error) {
	rows, err := t.tx.Query(ctx, "SELECT city_id, name, province FROM city ORDER BY name, city_id")
	if err != nil {
		return nil, translate("list cities", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.City, error) {
		var c domain.City
		err := row.Scan(&c.ID, &c.Name, &c.Province)
		return c, err
	})
	if err != nil {
		return nil, translate("list cities", err)
	}
	return out, nil
}

func (t *pgTx) InsertCategory(ctx context.Context, c *domain.Category) (int64, error) {
	return t.insertReturningID(ctx, "insert category",
		"INSERT INTO category (name) VALUES ($1) RETURNING category_id", c.Name)
}

func (t *pgTx) GetCategory(ctx context.Context, id int64) (*domain.Category, error) {
	var c domain.Category
	err := t.tx.QueryRow(ctx, "SELECT category_id, name FROM category WHERE category_id = $1", id).
		Scan(&c.ID, &c.Name)
	if err != nil {
		return nil, translate("get category", err)
	}
	return &c, nil
}

func (t *pgTx) ListCategories(ctx context.Context) ([]domain.Category, error) {
	rows, err := t.tx.Query(ctx, "SELECT category_id, name FROM category ORDER BY name ASC, category_id")
	if err != nil {
		return nil, translate("list categories", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Category, error) {
		var c domain.Category
		err := row.Scan(&c.ID, &c.Name)
		return c, err
	})
	if err != nil {
		return nil, translate("list categories", err)
	}
	return out, nil
}

func (t *pgTx) InsertUser(ctx context.Context, u *domain.User) (int64, error) {
	var cityID *int64
	if u.CityID != 0 {
		cityID = &u.CityID
	}
	return t.insertReturningID(ctx, "insert user",
		`INSERT INTO users (name, email, role, city_id, invited_at, is_active)
		 VALUES ($1, $2, $3, $4, NOW(), TRUE) RETURNING user_id`,
		u.Name, u.Email, string(u.Role), cityID)
}

// --- budget requests ---

const requestColumns = `request_id, city_id, COALESCE(requester_id, 0), recipient_id, month,
	COALESCE(description, ''), status, created_at`

func scanRequest(row pgx.Row) (*domain.BudgetRequest, error) {
	var r domain.BudgetRequest
	var status string
	if err := row.Scan(&r.ID, &r.CityID, &r.RequesterID, &r.RecipientID, &r.Month,
		&r.Description, &status, &r.CreatedAt); err != nil {
		return nil, err
	}
	r.Status = domain.RequestStatus(status)
	return &r, nil
}

func (t *pgTx) InsertRequest(ctx context.Context, r *domain.BudgetRequest) (int64, error) {
	return t.insertReturningID(ctx, "insert budget request",
		`INSERT INTO budget_request (city_id, requester_id, recipient_id, month, description, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING request_id`,
		r.CityID, r.RequesterID, r.RecipientID, r.Month, r.Description, string(r.Status), r.CreatedAt)
}

func (t *pgTx) GetRequest(ctx context.Context, id int64) (*domain.BudgetRequest, error) {
	r, err := scanRequest(t.tx.QueryRow(ctx,
		"SELECT "+requestColumns+" FROM budget_request WHERE request_id = $1", id))
	if err != nil {
		return nil, translate("get budget request", err)
	}
	return r, nil
}

func (t *pgTx) LockRequest(ctx context.Context, id int64) (*domain.BudgetRequest, error) {
	r, err := scanRequest(t.tx.QueryRow(ctx,
		"SELECT "+requestColumns+" FROM budget_request WHERE request_id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, translate("lock budget request", err)
	}
	return r, nil
}

func (t *pgTx) UpdateRequest(ctx context.Context, r *domain.BudgetRequest) error {
	return t.execOne(ctx, "update budget request",
		`UPDATE budget_request SET recipient_id = $1, month = $2, description = $3, status = $4
		 WHERE request_id = $5`,
		r.RecipientID, r.Month, r.Description, string(r.Status), r.ID)
}

func (t *pgTx) UpdateRequestStatus(ctx context.Context, id int64, status domain.RequestStatus) error {
	return t.execOne(ctx, "update budget request status",
		"UPDATE budget_request SET status = $1 WHERE request_id = $2", string(status), id)
}

func (t *pgTx) DeleteRequest(ctx context.Context, id int64) error {
	return t.execOne(ctx, "delete budget request", "DELETE FROM budget_request WHERE request_id = $1", id)
}

func (t *pgTx) ListRequests(ctx context.Context, f RequestFilter) ([]domain.BudgetRequest, error) {
	var (
		where []string
		args  []any
	)
	if f.RequesterID != 0 {
		args = append(args, f.RequesterID)
		where = append(where, fmt.Sprintf("requester_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}
	sql := "SELECT " + requestColumns + " FROM budget_request"
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	if f.OldestFirst {
		sql += " ORDER BY created_at ASC, request_id ASC"
	} else {
		sql += " ORDER BY created_at DESC, request_id DESC"
	}

	rows, err := t.tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, translate("list budget requests", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BudgetRequest, error) {
		r, err := scanRequest(row)
		if err != nil {
			return domain.BudgetRequest{}, err
		}
		return *r, nil
	})
	if err != nil {
		return nil, translate("list budget requests", err)
	}
	return out, nil
}

// --- nested set ---

func (t *pgTx) InsertRequestedEvent(ctx context.Context, e *domain.RequestedEvent) (int64, error) {
	return t.insertReturningID(ctx, "insert requested event",
		`INSERT INTO requested_event (request_id, name, event_date, total_amount, notes)
		 VALUES ($1, $2, $3, $4, $5) RETURNING req_event_id`,
		e.RequestID, e.Name, e.EventDate, e.TotalAmount, e.Notes)
}

func (t *pgTx) ListRequestedEvents(ctx context.Context, requestID int64) ([]domain.RequestedEvent, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT req_event_id, request_id, COALESCE(name, ''), event_date, total_amount, COALESCE(notes, '')
		 FROM requested_event WHERE request_id = $1 ORDER BY req_event_id`, requestID)
	if err != nil {
		return nil, translate("list requested events", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.RequestedEvent, error) {
		var e domain.RequestedEvent
		var date *time.Time
		if err := row.Scan(&e.ID, &e.RequestID, &e.Name, &date, &e.TotalAmount, &e.Notes); err != nil {
			return e, err
		}
		if date != nil {
			e.EventDate = *date
		}
		return e, nil
	})
	if err != nil {
		return nil, translate("list requested events", err)
	}
	return out, nil
}

func (t *pgTx) UpdateRequestedEventTotal(ctx context.Context, eventID int64, total decimal.Decimal) error {
	return t.execOne(ctx, "update requested event total",
		"UPDATE requested_event SET total_amount = $1 WHERE req_event_id = $2", total, eventID)
}

func (t *pgTx) DeleteRequestedEvents(ctx context.Context, requestID int64) (int64, error) {
	return t.execAffected(ctx, "delete requested events",
		"DELETE FROM requested_event WHERE request_id = $1", requestID)
}

func (t *pgTx) InsertBreakdownLine(ctx context.Context, l *domain.BreakdownLine) (int64, error) {
	return t.insertReturningID(ctx, "insert breakdown line",
		`INSERT INTO requested_break_down_line (req_event_id, category_id, description, amount)
		 VALUES ($1, $2, $3, $4) RETURNING line_id`,
		l.EventID, l.CategoryID, l.Description, l.Amount)
}

func (t *pgTx) ListBreakdownLines(ctx context.Context, eventID int64) ([]domain.BreakdownLine, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT line_id, req_event_id, category_id, COALESCE(description, ''), amount
		 FROM requested_break_down_line WHERE req_event_id = $1 ORDER BY line_id`, eventID)
	if err != nil {
		return nil, translate("list breakdown lines", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.BreakdownLine, error) {
		var l domain.BreakdownLine
		err := row.Scan(&l.ID, &l.EventID, &l.CategoryID, &l.Description, &l.Amount)
		return l, err
	})
	if err != nil {
		return nil, translate("list breakdown lines", err)
	}
	return out, nil
}

func (t *pgTx) DeleteBreakdownLines(ctx context.Context, requestID int64) (int64, error) {
	return t.execAffected(ctx, "delete breakdown lines",
		`DELETE FROM requested_break_down_line
		 WHERE req_event_id IN (SELECT req_event_id FROM requested_event WHERE request_id = $1)`, requestID)
}

// --- approvals ---

func (t *pgTx) InsertApproval(ctx context.Context, a *domain.Approval) (int64, error) {
	return t.insertReturningID(ctx, "insert approval",
		`INSERT INTO approval (request_id, approver_id, decision, note, decided_at)
		 VALUES ($1, $2, $3, $4, $5) RETURNING approval_id`,
		a.RequestID, a.ApproverID, a.Decision, a.Note, a.DecidedAt)
}

func (t *pgTx) ListApprovals(ctx context.Context, requestID int64) ([]domain.Approval, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT approval_id, request_id, approver_id, decision, note, decided_at
		 FROM approval WHERE request_id = $1 ORDER BY approval_id`, requestID)
	if err != nil {
		return nil, translate("list approvals", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Approval, error) {
		var a domain.Approval
		var decided *time.Time
		if err := row.Scan(&a.ID, &a.RequestID, &a.ApproverID, &a.Decision, &a.Note, &decided); err != nil {
			return a, err
		}
		if decided != nil {
			a.DecidedAt = *decided
		}
		return a, nil
	})
	if err != nil {
		return nil, translate("list approvals", err)
	}
	return out, nil
}

func (t *pgTx) DeleteApprovals(ctx context.Context, requestID int64) (int64, error) {
	return t.execAffected(ctx, "delete approvals", "DELETE FROM approval WHERE request_id = $1", requestID)
}

// --- events, expenses, receipts ---

func (t *pgTx) InsertEvent(ctx context.Context, e *domain.Event) (int64, error) {
	return t.insertReturningID(ctx, "insert event",
		`INSERT INTO event (city_id, name, event_date, attendees_count, prepared_by)
		 VALUES ($1, $2, $3, $4, $5) RETURNING event_id`,
		e.CityID, e.Name, e.EventDate, e.AttendeesCount, e.PreparedBy)
}

func (t *pgTx) GetEvent(ctx context.Context, id int64) (*domain.Event, error) {
	var e domain.Event
	var date *time.Time
	err := t.tx.QueryRow(ctx,
		`SELECT event_id, city_id, COALESCE(name, ''), event_date, attendees_count, prepared_by
		 FROM event WHERE event_id = $1`, id).
		Scan(&e.ID, &e.CityID, &e.Name, &date, &e.AttendeesCount, &e.PreparedBy)
	if err != nil {
		return nil, translate("get event", err)
	}
	if date != nil {
		e.EventDate = *date
	}
	return &e, nil
}

const expenseColumns = `expense_id, event_id, category_id, vendor, item_desc, amount_before_tax, hst,
	round_off, total_amount, receipt_number, spent_at, volunteer_name`

func scanExpense(row pgx.Row) (*domain.Expense, error) {
	var e domain.Expense
	var roundOff decimal.NullDecimal
	if err := row.Scan(&e.ID, &e.EventID, &e.CategoryID, &e.Vendor, &e.ItemDesc, &e.AmountBeforeTax,
		&e.Tax, &roundOff, &e.TotalAmount, &e.ReceiptNumber, &e.SpentAt, &e.VolunteerName); err != nil {
		return nil, err
	}
	e.RoundOff = roundOff.Decimal
	return &e, nil
}

func (t *pgTx) InsertExpense(ctx context.Context, e *domain.Expense) (int64, error) {
	return t.insertReturningID(ctx, "insert expense",
		`INSERT INTO expense (event_id, category_id, vendor, item_desc, amount_before_tax, hst, round_off,
		                      total_amount, receipt_number, spent_at, volunteer_name)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11) RETURNING expense_id`,
		e.EventID, e.CategoryID, e.Vendor, e.ItemDesc, e.AmountBeforeTax, e.Tax, e.RoundOff,
		e.TotalAmount, e.ReceiptNumber, e.SpentAt, e.VolunteerName)
}

func (t *pgTx) GetExpense(ctx context.Context, id int64) (*domain.Expense, error) {
	e, err := scanExpense(t.tx.QueryRow(ctx, "SELECT "+expenseColumns+" FROM expense WHERE expense_id = $1", id))
	if err != nil {
		return nil, translate("get expense", err)
	}
	return e, nil
}

func (t *pgTx) ListExpenses(ctx context.Context) ([]domain.Expense, error) {
	rows, err := t.tx.Query(ctx, "SELECT "+expenseColumns+" FROM expense ORDER BY expense_id")
	if err != nil {
		return nil, translate("list expenses", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Expense, error) {
		e, err := scanExpense(row)
		if err != nil {
			return domain.Expense{}, err
		}
		return *e, nil
	})
	if err != nil {
		return nil, translate("list expenses", err)
	}
	return out, nil
}

func (t *pgTx) GetReceiptByExpense(ctx context.Context, expenseID int64) (*domain.Receipt, error) {
	var r domain.Receipt
	err := t.tx.QueryRow(ctx,
		"SELECT receipt_id, expense_id, file_path, uploaded_at FROM receipt WHERE expense_id = $1", expenseID).
		Scan(&r.ID, &r.ExpenseID, &r.FilePath, &r.UploadedAt)
	if err != nil {
		return nil, translate("get receipt", err)
	}
	return &r, nil
}

// InsertReceipt uses ON CONFLICT so a duplicate does not abort the surrounding transaction.
func (t *pgTx) InsertReceipt(ctx context.Context, r *domain.Receipt) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx,
		`INSERT INTO receipt (expense_id, file_path, uploaded_at) VALUES ($1, $2, $3)
		 ON CONFLICT (expense_id) DO NOTHING RETURNING receipt_id`,
		r.ExpenseID, r.FilePath, r.UploadedAt).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("insert receipt: %w: expense %d already has a receipt", domain.ErrConflict, r.ExpenseID)
	}
	if err != nil {
		return 0, translate("insert receipt", err)
	}
	return id, nil
}

// --- petty cash ---

const statementColumns = `pcs_id, city_id, month, opening_balance, total_spent, closing_balance,
	carried_forward, cash_in_hand, prepared_by, approved_by`

func scanStatement(row pgx.Row) (*domain.PettyCashStatement, error) {
	var s domain.PettyCashStatement
	if err := row.Scan(&s.ID, &s.CityID, &s.Month, &s.OpeningBalance, &s.TotalSpent, &s.ClosingBalance,
		&s.CarriedForward, &s.CashInHand, &s.PreparedBy, &s.ApprovedBy); err != nil {
		return nil, err
	}
	return &s, nil
}

func (t *pgTx) InsertStatement(ctx context.Context, s *domain.PettyCashStatement) (int64, error) {
	return t.insertReturningID(ctx, "insert petty cash statement",
		`INSERT INTO petty_cash_statement (city_id, month, opening_balance, total_spent, closing_balance,
		                                   carried_forward, cash_in_hand, prepared_by, approved_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING pcs_id`,
		s.CityID, s.Month, s.OpeningBalance, s.TotalSpent, s.ClosingBalance,
		s.CarriedForward, s.CashInHand, s.PreparedBy, s.ApprovedBy)
}

func (t *pgTx) GetStatement(ctx context.Context, id int64) (*domain.PettyCashStatement, error) {
	s, err := scanStatement(t.tx.QueryRow(ctx,
		"SELECT "+statementColumns+" FROM petty_cash_statement WHERE pcs_id = $1", id))
	if err != nil {
		return nil, translate("get petty cash statement", err)
	}
	return s, nil
}

func (t *pgTx) LockStatement(ctx context.Context, id int64) (*domain.PettyCashStatement, error) {
	s, err := scanStatement(t.tx.QueryRow(ctx,
		"SELECT "+statementColumns+" FROM petty_cash_statement WHERE pcs_id = $1 FOR UPDATE", id))
	if err != nil {
		return nil, translate("lock petty cash statement", err)
	}
	return s, nil
}

func (t *pgTx) UpdateStatementTotals(ctx context.Context, id int64, totalSpent, closing decimal.Decimal) error {
	return t.execOne(ctx, "update petty cash statement",
		"UPDATE petty_cash_statement SET total_spent = $1, closing_balance = $2 WHERE pcs_id = $3",
		totalSpent, closing, id)
}

func (t *pgTx) InsertPettyCashExpense(ctx context.Context, e *domain.PettyCashExpense) (int64, error) {
	return t.insertReturningID(ctx, "insert petty cash expense",
		`INSERT INTO petty_cash_expense (pcs_id, event_id, nature_of_expense, vendor, amount_before_tax, hst,
		                                 round_off, total_amount, receipt_number, spent_at, volunteer_name,
		                                 balance_on_hand_after)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12) RETURNING pcx_id`,
		e.StatementID, e.EventID, e.NatureOfExpense, e.Vendor, e.AmountBeforeTax, e.Tax,
		e.RoundOff, e.TotalAmount, e.ReceiptNumber, e.SpentAt, e.VolunteerName, e.BalanceOnHandAfter)
}

func (t *pgTx) ListPettyCashExpenses(ctx context.Context, statementID int64) ([]domain.PettyCashExpense, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT pcx_id, pcs_id, event_id, nature_of_expense, vendor, amount_before_tax, hst, round_off,
		        total_amount, receipt_number, spent_at, volunteer_name, balance_on_hand_after
		 FROM petty_cash_expense WHERE pcs_id = $1 ORDER BY pcx_id`, statementID)
	if err != nil {
		return nil, translate("list petty cash expenses", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.PettyCashExpense, error) {
		var e domain.PettyCashExpense
		var roundOff decimal.NullDecimal
		err := row.Scan(&e.ID, &e.StatementID, &e.EventID, &e.NatureOfExpense, &e.Vendor, &e.AmountBeforeTax,
			&e.Tax, &roundOff, &e.TotalAmount, &e.ReceiptNumber, &e.SpentAt, &e.VolunteerName,
			&e.BalanceOnHandAfter)
		e.RoundOff = roundOff.Decimal
		return e, err
	})
	if err != nil {
		return nil, translate("list petty cash expenses", err)
	}
	return out, nil
}

// --- reporting ---

func (t *pgTx) ListApprovedAmounts(ctx context.Context) ([]domain.ApprovedAmount, error) {
	rows, err := t.tx.Query(ctx,
		`SELECT br.request_id, br.city_id, c.name, br.month, COALESCE(SUM(re.total_amount), 0)
		 FROM budget_request br
		 JOIN city c ON c.city_id = br.city_id
		 LEFT JOIN requested_event re ON re.request_id = br.request_id
		 WHERE br.status = 'APPROVED'
		 GROUP BY br.request_id, br.city_id, c.name, br.month
		 ORDER BY br.request_id`)
	if err != nil {
		return nil, translate("list approved amounts", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ApprovedAmount, error) {
		var a domain.ApprovedAmount
		err := row.Scan(&a.RequestID, &a.CityID, &a.CityName, &a.Month, &a.Total)
		return a, err
	})
	if err != nil {
		return nil, translate("list approved amounts", err)
	}
	return out, nil
}

// --- idempotency ---

func (t *pgTx) GetIdempotencyRecord(ctx context.Context, key string) (*domain.IdempotencyRecord, error) {
	var rec domain.IdempotencyRecord
	var status *int
	err := t.tx.QueryRow(ctx,
		"SELECT key, request_hash, status, response_status, response_body FROM idempotency_keys WHERE key = $1",
		key).Scan(&rec.Key, &rec.RequestHash, &rec.Status, &status, &rec.ResponseBody)
	if err != nil {
		return nil, translate("get idempotency key", err)
	}
	if status != nil {
		rec.ResponseStatus = *status
	}
	return &rec, nil
}

func (t *pgTx) ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error {
	n, err := t.execAffected(ctx, "reserve idempotency key",
		`INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, 'in_progress')
		 ON CONFLICT (key) DO NOTHING`, key, requestHash)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("reserve idempotency key: %w", domain.ErrConflict)
	}
	return nil
}

func (t *pgTx) CompleteIdempotencyKey(ctx context.Context, key string, status int, body []byte) error {
	return t.execOne(ctx, "complete idempotency key",
		"UPDATE idempotency_keys SET status = 'completed', response_status = $1, response_body = $2 WHERE key = $3",
		status, body, key)
}
