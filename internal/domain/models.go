package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RequestStatus is the approval state of a BudgetRequest.
type RequestStatus string

const (
	StatusPending  RequestStatus = "PENDING"
	StatusApproved RequestStatus = "APPROVED"
	StatusRejected RequestStatus = "REJECTED"
)

// Deletable reports whether a request in this state may still be withdrawn.
func (s RequestStatus) Deletable() bool {
	return s == StatusPending || s == StatusRejected
}

// Editable reports whether a request in this state may be edited and resubmitted.
func (s RequestStatus) Editable() bool {
	return s == StatusPending || s == StatusRejected
}

// Decision codes written by the approval recorder.
const (
	DecisionYes    = "YES"
	DecisionResend = "NO-PLEASE RESEND"
)

// City is reference data; the core never mutates it.
type City struct {
	ID       int64  `json:"city_id"`
	Name     string `json:"name"`
	Province string `json:"province"`
}

// Category is reference data used to tag breakdown lines and expenses.
type Category struct {
	ID   int64  `json:"category_id"`
	Name string `json:"name"`
}

// User is the persisted counterpart of an Actor.
type User struct {
	ID     int64  `json:"user_id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   Role   `json:"role"`
	CityID int64  `json:"city_id"`
}

// BudgetRequest is the header row of a spending request.
type BudgetRequest struct {
	ID          int64         `json:"request_id"`
	CityID      int64         `json:"city_id"`
	RequesterID int64         `json:"requester_id"`
	RecipientID *int64        `json:"recipient_id,omitempty"`
	Month       time.Time     `json:"month"`
	Description string        `json:"description"`
	Status      RequestStatus `json:"status"`
	CreatedAt   time.Time     `json:"created_at"`
}

// RequestedEvent is the event a request asks money for.
// TotalAmount is derived from its breakdown lines and stays NULL while they sum to zero.
type RequestedEvent struct {
	ID          int64               `json:"req_event_id"`
	RequestID   int64               `json:"request_id"`
	Name        string              `json:"name"`
	EventDate   time.Time           `json:"event_date"`
	TotalAmount decimal.NullDecimal `json:"total_amount"`
	Notes       string              `json:"notes"`
}

// Total returns the event total, treating an unset total as zero.
func (e RequestedEvent) Total() decimal.Decimal {
	if !e.TotalAmount.Valid {
		return decimal.Zero
	}
	return e.TotalAmount.Decimal
}

// BreakdownLine is one itemised cost estimate of a requested event.
type BreakdownLine struct {
	ID          int64           `json:"line_id"`
	EventID     int64           `json:"req_event_id"`
	CategoryID  int64           `json:"category_id"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
}

// Approval is an immutable decision record.
type Approval struct {
	ID         int64     `json:"approval_id"`
	RequestID  int64     `json:"request_id"`
	ApproverID int64     `json:"approver_id"`
	Decision   string    `json:"decision"`
	Note       *string   `json:"note,omitempty"`
	DecidedAt  time.Time `json:"decided_at"`
}

// RequestDetail is a request with its nested set and decision history.
type RequestDetail struct {
	Request   BudgetRequest `json:"request"`
	Events    []EventDetail `json:"events"`
	Approvals []Approval    `json:"approvals"`
}

// EventDetail pairs a requested event with its breakdown lines.
type EventDetail struct {
	RequestedEvent
	Lines []BreakdownLine `json:"lines"`
}

// Event is an actual chapter event that expenses are booked against.
type Event struct {
	ID             int64     `json:"event_id"`
	CityID         int64     `json:"city_id"`
	Name           string    `json:"name"`
	EventDate      time.Time `json:"event_date"`
	AttendeesCount int       `json:"attendees_count"`
	PreparedBy     int64     `json:"prepared_by"`
}

// Expense is a categorised spend against an event.
type Expense struct {
	ID              int64           `json:"expense_id"`
	EventID         int64           `json:"event_id"`
	CategoryID      int64           `json:"category_id"`
	Vendor          string          `json:"vendor"`
	ItemDesc        string          `json:"item_desc"`
	AmountBeforeTax decimal.Decimal `json:"amount_before_tax"`
	Tax             decimal.Decimal `json:"hst"`
	RoundOff        decimal.Decimal `json:"round_off"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ReceiptNumber   *string         `json:"receipt_number,omitempty"`
	SpentAt         string          `json:"spent_at"`
	VolunteerName   string          `json:"volunteer_name"`
}

// Receipt is the proof-of-purchase slot of an expense. FilePath stays nil until upload.
type Receipt struct {
	ID         int64     `json:"receipt_id"`
	ExpenseID  int64     `json:"expense_id"`
	FilePath   *string   `json:"file_path,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// ExpenseDetail is an expense with its receipt placeholder, if any.
type ExpenseDetail struct {
	Expense
	Receipt *Receipt `json:"receipt,omitempty"`
}

// PettyCashStatement is the monthly petty-cash header of a city.
// ClosingBalance always equals OpeningBalance - TotalSpent after a commit.
type PettyCashStatement struct {
	ID             int64           `json:"pcs_id"`
	CityID         int64           `json:"city_id"`
	Month          string          `json:"month"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	TotalSpent     decimal.Decimal `json:"total_spent"`
	ClosingBalance decimal.Decimal `json:"closing_balance"`
	CarriedForward decimal.Decimal `json:"carried_forward"`
	CashInHand     decimal.Decimal `json:"cash_in_hand"`
	PreparedBy     int64           `json:"prepared_by"`
	ApprovedBy     *int64          `json:"approved_by,omitempty"`
}

// PettyCashExpense is one cash outflow posted to a statement.
type PettyCashExpense struct {
	ID                 int64           `json:"pcx_id"`
	StatementID        int64           `json:"pcs_id"`
	EventID            int64           `json:"event_id"`
	NatureOfExpense    string          `json:"nature_of_expense"`
	Vendor             string          `json:"vendor"`
	AmountBeforeTax    decimal.Decimal `json:"amount_before_tax"`
	Tax                decimal.Decimal `json:"hst"`
	RoundOff           decimal.Decimal `json:"round_off"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	ReceiptNumber      *string         `json:"receipt_number,omitempty"`
	SpentAt            string          `json:"spent_at"`
	VolunteerName      string          `json:"volunteer_name"`
	BalanceOnHandAfter decimal.Decimal `json:"balance_on_hand_after"`
}

// StatementDetail is a statement header with its posted expenses in insertion order.
type StatementDetail struct {
	Statement PettyCashStatement `json:"statement"`
	Expenses  []PettyCashExpense `json:"expenses"`
}

// StatementAudit compares the stored closing balance with one recomputed from the expense rows.
type StatementAudit struct {
	StatementID     int64           `json:"pcs_id"`
	StoredClosing   decimal.Decimal `json:"stored_closing"`
	ComputedClosing decimal.Decimal `json:"computed_closing"`
	StoredSpent     decimal.Decimal `json:"stored_spent"`
	ComputedSpent   decimal.Decimal `json:"computed_spent"`
	Balanced        bool            `json:"balanced"`
}

// MonthlyTotal is one row of the approved-spend report.
type MonthlyTotal struct {
	CityID int64           `json:"city_id"`
	City   string          `json:"city"`
	Month  string          `json:"month"`
	Total  decimal.Decimal `json:"total_approved"`
}

// ApprovedAmount is the per-request input row of the monthly report.
type ApprovedAmount struct {
	RequestID int64
	CityID    int64
	CityName  string
	Month     time.Time
	Total     decimal.Decimal
}

// EventExpenseSummary is the spend of one event at one vendor.
type EventExpenseSummary struct {
	EventID    int64           `json:"event_id"`
	EventName  string          `json:"event_name"`
	Vendor     string          `json:"vendor"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

// IdempotencyRecord holds the stored outcome of a keyed write.
type IdempotencyRecord struct {
	Key            string
	RequestHash    string
	Status         string
	ResponseBody   []byte
	ResponseStatus int
}

// PettyCashPosting is the outcome of posting an expense: the stamped expense and
// the statement totals right after it.
type PettyCashPosting struct {
	Expense   PettyCashExpense   `json:"expense"`
	Statement PettyCashStatement `json:"statement"`
}
