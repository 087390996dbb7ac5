package service

import (
	"context"
	"time"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/logging"
	"github.com/punchamoorthee/chapterbudget/internal/models"
	"github.com/punchamoorthee/chapterbudget/internal/store"
	"github.com/sirupsen/logrus"
)

const lifecycleModule = "lifecycle"

// Lifecycle drives a budget request through PENDING, APPROVED and REJECTED.
// Every operation is one transaction: the header, the nested set and the
// approval record commit together or not at all.
type Lifecycle struct {
	store     store.Store
	ledger    BreakdownLedger
	approvals ApprovalRecorder
	log       logrus.FieldLogger
	now       func() time.Time
}

func NewLifecycle(st store.Store, logger logrus.FieldLogger) *Lifecycle {
	l := &Lifecycle{
		store:  st,
		ledger: BreakdownLedger{},
		log:    logger,
		now:    time.Now,
	}
	l.approvals = NewApprovalRecorder(func() time.Time { return l.now() })
	return l
}

// parseRequest validates a create/edit payload before any transaction opens.
func parseRequest(in *models.RequestInput) (time.Time, domain.RequestedEvent, error) {
	in.Normalize()
	if err := models.Validate(in); err != nil {
		return time.Time{}, domain.RequestedEvent{}, err
	}
	month, err := domain.ParseMonth(in.Month)
	if err != nil {
		return time.Time{}, domain.RequestedEvent{}, err
	}
	date, err := domain.ParseDate("event.date", in.Event.Date)
	if err != nil {
		return time.Time{}, domain.RequestedEvent{}, err
	}

	ev := domain.RequestedEvent{
		Name:      in.Event.Name,
		EventDate: date,
		Notes:     in.Event.Notes,
	}
	if ev.Notes == "" {
		ev.Notes = in.Description
	}
	return month, ev, nil
}

// Create submits a new request owned by the actor's city. It starts PENDING.
func (l *Lifecycle) Create(ctx context.Context, actor domain.Actor, in models.RequestInput) (*domain.RequestDetail, error) {
	detail, err := l.create(ctx, actor, in)
	l.finish("create", actor, detail, err)
	return detail, err
}

func (l *Lifecycle) create(ctx context.Context, actor domain.Actor, in models.RequestInput) (*domain.RequestDetail, error) {
	if !actor.Authenticated() || !actor.IsTreasurer() {
		return nil, forbidden("only treasurers can submit budget requests")
	}
	month, ev, err := parseRequest(&in)
	if err != nil {
		return nil, err
	}

	var detail *domain.RequestDetail
	err = l.store.InTx(ctx, func(tx store.Tx) error {
		req := &domain.BudgetRequest{
			CityID:      actor.CityID,
			RequesterID: actor.UserID,
			RecipientID: in.RecipientID,
			Month:       month,
			Description: in.Description,
			Status:      domain.StatusPending,
			CreatedAt:   l.now().UTC(),
		}
		id, err := tx.InsertRequest(ctx, req)
		if err != nil {
			return err
		}
		if _, err := l.ledger.ReplaceNestedSet(ctx, tx, id, ev, in.Lines); err != nil {
			return err
		}
		detail, err = loadRequestDetail(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// EditAndResubmit rewrites the header and nested set of a PENDING or REJECTED
// request and puts it back to PENDING. Only the requester may do this.
func (l *Lifecycle) EditAndResubmit(ctx context.Context, actor domain.Actor, requestID int64, in models.RequestInput) (*domain.RequestDetail, error) {
	detail, err := l.edit(ctx, actor, requestID, in)
	l.finish("resubmit", actor, detail, err)
	return detail, err
}

func (l *Lifecycle) edit(ctx context.Context, actor domain.Actor, requestID int64, in models.RequestInput) (*domain.RequestDetail, error) {
	if !actor.Authenticated() {
		return nil, forbidden("an authenticated user is required")
	}
	month, ev, err := parseRequest(&in)
	if err != nil {
		return nil, err
	}

	var detail *domain.RequestDetail
	err = l.store.InTx(ctx, func(tx store.Tx) error {
		req, err := tx.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if !actor.Owns(*req) {
			return forbidden("request %d belongs to another user", requestID)
		}
		if !req.Status.Editable() {
			return invalidState("request %d is %s and can no longer be edited", requestID, req.Status)
		}

		req.Month = month
		req.Description = in.Description
		req.RecipientID = in.RecipientID
		req.Status = domain.StatusPending
		if err := tx.UpdateRequest(ctx, req); err != nil {
			return err
		}
		if _, err := l.ledger.ReplaceNestedSet(ctx, tx, requestID, ev, in.Lines); err != nil {
			return err
		}
		detail, err = loadRequestDetail(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// Approve marks the request APPROVED and appends a YES approval.
func (l *Lifecycle) Approve(ctx context.Context, actor domain.Actor, requestID int64, note string) (*domain.RequestDetail, error) {
	detail, err := l.decide(ctx, actor, requestID, note, domain.StatusApproved, domain.DecisionYes)
	l.finish("approve", actor, detail, err)
	return detail, err
}

// Reject marks the request REJECTED and appends a resend approval record.
func (l *Lifecycle) Reject(ctx context.Context, actor domain.Actor, requestID int64, note string) (*domain.RequestDetail, error) {
	detail, err := l.decide(ctx, actor, requestID, note, domain.StatusRejected, domain.DecisionResend)
	l.finish("reject", actor, detail, err)
	return detail, err
}

// decide applies an admin decision. It does not check the current status:
// a request may be approved or rejected again, and each decision is recorded.
func (l *Lifecycle) decide(ctx context.Context, actor domain.Actor, requestID int64, note string, status domain.RequestStatus, decision string) (*domain.RequestDetail, error) {
	if !actor.Authenticated() || !actor.IsAdmin() {
		return nil, forbidden("only admins can decide on budget requests")
	}

	var (
		detail *domain.RequestDetail
		prev   domain.RequestStatus
	)
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		req, err := tx.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		prev = req.Status
		if err := tx.UpdateRequestStatus(ctx, requestID, status); err != nil {
			return err
		}
		if _, err := l.approvals.Record(ctx, tx, requestID, actor.UserID, decision, note); err != nil {
			return err
		}
		detail, err = loadRequestDetail(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if prev != domain.StatusPending {
		l.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"from":       prev,
			"to":         status,
		}).Warn("decision recorded on a request that was not pending")
	}
	return detail, nil
}

// Delete removes a PENDING or REJECTED request with its nested set and approvals.
func (l *Lifecycle) Delete(ctx context.Context, actor domain.Actor, requestID int64) error {
	removed, err := l.delete(ctx, actor, requestID)
	l.finish("delete", actor, &domain.RequestDetail{Request: removed}, err)
	return err
}

// delete returns the request as it was read under the lock.
func (l *Lifecycle) delete(ctx context.Context, actor domain.Actor, requestID int64) (domain.BudgetRequest, error) {
	if !actor.Authenticated() {
		return domain.BudgetRequest{}, forbidden("an authenticated user is required")
	}
	var removed domain.BudgetRequest
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		req, err := tx.LockRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if !actor.Owns(*req) && !actor.IsAdmin() {
			return forbidden("request %d belongs to another user", requestID)
		}
		if !req.Status.Deletable() {
			return invalidState("request %d is %s and cannot be deleted", requestID, req.Status)
		}

		// children first; foreign keys do not cascade
		if _, err := tx.DeleteBreakdownLines(ctx, requestID); err != nil {
			return err
		}
		if _, err := tx.DeleteRequestedEvents(ctx, requestID); err != nil {
			return err
		}
		if _, err := tx.DeleteApprovals(ctx, requestID); err != nil {
			return err
		}
		if err := tx.DeleteRequest(ctx, requestID); err != nil {
			return err
		}
		removed = *req
		return nil
	})
	return removed, err
}

// Get returns one request with its nested set and decision history.
func (l *Lifecycle) Get(ctx context.Context, actor domain.Actor, requestID int64) (*domain.RequestDetail, error) {
	if !actor.Authenticated() {
		return nil, forbidden("an authenticated user is required")
	}
	var detail *domain.RequestDetail
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		detail, err = loadRequestDetail(ctx, tx, requestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if !actor.IsAdmin() && !actor.Owns(detail.Request) {
		return nil, forbidden("request %d belongs to another user", requestID)
	}
	return detail, nil
}

// List returns every request for admins and the actor's own requests otherwise, newest first.
func (l *Lifecycle) List(ctx context.Context, actor domain.Actor) ([]domain.BudgetRequest, error) {
	if !actor.Authenticated() {
		return nil, forbidden("an authenticated user is required")
	}
	filter := store.RequestFilter{}
	if !actor.IsAdmin() {
		filter.RequesterID = actor.UserID
	}
	return l.list(ctx, filter)
}

// Pending is the admin review queue, oldest first.
func (l *Lifecycle) Pending(ctx context.Context, actor domain.Actor) ([]domain.BudgetRequest, error) {
	if !actor.Authenticated() || !actor.IsAdmin() {
		return nil, forbidden("only admins can review pending requests")
	}
	return l.list(ctx, store.RequestFilter{Status: domain.StatusPending, OldestFirst: true})
}

func (l *Lifecycle) list(ctx context.Context, filter store.RequestFilter) ([]domain.BudgetRequest, error) {
	var out []domain.BudgetRequest
	err := l.store.InTx(ctx, func(tx store.Tx) error {
		var err error
		out, err = tx.ListRequests(ctx, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []domain.BudgetRequest{}
	}
	return out, nil
}

// finish records the metric and log line of a lifecycle transition.
func (l *Lifecycle) finish(transition string, actor domain.Actor, detail *domain.RequestDetail, err error) {
	transitionsTotal.WithLabelValues(transition, outcome(err)).Inc()

	switch {
	case err == nil:
		l.log.WithFields(logrus.Fields{
			"transition": transition,
			"request_id": detail.Request.ID,
			"status":     detail.Request.Status,
			"actor_id":   actor.UserID,
		}).Info("budget request transition committed")
	case isDomainError(err):
		l.log.WithFields(logrus.Fields{
			"transition": transition,
			"actor_id":   actor.UserID,
		}).WithError(err).Info("budget request transition refused")
	default:
		logging.LogError(l.log, lifecycleModule, transition, "transaction failed", actor, err)
	}
}

// loadRequestDetail reads a request with its events, lines and approvals.
func loadRequestDetail(ctx context.Context, tx store.Tx, requestID int64) (*domain.RequestDetail, error) {
	req, err := tx.GetRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	events, err := tx.ListRequestedEvents(ctx, requestID)
	if err != nil {
		return nil, err
	}
	detail := &domain.RequestDetail{
		Request: *req,
		Events:  make([]domain.EventDetail, 0, len(events)),
	}
	for _, ev := range events {
		lines, err := tx.ListBreakdownLines(ctx, ev.ID)
		if err != nil {
			return nil, err
		}
		if lines == nil {
			lines = []domain.BreakdownLine{}
		}
		detail.Events = append(detail.Events, domain.EventDetail{RequestedEvent: ev, Lines: lines})
	}
	approvals, err := tx.ListApprovals(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if approvals == nil {
		approvals = []domain.Approval{}
	}
	detail.Approvals = approvals
	return detail, nil
}
