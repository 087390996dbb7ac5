package service

import (
	"context"
	"strings"
	"time"

	"github.com/punchamoorthee/chapterbudget/internal/domain"
	"github.com/punchamoorthee/chapterbudget/internal/store"
)

// ApprovalRecorder appends decision records. There is no update or delete path;
// approvals only disappear together with their request.
type ApprovalRecorder struct {
	now func() time.Time
}

func NewApprovalRecorder(now func() time.Time) ApprovalRecorder {
	return ApprovalRecorder{now: now}
}

func (r ApprovalRecorder) Record(ctx context.Context, tx store.Tx, requestID, approverID int64, decision, note string) (*domain.Approval, error) {
	if decision != domain.DecisionYes && decision != domain.DecisionResend {
		return nil, invalid("unknown decision code %q", decision)
	}

	a := &domain.Approval{
		RequestID:  requestID,
		ApproverID: approverID,
		Decision:   decision,
		DecidedAt:  r.now().UTC(),
	}
	if note = strings.TrimSpace(note); note != "" {
		a.Note = &note
	}

	id, err := tx.InsertApproval(ctx, a)
	if err != nil {
		return nil, err
	}
	a.ID = id
	return a, nil
}
