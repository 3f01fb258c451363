package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/metrics"
	"github.com/trafficwise/platform/internal/repository"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// ApproveExpectation lets the reviewer pin what they saw on screen. When
// set, approval fails unless the stored activity still matches.
type ApproveExpectation struct {
	UserID  string         `json:"userId,omitempty"`
	Results domain.Timings `json:"results,omitempty"`
}

// Approval is the outcome of a successful approve.
type Approval struct {
	Activity domain.Activity `json:"activity"`
	Result   domain.Result   `json:"result"`
}

// ReviewService runs the pending -> approved | rejected state machine.
type ReviewService struct {
	db         repository.TxBeginner
	activities repository.ActivityRepository
	results    repository.ResultRepository
	outbox     repository.OutboxRepository
	logger     *slog.Logger
	now        func() time.Time
}

// NewReviewService creates a new ReviewService.
func NewReviewService(
	db repository.TxBeginner,
	activities repository.ActivityRepository,
	results repository.ResultRepository,
	outbox repository.OutboxRepository,
	logger *slog.Logger,
) *ReviewService {
	return &ReviewService{
		db:         db,
		activities: activities,
		results:    results,
		outbox:     outbox,
		logger:     logger,
		now:        time.Now,
	}
}

// Approve marks a pending activity approved and publishes its Result. The
// status change, the Result and the outbox event commit together or not at
// all. Of two concurrent approvals only one finds the row pending; the other
// gets INVALID_TRANSITION.
func (s *ReviewService) Approve(ctx context.Context, reviewerID, activityID string, expect *ApproveExpectation) (out *Approval, err error) {
	defer func() { metrics.ReviewsTotal.WithLabelValues("approve", metrics.Outcome(err)).Inc() }()

	if expect != nil && len(expect.Results) > 0 {
		if err := expect.Results.Validate(); err != nil {
			return nil, domain.ErrValidation(err.Error())
		}
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx)

	now := s.now().UTC()
	act, err := s.transition(ctx, tx, activityID, domain.StatusApproved, now)
	if err != nil {
		return nil, err
	}
	if err := checkExpectation(act, expect); err != nil {
		return nil, err
	}

	result := &domain.Result{
		ID:         domain.NewResultID(act.UserID, now),
		UserID:     act.UserID,
		ActivityID: act.ID,
		Results:    act.Results.Clone(),
		Timestamp:  now,
	}
	if err := s.results.Create(ctx, tx, result); err != nil {
		if domain.IsCode(err, domain.CodeConflict) {
			return nil, domain.ErrInvalidTransition(act.ID, domain.StatusApproved, domain.StatusApproved)
		}
		return nil, storeErr("create result", err)
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewActivityApprovedEvent(act, result, reviewerID)); err != nil {
		return nil, storeErr("insert outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit approval", err)
	}

	s.logger.Info("activity approved",
		"activity_id", act.ID, "user_id", act.UserID, "result_id", result.ID, "reviewer", reviewerID)
	return &Approval{Activity: *act, Result: *result}, nil
}

// Reject marks a pending activity rejected. No Result is created, and
// rejecting twice fails with INVALID_TRANSITION.
func (s *ReviewService) Reject(ctx context.Context, reviewerID, activityID string) (out *domain.Activity, err error) {
	defer func() { metrics.ReviewsTotal.WithLabelValues("reject", metrics.Outcome(err)).Inc() }()

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, storeErr("begin tx", err)
	}
	defer tx.Rollback(ctx)

	act, err := s.transition(ctx, tx, activityID, domain.StatusRejected, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewActivityRejectedEvent(act, reviewerID)); err != nil {
		return nil, storeErr("insert outbox event", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, storeErr("commit rejection", err)
	}

	s.logger.Info("activity rejected", "activity_id", act.ID, "user_id", act.UserID, "reviewer", reviewerID)
	return act, nil
}

// transition performs the conditional status write and, when nothing was
// pending, tells NOT_FOUND apart from INVALID_TRANSITION.
func (s *ReviewService) transition(ctx context.Context, tx repository.DBTX, id string, to domain.ActivityStatus, at time.Time) (*domain.Activity, error) {
	act, err := s.activities.Transition(ctx, tx, id, to, at)
	if err != nil {
		return nil, storeErr("update activity", err)
	}
	if act != nil {
		return act, nil
	}

	current, err := s.activities.FindByID(ctx, tx, id)
	if err != nil {
		return nil, storeErr("find activity", err)
	}
	if current == nil {
		return nil, domain.ErrNotFound("activity", id)
	}
	return nil, domain.ErrInvalidTransition(id, current.Status, to)
}

func checkExpectation(act *domain.Activity, expect *ApproveExpectation) error {
	if expect == nil {
		return nil
	}
	problems := make(map[string]string)
	if expect.UserID != "" && expect.UserID != act.UserID {
		problems["userId"] = fmt.Sprintf("activity belongs to %s", act.UserID)
	}
	if len(expect.Results) > 0 && !expect.Results.Equal(act.Results) {
		problems["results"] = "do not match the submitted activity"
	}
	if len(problems) > 0 {
		return domain.ErrValidationFields(problems)
	}
	return nil
}

// ListPending returns pending activities, oldest first.
func (s *ReviewService) ListPending(ctx context.Context, limit int) ([]domain.Activity, error) {
	acts, err := s.activities.ListByStatus(ctx, s.db, domain.StatusPending, clampLimit(limit))
	if err != nil {
		return nil, storeErr("list pending activities", err)
	}
	if acts == nil {
		acts = []domain.Activity{}
	}
	return acts, nil
}

// CountPending returns the size of the review queue.
func (s *ReviewService) CountPending(ctx context.Context) (int, error) {
	n, err := s.activities.CountByStatus(ctx, s.db, domain.StatusPending)
	if err != nil {
		return 0, storeErr("count pending activities", err)
	}
	return n, nil
}

// ListResults returns userID's published results, newest first.
func (s *ReviewService) ListResults(ctx context.Context, userID string, limit int) ([]domain.Result, error) {
	if userID == "" {
		return nil, domain.ErrValidation("user_id is required")
	}
	results, err := s.results.ListByUser(ctx, s.db, userID, clampLimit(limit))
	if err != nil {
		return nil, storeErr("list results", err)
	}
	if results == nil {
		results = []domain.Result{}
	}
	return results, nil
}

func clampLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	default:
		return limit
	}
}
