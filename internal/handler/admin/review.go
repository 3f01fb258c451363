package admin

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/trafficwise/platform/internal/auth"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/handler"
	"github.com/trafficwise/platform/internal/service"
)

// Reviewer is the review pipeline as seen by admins.
type Reviewer interface {
	ListPending(ctx context.Context, limit int) ([]domain.Activity, error)
	Approve(ctx context.Context, reviewerID, activityID string, expect *service.ApproveExpectation) (*service.Approval, error)
	Reject(ctx context.Context, reviewerID, activityID string) (*domain.Activity, error)
	ListResults(ctx context.Context, userID string, limit int) ([]domain.Result, error)
}

// ReviewHandler handles the admin review queue.
type ReviewHandler struct {
	reviews Reviewer
}

// NewReviewHandler creates a new ReviewHandler.
func NewReviewHandler(reviews Reviewer) *ReviewHandler {
	return &ReviewHandler{reviews: reviews}
}

// ListPending handles GET /admin/activities/pending.
func (h *ReviewHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	acts, err := h.reviews.ListPending(r.Context(), handler.QueryLimit(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, acts)
}

// Approve handles POST /admin/activities/{id}/approve. The body is optional;
// when present it pins the user and timings the reviewer saw.
func (h *ReviewHandler) Approve(w http.ResponseWriter, r *http.Request) {
	var expect *service.ApproveExpectation
	var body service.ApproveExpectation
	switch err := handler.DecodeJSON(r, &body); {
	case err == nil:
		expect = &body
	case errors.Is(err, io.EOF):
		// no body: approve what is stored
	default:
		handler.RespondBadBody(w)
		return
	}

	out, err := h.reviews.Approve(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "id"), expect)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, out)
}

// Reject handles POST /admin/activities/{id}/reject.
func (h *ReviewHandler) Reject(w http.ResponseWriter, r *http.Request) {
	act, err := h.reviews.Reject(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "id"))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, act)
}

// ListResults handles GET /admin/results?user_id=.
func (h *ReviewHandler) ListResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.reviews.ListResults(r.Context(), r.URL.Query().Get("user_id"), handler.QueryLimit(r))
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, results)
}
