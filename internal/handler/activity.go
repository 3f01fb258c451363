package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/trafficwise/platform/internal/auth"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/service"
)

// Submitter runs the submission intake pipeline.
type Submitter interface {
	Submit(ctx context.Context, uid string, input service.SubmitInput) (*domain.Activity, error)
}

// ResultLister lists published results.
type ResultLister interface {
	ListResults(ctx context.Context, userID string, limit int) ([]domain.Result, error)
}

// multipartMemory is how much of a bundle is buffered in memory before
// parts spill to temporary files.
const multipartMemory = 32 << 20

// ActivityHandler handles video bundle submission and the caller's results.
type ActivityHandler struct {
	intake   Submitter
	results  ResultLister
	maxBytes int64
}

// NewActivityHandler creates a new ActivityHandler. maxBytes caps the whole
// multipart body.
func NewActivityHandler(intake Submitter, results ResultLister, maxBytes int64) *ActivityHandler {
	return &ActivityHandler{intake: intake, results: results, maxBytes: maxBytes}
}

// Submit handles POST /activities. The body is multipart with one file part
// per direction: north, south, east and west.
func (h *ActivityHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondError(w, domain.ErrValidation("upload is too large"))
			return
		}
		RespondError(w, domain.ErrValidation("expected a multipart form with north, south, east and west videos"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	uploads, closeAll, err := formUploads(r.MultipartForm)
	defer closeAll()
	if err != nil {
		RespondError(w, domain.ErrInternal("open upload", err))
		return
	}

	act, err := h.intake.Submit(r.Context(), auth.SubjectFromContext(r.Context()), service.SubmitInput{
		Uploads:        uploads,
		IdempotencyKey: r.Header.Get("Idempotency-Key"),
	})
	if err != nil {
		RespondError(w, err)
		return
	}

	RespondJSON(w, http.StatusCreated, act)
}

// MyResults handles GET /results/me.
func (h *ActivityHandler) MyResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.results.ListResults(r.Context(), auth.SubjectFromContext(r.Context()), QueryLimit(r))
	if err != nil {
		RespondError(w, err)
		return
	}
	RespondJSON(w, http.StatusOK, results)
}

func formUploads(form *multipart.Form) ([]service.Upload, func(), error) {
	var (
		uploads []service.Upload
		files   []multipart.File
	)
	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	for field, headers := range form.File {
		for _, fh := range headers {
			f, err := fh.Open()
			if err != nil {
				return nil, closeAll, err
			}
			files = append(files, f)
			uploads = append(uploads, service.Upload{
				Field:        field,
				Filename:     fh.Filename,
				DeclaredType: fh.Header.Get("Content-Type"),
				Body:         f,
			})
		}
	}
	return uploads, closeAll, nil
}

// QueryLimit reads ?limit=, returning 0 (service default) when absent or invalid.
func QueryLimit(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
