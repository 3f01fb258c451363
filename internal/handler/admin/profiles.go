package admin

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/handler"
	"github.com/trafficwise/platform/internal/service"
	"github.com/trafficwise/platform/internal/snapshot"
)

// Directory is profile administration.
type Directory interface {
	List(ctx context.Context) ([]domain.Profile, error)
	CreateAdmin(ctx context.Context, input service.CreateAdminInput) (*domain.Profile, error)
	Edit(ctx context.Context, uid string, update domain.ProfileUpdate) (*domain.Profile, error)
	Delete(ctx context.Context, uid string) error
	Export(ctx context.Context) ([]domain.Profile, error)
	Import(ctx context.Context, profiles []domain.Profile) (int, error)
}

const maxImportBytes = 10 << 20

// ProfileHandler handles admin profile CRUD and snapshots.
type ProfileHandler struct {
	dir    Directory
	logger *slog.Logger
	now    func() time.Time
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(dir Directory, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{dir: dir, logger: logger, now: time.Now}
}

// List handles GET /admin/profiles.
func (h *ProfileHandler) List(w http.ResponseWriter, r *http.Request) {
	profiles, err := h.dir.List(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, profiles)
}

// Create handles POST /admin/profiles.
func (h *ProfileHandler) Create(w http.ResponseWriter, r *http.Request) {
	var input service.CreateAdminInput
	if err := handler.DecodeJSON(r, &input); err != nil {
		handler.RespondBadBody(w)
		return
	}

	profile, err := h.dir.CreateAdmin(r.Context(), input)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusCreated, profile)
}

// Edit handles PATCH /admin/profiles/{uid}.
func (h *ProfileHandler) Edit(w http.ResponseWriter, r *http.Request) {
	var update domain.ProfileUpdate
	if err := handler.DecodeJSON(r, &update); err != nil {
		handler.RespondBadBody(w)
		return
	}

	profile, err := h.dir.Edit(r.Context(), chi.URLParam(r, "uid"), update)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, profile)
}

// Delete handles DELETE /admin/profiles/{uid}.
func (h *ProfileHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.dir.Delete(r.Context(), chi.URLParam(r, "uid")); err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusNoContent, nil)
}

// Export handles GET /admin/profiles/export?format=xlsx|csv.
func (h *ProfileHandler) Export(w http.ResponseWriter, r *http.Request) {
	format, err := snapshot.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	profiles, err := h.dir.Export(r.Context())
	if err != nil {
		handler.RespondError(w, err)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="`+snapshot.FileName(format, h.now())+`"`)
	w.WriteHeader(http.StatusOK)
	if err := snapshot.Encode(w, format, profiles); err != nil {
		h.logger.Error("profile export failed mid-stream", "error", err,
			"request_id", handler.GetRequestID(r.Context()))
	}
}

// Import handles POST /admin/profiles/import?format=xlsx|csv with the file
// as the request body.
func (h *ProfileHandler) Import(w http.ResponseWriter, r *http.Request) {
	format, err := snapshot.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		handler.RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	profiles, err := snapshot.Decode(http.MaxBytesReader(w, r.Body, maxImportBytes), format)
	if err != nil {
		handler.RespondError(w, domain.ErrValidation(err.Error()))
		return
	}

	n, err := h.dir.Import(r.Context(), profiles)
	if err != nil {
		handler.RespondError(w, err)
		return
	}
	handler.RespondJSON(w, http.StatusOK, map[string]int{"imported": n})
}
