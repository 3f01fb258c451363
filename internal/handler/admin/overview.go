package admin

import (
	"context"
	"net/http"

	"github.com/trafficwise/platform/internal/handler"
	"github.com/trafficwise/platform/internal/service"
)

// OverviewSource builds the admin overview.
type OverviewSource interface {
	Get(ctx context.Context) (*service.Overview, error)
}

// OverviewHandler handles GET /admin/overview.
func OverviewHandler(src OverviewSource) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		out, err := src.Get(r.Context())
		if err != nil {
			handler.RespondError(w, err)
			return
		}
		handler.RespondJSON(w, http.StatusOK, out)
	}
}
