package handler

import (
	"log/slog"
	"net/http"

	"github.com/trafficwise/platform/internal/access"
	"github.com/trafficwise/platform/internal/domain"
)

// LinkDecision is the JSON form of a deep-link dispatch.
type LinkDecision struct {
	Outcome string       `json:"outcome"`
	Target  domain.Route `json:"target"`
	Notice  string       `json:"notice,omitempty"`
}

// LinksHandler handles GET /links/dispatch?mode= for emailed action links.
// A full link may be passed as ?url= instead.
func LinksHandler(logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var d access.Decision
		if raw := q.Get("url"); raw != "" {
			var err error
			if d, err = access.DispatchURL(raw, logger); err != nil {
				RespondError(w, domain.ErrValidation("invalid link"))
				return
			}
		} else {
			d = access.Dispatch(q.Get("mode"), logger)
		}
		RespondJSON(w, http.StatusOK, LinkDecision{Outcome: d.Outcome.String(), Target: d.Target, Notice: d.Notice})
	}
}
