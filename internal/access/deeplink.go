package access

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/trafficwise/platform/internal/domain"
)

// Action link modes issued by the identity provider's emails.
const (
	ModeVerifyEmail   = "verifyEmail"
	ModeResetPassword = "resetPassword"
)

// Dispatch routes an inbound action link by its mode. Unknown or missing
// modes are logged and leave the user on the processing screen.
func Dispatch(mode string, logger *slog.Logger) Decision {
	switch mode {
	case ModeVerifyEmail:
		return redirect(domain.RouteAccount)
	case ModeResetPassword:
		return redirect(domain.RouteResetPassword)
	default:
		logger.Warn("unsupported action link mode", "mode", mode)
		return Decision{Outcome: Stay, Target: domain.RouteProcessing, Notice: "Processing your request..."}
	}
}

// DispatchURL extracts the mode query parameter from a full action link.
func DispatchURL(raw string, logger *slog.Logger) (Decision, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Decision{}, fmt.Errorf("parse action link: %w", err)
	}
	return Dispatch(u.Query().Get("mode"), logger), nil
}
