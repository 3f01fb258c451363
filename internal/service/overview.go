package service

import (
	"context"
	"log/slog"

	"github.com/trafficwise/platform/internal/provider"
	"golang.org/x/sync/errgroup"
)

// Overview status strings.
const (
	OverviewOnline   = "online"
	OverviewDegraded = "degraded"
)

// Dashboard is the telemetry source behind the admin overview.
type Dashboard interface {
	Stats(ctx context.Context) (*provider.DashboardStats, error)
	RecentActivity(ctx context.Context) ([]provider.RecentActivity, error)
}

// Overview merges backend telemetry with the local review queue.
type Overview struct {
	Stats          *provider.DashboardStats  `json:"stats,omitempty"`
	RecentActivity []provider.RecentActivity `json:"recentActivity"`
	PendingReviews int                       `json:"pendingReviews"`
	Status         string                    `json:"status"`
	Notice         string                    `json:"notice,omitempty"`
}

// OverviewService builds the admin overview.
type OverviewService struct {
	dashboard Dashboard
	reviews   *ReviewService
	logger    *slog.Logger
}

// NewOverviewService creates a new OverviewService.
func NewOverviewService(dashboard Dashboard, reviews *ReviewService, logger *slog.Logger) *OverviewService {
	return &OverviewService{dashboard: dashboard, reviews: reviews, logger: logger}
}

// Get fetches the three sources concurrently. A failing backend degrades the
// overview to local data; only a failing local count is an error.
func (s *OverviewService) Get(ctx context.Context) (*Overview, error) {
	var (
		stats   *provider.DashboardStats
		recent  []provider.RecentActivity
		pending int
		remote  [2]error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		stats, remote[0] = s.dashboard.Stats(gctx)
		return nil
	})
	g.Go(func() error {
		recent, remote[1] = s.dashboard.RecentActivity(gctx)
		return nil
	})
	g.Go(func() error {
		var err error
		pending, err = s.reviews.CountPending(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := &Overview{
		Stats:          stats,
		RecentActivity: recent,
		PendingReviews: pending,
		Status:         OverviewOnline,
	}
	if out.RecentActivity == nil {
		out.RecentActivity = []provider.RecentActivity{}
	}
	for _, err := range remote {
		if err != nil {
			s.logger.Warn("dashboard telemetry unavailable", "error", err)
			out.Status = OverviewDegraded
			out.Notice = "Processing service telemetry is unavailable; showing local data only."
			break
		}
	}
	return out, nil
}
