package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/guard"
)

const breakerKey = "processing"

// Clip is one direction's video as forwarded to the processing backend.
type Clip struct {
	Direction   domain.Direction
	Filename    string
	ContentType string
	Body        io.Reader
}

// ProcessResult is the backend's answer to /process-videos.
type ProcessResult struct {
	Results    domain.Timings `json:"results"`
	ActivityID string         `json:"activityId"`
}

// DashboardStats is the backend's /dashboard/stats payload.
type DashboardStats struct {
	TotalUsers     int    `json:"totalUsers"`
	ActiveSessions int    `json:"activeSessions"`
	PendingTasks   int    `json:"pendingTasks"`
	SystemStatus   string `json:"systemStatus"`
}

// RecentActivity is one entry of /dashboard/recent-activity.
type RecentActivity struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	Timestamp time.Time `json:"timestamp"`
}

type errorBody struct {
	Error string `json:"error"`
}

// ProcessingClient talks to the video processing backend.
type ProcessingClient struct {
	baseURL string
	logger  *slog.Logger
	client  *http.Client
	breaker *guard.CircuitBreaker
}

// NewProcessingClient creates a client whose calls are bounded by timeout and
// short-circuited by breaker while the backend is failing.
func NewProcessingClient(baseURL string, timeout time.Duration, breaker *guard.CircuitBreaker, logger *slog.Logger) *ProcessingClient {
	return &ProcessingClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

// ProcessVideos streams the four clips plus uid as multipart/form-data to
// POST /process-videos. Failures are classified as BACKEND_ERROR (4xx,
// message passed through), SERVER_ERROR (5xx or an unusable success body) and
// NETWORK_ERROR (no response). A call abandoned through ctx returns the
// context error and leaves the circuit untouched.
func (c *ProcessingClient) ProcessVideos(ctx context.Context, uid string, clips []Clip) (*ProcessResult, error) {
	if res := c.breaker.Check(ctx, breakerKey); !res.Allowed {
		c.logger.Warn("processing backend circuit open", "reason", res.Reason)
		return nil, domain.ErrServer("Processing service is temporarily unavailable. Please try again later.")
	}

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeBundle(mw, uid, clips))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/process-videos", pr)
	if err != nil {
		_ = pr.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		_ = pr.Close()
		if ctxErr := ctx.Err(); ctxErr != nil {
			// The caller gave up; the backend has not failed.
			c.breaker.Release(breakerKey)
			c.logger.Info("processing request abandoned by caller", "error", ctxErr)
			return nil, fmt.Errorf("process videos: %w", ctxErr)
		}
		c.breaker.RecordFailure(breakerKey)
		c.logger.Warn("processing backend unreachable", "error", err)
		return nil, domain.ErrNetwork(err)
	}
	defer resp.Body.Close()

	if err := c.classify(resp); err != nil {
		return nil, err
	}

	var out ProcessResult
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		c.logger.Error("processing backend returned undecodable body", "error", err)
		return nil, domain.ErrServer("")
	}
	if out.ActivityID == "" {
		c.logger.Error("processing backend returned no activity id")
		return nil, domain.ErrServer("")
	}
	if err := out.Results.Validate(); err != nil {
		c.logger.Error("processing backend returned invalid timings", "activity_id", out.ActivityID, "error", err)
		return nil, domain.ErrServer("")
	}
	return &out, nil
}

func writeBundle(mw *multipart.Writer, uid string, clips []Clip) error {
	if err := mw.WriteField("userId", uid); err != nil {
		return err
	}
	for _, clip := range clips {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, string(clip.Direction), clip.Filename))
		h.Set("Content-Type", clip.ContentType)
		part, err := mw.CreatePart(h)
		if err != nil {
			return err
		}
		if _, err := io.Copy(part, clip.Body); err != nil {
			return fmt.Errorf("stream %s clip: %w", clip.Direction, err)
		}
	}
	return mw.Close()
}

// classify maps a non-2xx response to the backend error taxonomy and feeds
// the circuit breaker. Client errors do not count against backend health.
func (c *ProcessingClient) classify(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 500:
		c.breaker.RecordFailure(breakerKey)
		msg := readError(resp.Body)
		c.logger.Warn("processing backend server error", "status", resp.StatusCode, "error", msg)
		return domain.ErrServer(msg)
	case resp.StatusCode >= 400:
		c.breaker.RecordSuccess(breakerKey)
		msg := readError(resp.Body)
		c.logger.Info("processing backend rejected request", "status", resp.StatusCode, "error", msg)
		return domain.ErrBackend(msg)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		c.breaker.RecordFailure(breakerKey)
		return domain.ErrServer("")
	}
	c.breaker.RecordSuccess(breakerKey)
	return nil
}

func readError(r io.Reader) string {
	var body errorBody
	if err := json.NewDecoder(io.LimitReader(r, 64<<10)).Decode(&body); err != nil {
		return ""
	}
	return body.Error
}

// Stats fetches GET /dashboard/stats.
func (c *ProcessingClient) Stats(ctx context.Context) (*DashboardStats, error) {
	var stats DashboardStats
	if err := c.getJSON(ctx, "/dashboard/stats", &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// RecentActivity fetches GET /dashboard/recent-activity.
func (c *ProcessingClient) RecentActivity(ctx context.Context) ([]RecentActivity, error) {
	var items []RecentActivity
	if err := c.getJSON(ctx, "/dashboard/recent-activity", &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []RecentActivity{}
	}
	return items, nil
}

func (c *ProcessingClient) getJSON(ctx context.Context, path string, dst interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.ErrNetwork(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return domain.ErrServer(readError(resp.Body))
	case resp.StatusCode >= 400:
		return domain.ErrBackend(readError(resp.Body))
	case resp.StatusCode != http.StatusOK:
		return domain.ErrServer("")
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return domain.ErrServer(fmt.Sprintf("decode %s: %v", path, err))
	}
	return nil
}

// IsBackendFailure reports whether err came from the processing backend
// rather than from local validation or persistence.
func IsBackendFailure(err error) bool {
	var appErr *domain.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case domain.CodeBackend, domain.CodeServer, domain.CodeNetwork:
		return true
	}
	return false
}
