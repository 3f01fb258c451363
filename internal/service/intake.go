package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/guard"
	"github.com/trafficwise/platform/internal/metrics"
	"github.com/trafficwise/platform/internal/provider"
	"github.com/trafficwise/platform/internal/repository"
)

// AcceptedVideoTypes are the clip formats the processing backend understands.
var AcceptedVideoTypes = []string{"video/mp4", "video/quicktime"}

const sniffLen = 3072

// VideoProcessor forwards a bundle to the processing backend.
type VideoProcessor interface {
	ProcessVideos(ctx context.Context, uid string, clips []provider.Clip) (*provider.ProcessResult, error)
}

// Upload is one file part of a submission as received from the caller.
type Upload struct {
	Field        string
	Filename     string
	DeclaredType string
	Body         io.Reader
}

// SubmitInput is a four-direction bundle plus an optional idempotency key.
type SubmitInput struct {
	Uploads        []Upload
	IdempotencyKey string
}

// IntakeService validates bundles, forwards them for processing and records
// the returned timings as a pending activity.
type IntakeService struct {
	db         repository.TxBeginner
	activities repository.ActivityRepository
	outbox     repository.OutboxRepository
	processor  VideoProcessor
	limiter    guard.Limiter
	dedup      guard.Deduplicator
	logger     *slog.Logger
	now        func() time.Time
}

// NewIntakeService creates a new IntakeService.
func NewIntakeService(
	db repository.TxBeginner,
	activities repository.ActivityRepository,
	outbox repository.OutboxRepository,
	processor VideoProcessor,
	limiter guard.Limiter,
	dedup guard.Deduplicator,
	logger *slog.Logger,
) *IntakeService {
	return &IntakeService{
		db:         db,
		activities: activities,
		outbox:     outbox,
		processor:  processor,
		limiter:    limiter,
		dedup:      dedup,
		logger:     logger,
		now:        time.Now,
	}
}

// Submit runs the intake pipeline for uid. Nothing leaves the process until
// the bundle holds exactly one accepted video per direction.
func (s *IntakeService) Submit(ctx context.Context, uid string, input SubmitInput) (act *domain.Activity, err error) {
	defer func() { metrics.SubmissionsTotal.WithLabelValues(metrics.Outcome(err)).Inc() }()

	if uid == "" {
		return nil, domain.ErrUnauthenticated("Please sign in to upload videos.")
	}

	clips, err := checkBundle(input.Uploads)
	if err != nil {
		return nil, err
	}

	if res := s.limiter.Check(ctx, uid); !res.Allowed {
		return nil, domain.ErrRateLimited(res.Reason)
	}
	if res := s.dedup.Check(ctx, dedupKey(uid, input.IdempotencyKey)); !res.Allowed {
		return nil, domain.ErrConflict("this submission was already received")
	}

	started := time.Now()
	result, err := s.processor.ProcessVideos(ctx, uid, clips)
	metrics.ProcessingDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		s.dedup.Remove(ctx, dedupKey(uid, input.IdempotencyKey))
		return nil, err
	}

	act = &domain.Activity{
		ID:        result.ActivityID,
		UserID:    uid,
		Results:   result.Results.Clone(),
		Status:    domain.StatusPending,
		Timestamp: s.now().UTC(),
	}
	if err := s.persist(ctx, act); err != nil {
		s.dedup.Remove(ctx, dedupKey(uid, input.IdempotencyKey))
		s.logger.Error("processed bundle could not be recorded",
			"activity_id", act.ID, "uid", uid, "error", err)
		return nil, domain.ErrSubmissionNotRecorded(act.ID, err)
	}

	s.logger.Info("activity submitted", "activity_id", act.ID, "uid", uid)
	return act, nil
}

func (s *IntakeService) persist(ctx context.Context, act *domain.Activity) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := s.activities.Create(ctx, tx, act); err != nil {
		return err
	}
	if err := s.outbox.Insert(ctx, tx, domain.NewActivitySubmittedEvent(act)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func dedupKey(uid, key string) string {
	if key == "" {
		return ""
	}
	return uid + ":" + key
}

// checkBundle verifies the parts and returns the clips in direction order.
// Every problem is reported, keyed by the offending direction or field.
func checkBundle(uploads []Upload) ([]provider.Clip, error) {
	problems := make(map[string]string)
	byDir := make(map[domain.Direction]Upload, len(domain.Directions))
	seen := make(map[domain.Direction]int, len(domain.Directions))

	for _, up := range uploads {
		dir, ok := domain.ParseDirection(up.Field)
		if !ok {
			problems[up.Field] = "unexpected file; only north, south, east and west are accepted"
			continue
		}
		seen[dir]++
		byDir[dir] = up
	}

	clips := make([]provider.Clip, 0, len(domain.Directions))
	for _, dir := range domain.Directions {
		key := string(dir)
		switch n := seen[dir]; {
		case n == 0:
			problems[key] = "video missing"
			continue
		case n > 1:
			problems[key] = "exactly one video required"
			continue
		}

		up := byDir[dir]
		body, err := checkVideo(up)
		if err != nil {
			problems[key] = err.Error()
			continue
		}
		clips = append(clips, provider.Clip{
			Direction:   dir,
			Filename:    up.Filename,
			ContentType: mediaType(up.DeclaredType),
			Body:        body,
		})
	}

	if len(problems) > 0 {
		return nil, domain.ErrValidationFields(problems)
	}
	return clips, nil
}

// checkVideo checks the declared type and sniffs the leading bytes. The
// returned reader still yields the full content.
func checkVideo(up Upload) (io.Reader, error) {
	declared := mediaType(up.DeclaredType)
	if !acceptedType(declared) {
		return nil, fmt.Errorf("invalid file type %q; please upload MP4 or MOV", declared)
	}
	if up.Body == nil {
		return nil, errors.New("empty file")
	}

	br := bufio.NewReaderSize(up.Body, sniffLen)
	head, err := br.Peek(sniffLen)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("read file: %v", err)
	}
	if len(head) == 0 {
		return nil, errors.New("empty file")
	}

	detected := mimetype.Detect(head)
	for m := detected; m != nil; m = m.Parent() {
		if acceptedType(m.String()) {
			return br, nil
		}
	}
	return nil, fmt.Errorf("content is %s, not an MP4 or MOV video", detected.String())
}

func mediaType(ct string) string {
	ct, _, _ = strings.Cut(ct, ";")
	return strings.ToLower(strings.TrimSpace(ct))
}

func acceptedType(ct string) bool {
	return slices.Contains(AcceptedVideoTypes, ct)
}
