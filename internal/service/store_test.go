package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/repository"
)

// memData is the state held by memStore. Values are copied in and out so
// callers never alias stored rows.
type memData struct {
	users      map[string]domain.AuthUser
	profiles   map[string]domain.Profile
	activities map[string]domain.Activity
	results    map[string]domain.Result
	outbox     []domain.OutboxDraft
	seq        int64
}

func (d memData) clone() memData {
	c := memData{
		users:      make(map[string]domain.AuthUser, len(d.users)),
		profiles:   make(map[string]domain.Profile, len(d.profiles)),
		activities: make(map[string]domain.Activity, len(d.activities)),
		results:    make(map[string]domain.Result, len(d.results)),
		outbox:     slices.Clone(d.outbox),
		seq:        d.seq,
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.profiles {
		c.profiles[k] = v
	}
	for k, v := range d.activities {
		c.activities[k] = v
	}
	for k, v := range d.results {
		c.results[k] = v
	}
	return c
}

// memStore is a transactional in-memory store. Begin takes an exclusive lock
// that is held until Commit or Rollback, and Rollback restores the snapshot
// taken at Begin. That gives the same all-or-nothing and serialization
// guarantees the Postgres repositories rely on.
type memStore struct {
	mu     sync.Mutex
	data   memData
	failOn map[string]error
	begins int
}

func newMemStore() *memStore {
	return &memStore{
		data:   memData{}.clone(),
		failOn: make(map[string]error),
	}
}

// fail makes the named operation return err from now on.
func (s *memStore) fail(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOn[op] = err
}

func (s *memStore) Begin(context.Context) (pgx.Tx, error) {
	s.mu.Lock()
	if err := s.failOn["begin"]; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.begins++
	return &memTx{store: s, snapshot: s.data.clone()}, nil
}

func (s *memStore) Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errors.New("memStore: raw SQL not supported")
}

func (s *memStore) Query(context.Context, string, ...interface{}) (pgx.Rows, error) {
	return nil, errors.New("memStore: raw SQL not supported")
}

func (s *memStore) QueryRow(context.Context, string, ...interface{}) pgx.Row {
	panic("memStore: raw SQL not supported")
}

// with runs fn against the store state. Inside a transaction the lock is
// already held by Begin.
func (s *memStore) with(db repository.DBTX, op string, fn func(d *memData) error) error {
	if _, inTx := db.(*memTx); !inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	if err := s.failOn[op]; err != nil {
		return err
	}
	return fn(&s.data)
}

// memTx embeds pgx.Tx only to satisfy the interface; the methods services
// call are overridden below.
type memTx struct {
	pgx.Tx
	store    *memStore
	snapshot memData
	done     bool
}

func (tx *memTx) Commit(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	defer tx.store.mu.Unlock()
	if err := tx.store.failOn["commit"]; err != nil {
		tx.store.data = tx.snapshot
		return err
	}
	return nil
}

func (tx *memTx) Rollback(context.Context) error {
	if tx.done {
		return pgx.ErrTxClosed
	}
	tx.done = true
	tx.store.data = tx.snapshot
	tx.store.mu.Unlock()
	return nil
}

// snapshot returns a copy of the committed state.
func (s *memStore) snapshot() memData {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.clone()
}

func (s *memStore) eventTypes() []domain.EventType {
	d := s.snapshot()
	out := make([]domain.EventType, 0, len(d.outbox))
	for _, e := range d.outbox {
		out = append(out, e.EventType)
	}
	return out
}

// --- repositories over memStore ---

type memUsers struct{ s *memStore }

func (r memUsers) FindByEmail(_ context.Context, db repository.DBTX, email string) (*domain.AuthUser, error) {
	var out *domain.AuthUser
	err := r.s.with(db, "users.FindByEmail", func(d *memData) error {
		for _, u := range d.users {
			if strings.EqualFold(u.Email, email) {
				u := u
				out = &u
			}
		}
		return nil
	})
	return out, err
}

func (r memUsers) FindByID(_ context.Context, db repository.DBTX, id string) (*domain.AuthUser, error) {
	var out *domain.AuthUser
	err := r.s.with(db, "users.FindByID", func(d *memData) error {
		if u, ok := d.users[id]; ok {
			out = &u
		}
		return nil
	})
	return out, err
}

func (r memUsers) Create(_ context.Context, db repository.DBTX, user *domain.AuthUser) error {
	return r.s.with(db, "users.Create", func(d *memData) error {
		for _, u := range d.users {
			if strings.EqualFold(u.Email, user.Email) {
				return domain.ErrEmailInUse()
			}
		}
		d.users[user.ID] = *user
		return nil
	})
}

type memProfiles struct{ s *memStore }

func (r memProfiles) FindByUID(_ context.Context, db repository.DBTX, uid string) (*domain.Profile, error) {
	var out *domain.Profile
	err := r.s.with(db, "profiles.FindByUID", func(d *memData) error {
		if p, ok := d.profiles[uid]; ok {
			out = &p
		}
		return nil
	})
	return out, err
}

func (r memProfiles) Create(_ context.Context, db repository.DBTX, profile *domain.Profile) error {
	return r.s.with(db, "profiles.Create", func(d *memData) error {
		if _, ok := d.profiles[profile.UID]; ok {
			return domain.ErrConflict(fmt.Sprintf("profile %s already exists", profile.UID))
		}
		profile.SetRole(profile.Role)
		profile.RegisterDate = time.Now().UTC()
		d.profiles[profile.UID] = *profile
		return nil
	})
}

func (r memProfiles) Update(_ context.Context, db repository.DBTX, uid string, update domain.ProfileUpdate) (*domain.Profile, error) {
	var out *domain.Profile
	err := r.s.with(db, "profiles.Update", func(d *memData) error {
		p, ok := d.profiles[uid]
		if !ok {
			return nil
		}
		p.DisplayName = update.DisplayName
		p.Phone = update.Phone
		p.Email = update.Email
		p.SetRole(update.UserType.Role())
		d.profiles[uid] = p
		out = &p
		return nil
	})
	return out, err
}

func (r memProfiles) Upsert(_ context.Context, db repository.DBTX, profile *domain.Profile) error {
	return r.s.with(db, "profiles.Upsert", func(d *memData) error {
		profile.SetRole(profile.Role)
		p := *profile
		if p.RegisterDate.IsZero() {
			if prev, ok := d.profiles[p.UID]; ok {
				p.RegisterDate = prev.RegisterDate
			} else {
				p.RegisterDate = time.Now().UTC()
			}
		}
		d.profiles[p.UID] = p
		return nil
	})
}

func (r memProfiles) Delete(_ context.Context, db repository.DBTX, uid string) (bool, error) {
	var deleted bool
	err := r.s.with(db, "profiles.Delete", func(d *memData) error {
		_, deleted = d.profiles[uid]
		delete(d.profiles, uid)
		return nil
	})
	return deleted, err
}

func (r memProfiles) List(_ context.Context, db repository.DBTX) ([]domain.Profile, error) {
	var out []domain.Profile
	err := r.s.with(db, "profiles.List", func(d *memData) error {
		for _, p := range d.profiles {
			out = append(out, p)
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].RegisterDate.Equal(out[j].RegisterDate) {
				return out[i].RegisterDate.Before(out[j].RegisterDate)
			}
			return out[i].UID < out[j].UID
		})
		return nil
	})
	return out, err
}

func (r memProfiles) CountAdmins(_ context.Context, db repository.DBTX) (int, error) {
	var n int
	err := r.s.with(db, "profiles.CountAdmins", func(d *memData) error {
		for _, p := range d.profiles {
			if p.Role == domain.RoleAdmin {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memProfiles) NextEmployeeNumber(_ context.Context, db repository.DBTX) (int64, error) {
	var n int64
	err := r.s.with(db, "profiles.NextEmployeeNumber", func(d *memData) error {
		d.seq++
		n = d.seq
		return nil
	})
	return n, err
}

func (r memProfiles) AdvanceEmployeeSequence(_ context.Context, db repository.DBTX, floor int64) error {
	return r.s.with(db, "profiles.AdvanceEmployeeSequence", func(d *memData) error {
		d.seq = max(d.seq, floor)
		return nil
	})
}

type memActivities struct{ s *memStore }

func (r memActivities) Create(_ context.Context, db repository.DBTX, a *domain.Activity) error {
	return r.s.with(db, "activities.Create", func(d *memData) error {
		if _, ok := d.activities[a.ID]; ok {
			return domain.ErrConflict(fmt.Sprintf("activity %s already exists", a.ID))
		}
		stored := *a
		stored.Results = a.Results.Clone()
		d.activities[a.ID] = stored
		return nil
	})
}

func (r memActivities) FindByID(_ context.Context, db repository.DBTX, id string) (*domain.Activity, error) {
	var out *domain.Activity
	err := r.s.with(db, "activities.FindByID", func(d *memData) error {
		if a, ok := d.activities[id]; ok {
			out = &a
		}
		return nil
	})
	return out, err
}

func (r memActivities) ListByStatus(_ context.Context, db repository.DBTX, status domain.ActivityStatus, limit int) ([]domain.Activity, error) {
	var out []domain.Activity
	err := r.s.with(db, "activities.ListByStatus", func(d *memData) error {
		for _, a := range d.activities {
			if a.Status == status {
				out = append(out, a)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].Timestamp.Equal(out[j].Timestamp) {
				return out[i].Timestamp.Before(out[j].Timestamp)
			}
			return out[i].ID < out[j].ID
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

func (r memActivities) CountByStatus(_ context.Context, db repository.DBTX, status domain.ActivityStatus) (int, error) {
	var n int
	err := r.s.with(db, "activities.CountByStatus", func(d *memData) error {
		for _, a := range d.activities {
			if a.Status == status {
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memActivities) Transition(_ context.Context, db repository.DBTX, id string, to domain.ActivityStatus, at time.Time) (*domain.Activity, error) {
	var out *domain.Activity
	err := r.s.with(db, "activities.Transition", func(d *memData) error {
		a, ok := d.activities[id]
		if !ok || a.Status != domain.StatusPending {
			return nil
		}
		a.Status = to
		a.UpdatedAt = &at
		d.activities[id] = a
		out = &a
		return nil
	})
	return out, err
}

type memResults struct{ s *memStore }

func (r memResults) Create(_ context.Context, db repository.DBTX, result *domain.Result) error {
	return r.s.with(db, "results.Create", func(d *memData) error {
		for _, existing := range d.results {
			if existing.ActivityID == result.ActivityID {
				return domain.ErrConflict(fmt.Sprintf("result for activity %s already exists", result.ActivityID))
			}
		}
		d.results[result.ID] = *result
		return nil
	})
}

func (r memResults) FindByActivity(_ context.Context, db repository.DBTX, activityID string) (*domain.Result, error) {
	var out *domain.Result
	err := r.s.with(db, "results.FindByActivity", func(d *memData) error {
		for _, res := range d.results {
			if res.ActivityID == activityID {
				res := res
				out = &res
			}
		}
		return nil
	})
	return out, err
}

func (r memResults) ListByUser(_ context.Context, db repository.DBTX, userID string, limit int) ([]domain.Result, error) {
	var out []domain.Result
	err := r.s.with(db, "results.ListByUser", func(d *memData) error {
		for _, res := range d.results {
			if res.UserID == userID {
				out = append(out, res)
			}
		}
		sort.Slice(out, func(i, j int) bool {
			if !out[i].Timestamp.Equal(out[j].Timestamp) {
				return out[i].Timestamp.After(out[j].Timestamp)
			}
			return out[i].ID > out[j].ID
		})
		if len(out) > limit {
			out = out[:limit]
		}
		return nil
	})
	return out, err
}

type memOutbox struct{ s *memStore }

func (r memOutbox) Insert(_ context.Context, db repository.DBTX, draft domain.OutboxDraft) error {
	return r.s.with(db, "outbox.Insert", func(d *memData) error {
		d.outbox = append(d.outbox, draft)
		return nil
	})
}

func (r memOutbox) FetchUnpublished(_ context.Context, db repository.DBTX, limit int) ([]repository.OutboxRow, error) {
	var out []repository.OutboxRow
	err := r.s.with(db, "outbox.FetchUnpublished", func(d *memData) error {
		for i, draft := range d.outbox {
			if len(out) == limit {
				break
			}
			out = append(out, repository.OutboxRow{SeqID: int64(i + 1), OutboxDraft: draft})
		}
		return nil
	})
	return out, err
}

func (r memOutbox) MarkPublished(context.Context, repository.DBTX, []int64) error {
	return nil
}

func (s *memStore) users() memUsers           { return memUsers{s} }
func (s *memStore) profiles() memProfiles     { return memProfiles{s} }
func (s *memStore) activities() memActivities { return memActivities{s} }
func (s *memStore) results() memResults       { return memResults{s} }
func (s *memStore) outboxRepo() memOutbox     { return memOutbox{s} }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func seedActivity(s *memStore, a domain.Activity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.activities[a.ID] = a
}

func seedProfile(s *memStore, p domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.SetRole(p.Role)
	s.data.profiles[p.UID] = p
}
