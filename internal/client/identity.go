package client

import (
	"context"
	"sync"
	"time"

	"github.com/trafficwise/platform/internal/domain"
	"github.com/trafficwise/platform/internal/service"
)

// StoredSession is what survives between CLI runs.
type StoredSession struct {
	Token     string
	ExpiresAt time.Time
	Identity  domain.Identity
}

// TokenStore persists the session token. Load returns nil when nothing is stored.
type TokenStore interface {
	Load() (*StoredSession, error)
	Save(s *StoredSession) error
	Clear() error
}

// Identity is the client-side identity provider. It owns the session token,
// reports every session change to its listeners and signs the caller out
// when the token expires.
type Identity struct {
	api   *Client
	store TokenStore
	now   func() time.Time

	mu      sync.Mutex
	current *StoredSession
	expiry  *time.Timer
	nextID  int
	subs    map[int]func(*domain.Identity)
}

// NewIdentity binds an identity provider to api. The api client's bearer
// token is taken from the current session from now on.
func NewIdentity(api *Client, store TokenStore) *Identity {
	id := &Identity{
		api:   api,
		store: store,
		now:   time.Now,
		subs:  make(map[int]func(*domain.Identity)),
	}
	api.SetToken(id.Token)
	return id
}

// OnSessionChange registers cb for every session change. cb receives nil
// on sign-out.
func (c *Identity) OnSessionChange(cb func(*domain.Identity)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextID
	c.nextID++
	c.subs[id] = cb
	c.mu.Unlock()

	return func() {
		c.mu.Lock()
		delete(c.subs, id)
		c.mu.Unlock()
	}
}

// Token returns the current bearer token or "".
func (c *Identity) Token() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return ""
	}
	return c.current.Token
}

// Restore loads a stored session and confirms it with the API. A missing,
// expired or rejected token is reported as signed out.
func (c *Identity) Restore(ctx context.Context) error {
	stored, err := c.store.Load()
	if err != nil {
		c.setSession(nil)
		return err
	}
	if stored == nil || stored.Token == "" || !c.now().Before(stored.ExpiresAt) {
		c.setSession(nil)
		return nil
	}

	c.mu.Lock()
	c.current = stored
	c.mu.Unlock()

	identity, err := c.api.Session(ctx)
	switch {
	case err == nil:
		stored.Identity = identity
		c.setSession(stored)
		return nil
	case domain.IsCode(err, domain.CodeProfileNotFound):
		// the token is good; the missing profile is the role resolver's to report
		c.setSession(stored)
		return nil
	case domain.IsCode(err, domain.CodeUnauthenticated):
		c.swap(nil, nil, c.store.Clear)
		return nil
	default:
		c.setSession(nil)
		return err
	}
}

// SignUp creates an account and signs in as it.
func (c *Identity) SignUp(ctx context.Context, input service.SignUpInput) (*service.AuthResult, error) {
	res, err := c.api.SignUp(ctx, input)
	if err != nil {
		return nil, err
	}
	return res, c.adopt(res)
}

// SignIn signs in with email and password.
func (c *Identity) SignIn(ctx context.Context, email, password string) (*service.AuthResult, error) {
	res, err := c.api.SignIn(ctx, email, password)
	if err != nil {
		return nil, err
	}
	return res, c.adopt(res)
}

// SignOut revokes the token server-side and forgets it locally. The local
// session is dropped even if the API call fails.
func (c *Identity) SignOut(ctx context.Context) error {
	err := c.api.SignOut(ctx)
	if _, clearErr := c.swap(nil, nil, c.store.Clear); err == nil {
		err = clearErr
	}
	return err
}

// FindProfile resolves the signed-in caller's profile for the role
// resolver. A missing profile is reported as (nil, nil).
func (c *Identity) FindProfile(ctx context.Context, uid string) (*domain.Profile, error) {
	p, err := c.api.Me(ctx)
	if domain.IsCode(err, domain.CodeProfileNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if p.UID != uid {
		return nil, domain.ErrInternal("profile belongs to a different session", nil)
	}
	return p, nil
}

func (c *Identity) adopt(res *service.AuthResult) error {
	s := &StoredSession{
		Token:     res.Session.Token,
		ExpiresAt: res.Session.ExpiresAt,
		Identity:  res.Session.Identity,
	}
	_, err := c.swap(s, nil, func() error { return c.store.Save(s) })
	return err
}

func (c *Identity) setSession(s *StoredSession) {
	c.swap(s, nil, nil)
}

// swap replaces the session when accept (if set) approves the current one,
// re-arms the expiry timer and notifies listeners outside the lock. persist
// runs under the same lock, so the store never disagrees with memory.
func (c *Identity) swap(s *StoredSession, accept func(cur *StoredSession) bool, persist func() error) (bool, error) {
	c.mu.Lock()
	if accept != nil && !accept(c.current) {
		c.mu.Unlock()
		return false, nil
	}
	var err error
	if persist != nil {
		err = persist()
	}
	c.current = s
	if c.expiry != nil {
		c.expiry.Stop()
		c.expiry = nil
	}
	if s != nil {
		c.expiry = time.AfterFunc(s.ExpiresAt.Sub(c.now()), func() { c.expire(s) })
	}
	subs := make([]func(*domain.Identity), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	var id *domain.Identity
	if s != nil {
		identity := s.Identity
		id = &identity
	}
	for _, fn := range subs {
		fn(id)
	}
	return true, err
}

// expire signs out s unless a newer session has replaced it.
func (c *Identity) expire(s *StoredSession) {
	c.swap(nil, func(cur *StoredSession) bool { return cur == s }, c.store.Clear)
}

// MemoryStore keeps the session in process memory.
type MemoryStore struct {
	mu sync.Mutex
	s  *StoredSession
}

func (m *MemoryStore) Load() (*StoredSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.s == nil {
		return nil, nil
	}
	cp := *m.s
	return &cp, nil
}

func (m *MemoryStore) Save(s *StoredSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.s = &cp
	return nil
}

func (m *MemoryStore) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = nil
	return nil
}
