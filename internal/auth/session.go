package auth

import (
	"context"
	"sync"
	"time"

	"github.com/debemdeboas/atelier/internal/model"
)

// SessionTTL is how long a sign-in lasts.
const SessionTTL = 24 * time.Hour

type Session struct {
	UserID    model.UserID `json:"user_id"`
	IssuedAt  time.Time    `json:"issued_at"`
	ExpiresAt time.Time    `json:"expires_at"`
}

// Sessions tracks the signed-in administrator session and notifies
// listeners when it starts or ends.
type Sessions struct {
	mu        sync.Mutex
	current   *Session
	listeners map[int]func(*Session)
	nextID    int

	ttl time.Duration
	now func() time.Time
}

func NewSessions(ttl time.Duration, now func() time.Time) *Sessions {
	if ttl <= 0 {
		ttl = SessionTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Sessions{
		listeners: make(map[int]func(*Session)),
		ttl:       ttl,
		now:       now,
	}
}

// Current returns the live session, or nil. An expired session is ended
// here and listeners are told.
func (s *Sessions) Current() *Session {
	s.mu.Lock()
	cur := s.current
	if cur == nil || s.now().Before(cur.ExpiresAt) {
		s.mu.Unlock()
		if cur == nil {
			return nil
		}
		c := *cur
		return &c
	}

	s.current = nil
	fns := s.snapshotListeners()
	s.mu.Unlock()

	authLogger.Info().Str("user_id", string(cur.UserID)).Msg("Session expired")
	notify(fns, nil)
	return nil
}

// SignIn starts a session for user, replacing any previous one.
func (s *Sessions) SignIn(user model.UserID) *Session {
	now := s.now()
	sess := &Session{UserID: user, IssuedAt: now, ExpiresAt: now.Add(s.ttl)}

	s.mu.Lock()
	s.current = sess
	fns := s.snapshotListeners()
	s.mu.Unlock()

	authLogger.Info().Str("user_id", string(user)).Time("expires_at", sess.ExpiresAt).Msg("Signed in")
	c := *sess
	notify(fns, &c)
	return &c
}

func (s *Sessions) SignOut() {
	s.mu.Lock()
	had := s.current != nil
	s.current = nil
	fns := s.snapshotListeners()
	s.mu.Unlock()

	if had {
		authLogger.Info().Msg("Signed out")
		notify(fns, nil)
	}
}

// OnChange registers f to receive the new session, nil meaning signed out.
// The returned function removes the listener.
func (s *Sessions) OnChange(f func(*Session)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = f
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

// Watch checks for expiry every interval until ctx is done.
func (s *Sessions) Watch(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Current()
		}
	}
}

func (s *Sessions) snapshotListeners() []func(*Session) {
	fns := make([]func(*Session), 0, len(s.listeners))
	for _, f := range s.listeners {
		fns = append(fns, f)
	}
	return fns
}

func notify(fns []func(*Session), sess *Session) {
	for _, f := range fns {
		if sess == nil {
			f(nil)
			continue
		}
		c := *sess
		f(&c)
	}
}
