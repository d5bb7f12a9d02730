// services/sessions.go

package services

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/norun9/rocketshoes-cart/cart"
	"github.com/norun9/rocketshoes-cart/notify"
)

// CartPublisher broadcasts cart snapshots outside the process.
type CartPublisher interface {
	Subscriber(sessionID string) func(cart.Cart)
}

// Session bundles one shopper's cart store and toast queue.
type Session struct {
	Store   *cart.Store
	Toasts  *notify.Toaster
	lastUse time.Time
}

// Sessions opens a cart store per session id on first use and keeps it
// in memory until it has been idle for too long.
type Sessions struct {
	deps        cart.Deps
	toastBuffer int
	publisher   CartPublisher
	log         logrus.FieldLogger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessions builds a registry. publisher may be nil.
func NewSessions(deps cart.Deps, toastBuffer int, publisher CartPublisher, log logrus.FieldLogger) *Sessions {
	return &Sessions{
		deps:        deps,
		toastBuffer: toastBuffer,
		publisher:   publisher,
		log:         log,
		now:         time.Now,
		sessions:    make(map[string]*Session),
	}
}

// Get returns the session for id, loading its cart from storage if needed.
// A failed load is not cached; the next request for id retries it.
func (s *Sessions) Get(ctx context.Context, id string) (*Session, error) {
	if sess := s.lookup(id); sess != nil {
		return sess, nil
	}

	// Storage is read without holding mu so other sessions are not blocked.
	toaster := notify.NewToaster(s.toastBuffer, s.log.WithField("session_id", id))
	store, err := cart.Open(ctx, id, s.deps, toaster)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		sess.lastUse = s.now()
		return sess, nil
	}
	if s.publisher != nil {
		store.Subscribe(s.publisher.Subscriber(id))
	}
	sess := &Session{Store: store, Toasts: toaster, lastUse: s.now()}
	s.sessions[id] = sess
	s.log.WithField("session_id", id).Debug("session opened")
	return sess, nil
}

func (s *Sessions) lookup(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.lastUse = s.now()
	return sess
}

// Len reports how many sessions are held in memory.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Prune forgets sessions idle for longer than maxIdle. Their carts stay in
// storage and are reloaded on the next request.
func (s *Sessions) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	n := 0
	for id, sess := range s.sessions {
		if sess.lastUse.Before(cutoff) {
			delete(s.sessions, id)
			n++
		}
	}
	return n
}

// PruneEvery runs Prune on every tick until ctx is done.
func (s *Sessions) PruneEvery(ctx context.Context, interval, maxIdle time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := s.Prune(maxIdle); n > 0 {
				s.log.WithField("pruned", n).Info("idle sessions released")
			}
		}
	}
}
