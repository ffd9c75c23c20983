package router

import (
	"bytes"
	"crypto/ed25519"
	"sync"
	"time"

	"github.com/cardlink/cardlink/internal/common/apperrors"
)

// cardhostSession is a live card-host registration.
type cardhostSession struct {
	ID          string
	PublicKey   ed25519.PublicKey
	ConnectedAt time.Time
	peer        *wsPeer

	mu            sync.Mutex
	lastHeartbeat time.Time
}

func (s *cardhostSession) touch() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

func (s *cardhostSession) sinceHeartbeat() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastHeartbeat)
}

// controllerSession is a live controller registration, bound to one card host
// for its lifetime.
type controllerSession struct {
	SessionID   string
	CardhostID  string
	ConnectedAt time.Time
	peer        *wsPeer

	mu            sync.Mutex
	lastHeartbeat time.Time
}

func (s *controllerSession) touch() {
	s.mu.Lock()
	s.lastHeartbeat = time.Now()
	s.mu.Unlock()
}

func (s *controllerSession) sinceHeartbeat() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return time.Since(s.lastHeartbeat)
}

// registry tracks the router's live peers on both sides.
type registry struct {
	mu          sync.RWMutex
	cardhosts   map[string]*cardhostSession   // cardhostID -> session
	controllers map[string]*controllerSession // sessionID -> session
}

func newRegistry() *registry {
	return &registry{
		cardhosts:   make(map[string]*cardhostSession),
		controllers: make(map[string]*controllerSession),
	}
}

// registerCardhost installs a card-host session. The public key is the
// authoritative identity: a host reconnecting under the same key replaces its
// previous registration (the replaced session is returned for teardown), but
// a host claiming an ID held by a different key is rejected.
func (r *registry) registerCardhost(s *cardhostSession) (*cardhostSession, apperrors.Error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	replaced := r.cardhosts[s.ID]
	if replaced != nil && !bytes.Equal(replaced.PublicKey, s.PublicKey) {
		return nil, ErrCardhostConflict
	}
	r.cardhosts[s.ID] = s
	return replaced, nil
}

// unregisterCardhost removes the registration only if s is still the live
// entry, so a replaced session's teardown cannot evict its replacement.
func (r *registry) unregisterCardhost(s *cardhostSession) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cardhosts[s.ID] != s {
		return false
	}
	delete(r.cardhosts, s.ID)
	return true
}

func (r *registry) cardhost(id string) (*cardhostSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.cardhosts[id]
	return s, ok
}

func (r *registry) allCardhosts() []*cardhostSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*cardhostSession, 0, len(r.cardhosts))
	for _, s := range r.cardhosts {
		out = append(out, s)
	}
	return out
}

func (r *registry) registerController(s *controllerSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.controllers[s.SessionID] = s
}

func (r *registry) unregisterController(s *controllerSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.controllers[s.SessionID] == s {
		delete(r.controllers, s.SessionID)
	}
}

func (r *registry) controller(sessionID string) (*controllerSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.controllers[sessionID]
	return s, ok
}

func (r *registry) allControllers() []*controllerSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*controllerSession, 0, len(r.controllers))
	for _, s := range r.controllers {
		out = append(out, s)
	}
	return out
}
