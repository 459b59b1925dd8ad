// Package ba is the Broker Adapter: one authenticated session per
// {user_id, broker_credential_id} pair, translating Order submissions into
// broker API calls and surfacing broker events back through the event bus
// (spec §4.3). Submission transport is github.com/go-resty/resty/v2; the
// live event stream is github.com/gorilla/websocket, matching the teacher's
// exec/client.go and feeds/polymarket_ws.go collaborators respectively.
package ba

import (
	"sync"

	"github.com/jai-bhardwaj/tradecore/internal/domain"
	"github.com/jai-bhardwaj/tradecore/internal/errs"
)

type sessionKey struct {
	userID       string
	credentialID string
}

// Registry is the in-memory session map. Insertion/removal is guarded by a
// single registry lock; once obtained, a *heldSession carries its own lock
// for the mutations a single session undergoes (spec §4.3).
type Registry struct {
	mu       sync.Mutex
	sessions map[sessionKey]*heldSession
}

type heldSession struct {
	mu   sync.Mutex
	sess *domain.Session
}

func newRegistry() *Registry {
	return &Registry{sessions: make(map[sessionKey]*heldSession)}
}

func (r *Registry) add(userID, credentialID string, sess *domain.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[sessionKey{userID, credentialID}] = &heldSession{sess: sess}
}

func (r *Registry) remove(userID, credentialID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, sessionKey{userID, credentialID})
}

func (r *Registry) get(userID, credentialID string) (*heldSession, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	hs, ok := r.sessions[sessionKey{userID, credentialID}]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return hs, nil
}

func (r *Registry) listByUser(userID string) []*domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Session
	for k, hs := range r.sessions {
		if k.userID != userID {
			continue
		}
		hs.mu.Lock()
		out = append(out, hs.sess.Clone())
		hs.mu.Unlock()
	}
	return out
}
