package selection

import (
	"sync"
	"time"

	"onboarding-backend/internal/analyses"
	"onboarding-backend/internal/identity"
	"onboarding-backend/internal/shared/telemetry"
)

const defaultIdleTTL = 12 * time.Hour

// Registry keeps one Context per signed-in session. Contexts nobody has used
// for IdleTTL are dropped unless a stream is still reading them.
type Registry struct {
	svc *analyses.Service

	IdleTTL time.Duration
	Now     func() time.Time

	mu        sync.Mutex
	contexts  map[string]*registryEntry
	lastSweep time.Time
}

type registryEntry struct {
	ctx      *Context
	lastSeen time.Time
}

// NewRegistry constructs a Registry whose contexts read through svc.
func NewRegistry(svc *analyses.Service) *Registry {
	return &Registry{svc: svc, IdleTTL: defaultIdleTTL, contexts: make(map[string]*registryEntry)}
}

// For returns the session's Context, creating it on first use. A refreshed
// token maps to the same Context and becomes the one its reads use.
func (r *Registry) For(sess identity.Session) (*Context, error) {
	if sess.Anonymous() || sess.ID == "" {
		return nil, analyses.ErrAuthRequired
	}
	now := r.now()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sweepLocked(now)

	if e, ok := r.contexts[sess.ID]; ok {
		e.lastSeen = now
		e.ctx.rebind(r.svc.ForSession(sess))
		return e.ctx, nil
	}
	c := New(r.svc.ForSession(sess))
	r.contexts[sess.ID] = &registryEntry{ctx: c, lastSeen: now}
	return c, nil
}

// Logout discards the session's Context. It reports whether one existed.
func (r *Registry) Logout(sessionID string) bool {
	r.mu.Lock()
	e, ok := r.contexts[sessionID]
	delete(r.contexts, sessionID)
	r.mu.Unlock()
	if ok {
		e.ctx.Close()
	}
	return ok
}

// CloseAll discards every Context, ending open event streams. Register it with
// http.Server.RegisterOnShutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	entries := r.contexts
	r.contexts = make(map[string]*registryEntry)
	r.mu.Unlock()
	for _, e := range entries {
		e.ctx.Close()
	}
	telemetry.Info("selection.closed_all", map[string]any{"contexts": len(entries)})
}

// Len reports the number of live contexts.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contexts)
}

func (r *Registry) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// sweepLocked runs at most once per IdleTTL.
func (r *Registry) sweepLocked(now time.Time) {
	if r.IdleTTL <= 0 || now.Sub(r.lastSweep) < r.IdleTTL {
		return
	}
	r.lastSweep = now
	cutoff := now.Add(-r.IdleTTL)
	for id, e := range r.contexts {
		if e.lastSeen.Before(cutoff) && e.ctx.subscriberCount() == 0 {
			delete(r.contexts, id)
			e.ctx.Close()
		}
	}
}
