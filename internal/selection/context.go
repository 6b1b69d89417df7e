// Package selection tracks which saved analysis a session is currently looking at.
//
// A Context holds at most one selected record plus the last list read from the
// store, and publishes a Snapshot to subscribers whenever either changes.
package selection

import (
	"context"
	"sync"

	"onboarding-backend/internal/analyses"
	"onboarding-backend/internal/shared/metrics"
	"onboarding-backend/internal/shared/telemetry"
)

// Store is the part of the store client a Context reads through.
type Store interface {
	GetAll(ctx context.Context) ([]analyses.Record, error)
	GetByID(ctx context.Context, id string) (analyses.Record, error)
}

// Snapshot is the state published to subscribers.
type Snapshot struct {
	Selected *analyses.Record  `json:"selected"`
	Analyses []analyses.Record `json:"analyses"`
	Version  uint64            `json:"version"`
}

// Context is a session's selection state. Safe for concurrent use.
type Context struct {
	store Store

	mu       sync.Mutex
	selected *analyses.Record
	list     []analyses.Record
	version  uint64
	subs     map[int]chan Snapshot
	nextSub  int
	closed   bool
}

// New returns an unselected Context reading through store.
func New(store Store) *Context {
	return &Context{store: store, list: []analyses.Record{}, subs: make(map[int]chan Snapshot)}
}

// Select replaces the current selection with rec.
func (c *Context) Select(rec analyses.Record) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	cp := rec.Clone()
	c.selected = &cp
	c.publishLocked()
}

// SelectByID reads the record from the store and selects it.
func (c *Context) SelectByID(ctx context.Context, id string) (analyses.Record, error) {
	rec, err := c.reader().GetByID(ctx, id)
	if err != nil {
		return analyses.Record{}, err
	}
	c.Select(rec)
	return rec, nil
}

// Deselect clears the selection.
func (c *Context) Deselect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.selected == nil {
		return
	}
	c.selected = nil
	c.publishLocked()
}

// Refresh reloads the session's records and republishes them. The selection is
// left as is. Failures are logged and dropped.
func (c *Context) Refresh(ctx context.Context) {
	records, err := c.reader().GetAll(ctx)
	if err != nil {
		metrics.IncRefreshFailed()
		telemetry.Warn("selection.refresh_failed", map[string]any{"error": err.Error()})
		return
	}
	analyses.SortByCreatedDesc(records)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.list = records
	c.publishLocked()
}

// Selected returns a copy of the selected record.
func (c *Context) Selected() (analyses.Record, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == nil {
		return analyses.Record{}, false
	}
	return c.selected.Clone(), true
}

// URL is the selected record's repoUrl.
func (c *Context) URL() (string, bool) {
	rec, ok := c.Selected()
	return rec.RepoURL, ok
}

// Name is the selected record's repoName.
func (c *Context) Name() (string, bool) {
	rec, ok := c.Selected()
	return rec.RepoName, ok
}

// ID is the selected record's id.
func (c *Context) ID() (string, bool) {
	rec, ok := c.Selected()
	return rec.ID, ok
}

// Metadata is the selected record's metadata. ok is false when nothing is
// selected or the record has no metadata.
func (c *Context) Metadata() (analyses.Metadata, bool) {
	rec, ok := c.Selected()
	if !ok {
		return analyses.Metadata{}, false
	}
	return rec.Metadata.Get()
}

// Snapshot returns the current state.
func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers for published snapshots. Each subscriber buffers one
// snapshot; a slow reader only sees the latest. The returned func unsubscribes.
func (c *Context) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close clears the selection and ends every subscription.
func (c *Context) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.selected = nil
	c.list = []analyses.Record{}
	for id, ch := range c.subs {
		delete(c.subs, id)
		close(ch)
	}
}

// rebind points later reads at store, which carries the caller's newest token.
func (c *Context) rebind(store Store) {
	c.mu.Lock()
	c.store = store
	c.mu.Unlock()
}

func (c *Context) reader() Store {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store
}

func (c *Context) subscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subs)
}

func (c *Context) snapshotLocked() Snapshot {
	snap := Snapshot{Version: c.version, Analyses: make([]analyses.Record, len(c.list))}
	for i, rec := range c.list {
		snap.Analyses[i] = rec.Clone()
	}
	if c.selected != nil {
		sel := c.selected.Clone()
		snap.Selected = &sel
	}
	return snap
}

func (c *Context) publishLocked() {
	c.version++
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// Drop the stale snapshot so the reader sees the newest one.
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
