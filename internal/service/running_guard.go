package service

import (
	"context"
	"sync"
)

// ExportedPageLocks is an exported alias so _test packages can test the guard.
type ExportedPageLocks = pageLocks

// ─────────────────────────────────────────────────────────────
// pageLocks — one version operation per page at a time
// ─────────────────────────────────────────────────────────────

// pageLocks ensures that only one snapshot or rollback runs per page,
// across every session that has the page open.
type pageLocks struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock attempts to mark pageID as busy. Returns false if it already is.
func (g *pageLocks) TryLock(pageID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[pageID]; ok {
		return false
	}
	g.running[pageID] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock releases pageID. Must follow a successful TryLock.
func (g *pageLocks) Unlock(pageID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, pageID)
	g.wg.Done()
}

// Busy reports whether pageID is currently locked.
func (g *pageLocks) Busy(pageID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[pageID]
	return ok
}

// WaitAll blocks until every running operation completes or ctx is cancelled.
func (g *pageLocks) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
