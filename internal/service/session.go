package service

import (
	"context"
	"time"

	"sitebuilder/internal/autosave"
	"sitebuilder/internal/domain"
	"sitebuilder/internal/editor"
	"sitebuilder/internal/geometry"
	"sitebuilder/internal/versions"
)

// Session is one open page: the block store and everything that observes it.
type Session struct {
	svc    *EditorService
	pageID string

	store     *editor.BlockStore
	selection *editor.Selection
	geometry  *geometry.Engine
	scheduler *autosave.Scheduler
	versions  *versions.Manager
	auto      *versions.AutoSnapshotter
	unsub     func()
}

func (s *Session) shutdown() {
	if s.auto != nil {
		s.auto.Stop()
	}
	if s.scheduler != nil {
		s.scheduler.Close()
	}
	if s.selection != nil {
		s.selection.Close()
	}
	if s.unsub != nil {
		s.unsub()
	}
}

func (s *Session) PageID() string                       { return s.pageID }
func (s *Session) Store() *editor.BlockStore            { return s.store }
func (s *Session) Measurements() *geometry.Measurements { return s.geometry.Measurements() }
func (s *Session) Versions() *versions.Manager          { return s.versions }

// ── Blocks ─────────────────────────────────────────────────

func (s *Session) Blocks() []domain.Block {
	return s.store.Blocks()
}

// CreateBlock inserts a block at position; a negative position appends.
// nil content gets the type's default payload.
func (s *Session) CreateBlock(t domain.BlockType, content domain.Content, styles domain.Styles, position int) (domain.Block, error) {
	return s.store.Create(t, content, styles, position)
}

func (s *Session) UpdateBlock(id string, patch domain.BlockPatch) (domain.Block, error) {
	return s.store.Update(id, patch)
}

// RemoveBlock reports whether a block was removed. Unknown and locked ids
// are ignored.
func (s *Session) RemoveBlock(id string) bool {
	return s.store.Remove(id)
}

func (s *Session) ReorderBlock(id string, index int) bool {
	return s.store.Reorder(id, index)
}

func (s *Session) DuplicateBlock(id string) (domain.Block, bool) {
	return s.store.Duplicate(id)
}

func (s *Session) SetZOrder(id string, op editor.ZOp) bool {
	return s.store.SetZOrder(id, op)
}

func (s *Session) UpdateSettings(settings domain.PageSettings) {
	s.store.UpdateSettings(settings)
}

// ── Selection & clipboard ──────────────────────────────────

func (s *Session) Select(id string, multi bool) []string {
	return s.selection.Select(id, multi)
}

func (s *Session) ClearSelection() {
	s.selection.Clear()
}

func (s *Session) Selection() []string {
	return s.selection.IDs()
}

// Copy buffers the selected blocks into the shared clipboard and returns
// how many were copied.
func (s *Session) Copy() int {
	return s.svc.clip.Copy(s.store, s.selection.IDs())
}

// Paste appends the clipboard contents to this page as new blocks.
func (s *Session) Paste() ([]domain.Block, error) {
	return s.svc.clip.Paste(s.store)
}

// ── Geometry ───────────────────────────────────────────────

// Measure records rendered bounds used by Align and Distribute and returns
// how many boxes matched blocks on the page.
func (s *Session) Measure(boxes []geometry.Box) (int, error) {
	return s.geometry.Measure(boxes)
}

// Align aligns the selected blocks. Selections below the minimum are a no-op.
func (s *Session) Align(mode geometry.AlignMode) ([]geometry.Position, error) {
	return s.geometry.Align(s.selection.IDs(), mode)
}

func (s *Session) Distribute(mode geometry.DistributeMode) ([]geometry.Position, error) {
	return s.geometry.Distribute(s.selection.IDs(), mode)
}

// ── Autosave ───────────────────────────────────────────────

func (s *Session) SaveNow(ctx context.Context) error {
	return s.scheduler.SaveNow(ctx)
}

func (s *Session) Status() autosave.Status {
	return s.scheduler.Status()
}

func (s *Session) Debounce() time.Duration {
	return s.scheduler.Debounce()
}

// ── Versions ───────────────────────────────────────────────

func (s *Session) Snapshot(ctx context.Context, label, description, tag string) (domain.Version, error) {
	return s.versions.Snapshot(ctx, label, description, tag)
}

func (s *Session) ListVersions(ctx context.Context) ([]domain.Version, error) {
	return s.versions.List(ctx)
}

func (s *Session) Rollback(ctx context.Context, versionID string) (domain.PageState, error) {
	return s.versions.Rollback(ctx, versionID)
}
