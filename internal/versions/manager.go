// Package versions snapshots page state and rolls it back.
package versions

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/editor"
)

type SnapshotState string

const (
	SnapshotIdle      SnapshotState = "idle"
	SnapshotCapturing SnapshotState = "capturing"
	SnapshotPersisted SnapshotState = "persisted"
	SnapshotFailed    SnapshotState = "failed"
)

type RollbackState string

const (
	RollbackIdle    RollbackState = "idle"
	RollbackLoading RollbackState = "loading"
	RollbackApplied RollbackState = "applied"
	RollbackFailed  RollbackState = "failed"
)

const (
	EventCreated    = "versions:created"
	EventRolledBack = "versions:rolled-back"
)

// Gateway is the persistence the manager needs.
type Gateway interface {
	domain.VersionGateway
	ReplacePage(ctx context.Context, pageID string, state domain.PageState) error
}

// Suspender pauses autosave around a rollback.
type Suspender interface {
	Suspend(ctx context.Context) (resume func(), err error)
}

// Guard serialises version work per page across sessions.
type Guard interface {
	TryLock(key string) bool
	Unlock(key string)
}

// Manager captures and restores snapshots of one open page.
type Manager struct {
	store    *editor.BlockStore
	gw       Gateway
	autosave Suspender
	guard    Guard
	log      *log.Logger
	onEvent  func(event string, data any)
	now      func() time.Time

	busy sync.Mutex

	mu              sync.Mutex
	snapshotState   SnapshotState
	rollbackState   RollbackState
	lastSnapshotRev uint64
}

type Option func(*Manager)

func WithSuspender(s Suspender) Option { return func(m *Manager) { m.autosave = s } }
func WithGuard(g Guard) Option { return func(m *Manager) { m.guard = g } }
func WithLogger(l *log.Logger) Option { return func(m *Manager) { m.log = l } }

// WithEventFunc receives EventCreated and EventRolledBack notifications.
func WithEventFunc(fn func(event string, data any)) Option {
	return func(m *Manager) { m.onEvent = fn }
}

func New(store *editor.BlockStore, gw Gateway, opts ...Option) *Manager {
	m := &Manager{
		store:           store,
		gw:              gw,
		log:             log.Default(),
		now:             time.Now,
		snapshotState:   SnapshotIdle,
		rollbackState:   RollbackIdle,
		lastSnapshotRev: store.Revision(),
	}
	for _, o := range opts {
		o(m)
	}
	m.log = m.log.WithPrefix("versions")
	return m
}

func (m *Manager) SnapshotState() SnapshotState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotState
}

func (m *Manager) RollbackState() RollbackState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbackState
}

// Changed reports whether the store moved since the last snapshot or rollback.
func (m *Manager) Changed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.store.Revision() != m.lastSnapshotRev
}

func (m *Manager) setSnapshot(s SnapshotState) {
	m.mu.Lock()
	m.snapshotState = s
	m.mu.Unlock()
}

func (m *Manager) setRollback(s RollbackState) {
	m.mu.Lock()
	m.rollbackState = s
	m.mu.Unlock()
}

func (m *Manager) emit(event string, data any) {
	if m.onEvent != nil {
		m.onEvent(event, data)
	}
}

// acquire takes the per-page busy lock, failing fast if it is held.
func (m *Manager) acquire(op string) (release func(), err error) {
	pageID := m.store.Page().ID
	if !m.busy.TryLock() {
		return nil, domain.NewError(domain.ErrCodeBusy, "%s: another version operation is running on page %s", op, pageID)
	}
	if m.guard != nil && !m.guard.TryLock(pageID) {
		m.busy.Unlock()
		return nil, domain.NewError(domain.ErrCodeBusy, "%s: another version operation is running on page %s", op, pageID)
	}
	return func() {
		if m.guard != nil {
			m.guard.Unlock(pageID)
		}
		m.busy.Unlock()
	}, nil
}

// Snapshot persists an immutable copy of the current page. An empty label
// becomes v<N+1>, N being the number of existing versions.
func (m *Manager) Snapshot(ctx context.Context, label, description, tag string) (domain.Version, error) {
	release, err := m.acquire("snapshot")
	if err != nil {
		return domain.Version{}, err
	}
	defer release()

	m.setSnapshot(SnapshotCapturing)
	rev := m.store.Revision()
	state := m.store.State()
	pageID := state.Page.ID

	if label == "" {
		existing, err := m.gw.ListVersions(ctx, pageID)
		if err != nil {
			m.setSnapshot(SnapshotFailed)
			return domain.Version{}, wrapPersistence(err, "list versions")
		}
		label = fmt.Sprintf("v%d", len(existing)+1)
	}

	id, err := m.gw.CreateVersion(ctx, pageID, label, description, tag, state)
	if err != nil {
		m.setSnapshot(SnapshotFailed)
		m.log.Warn("snapshot failed", "page", pageID, "err", err)
		return domain.Version{}, wrapPersistence(err, "create version")
	}

	m.mu.Lock()
	m.snapshotState = SnapshotPersisted
	m.lastSnapshotRev = rev
	m.mu.Unlock()

	v := domain.Version{
		ID:          id,
		PageID:      pageID,
		Version:     label,
		Description: description,
		Tag:         tag,
		CreatedAt:   m.createdAt(ctx, pageID, id),
		State:       &state,
	}
	m.log.Info("snapshot created", "page", pageID, "version", label, "blocks", len(state.Blocks))
	m.emit(EventCreated, v)
	return v, nil
}

// createdAt reads the timestamp the gateway stored for version id, so the
// returned Version matches later List results. The local clock is used only
// when the row cannot be read back.
func (m *Manager) createdAt(ctx context.Context, pageID, id string) time.Time {
	vs, err := m.gw.ListVersions(ctx, pageID)
	if err != nil {
		m.log.Warn("reading version timestamp", "page", pageID, "version", id, "err", err)
		return m.now()
	}
	for _, v := range vs {
		if v.ID == id {
			return v.CreatedAt
		}
	}
	m.log.Warn("created version missing from list", "page", pageID, "version", id)
	return m.now()
}

// List returns the page's versions newest first.
func (m *Manager) List(ctx context.Context) ([]domain.Version, error) {
	vs, err := m.gw.ListVersions(ctx, m.store.Page().ID)
	if err != nil {
		return nil, wrapPersistence(err, "list versions")
	}
	SortNewestFirst(vs)
	return vs, nil
}

// SortNewestFirst orders versions by CreatedAt descending.
func SortNewestFirst(vs []domain.Version) {
	sort.SliceStable(vs, func(i, j int) bool {
		return vs[i].CreatedAt.After(vs[j].CreatedAt)
	})
}

// Rollback makes version the current state of the page. Autosave is
// suspended for the duration so rollback is the last writer. On any failure
// the store is left untouched.
func (m *Manager) Rollback(ctx context.Context, versionID string) (domain.PageState, error) {
	release, err := m.acquire("rollback")
	if err != nil {
		return domain.PageState{}, err
	}
	defer release()

	m.setRollback(RollbackLoading)
	fail := func(err error, format string, args ...any) (domain.PageState, error) {
		m.setRollback(RollbackFailed)
		m.log.Warn("rollback failed", "version", versionID, "err", err)
		return domain.PageState{}, domain.WrapError(domain.ErrCodeRollback, err, format, args...)
	}

	if m.autosave != nil {
		resume, err := m.autosave.Suspend(ctx)
		if err != nil {
			return fail(err, "suspend autosave")
		}
		defer resume()
	}

	loaded, err := m.gw.LoadVersion(ctx, versionID)
	if err != nil {
		return fail(err, "load version %s", versionID)
	}
	if loaded == nil {
		return fail(domain.ErrNotFound("version", versionID), "load version %s", versionID)
	}

	page := m.store.Page()
	if loaded.Page.ID != "" && loaded.Page.ID != page.ID {
		return fail(domain.ErrValidation("version belongs to page %s", loaded.Page.ID), "version %s", versionID)
	}
	next := loaded.Clone()
	next.Page = page
	for i := range next.Blocks {
		next.Blocks[i].PageID = page.ID
	}
	domain.SortBlocks(next.Blocks)
	if err := next.Validate(); err != nil {
		return fail(err, "version %s", versionID)
	}

	if err := m.gw.ReplacePage(ctx, page.ID, next); err != nil {
		return fail(err, "persist version %s", versionID)
	}

	m.store.Replace(next)
	m.mu.Lock()
	m.rollbackState = RollbackApplied
	m.lastSnapshotRev = m.store.Revision()
	m.mu.Unlock()

	m.log.Info("rolled back", "page", page.ID, "version", versionID, "blocks", len(next.Blocks))
	m.emit(EventRolledBack, map[string]any{"pageId": page.ID, "versionId": versionID})
	return next.Clone(), nil
}

func wrapPersistence(err error, op string) error {
	if domain.GetCode(err) != "" {
		return err
	}
	return domain.ErrPersistence(err, op)
}
