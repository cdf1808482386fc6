package editor

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sitebuilder/internal/domain"
)

// ─────────────────────────────────────────────────────────────
// BlockStore — the single mutable owner of a page's blocks
// ─────────────────────────────────────────────────────────────

type ChangeKind string

const (
	ChangeCreated   ChangeKind = "created"
	ChangeUpdated   ChangeKind = "updated"
	ChangeRemoved   ChangeKind = "removed"
	ChangeReordered ChangeKind = "reordered"
	ChangeSettings  ChangeKind = "settings"
	ChangeReplaced  ChangeKind = "replaced"
)

// Change describes one committed mutation (or batch) of the store.
type Change struct {
	Kind     ChangeKind
	IDs      []string
	Revision uint64
	// Dirty is false only for Replace, which leaves the store clean.
	Dirty bool
}

// Listener observes committed changes. It runs after the store lock is
// released, so it may read the store.
type Listener func(Change)

// ZOp is a stacking operation.
type ZOp string

const (
	ZFront    ZOp = "front"
	ZBack     ZOp = "back"
	ZForward  ZOp = "forward"
	ZBackward ZOp = "backward"
)

// NewBlock describes a block to insert. Position < 0 or past the end appends.
type NewBlock struct {
	Type             domain.BlockType
	Content          domain.Content
	Styles           domain.Styles
	ResponsiveStyles domain.ResponsiveStyles
	Position         int
}

// BlockStore owns the ordered blocks of the open page and tracks which of
// them still need persisting.
type BlockStore struct {
	mu       sync.Mutex
	page     domain.Page
	settings domain.PageSettings
	blocks   []*domain.Block // sorted by Order
	index    map[string]*domain.Block

	revision    uint64
	dirty       map[string]uint64 // block id → revision of its latest change
	deleted     map[string]uint64
	settingsRev uint64

	listeners map[int]Listener
	nextLID   int

	newID func() string
	now   func() time.Time
}

type StoreOption func(*BlockStore)

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) StoreOption {
	return func(s *BlockStore) { s.newID = fn }
}

// WithNow replaces the timestamp source.
func WithNow(fn func() time.Time) StoreOption {
	return func(s *BlockStore) { s.now = fn }
}

// NewBlockStore creates a clean store holding state.
func NewBlockStore(state domain.PageState, opts ...StoreOption) *BlockStore {
	s := &BlockStore{
		listeners: map[int]Listener{},
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	s.load(state)
	return s
}

func (s *BlockStore) load(state domain.PageState) {
	st := state.Clone()
	domain.SortBlocks(st.Blocks)
	s.page = st.Page
	s.settings = st.Settings
	s.blocks = make([]*domain.Block, len(st.Blocks))
	s.index = make(map[string]*domain.Block, len(st.Blocks))
	for i := range st.Blocks {
		b := st.Blocks[i]
		b.PageID = st.Page.ID
		s.blocks[i] = &b
		s.index[b.ID] = &b
	}
	s.dirty = map[string]uint64{}
	s.deleted = map[string]uint64{}
	s.settingsRev = 0
}

// Subscribe registers l and returns a func that removes it.
func (s *BlockStore) Subscribe(l Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextLID
	s.nextLID++
	s.listeners[id] = l
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// commit is called with s.mu held; it returns the notification to send once
// the lock is released.
func (s *BlockStore) commit(kind ChangeKind, ids []string, dirty bool) func() {
	ls := make([]Listener, 0, len(s.listeners))
	keys := make([]int, 0, len(s.listeners))
	for k := range s.listeners {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	for _, k := range keys {
		ls = append(ls, s.listeners[k])
	}
	ch := Change{Kind: kind, IDs: ids, Revision: s.revision, Dirty: dirty}
	return func() {
		for _, l := range ls {
			l(ch)
		}
	}
}

func (s *BlockStore) markDirty(ids ...string) {
	s.revision++
	for _, id := range ids {
		s.dirty[id] = s.revision
		delete(s.deleted, id)
	}
}

// renumber restores contiguous Order values and returns ids whose Order moved.
func (s *BlockStore) renumber() []string {
	var moved []string
	for i, b := range s.blocks {
		if b.Order != i {
			b.Order = i
			moved = append(moved, b.ID)
		}
	}
	return moved
}

func (s *BlockStore) maxZ() int {
	z := -1
	for _, b := range s.blocks {
		if b.ZOrder > z {
			z = b.ZOrder
		}
	}
	return z
}

func (s *BlockStore) insertAt(b *domain.Block, pos int) {
	if pos < 0 || pos > len(s.blocks) {
		pos = len(s.blocks)
	}
	s.blocks = append(s.blocks, nil)
	copy(s.blocks[pos+1:], s.blocks[pos:])
	s.blocks[pos] = b
	s.index[b.ID] = b
}

func (s *BlockStore) position(id string) int {
	for i, b := range s.blocks {
		if b.ID == id {
			return i
		}
	}
	return -1
}

// ── Reads ──────────────────────────────────────────────────

func (s *BlockStore) Page() domain.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

func (s *BlockStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.blocks)
}

func (s *BlockStore) Has(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.index[id]
	return ok
}

// Get returns a copy of the block with id.
func (s *BlockStore) Get(id string) (domain.Block, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.index[id]
	if !ok {
		return domain.Block{}, false
	}
	return b.Clone(), true
}

// Blocks returns copies of all blocks in page order.
func (s *BlockStore) Blocks() []domain.Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotBlocks()
}

func (s *BlockStore) snapshotBlocks() []domain.Block {
	out := make([]domain.Block, len(s.blocks))
	for i, b := range s.blocks {
		out[i] = b.Clone()
	}
	return out
}

// State returns a deep copy of the whole page.
func (s *BlockStore) State() domain.PageState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.PageState{Page: s.page, Settings: s.settings, Blocks: s.snapshotBlocks()}
}

func (s *BlockStore) Settings() domain.PageSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Revision is the counter bumped by every dirtying mutation.
func (s *BlockStore) Revision() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.revision
}

// ── Mutations ──────────────────────────────────────────────

// Create inserts a new block at position.
func (s *BlockStore) Create(t domain.BlockType, content domain.Content, styles domain.Styles, position int) (domain.Block, error) {
	return s.CreateBlock(NewBlock{Type: t, Content: content, Styles: styles, Position: position})
}

// CreateBlock inserts nb with a fresh id. Invalid content leaves the store unchanged.
func (s *BlockStore) CreateBlock(nb NewBlock) (domain.Block, error) {
	content := nb.Content
	if content == nil {
		c, err := domain.NewContent(nb.Type)
		if err != nil {
			return domain.Block{}, err
		}
		content = c
	}
	now := s.now()
	b := &domain.Block{
		Type:             nb.Type,
		Content:          content.Clone(),
		Styles:           nb.Styles.Clone(),
		ResponsiveStyles: nb.ResponsiveStyles.Clone(),
		Visible:          true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if b.Styles == nil {
		b.Styles = domain.Styles{}
	}
	if err := b.Validate(); err != nil {
		return domain.Block{}, err
	}

	s.mu.Lock()
	b.ID = s.newID()
	b.PageID = s.page.ID
	b.ZOrder = s.maxZ() + 1
	s.insertAt(b, nb.Position)
	ids := append([]string{b.ID}, s.renumber()...)
	s.markDirty(ids...)
	out := b.Clone()
	notify := s.commit(ChangeCreated, ids, true)
	s.mu.Unlock()

	notify()
	return out, nil
}

// Update applies patch to block id. It fails with NotFound for unknown ids
// and Locked when the block is locked and the patch does more than unlock it.
func (s *BlockStore) Update(id string, patch domain.BlockPatch) (domain.Block, error) {
	s.mu.Lock()
	b, err := s.patchLocked(id, patch)
	if err != nil {
		s.mu.Unlock()
		return domain.Block{}, err
	}
	if patch.IsEmpty() {
		out := b.Clone()
		s.mu.Unlock()
		return out, nil
	}
	s.markDirty(id)
	out := b.Clone()
	notify := s.commit(ChangeUpdated, []string{id}, true)
	s.mu.Unlock()

	notify()
	return out, nil
}

// patchLocked validates and applies patch in place. Caller holds s.mu.
func (s *BlockStore) patchLocked(id string, patch domain.BlockPatch) (*domain.Block, error) {
	b, ok := s.index[id]
	if !ok {
		return nil, domain.ErrNotFound("block", id)
	}
	if patch.IsEmpty() {
		return b, nil
	}
	if b.Locked && !patch.OnlyUnlocks() {
		return nil, domain.NewError(domain.ErrCodeLocked, "block %s is locked", id)
	}
	next, err := patch.Apply(*b)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = s.now()
	*b = next
	return b, nil
}

// BlockUpdate pairs a block id with a patch for UpdateBatch.
type BlockUpdate struct {
	ID    string
	Patch domain.BlockPatch
}

// UpdateBatch applies all updates or none, then notifies once.
func (s *BlockStore) UpdateBatch(updates []BlockUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	s.mu.Lock()
	for _, u := range updates {
		b, ok := s.index[u.ID]
		if !ok {
			s.mu.Unlock()
			return domain.ErrNotFound("block", u.ID)
		}
		if b.Locked && !u.Patch.OnlyUnlocks() && !u.Patch.IsEmpty() {
			s.mu.Unlock()
			return domain.NewError(domain.ErrCodeLocked, "block %s is locked", u.ID)
		}
		if _, err := u.Patch.Apply(*b); err != nil {
			s.mu.Unlock()
			return err
		}
	}
	ids := make([]string, 0, len(updates))
	for _, u := range updates {
		if u.Patch.IsEmpty() {
			continue
		}
		if _, err := s.patchLocked(u.ID, u.Patch); err != nil {
			// validated above
			s.mu.Unlock()
			return err
		}
		ids = append(ids, u.ID)
	}
	if len(ids) == 0 {
		s.mu.Unlock()
		return nil
	}
	s.markDirty(ids...)
	notify := s.commit(ChangeUpdated, ids, true)
	s.mu.Unlock()

	notify()
	return nil
}

// Remove deletes block id. Unknown or locked ids are a no-op.
func (s *BlockStore) Remove(id string) bool {
	s.mu.Lock()
	b, ok := s.index[id]
	if !ok || b.Locked {
		s.mu.Unlock()
		return false
	}
	pos := s.position(id)
	s.blocks = append(s.blocks[:pos], s.blocks[pos+1:]...)
	delete(s.index, id)
	moved := s.renumber()
	s.markDirty(moved...)
	delete(s.dirty, id)
	s.deleted[id] = s.revision
	notify := s.commit(ChangeRemoved, []string{id}, true)
	s.mu.Unlock()

	notify()
	return true
}

// Reorder moves block id to newIndex (clamped) and renumbers siblings.
func (s *BlockStore) Reorder(id string, newIndex int) bool {
	s.mu.Lock()
	b, ok := s.index[id]
	if !ok || b.Locked {
		s.mu.Unlock()
		return false
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex > len(s.blocks)-1 {
		newIndex = len(s.blocks) - 1
	}
	pos := s.position(id)
	if pos == newIndex {
		s.mu.Unlock()
		return false
	}
	s.blocks = append(s.blocks[:pos], s.blocks[pos+1:]...)
	s.insertAt(b, newIndex)
	moved := s.renumber()
	s.markDirty(moved...)
	notify := s.commit(ChangeReordered, moved, true)
	s.mu.Unlock()

	notify()
	return true
}

// Duplicate inserts a visible, unlocked copy of id right after it.
func (s *BlockStore) Duplicate(id string) (domain.Block, bool) {
	s.mu.Lock()
	src, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return domain.Block{}, false
	}
	now := s.now()
	dup := src.Clone()
	dup.ID = s.newID()
	dup.Visible = true
	dup.Locked = false
	dup.ZOrder = s.maxZ() + 1
	dup.CreatedAt = now
	dup.UpdatedAt = now
	s.insertAt(&dup, s.position(id)+1)
	ids := append([]string{dup.ID}, s.renumber()...)
	s.markDirty(ids...)
	out := dup.Clone()
	notify := s.commit(ChangeCreated, ids, true)
	s.mu.Unlock()

	notify()
	return out, true
}

// SetZOrder restacks id and renumbers every sibling's ZOrder to 0..n-1.
func (s *BlockStore) SetZOrder(id string, op ZOp) bool {
	s.mu.Lock()
	b, ok := s.index[id]
	if !ok || b.Locked {
		s.mu.Unlock()
		return false
	}
	stack := make([]*domain.Block, len(s.blocks))
	copy(stack, s.blocks)
	sort.SliceStable(stack, func(i, j int) bool {
		if stack[i].ZOrder != stack[j].ZOrder {
			return stack[i].ZOrder < stack[j].ZOrder
		}
		return stack[i].Order < stack[j].Order
	})
	at := 0
	for i, x := range stack {
		if x.ID == id {
			at = i
			break
		}
	}
	last := len(stack) - 1
	switch op {
	case ZFront:
		stack = append(append(stack[:at:at], stack[at+1:]...), b)
	case ZBack:
		stack = append([]*domain.Block{b}, append(stack[:at:at], stack[at+1:]...)...)
	case ZForward:
		if at < last {
			stack[at], stack[at+1] = stack[at+1], stack[at]
		}
	case ZBackward:
		if at > 0 {
			stack[at], stack[at-1] = stack[at-1], stack[at]
		}
	default:
		s.mu.Unlock()
		return false
	}
	var changed []string
	for i, x := range stack {
		if x.ZOrder != i {
			x.ZOrder = i
			changed = append(changed, x.ID)
		}
	}
	if len(changed) == 0 {
		s.mu.Unlock()
		return false
	}
	s.markDirty(changed...)
	notify := s.commit(ChangeUpdated, changed, true)
	s.mu.Unlock()

	notify()
	return true
}

// UpdateSettings replaces the page-level settings.
func (s *BlockStore) UpdateSettings(settings domain.PageSettings) {
	s.mu.Lock()
	if s.settings == settings {
		s.mu.Unlock()
		return
	}
	s.settings = settings
	s.revision++
	s.settingsRev = s.revision
	notify := s.commit(ChangeSettings, nil, true)
	s.mu.Unlock()

	notify()
}

// Replace swaps in state wholesale and leaves the store clean. Used when a
// page is (re)loaded or a rollback has been persisted.
func (s *BlockStore) Replace(state domain.PageState) {
	s.mu.Lock()
	old := make([]string, 0, len(s.blocks))
	for _, b := range s.blocks {
		old = append(old, b.ID)
	}
	s.load(state)
	s.revision++
	notify := s.commit(ChangeReplaced, old, false)
	s.mu.Unlock()

	notify()
}

// ── Dirty tracking ─────────────────────────────────────────

// HasPending reports whether any change awaits persistence.
func (s *BlockStore) HasPending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.dirty) > 0 || len(s.deleted) > 0 || s.settingsRev > 0
}

// Pending collects every unsaved change as of the current revision.
func (s *BlockStore) Pending() domain.ChangeSet {
	s.mu.Lock()
	defer s.mu.Unlock()
	cs := domain.ChangeSet{PageID: s.page.ID, Revision: s.revision}
	for _, b := range s.blocks {
		if _, ok := s.dirty[b.ID]; ok {
			cs.Upserts = append(cs.Upserts, b.Clone())
		}
	}
	for id := range s.deleted {
		cs.Deletes = append(cs.Deletes, id)
	}
	sort.Strings(cs.Deletes)
	if s.settingsRev > 0 {
		st := s.settings
		cs.Settings = &st
	}
	return cs
}

// Ack clears the changes in cs that have not been superseded since it was taken.
func (s *BlockStore) Ack(cs domain.ChangeSet) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range cs.Upserts {
		if rev, ok := s.dirty[b.ID]; ok && rev <= cs.Revision {
			delete(s.dirty, b.ID)
		}
	}
	for _, id := range cs.Deletes {
		if rev, ok := s.deleted[id]; ok && rev <= cs.Revision {
			delete(s.deleted, id)
		}
	}
	if cs.Settings != nil && s.settingsRev <= cs.Revision {
		s.settingsRev = 0
	}
}
