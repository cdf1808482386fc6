// Package autosave debounces editor mutations into single persistence calls.
package autosave

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/editor"
)

type State string

const (
	StateClean  State = "clean"
	StateDirty  State = "dirty"
	StateSaving State = "saving"
	StateError  State = "error"
)

// Status is the externally visible autosave state.
type Status struct {
	State       State     `json:"state"`
	Pending     bool      `json:"pending"`
	LastSavedAt time.Time `json:"lastSavedAt,omitzero"`
	LastError   string    `json:"lastError,omitempty"`
}

// Timer is a cancellable scheduled task.
type Timer interface {
	Stop() bool
}

// Clock schedules the debounce timer.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }
func (realClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Source is the dirty-tracked state being saved.
type Source interface {
	Pending() domain.ChangeSet
	Ack(domain.ChangeSet)
	HasPending() bool
	Subscribe(editor.Listener) func()
}

// Saver persists one change set.
type Saver interface {
	SaveChanges(ctx context.Context, cs domain.ChangeSet) error
}

const (
	DefaultDebounce    = 800 * time.Millisecond
	DefaultSaveTimeout = 30 * time.Second
)

// Scheduler drives clean → dirty → saving → (clean | error). At most one
// save is in flight; mutations seen while saving start a new debounce cycle
// once it finishes.
type Scheduler struct {
	mu sync.Mutex

	src   Source
	saver Saver
	clock Clock
	log   *log.Logger

	debounce    time.Duration
	retry       time.Duration
	saveTimeout time.Duration
	onStatus    func(Status)

	state     State
	timer     Timer
	gen       uint64
	inflight  chan struct{}
	queued    bool
	suspended int
	lastSaved time.Time
	lastErr   error

	unsub func()
}

type Option func(*Scheduler)

func WithClock(c Clock) Option { return func(s *Scheduler) { s.clock = c } }
func WithDebounce(d time.Duration) Option { return func(s *Scheduler) { s.debounce = d } }
func WithRetryInterval(d time.Duration) Option { return func(s *Scheduler) { s.retry = d } }
func WithSaveTimeout(d time.Duration) Option { return func(s *Scheduler) { s.saveTimeout = d } }
func WithLogger(l *log.Logger) Option { return func(s *Scheduler) { s.log = l } }

// WithStatusFunc registers a callback invoked after every status change.
func WithStatusFunc(fn func(Status)) Option { return func(s *Scheduler) { s.onStatus = fn } }

// New starts observing src. Call Close to detach.
func New(src Source, saver Saver, opts ...Option) *Scheduler {
	s := &Scheduler{
		src:         src,
		saver:       saver,
		clock:       realClock{},
		log:         log.Default(),
		debounce:    DefaultDebounce,
		saveTimeout: DefaultSaveTimeout,
		state:       StateClean,
	}
	for _, o := range opts {
		o(s)
	}
	s.log = s.log.WithPrefix("autosave")
	if src.HasPending() {
		s.state = StateDirty
		s.arm(s.debounce)
	}
	s.unsub = src.Subscribe(s.onChange)
	return s
}

// Close detaches from the source and cancels the pending timer. It does not
// flush; call SaveNow first for that.
func (s *Scheduler) Close() {
	s.unsub()
	s.mu.Lock()
	s.stopTimer()
	s.mu.Unlock()
}

func (s *Scheduler) SetDebounce(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.debounce = d
}

func (s *Scheduler) Debounce() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.debounce
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Scheduler) statusLocked() Status {
	st := Status{State: s.state, Pending: s.src.HasPending(), LastSavedAt: s.lastSaved}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Scheduler) emit(st Status) {
	if s.onStatus != nil {
		s.onStatus(st)
	}
}

// ── timer ──────────────────────────────────────────────────

func (s *Scheduler) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.gen++
}

func (s *Scheduler) arm(d time.Duration) {
	s.stopTimer()
	if s.suspended > 0 {
		return
	}
	g := s.gen
	s.timer = s.clock.AfterFunc(d, func() { s.fire(g) })
}

func (s *Scheduler) fire(g uint64) {
	s.mu.Lock()
	if g != s.gen || s.suspended > 0 || s.inflight != nil {
		s.mu.Unlock()
		return
	}
	s.timer = nil
	cs, ok := s.beginLocked()
	st := s.statusLocked()
	s.mu.Unlock()

	s.emit(st)
	if ok {
		_ = s.run(context.Background(), cs)
	}
}

// ── transitions ────────────────────────────────────────────

func (s *Scheduler) onChange(c editor.Change) {
	if !c.Dirty {
		return
	}
	s.mu.Lock()
	// While saving, the change stays dirty in the source and run re-arms.
	if s.inflight == nil {
		s.state = StateDirty
		s.arm(s.debounce)
	} else {
		s.queued = true
	}
	st := s.statusLocked()
	s.mu.Unlock()
	s.emit(st)
}

// beginLocked moves to saving and snapshots the pending changes.
func (s *Scheduler) beginLocked() (domain.ChangeSet, bool) {
	cs := s.src.Pending()
	if cs.Empty() {
		s.state = StateClean
		return cs, false
	}
	s.state = StateSaving
	s.queued = false
	s.inflight = make(chan struct{})
	return cs, true
}

func (s *Scheduler) run(ctx context.Context, cs domain.ChangeSet) error {
	ctx, cancel := context.WithTimeout(ctx, s.saveTimeout)
	defer cancel()

	s.log.Debug("saving", "page", cs.PageID, "upserts", len(cs.Upserts), "deletes", len(cs.Deletes), "revision", cs.Revision)
	err := s.saver.SaveChanges(ctx, cs)
	if err != nil && domain.GetCode(err) == "" {
		err = domain.ErrPersistence(err, "save changes")
	}

	s.mu.Lock()
	close(s.inflight)
	s.inflight = nil
	if err != nil {
		s.state = StateError
		s.lastErr = err
		switch {
		case s.queued:
			s.arm(s.debounce)
		case s.retry > 0:
			s.arm(s.retry)
		}
		s.log.Warn("save failed", "page", cs.PageID, "err", err)
	} else {
		s.src.Ack(cs)
		s.lastSaved = s.clock.Now()
		s.lastErr = nil
		if s.src.HasPending() {
			s.state = StateDirty
			s.arm(s.debounce)
		} else {
			s.state = StateClean
		}
	}
	st := s.statusLocked()
	s.mu.Unlock()

	s.emit(st)
	return err
}

// SaveNow persists pending changes immediately, after any in-flight save.
func (s *Scheduler) SaveNow(ctx context.Context) error {
	for {
		s.mu.Lock()
		if ch := s.inflight; ch != nil {
			s.mu.Unlock()
			select {
			case <-ch:
				continue
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if s.suspended > 0 {
			s.mu.Unlock()
			return domain.NewError(domain.ErrCodeBusy, "autosave is suspended")
		}
		s.stopTimer()
		cs, ok := s.beginLocked()
		st := s.statusLocked()
		s.mu.Unlock()

		s.emit(st)
		if !ok {
			return nil
		}
		return s.run(ctx, cs)
	}
}

// Suspend cancels the pending timer, waits for an in-flight save and blocks
// further saves until resume is called.
func (s *Scheduler) Suspend(ctx context.Context) (resume func(), err error) {
	s.mu.Lock()
	s.suspended++
	s.stopTimer()
	ch := s.inflight
	s.mu.Unlock()

	var once sync.Once
	resume = func() { once.Do(s.resume) }

	if ch != nil {
		select {
		case <-ch:
		case <-ctx.Done():
			resume()
			return nil, ctx.Err()
		}
	}
	return resume, nil
}

func (s *Scheduler) resume() {
	s.mu.Lock()
	s.suspended--
	if s.suspended == 0 && s.inflight == nil {
		if s.src.HasPending() {
			if s.state == StateClean {
				s.state = StateDirty
			}
			s.arm(s.debounce)
		} else {
			s.state = StateClean
			s.lastErr = nil
		}
	}
	st := s.statusLocked()
	s.mu.Unlock()
	s.emit(st)
}
