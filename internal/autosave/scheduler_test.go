package autosave

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/editor"
)

// ── fakes ──────────────────────────────────────────────────

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	c       *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{c: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every timer that became due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	sort.Slice(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

type fakeSaver struct {
	mu      sync.Mutex
	calls   []domain.ChangeSet
	err     error
	started chan struct{}
	release chan struct{}
}

func (f *fakeSaver) SaveChanges(ctx context.Context, cs domain.ChangeSet) error {
	f.mu.Lock()
	f.calls = append(f.calls, cs)
	err, started, release := f.err, f.started, f.release
	f.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if release != nil {
		<-release
	}
	return err
}

func (f *fakeSaver) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSaver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSaver) call(i int) domain.ChangeSet {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

type fixture struct {
	store *editor.BlockStore
	clock *fakeClock
	saver *fakeSaver
	sched *Scheduler

	mu       sync.Mutex
	statuses []Status
}

const debounce = 500 * time.Millisecond

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		store: editor.NewBlockStore(domain.PageState{Page: domain.Page{ID: "p"}}),
		clock: newFakeClock(),
		saver: &fakeSaver{},
	}
	base := []Option{
		WithClock(f.clock),
		WithDebounce(debounce),
		WithStatusFunc(func(s Status) {
			f.mu.Lock()
			f.statuses = append(f.statuses, s)
			f.mu.Unlock()
		}),
	}
	f.sched = New(f.store, f.saver, append(base, opts...)...)
	t.Cleanup(f.sched.Close)
	return f
}

func (f *fixture) create(t *testing.T) domain.Block {
	t.Helper()
	b, err := f.store.Create(domain.BlockTypeText, nil, nil, -1)
	require.NoError(t, err)
	return b
}

func (f *fixture) states() []State {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []State
	for _, s := range f.statuses {
		if len(out) == 0 || out[len(out)-1] != s.State {
			out = append(out, s.State)
		}
	}
	return out
}

// ── tests ──────────────────────────────────────────────────

func TestRapidMutationsProduceOneSave(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		f.create(t)
		f.clock.Advance(100 * time.Millisecond)
	}
	assert.Equal(t, StateDirty, f.sched.Status().State)

	f.clock.Advance(debounce - 101*time.Millisecond)
	assert.Equal(t, 0, f.saver.callCount())

	f.clock.Advance(time.Millisecond)
	require.Equal(t, 1, f.saver.callCount())
	assert.Len(t, f.saver.call(0).Upserts, 5)

	st := f.sched.Status()
	assert.Equal(t, StateClean, st.State)
	assert.False(t, st.Pending)
	assert.Equal(t, f.clock.Now(), st.LastSavedAt)
	assert.Equal(t, []State{StateDirty, StateSaving, StateClean}, f.states())
}

func TestFailureKeepsChangesDirty(t *testing.T) {
	f := newFixture(t)
	f.saver.setErr(errors.New("connection refused"))
	a := f.create(t)
	f.clock.Advance(debounce)

	st := f.sched.Status()
	assert.Equal(t, StateError, st.State)
	assert.True(t, st.Pending)
	assert.Contains(t, st.LastError, "connection refused")
	assert.True(t, f.store.HasPending())

	// no retry interval configured: nothing happens until the next mutation
	f.clock.Advance(time.Hour)
	assert.Equal(t, 1, f.saver.callCount())

	f.saver.setErr(nil)
	b := f.create(t)
	assert.Equal(t, StateDirty, f.sched.Status().State)
	f.clock.Advance(debounce)

	require.Equal(t, 2, f.saver.callCount())
	var ids []string
	for _, u := range f.saver.call(1).Upserts {
		ids = append(ids, u.ID)
	}
	assert.ElementsMatch(t, []string{a.ID, b.ID}, ids)
	st = f.sched.Status()
	assert.Equal(t, StateClean, st.State)
	assert.Empty(t, st.LastError)
}

func TestRetryInterval(t *testing.T) {
	f := newFixture(t, WithRetryInterval(5*time.Second))
	f.saver.setErr(errors.New("timeout"))
	f.create(t)
	f.clock.Advance(debounce)
	require.Equal(t, StateError, f.sched.Status().State)

	f.saver.setErr(nil)
	f.clock.Advance(5 * time.Second)
	assert.Equal(t, 2, f.saver.callCount())
	assert.Equal(t, StateClean, f.sched.Status().State)
}

func TestSaveErrorsAreCoded(t *testing.T) {
	f := newFixture(t)
	f.saver.setErr(errors.New("disk full"))
	f.create(t)
	err := f.sched.SaveNow(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsCode(err, domain.ErrCodePersistence))
}

func TestMutationDuringSaveStartsNewCycle(t *testing.T) {
	f := newFixture(t)
	f.saver.started = make(chan struct{})
	f.saver.release = make(chan struct{})
	a := f.create(t)

	done := make(chan error, 1)
	go func() { done <- f.sched.SaveNow(context.Background()) }()
	<-f.saver.started

	b := f.create(t)
	assert.Equal(t, StateSaving, f.sched.Status().State)

	f.saver.mu.Lock()
	f.saver.started = nil
	f.saver.mu.Unlock()
	close(f.saver.release)
	require.NoError(t, <-done)

	first := f.saver.call(0)
	require.Len(t, first.Upserts, 1)
	assert.Equal(t, a.ID, first.Upserts[0].ID)
	assert.Equal(t, StateDirty, f.sched.Status().State)

	f.clock.Advance(debounce)
	require.Equal(t, 2, f.saver.callCount())
	second := f.saver.call(1)
	require.Len(t, second.Upserts, 1)
	assert.Equal(t, b.ID, second.Upserts[0].ID)
	assert.Equal(t, StateClean, f.sched.Status().State)
}

func TestSaveNowBypassesDebounce(t *testing.T) {
	f := newFixture(t)
	f.create(t)
	require.NoError(t, f.sched.SaveNow(context.Background()))
	assert.Equal(t, 1, f.saver.callCount())

	// the cancelled debounce timer does not fire a second save
	f.clock.Advance(debounce)
	assert.Equal(t, 1, f.saver.callCount())

	require.NoError(t, f.sched.SaveNow(context.Background()))
	assert.Equal(t, 1, f.saver.callCount())
}

func TestSuspendAwaitsInflightSave(t *testing.T) {
	f := newFixture(t)
	f.saver.started = make(chan struct{}, 1)
	f.saver.release = make(chan struct{})
	f.create(t)

	go func() { _ = f.sched.SaveNow(context.Background()) }()
	<-f.saver.started

	suspended := make(chan func(), 1)
	go func() {
		resume, err := f.sched.Suspend(context.Background())
		if err == nil {
			suspended <- resume
		}
	}()
	select {
	case <-suspended:
		t.Fatal("suspend returned while a save was in flight")
	case <-time.After(20 * time.Millisecond):
	}
	close(f.saver.release)
	resume := <-suspended

	// mutations while suspended do not save
	f.create(t)
	f.clock.Advance(time.Minute)
	assert.Equal(t, 1, f.saver.callCount())
	err := f.sched.SaveNow(context.Background())
	assert.True(t, domain.IsCode(err, domain.ErrCodeBusy))

	resume()
	resume()
	f.clock.Advance(debounce)
	assert.Equal(t, 2, f.saver.callCount())
}

func TestResumeAfterReplaceIsClean(t *testing.T) {
	f := newFixture(t)
	f.create(t)
	resume, err := f.sched.Suspend(context.Background())
	require.NoError(t, err)

	f.store.Replace(domain.PageState{Page: domain.Page{ID: "p"}})
	resume()

	assert.Equal(t, StateClean, f.sched.Status().State)
	f.clock.Advance(time.Minute)
	assert.Equal(t, 0, f.saver.callCount())
}

func TestSetDebounce(t *testing.T) {
	f := newFixture(t)
	f.sched.SetDebounce(2 * time.Second)
	assert.Equal(t, 2*time.Second, f.sched.Debounce())
	f.create(t)
	f.clock.Advance(debounce)
	assert.Equal(t, 0, f.saver.callCount())
	f.clock.Advance(2 * time.Second)
	assert.Equal(t, 1, f.saver.callCount())
}
