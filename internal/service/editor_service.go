package service

import (
	"context"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"sitebuilder/internal/autosave"
	"sitebuilder/internal/domain"
	"sitebuilder/internal/editor"
	"sitebuilder/internal/geometry"
	"sitebuilder/internal/versions"
)

// ─────────────────────────────────────────────────────────────
// Editor Service — open page sessions over a persistence gateway
// ─────────────────────────────────────────────────────────────

// Options tune every session the service opens.
type Options struct {
	Debounce      time.Duration
	RetryInterval time.Duration
	SaveTimeout   time.Duration
	// AutoSnapshot is a cron expression; empty disables scheduled snapshots.
	AutoSnapshot string
	// Clock overrides the autosave timer source (tests).
	Clock autosave.Clock
}

// EditorService owns the open sessions and the clipboard they share.
type EditorService struct {
	gw      domain.Gateway
	emitter EventEmitter
	log     *log.Logger
	locks   pageLocks
	clip    *editor.Clipboard

	mu       sync.Mutex
	opts     Options
	sessions map[string]*Session
}

// NewEditorService creates an EditorService. emitter may be nil.
func NewEditorService(gw domain.Gateway, emitter EventEmitter, opts Options, l *log.Logger) *EditorService {
	if l == nil {
		l = log.Default()
	}
	if emitter == nil {
		emitter = LogEmitter{Log: l}
	}
	if opts.Debounce <= 0 {
		opts.Debounce = autosave.DefaultDebounce
	}
	return &EditorService{
		gw:       gw,
		emitter:  emitter,
		log:      l.WithPrefix("editor"),
		clip:     editor.NewClipboard(),
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// Clipboard is shared by every session, so blocks can be copied across pages.
func (s *EditorService) Clipboard() *editor.Clipboard { return s.clip }

// Open loads pageID and starts its session. Opening an already open page
// returns the existing session.
func (s *EditorService) Open(ctx context.Context, pageID string) (*Session, error) {
	if pageID == "" {
		return nil, domain.ErrValidation("page id is required")
	}
	s.mu.Lock()
	if sess, ok := s.sessions[pageID]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	opts := s.opts
	s.mu.Unlock()

	state, err := s.gw.LoadPage(ctx, pageID)
	if err != nil {
		return nil, domain.ErrPersistence(err, "open page "+pageID)
	}
	if state.Page.ID == "" {
		state.Page.ID = pageID
	}

	sess, err := s.newSession(ctx, *state, opts)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if existing, ok := s.sessions[pageID]; ok {
		s.mu.Unlock()
		sess.shutdown()
		return existing, nil
	}
	s.sessions[pageID] = sess
	s.mu.Unlock()

	s.log.Info("page opened", "page", pageID, "blocks", sess.store.Len())
	return sess, nil
}

// Session returns the open session for pageID.
func (s *EditorService) Session(pageID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[pageID]
	if !ok {
		return nil, domain.NewError(domain.ErrCodeNotFound, "page %s is not open", pageID)
	}
	return sess, nil
}

// Pages lists the open page ids.
func (s *EditorService) Pages() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
	}
	return out
}

// Close flushes pending changes and ends the session. The session is
// removed even when the final save fails; the error is returned.
func (s *EditorService) Close(ctx context.Context, pageID string) error {
	s.mu.Lock()
	sess, ok := s.sessions[pageID]
	delete(s.sessions, pageID)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	err := sess.scheduler.SaveNow(ctx)
	sess.shutdown()
	if err != nil {
		s.log.Error("final save failed", "page", pageID, "err", err)
		return err
	}
	s.log.Info("page closed", "page", pageID)
	return nil
}

// CloseAll closes every session concurrently and waits for running version
// operations. Every session is closed even when one fails; the first error
// is returned.
func (s *EditorService) CloseAll(ctx context.Context) error {
	var g errgroup.Group
	for _, id := range s.Pages() {
		g.Go(func() error { return s.Close(ctx, id) })
	}
	err := g.Wait()
	s.locks.WaitAll(ctx)
	return err
}

// SetDebounce applies d to open sessions and to sessions opened later.
func (s *EditorService) SetDebounce(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.opts.Debounce = d
	open := make([]*Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		open = append(open, sess)
	}
	s.mu.Unlock()
	for _, sess := range open {
		sess.scheduler.SetDebounce(d)
	}
	s.log.Info("autosave debounce updated", "debounce", d, "sessions", len(open))
}

func (s *EditorService) newSession(ctx context.Context, state domain.PageState, opts Options) (*Session, error) {
	pageID := state.Page.ID
	ectx := context.WithoutCancel(ctx)
	l := s.log.With("page", pageID)

	sess := &Session{svc: s, pageID: pageID}
	sess.store = editor.NewBlockStore(state)
	sess.geometry = geometry.NewEngine(sess.store, geometry.NewMeasurements(), geometry.WithLogger(l))
	sess.unsub = sess.store.Subscribe(func(c editor.Change) {
		sess.geometry.Forget(c)
		s.emitter.Emit(ectx, EventBlocksChanged, BlocksChanged{
			PageID: pageID, Kind: c.Kind, IDs: c.IDs, Revision: c.Revision,
		})
	})
	sess.selection = editor.NewSelection(sess.store, func(ids []string) {
		s.emitter.Emit(ectx, EventSelectionChanged, SelectionChanged{PageID: pageID, IDs: ids})
	})

	aopts := []autosave.Option{
		autosave.WithDebounce(opts.Debounce),
		autosave.WithLogger(l),
		autosave.WithStatusFunc(func(st autosave.Status) {
			s.emitter.Emit(ectx, EventAutosaveStatus, StatusChanged{PageID: pageID, Status: st})
		}),
	}
	if opts.RetryInterval > 0 {
		aopts = append(aopts, autosave.WithRetryInterval(opts.RetryInterval))
	}
	if opts.SaveTimeout > 0 {
		aopts = append(aopts, autosave.WithSaveTimeout(opts.SaveTimeout))
	}
	if opts.Clock != nil {
		aopts = append(aopts, autosave.WithClock(opts.Clock))
	}
	sess.scheduler = autosave.New(sess.store, s.gw, aopts...)

	sess.versions = versions.New(sess.store, s.gw,
		versions.WithSuspender(sess.scheduler),
		versions.WithGuard(&s.locks),
		versions.WithLogger(l),
		versions.WithEventFunc(func(event string, data any) {
			s.emitter.Emit(ectx, event, data)
		}),
	)

	if opts.AutoSnapshot != "" {
		auto, err := versions.NewAutoSnapshotter(sess.versions, opts.AutoSnapshot, l)
		if err != nil {
			sess.shutdown()
			return nil, err
		}
		sess.auto = auto
		auto.Start()
	}
	return sess, nil
}

// ── Event payloads ─────────────────────────────────────────

type BlocksChanged struct {
	PageID   string            `json:"pageId"`
	Kind     editor.ChangeKind `json:"kind"`
	IDs      []string          `json:"ids"`
	Revision uint64            `json:"revision"`
}

type SelectionChanged struct {
	PageID string   `json:"pageId"`
	IDs    []string `json:"ids"`
}

type StatusChanged struct {
	PageID string `json:"pageId"`
	autosave.Status
}
