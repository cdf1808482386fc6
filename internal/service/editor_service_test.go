package service_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/internal/autosave"
	"sitebuilder/internal/domain"
	"sitebuilder/internal/geometry"
	"sitebuilder/internal/service"
	"sitebuilder/internal/storage"
	"sitebuilder/internal/versions"
)

// newService uses an hour-long debounce so only explicit flushes persist.
func newService(t *testing.T, opts service.Options) (*service.EditorService, *storage.SQLGateway, *service.MockEmitter) {
	t.Helper()
	db, err := storage.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	gw := storage.NewSQLGateway(db)

	if opts.Debounce == 0 {
		opts.Debounce = time.Hour
	}
	em := &service.MockEmitter{}
	svc := service.NewEditorService(gw, em, opts, nil)
	t.Cleanup(func() { _ = svc.CloseAll(context.Background()) })
	return svc, gw, em
}

func TestOpenReturnsSameSession(t *testing.T) {
	svc, _, _ := newService(t, service.Options{})
	ctx := context.Background()

	a, err := svc.Open(ctx, "home")
	require.NoError(t, err)
	b, err := svc.Open(ctx, "home")
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, []string{"home"}, svc.Pages())

	_, err = svc.Session("about")
	assert.True(t, domain.IsNotFound(err))

	_, err = svc.Open(ctx, "")
	assert.True(t, domain.IsValidation(err))
}

func TestCloseFlushesPendingChanges(t *testing.T) {
	svc, gw, em := newService(t, service.Options{})
	ctx := context.Background()

	sess, err := svc.Open(ctx, "home")
	require.NoError(t, err)
	b, err := sess.CreateBlock(domain.BlockTypeText, domain.TextContent{HTML: "<p>hi</p>"}, nil, -1)
	require.NoError(t, err)
	assert.Equal(t, autosave.StateDirty, sess.Status().State)

	stored, err := gw.ListBlocks(ctx, "home")
	require.NoError(t, err)
	assert.Empty(t, stored)

	require.NoError(t, svc.Close(ctx, "home"))
	stored, err = gw.ListBlocks(ctx, "home")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, b.ID, stored[0].ID)

	changes := em.Named(service.EventBlocksChanged)
	require.NotEmpty(t, changes)
	assert.Equal(t, []string{b.ID}, changes[0].(service.BlocksChanged).IDs)

	statuses := em.Named(service.EventAutosaveStatus)
	require.NotEmpty(t, statuses)
	last := statuses[len(statuses)-1].(service.StatusChanged)
	assert.Equal(t, "home", last.PageID)
	assert.Equal(t, autosave.StateClean, last.State)

	_, err = svc.Session("home")
	assert.True(t, domain.IsNotFound(err))
}

func TestReopenLoadsPersistedState(t *testing.T) {
	svc, _, _ := newService(t, service.Options{})
	ctx := context.Background()

	sess, err := svc.Open(ctx, "home")
	require.NoError(t, err)
	_, err = sess.CreateBlock(domain.BlockTypeHeading, nil, nil, -1)
	require.NoError(t, err)
	sess.UpdateSettings(domain.PageSettings{CSS: "h2{}"})
	require.NoError(t, sess.SaveNow(ctx))
	require.NoError(t, svc.Close(ctx, "home"))

	sess, err = svc.Open(ctx, "home")
	require.NoError(t, err)
	assert.Len(t, sess.Blocks(), 1)
	assert.Equal(t, "h2{}", sess.Store().Settings().CSS)
	assert.Equal(t, autosave.StateClean, sess.Status().State)
}

func TestSelectionEventsAndCrossPagePaste(t *testing.T) {
	svc, _, em := newService(t, service.Options{})
	ctx := context.Background()

	home, err := svc.Open(ctx, "home")
	require.NoError(t, err)
	about, err := svc.Open(ctx, "about")
	require.NoError(t, err)

	a, err := home.CreateBlock(domain.BlockTypeButton, domain.ButtonContent{Label: "Buy"}, domain.Styles{"color": "red"}, -1)
	require.NoError(t, err)
	b, err := home.CreateBlock(domain.BlockTypeDivider, nil, nil, -1)
	require.NoError(t, err)

	home.Select(a.ID, false)
	home.Select(b.ID, true)
	sel := em.Named(service.EventSelectionChanged)
	require.Len(t, sel, 2)
	assert.Equal(t, []string{a.ID, b.ID}, sel[1].(service.SelectionChanged).IDs)

	assert.Equal(t, 2, home.Copy())
	for range 2 {
		_, err := about.Paste()
		require.NoError(t, err)
	}

	pasted := about.Blocks()
	require.Len(t, pasted, 4)
	seen := map[string]bool{}
	for _, p := range pasted {
		assert.NotEqual(t, a.ID, p.ID)
		assert.NotEqual(t, b.ID, p.ID)
		seen[p.ID] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, domain.ButtonContent{Label: "Buy"}, pasted[0].Content)
	assert.Equal(t, "red", pasted[2].Styles["color"])
	assert.Equal(t, 2, svc.Clipboard().Len())
	assert.Len(t, home.Blocks(), 2)
}

func TestAlignSelection(t *testing.T) {
	svc, _, _ := newService(t, service.Options{})
	sess, err := svc.Open(context.Background(), "home")
	require.NoError(t, err)

	box := func(left string) domain.Styles {
		return domain.Styles{"left": left, "top": "0px", "width": "20px", "height": "10px"}
	}
	a, err := sess.CreateBlock(domain.BlockTypeDivider, nil, box("10px"), -1)
	require.NoError(t, err)
	b, err := sess.CreateBlock(domain.BlockTypeDivider, nil, box("50px"), -1)
	require.NoError(t, err)

	sess.Select(a.ID, false)
	ps, err := sess.Align(geometry.AlignLeft)
	require.NoError(t, err)
	assert.Empty(t, ps)

	sess.Select(b.ID, true)
	ps, err = sess.Align(geometry.AlignLeft)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	got, _ := sess.Store().Get(b.ID)
	assert.Equal(t, "10px", got.Styles["left"])
	got, _ = sess.Store().Get(a.ID)
	assert.Equal(t, "absolute", got.Styles["position"])
}

func TestMeasurementsFollowTheStore(t *testing.T) {
	svc, _, _ := newService(t, service.Options{})
	ctx := context.Background()
	sess, err := svc.Open(ctx, "home")
	require.NoError(t, err)

	a, err := sess.CreateBlock(domain.BlockTypeDivider, nil, nil, -1)
	require.NoError(t, err)
	b, err := sess.CreateBlock(domain.BlockTypeDivider, nil, nil, -1)
	require.NoError(t, err)
	v, err := sess.Snapshot(ctx, "", "", "")
	require.NoError(t, err)

	n, err := sess.Measure([]geometry.Box{
		{ID: a.ID, X: 4, Width: 10, Height: 10},
		{ID: b.ID, X: 40, Width: 10, Height: 10},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.True(t, sess.RemoveBlock(a.ID))
	_, ok := sess.Measurements().Get(a.ID)
	assert.False(t, ok, "removed block loses its measurement")
	assert.Equal(t, 1, sess.Measurements().Len())

	_, err = sess.Rollback(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, sess.Measurements().Len(), "rollback invalidates every measurement")
}

func TestSnapshotAndRollbackThroughSession(t *testing.T) {
	svc, gw, em := newService(t, service.Options{})
	ctx := context.Background()

	sess, err := svc.Open(ctx, "home")
	require.NoError(t, err)
	keep, err := sess.CreateBlock(domain.BlockTypeText, nil, nil, -1)
	require.NoError(t, err)

	v, err := sess.Snapshot(ctx, "", "before cleanup", "")
	require.NoError(t, err)
	assert.Equal(t, "v1", v.Version)

	assert.True(t, sess.RemoveBlock(keep.ID))
	_, err = sess.CreateBlock(domain.BlockTypeImage, domain.ImageContent{Src: "/a.png"}, nil, -1)
	require.NoError(t, err)

	st, err := sess.Rollback(ctx, v.ID)
	require.NoError(t, err)
	require.Len(t, st.Blocks, 1)
	assert.Equal(t, keep.ID, sess.Blocks()[0].ID)
	assert.Equal(t, autosave.StateClean, sess.Status().State)

	stored, err := gw.ListBlocks(ctx, "home")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, keep.ID, stored[0].ID)

	list, err := sess.ListVersions(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	assert.Len(t, em.Named(versions.EventCreated), 1)
	assert.Len(t, em.Named(versions.EventRolledBack), 1)
}

// blockingGateway holds the first SaveChanges after arm until release closes.
type blockingGateway struct {
	domain.Gateway
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *blockingGateway) arm() {
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
	g.armed.Store(true)
}

func (g *blockingGateway) SaveChanges(ctx context.Context, cs domain.ChangeSet) error {
	if g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		select {
		case <-g.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return g.Gateway.SaveChanges(ctx, cs)
}

func TestRollbackWaitsForInflightSaveAndWinsLast(t *testing.T) {
	db, err := storage.Open(storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	sqlGW := storage.NewSQLGateway(db)
	gw := &blockingGateway{Gateway: sqlGW}
	svc := service.NewEditorService(gw, &service.MockEmitter{}, service.Options{Debounce: time.Hour}, nil)
	t.Cleanup(func() { _ = svc.CloseAll(context.Background()) })
	ctx := context.Background()

	sess, err := svc.Open(ctx, "home")
	require.NoError(t, err)
	keep, err := sess.CreateBlock(domain.BlockTypeText, nil, nil, -1)
	require.NoError(t, err)
	require.NoError(t, sess.SaveNow(ctx))
	v1, err := sess.Snapshot(ctx, "", "", "")
	require.NoError(t, err)

	_, err = sess.CreateBlock(domain.BlockTypeImage, domain.ImageContent{Src: "/late.png"}, nil, -1)
	require.NoError(t, err)

	gw.arm()
	saved := make(chan error, 1)
	go func() { saved <- sess.SaveNow(ctx) }()
	<-gw.entered

	type result struct {
		st  domain.PageState
		err error
	}
	rolled := make(chan result, 1)
	go func() {
		st, err := sess.Rollback(ctx, v1.ID)
		rolled <- result{st, err}
	}()

	select {
	case <-rolled:
		t.Fatal("rollback finished while a save was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.release)
	require.NoError(t, <-saved)
	res := <-rolled
	require.NoError(t, res.err)
	require.Len(t, res.st.Blocks, 1)

	stored, err := sqlGW.ListBlocks(ctx, "home")
	require.NoError(t, err)
	require.Len(t, stored, 1, "the late block saved before rollback must not survive it")
	assert.Equal(t, keep.ID, stored[0].ID)

	blocks := sess.Blocks()
	require.Len(t, blocks, 1)
	assert.Equal(t, keep.ID, blocks[0].ID)
	assert.False(t, sess.Store().HasPending())
	assert.Equal(t, autosave.StateClean, sess.Status().State)
}

func TestCloseAllFlushesEveryPage(t *testing.T) {
	svc, gw, _ := newService(t, service.Options{})
	ctx := context.Background()

	pages := []string{"home", "about", "pricing"}
	for _, id := range pages {
		sess, err := svc.Open(ctx, id)
		require.NoError(t, err)
		_, err = sess.CreateBlock(domain.BlockTypeDivider, nil, nil, -1)
		require.NoError(t, err)
	}

	require.NoError(t, svc.CloseAll(ctx))
	assert.Empty(t, svc.Pages())
	for _, id := range pages {
		stored, err := gw.ListBlocks(ctx, id)
		require.NoError(t, err)
		assert.Len(t, stored, 1, id)
	}
}

func TestSetDebounceReachesOpenSessions(t *testing.T) {
	svc, _, _ := newService(t, service.Options{})
	sess, err := svc.Open(context.Background(), "home")
	require.NoError(t, err)

	svc.SetDebounce(250 * time.Millisecond)
	assert.Equal(t, 250*time.Millisecond, sess.Debounce())

	svc.SetDebounce(0)
	assert.Equal(t, 250*time.Millisecond, sess.Debounce())

	other, err := svc.Open(context.Background(), "about")
	require.NoError(t, err)
	assert.Equal(t, 250*time.Millisecond, other.Debounce())
}

func TestOpenRejectsBadAutoSnapshotExpr(t *testing.T) {
	svc, _, _ := newService(t, service.Options{AutoSnapshot: "every tuesday"})
	_, err := svc.Open(context.Background(), "home")
	assert.True(t, domain.IsValidation(err))
	assert.Empty(t, svc.Pages())
}
