package editor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sitebuilder/internal/domain"
)

func newTestStore(t *testing.T) *BlockStore {
	t.Helper()
	n := 0
	return NewBlockStore(
		domain.PageState{Page: domain.Page{ID: "page-1", Name: "Home"}},
		WithIDGenerator(func() string { n++; return fmt.Sprintf("b%d", n) }),
		WithNow(func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }),
	)
}

func orderOf(s *BlockStore) []string {
	var ids []string
	for _, b := range s.Blocks() {
		ids = append(ids, b.ID)
	}
	return ids
}

func mustCreate(t *testing.T, s *BlockStore, typ domain.BlockType) domain.Block {
	t.Helper()
	b, err := s.Create(typ, nil, nil, -1)
	require.NoError(t, err)
	return b
}

func boolp(v bool) *bool { return &v }

func TestCreateAppendsAndInserts(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, domain.BlockTypeText)
	b := mustCreate(t, s, domain.BlockTypeHeading)
	c, err := s.Create(domain.BlockTypeButton, nil, nil, 1)
	require.NoError(t, err)

	assert.Equal(t, []string{a.ID, c.ID, b.ID}, orderOf(s))
	for i, blk := range s.Blocks() {
		assert.Equal(t, i, blk.Order)
		assert.Equal(t, "page-1", blk.PageID)
	}
	assert.Equal(t, 2, c.ZOrder)
	assert.True(t, c.Visible)

	d, err := s.Create(domain.BlockTypeDivider, nil, nil, 99)
	require.NoError(t, err)
	assert.Equal(t, 3, d.Order)
}

func TestCreateRejectsInvalidContent(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create(domain.BlockTypeText, domain.TextContent{HTML: "<script>x()</script>"}, nil, -1)
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))
	assert.Equal(t, 0, s.Len())
	assert.False(t, s.HasPending())

	_, err = s.Create(domain.BlockTypeText, domain.HeadingContent{Text: "x", Level: 1}, nil, -1)
	assert.True(t, domain.IsValidation(err))
}

func TestUpdate(t *testing.T) {
	s := newTestStore(t)
	b := mustCreate(t, s, domain.BlockTypeHeading)

	got, err := s.Update(b.ID, domain.BlockPatch{
		Content: domain.HeadingContent{Text: "Hello", Level: 1},
		Styles:  domain.Styles{"color": "red"},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.HeadingContent{Text: "Hello", Level: 1}, got.Content)
	assert.Equal(t, "red", got.Styles["color"])

	_, err = s.Update("missing", domain.BlockPatch{Visible: boolp(false)})
	assert.True(t, domain.IsNotFound(err))

	_, err = s.Update(b.ID, domain.BlockPatch{Content: domain.HeadingContent{Text: "x", Level: 9}})
	assert.True(t, domain.IsValidation(err))
	cur, _ := s.Get(b.ID)
	assert.Equal(t, "Hello", cur.Content.(domain.HeadingContent).Text)
}

func TestLockedBlocks(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, domain.BlockTypeText)
	mustCreate(t, s, domain.BlockTypeText)
	_, err := s.Update(a.ID, domain.BlockPatch{Locked: boolp(true)})
	require.NoError(t, err)

	_, err = s.Update(a.ID, domain.BlockPatch{Styles: domain.Styles{"left": "1px"}})
	assert.True(t, domain.IsCode(err, domain.ErrCodeLocked))
	assert.False(t, s.Remove(a.ID))
	assert.False(t, s.Reorder(a.ID, 1))
	assert.False(t, s.SetZOrder(a.ID, ZFront))
	assert.Equal(t, 2, s.Len())

	_, err = s.Update(a.ID, domain.BlockPatch{Locked: boolp(false)})
	require.NoError(t, err)
	assert.True(t, s.Remove(a.ID))
}

func TestRemoveRenumbers(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, domain.BlockTypeText)
	b := mustCreate(t, s, domain.BlockTypeText)
	c := mustCreate(t, s, domain.BlockTypeText)

	assert.True(t, s.Remove(a.ID))
	assert.False(t, s.Remove(a.ID))
	assert.Equal(t, []string{b.ID, c.ID}, orderOf(s))
	got, _ := s.Get(c.ID)
	assert.Equal(t, 1, got.Order)
}

func TestReorder(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, domain.BlockTypeText)
	b := mustCreate(t, s, domain.BlockTypeText)
	c := mustCreate(t, s, domain.BlockTypeText)

	assert.True(t, s.Reorder(c.ID, 0))
	assert.Equal(t, []string{c.ID, a.ID, b.ID}, orderOf(s))
	assert.True(t, s.Reorder(c.ID, 50))
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, orderOf(s))
	assert.False(t, s.Reorder(c.ID, 2))
	assert.False(t, s.Reorder("missing", 0))
}

func TestDuplicate(t *testing.T) {
	s := newTestStore(t)
	a, err := s.Create(domain.BlockTypeButton, domain.ButtonContent{Label: "Buy"}, domain.Styles{"color": "red"}, -1)
	require.NoError(t, err)
	b := mustCreate(t, s, domain.BlockTypeText)
	_, err = s.Update(a.ID, domain.BlockPatch{Visible: boolp(false), Locked: boolp(true)})
	require.NoError(t, err)

	dup, ok := s.Duplicate(a.ID)
	require.True(t, ok)
	assert.NotEqual(t, a.ID, dup.ID)
	assert.True(t, dup.Visible)
	assert.False(t, dup.Locked)
	assert.Equal(t, domain.ButtonContent{Label: "Buy"}, dup.Content)
	assert.Equal(t, []string{a.ID, dup.ID, b.ID}, orderOf(s))

	// the copy is independent of the source
	_, err = s.Update(dup.ID, domain.BlockPatch{Styles: domain.Styles{"color": "blue"}})
	require.NoError(t, err)
	src, _ := s.Get(a.ID)
	assert.Equal(t, "red", src.Styles["color"])

	_, ok = s.Duplicate("missing")
	assert.False(t, ok)
}

func zOrders(s *BlockStore) map[string]int {
	out := map[string]int{}
	for _, b := range s.Blocks() {
		out[b.ID] = b.ZOrder
	}
	return out
}

func TestSetZOrder(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, domain.BlockTypeText)
	b := mustCreate(t, s, domain.BlockTypeText)
	c := mustCreate(t, s, domain.BlockTypeText)

	assert.True(t, s.SetZOrder(a.ID, ZFront))
	assert.Equal(t, map[string]int{b.ID: 0, c.ID: 1, a.ID: 2}, zOrders(s))

	assert.True(t, s.SetZOrder(a.ID, ZBack))
	assert.Equal(t, map[string]int{a.ID: 0, b.ID: 1, c.ID: 2}, zOrders(s))

	assert.True(t, s.SetZOrder(a.ID, ZForward))
	assert.Equal(t, map[string]int{b.ID: 0, a.ID: 1, c.ID: 2}, zOrders(s))

	assert.True(t, s.SetZOrder(c.ID, ZBackward))
	assert.Equal(t, map[string]int{b.ID: 0, c.ID: 1, a.ID: 2}, zOrders(s))

	assert.False(t, s.SetZOrder(a.ID, ZFront))
	// page order is untouched by stacking
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, orderOf(s))
}

func TestUpdateBatchIsAtomic(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, domain.BlockTypeText)
	b := mustCreate(t, s, domain.BlockTypeText)

	var changes []Change
	s.Subscribe(func(c Change) { changes = append(changes, c) })

	err := s.UpdateBatch([]BlockUpdate{
		{ID: a.ID, Patch: domain.BlockPatch{Styles: domain.Styles{"left": "10px"}}},
		{ID: "missing", Patch: domain.BlockPatch{Styles: domain.Styles{"left": "20px"}}},
	})
	assert.True(t, domain.IsNotFound(err))
	got, _ := s.Get(a.ID)
	assert.Empty(t, got.Styles["left"])
	assert.Empty(t, changes)

	require.NoError(t, s.UpdateBatch([]BlockUpdate{
		{ID: a.ID, Patch: domain.BlockPatch{Styles: domain.Styles{"left": "10px"}}},
		{ID: b.ID, Patch: domain.BlockPatch{Styles: domain.Styles{"left": "20px"}}},
	}))
	require.Len(t, changes, 1)
	assert.Equal(t, ChangeUpdated, changes[0].Kind)
	assert.ElementsMatch(t, []string{a.ID, b.ID}, changes[0].IDs)
}

func TestPendingAndAck(t *testing.T) {
	s := newTestStore(t)
	a := mustCreate(t, s, domain.BlockTypeText)
	b := mustCreate(t, s, domain.BlockTypeText)

	cs := s.Pending()
	assert.Equal(t, "page-1", cs.PageID)
	assert.Len(t, cs.Upserts, 2)
	assert.Nil(t, cs.Settings)

	// an edit made while cs is being saved survives the ack
	_, err := s.Update(a.ID, domain.BlockPatch{Styles: domain.Styles{"color": "red"}})
	require.NoError(t, err)
	s.Ack(cs)
	require.True(t, s.HasPending())
	cs = s.Pending()
	require.Len(t, cs.Upserts, 1)
	assert.Equal(t, a.ID, cs.Upserts[0].ID)
	s.Ack(cs)
	assert.False(t, s.HasPending())

	s.Remove(b.ID)
	s.UpdateSettings(domain.PageSettings{CSS: "body{}"})
	cs = s.Pending()
	assert.Equal(t, []string{b.ID}, cs.Deletes)
	require.NotNil(t, cs.Settings)
	assert.Equal(t, "body{}", cs.Settings.CSS)
	s.Ack(cs)
	assert.False(t, s.HasPending())
}

func TestReplaceLeavesStoreClean(t *testing.T) {
	s := newTestStore(t)
	mustCreate(t, s, domain.BlockTypeText)

	var got []Change
	s.Subscribe(func(c Change) { got = append(got, c) })

	s.Replace(domain.PageState{
		Page: domain.Page{ID: "page-1"},
		Blocks: []domain.Block{
			{ID: "x2", Type: domain.BlockTypeDivider, Order: 5, Content: domain.DividerContent{Thickness: 2}, Visible: true},
			{ID: "x1", Type: domain.BlockTypeDivider, Order: 1, Content: domain.DividerContent{Thickness: 1}, Visible: true},
		},
	})
	assert.Equal(t, []string{"x1", "x2"}, orderOf(s))
	assert.False(t, s.HasPending())
	require.Len(t, got, 1)
	assert.Equal(t, ChangeReplaced, got[0].Kind)
	assert.False(t, got[0].Dirty)
}

func TestSubscribeUnsubscribe(t *testing.T) {
	s := newTestStore(t)
	calls := 0
	unsub := s.Subscribe(func(Change) { calls++ })
	mustCreate(t, s, domain.BlockTypeText)
	unsub()
	mustCreate(t, s, domain.BlockTypeText)
	assert.Equal(t, 1, calls)
}

func TestResponsiveStylesOnBlocks(t *testing.T) {
	s := newTestStore(t)
	b := mustCreate(t, s, domain.BlockTypeText)
	got, err := s.Update(b.ID, domain.BlockPatch{
		Styles: domain.Styles{"font-size": "18px", "color": "black"},
		ResponsiveStyles: domain.ResponsiveStyles{
			domain.BreakpointTablet: {"font-size": "16px"},
			domain.BreakpointMobile: {"font-size": "14px"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "18px", got.ResolveStyles(domain.BreakpointDesktop)["font-size"])
	assert.Equal(t, "16px", got.ResolveStyles(domain.BreakpointTablet)["font-size"])
	assert.Equal(t, "14px", got.ResolveStyles(domain.BreakpointMobile)["font-size"])
	assert.Equal(t, "black", got.ResolveStyles(domain.BreakpointMobile)["color"])

	_, err = s.Update(b.ID, domain.BlockPatch{ResponsiveStyles: domain.ResponsiveStyles{"watch": {"x": "y"}}})
	assert.True(t, domain.IsValidation(err))
}
