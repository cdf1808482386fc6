package geometry

import (
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"sitebuilder/internal/domain"
	"sitebuilder/internal/editor"
)

// Measurements is the side table of rendered bounds, keyed by block id.
type Measurements struct {
	mu    sync.RWMutex
	boxes []Box
	index map[string]int
}

func NewMeasurements() *Measurements {
	return &Measurements{index: map[string]int{}}
}

// Set records or replaces the bounds for b.ID.
func (m *Measurements) Set(b Box) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i, ok := m.index[b.ID]; ok {
		m.boxes[i] = b
		return
	}
	m.index[b.ID] = len(m.boxes)
	m.boxes = append(m.boxes, b)
}

func (m *Measurements) Get(id string) (Box, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.index[id]
	if !ok {
		return Box{}, false
	}
	return m.boxes[i], true
}

func (m *Measurements) Delete(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	i, ok := m.index[id]
	if !ok {
		return
	}
	last := len(m.boxes) - 1
	if i != last {
		m.boxes[i] = m.boxes[last]
		m.index[m.boxes[i].ID] = i
	}
	m.boxes = m.boxes[:last]
	delete(m.index, id)
}

func (m *Measurements) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.boxes)
}

// ─────────────────────────────────────────────────────────────
// Engine
// ─────────────────────────────────────────────────────────────

// Engine resolves block ids to boxes, runs Align/Distribute and writes the
// result back to the store as one batch.
type Engine struct {
	store   *editor.BlockStore
	measure *Measurements
	log     *log.Logger
}

type EngineOption func(*Engine)

func WithLogger(l *log.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

func NewEngine(store *editor.BlockStore, m *Measurements, opts ...EngineOption) *Engine {
	if m == nil {
		m = NewMeasurements()
	}
	e := &Engine{store: store, measure: m, log: log.Default()}
	for _, o := range opts {
		o(e)
	}
	e.log = e.log.WithPrefix("geometry")
	return e
}

func (e *Engine) Measurements() *Measurements { return e.measure }

// Measure records rendered bounds for blocks in the store. Boxes for unknown
// ids are dropped; negative sizes are rejected before anything is recorded.
func (e *Engine) Measure(boxes []Box) (int, error) {
	for _, b := range boxes {
		if b.Width < 0 || b.Height < 0 {
			return 0, domain.ErrValidation("block %s: negative size %gx%g", b.ID, b.Width, b.Height)
		}
	}
	n := 0
	for _, b := range boxes {
		if !e.store.Has(b.ID) {
			continue
		}
		e.measure.Set(b)
		n++
	}
	return n, nil
}

// Forget drops measurements made stale by c: removed blocks, and every block
// of a store that was replaced wholesale.
func (e *Engine) Forget(c editor.Change) {
	switch c.Kind {
	case editor.ChangeRemoved, editor.ChangeReplaced:
		for _, id := range c.IDs {
			e.measure.Delete(id)
		}
	}
}

// Align aligns the eligible blocks among ids and returns the applied positions.
func (e *Engine) Align(ids []string, mode AlignMode) ([]Position, error) {
	boxes := e.boxes(ids)
	if len(boxes) < MinAlign {
		e.log.Debug("align skipped", "mode", mode, "eligible", len(boxes))
		return nil, nil
	}
	return e.apply(Align(boxes, mode))
}

// Distribute distributes the eligible blocks among ids and returns the applied positions.
func (e *Engine) Distribute(ids []string, mode DistributeMode) ([]Position, error) {
	boxes := e.boxes(ids)
	if len(boxes) < MinDistribute {
		e.log.Debug("distribute skipped", "mode", mode, "eligible", len(boxes))
		return nil, nil
	}
	return e.apply(Distribute(boxes, mode))
}

// boxes keeps ids that exist, are visible and unlocked. Bounds come from the
// measurement table, falling back to the block's own px styles.
func (e *Engine) boxes(ids []string) []Box {
	seen := make(map[string]bool, len(ids))
	out := make([]Box, 0, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		b, ok := e.store.Get(id)
		if !ok || !b.Visible || b.Locked {
			continue
		}
		if box, ok := e.measure.Get(id); ok {
			out = append(out, box)
			continue
		}
		out = append(out, BoxFromStyles(b.ID, b.Styles))
	}
	return out
}

// apply writes ps to the store as one batch, skipping blocks already placed
// there, and returns the positions it wrote.
func (e *Engine) apply(ps []Position) ([]Position, error) {
	var (
		written []Position
		updates []editor.BlockUpdate
	)
	for _, p := range ps {
		if b, ok := e.store.Get(p.ID); ok && placed(b.Styles, p) {
			continue
		}
		written = append(written, p)
		updates = append(updates, editor.BlockUpdate{ID: p.ID, Patch: domain.BlockPatch{Styles: PositionStyles(p)}})
	}
	if len(updates) == 0 {
		return nil, nil
	}
	if err := e.store.UpdateBatch(updates); err != nil {
		return nil, err
	}
	for _, p := range written {
		if box, ok := e.measure.Get(p.ID); ok {
			box.X, box.Y = p.Left, p.Top
			e.measure.Set(box)
		}
	}
	e.log.Debug("positions applied", "blocks", len(written), "unchanged", len(ps)-len(written))
	return written, nil
}

// placed reports whether st already puts a block at p.
func placed(st domain.Styles, p Position) bool {
	return st["position"] == "absolute" && st["left"] != "" && st["top"] != "" &&
		!Moved(p, BoxFromStyles(p.ID, st))
}

// PositionStyles is the style patch that places a block at p.
func PositionStyles(p Position) domain.Styles {
	return domain.Styles{
		"position": "absolute",
		"left":     FormatPx(p.Left),
		"top":      FormatPx(p.Top),
	}
}

func FormatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}

// ParsePx reads a "12px" or bare numeric value; anything else is 0.
func ParsePx(s string) float64 {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "px"))
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// BoxFromStyles derives bounds from left/top/width/height styles.
func BoxFromStyles(id string, st domain.Styles) Box {
	return Box{
		ID:     id,
		X:      ParsePx(st["left"]),
		Y:      ParsePx(st["top"]),
		Width:  ParsePx(st["width"]),
		Height: ParsePx(st["height"]),
	}
}
