package editor

import (
	"sync"

	"sitebuilder/internal/domain"
)

// clip is the detached copy of a block kept by the clipboard.
type clip struct {
	Type             domain.BlockType
	Content          domain.Content
	Styles           domain.Styles
	ResponsiveStyles domain.ResponsiveStyles
}

// Clipboard holds deep copies of blocks. Pasting never consumes it.
type Clipboard struct {
	mu    sync.Mutex
	items []clip
}

func NewClipboard() *Clipboard { return &Clipboard{} }

// Copy replaces the clipboard with copies of the ids that exist in store, in
// the given order. With no existing ids the clipboard is left unchanged.
func (c *Clipboard) Copy(store *BlockStore, ids []string) int {
	items := make([]clip, 0, len(ids))
	for _, id := range ids {
		b, ok := store.Get(id)
		if !ok {
			continue
		}
		items = append(items, clip{
			Type:             b.Type,
			Content:          b.Content.Clone(),
			Styles:           b.Styles.Clone(),
			ResponsiveStyles: b.ResponsiveStyles.Clone(),
		})
	}
	if len(items) == 0 {
		return 0
	}
	c.mu.Lock()
	c.items = items
	c.mu.Unlock()
	return len(items)
}

// Len is the number of blocks on the clipboard.
func (c *Clipboard) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *Clipboard) Clear() {
	c.mu.Lock()
	c.items = nil
	c.mu.Unlock()
}

// Paste appends a fresh block for every clipboard entry and returns them.
func (c *Clipboard) Paste(store *BlockStore) ([]domain.Block, error) {
	c.mu.Lock()
	items := make([]clip, len(c.items))
	copy(items, c.items)
	c.mu.Unlock()

	out := make([]domain.Block, 0, len(items))
	for _, it := range items {
		b, err := store.CreateBlock(NewBlock{
			Type:             it.Type,
			Content:          it.Content.Clone(),
			Styles:           it.Styles.Clone(),
			ResponsiveStyles: it.ResponsiveStyles.Clone(),
			Position:         -1,
		})
		if err != nil {
			return out, err
		}
		out = append(out, b)
	}
	return out, nil
}
