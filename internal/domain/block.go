package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

type BlockType string

const (
	BlockTypeText      BlockType = "text"
	BlockTypeHeading   BlockType = "heading"
	BlockTypeImage     BlockType = "image"
	BlockTypeButton    BlockType = "button"
	BlockTypeForm      BlockType = "form"
	BlockTypeContainer BlockType = "container"
	BlockTypeVideo     BlockType = "video"
	BlockTypeDivider   BlockType = "divider"
	BlockTypeHTML      BlockType = "html"
)

// BlockTypes lists every known block type in palette order.
var BlockTypes = []BlockType{
	BlockTypeText, BlockTypeHeading, BlockTypeImage, BlockTypeButton, BlockTypeForm,
	BlockTypeContainer, BlockTypeVideo, BlockTypeDivider, BlockTypeHTML,
}

// Valid reports whether t is a known block type.
func (t BlockType) Valid() bool {
	for _, k := range BlockTypes {
		if k == t {
			return true
		}
	}
	return false
}

type Block struct {
	ID               string           `json:"id"`
	PageID           string           `json:"pageId"`
	Type             BlockType        `json:"type"`
	Order            int              `json:"order"`
	ZOrder           int              `json:"zOrder"`
	Content          Content          `json:"-"`
	Styles           Styles           `json:"styles"`
	ResponsiveStyles ResponsiveStyles `json:"responsiveStyles,omitempty"`
	Visible          bool             `json:"visible"`
	Locked           bool             `json:"locked"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

// blockJSON mirrors Block with the content union as raw JSON.
type blockJSON struct {
	ID               string           `json:"id"`
	PageID           string           `json:"pageId"`
	Type             BlockType        `json:"type"`
	Order            int              `json:"order"`
	ZOrder           int              `json:"zOrder"`
	Content          json.RawMessage  `json:"content"`
	Styles           Styles           `json:"styles"`
	ResponsiveStyles ResponsiveStyles `json:"responsiveStyles,omitempty"`
	Visible          bool             `json:"visible"`
	Locked           bool             `json:"locked"`
	CreatedAt        time.Time        `json:"createdAt"`
	UpdatedAt        time.Time        `json:"updatedAt"`
}

func (b Block) MarshalJSON() ([]byte, error) {
	raw, err := EncodeContent(b.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(blockJSON{
		ID: b.ID, PageID: b.PageID, Type: b.Type, Order: b.Order, ZOrder: b.ZOrder,
		Content: raw, Styles: b.Styles, ResponsiveStyles: b.ResponsiveStyles,
		Visible: b.Visible, Locked: b.Locked, CreatedAt: b.CreatedAt, UpdatedAt: b.UpdatedAt,
	})
}

func (b *Block) UnmarshalJSON(data []byte) error {
	var j blockJSON
	if err := json.Unmarshal(data, &j); err != nil {
		return err
	}
	content, err := DecodeContent(j.Type, j.Content)
	if err != nil {
		return err
	}
	*b = Block{
		ID: j.ID, PageID: j.PageID, Type: j.Type, Order: j.Order, ZOrder: j.ZOrder,
		Content: content, Styles: j.Styles, ResponsiveStyles: j.ResponsiveStyles,
		Visible: j.Visible, Locked: j.Locked, CreatedAt: j.CreatedAt, UpdatedAt: j.UpdatedAt,
	}
	return nil
}

// Clone returns a deep copy of b.
func (b Block) Clone() Block {
	c := b
	if b.Content != nil {
		c.Content = b.Content.Clone()
	}
	c.Styles = b.Styles.Clone()
	c.ResponsiveStyles = b.ResponsiveStyles.Clone()
	return c
}

// Validate checks that the block's content matches its declared type and is well formed.
func (b Block) Validate() error {
	if !b.Type.Valid() {
		return ErrValidation("unknown block type %q", b.Type)
	}
	if b.Content == nil {
		return ErrValidation("block %s: missing %s content", b.ID, b.Type)
	}
	if b.Content.Type() != b.Type {
		return ErrValidation("block %s: %s content on %s block", b.ID, b.Content.Type(), b.Type)
	}
	if err := b.Content.Validate(); err != nil {
		return err
	}
	for bp := range b.ResponsiveStyles {
		if !bp.Valid() {
			return ErrValidation("block %s: unknown breakpoint %q", b.ID, bp)
		}
	}
	return nil
}

// ResolveStyles returns the styles in effect at breakpoint bp.
func (b Block) ResolveStyles(bp Breakpoint) Styles {
	return b.ResponsiveStyles.Resolve(b.Styles, bp)
}

// BlockPatch is a partial update. Nil fields are left untouched; a style
// value of "" removes the property.
type BlockPatch struct {
	Content          Content          `json:"-"`
	Styles           Styles           `json:"styles,omitempty"`
	ResponsiveStyles ResponsiveStyles `json:"responsiveStyles,omitempty"`
	Visible          *bool            `json:"visible,omitempty"`
	Locked           *bool            `json:"locked,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p BlockPatch) IsEmpty() bool {
	return p.Content == nil && len(p.Styles) == 0 && len(p.ResponsiveStyles) == 0 &&
		p.Visible == nil && p.Locked == nil
}

// OnlyUnlocks reports whether the patch does nothing but clear the lock flag.
func (p BlockPatch) OnlyUnlocks() bool {
	return p.Locked != nil && !*p.Locked &&
		p.Content == nil && len(p.Styles) == 0 && len(p.ResponsiveStyles) == 0 && p.Visible == nil
}

// Apply returns a copy of b with the patch applied.
func (p BlockPatch) Apply(b Block) (Block, error) {
	out := b.Clone()
	if p.Content != nil {
		if p.Content.Type() != b.Type {
			return b, ErrValidation("block %s: %s content on %s block", b.ID, p.Content.Type(), b.Type)
		}
		if err := p.Content.Validate(); err != nil {
			return b, err
		}
		out.Content = p.Content.Clone()
	}
	if len(p.Styles) > 0 {
		out.Styles = out.Styles.Merge(p.Styles)
	}
	for bp, s := range p.ResponsiveStyles {
		if !bp.Valid() {
			return b, ErrValidation("block %s: unknown breakpoint %q", b.ID, bp)
		}
		if out.ResponsiveStyles == nil {
			out.ResponsiveStyles = ResponsiveStyles{}
		}
		merged := out.ResponsiveStyles[bp].Merge(s)
		if len(merged) == 0 {
			delete(out.ResponsiveStyles, bp)
		} else {
			out.ResponsiveStyles[bp] = merged
		}
	}
	if p.Visible != nil {
		out.Visible = *p.Visible
	}
	if p.Locked != nil {
		out.Locked = *p.Locked
	}
	return out, nil
}

func (b Block) String() string {
	return fmt.Sprintf("%s(%s)#%d", b.Type, b.ID, b.Order)
}
