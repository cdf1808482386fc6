package domain

import (
	"sort"
	"time"
)

type Page struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type SEOSettings struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Keywords    string `json:"keywords,omitempty"`
	OGImage     string `json:"ogImage,omitempty"`
}

type AnalyticsSettings struct {
	GoogleAnalyticsID string `json:"googleAnalyticsId,omitempty"`
	YandexMetrikaID   string `json:"yandexMetrikaId,omitempty"`
	FacebookPixelID   string `json:"facebookPixelId,omitempty"`
}

// PageSettings are the page-level fields captured alongside blocks in a version.
type PageSettings struct {
	CSS        string            `json:"css,omitempty"`
	HeadCode   string            `json:"headCode,omitempty"`
	FooterCode string            `json:"footerCode,omitempty"`
	SEO        SEOSettings       `json:"seo"`
	Analytics  AnalyticsSettings `json:"analytics"`
}

// PageState is the complete editable state of a page.
type PageState struct {
	Page     Page         `json:"page"`
	Settings PageSettings `json:"settings"`
	Blocks   []Block      `json:"blocks"`
}

// Clone returns a deep copy of s.
func (s PageState) Clone() PageState {
	out := PageState{Page: s.Page, Settings: s.Settings, Blocks: make([]Block, len(s.Blocks))}
	for i, b := range s.Blocks {
		out.Blocks[i] = b.Clone()
	}
	return out
}

// Validate checks every block and that all blocks belong to the page.
func (s PageState) Validate() error {
	seen := make(map[string]bool, len(s.Blocks))
	for _, b := range s.Blocks {
		if b.ID == "" {
			return ErrValidation("block without id")
		}
		if seen[b.ID] {
			return ErrValidation("block %s appears twice", b.ID)
		}
		seen[b.ID] = true
		if b.PageID != "" && b.PageID != s.Page.ID {
			return ErrValidation("block %s belongs to page %s, not %s", b.ID, b.PageID, s.Page.ID)
		}
		if err := b.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// SortBlocks orders blocks by Order (ties broken by creation time, then id) and
// renumbers Order to 0..n-1.
func SortBlocks(blocks []Block) {
	sort.SliceStable(blocks, func(i, j int) bool {
		a, b := blocks[i], blocks[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	for i := range blocks {
		blocks[i].Order = i
	}
}
