package domain

import "time"

// Version is an immutable snapshot of a page. State is nil in listings and
// populated by LoadVersion.
type Version struct {
	ID          string     `json:"id"`
	PageID      string     `json:"pageId"`
	Version     string     `json:"version"`
	Description string     `json:"description,omitempty"`
	Tag         string     `json:"tag,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	State       *PageState `json:"state,omitempty"`
}

// ChangeSet is everything one autosave cycle persists for a page.
type ChangeSet struct {
	PageID   string        `json:"pageId"`
	Revision uint64        `json:"revision"`
	Upserts  []Block       `json:"upserts,omitempty"`
	Deletes  []string      `json:"deletes,omitempty"`
	Settings *PageSettings `json:"settings,omitempty"`
}

// Empty reports whether the change set carries nothing to persist.
func (c ChangeSet) Empty() bool {
	return len(c.Upserts) == 0 && len(c.Deletes) == 0 && c.Settings == nil
}
