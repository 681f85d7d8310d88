package model

import "time"

// Item is the current state of one content item, kept so the poll surface
// can serve fingerprints without reaching into the authoritative CMS store.
type Item struct {
	SiteID     string            `json:"site_id"`
	ItemID     string            `json:"item_id"`
	Slug       string            `json:"slug,omitempty"`
	Collection string            `json:"collection"`
	Status     string            `json:"status"`
	Title      string            `json:"title,omitempty"`
	Fields     map[string]string `json:"fields,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at"`
}

// SnapshotItem is one entry of a poll snapshot. ContentHash is a
// deterministic digest of every mutable field; two snapshots of the same
// item differ in ContentHash iff any observable field differs.
type SnapshotItem struct {
	ItemID      string    `json:"item_id"`
	Slug        string    `json:"slug,omitempty"`
	Collection  string    `json:"collection"`
	Status      string    `json:"status"`
	UpdatedAt   time.Time `json:"updated_at"`
	ContentHash string    `json:"content_hash"`
}
