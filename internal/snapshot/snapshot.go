// Package snapshot computes deterministic content fingerprints for the poll
// surface. A subscriber with no push connection stores the previous snapshot
// and diffs hashes per item to detect change without seeing the event log.
package snapshot

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/copperline/beacon/internal/model"
)

// Hash digests every mutable field of the item: identity, slug, collection,
// status, title, the update timestamp, and all custom fields in sorted key
// order. Equal inputs always produce equal hashes; any observable field
// change produces a different hash.
func Hash(item *model.Item) string {
	d := xxhash.New()
	writeField(d, item.ItemID)
	writeField(d, item.Slug)
	writeField(d, item.Collection)
	writeField(d, item.Status)
	writeField(d, item.Title)
	writeField(d, strconv.FormatInt(item.UpdatedAt.UTC().UnixNano(), 10))

	keys := make([]string, 0, len(item.Fields))
	for k := range item.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		writeField(d, k)
		writeField(d, item.Fields[k])
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

// writeField writes a length-prefixed field so that adjacent fields can
// never collide by shifting bytes between them.
func writeField(d *xxhash.Digest, s string) {
	var buf [10]byte
	n := copy(buf[:], strconv.AppendInt(nil, int64(len(s)), 10))
	_, _ = d.Write(buf[:n])
	_, _ = d.WriteString("\x00")
	_, _ = d.WriteString(s)
}

// ItemSnapshot converts an item to its poll snapshot entry.
func ItemSnapshot(item *model.Item) *model.SnapshotItem {
	return &model.SnapshotItem{
		ItemID:      item.ItemID,
		Slug:        item.Slug,
		Collection:  item.Collection,
		Status:      item.Status,
		UpdatedAt:   item.UpdatedAt,
		ContentHash: Hash(item),
	}
}
