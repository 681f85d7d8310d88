package main

import (
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/copperline/beacon/internal/model"
)

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// terminalWidth returns the stdout terminal width, or 100 when stdout is
// not a terminal.
func terminalWidth() int {
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		return w
	}
	return 100
}

// truncate shortens s to at most width runes, marking the cut with an
// ellipsis. Counting runes keeps multibyte slugs intact.
func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	return string(r[:width-1]) + "…"
}

func printSnapshotTable(items []*model.SnapshotItem) {
	slugWidth := max(terminalWidth()-70, 12)
	fmt.Printf("%-24s %-14s %-10s %-16s %s\n", "ITEM", "COLLECTION", "STATUS", "HASH", "SLUG")
	for _, it := range items {
		fmt.Printf("%-24s %-14s %-10s %-16s %s\n", it.ItemID, it.Collection, it.Status, it.ContentHash, truncate(it.Slug, slugWidth))
	}
}

func printSiteTable(sites []*model.Site) {
	fmt.Printf("%-20s %-24s %s\n", "SITE", "NAME", "CREATED")
	for _, s := range sites {
		fmt.Printf("%-20s %-24s %s\n", s.ID, s.Name, s.CreatedAt.Format("2006-01-02 15:04"))
	}
}
