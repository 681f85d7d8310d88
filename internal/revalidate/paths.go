package revalidate

import "github.com/copperline/beacon/internal/model"

// globalPaths are invalidated on every event regardless of collection.
var globalPaths = []string{"/", "/sitemap.xml"}

// Paths computes the cache paths affected by an event: the site root, the
// collection index, the item page when a slug is present, and the global
// index paths. Pure and deterministic from collection and slug.
func Paths(event *model.Event) []string {
	paths := make([]string, 0, len(globalPaths)+2)
	paths = append(paths, globalPaths[0])
	if event.Collection != "" {
		paths = append(paths, "/"+event.Collection)
		if event.Slug != "" {
			paths = append(paths, "/"+event.Collection+"/"+event.Slug)
		}
	}
	paths = append(paths, globalPaths[1:]...)
	return paths
}
