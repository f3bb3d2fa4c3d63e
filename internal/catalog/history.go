package catalog

import "sort"

// DedupeHistory collapses a raw interaction list to at most one entry per
// product, keeping the entry with the latest timestamp, and returns the list
// sorted by timestamp descending. Ties between edge types on the same product
// keep the entry seen first in store iteration order.
func DedupeHistory(entries []HistoryEntry) []HistoryEntry {
	latest := make(map[string]HistoryEntry, len(entries))
	for _, e := range entries {
		prev, ok := latest[e.Product.ID]
		if !ok || e.Timestamp.After(prev.Timestamp) {
			latest[e.Product.ID] = e
		}
	}

	out := make([]HistoryEntry, 0, len(latest))
	for _, e := range latest {
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out
}
