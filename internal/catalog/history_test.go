package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDedupeHistory(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	p1 := Product{ID: "p1", Name: "runner"}
	p2 := Product{ID: "p2", Name: "boot"}

	t.Run("keeps latest action per product", func(t *testing.T) {
		entries := []HistoryEntry{
			{Action: ActionViewed, Timestamp: base, Product: p1},
			{Action: ActionBought, Timestamp: base.Add(time.Hour), Product: p1},
		}
		out := DedupeHistory(entries)
		assert.Len(t, out, 1)
		assert.Equal(t, ActionBought, out[0].Action)
		assert.Equal(t, "p1", out[0].Product.ID)
	})

	t.Run("sorts descending by timestamp", func(t *testing.T) {
		entries := []HistoryEntry{
			{Action: ActionViewed, Timestamp: base, Product: p1},
			{Action: ActionLiked, Timestamp: base.Add(2 * time.Hour), Product: p2},
		}
		out := DedupeHistory(entries)
		assert.Len(t, out, 2)
		assert.Equal(t, "p2", out[0].Product.ID)
		assert.Equal(t, "p1", out[1].Product.ID)
	})

	t.Run("empty input", func(t *testing.T) {
		assert.Empty(t, DedupeHistory(nil))
	})
}
