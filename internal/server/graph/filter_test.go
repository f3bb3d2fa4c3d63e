package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWhereBuilder(t *testing.T) {
	t.Run("no clauses", func(t *testing.T) {
		var b whereBuilder
		assert.Equal(t, "", b.where())
		assert.Empty(t, b.params())
	})

	t.Run("single clause", func(t *testing.T) {
		var b whereBuilder
		b.add(`toLower(b.name) = toLower($brand)`, "brand", "Nike")
		assert.Equal(t, "WHERE toLower(b.name) = toLower($brand)", b.where())
		assert.Equal(t, map[string]any{"brand": "Nike"}, b.params())
	})

	t.Run("clauses join with AND in insertion order", func(t *testing.T) {
		var b whereBuilder
		b.add("a = $x", "x", 1)
		b.add("b = $y", "y", 2)
		assert.Equal(t, "WHERE a = $x AND b = $y", b.where())
		assert.Equal(t, map[string]any{"x": 1, "y": 2}, b.params())
	})
}
