package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderTable(t *testing.T) {
	t.Run("no headers", func(t *testing.T) {
		assert.Empty(t, renderTable(nil, [][]string{{"a"}}))
	})

	t.Run("rows", func(t *testing.T) {
		out := renderTable(
			[]string{"#", "Artist", "Name"},
			[][]string{
				{"1", "Band", "Song"},
				{"2", "Other"},
			},
			0,
		)
		assert.Contains(t, out, "ARTIST")
		assert.Contains(t, out, "Band")
		assert.Contains(t, out, "Song")
		assert.Contains(t, out, "Other")
	})
}
