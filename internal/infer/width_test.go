package infer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalWidth(t *testing.T) {
	tests := []struct {
		name    string
		lengths []int
		want    int
		ok      bool
	}{
		{"empty", nil, 0, false},
		{"single", []int{5}, 5, true},
		{"clear majority", []int{3, 3, 4, 3}, 3, true},
		{"majority after outlier", []int{4, 3, 3, 3}, 3, true},
		{"tie goes to first seen", []int{2, 5, 5, 2}, 2, true},
		{"tie goes to first seen reversed", []int{5, 2, 2, 5}, 5, true},
		{"later length needs strictly more", []int{1, 2, 2, 1, 3, 3, 3}, 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := CanonicalWidth(tt.lengths)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func cells(n int) []RawCell {
	rec := make([]RawCell, n)
	for i := range rec {
		rec[i] = StringCell("v")
	}
	return rec
}

func TestFilterRows(t *testing.T) {
	records := [][]RawCell{cells(3), cells(3), cells(4), cells(3)}

	kept, width, dropped := FilterRows(records, 7)
	require.Len(t, kept, 3)
	assert.Equal(t, 3, width)
	assert.Equal(t, []int{2}, dropped)
}

func TestFilterRows_NoRecords(t *testing.T) {
	kept, width, dropped := FilterRows(nil, 4)
	assert.Empty(t, kept)
	assert.Equal(t, 4, width)
	assert.Empty(t, dropped)
}
