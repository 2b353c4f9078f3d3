package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tg-photo-moderator/internal/domain"
)

func TestIsDuplicateRespectsThreshold(t *testing.T) {
	idx := NewIndex(5)
	idx.Add("a", 0)

	tests := []struct {
		name  string
		query domain.Fingerprint
		want  bool
	}{
		{name: "identical", query: 0, want: true},
		{name: "distance 5", query: 0b11111, want: true},
		{name: "distance 6", query: 0b111111, want: false},
		{name: "far away", query: 0xFFFFFFFF00000000, want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, idx.IsDuplicate(tt.query))
		})
	}
}

func TestIsDuplicateEmptyIndex(t *testing.T) {
	idx := NewIndex(DefaultThreshold)
	assert.False(t, idx.IsDuplicate(42))
}

func TestAddReplacesSameID(t *testing.T) {
	idx := NewIndex(0)
	idx.Add("a", 1)
	idx.Add("a", 0xFF00)
	require.Equal(t, 1, idx.Len())
	assert.False(t, idx.IsDuplicate(1))
	assert.True(t, idx.IsDuplicate(0xFF00))
}

func TestRemoveDropsFingerprint(t *testing.T) {
	idx := NewIndex(DefaultThreshold)
	idx.Add("a", 0xABCD)
	idx.Add("b", 0xFFFFFFFFFFFFFFFF)
	idx.Remove("a")

	assert.False(t, idx.IsDuplicate(0xABCD))
	assert.True(t, idx.IsDuplicate(0xFFFFFFFFFFFFFFFF))
	assert.False(t, idx.Has("a"))
}

func TestMatchPrefersClosest(t *testing.T) {
	idx := NewIndex(5)
	idx.Add("far", 0b1111)
	idx.Add("near", 0b1)

	rec, ok := idx.Match(0)
	require.True(t, ok)
	assert.Equal(t, "near", rec.ID)
}

func TestRestoreReplacesContent(t *testing.T) {
	idx := NewIndex(DefaultThreshold)
	idx.Add("old", 7)
	idx.Restore([]domain.ContentRecord{{ID: "b", Fingerprint: 2}, {ID: "a", Fingerprint: 1}})

	assert.False(t, idx.Has("old"))
	assert.Equal(t, []domain.ContentRecord{{ID: "a", Fingerprint: 1}, {ID: "b", Fingerprint: 2}}, idx.Records())
}
