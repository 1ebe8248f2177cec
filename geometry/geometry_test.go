package geometry

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupKnownSlug(t *testing.T) {
	g, err := Lookup("fd1440")
	require.NoError(t, err)
	assert.Equal(t, uint(512), g.BytesPerSector)
	assert.Equal(t, uint(2880), g.TotalSectors)
	assert.Equal(t, int64(1474560), g.TotalSizeBytes())
}

func TestLookupUnknownSlug(t *testing.T) {
	_, err := Lookup("does-not-exist")
	require.Error(t, err)
}

func TestSlugsNonEmpty(t *testing.T) {
	assert.NotEmpty(t, Slugs())
}
