package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMake83NameSimple(t *testing.T) {
	name, nt, idx, term, err := make83Name([]byte("TEST.TXT"), 0, false)
	require.Nil(t, err)
	assert.Equal(t, "TEST    TXT", string(name[:]))
	assert.Equal(t, byte(0), nt)
	assert.Equal(t, segmentEnd, term)
	assert.Equal(t, 8, idx)
}

func TestMake83NameLowercaseSetsNTFlags(t *testing.T) {
	name, nt, _, _, err := make83Name([]byte("test.txt"), 0, false)
	require.Nil(t, err)
	assert.Equal(t, "TEST    TXT", string(name[:]))
	assert.Equal(t, byte(ntLowerBase|ntLowerExt), nt)
}

func TestMake83NameMixedCaseClearsNTFlag(t *testing.T) {
	_, nt, _, _, err := make83Name([]byte("TesT.txt"), 0, false)
	require.Nil(t, err)
	assert.Equal(t, byte(ntLowerExt), nt)
}

func TestMake83NameMultiSegmentPath(t *testing.T) {
	name, _, idx, term, err := make83Name([]byte("dir/file.txt"), 0, false)
	require.Nil(t, err)
	assert.Equal(t, "DIR        ", string(name[:]))
	assert.Equal(t, segmentMore, term)

	name2, _, _, term2, err2 := make83Name([]byte("dir/file.txt"), idx, false)
	require.Nil(t, err2)
	assert.Equal(t, "FILE    TXT", string(name2[:]))
	assert.Equal(t, segmentEnd, term2)
}

func TestMake83NameRejectsReservedCharacter(t *testing.T) {
	_, _, _, _, err := make83Name([]byte("a*b.txt"), 0, false)
	require.NotNil(t, err)
}

func TestMake83NameRejectsEmptySegment(t *testing.T) {
	_, _, _, _, err := make83Name([]byte(""), 0, false)
	require.NotNil(t, err)
}

func TestMake83NameEscapesLeadingE5(t *testing.T) {
	name, _, _, _, err := make83Name([]byte{0xE5, 'A', 'B'}, 0, false)
	require.Nil(t, err)
	assert.Equal(t, byte(direntEscapedE5), name[0])
}

func TestDecode83NameRoundTrip(t *testing.T) {
	name, nt, _, _, err := make83Name([]byte("readme.md"), 0, false)
	require.Nil(t, err)
	assert.Equal(t, "readme.md", decode83Name(name[:], nt))
}

func TestMake83NameShiftJISLeadByte(t *testing.T) {
	segment := []byte{0x88, 0xEA, '.', 't', 'x', 't'}
	name, _, _, term, err := make83Name(segment, 0, true)
	require.Nil(t, err)
	assert.Equal(t, segmentEnd, term)
	assert.Equal(t, byte(0x88), name[0])
	assert.Equal(t, byte(0xEA), name[1])
}
