package fat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestU16RoundTrip(t *testing.T) {
	buf := make([]byte, 4)
	storeU16(buf, 1, 0xBEEF)
	assert.Equal(t, uint16(0xBEEF), loadU16(buf, 1))
}

func TestU32RoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	storeU32(buf, 2, 0xDEADBEEF)
	assert.Equal(t, uint32(0xDEADBEEF), loadU32(buf, 2))
}
