package blockdev_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/diskofat/blockdev"
	"github.com/dargueta/diskofat/drivers/fat"
)

func TestMemBlockDeviceReadWriteRoundTrip(t *testing.T) {
	buf := make([]byte, 16*fat.SectorSize)
	dev := blockdev.NewMemBlockDevice(buf, 16)

	assert.Equal(t, fat.Status(0), dev.Init())

	payload := make([]byte, fat.SectorSize)
	for i := range payload {
		payload[i] = byte(i)
	}

	require.Nil(t, dev.WriteSectors(3, 1, payload))

	readBack := make([]byte, fat.SectorSize)
	require.Nil(t, dev.ReadSectors(3, 1, readBack))
	assert.Equal(t, payload, readBack)
}

func TestMemBlockDeviceIoctlGetSectors(t *testing.T) {
	buf := make([]byte, 16*fat.SectorSize)
	dev := blockdev.NewMemBlockDevice(buf, 16)

	v, err := dev.Ioctl(fat.IoctlGetSectors, nil)
	require.Nil(t, err)
	assert.EqualValues(t, 16, v)
}
