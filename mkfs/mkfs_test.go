package mkfs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dargueta/diskofat/blockdev"
	"github.com/dargueta/diskofat/mkfs"
)

func TestValidateRejectsMultipleViolationsAtOnce(t *testing.T) {
	plan := mkfs.Plan{
		TotalSectors:      10,
		SectorsPerCluster: 3,
		FATCopies:         0,
	}

	err := plan.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "total sectors")
	assert.Contains(t, err.Error(), "power of two")
	assert.Contains(t, err.Error(), "FAT copy")
}

func TestFormatWritesBootSignature(t *testing.T) {
	buf := make([]byte, 2880*512)
	dev := blockdev.NewMemBlockDevice(buf, 2880)

	plan := mkfs.Plan{
		TotalSectors:      2880,
		SectorsPerCluster: 1,
		FATCopies:         2,
	}
	require.NoError(t, mkfs.Format(dev, plan))

	assert.Equal(t, byte(0x55), buf[510])
	assert.Equal(t, byte(0xAA), buf[511])
}
