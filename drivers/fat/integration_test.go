package fat_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/diskofat/blockdev"
	"github.com/dargueta/diskofat/drivers/fat"
	"github.com/dargueta/diskofat/mkfs"
)

func fixedClock() uint32 {
	// 2024-01-15 12:30:00, packed per spec.md section 6.
	date := uint32(44)<<9 | uint32(1)<<5 | uint32(15)
	tm := uint32(12)<<11 | uint32(30)<<5 | uint32(0)
	return date<<16 | tm
}

func newFormattedVolume(t *testing.T, totalSectors uint32, spc uint8) *fat.Volume {
	t.Helper()
	buf := make([]byte, int(totalSectors)*fat.SectorSize)
	dev := blockdev.NewMemBlockDevice(buf, uint(totalSectors))

	plan := mkfs.Plan{
		TotalSectors:      totalSectors,
		SectorsPerCluster: spc,
		FATCopies:         2,
		Partitioned:       false,
	}
	require.NoError(t, mkfs.Format(dev, plan))

	return fat.NewVolume(dev, fixedClock, fat.Config{Drives: 1})
}

func TestMkfsMountCreateReadRoundTrip(t *testing.T) {
	vol := newFormattedVolume(t, 2880, 1)

	f, err := fat.Open(vol, "/test.txt", fat.FlagRead|fat.FlagWrite|fat.FlagCreateAlways)
	require.Nil(t, err)

	payload := []byte("hello fat world")
	n, werr := f.Write(payload)
	require.Nil(t, werr)
	require.Equal(t, len(payload), n)
	require.Nil(t, f.Close())

	f2, err2 := fat.Open(vol, "/test.txt", fat.FlagRead)
	require.Nil(t, err2)

	readBuf := make([]byte, len(payload))
	rn, rerr := f2.Read(readBuf)
	require.Nil(t, rerr)
	require.Equal(t, len(payload), rn)
	require.Equal(t, payload, readBuf)
	require.Nil(t, f2.Close())
}

func TestStatAfterCreate(t *testing.T) {
	vol := newFormattedVolume(t, 2880, 1)

	f, err := fat.Open(vol, "/a.txt", fat.FlagWrite|fat.FlagCreateAlways)
	require.Nil(t, err)
	_, werr := f.Write([]byte("abc"))
	require.Nil(t, werr)
	require.Nil(t, f.Close())

	info, serr := vol.Stat("/a.txt")
	require.Nil(t, serr)
	require.Equal(t, "A.TXT", info.Name)
	require.EqualValues(t, 3, info.Size)
	require.False(t, info.IsDir())
}

func TestMkdirOpenDirReadDir(t *testing.T) {
	vol := newFormattedVolume(t, 2880, 1)

	require.Nil(t, vol.Mkdir("/dir"))
	f, ferr := fat.Open(vol, "/test.txt", fat.FlagWrite|fat.FlagCreateAlways)
	require.Nil(t, ferr)
	require.Nil(t, f.Close())

	dir, derr := vol.OpenDir("/")
	require.Nil(t, derr)

	names := map[string]bool{}
	for {
		entry, ok, rerr := dir.ReadDir()
		require.Nil(t, rerr)
		if !ok {
			break
		}
		names[entry.Name] = entry.IsDir()
	}

	require.Contains(t, names, "TEST.TXT")
	require.Contains(t, names, "DIR")
	require.False(t, names["TEST.TXT"])
	require.True(t, names["DIR"])
}

func TestRenamePreservesData(t *testing.T) {
	vol := newFormattedVolume(t, 2880, 1)

	f, ferr := fat.Open(vol, "/old.txt", fat.FlagWrite|fat.FlagCreateAlways)
	require.Nil(t, ferr)
	_, werr := f.Write([]byte("payload"))
	require.Nil(t, werr)
	require.Nil(t, f.Close())

	require.Nil(t, vol.Rename("/old.txt", "/new.txt"))

	_, statErr := vol.Stat("/old.txt")
	require.NotNil(t, statErr)

	f2, ferr2 := fat.Open(vol, "/new.txt", fat.FlagRead)
	require.Nil(t, ferr2)
	buf := make([]byte, 7)
	_, rerr := f2.Read(buf)
	require.Nil(t, rerr)
	require.Equal(t, "payload", string(buf))
	require.Nil(t, f2.Close())
}

func TestUnlinkFreesCluster(t *testing.T) {
	vol := newFormattedVolume(t, 2880, 1)

	before, err := vol.GetFree()
	require.Nil(t, err)

	f, ferr := fat.Open(vol, "/big.bin", fat.FlagWrite|fat.FlagCreateAlways)
	require.Nil(t, ferr)
	data := make([]byte, fat.SectorSize*3)
	_, werr := f.Write(data)
	require.Nil(t, werr)
	require.Nil(t, f.Close())

	mid, err := vol.GetFree()
	require.Nil(t, err)
	require.Less(t, mid.FreeClusters, before.FreeClusters)

	require.Nil(t, vol.Unlink("/big.bin"))

	after, err := vol.GetFree()
	require.Nil(t, err)
	require.Equal(t, before.FreeClusters, after.FreeClusters)
}

func TestUnlinkRefusesNonEmptyDirectory(t *testing.T) {
	vol := newFormattedVolume(t, 2880, 1)

	require.Nil(t, vol.Mkdir("/dir"))
	f, ferr := fat.Open(vol, "/dir/inner.txt", fat.FlagWrite|fat.FlagCreateAlways)
	require.Nil(t, ferr)
	require.Nil(t, f.Close())

	err := vol.Unlink("/dir")
	require.NotNil(t, err)
}

func TestChmodSetsReadOnly(t *testing.T) {
	vol := newFormattedVolume(t, 2880, 1)

	f, ferr := fat.Open(vol, "/ro.txt", fat.FlagWrite|fat.FlagCreateAlways)
	require.Nil(t, ferr)
	require.Nil(t, f.Close())

	require.Nil(t, vol.Chmod("/ro.txt", fat.AttrReadOnly, fat.AttrReadOnly))

	_, ferr2 := fat.Open(vol, "/ro.txt", fat.FlagWrite)
	require.NotNil(t, ferr2)
}
