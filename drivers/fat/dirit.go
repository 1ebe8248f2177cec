package fat

import "github.com/dargueta/diskofat/errors"

const entriesPerSector = SectorSize / direntSize // 16

// DirPos identifies one 32-byte directory entry by the sector that holds it
// and the entry's byte offset within that sector. Per the Design Notes in
// spec.md section 9, mutation callers carry this (sector, offset) pair
// across calls instead of a raw pointer into the window, which the next
// moveWindow would invalidate.
type DirPos struct {
	Sector SectorID
	Offset int
}

// entryAt resolves pos into a live 32-byte slice of the window. The slice
// is only valid until the next moveWindow call.
func (v *Volume) entryAt(pos DirPos) ([]byte, errors.DriverError) {
	if err := v.moveWindow(pos.Sector); err != nil {
		return nil, err
	}
	return v.window[pos.Offset : pos.Offset+direntSize], nil
}

// dirIter walks a directory's entries, following the FAT chain across
// cluster boundaries for dynamic tables (FAT32 root, or any subdirectory)
// and stopping at a fixed bound for the static FAT12/16 root.
type dirIter struct {
	vol             *Volume
	static          bool
	curCluster      ClusterID
	sectorInCluster uint8
	curSector       SectorID
	entryInSector   int
	absoluteEntry   uint32
}

// newDirIter starts an iterator at the beginning of the directory whose
// first cluster is startCluster, or at the static FAT12/16 root if
// startCluster is 0 on a non-FAT32 volume.
func newDirIter(vol *Volume, startCluster ClusterID) *dirIter {
	it := &dirIter{vol: vol, curCluster: startCluster}
	if startCluster == 0 && vol.fsType != FSFAT32 {
		it.static = true
		it.curSector = SectorID(vol.dirBase)
	} else {
		it.curSector = vol.clusterToSector(startCluster)
	}
	return it
}

// pos returns the position of the entry the iterator currently points at.
func (it *dirIter) pos() DirPos {
	return DirPos{Sector: it.curSector, Offset: it.entryInSector * direntSize}
}

// advance implements spec.md section 4.5's next_entry. It returns false
// (with a nil error) when the directory stream is exhausted: end-of-chain
// for a dynamic table, or the fixed entry count for a static root.
func (it *dirIter) advance() (bool, errors.DriverError) {
	it.entryInSector++
	it.absoluteEntry++

	if it.entryInSector >= entriesPerSector {
		it.entryInSector = 0

		if it.static {
			it.curSector++
		} else {
			it.sectorInCluster++
			if it.sectorInCluster >= it.vol.sectorsPerCluster {
				it.sectorInCluster = 0
				next, err := it.vol.getLink(it.curCluster)
				if err != nil {
					return false, err
				}
				if next < 2 || it.vol.isEndOfChain(next) {
					return false, nil
				}
				it.curCluster = next
			}
			it.curSector = it.vol.clusterToSector(it.curCluster) + SectorID(it.sectorInCluster)
		}
	}

	if it.static && it.absoluteEntry >= uint32(it.vol.rootDirEntryCount) {
		return false, nil
	}
	return true, nil
}
