package fat

import "github.com/dargueta/diskofat/errors"

// Stat implements the original implementation's handle-free f_stat,
// supplemented per spec.md section 1's bare mention of "stat": re-trace the
// path and decode the matched entry without opening a file handle.
func (v *Volume) Stat(path string) (DirEntryInfo, errors.DriverError) {
	if err := v.autoMount(false); err != nil {
		return DirEntryInfo{}, err
	}
	res, err := v.trace(path)
	if err != nil {
		return DirEntryInfo{}, err
	}
	return decodeDirEntry(res.Raw[:]), nil
}

// Unlink implements spec.md section 1's unlink. A non-empty directory is
// refused with DENIED; the FAT engine never recurses.
func (v *Volume) Unlink(path string) errors.DriverError {
	if err := v.autoMount(true); err != nil {
		return err
	}
	res, err := v.trace(path)
	if err != nil {
		return err
	}

	if res.Raw[direntAttr]&AttrDirectory != 0 {
		empty, err := v.directoryIsEmpty(direntClusterOf(res.Raw[:]))
		if err != nil {
			return err
		}
		if !empty {
			return errors.Denied.WithMessage("directory not empty")
		}
	}

	cluster := direntClusterOf(res.Raw[:])
	if err := v.deleteEntry(res.Pos); err != nil {
		return err
	}
	if cluster != 0 {
		if err := v.truncateChain(cluster); err != nil {
			return err
		}
	}
	return nil
}

// directoryIsEmpty reports whether a directory holds only its "." and
// ".." bootstrap entries (or nothing, for a directory that somehow lacks
// them).
func (v *Volume) directoryIsEmpty(startCluster ClusterID) (bool, errors.DriverError) {
	it := newDirIter(v, startCluster)
	for {
		entry, err := v.entryAt(it.pos())
		if err != nil {
			return false, err
		}
		first := entry[0]
		if first == direntFreeMarker {
			return true, nil
		}
		if first != direntDeletedMarker {
			name := entry[0:11]
			if !(isDotEntry(name) || isDotDotEntry(name)) {
				return false, nil
			}
		}
		ok, err := it.advance()
		if err != nil {
			return false, err
		}
		if !ok {
			return true, nil
		}
	}
}

func isDotEntry(name []byte) bool {
	return name[0] == '.' && name[1] == ' '
}

func isDotDotEntry(name []byte) bool {
	return name[0] == '.' && name[1] == '.' && name[2] == ' '
}

// Rename implements spec.md section 4.8's rename, delegating to the engine
// primitive in dirmut.go.
func (v *Volume) Rename(srcPath, dstPath string) errors.DriverError {
	if err := v.autoMount(true); err != nil {
		return err
	}
	return v.rename(srcPath, dstPath)
}

// Chmod implements the original implementation's f_chmod, supplemented per
// SPEC_FULL.md: value supplies the bits to set, mask which attribute bits
// the call is allowed to touch. Only RDO/HID/SYS/ARC are settable; DIR and
// the long-name marker bit are masked out regardless of the caller's mask.
func (v *Volume) Chmod(path string, value, mask uint8) errors.DriverError {
	if err := v.autoMount(true); err != nil {
		return err
	}
	res, err := v.trace(path)
	if err != nil {
		return err
	}

	mask &= AttrReadOnly | AttrHidden | AttrSystem | AttrArchive
	entry, err := v.entryAt(res.Pos)
	if err != nil {
		return err
	}
	entry[direntAttr] = (entry[direntAttr] &^ mask) | (value & mask)
	v.markWindowDirty()
	return v.flushWindow()
}

// Mkdir implements spec.md's mkdir, supplemented with the original
// implementation's "." / ".." bootstrap entries: allocate one cluster for
// the new directory, zero-fill it, populate "." (self) and ".." (parent,
// or 0 for the FAT12/16 static root), then reserve a slot in the parent
// and write the parent-side entry with the DIRECTORY attribute.
func (v *Volume) Mkdir(path string) errors.DriverError {
	if err := v.autoMount(true); err != nil {
		return err
	}

	res, err := v.locate(path)
	if err != nil {
		return err
	}
	if res.Found {
		return errors.Denied.WithMessage("target already exists")
	}

	newCluster, err := v.allocateNext(v.lastAllocated, 0)
	if err != nil {
		return err
	}

	var zero [SectorSize]byte
	base := v.clusterToSector(newCluster)
	for s := uint8(0); s < v.sectorsPerCluster; s++ {
		if werr := v.device.WriteSectors(base+SectorID(s), 1, zero[:]); werr != nil {
			return werr
		}
	}

	stamp := v.clock()
	date, tm := fatTimeToDirentFields(stamp)

	dotEntry, err := v.entryAt(DirPos{Sector: base, Offset: 0})
	if err != nil {
		return err
	}
	fillDotEntry(dotEntry, '.', ' ', newCluster, date, tm)
	v.markWindowDirty()

	dotDotEntry, err := v.entryAt(DirPos{Sector: base, Offset: direntSize})
	if err != nil {
		return err
	}
	parentCluster := res.ParentStart
	if v.fsType != FSFAT32 && parentCluster == v.rootStartCluster() {
		parentCluster = 0
	}
	fillDotEntry(dotDotEntry, '.', '.', parentCluster, date, tm)
	v.markWindowDirty()

	pos, err := v.reserveEntry(res.ParentStart)
	if err != nil {
		return err
	}
	if err := v.writeNewEntry(pos, res.Name, res.NTFlag, AttrDirectory); err != nil {
		return err
	}
	entry, err := v.entryAt(pos)
	if err != nil {
		return err
	}
	direntSetCluster(entry, newCluster)
	storeU16(entry, direntCreateDate, date)
	storeU16(entry, direntCreateTime, tm)
	v.markWindowDirty()
	return nil
}

func fillDotEntry(entry []byte, c1, c2 byte, cluster ClusterID, date, tm uint16) {
	for i := range entry[:11] {
		entry[i] = ' '
	}
	entry[0] = c1
	entry[1] = c2
	entry[direntAttr] = AttrDirectory
	entry[direntNTReserved] = 0
	direntSetCluster(entry, cluster)
	storeU16(entry, direntCreateDate, date)
	storeU16(entry, direntCreateTime, tm)
	storeU16(entry, direntModDate, date)
	storeU16(entry, direntModTime, tm)
	storeU32(entry, direntFileSize, 0)
}

// FreeInfo is GetFree's result: the number of free clusters and the
// cluster size in bytes, enough for a caller to compute free bytes.
type FreeInfo struct {
	FreeClusters uint32
	ClusterBytes uint32
}

// GetFree implements spec.md's getfree, supplemented with the original
// implementation's FAT32 FSInfo fast path: consult the FSInfo free-cluster
// count first when it isn't the sentinel 0xFFFFFFFF, otherwise scan every
// cluster's FAT cell and, for FAT32, write the freshly counted value back
// to FSInfo.
func (v *Volume) GetFree() (FreeInfo, errors.DriverError) {
	if err := v.autoMount(false); err != nil {
		return FreeInfo{}, err
	}

	clusterBytes := uint32(v.sectorsPerCluster) * SectorSize

	if v.fsType == FSFAT32 {
		count, ok, err := v.readFSInfoFreeCount()
		if err != nil {
			return FreeInfo{}, err
		}
		if ok {
			return FreeInfo{FreeClusters: count, ClusterBytes: clusterBytes}, nil
		}
	}

	var free uint32
	for c := ClusterID(2); c < v.maxClusterPlusOne; c++ {
		cell, err := v.getLink(c)
		if err != nil {
			return FreeInfo{}, err
		}
		if cell == clusterFree {
			free++
		}
	}

	if v.fsType == FSFAT32 {
		if err := v.writeFSInfoFreeCount(free); err != nil {
			return FreeInfo{}, err
		}
	}
	return FreeInfo{FreeClusters: free, ClusterBytes: clusterBytes}, nil
}

// FSInfo sector layout (FAT32 only).
const (
	fsInfoLeadSig   = 0x41615252
	fsInfoStructSig = 0x61417272
	fsInfoFreeCount = 0x1E8
)

func (v *Volume) readFSInfoFreeCount() (uint32, bool, errors.DriverError) {
	var sector [SectorSize]byte
	if err := v.device.ReadSectors(v.fsInfoSector, 1, sector[:]); err != nil {
		return 0, false, err
	}
	if loadU32(sector[:], 0) != fsInfoLeadSig || loadU32(sector[:], 484) != fsInfoStructSig {
		return 0, false, nil
	}
	count := loadU32(sector[:], fsInfoFreeCount)
	if count == 0xFFFFFFFF {
		return 0, false, nil
	}
	return count, true, nil
}

func (v *Volume) writeFSInfoFreeCount(count uint32) errors.DriverError {
	var sector [SectorSize]byte
	if err := v.device.ReadSectors(v.fsInfoSector, 1, sector[:]); err != nil {
		return err
	}
	if loadU32(sector[:], 0) != fsInfoLeadSig || loadU32(sector[:], 484) != fsInfoStructSig {
		return nil
	}
	storeU32(sector[:], fsInfoFreeCount, count)
	return v.device.WriteSectors(v.fsInfoSector, 1, sector[:])
}

// Dir is a read-only directory iterator exposed to callers, implementing
// spec.md section 1's opendir/readdir.
type Dir struct {
	handle
	it        *dirIter
	exhausted bool // latched once the stream ends; ReadDir won't re-probe the iterator
}

// OpenDir implements opendir: trace path (root is the empty string) and
// position an iterator at its first entry.
func (v *Volume) OpenDir(path string) (*Dir, errors.DriverError) {
	if err := v.autoMount(false); err != nil {
		return nil, err
	}

	start := v.rootStartCluster()
	if path != "" && path != "/" {
		res, err := v.trace(path)
		if err != nil {
			return nil, err
		}
		if res.Raw[direntAttr]&AttrDirectory == 0 {
			return nil, errors.NoPath.WithMessage("not a directory")
		}
		start = direntClusterOf(res.Raw[:])
	}

	return &Dir{handle: newHandle(v), it: newDirIter(v, start)}, nil
}

// ReadDir implements readdir: returns the next live entry (skipping
// deleted slots, long-name fragments, and volume labels) in physical
// order, or ok == false once the directory stream is exhausted.
func (d *Dir) ReadDir() (info DirEntryInfo, ok bool, errRes errors.DriverError) {
	if err := d.validate(); err != nil {
		return DirEntryInfo{}, false, err
	}
	if d.exhausted {
		return DirEntryInfo{}, false, nil
	}

	for {
		entry, err := d.vol.entryAt(d.it.pos())
		if err != nil {
			return DirEntryInfo{}, false, err
		}

		first := entry[0]
		if first == direntFreeMarker {
			d.exhausted = true
			return DirEntryInfo{}, false, nil
		}

		skip := first == direntDeletedMarker ||
			entry[direntAttr] == AttrLongName ||
			entry[direntAttr]&AttrVolume != 0

		var result DirEntryInfo
		if !skip {
			result = decodeDirEntry(entry)
		}

		more, err := d.it.advance()
		if err != nil {
			return DirEntryInfo{}, false, err
		}
		if !more {
			// Chain/static-root just ended. Latch exhaustion now rather than
			// calling entryAt on a position the iterator walked off the end
			// of next time ReadDir is called.
			d.exhausted = true
		}

		if !skip {
			return result, true, nil
		}
		if !more {
			return DirEntryInfo{}, false, nil
		}
	}
}
