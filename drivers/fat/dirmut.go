package fat

import "github.com/dargueta/diskofat/errors"

// reserveEntry implements spec.md section 4.8: walk the directory starting
// at parentStart looking for a free (0x00 or 0xE5) slot. If the table is
// dynamic and the walk runs off the end of the chain, allocate a new
// cluster, zero-fill every sector of it through the block device directly
// (bypassing the window, since the whole cluster is being written), and
// return its first entry. Fails with DiskFull if the table is the static
// FAT12/16 root and has no free slot.
func (v *Volume) reserveEntry(parentStart ClusterID) (DirPos, errors.DriverError) {
	it := newDirIter(v, parentStart)

	for {
		pos := it.pos()
		entry, err := v.entryAt(pos)
		if err != nil {
			return DirPos{}, err
		}
		if entry[0] == direntFreeMarker || entry[0] == direntDeletedMarker {
			return pos, nil
		}

		ok, err := it.advance()
		if err != nil {
			return DirPos{}, err
		}
		if !ok {
			break
		}
	}

	if it.static {
		return DirPos{}, errors.DiskFull.WithMessage("root directory is full")
	}

	newCluster, err := v.extendOrFollow(it.curCluster)
	if err != nil {
		return DirPos{}, err
	}

	var zero [SectorSize]byte
	firstSector := v.clusterToSector(newCluster)
	for s := uint8(0); s < v.sectorsPerCluster; s++ {
		if werr := v.device.WriteSectors(firstSector+SectorID(s), 1, zero[:]); werr != nil {
			return DirPos{}, werr
		}
	}

	return DirPos{Sector: firstSector, Offset: 0}, nil
}

// deleteEntry implements spec.md section 4.8: overwrite the entry's first
// byte with the deleted marker and flag the window dirty.
func (v *Volume) deleteEntry(pos DirPos) errors.DriverError {
	entry, err := v.entryAt(pos)
	if err != nil {
		return err
	}
	entry[0] = direntDeletedMarker
	v.markWindowDirty()
	return nil
}

// writeNewEntry fills a freshly reserved slot with an 8.3 name, NT flag,
// attribute byte and timestamps, leaving cluster/size fields at 0. Used by
// Open's CREATE_ALWAYS/OPEN_ALWAYS path and by Mkdir.
func (v *Volume) writeNewEntry(pos DirPos, name [11]byte, ntFlag, attr byte) errors.DriverError {
	entry, err := v.entryAt(pos)
	if err != nil {
		return err
	}
	copy(entry[0:11], name[:])
	entry[direntAttr] = attr
	entry[direntNTReserved] = ntFlag

	stamp := v.clock()
	date, tm := fatTimeToDirentFields(stamp)
	storeU16(entry, direntCreateDate, date)
	storeU16(entry, direntCreateTime, tm)
	storeU16(entry, direntModDate, date)
	storeU16(entry, direntModTime, tm)
	direntSetCluster(entry, 0)
	storeU32(entry, direntFileSize, 0)

	v.markWindowDirty()
	return nil
}

// fatTimeToDirentFields splits the wall-clock port's packed 32-bit FAT
// timestamp (spec.md section 6) into its date/time halves as already
// packed on-disk words.
func fatTimeToDirentFields(packed uint32) (date, tm uint16) {
	date = uint16(packed >> 16)
	tm = uint16(packed & 0xFFFF)
	return
}

// rename implements spec.md section 4.8: read the source entry as a
// template, verify the destination doesn't exist, reserve a destination
// slot, copy everything but the name from the template, write the new 8.3
// name, then delete the source. Directory entries are moved as-is; data is
// never touched.
func (v *Volume) rename(srcPath, dstPath string) errors.DriverError {
	src, err := v.trace(srcPath)
	if err != nil {
		return err
	}

	dst, err := v.locate(dstPath)
	if err != nil {
		return err
	}
	if dst.Found {
		return errors.Denied.WithMessage("destination already exists")
	}

	destPos, err := v.reserveEntry(dst.ParentStart)
	if err != nil {
		return err
	}

	template := src.Raw

	destEntry, err := v.entryAt(destPos)
	if err != nil {
		return err
	}
	copy(destEntry[:], template[:])
	copy(destEntry[0:11], dst.Name[:])
	destEntry[direntNTReserved] = dst.NTFlag
	v.markWindowDirty()

	return v.deleteEntry(src.Pos)
}
