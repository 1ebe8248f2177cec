package fat

import "github.com/dargueta/diskofat/errors"

// OpenFlag mirrors the access/creation bits spec.md section 4.10 names.
type OpenFlag uint8

const (
	FlagRead OpenFlag = 1 << iota
	FlagWrite
	FlagCreateAlways
	FlagOpenAlways
)

// Internal file-handle status bits, kept separate from OpenFlag so a
// caller can't forge ERROR/DIRTY/WRITTEN by passing odd open flags.
const (
	fileErrorBit   = 1 << iota
	fileDirtyBit   // private buffer holds unwritten bytes
	fileWrittenBit // at least one successful write since open
)

// File is an open FAT file handle: spec.md section 3's file object. Every
// exported method begins with validate, and once the internal ERROR bit is
// latched every subsequent call fails until Close.
type File struct {
	handle

	flags   OpenFlag
	status  uint8
	pos     uint32
	size    uint32
	origin  ClusterID
	curClus ClusterID
	curSec  SectorID
	secLeft uint8 // sectors left in curClus including curSec, 1 forces reload

	dirPos DirPos // entry location; Sync rewrites it only after a write

	buf      [SectorSize]byte
	bufValid bool
}

// Open implements spec.md section 4.10's open. path is resolved relative
// to vol's own root; drive-prefix stripping happens one layer up wherever
// the volume slot table is consulted.
func Open(vol *Volume, path string, flags OpenFlag) (*File, errors.DriverError) {
	if err := vol.autoMount(flags&(FlagWrite|FlagCreateAlways|FlagOpenAlways) != 0); err != nil {
		return nil, err
	}

	res, terr := vol.locate(path)
	if terr != nil {
		return nil, terr
	}

	f := &File{handle: newHandle(vol)}

	switch {
	case !res.Found && flags&(FlagCreateAlways|FlagOpenAlways) != 0:
		pos, err := vol.reserveEntry(res.ParentStart)
		if err != nil {
			return nil, err
		}
		if err := vol.writeNewEntry(pos, res.Name, res.NTFlag, AttrArchive); err != nil {
			return nil, err
		}
		f.dirPos = pos
		f.origin = 0
		f.size = 0

	case !res.Found:
		return nil, errors.NoFile

	case res.Found && flags&FlagRead != 0 && flags&(FlagWrite|FlagCreateAlways) == 0:
		if res.Raw[direntAttr]&AttrDirectory != 0 {
			return nil, errors.NoFile.WithMessage("is a directory")
		}
		f.dirPos = res.Pos
		f.origin = direntClusterOf(res.Raw[:])
		f.size = loadU32(res.Raw[:], direntFileSize)

	default:
		attr := res.Raw[direntAttr]
		if attr&(AttrReadOnly|AttrDirectory) != 0 {
			return nil, errors.Denied
		}

		f.dirPos = res.Pos
		f.origin = direntClusterOf(res.Raw[:])
		f.size = loadU32(res.Raw[:], direntFileSize)

		if flags&FlagCreateAlways != 0 {
			entry, err := vol.entryAt(res.Pos)
			if err != nil {
				return nil, err
			}
			original := direntClusterOf(entry)
			direntSetCluster(entry, 0)
			storeU32(entry, direntFileSize, 0)
			vol.markWindowDirty()

			if original != 0 {
				if err := vol.truncateChain(original); err != nil {
					return nil, err
				}
			}
			f.origin = 0
			f.size = 0
		}
	}

	f.flags = flags
	f.pos = 0
	f.curClus = f.origin
	f.secLeft = 1
	return f, nil
}

// Read implements spec.md section 4.10's read(n): truncates the request to
// the bytes remaining before file_size, walks sector boundaries following
// the chain, and serves whole-sector transfers directly into p while
// falling back to the private buffer for a fractional leading/trailing
// sector.
func (f *File) Read(p []byte) (int, errors.DriverError) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	if f.flags&FlagRead == 0 {
		return 0, errors.Denied
	}
	if f.status&fileErrorBit != 0 {
		return 0, errors.RWError
	}

	if f.pos >= f.size {
		return 0, nil
	}
	remaining := f.size - f.pos
	if uint32(len(p)) > remaining {
		p = p[:remaining]
	}

	total := 0
	for len(p) > 0 {
		n, err := f.transferOne(p, false)
		if err != nil {
			f.status |= fileErrorBit
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
		p = p[n:]
	}
	return total, nil
}

// Write implements spec.md section 4.10's write(n). A request that would
// push file_position past the 32-bit size ceiling is silently truncated to
// zero bytes, per spec.
func (f *File) Write(p []byte) (int, errors.DriverError) {
	if err := f.validate(); err != nil {
		return 0, err
	}
	if f.flags&(FlagWrite|FlagCreateAlways|FlagOpenAlways) == 0 {
		return 0, errors.Denied
	}
	if f.status&fileErrorBit != 0 {
		return 0, errors.RWError
	}

	if uint64(f.pos)+uint64(len(p)) > 0xFFFFFFFF {
		return 0, nil
	}

	total := 0
	for len(p) > 0 {
		n, err := f.transferOne(p, true)
		if err != nil {
			f.status |= fileErrorBit
			return total, err
		}
		if n == 0 {
			break
		}
		total += n
		p = p[n:]
		f.status |= fileWrittenBit
	}
	if f.pos > f.size {
		f.size = f.pos
	}
	return total, nil
}

// transferOne moves bytes from the current position up to the end of the
// current sector, or for a direct transfer up to the end of the current
// cluster, choosing among the three regimes spec.md section 4.10
// describes: boundary-with-no-buffer, boundary-with-a-direct-multi-sector
// span, and fractional (through the private buffer).
func (f *File) transferOne(p []byte, write bool) (int, errors.DriverError) {
	atBoundary := f.pos%SectorSize == 0

	if atBoundary && !f.bufValid {
		if err := f.flushBuffer(); err != nil {
			return 0, err
		}
		if err := f.advanceSector(write); err != nil {
			return 0, err
		}
	}

	offsetInSector := int(f.pos % SectorSize)

	if atBoundary && offsetInSector == 0 && len(p) >= SectorSize && f.secLeft > 0 {
		span := uint(f.secLeft)
		maxSpan := uint(len(p) / SectorSize)
		if span > maxSpan {
			span = maxSpan
		}
		if span == 0 {
			span = 1
		}

		if write {
			if err := f.vol.device.WriteSectors(f.curSec, span, p[:span*SectorSize]); err != nil {
				return 0, err
			}
		} else {
			if err := f.vol.device.ReadSectors(f.curSec, span, p[:span*SectorSize]); err != nil {
				return 0, err
			}
		}

		// Leave curSec on the last sector transferred, as the buffered path
		// does, so the next advanceSector steps to the one after it.
		f.pos += uint32(span) * SectorSize
		f.curSec += SectorID(span - 1)
		f.secLeft -= uint8(span - 1)
		f.bufValid = false
		return int(span) * SectorSize, nil
	}

	if !f.bufValid {
		if write && (offsetInSector != 0 || f.pos < f.size) {
			if err := f.vol.device.ReadSectors(f.curSec, 1, f.buf[:]); err != nil {
				return 0, err
			}
		} else if !write {
			if err := f.vol.device.ReadSectors(f.curSec, 1, f.buf[:]); err != nil {
				return 0, err
			}
		}
		f.bufValid = true
	}

	n := SectorSize - offsetInSector
	if n > len(p) {
		n = len(p)
	}
	if write {
		copy(f.buf[offsetInSector:offsetInSector+n], p[:n])
		f.status |= fileDirtyBit
	} else {
		copy(p[:n], f.buf[offsetInSector:offsetInSector+n])
	}
	f.pos += uint32(n)

	if f.pos%SectorSize == 0 {
		if err := f.flushBuffer(); err != nil {
			return 0, err
		}
		f.bufValid = false
	}
	return n, nil
}

// advanceSector moves curSec/curClus/secLeft to the sector that now holds
// file_position, following (read) or extending (write) the cluster chain
// when a cluster boundary is crossed.
//
// At file_position == 0 the current sector comes from origin directly
// (allocating origin itself if the file is still empty on a write),
// mirroring the original's `if (fp->fptr == 0) clust = fp->org_clust;`.
// Every later boundary crossing instead follows or extends the chain from
// curClus, since curClus is already sitting on a real, allocated cluster.
func (f *File) advanceSector(write bool) errors.DriverError {
	if f.pos == 0 {
		clus := f.origin
		if clus == 0 {
			if !write {
				return errors.RWError.WithMessage("read past end of chain")
			}
			next, err := f.vol.extendOrFollow(0)
			if err != nil {
				return err
			}
			clus = next
			f.origin = next
		}
		f.curClus = clus
		f.curSec = f.vol.clusterToSector(clus)
		f.secLeft = f.vol.sectorsPerCluster
		return nil
	}

	if f.secLeft > 1 {
		f.curSec++
		f.secLeft--
		return nil
	}

	var next ClusterID
	var err errors.DriverError
	if write {
		next, err = f.vol.extendOrFollow(f.curClus)
	} else {
		next, err = f.vol.getLink(f.curClus)
		if err == nil && (next < 2 || f.vol.isEndOfChain(next)) {
			return errors.RWError.WithMessage("read past end of chain")
		}
	}
	if err != nil {
		return err
	}

	f.curClus = next
	f.curSec = f.vol.clusterToSector(next)
	f.secLeft = f.vol.sectorsPerCluster
	return nil
}

func (f *File) flushBuffer() errors.DriverError {
	if f.status&fileDirtyBit == 0 || !f.bufValid {
		return nil
	}
	if err := f.vol.device.WriteSectors(f.curSec, 1, f.buf[:]); err != nil {
		return err
	}
	f.status &^= fileDirtyBit
	return nil
}

// Seek implements spec.md section 4.10's seek(offset): flushes any dirty
// sector, clips to file_size, then walks the chain to locate the target
// sector, loading it if the new offset isn't sector-aligned.
func (f *File) Seek(offset uint32) errors.DriverError {
	if err := f.validate(); err != nil {
		return err
	}
	if f.status&fileErrorBit != 0 {
		return errors.RWError
	}
	if err := f.flushBuffer(); err != nil {
		return err
	}

	target := offset
	if target > f.size {
		target = f.size
	}

	f.curClus = f.origin
	f.bufValid = false

	clustersToWalk := uint32(0)
	if target > 0 {
		clustersToWalk = (target - 1) / (uint32(f.vol.sectorsPerCluster) * SectorSize)
	}

	if f.curClus == 0 && target > 0 {
		newClus, err := f.vol.extendOrFollow(0)
		if err != nil {
			return err
		}
		f.curClus = newClus
		f.origin = newClus
	}

	for i := uint32(0); i < clustersToWalk; i++ {
		next, err := f.vol.extendOrFollow(f.curClus)
		if err != nil {
			return err
		}
		f.curClus = next
	}

	sectorInCluster := uint32(0)
	if target > 0 {
		sectorInCluster = ((target - 1) % (uint32(f.vol.sectorsPerCluster) * SectorSize)) / SectorSize
	}
	f.curSec = f.vol.clusterToSector(f.curClus) + SectorID(sectorInCluster)
	f.secLeft = f.vol.sectorsPerCluster - uint8(sectorInCluster)
	f.pos = target

	if target%SectorSize != 0 {
		if err := f.vol.device.ReadSectors(f.curSec, 1, f.buf[:]); err != nil {
			return err
		}
		f.bufValid = true
	}
	return nil
}

// Sync implements spec.md section 4.10's sync: flush the private buffer,
// then update the owning directory entry's archive bit, cluster fields,
// modification time, and size.
func (f *File) Sync() errors.DriverError {
	if err := f.validate(); err != nil {
		return err
	}
	if f.status&fileWrittenBit == 0 {
		return nil
	}
	if err := f.flushBuffer(); err != nil {
		return err
	}

	entry, err := f.vol.entryAt(f.dirPos)
	if err != nil {
		return err
	}
	entry[direntAttr] |= AttrArchive
	direntSetCluster(entry, f.origin)
	storeU32(entry, direntFileSize, f.size)

	stamp := f.vol.clock()
	date, tm := fatTimeToDirentFields(stamp)
	storeU16(entry, direntModDate, date)
	storeU16(entry, direntModTime, tm)

	f.vol.markWindowDirty()
	if err := f.vol.flushWindow(); err != nil {
		return err
	}

	f.status &^= fileWrittenBit
	return nil
}

// Close implements spec.md section 4.10's close: sync, then sever the
// handle so later validate calls fail with INVALID_OBJECT.
func (f *File) Close() errors.DriverError {
	if err := f.validate(); err != nil {
		return err
	}
	err := f.Sync()
	f.vol = nil
	return err
}
