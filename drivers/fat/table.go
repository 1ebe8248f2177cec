package fat

import "github.com/dargueta/diskofat/errors"

// readFATByte and writeFATByte are the single-byte FAT accessors the FAT12
// cell straddle needs: a cell can span two sectors, so the engine's inner
// loop reads or writes one byte, advances the window if the next byte
// landed in the following sector, and only ever has one sector resident at
// a time (spec.md section 9).
func (v *Volume) readFATByte(byteOffset uint32) (byte, errors.DriverError) {
	sector := v.fatBase + SectorID(byteOffset/SectorSize)
	if err := v.moveWindow(sector); err != nil {
		return 0, err
	}
	return v.window[byteOffset%SectorSize], nil
}

func (v *Volume) writeFATByte(byteOffset uint32, value byte) errors.DriverError {
	sector := v.fatBase + SectorID(byteOffset/SectorSize)
	if err := v.moveWindow(sector); err != nil {
		return err
	}
	v.window[byteOffset%SectorSize] = value
	v.markWindowDirty()
	return nil
}

// getLink implements spec.md section 4.3's get_link. It returns the free
// sentinel (0), a successor cluster (>=2; FAT32 cells masked to 28 bits),
// an end-of-chain value
// (>= this FAT type's EOC threshold), or clusterBad (1) if c is out of
// range or an I/O error occurred.
func (v *Volume) getLink(c ClusterID) (ClusterID, errors.DriverError) {
	if c < 2 || c >= v.maxClusterPlusOne {
		return clusterBad, nil
	}

	switch v.fsType {
	case FSFAT12:
		byteOff := uint32(c) + uint32(c)/2
		lo, err := v.readFATByte(byteOff)
		if err != nil {
			return clusterBad, err
		}
		hi, err := v.readFATByte(byteOff + 1)
		if err != nil {
			return clusterBad, err
		}
		cell := uint16(lo) | uint16(hi)<<8
		if c&1 != 0 {
			return ClusterID(cell >> 4), nil
		}
		return ClusterID(cell & 0x0FFF), nil

	case FSFAT16:
		byteOff := uint32(c) * 2
		if err := v.moveWindow(v.fatBase + SectorID(byteOff/SectorSize)); err != nil {
			return clusterBad, err
		}
		return ClusterID(loadU16(v.window[:], int(byteOff%SectorSize))), nil

	default: // FSFAT32
		byteOff := uint32(c) * 4
		if err := v.moveWindow(v.fatBase + SectorID(byteOff/SectorSize)); err != nil {
			return clusterBad, err
		}
		return ClusterID(loadU32(v.window[:], int(byteOff%SectorSize)) & 0x0FFFFFFF), nil
	}
}

// setLink implements spec.md section 4.3's set_link. It marks the window
// dirty so the write-back cascades to every FAT copy at eviction time
// (spec.md section 9 -- mirroring happens at move_window, not here, to
// avoid doubling I/O during a truncate or free scan).
func (v *Volume) setLink(c ClusterID, value ClusterID) errors.DriverError {
	if c < 2 || c >= v.maxClusterPlusOne {
		return errors.InvalidName.WithMessage("cluster index out of range")
	}

	switch v.fsType {
	case FSFAT12:
		byteOff := uint32(c) + uint32(c)/2
		lo, err := v.readFATByte(byteOff)
		if err != nil {
			return err
		}
		var newLo byte
		if c&1 != 0 {
			newLo = (lo & 0x0F) | byte(value<<4)
		} else {
			newLo = byte(value)
		}
		if err := v.writeFATByte(byteOff, newLo); err != nil {
			return err
		}

		hi, err := v.readFATByte(byteOff + 1)
		if err != nil {
			return err
		}
		var newHi byte
		if c&1 != 0 {
			newHi = byte(value >> 4)
		} else {
			newHi = (hi & 0xF0) | byte(value>>8)&0x0F
		}
		return v.writeFATByte(byteOff+1, newHi)

	case FSFAT16:
		byteOff := uint32(c) * 2
		if err := v.moveWindow(v.fatBase + SectorID(byteOff/SectorSize)); err != nil {
			return err
		}
		storeU16(v.window[:], int(byteOff%SectorSize), uint16(value))
		v.markWindowDirty()
		return nil

	default: // FSFAT32
		byteOff := uint32(c) * 4
		if err := v.moveWindow(v.fatBase + SectorID(byteOff/SectorSize)); err != nil {
			return err
		}
		// Preserve the reserved high 4 bits of the cell on write.
		existing := loadU32(v.window[:], int(byteOff%SectorSize))
		merged := (existing & 0xF0000000) | (uint32(value) & 0x0FFFFFFF)
		storeU32(v.window[:], int(byteOff%SectorSize), merged)
		v.markWindowDirty()
		return nil
	}
}

// allocateNext implements spec.md section 4.3's allocate_next: starting
// from hint (or cluster 1 to mean "start the scan at 2"), walk clusters
// circularly until a free cell (0) is found, mark it end-of-chain, link the
// predecessor if one was given, and update lastAllocated.
func (v *Volume) allocateNext(hint ClusterID, predecessor ClusterID) (ClusterID, errors.DriverError) {
	start := hint
	if start < 2 || start >= v.maxClusterPlusOne {
		start = 1
	}

	next := start
	for {
		next++
		if next >= v.maxClusterPlusOne {
			next = 2
			if start == 1 {
				return 0, errors.DiskFull.WithMessage("no free cluster")
			}
		}
		if next == start {
			return 0, errors.DiskFull.WithMessage("cluster scan wrapped without finding space")
		}

		cell, err := v.getLink(next)
		if err != nil {
			return 0, err
		}
		if cell == clusterBad {
			return 0, errors.RWError.WithMessage("fat read failed during allocation scan")
		}
		if cell == clusterFree {
			break
		}
	}

	if err := v.setLink(next, v.eocLimit()); err != nil {
		return 0, err
	}
	if predecessor != 0 {
		if err := v.setLink(predecessor, next); err != nil {
			return 0, err
		}
	}
	v.lastAllocated = next
	return next, nil
}

// extendOrFollow implements spec.md section 4.3's extend_or_follow, used by
// file writes: if c already has a live successor, return it; if c is at
// end-of-chain, allocate a new cluster and link it; if c is 0 ("create from
// empty"), allocate fresh starting from the last-allocated hint.
func (v *Volume) extendOrFollow(c ClusterID) (ClusterID, errors.DriverError) {
	if c == 0 {
		return v.allocateNext(v.lastAllocated, 0)
	}

	cell, err := v.getLink(c)
	if err != nil {
		return 0, err
	}
	if cell == clusterBad {
		return 0, errors.RWError.WithMessage("fat read failed")
	}
	if cell >= 2 && !v.isEndOfChain(cell) {
		return cell, nil
	}
	return v.allocateNext(c, c)
}

// truncateChain implements spec.md section 4.3's truncate_chain: walk from
// c, zeroing each cell, until end-of-chain is reached. c == 0 is a no-op.
// Per the Open Questions in spec.md section 9, this does not touch the
// owning directory entry's cluster/size fields -- that is the caller's
// responsibility.
func (v *Volume) truncateChain(c ClusterID) errors.DriverError {
	for c != 0 {
		next, err := v.getLink(c)
		if err != nil {
			return err
		}
		if err := v.setLink(c, clusterFree); err != nil {
			return err
		}
		if next < 2 || v.isEndOfChain(next) {
			break
		}
		c = next
	}
	return nil
}
