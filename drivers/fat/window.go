package fat

import "github.com/dargueta/diskofat/errors"

// inFATRegion reports whether sector lies in this volume's primary FAT copy,
// i.e. the range that set_link's write-back must replicate to every
// additional FAT copy.
func (v *Volume) inFATRegion(sector SectorID) bool {
	return sector >= v.fatBase && sector < v.fatBase+SectorID(v.sectorsPerFAT)
}

// moveWindow implements spec.md section 4.2. If target equals the sector
// already resident, this is a no-op. Otherwise any dirty window is written
// back first -- replicated to every FAT copy if it held a FAT sector -- and
// then, unless target is 0 (the "flush only" form), target is loaded.
func (v *Volume) moveWindow(target SectorID) errors.DriverError {
	if target == v.windowSector {
		return nil
	}

	if v.windowDirty {
		if err := v.device.WriteSectors(v.windowSector, 1, v.window[:]); err != nil {
			return err
		}
		if v.inFATRegion(v.windowSector) {
			for k := uint8(1); k < v.fatCopies; k++ {
				mirror := v.windowSector + SectorID(uint32(k)*v.sectorsPerFAT)
				if err := v.device.WriteSectors(mirror, 1, v.window[:]); err != nil {
					return err
				}
			}
		}
		v.windowDirty = false
	}

	if target == 0 {
		// Flush-only form: the window's contents are left unspecified.
		v.windowSector = 0
		return nil
	}

	if err := v.device.ReadSectors(target, 1, v.window[:]); err != nil {
		return err
	}
	v.windowSector = target
	return nil
}

// markWindowDirty flags the resident window as modified. Callers must have
// already written their change into v.window.
func (v *Volume) markWindowDirty() {
	v.windowDirty = true
}

// flushWindow flushes a dirty window without loading a replacement sector.
func (v *Volume) flushWindow() errors.DriverError {
	return v.moveWindow(0)
}
