package fat

import "github.com/dargueta/diskofat/errors"

var globalMountID MountID

// bootSignatureOffset and partitionEntry0 locate the two structures
// autoMount distinguishes between when it reads sector 0.
const (
	bootSignatureOffset = 510
	partitionEntry0     = 0x1BE
	partitionLBAOffset  = 0x1C6 // within partitionEntry0
)

// mounted reports whether this volume already has a classified FAT type,
// i.e. a prior autoMount succeeded and hasn't been invalidated.
func (v *Volume) mounted() bool {
	return v.fsType != FSUnknown && v.mountID != 0
}

// autoMount implements spec.md section 4.9. It is idempotent: if the
// volume is already mounted and the block device is still ready, it
// returns immediately (checking write-protection only when wantWrite is
// set).
func (v *Volume) autoMount(wantWrite bool) errors.DriverError {
	if v.mounted() {
		st := v.device.Status()
		if st&StatusNotInitialized == 0 {
			if wantWrite && st&StatusWriteProtected != 0 {
				return errors.WriteProtected
			}
			return nil
		}
	}

	v.fsType = FSUnknown
	v.mountID = 0
	v.windowSector = 0
	v.windowDirty = false

	if v.device.Init()&StatusNotInitialized != 0 {
		return errors.NotReady
	}

	var sector0 [SectorSize]byte
	if err := v.device.ReadSectors(0, 1, sector0[:]); err != nil {
		return err
	}

	partitionLBA := SectorID(0)
	boot := sector0

	if !isBootSector(boot[:]) {
		entry := boot[partitionEntry0:]
		if isEmptyPartitionEntry(entry) {
			return errors.NoFileSystem
		}
		partitionLBA = SectorID(loadU32(entry, partitionLBAOffset-partitionEntry0))

		var partSector [SectorSize]byte
		if err := v.device.ReadSectors(partitionLBA, 1, partSector[:]); err != nil {
			return err
		}
		boot = partSector
		if !isBootSector(boot[:]) {
			return errors.NoFileSystem
		}
	}

	reservedSectors := loadU16(boot[:], 14)
	sectorsPerFAT := uint32(loadU16(boot[:], 22))
	if sectorsPerFAT == 0 {
		sectorsPerFAT = loadU32(boot[:], 36)
	}
	rootDirEntryCount := loadU16(boot[:], 17)
	totalSectors := uint32(loadU16(boot[:], 19))
	if totalSectors == 0 {
		totalSectors = loadU32(boot[:], 32)
	}
	sectorsPerCluster := boot[13]
	fatCopies := boot[16]

	if sectorsPerCluster == 0 || fatCopies == 0 {
		return errors.NoFileSystem
	}

	rootDirSectors := uint32(rootDirEntryCount) * direntSize / SectorSize
	fatBase := partitionLBA + SectorID(reservedSectors)
	dataBase := fatBase + SectorID(uint32(fatCopies)*sectorsPerFAT) + SectorID(rootDirSectors)

	usableSectors := totalSectors - uint32(reservedSectors) - uint32(fatCopies)*sectorsPerFAT - rootDirSectors
	maxClusterPlusOne := ClusterID(usableSectors/uint32(sectorsPerCluster) + 2)

	var fsType FSType
	switch {
	case maxClusterPlusOne < 0xFF7:
		fsType = FSFAT12
	case maxClusterPlusOne < 0xFFF7:
		fsType = FSFAT16
	default:
		fsType = FSFAT32
	}

	var dirBase uint32
	var fsInfoSector SectorID
	if fsType == FSFAT32 {
		dirBase = loadU32(boot[:], 44)
		fsInfoSector = partitionLBA + SectorID(loadU16(boot[:], 48))
	} else {
		dirBase = uint32(fatBase) + uint32(fatCopies)*sectorsPerFAT
	}

	v.fsType = fsType
	v.sectorsPerCluster = sectorsPerCluster
	v.fatCopies = fatCopies
	v.rootDirEntryCount = rootDirEntryCount
	v.sectorsPerFAT = sectorsPerFAT
	v.maxClusterPlusOne = maxClusterPlusOne
	v.fatBase = fatBase
	v.dirBase = dirBase
	v.dataBase = dataBase
	v.fsInfoSector = fsInfoSector
	v.lastAllocated = 2

	globalMountID++
	if globalMountID == 0 {
		globalMountID = 1
	}
	v.mountID = globalMountID

	if wantWrite && v.device.Status()&StatusWriteProtected != 0 {
		return errors.WriteProtected
	}
	return nil
}

// isBootSector reports whether buf (one sector) carries the 0xAA55 boot
// signature and a "FAT"/"FAT32" marker at one of the two documented
// offsets (FAT12/16's BS_FilSysType at 54, FAT32's BS_FilSysType at 82).
func isBootSector(buf []byte) bool {
	if len(buf) < SectorSize {
		return false
	}
	if loadU16(buf, bootSignatureOffset) != 0xAA55 {
		return false
	}
	return hasFATMarker(buf[54:62]) || hasFATMarker(buf[82:90])
}

func hasFATMarker(field []byte) bool {
	if len(field) < 3 {
		return false
	}
	return field[0] == 'F' && field[1] == 'A' && field[2] == 'T'
}

// isEmptyPartitionEntry reports whether a 16-byte MBR partition entry
// describes no partition: a zero partition type byte.
func isEmptyPartitionEntry(entry []byte) bool {
	return len(entry) > 4 && entry[4] == 0
}

// handle is the embeddable base for file handles and directory iterators:
// every public operation on one begins with validate, per spec.md section
// 4.9.
type handle struct {
	vol               *Volume
	mountIDComplement MountID
}

func newHandle(vol *Volume) handle {
	return handle{vol: vol, mountIDComplement: ^vol.mountID}
}

// validate implements spec.md section 4.9's validate(handle): the
// complement recorded at open time must still match the bit-inverse of
// the volume's live mount generation, and the block device must still be
// ready.
func (h *handle) validate() errors.DriverError {
	if h.vol == nil {
		return errors.InvalidObject
	}
	if h.mountIDComplement != ^h.vol.mountID {
		return errors.InvalidObject
	}
	if h.vol.device.Status()&StatusNotInitialized != 0 {
		return errors.NotReady
	}
	return nil
}
