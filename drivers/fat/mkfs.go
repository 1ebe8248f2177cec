package fat

import (
	"github.com/boljen/go-bitmap"
	"github.com/noxer/bytewriter"

	"github.com/dargueta/diskofat/errors"
)

// PartitioningRule selects how mkfs lays out the device, per spec.md
// section 4.11.
type PartitioningRule uint8

const (
	// PartitionFDISK writes a single primary MBR partition starting at
	// LBA 63 and puts the filesystem there.
	PartitionFDISK PartitioningRule = iota
	// PartitionNone places the filesystem directly at LBA 0 with no
	// partition table.
	PartitionNone
)

const (
	fdiskPartitionLBA = 63
	eraseBlockSectors = 32
)

// FormatOptions is the low-level geometry mkfs needs: the public mkfs
// package computes these from a friendlier Plan and calls Format.
type FormatOptions struct {
	TotalSectors      uint32
	SectorsPerCluster uint8
	FATCopies         uint8
	Rule              PartitioningRule
	VolumeLabel       string // padded/truncated to 11 bytes
}

// Format implements spec.md section 4.11. It computes geometry, classifies
// the resulting FAT type, and writes (in this order, per spec.md section
// 5's ordering guarantee) the partition table, boot sector, FSInfo (FAT32
// only), every FAT copy, and the zeroed root directory.
func Format(dev BlockDevice, opts FormatOptions) errors.DriverError {
	if dev.Init()&StatusNotInitialized != 0 {
		return errors.NotReady
	}

	partitionLBA := SectorID(0)
	if opts.Rule == PartitionFDISK {
		partitionLBA = fdiskPartitionLBA
	}

	reservedSectors := uint16(1)
	availableSectors := opts.TotalSectors - uint32(partitionLBA)
	if availableSectors <= uint32(reservedSectors) {
		return errors.MKFSAborted.WithMessage("device too small for any filesystem")
	}

	rootDirEntryCount := uint16(512)
	fsType, sectorsPerFAT, rootDirSectors, err := classifyAndSizeFAT(
		availableSectors-uint32(reservedSectors), opts.SectorsPerCluster, opts.FATCopies, rootDirEntryCount)
	if err != nil {
		return err
	}

	if fsType == FSFAT32 {
		rootDirEntryCount = 0
		rootDirSectors = 0
		reservedSectors = 32 // room for boot sector, FSInfo, and backup boot sector
	}

	dataStart := partitionLBA + SectorID(reservedSectors) +
		SectorID(uint32(opts.FATCopies)*sectorsPerFAT) + SectorID(rootDirSectors)
	dataStart = roundUpToEraseBlock(dataStart)

	fatBase := partitionLBA + SectorID(reservedSectors)

	// metadataBlocks tracks, one bit per erase block (spec.md section 4.11's
	// 32-sector rounding unit), which erase blocks between the partition
	// start and the data area this format pass has written at least one
	// sector of. After all writes, every erase block lying wholly before the
	// first FAT sector must be marked, or Format fails; blocks from the FAT
	// onward are marked but not checked.
	numBlocks := int(roundUpToEraseBlock(dataStart-partitionLBA)) / eraseBlockSectors
	metadataBlocks := bitmap.New(numBlocks)
	markBlock := func(sector SectorID) {
		idx := int(sector-partitionLBA) / eraseBlockSectors
		if idx >= 0 && idx < numBlocks {
			metadataBlocks.Set(idx, true)
		}
	}

	if opts.Rule == PartitionFDISK {
		if werr := writePartitionTable(dev, partitionLBA, opts.TotalSectors-uint32(partitionLBA)); werr != nil {
			return werr
		}
		markBlock(partitionLBA)
	}

	if werr := writeBootSector(dev, partitionLBA, fsType, opts, reservedSectors, sectorsPerFAT, rootDirEntryCount); werr != nil {
		return werr
	}
	markBlock(partitionLBA)

	if fsType == FSFAT32 {
		if werr := writeFSInfoSector(dev, partitionLBA, opts.TotalSectors); werr != nil {
			return werr
		}
		markBlock(partitionLBA + 1)
	}

	if werr := writeFATCopies(dev, fatBase, sectorsPerFAT, opts.FATCopies, fsType, dataStart); werr != nil {
		return werr
	}
	for k := uint8(0); k < opts.FATCopies; k++ {
		base := fatBase + SectorID(uint32(k)*sectorsPerFAT)
		for s := uint32(0); s < sectorsPerFAT; s += eraseBlockSectors {
			markBlock(base + SectorID(s))
		}
	}

	if werr := zeroRootDirectory(dev, fsType, fatBase, sectorsPerFAT, opts.FATCopies, rootDirSectors, dataStart, opts.SectorsPerCluster); werr != nil {
		return werr
	}
	if fsType != FSFAT32 {
		rootBase := fatBase + SectorID(uint32(opts.FATCopies)*sectorsPerFAT)
		for s := uint32(0); s < rootDirSectors; s += eraseBlockSectors {
			markBlock(rootBase + SectorID(s))
		}
	} else {
		markBlock(dataStart)
	}

	reservedEnd := int(fatBase-partitionLBA) / eraseBlockSectors
	for i := 0; i < reservedEnd; i++ {
		if !metadataBlocks.Get(i) {
			return errors.MKFSAborted.WithMessage("mkfs left a reserved erase block unwritten")
		}
	}

	return nil
}

// classifyAndSizeFAT picks sectorsPerFAT large enough to address every
// cluster the available space can hold, then classifies the FAT type from
// the resulting cluster count, rejecting combinations spec.md section 4.11
// names as invalid (FAT16 with <0xFF7 clusters, FAT32 with <0xFFF7).
func classifyAndSizeFAT(usableSectors uint32, sectorsPerCluster, fatCopies uint8, rootDirEntryCount uint16) (FSType, uint32, uint32, errors.DriverError) {
	rootDirSectors := uint32(rootDirEntryCount) * direntSize / SectorSize

	var bitsPerCell uint32 = 12
	var sectorsPerFAT uint32
	var clusterCount uint32

	for attempt := 0; attempt < 3; attempt++ {
		dataSectors := usableSectors - uint32(fatCopies)*sectorsPerFAT - rootDirSectors
		clusterCount = dataSectors / uint32(sectorsPerCluster)

		fatBytes := (clusterCount + 2) * bitsPerCell / 8
		newSectorsPerFAT := (fatBytes + SectorSize - 1) / SectorSize
		if newSectorsPerFAT == sectorsPerFAT {
			break
		}
		sectorsPerFAT = newSectorsPerFAT

		switch {
		case clusterCount+2 >= 0xFFF7:
			bitsPerCell = 32
		case clusterCount+2 >= 0xFF7:
			bitsPerCell = 16
		default:
			bitsPerCell = 12
		}
	}

	maxClusterPlusOne := ClusterID(clusterCount + 2)
	var fsType FSType
	switch {
	case maxClusterPlusOne < 0xFF7:
		fsType = FSFAT12
	case maxClusterPlusOne < 0xFFF7:
		fsType = FSFAT16
	default:
		fsType = FSFAT32
	}

	if maxClusterPlusOne < 3 {
		return FSUnknown, 0, 0, errors.MKFSAborted.WithMessage("too few clusters to hold a filesystem")
	}

	return fsType, sectorsPerFAT, rootDirSectors, nil
}

func roundUpToEraseBlock(sector SectorID) SectorID {
	rem := uint32(sector) % eraseBlockSectors
	if rem == 0 {
		return sector
	}
	return sector + SectorID(eraseBlockSectors-rem)
}

func writePartitionTable(dev BlockDevice, partitionLBA SectorID, partitionSectors uint32) errors.DriverError {
	var mbr [SectorSize]byte
	entry := mbr[partitionEntry0:]
	entry[0] = 0x80 // bootable
	entry[4] = 0x0C // FAT32 LBA, close enough for any FAT variant here
	storeU32(entry, 8, uint32(partitionLBA))
	storeU32(entry, 12, partitionSectors)
	storeU16(mbr[:], bootSignatureOffset, 0xAA55)
	return dev.WriteSectors(0, 1, mbr[:])
}

// fat32RootCluster is always 2: mkfs places the root directory in the
// first cluster of the data area.
const fat32RootCluster = 2

func writeBootSector(dev BlockDevice, partitionLBA SectorID, fsType FSType, opts FormatOptions, reservedSectors uint16, sectorsPerFAT uint32, rootDirEntryCount uint16) errors.DriverError {
	var boot [SectorSize]byte

	boot[0] = 0xEB
	boot[1] = 0x3C
	boot[2] = 0x90
	copy(boot[3:11], "DISKOFAT")

	storeU16(boot[:], 11, SectorSize)
	boot[13] = opts.SectorsPerCluster
	storeU16(boot[:], 14, reservedSectors)
	boot[16] = opts.FATCopies
	storeU16(boot[:], 17, rootDirEntryCount)
	if opts.TotalSectors < 0x10000 {
		storeU16(boot[:], 19, uint16(opts.TotalSectors))
	} else {
		storeU32(boot[:], 32, opts.TotalSectors)
	}
	boot[21] = 0xF8 // media descriptor, fixed disk

	label := padLabel(opts.VolumeLabel)

	if fsType == FSFAT32 {
		storeU32(boot[:], 36, sectorsPerFAT)
		storeU32(boot[:], 44, fat32RootCluster)
		storeU16(boot[:], 48, 1)                  // FSInfo sector
		boot[64] = 0x80
		boot[66] = 0x29
		copy(boot[71:82], label)
		copy(boot[82:90], "FAT32   ")
	} else {
		storeU16(boot[:], 22, uint16(sectorsPerFAT))
		boot[36] = 0x80
		boot[38] = 0x29
		copy(boot[43:54], label)
		if fsType == FSFAT12 {
			copy(boot[54:62], "FAT12   ")
		} else {
			copy(boot[54:62], "FAT16   ")
		}
	}

	storeU16(boot[:], bootSignatureOffset, 0xAA55)
	return dev.WriteSectors(partitionLBA, 1, boot[:])
}

func padLabel(label string) []byte {
	if label == "" {
		return []byte("NO NAME    ")
	}
	out := []byte("           ")
	copy(out, label)
	return out
}

// writeFSInfoSector assembles the FAT32 FSInfo sector. Unlike the boot
// sector, every field here is written in strict offset order with no
// backward seeks, so it's built through a bytewriter instead of offset
// pokes into the array.
func writeFSInfoSector(dev BlockDevice, partitionLBA SectorID, totalSectors uint32) errors.DriverError {
	var info [SectorSize]byte
	w := bytewriter.New(info[:])

	var field [4]byte
	storeU32(field[:], 0, fsInfoLeadSig)
	w.Write(field[:])

	w.Write(make([]byte, 480))

	storeU32(field[:], 0, fsInfoStructSig)
	w.Write(field[:])

	storeU32(field[:], 0, 0xFFFFFFFF) // free count unknown; GetFree scans and fills it in
	w.Write(field[:])

	storeU32(field[:], 0, 0xFFFFFFFF) // next-free hint, also unknown
	w.Write(field[:])

	w.Write(make([]byte, 12))

	var trailSig [2]byte
	storeU16(trailSig[:], 0, 0xAA55)
	w.Write(trailSig[:])

	return dev.WriteSectors(partitionLBA+1, 1, info[:])
}

func writeFATCopies(dev BlockDevice, fatBase SectorID, sectorsPerFAT uint32, fatCopies uint8, fsType FSType, dataStart SectorID) errors.DriverError {
	var zero [SectorSize]byte
	for k := uint8(0); k < fatCopies; k++ {
		base := fatBase + SectorID(uint32(k)*sectorsPerFAT)
		for s := uint32(1); s < sectorsPerFAT; s++ {
			if err := dev.WriteSectors(base+SectorID(s), 1, zero[:]); err != nil {
				return err
			}
		}

		var head [SectorSize]byte
		switch fsType {
		case FSFAT12:
			head[0], head[1], head[2] = 0xF8, 0xFF, 0xFF
		case FSFAT16:
			storeU16(head[:], 0, 0xFFF8)
			storeU16(head[:], 2, 0xFFFF)
		default: // FAT32: cells 0 and 1 reserved, cell 2 is the root directory's
			storeU32(head[:], 0, 0x0FFFFFF8)
			storeU32(head[:], 4, 0xFFFFFFFF)
			storeU32(head[:], 8, 0x0FFFFFFF) // root cluster 2, end-of-chain
		}
		if err := dev.WriteSectors(base, 1, head[:]); err != nil {
			return err
		}
	}
	return nil
}

func zeroRootDirectory(dev BlockDevice, fsType FSType, fatBase SectorID, sectorsPerFAT uint32, fatCopies uint8, rootDirSectors uint32, dataStart SectorID, sectorsPerCluster uint8) errors.DriverError {
	var zero [SectorSize]byte

	if fsType != FSFAT32 {
		base := fatBase + SectorID(uint32(fatCopies)*sectorsPerFAT)
		for s := uint32(0); s < rootDirSectors; s++ {
			if err := dev.WriteSectors(base+SectorID(s), 1, zero[:]); err != nil {
				return err
			}
		}
		return nil
	}

	for s := uint8(0); s < sectorsPerCluster; s++ {
		if err := dev.WriteSectors(dataStart+SectorID(s), 1, zero[:]); err != nil {
			return err
		}
	}
	return nil
}
