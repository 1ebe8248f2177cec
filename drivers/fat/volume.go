// Package fat implements a FAT12/FAT16/FAT32 driver for resource-constrained
// environments: a volume holds exactly one 512-byte window (the FAT or
// directory sector currently resident in memory) and each open file holds
// exactly one 512-byte private buffer. There is no other caching layer.
package fat

import (
	"github.com/dargueta/diskofat/errors"
)

// SectorSize is the fixed sector size this driver understands. The FAT
// specification allows 512, 1024, 2048 or 4096, but every structure offset
// in this package assumes 512, matching the embedded targets the design is
// meant for.
const SectorSize = 512

// FSType identifies which flavor of FAT a mounted Volume is using. The FAT
// engine shares one API across all three; only cell width and the
// end-of-chain sentinel differ.
type FSType uint8

const (
	FSUnknown FSType = iota
	FSFAT12
	FSFAT16
	FSFAT32
)

func (t FSType) String() string {
	switch t {
	case FSFAT12:
		return "FAT12"
	case FSFAT16:
		return "FAT16"
	case FSFAT32:
		return "FAT32"
	default:
		return "unknown"
	}
}

// ClusterID, SectorID and MountID are named integer types so engine code
// can't accidentally mix a cluster index with a raw LBA or a generation
// counter, the same discipline the teacher applies in drivers/fat.
type ClusterID uint32
type SectorID uint32
type MountID uint16

// Cluster cell values below 2 are reserved; valid clusters satisfy
// 2 <= c < maxClusterPlusOne. get_link returns one of these two sentinels
// for a cell that doesn't hold a normal successor cluster.
const (
	clusterFree     ClusterID = 0
	clusterReserved ClusterID = 1
	// clusterBad is what getLink returns for an out-of-range cluster or a
	// failed FAT read. It equals clusterReserved, so a cell holding the
	// reserved value 1 reads back the same; an I/O failure is told apart
	// by getLink's error result.
	clusterBad ClusterID = 1
)

// End-of-chain thresholds per FAT type (spec.md section 3). A cell value at
// or above the threshold marks the last cluster of a chain.
const (
	eocFAT12 ClusterID = 0xFF8
	eocFAT16 ClusterID = 0xFFF8
	eocFAT32 ClusterID = 0x0FFFFFF8
)

// Status bits returned by BlockDevice.Init / BlockDevice.Status.
type Status uint8

const (
	StatusNotInitialized Status = 1 << iota
	StatusNoMedia
	StatusWriteProtected
)

// IoctlCode enumerates the block-port ioctl operations this driver issues.
// Only GetSectors is required; the rest are optional per spec.md section 6
// and a BlockDevice may return an error for them (blockdev's devices return
// errors.NotEnabled).
type IoctlCode uint8

const (
	IoctlGetSectors IoctlCode = iota
	IoctlPower
	IoctlLock
	IoctlEject
	IoctlMediaInfo
)

// BlockDevice is the narrow capability this driver consumes. All I/O is
// sector-aligned and synchronous; there is no asynchronous or partial
// completion path.
type BlockDevice interface {
	Init() Status
	Status() Status
	ReadSectors(lba SectorID, count uint, buf []byte) errors.DriverError
	WriteSectors(lba SectorID, count uint, buf []byte) errors.DriverError
	Ioctl(code IoctlCode, arg any) (any, errors.DriverError)
}

// WallClock returns a packed 32-bit FAT timestamp: bits 31..25 year-1980,
// 24..21 month, 20..16 day, 15..11 hour, 10..5 minute, 4..0 second/2.
type WallClock func() uint32

// Config holds the compile-time-equivalent knobs spec.md section 6
// describes. A microcontroller build fixes these once; this module exposes
// them as runtime fields since Go has no conditional compilation worth
// using here.
type Config struct {
	// ReadOnly is stored with the volume but no operation consults it:
	// write operations stay available when it is set.
	ReadOnly bool
	// Minimize is stored with the volume but no operation consults it:
	// Stat/GetFree/Unlink/Mkdir/Chmod/Rename and OpenDir/ReadDir stay
	// available at every level.
	Minimize int
	// Drives is the number of logical-drive slots the slot table manages.
	Drives int
	// ShiftJIS accepts Shift-JIS lead bytes in 8.3 names.
	ShiftJIS bool
	// EnableMkfs is not consulted; Format is always available.
	EnableMkfs bool
}

// Volume is the in-memory state for one mounted logical drive: geometry
// derived from its boot sector, the allocation cursor, and the single
// 512-byte window described in spec.md section 3.
type Volume struct {
	device BlockDevice
	clock  WallClock
	cfg    Config

	fsType             FSType
	sectorsPerCluster  uint8
	fatCopies          uint8
	physicalDriveID    int
	mountID            MountID
	rootDirEntryCount  uint16
	sectorsPerFAT      uint32
	maxClusterPlusOne  ClusterID
	fatBase            SectorID
	dirBase            uint32 // LBA for FAT12/16 static root, cluster number for FAT32
	dataBase           SectorID
	fsInfoSector       SectorID // FAT32 only; 0 if not applicable
	lastAllocated      ClusterID
	windowSector       SectorID
	windowDirty        bool
	window             [SectorSize]byte
}

// NewVolume builds an unmounted Volume bound to device. The first
// operation performed against it (Open, Stat, Mkdir, ...) triggers
// autoMount.
func NewVolume(device BlockDevice, clock WallClock, cfg Config) *Volume {
	return &Volume{device: device, clock: clock, cfg: cfg}
}

// eocLimit returns the end-of-chain threshold for this volume's FAT type.
func (v *Volume) eocLimit() ClusterID {
	switch v.fsType {
	case FSFAT12:
		return eocFAT12
	case FSFAT16:
		return eocFAT16
	default:
		return eocFAT32
	}
}

// isEndOfChain reports whether a raw cell value (already masked to the
// type's significant bits) denotes the end of a chain rather than a
// successor cluster.
func (v *Volume) isEndOfChain(cell ClusterID) bool {
	if v.fsType == FSFAT32 {
		// Open question in spec.md section 9: test the masked 28-bit value
		// against the literal sentinel, not against maxClusterPlusOne.
		return (cell & 0x0FFFFFFF) >= eocFAT32
	}
	return cell >= v.eocLimit()
}

// IsValidCluster reports whether c is usable as a data cluster index.
func (v *Volume) IsValidCluster(c ClusterID) bool {
	return c >= 2 && c < v.maxClusterPlusOne
}

// clusterToSector implements spec.md section 4.4.
func (v *Volume) clusterToSector(c ClusterID) SectorID {
	if !v.IsValidCluster(c) {
		return 0
	}
	return v.dataBase + SectorID(uint32(c-2)*uint32(v.sectorsPerCluster))
}

// FSType returns the classified FAT variant of the mounted volume.
func (v *Volume) FSType() FSType { return v.fsType }

// MountID returns the volume's current mount generation.
func (v *Volume) MountID() MountID { return v.mountID }
