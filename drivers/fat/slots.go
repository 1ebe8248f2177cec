package fat

import (
	"sync"

	"github.com/boljen/go-bitmap"

	"github.com/dargueta/diskofat/errors"
)

// slotTable is the process-wide registry of mounted logical drives
// (spec.md section 4.9): a drive number is only ever bound to one Volume at
// a time, and Mount picks the lowest free slot the same way the original
// C driver's f_mount scans its fixed FATFS array.
type slotTable struct {
	mu      sync.Mutex
	occupy  bitmap.Bitmap
	volumes []*Volume
}

// newSlotTable builds a table with room for n logical drives, the value
// supplied by Config.Drives.
func newSlotTable(n int) *slotTable {
	return &slotTable{
		occupy:  bitmap.New(n),
		volumes: make([]*Volume, n),
	}
}

// reserve claims a drive slot and binds vol to it. If drive is negative, the
// lowest-numbered free slot is used, matching f_mount's auto-assign
// behavior when called with an empty drive prefix.
func (t *slotTable) reserve(drive int, vol *Volume) (int, errors.DriverError) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if drive >= 0 {
		if drive >= len(t.volumes) {
			return 0, errors.InvalidDrive.WithMessage("drive number out of range")
		}
		if t.occupy.Get(drive) {
			return 0, errors.InvalidDrive.WithMessage("drive already mounted")
		}
		t.occupy.Set(drive, true)
		t.volumes[drive] = vol
		return drive, nil
	}

	for i := 0; i < len(t.volumes); i++ {
		if !t.occupy.Get(i) {
			t.occupy.Set(i, true)
			t.volumes[i] = vol
			return i, nil
		}
	}
	return 0, errors.InvalidDrive.WithMessage("no free drive slots")
}

// release frees a drive slot, allowing it to be reused by a later Mount.
func (t *slotTable) release(drive int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if drive < 0 || drive >= len(t.volumes) {
		return
	}
	t.occupy.Set(drive, false)
	t.volumes[drive] = nil
}

// lookup returns the Volume bound to drive, or nil if the slot is empty.
func (t *slotTable) lookup(drive int) *Volume {
	t.mu.Lock()
	defer t.mu.Unlock()

	if drive < 0 || drive >= len(t.volumes) {
		return nil
	}
	return t.volumes[drive]
}

// globalSlots is the process-wide table Mount and ResolveVolume consult,
// per spec.md section 9's "process-wide indexed set of mounted volumes".
// It's sized lazily from the first Mount call's Volume.Config.Drives.
var (
	globalSlots   *slotTable
	globalSlotsMu sync.Mutex
)

func ensureGlobalSlots(n int) *slotTable {
	globalSlotsMu.Lock()
	defer globalSlotsMu.Unlock()

	if globalSlots == nil {
		if n <= 0 {
			n = 1
		}
		globalSlots = newSlotTable(n)
	}
	return globalSlots
}

// Mount registers vol at the given drive slot and returns the slot it ended
// up at, per spec.md section 9's volume slot table. slot < 0 auto-assigns
// the lowest free slot. Passing vol == nil unregisters whatever currently
// occupies slot instead ("mount(slot, none)" in spec.md section 9's
// lifecycle description).
func Mount(slot int, vol *Volume) (int, errors.DriverError) {
	if vol == nil {
		if globalSlots != nil {
			globalSlots.release(slot)
		}
		return slot, nil
	}

	t := ensureGlobalSlots(vol.cfg.Drives)
	n, err := t.reserve(slot, vol)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// splitDrivePrefix recognizes spec.md section 6's "N:" path prefix: a
// single ASCII digit followed by a colon. ok is false if path carries no
// such prefix.
func splitDrivePrefix(path string) (slot int, rest string, ok bool) {
	if len(path) >= 2 && path[0] >= '0' && path[0] <= '9' && path[1] == ':' {
		return int(path[0] - '0'), path[2:], true
	}
	return 0, path, false
}

// ResolveVolume splits an "N:"-prefixed path into the Volume mounted at
// slot N and the remaining path, for callers that address volumes by drive
// number rather than holding a *Volume of their own. It fails if path
// carries no drive prefix or slot N isn't currently mounted; callers that
// already have a *Volume reference should keep using it directly and skip
// this entirely, as Open/Stat/OpenDir and friends already do.
func ResolveVolume(path string) (*Volume, string, errors.DriverError) {
	slot, rest, ok := splitDrivePrefix(path)
	if !ok {
		return nil, path, errors.InvalidName.WithMessage("path has no drive prefix")
	}
	if globalSlots == nil {
		return nil, path, errors.InvalidDrive.WithMessage("no drives mounted")
	}
	vol := globalSlots.lookup(slot)
	if vol == nil {
		return nil, path, errors.InvalidDrive.WithMessage("drive not mounted")
	}
	return vol, rest, nil
}
