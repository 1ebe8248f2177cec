// Package blockdev supplies two fat.BlockDevice implementations: one over
// an *os.File for real disk images, one over an in-memory buffer (via
// github.com/xaionaro-go/bytesextra) for tests, mirroring the teacher's
// testing.LoadDiskImage helper.
package blockdev

import (
	"io"
	"os"

	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/diskofat/drivers/fat"
	"github.com/dargueta/diskofat/errors"
)

// seekerDevice adapts any io.ReadWriteSeeker into a fat.BlockDevice. Both
// FileBlockDevice and MemBlockDevice are thin constructors around this.
type seekerDevice struct {
	rws          io.ReadWriteSeeker
	totalSectors uint
	status       fat.Status
}

func newSeekerDevice(rws io.ReadWriteSeeker, totalSectors uint) *seekerDevice {
	return &seekerDevice{rws: rws, totalSectors: totalSectors}
}

func (d *seekerDevice) Init() fat.Status {
	d.status = 0
	return d.status
}

func (d *seekerDevice) Status() fat.Status {
	return d.status
}

func (d *seekerDevice) ReadSectors(lba fat.SectorID, count uint, buf []byte) errors.DriverError {
	if _, err := d.rws.Seek(int64(lba)*fat.SectorSize, io.SeekStart); err != nil {
		return errors.RWError.WrapError(err)
	}
	n := int(count) * fat.SectorSize
	if _, err := io.ReadFull(d.rws, buf[:n]); err != nil {
		return errors.RWError.WrapError(err)
	}
	return nil
}

func (d *seekerDevice) WriteSectors(lba fat.SectorID, count uint, buf []byte) errors.DriverError {
	if d.status&fat.StatusWriteProtected != 0 {
		return errors.WriteProtected
	}
	if _, err := d.rws.Seek(int64(lba)*fat.SectorSize, io.SeekStart); err != nil {
		return errors.RWError.WrapError(err)
	}
	n := int(count) * fat.SectorSize
	if _, err := d.rws.Write(buf[:n]); err != nil {
		return errors.RWError.WrapError(err)
	}
	return nil
}

func (d *seekerDevice) Ioctl(code fat.IoctlCode, arg any) (any, errors.DriverError) {
	switch code {
	case fat.IoctlGetSectors:
		return d.totalSectors, nil
	default:
		return nil, errors.NotEnabled.WithMessage("ioctl not supported by this block device")
	}
}

// FileBlockDevice is a fat.BlockDevice backed by a real *os.File, for
// mounting a disk image from the filesystem.
type FileBlockDevice struct {
	*seekerDevice
	file *os.File
}

// OpenFileBlockDevice opens path and wraps it as a block device with the
// given total sector count (as would be reported by the host OS or a
// geometry.Geometry).
func OpenFileBlockDevice(path string, totalSectors uint, readOnly bool) (*FileBlockDevice, error) {
	flag := os.O_RDWR
	if readOnly {
		flag = os.O_RDONLY
	}
	f, err := os.OpenFile(path, flag, 0)
	if err != nil {
		return nil, err
	}
	dev := &FileBlockDevice{seekerDevice: newSeekerDevice(f, totalSectors), file: f}
	if readOnly {
		dev.status |= fat.StatusWriteProtected
	}
	return dev, nil
}

// Close releases the underlying file handle.
func (d *FileBlockDevice) Close() error {
	return d.file.Close()
}

// MemBlockDevice is a fat.BlockDevice backed by a RAM buffer, used by tests
// and by mkfs when formatting an image entirely in memory before writing it
// out.
type MemBlockDevice struct {
	*seekerDevice
}

// NewMemBlockDevice wraps a caller-owned buffer whose length must already
// equal totalSectors*512.
func NewMemBlockDevice(buf []byte, totalSectors uint) *MemBlockDevice {
	return &MemBlockDevice{seekerDevice: newSeekerDevice(bytesextra.NewReadWriteSeeker(buf), totalSectors)}
}
