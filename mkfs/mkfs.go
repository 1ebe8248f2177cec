// Package mkfs is the caller-facing front end to the FAT engine's format
// operation: a friendlier Plan struct, multi-constraint validation (every
// violation reported together, not just the first), and a thin call into
// the engine's Format.
package mkfs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/diskofat/drivers/fat"
	"github.com/dargueta/diskofat/errors"
)

// Plan is mkfs's caller-facing input, translated into fat.FormatOptions
// once Validate passes.
type Plan struct {
	TotalSectors      uint32
	SectorsPerCluster uint8
	FATCopies         uint8
	Partitioned       bool
	VolumeLabel       string
}

// Validate checks every constraint spec.md section 4.11 implies
// independently, using go-multierror so a caller sees all of them at once
// instead of fixing one violation only to hit the next on retry.
func (p Plan) Validate() error {
	var result *multierror.Error

	if p.TotalSectors < 128 {
		result = multierror.Append(result, fmt.Errorf(
			"total sectors must be at least 128, got %d", p.TotalSectors))
	}
	if p.SectorsPerCluster == 0 || (p.SectorsPerCluster&(p.SectorsPerCluster-1)) != 0 {
		result = multierror.Append(result, fmt.Errorf(
			"sectors per cluster must be a power of two, got %d", p.SectorsPerCluster))
	}
	if p.SectorsPerCluster > 128 {
		result = multierror.Append(result, fmt.Errorf(
			"sectors per cluster must not exceed 128, got %d", p.SectorsPerCluster))
	}
	if p.FATCopies == 0 {
		result = multierror.Append(result, fmt.Errorf("at least one FAT copy is required"))
	}
	if len(p.VolumeLabel) > 11 {
		result = multierror.Append(result, fmt.Errorf(
			"volume label must be at most 11 characters, got %q", p.VolumeLabel))
	}

	return result.ErrorOrNil()
}

// Format validates plan and, if it passes, formats dev in place.
// Validation failures are returned as errors.MKFSAborted wrapping the
// combined validation error; a failure during the write phase
// itself is returned as the engine's own errors.DriverError.
func Format(dev fat.BlockDevice, plan Plan) error {
	if err := plan.Validate(); err != nil {
		return errors.MKFSAborted.WrapError(err)
	}

	rule := fat.PartitionNone
	if plan.Partitioned {
		rule = fat.PartitionFDISK
	}

	opts := fat.FormatOptions{
		TotalSectors:      plan.TotalSectors,
		SectorsPerCluster: plan.SectorsPerCluster,
		FATCopies:         plan.FATCopies,
		Rule:              rule,
		VolumeLabel:       plan.VolumeLabel,
	}

	if err := fat.Format(dev, opts); err != nil {
		return err
	}
	return nil
}
