package fat

import (
	"bytes"

	"github.com/dargueta/diskofat/errors"
)

// rootStartCluster returns the cluster dirIter should start from to walk
// the root directory: the FAT32 root cluster (stored in dirBase), or 0 for
// the static FAT12/16 root.
func (v *Volume) rootStartCluster() ClusterID {
	if v.fsType == FSFAT32 {
		return ClusterID(v.dirBase)
	}
	return 0
}

// locateResult is the outcome of walking a path to its last segment. If
// Found is false, Name/NTFlag/ParentStart describe the slot a creator
// (Open CREATE_ALWAYS/OPEN_ALWAYS, Mkdir, rename's destination) would need
// to reserve; no entry has been read or written.
type locateResult struct {
	Found       bool
	Pos         DirPos
	Raw         [direntSize]byte
	ParentStart ClusterID
	Name        [11]byte
	NTFlag      byte
}

// locate implements spec.md section 4.7's trace, generalized to serve both
// lookup (stat, unlink, open-for-read) and create (open CREATE_ALWAYS,
// mkdir, rename's destination) callers: intermediate segments must resolve
// to directories (NoPath otherwise); the last segment either matches an
// existing entry (Found == true) or doesn't (Found == false, with enough
// information to reserve a new slot in the right parent).
func (v *Volume) locate(path string) (locateResult, errors.DriverError) {
	raw := []byte(path)
	idx := 0
	if idx < len(raw) && raw[idx] == '/' {
		idx++
	}
	if idx >= len(raw) {
		return locateResult{}, errors.InvalidName.WithMessage("empty path")
	}

	parentStart := v.rootStartCluster()
	it := newDirIter(v, parentStart)

	for {
		name, ntFlag, nextIdx, term, nerr := make83Name(raw, idx, v.cfg.ShiftJIS)
		if nerr != nil {
			return locateResult{}, nerr
		}
		idx = nextIdx
		isLast := term == segmentEnd

		found := false
		var matched [direntSize]byte
		var matchedPos DirPos

		for {
			pos := it.pos()
			entry, eerr := v.entryAt(pos)
			if eerr != nil {
				return locateResult{}, eerr
			}

			first := entry[0]
			if first == direntFreeMarker {
				break
			}
			if first != direntDeletedMarker &&
				entry[direntAttr] != AttrLongName &&
				entry[direntAttr]&AttrVolume == 0 {
				if bytes.Equal(entry[0:11], name[:]) {
					copy(matched[:], entry)
					matchedPos = pos
					found = true
					break
				}
			}

			ok, aerr := it.advance()
			if aerr != nil {
				return locateResult{}, aerr
			}
			if !ok {
				break
			}
		}

		if !found {
			if isLast {
				return locateResult{Found: false, ParentStart: parentStart, Name: name, NTFlag: ntFlag}, nil
			}
			return locateResult{}, errors.NoPath
		}

		if isLast {
			return locateResult{Found: true, Pos: matchedPos, Raw: matched, ParentStart: parentStart}, nil
		}

		if matched[direntAttr]&AttrDirectory == 0 {
			return locateResult{}, errors.NoPath.WithMessage("path component is not a directory")
		}

		parentStart = direntClusterOf(matched[:])
		it = newDirIter(v, parentStart)
	}
}

// trace is the strict form of locate used by read-only/lookup operations:
// a missing last segment is reported as NoFile rather than handed back as
// a reservation target.
func (v *Volume) trace(path string) (locateResult, errors.DriverError) {
	res, err := v.locate(path)
	if err != nil {
		return locateResult{}, err
	}
	if !res.Found {
		return locateResult{}, errors.NoFile
	}
	return res, nil
}
