package fat

import (
	"github.com/dargueta/diskofat/errors"
	"golang.org/x/text/encoding/japanese"
)

var sjisDecoder = japanese.ShiftJIS.NewDecoder()

// validSJISPair runs lead/trail through the Shift-JIS decoder and reports
// whether it returned an error. The decoder substitutes U+FFFD for a
// malformed or unassigned pair instead of failing, so in practice every
// pair is accepted and the trail byte is taken as-is.
func validSJISPair(lead, trail byte) bool {
	_, err := sjisDecoder.Bytes([]byte{lead, trail})
	return err == nil
}

// segmentEnd marks that make83Name consumed the final path segment; more
// marks that a '/' follows and more segments remain.
const (
	segmentEnd  byte = 0
	segmentMore byte = '/'
)

// isSJISLead reports whether c can begin a two-byte Shift-JIS code point
// per spec.md section 4.6: 0x81-0x9F and 0xE0-0xFC.
func isSJISLead(c byte) bool {
	return (c >= 0x81 && c <= 0x9F) || (c >= 0xE0 && c <= 0xFC)
}

// make83Name consumes one slash-delimited segment of path starting at idx
// and encodes it into an 11-byte 8.3 directory-entry name plus its NT
// case-preservation flag, per spec.md section 4.6. It returns the index
// just past the consumed segment (and its terminating '/' if any), the
// terminator byte (segmentEnd or segmentMore), and an error if the segment
// violates 8.3 naming rules.
//
// The control flow mirrors the original C implementation closely: `caseBits`
// accumulates which of base/extension contained a folded lowercase letter,
// `caseMask` starts with both assumed lowercase and has a bit cleared the
// moment an uppercase letter is seen in that field, and the final NT flag is
// caseBits & caseMask.
func make83Name(path []byte, idx int, shiftJIS bool) (name [11]byte, ntFlag byte, nextIdx int, term byte, errRes errors.DriverError) {
	for i := range name {
		name[i] = ' '
	}

	var caseBits byte
	caseMask := byte(ntLowerBase | ntLowerExt)
	n := 0     // next slot to fill
	limit := 8 // 8 while in the base name, 11 once in the extension
	sjisSecond := false
	var sjisLead byte

	for {
		if idx >= len(path) {
			if n == 0 {
				return name, 0, idx, 0, errors.InvalidName.WithMessage("empty path segment")
			}
			ntFlag = caseBits & caseMask
			return name, ntFlag, idx, segmentEnd, nil
		}

		c := path[idx]
		idx++

		if c == '/' {
			if n == 0 {
				return name, 0, idx, 0, errors.InvalidName.WithMessage("empty path segment")
			}
			ntFlag = caseBits & caseMask
			return name, ntFlag, idx, segmentMore, nil
		}

		if c <= ' ' {
			return name, 0, idx, 0, errors.InvalidName.WithMessage("control byte in name")
		}

		if c == '.' && !sjisSecond {
			if n >= 1 && n <= 8 && limit == 8 {
				n = 8
				limit = 11
				continue
			}
			return name, 0, idx, 0, errors.InvalidName.WithMessage("misplaced '.' in name")
		}

		if shiftJIS && sjisSecond {
			// Second byte of an S-JIS code point: ASCII rejection rules are
			// suspended for it, and it is never taken as a new lead byte.
			sjisSecond = false
			if !validSJISPair(sjisLead, c) {
				return name, 0, idx, 0, errors.InvalidName.WithMessage("invalid Shift-JIS code point")
			}
			goto accept
		}
		if shiftJIS && isSJISLead(c) {
			sjisLead = c
			if n == 0 && c == direntDeletedMarker {
				c = direntEscapedE5
			}
			sjisSecond = true
			goto accept
		}

		if shiftJIS && (c == 0x7F || c == 0x80) {
			return name, 0, idx, 0, errors.InvalidName.WithMessage("reserved byte in name")
		}

		switch {
		case c == '"', c == '*', c == '+', c == ',':
			return name, 0, idx, 0, errors.InvalidName.WithMessage("reserved character in name")
		case c >= ':' && c <= '?':
			return name, 0, idx, 0, errors.InvalidName.WithMessage("reserved character in name")
		case c == '|' || (c >= '[' && c <= ']'):
			return name, 0, idx, 0, errors.InvalidName.WithMessage("reserved character in name")
		}

		if n == 0 && c == direntDeletedMarker {
			c = direntEscapedE5
		}

		if c >= 'A' && c <= 'Z' {
			if limit == 8 {
				caseMask &^= ntLowerBase
			} else {
				caseMask &^= ntLowerExt
			}
		} else if c >= 'a' && c <= 'z' {
			c -= 0x20
			if limit == 8 {
				caseBits |= ntLowerBase
			} else {
				caseBits |= ntLowerExt
			}
		}

	accept:
		if n >= limit {
			return name, 0, idx, 0, errors.InvalidName.WithMessage("name segment too long")
		}
		name[n] = c
		n++
	}
}

// decode83Name reverses make83Name for display purposes: it strips
// space-padding, restores the '.' separator, and lowercases whichever of
// base/extension the NT flag marks as originally lowercase.
func decode83Name(raw []byte, ntFlag byte) string {
	base := raw[0:8]
	ext := raw[8:11]

	trim := func(b []byte) []byte {
		end := len(b)
		for end > 0 && b[end-1] == ' ' {
			end--
		}
		return b[:end]
	}

	baseTrimmed := append([]byte{}, trim(base)...)
	extTrimmed := append([]byte{}, trim(ext)...)

	if ntFlag&ntLowerBase != 0 {
		lowerASCII(baseTrimmed)
	}
	if ntFlag&ntLowerExt != 0 {
		lowerASCII(extTrimmed)
	}

	if len(baseTrimmed) > 0 && baseTrimmed[0] == direntEscapedE5 {
		baseTrimmed[0] = direntDeletedMarker
	}

	if len(extTrimmed) == 0 {
		return string(baseTrimmed)
	}
	return string(baseTrimmed) + "." + string(extTrimmed)
}

func lowerASCII(b []byte) {
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 0x20
		}
	}
}
