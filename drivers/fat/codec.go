package fat

// Little-endian load/store helpers over unaligned byte slices. Every
// on-disk FAT structure (boot sector, directory entry, FAT cell) is
// little-endian and may start at any byte offset inside a 512-byte window,
// so these always assemble byte-by-byte rather than reinterpreting the
// slice as a wider integer.

func loadU16(b []byte, off int) uint16 {
	return uint16(b[off]) | uint16(b[off+1])<<8
}

func loadU32(b []byte, off int) uint32 {
	return uint32(b[off]) | uint32(b[off+1])<<8 | uint32(b[off+2])<<16 | uint32(b[off+3])<<24
}

func storeU16(b []byte, off int, v uint16) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
}

func storeU32(b []byte, off int, v uint32) {
	b[off] = byte(v)
	b[off+1] = byte(v >> 8)
	b[off+2] = byte(v >> 16)
	b[off+3] = byte(v >> 24)
}
