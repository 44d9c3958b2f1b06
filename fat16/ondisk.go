package fat16

import (
	"encoding/binary"

	"github.com/noxer/bytewriter"
)

// PackTime encodes an hour/minute/two-second-interval triple into a FAT
// timestamp: hours<<11 | minutes<<5 | seconds/2 (spec.md §6).
func PackTime(hour, minute, second uint) uint16 {
	return uint16(hour)<<11 | uint16(minute)<<5 | uint16(second/2)
}

// PackDate encodes a year/month/day triple into a FAT date:
// (year-1980)<<9 | month<<5 | day (spec.md §6).
func PackDate(year, month, day uint) uint16 {
	return uint16(year-1980)<<9 | uint16(month)<<5 | uint16(day)
}

// NewDirectoryEntry builds a fresh 32-byte directory entry for a new file,
// writing its fixed-layout fields in order with bytewriter the same way
// disks/format.go lays out a blank image's volume-label entry. name and
// ext are space-padded/truncated to 8 and 3 bytes respectively, matching
// 8.3 on-disk conventions.
func NewDirectoryEntry(name, ext string, attrs uint8, timeUpdated, dateUpdated uint16) DirectoryEntry {
	nameBytes := padName(name, 8)
	extBytes := padName(ext, 3)

	buf := make([]byte, DirentSize)
	w := bytewriter.New(buf)

	w.Write(nameBytes)
	w.Write(extBytes)
	w.Write([]byte{attrs})
	w.Write(make([]byte, 10)) // reserved

	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], timeUpdated)
	w.Write(tmp[:])
	binary.LittleEndian.PutUint16(tmp[:], dateUpdated)
	w.Write(tmp[:])

	w.Write([]byte{0, 0}) // starting cluster, filled in by CreateEntry

	w.Write([]byte{0, 0, 0, 0}) // file size, filled in as data is written

	return ParseDirectoryEntry(buf)
}

// padName space-pads (or truncates) s to exactly n bytes, the fixed-width
// form FAT16 stores 8.3 filename components in.
func padName(s string, n int) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = ' '
	}
	copy(out, s)
	return out
}
