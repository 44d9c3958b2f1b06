package fat16

import (
	"encoding/binary"

	fat16errors "github.com/bspeice/fat16fs/errors"
)

// PartitionType identifies the code byte stored in an MBR partition entry.
// The parser recognizes every code listed here; partition discovery skips
// only empty and extended entries and does not check for a FAT16 code.
type PartitionType uint8

const (
	PartitionEmpty       PartitionType = 0x00
	PartitionFAT12       PartitionType = 0x01
	PartitionFAT16Small  PartitionType = 0x04 // FAT16, <= 32 MiB
	PartitionExtended    PartitionType = 0x05
	PartitionFAT16Large  PartitionType = 0x06 // FAT16, > 32 MiB
	PartitionFAT32       PartitionType = 0x0B // <= 2 GiB, CHS addressing
	PartitionFAT32LBA    PartitionType = 0x0C
	PartitionFAT16LBA    PartitionType = 0x0E
	PartitionExtendedLBA PartitionType = 0x0F
)

// IsFAT16 reports whether t names one of the three FAT16 partition type
// codes (small, large, and LBA). It reports false for FAT12 and FAT32,
// which the partition parser recognizes; Mount does not consult it.
func (t PartitionType) IsFAT16() bool {
	return t == PartitionFAT16Small || t == PartitionFAT16Large || t == PartitionFAT16LBA
}

// IsExtended reports whether t marks an extended partition container
// rather than a file system.
func (t PartitionType) IsExtended() bool {
	return t == PartitionExtended || t == PartitionExtendedLBA
}

// partitionEntrySize is the fixed width of one MBR partition table entry.
const partitionEntrySize = 16

// mbrPartitionTableOffset is the byte offset of the four-entry partition
// table within the MBR sector.
const mbrPartitionTableOffset = 0x1BE

// mbrSignatureOffset is the byte offset of the 0x55 0xAA boot signature.
const mbrSignatureOffset = 0x1FE

// PartitionEntry is one 16-byte record from the master boot record's
// partition table. It is immutable once parsed.
type PartitionEntry struct {
	Bootable    bool
	StartCHS    [3]byte
	Type        PartitionType
	EndCHS      [3]byte
	LBAOffset   uint32 // first sector of the partition, in sectors
	SizeSectors uint32
}

// IsEmpty reports whether the entry describes no partition at all.
func (p PartitionEntry) IsEmpty() bool {
	return p.Type == PartitionEmpty
}

// parsePartitionEntry decodes one 16-byte MBR partition record.
func parsePartitionEntry(raw []byte) PartitionEntry {
	entry := PartitionEntry{
		Bootable:    raw[0] == 0x80,
		Type:        PartitionType(raw[4]),
		LBAOffset:   binary.LittleEndian.Uint32(raw[8:12]),
		SizeSectors: binary.LittleEndian.Uint32(raw[12:16]),
	}
	copy(entry.StartCHS[:], raw[1:4])
	copy(entry.EndCHS[:], raw[5:8])
	return entry
}

// hasMBRSignature reports whether sector0, a full 512-byte (or larger)
// first-sector read, ends in the 0x55 0xAA boot signature at 0x1FE.
func hasMBRSignature(sector0 []byte) bool {
	if len(sector0) < mbrSignatureOffset+2 {
		return false
	}
	return sector0[mbrSignatureOffset] == 0x55 && sector0[mbrSignatureOffset+1] == 0xAA
}

// parsePartitionTable decodes the four MBR partition entries out of a
// 512-byte (or larger) first-sector read.
func parsePartitionTable(sector0 []byte) ([4]PartitionEntry, error) {
	var table [4]PartitionEntry
	if len(sector0) < mbrPartitionTableOffset+4*partitionEntrySize {
		return table, fat16errors.WithMessage(
			fat16errors.InvalidFileSystem, "sector 0 too short to contain a partition table")
	}

	for i := 0; i < 4; i++ {
		start := mbrPartitionTableOffset + i*partitionEntrySize
		table[i] = parsePartitionEntry(sector0[start : start+partitionEntrySize])
	}
	return table, nil
}

// selectActivePartition returns the first entry that is neither empty nor
// an extended-partition container, per spec: "select as active the first
// entry whose type is not empty, not extended, and not extended-LBA."
func selectActivePartition(table [4]PartitionEntry) (PartitionEntry, int, bool) {
	for i, entry := range table {
		if entry.IsEmpty() || entry.Type.IsExtended() {
			continue
		}
		return entry, i, true
	}
	return PartitionEntry{}, -1, false
}
