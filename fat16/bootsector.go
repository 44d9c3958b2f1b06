package fat16

import (
	"encoding/binary"

	fat16errors "github.com/bspeice/fat16fs/errors"
)

// bootSectorSize is the fixed size of the BPB + boot code region read from
// the start of a FAT16 partition.
const bootSectorSize = 512

// bootSignatureOffset is the offset of the 0x55 0xAA signature that every
// FAT boot sector ends in, regardless of version.
const bootSignatureOffset = 0x1FE

// extBootSignatureValue is the only value of the extended boot signature
// byte (offset 0x26) that marks the volume-ID/label/fsType fields as
// present and meaningful.
const extBootSignatureValue = 0x29

// RawBootSector is the on-disk layout of a FAT12/16 boot sector, decoded
// field-for-field in byte order. Its fields are read-only once parsed.
type RawBootSector struct {
	JumpBoot          [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	MediaDescriptor   uint8
	SectorsPerFAT     uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	DriveNumber       uint8
	Reserved1         uint8
	ExtBootSignature  uint8
	VolumeID          uint32
	VolumeLabel       [11]byte
	FileSystemType    [8]byte
}

// BootSector is a parsed BPB plus the geometry values derived from it. It is
// computed once, at mount time or on a changePartition call, and is treated
// as read-only for the rest of the partition's mounted lifetime.
type BootSector struct {
	Raw RawBootSector

	// PartitionLBAOffset is the sector offset of the partition this boot
	// sector belongs to (0 if the media has no MBR).
	PartitionLBAOffset uint32

	SectorSize        uint
	SectorsPerCluster uint
	NumFATs           uint
	SectorsPerFAT     uint
	RootEntryCount    uint

	FATOffset          int64
	RootDirOffset      int64
	DataOffset         int64
	NumClustersInFAT   uint
	BytesPerCluster    uint
	MirrorFATOffsetFor func(copyIndex uint) int64
}

// isPowerOfTwo reports whether v is a nonzero power of two.
func isPowerOfTwo(v uint) bool {
	return v != 0 && v&(v-1) == 0
}

// parseRawBootSector decodes the 512-byte raw BPB layout from sector
// bytes. sector must be at least bootSectorSize bytes.
func parseRawBootSector(sector []byte) (RawBootSector, error) {
	var raw RawBootSector
	if len(sector) < bootSectorSize {
		return raw, fat16errors.WithMessage(
			fat16errors.InvalidFileSystem, "boot sector read returned only %d bytes", len(sector))
	}

	copy(raw.JumpBoot[:], sector[0:3])
	copy(raw.OEMName[:], sector[3:11])
	raw.BytesPerSector = binary.LittleEndian.Uint16(sector[11:13])
	raw.SectorsPerCluster = sector[13]
	raw.ReservedSectors = binary.LittleEndian.Uint16(sector[14:16])
	raw.NumFATs = sector[16]
	raw.RootEntryCount = binary.LittleEndian.Uint16(sector[17:19])
	raw.TotalSectors16 = binary.LittleEndian.Uint16(sector[19:21])
	raw.MediaDescriptor = sector[21]
	raw.SectorsPerFAT = binary.LittleEndian.Uint16(sector[22:24])
	raw.SectorsPerTrack = binary.LittleEndian.Uint16(sector[24:26])
	raw.NumHeads = binary.LittleEndian.Uint16(sector[26:28])
	raw.HiddenSectors = binary.LittleEndian.Uint32(sector[28:32])
	raw.TotalSectors32 = binary.LittleEndian.Uint32(sector[32:36])
	raw.DriveNumber = sector[36]
	raw.Reserved1 = sector[37]
	raw.ExtBootSignature = sector[38]
	raw.VolumeID = binary.LittleEndian.Uint32(sector[39:43])
	copy(raw.VolumeLabel[:], sector[43:54])
	copy(raw.FileSystemType[:], sector[54:62])

	if sector[bootSignatureOffset] != 0x55 || sector[bootSignatureOffset+1] != 0xAA {
		return raw, fat16errors.WithMessage(
			fat16errors.InvalidFileSystem, "boot sector signature is not 0x55 0xAA")
	}
	return raw, nil
}

// NewBootSector parses a 512-byte boot sector read at partitionLBAOffset
// (0 if there is no MBR) and derives the geometry fields the rest of the
// package relies on. It validates the invariants spec.md §3 names:
// sector-size power of two, at least one FAT, sectors-per-cluster a power
// of two, and root-entry-count a whole number of sectors.
func NewBootSector(sector []byte, partitionLBAOffset uint32) (*BootSector, error) {
	raw, err := parseRawBootSector(sector)
	if err != nil {
		return nil, err
	}

	if !isPowerOfTwo(uint(raw.BytesPerSector)) {
		return nil, fat16errors.WithMessage(
			fat16errors.InvalidFileSystem, "sector size %d is not a power of two", raw.BytesPerSector)
	}
	if raw.NumFATs < 1 {
		return nil, fat16errors.WithMessage(fat16errors.InvalidFileSystem, "NumFATs must be >= 1, got 0")
	}
	if !isPowerOfTwo(uint(raw.SectorsPerCluster)) {
		return nil, fat16errors.WithMessage(
			fat16errors.InvalidFileSystem, "sectors per cluster %d is not a power of two", raw.SectorsPerCluster)
	}

	sectorSize := uint(raw.BytesPerSector)
	rootEntryBytes := uint(raw.RootEntryCount) * 32
	if rootEntryBytes%sectorSize != 0 {
		return nil, fat16errors.WithMessage(
			fat16errors.InvalidFileSystem,
			"root entry count %d does not fill a whole number of sectors", raw.RootEntryCount)
	}

	bs := &BootSector{
		Raw:                raw,
		PartitionLBAOffset: partitionLBAOffset,
		SectorSize:         sectorSize,
		SectorsPerCluster:  uint(raw.SectorsPerCluster),
		NumFATs:            uint(raw.NumFATs),
		SectorsPerFAT:      uint(raw.SectorsPerFAT),
		RootEntryCount:     uint(raw.RootEntryCount),
	}

	bs.FATOffset = (int64(partitionLBAOffset) + int64(raw.ReservedSectors)) * int64(sectorSize)
	bs.RootDirOffset = bs.FATOffset + int64(bs.NumFATs)*int64(bs.SectorsPerFAT)*int64(sectorSize)
	bs.DataOffset = bs.RootDirOffset + int64(rootEntryBytes)
	bs.NumClustersInFAT = (bs.SectorsPerFAT * sectorSize) / 2
	bs.BytesPerCluster = bs.SectorsPerCluster * sectorSize

	fatCopyStride := int64(bs.SectorsPerFAT) * int64(sectorSize)
	bs.MirrorFATOffsetFor = func(copyIndex uint) int64 {
		return bs.FATOffset + int64(copyIndex)*fatCopyStride
	}

	return bs, nil
}

// ClusterToOffset converts a cluster number into its absolute byte offset
// on the device. It is strictly monotonic in c, as spec.md §8 (invariant 6)
// requires.
func (bs *BootSector) ClusterToOffset(cluster uint16) int64 {
	return bs.DataOffset + (int64(cluster)-2)*int64(bs.SectorsPerCluster)*int64(bs.SectorSize)
}
