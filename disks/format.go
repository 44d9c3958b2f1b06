package disks

import (
	"encoding/binary"

	"github.com/bspeice/fat16fs/device"
	"github.com/bspeice/fat16fs/fat16"
	"github.com/noxer/bytewriter"
)

// defaultMediaDescriptor is the media-descriptor byte for a "fixed disk",
// the value every FAT16 hard disk and compact-flash image uses.
const defaultMediaDescriptor = 0xF8

// Format builds a blank FAT16 image from geometry: an MBR (if the preset
// calls for one), a BPB, both FAT copies pre-seeded with the reserved
// cluster-0/1 entries, and an empty root directory carrying a single
// volume-label entry. It returns a ready-to-mount device.MemoryDevice.
//
// This mirrors the on-media layout spec.md §6 describes, built with
// bytewriter for the sequential field writes the same way
// fat16.NewDirectoryEntry constructs a fresh directory entry.
func Format(geometry Geometry, volumeLabel string) (*device.MemoryDevice, error) {
	image := make([]byte, geometry.TotalSizeBytes())

	partitionLBA := uint32(0)
	if geometry.HasMBR {
		partitionLBA = writeMBR(image, geometry)
	}

	bootOffset := int64(partitionLBA) * int64(geometry.SectorSize)
	writeBootSector(image[bootOffset:bootOffset+fat16BootSectorSize], geometry, partitionLBA)

	fatOffset := (int64(partitionLBA) + int64(geometry.ReservedSectors)) * int64(geometry.SectorSize)
	fatSize := int64(geometry.SectorsPerFAT) * int64(geometry.SectorSize)
	writeBlankFAT(image[fatOffset:fatOffset+fatSize], geometry)
	for copyIndex := uint(1); copyIndex < geometry.NumFATs; copyIndex++ {
		copy(image[fatOffset+int64(copyIndex)*fatSize:fatOffset+int64(copyIndex+1)*fatSize], image[fatOffset:fatOffset+fatSize])
	}

	rootOffset := fatOffset + int64(geometry.NumFATs)*fatSize
	writeVolumeLabel(image[rootOffset:rootOffset+int64(geometry.RootEntryCount)*fat16.DirentSize], volumeLabel)

	return device.NewMemoryDevice(image, geometry.HasMBR), nil
}

// fat16BootSectorSize is the fixed width of a FAT16 boot sector.
const fat16BootSectorSize = 512

// writeMBR lays out a single MBR partition entry covering the whole image
// past its LBA offset, and returns that offset in sectors.
func writeMBR(image []byte, geometry Geometry) uint32 {
	const startLBA = 1
	partitionType := byte(fat16.PartitionFAT16Large)

	entry := image[0x1BE : 0x1BE+16]
	entry[0] = 0x00 // not bootable
	entry[4] = partitionType
	binary.LittleEndian.PutUint32(entry[8:12], startLBA)
	binary.LittleEndian.PutUint32(entry[12:16], geometry.TotalSectors-startLBA)

	image[0x1FE] = 0x55
	image[0x1FF] = 0xAA
	return startLBA
}

// writeBootSector fills in the 512-byte BPB for geometry, using
// bytewriter for the sequential field layout (spec.md §6).
func writeBootSector(sector []byte, geometry Geometry, partitionLBA uint32) {
	w := bytewriter.New(sector)

	w.Write([]byte{0xEB, 0x3C, 0x90}) // JumpBoot
	w.Write(padName("FAT16FS", 8))    // OEMName

	var u16 [2]byte
	var u32 [4]byte

	binary.LittleEndian.PutUint16(u16[:], uint16(geometry.SectorSize))
	w.Write(u16[:])
	w.Write([]byte{byte(geometry.SectorsPerCluster)})
	binary.LittleEndian.PutUint16(u16[:], uint16(geometry.ReservedSectors))
	w.Write(u16[:])
	w.Write([]byte{byte(geometry.NumFATs)})
	binary.LittleEndian.PutUint16(u16[:], uint16(geometry.RootEntryCount))
	w.Write(u16[:])

	totalSectors16 := uint16(0)
	totalSectors32 := uint32(0)
	if geometry.TotalSectors < 0x10000 {
		totalSectors16 = uint16(geometry.TotalSectors)
	} else {
		totalSectors32 = uint32(geometry.TotalSectors)
	}
	binary.LittleEndian.PutUint16(u16[:], totalSectors16)
	w.Write(u16[:])

	w.Write([]byte{defaultMediaDescriptor})
	binary.LittleEndian.PutUint16(u16[:], uint16(geometry.SectorsPerFAT))
	w.Write(u16[:])
	binary.LittleEndian.PutUint16(u16[:], 0) // SectorsPerTrack
	w.Write(u16[:])
	binary.LittleEndian.PutUint16(u16[:], 0) // NumHeads
	w.Write(u16[:])
	binary.LittleEndian.PutUint32(u32[:], partitionLBA)
	w.Write(u32[:])
	binary.LittleEndian.PutUint32(u32[:], totalSectors32)
	w.Write(u32[:])

	w.Write([]byte{0x80}) // DriveNumber
	w.Write([]byte{0x00}) // Reserved1
	w.Write([]byte{0x29}) // ExtBootSignature
	binary.LittleEndian.PutUint32(u32[:], 0x12345678)
	w.Write(u32[:])                 // VolumeID
	w.Write(padName("NO NAME", 11)) // VolumeLabel
	w.Write(padName("FAT16", 8))    // FileSystemType

	// Remaining bytes up to the signature are boot code; zero-valued is
	// already the backing array's default.
	sector[bootSignatureOffsetConst] = 0x55
	sector[bootSignatureOffsetConst+1] = 0xAA
}

const bootSignatureOffsetConst = 0x1FE

// writeBlankFAT seeds a freshly formatted FAT table: cluster 0 carries the
// media descriptor in its low byte (0xFFF8 for a fixed disk), cluster 1 is
// the canonical end-of-chain marker, and everything else is free.
func writeBlankFAT(fatBytes []byte, geometry Geometry) {
	binary.LittleEndian.PutUint16(fatBytes[0:2], 0xFF00|uint16(defaultMediaDescriptor))
	binary.LittleEndian.PutUint16(fatBytes[2:4], uint16(fat16.ClusterEndOfChain))
}

// writeVolumeLabel writes a single volume-label entry into an otherwise
// empty root directory region.
func writeVolumeLabel(rootBytes []byte, volumeLabel string) {
	entry := fat16.NewDirectoryEntry(volumeLabel, "", fat16.AttrVolumeLabel, 0, 0)
	raw := entry.RawBytes()
	copy(rootBytes[:fat16.DirentSize], raw[:])
}
