package fat16

import (
	"encoding/binary"
	"testing"

	"github.com/bspeice/fat16fs/device"
)

// testGeometry bundles the parameters needed to build a minimal FAT16
// image for a test, with no MBR: reservedSectors=1, 2 FAT copies of
// sectorsPerFAT sectors each, sectorSize-byte sectors, sectorsPerCluster
// sectors per cluster, and a root directory of rootEntryCount entries.
type testGeometry struct {
	sectorSize        uint
	sectorsPerCluster uint
	sectorsPerFAT     uint
	rootEntryCount    uint
	numFATs           uint
	extraDataClusters uint
}

func defaultTestGeometry() testGeometry {
	return testGeometry{
		sectorSize:        512,
		sectorsPerCluster: 2,
		sectorsPerFAT:     1,
		rootEntryCount:    16,
		numFATs:           2,
		extraDataClusters: 32,
	}
}

// buildBlankImage constructs a minimal, unmounted FAT16 image (no MBR) per
// g and returns the raw bytes along with the derived offsets a test will
// need to poke at specific regions directly.
func buildBlankImage(g testGeometry) (image []byte, fatOffset, rootDirOffset, dataOffset int64) {
	fatOffset = int64(g.sectorSize) // reservedSectors=1
	rootDirOffset = fatOffset + int64(g.numFATs)*int64(g.sectorsPerFAT)*int64(g.sectorSize)
	dataOffset = rootDirOffset + int64(g.rootEntryCount)*DirentSize
	totalSize := dataOffset + int64(g.extraDataClusters)*int64(g.sectorsPerCluster)*int64(g.sectorSize)

	image = make([]byte, totalSize)

	w := image[:bootSectorSize]
	w[13] = byte(g.sectorsPerCluster)
	binary.LittleEndian.PutUint16(w[11:13], uint16(g.sectorSize))
	binary.LittleEndian.PutUint16(w[14:16], 1) // ReservedSectors
	w[16] = byte(g.numFATs)
	binary.LittleEndian.PutUint16(w[17:19], uint16(g.rootEntryCount))
	binary.LittleEndian.PutUint16(w[22:24], uint16(g.sectorsPerFAT))
	w[bootSignatureOffset] = 0x55
	w[bootSignatureOffset+1] = 0xAA

	// Seed both FAT copies' reserved cluster-0/1 entries.
	for copyIndex := uint(0); copyIndex < g.numFATs; copyIndex++ {
		base := fatOffset + int64(copyIndex)*int64(g.sectorsPerFAT)*int64(g.sectorSize)
		binary.LittleEndian.PutUint16(image[base:base+2], 0xFFF8)
		binary.LittleEndian.PutUint16(image[base+2:base+4], uint16(ClusterEndOfChain))
	}

	return image, fatOffset, rootDirOffset, dataOffset
}

// mountBlankImage builds a blank image and mounts it, failing the test on
// any error.
func mountBlankImage(t *testing.T, g testGeometry) (*Manager, *device.MemoryDevice, int64) {
	t.Helper()
	image, _, _, dataOffset := buildBlankImage(g)
	dev := device.NewMemoryDevice(image, false)

	mgr, err := Mount(dev)
	if err != nil {
		t.Fatalf("Mount failed: %s", err.Error())
	}
	return mgr, dev, dataOffset
}

// setFATEntry writes value as the successor for cluster c directly into
// the image bytes of the primary FAT copy, bypassing the cache — used to
// set up chains a test wants to read.
func setFATEntry(image []byte, fatOffset int64, c uint16, value uint16) {
	off := fatOffset + int64(c)*2
	binary.LittleEndian.PutUint16(image[off:off+2], value)
}
