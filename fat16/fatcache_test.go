package fat16

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bspeice/fat16fs/device"
	fat16errors "github.com/bspeice/fat16fs/errors"
)

func newTestFATCache() *FATCache {
	// 1 sector of 512 bytes holds 256 cluster slots.
	fc := NewFATCache(512, 1, 256)
	fc.SetClusterValue(0, 0xFFF8)
	fc.SetClusterValue(1, ClusterEndOfChain)
	return fc
}

func TestFindFreeClusterSkipsReservedAndOccupied(t *testing.T) {
	fc := newTestFATCache()
	fc.SetClusterValue(2, ClusterEndOfChain) // cluster 2 already occupied
	fc.Reserve(3)                            // cluster 3 pending from another handle

	got, err := fc.FindFreeCluster(firstDataCluster - 1)
	require.NoError(t, err)
	assert.Equal(t, uint16(4), got, "clusters 2 (occupied) and 3 (pending-reserved) must both be skipped")
}

func TestFindFreeClusterContinuesAfterLastAllocated(t *testing.T) {
	fc := newTestFATCache()
	got, err := fc.FindFreeCluster(5)
	require.NoError(t, err)
	assert.Equal(t, uint16(6), got)
}

func TestFindFreeClusterReturnsNoSpaceWhenExhausted(t *testing.T) {
	fc := NewFATCache(512, 1, 4) // clusters 0-3 only; 2 and 3 are the whole usable range
	fc.SetClusterValue(2, ClusterEndOfChain)
	fc.SetClusterValue(3, ClusterEndOfChain)

	_, err := fc.FindFreeCluster(firstDataCluster - 1)
	require.Error(t, err)
	assert.True(t, fat16errors.IsSameError(err, fat16errors.NoSpace))
}

func TestWriteBackFlushesToAllCopiesAndClearsDirty(t *testing.T) {
	const sectorSize = 512
	const sectorsPerFAT = 2
	const numFATs = 2

	image := make([]byte, sectorSize*sectorsPerFAT*numFATs)
	dev := device.NewMemoryDevice(image, false)

	fc := NewFATCache(sectorSize, sectorsPerFAT, sectorSize*sectorsPerFAT/2)
	require.NoError(t, fc.Load(dev, 0))

	fc.SetClusterValue(300, ClusterEndOfChain) // falls in the second FAT sector

	mirrorOffsetFor := func(copyIndex uint) int64 {
		return int64(copyIndex) * sectorSize * sectorsPerFAT
	}
	err := fc.WriteBack(dev, mirrorOffsetFor, numFATs)
	require.NoError(t, err)

	var readBack [2]byte
	require.NoError(t, dev.ReadAt(readBack[:], 300*2))
	assert.Equal(t, uint16(ClusterEndOfChain), uint16(readBack[0])|uint16(readBack[1])<<8)

	require.NoError(t, dev.ReadAt(readBack[:], sectorSize*sectorsPerFAT+300*2))
	assert.Equal(t, uint16(ClusterEndOfChain), uint16(readBack[0])|uint16(readBack[1])<<8)

	// A second write-back with nothing newly dirty should write nothing and
	// still succeed.
	require.NoError(t, fc.WriteBack(dev, mirrorOffsetFor, numFATs))
}

func TestReserveReleaseAndIsPending(t *testing.T) {
	fc := newTestFATCache()
	assert.False(t, fc.IsPending(10))
	fc.Reserve(10)
	assert.True(t, fc.IsPending(10))
	fc.Release(10)
	assert.False(t, fc.IsPending(10))
}

func TestIsEndOfChainAndIsAllocatable(t *testing.T) {
	assert.True(t, IsEndOfChain(ClusterEndOfChain))
	assert.True(t, IsEndOfChain(0xFFF8))
	assert.False(t, IsEndOfChain(0xFFF7))

	assert.False(t, IsAllocatable(ClusterFree))
	assert.False(t, IsAllocatable(ClusterBad))
	assert.False(t, IsAllocatable(ClusterReserved))
	assert.False(t, IsAllocatable(ClusterEndOfChain))
	assert.True(t, IsAllocatable(5))
}
