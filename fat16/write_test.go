package fat16

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bspeice/fat16fs/device"
	fat16errors "github.com/bspeice/fat16fs/errors"
)

// TestCreateWriteFlushSpansTwoClusters writes enough data to force the
// allocator to extend the chain past its first cluster, then checks that
// FinalizeEntry committed both the directory entry and every pending FAT
// modification, and that the data reads back correctly afterward.
func TestCreateWriteFlushSpansTwoClusters(t *testing.T) {
	g := defaultTestGeometry() // 2 sectors/cluster, 1024 bytes/cluster
	mgr, _, _ := mountBlankImage(t, g)

	handle := NewDirectoryEntry("TWOCLUST", "BIN", AttrArchive, 0, 0)
	require.NoError(t, mgr.CreateEntry(&handle))
	firstCluster := handle.StartCluster
	require.GreaterOrEqual(t, firstCluster, firstDataCluster)

	aligned := bytes.Repeat([]byte{0xAB}, int(g.sectorSize)*2) // fills cluster 0 exactly
	require.NoError(t, mgr.WriteToEntry(&handle, aligned, false))

	tail := bytes.Repeat([]byte{0xCD}, 100) // spills into a second cluster
	require.NoError(t, mgr.FlushToEntry(&handle, tail))

	assert.False(t, handle.Stream.InProgress)
	assert.Equal(t, uint32(len(aligned)+len(tail)), handle.FileSize)
	assert.NotEqual(t, firstCluster, uint16(0))

	entries := mgr.CurrentDirectoryEntries()
	found := false
	for _, e := range entries {
		if e.DisplayName() == "TWOCLUST.BIN" {
			found = true
			assert.Equal(t, handle.FileSize, e.FileSize)
			assert.Equal(t, firstCluster, e.StartCluster)
		}
	}
	assert.True(t, found, "finalized entry must appear in the reloaded directory listing")

	readHandle, err := mgr.SelectEntry(indexOf(t, mgr, "TWOCLUST.BIN"))
	require.NoError(t, err)
	require.NoError(t, mgr.ReadEntry(&readHandle))

	var all []byte
	for readHandle.Stream.InProgress {
		sector, err := mgr.GetSelectedFileNextSector(&readHandle)
		require.NoError(t, err)
		if len(sector) == 0 {
			break
		}
		all = append(all, sector...)
	}
	if len(all) > len(aligned)+len(tail) {
		all = all[:len(aligned)+len(tail)]
	}
	assert.Equal(t, aligned, all[:len(aligned)])
	assert.Equal(t, tail, all[len(aligned):])
}

func indexOf(t *testing.T, mgr *Manager, displayName string) int {
	t.Helper()
	for i, e := range mgr.CurrentDirectoryEntries() {
		if e.DisplayName() == displayName {
			return i
		}
	}
	t.Fatalf("no entry named %q in current directory", displayName)
	return -1
}

// TestWriteToEntryRejectsUnalignedBufferUnlessFlushing checks the
// NotSectorAligned contract: an ordinary WriteToEntry call requires a whole
// multiple of the sector size, but FlushToEntry tolerates a partial tail.
func TestWriteToEntryRejectsUnalignedBufferUnlessFlushing(t *testing.T) {
	g := defaultTestGeometry()
	mgr, _, _ := mountBlankImage(t, g)

	handle := NewDirectoryEntry("ODD", "BIN", AttrArchive, 0, 0)
	require.NoError(t, mgr.CreateEntry(&handle))

	unaligned := make([]byte, int(g.sectorSize)-1)
	err := mgr.WriteToEntry(&handle, unaligned, false)
	require.Error(t, err)
	assert.True(t, fat16errors.IsSameError(err, fat16errors.NotSectorAligned))
	assert.True(t, handle.Stream.InProgress, "a rejected unaligned write must not disturb the in-progress transfer")

	require.NoError(t, mgr.FlushToEntry(&handle, unaligned))
	assert.False(t, handle.Stream.InProgress)
}

// TestFindFreeClusterCollisionIsAvoidedAcrossTwoHandles creates two files
// back-to-back without finalizing the first, and checks that the second
// handle's allocator skips the cluster already claimed by the first (the
// PendingReservations set), so two in-flight writes never collide.
func TestFindFreeClusterCollisionIsAvoidedAcrossTwoHandles(t *testing.T) {
	g := defaultTestGeometry()
	mgr, _, _ := mountBlankImage(t, g)

	first := NewDirectoryEntry("FIRST", "BIN", AttrArchive, 0, 0)
	second := NewDirectoryEntry("SECOND", "BIN", AttrArchive, 0, 0)

	require.NoError(t, mgr.CreateEntry(&first))
	require.NoError(t, mgr.CreateEntry(&second))

	assert.NotEqual(t, first.StartCluster, second.StartCluster)
}

// TestDeleteEntryFreesTwoClusterChain writes a two-cluster file, deletes it,
// and checks that the cached directory entry is marked deleted and that the
// chain's first cluster reads back as free in the on-disk FAT.
func TestDeleteEntryFreesTwoClusterChain(t *testing.T) {
	g := defaultTestGeometry()
	mgr, dev, _ := mountBlankImage(t, g)

	handle := NewDirectoryEntry("GONE", "BIN", AttrArchive, 0, 0)
	require.NoError(t, mgr.CreateEntry(&handle))
	cluster0 := handle.Stream.PendingMods[0].ClusterNum

	full := bytes.Repeat([]byte{0x11}, int(g.sectorSize)*2)
	require.NoError(t, mgr.WriteToEntry(&handle, full, false))
	tail := bytes.Repeat([]byte{0x22}, int(g.sectorSize))
	require.NoError(t, mgr.FlushToEntry(&handle, tail))

	idx := indexOf(t, mgr, "GONE.BIN")
	entryBeforeDelete := mgr.CurrentDirectoryEntries()[idx]
	require.Equal(t, cluster0, entryBeforeDelete.StartCluster)

	require.NoError(t, mgr.DeleteEntry(idx))

	deleted := mgr.CurrentDirectoryEntries()[idx]
	assert.True(t, deleted.IsDeleted())

	var raw [2]byte
	require.NoError(t, dev.ReadAt(raw[:], mgr.BootSector().FATOffset+int64(cluster0)*2))
	assert.Equal(t, uint16(ClusterFree), uint16(raw[0])|uint16(raw[1])<<8)
}

// TestDeleteEntryRejectsDirectoryUnusedAndOutOfRange checks that
// entryIsDeletable's exclusions for a directory and an unused slot surface
// as NotDeletable, and an index past the directory as OutOfBounds.
func TestDeleteEntryRejectsDirectoryUnusedAndOutOfRange(t *testing.T) {
	g := defaultTestGeometry()
	image, _, rootDirOffset, _ := buildBlankImage(g)

	subdir := NewDirectoryEntry("ADIR", "", AttrSubdirectory, 0, 0)
	raw := subdir.RawBytes()
	copy(image[rootDirOffset:rootDirOffset+DirentSize], raw[:])

	dev := device.NewMemoryDevice(image, false)
	mgr, err := Mount(dev)
	require.NoError(t, err)

	err = mgr.DeleteEntry(0)
	require.Error(t, err)
	assert.True(t, fat16errors.IsSameError(err, fat16errors.NotDeletable))

	err = mgr.DeleteEntry(1) // unused slot
	require.Error(t, err)
	assert.True(t, fat16errors.IsSameError(err, fat16errors.NotDeletable))

	err = mgr.DeleteEntry(len(mgr.CurrentDirectoryEntries()))
	require.Error(t, err)
	assert.True(t, fat16errors.IsSameError(err, fat16errors.OutOfBounds))
}

// TestCreateEntryReturnsNoSpaceWhenFATIsFull exhausts every allocatable
// cluster and checks CreateEntry surfaces NoSpace rather than panicking or
// claiming cluster 0/1.
func TestCreateEntryReturnsNoSpaceWhenFATIsFull(t *testing.T) {
	g := defaultTestGeometry()
	image, fatOffset, _, _ := buildBlankImage(g)
	dev := device.NewMemoryDevice(image, false)

	mgr, err := Mount(dev)
	require.NoError(t, err)

	boot := mgr.BootSector()
	for c := uint16(2); uint(c) < boot.NumClustersInFAT; c++ {
		setFATEntry(image, fatOffset, c, ClusterEndOfChain)
	}
	// The in-memory FAT cache was already loaded before we poked the image,
	// so reload by remounting.
	mgr, err = Mount(dev)
	require.NoError(t, err)

	handle := NewDirectoryEntry("NOPE", "BIN", AttrArchive, 0, 0)
	err = mgr.CreateEntry(&handle)
	require.Error(t, err)
	assert.True(t, fat16errors.IsSameError(err, fat16errors.NoSpace))
}

// TestReentrantCreateEntryReleasesAbandonedPendingClusters abandons a write
// mid-chain by calling CreateEntry again on the same handle instead of
// finalizing it, and checks that the clusters the first write had reserved
// go back to FindFreeCluster instead of leaking out of PendingReservations
// forever.
func TestReentrantCreateEntryReleasesAbandonedPendingClusters(t *testing.T) {
	g := defaultTestGeometry()
	mgr, _, _ := mountBlankImage(t, g)

	handle := NewDirectoryEntry("ABANDON", "BIN", AttrArchive, 0, 0)
	require.NoError(t, mgr.CreateEntry(&handle))

	spanTwoClusters := bytes.Repeat([]byte{0xAB}, int(g.sectorSize)*2)
	require.NoError(t, mgr.WriteToEntry(&handle, spanTwoClusters, false))
	require.Len(t, handle.Stream.PendingMods, 2, "writing a full cluster's worth of sectors must have extended the chain")

	abandonedClusters := make([]uint16, len(handle.Stream.PendingMods))
	for i, mod := range handle.Stream.PendingMods {
		abandonedClusters[i] = mod.ClusterNum
		assert.True(t, mgr.fat.IsPending(mod.ClusterNum), "cluster %d should still be pending before abandonment", mod.ClusterNum)
	}

	require.NoError(t, mgr.CreateEntry(&handle))
	require.Len(t, handle.Stream.PendingMods, 1, "the re-entrant CreateEntry must carry no leftover pending modifications")
	assert.Contains(t, abandonedClusters, handle.Stream.PendingMods[0].ClusterNum,
		"the lowest free cluster after abandonment should be one of the ones the first write gave up")

	for _, cluster := range abandonedClusters {
		if cluster == handle.Stream.PendingMods[0].ClusterNum {
			continue
		}
		assert.False(t, mgr.fat.IsPending(cluster), "cluster %d abandoned by re-entrant CreateEntry must be released from PendingReservations", cluster)
	}
}
