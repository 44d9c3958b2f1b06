package fat16

import (
	"encoding/binary"

	"github.com/boljen/go-bitmap"
	"github.com/bspeice/fat16fs/device"
	fat16errors "github.com/bspeice/fat16fs/errors"
	"github.com/hashicorp/go-multierror"
)

// FAT16 cluster successor sentinel values (spec.md §3/§6).
const (
	ClusterFree        uint16 = 0x0000
	ClusterReserved    uint16 = 0x0001
	ClusterBad         uint16 = 0xFFF7
	ClusterEndOfChain  uint16 = 0xFFFF
	clusterEOCLowWater uint16 = 0xFFF8 // >= this value is end-of-chain

	// firstDataCluster is the lowest cluster number ever handed out by the
	// allocator; clusters 0 and 1 are permanently reserved.
	firstDataCluster uint16 = 2
)

// IsEndOfChain reports whether value is one of the canonical end-of-chain
// markers (>= 0xFFF8; the cache always writes the canonical 0xFFFF).
func IsEndOfChain(value uint16) bool {
	return value >= clusterEOCLowWater
}

// IsAllocatable reports whether value names a cluster that getSelectedFileNextSector
// should keep following: anything other than free, bad, reserved, or
// end-of-chain.
func IsAllocatable(value uint16) bool {
	return value != ClusterFree && value != ClusterBad && value != ClusterReserved && !IsEndOfChain(value)
}

// FATCache holds the entire FAT table for the mounted partition in one
// contiguous buffer, tracks which FAT sectors have unflushed edits, and
// tracks clusters claimed by in-progress writes that haven't yet been
// committed to the on-disk FAT (PendingReservations in spec.md §3).
//
// The dirty-sector bitmap mirrors drivers/common/blockcache.BlockCache's
// loadedBlocks/dirtyBlocks pair, generalized from arbitrary disk blocks to
// FAT sectors specifically, and simplified because the whole FAT is loaded
// once at mount rather than paged in lazily.
type FATCache struct {
	data        []byte
	dirty       bitmap.Bitmap
	reserved    bitmap.Bitmap
	sectorSize  uint
	numSectors  uint
	numClusters uint
}

// NewFATCache allocates an empty cache sized for a FAT of numSectors
// sectors, each sectorSize bytes, covering numClusters cluster slots.
func NewFATCache(sectorSize uint, numSectors uint, numClusters uint) *FATCache {
	return &FATCache{
		data:        make([]byte, sectorSize*numSectors),
		dirty:       bitmap.New(int(numSectors)),
		reserved:    bitmap.New(int(numClusters)),
		sectorSize:  sectorSize,
		numSectors:  numSectors,
		numClusters: numClusters,
	}
}

// Load reads the entire primary FAT from dev at fatOffset into the cache.
func (fc *FATCache) Load(dev device.BlockDevice, fatOffset int64) error {
	if err := dev.ReadAt(fc.data, fatOffset); err != nil {
		return fat16errors.WrapError(fat16errors.IOFailure, err, "failed to load FAT from offset %d", fatOffset)
	}
	return nil
}

// clusterByteOffset returns the byte offset of cluster c's 16-bit successor
// entry within the cache buffer.
func (fc *FATCache) clusterByteOffset(c uint16) int {
	return int(c) * 2
}

// ClusterValue returns the raw successor value stored for cluster c.
func (fc *FATCache) ClusterValue(c uint16) uint16 {
	off := fc.clusterByteOffset(c)
	return binary.LittleEndian.Uint16(fc.data[off : off+2])
}

// SetClusterValue writes value as cluster c's successor and marks the FAT
// sector containing it dirty.
func (fc *FATCache) SetClusterValue(c uint16, value uint16) {
	off := fc.clusterByteOffset(c)
	binary.LittleEndian.PutUint16(fc.data[off:off+2], value)

	sectorIndex := off / int(fc.sectorSize)
	fc.dirty.Set(sectorIndex, true)
}

// IsPending reports whether cluster c is currently claimed by an
// in-progress write that hasn't been committed to the FAT yet.
func (fc *FATCache) IsPending(c uint16) bool {
	if int(c) >= int(fc.numClusters) {
		return false
	}
	return fc.reserved.Get(int(c))
}

// Reserve adds cluster c to PendingReservations.
func (fc *FATCache) Reserve(c uint16) {
	fc.reserved.Set(int(c), true)
}

// Release removes cluster c from PendingReservations, e.g. after a commit
// or a rollback.
func (fc *FATCache) Release(c uint16) {
	fc.reserved.Set(int(c), false)
}

// FindFreeCluster scans clusters (after, numClusters) — or from
// firstDataCluster if after is below firstDataCluster — for the first one
// that is both FAT-free
// and not already claimed by PendingReservations. It returns NoSpace if
// none exists. This generalizes drivers/common/allocatormap.go's
// first-fit bitmap scan from a single allocated bit per unit to the FAT's
// richer free/reserved/bad/end-of-chain value table.
func (fc *FATCache) FindFreeCluster(after uint16) (uint16, error) {
	start := firstDataCluster
	if after >= firstDataCluster {
		start = after + 1
	}

	for c := uint(start); c < fc.numClusters && c <= 0xFFFF; c++ {
		if fc.ClusterValue(uint16(c)) == ClusterFree && !fc.IsPending(uint16(c)) {
			return uint16(c), nil
		}
	}
	return 0, fat16errors.New(fat16errors.NoSpace)
}

// WriteBack flushes every dirty FAT sector to all numFATs on-disk copies,
// using mirrorOffsetFor(i) to locate the i-th copy's base offset. It always
// clears the dirty bits it attempted to flush — spec.md §7 treats the
// in-memory cache as authoritative regardless of whether a copy's write
// succeeds — but aggregates every copy-write failure it saw via
// hashicorp/go-multierror instead of stopping at the first one, so a
// caller who wants to know can still find out every sector/copy that
// failed.
func (fc *FATCache) WriteBack(dev device.BlockDevice, mirrorOffsetFor func(copyIndex uint) int64, numFATs uint) error {
	var errs error

	for sectorIndex := 0; sectorIndex < int(fc.numSectors); sectorIndex++ {
		if !fc.dirty.Get(sectorIndex) {
			continue
		}

		start := sectorIndex * int(fc.sectorSize)
		sectorData := fc.data[start : start+int(fc.sectorSize)]

		for copyIndex := uint(0); copyIndex < numFATs; copyIndex++ {
			offset := mirrorOffsetFor(copyIndex) + int64(start)
			if err := dev.WriteAt(sectorData, offset); err != nil {
				errs = multierror.Append(errs, fat16errors.WrapError(
					fat16errors.IOFailure, err,
					"failed to write FAT sector %d to copy %d at offset %d", sectorIndex, copyIndex, offset))
			}
		}

		fc.dirty.Set(sectorIndex, false)
	}

	return errs
}

// ReleaseAll removes each of the given clusters from PendingReservations,
// leaving any other reserved cluster in place.
func (fc *FATCache) ReleaseAll(clusters []uint16) {
	for _, c := range clusters {
		fc.Release(c)
	}
}
