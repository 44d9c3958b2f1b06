// Package fat16 implements a read/write FAT16 file-system driver: MBR and
// BPB parsing, a FAT cache with redundant-mirror write-back, directory
// navigation, and per-handle streaming read/write/delete operations.
package fat16

import (
	"github.com/bspeice/fat16fs/device"
	fat16errors "github.com/bspeice/fat16fs/errors"
)

// Manager owns everything spec.md §3 calls out as exclusively
// manager-owned: the FAT cache, the pending-reservations set (held inside
// the FAT cache), the current directory list, and the active boot sector.
// It is not safe for concurrent use by multiple goroutines; the scheduling
// model (spec.md §5) is single-threaded and cooperative.
type Manager struct {
	dev           device.BlockDevice
	boot          *BootSector
	fat           *FATCache
	partIndex     int
	partType      PartitionType
	partTypeKnown bool
	dirOffset     int64
	dirIsRoot     bool
	dirEntries    []DirectoryEntry
}

// Mount reads the MBR (if the device reports one) or a bare boot sector,
// selects the active partition (the first that is neither empty nor
// extended; its type code is not checked), loads the FAT into memory, and
// populates the root directory cache.
func Mount(dev device.BlockDevice) (*Manager, error) {
	m := &Manager{dev: dev}
	if err := m.mountPartition(selectActivePartition); err != nil {
		return nil, err
	}
	return m, nil
}

// partitionSelector picks which of the four MBR entries (or the sole
// implicit entry when there is no MBR) becomes active.
type partitionSelector func(table [4]PartitionEntry) (PartitionEntry, int, bool)

func (m *Manager) mountPartition(choose partitionSelector) error {
	var bootSectorBytes [bootSectorSize]byte
	var lbaOffset uint32
	var partIndex int
	var partType PartitionType
	var partTypeKnown bool

	if m.dev.HasMBR() {
		var sector0 [bootSectorSize]byte
		if err := m.dev.ReadAt(sector0[:], 0); err != nil {
			return fat16errors.WrapError(fat16errors.IOFailure, err, "failed to read MBR")
		}
		if !hasMBRSignature(sector0[:]) {
			return fat16errors.WithMessage(fat16errors.InvalidFileSystem, "no boot signature found in MBR")
		}

		table, err := parsePartitionTable(sector0[:])
		if err != nil {
			return err
		}

		entry, idx, ok := choose(table)
		if !ok {
			return fat16errors.WithMessage(fat16errors.InvalidFileSystem, "no usable FAT16 partition found in MBR")
		}

		lbaOffset = entry.LBAOffset
		partIndex = idx
		partType = entry.Type
		partTypeKnown = true
		if err := m.dev.ReadAt(bootSectorBytes[:], int64(lbaOffset)*bootSectorSize); err != nil {
			return fat16errors.WrapError(fat16errors.IOFailure, err, "failed to read boot sector at LBA %d", lbaOffset)
		}
	} else {
		if err := m.dev.ReadAt(bootSectorBytes[:], 0); err != nil {
			return fat16errors.WrapError(fat16errors.IOFailure, err, "failed to read boot sector")
		}
	}

	boot, err := NewBootSector(bootSectorBytes[:], lbaOffset)
	if err != nil {
		return err
	}

	fat := NewFATCache(boot.SectorSize, boot.SectorsPerFAT, boot.NumClustersInFAT)
	if err := fat.Load(m.dev, boot.FATOffset); err != nil {
		return err
	}

	m.boot = boot
	m.fat = fat
	m.partIndex = partIndex
	m.partType = partType
	m.partTypeKnown = partTypeKnown
	return m.loadRootDirectory()
}

// ChangePartition switches to partition index n (0-3), re-derives
// geometry, reloads the FAT, and reloads the root directory. n must name a
// non-empty, non-extended partition, exactly as the initial mount does
// (spec.md §4.4).
func (m *Manager) ChangePartition(n int) error {
	if n < 0 || n >= 4 {
		return fat16errors.WithMessage(fat16errors.OutOfBounds, "partition index %d not in [0, 4)", n)
	}
	return m.mountPartition(func(table [4]PartitionEntry) (PartitionEntry, int, bool) {
		entry := table[n]
		if entry.IsEmpty() || entry.Type.IsExtended() {
			return PartitionEntry{}, -1, false
		}
		return entry, n, true
	})
}

// BootSector returns the active partition's parsed boot sector.
func (m *Manager) BootSector() *BootSector {
	return m.boot
}

// PartitionType returns the MBR type code of the active partition, and
// false when the device carries no MBR (the boot sector was read directly
// at offset 0, so there is no partition table entry to report).
func (m *Manager) PartitionType() (PartitionType, bool) {
	return m.partType, m.partTypeKnown
}

// loadRootDirectory reads the whole root directory region into the
// current-directory cache.
func (m *Manager) loadRootDirectory() error {
	buf := make([]byte, uint(m.boot.RootEntryCount)*DirentSize)
	if err := m.dev.ReadAt(buf, m.boot.RootDirOffset); err != nil {
		return fat16errors.WrapError(fat16errors.IOFailure, err, "failed to read root directory")
	}

	m.dirOffset = m.boot.RootDirOffset
	m.dirIsRoot = true
	m.dirEntries = decodeDirentBuffer(buf)
	return nil
}

// loadDirectoryAt reads one sector's worth of entries starting at
// byteOffset into the current-directory cache. Subdirectories spanning
// multiple sectors are an acknowledged limitation (spec.md §4.4).
func (m *Manager) loadDirectoryAt(byteOffset int64) error {
	buf := make([]byte, m.boot.SectorSize)
	if err := m.dev.ReadAt(buf, byteOffset); err != nil {
		return fat16errors.WrapError(fat16errors.IOFailure, err, "failed to read directory at offset %d", byteOffset)
	}

	m.dirOffset = byteOffset
	m.dirIsRoot = false
	m.dirEntries = decodeDirentBuffer(buf)
	return nil
}

// decodeDirentBuffer splits a buffer whose length is a multiple of
// DirentSize into individual parsed entries.
func decodeDirentBuffer(buf []byte) []DirectoryEntry {
	count := len(buf) / DirentSize
	entries := make([]DirectoryEntry, count)
	for i := 0; i < count; i++ {
		entries[i] = ParseDirectoryEntry(buf[i*DirentSize : (i+1)*DirentSize])
	}
	return entries
}

// CurrentDirectoryOffset returns the byte offset the current directory
// listing was loaded from (spec.md §3's m_CurrentDirOffset).
func (m *Manager) CurrentDirectoryOffset() int64 {
	return m.dirOffset
}

// CurrentDirectoryEntries returns the current directory's entries. The
// returned slice must not be mutated by the caller; copy entries out of it
// to drive a streaming operation.
func (m *Manager) CurrentDirectoryEntries() []DirectoryEntry {
	return m.dirEntries
}

// SelectEntry returns a copy of the n-th entry in the current directory.
// If that entry is the `.` self-reference to the root, or a subdirectory,
// the current-directory cache is reloaded to reflect the navigation
// (spec.md §4.4); a plain file entry leaves the cache untouched.
func (m *Manager) SelectEntry(n int) (DirectoryEntry, error) {
	if n < 0 || n >= len(m.dirEntries) {
		return DirectoryEntry{}, fat16errors.WithMessage(
			fat16errors.OutOfBounds, "entry index %d not in [0, %d)", n, len(m.dirEntries))
	}

	entry := m.dirEntries[n]

	switch {
	case entry.IsRootSelfRef():
		if err := m.loadRootDirectory(); err != nil {
			return DirectoryEntry{}, err
		}
	case entry.IsSubdirectory():
		if err := m.loadDirectoryAt(m.boot.ClusterToOffset(entry.StartCluster)); err != nil {
			return DirectoryEntry{}, err
		}
	}

	return entry, nil
}

// findEntryIndex returns the index of an entry within the current
// directory whose raw bytes exactly match h's, the lookup readEntry and
// deleteEntry use to validate a handle (spec.md §4.5).
func (m *Manager) findEntryIndex(h *DirectoryEntry) (int, bool) {
	for i := range m.dirEntries {
		if m.dirEntries[i].rawBytesEqual(h) {
			return i, true
		}
	}
	return -1, false
}
