package fat16

import (
	fat16errors "github.com/bspeice/fat16fs/errors"
)

// ReadEntry validates h against the current directory (by raw-byte
// equality, per spec.md §4.5) and, if it names a plain readable file,
// initializes its streaming state for a read transfer. Any transfer
// already in progress on h — reading or writing — is implicitly
// terminated first (spec.md §4.8); rollbackWrite releases any clusters
// an abandoned write had pending so they don't leak out of
// PendingReservations.
func (m *Manager) ReadEntry(h *DirectoryEntry) error {
	if _, ok := m.findEntryIndex(h); !ok {
		return fat16errors.New(fat16errors.NotFound)
	}
	if !m.isReadable(h) {
		return fat16errors.New(fat16errors.NotReadable)
	}

	m.rollbackWrite(h)
	h.Stream.InProgress = true
	h.Stream.Writing = false
	h.Stream.CurrentSector = 0
	h.Stream.CurrentCluster = h.StartCluster
	h.Stream.CurrentDirOffset = m.dirOffset
	h.Stream.CurrentFileOffset = m.boot.ClusterToOffset(h.StartCluster)
	h.Stream.NumBytesRead = 0
	return nil
}

// isReadable reports whether h's kind permits readEntry to open it:
// neither a directory, unused, deleted, hidden, system, nor volume-label
// entry.
func (m *Manager) isReadable(h *DirectoryEntry) bool {
	return !h.IsSubdirectory() && !h.IsReclaimable() && !h.IsHidden() && !h.IsSystem() && !h.IsVolumeLabel()
}

// GetSelectedFileNextSector advances h's read state machine by one sector
// and returns the sector's raw bytes (spec.md §4.5). If no read transfer
// is in progress it returns an empty slice and no error.
//
// The sector at the current file offset is returned before the cluster
// chain is advanced, so the caller sees data for the sector it asked for;
// the returned buffer may overrun the file's declared size by up to one
// sector, which the caller must truncate using the entry's FileSize and
// the running byte count it has already consumed.
func (m *Manager) GetSelectedFileNextSector(h *DirectoryEntry) ([]byte, error) {
	if !h.Stream.InProgress {
		return []byte{}, nil
	}

	sectorSize := m.boot.SectorSize
	buf := make([]byte, sectorSize)
	if err := m.dev.ReadAt(buf, h.Stream.CurrentFileOffset); err != nil {
		return nil, fat16errors.WrapError(
			fat16errors.IOFailure, err, "failed to read sector at offset %d", h.Stream.CurrentFileOffset)
	}

	h.Stream.CurrentSector++
	h.Stream.NumBytesRead += uint32(sectorSize)

	terminate := false
	if h.Stream.CurrentSector == m.boot.SectorsPerCluster {
		h.Stream.CurrentSector = 0
		next := m.fat.ClusterValue(h.Stream.CurrentCluster)
		h.Stream.CurrentCluster = next
		if !IsAllocatable(next) {
			terminate = true
		}
	}
	if uint64(h.Stream.NumBytesRead) >= uint64(h.FileSize) {
		terminate = true
	}

	if terminate {
		h.Stream.reset()
	} else {
		h.Stream.CurrentFileOffset = m.boot.ClusterToOffset(h.Stream.CurrentCluster) +
			int64(h.Stream.CurrentSector)*int64(sectorSize)
	}

	return buf, nil
}
