package fat16

import (
	fat16errors "github.com/bspeice/fat16fs/errors"
)

// writeSequenceContract documents the required call order for creating a
// file: CreateEntry(h) -> WriteToEntry(h, data)* -> FlushToEntry(h, tail) |
// FinalizeEntry(h). Calling FinalizeEntry without a prior FlushToEntry is
// only valid when every write so far was sector-aligned.
const writeSequenceContract = "CreateEntry -> WriteToEntry* -> FlushToEntry | FinalizeEntry"

// CreateEntry claims a free cluster for a brand-new file, registers it in
// PendingReservations, and initializes h as a fresh writing handle. Any
// transfer already in progress on h is implicitly terminated first
// (spec.md §4.8); rollbackWrite releases any clusters an abandoned write
// had pending so they don't leak out of PendingReservations.
func (m *Manager) CreateEntry(h *DirectoryEntry) error {
	m.rollbackWrite(h)

	cluster, err := m.fat.FindFreeCluster(firstDataCluster - 1)
	if err != nil {
		return err
	}

	m.fat.Reserve(cluster)
	h.SetStartingCluster(cluster)
	h.SetFileSize(0)

	h.Stream.InProgress = true
	h.Stream.Writing = true
	h.Stream.CurrentSector = 0
	h.Stream.CurrentCluster = cluster
	h.Stream.CurrentDirOffset = m.dirOffset
	h.Stream.CurrentFileOffset = m.boot.ClusterToOffset(cluster)
	h.Stream.NumBytesRead = 0
	h.Stream.PendingMods = []ClusterMod{{ClusterNum: cluster, NewValue: ClusterEndOfChain}}
	return nil
}

// WriteToEntry writes data to h's stream, extending the cluster chain as
// needed. data's length must be a whole multiple of the sector size unless
// allowPartialTail is set — FlushToEntry sets it, ordinary WriteToEntry
// calls do not (spec.md §4.7).
func (m *Manager) WriteToEntry(h *DirectoryEntry, data []byte, allowPartialTail bool) error {
	sectorSize := int(m.boot.SectorSize)
	if !allowPartialTail && len(data)%sectorSize != 0 {
		return fat16errors.New(fat16errors.NotSectorAligned)
	}
	if !h.Stream.InProgress || !h.Stream.Writing {
		return fat16errors.WithMessage(fat16errors.InvalidArgument, "handle has no write transfer in progress")
	}

	offset := 0
	for offset < len(data) {
		chunkLen := sectorSize
		if remaining := len(data) - offset; remaining < chunkLen {
			chunkLen = remaining
		}

		scratch := make([]byte, sectorSize)
		copy(scratch, data[offset:offset+chunkLen])
		if err := m.dev.WriteAt(scratch, h.Stream.CurrentFileOffset); err != nil {
			return fat16errors.WrapError(
				fat16errors.IOFailure, err, "failed to write sector at offset %d", h.Stream.CurrentFileOffset)
		}

		h.Stream.CurrentSector++
		if h.Stream.CurrentSector == m.boot.SectorsPerCluster {
			h.Stream.CurrentSector = 0

			lastCluster := h.Stream.PendingMods[len(h.Stream.PendingMods)-1].ClusterNum
			next, err := m.fat.FindFreeCluster(lastCluster)
			if err != nil {
				m.rollbackWrite(h)
				return err
			}

			h.Stream.PendingMods[len(h.Stream.PendingMods)-1].NewValue = next
			h.Stream.PendingMods = append(h.Stream.PendingMods, ClusterMod{ClusterNum: next, NewValue: ClusterEndOfChain})
			m.fat.Reserve(next)
			h.Stream.CurrentCluster = next
		}

		h.Stream.CurrentFileOffset = m.boot.ClusterToOffset(h.Stream.CurrentCluster) +
			int64(h.Stream.CurrentSector)*int64(sectorSize)
		h.SetFileSize(h.FileSize + uint32(chunkLen))
		offset += chunkLen
	}

	return nil
}

// rollbackWrite releases every cluster this handle has reserved and
// returns it to Idle, with no FAT commit — the response to running out of
// space mid-extend (spec.md §4.7).
func (m *Manager) rollbackWrite(h *DirectoryEntry) {
	for _, mod := range h.Stream.PendingMods {
		m.fat.Release(mod.ClusterNum)
	}
	h.Stream.reset()
}

// FlushToEntry is WriteToEntry with partial-tail tolerance, immediately
// followed by FinalizeEntry.
func (m *Manager) FlushToEntry(h *DirectoryEntry, tail []byte) error {
	if err := m.WriteToEntry(h, tail, true); err != nil {
		return err
	}
	return m.FinalizeEntry(h)
}

// FinalizeEntry commits h to the directory referenced by its
// CurrentDirOffset: it scans for the first unused or deleted slot, writes
// h's raw bytes there, commits every pending cluster modification to the
// FAT cache, and flushes the affected FAT sectors to both copies. Pending
// reservations are released either way — on success because the clusters
// are now committed, on DirectoryFull because the write is abandoned
// (spec.md §4.7).
func (m *Manager) FinalizeEntry(h *DirectoryEntry) error {
	targetIsCurrent := h.Stream.CurrentDirOffset == m.dirOffset

	var entries []DirectoryEntry
	if targetIsCurrent {
		entries = m.dirEntries
	} else {
		buf := make([]byte, m.boot.SectorSize)
		if err := m.dev.ReadAt(buf, h.Stream.CurrentDirOffset); err != nil {
			return fat16errors.WrapError(
				fat16errors.IOFailure, err, "failed to read directory at offset %d", h.Stream.CurrentDirOffset)
		}
		entries = decodeDirentBuffer(buf)
	}

	slot := -1
	for i := range entries {
		if entries[i].IsReclaimable() {
			slot = i
			break
		}
	}
	if slot == -1 {
		m.rollbackWrite(h)
		return fat16errors.New(fat16errors.DirectoryFull)
	}

	slotOffset := h.Stream.CurrentDirOffset + int64(slot)*DirentSize
	raw := h.RawBytes()
	if err := m.dev.WriteAt(raw[:], slotOffset); err != nil {
		return fat16errors.WrapError(fat16errors.IOFailure, err, "failed to write directory entry at offset %d", slotOffset)
	}

	for _, mod := range h.Stream.PendingMods {
		m.fat.SetClusterValue(mod.ClusterNum, mod.NewValue)
	}
	writeBackErr := m.fat.WriteBack(m.dev, m.boot.MirrorFATOffsetFor, m.boot.NumFATs)

	for _, mod := range h.Stream.PendingMods {
		m.fat.Release(mod.ClusterNum)
	}
	h.Stream.PendingMods = nil
	h.Stream.reset()

	if targetIsCurrent {
		m.dirEntries[slot] = ParseDirectoryEntry(raw[:])
	}
	return writeBackErr
}

// entryIsDeletable reports whether an entry may be removed by DeleteEntry:
// not a directory, not already unused/deleted, not read-only/hidden/
// system/volume-label (spec.md §4.6, §7).
func entryIsDeletable(e *DirectoryEntry) bool {
	return !e.IsSubdirectory() && !e.IsReclaimable() &&
		!e.IsReadOnly() && !e.IsHidden() && !e.IsSystem() && !e.IsVolumeLabel()
}

// DeleteEntry removes the n-th entry of the current directory: it marks
// the entry deleted on media and frees every cluster in its chain,
// detecting chain corruption rather than looping forever (spec.md §4.6).
func (m *Manager) DeleteEntry(n int) error {
	if n < 0 || n >= len(m.dirEntries) {
		return fat16errors.WithMessage(fat16errors.OutOfBounds, "entry index %d not in [0, %d)", n, len(m.dirEntries))
	}

	entry := m.dirEntries[n]
	if !entryIsDeletable(&entry) {
		return fat16errors.New(fat16errors.NotDeletable)
	}

	visited := make(map[uint16]bool)
	cluster := entry.StartCluster
	maxChainLength := int(m.boot.NumClustersInFAT)

	var chain []uint16
	for i := 0; IsAllocatable(cluster); i++ {
		if i >= maxChainLength || visited[cluster] {
			return fat16errors.WithMessage(
				fat16errors.CorruptChain, "cluster chain starting at %d revisits cluster %d", entry.StartCluster, cluster)
		}
		visited[cluster] = true
		chain = append(chain, cluster)
		cluster = m.fat.ClusterValue(cluster)
	}
	for _, c := range chain {
		m.fat.SetClusterValue(c, ClusterFree)
	}

	entry.markDeleted()
	slotOffset := m.dirOffset + int64(n)*DirentSize
	raw := entry.RawBytes()
	if err := m.dev.WriteAt(raw[:], slotOffset); err != nil {
		return fat16errors.WrapError(fat16errors.IOFailure, err, "failed to write deleted entry at offset %d", slotOffset)
	}

	writeBackErr := m.fat.WriteBack(m.dev, m.boot.MirrorFATOffsetFor, m.boot.NumFATs)
	m.dirEntries[n] = entry
	return writeBackErr
}
