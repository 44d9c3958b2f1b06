package fat16

import (
	"encoding/binary"
	"strings"
)

// DirentSize is the fixed width of one FAT16 directory entry, in bytes.
const DirentSize = 32

// Attribute flags stored in a directory entry's single attribute byte.
const (
	AttrReadOnly     = 1 << 0
	AttrHidden       = 1 << 1
	AttrSystem       = 1 << 2
	AttrVolumeLabel  = 1 << 3
	AttrSubdirectory = 1 << 4
	AttrArchive      = 1 << 5
)

// First-filename-byte sentinels used when classifying an entry.
const (
	direntUnusedByte       = 0x00
	direntDeletedByte      = 0xE5
	direntDeletedAliasByte = 0x05
	direntDotByte          = 0x2E
)

// ClusterMod records a pending (not yet committed to the on-disk FAT)
// change to one cluster's successor value, queued up while a handle is in
// the Writing state.
type ClusterMod struct {
	ClusterNum uint16
	NewValue   uint16
}

// StreamingState is the per-handle state machine driving a sector-at-a-time
// read or write transfer. It is embedded in DirectoryEntry so that a handle
// carries both its directory-entry identity and its transfer progress.
type StreamingState struct {
	InProgress        bool
	Writing           bool
	CurrentSector     uint
	CurrentCluster    uint16
	CurrentDirOffset  int64
	CurrentFileOffset int64
	NumBytesRead      uint32
	PendingMods       []ClusterMod
}

// reset clears the streaming state back to Idle, implicitly canceling
// whatever transfer was in progress. This models spec.md §4.8's
// "endFileTransfer invoked implicitly" transition.
func (s *StreamingState) reset() {
	*s = StreamingState{}
}

// DirectoryEntry is a parsed FAT16 directory entry plus its streaming
// state. It is a value type: callers hold it by value and pass a pointer to
// it into the manager's streaming operations to drive a transfer, matching
// spec.md §3's description of directory entries as value objects with an
// embedded handle.
type DirectoryEntry struct {
	raw [DirentSize]byte

	Name         [8]byte
	Extension    [3]byte
	Attributes   uint8
	TimeUpdated  uint16
	DateUpdated  uint16
	StartCluster uint16
	FileSize     uint32

	Stream StreamingState
}

// ParseDirectoryEntry decodes one 32-byte slot into a DirectoryEntry. data
// must be exactly DirentSize bytes; the raw bytes are retained verbatim so
// that re-serializing an entry no setter has touched reproduces them
// exactly (spec.md §8, invariant 7).
func ParseDirectoryEntry(data []byte) DirectoryEntry {
	var e DirectoryEntry
	copy(e.raw[:], data[:DirentSize])

	copy(e.Name[:], e.raw[0:8])
	copy(e.Extension[:], e.raw[8:11])
	e.Attributes = e.raw[11]
	e.TimeUpdated = binary.LittleEndian.Uint16(e.raw[22:24])
	e.DateUpdated = binary.LittleEndian.Uint16(e.raw[24:26])
	e.StartCluster = binary.LittleEndian.Uint16(e.raw[26:28])
	e.FileSize = binary.LittleEndian.Uint32(e.raw[28:32])
	return e
}

// RawBytes returns the entry's current 32-byte on-disk representation.
func (e *DirectoryEntry) RawBytes() [DirentSize]byte {
	return e.raw
}

// RawName returns the unprocessed 8-byte filename field, without the
// 0xE5/0x05 deleted-name aliasing display rendering applies. Useful for
// exact-match lookups against entries that may be deleted.
func (e *DirectoryEntry) RawName() string {
	return string(e.Name[:])
}

// RawExtension returns the unprocessed 3-byte extension field.
func (e *DirectoryEntry) RawExtension() string {
	return string(e.Extension[:])
}

// IsUnused reports whether this slot has never held an entry, or has been
// freed and is available to be claimed by finalizeEntry. Per spec.md's
// open question on §9, this module treats byte 0x00 as reclaimable rather
// than as a hard terminator of the directory scan.
func (e *DirectoryEntry) IsUnused() bool {
	return e.raw[0] == direntUnusedByte
}

// IsDeleted reports whether the entry was deleted via deleteEntry.
func (e *DirectoryEntry) IsDeleted() bool {
	return e.raw[0] == direntDeletedByte
}

// IsReclaimable reports whether the slot may be reused by finalizeEntry
// (unused or deleted).
func (e *DirectoryEntry) IsReclaimable() bool {
	return e.IsUnused() || e.IsDeleted()
}

// IsDotEntry reports whether this entry's filename begins with '.', i.e.
// it is a `.` or `..` self/parent reference.
func (e *DirectoryEntry) IsDotEntry() bool {
	return e.raw[0] == direntDotByte
}

// IsSelfRef reports whether this is a `.` self-reference; IsRootSelfRef
// additionally flags one whose starting cluster is 0 as pointing at the
// root. This heuristic is carried from the original source (spec.md §9's
// open question on root-directory detection).
func (e *DirectoryEntry) IsSelfRef() bool {
	return e.IsDotEntry() && e.raw[1] != direntDotByte
}

// IsParentRef reports whether this is a `..` parent-directory reference.
func (e *DirectoryEntry) IsParentRef() bool {
	return e.IsDotEntry() && e.raw[1] == direntDotByte
}

// IsRootSelfRef reports whether this `.` entry's starting cluster is 0,
// the heuristic the original source uses to flag "this points at the
// root." SelectEntry uses it to decide when to reload the root directory.
func (e *DirectoryEntry) IsRootSelfRef() bool {
	return e.IsSelfRef() && e.StartCluster == 0
}

func (e *DirectoryEntry) IsReadOnly() bool    { return e.Attributes&AttrReadOnly != 0 }
func (e *DirectoryEntry) IsHidden() bool      { return e.Attributes&AttrHidden != 0 }
func (e *DirectoryEntry) IsSystem() bool      { return e.Attributes&AttrSystem != 0 }
func (e *DirectoryEntry) IsVolumeLabel() bool { return e.Attributes&AttrVolumeLabel != 0 }
func (e *DirectoryEntry) IsSubdirectory() bool {
	return e.Attributes&AttrSubdirectory != 0
}

// DisplayName renders the entry's name the way a directory listing would,
// applying the 0xE5/0x05 deleted-name aliasing: a filename whose real first
// byte is 0xE5 (deleted) has its true first character stashed elsewhere
// on some systems, but in this simplified model we render the alias byte
// 0x05 back to 0xE5 and leave genuinely deleted entries' names as trimmed
// raw bytes.
func (e *DirectoryEntry) DisplayName() string {
	name := make([]byte, 8)
	copy(name, e.Name[:])
	if name[0] == direntDeletedAliasByte {
		name[0] = 0xE5
	}

	trimmedName := strings.TrimRight(string(name), " ")
	trimmedExt := strings.TrimRight(string(e.Extension[:]), " ")
	if trimmedExt == "" {
		return trimmedName
	}
	return trimmedName + "." + trimmedExt
}

// SetStartingCluster updates the entry's starting-cluster field, both in
// the parsed view and in the raw on-disk bytes, so a subsequent RawBytes()
// reflects the change.
func (e *DirectoryEntry) SetStartingCluster(cluster uint16) {
	e.StartCluster = cluster
	binary.LittleEndian.PutUint16(e.raw[26:28], cluster)
}

// SetFileSize updates the entry's file-size field in both the parsed view
// and the raw bytes.
func (e *DirectoryEntry) SetFileSize(size uint32) {
	e.FileSize = size
	binary.LittleEndian.PutUint32(e.raw[28:32], size)
}

// markDeleted sets the entry's first filename byte to 0xE5, the on-disk
// marker deleteEntry writes.
func (e *DirectoryEntry) markDeleted() {
	e.raw[0] = direntDeletedByte
	e.Name[0] = direntDeletedByte
}

// rawBytesEqual compares two entries' raw 32-byte representations, the
// equality check readEntry uses to validate a handle against the current
// directory's entries (spec.md §4.5).
func (e *DirectoryEntry) rawBytesEqual(other *DirectoryEntry) bool {
	return e.raw == other.raw
}
