package fat16

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDirectoryEntryRoundTrip(t *testing.T) {
	e := NewDirectoryEntry("README", "TXT", AttrArchive, PackTime(13, 30, 0), PackDate(2026, 7, 30))

	assert.Equal(t, "README  ", e.RawName())
	assert.Equal(t, "TXT", e.RawExtension())
	assert.Equal(t, "README.TXT", e.DisplayName())
	assert.False(t, e.IsUnused())

	raw := e.RawBytes()
	reparsed := ParseDirectoryEntry(raw[:])
	assert.Equal(t, e, reparsed)
}

func TestSetStartingClusterAndFileSizeUpdateRawBytes(t *testing.T) {
	e := NewDirectoryEntry("DATA", "BIN", AttrArchive, 0, 0)
	e.SetStartingCluster(42)
	e.SetFileSize(4096)

	reparsed := ParseDirectoryEntry(func() []byte { b := e.RawBytes(); return b[:] }())
	assert.Equal(t, uint16(42), reparsed.StartCluster)
	assert.Equal(t, uint32(4096), reparsed.FileSize)
}

func TestIsReclaimableCoversUnusedAndDeleted(t *testing.T) {
	unused := ParseDirectoryEntry(make([]byte, DirentSize))
	assert.True(t, unused.IsReclaimable())
	assert.False(t, unused.IsDeleted())

	deleted := unused
	deleted.markDeleted()
	assert.True(t, deleted.IsReclaimable())
	assert.True(t, deleted.IsDeleted())
	assert.False(t, deleted.IsUnused())
}

func TestDisplayNameAppliesDeletedAliasByte(t *testing.T) {
	e := NewDirectoryEntry("FOO", "TXT", 0, 0, 0)
	raw := e.RawBytes()
	raw[0] = direntDeletedAliasByte
	reparsed := ParseDirectoryEntry(raw[:])
	assert.Equal(t, "\xE5OO.TXT", reparsed.DisplayName())
}

func TestAttributeFlagPredicates(t *testing.T) {
	e := NewDirectoryEntry("SUBDIR", "", AttrSubdirectory|AttrHidden, 0, 0)
	assert.True(t, e.IsSubdirectory())
	assert.True(t, e.IsHidden())
	assert.False(t, e.IsReadOnly())
	assert.False(t, e.IsVolumeLabel())
}

func TestRootSelfRefDetection(t *testing.T) {
	self := NewDirectoryEntry(".", "", AttrSubdirectory, 0, 0)
	require.True(t, self.IsSelfRef())
	assert.True(t, self.IsRootSelfRef(), "starting cluster 0 marks the . entry as pointing at the root")

	self.SetStartingCluster(5)
	assert.False(t, self.IsRootSelfRef())

	parent := NewDirectoryEntry("..", "", AttrSubdirectory, 0, 0)
	assert.True(t, parent.IsParentRef())
	assert.False(t, parent.IsSelfRef())
}
