// Package device provides the block-addressable storage abstraction the
// fat16 manager is built against. It is deliberately narrow: absolute-offset
// reads and writes, plus a hint about whether the media carries a partition
// table. Sector alignment belongs to the caller (the fat16 package); apart
// from MemoryDevice rejecting accesses outside its image, this package only
// moves bytes.
package device

import (
	"io"

	"github.com/xaionaro-go/bytesextra"
)

// BlockDevice is the storage collaborator the fat16 manager mounts against.
// Implementations may be a real file, a raw device node, or an in-memory
// image; the manager never assumes more than this interface provides.
type BlockDevice interface {
	// ReadAt returns exactly len(buffer) bytes read from the device starting
	// at the given absolute byte offset.
	ReadAt(buffer []byte, offset int64) error

	// WriteAt persists buffer at the given absolute byte offset.
	WriteAt(buffer []byte, offset int64) error

	// HasMBR reports whether the media is expected to carry a partition
	// table at LBA 0, as opposed to a boot sector starting directly at
	// byte 0.
	HasMBR() bool

	// Size returns the total addressable size of the device, in bytes.
	Size() int64
}

// MemoryDevice is a BlockDevice backed entirely by an in-memory byte slice.
// It's the backing store used by tests and by the disks.Format helper; a
// real deployment would instead wrap an *os.File or a raw block device.
type MemoryDevice struct {
	stream io.ReadWriteSeeker
	size   int64
	hasMBR bool
}

// NewMemoryDevice wraps image (which is not copied) in a BlockDevice. hasMBR
// tells the manager whether to look for a partition table at LBA 0 or treat
// byte 0 as the start of a boot sector.
func NewMemoryDevice(image []byte, hasMBR bool) *MemoryDevice {
	return &MemoryDevice{
		stream: bytesextra.NewReadWriteSeeker(image),
		size:   int64(len(image)),
		hasMBR: hasMBR,
	}
}

func (d *MemoryDevice) Size() int64 { return d.size }

func (d *MemoryDevice) HasMBR() bool { return d.hasMBR }

// ReadAt reads len(buffer) bytes starting at offset. It fails if the read
// would extend past the end of the image.
func (d *MemoryDevice) ReadAt(buffer []byte, offset int64) error {
	if err := d.checkBounds(offset, len(buffer)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := io.ReadFull(d.stream, buffer)
	return err
}

// WriteAt writes buffer starting at offset. It fails if the write would
// extend past the end of the image; MemoryDevice never grows the backing
// slice on its own.
func (d *MemoryDevice) WriteAt(buffer []byte, offset int64) error {
	if err := d.checkBounds(offset, len(buffer)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(offset, io.SeekStart); err != nil {
		return err
	}
	_, err := d.stream.Write(buffer)
	return err
}

func (d *MemoryDevice) checkBounds(offset int64, length int) error {
	if offset < 0 || offset+int64(length) > d.size {
		return io.ErrUnexpectedEOF
	}
	return nil
}
