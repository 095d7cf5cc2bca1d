package diskarc

import (
	"io"
	"time"
)

// StorageShape describes how a created file is laid out on disk.
type StorageShape uint8

const (
	// ShapeSeedling is a plain data-only file.
	ShapeSeedling StorageShape = iota

	// ShapeExtended is a file with data and resource forks.
	ShapeExtended

	// ShapeDirectory is a subdirectory.
	ShapeDirectory
)

func (s StorageShape) String() string {
	switch s {
	case ShapeSeedling:
		return "seedling"
	case ShapeExtended:
		return "extended"
	case ShapeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// CreateRequest carries everything a driver needs to create a file or
// directory. Paths are already normalized for the target filesystem.
type CreateRequest struct {
	PathName string
	Fssep    byte
	Shape    StorageShape
	FileType uint32
	AuxType  uint32
	Access   uint32

	CreateWhen time.Time
	ModWhen    time.Time
}

// FileNode is a driver's handle on one catalog entry. Nodes become
// invalid when the backing file is deleted or the volume is reloaded.
type FileNode interface {
	PathName() string
	Fssep() byte
	FileType() uint32
	AuxType() uint32
	Access() uint32

	// CreateWhen and ModWhen return the zero time when the format does
	// not record the timestamp.
	CreateWhen() time.Time
	ModWhen() time.Time

	IsDirectory() bool
	IsVolumeDirectory() bool

	// DataLen and RsrcLen return ForkAbsent when the fork does not exist.
	DataLen() int64
	RsrcLen() int64

	// SparseDataLen and SparseRsrcLen return the storage footprint of
	// each fork, which may be smaller than the logical length.
	SparseDataLen() int64
	SparseRsrcLen() int64

	Damaged() bool
	Suspicious() bool

	// OpenFork opens one fork for reading (write=false) or writing
	// (write=true). The bridge writes each fork in a single full pass.
	OpenFork(fork Fork, write bool) (ForkHandle, error)
}

// ForkHandle is an open fork stream. The bridge reads in fixed chunks
// and writes whole payloads; Close must be called in either case.
type ForkHandle interface {
	io.Reader
	io.Writer
	io.Closer
}

// Driver is the low-level per-format filesystem behind an archive. The
// bridge never decodes sectors itself; all on-disk knowledge lives here.
//
// Drivers are single-writer. The bridge issues no concurrent calls.
type Driver interface {
	// Format identifies the filesystem this driver decodes.
	Format() Format

	// VolumeName returns the volume's name, or "" if it has none.
	VolumeName() string

	// ReadWrite reports whether the volume supports modification.
	ReadWrite() bool

	// Damaged reports whether the volume failed integrity checks.
	Damaged() bool

	// Files returns all files on this volume in pre-order. Sub-volume
	// contents are not included.
	Files() []FileNode

	// SubVolumes returns drivers for filesystems nested in this one.
	SubVolumes() []Driver

	// FileByName returns the node with the given normalized path, or nil.
	FileByName(path string) FileNode

	// NormalizePath rewrites a storage path into a form legal on this
	// filesystem (length limits, character set, case rules).
	NormalizePath(path string, fssep byte) (string, error)

	// CreateFile creates a file or directory described by req. When
	// name uniquification is enabled (SetCreateUnique), colliding names
	// get a unique suffix instead of failing; directories are exempt.
	CreateFile(req CreateRequest) (FileNode, error)

	DeleteFile(node FileNode) error
	RenameFile(node FileNode, newName string) error
	RenameVolume(newName string) error
	SetFileInfo(node FileNode, fileType, auxType, access uint32) error

	// SetCreateUnique toggles name uniquification for CreateFile.
	SetCreateUnique(enabled bool)

	// Flush performs a fast flush of pending catalog state.
	Flush() error
}

// ProgressFunc receives progress updates during extraction, writing, and
// loading. Return false to cancel the operation; the check is
// cooperative, at chunk or per-file granularity. Implementations must
// not block.
type ProgressFunc func(current, total int64) bool

// neverCancel is the fallback when no progress callback is configured.
func neverCancel(current, total int64) bool { return true }
