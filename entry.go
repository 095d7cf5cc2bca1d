package diskarc

import (
	"strings"
	"time"
)

// RecordKind classifies a catalog entry.
type RecordKind uint8

const (
	// RecordFile is a plain file with only a data fork.
	RecordFile RecordKind = iota

	// RecordForkedFile carries both a data and a resource fork.
	RecordForkedFile

	// RecordDirectory is a subdirectory.
	RecordDirectory

	// RecordVolumeDir is the volume directory pseudo-entry found on
	// ProDOS and HFS volumes. It is never deleted or renamed.
	RecordVolumeDir
)

func (k RecordKind) String() string {
	switch k {
	case RecordFile:
		return "file"
	case RecordForkedFile:
		return "forked file"
	case RecordDirectory:
		return "directory"
	case RecordVolumeDir:
		return "volume directory"
	default:
		return "unknown"
	}
}

// Fork selects one of the two byte streams a file may carry.
type Fork uint8

const (
	DataFork Fork = iota
	RsrcFork
)

func (f Fork) String() string {
	if f == RsrcFork {
		return "rsrc"
	}
	return "data"
}

// ForkAbsent is the fork-length sentinel for "this fork does not exist".
// Present-but-empty forks have length zero.
const ForkAbsent = -1

// Entry is one record in the generic archive view of a volume.
//
// Entries are produced by tree loading and owned by the archive's entry
// list; they are discarded en masse on every reload, never patched
// incrementally (except SetProps, which refreshes fields in place).
type Entry struct {
	// PathName is the file's path as stored on the volume.
	PathName string

	// SubVolName labels the sub-volume the file lives on, empty for the
	// primary volume. It never contains the path separator, so it can be
	// prepended to PathName safely.
	SubVolName string

	// Fssep is the path separator character used by the source format.
	Fssep byte

	FileType uint32
	AuxType  uint32
	Access   uint32

	// CreateWhen and ModWhen are zero when the format does not record
	// the timestamp.
	CreateWhen time.Time
	ModWhen    time.Time

	Kind RecordKind

	// DataLen and RsrcLen are fork lengths; ForkAbsent (-1) means the
	// fork does not exist.
	DataLen int64
	RsrcLen int64

	// CompressedLen is the storage footprint (sparse length) of all
	// present forks combined.
	CompressedLen int64

	// SourceFormat tags the filesystem the entry was loaded from.
	SourceFormat Format

	// FormatName is the human-readable format label ("DOS", "ProDOS", …).
	FormatName string

	Damaged    bool
	Suspicious bool

	// node is the driver handle behind this entry; nil once the backing
	// file has been deleted. drv is the driver the node belongs to,
	// which for sub-volume entries is not the primary driver.
	node FileNode
	drv  Driver

	// seq is the insertion position assigned by the owning EntryList.
	// DOS catalogs can legally carry duplicate names; seq keeps such
	// entries distinct in the list ordering.
	seq uint64
}

// HasDataFork reports whether the entry carries a data fork.
func (e *Entry) HasDataFork() bool { return e.DataLen >= 0 }

// HasRsrcFork reports whether the entry carries a resource fork.
func (e *Entry) HasRsrcFork() bool { return e.RsrcLen >= 0 }

// ForkLen returns the length of the selected fork, ForkAbsent if the
// fork does not exist.
func (e *Entry) ForkLen(fork Fork) int64 {
	if fork == RsrcFork {
		return e.RsrcLen
	}
	return e.DataLen
}

// DisplayName is the path with the sub-volume label prefixed, suitable
// for sorting and user display.
func (e *Entry) DisplayName() string {
	if e.SubVolName == "" {
		return e.PathName
	}
	return e.SubVolName + string(DefaultFssep) + e.PathName
}

// IsDescendantOf reports whether the entry's display path lies below
// dirPath (a display path without trailing separator).
func (e *Entry) IsDescendantOf(dirPath string) bool {
	return strings.HasPrefix(e.DisplayName(), dirPath+string(DefaultFssep))
}
