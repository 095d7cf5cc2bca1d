package diskarc

import "strings"

// Format identifies the on-disk filesystem a driver decodes. The set is
// closed: per-format behavior is table-driven, keyed by this tag.
type Format uint8

const (
	FormatUnknown Format = iota
	FormatProDOS
	FormatDOS33
	FormatDOS32
	FormatUNIDOS
	FormatGutenberg
	FormatPascal
	FormatCPM
	FormatMSDOS
	FormatRDOS
	FormatHFS
)

// Common ProDOS file types used by the bridge.
const (
	FileTypeNON = 0x00
	FileTypeTXT = 0x04
	FileTypeBIN = 0x06
	FileTypeDIR = 0x0f
	FileTypeSRC = 0xb0
	FileTypeINT = 0xfa
	FileTypeBAS = 0xfc

	// FileTypeDOSOversized is the DOS 'S' type, the generic type assigned
	// to files too large for DOS's fixed-length-record types.
	FileTypeDOSOversized = 0xf2
)

// Access flag bits, matching ProDOS conventions.
const (
	AccessRead      = 0x01
	AccessWrite     = 0x02
	AccessInvisible = 0x04
	AccessBackup    = 0x20
	AccessRename    = 0x40
	AccessDelete    = 0x80

	// AccessUnlocked is the usual access word for freshly created files.
	AccessUnlocked = AccessRead | AccessWrite | AccessBackup | AccessRename | AccessDelete
)

// DefaultFssep is the stored path separator used for composed paths
// (sub-volume prefixes, transfer descriptors).
const DefaultFssep = ':'

// formatInfo is one row of the capability table.
type formatInfo struct {
	name          string // human-readable label shown in entry lists
	dosStructure  bool   // flat, record-oriented DOS 3.2/3.3 file structure
	hierarchical  bool   // supports subdirectories
	resourceForks bool   // files may carry a resource fork
	validName     func(string) bool
	validVolName  func(string) bool
}

var formatTable = map[Format]formatInfo{
	FormatProDOS: {
		name:          "ProDOS",
		hierarchical:  true,
		resourceForks: true,
		validName:     validProDOSName,
		validVolName:  validProDOSName,
	},
	FormatDOS33: {
		name:         "DOS",
		dosStructure: true,
		validName:    validDOSName,
		validVolName: validDOSVolName,
	},
	FormatDOS32: {
		name:         "DOS",
		dosStructure: true,
		validName:    validDOSName,
		validVolName: validDOSVolName,
	},
	FormatUNIDOS: {
		name:         "DOS",
		dosStructure: true,
		validName:    validDOSName,
		validVolName: validDOSVolName,
	},
	FormatGutenberg: {
		name:         "DOS",
		dosStructure: true,
		validName:    validDOSName,
		validVolName: validDOSVolName,
	},
	FormatPascal: {
		name:         "Pascal",
		validName:    validPascalName,
		validVolName: validPascalVolName,
	},
	FormatCPM: {
		name:         "CP/M",
		validName:    validCPMName,
		validVolName: func(string) bool { return false },
	},
	FormatMSDOS: {
		name:         "MS-DOS",
		hierarchical: true,
		validName:    func(string) bool { return true },
		validVolName: func(string) bool { return true },
	},
	FormatRDOS: {
		name:         "RDOS",
		dosStructure: true,
		validName:    validDOSName,
		validVolName: func(string) bool { return false },
	},
	FormatHFS: {
		name:          "HFS",
		hierarchical:  true,
		resourceForks: true,
		validName:     validHFSName,
		validVolName:  validHFSVolName,
	},
}

// String returns the human-readable format label, "???" when unknown.
func (f Format) String() string {
	if info, ok := formatTable[f]; ok {
		return info.name
	}
	return "???"
}

// UsesDOSStructure reports whether the format stores files in the flat,
// record-oriented DOS 3.2/3.3 manner (which implies high-ASCII text).
func (f Format) UsesDOSStructure() bool {
	return formatTable[f].dosStructure
}

// Hierarchical reports whether the format supports subdirectories.
func (f Format) Hierarchical() bool {
	return formatTable[f].hierarchical
}

// HasResourceForks reports whether files on this format may carry a
// resource fork.
func (f Format) HasResourceForks() bool {
	return formatTable[f].resourceForks
}

// ValidFileName reports whether name is a legal file name on this format.
// Unknown formats accept nothing.
func (f Format) ValidFileName(name string) bool {
	info, ok := formatTable[f]
	if !ok {
		return false
	}
	return info.validName(name)
}

// ValidVolumeName reports whether name is a legal volume name on this
// format. Formats without renameable volumes accept nothing.
func (f Format) ValidVolumeName(name string) bool {
	info, ok := formatTable[f]
	if !ok {
		return false
	}
	return info.validVolName(name)
}

// validProDOSName: 1-15 chars, letter first, then letters/digits/'.'.
func validProDOSName(name string) bool {
	if len(name) == 0 || len(name) > 15 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= 'a' && c <= 'z':
		case i > 0 && (c >= '0' && c <= '9' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// validDOSName: 1-30 printable low-ASCII chars, no commas, and the first
// character may not be a digit.
func validDOSName(name string) bool {
	if len(name) == 0 || len(name) > 30 {
		return false
	}
	if name[0] >= '0' && name[0] <= '9' {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c >= 0x7f || c == ',' {
			return false
		}
	}
	return true
}

// validDOSVolName: DOS volumes are numbered 1-254.
func validDOSVolName(name string) bool {
	if len(name) == 0 || len(name) > 3 {
		return false
	}
	n := 0
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < '0' || c > '9' {
			return false
		}
		n = n*10 + int(c-'0')
	}
	return n >= 1 && n <= 254
}

// validPascalName: 1-15 chars, no spaces, control chars, or the Pascal
// filer metacharacters.
func validPascalName(name string) bool {
	if len(name) == 0 || len(name) > 15 {
		return false
	}
	return !strings.ContainsAny(name, "$=?,[#: ") && printableASCII(name)
}

// validPascalVolName: like a file name but at most 7 chars.
func validPascalVolName(name string) bool {
	return len(name) <= 7 && validPascalName(name)
}

// validCPMName: 8.3 upper-case format.
func validCPMName(name string) bool {
	base, ext, dot := strings.Cut(name, ".")
	if len(base) == 0 || len(base) > 8 {
		return false
	}
	if dot && (len(ext) == 0 || len(ext) > 3) {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.':
		default:
			return false
		}
	}
	return strings.Count(name, ".") <= 1
}

// validHFSName: 1-31 chars, no colon.
func validHFSName(name string) bool {
	return len(name) >= 1 && len(name) <= 31 && !strings.ContainsRune(name, ':')
}

// validHFSVolName: 1-27 chars, no colon.
func validHFSVolName(name string) bool {
	return len(name) >= 1 && len(name) <= 27 && !strings.ContainsRune(name, ':')
}

func printableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] >= 0x7f {
			return false
		}
	}
	return true
}
