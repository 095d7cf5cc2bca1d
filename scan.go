package diskarc

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
)

// rsrcSuffix marks a host file as the resource fork of its base name:
// "ICON" and "ICON.rsrc" become one two-fork candidate.
const rsrcSuffix = ".rsrc"

// ScanOptions configures ScanDir.
type ScanOptions struct {
	// StoragePrefix is prepended (with the default separator) to every
	// candidate's storage path.
	StoragePrefix string

	// StripPaths discards directory structure, storing every file by its
	// base name.
	StripPaths bool

	// IncludeSubfolders recurses into subdirectories. Empty directories
	// yield marker candidates so they survive the trip.
	IncludeSubfolders bool

	Logger *slog.Logger
}

func (o *ScanOptions) log() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// ScanDir walks a host directory and builds add candidates for its
// regular files, in lexical order. A file named with the resource-fork
// suffix is given the resource kind and the base storage name, so the
// add pipeline pairs it with its data fork. Symlinks and special files
// are skipped.
func ScanDir(root string, opts ScanOptions) ([]FileDetails, error) {
	root = filepath.Clean(root)

	var details []FileDetails
	dirChildren := make(map[string]int)

	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path == root {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}

			if de.IsDir() {
				if !opts.IncludeSubfolders {
					return filepath.SkipDir
				}
				dirChildren[rel] = 0
				if parent := filepath.Dir(rel); parent != "." {
					dirChildren[parent]++
				}
				return nil
			}
			if !de.IsRegular() {
				opts.log().Debug("skipping special file", "path", path)
				return nil
			}
			if parent := filepath.Dir(rel); parent != "." {
				dirChildren[parent]++
			}

			d, err := hostCandidate(path, rel, &opts)
			if err != nil {
				return err
			}
			details = append(details, d)
			return nil
		},
		FollowSymbolicLinks: false,
		Unsorted:            false,
	})
	if err != nil {
		return nil, fmt.Errorf("scan %q: %w", root, err)
	}

	// Empty directories get a marker candidate so the target can
	// recreate them.
	var empties []string
	for rel, n := range dirChildren {
		if n == 0 {
			empties = append(empties, rel)
		}
	}
	sort.Strings(empties)
	for _, rel := range empties {
		storage := storagePath(rel, &opts) + string(DefaultFssep) + EmptyFolderMarker
		opts.log().Debug("empty directory marker", "storage", storage)
		details = append(details, FileDetails{
			Payload:     []byte{},
			StoragePath: storage,
			Kind:        AddData,
			Fssep:       DefaultFssep,
			FileType:    FileTypeNON,
			Access:      AccessUnlocked | AccessInvisible,
		})
	}

	return details, nil
}

// hostCandidate builds the FileDetails for one regular host file.
func hostCandidate(path, rel string, opts *ScanOptions) (FileDetails, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileDetails{}, fmt.Errorf("stat %q: %w", path, err)
	}

	kind := AddData
	if base, ok := strings.CutSuffix(rel, rsrcSuffix); ok && base != "" {
		kind = AddRsrc
		rel = base
	}

	d := FileDetails{
		OrigPath:    path,
		StoragePath: storagePath(rel, opts),
		Kind:        kind,
		Fssep:       DefaultFssep,
		FileType:    inferFileType(rel),
		Access:      AccessUnlocked,
		CreateWhen:  info.ModTime(),
		ModWhen:     info.ModTime(),
	}
	opts.log().Debug("scan candidate", "orig", path, "storage", d.StoragePath, "kind", kind)
	return d, nil
}

// storagePath maps a host-relative path to a storage path.
func storagePath(rel string, opts *ScanOptions) string {
	sep := string(DefaultFssep)
	var p string
	if opts.StripPaths {
		p = filepath.Base(rel)
	} else {
		parts := strings.Split(rel, string(filepath.Separator))
		p = strings.Join(parts, sep)
	}
	if opts.StoragePrefix != "" {
		p = opts.StoragePrefix + sep + p
	}
	return p
}

// inferFileType guesses a file type from the host extension. Anything
// unrecognized is typed NON and added as-is.
func inferFileType(rel string) uint32 {
	switch strings.ToLower(filepath.Ext(rel)) {
	case ".txt", ".text", ".asm", ".s":
		return FileTypeTXT
	case ".bin":
		return FileTypeBIN
	case ".bas":
		return FileTypeBAS
	default:
		return FileTypeNON
	}
}
