package diskarc

import (
	"errors"
	"fmt"
	"strings"
)

// EmptyFolderMarker is the reserved file name that stands in for an
// empty directory. Container formats that cannot represent directories
// store a zero-length file with this name inside the folder; Materialize
// recognizes it and recreates the directory itself.
const EmptyFolderMarker = ".$$EmptyFolder"

// normalizeStoragePath runs a storage path through the driver's
// normalizer while keeping a trailing empty-folder marker intact. Most
// normalizers rewrite the marker's leading characters, which would hide
// it from Materialize; only the parent path is normalized and the
// marker segment is re-attached verbatim.
func normalizeStoragePath(drv Driver, path string, fssep byte) (string, error) {
	sep := string(fssep)
	base, ok := strings.CutSuffix(path, sep+EmptyFolderMarker)
	if !ok || base == "" {
		return drv.NormalizePath(path, fssep)
	}
	normal, err := drv.NormalizePath(base, fssep)
	if err != nil {
		return "", err
	}
	return normal + sep + EmptyFolderMarker, nil
}

// dosRecordTypeLimit is the largest data fork DOS's fixed-length-record
// types can describe; bigger files are coerced to the generic type.
const dosRecordTypeLimit = 64 * 1024

// Materialize creates one file or directory on the target filesystem
// and writes the supplied fork payloads.
//
// A nil fork slice means the fork is absent; a non-nil empty slice is a
// present, zero-length fork and is still opened and written, because
// some flat filesystems only persist fixed metadata on an explicit
// write. Format-specific normalization applies before creation:
//
//   - A zero-length, non-forked request whose final path segment is
//     EmptyFolderMarker becomes a Directory creation for the parent
//     path, with the type forced to directory and the invisible access
//     bit cleared.
//   - Directory requests are silently skipped on flat filesystems.
//   - Resource payloads are dropped when the target has no resource
//     forks; if no data payload remains either, nothing is created.
//   - On DOS-structured targets, data forks of 64 KiB or more with a
//     fixed-length-record type (BIN/INT/BAS) are coerced to the generic
//     oversized-file type.
//
// On any failure after creation the new catalog entry is best-effort
// deleted (implicitly created parent directories are not) and the
// original error is returned. Materialize is not idempotent: with name
// uniquification enabled a second call creates a sibling, without it
// the driver reports ErrExists.
func Materialize(drv Driver, req CreateRequest, data, rsrc []byte, progress ProgressFunc) error {
	if progress == nil {
		progress = neverCancel
	}
	format := drv.Format()

	// Empty-directory markers only make sense with a separator (DOS has
	// none) and on plain, non-forked requests.
	if req.Fssep != 0 && req.Shape == ShapeSeedling && data != nil && len(data) == 0 {
		sep := string(req.Fssep)
		if base, ok := strings.CutSuffix(req.PathName, sep+EmptyFolderMarker); ok && base != "" {
			req.PathName = base
			req.Shape = ShapeDirectory
			req.FileType = FileTypeDIR
			req.Access &^= AccessInvisible
			data = nil
		}
	}

	if req.Shape == ShapeDirectory {
		if data != nil || rsrc != nil {
			return fmt.Errorf("%w: directory request %q carries fork data", ErrInternal, req.PathName)
		}
		if !format.Hierarchical() {
			// Flat filesystems have nowhere to put a subdirectory.
			return nil
		}
		_, err := drv.CreateFile(req)
		if errors.Is(err, ErrExists) {
			// Directories are not uniquified; an existing one will do.
			return nil
		}
		return err
	}

	if rsrc != nil && !format.HasResourceForks() {
		rsrc = nil
		req.Shape = ShapeSeedling
		if data == nil {
			// Resource-fork-only file on a data-only filesystem: nothing
			// left to write.
			return nil
		}
	}

	if format.UsesDOSStructure() && int64(len(data)) >= dosRecordTypeLimit {
		switch req.FileType {
		case FileTypeBIN, FileTypeINT, FileTypeBAS:
			req.FileType = FileTypeDOSOversized
		}
	}

	if rsrc != nil {
		req.Shape = ShapeExtended
	} else {
		req.Shape = ShapeSeedling
	}

	node, err := drv.CreateFile(req)
	if err != nil {
		return fmt.Errorf("create %s: %w", req.PathName, err)
	}

	if data != nil {
		err = writeFork(node, DataFork, data, progress)
	}
	if err == nil && rsrc != nil {
		err = writeFork(node, RsrcFork, rsrc, progress)
	}
	if err != nil {
		// Roll back the half-written file; directories created along the
		// way stay.
		_ = drv.DeleteFile(node)
		return err
	}

	return nil
}

// writeFork opens one fork and writes the complete payload in a single
// pass, as the driver model requires.
func writeFork(node FileNode, fork Fork, payload []byte, progress ProgressFunc) error {
	if !progress(0, int64(len(payload))) {
		return ErrCancelled
	}

	h, err := node.OpenFork(fork, true)
	if err != nil {
		return fmt.Errorf("open %s fork of %s for write: %w", fork, node.PathName(), err)
	}
	if _, err := h.Write(payload); err != nil {
		h.Close()
		return fmt.Errorf("write %s fork of %s: %w", fork, node.PathName(), err)
	}
	if err := h.Close(); err != nil {
		return fmt.Errorf("close %s fork of %s: %w", fork, node.PathName(), err)
	}

	progress(int64(len(payload)), int64(len(payload)))
	return nil
}
