package diskarc

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// Archive is the generic view of one disk volume (and its nested
// sub-volumes). It owns the entry list, which is rebuilt wholesale after
// every mutation batch so cached entries never reference stale driver
// nodes.
//
// An Archive is not safe for concurrent use; every operation runs to
// completion on the calling goroutine.
type Archive struct {
	drv     Driver
	entries *EntryList
	logger  *slog.Logger
}

// New creates an archive over drv and performs the initial load.
func New(drv Driver, opts ...Option) (*Archive, error) {
	a := &Archive{
		drv:     drv,
		entries: NewEntryList(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if err := a.Load(nil); err != nil {
		return nil, err
	}
	return a, nil
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.logger
}

// Entries returns the archive's entry list. The list is replaced
// in content (not identity) by every reload.
func (a *Archive) Entries() *EntryList { return a.entries }

// Format returns the primary volume's filesystem format.
func (a *Archive) Format() Format { return a.drv.Format() }

// VolumeName returns the primary volume's name.
func (a *Archive) VolumeName() string { return a.drv.VolumeName() }

// ReadWrite reports whether the archive supports modification.
func (a *Archive) ReadWrite() bool { return a.drv.ReadWrite() }

// Load rebuilds the entry list from scratch. Progress fires every few
// hundred entries and cannot cancel the load.
func (a *Archive) Load(progress ProgressFunc) error {
	a.entries.Clear()

	loaded, err := LoadTree(a.drv, progress)
	if err != nil {
		return fmt.Errorf("load volume: %w", err)
	}
	a.entries.Append(loaded...)

	a.log().Debug("volume loaded", "entries", a.entries.Len(),
		"format", a.drv.Format(), "volume", a.drv.VolumeName())
	return nil
}

// Reload flushes pending driver state and rebuilds the entry list. It
// runs after every mutation batch, successful or not.
func (a *Archive) Reload(progress ProgressFunc) error {
	if err := a.drv.Flush(); err != nil {
		a.log().Warn("flush before reload failed", "error", err)
	}
	return a.Load(progress)
}

// DeleteSelection deletes the selected entries bottom-up (descending
// path order, so directory contents go before the directory itself).
// Volume directories are skipped. The entry list is reloaded whether or
// not the batch completes.
func (a *Archive) DeleteSelection(sel *EntryList, progress ProgressFunc) error {
	if !a.drv.ReadWrite() {
		return fmt.Errorf("%w: volume is read-only", ErrUnsupported)
	}
	if progress == nil {
		progress = neverCancel
	}

	var err error
	var done int64
	total := int64(sel.Len())
	sel.Descend(func(e *Entry) bool {
		if e.Kind == RecordVolumeDir {
			return true
		}
		if !progress(done, total) {
			err = ErrCancelled
			return false
		}
		if e.node == nil {
			err = fmt.Errorf("%w: entry %q has no backing file", ErrInternal, e.DisplayName())
			return false
		}

		a.log().Debug("deleting", "path", e.DisplayName())
		if derr := e.drv.DeleteFile(e.node); derr != nil {
			err = fmt.Errorf("delete %q: %w", e.DisplayName(), derr)
			return false
		}
		e.node = nil
		done++
		return true
	})

	if rerr := a.Reload(nil); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// RenameEntry renames one file or directory. newName is the final path
// segment only; it is validated against the entry's source format.
func (a *Archive) RenameEntry(e *Entry, newName string) error {
	if e.Kind == RecordVolumeDir {
		return fmt.Errorf("%w: cannot rename a volume directory", ErrUnsupported)
	}
	if !e.drv.ReadWrite() {
		return fmt.Errorf("%w: volume is read-only", ErrUnsupported)
	}
	if !e.SourceFormat.ValidFileName(newName) {
		return fmt.Errorf("%w: %q is not a valid %s file name",
			ErrUnsupported, newName, e.FormatName)
	}
	if e.node == nil {
		return fmt.Errorf("%w: entry %q has no backing file", ErrInternal, e.DisplayName())
	}

	a.log().Info("renaming", "from", e.DisplayName(), "to", newName)
	if err := e.drv.RenameFile(e.node, newName); err != nil {
		return fmt.Errorf("rename %q: %w", e.DisplayName(), err)
	}
	return a.Reload(nil)
}

// RenameVolume renames the primary volume. The entry list is reloaded
// even when the driver call fails, since some drivers partially apply
// the change before reporting an error.
func (a *Archive) RenameVolume(newName string) error {
	format := a.drv.Format()
	if !format.ValidVolumeName(newName) {
		return fmt.Errorf("%w: %q is not a valid %s volume name",
			ErrUnsupported, newName, format)
	}

	a.log().Info("renaming volume", "from", a.drv.VolumeName(), "to", newName)
	err := a.drv.RenameVolume(newName)
	if err != nil {
		err = fmt.Errorf("rename volume: %w", err)
	}
	if rerr := a.Reload(nil); rerr != nil && err == nil {
		err = rerr
	}
	return err
}

// SetProps updates an entry's file type, aux type, and access bits. The
// cached entry is patched in place rather than reloaded. On DOS-family
// volumes a type change can alter the reported length, so the length
// and suspicious flag are refreshed from the driver node.
func (a *Archive) SetProps(e *Entry, fileType, auxType, access uint32) error {
	if e.Kind == RecordVolumeDir {
		return fmt.Errorf("%w: cannot change volume directory properties", ErrUnsupported)
	}
	if e.node == nil {
		return fmt.Errorf("%w: entry %q has no backing file", ErrInternal, e.DisplayName())
	}

	if err := e.drv.SetFileInfo(e.node, fileType, auxType, access); err != nil {
		return fmt.Errorf("set props on %q: %w", e.DisplayName(), err)
	}

	e.FileType = fileType
	e.AuxType = auxType
	e.Access = access

	if e.SourceFormat.UsesDOSStructure() {
		e.DataLen = e.node.DataLen()
		e.CompressedLen = e.node.SparseDataLen()
		e.Suspicious = e.node.Suspicious()
	}
	return nil
}

// CreateSubdir creates a subdirectory under parent (nil for the volume
// root) and reloads. The name is validated first; the new directory gets
// unlocked access and current timestamps.
func (a *Archive) CreateSubdir(parent *Entry, name string) error {
	format := a.drv.Format()
	if !format.Hierarchical() {
		return fmt.Errorf("%w: %s volumes have no subdirectories", ErrUnsupported, format)
	}
	if err := a.TestPathName(parent, name); err != nil {
		return err
	}

	path := name
	fssep := byte(DefaultFssep)
	if parent != nil {
		if parent.Fssep != 0 {
			fssep = parent.Fssep
		}
		path = parent.PathName + string(fssep) + name
	}
	path, err := a.drv.NormalizePath(path, fssep)
	if err != nil {
		return fmt.Errorf("normalize %q: %w", path, err)
	}

	now := time.Now()
	req := CreateRequest{
		PathName:   path,
		Fssep:      fssep,
		Shape:      ShapeDirectory,
		FileType:   FileTypeDIR,
		Access:     AccessUnlocked,
		CreateWhen: now,
		ModWhen:    now,
	}

	a.log().Info("creating subdirectory", "path", path)
	if err := Materialize(a.drv, req, nil, nil, nil); err != nil {
		return fmt.Errorf("create subdir %q: %w", path, err)
	}
	return a.Reload(nil)
}

// TestPathName checks whether name is usable for a new file or directory
// under parent: format validity plus a duplicate check against the
// driver's catalog.
func (a *Archive) TestPathName(parent *Entry, name string) error {
	format := a.drv.Format()
	if !format.ValidFileName(name) {
		return fmt.Errorf("%w: %q is not a valid %s file name", ErrUnsupported, name, format)
	}

	path := name
	fssep := byte(DefaultFssep)
	if parent != nil {
		fssep = parent.Fssep
		if fssep == 0 {
			fssep = DefaultFssep
		}
		path = parent.PathName + string(fssep) + name
	}
	normal, err := a.drv.NormalizePath(path, fssep)
	if err != nil {
		return fmt.Errorf("normalize %q: %w", path, err)
	}
	if a.drv.FileByName(normal) != nil {
		return fmt.Errorf("%w: %q", ErrExists, normal)
	}
	return nil
}

// TestVolumeName checks whether name is a legal volume name for the
// primary volume's format.
func (a *Archive) TestVolumeName(name string) error {
	format := a.drv.Format()
	if !format.ValidVolumeName(name) {
		return fmt.Errorf("%w: %q is not a valid %s volume name", ErrUnsupported, name, format)
	}
	return nil
}

// Prepare implements Target: incoming transfer names should uniquify
// instead of colliding.
func (a *Archive) Prepare() {
	a.drv.SetCreateUnique(true)
}

// AddFile implements Target. DOS-family volumes store text with the high
// bit set, so text payloads crossing the DOS boundary in either
// direction get the bit stripped or added before materialization. DOS
// types both TXT and SRC as 'T', so both are treated as text here.
func (a *Archive) AddFile(desc TransferDescriptor, data, rsrc []byte) error {
	srcDOS := desc.SourceFormat.UsesDOSStructure()
	dstDOS := a.drv.Format().UsesDOSStructure()
	if len(data) > 0 && (desc.FileType == FileTypeTXT || desc.FileType == FileTypeSRC) {
		switch {
		case srcDOS && !dstDOS:
			a.log().Debug("stripping high ASCII", "path", desc.StorageName)
			for i := range data {
				data[i] &= 0x7f
			}
		case !srcDOS && dstDOS:
			a.log().Debug("adding high ASCII", "path", desc.StorageName)
			for i := range data {
				if data[i] != 0 {
					data[i] |= 0x80
				}
			}
		}
	}

	normal, err := normalizeStoragePath(a.drv, desc.StorageName, desc.Fssep)
	if err != nil {
		return fmt.Errorf("normalize %q: %w", desc.StorageName, err)
	}

	req := CreateRequest{
		PathName:   normal,
		Fssep:      desc.Fssep,
		Shape:      ShapeSeedling,
		FileType:   desc.FileType,
		AuxType:    desc.AuxType,
		Access:     desc.Access,
		CreateWhen: desc.CreateWhen,
		ModWhen:    desc.ModWhen,
	}
	if rsrc != nil {
		req.Shape = ShapeExtended
	}

	return Materialize(a.drv, req, data, rsrc, nil)
}

// Finish implements Target.
func (a *Archive) Finish() error {
	a.drv.SetCreateUnique(false)
	return a.Reload(nil)
}

// Abort implements Target. Files already written stay; only the cached
// entry list is brought back in sync.
func (a *Archive) Abort() error {
	a.drv.SetCreateUnique(false)
	return a.Reload(nil)
}

// AddFiles runs one bulk-add batch end to end: candidate registration
// with conflict resolution, then commit, then reload (win or lose).
// The returned count is the number of candidates registered, which may
// be less than len(candidates) when some were skipped.
func (a *Archive) AddFiles(candidates []FileDetails, prompt ConflictPrompt, policy EOLPolicy, progress ProgressFunc) (int, error) {
	if !a.drv.ReadWrite() {
		return 0, fmt.Errorf("%w: volume is read-only", ErrUnsupported)
	}

	pipeline := NewAddPipeline(a.drv,
		WithConflictPrompt(prompt),
		WithAddLogger(a.logger),
	)
	defer pipeline.Reset()

	added := 0
	var err error
	for i := range candidates {
		var ok bool
		ok, err = pipeline.AddCandidate(candidates[i])
		if err != nil {
			break
		}
		if ok {
			added++
		}
	}
	if err == nil {
		err = pipeline.Commit(policy, progress)
	}

	if rerr := a.Reload(nil); rerr != nil && err == nil {
		err = rerr
	}
	if err != nil {
		return added, err
	}
	return added, nil
}
