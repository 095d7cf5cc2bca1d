package diskarc

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

// TransferDescriptor carries one logical entry's metadata across an
// archive boundary. Fork payloads travel separately, fully buffered.
type TransferDescriptor struct {
	// StorageName is the full path on the source, with any sub-volume
	// label composed in and the separator rewritten to Fssep.
	StorageName string
	Fssep       byte

	FileType uint32
	AuxType  uint32
	Access   uint32

	CreateWhen time.Time
	ModWhen    time.Time

	// SourceFormat tags the filesystem the payload came from, so the
	// receiving side can fix up format-specific text conventions.
	SourceFormat Format
}

// Target receives files during a cross-archive transfer. Prepare is
// called once before the first file; exactly one of Finish or Abort is
// called at the end, and both must leave the target's cached state
// consistent with its underlying storage.
type Target interface {
	// Prepare readies the target for a batch of incoming files and
	// enables name uniquification so collisions produce siblings.
	Prepare()

	// AddFile materializes one logical entry. A nil fork slice means the
	// fork is absent; a non-nil empty slice is a present, zero-length
	// fork.
	AddFile(desc TransferDescriptor, data, rsrc []byte) error

	// Finish completes a successful batch.
	Finish() error

	// Abort ends a failed or cancelled batch. Files already written are
	// kept.
	Abort() error
}

// TransferOptions configures TransferSelection.
type TransferOptions struct {
	// PreserveEmptyFolders synthesizes marker files for selected
	// directories that have no selected descendants, so they survive
	// passage through targets that cannot represent empty directories.
	PreserveEmptyFolders bool

	// Progress is polled at chunk and per-file granularity; returning
	// false cancels the remaining transfer.
	Progress ProgressFunc

	Logger *slog.Logger
}

func (o *TransferOptions) log() *slog.Logger {
	if o.Logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.Logger
}

// TransferSelection copies the selected entries to target. Damaged
// entries and volume-directory pseudo-entries are skipped. The selection
// must already be de-duplicated so a fork pair counts once.
//
// Cancellation or failure aborts the remaining transfer but does not
// undo files already written; both outcomes end with the target's
// terminal callback so its cached state is reloaded either way.
func TransferSelection(sel *EntryList, target Target, opts TransferOptions) error {
	target.Prepare()

	err := transferEntries(sel, target, &opts)
	if err != nil {
		if aerr := target.Abort(); aerr != nil {
			opts.log().Warn("transfer abort failed", "error", aerr)
		}
		return err
	}
	return target.Finish()
}

func transferEntries(sel *EntryList, target Target, opts *TransferOptions) error {
	progress := opts.Progress
	if progress == nil {
		progress = neverCancel
	}

	entries := sel.Entries()
	total := int64(len(entries))

	for i, e := range entries {
		fixedPath := transferPath(e)

		switch {
		case e.Kind == RecordVolumeDir:
			opts.log().Debug("not transferring volume dir", "path", fixedPath)
			continue
		case e.Damaged:
			opts.log().Debug("skipping damaged entry", "path", fixedPath)
			continue
		case e.Kind == RecordDirectory:
			if !opts.PreserveEmptyFolders {
				opts.log().Debug("not transferring directory", "path", fixedPath)
				continue
			}
			if sel.CountDescendants(e.DisplayName()) != 0 {
				opts.log().Debug("directory has selected children", "path", fixedPath)
				continue
			}
			opts.log().Debug("synthesizing empty-folder marker", "path", fixedPath)
			desc := TransferDescriptor{
				StorageName:  fixedPath + string(DefaultFssep) + EmptyFolderMarker,
				Fssep:        DefaultFssep,
				FileType:     FileTypeNON,
				Access:       e.Access | AccessInvisible,
				CreateWhen:   e.CreateWhen,
				ModWhen:      e.ModWhen,
				SourceFormat: e.SourceFormat,
			}
			if !progress(int64(i), total) {
				return ErrCancelled
			}
			if err := target.AddFile(desc, []byte{}, nil); err != nil {
				return fmt.Errorf("transfer %q: %w", desc.StorageName, err)
			}
			continue
		}

		var data, rsrc []byte
		var err error
		if e.HasDataFork() {
			data, err = ExtractFork(e, DataFork, nil, progress)
			if err != nil {
				return transferExtractErr(fixedPath, err)
			}
		}
		if e.HasRsrcFork() {
			rsrc, err = ExtractFork(e, RsrcFork, nil, progress)
			if err != nil {
				return transferExtractErr(fixedPath, err)
			}
		}

		desc := TransferDescriptor{
			StorageName:  fixedPath,
			Fssep:        DefaultFssep,
			FileType:     e.FileType,
			AuxType:      e.AuxType,
			Access:       e.Access,
			CreateWhen:   e.CreateWhen,
			ModWhen:      e.ModWhen,
			SourceFormat: e.SourceFormat,
		}

		opts.log().Info("transferring", "path", fixedPath,
			"data", len(data), "rsrc", len(rsrc))

		if !progress(int64(i), total) {
			return ErrCancelled
		}
		if err := target.AddFile(desc, data, rsrc); err != nil {
			return fmt.Errorf("transfer %q: %w", fixedPath, err)
		}
	}

	return nil
}

func transferExtractErr(path string, err error) error {
	if errors.Is(err, ErrCancelled) {
		return ErrCancelled
	}
	return fmt.Errorf("extract %q: %w", path, err)
}

// transferPath composes the cross-archive storage path for an entry:
// colons are rewritten to dots for non-ProDOS sources (their paths never
// legitimately contain the default separator), then the sub-volume label
// is prefixed with the default separator.
func transferPath(e *Entry) string {
	p := e.PathName
	if p == "" {
		p = blankFileName
	}
	if e.SourceFormat != FormatProDOS {
		p = strings.ReplaceAll(p, string(DefaultFssep), ".")
	}
	if e.SubVolName != "" {
		p = e.SubVolName + string(DefaultFssep) + p
	}
	return p
}
