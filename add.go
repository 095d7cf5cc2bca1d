package diskarc

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

// maxAddFileSize caps host files added to a disk image. Nothing on
// these filesystems can hold more.
const maxAddFileSize = 0x00ffffff // 16 MiB

// ForkKind classifies an add candidate.
type ForkKind uint8

const (
	// AddData is a candidate destined for a data fork.
	AddData ForkKind = iota

	// AddRsrc is a candidate destined for a resource fork.
	AddRsrc

	// AddDiskImage is a whole-disk-image candidate; it behaves like a
	// data fork but never pairs.
	AddDiskImage
)

func (k ForkKind) String() string {
	switch k {
	case AddRsrc:
		return "rsrc"
	case AddDiskImage:
		return "disk"
	default:
		return "data"
	}
}

// FileDetails describes one candidate file for a bulk add.
type FileDetails struct {
	// OrigPath is the host path the payload is read from. It is ignored
	// when Payload is non-nil.
	OrigPath string

	// Payload is an inline payload. Synthetic candidates (empty-folder
	// markers) use a non-nil empty slice.
	Payload []byte

	// StoragePath is the name the file should have in the archive,
	// before filesystem-specific normalization. Fork pairing compares
	// this field exactly (case-sensitive).
	StoragePath string

	Kind  ForkKind
	Fssep byte

	FileType uint32
	AuxType  uint32
	Access   uint32

	CreateWhen time.Time
	ModWhen    time.Time
}

// EOLPolicy selects how the add pipeline converts text.
type EOLPolicy uint8

const (
	// EOLPolicyOff never converts.
	EOLPolicyOff EOLPolicy = iota

	// EOLPolicyOn converts every data fork.
	EOLPolicyOn

	// EOLPolicyAuto samples each file and converts unless it already
	// uses bare CR.
	EOLPolicyAuto

	// EOLPolicyByType converts only text-like file types (TXT, SRC).
	EOLPolicyByType
)

// OverwriteAction is a conflict-resolution decision.
type OverwriteAction uint8

const (
	// OverwriteYes deletes the existing entry immediately and proceeds.
	OverwriteYes OverwriteAction = iota

	// OverwriteSkip drops the candidate.
	OverwriteSkip

	// OverwriteRename retries with the resolution's NewName.
	OverwriteRename

	// OverwriteAbort fails the whole batch.
	OverwriteAbort
)

// Resolution is a ConflictPrompt's answer.
type Resolution struct {
	Action OverwriteAction

	// NewName is the replacement storage path for OverwriteRename.
	NewName string

	// ApplyToRemaining fixes the decision for the rest of the batch;
	// only meaningful with OverwriteYes and OverwriteSkip.
	ApplyToRemaining bool
}

// ExistingSummary describes the catalog entry a candidate collides with.
type ExistingSummary struct {
	PathName string
	ModWhen  time.Time
}

// ConflictPrompt resolves name collisions during a bulk add. It may be
// interactive; the pipeline calls it synchronously.
type ConflictPrompt interface {
	ResolveConflict(existing ExistingSummary, candidate *FileDetails) Resolution
}

// overwritePolicy is the sticky per-batch overwrite state. It lives on
// the pipeline instance and resets with every batch, never globally.
type overwritePolicy struct {
	fixed     bool
	overwrite bool
}

// pendingAdd is one arena slot in the pending-candidate list. Fork
// pairing links two slots through indexes instead of pointers.
type pendingAdd struct {
	details    FileDetails
	normalPath string // name as it will appear on the disk

	// other is the arena index of the opposite fork's slot, -1 when
	// unpaired. absorbed marks slots that were linked into an earlier
	// head and are not committed on their own.
	other    int
	absorbed bool
}

// AddPipeline runs one bulk-add batch against a target filesystem:
// normalization, overwrite resolution, fork pairing, then commit. A
// pipeline is single-use state for a single batch; all pending records
// are discarded when the batch ends, success or failure.
type AddPipeline struct {
	drv     Driver
	prompt  ConflictPrompt
	logger  *slog.Logger
	pending []pendingAdd
	policy  overwritePolicy
}

// AddOption configures an AddPipeline.
type AddOption func(*AddPipeline)

// WithConflictPrompt installs the collision resolver. Without one,
// collisions abort the batch.
func WithConflictPrompt(p ConflictPrompt) AddOption {
	return func(a *AddPipeline) {
		a.prompt = p
	}
}

// WithAddLogger sets the logger for add operations. If not set, logging
// is disabled.
func WithAddLogger(logger *slog.Logger) AddOption {
	return func(a *AddPipeline) {
		a.logger = logger
	}
}

// NewAddPipeline creates a pipeline for one batch against drv. The
// target's name uniquification should be enabled by the caller so that
// batch-internal collisions resolve to unique siblings.
func NewAddPipeline(drv Driver, opts ...AddOption) *AddPipeline {
	a := &AddPipeline{drv: drv}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// log returns the logger, falling back to a discard logger if nil.
func (a *AddPipeline) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return a.logger
}

// AddCandidate normalizes, conflict-checks, and registers one candidate.
// It reports whether the candidate was registered: a skipped candidate
// returns (false, nil), an aborted batch returns ErrCancelled.
func (a *AddPipeline) AddCandidate(details FileDetails) (bool, error) {
	if details.Fssep == 0 {
		details.Fssep = DefaultFssep
	}

	for {
		normal, err := normalizeStoragePath(a.drv, details.StoragePath, details.Fssep)
		if err != nil {
			return false, fmt.Errorf("normalize %q: %w", details.StoragePath, err)
		}

		existing := a.drv.FileByName(normal)
		if existing == nil {
			a.log().Debug("add candidate registered",
				"orig", details.OrigPath, "storage", details.StoragePath, "normal", normal, "kind", details.Kind)
			a.register(details, normal)
			return true, nil
		}

		res := a.resolve(existing, &details)
		switch res.Action {
		case OverwriteAbort:
			return false, ErrCancelled
		case OverwriteSkip:
			a.log().Debug("add candidate skipped", "storage", details.StoragePath)
			return false, nil
		case OverwriteRename:
			details.StoragePath = res.NewName
			// loop: re-normalize and re-check the new name
		case OverwriteYes:
			a.log().Debug("deleting existing file", "path", normal)
			if err := a.drv.DeleteFile(existing); err != nil {
				return false, fmt.Errorf("delete existing %q: %w", normal, err)
			}
			a.register(details, normal)
			return true, nil
		default:
			return false, fmt.Errorf("%w: bad overwrite action %d", ErrInternal, res.Action)
		}
	}
}

// resolve decides what to do about a collision, honoring the sticky
// per-batch policy before consulting the prompt.
func (a *AddPipeline) resolve(existing FileNode, candidate *FileDetails) Resolution {
	if a.policy.fixed {
		if a.policy.overwrite {
			return Resolution{Action: OverwriteYes}
		}
		return Resolution{Action: OverwriteSkip}
	}
	if a.prompt == nil {
		return Resolution{Action: OverwriteAbort}
	}

	res := a.prompt.ResolveConflict(ExistingSummary{
		PathName: existing.PathName(),
		ModWhen:  existing.ModWhen(),
	}, candidate)

	if res.ApplyToRemaining && (res.Action == OverwriteYes || res.Action == OverwriteSkip) {
		a.policy.fixed = true
		a.policy.overwrite = res.Action == OverwriteYes
	}
	return res
}

// register appends the candidate to the arena, pairing it with an
// existing opposite-kind record when the storage names match exactly.
//
// The scan compares pre-normalization storage names case-sensitively,
// even on case-insensitive targets. It is O(n²) over the batch, which
// is acceptable at expected batch sizes.
func (a *AddPipeline) register(details FileDetails, normalPath string) {
	slot := pendingAdd{details: details, normalPath: normalPath, other: -1}

	if details.Kind == AddData || details.Kind == AddRsrc {
		for i := range a.pending {
			head := a.pending[i]
			if head.absorbed || head.other != -1 {
				continue
			}
			if head.details.StoragePath != details.StoragePath {
				continue
			}
			hk := head.details.Kind
			if (hk == AddData || hk == AddRsrc) && hk != details.Kind {
				a.log().Debug("connecting forks",
					"head", head.details.OrigPath, "other", details.OrigPath)
				slot.absorbed = true
				a.pending = append(a.pending, slot)
				a.pending[i].other = len(a.pending) - 1
				return
			}
		}
	}

	a.pending = append(a.pending, slot)
}

// PendingCount returns the number of logical (post-pairing) entries
// awaiting commit.
func (a *AddPipeline) PendingCount() int {
	n := 0
	for i := range a.pending {
		if !a.pending[i].absorbed {
			n++
		}
	}
	return n
}

// Reset unconditionally discards all pending records and the sticky
// overwrite policy, readying the pipeline for a new batch.
func (a *AddPipeline) Reset() {
	a.pending = a.pending[:0]
	a.policy = overwritePolicy{}
}

// Commit materializes every pending logical entry on the target. The
// commit halts on the first unrecoverable error; files created before
// the failure are not rolled back.
func (a *AddPipeline) Commit(policy EOLPolicy, progress ProgressFunc) error {
	format := a.drv.Format()

	for i := range a.pending {
		head := &a.pending[i]
		if head.absorbed {
			continue
		}

		dataDetails, rsrcDetails, err := splitForks(head, a.pending)
		if err != nil {
			return err
		}

		req := CreateRequest{
			PathName:   head.normalPath,
			Fssep:      head.details.Fssep,
			Shape:      ShapeSeedling,
			FileType:   head.details.FileType,
			AuxType:    head.details.AuxType,
			Access:     head.details.Access,
			CreateWhen: head.details.CreateWhen,
			ModWhen:    head.details.ModWhen,
		}
		if rsrcDetails != nil {
			req.Shape = ShapeExtended
		}

		var data, rsrc []byte
		if dataDetails != nil {
			conv := resolveAddEOL(policy, dataDetails.FileType)
			// High ASCII only ever applies alongside text conversion,
			// and only for DOS-structured targets.
			highASCII := format.UsesDOSStructure()
			data, err = loadFork(dataDetails, conv, highASCII)
			if err != nil {
				return err
			}
		}
		if rsrcDetails != nil {
			// Resource forks are never text-converted.
			rsrc, err = loadFork(rsrcDetails, EOLOff, false)
			if err != nil {
				return err
			}
		}

		a.log().Info("adding file", "path", head.normalPath,
			"data", len(data), "rsrc", len(rsrc), "shape", req.Shape)

		if err := Materialize(a.drv, req, data, rsrc, progress); err != nil {
			return fmt.Errorf("add %q: %w", head.normalPath, err)
		}
	}

	return nil
}

// splitForks resolves a pending head (and its paired slot, if any) into
// per-fork details.
func splitForks(head *pendingAdd, arena []pendingAdd) (dataDetails, rsrcDetails *FileDetails, err error) {
	assign := func(d *FileDetails) error {
		switch d.Kind {
		case AddData, AddDiskImage:
			if dataDetails != nil {
				return fmt.Errorf("%w: two data forks for %q", ErrInternal, d.StoragePath)
			}
			dataDetails = d
		case AddRsrc:
			if rsrcDetails != nil {
				return fmt.Errorf("%w: two resource forks for %q", ErrInternal, d.StoragePath)
			}
			rsrcDetails = d
		default:
			return fmt.Errorf("%w: bad fork kind %d", ErrInternal, d.Kind)
		}
		return nil
	}

	if err := assign(&head.details); err != nil {
		return nil, nil, err
	}
	if head.other != -1 {
		if err := assign(&arena[head.other].details); err != nil {
			return nil, nil, err
		}
	}
	return dataDetails, rsrcDetails, nil
}

// resolveAddEOL maps the batch policy to a concrete conversion mode for
// one file.
func resolveAddEOL(policy EOLPolicy, fileType uint32) EOLMode {
	switch policy {
	case EOLPolicyOn:
		return EOLOn
	case EOLPolicyAuto:
		return EOLAuto
	case EOLPolicyByType:
		if fileType == FileTypeTXT || fileType == FileTypeSRC {
			return EOLOn
		}
		return EOLOff
	default:
		return EOLOff
	}
}

// loadFork produces one fork's payload, applying EOL and high-ASCII
// conversion. Inline payloads are used as-is; otherwise the host file is
// read, subject to the 16 MiB cap. Empty sources yield a present,
// zero-length payload.
func loadFork(d *FileDetails, conv EOLMode, highASCII bool) ([]byte, error) {
	raw := d.Payload
	if raw == nil {
		info, err := os.Stat(d.OrigPath)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", d.OrigPath, err)
		}
		if info.Size() > maxAddFileSize {
			return nil, fmt.Errorf("%w: %q exceeds the 16 MiB disk image limit", ErrUnsupported, d.OrigPath)
		}
		raw, err = os.ReadFile(d.OrigPath)
		if err != nil {
			return nil, fmt.Errorf("read %q: %w", d.OrigPath, err)
		}
	}
	if len(raw) == 0 {
		return []byte{}, nil
	}

	conv = resolveEOL(conv, raw)
	if conv == EOLOff {
		return raw, nil
	}
	return ConvertText(raw, highASCII), nil
}
