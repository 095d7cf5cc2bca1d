package diskarc

import "fmt"

const (
	// subVolPlaceholder stands in for sub-volumes with no readable name.
	subVolPlaceholder = "+++"

	// blankFileName is displayed for catalog entries with an empty path.
	blankFileName = "<blank filename>"

	// loadProgressInterval is how often (in entries) the load progress
	// callback fires. The signal is informational; its return value is
	// ignored.
	loadProgressInterval = 100
)

// LoadTree walks a driver and its nested sub-volumes depth-first and
// returns the generic entries for every file found.
//
// Sub-volume labels compose as they descend: the first level uses the
// raw volume name (subVolPlaceholder when empty), deeper levels prepend
// the parent's accumulated label and an underscore. The label never
// contains the path separator, so it stays embeddable as a path prefix.
//
// Any failure aborts the whole walk; callers must discard partial
// results and retry from scratch.
func LoadTree(drv Driver, progress ProgressFunc) ([]*Entry, error) {
	if progress == nil {
		progress = neverCancel
	}
	return loadVolume(drv, "", nil, progress)
}

func loadVolume(drv Driver, volLabel string, entries []*Entry, progress ProgressFunc) ([]*Entry, error) {
	format := drv.Format()
	formatName := format.String()

	for _, node := range drv.Files() {
		e, err := entryFromNode(drv, node, format, formatName, volLabel)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)

		if len(entries)%loadProgressInterval == 0 {
			progress(int64(len(entries)), -1)
		}
	}

	for _, sub := range drv.SubVolumes() {
		name := sub.VolumeName()
		if name == "" {
			name = subVolPlaceholder
		}
		label := name
		if volLabel != "" {
			label = volLabel + "_" + name
		}

		var err error
		entries, err = loadVolume(sub, label, entries, progress)
		if err != nil {
			return nil, err
		}
	}

	return entries, nil
}

// entryFromNode copies driver metadata into a generic entry and
// classifies its record kind from the directory bit and resource-fork
// sentinel.
func entryFromNode(drv Driver, node FileNode, format Format, formatName, volLabel string) (*Entry, error) {
	path := node.PathName()
	if path == "" {
		path = blankFileName
	}

	e := &Entry{
		PathName:     path,
		SubVolName:   volLabel,
		Fssep:        node.Fssep(),
		FileType:     node.FileType(),
		AuxType:      node.AuxType(),
		Access:       node.Access(),
		CreateWhen:   node.CreateWhen(),
		ModWhen:      node.ModWhen(),
		SourceFormat: format,
		FormatName:   formatName,
		Damaged:      node.Damaged(),
		Suspicious:   node.Suspicious(),
		node:         node,
		drv:          drv,
	}

	switch {
	case node.IsVolumeDirectory():
		if node.RsrcLen() >= 0 {
			return nil, fmt.Errorf("%w: volume directory %q reports a resource fork", ErrInternal, path)
		}
		e.Kind = RecordVolumeDir
		e.DataLen = node.DataLen()
		e.RsrcLen = ForkAbsent
		e.CompressedLen = node.DataLen()
	case node.IsDirectory():
		if node.RsrcLen() >= 0 {
			return nil, fmt.Errorf("%w: directory %q reports a resource fork", ErrInternal, path)
		}
		e.Kind = RecordDirectory
		e.DataLen = node.DataLen()
		e.RsrcLen = ForkAbsent
		e.CompressedLen = node.DataLen()
	case node.RsrcLen() >= 0:
		e.Kind = RecordForkedFile
		e.DataLen = node.DataLen()
		e.RsrcLen = node.RsrcLen()
		e.CompressedLen = node.SparseDataLen() + node.SparseRsrcLen()
	default:
		e.Kind = RecordFile
		e.DataLen = node.DataLen()
		e.RsrcLen = ForkAbsent
		e.CompressedLen = node.SparseDataLen()
	}

	return e, nil
}
