// Package memfs provides an in-memory filesystem driver. It backs the
// command-line tool's synthetic volumes and the test suite; it keeps
// whole fork payloads in memory and applies per-format naming rules, but
// does not emulate any on-disk sector layout.
package memfs

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/retroarc/diskarc"
)

// segment length limits per format, applied during normalization.
func segmentLimit(f diskarc.Format) int {
	switch f {
	case diskarc.FormatProDOS, diskarc.FormatPascal:
		return 15
	case diskarc.FormatHFS:
		return 31
	case diskarc.FormatCPM:
		return 12
	default:
		return 30
	}
}

// Node is one catalog entry. It implements diskarc.FileNode.
type Node struct {
	fs *FS

	path  string
	fssep byte

	fileType uint32
	auxType  uint32
	access   uint32

	createWhen time.Time
	modWhen    time.Time

	dir    bool
	volDir bool

	// data and rsrc are fork payloads; nil means the fork is absent.
	data []byte
	rsrc []byte

	damaged    bool
	suspicious bool
}

func (n *Node) PathName() string      { return n.path }
func (n *Node) Fssep() byte           { return n.fssep }
func (n *Node) FileType() uint32      { return n.fileType }
func (n *Node) AuxType() uint32       { return n.auxType }
func (n *Node) Access() uint32        { return n.access }
func (n *Node) CreateWhen() time.Time { return n.createWhen }
func (n *Node) ModWhen() time.Time    { return n.modWhen }

func (n *Node) IsDirectory() bool       { return n.dir || n.volDir }
func (n *Node) IsVolumeDirectory() bool { return n.volDir }

func (n *Node) DataLen() int64 { return forkLen(n.data) }
func (n *Node) RsrcLen() int64 { return forkLen(n.rsrc) }

// Sparse lengths equal logical lengths here; memfs does not model
// sparse allocation.
func (n *Node) SparseDataLen() int64 { return max(forkLen(n.data), 0) }
func (n *Node) SparseRsrcLen() int64 { return max(forkLen(n.rsrc), 0) }

func (n *Node) Damaged() bool    { return n.damaged }
func (n *Node) Suspicious() bool { return n.suspicious }

func forkLen(b []byte) int64 {
	if b == nil {
		return diskarc.ForkAbsent
	}
	return int64(len(b))
}

// SetDamaged marks the node damaged. Test hook.
func (n *Node) SetDamaged(v bool) { n.damaged = v }

// SetSuspicious marks the node suspicious. Test hook.
func (n *Node) SetSuspicious(v bool) { n.suspicious = v }

// OpenFork opens one fork. Reads see the current payload; writes buffer
// until Close, then replace the payload wholesale.
func (n *Node) OpenFork(fork diskarc.Fork, write bool) (diskarc.ForkHandle, error) {
	payload := &n.data
	if fork == diskarc.RsrcFork {
		payload = &n.rsrc
	}

	if write {
		if !n.fs.readWrite {
			return nil, fmt.Errorf("%w: volume is read-only", diskarc.ErrUnsupported)
		}
		return &forkHandle{node: n, payload: payload, write: true}, nil
	}

	if *payload == nil {
		return nil, fmt.Errorf("%w: %s fork of %q", diskarc.ErrNoFork, fork, n.path)
	}
	return &forkHandle{node: n, payload: payload, reader: bytes.NewReader(*payload)}, nil
}

type forkHandle struct {
	node    *Node
	payload *[]byte
	write   bool
	reader  *bytes.Reader
	buf     bytes.Buffer
	closed  bool
}

func (h *forkHandle) Read(p []byte) (int, error) {
	if h.write {
		return 0, fmt.Errorf("%w: fork opened for writing", diskarc.ErrUnsupported)
	}
	return h.reader.Read(p)
}

func (h *forkHandle) Write(p []byte) (int, error) {
	if !h.write {
		return 0, fmt.Errorf("%w: fork opened for reading", diskarc.ErrUnsupported)
	}
	if h.node.fs.failWrites {
		return 0, fmt.Errorf("%w: injected write failure", diskarc.ErrDamaged)
	}
	return h.buf.Write(p)
}

func (h *forkHandle) Close() error {
	if h.closed {
		return nil
	}
	h.closed = true
	if h.write {
		out := h.buf.Bytes()
		if out == nil {
			out = []byte{}
		}
		*h.payload = out
	}
	return nil
}

// FS is an in-memory volume. It implements diskarc.Driver.
type FS struct {
	format  diskarc.Format
	volName string
	fssep   byte

	readWrite bool
	damaged   bool

	nodes   []*Node
	subVols []*FS

	createUnique bool

	// failWrites makes every fork write fail. Test hook for rollback
	// paths.
	failWrites bool
}

// FSOption configures a new FS.
type FSOption func(*FS)

// WithReadOnly makes the volume reject modification.
func WithReadOnly() FSOption {
	return func(fs *FS) { fs.readWrite = false }
}

// WithDamaged marks the whole volume damaged.
func WithDamaged() FSOption {
	return func(fs *FS) { fs.damaged = true }
}

// WithSubVolume nests another volume inside this one.
func WithSubVolume(sub *FS) FSOption {
	return func(fs *FS) { fs.subVols = append(fs.subVols, sub) }
}

// WithVolumeDir adds the volume-directory pseudo-entry that ProDOS and
// HFS volumes surface in their catalogs.
func WithVolumeDir() FSOption {
	return func(fs *FS) {
		fs.nodes = append(fs.nodes, &Node{
			fs:     fs,
			path:   fs.volName,
			fssep:  fs.fssep,
			volDir: true,
			access: diskarc.AccessUnlocked,
		})
	}
}

// New creates an empty read-write volume of the given format.
func New(format diskarc.Format, volName string, opts ...FSOption) *FS {
	fs := &FS{
		format:    format,
		volName:   volName,
		fssep:     byte(diskarc.DefaultFssep),
		readWrite: true,
	}
	for _, opt := range opts {
		opt(fs)
	}
	return fs
}

func (fs *FS) Format() diskarc.Format { return fs.format }
func (fs *FS) VolumeName() string     { return fs.volName }
func (fs *FS) ReadWrite() bool        { return fs.readWrite }
func (fs *FS) Damaged() bool          { return fs.damaged }

// FailWrites toggles injected fork-write failures. Test hook.
func (fs *FS) FailWrites(v bool) { fs.failWrites = v }

// Files returns the catalog sorted by path, which keeps directories
// ahead of their contents.
func (fs *FS) Files() []diskarc.FileNode {
	sorted := make([]*Node, len(fs.nodes))
	copy(sorted, fs.nodes)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].volDir != sorted[j].volDir {
			return sorted[i].volDir
		}
		return sorted[i].path < sorted[j].path
	})

	out := make([]diskarc.FileNode, len(sorted))
	for i, n := range sorted {
		out[i] = n
	}
	return out
}

func (fs *FS) SubVolumes() []diskarc.Driver {
	out := make([]diskarc.Driver, len(fs.subVols))
	for i, sub := range fs.subVols {
		out[i] = sub
	}
	return out
}

func (fs *FS) FileByName(path string) diskarc.FileNode {
	for _, n := range fs.nodes {
		if n.volDir {
			continue
		}
		if fs.samePath(n.path, path) {
			return n
		}
	}
	return nil
}

// samePath compares catalog paths, case-insensitively for formats that
// fold case.
func (fs *FS) samePath(a, b string) bool {
	switch fs.format {
	case diskarc.FormatProDOS, diskarc.FormatHFS, diskarc.FormatCPM, diskarc.FormatMSDOS:
		return strings.EqualFold(a, b)
	default:
		return a == b
	}
}

// NormalizePath rewrites each path segment to fit the volume's naming
// rules: illegal characters become '.', over-long segments are
// truncated. Flat formats treat the whole path as one name.
func (fs *FS) NormalizePath(path string, fssep byte) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty path", diskarc.ErrUnsupported)
	}
	if fssep == 0 {
		fssep = fs.fssep
	}

	var segments []string
	if fs.format.Hierarchical() {
		segments = strings.Split(path, string(fssep))
	} else {
		segments = []string{path}
	}

	limit := segmentLimit(fs.format)
	for i, seg := range segments {
		seg = fs.normalizeSegment(seg, limit)
		if seg == "" {
			return "", fmt.Errorf("%w: path %q has an empty segment", diskarc.ErrUnsupported, path)
		}
		segments[i] = seg
	}
	return strings.Join(segments, string(fs.fssep)), nil
}

func (fs *FS) normalizeSegment(seg string, limit int) string {
	var b strings.Builder
	for i := 0; i < len(seg) && b.Len() < limit; i++ {
		c := seg[i]
		switch fs.format {
		case diskarc.FormatProDOS:
			switch {
			case c >= 'a' && c <= 'z':
				c -= 'a' - 'A'
			case c >= 'A' && c <= 'Z':
			case i > 0 && (c >= '0' && c <= '9' || c == '.'):
			default:
				c = '.'
				if i == 0 {
					c = 'A'
				}
			}
		case diskarc.FormatCPM:
			switch {
			case c >= 'a' && c <= 'z':
				c -= 'a' - 'A'
			case c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '.':
			default:
				c = 'X'
			}
		case diskarc.FormatHFS:
			if c == ':' {
				c = '.'
			}
		default:
			if c < 0x20 || c >= 0x7f || c == ',' {
				c = '.'
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// CreateFile creates a file or directory. With uniquification enabled,
// colliding file names get a numeric suffix; directories never uniquify
// and instead succeed against the ErrExists check in callers.
func (fs *FS) CreateFile(req diskarc.CreateRequest) (diskarc.FileNode, error) {
	if !fs.readWrite {
		return nil, fmt.Errorf("%w: volume is read-only", diskarc.ErrUnsupported)
	}
	if req.Shape == diskarc.ShapeDirectory && !fs.format.Hierarchical() {
		return nil, fmt.Errorf("%w: %s volumes have no directories", diskarc.ErrUnsupported, fs.format)
	}

	path := req.PathName
	if fs.FileByName(path) != nil {
		if req.Shape == diskarc.ShapeDirectory || !fs.createUnique {
			return nil, fmt.Errorf("%w: %q", diskarc.ErrExists, path)
		}
		path = fs.uniquePath(path)
	}

	n := &Node{
		fs:         fs,
		path:       path,
		fssep:      fs.fssep,
		fileType:   req.FileType,
		auxType:    req.AuxType,
		access:     req.Access,
		createWhen: req.CreateWhen,
		modWhen:    req.ModWhen,
	}
	switch req.Shape {
	case diskarc.ShapeDirectory:
		n.dir = true
	case diskarc.ShapeExtended:
		n.data = []byte{}
		n.rsrc = []byte{}
	default:
		n.data = []byte{}
	}

	fs.nodes = append(fs.nodes, n)
	return n, nil
}

// uniquePath appends an incrementing numeric suffix, truncating the base
// if the segment limit would overflow.
func (fs *FS) uniquePath(path string) string {
	limit := segmentLimit(fs.format)
	for i := 1; ; i++ {
		suffix := fmt.Sprintf(".%d", i)
		base := path
		sep := string(fs.fssep)
		dir := ""
		if idx := strings.LastIndex(path, sep); idx >= 0 && fs.format.Hierarchical() {
			dir, base = path[:idx+1], path[idx+1:]
		}
		if len(base)+len(suffix) > limit {
			base = base[:limit-len(suffix)]
		}
		candidate := dir + base + suffix
		if fs.FileByName(candidate) == nil {
			return candidate
		}
	}
}

func (fs *FS) DeleteFile(node diskarc.FileNode) error {
	if !fs.readWrite {
		return fmt.Errorf("%w: volume is read-only", diskarc.ErrUnsupported)
	}
	n, ok := node.(*Node)
	if !ok || n.fs != fs {
		return fmt.Errorf("%w: foreign node", diskarc.ErrInternal)
	}
	if n.volDir {
		return fmt.Errorf("%w: cannot delete the volume directory", diskarc.ErrUnsupported)
	}
	if n.dir {
		prefix := n.path + string(fs.fssep)
		for _, other := range fs.nodes {
			if strings.HasPrefix(other.path, prefix) {
				return fmt.Errorf("%w: directory %q is not empty", diskarc.ErrUnsupported, n.path)
			}
		}
	}

	for i, other := range fs.nodes {
		if other == n {
			fs.nodes = append(fs.nodes[:i], fs.nodes[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %q", diskarc.ErrNotFound, n.path)
}

// RenameFile replaces the node's final path segment. Directory renames
// rewrite descendant paths too.
func (fs *FS) RenameFile(node diskarc.FileNode, newName string) error {
	if !fs.readWrite {
		return fmt.Errorf("%w: volume is read-only", diskarc.ErrUnsupported)
	}
	n, ok := node.(*Node)
	if !ok || n.fs != fs {
		return fmt.Errorf("%w: foreign node", diskarc.ErrInternal)
	}
	if n.volDir {
		return fmt.Errorf("%w: cannot rename the volume directory", diskarc.ErrUnsupported)
	}

	sep := string(fs.fssep)
	newPath := newName
	if idx := strings.LastIndex(n.path, sep); idx >= 0 && fs.format.Hierarchical() {
		newPath = n.path[:idx+1] + newName
	}
	if existing := fs.FileByName(newPath); existing != nil && existing != node {
		return fmt.Errorf("%w: %q", diskarc.ErrExists, newPath)
	}

	if n.dir {
		oldPrefix := n.path + sep
		newPrefix := newPath + sep
		for _, other := range fs.nodes {
			if strings.HasPrefix(other.path, oldPrefix) {
				other.path = newPrefix + other.path[len(oldPrefix):]
			}
		}
	}
	n.path = newPath
	return nil
}

func (fs *FS) RenameVolume(newName string) error {
	if !fs.readWrite {
		return fmt.Errorf("%w: volume is read-only", diskarc.ErrUnsupported)
	}
	fs.volName = newName
	for _, n := range fs.nodes {
		if n.volDir {
			n.path = newName
		}
	}
	return nil
}

func (fs *FS) SetFileInfo(node diskarc.FileNode, fileType, auxType, access uint32) error {
	if !fs.readWrite {
		return fmt.Errorf("%w: volume is read-only", diskarc.ErrUnsupported)
	}
	n, ok := node.(*Node)
	if !ok || n.fs != fs {
		return fmt.Errorf("%w: foreign node", diskarc.ErrInternal)
	}
	n.fileType = fileType
	n.auxType = auxType
	n.access = access
	return nil
}

func (fs *FS) SetCreateUnique(enabled bool) { fs.createUnique = enabled }

// Flush is a no-op; memfs has no pending state.
func (fs *FS) Flush() error { return nil }

// MustAddFile seeds a file directly into the catalog, bypassing the
// creation path. Test and fixture helper; panics on a duplicate path.
func (fs *FS) MustAddFile(path string, fileType, auxType uint32, data, rsrc []byte) *Node {
	if fs.FileByName(path) != nil {
		panic(fmt.Sprintf("memfs: duplicate path %q", path))
	}
	n := &Node{
		fs:       fs,
		path:     path,
		fssep:    fs.fssep,
		fileType: fileType,
		auxType:  auxType,
		access:   diskarc.AccessUnlocked,
		data:     data,
		rsrc:     rsrc,
	}
	fs.nodes = append(fs.nodes, n)
	return n
}

// MustAddDir seeds a directory node. Test and fixture helper.
func (fs *FS) MustAddDir(path string) *Node {
	if fs.FileByName(path) != nil {
		panic(fmt.Sprintf("memfs: duplicate path %q", path))
	}
	n := &Node{
		fs:       fs,
		path:     path,
		fssep:    fs.fssep,
		fileType: diskarc.FileTypeDIR,
		access:   diskarc.AccessUnlocked,
		dir:      true,
	}
	fs.nodes = append(fs.nodes, n)
	return n
}
