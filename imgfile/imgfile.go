// Package imgfile loads and saves host disk-image files, transparently
// handling a gzip outer wrapper. Many images circulate as ".do.gz" or
// ".po.gz"; callers get the raw image bytes either way, and saving
// restores whichever outer form the file arrived in.
package imgfile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/gzip"
)

// maxImageSize bounds the unwrapped image so a corrupt or hostile gzip
// stream cannot exhaust memory. 32 MiB covers every supported format
// with room to spare.
const maxImageSize = 32 << 20

var gzipMagic = []byte{0x1f, 0x8b}

// ErrTooLarge is returned when an image exceeds maxImageSize.
var ErrTooLarge = errors.New("imgfile: image too large")

// Image is one loaded disk image.
type Image struct {
	// Path is the host file the image was loaded from and saves to.
	Path string

	// Data is the raw, unwrapped image bytes.
	Data []byte

	// Compressed records whether the host file carries a gzip wrapper;
	// Save preserves it.
	Compressed bool
}

// IsWrapped reports whether b begins with the gzip magic bytes.
func IsWrapped(b []byte) bool {
	return bytes.HasPrefix(b, gzipMagic)
}

// Load reads a disk image, unwrapping a gzip outer layer when present.
func Load(path string) (*Image, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image %q: %w", path, err)
	}

	img := &Image{Path: path, Data: raw}
	if !IsWrapped(raw) {
		if len(raw) > maxImageSize {
			return nil, fmt.Errorf("%w: %q is %d bytes", ErrTooLarge, path, len(raw))
		}
		return img, nil
	}

	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("open gzip wrapper on %q: %w", path, err)
	}
	defer zr.Close()

	data, err := io.ReadAll(io.LimitReader(zr, maxImageSize+1))
	if err != nil {
		return nil, fmt.Errorf("unwrap %q: %w", path, err)
	}
	if len(data) > maxImageSize {
		return nil, fmt.Errorf("%w: %q unwraps past %d bytes", ErrTooLarge, path, maxImageSize)
	}

	img.Data = data
	img.Compressed = true
	return img, nil
}

// Save writes the image back to its path, restoring the gzip wrapper if
// the original had one. The write goes through a temp file in the same
// directory and renames into place.
func (img *Image) Save() error {
	out := img.Data
	if img.Compressed {
		var buf bytes.Buffer
		zw := gzip.NewWriter(&buf)
		if _, err := zw.Write(img.Data); err != nil {
			return fmt.Errorf("wrap %q: %w", img.Path, err)
		}
		if err := zw.Close(); err != nil {
			return fmt.Errorf("wrap %q: %w", img.Path, err)
		}
		out = buf.Bytes()
	}

	dir := filepath.Dir(img.Path)
	tmp, err := os.CreateTemp(dir, ".imgfile-*")
	if err != nil {
		return fmt.Errorf("create temp for %q: %w", img.Path, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(out); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %q: %w", img.Path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %q: %w", img.Path, err)
	}
	if err := os.Rename(tmpName, img.Path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace %q: %w", img.Path, err)
	}
	return nil
}
