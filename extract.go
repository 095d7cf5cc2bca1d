package diskarc

import (
	"fmt"
	"io"
)

// extractChunkSize is the fixed read granularity for streaming
// extraction. Cancellation is checked once per chunk.
const extractChunkSize = 16 * 1024

// ExtractFork reads one entire fork of an entry into memory.
//
// If buf is non-nil it receives the data and must be at least as large
// as the fork; a short buffer fails with ErrShortBuffer before any read.
// Damaged entries fail with ErrDamaged without touching the driver, and
// a fork the entry does not carry fails with ErrNoFork. A zero-length
// fork returns an empty slice without opening the underlying stream.
//
// The progress callback may cancel between chunks; on ErrCancelled no
// extracted bytes are returned.
func ExtractFork(e *Entry, fork Fork, buf []byte, progress ProgressFunc) ([]byte, error) {
	if progress == nil {
		progress = neverCancel
	}
	if e.Damaged {
		return nil, fmt.Errorf("%w: %s", ErrDamaged, e.DisplayName())
	}

	length := e.ForkLen(fork)
	if length < 0 {
		return nil, fmt.Errorf("%w: %s has no %s fork", ErrNoFork, e.DisplayName(), fork)
	}
	if length == 0 {
		if buf != nil {
			return buf[:0], nil
		}
		return []byte{}, nil
	}
	if buf != nil && int64(len(buf)) < length {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrShortBuffer, length, len(buf))
	}
	if e.node == nil {
		return nil, fmt.Errorf("%w: entry %q is stale", ErrInternal, e.DisplayName())
	}

	if buf == nil {
		buf = make([]byte, length)
	} else {
		buf = buf[:length]
	}

	h, err := e.node.OpenFork(fork, false)
	if err != nil {
		return nil, fmt.Errorf("open %s fork of %s: %w", fork, e.DisplayName(), err)
	}
	defer h.Close()

	var done int64
	for done < length {
		if !progress(done, length) {
			return nil, ErrCancelled
		}
		chunk := length - done
		if chunk > extractChunkSize {
			chunk = extractChunkSize
		}
		if _, err := io.ReadFull(h, buf[done:done+chunk]); err != nil {
			return nil, fmt.Errorf("read %s fork of %s: %w", fork, e.DisplayName(), err)
		}
		done += chunk
	}
	progress(length, length)

	return buf, nil
}

// ExtractForkTo streams one fork of an entry to w in fixed 16 KiB
// chunks, optionally converting line endings and high-ASCII along the
// way. The transcoder's carried state means CR/LF pairs split across a
// chunk boundary still collapse to a single CR.
//
// The progress callback is consulted once per chunk; when it cancels,
// ExtractForkTo returns ErrCancelled and leaves any partially written
// destination for the caller to clean up.
func ExtractForkTo(e *Entry, fork Fork, w io.Writer, eol EOLMode, highASCII bool, progress ProgressFunc) error {
	if progress == nil {
		progress = neverCancel
	}
	if e.Damaged {
		return fmt.Errorf("%w: %s", ErrDamaged, e.DisplayName())
	}

	length := e.ForkLen(fork)
	if length < 0 {
		return fmt.Errorf("%w: %s has no %s fork", ErrNoFork, e.DisplayName(), fork)
	}
	if length == 0 {
		return nil
	}
	if e.node == nil {
		return fmt.Errorf("%w: entry %q is stale", ErrInternal, e.DisplayName())
	}

	h, err := e.node.OpenFork(fork, false)
	if err != nil {
		return fmt.Errorf("open %s fork of %s: %w", fork, e.DisplayName(), err)
	}
	defer h.Close()

	var (
		raw  = make([]byte, extractChunkSize)
		conv []byte
		tr   = Transcoder{HighASCII: highASCII}
		done int64
	)
	for done < length {
		if !progress(done, length) {
			return ErrCancelled
		}
		chunk := length - done
		if chunk > extractChunkSize {
			chunk = int64(extractChunkSize)
		}
		if _, err := io.ReadFull(h, raw[:chunk]); err != nil {
			return fmt.Errorf("read %s fork of %s: %w", fork, e.DisplayName(), err)
		}

		// EOLAuto resolves against the first chunk only; the decision
		// then holds for the rest of the stream.
		if done == 0 {
			eol = resolveEOL(eol, raw[:chunk])
		}

		out := raw[:chunk]
		if eol == EOLOn {
			conv = tr.Convert(conv[:0], raw[:chunk])
			out = conv
		}
		if _, err := w.Write(out); err != nil {
			return fmt.Errorf("write %s fork of %s: %w", fork, e.DisplayName(), err)
		}
		done += chunk
	}
	progress(length, length)

	return nil
}
