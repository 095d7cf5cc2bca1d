package diskarc

// Canonical EOL handling. Legacy Apple II filesystems expect a bare CR
// line ending, and the DOS 3.2/3.3 family additionally marks text bytes
// by setting bit 7 ("high ASCII").

const (
	charCR = '\r'
	charLF = '\n'

	// classifySampleLen bounds how much of a file ClassifyEOL inspects.
	classifySampleLen = 16 * 1024
)

// EOLType is a file's dominant line-ending convention.
type EOLType uint8

const (
	EOLUnknown EOLType = iota
	EOLCR
	EOLLF
	EOLCRLF
)

func (t EOLType) String() string {
	switch t {
	case EOLCR:
		return "CR"
	case EOLLF:
		return "LF"
	case EOLCRLF:
		return "CRLF"
	default:
		return "unknown"
	}
}

// EOLMode selects whether text conversion runs.
type EOLMode uint8

const (
	// EOLOff writes bytes through untouched.
	EOLOff EOLMode = iota

	// EOLOn rewrites LF and CRLF to the canonical CR.
	EOLOn

	// EOLAuto classifies a sample first and skips conversion when the
	// source already uses bare CR.
	EOLAuto
)

// ClassifyEOL returns the dominant line-ending convention over at most
// the first 16 KiB of sample. It is deterministic: identical samples
// yield identical classifications.
func ClassifyEOL(sample []byte) EOLType {
	if len(sample) > classifySampleLen {
		sample = sample[:classifySampleLen]
	}

	var numCR, numLF, numCRLF int
	for i := 0; i < len(sample); i++ {
		switch sample[i] {
		case charCR:
			if i+1 < len(sample) && sample[i+1] == charLF {
				numCRLF++
				i++
			} else {
				numCR++
			}
		case charLF:
			numLF++
		}
	}

	switch {
	case numCR == 0 && numLF == 0 && numCRLF == 0:
		return EOLUnknown
	case numCRLF >= numCR && numCRLF >= numLF:
		return EOLCRLF
	case numLF >= numCR:
		return EOLLF
	default:
		return EOLCR
	}
}

// Transcoder rewrites line endings to a single canonical CR and, when
// HighASCII is set, ORs bit 7 onto every written byte except literal
// NUL (never touched). CRLF pairs collapse to one CR even when split
// across Convert calls: the "last byte was CR" flag is carried in the
// Transcoder, so one value must be used for a whole stream.
//
// Output never exceeds input length, so callers may size buffers from
// the source length. The zero value is ready to use.
type Transcoder struct {
	HighASCII bool

	lastCR bool
}

// Reset clears carried state so the Transcoder can start a new stream.
func (t *Transcoder) Reset() { t.lastCR = false }

// Convert appends the converted form of src to dst and returns the
// extended buffer.
func (t *Transcoder) Convert(dst, src []byte) []byte {
	var mask byte
	if t.HighASCII {
		mask = 0x80
	}

	for _, c := range src {
		switch c {
		case charCR:
			dst = append(dst, charCR|mask)
			t.lastCR = true
		case charLF:
			if !t.lastCR {
				dst = append(dst, charCR|mask)
			}
			t.lastCR = false
		case 0x00:
			dst = append(dst, c)
			t.lastCR = false
		default:
			dst = append(dst, c|mask)
			t.lastCR = false
		}
	}
	return dst
}

// ConvertText is the one-shot form of Transcoder.Convert for callers
// holding a whole fork in memory.
func ConvertText(src []byte, highASCII bool) []byte {
	t := Transcoder{HighASCII: highASCII}
	return t.Convert(make([]byte, 0, len(src)), src)
}

// resolveEOL collapses EOLAuto into EOLOn or EOLOff by classifying the
// sample: sources already using bare CR are passed through untouched.
func resolveEOL(mode EOLMode, sample []byte) EOLMode {
	if mode != EOLAuto {
		return mode
	}
	if ClassifyEOL(sample) == EOLCR {
		return EOLOff
	}
	return EOLOn
}
