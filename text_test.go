package diskarc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyEOL(t *testing.T) {
	tests := []struct {
		name   string
		sample string
		want   EOLType
	}{
		{"empty", "", EOLUnknown},
		{"no line endings", "plain text", EOLUnknown},
		{"bare cr", "one\rtwo\rthree\r", EOLCR},
		{"bare lf", "one\ntwo\nthree\n", EOLLF},
		{"crlf", "one\r\ntwo\r\nthree\r\n", EOLCRLF},
		{"crlf wins tie with cr", "a\r\nb\r", EOLCRLF},
		{"crlf wins tie with lf", "a\r\nb\n", EOLCRLF},
		{"lf wins tie with cr", "a\nb\r", EOLLF},
		{"mostly cr", "a\rb\rc\n", EOLCR},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyEOL([]byte(tt.sample)))
		})
	}
}

func TestClassifyEOLDeterministic(t *testing.T) {
	sample := []byte("line one\r\nline two\nline three\r")
	first := ClassifyEOL(sample)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ClassifyEOL(sample))
	}
}

func TestConvertText(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		highASCII bool
		want      []byte
	}{
		{"mixed endings collapse", "A\nB\r\nC\r", false, []byte("A\rB\rC\r")},
		{"lone lf", "A\nB", false, []byte("A\rB")},
		{"crlf pair", "A\r\nB", false, []byte("A\rB")},
		{"lone cr unchanged", "A\rB", false, []byte("A\rB")},
		{"empty", "", false, []byte{}},
		{
			"high ascii sets bit 7",
			"AB\r",
			true,
			[]byte{'A' | 0x80, 'B' | 0x80, '\r' | 0x80},
		},
		{
			"high ascii never touches nul",
			"A\x00B",
			true,
			[]byte{'A' | 0x80, 0x00, 'B' | 0x80},
		},
		{
			"high ascii applies to written cr",
			"A\nB",
			true,
			[]byte{'A' | 0x80, '\r' | 0x80, 'B' | 0x80},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ConvertText([]byte(tt.input), tt.highASCII)
			assert.Equal(t, tt.want, got)
			assert.LessOrEqual(t, len(got), len(tt.input), "output must not exceed input length")
		})
	}
}

func TestTranscoderCarriesCRAcrossChunks(t *testing.T) {
	// A CRLF pair split across two Convert calls must still collapse to
	// a single CR.
	var tr Transcoder
	out := tr.Convert(nil, []byte("A\r"))
	out = tr.Convert(out, []byte("\nB"))
	assert.Equal(t, []byte("A\rB"), out)

	// After Reset the carried state is gone and a leading LF converts.
	tr.Reset()
	out = tr.Convert(nil, []byte("\nC"))
	assert.Equal(t, []byte("\rC"), out)
}

func TestResolveEOL(t *testing.T) {
	tests := []struct {
		name   string
		mode   EOLMode
		sample string
		want   EOLMode
	}{
		{"off stays off", EOLOff, "a\nb", EOLOff},
		{"on stays on", EOLOn, "a\rb", EOLOn},
		{"auto with cr source skips", EOLAuto, "a\rb\r", EOLOff},
		{"auto with lf source converts", EOLAuto, "a\nb\n", EOLOn},
		{"auto with crlf source converts", EOLAuto, "a\r\nb\r\n", EOLOn},
		{"auto with no endings converts", EOLAuto, "plain", EOLOn},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveEOL(tt.mode, []byte(tt.sample)))
		})
	}
}
