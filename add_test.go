package diskarc_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroarc/diskarc"
	"github.com/retroarc/diskarc/internal/memfs"
)

// scriptedPrompt replays a fixed sequence of conflict resolutions and
// counts how often it is consulted.
type scriptedPrompt struct {
	script []diskarc.Resolution
	calls  int
}

func (p *scriptedPrompt) ResolveConflict(existing diskarc.ExistingSummary, candidate *diskarc.FileDetails) diskarc.Resolution {
	p.calls++
	if len(p.script) == 0 {
		return diskarc.Resolution{Action: diskarc.OverwriteAbort}
	}
	res := p.script[0]
	p.script = p.script[1:]
	return res
}

func payloadDetails(storage string, kind diskarc.ForkKind, payload []byte) diskarc.FileDetails {
	return diskarc.FileDetails{
		Payload:     payload,
		StoragePath: storage,
		Kind:        kind,
		FileType:    diskarc.FileTypeBIN,
		Access:      diskarc.AccessUnlocked,
	}
}

func TestAddPipelinePairing(t *testing.T) {
	t.Run("data then rsrc", func(t *testing.T) {
		p := diskarc.NewAddPipeline(memfs.New(diskarc.FormatProDOS, "TEST"))
		ok, err := p.AddCandidate(payloadDetails("FOO", diskarc.AddData, []byte{1}))
		require.NoError(t, err)
		assert.True(t, ok)
		_, err = p.AddCandidate(payloadDetails("FOO", diskarc.AddRsrc, []byte{2}))
		require.NoError(t, err)
		assert.Equal(t, 1, p.PendingCount(), "forks must link into one logical entry")
	})

	t.Run("rsrc then data", func(t *testing.T) {
		p := diskarc.NewAddPipeline(memfs.New(diskarc.FormatProDOS, "TEST"))
		_, err := p.AddCandidate(payloadDetails("FOO", diskarc.AddRsrc, []byte{2}))
		require.NoError(t, err)
		_, err = p.AddCandidate(payloadDetails("FOO", diskarc.AddData, []byte{1}))
		require.NoError(t, err)
		assert.Equal(t, 1, p.PendingCount())
	})

	t.Run("third candidate starts a new entry", func(t *testing.T) {
		p := diskarc.NewAddPipeline(memfs.New(diskarc.FormatProDOS, "TEST"))
		_, err := p.AddCandidate(payloadDetails("FOO", diskarc.AddData, []byte{1}))
		require.NoError(t, err)
		_, err = p.AddCandidate(payloadDetails("FOO", diskarc.AddRsrc, []byte{2}))
		require.NoError(t, err)
		_, err = p.AddCandidate(payloadDetails("FOO", diskarc.AddData, []byte{3}))
		require.NoError(t, err)
		assert.Equal(t, 2, p.PendingCount(), "a full pair never absorbs a third candidate")
	})

	t.Run("same kind never pairs", func(t *testing.T) {
		p := diskarc.NewAddPipeline(memfs.New(diskarc.FormatProDOS, "TEST"))
		_, err := p.AddCandidate(payloadDetails("FOO", diskarc.AddData, []byte{1}))
		require.NoError(t, err)
		_, err = p.AddCandidate(payloadDetails("FOO", diskarc.AddData, []byte{2}))
		require.NoError(t, err)
		assert.Equal(t, 2, p.PendingCount())
	})

	t.Run("disk images never pair", func(t *testing.T) {
		p := diskarc.NewAddPipeline(memfs.New(diskarc.FormatProDOS, "TEST"))
		_, err := p.AddCandidate(payloadDetails("FOO", diskarc.AddDiskImage, []byte{1}))
		require.NoError(t, err)
		_, err = p.AddCandidate(payloadDetails("FOO", diskarc.AddRsrc, []byte{2}))
		require.NoError(t, err)
		assert.Equal(t, 2, p.PendingCount())
	})

	t.Run("pairing is case sensitive on storage names", func(t *testing.T) {
		p := diskarc.NewAddPipeline(memfs.New(diskarc.FormatProDOS, "TEST"))
		_, err := p.AddCandidate(payloadDetails("Foo", diskarc.AddData, []byte{1}))
		require.NoError(t, err)
		_, err = p.AddCandidate(payloadDetails("FOO", diskarc.AddRsrc, []byte{2}))
		require.NoError(t, err)
		assert.Equal(t, 2, p.PendingCount())
	})
}

func TestAddPipelineOverwriteResolution(t *testing.T) {
	newTarget := func(t *testing.T) *memfs.FS {
		t.Helper()
		fs := memfs.New(diskarc.FormatProDOS, "TEST")
		fs.MustAddFile("TAKEN", diskarc.FileTypeBIN, 0, []byte{0xFF}, nil)
		return fs
	}

	t.Run("overwrite deletes the existing file immediately", func(t *testing.T) {
		fs := newTarget(t)
		prompt := &scriptedPrompt{script: []diskarc.Resolution{{Action: diskarc.OverwriteYes}}}
		p := diskarc.NewAddPipeline(fs, diskarc.WithConflictPrompt(prompt))

		ok, err := p.AddCandidate(payloadDetails("TAKEN", diskarc.AddData, []byte{1}))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Nil(t, fs.FileByName("TAKEN"), "existing entry deleted before commit")
	})

	t.Run("skip drops the candidate", func(t *testing.T) {
		fs := newTarget(t)
		prompt := &scriptedPrompt{script: []diskarc.Resolution{{Action: diskarc.OverwriteSkip}}}
		p := diskarc.NewAddPipeline(fs, diskarc.WithConflictPrompt(prompt))

		ok, err := p.AddCandidate(payloadDetails("TAKEN", diskarc.AddData, []byte{1}))
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Equal(t, 0, p.PendingCount())
		assert.NotNil(t, fs.FileByName("TAKEN"))
	})

	t.Run("rename re-checks the new name", func(t *testing.T) {
		fs := newTarget(t)
		prompt := &scriptedPrompt{script: []diskarc.Resolution{
			{Action: diskarc.OverwriteRename, NewName: "FRESH"},
		}}
		p := diskarc.NewAddPipeline(fs, diskarc.WithConflictPrompt(prompt))

		ok, err := p.AddCandidate(payloadDetails("TAKEN", diskarc.AddData, []byte{1}))
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, 1, prompt.calls)
	})

	t.Run("abort fails the batch as cancelled", func(t *testing.T) {
		fs := newTarget(t)
		prompt := &scriptedPrompt{script: []diskarc.Resolution{{Action: diskarc.OverwriteAbort}}}
		p := diskarc.NewAddPipeline(fs, diskarc.WithConflictPrompt(prompt))

		_, err := p.AddCandidate(payloadDetails("TAKEN", diskarc.AddData, []byte{1}))
		assert.ErrorIs(t, err, diskarc.ErrCancelled)
	})

	t.Run("no prompt means collisions cancel", func(t *testing.T) {
		fs := newTarget(t)
		p := diskarc.NewAddPipeline(fs)
		_, err := p.AddCandidate(payloadDetails("TAKEN", diskarc.AddData, []byte{1}))
		assert.ErrorIs(t, err, diskarc.ErrCancelled)
	})

	t.Run("apply to remaining sticks for the batch", func(t *testing.T) {
		fs := memfs.New(diskarc.FormatProDOS, "TEST")
		fs.MustAddFile("A", diskarc.FileTypeBIN, 0, []byte{0}, nil)
		fs.MustAddFile("B", diskarc.FileTypeBIN, 0, []byte{0}, nil)
		fs.MustAddFile("C", diskarc.FileTypeBIN, 0, []byte{0}, nil)

		prompt := &scriptedPrompt{script: []diskarc.Resolution{
			{Action: diskarc.OverwriteSkip, ApplyToRemaining: true},
		}}
		p := diskarc.NewAddPipeline(fs, diskarc.WithConflictPrompt(prompt))

		for _, name := range []string{"A", "B", "C"} {
			ok, err := p.AddCandidate(payloadDetails(name, diskarc.AddData, []byte{1}))
			require.NoError(t, err)
			assert.False(t, ok)
		}
		assert.Equal(t, 1, prompt.calls, "one prompt, then the sticky policy answers")

		// A fresh batch prompts again.
		p.Reset()
		prompt.script = []diskarc.Resolution{{Action: diskarc.OverwriteSkip}}
		_, err := p.AddCandidate(payloadDetails("A", diskarc.AddData, []byte{1}))
		require.NoError(t, err)
		assert.Equal(t, 2, prompt.calls)
	})
}

func TestAddPipelineCommit(t *testing.T) {
	t.Run("paired forks yield one extended entry", func(t *testing.T) {
		fs := memfs.New(diskarc.FormatProDOS, "TEST")
		p := diskarc.NewAddPipeline(fs)

		_, err := p.AddCandidate(payloadDetails("PIC", diskarc.AddData, make([]byte, 100)))
		require.NoError(t, err)
		_, err = p.AddCandidate(payloadDetails("PIC", diskarc.AddRsrc, make([]byte, 50)))
		require.NoError(t, err)
		require.NoError(t, p.Commit(diskarc.EOLPolicyOff, nil))

		node := fs.FileByName("PIC")
		require.NotNil(t, node)
		assert.Equal(t, int64(100), node.DataLen())
		assert.Equal(t, int64(50), node.RsrcLen())

		entries, err := diskarc.LoadTree(fs, nil)
		require.NoError(t, err)
		require.Len(t, entries, 1, "exactly one catalog entry for the pair")
		assert.Equal(t, diskarc.RecordForkedFile, entries[0].Kind)
	})

	t.Run("text policy by type", func(t *testing.T) {
		fs := memfs.New(diskarc.FormatProDOS, "TEST")
		p := diskarc.NewAddPipeline(fs)

		txt := payloadDetails("NOTES", diskarc.AddData, []byte("a\nb\n"))
		txt.FileType = diskarc.FileTypeTXT
		bin := payloadDetails("PROG", diskarc.AddData, []byte("a\nb\n"))

		_, err := p.AddCandidate(txt)
		require.NoError(t, err)
		_, err = p.AddCandidate(bin)
		require.NoError(t, err)
		require.NoError(t, p.Commit(diskarc.EOLPolicyByType, nil))

		entries, err := diskarc.LoadTree(fs, nil)
		require.NoError(t, err)
		byName := make(map[string][]byte)
		for _, e := range entries {
			data, err := diskarc.ExtractFork(e, diskarc.DataFork, nil, nil)
			require.NoError(t, err)
			byName[e.PathName] = data
		}
		assert.Equal(t, []byte("a\rb\r"), byName["NOTES"], "text type converts")
		assert.Equal(t, []byte("a\nb\n"), byName["PROG"], "binary stays untouched")
	})

	t.Run("dos target gets high ascii text", func(t *testing.T) {
		fs := memfs.New(diskarc.FormatDOS33, "254")
		p := diskarc.NewAddPipeline(fs)

		txt := payloadDetails("NOTES", diskarc.AddData, []byte("ab\n"))
		txt.FileType = diskarc.FileTypeTXT
		_, err := p.AddCandidate(txt)
		require.NoError(t, err)
		require.NoError(t, p.Commit(diskarc.EOLPolicyByType, nil))

		node := fs.FileByName("NOTES")
		require.NotNil(t, node)
		entries, err := diskarc.LoadTree(fs, nil)
		require.NoError(t, err)
		data, err := diskarc.ExtractFork(entries[0], diskarc.DataFork, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte{'a' | 0x80, 'b' | 0x80, '\r' | 0x80}, data)
	})

	t.Run("rsrc fork never converted", func(t *testing.T) {
		fs := memfs.New(diskarc.FormatProDOS, "TEST")
		p := diskarc.NewAddPipeline(fs)

		data := payloadDetails("DOC", diskarc.AddData, []byte("x"))
		data.FileType = diskarc.FileTypeTXT
		rsrc := payloadDetails("DOC", diskarc.AddRsrc, []byte("a\nb"))
		rsrc.FileType = diskarc.FileTypeTXT

		_, err := p.AddCandidate(data)
		require.NoError(t, err)
		_, err = p.AddCandidate(rsrc)
		require.NoError(t, err)
		require.NoError(t, p.Commit(diskarc.EOLPolicyOn, nil))

		entries, err := diskarc.LoadTree(fs, nil)
		require.NoError(t, err)
		got, err := diskarc.ExtractFork(entries[0], diskarc.RsrcFork, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, []byte("a\nb"), got)
	})

	t.Run("host file payload", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "host.bin")
		require.NoError(t, os.WriteFile(path, []byte{9, 8, 7}, 0o644))

		fs := memfs.New(diskarc.FormatProDOS, "TEST")
		p := diskarc.NewAddPipeline(fs)
		_, err := p.AddCandidate(diskarc.FileDetails{
			OrigPath:    path,
			StoragePath: "HOST.BIN",
			Kind:        diskarc.AddData,
			FileType:    diskarc.FileTypeBIN,
			Access:      diskarc.AccessUnlocked,
		})
		require.NoError(t, err)
		require.NoError(t, p.Commit(diskarc.EOLPolicyOff, nil))

		node := fs.FileByName("HOST.BIN")
		require.NotNil(t, node)
		assert.Equal(t, int64(3), node.DataLen())
	})

	t.Run("empty folder marker survives normalization", func(t *testing.T) {
		fs := memfs.New(diskarc.FormatProDOS, "TEST")
		p := diskarc.NewAddPipeline(fs)

		marker := diskarc.FileDetails{
			Payload:     []byte{},
			StoragePath: "hollow:" + diskarc.EmptyFolderMarker,
			Kind:        diskarc.AddData,
			FileType:    diskarc.FileTypeNON,
			Access:      diskarc.AccessUnlocked | diskarc.AccessInvisible,
		}
		_, err := p.AddCandidate(marker)
		require.NoError(t, err)
		require.NoError(t, p.Commit(diskarc.EOLPolicyOff, nil))

		// The parent path is still normalized; the marker itself must
		// reach the create path intact so the directory is recreated
		// instead of a junk file.
		dir := fs.FileByName("HOLLOW")
		require.NotNil(t, dir, "directory recreated from its marker")
		assert.True(t, dir.IsDirectory())
		assert.Zero(t, dir.Access()&diskarc.AccessInvisible)

		entries, err := diskarc.LoadTree(fs, nil)
		require.NoError(t, err)
		require.Len(t, entries, 1, "no marker file left behind")
		assert.Equal(t, diskarc.RecordDirectory, entries[0].Kind)
	})

	t.Run("missing host file aborts the commit", func(t *testing.T) {
		fs := memfs.New(diskarc.FormatProDOS, "TEST")
		p := diskarc.NewAddPipeline(fs)
		_, err := p.AddCandidate(diskarc.FileDetails{
			OrigPath:    filepath.Join(t.TempDir(), "missing"),
			StoragePath: "GONE",
			Kind:        diskarc.AddData,
		})
		require.NoError(t, err)
		assert.Error(t, p.Commit(diskarc.EOLPolicyOff, nil))
	})
}
