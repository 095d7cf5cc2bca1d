package diskarc_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retroarc/diskarc"
	"github.com/retroarc/diskarc/internal/memfs"
)

func demoArchive(t *testing.T) (*diskarc.Archive, *memfs.FS) {
	t.Helper()
	fs := memfs.New(diskarc.FormatProDOS, "DEMO", memfs.WithVolumeDir())
	fs.MustAddFile("README", diskarc.FileTypeTXT, 0, []byte("hello\r"), nil)
	fs.MustAddDir("SRC")
	fs.MustAddFile("SRC:MAIN", diskarc.FileTypeSRC, 0, []byte("code\r"), nil)

	arc, err := diskarc.New(fs)
	require.NoError(t, err)
	return arc, fs
}

func findEntry(t *testing.T, arc *diskarc.Archive, displayName string) *diskarc.Entry {
	t.Helper()
	e := arc.Entries().Get(displayName)
	require.NotNil(t, e, "entry %q not found", displayName)
	return e
}

func TestArchiveLoad(t *testing.T) {
	arc, fs := demoArchive(t)
	assert.Equal(t, 4, arc.Entries().Len())
	assert.Equal(t, "DEMO", arc.VolumeName())
	assert.Equal(t, diskarc.FormatProDOS, arc.Format())

	fs.MustAddFile("LATER", diskarc.FileTypeBIN, 0, []byte{1}, nil)
	require.NoError(t, arc.Reload(nil))
	assert.Equal(t, 5, arc.Entries().Len())
}

func TestArchiveDeleteSelection(t *testing.T) {
	t.Run("directory tree bottom-up", func(t *testing.T) {
		arc, fs := demoArchive(t)

		sel := diskarc.NewEntryList()
		sel.Append(findEntry(t, arc, "SRC"), findEntry(t, arc, "SRC:MAIN"))

		require.NoError(t, arc.DeleteSelection(sel, nil))
		assert.Nil(t, fs.FileByName("SRC"))
		assert.Nil(t, fs.FileByName("SRC:MAIN"))
		assert.Equal(t, 2, arc.Entries().Len(), "entry list reloaded after delete")
	})

	t.Run("volume dir skipped", func(t *testing.T) {
		arc, _ := demoArchive(t)
		sel := diskarc.NewEntryList()
		sel.Append(findEntry(t, arc, "DEMO"))

		require.NoError(t, arc.DeleteSelection(sel, nil))
		assert.Equal(t, 4, arc.Entries().Len())
	})

	t.Run("read-only volume refused", func(t *testing.T) {
		fs := memfs.New(diskarc.FormatProDOS, "RO", memfs.WithReadOnly())
		arc, err := diskarc.New(fs)
		require.NoError(t, err)

		err = arc.DeleteSelection(diskarc.NewEntryList(), nil)
		assert.ErrorIs(t, err, diskarc.ErrUnsupported)
	})

	t.Run("cancellation still reloads", func(t *testing.T) {
		arc, fs := demoArchive(t)
		sel := diskarc.NewEntryList()
		sel.Append(findEntry(t, arc, "README"))

		err := arc.DeleteSelection(sel, func(current, total int64) bool { return false })
		assert.ErrorIs(t, err, diskarc.ErrCancelled)
		assert.NotNil(t, fs.FileByName("README"))
		assert.Equal(t, 4, arc.Entries().Len())
	})
}

func TestArchiveRenameEntry(t *testing.T) {
	t.Run("valid rename", func(t *testing.T) {
		arc, fs := demoArchive(t)
		require.NoError(t, arc.RenameEntry(findEntry(t, arc, "README"), "NOTES"))
		assert.Nil(t, fs.FileByName("README"))
		assert.NotNil(t, fs.FileByName("NOTES"))
	})

	t.Run("volume dir refused", func(t *testing.T) {
		arc, _ := demoArchive(t)
		err := arc.RenameEntry(findEntry(t, arc, "DEMO"), "OTHER")
		assert.ErrorIs(t, err, diskarc.ErrUnsupported)
	})

	t.Run("invalid name for format", func(t *testing.T) {
		arc, _ := demoArchive(t)
		err := arc.RenameEntry(findEntry(t, arc, "README"), "bad name!")
		assert.ErrorIs(t, err, diskarc.ErrUnsupported)
	})

	t.Run("directory rename rewrites children", func(t *testing.T) {
		arc, fs := demoArchive(t)
		require.NoError(t, arc.RenameEntry(findEntry(t, arc, "SRC"), "CODE"))
		assert.NotNil(t, fs.FileByName("CODE:MAIN"))
		assert.NotNil(t, arc.Entries().Get("CODE:MAIN"))
	})
}

func TestArchiveRenameVolume(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		arc, fs := demoArchive(t)
		require.NoError(t, arc.RenameVolume("NEWDISK"))
		assert.Equal(t, "NEWDISK", fs.VolumeName())
	})

	t.Run("invalid per format", func(t *testing.T) {
		arc, fs := demoArchive(t)
		err := arc.RenameVolume("2BADNAME")
		assert.ErrorIs(t, err, diskarc.ErrUnsupported)
		assert.Equal(t, "DEMO", fs.VolumeName())
	})
}

func TestArchiveSetProps(t *testing.T) {
	t.Run("patches in place", func(t *testing.T) {
		arc, fs := demoArchive(t)
		e := findEntry(t, arc, "README")

		require.NoError(t, arc.SetProps(e, diskarc.FileTypeBIN, 0x2000, diskarc.AccessUnlocked))
		assert.Equal(t, uint32(diskarc.FileTypeBIN), e.FileType)
		assert.Equal(t, uint32(0x2000), e.AuxType)

		node := fs.FileByName("README")
		require.NotNil(t, node)
		assert.Equal(t, uint32(diskarc.FileTypeBIN), node.FileType())
	})

	t.Run("volume dir refused", func(t *testing.T) {
		arc, _ := demoArchive(t)
		err := arc.SetProps(findEntry(t, arc, "DEMO"), 0, 0, 0)
		assert.ErrorIs(t, err, diskarc.ErrUnsupported)
	})
}

func TestArchiveCreateSubdir(t *testing.T) {
	t.Run("at root", func(t *testing.T) {
		arc, fs := demoArchive(t)
		require.NoError(t, arc.CreateSubdir(nil, "DOCS"))

		node := fs.FileByName("DOCS")
		require.NotNil(t, node)
		assert.True(t, node.IsDirectory())
		assert.NotNil(t, arc.Entries().Get("DOCS"), "entry list reloaded")
	})

	t.Run("under parent", func(t *testing.T) {
		arc, fs := demoArchive(t)
		require.NoError(t, arc.CreateSubdir(findEntry(t, arc, "SRC"), "LIB"))
		assert.NotNil(t, fs.FileByName("SRC:LIB"))
	})

	t.Run("duplicate refused", func(t *testing.T) {
		arc, _ := demoArchive(t)
		err := arc.CreateSubdir(nil, "SRC")
		assert.ErrorIs(t, err, diskarc.ErrExists)
	})

	t.Run("flat filesystem refused", func(t *testing.T) {
		fs := memfs.New(diskarc.FormatDOS33, "254")
		arc, err := diskarc.New(fs)
		require.NoError(t, err)
		assert.ErrorIs(t, arc.CreateSubdir(nil, "SUB"), diskarc.ErrUnsupported)
	})
}

func TestArchiveTestNames(t *testing.T) {
	arc, _ := demoArchive(t)

	assert.NoError(t, arc.TestPathName(nil, "FRESH"))
	assert.ErrorIs(t, arc.TestPathName(nil, "README"), diskarc.ErrExists)
	assert.ErrorIs(t, arc.TestPathName(nil, "bad name!"), diskarc.ErrUnsupported)

	assert.NoError(t, arc.TestVolumeName("GOOD"))
	assert.ErrorIs(t, arc.TestVolumeName("8BALL"), diskarc.ErrUnsupported)
}

func TestArchiveAddFiles(t *testing.T) {
	arc, fs := demoArchive(t)

	candidates := []diskarc.FileDetails{
		{Payload: []byte{1, 2}, StoragePath: "NEW.A", Kind: diskarc.AddData, FileType: diskarc.FileTypeBIN},
		{Payload: []byte{3}, StoragePath: "NEW.B", Kind: diskarc.AddData, FileType: diskarc.FileTypeBIN},
	}
	added, err := arc.AddFiles(candidates, nil, diskarc.EOLPolicyOff, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, added)
	assert.NotNil(t, fs.FileByName("NEW.A"))
	assert.NotNil(t, arc.Entries().Get("NEW.A"), "entry list reloaded after add")
}
