package xfs

import (
	"bytes"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lvdlvd/xfscat/fsys"
)

func names(entries []fs.DirEntry) []string {
	var out []string
	for _, e := range entries {
		out = append(out, e.Name())
	}
	return out
}

func TestReadDir(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := buildFixture(t, v).mount()

			root, err := fs.ReadDir(f, ".")
			require.NoError(t, err)
			assert.Equal(t, []string{"a", "bb"}, names(root))
			assert.False(t, root[0].IsDir())
			assert.True(t, root[1].IsDir())

			bb, err := fs.ReadDir(f, "bb")
			require.NoError(t, err)
			assert.Equal(t, []string{"big", "leaf", "leaf2", "node", "tiny"}, names(bb))

			leaf, err := fs.ReadDir(f, "bb/leaf2")
			require.NoError(t, err)
			assert.Equal(t, []string{"p", "q", "r"}, names(leaf))
		})
	}
}

func TestReadDirPaged(t *testing.T) {
	f := buildFixture(t, variants[0]).mount()

	file, err := f.Open("bb")
	require.NoError(t, err)
	defer file.Close()
	d, ok := file.(fs.ReadDirFile)
	require.True(t, ok)

	var got [][]string
	for {
		ents, err := d.ReadDir(2)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, names(ents))
	}
	assert.Equal(t, [][]string{{"big", "tiny"}, {"leaf", "node"}, {"leaf2"}}, got)
}

func TestReadDirUnsupported(t *testing.T) {
	f := buildFixture(t, variants[0]).mount()
	_, err := fs.ReadDir(f, "bb/node")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestReadFile(t *testing.T) {
	for _, v := range variants {
		t.Run(v.name, func(t *testing.T) {
			f := buildFixture(t, v).mount()

			data, err := fs.ReadFile(f, "a")
			require.NoError(t, err)
			assert.Equal(t, "hello\n", string(data))

			data, err = fs.ReadFile(f, "bb/big")
			require.NoError(t, err)
			want := strings.Repeat("A", 512) + strings.Repeat("\x00", 512) + strings.Repeat("C", 412)
			assert.Equal(t, want, string(data))

			data, err = fs.ReadFile(f, "bb/tiny/x")
			require.NoError(t, err)
			assert.Empty(t, data)
		})
	}
}

func TestFileSeek(t *testing.T) {
	f := buildFixture(t, variants[0]).mount()

	file, err := f.Open("bb/big")
	require.NoError(t, err)
	defer file.Close()

	s, ok := file.(io.ReadSeeker)
	require.True(t, ok)
	_, err = s.Seek(-4, io.SeekEnd)
	require.NoError(t, err)
	tail, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, []byte("CCCC"), tail)
}

func TestStat(t *testing.T) {
	f := buildFixture(t, variants[2]).mount()

	info, err := fs.Stat(f, "bb/tiny/x")
	require.NoError(t, err)
	assert.Equal(t, "x", info.Name())
	assert.Equal(t, int64(0), info.Size())
	assert.True(t, info.Mode().IsRegular())
	assert.Equal(t, fs.FileMode(0o644), info.Mode().Perm())
	assert.Equal(t, int64(1700000000), info.ModTime().Unix())

	fi, ok := info.(fsys.FileInfo)
	require.True(t, ok)
	assert.Equal(t, uint64(inoX), fi.Inode())

	info, err = fs.Stat(f, ".")
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, uint64(testRootIno), info.(fsys.FileInfo).Inode())
}

func TestLookupErrors(t *testing.T) {
	f := buildFixture(t, variants[0]).mount()

	tests := []struct {
		name string
		want error
	}{
		{"missing", fs.ErrNotExist},
		{"a/x", fs.ErrNotExist},
		{"bb/nope", fs.ErrNotExist},
		{"/abs", fs.ErrInvalid},
		{"bb/../a", fs.ErrInvalid},
	}
	for _, tt := range tests {
		_, err := f.Open(tt.name)
		assert.ErrorIs(t, err, tt.want, tt.name)
	}
}

func TestOpenDirPath(t *testing.T) {
	f := buildFixture(t, variants[1]).mount()

	d, err := f.OpenDirPath("bb/leaf")
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, uint64(inoLeaf), d.Ino())
	assert.Equal(t, "leaf", d.Format())

	_, err = f.OpenDirPath("a")
	assert.Error(t, err)
}

func TestFileExtents(t *testing.T) {
	f := buildFixture(t, variants[0]).mount()

	exts, err := f.FileExtents("bb/big")
	require.NoError(t, err)
	assert.Equal(t, []fsys.Extent{
		{Logical: 0, Physical: 40 * testBlockSize, Length: 512},
		{Logical: 1024, Physical: 41 * testBlockSize, Length: 412},
	}, exts)

	// Extents read through the base reader match the file contents
	want, err := fs.ReadFile(f, "bb/big")
	require.NoError(t, err)
	r := fsys.NewExtentReaderAt(f.BaseReader(), exts, int64(len(want)))
	got := make([]byte, len(want))
	_, err = r.ReadAt(got, 0)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(want, got))

	_, err = f.FileExtents("bb")
	assert.Error(t, err)
}
