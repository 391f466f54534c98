package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanRelPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    string
		wantErr error
	}{
		{"", "", nil},
		{"/", "", nil},
		{".", "", nil},
		{"/sub/dir/file.txt", "sub/dir/file.txt", nil},
		{"a//b/", "a/b", nil},
		{"a/./b", "a/b", nil},
		{"a/../b", "b", nil},
		{`a\b`, "a/b", nil},
		{"..", "", ErrEscape},
		{"/../etc/passwd", "", ErrEscape},
		{"a/../../x", "", ErrEscape},
		{`..\evil.txt`, "", ErrEscape},
		{"a\x00b", "", ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CleanRelPath(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJoinWithinRoot(t *testing.T) {
	t.Parallel()

	root := t.TempDir()

	got, err := JoinWithinRoot(root, "/sub/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "sub", "file.txt"), got)

	got, err = JoinWithinRoot(root, "/")
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(root), got)

	_, err = JoinWithinRoot(root, "../outside")
	assert.ErrorIs(t, err, ErrEscape)
}

func TestLookup(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "f.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "d"), 0o755))

	k, st, err := Lookup(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, File, k)
	assert.Equal(t, int64(1), st.Size())

	k, _, err = Lookup(filepath.Join(root, "d"))
	require.NoError(t, err)
	assert.Equal(t, Dir, k)

	k, st, err = Lookup(filepath.Join(root, "nope"))
	require.NoError(t, err)
	assert.Equal(t, Missing, k)
	assert.Nil(t, st)
}

func TestBaseName(t *testing.T) {
	t.Parallel()

	tests := map[string]string{
		"a.txt":                "a.txt",
		"../evil.txt":          "evil.txt",
		"sub/evil.txt":         "evil.txt",
		`C:\Users\me\pic.png`:  "pic.png",
		"/abs/path/report.pdf": "report.pdf",
		"..":                   "",
		"dir/":                 "",
		"":                     "",
		" spaced name.txt":     " spaced name.txt",
	}
	for in, want := range tests {
		assert.Equal(t, want, BaseName(in), in)
	}
}
