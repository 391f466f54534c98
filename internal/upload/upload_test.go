package upload

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"

	"lanshare/internal/fileops"
	"lanshare/internal/listing"
)

func newManager(t *testing.T, max int64) (string, *Manager) {
	t.Helper()
	root := t.TempDir()
	return root, New(root, max, nil)
}

func fileBytes(t *testing.T, path string) []byte {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return b
}

func TestStore_TwoParts(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 1<<20)

	body := buildBody(t,
		filePart{"file", "a.txt", []byte("first file")},
		filePart{"file", "b.txt", []byte{0, 1, 2, '\r', '\n'}},
	)
	stored, err := m.Store("", body, testBoundary)
	require.NoError(t, err)
	require.Len(t, stored, 2)

	assert.Equal(t, []byte("first file"), fileBytes(t, filepath.Join(root, "a.txt")))
	assert.Equal(t, []byte{0, 1, 2, '\r', '\n'}, fileBytes(t, filepath.Join(root, "b.txt")))

	sum := blake2b.Sum256([]byte("first file"))
	assert.Equal(t, fileops.StoredFile{Name: "a.txt", Size: 10, Blake2b: hex.EncodeToString(sum[:])}, stored[0])
}

func TestStore_StripsDirectoryComponents(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 1<<20)
	outside := filepath.Dir(root)

	body := buildBody(t,
		filePart{"file", "../evil.txt", []byte("one")},
		filePart{"file", "sub/evil2.txt", []byte("two")},
	)
	_, err := m.Store("", body, testBoundary)
	require.NoError(t, err)

	assert.Equal(t, []byte("one"), fileBytes(t, filepath.Join(root, "evil.txt")))
	assert.Equal(t, []byte("two"), fileBytes(t, filepath.Join(root, "evil2.txt")))
	assert.NoFileExists(t, filepath.Join(outside, "evil.txt"))
	assert.NoDirExists(t, filepath.Join(root, "sub"))
}

func TestStore_WindowsPathFilename(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 1<<20)

	body := []byte("--" + testBoundary + "\r\n" +
		"Content-Disposition: form-data; name=\"file\"; filename=\"C:\\Users\\me\\photo.png\"\r\n\r\n" +
		"png\r\n--" + testBoundary + "--\r\n")
	_, err := m.Store("", body, testBoundary)
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), fileBytes(t, filepath.Join(root, "photo.png")))
}

func TestStore_OverwritesAndLeavesNoStaging(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 1<<20)
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("old contents that are longer"), 0o644))

	_, err := m.Store("", buildBody(t, filePart{"file", "a.txt", []byte("new")}), testBoundary)
	require.NoError(t, err)

	assert.Equal(t, []byte("new"), fileBytes(t, filepath.Join(root, "a.txt")))
	ents, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, ents, 1, "staging file must be renamed away")
}

func TestStore_SkipsFieldsAndUnusableNames(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 1<<20)

	body := buildBody(t,
		filePart{field: "comment", content: []byte("not a file")},
		filePart{"file", "..", []byte("dots")},
		filePart{"file", "kept.txt", []byte("kept")},
	)
	stored, err := m.Store("", body, testBoundary)
	require.NoError(t, err)
	require.Len(t, stored, 1)

	ents, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, ents, 1)
	assert.Equal(t, "kept.txt", ents[0].Name())
}

func TestStore_PartialFailureKeepsEarlierParts(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 1<<20)
	require.NoError(t, os.Mkdir(filepath.Join(root, "taken"), 0o755))

	body := buildBody(t,
		filePart{"file", "first.txt", []byte("1")},
		filePart{"file", "taken", []byte("2")},
		filePart{"file", "third.txt", []byte("3")},
	)
	stored, err := m.Store("", body, testBoundary)
	require.Error(t, err)
	assert.Equal(t, fileops.KindServer, fileops.KindOf(err))
	assert.NotContains(t, err.Error(), root)

	require.Len(t, stored, 1)
	assert.FileExists(t, filepath.Join(root, "first.txt"))
	assert.NoFileExists(t, filepath.Join(root, "third.txt"))
}

func TestStore_UnterminatedIsServerError(t *testing.T) {
	t.Parallel()
	_, m := newManager(t, 1<<20)

	body := []byte("--" + testBoundary + "\r\nContent-Disposition: form-data; name=\"f\"; filename=\"x\"\r\n\r\nabc")
	_, err := m.Store("", body, testBoundary)
	require.Error(t, err)
	assert.Equal(t, fileops.KindServer, fileops.KindOf(err))
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestStore_TargetDirectory(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 1<<20)
	require.NoError(t, os.Mkdir(filepath.Join(root, "docs"), 0o755))
	body := buildBody(t, filePart{"file", "d.txt", []byte("d")})

	_, err := m.Store("docs", body, testBoundary)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, "docs", "d.txt"))

	_, err = m.Store("missing", body, testBoundary)
	assert.Equal(t, fileops.KindNotFound, fileops.KindOf(err))

	_, err = m.Store("../up", body, testBoundary)
	assert.Equal(t, fileops.KindBadRequest, fileops.KindOf(err))
}

// Concurrent uploads of one name are serialised: the result is exactly one
// of the payloads, never a mix.
func TestStore_ConcurrentSameName(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 1<<22)

	payloads := make([][]byte, 6)
	for i := range payloads {
		payloads[i] = bytes.Repeat([]byte{byte('a' + i)}, 256<<10)
	}

	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(p []byte) {
			defer wg.Done()
			_, err := m.Store("", buildBody(t, filePart{"file", "same.bin", p}), testBoundary)
			assert.NoError(t, err)
		}(p)
	}
	wg.Wait()

	got := fileBytes(t, filepath.Join(root, "same.bin"))
	matched := false
	for _, p := range payloads {
		if bytes.Equal(got, p) {
			matched = true
		}
	}
	assert.True(t, matched, "final file must equal one whole payload")
	assert.Equal(t, 0, m.locks.Len())
}

type explodingReader struct{ t *testing.T }

func (e explodingReader) Read([]byte) (int, error) {
	e.t.Error("body must not be read when the declared length is over the limit")
	return 0, io.EOF
}

func TestReadBody_DeclaredTooLarge(t *testing.T) {
	t.Parallel()
	_, m := newManager(t, 10)

	req := httptest.NewRequest(http.MethodPost, "/upload", explodingReader{t})
	req.ContentLength = 11
	_, err := m.ReadBody(httptest.NewRecorder(), req)
	require.Error(t, err)
	assert.Equal(t, fileops.KindTooLarge, fileops.KindOf(err))
}

func TestReadBody_UndeclaredTooLarge(t *testing.T) {
	t.Parallel()
	_, m := newManager(t, 10)

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(make([]byte, 64)))
	req.ContentLength = -1
	_, err := m.ReadBody(httptest.NewRecorder(), req)
	assert.Equal(t, fileops.KindTooLarge, fileops.KindOf(err))
}

func TestReadBody_WithinLimit(t *testing.T) {
	t.Parallel()
	_, m := newManager(t, 10)

	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader([]byte("0123456789")))
	body, err := m.ReadBody(httptest.NewRecorder(), req)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789"), body)
}

func TestBoundary(t *testing.T) {
	t.Parallel()

	b, err := Boundary("multipart/form-data; boundary=" + testBoundary)
	require.NoError(t, err)
	assert.Equal(t, testBoundary, b)

	b, err = Boundary(`multipart/form-data; boundary="quoted:boundary"`)
	require.NoError(t, err)
	assert.Equal(t, "quoted:boundary", b)

	for _, ct := range []string{"", "application/json", "multipart/form-data", "text/plain; boundary=x"} {
		_, err := Boundary(ct)
		assert.Equal(t, fileops.KindBadRequest, fileops.KindOf(err), fmt.Sprintf("%q", ct))
	}
}

func TestReceive_SizeCheckedBeforeContentType(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 10)

	req := httptest.NewRequest(http.MethodPost, "/upload", explodingReader{t})
	req.ContentLength = 100
	req.Header.Set("Content-Type", "text/plain")
	_, err := m.Receive(httptest.NewRecorder(), req, "")
	assert.Equal(t, fileops.KindTooLarge, fileops.KindOf(err))

	ents, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, ents)
}

func TestReceive_Stores(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 1<<20)

	body := buildBody(t, filePart{"file", "r.txt", []byte("received")})
	req := httptest.NewRequest(http.MethodPost, "/upload", bytes.NewReader(body))
	req.Header.Set("Content-Type", "multipart/form-data; boundary="+testBoundary)
	stored, err := m.Receive(httptest.NewRecorder(), req, "")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, []byte("received"), fileBytes(t, filepath.Join(root, "r.txt")))
}

func TestStore_RejectsStagingShapedName(t *testing.T) {
	t.Parallel()
	root, m := newManager(t, 1<<20)
	reserved := listing.StagingName(uuid.New())

	body := buildBody(t,
		filePart{"file", "ok.txt", []byte("kept")},
		filePart{"file", reserved, []byte("hidden")},
	)
	stored, err := m.Store("", body, testBoundary)
	require.Error(t, err)
	assert.Equal(t, fileops.KindBadRequest, fileops.KindOf(err))
	require.Len(t, stored, 1)
	assert.Equal(t, "ok.txt", stored[0].Name)
	assert.NoFileExists(t, filepath.Join(root, reserved))

	// names that only look similar are ordinary files
	body = buildBody(t, filePart{"file", ".lanshare-notes.part", []byte("visible")})
	_, err = m.Store("", body, testBoundary)
	require.NoError(t, err)
	assert.Equal(t, []byte("visible"), fileBytes(t, filepath.Join(root, ".lanshare-notes.part")))
}
