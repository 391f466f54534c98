// Package upload stores the file parts of a multipart/form-data request
// inside the served root.
//
// The request body is buffered whole (bounded by the configured maximum),
// split into parts, and each part with a filename is written under its base
// name, replacing any existing file. Parts are written one after another; a
// failure part way through leaves earlier parts in place.
package upload

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"

	"lanshare/internal/fileops"
	"lanshare/internal/fsutil"
	"lanshare/internal/listing"
	"lanshare/internal/logging"
)

type Manager struct {
	rootAbs string
	maxSize int64
	locks   *fileops.Locks
	log     zerolog.Logger
}

// New returns a Manager writing under rootAbs. locks should be the table
// shared with fileops.Ops.
func New(rootAbs string, maxSize int64, locks *fileops.Locks) *Manager {
	if locks == nil {
		locks = fileops.NewLocks()
	}
	return &Manager{
		rootAbs: filepath.Clean(rootAbs),
		maxSize: maxSize,
		locks:   locks,
		log:     logging.Get("upload"),
	}
}

// Boundary validates a Content-Type header and returns its boundary token.
func Boundary(contentType string) (string, error) {
	mt, params, err := mime.ParseMediaType(contentType)
	if err != nil || mt != "multipart/form-data" {
		return "", fileops.Errorf(fileops.KindBadRequest, "Invalid upload request: expected multipart/form-data")
	}
	b := params["boundary"]
	if b == "" {
		return "", fileops.Errorf(fileops.KindBadRequest, "Invalid upload request: missing multipart boundary")
	}
	return b, nil
}

// Receive handles one upload request into dirRel: declared size first, then
// content type, then the body itself.
func (m *Manager) Receive(w http.ResponseWriter, r *http.Request, dirRel string) ([]fileops.StoredFile, error) {
	if r.ContentLength > m.maxSize {
		return nil, m.tooLarge(r.ContentLength)
	}
	boundary, err := Boundary(r.Header.Get("Content-Type"))
	if err != nil {
		return nil, err
	}
	body, err := m.ReadBody(w, r)
	if err != nil {
		return nil, err
	}
	return m.Store(dirRel, body, boundary)
}

func (m *Manager) tooLarge(n int64) error {
	return fileops.Errorf(fileops.KindTooLarge, "File too large: %d bytes exceeds the %d byte limit", n, m.maxSize)
}

// ReadBody buffers r's body. A declared Content-Length over the limit is
// rejected before anything is read; an undeclared body is cut off at the
// limit and rejected the same way.
func (m *Manager) ReadBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.ContentLength > m.maxSize {
		return nil, m.tooLarge(r.ContentLength)
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, m.maxSize))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, fileops.Errorf(fileops.KindTooLarge, "File too large: body exceeds the %d byte limit", m.maxSize)
		}
		return nil, fileops.Wrap(fileops.KindServer, "read upload: "+err.Error(), err)
	}
	return body, nil
}

// Store writes every file part of body into dirRel (relative to the root; ""
// is the root itself). It returns what was stored even when it fails part
// way.
func (m *Manager) Store(dirRel string, body []byte, boundary string) ([]fileops.StoredFile, error) {
	dirAbs, err := fsutil.JoinWithinRoot(m.rootAbs, dirRel)
	if err != nil {
		return nil, fileops.Wrap(fileops.KindBadRequest, "invalid path: "+dirRel, err)
	}
	kind, _, err := fsutil.Lookup(dirAbs)
	if err != nil {
		return nil, fileops.Wrap(fileops.KindServer, err.Error(), err)
	}
	if kind != fsutil.Dir {
		return nil, fileops.Errorf(fileops.KindNotFound, "Directory not found: %s", dirRel)
	}

	var stored []fileops.StoredFile
	rd := NewReader(body, boundary)
	for {
		p, err := rd.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stored, fileops.Wrap(fileops.KindServer, err.Error(), err)
		}
		if p.Filename == "" {
			continue
		}
		name := fsutil.BaseName(p.Filename)
		if name == "" {
			m.log.Warn().Str("filename", p.Filename).Msg("skipping part without a usable file name")
			continue
		}
		if listing.IsStaging(name) {
			// it would be stored but hidden from every listing
			return stored, fileops.Errorf(fileops.KindBadRequest, "Reserved file name: %s", name)
		}
		sf, err := m.persist(dirAbs, name, p.Content)
		if err != nil {
			return stored, fileops.Wrap(fileops.KindServer, err.Error(), err)
		}
		m.log.Info().Str("dir", dirRel).Str("name", sf.Name).Int64("size", sf.Size).Str("blake2b", sf.Blake2b).Msg("stored")
		stored = append(stored, sf)
	}
	return stored, nil
}

// persist stages content next to its destination and renames it into
// place, under the destination's name lock, so concurrent uploads of one
// name never interleave and readers never see a half-written file.
func (m *Manager) persist(dirAbs, name string, content []byte) (fileops.StoredFile, error) {
	dst := filepath.Join(dirAbs, name)
	unlock := m.locks.Lock(dst)
	defer unlock()

	if st, err := os.Stat(dst); err == nil && st.IsDir() {
		return fileops.StoredFile{}, fmt.Errorf("%s is a directory", name)
	}

	tmp := filepath.Join(dirAbs, listing.StagingName(uuid.New()))
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fileops.StoredFile{}, fmt.Errorf("create %s: %w", name, cause(err))
	}
	h, _ := blake2b.New256(nil)
	_, err = io.MultiWriter(f, h).Write(content)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return fileops.StoredFile{}, fmt.Errorf("write %s: %w", name, cause(err))
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return fileops.StoredFile{}, fmt.Errorf("store %s: %w", name, cause(err))
	}
	return fileops.StoredFile{
		Name:    name,
		Size:    int64(len(content)),
		Blake2b: hex.EncodeToString(h.Sum(nil)),
	}, nil
}

// cause strips the absolute path from filesystem errors so messages shown to
// clients only name the uploaded file.
func cause(err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return pe.Err
	}
	var le *os.LinkError
	if errors.As(err, &le) {
		return le.Err
	}
	return err
}
