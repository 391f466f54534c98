// Package httpserver maps HTTP requests onto the listing, transfer, upload
// and mutation components and renders their results as HTML or JSON.
package httpserver

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"lanshare/internal/config"
	"lanshare/internal/fileops"
	"lanshare/internal/fsutil"
	"lanshare/internal/listing"
	"lanshare/internal/logging"
	"lanshare/internal/transfer"
	"lanshare/internal/upload"
)

// maxFormSize bounds the urlencoded bodies of /delete and /rename.
const maxFormSize = 64 << 10

type Options struct {
	Config config.Config
}

type Server struct {
	cfg     config.Config
	ops     *fileops.Ops
	uploads *upload.Manager
	page    *template.Template
	log     zerolog.Logger
}

// New builds a server for opts.Config. The root must already exist; sizes
// left at zero fall back to the defaults.
func New(opts Options) (*Server, error) {
	cfg := opts.Config
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, errors.New("root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("abs root: %w", err)
	}
	kind, _, err := fsutil.Lookup(root)
	if err != nil {
		return nil, fmt.Errorf("stat root: %w", err)
	}
	if kind != fsutil.Dir {
		return nil, fmt.Errorf("root %s is not a directory", root)
	}
	cfg.Root = root
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = config.DefaultMaxUploadSize
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = transfer.DefaultChunkSize
	}

	page, err := parsePage()
	if err != nil {
		return nil, fmt.Errorf("parse page template: %w", err)
	}
	// one lock table so uploads, renames and deletes of a name exclude each other
	locks := fileops.NewLocks()
	return &Server{
		cfg:     cfg,
		ops:     fileops.New(root, locks),
		uploads: upload.New(root, cfg.MaxUploadSize, locks),
		page:    page,
		log:     logging.Get("http"),
	}, nil
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// GET patterns also match HEAD
	mux.HandleFunc("GET /{path...}", s.handleGet)

	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("POST /delete", s.handleDelete)
	mux.HandleFunc("DELETE /delete", s.handleDelete)
	mux.HandleFunc("POST /rename", s.handleRename)
	mux.HandleFunc("PUT /rename", s.handleRename)

	// any other POST is the old form upload
	mux.HandleFunc("POST /", s.handleFormUpload)

	return s.withLogging(withHeaders(mux))
}

// --- handlers ---

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	rel, err := fsutil.CleanRelPath(strings.TrimPrefix(r.URL.Path, "/"))
	if err != nil {
		s.fail(w, r, fileops.Wrap(fileops.KindBadRequest, "invalid path", err))
		return
	}
	abs, err := fsutil.JoinWithinRoot(s.cfg.Root, rel)
	if err != nil {
		s.fail(w, r, fileops.Wrap(fileops.KindBadRequest, "invalid path", err))
		return
	}
	kind, _, err := fsutil.Lookup(abs)
	if err != nil {
		// not-a-directory and permission errors read as missing to clients
		s.log.Debug().Err(err).Str("path", rel).Msg("lookup failed")
		kind = fsutil.Missing
	}
	switch kind {
	case fsutil.Dir:
		s.serveDir(w, r, rel, abs)
	case fsutil.File:
		if r.URL.Query().Has("thumb") {
			s.serveThumb(w, r, rel, abs)
			return
		}
		s.serveFile(w, r, rel, abs)
	default:
		s.fail(w, r, fileops.Errorf(fileops.KindNotFound, "File not found"))
	}
}

type listResponse struct {
	Path    string          `json:"path"`
	Entries []listing.Entry `json:"entries"`
}

func (s *Server) serveDir(w http.ResponseWriter, r *http.Request, rel, abs string) {
	entries, err := listing.Read(abs)
	if err != nil {
		s.fail(w, r, fileops.Wrap(fileops.KindNotFound, "No permission to list directory", err))
		return
	}
	if r.URL.Query().Get("format") == "json" {
		writeJSON(w, http.StatusOK, listResponse{Path: rel, Entries: entries})
		return
	}
	b, err := renderPage(s.page, buildPage(rel, entries, s.cfg.MaxUploadSize))
	if err != nil {
		s.fail(w, r, fileops.Wrap(fileops.KindServer, "render listing: "+err.Error(), err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, rel, abs string) {
	res, err := transfer.Stream(w, r, abs, s.cfg.ChunkSize)
	switch {
	case errors.Is(err, transfer.ErrOpen):
		if errors.Is(err, fs.ErrNotExist) {
			s.fail(w, r, fileops.Errorf(fileops.KindNotFound, "File not found"))
			return
		}
		s.fail(w, r, fileops.Wrap(fileops.KindServer, "Error serving file", err))
	case err != nil:
		// headers are already out; all that is left is to drop the connection
		s.log.Warn().Err(err).Str("path", rel).Int64("sent", res.Sent).Msg("transfer failed")
	case res.Aborted:
		s.log.Debug().Str("path", rel).Int64("sent", res.Sent).Int64("size", res.Size).Msg("client went away")
	}
}

func (s *Server) serveThumb(w http.ResponseWriter, r *http.Request, rel, abs string) {
	if !transfer.IsImage(rel) {
		s.fail(w, r, fileops.Errorf(fileops.KindNotFound, "No thumbnail for this file"))
		return
	}
	b, err := renderThumb(abs, thumbSize(r.URL.Query().Get("thumb")))
	if err != nil {
		s.log.Debug().Err(err).Str("path", rel).Msg("thumbnail failed")
		s.fail(w, r, fileops.Errorf(fileops.KindNotFound, "No thumbnail for this file"))
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	dir := r.URL.Query().Get("dir")
	stored, err := s.uploads.Receive(w, r, dir)
	if err != nil {
		res := fileops.Failure(err)
		res.Files = stored
		s.logFailure(r, err)
		writeJSON(w, fileops.StatusCode(fileops.KindOf(err)), res)
		return
	}
	writeJSON(w, http.StatusOK, fileops.Result{Status: fileops.StatusSuccess, Files: stored})
}

// handleFormUpload serves plain HTML form posts: store into the root, then
// send the browser back to the listing.
func (s *Server) handleFormUpload(w http.ResponseWriter, r *http.Request) {
	if _, err := s.uploads.Receive(w, r, ""); err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Location", "/")
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusSeeOther)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ops.Delete(form.Get("filename")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileops.Success("File deleted successfully"))
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if err := s.ops.Rename(form.Get("old_name"), form.Get("new_name")); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fileops.Success("File renamed successfully"))
}

// --- helpers ---

// readForm decodes a urlencoded request body. An empty body falls back to
// the query string.
func readForm(w http.ResponseWriter, r *http.Request) (url.Values, error) {
	b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormSize))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return nil, fileops.Errorf(fileops.KindTooLarge, "Request body too large")
		}
		return nil, fileops.Wrap(fileops.KindServer, "read request: "+err.Error(), err)
	}
	if len(b) == 0 {
		return r.URL.Query(), nil
	}
	v, err := url.ParseQuery(string(b))
	if err != nil {
		return nil, fileops.Wrap(fileops.KindBadRequest, "Malformed form body", err)
	}
	return v, nil
}

// fail answers err as an OperationResult with the status for its kind.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	s.logFailure(r, err)
	writeJSON(w, fileops.StatusCode(fileops.KindOf(err)), fileops.Failure(err))
}

func (s *Server) logFailure(r *http.Request, err error) {
	ev := s.log.Warn()
	if fileops.KindOf(err) == fileops.KindNotFound {
		ev = s.log.Debug()
	}
	ev.Str("method", r.Method).
		Str("path", r.URL.Path).
		Str("kind", fileops.KindOf(err).String()).
		Str("message", err.Error()).
		AnErr("cause", errors.Unwrap(err)).
		Msg("request failed")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"status":"error","message":"encode response"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}
