// Package transfer streams a single file to an HTTP client in fixed-size
// chunks, flushing after each one.
package transfer

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
)

const DefaultChunkSize = 8192

// ErrOpen wraps failures that happen before any header is written, so the
// caller can still answer with an error status.
var ErrOpen = errors.New("cannot open file")

// Result describes how a stream ended. Aborted means the client went away;
// that is a normal outcome, not an error.
type Result struct {
	Size    int64
	Sent    int64
	Aborted bool
}

// Stream sends the whole file at abs with status 200. Any Range header on r
// is ignored even though Accept-Ranges is advertised; the full body is always
// sent.
//
// An error is returned only for failures on the server side. Errors matching
// ErrOpen mean nothing has been written yet; any other error happened after
// the header was sent.
func Stream(w http.ResponseWriter, r *http.Request, abs string, chunkSize int) (Result, error) {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	f, err := os.Open(abs)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrOpen, err)
	}
	if st.IsDir() {
		return Result{}, fmt.Errorf("%w: %s is a directory", ErrOpen, st.Name())
	}
	res := Result{Size: st.Size()}

	h := w.Header()
	h.Set("Content-Length", strconv.FormatInt(res.Size, 10))
	h.Set("Accept-Ranges", "bytes")
	h.Set("Content-Type", ContentType(st.Name()))
	w.WriteHeader(http.StatusOK)
	if r.Method == http.MethodHead {
		return res, nil
	}

	ctx := r.Context()
	rc := http.NewResponseController(w)
	// cap at the stat'd size so a file growing underneath us cannot overrun Content-Length
	src := io.LimitReader(f, res.Size)
	buf := make([]byte, chunkSize)
	for {
		if ctx.Err() != nil {
			res.Aborted = true
			return res, nil
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			wn, werr := w.Write(buf[:n])
			res.Sent += int64(wn)
			if werr != nil {
				res.Aborted = true
				return res, nil
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				res.Aborted = true
				return res, nil
			}
		}
		if errors.Is(rerr, io.EOF) {
			break
		}
		if rerr != nil {
			return res, fmt.Errorf("read after %d bytes: %w", res.Sent, rerr)
		}
	}
	if res.Sent < res.Size {
		return res, fmt.Errorf("file shrank during transfer: sent %d of %d bytes", res.Sent, res.Size)
	}
	return res, nil
}
