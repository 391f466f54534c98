// Package fileops performs rename and delete inside the served root and
// defines the result and error shapes shared by every mutating endpoint.
package fileops

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"lanshare/internal/fsutil"
	"lanshare/internal/logging"
)

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Result is the JSON body of every mutation and upload response.
type Result struct {
	Status  string       `json:"status"`
	Message string       `json:"message,omitempty"`
	Files   []StoredFile `json:"files,omitempty"`
}

// StoredFile describes one persisted upload part.
type StoredFile struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Blake2b string `json:"blake2b"`
}

func Success(msg string) Result { return Result{Status: StatusSuccess, Message: msg} }

// Failure builds the error body for err.
func Failure(err error) Result { return Result{Status: StatusError, Message: err.Error()} }

type Ops struct {
	root  string
	locks *Locks
	log   zerolog.Logger
}

// New returns Ops rooted at rootAbs. locks may be shared with the uploader so
// that uploads, renames and deletes of one name never overlap.
func New(rootAbs string, locks *Locks) *Ops {
	if locks == nil {
		locks = NewLocks()
	}
	return &Ops{root: filepath.Clean(rootAbs), locks: locks, log: logging.Get("fileops")}
}

func (o *Ops) resolve(name string) (string, error) {
	abs, err := fsutil.JoinWithinRoot(o.root, name)
	if err != nil {
		return "", Wrap(KindBadRequest, "invalid path: "+name, err)
	}
	if abs == o.root {
		return "", Errorf(KindBadRequest, "refusing to modify the shared root")
	}
	return abs, nil
}

// Delete removes a file, or a directory only when it is empty. A non-empty
// directory fails with the filesystem's error and nothing inside is touched.
func (o *Ops) Delete(name string) error {
	if strings.TrimSpace(name) == "" {
		return Errorf(KindBadRequest, "No filename provided")
	}
	abs, err := o.resolve(name)
	if err != nil {
		return err
	}
	unlock := o.locks.Lock(abs)
	defer unlock()

	if _, err := os.Lstat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Wrap(KindNotFound, "File not found", err)
		}
		return Wrap(KindServer, describe(name, err), err)
	}
	// os.Remove falls back to rmdir(2), which refuses non-empty directories.
	if err := os.Remove(abs); err != nil {
		return Wrap(KindServer, describe(name, err), err)
	}
	o.log.Info().Str("name", name).Msg("deleted")
	return nil
}

// Rename moves oldName to newName. It never overwrites: an existing target is
// a conflict and both files are left as they were.
func (o *Ops) Rename(oldName, newName string) error {
	if oldName == "" || newName == "" {
		return Errorf(KindBadRequest, "Both old_name and new_name required")
	}
	oldAbs, err := o.resolve(oldName)
	if err != nil {
		return err
	}
	newAbs, err := o.resolve(newName)
	if err != nil {
		return err
	}
	unlock := o.locks.Lock(oldAbs, newAbs)
	defer unlock()

	if _, err := os.Lstat(oldAbs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Wrap(KindNotFound, "File not found", err)
		}
		return Wrap(KindServer, describe(oldName, err), err)
	}
	if _, err := os.Lstat(newAbs); err == nil {
		return Errorf(KindConflict, "File with new name already exists")
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Wrap(KindServer, describe(newName, err), err)
	}
	if err := renameNoReplace(oldAbs, newAbs); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return Wrap(KindConflict, "File with new name already exists", err)
		}
		return Wrap(KindServer, describe(oldName, err), err)
	}
	o.log.Info().Str("from", oldName).Str("to", newName).Msg("renamed")
	return nil
}
