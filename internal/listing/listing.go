// Package listing enumerates one directory of the served tree. Nothing is
// cached; each call reflects the filesystem at that moment.
package listing

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// ErrList is returned when a directory cannot be read. Callers answer it as
// not-found without telling "missing" apart from "not readable".
var ErrList = errors.New("cannot list directory")

// StagingPrefix and StagingSuffix mark in-flight upload files, which are
// never listed.
const (
	StagingPrefix = ".lanshare-"
	StagingSuffix = ".part"
)

// Entry is one listed item. Size is set for files only, zero-byte files
// included, and is nil for directories.
type Entry struct {
	Name  string  `json:"name"`
	IsDir bool    `json:"isDirectory"`
	Size  *uint64 `json:"size,omitempty"`
}

// Read returns the entries of dir: directories first, then files, each group
// ordered case-insensitively.
func Read(dir string) ([]Entry, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrList, err)
	}
	out := make([]Entry, 0, len(ents))
	for _, e := range ents {
		name := e.Name()
		if IsStaging(name) {
			continue
		}
		it := Entry{Name: name}
		// Stat follows symlinks so a link to a directory lists as one.
		st, err := os.Stat(filepath.Join(dir, name))
		var size uint64
		switch {
		case err != nil:
			// dangling link or vanished entry: show it as a zero-size file
			it.Size = &size
		case st.IsDir():
			it.IsDir = true
		default:
			size = uint64(st.Size())
			it.Size = &size
		}
		out = append(out, it)
	}
	Sort(out)
	return out, nil
}

// Sort orders entries directories first, then by lower-cased name. Exact name
// breaks ties so "A" and "a" always come out in the same order.
func Sort(items []Entry) {
	sort.Slice(items, func(i, j int) bool {
		if items[i].IsDir != items[j].IsDir {
			return items[i].IsDir
		}
		li, lj := strings.ToLower(items[i].Name), strings.ToLower(items[j].Name)
		if li != lj {
			return li < lj
		}
		return items[i].Name < items[j].Name
	})
}

// StagingName is the in-flight file name for upload id.
func StagingName(id uuid.UUID) string {
	return StagingPrefix + id.String() + StagingSuffix
}

// IsStaging reports whether name has exactly the StagingName shape.
func IsStaging(name string) bool {
	mid, ok := strings.CutPrefix(name, StagingPrefix)
	if !ok {
		return false
	}
	mid, ok = strings.CutSuffix(mid, StagingSuffix)
	if !ok || len(mid) != 36 {
		return false
	}
	_, err := uuid.Parse(mid)
	return err == nil
}
