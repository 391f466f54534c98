package fsutil

import (
	"errors"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

var (
	ErrEscape  = errors.New("path escapes served root")
	ErrInvalid = errors.New("invalid path")
)

// CleanRelPath takes a user path like "", ".", "/a/b", "a//b", and returns a
// slash-based, no-leading-slash relative path ("" means root). Any ".."
// segment that would climb above the root is rejected rather than clamped.
func CleanRelPath(p string) (string, error) {
	if strings.Contains(p, "\x00") {
		return "", ErrInvalid
	}
	p = strings.ReplaceAll(p, "\\", "/")
	depth := 0
	for _, seg := range strings.Split(p, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", ErrEscape
			}
		default:
			depth++
		}
	}
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." {
		return "", nil
	}
	return p, nil
}

// JoinWithinRoot returns an absolute filesystem path under root for a given rel
// path, or ErrEscape.
func JoinWithinRoot(rootAbs string, rel string) (string, error) {
	rel, err := CleanRelPath(rel)
	if err != nil {
		return "", err
	}
	rootClean := filepath.Clean(rootAbs)
	if rel == "" {
		return rootClean, nil
	}
	absClean := filepath.Clean(filepath.Join(rootClean, filepath.FromSlash(rel)))
	if absClean != rootClean && !strings.HasPrefix(absClean, rootClean+string(filepath.Separator)) {
		return "", ErrEscape
	}
	return absClean, nil
}

// Kind is what a resolved path currently refers to.
type Kind int

const (
	Missing Kind = iota
	File
	Dir
)

// Lookup stats abs (following symlinks). A path that does not exist is
// Missing with a nil error; other stat failures are returned.
func Lookup(abs string) (Kind, fs.FileInfo, error) {
	st, err := os.Stat(abs)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Missing, nil, nil
		}
		return Missing, nil, err
	}
	if st.IsDir() {
		return Dir, st, nil
	}
	return File, st, nil
}

// BaseName keeps only the final path component of a client-supplied filename,
// treating both '/' and '\' as separators. It returns "" when nothing usable
// remains ("", ".", "..").
func BaseName(name string) string {
	name = strings.ReplaceAll(name, "\x00", "")
	if i := strings.LastIndexAny(name, `/\`); i >= 0 {
		name = name[i+1:]
	}
	switch strings.TrimSpace(name) {
	case "", ".", "..":
		return ""
	}
	return name
}
