//go:build !linux

package fileops

import "os"

func renameNoReplace(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}
