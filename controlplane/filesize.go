package controlplane

import (
	"os"
)

// FileSizer reports how many bytes of a file are on disk.
type FileSizer interface {
	FileSize(path string) (uint64, error)
}

type OSFileSizer struct{}

// FileSize returns 0 for a file that does not exist yet, nothing was
// received in that case.
func (OSFileSizer) FileSize(path string) (uint64, error) {
	fi, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(fi.Size()), nil
}
