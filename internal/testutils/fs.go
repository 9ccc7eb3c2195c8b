package testutils

import (
	"errors"
	"os"
	"sync"

	"github.com/spf13/afero"
)

var ErrDiskFull = errors.New("disk full")

// PartialWriteFs makes the next Failures files opened for appending store only the first
// half of each Write and return ErrDiskFull.
type PartialWriteFs struct {
	afero.Fs

	mu       sync.Mutex
	Failures int
}

func (fs *PartialWriteFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := fs.Fs.OpenFile(name, flag, perm)
	if err != nil || flag&os.O_APPEND == 0 {
		return f, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()
	if fs.Failures == 0 {
		return f, nil
	}
	fs.Failures--
	return &halfWriteFile{File: f}, nil
}

type halfWriteFile struct {
	afero.File
}

func (f *halfWriteFile) Write(p []byte) (int, error) {
	n, err := f.File.Write(p[:len(p)/2])
	if err != nil {
		return n, err
	}
	return n, ErrDiskFull
}
