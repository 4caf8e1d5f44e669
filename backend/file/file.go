// Package file implements backend.Storage over a single on-disk image
// file: the "single opaque binary at a configurable path" vfisk's Session
// loads on init and saves after every mutating operation (spec.md §6/§4.7).
package file

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/vfisk/vfisk/backend"
)

type rawBackend struct {
	storage  fs.File
	readOnly bool
}

// New wraps an already-open fs.File (e.g. an in-memory fake in tests) as a
// backend.Storage, bypassing the path-based lifecycle OpenFromPath/
// CreateFromPath/OpenOrCreate implement.
func New(f fs.File, readOnly bool) backend.Storage {
	return rawBackend{
		storage:  f,
		readOnly: readOnly,
	}
}

// OpenFromPath opens an existing vfisk image at pathName: the "if present,
// it is loaded verbatim" branch of spec.md §6. pathName must already exist;
// use CreateFromPath (or OpenOrCreate) to format a fresh image instead.
func OpenFromPath(pathName string, readOnly bool) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass a path to the disk image")
	}

	if _, err := os.Stat(pathName); os.IsNotExist(err) {
		return nil, fmt.Errorf("image %s does not exist", pathName)
	}

	openMode := os.O_RDONLY

	if !readOnly {
		openMode |= os.O_RDWR | os.O_EXCL
	}

	f, err := os.OpenFile(pathName, openMode, 0o600)
	if err != nil {
		return nil, fmt.Errorf("could not open image %s with mode %v: %w", pathName, openMode, err)
	}

	return rawBackend{
		storage:  f,
		readOnly: readOnly,
	}, nil
}

// CreateFromPath creates a fresh vfisk image of size bytes at pathName: the
// "if absent, format produces it" branch of spec.md §6. pathName must not
// already exist. size should be large enough to hold fs.TotalBlocks blocks
// of fs.BlockSize bytes plus the encoded image triple's framing overhead;
// callers then pass fresh=true to fs.Open so Session.Format runs against it.
func CreateFromPath(pathName string, size int64) (backend.Storage, error) {
	if pathName == "" {
		return nil, errors.New("must pass a path for the new disk image")
	}
	if size <= 0 {
		return nil, errors.New("must pass a valid image size to create")
	}
	f, err := os.OpenFile(pathName, os.O_RDWR|os.O_EXCL|os.O_CREATE, 0o666)
	if err != nil {
		return nil, fmt.Errorf("could not create image %s: %w", pathName, err)
	}
	err = os.Truncate(pathName, size)
	if err != nil {
		return nil, fmt.Errorf("could not size image %s to %d bytes: %w", pathName, size, err)
	}

	return rawBackend{
		storage:  f,
		readOnly: false,
	}, nil
}

// OpenOrCreate implements spec.md §6's startup decision in one call: "On
// startup, if absent, format produces it; if present, it is loaded
// verbatim." If the image at pathName already exists it is opened
// read-write (fresh=false, caller should fs.Open(..., fresh=false) to load
// it); otherwise a new image of size bytes is created (fresh=true, caller
// should fs.Open(..., fresh=true) to format it).
func OpenOrCreate(pathName string, size int64) (storage backend.Storage, fresh bool, err error) {
	if _, statErr := os.Stat(pathName); os.IsNotExist(statErr) {
		storage, err = CreateFromPath(pathName, size)
		return storage, true, err
	}
	storage, err = OpenFromPath(pathName, false)
	return storage, false, err
}

// backend.Storage interface guard
var _ backend.Storage = (*rawBackend)(nil)

// Sys exposes the underlying *os.File so Session.save can take its
// advisory flock around each whole-image write (SPEC_FULL.md §5).
func (f rawBackend) Sys() (*os.File, error) {
	if osFile, ok := f.storage.(*os.File); ok {
		return osFile, nil
	}
	return nil, backend.ErrNotSuitable
}

// Writable returns the WriteAt handle Session.save writes the encoded
// image triple through after every mutating operation.
func (f rawBackend) Writable() (backend.WritableFile, error) {
	if rwFile, ok := f.storage.(backend.WritableFile); ok {
		if !f.readOnly {
			return rwFile, nil
		}

		return nil, backend.ErrIncorrectOpenMode
	}
	return nil, backend.ErrNotSuitable
}

func (f rawBackend) Stat() (fs.FileInfo, error) {
	return f.storage.Stat()
}

func (f rawBackend) Read(b []byte) (int, error) {
	return f.storage.Read(b)
}

func (f rawBackend) Close() error {
	return f.storage.Close()
}

func (f rawBackend) ReadAt(p []byte, off int64) (n int, err error) {
	if readerAt, ok := f.storage.(io.ReaderAt); ok {
		return readerAt.ReadAt(p, off)
	}
	return -1, backend.ErrNotSuitable
}

func (f rawBackend) Seek(offset int64, whence int) (int64, error) {
	if seeker, ok := f.storage.(io.Seeker); ok {
		return seeker.Seek(offset, whence)
	}
	return -1, backend.ErrNotSuitable
}
