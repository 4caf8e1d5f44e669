// Package backend defines the seam vfisk's Session persists its single
// whole-image file through (spec.md §6: "a single opaque binary at a
// configurable path"), instead of binding fs.Session directly to *os.File.
package backend

import (
	"errors"
	"io"
	"io/fs"
	"os"
)

var (
	ErrIncorrectOpenMode = errors.New("image not open for write")
	ErrNotSuitable       = errors.New("backing file is not suitable as a vfisk image")
)

// File is the minimal read/seek/close surface Session.load needs to read an
// existing image back in full on startup.
type File interface {
	fs.File
	io.ReaderAt
	io.Seeker
	io.Closer
}

// WritableFile additionally supports the WriteAt call Session.save issues,
// at offset 0, after every mutating operation (spec.md §4.7).
type WritableFile interface {
	File
	io.WriterAt
}

// Storage is the handle fs.Open/Session.save/Session.load are written
// against: one image file, opened once per process under the
// single-logged-in-principal model of spec.md §5.
type Storage interface {
	File
	// Sys exposes the underlying *os.File so Session.save can take the
	// advisory exclusive flock described in SPEC_FULL.md §5 around each
	// whole-image write.
	Sys() (*os.File, error)
	// Writable returns the WriteAt handle Session.save writes the encoded
	// image triple through; it fails with ErrIncorrectOpenMode if the image
	// was opened read-only.
	Writable() (WritableFile, error)
}
