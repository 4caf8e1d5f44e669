package fs

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
	"github.com/vfisk/vfisk/backend"
)

func init() {
	gob.Register(fileBytes{})
	gob.Register(dirEntries{})
	gob.Register(&freeListGroup{})
}

// diskImage is the whole-image triple (superblock, inodes, data blocks)
// described in spec.md §4.7, in a form encoding/gob can round-trip.
type diskImage struct {
	Superblock *superblock
	Inodes     map[int]*Inode
	Blocks     map[int]blockPayload
}

func (s *Session) snapshot() *diskImage {
	return &diskImage{
		Superblock: s.superblock,
		Inodes:     s.inodes.inodes,
		Blocks:     s.blocks.blocks,
	}
}

func (s *Session) restore(img *diskImage) {
	s.superblock = img.Superblock
	s.inodes = &inodeTable{inodes: img.Inodes}
	s.blocks = &blockStore{blocks: img.Blocks}
}

// save persists the entire image, per spec.md §4.7: "Every mutating op
// persists the image before returning success." When the backend exposes an
// *os.File and the advisory exclusive lock can be taken, it is held across
// the write; otherwise the write proceeds unlocked. See lock_unix.go /
// lock_other.go.
func (s *Session) save() error {
	if s.backend == nil {
		return nil
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.snapshot()); err != nil {
		return fmt.Errorf("vfisk: encoding image: %w", err)
	}
	writable, err := s.backend.Writable()
	if err != nil {
		return fmt.Errorf("vfisk: image not writable: %w", err)
	}
	var unlock func()
	if osFile, sysErr := s.backend.Sys(); sysErr == nil && osFile != nil {
		if u, lockErr := flockExclusive(osFile); lockErr == nil {
			unlock = u
		}
	}
	if unlock != nil {
		defer unlock()
	}
	if _, err := writable.WriteAt(buf.Bytes(), 0); err != nil {
		return fmt.Errorf("vfisk: writing image: %w", err)
	}
	s.metrics.observeSave(buf.Len())
	return nil
}

// load reads the whole image back from the backend, per spec.md §6: "if
// present, it is loaded verbatim."
func (s *Session) load() error {
	data, err := io.ReadAll(io.NewSectionReader(s.backend, 0, 1<<62))
	if err != nil {
		return fmt.Errorf("vfisk: reading image: %w", err)
	}
	var img diskImage
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&img); err != nil {
		return fmt.Errorf("vfisk: decoding image: %w", err)
	}
	s.restore(&img)
	return nil
}

// ExportSnapshot writes a compressed archival copy of the current in-memory
// image to w. This is an operator convenience outside the mutating
// operation path (SPEC_FULL.md §9); it never touches the live, randomly
// addressed image file.
func (s *Session) ExportSnapshot(w io.Writer, format CompressionFormat) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.snapshot()); err != nil {
		return fmt.Errorf("vfisk: encoding snapshot: %w", err)
	}
	switch format {
	case CompressionXZ:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("vfisk: opening xz writer: %w", err)
		}
		if _, err := xw.Write(buf.Bytes()); err != nil {
			return err
		}
		return xw.Close()
	case CompressionZstd:
		zw, err := zstd.NewWriter(w)
		if err != nil {
			return fmt.Errorf("vfisk: opening zstd writer: %w", err)
		}
		if _, err := zw.Write(buf.Bytes()); err != nil {
			return err
		}
		return zw.Close()
	default:
		return fmt.Errorf("vfisk: unknown snapshot compression format %v", format)
	}
}

// ImportSnapshot replaces the session's in-memory image with the contents
// of a compressed snapshot previously written by ExportSnapshot. The
// caller is responsible for calling save() (or letting the next mutating
// op do so) to persist it to the backing image file.
func (s *Session) ImportSnapshot(r io.Reader, format CompressionFormat) error {
	var rawReader io.Reader
	switch format {
	case CompressionXZ:
		xr, err := xz.NewReader(r)
		if err != nil {
			return fmt.Errorf("vfisk: opening xz reader: %w", err)
		}
		rawReader = xr
	case CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("vfisk: opening zstd reader: %w", err)
		}
		defer zr.Close()
		rawReader = zr
	default:
		return fmt.Errorf("vfisk: unknown snapshot compression format %v", format)
	}
	var img diskImage
	if err := gob.NewDecoder(rawReader).Decode(&img); err != nil {
		return fmt.Errorf("vfisk: decoding snapshot: %w", err)
	}
	s.restore(&img)
	logrus.WithField("format", format).Info("vfisk: imported snapshot")
	return nil
}

// CompressionFormat selects the archival codec used by ExportSnapshot /
// ImportSnapshot.
type CompressionFormat int

const (
	// CompressionXZ favors smaller archives at the cost of speed; grounded
	// on the teacher's go.mod dependency on github.com/ulikunitz/xz, used
	// in the broader diskfs ecosystem for squashfs/iso payload compression.
	CompressionXZ CompressionFormat = iota
	// CompressionZstd favors speed; grounded on KarpelesLab-squashfs (a
	// pack member) whose go.mod depends on github.com/klauspost/compress.
	CompressionZstd
)
