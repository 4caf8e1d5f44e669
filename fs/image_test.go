package fs

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/vfisk/vfisk/backend/file"
)

// testImageSize is large enough to back TotalBlocks blocks of BlockSize bytes,
// plus gob framing overhead for the encoded image triple.
const testImageSize = int64(TotalBlocks)*int64(BlockSize) + int64(BlockSize)

// TestSaveLoadRoundTripPreservesAllocatorState exercises the real
// backend.Storage path (as spec.md §4.7/§6's "load on init" contract
// does), not the nil-backend shortcut the rest of
// this suite uses. It guards against encoding/gob silently dropping the
// superblock's unexported free-inode queue and free-block cache across a
// save/load round-trip.
func TestSaveLoadRoundTripPreservesAllocatorState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	store, err := file.CreateFromPath(path, testImageSize)
	require.NoError(t, err)

	s, err := Open(store, true)
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopen against the same image path, the way a restarted process
	// would, and confirm the allocators still have free capacity rather
	// than reporting spurious exhaustion.
	store2, err := file.OpenFromPath(path, false)
	require.NoError(t, err)
	defer store2.Close()

	reopened, err := Open(store2, false)
	require.NoError(t, err)
	require.Equal(t, s.superblock.sNfree, reopened.superblock.sNfree)
	require.Equal(t, len(s.superblock.freeInodes), len(reopened.superblock.freeInodes))
	require.NotZero(t, reopened.superblock.sNfree)
	require.NotEmpty(t, reopened.superblock.freeInodes)

	_, err = reopened.Login("admin", "admin")
	require.NoError(t, err)
	_, err = reopened.Create("f")
	require.NoError(t, err)
	fd, err := reopened.Open("f", ModeAppend)
	require.NoError(t, err)
	_, err = reopened.Write(fd, []byte("hello"))
	require.NoError(t, err)
	_, err = reopened.Close(fd)
	require.NoError(t, err)
}

// TestSaveLoadRoundTripPreservesFreeListGroupHead forces the superblock's
// free-block cache to flush into a group-head block (by allocating and
// releasing more than NICFREE blocks), then confirms that group-head
// block's payload survives a save/load round-trip through a real
// backend.Storage instead of gob silently dropping it.
func TestSaveLoadRoundTripPreservesFreeListGroupHead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")

	store, err := file.CreateFromPath(path, testImageSize)
	require.NoError(t, err)

	s, err := Open(store, true)
	require.NoError(t, err)
	_, err = s.Login("admin", "admin")
	require.NoError(t, err)

	var allocated []int
	for i := 0; i < NICFREE+5; i++ {
		b, err := s.superblock.allocateBlock(s.blocks)
		require.NoError(t, err)
		allocated = append(allocated, b)
	}
	for _, b := range allocated {
		s.superblock.freeBlock(b, s.blocks)
	}
	require.NoError(t, s.save())
	require.NoError(t, store.Close())

	store2, err := file.OpenFromPath(path, false)
	require.NoError(t, err)
	defer store2.Close()

	reopened, err := Open(store2, false)
	require.NoError(t, err)

	for i := 0; i < NICFREE+5; i++ {
		_, err := reopened.superblock.allocateBlock(reopened.blocks)
		require.NoError(t, err)
	}
}
