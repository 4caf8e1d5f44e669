package fs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocatorRoundTrip(t *testing.T) {
	sb := newSuperblock()
	bs := newBlockStore()
	sb.populateFreeList(bs)

	var allocated []int
	for i := 0; i < 20; i++ {
		b, err := sb.allocateBlock(bs)
		require.NoError(t, err)
		require.NotZero(t, b)
		allocated = append(allocated, b)
	}

	seen := map[int]bool{}
	for _, b := range allocated {
		require.False(t, seen[b], "block %d allocated twice", b)
		seen[b] = true
	}

	for _, b := range allocated {
		sb.freeBlock(b, bs)
	}

	for i := 0; i < 20; i++ {
		b, err := sb.allocateBlock(bs)
		require.NoError(t, err)
		require.NotZero(t, b)
	}
}

func TestAllocatorNeverReturnsBlockZero(t *testing.T) {
	sb := newSuperblock()
	bs := newBlockStore()
	sb.populateFreeList(bs)

	for i := 0; i < TotalBlocks-Reserved-1; i++ {
		b, err := sb.allocateBlock(bs)
		require.NoError(t, err)
		require.NotEqual(t, 0, b)
	}
}

func TestAllocatorExhaustion(t *testing.T) {
	sb := &superblock{}
	bs := newBlockStore()
	_, err := sb.allocateBlock(bs)
	require.Error(t, err)
	var fsErr *Error
	require.ErrorAs(t, err, &fsErr)
	require.Equal(t, DiskFull, fsErr.Code)
}

func TestFreeBlockIgnoresInvalidIDs(t *testing.T) {
	sb := newSuperblock()
	bs := newBlockStore()
	sb.freeBlock(0, bs)
	sb.freeBlock(-1, bs)
	require.Equal(t, 0, sb.sNfree)
}

func TestInodeFreeListPopAndPush(t *testing.T) {
	sb := newSuperblock()
	first, err := sb.allocateInode()
	require.NoError(t, err)
	require.Equal(t, Reserved, first)

	sb.freeInode(first)
	again, err := sb.allocateInode()
	require.NoError(t, err)
	require.Equal(t, first, again)
}

func TestInodeFreeListExhaustion(t *testing.T) {
	sb := newSuperblock()
	for i := Reserved; i < InodeCount; i++ {
		_, err := sb.allocateInode()
		require.NoError(t, err)
	}
	_, err := sb.allocateInode()
	require.Error(t, err)
	var fsErr *Error
	require.ErrorAs(t, err, &fsErr)
	require.Equal(t, NoFreeInodes, fsErr.Code)
}
