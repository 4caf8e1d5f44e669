package fs

import (
	"bytes"
	"encoding/gob"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// superblock tracks the filesystem's static parameters, the inode free
// list, and the grouped free-block chain cache described in spec.md §4.1 /
// §4.2. It mirrors the historic Unix V7 grouped free-list: a bounded
// in-memory cache of free block numbers, refilled from / flushed to a
// "group head" block on the simulated disk.
type superblock struct {
	UUID       uuid.UUID
	BlockSize  int
	TotalBlocks int
	InodeCount int

	// freeInodes is an ordered queue of free inode ids: allocate pops the
	// front, free pushes the front.
	freeInodes []int

	// sFree[0:sNfree] is the cached stack of free block numbers.
	sFree  [NICFREE]int
	sNfree int
}

// gobSuperblock is the exported mirror of superblock's unexported fields.
// encoding/gob silently drops unexported struct fields on encode, which
// would reset the free-inode queue and the free-block cache to their zero
// values on every save/load round-trip (the next allocate would then see
// sNfree==0/freeInodes==nil and report spurious DiskFull/NoFreeInodes even
// with most of the disk still free). A custom GobEncode/GobDecode pair
// routes the persisted bytes through this exported shape instead.
type gobSuperblock struct {
	UUID        uuid.UUID
	BlockSize   int
	TotalBlocks int
	InodeCount  int
	FreeInodes  []int
	SFree       [NICFREE]int
	SNfree      int
}

func (sb *superblock) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	aux := gobSuperblock{
		UUID:        sb.UUID,
		BlockSize:   sb.BlockSize,
		TotalBlocks: sb.TotalBlocks,
		InodeCount:  sb.InodeCount,
		FreeInodes:  sb.freeInodes,
		SFree:       sb.sFree,
		SNfree:      sb.sNfree,
	}
	if err := gob.NewEncoder(&buf).Encode(aux); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (sb *superblock) GobDecode(data []byte) error {
	var aux gobSuperblock
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&aux); err != nil {
		return err
	}
	sb.UUID = aux.UUID
	sb.BlockSize = aux.BlockSize
	sb.TotalBlocks = aux.TotalBlocks
	sb.InodeCount = aux.InodeCount
	sb.freeInodes = aux.FreeInodes
	sb.sFree = aux.SFree
	sb.sNfree = aux.SNfree
	return nil
}

func newSuperblock() *superblock {
	id, err := uuid.NewRandom()
	if err != nil {
		// uuid.NewRandom only fails if the system CSPRNG is unavailable;
		// fall back to the nil UUID rather than aborting format().
		id = uuid.UUID{}
	}
	sb := &superblock{
		UUID:        id,
		BlockSize:   BlockSize,
		TotalBlocks: TotalBlocks,
		InodeCount:  InodeCount,
	}
	for i := Reserved; i < InodeCount; i++ {
		sb.freeInodes = append(sb.freeInodes, i)
	}
	return sb
}

// allocateInode pops the lowest-index available inode id.
func (sb *superblock) allocateInode() (int, error) {
	if len(sb.freeInodes) == 0 {
		return 0, newErr(NoFreeInodes, "")
	}
	id := sb.freeInodes[0]
	sb.freeInodes = sb.freeInodes[1:]
	return id, nil
}

// freeInode pushes id onto the front of the free list.
func (sb *superblock) freeInode(id int) {
	sb.freeInodes = append([]int{id}, sb.freeInodes...)
}

// allocateBlock implements spec.md §4.2 Allocate.
func (sb *superblock) allocateBlock(bs *blockStore) (int, error) {
	if sb.sNfree == 0 {
		return 0, newErr(DiskFull, "")
	}
	sb.sNfree--
	b := sb.sFree[sb.sNfree]
	if b == 0 {
		sb.sNfree++
		return 0, newErr(CorruptFreeList, "")
	}
	if sb.sNfree == 0 {
		payload, ok := bs.get(b)
		group, isGroup := payload.(*freeListGroup)
		switch {
		case !ok:
			// chain end or corrupt: next allocate reports DiskFull.
			sb.sNfree = 0
		case !isGroup || group.count < 0 || group.count > NICFREE:
			logrus.WithField("block", b).Warn("vfisk: free-list head block has malformed payload, truncating chain")
			sb.sNfree = 0
		default:
			sb.sNfree = group.count
			copy(sb.sFree[:sb.sNfree], group.blocks[:sb.sNfree])
		}
	}
	return b, nil
}

// freeBlock implements spec.md §4.2 Free(b).
func (sb *superblock) freeBlock(b int, bs *blockStore) {
	if b <= 0 {
		logrus.WithField("block", b).Warn("vfisk: attempted to free an invalid block id")
		return
	}
	if sb.sNfree == NICFREE {
		group := &freeListGroup{count: sb.sNfree, blocks: make([]int, sb.sNfree)}
		copy(group.blocks, sb.sFree[:sb.sNfree])
		bs.set(b, group)
		sb.sNfree = 0
	}
	sb.sFree[sb.sNfree] = b
	sb.sNfree++
}

// populateFreeList implements the format-time population described in
// spec.md §4.2: iterate block ids from TotalBlocks-1 down to Reserved and
// free each one, so low-numbered blocks are allocated first.
func (sb *superblock) populateFreeList(bs *blockStore) {
	for i := sb.TotalBlocks - 1; i >= Reserved; i-- {
		sb.freeBlock(i, bs)
	}
}
