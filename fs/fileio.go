package fs

import "fmt"

// Open implements spec.md §4.6 open: validates mode, checks the permission
// bits the mode requires, and allocates a new descriptor id.
func (s *Session) Open(path string, mode OpenMode) (int, error) {
	fd, err := s.openInternal(path, mode)
	s.metrics.observeOp("open", err)
	return fd, err
}

func (s *Session) openInternal(path string, mode OpenMode) (int, error) {
	if !mode.valid() {
		return 0, newErr(InvalidMode, string(mode))
	}
	id, err := s.resolvePath(path)
	if err != nil {
		return 0, err
	}
	in, ok := s.inodes.get(id)
	if !ok {
		return 0, newErr(PathNotFound, path)
	}
	if in.IsDir {
		return 0, newErr(WrongModeForOp, path)
	}
	if mode.readable() {
		if err := s.requirePerm(in, 'r', path); err != nil {
			return 0, err
		}
	}
	if mode.writable() {
		if err := s.requirePerm(in, 'w', path); err != nil {
			return 0, err
		}
	}
	fd := s.nextFd
	s.nextFd++
	s.openFiles[fd] = &openFileEntry{Inode: id, Mode: mode, Offset: 0}
	in.Locked = true
	s.metrics.setOpenFds(len(s.openFiles))
	return fd, nil
}

// Close implements spec.md §4.6 close: drop the descriptor and clear the
// inode lock.
func (s *Session) Close(fd int) (string, error) {
	out, err := s.closeInternal(fd)
	s.metrics.observeOp("close", err)
	if err == nil {
		if saveErr := s.save(); saveErr != nil {
			return "", saveErr
		}
	}
	return out, err
}

func (s *Session) closeInternal(fd int) (string, error) {
	entry, ok := s.openFiles[fd]
	if !ok {
		return "", newErr(InvalidFd, fmt.Sprintf("%d", fd))
	}
	delete(s.openFiles, fd)
	if in, ok := s.inodes.get(entry.Inode); ok {
		in.Locked = false
	}
	s.metrics.setOpenFds(len(s.openFiles))
	return fmt.Sprintf("Closed fd %d", fd), nil
}

// Seek implements spec.md §4.6 seek.
func (s *Session) Seek(fd, offset int, whence Whence) (string, error) {
	out, err := s.seekInternal(fd, offset, whence)
	s.metrics.observeOp("seek", err)
	return out, err
}

func (s *Session) seekInternal(fd, offset int, whence Whence) (string, error) {
	entry, ok := s.openFiles[fd]
	if !ok {
		return "", newErr(InvalidFd, fmt.Sprintf("%d", fd))
	}
	in, ok := s.inodes.get(entry.Inode)
	if !ok {
		return "", newErr(InvalidFd, fmt.Sprintf("%d", fd))
	}
	var base int
	switch whence {
	case SeekSet:
		base = 0
	case SeekCur:
		base = entry.Offset
	case SeekEnd:
		base = in.Size
	default:
		return "", newErr(InvalidOffset, "")
	}
	newOffset := base + offset
	if newOffset < 0 {
		return "", newErr(InvalidOffset, "")
	}
	if entry.Mode == ModeRead && newOffset > in.Size {
		return "", newErr(InvalidOffset, "")
	}
	entry.Offset = newOffset
	return fmt.Sprintf("Offset set to %d", newOffset), nil
}

// Read implements spec.md §4.6 read: walks inode.Blocks, skipping whole
// blocks until the offset lands inside one, then emits up to length bytes.
// Does not advance the descriptor's offset.
func (s *Session) Read(fd int, length *int) ([]byte, error) {
	out, err := s.readInternal(fd, length)
	s.metrics.observeOp("read", err)
	return out, err
}

func (s *Session) readInternal(fd int, length *int) ([]byte, error) {
	entry, ok := s.openFiles[fd]
	if !ok {
		return nil, newErr(InvalidFd, fmt.Sprintf("%d", fd))
	}
	if !entry.Mode.readable() {
		return nil, newErr(WrongModeForOp, fmt.Sprintf("%d", fd))
	}
	in, ok := s.inodes.get(entry.Inode)
	if !ok {
		return nil, newErr(InvalidFd, fmt.Sprintf("%d", fd))
	}
	if in.Size == 0 || entry.Offset >= in.Size {
		return []byte{}, nil
	}
	remaining := in.Size - entry.Offset
	want := remaining
	if length != nil && *length < want {
		want = *length
	}

	out := make([]byte, 0, want)
	pos := 0
	for _, blkID := range in.Blocks {
		if want <= 0 {
			break
		}
		data, ok := s.blocks.fileBlock(blkID)
		if !ok {
			continue
		}
		blkStart := pos
		blkEnd := pos + len(data)
		pos = blkEnd
		if blkEnd <= entry.Offset {
			continue
		}
		start := 0
		if entry.Offset > blkStart {
			start = entry.Offset - blkStart
		}
		slice := data[start:]
		if len(slice) > want {
			slice = slice[:want]
		}
		out = append(out, slice...)
		want -= len(slice)
	}
	return out, nil
}

// Write implements spec.md §4.6 write: append modes allocate one new block
// per call regardless of payload length; overwrite modes splice into
// existing blocks in place and truncate trailing blocks.
func (s *Session) Write(fd int, data []byte) (string, error) {
	out, err := s.writeInternal(fd, data)
	s.metrics.observeOp("write", err)
	if err == nil {
		if saveErr := s.save(); saveErr != nil {
			return "", saveErr
		}
	}
	return out, err
}

func (s *Session) writeInternal(fd int, data []byte) (string, error) {
	entry, ok := s.openFiles[fd]
	if !ok {
		return "", newErr(InvalidFd, fmt.Sprintf("%d", fd))
	}
	if !entry.Mode.writable() {
		return "", newErr(WrongModeForOp, fmt.Sprintf("%d", fd))
	}
	in, ok := s.inodes.get(entry.Inode)
	if !ok {
		return "", newErr(InvalidFd, fmt.Sprintf("%d", fd))
	}

	if entry.Mode.isAppend() {
		blockID, err := s.superblock.allocateBlock(s.blocks)
		if err != nil {
			s.metrics.observeExhaustion("block")
			return "", err
		}
		payload := make(fileBytes, len(data))
		copy(payload, data)
		s.blocks.set(blockID, payload)
		in.Blocks = append(in.Blocks, blockID)
		in.Size += len(data)
		return fmt.Sprintf("Wrote %d bytes", len(data)), nil
	}

	return s.overwrite(in, entry, data)
}

// overwrite implements the byte-oriented splice-with-trailing-truncation
// branch of write() for w/rw descriptors.
func (s *Session) overwrite(in *Inode, entry *openFileEntry, data []byte) (string, error) {
	offset := entry.Offset
	remaining := data
	lastWrittenIdx := -1

	// compute each existing block's [start, end) range against offset
	starts := make([]int, len(in.Blocks))
	pos := 0
	for i, blkID := range in.Blocks {
		starts[i] = pos
		blk, ok := s.blocks.fileBlock(blkID)
		if ok {
			pos += len(blk)
		}
	}

	idx := 0
	for idx < len(in.Blocks) && len(remaining) > 0 {
		blkID := in.Blocks[idx]
		blk, ok := s.blocks.fileBlock(blkID)
		if !ok {
			idx++
			continue
		}
		blkStart := starts[idx]
		blkEnd := blkStart + len(blk)
		if blkEnd <= offset {
			idx++
			continue
		}
		within := offset - blkStart
		if within < 0 {
			within = 0
		}
		n := len(blk) - within
		if n > len(remaining) {
			n = len(remaining)
		}
		newBlk := make(fileBytes, len(blk))
		copy(newBlk, blk)
		copy(newBlk[within:within+n], remaining[:n])
		s.blocks.set(blkID, newBlk)
		remaining = remaining[n:]
		offset += n
		lastWrittenIdx = idx
		idx++
	}

	// allocate new trailing blocks, BlockSize each, for any remaining payload
	for len(remaining) > 0 {
		n := len(remaining)
		if n > BlockSize {
			n = BlockSize
		}
		blockID, err := s.superblock.allocateBlock(s.blocks)
		if err != nil {
			s.metrics.observeExhaustion("block")
			return "", err
		}
		payload := make(fileBytes, n)
		copy(payload, remaining[:n])
		s.blocks.set(blockID, payload)
		in.Blocks = append(in.Blocks, blockID)
		remaining = remaining[n:]
		offset += n
		lastWrittenIdx = len(in.Blocks) - 1
	}

	// release any existing blocks beyond the last written index
	if lastWrittenIdx >= 0 && lastWrittenIdx+1 < len(in.Blocks) {
		for _, stale := range in.Blocks[lastWrittenIdx+1:] {
			s.superblock.freeBlock(stale, s.blocks)
		}
		in.Blocks = in.Blocks[:lastWrittenIdx+1]
	}

	if offset > in.Size {
		in.Size = offset
	}
	return fmt.Sprintf("Wrote %d bytes", len(data)), nil
}
