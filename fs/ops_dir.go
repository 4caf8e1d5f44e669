package fs

import (
	"fmt"
	"strconv"
	"strings"
)

// Chdir changes the session's current directory, requiring exec permission
// on the target, per spec.md §6.
func (s *Session) Chdir(path string) (string, error) {
	id, err := s.resolvePath(path)
	if err != nil {
		s.metrics.observeOp("chdir", err)
		return "", err
	}
	in, ok := s.inodes.get(id)
	if !ok {
		err := newErr(PathNotFound, path)
		s.metrics.observeOp("chdir", err)
		return "", err
	}
	if !in.IsDir {
		err := newErr(NotADirectory, path)
		s.metrics.observeOp("chdir", err)
		return "", err
	}
	if err := s.requirePerm(in, 'x', path); err != nil {
		s.metrics.observeOp("chdir", err)
		return "", err
	}
	s.currentDir = id
	s.metrics.observeOp("chdir", nil)
	return fmt.Sprintf("Changed to %s", path), nil
}

// Mkdir implements spec.md §4.5 mkdir.
func (s *Session) Mkdir(path string) (string, error) {
	out, err := s.mkdirInternal(path)
	s.metrics.observeOp("mkdir", err)
	if err == nil {
		if saveErr := s.save(); saveErr != nil {
			return "", saveErr
		}
	}
	return out, err
}

func (s *Session) mkdirInternal(path string) (string, error) {
	parentPath, name := splitParentAndName(path)
	parentID, err := s.resolvePath(parentPath)
	if err != nil {
		return "", err
	}
	parent, ok := s.inodes.get(parentID)
	if !ok || !parent.IsDir {
		return "", newErr(NotADirectory, parentPath)
	}
	parentBlock, _ := s.blocks.dirBlock(parent.Blocks[0])
	if _, exists := parentBlock[name]; exists {
		return "", newErr(AlreadyExists, path)
	}
	if err := s.requirePerm(parent, 'w', path); err != nil {
		return "", err
	}
	newID, err := s.superblock.allocateInode()
	if err != nil {
		s.metrics.observeExhaustion("inode")
		return "", err
	}
	blockID, err := s.superblock.allocateBlock(s.blocks)
	if err != nil {
		s.superblock.freeInode(newID)
		s.metrics.observeExhaustion("block")
		return "", err
	}
	newInode := newDirInode(newID, s.user.UID, 0o755)
	newInode.Blocks = []int{blockID}
	s.inodes.set(newInode)
	s.blocks.set(blockID, newDirBlock(newID, parentID))
	parentBlock[name] = newID
	return fmt.Sprintf("Directory %s created", path), nil
}

// Create implements spec.md §4.5 create.
func (s *Session) Create(path string) (string, error) {
	out, err := s.createInternal(path)
	s.metrics.observeOp("create", err)
	if err == nil {
		if saveErr := s.save(); saveErr != nil {
			return "", saveErr
		}
	}
	return out, err
}

func (s *Session) createInternal(path string) (string, error) {
	parentPath, name := splitParentAndName(path)
	parentID, err := s.resolvePath(parentPath)
	if err != nil {
		return "", err
	}
	parent, ok := s.inodes.get(parentID)
	if !ok || !parent.IsDir {
		return "", newErr(NotADirectory, parentPath)
	}
	parentBlock, _ := s.blocks.dirBlock(parent.Blocks[0])
	if _, exists := parentBlock[name]; exists {
		return "", newErr(AlreadyExists, path)
	}
	if err := s.requirePerm(parent, 'w', path); err != nil {
		return "", err
	}
	newID, err := s.superblock.allocateInode()
	if err != nil {
		s.metrics.observeExhaustion("inode")
		return "", err
	}
	newInode := newFileInode(newID, s.user.UID, 0o644)
	s.inodes.set(newInode)
	parentBlock[name] = newID
	return fmt.Sprintf("File %s created", path), nil
}

// Ls implements spec.md §4.5 ls.
func (s *Session) Ls(path string) (string, error) {
	out, err := s.lsInternal(path)
	s.metrics.observeOp("ls", err)
	return out, err
}

func (s *Session) lsInternal(path string) (string, error) {
	id := s.currentDir
	if path != "" && path != "." {
		resolved, err := s.resolvePath(path)
		if err != nil {
			return "", err
		}
		id = resolved
	}
	in, ok := s.inodes.get(id)
	if !ok {
		return "", newErr(PathNotFound, path)
	}
	if err := s.requirePerm(in, 'r', path); err != nil {
		return "", err
	}
	if !in.IsDir {
		return "", newErr(NotADirectory, path)
	}
	dirBlock, _ := s.blocks.dirBlock(in.Blocks[0])

	var b strings.Builder
	fmt.Fprintf(&b, "%-11s %5s %-10s %6s %s", "Permissions", "Links", "Owner", "Size", "Name")
	for _, e := range sortedEntries(dirBlock) {
		child, ok := s.inodes.get(e.Inode)
		if !ok {
			continue
		}
		owner := strconv.Itoa(child.Owner)
		if u, ok := s.users.findByUID(child.Owner); ok {
			owner = u.Username
		}
		size := ""
		if !child.IsDir {
			size = strconv.Itoa(child.Size)
		}
		fmt.Fprintf(&b, "\n%-12s %4d %-10s %6s %s", modeString(child), child.Links, owner, size, e.Name)
	}
	return b.String(), nil
}

// Chmod implements spec.md §4.5 chmod.
func (s *Session) Chmod(path, octalStr string) (string, error) {
	out, err := s.chmodInternal(path, octalStr)
	s.metrics.observeOp("chmod", err)
	if err == nil {
		if saveErr := s.save(); saveErr != nil {
			return "", saveErr
		}
	}
	return out, err
}

func (s *Session) chmodInternal(path, octalStr string) (string, error) {
	id, err := s.resolvePath(path)
	if err != nil {
		return "", err
	}
	in, ok := s.inodes.get(id)
	if !ok {
		return "", newErr(PathNotFound, path)
	}
	if !(s.user.UID == in.Owner || s.user.UID == 0 || s.sudo) {
		return "", newErr(PermissionDenied, path)
	}
	perms, err := strconv.ParseInt(octalStr, 8, 64)
	if err != nil || perms < 0 || perms > 0o777 {
		return "", newErr(InvalidPerms, octalStr)
	}
	in.Perms = int(perms)
	return fmt.Sprintf("Permissions of '%s' changed to %s", path, octalStr), nil
}

// Chown implements spec.md §4.5 chown.
func (s *Session) Chown(path, username string) (string, error) {
	out, err := s.chownInternal(path, username)
	s.metrics.observeOp("chown", err)
	if err == nil {
		if saveErr := s.save(); saveErr != nil {
			return "", saveErr
		}
	}
	return out, err
}

func (s *Session) chownInternal(path, username string) (string, error) {
	id, err := s.resolvePath(path)
	if err != nil {
		return "", err
	}
	in, ok := s.inodes.get(id)
	if !ok {
		return "", newErr(PathNotFound, path)
	}
	if s.user.UID != 0 && !s.sudo {
		return "", newErr(PermissionDenied, path)
	}
	u, ok := s.users.findByName(username)
	if !ok {
		return "", newErr(UserNotFound, username)
	}
	in.Owner = u.UID
	return fmt.Sprintf("Owner of %s changed to %s", path, username), nil
}

// Ln implements spec.md §4.5 ln: hard links only, files only.
func (s *Session) Ln(src, dst string) (string, error) {
	out, err := s.lnInternal(src, dst)
	s.metrics.observeOp("ln", err)
	if err == nil {
		if saveErr := s.save(); saveErr != nil {
			return "", saveErr
		}
	}
	return out, err
}

func (s *Session) lnInternal(src, dst string) (string, error) {
	srcID, err := s.resolvePath(src)
	if err != nil {
		return "", err
	}
	srcInode, ok := s.inodes.get(srcID)
	if !ok {
		return "", newErr(PathNotFound, src)
	}
	if err := s.requirePerm(srcInode, 'r', src); err != nil {
		return "", err
	}
	if srcInode.IsDir {
		return "", newErr(WrongModeForOp, src)
	}
	parentPath, name := splitParentAndName(dst)
	parentID, err := s.resolvePath(parentPath)
	if err != nil {
		return "", err
	}
	parent, ok := s.inodes.get(parentID)
	if !ok || !parent.IsDir {
		return "", newErr(NotADirectory, parentPath)
	}
	if err := s.requirePerm(parent, 'w', dst); err != nil {
		return "", err
	}
	parentBlock, _ := s.blocks.dirBlock(parent.Blocks[0])
	if _, exists := parentBlock[name]; exists {
		return "", newErr(AlreadyExists, dst)
	}
	parentBlock[name] = srcID
	srcInode.Links++
	return fmt.Sprintf("Link %s created for %s", dst, src), nil
}

// Find implements spec.md §4.5 find: depth-first from the current
// directory, silently skipping unreadable subtrees.
func (s *Session) Find(name string) (string, error) {
	var results []string
	var walk func(id int, path string)
	walk = func(id int, path string) {
		in, ok := s.inodes.get(id)
		if !ok || !s.checkPerm(in, 'r') {
			return
		}
		dirBlock, ok := s.blocks.dirBlock(in.Blocks[0])
		if !ok {
			return
		}
		for _, e := range sortedEntries(dirBlock) {
			if e.Name == name {
				results = append(results, joinPath(path, e.Name))
			}
			child, ok := s.inodes.get(e.Inode)
			if ok && child.IsDir {
				walk(e.Inode, joinPath(path, e.Name))
			}
		}
	}
	walk(s.currentDir, s.currentPath())
	s.metrics.observeOp("find", nil)
	if len(results) == 0 {
		return fmt.Sprintf("%s not found in %s", name, s.currentPath()), nil
	}
	return strings.Join(results, "\n"), nil
}

func joinPath(base, name string) string {
	if base == "/" {
		return "/" + name
	}
	return base + "/" + name
}

// Mv implements spec.md §4.5 mv.
func (s *Session) Mv(src, dst string) (string, error) {
	out, err := s.mvInternal(src, dst)
	s.metrics.observeOp("mv", err)
	if err == nil {
		if saveErr := s.save(); saveErr != nil {
			return "", saveErr
		}
	}
	return out, err
}

func (s *Session) mvInternal(src, dst string) (string, error) {
	srcID, err := s.resolvePath(src)
	if err != nil {
		return "", err
	}
	srcInode, ok := s.inodes.get(srcID)
	if !ok {
		return "", newErr(PathNotFound, src)
	}
	srcParentPath, srcName := splitParentAndName(src)
	srcParentID, err := s.resolvePath(srcParentPath)
	if err != nil {
		return "", err
	}
	if err := s.requirePerm(srcInode, 'r', src); err != nil {
		return "", err
	}

	dstParentPath, dstName := splitParentAndName(dst)
	dstParentID, err := s.resolvePath(dstParentPath)
	if err != nil {
		return "", err
	}
	dstParent, ok := s.inodes.get(dstParentID)
	if !ok || !dstParent.IsDir {
		return "", newErr(NotADirectory, dstParentPath)
	}
	if err := s.requirePerm(dstParent, 'w', dst); err != nil {
		return "", err
	}

	// if dst exists, recurse into it (if a directory) or replace it (if a file)
	if dstID, derr := s.resolvePath(dst); derr == nil {
		dstInode, ok := s.inodes.get(dstID)
		if ok && dstInode.IsDir {
			return s.mvInternal(src, joinPath(dst, srcName))
		}
		if ok {
			if _, delErr := s.deleteInternal(dst, false); delErr != nil {
				return "", delErr
			}
		}
	}

	srcParent, ok := s.inodes.get(srcParentID)
	if !ok {
		return "", newErr(PathNotFound, srcParentPath)
	}
	srcParentBlock, _ := s.blocks.dirBlock(srcParent.Blocks[0])
	delete(srcParentBlock, srcName)

	dstParentBlock, _ := s.blocks.dirBlock(dstParent.Blocks[0])
	dstParentBlock[dstName] = srcID

	if srcInode.IsDir {
		srcDirBlock, _ := s.blocks.dirBlock(srcInode.Blocks[0])
		srcDirBlock[".."] = dstParentID
	}
	return fmt.Sprintf("Moved %s to %s", src, dst), nil
}

// Cp implements spec.md §4.5 cp: deep copy, directory copy only with
// recursive=true.
func (s *Session) Cp(src, dst string, recursive bool) (string, error) {
	out, err := s.cpInternal(src, dst, recursive)
	s.metrics.observeOp("cp", err)
	if err == nil {
		if saveErr := s.save(); saveErr != nil {
			return "", saveErr
		}
	}
	return out, err
}

func (s *Session) cpInternal(src, dst string, recursive bool) (string, error) {
	srcID, err := s.resolvePath(src)
	if err != nil {
		return "", err
	}
	srcInode, ok := s.inodes.get(srcID)
	if !ok {
		return "", newErr(PathNotFound, src)
	}
	if srcInode.IsDir && !recursive {
		return "", newErr(WrongModeForOp, src)
	}
	if err := s.requirePerm(srcInode, 'r', src); err != nil {
		return "", err
	}

	dstParentPath, dstName := splitParentAndName(dst)
	dstParentID, err := s.resolvePath(dstParentPath)
	if err != nil {
		return "", err
	}
	dstParent, ok := s.inodes.get(dstParentID)
	if !ok || !dstParent.IsDir {
		return "", newErr(NotADirectory, dstParentPath)
	}
	if err := s.requirePerm(dstParent, 'w', dst); err != nil {
		return "", err
	}

	if dstID, derr := s.resolvePath(dst); derr == nil {
		dstInode, ok := s.inodes.get(dstID)
		if ok && dstInode.IsDir {
			_, srcName := splitParentAndName(src)
			return s.cpInternal(src, joinPath(dst, srcName), recursive)
		}
		if ok {
			if _, delErr := s.deleteInternal(dst, false); delErr != nil {
				return "", delErr
			}
		}
	}

	dstParentBlock, _ := s.blocks.dirBlock(dstParent.Blocks[0])

	if srcInode.IsDir {
		newID, err := s.superblock.allocateInode()
		if err != nil {
			return "", err
		}
		newInode := newDirInode(newID, s.user.UID, srcInode.Perms)
		blockID, err := s.superblock.allocateBlock(s.blocks)
		if err != nil {
			s.superblock.freeInode(newID)
			return "", err
		}
		s.inodes.set(newInode)
		s.blocks.set(blockID, newDirBlock(newID, dstParentID))
		newInode.Blocks = []int{blockID}
		dstParentBlock[dstName] = newID

		srcBlock, _ := s.blocks.dirBlock(srcInode.Blocks[0])
		for _, e := range sortedEntries(srcBlock) {
			if _, err := s.cpInternal(joinPath(src, e.Name), joinPath(dst, e.Name), true); err != nil {
				return "", err
			}
		}
		return fmt.Sprintf("Copied %s to %s", src, dst), nil
	}

	newID, err := s.superblock.allocateInode()
	if err != nil {
		return "", err
	}
	newInode := newFileInode(newID, s.user.UID, srcInode.Perms)
	for _, blkID := range srcInode.Blocks {
		data, _ := s.blocks.fileBlock(blkID)
		newBlkID, err := s.superblock.allocateBlock(s.blocks)
		if err != nil {
			return "", err
		}
		cp := make(fileBytes, len(data))
		copy(cp, data)
		s.blocks.set(newBlkID, cp)
		newInode.Blocks = append(newInode.Blocks, newBlkID)
	}
	newInode.Size = srcInode.Size
	s.inodes.set(newInode)
	dstParentBlock[dstName] = newID
	return fmt.Sprintf("Copied %s to %s", src, dst), nil
}

// Delete implements spec.md §4.6 delete.
func (s *Session) Delete(path string, recursive bool) (string, error) {
	out, err := s.deleteInternal(path, recursive)
	s.metrics.observeOp("delete", err)
	if err == nil {
		if saveErr := s.save(); saveErr != nil {
			return "", saveErr
		}
	}
	return out, err
}

func (s *Session) deleteInternal(path string, recursive bool) (string, error) {
	parentPath, name := splitParentAndName(path)
	parentID, err := s.resolvePath(parentPath)
	if err != nil {
		return "", err
	}
	parent, ok := s.inodes.get(parentID)
	if !ok || !parent.IsDir {
		return "", newErr(NotADirectory, parentPath)
	}
	if err := s.requirePerm(parent, 'w', path); err != nil {
		return "", err
	}
	parentBlock, _ := s.blocks.dirBlock(parent.Blocks[0])
	id, exists := parentBlock[name]
	if !exists {
		return "", newErr(PathNotFound, path)
	}
	in, ok := s.inodes.get(id)
	if !ok {
		return "", newErr(PathNotFound, path)
	}
	if in.Locked {
		return "", newErr(InUse, path)
	}

	if in.IsDir {
		dirBlock, _ := s.blocks.dirBlock(in.Blocks[0])
		entries := sortedEntries(dirBlock)
		if len(entries) > 0 && !recursive {
			return "", newErr(DirNotEmpty, path)
		}
		if recursive {
			var childErrors []error
			for _, e := range entries {
				if _, err := s.deleteInternal(joinPath(path, e.Name), true); err != nil {
					childErrors = append(childErrors, err)
				}
			}
			if len(childErrors) > 0 {
				return "", &MultiError{Errors: childErrors}
			}
		}
	}

	in.Links--
	if in.Links == 0 {
		for _, blkID := range in.Blocks {
			s.superblock.freeBlock(blkID, s.blocks)
		}
		s.superblock.freeInode(id)
		s.inodes.delete(id)
	}
	delete(parentBlock, name)
	return fmt.Sprintf("%s deleted", path), nil
}
