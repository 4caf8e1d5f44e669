package fs

import "strings"

// resolvePath implements spec.md §4.3: convert a textual path to an inode
// id by walking directory blocks, starting from root (if absolute) or the
// session's current directory (if relative).
func (s *Session) resolvePath(path string) (int, error) {
	if s.user == nil {
		return 0, newErr(NotLoggedIn, path)
	}
	orig := path
	if strings.HasPrefix(path, "~") {
		path = "/home/" + s.user.Username + path[1:]
	}
	absolute := strings.HasPrefix(path, "/")
	segments := splitPath(path)

	id := s.currentDir
	if absolute {
		id = RootInode
	}
	for _, seg := range segments {
		switch seg {
		case ".":
			continue
		case "..":
			if id == RootInode {
				continue
			}
			in, ok := s.inodes.get(id)
			if !ok {
				return 0, newErr(PathNotFound, orig)
			}
			dirBlock, ok := s.blocks.dirBlock(in.Blocks[0])
			if !ok {
				return 0, newErr(PathNotFound, orig)
			}
			parent, ok := dirBlock[".."]
			if !ok {
				return 0, newErr(PathNotFound, orig)
			}
			id = parent
		default:
			in, ok := s.inodes.get(id)
			if !ok || !in.IsDir {
				return 0, newErr(NotADirectory, orig)
			}
			dirBlock, ok := s.blocks.dirBlock(in.Blocks[0])
			if !ok {
				return 0, newErr(NotADirectory, orig)
			}
			child, ok := dirBlock[seg]
			if !ok {
				return 0, newErr(PathNotFound, orig)
			}
			id = child
		}
	}
	return id, nil
}

// splitPath splits a path on '/', discarding empty segments (also handling
// trailing slashes, per spec.md §6).
func splitPath(path string) []string {
	raw := strings.Split(path, "/")
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		if r != "" {
			out = append(out, r)
		}
	}
	return out
}

// splitParentAndName splits a path into its parent directory path and the
// final path component, the way os.path.dirname/basename do in the
// reference implementation.
func splitParentAndName(path string) (parent, name string) {
	segments := splitPath(path)
	if len(segments) == 0 {
		return "", ""
	}
	name = segments[len(segments)-1]
	if strings.HasPrefix(path, "/") {
		parent = "/" + strings.Join(segments[:len(segments)-1], "/")
	} else if len(segments) == 1 {
		parent = "."
	} else {
		parent = strings.Join(segments[:len(segments)-1], "/")
	}
	return parent, name
}

// currentPath renders the session's current directory as an absolute path,
// by walking ".." entries back to root and recovering each hop's name from
// its parent's directory block.
func (s *Session) currentPath() string {
	var parts []string
	id := s.currentDir
	visited := map[int]bool{}
	for id != RootInode && !visited[id] {
		visited[id] = true
		in, ok := s.inodes.get(id)
		if !ok {
			break
		}
		dirBlock, ok := s.blocks.dirBlock(in.Blocks[0])
		if !ok {
			break
		}
		parentID, ok := dirBlock[".."]
		if !ok {
			break
		}
		parentIn, ok := s.inodes.get(parentID)
		if !ok {
			break
		}
		parentBlock, ok := s.blocks.dirBlock(parentIn.Blocks[0])
		if !ok {
			break
		}
		name := ""
		for n, childID := range parentBlock {
			if childID == id && n != "." && n != ".." {
				name = n
				break
			}
		}
		if name != "" {
			parts = append([]string{name}, parts...)
		}
		id = parentID
	}
	return "/" + strings.Join(parts, "/")
}
