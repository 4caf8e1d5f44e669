package fs

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := Open(nil, true)
	require.NoError(t, err)
	return s
}

func TestFormatThenLoginAdminListsHomeDirectories(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Login("admin", "admin")
	require.NoError(t, err)

	out, err := s.Ls("/home")
	require.NoError(t, err)
	for _, u := range DefaultUsers() {
		require.Contains(t, out, u.Username)
	}
}

func TestDirectoryInvariantsHoldAfterFormat(t *testing.T) {
	s := newTestSession(t)
	root, ok := s.inodes.get(RootInode)
	require.True(t, ok)
	rootBlock, ok := s.blocks.dirBlock(root.Blocks[0])
	require.True(t, ok)
	require.Equal(t, RootInode, rootBlock["."])
	require.Equal(t, RootInode, rootBlock[".."])

	home, ok := s.inodes.get(HomeInode)
	require.True(t, ok)
	homeBlock, ok := s.blocks.dirBlock(home.Blocks[0])
	require.True(t, ok)
	require.Equal(t, HomeInode, homeBlock["."])
	require.Equal(t, RootInode, homeBlock[".."])
}

func TestPermissionEnforcementAcrossUsers(t *testing.T) {
	s := newTestSession(t)

	_, err := s.Login("ming", "ming")
	require.NoError(t, err)
	_, err = s.Mkdir("/home/ming/a")
	require.NoError(t, err)
	_, err = s.Chmod("/home/ming/a", "700")
	require.NoError(t, err)
	_, err = s.Logout()
	require.NoError(t, err)

	_, err = s.Login("lugod", "lugod")
	require.NoError(t, err)
	_, err = s.Chdir("/home/ming/a")
	require.Error(t, err)
	var fsErr *Error
	require.ErrorAs(t, err, &fsErr)
	require.Equal(t, PermissionDenied, fsErr.Code)
	_, err = s.Logout()
	require.NoError(t, err)

	_, err = s.Login("ming", "ming")
	require.NoError(t, err)
	_, err = s.Chdir("/home/ming/a")
	require.NoError(t, err)
}

func TestCreateWriteCloseReadRoundTrip(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)

	_, err = s.Create("f")
	require.NoError(t, err)

	fd, err := s.Open("f", ModeWrite)
	require.NoError(t, err)
	_, err = s.Write(fd, []byte("hello"))
	require.NoError(t, err)
	_, err = s.Close(fd)
	require.NoError(t, err)

	fd2, err := s.Open("f", ModeRead)
	require.NoError(t, err)
	data, err := s.Read(fd2, nil)
	require.NoError(t, err)
	require.Equal(t, "hello", string(data))
}

func TestOverwriteSplicesWithoutExtendingSize(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)
	_, err = s.Create("f")
	require.NoError(t, err)

	fd, err := s.Open("f", ModeWrite)
	require.NoError(t, err)
	_, err = s.Write(fd, []byte("hello"))
	require.NoError(t, err)
	_, err = s.Close(fd)
	require.NoError(t, err)

	fd2, err := s.Open("f", ModeReadWrite)
	require.NoError(t, err)
	_, err = s.Seek(fd2, 0, SeekSet)
	require.NoError(t, err)
	_, err = s.Write(fd2, []byte("HI"))
	require.NoError(t, err)
	_, err = s.Close(fd2)
	require.NoError(t, err)

	fd3, err := s.Open("f", ModeRead)
	require.NoError(t, err)
	data, err := s.Read(fd3, nil)
	require.NoError(t, err)
	require.Equal(t, "HIllo", string(data))

	in, ok := s.inodes.get(s.openFiles[fd3].Inode)
	require.True(t, ok)
	require.Equal(t, 5, in.Size)
}

func TestAppendModeAllocatesOneBlockPerWrite(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)
	_, err = s.Create("f")
	require.NoError(t, err)

	fd, err := s.Open("f", ModeAppend)
	require.NoError(t, err)
	_, err = s.Write(fd, []byte("abc"))
	require.NoError(t, err)
	_, err = s.Write(fd, []byte("de"))
	require.NoError(t, err)
	_, err = s.Close(fd)
	require.NoError(t, err)

	fd2, err := s.Open("f", ModeRead)
	require.NoError(t, err)
	data, err := s.Read(fd2, nil)
	require.NoError(t, err)
	require.Equal(t, "abcde", string(data))

	in, ok := s.inodes.get(s.openFiles[fd2].Inode)
	require.True(t, ok)
	require.Len(t, in.Blocks, 2)
}

func TestHardLinkSemanticsAndDeletion(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)
	_, err = s.Create("/home/admin/f")
	require.NoError(t, err)

	fd, err := s.Open("/home/admin/f", ModeWrite)
	require.NoError(t, err)
	_, err = s.Write(fd, []byte("payload"))
	require.NoError(t, err)
	_, err = s.Close(fd)
	require.NoError(t, err)

	_, err = s.Ln("/home/admin/f", "/home/admin/g")
	require.NoError(t, err)

	_, err = s.Delete("/home/admin/f", false)
	require.NoError(t, err)

	fd2, err := s.Open("/home/admin/g", ModeRead)
	require.NoError(t, err)
	data, err := s.Read(fd2, nil)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
	_, err = s.Close(fd2)
	require.NoError(t, err)

	gID, err := s.resolvePath("/home/admin/g")
	require.NoError(t, err)
	in, ok := s.inodes.get(gID)
	require.True(t, ok)
	require.Equal(t, 1, in.Links)

	_, err = s.Delete("/home/admin/g", false)
	require.NoError(t, err)
	_, ok = s.inodes.get(gID)
	require.False(t, ok)
}

func TestLockSafetyBlocksDeleteOfOpenFile(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)
	_, err = s.Create("f")
	require.NoError(t, err)

	fd, err := s.Open("f", ModeRead)
	require.NoError(t, err)

	_, err = s.Delete("f", false)
	require.Error(t, err)
	var fsErr *Error
	require.ErrorAs(t, err, &fsErr)
	require.Equal(t, InUse, fsErr.Code)

	_, err = s.Close(fd)
	require.NoError(t, err)
	_, err = s.Delete("f", false)
	require.NoError(t, err)
}

func TestSeekAndReadWindow(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)
	_, err = s.Create("f")
	require.NoError(t, err)

	fd, err := s.Open("f", ModeWrite)
	require.NoError(t, err)
	_, err = s.Write(fd, []byte("0123456789"))
	require.NoError(t, err)
	_, err = s.Close(fd)
	require.NoError(t, err)

	fd2, err := s.Open("f", ModeRead)
	require.NoError(t, err)
	_, err = s.Seek(fd2, 3, SeekSet)
	require.NoError(t, err)
	n := 4
	data, err := s.Read(fd2, &n)
	require.NoError(t, err)
	require.Equal(t, "3456", string(data))
}

func TestDiskFullThenDeleteFreesBlockForReallocation(t *testing.T) {
	// One file, repeated append writes: each call allocates exactly one
	// block (per spec.md §4.6), so this exhausts the block pool without
	// touching the (much smaller) inode pool.
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)
	_, err = s.Create("f")
	require.NoError(t, err)
	fd, err := s.Open("f", ModeAppend)
	require.NoError(t, err)

	var lastErr error
	for i := 0; i < TotalBlocks+1; i++ {
		if _, err := s.Write(fd, []byte("x")); err != nil {
			lastErr = err
			break
		}
	}
	require.Error(t, lastErr)
	var fsErr *Error
	require.ErrorAs(t, lastErr, &fsErr)
	require.Equal(t, DiskFull, fsErr.Code)

	_, err = s.Close(fd)
	require.NoError(t, err)
	_, err = s.Delete("f", false)
	require.NoError(t, err)

	_, err = s.Create("g")
	require.NoError(t, err)
	fd2, err := s.Open("g", ModeAppend)
	require.NoError(t, err)
	_, err = s.Write(fd2, []byte("y"))
	require.NoError(t, err)
	_, err = s.Close(fd2)
	require.NoError(t, err)
}

func TestRecursiveDeleteRequiresFlag(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)
	_, err = s.Mkdir("d")
	require.NoError(t, err)
	_, err = s.Create("d/f")
	require.NoError(t, err)

	_, err = s.Delete("d", false)
	require.Error(t, err)
	var fsErr *Error
	require.ErrorAs(t, err, &fsErr)
	require.Equal(t, DirNotEmpty, fsErr.Code)

	_, err = s.Delete("d", true)
	require.NoError(t, err)
}

func TestSudoGrantsTemporaryElevation(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("ming", "ming")
	require.NoError(t, err)
	require.False(t, s.IsSudo())

	_, err = s.Sudo(func() (string, error) {
		require.True(t, s.IsSudo())
		return s.Chmod("/home/xman", "700")
	})
	require.NoError(t, err)
	require.False(t, s.IsSudo())
}

func TestCpIntoExistingDirUsesSourceBasename(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)

	_, err = s.Create("/home/admin/f")
	require.NoError(t, err)
	fd, err := s.Open("/home/admin/f", ModeWrite)
	require.NoError(t, err)
	_, err = s.Write(fd, []byte("payload"))
	require.NoError(t, err)
	_, err = s.Close(fd)
	require.NoError(t, err)

	_, err = s.Mkdir("/home/admin/existingDir")
	require.NoError(t, err)

	_, err = s.Cp("/home/admin/f", "/home/admin/existingDir", false)
	require.NoError(t, err)

	// Must land at existingDir/f (basename of src), not existingDir/existingDir.
	_, err = s.resolvePath("/home/admin/existingDir/f")
	require.NoError(t, err)
	_, err = s.resolvePath("/home/admin/existingDir/existingDir")
	require.Error(t, err)

	fd2, err := s.Open("/home/admin/existingDir/f", ModeRead)
	require.NoError(t, err)
	data, err := s.Read(fd2, nil)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data))
	_, err = s.Close(fd2)
	require.NoError(t, err)

	// original still present and independent (deep copy, not a link)
	fd3, err := s.Open("/home/admin/f", ModeRead)
	require.NoError(t, err)
	data2, err := s.Read(fd3, nil)
	require.NoError(t, err)
	require.Equal(t, "payload", string(data2))
	_, err = s.Close(fd3)
	require.NoError(t, err)
}

func TestCpReplacesExistingFile(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)

	_, err = s.Create("/home/admin/src")
	require.NoError(t, err)
	fd, err := s.Open("/home/admin/src", ModeWrite)
	require.NoError(t, err)
	_, err = s.Write(fd, []byte("new"))
	require.NoError(t, err)
	_, err = s.Close(fd)
	require.NoError(t, err)

	_, err = s.Create("/home/admin/dst")
	require.NoError(t, err)
	fd2, err := s.Open("/home/admin/dst", ModeWrite)
	require.NoError(t, err)
	_, err = s.Write(fd2, []byte("old content here"))
	require.NoError(t, err)
	_, err = s.Close(fd2)
	require.NoError(t, err)

	_, err = s.Cp("/home/admin/src", "/home/admin/dst", false)
	require.NoError(t, err)

	fd3, err := s.Open("/home/admin/dst", ModeRead)
	require.NoError(t, err)
	data, err := s.Read(fd3, nil)
	require.NoError(t, err)
	require.Equal(t, "new", string(data))
	_, err = s.Close(fd3)
	require.NoError(t, err)
}

func TestMvRenamesAndUpdatesParentLinkage(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)

	_, err = s.Mkdir("/home/admin/src")
	require.NoError(t, err)
	_, err = s.Mkdir("/home/admin/dst")
	require.NoError(t, err)
	_, err = s.Create("/home/admin/src/f")
	require.NoError(t, err)

	_, err = s.Mv("/home/admin/src/f", "/home/admin/dst/f")
	require.NoError(t, err)

	_, err = s.resolvePath("/home/admin/src/f")
	require.Error(t, err)
	_, err = s.resolvePath("/home/admin/dst/f")
	require.NoError(t, err)

	// mv a directory and confirm its ".." entry follows it to the new parent
	_, err = s.Mv("/home/admin/src", "/home/admin/dst/src")
	require.NoError(t, err)

	movedID, err := s.resolvePath("/home/admin/dst/src")
	require.NoError(t, err)
	movedInode, ok := s.inodes.get(movedID)
	require.True(t, ok)
	movedBlock, ok := s.blocks.dirBlock(movedInode.Blocks[0])
	require.True(t, ok)
	dstID, err := s.resolvePath("/home/admin/dst")
	require.NoError(t, err)
	require.Equal(t, dstID, movedBlock[".."])
}

func TestFindLocatesEntriesByNameSkippingUnreadableSubtrees(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Login("admin", "admin")
	require.NoError(t, err)

	_, err = s.Mkdir("/home/admin/a")
	require.NoError(t, err)
	_, err = s.Mkdir("/home/admin/a/b")
	require.NoError(t, err)
	_, err = s.Create("/home/admin/a/b/target")
	require.NoError(t, err)
	_, err = s.Mkdir("/home/admin/secret")
	require.NoError(t, err)
	_, err = s.Create("/home/admin/secret/target")
	require.NoError(t, err)
	_, err = s.Chmod("/home/admin/secret", "000")
	require.NoError(t, err)

	_, err = s.Logout()
	require.NoError(t, err)
	_, err = s.Login("ming", "ming")
	require.NoError(t, err)
	_, err = s.Chdir("/home/admin")
	require.NoError(t, err)

	out, err := s.Find("target")
	require.NoError(t, err)
	require.Contains(t, out, "/home/admin/a/b/target")
	require.NotContains(t, out, "secret")
}
