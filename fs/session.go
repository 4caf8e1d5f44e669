package fs

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/vfisk/vfisk/backend"
)

// openFileEntry is spec.md §3's "{inode_id, mode, offset}".
type openFileEntry struct {
	Inode  int
	Mode   OpenMode
	Offset int
}

// Session is the explicit filesystem handle the Design Notes call for,
// replacing the reference implementation's ambient globals: "the current
// user, current directory inode, and sudo flag live on the handle." It
// implements the full operation surface of spec.md §6.
type Session struct {
	backend backend.Storage

	superblock *superblock
	inodes     *inodeTable
	blocks     *blockStore
	users      *userTable

	user       *User
	currentDir int
	sudo       bool

	openFiles map[int]*openFileEntry
	nextFd    int

	log     *logrus.Entry
	metrics *metrics
}

// Option configures a new Session.
type Option func(*Session)

// WithUsers overrides the default fixed user table.
func WithUsers(users []User) Option {
	return func(s *Session) { s.users = newUserTable(users) }
}

// WithMetricsRegisterer registers the session's prometheus collectors
// against reg instead of leaving them unregistered.
func WithMetricsRegisterer(reg prometheus.Registerer) Option {
	return func(s *Session) { s.metrics = newMetrics(reg) }
}

// WithLogger overrides the default logrus logger used for operation and
// allocator diagnostics.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Session) { s.log = l.WithField("component", "vfisk") }
}

// Open formats a fresh image into b when fresh is true, and otherwise loads
// the existing image from b, per spec.md §6: "On startup, if absent, format
// produces it; if present, it is loaded verbatim." The backend's contents
// are not inspected; the caller picks the case through fresh (for example
// true after backend/file.CreateFromPath, false after OpenFromPath).
func Open(b backend.Storage, fresh bool, opts ...Option) (*Session, error) {
	s := &Session{
		backend:   b,
		openFiles: make(map[int]*openFileEntry),
		users:     newUserTable(DefaultUsers()),
		log:       logrus.WithField("component", "vfisk"),
		metrics:   newMetrics(nil),
	}
	for _, opt := range opts {
		opt(s)
	}
	if fresh {
		if err := s.Format(); err != nil {
			return nil, err
		}
		return s, nil
	}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Format reinitializes the image: root (inode 0, block 0) and /home (inode
// 1, block 1), the populated grouped free list, and a home directory per
// user in the table, per spec.md §4.7 and §6. It preserves and restores any
// prior session exactly as the reference implementation does.
func (s *Session) Format() error {
	priorUser := s.user
	priorSudo := s.sudo

	s.superblock = newSuperblock()
	s.inodes = newInodeTable()
	s.blocks = newBlockStore()
	s.openFiles = make(map[int]*openFileEntry)
	s.nextFd = 0

	root := newDirInode(RootInode, 0, 0o755)
	root.Blocks = []int{RootBlock}
	s.inodes.set(root)
	s.blocks.set(RootBlock, newDirBlock(RootInode, RootInode))

	home := newDirInode(HomeInode, 0, 0o755)
	home.Blocks = []int{HomeBlock}
	s.inodes.set(home)
	s.blocks.set(HomeBlock, newDirBlock(HomeInode, RootInode))
	s.blocks.blocks[RootBlock].(dirEntries)["home"] = HomeInode

	s.superblock.populateFreeList(s.blocks)

	s.sudo = true
	admin, _ := s.users.findByUID(0)
	s.user = &admin
	if _, err := s.Chdir("/home"); err != nil {
		return fmt.Errorf("vfisk: format: %w", err)
	}
	for _, u := range s.users.all() {
		s.user = &u
		if _, err := s.Mkdir(u.Username); err != nil {
			return fmt.Errorf("vfisk: format: creating home for %s: %w", u.Username, err)
		}
	}
	s.user = nil
	s.currentDir = RootInode
	s.sudo = false

	if err := s.save(); err != nil {
		return err
	}

	s.log.Info("vfisk: formatted fresh image")

	if priorUser != nil {
		if restored, ok := s.users.findByName(priorUser.Username); ok {
			s.user = &restored
			_, _ = s.Chdir("/home/" + restored.Username)
		}
	}
	s.sudo = priorSudo
	return nil
}

// Login validates plaintext username/password pairs against the user
// table, sets the principal, and chdirs to /home/<user>, per spec.md §6.
func (s *Session) Login(username, password string) (string, error) {
	u, ok := s.users.findByCredentials(username, password)
	if !ok {
		err := newErr(PermissionDenied, username)
		s.metrics.observeOp("login", err)
		return "", err
	}
	s.user = &u
	s.currentDir = RootInode
	if _, err := s.Chdir("/home/" + username); err != nil {
		s.user = nil
		s.metrics.observeOp("login", err)
		return "", err
	}
	s.metrics.observeOp("login", nil)
	return fmt.Sprintf("Welcome, %s!", username), nil
}

// Logout clears the principal.
func (s *Session) Logout() (string, error) {
	if s.user == nil {
		return "", newErr(NotLoggedIn, "")
	}
	s.user = nil
	s.currentDir = 0
	s.sudo = false
	if err := s.save(); err != nil {
		return "", err
	}
	return "Logged out", nil
}

// Sudo runs fn (an operation invocation) with administrative privileges for
// its duration only, per spec.md §6's "sudo <cmd> [args]" entry. Callers
// are responsible for prompting for and verifying the admin password
// before invoking Sudo; Session itself does not manage prompts (those are
// the out-of-scope interactive shell's job).
func (s *Session) Sudo(fn func() (string, error)) (string, error) {
	if s.user == nil {
		return "", newErr(NotLoggedIn, "")
	}
	s.sudo = true
	defer func() { s.sudo = false }()
	return fn()
}

// IsSudo reports whether the session currently carries elevated privilege.
func (s *Session) IsSudo() bool { return s.sudo }

// CurrentUser returns the logged-in principal, or nil if none.
func (s *Session) CurrentUser() *User {
	if s.user == nil {
		return nil
	}
	u := *s.user
	return &u
}

// Pwd returns the session's current directory as an absolute path.
func (s *Session) Pwd() (string, error) {
	if s.user == nil {
		return "", newErr(NotLoggedIn, "")
	}
	return s.currentPath(), nil
}
