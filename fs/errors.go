package fs

import (
	"errors"
	"strings"
)

// Code identifies one of the distinct failure modes a Session operation can
// report. Each maps to exactly one user-facing message.
type Code int

const (
	_ Code = iota
	NotLoggedIn
	PathNotFound
	NotADirectory
	AlreadyExists
	PermissionDenied
	InUse
	DirNotEmpty
	InvalidFd
	InvalidMode
	WrongModeForOp
	InvalidOffset
	InvalidPerms
	UserNotFound
	NoFreeBlocks
	NoFreeInodes
	DiskFull
	CorruptFreeList
)

var codeMessages = map[Code]string{
	NotLoggedIn:       "not logged in",
	PathNotFound:      "path not found",
	NotADirectory:     "not a directory",
	AlreadyExists:     "already exists",
	PermissionDenied:  "permission denied",
	InUse:             "in use",
	DirNotEmpty:       "directory not empty",
	InvalidFd:         "invalid file descriptor",
	InvalidMode:       "invalid open mode",
	WrongModeForOp:    "file not opened in a mode that permits this operation",
	InvalidOffset:     "invalid offset",
	InvalidPerms:      "invalid permissions",
	UserNotFound:      "user not found",
	NoFreeBlocks:      "no free blocks",
	NoFreeInodes:      "no free inodes",
	DiskFull:          "disk full",
	CorruptFreeList:   "corrupt free list",
}

// Error is the typed error every Session operation returns on failure. It
// carries a Code so callers can switch on failure kind with errors.Is /
// errors.As instead of matching message substrings.
type Error struct {
	Code Code
	Path string
	Err  error
}

func (e *Error) Error() string {
	msg := codeMessages[e.Code]
	if msg == "" {
		msg = "filesystem error"
	}
	if e.Path != "" {
		msg = msg + ": " + e.Path
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match by code: errors.Is(err, &fs.Error{Code: fs.NoFreeInodes})
// reports true for any *Error in err's chain with that Code, whatever its
// Path or wrapped error.
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

func newErr(code Code, path string) *Error {
	return &Error{Code: code, Path: path}
}

func wrapErr(code Code, path string, err error) *Error {
	return &Error{Code: code, Path: path, Err: err}
}

// MultiError aggregates the per-child errors collected during a recursive
// delete, per spec: "collect per-child errors and return them aggregated."
type MultiError struct {
	Errors []error
}

func (m *MultiError) Error() string {
	parts := make([]string, 0, len(m.Errors))
	for _, e := range m.Errors {
		parts = append(parts, e.Error())
	}
	return strings.Join(parts, "\n")
}

func (m *MultiError) Unwrap() []error { return m.Errors }
