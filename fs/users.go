package fs

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// User is one row of the fixed user table described in spec.md §6: "compile
// time constant list of {uid, username, password}; uid 0 is admin."
type User struct {
	UID      int    `mapstructure:"uid"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// defaultUserRows is the raw configuration literal for the fixed user
// table. It is intentionally untyped ([]map[string]interface{}) and routed
// through mapstructure.Decode below rather than built directly as []User,
// so that the "fixed user table is configuration, not core logic" boundary
// from spec.md §1 is a real decoding step, not a hand cast — the same shape
// a deployment would use to load this table from a config file.
var defaultUserRows = []map[string]interface{}{
	{"uid": 0, "username": "admin", "password": "admin"},
	{"uid": 1, "username": "ming", "password": "ming"},
	{"uid": 2, "username": "lugod", "password": "lugod"},
	{"uid": 3, "username": "xman", "password": "xman"},
	{"uid": 4, "username": "mamba", "password": "mamba"},
	{"uid": 5, "username": "neu", "password": "neu"},
	{"uid": 6, "username": "cse", "password": "cse"},
	{"uid": 7, "username": "2203", "password": "2203"},
}

// DecodeUsers decodes a raw user-table configuration (as would be loaded
// from JSON/YAML/TOML) into validated User records.
func DecodeUsers(rows []map[string]interface{}) ([]User, error) {
	users := make([]User, len(rows))
	for i, row := range rows {
		var u User
		if err := mapstructure.Decode(row, &u); err != nil {
			return nil, fmt.Errorf("decoding user row %d: %w", i, err)
		}
		users[i] = u
	}
	return users, nil
}

// DefaultUsers returns the compile-time default user table.
func DefaultUsers() []User {
	users, err := DecodeUsers(defaultUserRows)
	if err != nil {
		// defaultUserRows is a fixed literal controlled by this package; a
		// decode failure here means the literal itself is malformed.
		panic(fmt.Sprintf("vfisk: built-in user table is malformed: %v", err))
	}
	return users
}

// userTable indexes users by uid and username for O(1) lookups.
type userTable struct {
	byUID  map[int]User
	byName map[string]User
}

func newUserTable(users []User) *userTable {
	t := &userTable{byUID: make(map[int]User), byName: make(map[string]User)}
	for _, u := range users {
		t.byUID[u.UID] = u
		t.byName[u.Username] = u
	}
	return t
}

func (t *userTable) findByCredentials(username, password string) (User, bool) {
	u, ok := t.byName[username]
	if !ok || u.Password != password {
		return User{}, false
	}
	return u, true
}

func (t *userTable) findByName(username string) (User, bool) {
	u, ok := t.byName[username]
	return u, ok
}

func (t *userTable) findByUID(uid int) (User, bool) {
	u, ok := t.byUID[uid]
	return u, ok
}

func (t *userTable) all() []User {
	out := make([]User, 0, len(t.byUID))
	for _, u := range t.byUID {
		out = append(out, u)
	}
	return out
}
