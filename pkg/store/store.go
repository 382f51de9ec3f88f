package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/groupds/groupds/internal/protocol/wire"
)

// Directory layout, relative to the store root. The layout is the wire
// contract of persisted state: a server restarted against an existing root
// must see the same data, so every path below is reproduced byte-exact,
// including the literal spaces in the per-message filenames.
//
//	USERS/<UID>/<UID>_pass.txt    password, exactly 8 bytes
//	USERS/<UID>/<UID>_login.txt   login marker, presence-only
//	GROUPS/<GID>/<GID>_name.txt   group name, 1..24 bytes
//	GROUPS/<GID>/<UID>.txt        subscription marker
//	GROUPS/<GID>/MSG/<MID>/       one directory per message
const (
	usersDir  = "USERS"
	groupsDir = "GROUPS"
	msgDir    = "MSG"

	authorFile = "A U T H O R.txt"
	textFile   = "T E X T.txt"
	fnameFile  = "F N A M E.txt"
)

// Store is a filesystem-rooted handle over the directory layout above.
// The filesystem is the single source of truth: group counts and next
// message ids are always derived from the layout, never cached.
//
// A Store is safe for concurrent use. Plain reads and writes need no
// mutual exclusion (writers mkdir first, so readers tolerate mid-write
// entries), but the two read-then-create allocations are racy and are
// serialized here: MID allocation per group, GID allocation globally.
type Store struct {
	root string

	gidMu sync.Mutex
	// Index 1..99 by GID. Entry 0 is unused; GID 00 never stores a group.
	midMu [wire.MaxGroups + 1]sync.Mutex
}

// Open prepares a store rooted at dir, creating the top-level USERS and
// GROUPS directories if missing.
func Open(dir string) (*Store, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve store root %q: %w", dir, err)
	}

	for _, sub := range []string{usersDir, groupsDir} {
		if err := os.MkdirAll(filepath.Join(abs, sub), 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", sub, err)
		}
	}

	return &Store{root: abs}, nil
}

// Root returns the absolute store root directory.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) userDir(uid wire.UID) string {
	return filepath.Join(s.root, usersDir, uid.String())
}

func (s *Store) passPath(uid wire.UID) string {
	return filepath.Join(s.userDir(uid), uid.String()+"_pass.txt")
}

func (s *Store) loginPath(uid wire.UID) string {
	return filepath.Join(s.userDir(uid), uid.String()+"_login.txt")
}

func (s *Store) groupDir(gid wire.GID) string {
	return filepath.Join(s.root, groupsDir, gid.String())
}

func (s *Store) groupNamePath(gid wire.GID) string {
	return filepath.Join(s.groupDir(gid), gid.String()+"_name.txt")
}

func (s *Store) subscriptionPath(gid wire.GID, uid wire.UID) string {
	return filepath.Join(s.groupDir(gid), uid.String()+".txt")
}

func (s *Store) messagesDir(gid wire.GID) string {
	return filepath.Join(s.groupDir(gid), msgDir)
}

func (s *Store) messageDir(gid wire.GID, mid wire.MID) string {
	return filepath.Join(s.messagesDir(gid), mid.String())
}

// exists reports whether the path exists, distinguishing absence from
// other stat failures.
func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", path, err)
}

// writeFile creates path with the given content, failing if a partial
// write would leave a truncated file behind.
func writeFile(path string, content []byte) error {
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
