package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/groupds/groupds/internal/protocol/wire"
)

// GroupInfo is one row of a group listing.
type GroupInfo struct {
	GID  wire.GID
	Name wire.GName

	// LastMID is the highest message id in the group, zero when empty.
	LastMID wire.MID
}

// GroupExists reports whether gid names a stored group. The name record is
// the witness: a group directory without it is treated as absent, matching
// how a half-created group looks before rollback.
func (s *Store) GroupExists(gid wire.GID) (bool, error) {
	if gid == wire.GIDCreate {
		return false, nil
	}
	return exists(s.groupNamePath(gid))
}

// GroupName reads the stored name of gid.
func (s *Store) GroupName(gid wire.GID) (wire.GName, error) {
	raw, err := os.ReadFile(s.groupNamePath(gid))
	if err != nil {
		return "", fmt.Errorf("read group name: %w", err)
	}
	name, err := wire.ParseGName(strings.TrimRight(string(raw), "\n"))
	if err != nil {
		return "", fmt.Errorf("stored name for group %s: %w", gid, err)
	}
	return name, nil
}

// IsSubscribed reports whether uid holds a subscription marker in gid.
func (s *Store) IsSubscribed(uid wire.UID, gid wire.GID) (bool, error) {
	return exists(s.subscriptionPath(gid, uid))
}

// groupIDs enumerates the GIDs of existing groups in ascending numeric
// order. Directory entries that do not parse as a GID are ignored.
func (s *Store) groupIDs() ([]wire.GID, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, groupsDir))
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}

	gids := make([]wire.GID, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		gid, err := wire.ParseGID(e.Name())
		if err != nil || gid == wire.GIDCreate {
			continue
		}
		gids = append(gids, gid)
	}
	// ReadDir sorts lexicographically, which for zero-padded two-digit
	// names is already numeric; sort anyway so the ordering contract does
	// not depend on it.
	sort.Slice(gids, func(i, j int) bool { return gids[i] < gids[j] })
	return gids, nil
}

// AllocateGroupID returns the smallest free GID in 01..99, or Full.
// Callers that go on to create the group must instead use CreateGroup,
// which holds the allocation lock across scan and mkdir.
func (s *Store) AllocateGroupID() (wire.GID, Status, error) {
	s.gidMu.Lock()
	defer s.gidMu.Unlock()
	return s.allocateGroupIDLocked()
}

func (s *Store) allocateGroupIDLocked() (wire.GID, Status, error) {
	for n := 1; n <= wire.MaxGroups; n++ {
		ok, err := s.GroupExists(wire.GID(n))
		if err != nil {
			return 0, Invalid, err
		}
		if !ok {
			return wire.GID(n), Valid, nil
		}
	}
	return 0, Full, nil
}

// CreateGroup allocates a GID and creates the group with uid as its first
// subscriber: group directory, name record, subscription marker and the
// MSG directory. The allocation lock is held for the whole sequence so two
// concurrent creations cannot collide on a GID. Any sub-step failure rolls
// back everything created so far.
func (s *Store) CreateGroup(uid wire.UID, name wire.GName) (wire.GID, Status, error) {
	s.gidMu.Lock()
	defer s.gidMu.Unlock()

	gid, st, err := s.allocateGroupIDLocked()
	if err != nil || st != Valid {
		return 0, st, err
	}

	dir := s.groupDir(gid)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return 0, Invalid, fmt.Errorf("create group dir: %w", err)
	}

	err = writeFile(s.groupNamePath(gid), []byte(name))
	if err == nil {
		err = writeFile(s.subscriptionPath(gid, uid), []byte(uid))
	}
	if err == nil {
		if mkErr := os.Mkdir(s.messagesDir(gid), 0o755); mkErr != nil {
			err = fmt.Errorf("create MSG dir: %w", mkErr)
		}
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return 0, Invalid, err
	}

	return gid, Valid, nil
}

// Subscribe adds uid to gid after verifying the supplied name matches the
// stored one byte-exact. Returns NotFound for a missing group and
// NameMismatch when the names differ. Subscribing twice is a no-op.
func (s *Store) Subscribe(uid wire.UID, gid wire.GID, name wire.GName) (Status, error) {
	ok, err := s.GroupExists(gid)
	if err != nil {
		return Invalid, err
	}
	if !ok {
		return NotFound, nil
	}

	stored, err := s.GroupName(gid)
	if err != nil {
		return Invalid, err
	}
	if stored != name {
		return NameMismatch, nil
	}

	if err := writeFile(s.subscriptionPath(gid, uid), []byte(uid)); err != nil {
		return Invalid, err
	}
	return Valid, nil
}

// Unsubscribe removes uid's subscription marker from gid. Removing an
// absent marker succeeds; only a missing group is an outcome of its own.
func (s *Store) Unsubscribe(uid wire.UID, gid wire.GID) (Status, error) {
	ok, err := s.GroupExists(gid)
	if err != nil {
		return Invalid, err
	}
	if !ok {
		return NotFound, nil
	}

	if err := os.Remove(s.subscriptionPath(gid, uid)); err != nil && !os.IsNotExist(err) {
		return Invalid, fmt.Errorf("remove subscription: %w", err)
	}
	return Valid, nil
}

// ListGroups returns every group ordered by ascending GID.
func (s *Store) ListGroups() ([]GroupInfo, error) {
	return s.listGroups(nil)
}

// ListUserGroups returns the groups uid is subscribed to, ordered by
// ascending GID.
func (s *Store) ListUserGroups(uid wire.UID) ([]GroupInfo, error) {
	return s.listGroups(&uid)
}

func (s *Store) listGroups(only *wire.UID) ([]GroupInfo, error) {
	gids, err := s.groupIDs()
	if err != nil {
		return nil, err
	}

	infos := make([]GroupInfo, 0, len(gids))
	for _, gid := range gids {
		if only != nil {
			sub, err := s.IsSubscribed(*only, gid)
			if err != nil {
				return nil, err
			}
			if !sub {
				continue
			}
		}

		name, err := s.GroupName(gid)
		if err != nil {
			return nil, err
		}
		count, err := s.MessageCount(gid)
		if err != nil {
			return nil, err
		}
		infos = append(infos, GroupInfo{GID: gid, Name: name, LastMID: wire.MID(count)})
	}
	return infos, nil
}

// ListSubscribers returns the UIDs subscribed to gid in ascending order.
// Files in the group directory that are not <UID>.txt markers (the name
// record in particular) are skipped.
func (s *Store) ListSubscribers(gid wire.GID) ([]wire.UID, error) {
	entries, err := os.ReadDir(s.groupDir(gid))
	if err != nil {
		return nil, fmt.Errorf("list subscribers: %w", err)
	}

	uids := make([]wire.UID, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		base, found := strings.CutSuffix(e.Name(), ".txt")
		if !found {
			continue
		}
		uid, err := wire.ParseUID(base)
		if err != nil {
			continue
		}
		uids = append(uids, uid)
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	return uids, nil
}
