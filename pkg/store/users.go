package store

import (
	"bytes"
	"fmt"
	"os"

	"github.com/groupds/groupds/internal/protocol/wire"
)

// UserExists reports whether uid is registered.
func (s *Store) UserExists(uid wire.UID) (bool, error) {
	return exists(s.userDir(uid))
}

// UserLoggedIn reports whether uid currently holds a login marker.
func (s *Store) UserLoggedIn(uid wire.UID) (bool, error) {
	return exists(s.loginPath(uid))
}

// ValidateUser combines existence and login checks: Valid when the user
// exists and is logged in, Invalid when unregistered, NotLoggedIn otherwise.
func (s *Store) ValidateUser(uid wire.UID) (Status, error) {
	ok, err := s.UserExists(uid)
	if err != nil {
		return Invalid, err
	}
	if !ok {
		return Invalid, nil
	}

	in, err := s.UserLoggedIn(uid)
	if err != nil {
		return Invalid, err
	}
	if !in {
		return NotLoggedIn, nil
	}
	return Valid, nil
}

// CheckPassword byte-compares pass against the stored password. The stored
// file must hold exactly the fixed password length; anything else is a
// mismatch, not an I/O error.
func (s *Store) CheckPassword(uid wire.UID, pass string) (Status, error) {
	stored, err := os.ReadFile(s.passPath(uid))
	if err != nil {
		if os.IsNotExist(err) {
			return Invalid, nil
		}
		return Invalid, fmt.Errorf("read password: %w", err)
	}
	if len(stored) != wire.MaxPass || !bytes.Equal(stored, []byte(pass)) {
		return Invalid, nil
	}
	return Valid, nil
}

// CreateUser registers uid with the given password. Returns Duplicate if
// the user already exists. A failed password write rolls the user
// directory back so no passwordless user is left behind.
func (s *Store) CreateUser(uid wire.UID, pass string) (Status, error) {
	dir := s.userDir(uid)
	if err := os.Mkdir(dir, 0o755); err != nil {
		if os.IsExist(err) {
			return Duplicate, nil
		}
		return Invalid, fmt.Errorf("create user dir: %w", err)
	}

	if err := writeFile(s.passPath(uid), []byte(pass)); err != nil {
		_ = os.RemoveAll(dir)
		return Invalid, err
	}
	return Valid, nil
}

// DeleteUser unregisters uid: password, login marker and the user
// directory go, and every subscription marker the user holds across all
// existing groups is removed. Messages the user posted are retained.
// Returns Invalid if the user does not exist.
func (s *Store) DeleteUser(uid wire.UID) (Status, error) {
	ok, err := s.UserExists(uid)
	if err != nil {
		return Invalid, err
	}
	if !ok {
		return Invalid, nil
	}

	if err := os.RemoveAll(s.userDir(uid)); err != nil {
		return Invalid, fmt.Errorf("remove user dir: %w", err)
	}

	// Drop subscription markers from the groups that exist; there is no
	// point probing all 99 possible GIDs.
	groups, err := s.groupIDs()
	if err != nil {
		return Invalid, err
	}
	for _, gid := range groups {
		if err := os.Remove(s.subscriptionPath(gid, uid)); err != nil && !os.IsNotExist(err) {
			return Invalid, fmt.Errorf("remove subscription %s/%s: %w", gid, uid, err)
		}
	}
	return Valid, nil
}

// SetLogin creates the login marker for uid. Logging in an already
// logged-in user is a no-op.
func (s *Store) SetLogin(uid wire.UID) error {
	return writeFile(s.loginPath(uid), nil)
}

// ClearLogin removes the login marker. Returns NotLoggedIn if no marker
// was present.
func (s *Store) ClearLogin(uid wire.UID) (Status, error) {
	if err := os.Remove(s.loginPath(uid)); err != nil {
		if os.IsNotExist(err) {
			return NotLoggedIn, nil
		}
		return Invalid, fmt.Errorf("remove login marker: %w", err)
	}
	return Valid, nil
}
