package store

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/groupds/groupds/internal/protocol/wire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	return s
}

func mustUID(t *testing.T, s string) wire.UID {
	t.Helper()
	uid, err := wire.ParseUID(s)
	require.NoError(t, err)
	return uid
}

func mustGName(t *testing.T, s string) wire.GName {
	t.Helper()
	name, err := wire.ParseGName(s)
	require.NoError(t, err)
	return name
}

func TestOpenCreatesLayout(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	require.NoError(t, err)

	for _, sub := range []string{"USERS", "GROUPS"} {
		info, err := os.Stat(filepath.Join(s.Root(), sub))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestUserLifecycle(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	ok, err := s.UserExists(uid)
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := s.CreateUser(uid, "password")
	require.NoError(t, err)
	assert.Equal(t, Valid, st)

	// Registering again is a duplicate, not an error.
	st, err = s.CreateUser(uid, "password")
	require.NoError(t, err)
	assert.Equal(t, Duplicate, st)

	// The password file holds exactly the eight bytes.
	raw, err := os.ReadFile(filepath.Join(s.Root(), "USERS", "12345", "12345_pass.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("password"), raw)

	st, err = s.CheckPassword(uid, "password")
	require.NoError(t, err)
	assert.Equal(t, Valid, st)

	st, err = s.CheckPassword(uid, "passwore")
	require.NoError(t, err)
	assert.Equal(t, Invalid, st)
}

func TestLoginMarker(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	_, err := s.CreateUser(uid, "password")
	require.NoError(t, err)

	st, err := s.ValidateUser(uid)
	require.NoError(t, err)
	assert.Equal(t, NotLoggedIn, st)

	require.NoError(t, s.SetLogin(uid))

	st, err = s.ValidateUser(uid)
	require.NoError(t, err)
	assert.Equal(t, Valid, st)

	// Logging in twice is a no-op.
	require.NoError(t, s.SetLogin(uid))

	st, err = s.ClearLogin(uid)
	require.NoError(t, err)
	assert.Equal(t, Valid, st)

	// A second logout finds no marker.
	st, err = s.ClearLogin(uid)
	require.NoError(t, err)
	assert.Equal(t, NotLoggedIn, st)
}

func TestValidateUnknownUser(t *testing.T) {
	s := newTestStore(t)

	st, err := s.ValidateUser(mustUID(t, "99999"))
	require.NoError(t, err)
	assert.Equal(t, Invalid, st)
}

func TestDeleteUserCascades(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")
	other := mustUID(t, "54321")

	_, err := s.CreateUser(uid, "password")
	require.NoError(t, err)
	_, err = s.CreateUser(other, "password")
	require.NoError(t, err)

	gid, st, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)
	require.Equal(t, Valid, st)

	_, err = s.Subscribe(other, gid, mustGName(t, "cooking"))
	require.NoError(t, err)

	mid, err := s.AppendMessage(gid, uid, []byte("hello"))
	require.NoError(t, err)

	st, err = s.DeleteUser(uid)
	require.NoError(t, err)
	assert.Equal(t, Valid, st)

	ok, err := s.UserExists(uid)
	require.NoError(t, err)
	assert.False(t, ok)

	// The subscription marker went with the user; the other stays.
	sub, err := s.IsSubscribed(uid, gid)
	require.NoError(t, err)
	assert.False(t, sub)
	sub, err = s.IsSubscribed(other, gid)
	require.NoError(t, err)
	assert.True(t, sub)

	// Posted messages are retained.
	msgs, err := s.ReadMessageRange(gid, mid)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, uid, msgs[0].Author)

	st, err = s.DeleteUser(uid)
	require.NoError(t, err)
	assert.Equal(t, Invalid, st)
}

func TestCreateGroupAllocatesDensely(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	g1, st, err := s.CreateGroup(uid, mustGName(t, "first"))
	require.NoError(t, err)
	require.Equal(t, Valid, st)
	assert.Equal(t, wire.GID(1), g1)

	g2, st, err := s.CreateGroup(uid, mustGName(t, "second"))
	require.NoError(t, err)
	require.Equal(t, Valid, st)
	assert.Equal(t, wire.GID(2), g2)

	// The creator is subscribed and the name record matches byte-exact.
	sub, err := s.IsSubscribed(uid, g1)
	require.NoError(t, err)
	assert.True(t, sub)

	name, err := s.GroupName(g2)
	require.NoError(t, err)
	assert.Equal(t, wire.GName("second"), name)
}

func TestCreateGroupFull(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	for i := 1; i <= wire.MaxGroups; i++ {
		_, st, err := s.CreateGroup(uid, mustGName(t, fmt.Sprintf("group%02d", i)))
		require.NoError(t, err)
		require.Equal(t, Valid, st)
	}

	_, st, err := s.CreateGroup(uid, mustGName(t, "overflow"))
	require.NoError(t, err)
	assert.Equal(t, Full, st)
}

func TestSubscribe(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")
	other := mustUID(t, "54321")

	gid, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)

	st, err := s.Subscribe(other, gid, mustGName(t, "cooking"))
	require.NoError(t, err)
	assert.Equal(t, Valid, st)

	// Same call again is a no-op.
	st, err = s.Subscribe(other, gid, mustGName(t, "cooking"))
	require.NoError(t, err)
	assert.Equal(t, Valid, st)

	st, err = s.Subscribe(other, gid, mustGName(t, "baking"))
	require.NoError(t, err)
	assert.Equal(t, NameMismatch, st)

	st, err = s.Subscribe(other, wire.GID(42), mustGName(t, "cooking"))
	require.NoError(t, err)
	assert.Equal(t, NotFound, st)
}

func TestUnsubscribe(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	gid, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)

	st, err := s.Unsubscribe(uid, gid)
	require.NoError(t, err)
	assert.Equal(t, Valid, st)

	// No marker left, still fine.
	st, err = s.Unsubscribe(uid, gid)
	require.NoError(t, err)
	assert.Equal(t, Valid, st)

	st, err = s.Unsubscribe(uid, wire.GID(42))
	require.NoError(t, err)
	assert.Equal(t, NotFound, st)
}

func TestListGroups(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")
	other := mustUID(t, "54321")

	g1, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)
	g2, _, err := s.CreateGroup(other, mustGName(t, "chess"))
	require.NoError(t, err)

	_, err = s.AppendMessage(g2, other, []byte("opening theory"))
	require.NoError(t, err)

	all, err := s.ListGroups()
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, GroupInfo{GID: g1, Name: "cooking", LastMID: 0}, all[0])
	assert.Equal(t, GroupInfo{GID: g2, Name: "chess", LastMID: 1}, all[1])

	mine, err := s.ListUserGroups(uid)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, g1, mine[0].GID)
}

func TestListSubscribers(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "54321")
	other := mustUID(t, "12345")

	gid, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)
	_, err = s.Subscribe(other, gid, mustGName(t, "cooking"))
	require.NoError(t, err)

	// The name record lives next to the markers and must not be listed.
	uids, err := s.ListSubscribers(gid)
	require.NoError(t, err)
	assert.Equal(t, []wire.UID{"12345", "54321"}, uids)
}

func TestAppendMessage(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	gid, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)

	m1, err := s.AppendMessage(gid, uid, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, wire.MID(1), m1)

	m2, err := s.AppendMessage(gid, uid, []byte("second"))
	require.NoError(t, err)
	assert.Equal(t, wire.MID(2), m2)

	// On-disk layout, byte-exact.
	dir := filepath.Join(s.Root(), "GROUPS", "01", "MSG", "0001")
	raw, err := os.ReadFile(filepath.Join(dir, "A U T H O R.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("12345"), raw)
	raw, err = os.ReadFile(filepath.Join(dir, "T E X T.txt"))
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), raw)
}

func TestAttachFile(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	gid, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)
	mid, err := s.AppendMessage(gid, uid, []byte("recipe attached"))
	require.NoError(t, err)

	body := []byte("flour, water, salt\n")
	fname, err := wire.ParseFname("bread.txt")
	require.NoError(t, err)
	require.NoError(t, s.AttachFile(gid, mid, fname, int64(len(body)), bytes.NewReader(body)))

	msgs, err := s.ReadMessageRange(gid, mid)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].HasAttachment())
	assert.Equal(t, fname, msgs[0].Fname)
	assert.Equal(t, int64(len(body)), msgs[0].Fsize)

	rc, err := s.OpenAttachment(gid, mid, fname)
	require.NoError(t, err)
	defer rc.Close()
	got := make([]byte, len(body))
	_, err = rc.Read(got)
	require.NoError(t, err)
	assert.Equal(t, body, got)
}

func TestAttachFileShortBodyRollsBack(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	gid, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)
	mid, err := s.AppendMessage(gid, uid, []byte("supposedly attached"))
	require.NoError(t, err)

	fname, err := wire.ParseFname("bread.txt")
	require.NoError(t, err)

	// Source ends before the declared size: the attachment must not stay.
	err = s.AttachFile(gid, mid, fname, 100, bytes.NewReader([]byte("short")))
	require.Error(t, err)

	msgs, err := s.ReadMessageRange(gid, mid)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.False(t, msgs[0].HasAttachment())
}

func TestDiscardMessage(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	gid, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)
	mid, err := s.AppendMessage(gid, uid, []byte("doomed"))
	require.NoError(t, err)

	require.NoError(t, s.DiscardMessage(gid, mid))

	count, err := s.MessageCount(gid)
	require.NoError(t, err)
	assert.Zero(t, count)

	// The next post reuses the slot, keeping MIDs dense.
	again, err := s.AppendMessage(gid, uid, []byte("replacement"))
	require.NoError(t, err)
	assert.Equal(t, mid, again)
}

func TestReadMessageRangeWindow(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	gid, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)

	for i := 1; i <= 25; i++ {
		_, err := s.AppendMessage(gid, uid, []byte(fmt.Sprintf("message %d", i)))
		require.NoError(t, err)
	}

	// From the start the window caps at 20.
	msgs, err := s.ReadMessageRange(gid, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 20)
	assert.Equal(t, wire.MID(1), msgs[0].MID)
	assert.Equal(t, wire.MID(20), msgs[19].MID)

	// Near the tail only the remainder comes back.
	msgs, err = s.ReadMessageRange(gid, 23)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, wire.MID(25), msgs[2].MID)

	// Past the tail there is nothing.
	msgs, err = s.ReadMessageRange(gid, 26)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestReadMessageRangeSkipsIncomplete(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	gid, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)

	_, err = s.AppendMessage(gid, uid, []byte("complete"))
	require.NoError(t, err)

	// Simulate a writer caught between mkdir and its content writes.
	require.NoError(t, os.Mkdir(filepath.Join(s.Root(), "GROUPS", "01", "MSG", "0002"), 0o755))

	msgs, err := s.ReadMessageRange(gid, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, wire.MID(1), msgs[0].MID)
}

func TestConcurrentPostsGetDistinctMIDs(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	gid, _, err := s.CreateGroup(uid, mustGName(t, "cooking"))
	require.NoError(t, err)

	const posters = 16
	mids := make([]wire.MID, posters)
	var wg sync.WaitGroup
	for i := 0; i < posters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			mid, err := s.AppendMessage(gid, uid, []byte("race"))
			assert.NoError(t, err)
			mids[i] = mid
		}(i)
	}
	wg.Wait()

	seen := make(map[wire.MID]bool, posters)
	for _, mid := range mids {
		assert.False(t, seen[mid], "MID %s allocated twice", mid)
		seen[mid] = true
	}
	count, err := s.MessageCount(gid)
	require.NoError(t, err)
	assert.Equal(t, posters, count)
}

func TestConcurrentGroupCreation(t *testing.T) {
	s := newTestStore(t)
	uid := mustUID(t, "12345")

	const creators = 8
	gids := make([]wire.GID, creators)
	var wg sync.WaitGroup
	for i := 0; i < creators; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gid, st, err := s.CreateGroup(uid, mustGName(t, fmt.Sprintf("race%d", i)))
			assert.NoError(t, err)
			assert.Equal(t, Valid, st)
			gids[i] = gid
		}(i)
	}
	wg.Wait()

	seen := make(map[wire.GID]bool, creators)
	for _, gid := range gids {
		assert.False(t, seen[gid], "GID %s allocated twice", gid)
		seen[gid] = true
	}
}
