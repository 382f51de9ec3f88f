package client

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/groupds/groupds/internal/protocol/wire"
	"github.com/groupds/groupds/internal/server"
	"github.com/groupds/groupds/pkg/store"
)

// startTestClient runs a server on an ephemeral port and returns a client
// pointed at it.
func startTestClient(t *testing.T) *Client {
	t.Helper()

	st, err := store.Open(t.TempDir())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}

	srv := server.New(server.Config{Port: 0, EnableTCP: true, EnableUDP: true}, st, server.NullMetrics())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	select {
	case <-srv.WaitReady():
	case err := <-done:
		t.Fatalf("server exited before ready: %v", err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not ready after 5s")
	}

	t.Cleanup(func() {
		cancel()
		srv.Stop()
		<-done
	})

	_, portStr, err := net.SplitHostPort(srv.Addr())
	if err != nil {
		t.Fatalf("split server address: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse server port: %v", err)
	}
	return New("127.0.0.1", port)
}

func TestAccountRoundTrip(t *testing.T) {
	c := startTestClient(t)

	status, err := c.Register("10000", "password")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if status != wire.StatusOK {
		t.Fatalf("register status = %q, want OK", status)
	}

	status, err = c.Register("10000", "password")
	if err != nil {
		t.Fatalf("register again: %v", err)
	}
	if status != wire.StatusDUP {
		t.Fatalf("duplicate register status = %q, want DUP", status)
	}

	status, err = c.Login("10000", "password")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if status != wire.StatusOK {
		t.Fatalf("login status = %q, want OK", status)
	}

	status, err = c.Logout("10000", "password")
	if err != nil {
		t.Fatalf("logout: %v", err)
	}
	if status != wire.StatusOK {
		t.Fatalf("logout status = %q, want OK", status)
	}

	status, err = c.Unregister("10000", "password")
	if err != nil {
		t.Fatalf("unregister: %v", err)
	}
	if status != wire.StatusOK {
		t.Fatalf("unregister status = %q, want OK", status)
	}
}

func TestGroupsRoundTrip(t *testing.T) {
	c := startTestClient(t)

	if _, err := c.Register("10000", "password"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := c.Login("10000", "password"); err != nil {
		t.Fatalf("login: %v", err)
	}

	status, newGID, err := c.Subscribe("10000", wire.GIDCreate, "demo")
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if status != wire.StatusNEW || newGID != 1 {
		t.Fatalf("create group = (%q, %v), want (NEW, 01)", status, newGID)
	}

	groups, err := c.Groups()
	if err != nil {
		t.Fatalf("groups: %v", err)
	}
	if len(groups) != 1 || groups[0].GID != 1 || groups[0].Name != "demo" || groups[0].LastMID != 0 {
		t.Fatalf("groups = %+v", groups)
	}

	mine, status, err := c.MyGroups("10000")
	if err != nil {
		t.Fatalf("my groups: %v", err)
	}
	if status != wire.StatusOK || len(mine) != 1 {
		t.Fatalf("my groups = (%+v, %q)", mine, status)
	}

	status, err = c.Unsubscribe("10000", 1)
	if err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	if status != wire.StatusOK {
		t.Fatalf("unsubscribe status = %q, want OK", status)
	}
}

func TestMyGroupsErrorToken(t *testing.T) {
	c := startTestClient(t)

	_, status, err := c.MyGroups("10000")
	if err != nil {
		t.Fatalf("my groups: %v", err)
	}
	if status != wire.StatusEUser {
		t.Fatalf("my groups status = %q, want E_USR", status)
	}
}

func TestUserListRoundTrip(t *testing.T) {
	c := startTestClient(t)

	for _, uid := range []wire.UID{"10000", "20000"} {
		if _, err := c.Register(uid, "password"); err != nil {
			t.Fatalf("register %s: %v", uid, err)
		}
		if _, err := c.Login(uid, "password"); err != nil {
			t.Fatalf("login %s: %v", uid, err)
		}
	}
	if _, _, err := c.Subscribe("10000", wire.GIDCreate, "demo"); err != nil {
		t.Fatalf("create group: %v", err)
	}
	if _, _, err := c.Subscribe("20000", 1, "demo"); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	name, uids, status, err := c.UserList(1)
	if err != nil {
		t.Fatalf("user list: %v", err)
	}
	if status != wire.StatusOK || name != "demo" {
		t.Fatalf("user list = (%q, %q)", name, status)
	}
	if len(uids) != 2 || uids[0] != "10000" || uids[1] != "20000" {
		t.Fatalf("user list uids = %v", uids)
	}

	_, _, status, err = c.UserList(7)
	if err != nil {
		t.Fatalf("user list missing group: %v", err)
	}
	if status != wire.StatusNOK {
		t.Fatalf("user list status = %q, want NOK", status)
	}
}

func TestPostAndRetrieveRoundTrip(t *testing.T) {
	c := startTestClient(t)

	if _, err := c.Register("10000", "password"); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := c.Login("10000", "password"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, _, err := c.Subscribe("10000", wire.GIDCreate, "demo"); err != nil {
		t.Fatalf("create group: %v", err)
	}

	attach := filepath.Join(t.TempDir(), "notes.txt")
	if err := os.WriteFile(attach, []byte("attachment body"), 0o644); err != nil {
		t.Fatalf("write attachment: %v", err)
	}

	status, err := c.Post("10000", 1, []byte("hello there"), "")
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	if status != "0001" {
		t.Fatalf("post status = %q, want 0001", status)
	}
	status, err = c.Post("10000", 1, []byte("with file"), attach)
	if err != nil {
		t.Fatalf("post with attachment: %v", err)
	}
	if status != "0002" {
		t.Fatalf("post status = %q, want 0002", status)
	}

	downloads := t.TempDir()
	msgs, status, err := c.Retrieve("10000", 1, 1, downloads)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if status != wire.StatusOK || len(msgs) != 2 {
		t.Fatalf("retrieve = (%d messages, %q), want (2, OK)", len(msgs), status)
	}
	if string(msgs[0].Text) != "hello there" || msgs[0].HasAttachment() {
		t.Fatalf("message 1 = %+v", msgs[0])
	}
	if string(msgs[1].Text) != "with file" || msgs[1].Fname != "notes.txt" {
		t.Fatalf("message 2 = %+v", msgs[1])
	}

	saved, err := os.ReadFile(filepath.Join(downloads, "notes.txt"))
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(saved) != "attachment body" {
		t.Fatalf("download content = %q", saved)
	}

	_, status, err = c.Retrieve("10000", 1, 3, downloads)
	if err != nil {
		t.Fatalf("retrieve past end: %v", err)
	}
	if status != wire.StatusEOF {
		t.Fatalf("retrieve status = %q, want EOF", status)
	}
}

func TestReadMessagesLookahead(t *testing.T) {
	// Two messages, the second with an attachment. After "hello" the parser
	// must treat "0002" as the next id, and after "hi" treat "/" as an
	// attachment marker.
	body := "0001 10000 5 hello 0002 10000 2 hi / a.txt 3 xyz\n"
	fr := wire.NewFieldReader(bytes.NewReader([]byte(body)))

	downloads := t.TempDir()
	var c Client
	msgs, err := c.readMessages(fr, 2, downloads)
	if err != nil {
		t.Fatalf("read messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	if msgs[0].MID != 1 || string(msgs[0].Text) != "hello" || msgs[0].HasAttachment() {
		t.Fatalf("message 1 = %+v", msgs[0])
	}
	if msgs[1].MID != 2 || msgs[1].Fname != "a.txt" || msgs[1].Fsize != 3 {
		t.Fatalf("message 2 = %+v", msgs[1])
	}

	saved, err := os.ReadFile(filepath.Join(downloads, "a.txt"))
	if err != nil {
		t.Fatalf("read download: %v", err)
	}
	if string(saved) != "xyz" {
		t.Fatalf("download content = %q", saved)
	}
}

func TestReadMessagesTruncated(t *testing.T) {
	cases := []struct {
		name string
		body string
		n    int
	}{
		{"early terminator", "0001 10000 5 hello\n", 2},
		{"missing terminator", "0001 10000 5 hello", 1},
		{"short text", "0001 10000 9 hello\n", 1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fr := wire.NewFieldReader(bytes.NewReader([]byte(tc.body)))
			var c Client
			if _, err := c.readMessages(fr, tc.n, t.TempDir()); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestParseGroupList(t *testing.T) {
	groups, err := parseGroupList([]string{"2", "01", "demo", "0003", "02", "other", "0000"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(groups) != 2 || groups[0].Name != "demo" || groups[1].LastMID != 0 {
		t.Fatalf("groups = %+v", groups)
	}

	if _, err := parseGroupList([]string{"2", "01", "demo", "0003"}); err == nil {
		t.Fatal("expected error for field count mismatch")
	}
	if _, err := parseGroupList([]string{"x"}); err == nil {
		t.Fatal("expected error for malformed count")
	}
	if _, err := parseGroupList(nil); err == nil {
		t.Fatal("expected error for empty reply")
	}
}

func TestParsePostArgs(t *testing.T) {
	text, path, err := parsePostArgs(`"hello there"`)
	if err != nil || text != "hello there" || path != "" {
		t.Fatalf("got (%q, %q, %v)", text, path, err)
	}

	text, path, err = parsePostArgs(`"hi" notes.txt`)
	if err != nil || text != "hi" || path != "notes.txt" {
		t.Fatalf("got (%q, %q, %v)", text, path, err)
	}

	if _, _, err := parsePostArgs(`hello`); err == nil {
		t.Fatal("expected error for unquoted text")
	}
	if _, _, err := parsePostArgs(`"unterminated`); err == nil {
		t.Fatal("expected error for unterminated text")
	}
	if _, _, err := parsePostArgs(`"hi" a b`); err == nil {
		t.Fatal("expected error for trailing arguments")
	}
}

func TestREPLSession(t *testing.T) {
	c := startTestClient(t)

	var out bytes.Buffer
	r := NewREPL(c, &out, t.TempDir())

	run := func(line string) {
		t.Helper()
		quit, err := r.Dispatch(line)
		if err != nil {
			t.Fatalf("%q: %v", line, err)
		}
		if quit {
			t.Fatalf("%q: unexpected quit", line)
		}
	}
	fail := func(line string) {
		t.Helper()
		if _, err := r.Dispatch(line); err == nil {
			t.Fatalf("%q: expected error", line)
		}
	}

	fail("my_groups")
	fail(`post "too early"`)

	run("reg 10000 password")
	run("login 10000 password")
	fail("login 10000 password")
	fail("unregister 10000 password")

	run("subscribe 00 demo")
	run("select 01")
	run(`post "hello there"`)
	run("retrieve 1")
	run("ulist")
	run("my_groups")

	if _, err := r.Dispatch("exit"); err == nil {
		t.Fatal("exit while logged in should be refused")
	}

	run("logout")
	fail("showuid")

	quit, err := r.Dispatch("exit")
	if err != nil {
		t.Fatalf("exit: %v", err)
	}
	if !quit {
		t.Fatal("exit should quit the loop")
	}

	output := out.String()
	for _, want := range []string{"registered", "logged in", "created and subscribed group 01", "posted message 0001", "1 message(s) retrieved", "subscribers of demo", "logged out"} {
		if !bytes.Contains([]byte(output), []byte(want)) {
			t.Fatalf("output missing %q:\n%s", want, output)
		}
	}
}
