package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/groupds/groupds/internal/cli/output"
	"github.com/groupds/groupds/internal/cli/prompt"
	"github.com/groupds/groupds/internal/protocol/wire"
)

// REPL is the interactive command loop. It tracks the local session state
// the server deliberately does not: who is logged in here and which group
// is selected. Commands that need that state are refused locally before
// any request goes out.
type REPL struct {
	client *Client
	out    io.Writer

	// downloadDir receives retrieved attachments.
	downloadDir string

	uid      wire.UID
	pass     string
	loggedIn bool

	selected    wire.GID
	hasSelected bool
}

// NewREPL creates a command loop over c writing to out. Attachments are
// downloaded into downloadDir.
func NewREPL(c *Client, out io.Writer, downloadDir string) *REPL {
	return &REPL{client: c, out: out, downloadDir: downloadDir}
}

// Run prompts for commands until exit or an aborted prompt.
func (r *REPL) Run() error {
	fmt.Fprintf(r.out, "connected to %s, type ? for help\n", r.client.Addr())

	for {
		line, err := prompt.Line("ds")
		if err != nil {
			if prompt.IsAborted(err) {
				fmt.Fprintln(r.out, "bye")
				return nil
			}
			return err
		}

		quit, err := r.Dispatch(line)
		if err != nil {
			fmt.Fprintf(r.out, "error: %v\n", err)
		}
		if quit {
			return nil
		}
	}
}

// Dispatch runs one command line. The returned bool requests loop exit.
func (r *REPL) Dispatch(line string) (bool, error) {
	args := strings.Fields(line)
	if len(args) == 0 {
		return false, nil
	}

	switch cmd := args[0]; cmd {
	case "?", "help":
		r.printHelp()
		return false, nil
	case "reg":
		return false, r.register(args[1:])
	case "unregister", "unr":
		return false, r.unregister(args[1:])
	case "login":
		return false, r.login(args[1:])
	case "logout":
		return false, r.logout(args[1:])
	case "showuid", "su":
		return false, r.showUID(args[1:])
	case "groups", "gl":
		return false, r.groups(args[1:])
	case "subscribe", "s":
		return false, r.subscribe(args[1:])
	case "unsubscribe", "u":
		return false, r.unsubscribe(args[1:])
	case "my_groups", "mgl":
		return false, r.myGroups(args[1:])
	case "select", "sag":
		return false, r.selectGroup(args[1:])
	case "showgid", "sg":
		return false, r.showGID(args[1:])
	case "ulist", "ul":
		return false, r.userList(args[1:])
	case "post":
		// Needs its own parsing: the text is quoted and may contain spaces.
		return false, r.post(strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "post")))
	case "retrieve", "r":
		return false, r.retrieve(args[1:])
	case "exit":
		if r.loggedIn {
			return false, fmt.Errorf("logout before exiting")
		}
		fmt.Fprintln(r.out, "bye")
		return true, nil
	default:
		return false, fmt.Errorf("unknown command %q, type ? for help", cmd)
	}
}

func (r *REPL) printHelp() {
	fmt.Fprint(r.out, `commands:
  reg <UID> <pass>          register a new user
  unregister|unr <UID> <pass>
  login <UID> <pass>
  logout
  showuid|su                show the logged-in user id
  groups|gl                 list all groups
  subscribe|s <GID> <GName> subscribe (GID 00 creates the group)
  unsubscribe|u <GID>
  my_groups|mgl             list subscribed groups
  select|sag <GID>          select the active group
  showgid|sg                show the selected group
  ulist|ul                  list subscribers of the selected group
  post "text" [file]        post to the selected group
  retrieve|r <MID>          retrieve messages from MID onward
  exit
`)
}

func (r *REPL) register(args []string) error {
	uid, pass, err := parseCredentials(args)
	if err != nil {
		return err
	}

	status, err := r.client.Register(uid, pass)
	if err != nil {
		return err
	}
	switch status {
	case wire.StatusOK:
		fmt.Fprintln(r.out, "registered")
	case wire.StatusDUP:
		fmt.Fprintln(r.out, "user already registered")
	default:
		fmt.Fprintln(r.out, "registration refused")
	}
	return nil
}

func (r *REPL) unregister(args []string) error {
	uid, pass, err := parseCredentials(args)
	if err != nil {
		return err
	}
	if r.loggedIn && uid == r.uid {
		return fmt.Errorf("logout before unregistering %s", uid)
	}

	status, err := r.client.Unregister(uid, pass)
	if err != nil {
		return err
	}
	if status == wire.StatusOK {
		fmt.Fprintln(r.out, "unregistered")
	} else {
		fmt.Fprintln(r.out, "unregistration refused")
	}
	return nil
}

func (r *REPL) login(args []string) error {
	if r.loggedIn {
		return fmt.Errorf("already logged in as %s, logout first", r.uid)
	}
	uid, pass, err := parseCredentials(args)
	if err != nil {
		return err
	}

	status, err := r.client.Login(uid, pass)
	if err != nil {
		return err
	}
	if status != wire.StatusOK {
		fmt.Fprintln(r.out, "login refused")
		return nil
	}

	r.uid, r.pass, r.loggedIn = uid, pass, true
	fmt.Fprintln(r.out, "logged in")
	return nil
}

func (r *REPL) logout(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: logout")
	}
	if !r.loggedIn {
		return fmt.Errorf("not logged in")
	}

	status, err := r.client.Logout(r.uid, r.pass)
	if err != nil {
		return err
	}
	if status != wire.StatusOK {
		fmt.Fprintln(r.out, "logout refused")
		return nil
	}

	r.uid, r.pass, r.loggedIn = "", "", false
	r.selected, r.hasSelected = 0, false
	fmt.Fprintln(r.out, "logged out")
	return nil
}

func (r *REPL) showUID(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: showuid")
	}
	if !r.loggedIn {
		return fmt.Errorf("not logged in")
	}
	fmt.Fprintln(r.out, r.uid)
	return nil
}

func (r *REPL) groups(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: groups")
	}

	groups, err := r.client.Groups()
	if err != nil {
		return err
	}
	r.printGroups(groups)
	return nil
}

func (r *REPL) myGroups(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: my_groups")
	}
	if !r.loggedIn {
		return fmt.Errorf("not logged in")
	}

	groups, status, err := r.client.MyGroups(r.uid)
	if err != nil {
		return err
	}
	if status != wire.StatusOK {
		fmt.Fprintln(r.out, "listing refused")
		return nil
	}
	r.printGroups(groups)
	return nil
}

func (r *REPL) printGroups(groups []Group) {
	if len(groups) == 0 {
		fmt.Fprintln(r.out, "no groups")
		return
	}

	table := output.NewTableData("GID", "NAME", "LAST MID")
	for _, g := range groups {
		table.AddRow(g.GID.String(), g.Name.String(), g.LastMID.String())
	}
	output.PrintTable(r.out, table)
}

func (r *REPL) subscribe(args []string) error {
	if !r.loggedIn {
		return fmt.Errorf("not logged in")
	}
	if len(args) != 2 {
		return fmt.Errorf("usage: subscribe <GID> <GName>")
	}
	gid, err := wire.ParseGID(args[0])
	if err != nil {
		return err
	}
	name, err := wire.ParseGName(args[1])
	if err != nil {
		return err
	}

	status, newGID, err := r.client.Subscribe(r.uid, gid, name)
	if err != nil {
		return err
	}
	switch status {
	case wire.StatusOK:
		fmt.Fprintln(r.out, "subscribed")
	case wire.StatusNEW:
		fmt.Fprintf(r.out, "created and subscribed group %s\n", newGID)
	case wire.StatusEFull:
		fmt.Fprintln(r.out, "no group ids left")
	case wire.StatusEUser:
		fmt.Fprintln(r.out, "user not valid")
	case wire.StatusEGroup:
		fmt.Fprintln(r.out, "no such group")
	case wire.StatusEGName:
		fmt.Fprintln(r.out, "group name does not match")
	default:
		fmt.Fprintln(r.out, "subscription refused")
	}
	return nil
}

func (r *REPL) unsubscribe(args []string) error {
	if !r.loggedIn {
		return fmt.Errorf("not logged in")
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: unsubscribe <GID>")
	}
	gid, err := wire.ParseGID(args[0])
	if err != nil {
		return err
	}

	status, err := r.client.Unsubscribe(r.uid, gid)
	if err != nil {
		return err
	}
	switch status {
	case wire.StatusOK:
		fmt.Fprintln(r.out, "unsubscribed")
		if r.hasSelected && r.selected == gid {
			r.selected, r.hasSelected = 0, false
		}
	case wire.StatusEUser:
		fmt.Fprintln(r.out, "user not valid")
	case wire.StatusEGroup:
		fmt.Fprintln(r.out, "no such group")
	default:
		fmt.Fprintln(r.out, "unsubscription refused")
	}
	return nil
}

func (r *REPL) selectGroup(args []string) error {
	if !r.loggedIn {
		return fmt.Errorf("not logged in")
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: select <GID>")
	}
	gid, err := wire.ParseGID(args[0])
	if err != nil {
		return err
	}
	if gid == wire.GIDCreate {
		return fmt.Errorf("no such group")
	}

	r.selected, r.hasSelected = gid, true
	fmt.Fprintf(r.out, "group %s selected\n", gid)
	return nil
}

func (r *REPL) showGID(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: showgid")
	}
	if !r.hasSelected {
		return fmt.Errorf("no group selected")
	}
	fmt.Fprintln(r.out, r.selected)
	return nil
}

func (r *REPL) userList(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("usage: ulist")
	}
	if !r.hasSelected {
		return fmt.Errorf("no group selected")
	}

	name, uids, status, err := r.client.UserList(r.selected)
	if err != nil {
		return err
	}
	if status != wire.StatusOK {
		fmt.Fprintln(r.out, "listing refused")
		return nil
	}

	fmt.Fprintf(r.out, "subscribers of %s:\n", name)
	if len(uids) == 0 {
		fmt.Fprintln(r.out, "  none")
		return nil
	}
	for _, uid := range uids {
		fmt.Fprintf(r.out, "  %s\n", uid)
	}
	return nil
}

func (r *REPL) post(rest string) error {
	if !r.loggedIn {
		return fmt.Errorf("not logged in")
	}
	if !r.hasSelected {
		return fmt.Errorf("no group selected")
	}

	text, attachPath, err := parsePostArgs(rest)
	if err != nil {
		return err
	}

	status, err := r.client.Post(r.uid, r.selected, []byte(text), attachPath)
	if err != nil {
		return err
	}
	if status == wire.StatusNOK {
		fmt.Fprintln(r.out, "post refused")
		return nil
	}
	fmt.Fprintf(r.out, "posted message %s\n", status)
	return nil
}

func (r *REPL) retrieve(args []string) error {
	if !r.loggedIn {
		return fmt.Errorf("not logged in")
	}
	if !r.hasSelected {
		return fmt.Errorf("no group selected")
	}
	if len(args) != 1 {
		return fmt.Errorf("usage: retrieve <MID>")
	}
	mid, err := wire.ParseMID(args[0])
	if err != nil {
		return err
	}

	msgs, status, err := r.client.Retrieve(r.uid, r.selected, mid, r.downloadDir)
	if err != nil {
		return err
	}
	switch status {
	case wire.StatusEOF:
		fmt.Fprintln(r.out, "no messages to retrieve")
		return nil
	case wire.StatusOK:
	default:
		fmt.Fprintln(r.out, "retrieve refused")
		return nil
	}

	fmt.Fprintf(r.out, "%d message(s) retrieved:\n", len(msgs))
	for _, m := range msgs {
		if m.HasAttachment() {
			fmt.Fprintf(r.out, "  %s %s %q (file %s, %d bytes)\n", m.MID, m.Author, m.Text, m.Fname, m.Fsize)
		} else {
			fmt.Fprintf(r.out, "  %s %s %q\n", m.MID, m.Author, m.Text)
		}
	}
	return nil
}

// parseCredentials validates a "<UID> <pass>" argument pair.
func parseCredentials(args []string) (wire.UID, string, error) {
	if len(args) != 2 {
		return "", "", fmt.Errorf("usage: <UID> <pass>")
	}
	uid, err := wire.ParseUID(args[0])
	if err != nil {
		return "", "", err
	}
	if !wire.ValidPass(args[1]) {
		return "", "", fmt.Errorf("password must be exactly %d alphanumerics", wire.MaxPass)
	}
	return uid, args[1], nil
}

// parsePostArgs splits `"text" [file]`: the text is double-quoted and may
// contain spaces, the optional attachment path follows the closing quote.
func parsePostArgs(rest string) (text, attachPath string, err error) {
	if len(rest) == 0 || rest[0] != '"' {
		return "", "", fmt.Errorf(`usage: post "text" [file]`)
	}
	end := strings.IndexByte(rest[1:], '"')
	if end < 0 {
		return "", "", fmt.Errorf("unterminated text")
	}
	text = rest[1 : 1+end]

	attachPath = strings.TrimSpace(rest[2+end:])
	if strings.ContainsAny(attachPath, " \t") {
		return "", "", fmt.Errorf(`usage: post "text" [file]`)
	}
	return text, attachPath, nil
}
