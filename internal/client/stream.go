package client

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/groupds/groupds/internal/protocol/wire"
)

// Message is one retrieved message. Attachments are saved to disk during
// Retrieve; Fname names the saved file.
type Message struct {
	MID    wire.MID
	Author wire.UID
	Text   []byte
	Fname  wire.Fname
	Fsize  int64
}

// HasAttachment reports whether the message carried a file.
func (m Message) HasAttachment() bool {
	return m.Fname != ""
}

// UserList fetches the subscribers of gid. On success status is OK and the
// stored group name comes back with the listing.
func (c *Client) UserList(gid wire.GID) (wire.GName, []wire.UID, string, error) {
	conn, fr, err := c.dialTCP()
	if err != nil {
		return "", nil, "", err
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write(wire.EncodeLine(wire.TagUserList, gid.String())); err != nil {
		return "", nil, "", fmt.Errorf("send request: %w", err)
	}

	// The whole reply is one line; the server closes after it. The limit
	// only guards against a runaway peer.
	reply, err := io.ReadAll(fr.Payload(1 << 20))
	if err != nil {
		return "", nil, "", fmt.Errorf("receive reply: %w", err)
	}
	tag, fields, err := wire.DecodeLine(reply)
	if err != nil {
		return "", nil, "", err
	}
	if err := expectReply(tag, wire.ReplyUserList); err != nil {
		return "", nil, "", err
	}

	status, err := statusOf(fields)
	if err != nil {
		return "", nil, "", err
	}
	if status != wire.StatusOK {
		return "", nil, status, nil
	}
	if len(fields) < 2 {
		return "", nil, "", fmt.Errorf("listing carries no group name")
	}

	name, err := wire.ParseGName(fields[1])
	if err != nil {
		return "", nil, "", err
	}
	uids := make([]wire.UID, 0, len(fields)-2)
	for _, f := range fields[2:] {
		uid, err := wire.ParseUID(f)
		if err != nil {
			return "", nil, "", err
		}
		uids = append(uids, uid)
	}
	return name, uids, status, nil
}

// Post publishes text to gid, optionally attaching the file at attachPath.
// On success the returned status is the new message id rendered as four
// digits; otherwise it is NOK.
func (c *Client) Post(uid wire.UID, gid wire.GID, text []byte, attachPath string) (string, error) {
	if !wire.ValidText(text) {
		return "", fmt.Errorf("text must be 1..%d bytes", wire.MaxText)
	}

	var (
		attach *os.File
		fname  wire.Fname
		fsize  int64
	)
	if attachPath != "" {
		parsed, err := wire.ParseFname(filepath.Base(attachPath))
		if err != nil {
			return "", err
		}
		f, err := os.Open(attachPath)
		if err != nil {
			return "", fmt.Errorf("open attachment: %w", err)
		}
		defer func() { _ = f.Close() }()
		info, err := f.Stat()
		if err != nil {
			return "", fmt.Errorf("stat attachment: %w", err)
		}
		attach, fname, fsize = f, parsed, info.Size()
	}

	conn, fr, err := c.dialTCP()
	if err != nil {
		return "", err
	}
	defer func() { _ = conn.Close() }()

	var req bytes.Buffer
	fmt.Fprintf(&req, "%s %s %s %d ", wire.TagPost, uid, gid, len(text))
	req.Write(text)
	if attach != nil {
		fmt.Fprintf(&req, " %s %d ", fname, fsize)
	}
	if _, err := conn.Write(req.Bytes()); err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	if attach != nil {
		if _, err := io.CopyN(conn, attach, fsize); err != nil {
			return "", fmt.Errorf("send attachment: %w", err)
		}
	}
	if _, err := conn.Write([]byte("\n")); err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}

	tag, sep, err := fr.ReadWord(wire.TCPHeaderLen)
	if err != nil {
		return "", fmt.Errorf("receive reply: %w", err)
	}
	if err := expectReply(tag, wire.ReplyPost); err != nil {
		return "", err
	}
	if sep != ' ' {
		return "", fmt.Errorf("malformed reply")
	}
	status, sep, err := fr.ReadWord(wire.MaxMID)
	if err != nil || sep != '\n' {
		return "", fmt.Errorf("malformed reply")
	}
	return status, nil
}

// Retrieve fetches up to 20 messages of gid starting at from. Attachments
// are saved into downloadDir under their advertised filename. The returned
// status is OK, EOF or NOK.
func (c *Client) Retrieve(uid wire.UID, gid wire.GID, from wire.MID, downloadDir string) ([]Message, string, error) {
	conn, fr, err := c.dialTCP()
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = conn.Close() }()

	if _, err := conn.Write(wire.EncodeLine(wire.TagRetrieve, uid.String(), gid.String(), from.String())); err != nil {
		return nil, "", fmt.Errorf("send request: %w", err)
	}

	tag, sep, err := fr.ReadWord(wire.TCPHeaderLen)
	if err != nil {
		return nil, "", fmt.Errorf("receive reply: %w", err)
	}
	if err := expectReply(tag, wire.ReplyRetrieve); err != nil {
		return nil, "", err
	}

	status, sep, err := fr.ReadWord(len(wire.StatusEOF))
	if err != nil {
		return nil, "", fmt.Errorf("receive reply: %w", err)
	}
	if status != wire.StatusOK {
		return nil, status, nil
	}
	if sep != ' ' {
		return nil, "", fmt.Errorf("malformed reply")
	}

	countWord, sep, err := fr.ReadWord(2)
	if err != nil || sep != ' ' {
		return nil, "", fmt.Errorf("malformed message count")
	}
	n, err := strconv.Atoi(countWord)
	if err != nil || n < 1 || n > 20 {
		return nil, "", fmt.Errorf("malformed message count %q", countWord)
	}

	msgs, err := c.readMessages(fr, n, downloadDir)
	if err != nil {
		return nil, "", err
	}
	return msgs, status, nil
}

// readMessages parses the N message sections of a retrieve reply. The
// grammar needs one word of lookahead: after a message's text, the next
// word is either "/" (an attachment for that message) or the id of the
// next message.
func (c *Client) readMessages(fr *wire.FieldReader, n int, downloadDir string) ([]Message, error) {
	msgs := make([]Message, 0, n)
	pending := ""

	for i := 0; i < n; i++ {
		var midWord string
		if pending != "" {
			midWord = pending
			pending = ""
		} else {
			word, sep, err := fr.ReadWord(wire.MaxMID)
			if err != nil || sep != ' ' {
				return nil, fmt.Errorf("message %d: malformed id", i+1)
			}
			midWord = word
		}

		mid, err := wire.ParseMID(midWord)
		if err != nil {
			return nil, fmt.Errorf("message %d: %w", i+1, err)
		}
		authorWord, sep, err := fr.ReadWord(wire.MaxUID)
		if err != nil || sep != ' ' {
			return nil, fmt.Errorf("message %s: malformed author", mid)
		}
		author, err := wire.ParseUID(authorWord)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", mid, err)
		}
		tsizeWord, sep, err := fr.ReadWord(wire.MaxTsize)
		if err != nil || sep != ' ' {
			return nil, fmt.Errorf("message %s: malformed text length", mid)
		}
		tsize, err := wire.ParseTsize(tsizeWord)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", mid, err)
		}

		var text bytes.Buffer
		if err := fr.ReadBytes(int64(tsize), &text); err != nil {
			return nil, fmt.Errorf("message %s: truncated text: %w", mid, err)
		}
		msg := Message{MID: mid, Author: author, Text: text.Bytes()}

		sep, err = fr.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("message %s: truncated reply: %w", mid, err)
		}
		if sep == '\n' {
			msgs = append(msgs, msg)
			if i != n-1 {
				return nil, fmt.Errorf("reply ended after %d of %d messages", i+1, n)
			}
			return msgs, nil
		}

		word, sep, err := fr.ReadWord(wire.MaxFname)
		if err != nil || sep != ' ' {
			return nil, fmt.Errorf("message %s: truncated reply", mid)
		}
		if word != "/" {
			// No attachment; the word is the next message's id.
			pending = word
			msgs = append(msgs, msg)
			continue
		}

		if err := c.downloadAttachment(fr, &msg, downloadDir); err != nil {
			return nil, fmt.Errorf("message %s: %w", mid, err)
		}
		msgs = append(msgs, msg)

		sep, err = fr.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("message %s: truncated reply: %w", mid, err)
		}
		if sep == '\n' {
			if i != n-1 {
				return nil, fmt.Errorf("reply ended after %d of %d messages", i+1, n)
			}
			return msgs, nil
		}
	}
	return msgs, nil
}

// downloadAttachment parses "<Fname> <Fsize> <bytes>" and writes the body
// into downloadDir.
func (c *Client) downloadAttachment(fr *wire.FieldReader, msg *Message, downloadDir string) error {
	fnameWord, sep, err := fr.ReadWord(wire.MaxFname)
	if err != nil || sep != ' ' {
		return fmt.Errorf("malformed attachment name")
	}
	fname, err := wire.ParseFname(fnameWord)
	if err != nil {
		return err
	}
	fsizeWord, sep, err := fr.ReadWord(wire.MaxFsize)
	if err != nil || sep != ' ' {
		return fmt.Errorf("malformed attachment size")
	}
	fsize, err := wire.ParseFsize(fsizeWord)
	if err != nil {
		return err
	}

	f, err := os.Create(filepath.Join(downloadDir, fname.String()))
	if err != nil {
		return fmt.Errorf("create download: %w", err)
	}
	err = fr.ReadBytes(fsize, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return fmt.Errorf("download attachment: %w", err)
	}

	msg.Fname = fname
	msg.Fsize = fsize
	return nil
}
