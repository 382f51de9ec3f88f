package store

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/groupds/groupds/internal/protocol/wire"
)

// Message is the metadata of one stored message. The attachment body is
// not loaded here; use OpenAttachment to stream it.
type Message struct {
	MID    wire.MID
	Author wire.UID
	Text   []byte

	// Fname is empty when the message carries no attachment.
	Fname wire.Fname
	Fsize int64
}

// HasAttachment reports whether the message carries a file.
func (m Message) HasAttachment() bool {
	return m.Fname != ""
}

// MessageCount counts the messages of gid by enumerating MSG entries whose
// names are well-formed MIDs.
func (s *Store) MessageCount(gid wire.GID) (int, error) {
	entries, err := os.ReadDir(s.messagesDir(gid))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("list messages: %w", err)
	}

	count := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		if _, err := wire.ParseMID(e.Name()); err == nil {
			count++
		}
	}
	return count, nil
}

// NextMID returns the id the next posted message will take.
func (s *Store) NextMID(gid wire.GID) (wire.MID, error) {
	count, err := s.MessageCount(gid)
	if err != nil {
		return 0, err
	}
	return wire.MID(count + 1), nil
}

// AppendMessage allocates the next MID of gid and writes the message
// directory with its author and text records. The per-group lock is held
// across count and mkdir so concurrent posts to one group cannot collide
// on a MID. The mkdir is the commit point for MessageCount, so author and
// text are written immediately after it; a failure past the mkdir removes
// the partial directory.
//
// When the post carries an attachment the caller streams it afterwards
// with AttachFile, and discards the whole message with DiscardMessage if
// that fails mid-stream.
func (s *Store) AppendMessage(gid wire.GID, author wire.UID, text []byte) (wire.MID, error) {
	if gid < 1 || gid > wire.MaxGroups {
		return 0, fmt.Errorf("no such group %s", gid)
	}

	s.midMu[gid].Lock()
	defer s.midMu[gid].Unlock()

	mid, err := s.NextMID(gid)
	if err != nil {
		return 0, err
	}

	dir := s.messageDir(gid, mid)
	if err := os.Mkdir(dir, 0o755); err != nil {
		return 0, fmt.Errorf("create message dir: %w", err)
	}

	err = writeFile(filepath.Join(dir, authorFile), []byte(author))
	if err == nil {
		err = writeFile(filepath.Join(dir, textFile), text)
	}
	if err != nil {
		_ = os.RemoveAll(dir)
		return 0, err
	}
	return mid, nil
}

// AttachFile stores the attachment of an existing message, copying exactly
// size bytes from r. The Fname record is written only after the body is
// complete, so a message never advertises an attachment it does not have.
func (s *Store) AttachFile(gid wire.GID, mid wire.MID, fname wire.Fname, size int64, r io.Reader) error {
	dir := s.messageDir(gid, mid)

	body, err := os.Create(filepath.Join(dir, fname.String()))
	if err != nil {
		return fmt.Errorf("create attachment: %w", err)
	}

	_, err = io.CopyN(body, r, size)
	if closeErr := body.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(dir, fname.String()))
		return fmt.Errorf("write attachment: %w", err)
	}

	if err := writeFile(filepath.Join(dir, fnameFile), []byte(fname)); err != nil {
		_ = os.Remove(filepath.Join(dir, fname.String()))
		return err
	}
	return nil
}

// DiscardMessage removes a message directory, rolling back a post that
// failed after AppendMessage.
func (s *Store) DiscardMessage(gid wire.GID, mid wire.MID) error {
	if err := os.RemoveAll(s.messageDir(gid, mid)); err != nil {
		return fmt.Errorf("discard message %s/%s: %w", gid, mid, err)
	}
	return nil
}

// readMessage loads the metadata of one message. Returns ok=false when the
// message is incomplete (author or text unreadable), which callers treat
// as "not there yet": mkdir commits before contents are written.
func (s *Store) readMessage(gid wire.GID, mid wire.MID) (Message, bool, error) {
	dir := s.messageDir(gid, mid)

	rawAuthor, err := os.ReadFile(filepath.Join(dir, authorFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Message{}, false, nil
		}
		return Message{}, false, fmt.Errorf("read author: %w", err)
	}
	author, err := wire.ParseUID(string(rawAuthor))
	if err != nil {
		return Message{}, false, nil
	}

	text, err := os.ReadFile(filepath.Join(dir, textFile))
	if err != nil {
		if os.IsNotExist(err) {
			return Message{}, false, nil
		}
		return Message{}, false, fmt.Errorf("read text: %w", err)
	}
	if !wire.ValidText(text) {
		return Message{}, false, nil
	}

	msg := Message{MID: mid, Author: author, Text: text}

	rawFname, err := os.ReadFile(filepath.Join(dir, fnameFile))
	if err != nil {
		if os.IsNotExist(err) {
			return msg, true, nil // no attachment
		}
		return Message{}, false, fmt.Errorf("read fname record: %w", err)
	}
	fname, err := wire.ParseFname(string(rawFname))
	if err != nil {
		return Message{}, false, nil
	}

	info, err := os.Stat(filepath.Join(dir, fname.String()))
	if err != nil {
		if os.IsNotExist(err) {
			return Message{}, false, nil
		}
		return Message{}, false, fmt.Errorf("stat attachment: %w", err)
	}

	msg.Fname = fname
	msg.Fsize = info.Size()
	return msg, true, nil
}

// ReadMessageRange reads up to 20 consecutive messages of gid starting at
// start. Messages whose content files cannot be read are omitted; a writer
// may be between its mkdir and its content writes.
func (s *Store) ReadMessageRange(gid wire.GID, start wire.MID) ([]Message, error) {
	count, err := s.MessageCount(gid)
	if err != nil {
		return nil, err
	}

	n := count - int(start) + 1
	if n > 20 {
		n = 20
	}
	if n <= 0 {
		return nil, nil
	}

	msgs := make([]Message, 0, n)
	for i := 0; i < n; i++ {
		msg, ok, err := s.readMessage(gid, start+wire.MID(i))
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

// OpenAttachment opens the attachment body of a message for streaming.
func (s *Store) OpenAttachment(gid wire.GID, mid wire.MID, fname wire.Fname) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.messageDir(gid, mid), fname.String()))
	if err != nil {
		return nil, fmt.Errorf("open attachment: %w", err)
	}
	return f, nil
}
