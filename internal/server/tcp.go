package server

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/groupds/groupds/internal/logger"
	"github.com/groupds/groupds/internal/protocol/wire"
	"github.com/groupds/groupds/pkg/store"
)

// statusAborted marks a transaction that ended by closing the connection
// without a reply frame (peer disconnect or mid-stream disk failure). It
// never appears on the wire, only in logs and metrics.
const statusAborted = "ABORTED"

// maxDiscard bounds how much of a malformed request gets flushed before the
// failure reply and close.
const maxDiscard = 4096

// failWord maps a ReadWord error to a transaction status. A word past its
// field limit is a malformed request: the rest of the line is flushed and
// the handler's failure reply sent. Anything else is a dead stream.
func failWord(fr *wire.FieldReader, err error, nok func() string) string {
	if errors.Is(err, wire.ErrWordTooLong) {
		fr.DiscardLine(maxDiscard)
		return nok()
	}
	return statusAborted
}

// handleConn runs one TCP transaction. The fixed request header is four
// bytes (three-character tag plus one space); the matched handler reads the
// rest of its request from the same stream and writes the reply. The
// connection carries exactly one transaction and is closed on return.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer func() { _ = conn.Close() }()

	select {
	case <-ctx.Done():
		return
	case <-s.shutdown:
		return
	default:
	}

	client := conn.RemoteAddr().String()
	fr := wire.NewFieldReader(conn)
	start := time.Now()

	header, err := fr.ReadFixed(wire.TCPHeaderLen)
	if err != nil {
		logger.Debug("TCP header read error", append(clientAttrs(client), logger.KeyError, err)...)
		return
	}

	tag := string(header[:3])
	if header[3] != ' ' {
		_, _ = conn.Write(errFrame)
		return
	}

	var status string
	switch tag {
	case wire.TagUserList:
		status = s.handleUserList(fr, conn)
	case wire.TagPost:
		status = s.handlePost(fr, conn)
	case wire.TagRetrieve:
		status = s.handleRetrieve(fr, conn)
	default:
		logger.Debug("unknown command tag", append(clientAttrs(client), logger.KeyCommand, tag)...)
		_, _ = conn.Write(errFrame)
		status = wire.StatusErr
	}

	s.metrics.RecordRequest("tcp", tag, status, time.Since(start).Seconds())
	logger.Debug("request", append(clientAttrs(client),
		logger.KeyTransport, "tcp",
		logger.KeyCommand, tag,
		logger.KeyStatus, status,
		logger.KeyDuration, time.Since(start).Milliseconds())...)
}

// handleUserList answers ULS: "RUL OK <GName> [UID]*" or "RUL NOK".
func (s *Server) handleUserList(fr *wire.FieldReader, w io.Writer) string {
	nok := func() string {
		_, _ = w.Write(wire.EncodeLine(wire.ReplyUserList, wire.StatusNOK))
		return wire.StatusNOK
	}

	word, sep, err := fr.ReadWord(wire.MaxGID)
	if err != nil {
		return failWord(fr, err, nok)
	}
	if sep != '\n' {
		return nok()
	}
	gid, err := wire.ParseGID(word)
	if err != nil || gid == wire.GIDCreate {
		return nok()
	}
	ok, err := s.store.GroupExists(gid)
	if err != nil {
		logger.Error("ulist group check failed", logger.KeyGID, gid.String(), logger.KeyError, err)
		return nok()
	}
	if !ok {
		return nok()
	}

	name, err := s.store.GroupName(gid)
	if err != nil {
		logger.Error("ulist name read failed", logger.KeyGID, gid.String(), logger.KeyError, err)
		return nok()
	}
	uids, err := s.store.ListSubscribers(gid)
	if err != nil {
		logger.Error("ulist subscriber listing failed", logger.KeyGID, gid.String(), logger.KeyError, err)
		return nok()
	}

	fields := make([]string, 0, 2+len(uids))
	fields = append(fields, wire.StatusOK, name.String())
	for _, uid := range uids {
		fields = append(fields, uid.String())
	}
	if _, err := w.Write(wire.EncodeLine(wire.ReplyUserList, fields...)); err != nil {
		return statusAborted
	}
	return wire.StatusOK
}

// handlePost answers PST. The request grammar past the header is
// "UID GID Tsize text[ Fname Fsize <bytes>]\n": the separator after the
// text decides whether an attachment follows. The attachment body streams
// straight to the store; a failure mid-stream rolls the message back and
// drops the connection without a reply.
func (s *Server) handlePost(fr *wire.FieldReader, w io.Writer) string {
	nok := func() string {
		_, _ = w.Write(wire.EncodeLine(wire.ReplyPost, wire.StatusNOK))
		return wire.StatusNOK
	}

	uidWord, sep, err := fr.ReadWord(wire.MaxUID)
	if err != nil {
		return failWord(fr, err, nok)
	}
	if sep != ' ' {
		return nok()
	}
	gidWord, sep, err := fr.ReadWord(wire.MaxGID)
	if err != nil {
		return failWord(fr, err, nok)
	}
	if sep != ' ' {
		return nok()
	}
	tsizeWord, sep, err := fr.ReadWord(wire.MaxTsize)
	if err != nil {
		return failWord(fr, err, nok)
	}
	if sep != ' ' {
		return nok()
	}

	uid, uidErr := wire.ParseUID(uidWord)
	gid, gidErr := wire.ParseGID(gidWord)
	tsize, tsizeErr := wire.ParseTsize(tsizeWord)
	if uidErr != nil || gidErr != nil || gid == wire.GIDCreate || tsizeErr != nil {
		return nok()
	}

	var text bytes.Buffer
	if err := fr.ReadBytes(int64(tsize), &text); err != nil {
		return statusAborted
	}
	sep, err = fr.ReadByte()
	if err != nil {
		return statusAborted
	}
	if sep != ' ' && sep != '\n' {
		return nok()
	}

	if st := s.authorizeMember(uid, gid); st != store.Valid {
		return nok()
	}

	mid, err := s.store.AppendMessage(gid, uid, text.Bytes())
	if err != nil {
		logger.Error("post failed",
			logger.KeyUID, uid.String(),
			logger.KeyGID, gid.String(),
			logger.KeyTsize, tsize,
			logger.KeyError, err)
		return nok()
	}

	if sep == ' ' {
		st := s.receiveAttachment(fr, gid, mid)
		if st != wire.StatusOK {
			_ = s.store.DiscardMessage(gid, mid)
			if st == statusAborted {
				return statusAborted
			}
			return nok()
		}
	}

	if _, err := w.Write(wire.EncodeLine(wire.ReplyPost, mid.String())); err != nil {
		return statusAborted
	}
	return wire.StatusOK
}

// authorizeMember checks the user may act in the group: registered,
// logged in and subscribed.
func (s *Server) authorizeMember(uid wire.UID, gid wire.GID) store.Status {
	st, err := s.store.ValidateUser(uid)
	if err != nil {
		logger.Error("user check failed", logger.KeyUID, uid.String(), logger.KeyError, err)
		return store.Invalid
	}
	if st != store.Valid {
		return st
	}

	ok, err := s.store.GroupExists(gid)
	if err != nil || !ok {
		if err != nil {
			logger.Error("group check failed", logger.KeyGID, gid.String(), logger.KeyError, err)
		}
		return store.NotFound
	}

	sub, err := s.store.IsSubscribed(uid, gid)
	if err != nil || !sub {
		if err != nil {
			logger.Error("subscription check failed", logger.KeyUID, uid.String(), logger.KeyGID, gid.String(), logger.KeyError, err)
		}
		return store.NotSubscribed
	}
	return store.Valid
}

// receiveAttachment reads "Fname Fsize <bytes>\n" and stores the body under
// the already-created message. Returns a wire status for protocol failures
// and statusAborted when the stream died.
func (s *Server) receiveAttachment(fr *wire.FieldReader, gid wire.GID, mid wire.MID) string {
	fnameWord, sep, err := fr.ReadWord(wire.MaxFname)
	if err != nil {
		if errors.Is(err, wire.ErrWordTooLong) {
			fr.DiscardLine(maxDiscard)
			return wire.StatusNOK
		}
		return statusAborted
	}
	if sep != ' ' {
		return wire.StatusNOK
	}
	fsizeWord, sep, err := fr.ReadWord(wire.MaxFsize)
	if err != nil {
		if errors.Is(err, wire.ErrWordTooLong) {
			fr.DiscardLine(maxDiscard)
			return wire.StatusNOK
		}
		return statusAborted
	}
	if sep != ' ' {
		return wire.StatusNOK
	}

	fname, fnameErr := wire.ParseFname(fnameWord)
	fsize, fsizeErr := wire.ParseFsize(fsizeWord)
	if fnameErr != nil || fsizeErr != nil {
		return wire.StatusNOK
	}

	if err := s.store.AttachFile(gid, mid, fname, fsize, fr.Payload(fsize)); err != nil {
		logger.Error("attachment store failed",
			logger.KeyGID, gid.String(),
			logger.KeyMID, mid.String(),
			logger.KeyFname, fname.String(),
			logger.KeyFsize, fsize,
			logger.KeyError, err)
		return statusAborted
	}
	s.metrics.AddAttachmentBytes("in", fsize)

	term, err := fr.ReadByte()
	if err != nil {
		return statusAborted
	}
	if term != '\n' {
		return wire.StatusNOK
	}
	return wire.StatusOK
}

// handleRetrieve answers RTV: a window of up to 20 messages from the
// requested id onward, each rendered as " MID UID Tsize text" with an
// optional " / Fname Fsize <bytes>" attachment section. An empty window is
// "RRT EOF". A disk failure while the reply is already streaming closes the
// connection; the client sees a truncated reply.
func (s *Server) handleRetrieve(fr *wire.FieldReader, w io.Writer) string {
	nok := func() string {
		_, _ = w.Write(wire.EncodeLine(wire.ReplyRetrieve, wire.StatusNOK))
		return wire.StatusNOK
	}

	uidWord, sep, err := fr.ReadWord(wire.MaxUID)
	if err != nil {
		return failWord(fr, err, nok)
	}
	if sep != ' ' {
		return nok()
	}
	gidWord, sep, err := fr.ReadWord(wire.MaxGID)
	if err != nil {
		return failWord(fr, err, nok)
	}
	if sep != ' ' {
		return nok()
	}
	midWord, sep, err := fr.ReadWord(wire.MaxMID)
	if err != nil {
		return failWord(fr, err, nok)
	}
	if sep != '\n' {
		return nok()
	}

	uid, uidErr := wire.ParseUID(uidWord)
	gid, gidErr := wire.ParseGID(gidWord)
	mid, midErr := wire.ParseMID(midWord)
	if uidErr != nil || gidErr != nil || gid == wire.GIDCreate || midErr != nil {
		return nok()
	}
	if mid < 1 {
		mid = 1
	}
	if st := s.authorizeMember(uid, gid); st != store.Valid {
		return nok()
	}

	msgs, err := s.store.ReadMessageRange(gid, mid)
	if err != nil {
		logger.Error("retrieve failed", logger.KeyGID, gid.String(), logger.KeyMID, mid.String(), logger.KeyError, err)
		return statusAborted
	}
	if len(msgs) == 0 {
		if _, err := w.Write(wire.EncodeLine(wire.ReplyRetrieve, wire.StatusEOF)); err != nil {
			return statusAborted
		}
		return wire.StatusEOF
	}

	bw := bufio.NewWriter(w)
	writeWords := func(words ...string) error {
		for _, word := range words {
			if err := bw.WriteByte(' '); err != nil {
				return err
			}
			if _, err := bw.WriteString(word); err != nil {
				return err
			}
		}
		return nil
	}

	if _, err := bw.WriteString(wire.ReplyRetrieve); err != nil {
		return statusAborted
	}
	if err := writeWords(wire.StatusOK, strconv.Itoa(len(msgs))); err != nil {
		return statusAborted
	}

	for _, msg := range msgs {
		err := writeWords(msg.MID.String(), msg.Author.String(), strconv.Itoa(len(msg.Text)))
		if err == nil {
			err = bw.WriteByte(' ')
		}
		if err == nil {
			_, err = bw.Write(msg.Text)
		}
		if err != nil {
			return statusAborted
		}

		if !msg.HasAttachment() {
			continue
		}
		err = writeWords("/", msg.Fname.String(), strconv.FormatInt(msg.Fsize, 10))
		if err == nil {
			err = bw.WriteByte(' ')
		}
		if err != nil {
			return statusAborted
		}
		if err := s.streamAttachment(bw, gid, msg); err != nil {
			logger.Error("attachment stream failed",
				logger.KeyGID, gid.String(),
				logger.KeyMID, msg.MID.String(),
				logger.KeyFsize, msg.Fsize,
				logger.KeyError, err)
			return statusAborted
		}
		s.metrics.AddAttachmentBytes("out", msg.Fsize)
	}

	if err := bw.WriteByte('\n'); err != nil {
		return statusAborted
	}
	if err := bw.Flush(); err != nil {
		return statusAborted
	}
	return wire.StatusOK
}

func (s *Server) streamAttachment(w io.Writer, gid wire.GID, msg store.Message) error {
	rc, err := s.store.OpenAttachment(gid, msg.MID, msg.Fname)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	_, err = io.CopyN(w, rc, msg.Fsize)
	return err
}
