package server

import (
	"bytes"
	"strconv"
	"time"

	"github.com/groupds/groupds/internal/logger"
	"github.com/groupds/groupds/internal/protocol/wire"
	"github.com/groupds/groupds/pkg/store"
)

// errFrame is the reply to anything that does not parse as a command:
// unknown tag, wrong field count, or a field its validator rejects.
var errFrame = []byte(wire.StatusErr + "\n")

// handleDatagram dispatches one UDP request and returns the reply frame.
// Every path returns a frame; the datagram transports carry no silence.
func (s *Server) handleDatagram(data []byte, client string) []byte {
	start := time.Now()

	tag, fields, err := wire.DecodeLine(data)
	if err != nil {
		logger.Debug("malformed datagram", append(clientAttrs(client), logger.KeyError, err)...)
		s.metrics.RecordRequest("udp", "unknown", wire.StatusErr, time.Since(start).Seconds())
		return errFrame
	}

	var reply []byte
	switch tag {
	case wire.TagRegister:
		reply = s.handleRegister(fields)
	case wire.TagUnregister:
		reply = s.handleUnregister(fields)
	case wire.TagLogin:
		reply = s.handleLogin(fields)
	case wire.TagLogout:
		reply = s.handleLogout(fields)
	case wire.TagGroups:
		reply = s.handleGroups(fields)
	case wire.TagSubscribe:
		reply = s.handleSubscribe(fields)
	case wire.TagUnsubscribe:
		reply = s.handleUnsubscribe(fields)
	case wire.TagMyGroups:
		reply = s.handleMyGroups(fields)
	default:
		logger.Debug("unknown command tag", append(clientAttrs(client), logger.KeyCommand, tag)...)
		reply = errFrame
	}

	status := replyStatus(reply)
	s.metrics.RecordRequest("udp", tag, status, time.Since(start).Seconds())
	logger.Debug("request", append(clientAttrs(client),
		logger.KeyTransport, "udp",
		logger.KeyCommand, tag,
		logger.KeyStatus, status,
		logger.KeyDuration, time.Since(start).Milliseconds())...)
	return reply
}

// replyStatus extracts the status token of a reply frame for logs and
// metrics: the second word, or the first for the bare ERR frame.
func replyStatus(reply []byte) string {
	parts := bytes.SplitN(bytes.TrimSuffix(reply, []byte("\n")), []byte(" "), 3)
	if len(parts) >= 2 {
		return string(parts[1])
	}
	return string(parts[0])
}

// credentials parses and verifies the UID+pass pair shared by the four
// account commands. The second result is false when the pair is
// syntactically invalid (caller answers ERR); a wrong or unknown
// credential comes back as a non-Valid Status instead.
func (s *Server) credentials(fields []string) (wire.UID, store.Status, bool) {
	if len(fields) != 2 {
		return "", store.Invalid, false
	}
	uid, err := wire.ParseUID(fields[0])
	if err != nil {
		return "", store.Invalid, false
	}
	if !wire.ValidPass(fields[1]) {
		return "", store.Invalid, false
	}

	st, err := s.store.CheckPassword(uid, fields[1])
	if err != nil {
		logger.Error("password check failed", logger.KeyUID, uid.String(), logger.KeyError, err)
		return uid, store.Invalid, true
	}
	return uid, st, true
}

func (s *Server) handleRegister(fields []string) []byte {
	if len(fields) != 2 {
		return errFrame
	}
	uid, err := wire.ParseUID(fields[0])
	if err != nil {
		return errFrame
	}
	if !wire.ValidPass(fields[1]) {
		return errFrame
	}

	st, err := s.store.CreateUser(uid, fields[1])
	if err != nil {
		logger.Error("register failed", logger.KeyUID, uid.String(), logger.KeyError, err)
		return wire.EncodeLine(wire.ReplyRegister, wire.StatusNOK)
	}
	switch st {
	case store.Valid:
		return wire.EncodeLine(wire.ReplyRegister, wire.StatusOK)
	case store.Duplicate:
		return wire.EncodeLine(wire.ReplyRegister, wire.StatusDUP)
	default:
		return wire.EncodeLine(wire.ReplyRegister, wire.StatusNOK)
	}
}

func (s *Server) handleUnregister(fields []string) []byte {
	uid, st, ok := s.credentials(fields)
	if !ok {
		return errFrame
	}
	if st != store.Valid {
		return wire.EncodeLine(wire.ReplyUnregister, wire.StatusNOK)
	}

	st, err := s.store.DeleteUser(uid)
	if err != nil || st != store.Valid {
		if err != nil {
			logger.Error("unregister failed", logger.KeyUID, uid.String(), logger.KeyError, err)
		}
		return wire.EncodeLine(wire.ReplyUnregister, wire.StatusNOK)
	}
	return wire.EncodeLine(wire.ReplyUnregister, wire.StatusOK)
}

func (s *Server) handleLogin(fields []string) []byte {
	uid, st, ok := s.credentials(fields)
	if !ok {
		return errFrame
	}
	if st != store.Valid {
		return wire.EncodeLine(wire.ReplyLogin, wire.StatusNOK)
	}

	if err := s.store.SetLogin(uid); err != nil {
		logger.Error("login failed", logger.KeyUID, uid.String(), logger.KeyError, err)
		return wire.EncodeLine(wire.ReplyLogin, wire.StatusNOK)
	}
	return wire.EncodeLine(wire.ReplyLogin, wire.StatusOK)
}

func (s *Server) handleLogout(fields []string) []byte {
	uid, st, ok := s.credentials(fields)
	if !ok {
		return errFrame
	}
	if st != store.Valid {
		return wire.EncodeLine(wire.ReplyLogout, wire.StatusNOK)
	}

	st, err := s.store.ClearLogin(uid)
	if err != nil || st != store.Valid {
		if err != nil {
			logger.Error("logout failed", logger.KeyUID, uid.String(), logger.KeyError, err)
		}
		return wire.EncodeLine(wire.ReplyLogout, wire.StatusNOK)
	}
	return wire.EncodeLine(wire.ReplyLogout, wire.StatusOK)
}

// groupListReply renders "TAG N [GID GName MID]*" for RGL and RGM.
func groupListReply(tag string, groups []store.GroupInfo) []byte {
	fields := make([]string, 0, 1+3*len(groups))
	fields = append(fields, strconv.Itoa(len(groups)))
	for _, g := range groups {
		fields = append(fields, g.GID.String(), g.Name.String(), g.LastMID.String())
	}
	return wire.EncodeLine(tag, fields...)
}

func (s *Server) handleGroups(fields []string) []byte {
	if len(fields) != 0 {
		return errFrame
	}

	groups, err := s.store.ListGroups()
	if err != nil {
		logger.Error("group listing failed", logger.KeyError, err)
		return wire.EncodeLine(wire.ReplyGroups, wire.StatusNOK)
	}
	return groupListReply(wire.ReplyGroups, groups)
}

func (s *Server) handleSubscribe(fields []string) []byte {
	if len(fields) != 3 {
		return errFrame
	}

	// Field order decides which error token wins when several fields are
	// bad: UID before GID before GName.
	uid, err := wire.ParseUID(fields[0])
	if err != nil {
		return wire.EncodeLine(wire.ReplySubscribe, wire.StatusEUser)
	}
	st, err := s.store.ValidateUser(uid)
	if err != nil {
		logger.Error("subscribe user check failed", logger.KeyUID, uid.String(), logger.KeyError, err)
		return wire.EncodeLine(wire.ReplySubscribe, wire.StatusNOK)
	}
	if st != store.Valid {
		return wire.EncodeLine(wire.ReplySubscribe, wire.StatusEUser)
	}

	gid, err := wire.ParseGID(fields[1])
	if err != nil {
		return wire.EncodeLine(wire.ReplySubscribe, wire.StatusEGroup)
	}
	name, err := wire.ParseGName(fields[2])
	if err != nil {
		return wire.EncodeLine(wire.ReplySubscribe, wire.StatusEGName)
	}

	if gid == wire.GIDCreate {
		newGID, st, err := s.store.CreateGroup(uid, name)
		if err != nil {
			logger.Error("group creation failed", logger.KeyUID, uid.String(), logger.KeyGName, name.String(), logger.KeyError, err)
			return wire.EncodeLine(wire.ReplySubscribe, wire.StatusNOK)
		}
		switch st {
		case store.Valid:
			return wire.EncodeLine(wire.ReplySubscribe, wire.StatusNEW, newGID.String())
		case store.Full:
			return wire.EncodeLine(wire.ReplySubscribe, wire.StatusEFull)
		default:
			return wire.EncodeLine(wire.ReplySubscribe, wire.StatusNOK)
		}
	}

	st, err = s.store.Subscribe(uid, gid, name)
	if err != nil {
		logger.Error("subscribe failed", logger.KeyUID, uid.String(), logger.KeyGID, gid.String(), logger.KeyError, err)
		return wire.EncodeLine(wire.ReplySubscribe, wire.StatusNOK)
	}
	switch st {
	case store.Valid:
		return wire.EncodeLine(wire.ReplySubscribe, wire.StatusOK)
	case store.NotFound:
		return wire.EncodeLine(wire.ReplySubscribe, wire.StatusEGroup)
	case store.NameMismatch:
		return wire.EncodeLine(wire.ReplySubscribe, wire.StatusEGName)
	default:
		return wire.EncodeLine(wire.ReplySubscribe, wire.StatusNOK)
	}
}

func (s *Server) handleUnsubscribe(fields []string) []byte {
	if len(fields) != 2 {
		return errFrame
	}

	uid, err := wire.ParseUID(fields[0])
	if err != nil {
		return wire.EncodeLine(wire.ReplyUnsubscribe, wire.StatusEUser)
	}
	st, err := s.store.ValidateUser(uid)
	if err != nil {
		logger.Error("unsubscribe user check failed", logger.KeyUID, uid.String(), logger.KeyError, err)
		return wire.EncodeLine(wire.ReplyUnsubscribe, wire.StatusNOK)
	}
	if st != store.Valid {
		return wire.EncodeLine(wire.ReplyUnsubscribe, wire.StatusEUser)
	}

	gid, err := wire.ParseGID(fields[1])
	if err != nil || gid == wire.GIDCreate {
		return wire.EncodeLine(wire.ReplyUnsubscribe, wire.StatusEGroup)
	}

	st, err = s.store.Unsubscribe(uid, gid)
	if err != nil {
		logger.Error("unsubscribe failed", logger.KeyUID, uid.String(), logger.KeyGID, gid.String(), logger.KeyError, err)
		return wire.EncodeLine(wire.ReplyUnsubscribe, wire.StatusNOK)
	}
	switch st {
	case store.Valid:
		return wire.EncodeLine(wire.ReplyUnsubscribe, wire.StatusOK)
	case store.NotFound:
		return wire.EncodeLine(wire.ReplyUnsubscribe, wire.StatusEGroup)
	default:
		return wire.EncodeLine(wire.ReplyUnsubscribe, wire.StatusNOK)
	}
}

func (s *Server) handleMyGroups(fields []string) []byte {
	if len(fields) != 1 {
		return errFrame
	}

	uid, err := wire.ParseUID(fields[0])
	if err != nil {
		return wire.EncodeLine(wire.ReplyMyGroups, wire.StatusEUser)
	}
	st, err := s.store.ValidateUser(uid)
	if err != nil {
		logger.Error("my-groups user check failed", logger.KeyUID, uid.String(), logger.KeyError, err)
		return wire.EncodeLine(wire.ReplyMyGroups, wire.StatusNOK)
	}
	if st != store.Valid {
		return wire.EncodeLine(wire.ReplyMyGroups, wire.StatusEUser)
	}

	groups, err := s.store.ListUserGroups(uid)
	if err != nil {
		logger.Error("subscription listing failed", logger.KeyUID, uid.String(), logger.KeyError, err)
		return wire.EncodeLine(wire.ReplyMyGroups, wire.StatusNOK)
	}
	return groupListReply(wire.ReplyMyGroups, groups)
}
