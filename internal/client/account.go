package client

import (
	"fmt"
	"strconv"

	"github.com/groupds/groupds/internal/protocol/wire"
)

// Group is one row of a group listing.
type Group struct {
	GID     wire.GID
	Name    wire.GName
	LastMID wire.MID
}

// Register creates the account and returns the reply status token
// (OK, DUP or NOK).
func (c *Client) Register(uid wire.UID, pass string) (string, error) {
	tag, fields, err := c.requestUDP(wire.EncodeLine(wire.TagRegister, uid.String(), pass))
	if err != nil {
		return "", err
	}
	if err := expectReply(tag, wire.ReplyRegister); err != nil {
		return "", err
	}
	return statusOf(fields)
}

// Unregister removes the account and everything it owns.
func (c *Client) Unregister(uid wire.UID, pass string) (string, error) {
	tag, fields, err := c.requestUDP(wire.EncodeLine(wire.TagUnregister, uid.String(), pass))
	if err != nil {
		return "", err
	}
	if err := expectReply(tag, wire.ReplyUnregister); err != nil {
		return "", err
	}
	return statusOf(fields)
}

// Login sets the server-side login marker.
func (c *Client) Login(uid wire.UID, pass string) (string, error) {
	tag, fields, err := c.requestUDP(wire.EncodeLine(wire.TagLogin, uid.String(), pass))
	if err != nil {
		return "", err
	}
	if err := expectReply(tag, wire.ReplyLogin); err != nil {
		return "", err
	}
	return statusOf(fields)
}

// Logout clears the server-side login marker.
func (c *Client) Logout(uid wire.UID, pass string) (string, error) {
	tag, fields, err := c.requestUDP(wire.EncodeLine(wire.TagLogout, uid.String(), pass))
	if err != nil {
		return "", err
	}
	if err := expectReply(tag, wire.ReplyLogout); err != nil {
		return "", err
	}
	return statusOf(fields)
}

// Groups lists every group on the server.
func (c *Client) Groups() ([]Group, error) {
	tag, fields, err := c.requestUDP(wire.EncodeLine(wire.TagGroups))
	if err != nil {
		return nil, err
	}
	if err := expectReply(tag, wire.ReplyGroups); err != nil {
		return nil, err
	}
	return parseGroupList(fields)
}

// MyGroups lists the groups uid is subscribed to. The status is OK on
// success or the error token the server answered instead of a list.
func (c *Client) MyGroups(uid wire.UID) ([]Group, string, error) {
	tag, fields, err := c.requestUDP(wire.EncodeLine(wire.TagMyGroups, uid.String()))
	if err != nil {
		return nil, "", err
	}
	if err := expectReply(tag, wire.ReplyMyGroups); err != nil {
		return nil, "", err
	}

	if len(fields) >= 1 {
		if _, err := strconv.Atoi(fields[0]); err != nil {
			// Not a count: an error token such as E_USR.
			return nil, fields[0], nil
		}
	}
	groups, err := parseGroupList(fields)
	if err != nil {
		return nil, "", err
	}
	return groups, wire.StatusOK, nil
}

// Subscribe joins gid, or creates a group when gid is the 00 sentinel.
// On creation the returned GID identifies the new group.
func (c *Client) Subscribe(uid wire.UID, gid wire.GID, name wire.GName) (string, wire.GID, error) {
	tag, fields, err := c.requestUDP(wire.EncodeLine(wire.TagSubscribe, uid.String(), gid.String(), name.String()))
	if err != nil {
		return "", 0, err
	}
	if err := expectReply(tag, wire.ReplySubscribe); err != nil {
		return "", 0, err
	}

	status, err := statusOf(fields)
	if err != nil {
		return "", 0, err
	}
	if status == wire.StatusNEW {
		if len(fields) != 2 {
			return "", 0, fmt.Errorf("malformed NEW reply %v", fields)
		}
		newGID, err := wire.ParseGID(fields[1])
		if err != nil {
			return "", 0, fmt.Errorf("malformed NEW reply %v: %w", fields, err)
		}
		return status, newGID, nil
	}
	return status, 0, nil
}

// Unsubscribe leaves gid.
func (c *Client) Unsubscribe(uid wire.UID, gid wire.GID) (string, error) {
	tag, fields, err := c.requestUDP(wire.EncodeLine(wire.TagUnsubscribe, uid.String(), gid.String()))
	if err != nil {
		return "", err
	}
	if err := expectReply(tag, wire.ReplyUnsubscribe); err != nil {
		return "", err
	}
	return statusOf(fields)
}

// statusOf returns the first reply field.
func statusOf(fields []string) (string, error) {
	if len(fields) == 0 {
		return "", fmt.Errorf("reply carries no status")
	}
	return fields[0], nil
}

// parseGroupList decodes "N [GID GName MID]*" reply fields.
func parseGroupList(fields []string) ([]Group, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("group list reply carries no count")
	}
	n, err := strconv.Atoi(fields[0])
	if err != nil || n < 0 {
		return nil, fmt.Errorf("malformed group count %q", fields[0])
	}
	if len(fields) != 1+3*n {
		return nil, fmt.Errorf("group list has %d fields, want %d", len(fields)-1, 3*n)
	}

	groups := make([]Group, 0, n)
	for i := 0; i < n; i++ {
		gid, err := wire.ParseGID(fields[1+3*i])
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		name, err := wire.ParseGName(fields[2+3*i])
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		mid, err := wire.ParseMID(fields[3+3*i])
		if err != nil {
			return nil, fmt.Errorf("group %d: %w", i, err)
		}
		groups = append(groups, Group{GID: gid, Name: name, LastMID: mid})
	}
	return groups, nil
}
