// Package client implements the user-facing side of the protocol: the UDP
// requester with its retry policy, the TCP streaming transactions, and the
// interactive command loop.
package client

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/groupds/groupds/internal/logger"
	"github.com/groupds/groupds/internal/protocol/wire"
)

// ErrTimeout is returned when the server does not answer a datagram request
// within the retry budget.
var ErrTimeout = errors.New("server did not answer")

const (
	// udpTimeout is the receive deadline for one datagram attempt.
	udpTimeout = 3 * time.Second

	// udpAttempts is the total number of tries before giving up.
	udpAttempts = 3
)

// Client talks to one directory service endpoint.
type Client struct {
	addr string
}

// New creates a client for the server at host:port.
func New(host string, port int) *Client {
	return &Client{addr: net.JoinHostPort(host, strconv.Itoa(port))}
}

// Addr returns the server address the client targets.
func (c *Client) Addr() string {
	return c.addr
}

// requestUDP performs one datagram transaction: send the frame, wait for
// the reply with a 3 second deadline, retry up to 3 attempts total.
// Datagrams can be lost silently, so the retry is the only delivery
// guarantee the management commands get.
func (c *Client) requestUDP(frame []byte) (tag string, fields []string, err error) {
	conn, err := net.Dial("udp", c.addr)
	if err != nil {
		return "", nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	defer func() { _ = conn.Close() }()

	buf := make([]byte, wire.MaxReplyUDP)
	for attempt := 1; attempt <= udpAttempts; attempt++ {
		if _, err := conn.Write(frame); err != nil {
			return "", nil, fmt.Errorf("send request: %w", err)
		}
		if err := conn.SetReadDeadline(time.Now().Add(udpTimeout)); err != nil {
			return "", nil, fmt.Errorf("set deadline: %w", err)
		}

		n, err := conn.Read(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Debug("request timed out, retrying", "attempt", attempt)
				continue
			}
			return "", nil, fmt.Errorf("receive reply: %w", err)
		}

		return wire.DecodeLine(buf[:n])
	}
	return "", nil, ErrTimeout
}

// dialTCP opens a stream transaction and returns the connection with a
// field reader over it. The caller closes the connection.
func (c *Client) dialTCP() (net.Conn, *wire.FieldReader, error) {
	conn, err := net.DialTimeout("tcp", c.addr, 5*time.Second)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", c.addr, err)
	}
	return conn, wire.NewFieldReader(conn), nil
}

// expectReply checks that a reply carries the awaited answer tag.
func expectReply(got, want string) error {
	if got != want {
		return fmt.Errorf("unexpected reply tag %q (want %q)", got, want)
	}
	return nil
}
