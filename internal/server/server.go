package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/groupds/groupds/internal/logger"
	"github.com/groupds/groupds/internal/protocol/wire"
	"github.com/groupds/groupds/pkg/store"
)

// maxTCPConns is the maximum number of concurrent TCP connection workers.
// Stream transactions are short (a post or a 20-message window) so 64 is
// generous.
const maxTCPConns = 64

// Config holds configuration for the directory service server.
type Config struct {
	// Port is the port both listeners bind (default 58012).
	Port int

	// EnableTCP controls whether the TCP listener is started.
	// Default: true.
	EnableTCP bool

	// EnableUDP controls whether the UDP listener is started.
	// Default: true.
	EnableUDP bool
}

// Server is the directory service endpoint. It listens on one port over
// both transports: UDP carries the single-datagram management commands,
// TCP carries the streaming commands (ULS, PST, RTV).
//
// UDP requests are answered inline in the read loop, strictly in arrival
// order. Each accepted TCP connection gets its own worker goroutine so a
// large attachment transfer never blocks datagram traffic.
type Server struct {
	config        Config
	store         *store.Store
	metrics       *Metrics
	tcpListener   net.Listener
	udpConn       *net.UDPConn
	shutdown      chan struct{}
	shutdownOnce  sync.Once
	wg            sync.WaitGroup
	listenerReady chan struct{}
	connSemaphore chan struct{}
}

// clientAttrs splits a remote address into the standard client log fields.
func clientAttrs(addr string) []any {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return []any{logger.KeyClientIP, addr}
	}
	return []any{logger.KeyClientIP, host, logger.KeyClientPort, port}
}

// New creates a server over st with the given configuration. A nil metrics
// disables instrumentation.
func New(cfg Config, st *store.Store, m *Metrics) *Server {
	return &Server{
		config:        cfg,
		store:         st,
		metrics:       m,
		shutdown:      make(chan struct{}),
		listenerReady: make(chan struct{}),
		connSemaphore: make(chan struct{}, maxTCPConns),
	}
}

// Serve binds both listeners and blocks until the context is cancelled or
// Stop is called. After both listeners are bound, WaitReady() unblocks.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.Port)

	if s.config.EnableTCP {
		tcpListener, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listen TCP %s: %w", addr, err)
		}
		s.tcpListener = tcpListener

		// Both transports must share one port. When an ephemeral port was
		// requested, reuse the one the TCP listener got.
		if s.config.Port == 0 {
			addr = fmt.Sprintf(":%d", tcpListener.Addr().(*net.TCPAddr).Port)
		}
	}

	if s.config.EnableUDP {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			if s.tcpListener != nil {
				_ = s.tcpListener.Close()
			}
			return fmt.Errorf("resolve UDP %s: %w", addr, err)
		}
		udpConn, err := net.ListenUDP("udp", udpAddr)
		if err != nil {
			if s.tcpListener != nil {
				_ = s.tcpListener.Close()
			}
			return fmt.Errorf("listen UDP %s: %w", addr, err)
		}
		s.udpConn = udpConn
	}

	close(s.listenerReady)

	logger.Info("Directory service started",
		"address", addr,
		logger.KeyPath, s.store.Root(),
		"tcp", s.config.EnableTCP,
		"udp", s.config.EnableUDP)

	if s.config.EnableTCP {
		s.wg.Add(1)
		go s.serveTCP(ctx)
	}
	if s.config.EnableUDP {
		s.wg.Add(1)
		go s.serveUDP()
	}

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	s.wg.Wait()
	return nil
}

// WaitReady returns a channel that is closed once both listeners are bound
// and accepting requests. Callers should select on it with a timeout to
// detect startup failures.
func (s *Server) WaitReady() <-chan struct{} {
	return s.listenerReady
}

// serveTCP accepts connections and hands each to a worker goroutine.
func (s *Server) serveTCP(ctx context.Context) {
	defer s.wg.Done()

	for {
		conn, err := s.tcpListener.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				logger.Debug("TCP accept error", logger.KeyError, err)
				return
			}
		}

		select {
		case s.connSemaphore <- struct{}{}:
		default:
			logger.Debug("TCP connection limit reached, rejecting", clientAttrs(conn.RemoteAddr().String())...)
			_ = conn.Close()
			continue
		}

		s.wg.Add(1)
		go func(c net.Conn) {
			defer s.wg.Done()
			defer func() { <-s.connSemaphore }()
			s.metrics.ConnOpened()
			defer s.metrics.ConnClosed()
			s.handleConn(ctx, c)
		}(conn)
	}
}

// serveUDP reads datagrams and answers them inline, one at a time in
// arrival order. A short read deadline keeps the loop responsive to
// shutdown.
func (s *Server) serveUDP() {
	defer s.wg.Done()

	buf := make([]byte, wire.MaxRequestUDP)

	for {
		select {
		case <-s.shutdown:
			return
		default:
		}

		if err := s.udpConn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				logger.Debug("set UDP deadline error", logger.KeyError, err)
				continue
			}
		}

		n, clientAddr, err := s.udpConn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			select {
			case <-s.shutdown:
				return
			default:
				logger.Debug("UDP read error", logger.KeyError, err)
				continue
			}
		}

		reply := s.handleDatagram(buf[:n], clientAddr.String())
		if _, err := s.udpConn.WriteToUDP(reply, clientAddr); err != nil {
			logger.Debug("UDP write error", append(clientAttrs(clientAddr.String()), logger.KeyError, err)...)
		}
	}
}

// Stop gracefully shuts the server down and waits for the accept loop, the
// datagram loop and all active connection workers to finish.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.tcpListener != nil {
			_ = s.tcpListener.Close()
		}
		if s.udpConn != nil {
			_ = s.udpConn.Close()
		}
	})
	s.wg.Wait()
}

// Addr returns the TCP listener address (for tests).
func (s *Server) Addr() string {
	if s.tcpListener != nil {
		return s.tcpListener.Addr().String()
	}
	return ""
}

// UDPAddr returns the UDP listener address (for tests).
func (s *Server) UDPAddr() string {
	if s.udpConn != nil {
		return s.udpConn.LocalAddr().String()
	}
	return ""
}
