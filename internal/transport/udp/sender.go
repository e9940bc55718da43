package udp

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"sketchpad/internal/log"
)

// ErrSenderClosed is returned by Send after Close.
var ErrSenderClosed = errors.New("udp: sender closed")

// writeTimeout bounds a single datagram write so a wedged socket cannot
// stall the publisher.
const writeTimeout = 50 * time.Millisecond

// UDPSender writes state packets to one renderer address.
type UDPSender struct {
	conn   *net.UDPConn
	target string

	mu     sync.Mutex
	closed bool
	sent   uint64
}

// NewUDPSender connects to targetAddress ("host:port"). UDP is
// connectionless, so this only fixes the destination; nothing is sent yet.
func NewUDPSender(targetAddress string) (*UDPSender, error) {
	addr, err := net.ResolveUDPAddr("udp", targetAddress)
	if err != nil {
		return nil, fmt.Errorf("resolve renderer address %q: %w", targetAddress, err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial renderer %q: %w", targetAddress, err)
	}

	log.Infof("UDPSender: Sending visual state to %s", conn.RemoteAddr())
	return &UDPSender{conn: conn, target: conn.RemoteAddr().String()}, nil
}

// Target returns the resolved destination address.
func (s *UDPSender) Target() string {
	return s.target
}

// Send writes data as one datagram.
func (s *UDPSender) Send(data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSenderClosed
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if _, err := s.conn.Write(data); err != nil {
		// Nobody listening yields ECONNREFUSED on some platforms; the
		// publisher keeps going either way.
		log.Debugf("UDPSender: Write to %s failed: %v", s.target, err)
		return fmt.Errorf("send state packet: %w", err)
	}
	s.sent++
	return nil
}

// Sent returns the number of datagrams written.
func (s *UDPSender) Sent() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sent
}

// Close releases the socket. It is safe to call more than once.
func (s *UDPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	log.Infof("UDPSender: Closing (%d packets sent to %s)", s.sent, s.target)
	return s.conn.Close()
}
