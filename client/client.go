// Package client speaks the relay's wire protocol from the peer side. It is
// deliberately small: connect or join, send lines, receive lines, leave.
package client

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chatrelay/chatrelay/chat"
)

// ErrHandshake is returned when the server never hands off a port.
var ErrHandshake = errors.New("datagram handshake failed")

// DefaultJoinPayload is what JoinDatagram sends when no payload is given.
const DefaultJoinPayload = "has joined the chat room."

// DefaultHandshakeTimeout bounds the wait for the port handoff.
const DefaultHandshakeTimeout = 3 * time.Second

// Conn is a joined peer, over either transport.
type Conn interface {
	io.Closer
	Send(line string) error
	Recv() (string, error)
	// Leave asks the server to remove this peer, then closes the connection.
	Leave() error
	LocalAddr() net.Addr
}

// StreamConn is a peer on the stream transport.
type StreamConn struct {
	conn   net.Conn
	reader *bufio.Reader
	mu     sync.Mutex
}

// DialStream connects to the stream port at addr.
func DialStream(addr string) (*StreamConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &StreamConn{conn: conn, reader: bufio.NewReader(conn)}, nil
}

func (c *StreamConn) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

func (c *StreamConn) Recv() (string, error) {
	line, err := c.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// SetDeadline bounds the next reads and writes.
func (c *StreamConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *StreamConn) Leave() error {
	if err := c.Send(chat.Sentinel); err != nil {
		c.Close()
		return err
	}
	return c.Close()
}

func (c *StreamConn) Close() error {
	return c.conn.Close()
}

func (c *StreamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// DatagramConn is a peer on the datagram transport, after the handshake.
type DatagramConn struct {
	conn    *net.UDPConn
	server  *net.UDPAddr
	pending []string
	Port    int
}

// JoinDatagram sends payload to the well-known datagram port at addr and waits
// up to timeout for the port handoff. Chat lines that arrive before the
// handoff, such as the echo of the join itself, are kept and returned by the
// first calls to Recv.
func JoinDatagram(addr, payload string, timeout time.Duration) (*DatagramConn, error) {
	if payload == "" {
		payload = DefaultJoinPayload
	}
	if timeout <= 0 {
		timeout = DefaultHandshakeTimeout
	}

	server, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return nil, err
	}
	c := &DatagramConn{conn: conn}
	if err := c.handshake(server, payload, timeout); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *DatagramConn) handshake(server *net.UDPAddr, payload string, timeout time.Duration) error {
	if _, err := c.conn.WriteToUDP([]byte(payload), server); err != nil {
		return err
	}
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return err
	}
	defer c.conn.SetReadDeadline(time.Time{})

	buf := make([]byte, 64*1024)
	for {
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrHandshake, err)
		}
		if !from.IP.Equal(server.IP) && !server.IP.IsUnspecified() {
			continue
		}
		msg := string(buf[:n])
		port, ok := parsePort(msg)
		if !ok {
			c.pending = append(c.pending, msg)
			continue
		}
		c.Port = port
		c.server = &net.UDPAddr{IP: from.IP, Port: port, Zone: from.Zone}
		return nil
	}
}

func (c *DatagramConn) Send(line string) error {
	_, err := c.conn.WriteToUDP([]byte(line), c.server)
	return err
}

func (c *DatagramConn) Recv() (string, error) {
	if len(c.pending) > 0 {
		line := c.pending[0]
		c.pending = c.pending[1:]
		return line, nil
	}
	buf := make([]byte, 64*1024)
	n, _, err := c.conn.ReadFromUDP(buf)
	if err != nil {
		return "", err
	}
	return string(buf[:n]), nil
}

// SetDeadline bounds the next reads and writes.
func (c *DatagramConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *DatagramConn) Leave() error {
	if err := c.Send(chat.Sentinel); err != nil {
		c.Close()
		return err
	}
	return c.Close()
}

func (c *DatagramConn) Close() error {
	return c.conn.Close()
}

func (c *DatagramConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func parsePort(s string) (int, bool) {
	if s == "" || strings.TrimLeft(s, "0123456789") != "" {
		return 0, false
	}
	port, err := strconv.Atoi(s)
	if err != nil || port <= 0 || port > 65535 {
		return 0, false
	}
	return port, true
}
