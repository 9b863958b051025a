package relay

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/shazow/rateio"
)

// DefaultMaxLineLength bounds a received line when no limit is configured.
const DefaultMaxLineLength = 64 * 1024

// DefaultWriteTimeout bounds a single line write to a stream peer.
const DefaultWriteTimeout = 10 * time.Second

// StreamListener accepts line-oriented TCP connections.
type StreamListener struct {
	net.Listener
	RateLimit func() rateio.Limiter

	// WriteTimeout is applied to the connections this listener accepts.
	WriteTimeout time.Duration
}

// ListenStream makes a stream listener socket.
func ListenStream(laddr string) (*StreamListener, error) {
	socket, err := net.Listen("tcp", laddr)
	if err != nil {
		return nil, err
	}
	return &StreamListener{Listener: socket}, nil
}

// Serve accepts connections and hands each one to handler in its own call.
// Handlers are expected to return quickly; long work belongs in a goroutine
// they start. Serve returns once the listening socket is closed or unusable.
func (l *StreamListener) Serve(handler func(*StreamConn)) error {
	var backoff time.Duration
	for {
		conn, err := l.Accept()
		if err != nil {
			if IsClosed(err) {
				return err
			}
			backoff = nextBackoff(backoff)
			logger.Printf("Failed to accept connection: %v; retrying in %v", err, backoff)
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if l.RateLimit != nil {
			conn = ReadLimitConn(conn, l.RateLimit())
		}
		c := NewStreamConn(conn)
		if l.WriteTimeout > 0 {
			c.WriteTimeout = l.WriteTimeout
		}
		handler(c)
	}
}

// StreamConn is one accepted connection, exchanging newline-delimited lines.
type StreamConn struct {
	// MaxLineLength is the longest line Recv returns, without its terminator.
	MaxLineLength int
	WriteTimeout  time.Duration

	conn      net.Conn
	reader    *bufio.Reader
	mu        sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewStreamConn wraps conn.
func NewStreamConn(conn net.Conn) *StreamConn {
	return &StreamConn{
		MaxLineLength: DefaultMaxLineLength,
		WriteTimeout:  DefaultWriteTimeout,
		conn:          conn,
		reader:        bufio.NewReader(conn),
	}
}

// Recv blocks until the next line arrives. The line terminator is stripped.
// A final unterminated line before EOF is returned as a line. A line longer
// than MaxLineLength is consumed without being kept and reported as
// ErrLineTooLong.
func (c *StreamConn) Recv() (string, error) {
	var line []byte
	tooLong := false
	for {
		chunk, err := c.reader.ReadSlice('\n')
		if !tooLong {
			// Allow for a \r\n terminator on a line of exactly MaxLineLength.
			if c.MaxLineLength > 0 && len(line)+len(chunk) > c.MaxLineLength+2 {
				tooLong = true
				line = nil
			} else {
				line = append(line, chunk...)
			}
		}

		switch {
		case err == bufio.ErrBufferFull:
			continue
		case err == io.EOF && (tooLong || len(line) > 0):
		case err != nil:
			return "", err
		}
		if tooLong {
			return "", ErrLineTooLong
		}
		return strings.TrimRight(string(line), "\r\n"), nil
	}
}

// Send writes one line.
func (c *StreamConn) Send(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.WriteTimeout > 0 {
		if err := c.conn.SetWriteDeadline(time.Now().Add(c.WriteTimeout)); err != nil {
			return err
		}
	}
	_, err := io.WriteString(c.conn, line+"\n")
	return err
}

// Close closes the connection; later calls return the first result.
func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

func (c *StreamConn) RemoteAddr() net.Addr {
	return c.conn.RemoteAddr()
}

func (c *StreamConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}
