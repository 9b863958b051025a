package relay

import (
	"errors"
	"net"
	"syscall"
	"time"
)

// ErrEmptyPayload is returned for a join datagram without content.
var ErrEmptyPayload = errors.New("empty join payload")

// ErrLineTooLong is returned by StreamConn.Recv for a line over its limit.
var ErrLineTooLong = errors.New("line too long")

// IsClosed reports whether err means the socket itself is gone, as opposed to
// a failure of a single operation on it.
func IsClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, syscall.EINVAL)
}

// nextBackoff doubles the wait after a failed accept or receive, from 5ms up
// to one second.
func nextBackoff(d time.Duration) time.Duration {
	if d == 0 {
		return 5 * time.Millisecond
	}
	if d *= 2; d > time.Second {
		return time.Second
	}
	return d
}
