package relay

import (
	"errors"
	"net"
	"testing"
)

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

func TestMultiCloser(t *testing.T) {
	calls := 0
	ok := closerFunc(func() error { calls++; return nil })
	closed := closerFunc(func() error { calls++; return net.ErrClosed })
	failing := closerFunc(func() error { calls++; return errors.New("boom") })

	if err := (MultiCloser{ok, closed, nil}).Close(); err != nil {
		t.Errorf("already-closed sockets should not be errors; got %v", err)
	}

	err := MultiCloser{failing, ok, failing}.Close()
	if calls != 6 {
		t.Errorf("Got %d close calls; expected 6", calls)
	}
	merr, isMulti := err.(MultiError)
	if !isMulti || len(merr) != 2 {
		t.Fatalf("unexpected error: %#v", err)
	}
	if actual, expected := merr.Error(), "2 errors: boom; boom"; actual != expected {
		t.Errorf("Got %q; expected %q", actual, expected)
	}
}
