package relay

import (
	"bufio"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

func TestListenStreamInit(t *testing.T) {
	_, err := ListenStream(":badport")
	if err == nil {
		t.Fatal("should fail on bad port")
	}

	s, err := ListenStream("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Error(err)
	}
}

func TestStreamServeEcho(t *testing.T) {
	s, err := ListenStream("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	served := make(chan error, 1)
	go func() {
		served <- s.Serve(func(conn *StreamConn) {
			go func() {
				defer conn.Close()
				line, err := conn.Recv()
				if err != nil {
					t.Error(err)
					return
				}
				if err := conn.Send("echo: " + line); err != nil {
					t.Error(err)
				}
			}()
		})
	}()

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("hello\r\n")); err != nil {
		t.Fatal(err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	actual, err := bufio.NewReader(conn).ReadString('\n')
	if err != nil {
		t.Fatal(err)
	}
	if expected := "echo: hello\n"; actual != expected {
		t.Errorf("Got %q; expected %q", actual, expected)
	}

	s.Close()
	select {
	case err := <-served:
		if !IsClosed(err) {
			t.Errorf("Serve returned unexpected error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after close")
	}
}

func TestStreamConnRecvTrailingLine(t *testing.T) {
	server, client := net.Pipe()
	conn := NewStreamConn(server)

	go func() {
		client.Write([]byte("one\ntwo"))
		client.Close()
	}()

	for _, expected := range []string{"one", "two"} {
		actual, err := conn.Recv()
		if err != nil {
			t.Fatal(err)
		}
		if actual != expected {
			t.Errorf("Got %q; expected %q", actual, expected)
		}
	}
	if _, err := conn.Recv(); err == nil {
		t.Error("expected an error after EOF")
	}
}

func TestStreamConnLineTooLong(t *testing.T) {
	server, client := net.Pipe()
	conn := NewStreamConn(server)
	conn.MaxLineLength = 8

	long := strings.Repeat("x", 100000)
	go func() {
		client.Write([]byte(long + "\n12345678\r\n" + long))
		client.Close()
	}()

	if _, err := conn.Recv(); err != ErrLineTooLong {
		t.Fatalf("expected ErrLineTooLong; got %v", err)
	}
	actual, err := conn.Recv()
	if err != nil {
		t.Fatal(err)
	}
	if expected := "12345678"; actual != expected {
		t.Errorf("Got %q; expected %q", actual, expected)
	}
	// No newline before EOF: still bounded and still rejected.
	if _, err := conn.Recv(); err != ErrLineTooLong {
		t.Fatalf("expected ErrLineTooLong for the unterminated line; got %v", err)
	}
	if _, err := conn.Recv(); err != io.EOF {
		t.Errorf("expected EOF; got %v", err)
	}
}

func TestStreamConnWriteTimeout(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewStreamConn(server)
	conn.WriteTimeout = 50 * time.Millisecond
	defer conn.Close()

	// Nobody reads from client, so the write can only end by timing out.
	done := make(chan error, 1)
	go func() {
		done <- conn.Send("hello")
	}()
	select {
	case err := <-done:
		if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
			t.Errorf("expected a timeout; got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked past its write timeout")
	}
}

func TestStreamConnCloseTwice(t *testing.T) {
	server, client := net.Pipe()
	defer client.Close()
	conn := NewStreamConn(server)

	if err := conn.Close(); err != nil {
		t.Fatal(err)
	}
	if err := conn.Close(); err != nil {
		t.Errorf("second close returned %v", err)
	}
	if err := conn.Send("x"); err == nil {
		t.Error("send on closed connection succeeded")
	}
}

func TestStreamRateLimit(t *testing.T) {
	s, err := ListenStream("127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	s.RateLimit = NewInputLimiter(4, time.Minute)

	result := make(chan error, 1)
	go s.Serve(func(conn *StreamConn) {
		go func() {
			defer conn.Close()
			for {
				if _, err := conn.Recv(); err != nil {
					result <- err
					return
				}
			}
		}()
	})

	conn, err := net.Dial("tcp", s.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()
	conn.Write([]byte("this line is far longer than four bytes\n"))

	select {
	case err := <-result:
		if err == nil {
			t.Error("expected the rate limit to end the read loop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("rate limit never triggered")
	}
}
