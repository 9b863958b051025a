package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/chatrelay/chatrelay/client"
)

// runClient joins the relay at addr, sends each line of in and prints every
// received line to out. It leaves the room when in is exhausted or ctx ends.
func runClient(ctx context.Context, addr string, udp bool, timeout time.Duration, in io.Reader, out io.Writer) error {
	var conn client.Conn
	var err error
	if udp {
		conn, err = client.JoinDatagram(addr, client.DefaultJoinPayload, timeout)
	} else {
		conn, err = client.DialStream(addr)
	}
	if err != nil {
		return err
	}

	received := make(chan error, 1)
	go func() {
		for {
			line, err := conn.Recv()
			if err != nil {
				received <- err
				return
			}
			fmt.Fprintln(out, line)
		}
	}()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return conn.Leave()
		case err := <-received:
			conn.Close()
			if err == io.EOF {
				return nil
			}
			return err
		case line, ok := <-lines:
			if !ok {
				return conn.Leave()
			}
			if err := conn.Send(line); err != nil {
				conn.Close()
				return err
			}
		}
	}
}
