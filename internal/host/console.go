// Package host is the user-facing side of both roles: a line console that
// feeds an Initiator and a display that shows what a Responder receives.
package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/chaz8081/blemsg/internal/ble"
)

// Sender is the interface the Initiator exposes for sending text.
type Sender interface {
	Send(text string) error
}

// Console prints connection events and sends each line typed by the user
// while the peer reports it is ready. It implements ble.InitiatorObserver.
type Console struct {
	mu    sync.Mutex
	out   io.Writer
	ready bool
}

// Compile-time interface satisfaction check.
var _ ble.InitiatorObserver = (*Console)(nil)

// NewConsole creates a Console writing to out.
func NewConsole(out io.Writer) *Console {
	return &Console{out: out}
}

func (c *Console) OnConnected(descriptor string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "<connected to %s>\n", descriptor)
}

func (c *Console) OnDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = false
	fmt.Fprintln(c.out, "<disconnected>")
}

func (c *Console) OnReadinessChanged(ready bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ready = ready
}

// Ready reports the peer's last flow-control value.
func (c *Console) Ready() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

// Run reads lines from in until EOF or ctx is cancelled. Empty lines are
// ignored; lines typed while the peer is busy are dropped.
func (c *Console) Run(ctx context.Context, in io.Reader, sender Sender) error {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		errc <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errc:
			if err != nil {
				return fmt.Errorf("host: read input: %w", err)
			}
			return nil
		case line := <-lines:
			if err := c.submit(line, sender); err != nil {
				return err
			}
		}
	}
}

func (c *Console) submit(line string, sender Sender) error {
	if line == "" {
		return nil
	}
	if !c.Ready() {
		c.mu.Lock()
		fmt.Fprintln(c.out, "<peer busy, message dropped>")
		c.mu.Unlock()
		return nil
	}
	if err := sender.Send(line); err != nil {
		return fmt.Errorf("host: send: %w", err)
	}
	return nil
}
