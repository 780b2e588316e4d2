package host

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/chaz8081/blemsg/internal/ble"
)

// Readier is the interface the Responder exposes for its flow-control flag.
type Readier interface {
	SetReady(ready bool) error
}

// Display prints each received message, holds it for a fixed time and then
// signals ready again. It implements ble.ResponderObserver.
//
// A message arriving during a hold restarts it. The busy flag itself is
// asserted by the Responder before the message is delivered.
type Display struct {
	out  io.Writer
	hold time.Duration

	mu      sync.Mutex
	readier Readier
	timer   *time.Timer
	gen     uint64
	closed  bool
}

var _ ble.ResponderObserver = (*Display)(nil)

// NewDisplay creates a Display writing to out.
func NewDisplay(out io.Writer, hold time.Duration) *Display {
	return &Display{out: out, hold: hold}
}

// Bind sets the flag the display releases once a hold ends.
func (d *Display) Bind(r Readier) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.readier = r
}

func (d *Display) OnMessage(text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	fmt.Fprintln(d.out, text)

	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.timer = time.AfterFunc(d.hold, func() { d.release(gen) })
}

func (d *Display) release(gen uint64) {
	d.mu.Lock()
	if d.closed || gen != d.gen {
		d.mu.Unlock()
		return
	}
	d.timer = nil
	fmt.Fprintln(d.out, "---")
	r := d.readier
	d.mu.Unlock()

	if r == nil {
		return
	}
	if err := r.SetReady(true); err != nil {
		slog.Warn("[BLE] release ready flag failed", "error", err)
	}
}

// Close cancels a pending hold. Later messages are ignored.
func (d *Display) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	return nil
}
