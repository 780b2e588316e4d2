// Package lifecycle reports foreground/background transitions of the
// hosting process. On unix systems SIGUSR1 moves the process to the
// background and SIGUSR2 brings it back to the foreground.
package lifecycle

import (
	"os"
	"os/signal"
	"sync"
)

// EventType indicates the direction of a transition.
type EventType int

const (
	// EventForeground signals that the process became active.
	EventForeground EventType = iota
	// EventBackground signals that the process was sent to the background.
	EventBackground
)

func (t EventType) String() string {
	if t == EventBackground {
		return "background"
	}
	return "foreground"
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Type EventType
}

// Listener turns OS signals into lifecycle events.
type Listener struct {
	signals map[os.Signal]EventType
	ch      chan Event
	done    chan struct{}
	once    sync.Once

	mu        sync.Mutex
	closed    bool
	observers map[int]func(foreground bool)
	nextID    int
}

// NewListener creates a Listener for the platform's lifecycle signals.
func NewListener() *Listener {
	return newListener(platformSignals())
}

func newListener(signals map[os.Signal]EventType) *Listener {
	return &Listener{
		signals:   signals,
		ch:        make(chan Event, 16),
		done:      make(chan struct{}),
		observers: make(map[int]func(bool)),
	}
}

// Events returns the channel that receives lifecycle events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Observe registers fn for every transition and returns a function that
// removes it. fn runs on the goroutine that observed the transition.
func (l *Listener) Observe(fn func(foreground bool)) func() {
	l.mu.Lock()
	id := l.nextID
	l.nextID++
	l.observers[id] = fn
	l.mu.Unlock()

	return func() {
		l.mu.Lock()
		delete(l.observers, id)
		l.mu.Unlock()
	}
}

// Start listens for lifecycle signals.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	sigCh := make(chan os.Signal, 4)
	if len(l.signals) > 0 {
		sigs := make([]os.Signal, 0, len(l.signals))
		for s := range l.signals {
			sigs = append(sigs, s)
		}
		signal.Notify(sigCh, sigs...)
		defer signal.Stop(sigCh)
	}

	for {
		select {
		case sig := <-sigCh:
			if t, ok := l.signals[sig]; ok {
				l.Emit(t)
			}
		case <-l.done:
			l.mu.Lock()
			l.closed = true
			close(l.ch)
			l.mu.Unlock()
			return
		}
	}
}

// Emit delivers a transition as if its signal had arrived. It is a no-op
// once the listener has stopped.
func (l *Listener) Emit(t EventType) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	select {
	case l.ch <- Event{Type: t}:
	default: // don't block if channel is full
	}
	fns := make([]func(bool), 0, len(l.observers))
	for _, fn := range l.observers {
		fns = append(fns, fn)
	}
	l.mu.Unlock()

	for _, fn := range fns {
		fn(t == EventForeground)
	}
}

// Stop terminates the listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
