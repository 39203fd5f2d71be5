package wxbridge

import (
	"sync"
	"time"
)

const (
	defaultLineCapacity   = 200
	subscriberChanBuffer  = 16
	defaultKeepAliveEvery = 15 * time.Second

	// emitted on an idle feed so subscribers are not held indefinitely
	keepAliveLine = ": keep-alive"
)

// LineBuffer keeps a bounded ordered log of formatted raw lines for
// pass-through mode, evicting the oldest entry at capacity, and fans
// each appended line out to live subscribers.
type LineBuffer struct {
	mu          sync.Mutex
	lines       []string
	capacity    int
	subscribers map[*Subscription]struct{}
	keepAlive   time.Duration
}

// Subscription is a live feed of appended lines. The channel carries a
// keep-alive entry when no line arrives within the idle window. Close
// must be called by the subscriber when done.
type Subscription struct {
	C chan string

	in   chan string
	done chan struct{}
	once sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
	})
}

func NewLineBuffer(capacity int) *LineBuffer {
	if capacity <= 0 {
		capacity = defaultLineCapacity
	}
	return &LineBuffer{
		capacity:    capacity,
		subscribers: make(map[*Subscription]struct{}),
		keepAlive:   defaultKeepAliveEvery,
	}
}

// Append records a line, evicting the oldest beyond capacity, and
// delivers a copy to every subscriber that is keeping up.
func (b *LineBuffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lines = append(b.lines, line)
	if len(b.lines) > b.capacity {
		b.lines = b.lines[len(b.lines)-b.capacity:]
	}
	for sub := range b.subscribers {
		select {
		case sub.in <- line:
		default:
			// subscriber not keeping up, drop
		}
	}
}

// Lines returns a copy of the buffered log, oldest first.
func (b *LineBuffer) Lines() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

// Subscribe registers a live feed. The feed ends when the subscriber
// calls Close.
func (b *LineBuffer) Subscribe() *Subscription {
	sub := &Subscription{
		C:    make(chan string, subscriberChanBuffer),
		in:   make(chan string, subscriberChanBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.subscribers[sub] = struct{}{}
	b.mu.Unlock()

	go b.deliver(sub)
	return sub
}

func (b *LineBuffer) deliver(sub *Subscription) {
	defer func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
		close(sub.C)
	}()
	idle := time.NewTimer(b.keepAlive)
	defer idle.Stop()
	for {
		select {
		case <-sub.done:
			return
		case line := <-sub.in:
			if !forward(sub, line) {
				return
			}
			if !idle.Stop() {
				<-idle.C
			}
			idle.Reset(b.keepAlive)
		case <-idle.C:
			if !forward(sub, keepAliveLine) {
				return
			}
			idle.Reset(b.keepAlive)
		}
	}
}

func forward(sub *Subscription, line string) bool {
	select {
	case sub.C <- line:
		return true
	case <-sub.done:
		return false
	}
}
