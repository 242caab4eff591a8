package sse

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Subscriber is one registered event stream.
//
// A subscriber starts connected and becomes disconnected on its first failed
// write; it never reconnects. A reconnecting client gets a new Subscriber.
type Subscriber[I any] struct {
	id      string
	sink    io.Writer
	info    I
	hasInfo bool

	connected atomic.Bool
	done      chan struct{}
	closeOnce sync.Once

	// writeMu serializes writes to sink and guards lastID and retrySent.
	writeMu   sync.Mutex
	lastID    string
	retrySent bool

	// queueMu guards live messages held back while history is replayed.
	queueMu   sync.Mutex
	replaying bool
	pending   []*Message
}

func newSubscriber[I any](sink io.Writer, lastEventID string, info I, hasInfo bool) *Subscriber[I] {
	s := &Subscriber[I]{
		id:      uuid.NewString(),
		sink:    sink,
		info:    info,
		hasInfo: hasInfo,
		lastID:  lastEventID,
		done:    make(chan struct{}),
	}
	s.connected.Store(true)
	return s
}

// ID returns the subscriber id.
func (s *Subscriber[I]) ID() string { return s.id }

// Info returns the metadata the subscriber registered with.
func (s *Subscriber[I]) Info() (I, bool) { return s.info, s.hasInfo }

// HasInfo reports whether the subscriber registered with metadata.
func (s *Subscriber[I]) HasInfo() bool { return s.hasInfo }

// Connected reports whether every write so far has succeeded.
func (s *Subscriber[I]) Connected() bool { return s.connected.Load() }

// Done returns a channel closed once the subscriber is disconnected.
func (s *Subscriber[I]) Done() <-chan struct{} { return s.done }

// LastEventID returns the id of the last message written to the subscriber,
// or the Last-Event-ID it registered with.
func (s *Subscriber[I]) LastEventID() string {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.lastID
}

// RetrySent reports whether a retry directive has reached the subscriber.
func (s *Subscriber[I]) RetrySent() bool {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.retrySent
}

func (s *Subscriber[I]) admits(match Predicate[I]) bool {
	return s.hasInfo && match(s.info)
}

// deliver writes msg, or queues it while replay is still running.
func (s *Subscriber[I]) deliver(msg *Message) error {
	s.queueMu.Lock()
	if s.replaying {
		s.pending = append(s.pending, msg)
		s.queueMu.Unlock()
		return nil
	}
	s.queueMu.Unlock()
	return s.write(msg)
}

// replay writes chain, then everything queued meanwhile, and switches the
// subscriber to direct delivery. It returns the number of replayed messages.
func (s *Subscriber[I]) replay(chain []*Message) int {
	written := 0
	for _, msg := range chain {
		if s.write(msg) != nil {
			break
		}
		written++
	}

	for {
		s.queueMu.Lock()
		batch := s.pending
		s.pending = nil
		if len(batch) == 0 {
			s.replaying = false
			s.queueMu.Unlock()
			return written
		}
		s.queueMu.Unlock()

		for _, msg := range batch {
			if s.write(msg) != nil {
				break
			}
		}
	}
}

func (s *Subscriber[I]) write(msg *Message) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if !s.connected.Load() {
		return ErrSubscriberDisconnected
	}

	out := *msg
	if s.retrySent {
		out = out.withoutRetry()
	}
	payload := out.Bytes()
	if len(payload) == 0 {
		return nil
	}
	if _, err := s.sink.Write(payload); err != nil {
		s.disconnect()
		return err
	}

	if !out.IsCommentOnly() && out.ID != "" {
		s.lastID = out.ID
	}
	if out.Retry != "" {
		s.retrySent = true
	}
	return nil
}

func (s *Subscriber[I]) disconnect() {
	s.connected.Store(false)
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
