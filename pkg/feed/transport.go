package feed

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrStreamClosed is returned by Stream.Recv after the stream was closed
	// locally.
	ErrStreamClosed = errors.New("feed: stream closed")

	// ErrDisconnected is returned by Stream.Recv when the remote side went
	// away. Subscriptions reconnect on it.
	ErrDisconnected = errors.New("feed: disconnected")
)

// Transport opens change streams for channels. Implementations live in the
// realtime, redisfeed and mongofeed packages; [Memory] is the in-process
// implementation.
type Transport interface {
	// Name identifies the transport in logs and metrics.
	Name() string

	// Open starts a stream for ch. It returns once the server has
	// acknowledged the subscription.
	Open(ctx context.Context, ch Channel) (Stream, error)
}

// Stream is one open connection delivering events in per-table commit
// order. Events may repeat across reconnects.
type Stream interface {
	// Recv blocks until the next event, ctx is done, or the stream fails.
	Recv(ctx context.Context) (Event, error)

	// Close releases the stream. It is safe to call more than once and
	// concurrently with Recv.
	Close() error
}

// =============================================================================
// Memory transport
// =============================================================================

// Memory is an in-process transport. Published events are fanned out to
// every open stream; filtering happens in the subscription. It is used by
// tests and for replaying recorded events.
type Memory struct {
	mu      sync.Mutex
	streams map[*memoryStream]struct{}
	opens   int
	failing error
}

var _ Transport = (*Memory)(nil)

// NewMemory creates an empty in-process transport.
func NewMemory() *Memory {
	return &Memory{streams: make(map[*memoryStream]struct{})}
}

// Name implements Transport.
func (m *Memory) Name() string { return "memory" }

// Open implements Transport.
func (m *Memory) Open(ctx context.Context, ch Channel) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failing != nil {
		return nil, m.failing
	}
	s := &memoryStream{
		owner:  m,
		events: make(chan Event, 256),
		done:   make(chan struct{}),
	}
	m.streams[s] = struct{}{}
	m.opens++
	return s, nil
}

// Publish delivers ev to every open stream. It never blocks; a stream
// whose buffer is full is disconnected, as a real server would drop a slow
// consumer.
func (m *Memory) Publish(ev Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.streams {
		select {
		case s.events <- ev:
		default:
			s.fail(ErrDisconnected)
			delete(m.streams, s)
		}
	}
}

// Disconnect drops every open stream with [ErrDisconnected].
func (m *Memory) Disconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for s := range m.streams {
		s.fail(ErrDisconnected)
	}
	clear(m.streams)
}

// SetOpenError makes subsequent Open calls fail with err until reset with
// nil.
func (m *Memory) SetOpenError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failing = err
}

// Opens returns how many streams have been opened so far.
func (m *Memory) Opens() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opens
}

// Active returns the number of open streams.
func (m *Memory) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.streams)
}

type memoryStream struct {
	owner  *Memory
	events chan Event
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *memoryStream) Recv(ctx context.Context) (Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		return Event{}, s.err
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

func (s *memoryStream) Close() error {
	s.owner.mu.Lock()
	delete(s.owner.streams, s)
	s.owner.mu.Unlock()
	s.fail(ErrStreamClosed)
	return nil
}

func (s *memoryStream) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
	})
}
