package feed

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/matzehuels/kinship/pkg/observability"
)

// Default reconnect pacing: one attempt per second with a burst of three.
const (
	DefaultReconnectInterval = time.Second
	DefaultReconnectBurst    = 3
)

// Client subscribes to channels over a transport.
type Client struct {
	transport Transport
	logger    *log.Logger
	interval  time.Duration
	burst     int
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger for connection events. Disconnects are logged
// at debug level.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithReconnect sets the reconnect pacing: at most one attempt per interval
// after an initial burst.
func WithReconnect(interval time.Duration, burst int) Option {
	return func(c *Client) {
		if interval > 0 {
			c.interval = interval
		}
		if burst > 0 {
			c.burst = burst
		}
	}
}

// NewClient creates a client for t.
func NewClient(t Transport, opts ...Option) *Client {
	c := &Client{
		transport: t,
		logger:    log.Default(),
		interval:  DefaultReconnectInterval,
		burst:     DefaultReconnectBurst,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Subscribe opens ch and starts delivering its events. The first connection
// is made before Subscribe returns, so configuration errors surface here.
// Later disconnects are not surfaced: the subscription reconnects and
// carries on, and consumers must tolerate replayed events.
//
// The subscription ends when Close is called or ctx is done.
func (c *Client) Subscribe(ctx context.Context, ch Channel) (*Subscription, error) {
	if len(ch.Bindings) == 0 {
		return nil, fmt.Errorf("feed: channel %q has no bindings", ch.Name)
	}
	stream, err := c.transport.Open(ctx, ch)
	if err != nil {
		return nil, fmt.Errorf("feed: open %s on %s: %w", ch.Name, c.transport.Name(), err)
	}
	observability.Feed().OnConnect(ctx, c.transport.Name(), ch.Name)
	c.logger.Debug("feed connected", "transport", c.transport.Name(), "channel", ch.Name)

	runCtx, cancel := context.WithCancel(ctx)
	s := &Subscription{
		channel: ch,
		events:  make(chan Event),
		done:    make(chan struct{}),
		cancel:  cancel,
	}
	go c.run(runCtx, s, stream)
	return s, nil
}

func (c *Client) run(ctx context.Context, s *Subscription, stream Stream) {
	defer close(s.done)
	defer close(s.events)

	name := c.transport.Name()
	limiter := rate.NewLimiter(rate.Every(c.interval), c.burst)

	for {
		stop := context.AfterFunc(ctx, func() { _ = stream.Close() })
		err := c.pump(ctx, s, stream)
		stop()
		_ = stream.Close()

		if ctx.Err() != nil {
			observability.Feed().OnDisconnect(ctx, name, s.channel.Name, nil)
			return
		}
		observability.Feed().OnDisconnect(ctx, name, s.channel.Name, err)
		c.logger.Debug("feed disconnected", "transport", name, "channel", s.channel.Name, "err", err)

		stream = c.reconnect(ctx, limiter, s.channel)
		if stream == nil {
			return
		}
	}
}

// pump forwards matching events until the stream fails or ctx is done.
func (c *Client) pump(ctx context.Context, s *Subscription, stream Stream) error {
	for {
		ev, err := stream.Recv(ctx)
		if err != nil {
			return err
		}
		if !s.channel.Match(ev) {
			continue
		}
		select {
		case s.events <- ev:
			observability.Feed().OnEvent(ctx, ev.Table, string(ev.Type))
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// reconnect opens a new stream, pacing attempts with limiter. It returns nil
// when ctx is done first.
func (c *Client) reconnect(ctx context.Context, limiter *rate.Limiter, ch Channel) Stream {
	name := c.transport.Name()
	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return nil
		}
		stream, err := c.transport.Open(ctx, ch)
		if err == nil {
			observability.Feed().OnConnect(ctx, name, ch.Name)
			c.logger.Debug("feed reconnected", "transport", name, "channel", ch.Name, "attempt", attempt)
			return stream
		}
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			return nil
		}
		c.logger.Debug("feed reconnect failed", "transport", name, "channel", ch.Name, "attempt", attempt, "err", err)
	}
}

// =============================================================================
// Subscription
// =============================================================================

// Subscription is a live stream of events for one channel.
type Subscription struct {
	channel Channel
	events  chan Event
	done    chan struct{}
	cancel  context.CancelFunc
	once    sync.Once
}

// Channel returns the subscribed channel.
func (s *Subscription) Channel() Channel { return s.channel }

// Events returns the event channel. It is closed when the subscription
// ends. Events arrive in per-table commit order; duplicates are possible
// after a reconnect.
func (s *Subscription) Events() <-chan Event { return s.events }

// Done is closed once the subscription has fully stopped.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close ends the subscription. It returns after the producer has stopped,
// the transport stream is closed and the events channel is closed, so no
// event is delivered after Close returns. Further calls return nil at once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
	})
	return nil
}
