// Package redisfeed is a change-feed transport over Redis pub/sub.
//
// A relay process publishes each row change as a JSON-encoded feed.Event on
// the Redis channel "kinship:<channel name>". Redis pub/sub does not replay
// missed messages, so subscribers should reload a snapshot after a
// reconnect if they need to catch up.
package redisfeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/matzehuels/kinship/pkg/feed"
)

// Prefix is prepended to channel names to form Redis channel names.
const Prefix = "kinship:"

// Key returns the Redis channel name for ch.
func Key(ch feed.Channel) string { return Prefix + ch.Name }

// Transport implements feed.Transport on a go-redis client.
type Transport struct {
	client redis.UniversalClient
}

var _ feed.Transport = (*Transport)(nil)

// New wraps an existing client. The caller keeps ownership of it.
func New(client redis.UniversalClient) *Transport {
	return &Transport{client: client}
}

// Name implements feed.Transport.
func (t *Transport) Name() string { return "redis" }

// Open subscribes to the channel and waits for the subscription
// confirmation.
func (t *Transport) Open(ctx context.Context, ch feed.Channel) (feed.Stream, error) {
	ps := t.client.Subscribe(ctx, Key(ch))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redisfeed: subscribe %s: %w", Key(ch), err)
	}
	return &stream{ps: ps, msgs: ps.Channel()}, nil
}

// Publish encodes ev and publishes it on the channel. It is the relay-side
// counterpart of Open.
func Publish(ctx context.Context, client redis.UniversalClient, ch feed.Channel, ev feed.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("redisfeed: encode event: %w", err)
	}
	return client.Publish(ctx, Key(ch), data).Err()
}

type stream struct {
	ps   *redis.PubSub
	msgs <-chan *redis.Message
	once sync.Once
}

func (s *stream) Recv(ctx context.Context) (feed.Event, error) {
	for {
		select {
		case msg, ok := <-s.msgs:
			if !ok {
				return feed.Event{}, feed.ErrDisconnected
			}
			var ev feed.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || !ev.Type.Valid() {
				continue
			}
			return ev, nil
		case <-ctx.Done():
			return feed.Event{}, ctx.Err()
		}
	}
}

func (s *stream) Close() error {
	var err error
	s.once.Do(func() {
		err = s.ps.Close()
		if errors.Is(err, redis.ErrClosed) {
			err = nil
		}
	})
	return err
}
