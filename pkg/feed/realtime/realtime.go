// Package realtime is a change-feed transport for Postgres realtime servers
// speaking the Phoenix channel protocol over a websocket.
//
// One websocket is opened per subscription. After connecting, the transport
// joins topic "realtime:<channel>" with one postgres_changes binding per
// table, filtered server side by "<column>=eq.<value>", and sends a
// heartbeat every HeartbeatInterval.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/matzehuels/kinship/pkg/feed"
)

// HeartbeatInterval is how often the transport pings the server. Phoenix
// drops connections that stay silent for 60 seconds.
const HeartbeatInterval = 25 * time.Second

// Config addresses a realtime server.
type Config struct {
	// URL is the websocket endpoint, e.g.
	// wss://<project>.supabase.co/realtime/v1/websocket.
	URL string
	// APIKey is sent as the apikey query parameter.
	APIKey string
	// AccessToken is the user's JWT, sent with the join. Empty uses the
	// API key.
	AccessToken string
	// Schema of the watched tables. Defaults to "public".
	Schema string
	// Dialer overrides the websocket dialer.
	Dialer *websocket.Dialer
	// Heartbeat overrides HeartbeatInterval.
	Heartbeat time.Duration
}

// Transport implements feed.Transport.
type Transport struct {
	cfg Config
}

var _ feed.Transport = (*Transport)(nil)

// New creates a realtime transport.
func New(cfg Config) (*Transport, error) {
	if cfg.URL == "" {
		return nil, errors.New("realtime: URL is required")
	}
	if cfg.Schema == "" {
		cfg.Schema = "public"
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = HeartbeatInterval
	}
	return &Transport{cfg: cfg}, nil
}

// Name implements feed.Transport.
func (t *Transport) Name() string { return "realtime" }

// =============================================================================
// Wire format
// =============================================================================

// message is a Phoenix channel frame.
type message struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type changeFilter struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
	Filter string `json:"filter,omitempty"`
}

type joinPayload struct {
	Config struct {
		PostgresChanges []changeFilter `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type            string   `json:"type"`
		Table           string   `json:"table"`
		Record          feed.Row `json:"record"`
		OldRecord       feed.Row `json:"old_record"`
		CommitTimestamp string   `json:"commit_timestamp"`
	} `json:"data"`
}

// Topic returns the Phoenix topic for a channel.
func Topic(ch feed.Channel) string { return "realtime:" + ch.Name }

// join builds the phx_join payload for ch.
func (t *Transport) join(ch feed.Channel) joinPayload {
	var p joinPayload
	for _, b := range ch.Bindings {
		f := changeFilter{Event: "*", Schema: t.cfg.Schema, Table: b.Table}
		if b.Column != "" {
			f.Filter = b.Column + "=eq." + b.Value
		}
		p.Config.PostgresChanges = append(p.Config.PostgresChanges, f)
	}
	p.AccessToken = t.cfg.AccessToken
	if p.AccessToken == "" {
		p.AccessToken = t.cfg.APIKey
	}
	return p
}

// decodeChange converts a postgres_changes payload into a feed event.
func decodeChange(raw json.RawMessage) (feed.Event, error) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return feed.Event{}, fmt.Errorf("realtime: decode change: %w", err)
	}
	typ, err := feed.ParseEventType(p.Data.Type)
	if err != nil {
		return feed.Event{}, err
	}
	commit, _ := time.Parse(time.RFC3339Nano, p.Data.CommitTimestamp)
	return feed.Event{
		Type:       typ,
		Table:      p.Data.Table,
		New:        p.Data.Record,
		Old:        p.Data.OldRecord,
		CommitTime: commit,
	}, nil
}

// =============================================================================
// Open
// =============================================================================

// Open dials the server, joins the channel topic and waits for the join
// reply.
func (t *Transport) Open(ctx context.Context, ch feed.Channel) (feed.Stream, error) {
	endpoint, err := url.Parse(t.cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("realtime: parse URL: %w", err)
	}
	q := endpoint.Query()
	if t.cfg.APIKey != "" {
		q.Set("apikey", t.cfg.APIKey)
	}
	q.Set("vsn", "1.0.0")
	endpoint.RawQuery = q.Encode()

	conn, resp, err := t.cfg.Dialer.DialContext(ctx, endpoint.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("realtime: dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("realtime: dial: %w", err)
	}

	s := &stream{
		conn:   conn,
		topic:  Topic(ch),
		events: make(chan feed.Event, 64),
		done:   make(chan struct{}),
	}

	joinRef := s.nextRef()
	payload, _ := json.Marshal(t.join(ch))
	if err := s.write(message{Topic: s.topic, Event: "phx_join", Payload: payload, Ref: joinRef}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("realtime: join: %w", err)
	}
	if err := s.awaitJoin(ctx, joinRef); err != nil {
		conn.Close()
		return nil, err
	}

	go s.readLoop()
	go s.heartbeat(t.cfg.Heartbeat)
	return s, nil
}

// =============================================================================
// Stream
// =============================================================================

type stream struct {
	conn   *websocket.Conn
	topic  string
	ref    atomic.Uint64
	wmu    sync.Mutex
	events chan feed.Event
	done   chan struct{}
	once   sync.Once
	err    error
}

func (s *stream) nextRef() string { return strconv.FormatUint(s.ref.Add(1), 10) }

func (s *stream) write(m message) error {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	if m.Payload == nil {
		m.Payload = json.RawMessage("{}")
	}
	return s.conn.WriteJSON(m)
}

// awaitJoin reads frames until the reply to the join with ref arrives.
// Cancelling ctx closes the connection, which unblocks the read.
func (s *stream) awaitJoin(ctx context.Context, ref string) error {
	stop := context.AfterFunc(ctx, func() { _ = s.conn.Close() })
	defer stop()
	for {
		var m message
		if err := s.conn.ReadJSON(&m); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("realtime: await join: %w", err)
		}
		if m.Event != "phx_reply" || m.Ref != ref {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(m.Payload, &reply); err != nil {
			return fmt.Errorf("realtime: decode join reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("realtime: join %s rejected: %s", s.topic, strings.TrimSpace(string(reply.Response)))
		}
		if !stop() {
			// ctx fired after the reply arrived; the connection is gone.
			return ctx.Err()
		}
		return nil
	}
}

func (s *stream) readLoop() {
	for {
		var m message
		if err := s.conn.ReadJSON(&m); err != nil {
			s.fail(fmt.Errorf("%w: %v", feed.ErrDisconnected, err))
			return
		}
		if m.Topic != s.topic {
			continue
		}
		switch m.Event {
		case "postgres_changes":
			ev, err := decodeChange(m.Payload)
			if err != nil {
				continue
			}
			select {
			case s.events <- ev:
			case <-s.done:
				return
			}
		case "phx_error", "phx_close":
			s.fail(fmt.Errorf("%w: server sent %s", feed.ErrDisconnected, m.Event))
			return
		}
	}
}

func (s *stream) heartbeat(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := s.write(message{Topic: "phoenix", Event: "heartbeat", Ref: s.nextRef()}); err != nil {
				s.fail(fmt.Errorf("%w: heartbeat: %v", feed.ErrDisconnected, err))
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *stream) Recv(ctx context.Context) (feed.Event, error) {
	select {
	case ev := <-s.events:
		return ev, nil
	case <-s.done:
		return feed.Event{}, s.err
	case <-ctx.Done():
		return feed.Event{}, ctx.Err()
	}
}

func (s *stream) Close() error {
	s.once.Do(func() {
		s.err = feed.ErrStreamClosed
		close(s.done)
		_ = s.write(message{Topic: s.topic, Event: "phx_leave", Ref: s.nextRef()})
		_ = s.conn.Close()
	})
	return nil
}

func (s *stream) fail(err error) {
	s.once.Do(func() {
		s.err = err
		close(s.done)
		_ = s.conn.Close()
	})
}
