// Package session ties one viewed tree to its live data.
//
// A Session owns the tree's [store.Store], the change-feed subscriptions
// that keep it current and the dispatchers applying their events. It is
// the unit of teardown: Close stops every subscription, waits for the
// dispatchers to return and closes the store, in that order, so nothing
// mutates the store after Close returns.
//
// # Usage
//
//	sess, err := session.Open(ctx, graphID,
//	    session.WithLoader(pg),
//	    session.WithFeed(feed.NewClient(transport)),
//	    session.WithConversation(conversationID),
//	)
//	if err != nil {
//	    return err
//	}
//	defer sess.Close()
//
//	changes, stop := sess.Store().Watch()
//	defer stop()
//	for range changes {
//	    render(sess.Diagram(layout.DefaultConfig()))
//	}
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/kinship/pkg/backend"
	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/feed"
	"github.com/matzehuels/kinship/pkg/layout"
	"github.com/matzehuels/kinship/pkg/reconcile"
	"github.com/matzehuels/kinship/pkg/store"
	"github.com/matzehuels/kinship/pkg/tree"
)

// ErrClosed is returned by operations on a closed session.
var ErrClosed = errors.New("session closed")

// Session is a live view of one tree.
type Session struct {
	id      string
	graphID string
	name    string
	logger  *log.Logger

	store *store.Store
	conv  *store.Conversation

	subs   []*feed.Subscription
	cancel context.CancelFunc
	group  *errgroup.Group

	once sync.Once
	err  error
}

type options struct {
	loader         backend.Loader
	client         *feed.Client
	conversationID string
	logger         *log.Logger
}

// Option configures Open.
type Option func(*options)

// WithLoader loads the initial snapshot from l. Without a loader the
// session starts empty and is filled by the feed alone.
func WithLoader(l backend.Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithFeed keeps the session current through c. Without a feed the session
// is a static snapshot.
func WithFeed(c *feed.Client) Option {
	return func(o *options) { o.client = c }
}

// WithConversation also mirrors the messages of a conversation.
func WithConversation(id string) Option {
	return func(o *options) { o.conversationID = id }
}

// WithLogger sets the session logger.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// Open starts a session for graphID.
//
// Subscriptions are opened before the snapshot is loaded and their
// dispatchers started after it is in the store. Changes committed while
// loading are therefore applied on top of the snapshot rather than lost;
// replays of rows already in the snapshot are no-ops.
func Open(ctx context.Context, graphID string, opts ...Option) (*Session, error) {
	if err := kerrors.ValidateID("graph", graphID); err != nil {
		return nil, err
	}
	o := options{logger: log.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.conversationID != "" {
		if err := kerrors.ValidateID("conversation", o.conversationID); err != nil {
			return nil, err
		}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:      uuid.NewString(),
		graphID: graphID,
		logger:  o.logger.With("graph", graphID),
		store:   store.New(),
		cancel:  cancel,
	}
	if o.conversationID != "" {
		s.conv = store.NewConversation(o.conversationID)
	}

	fail := func(err error) (*Session, error) {
		s.teardown()
		return nil, err
	}

	var treeSub, convSub *feed.Subscription
	if o.client != nil {
		sub, err := o.client.Subscribe(runCtx, feed.TreeChannel(graphID))
		if err != nil {
			return fail(kerrors.Wrap(kerrors.ErrCodeRemoteCall, err, "could not subscribe to tree %s", graphID))
		}
		treeSub = sub
		s.subs = append(s.subs, sub)
		if s.conv != nil {
			sub, err := o.client.Subscribe(runCtx, feed.ConversationChannel(o.conversationID))
			if err != nil {
				return fail(kerrors.Wrap(kerrors.ErrCodeRemoteCall, err, "could not subscribe to conversation %s", o.conversationID))
			}
			convSub = sub
			s.subs = append(s.subs, sub)
		}
	}

	if o.loader != nil {
		g, err := o.loader.LoadGraph(ctx, graphID)
		if err != nil {
			return fail(err)
		}
		s.name = g.Name
		s.store.SetNodes(g.Persons)
		s.store.SetEdges(g.Edges)
		if s.conv != nil {
			msgs, err := o.loader.LoadMessages(ctx, o.conversationID)
			if err != nil {
				return fail(err)
			}
			for _, m := range msgs {
				s.conv.Upsert(m)
			}
		}
		s.logger.Debug("snapshot loaded", "persons", len(g.Persons), "edges", len(g.Edges))
	}

	s.group, runCtx = errgroup.WithContext(runCtx)
	if treeSub != nil {
		s.group.Go(func() error { return dispatch(runCtx, treeSub, reconcile.Tree(s.store), s.logger) })
	}
	if convSub != nil {
		s.group.Go(func() error { return dispatch(runCtx, convSub, reconcile.Messages(s.conv), s.logger) })
	}
	s.logger.Info("session open", "session", s.id, "live", o.client != nil)
	return s, nil
}

// dispatch runs the single dispatcher for one subscription. Cancellation is
// the normal way to stop and is not an error.
func dispatch(ctx context.Context, sub *feed.Subscription, a reconcile.Applier, logger *log.Logger) error {
	err := reconcile.Run(ctx, sub, a, logger)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// ID returns a unique identifier for this session, used in logs.
func (s *Session) ID() string { return s.id }

// GraphID returns the ID of the viewed tree.
func (s *Session) GraphID() string { return s.graphID }

// Name returns the tree's name as loaded from the backend.
func (s *Session) Name() string { return s.name }

// Store returns the session's store. Local edits go through it.
func (s *Session) Store() *store.Store { return s.store }

// Conversation returns the mirrored conversation, or nil.
func (s *Session) Conversation() *store.Conversation { return s.conv }

// Snapshot returns an immutable copy of the current tree.
func (s *Session) Snapshot() *tree.Snapshot { return s.store.Snapshot() }

// Diagram lays out the current tree, placing persons without a position
// automatically.
func (s *Session) Diagram(cfg layout.Config) *layout.Diagram {
	snap := s.store.Snapshot()
	return layout.Compute(snap, layout.Place(snap, cfg), cfg)
}

// Close tears the session down and returns the first dispatcher error, if
// any. It is synchronous and safe to call more than once.
func (s *Session) Close() error {
	s.teardown()
	return s.err
}

func (s *Session) teardown() {
	s.once.Do(func() {
		for _, sub := range s.subs {
			_ = sub.Close()
		}
		s.cancel()
		if s.group != nil {
			if err := s.group.Wait(); err != nil {
				s.err = fmt.Errorf("session %s: %w", s.id, err)
			}
		}
		s.store.Close()
		s.logger.Debug("session closed", "session", s.id)
	})
}
