// Package reconcile applies change-feed events to the local stores.
//
// The backend is the source of truth. INSERT upserts the row it carries,
// UPDATE replaces a row that is already held and is a no-op otherwise, and
// DELETE removes by id. Because every store mutation is idempotent by id,
// replayed events and the echo of an optimistic local edit are harmless.
package reconcile

import (
	"context"
	"fmt"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/kinship/pkg/feed"
	"github.com/matzehuels/kinship/pkg/store"
)

// Applier applies one event to a store and reports whether it changed
// anything.
type Applier interface {
	Apply(ev feed.Event) (bool, error)
}

// ApplierFunc adapts a function to [Applier].
type ApplierFunc func(ev feed.Event) (bool, error)

// Apply calls f.
func (f ApplierFunc) Apply(ev feed.Event) (bool, error) { return f(ev) }

// Tree returns the applier for a tree store.
func Tree(s *store.Store) Applier {
	return ApplierFunc(func(ev feed.Event) (bool, error) { return Apply(s, ev) })
}

// Messages returns the applier for a conversation.
func Messages(c *store.Conversation) Applier {
	return ApplierFunc(func(ev feed.Event) (bool, error) { return ApplyMessage(c, ev) })
}

// Apply maps a nodes or edges event onto s. Events for other tables are
// ignored.
func Apply(s *store.Store, ev feed.Event) (bool, error) {
	row := ev.Record()
	switch ev.Table {
	case feed.TableNodes:
		if ev.Type == feed.Delete {
			id := row.String(ColID)
			if id == "" {
				return false, ErrMissingID
			}
			return s.DeleteNode(id), nil
		}
		p, err := PersonFromRow(row)
		if err != nil {
			return false, err
		}
		if ev.Type == feed.Update {
			return s.ReplaceNode(p)
		}
		return s.AddNode(p)

	case feed.TableEdges:
		if ev.Type == feed.Delete {
			id := row.String(ColID)
			if id == "" {
				return false, ErrMissingID
			}
			return s.DeleteEdge(id), nil
		}
		e, err := EdgeFromRow(row)
		if err != nil {
			return false, err
		}
		if ev.Type == feed.Update {
			return s.ReplaceEdge(e), nil
		}
		return s.UpsertEdge(e), nil
	}
	return false, nil
}

// ApplyMessage maps a messages event onto c. Events for other tables are
// ignored.
func ApplyMessage(c *store.Conversation, ev feed.Event) (bool, error) {
	if ev.Table != feed.TableMessages {
		return false, nil
	}
	row := ev.Record()
	if ev.Type == feed.Delete {
		id := row.String(ColID)
		if id == "" {
			return false, ErrMissingID
		}
		return c.Delete(id), nil
	}
	m, err := MessageFromRow(row)
	if err != nil {
		return false, err
	}
	if ev.Type == feed.Update {
		return c.Replace(m), nil
	}
	return c.Upsert(m), nil
}

// Run is the single dispatcher for a subscription: it applies events in
// delivery order until the subscription ends or ctx is done. Events that
// fail to decode are logged and skipped.
//
// Run returns nil when the subscription ends and an error wrapping
// ctx.Err() when ctx is done first.
func Run(ctx context.Context, sub *feed.Subscription, a Applier, logger *log.Logger) error {
	if logger == nil {
		logger = log.Default()
	}
	for {
		select {
		case ev, ok := <-sub.Events():
			if !ok {
				return nil
			}
			changed, err := a.Apply(ev)
			if err != nil {
				logger.Warn("skipping change", "channel", sub.Channel().Name, "table", ev.Table, "type", ev.Type, "err", err)
				continue
			}
			logger.Debug("applied change", "table", ev.Table, "type", ev.Type, "changed", changed)
		case <-ctx.Done():
			return fmt.Errorf("reconcile %s: %w", sub.Channel().Name, ctx.Err())
		}
	}
}
