// Package backend talks to the remote services behind a shared tree: the
// Postgres database for graph snapshots and invites, and the HTTP function
// endpoint for account deletion.
//
// Remote failures are returned as coded errors from pkg/errors whose
// UserMessage can be shown as is. Nothing here retries and nothing here
// touches local state; callers decide what to do with a failure.
package backend

import (
	"context"
	"time"

	"github.com/matzehuels/kinship/pkg/store"
	"github.com/matzehuels/kinship/pkg/tree"
)

// Graph is a snapshot of one shared tree as stored in the backend.
type Graph struct {
	ID      string        `json:"id"`
	Name    string        `json:"name"`
	Persons []tree.Person `json:"persons"`
	Edges   []tree.Edge   `json:"edges"`
}

// Snapshot returns the graph as an immutable tree view.
func (g *Graph) Snapshot() *tree.Snapshot {
	return tree.NewSnapshot(g.Persons, g.Edges)
}

// InvitePreview describes what accepting an invite would grant.
type InvitePreview struct {
	GraphID    string     `json:"graph_id"`
	GraphName  string     `json:"graph_name"`
	PersonID   string     `json:"person_id,omitempty"`
	PersonName string     `json:"person_name,omitempty"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// Loader is the read side used by viewing sessions.
type Loader interface {
	LoadGraph(ctx context.Context, graphID string) (*Graph, error)
	LoadMessages(ctx context.Context, conversationID string) ([]store.Message, error)
}

// Invites previews and redeems invite tokens.
type Invites interface {
	PreviewInvite(ctx context.Context, token string) (*InvitePreview, error)
	AcceptInvite(ctx context.Context, token string) (string, error)
}

var (
	_ Loader  = (*Postgres)(nil)
	_ Invites = (*Postgres)(nil)
)
