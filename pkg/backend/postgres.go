package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	kerrors "github.com/matzehuels/kinship/pkg/errors"
	"github.com/matzehuels/kinship/pkg/feed"
	"github.com/matzehuels/kinship/pkg/reconcile"
	"github.com/matzehuels/kinship/pkg/store"
	"github.com/matzehuels/kinship/pkg/tree"
)

// raiseException is the SQLSTATE of errors raised by plpgsql functions.
const raiseException = "P0001"

const (
	graphSQL = `SELECT name FROM graphs WHERE id::text = $1`

	nodesSQL = `
SELECT id::text AS id, graph_id::text AS graph_id, first_name, last_name,
       birth_date, death_date, claimed_by::text AS claimed_by, position_x, position_y
FROM nodes
WHERE graph_id::text = $1
ORDER BY id`

	edgesSQL = `
SELECT id::text AS id, graph_id::text AS graph_id, kind,
       source_id::text AS source_id, target_id::text AS target_id
FROM edges
WHERE graph_id::text = $1
ORDER BY id`

	messagesSQL = `
SELECT id::text AS id, conversation_id::text AS conversation_id,
       author_id::text AS author_id, body, created_at
FROM messages
WHERE conversation_id::text = $1
ORDER BY created_at, id`

	previewSQL = `
SELECT i.graph_id::text, g.name, i.node_id::text,
       coalesce(n.first_name, ''), coalesce(n.last_name, ''), i.expires_at
FROM graph_invites i
JOIN graphs g ON g.id = i.graph_id
LEFT JOIN nodes n ON n.id = i.node_id
WHERE i.token = $1
  AND i.accepted_at IS NULL
  AND (i.expires_at IS NULL OR i.expires_at > now())`

	acceptSQL = `SELECT accept_graph_invite($1)::text`
)

type dbConn interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Postgres reads graphs and invites from the backend database.
type Postgres struct {
	db   dbConn
	pool *pgxpool.Pool
}

// NewPostgres wraps an existing pool. The caller keeps ownership of it.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{db: pool}
}

// OpenPostgres connects a new pool to databaseURL. Close releases it.
func OpenPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, kerrors.Wrap(kerrors.ErrCodeRemoteCall, err, "could not connect to the database")
	}
	return &Postgres{db: pool, pool: pool}, nil
}

// Close releases a pool opened by OpenPostgres.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// =============================================================================
// Graphs
// =============================================================================

// LoadGraph reads a graph with all its persons and edges. Rows that do not
// decode are skipped, the same as on the change feed.
func (p *Postgres) LoadGraph(ctx context.Context, graphID string) (*Graph, error) {
	if err := kerrors.ValidateID("graph", graphID); err != nil {
		return nil, err
	}
	g := &Graph{ID: graphID}
	if err := p.db.QueryRow(ctx, graphSQL, graphID).Scan(&g.Name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, kerrors.New(kerrors.ErrCodeGraphNotFound, "graph %s does not exist or is not shared with you", graphID)
		}
		return nil, remote(err, "could not load graph %s", graphID)
	}

	nodes, err := p.rows(ctx, nodesSQL, graphID)
	if err != nil {
		return nil, remote(err, "could not load persons of graph %s", graphID)
	}
	for _, r := range nodes {
		if person, err := reconcile.PersonFromRow(r); err == nil {
			g.Persons = append(g.Persons, person)
		}
	}

	edges, err := p.rows(ctx, edgesSQL, graphID)
	if err != nil {
		return nil, remote(err, "could not load relationships of graph %s", graphID)
	}
	for _, r := range edges {
		if edge, err := reconcile.EdgeFromRow(r); err == nil {
			g.Edges = append(g.Edges, edge)
		}
	}
	return g, nil
}

// LoadMessages reads the messages of a conversation in display order.
func (p *Postgres) LoadMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	if err := kerrors.ValidateID("conversation", conversationID); err != nil {
		return nil, err
	}
	rows, err := p.rows(ctx, messagesSQL, conversationID)
	if err != nil {
		return nil, remote(err, "could not load conversation %s", conversationID)
	}
	var msgs []store.Message
	for _, r := range rows {
		if m, err := reconcile.MessageFromRow(r); err == nil {
			msgs = append(msgs, m)
		}
	}
	return msgs, nil
}

func (p *Postgres) rows(ctx context.Context, sql string, args ...any) ([]feed.Row, error) {
	rows, err := p.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	maps, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, err
	}
	out := make([]feed.Row, len(maps))
	for i, m := range maps {
		out[i] = feed.Row(m)
	}
	return out, nil
}

// =============================================================================
// Invites
// =============================================================================

// PreviewInvite looks up the graph an invite token points to. An empty or
// whitespace token, or one that matches no open invite, yields no preview
// and no error.
func (p *Postgres) PreviewInvite(ctx context.Context, token string) (*InvitePreview, error) {
	token, ok := kerrors.NormalizeInviteToken(token)
	if !ok {
		return nil, nil
	}
	var (
		prev      InvitePreview
		personID  *string
		first     string
		last      string
		expiresAt *time.Time
	)
	err := p.db.QueryRow(ctx, previewSQL, token).Scan(&prev.GraphID, &prev.GraphName, &personID, &first, &last, &expiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, remote(err, "could not look up invite")
	}
	if personID != nil {
		prev.PersonID = *personID
		prev.PersonName = tree.Person{ID: *personID, FirstName: first, LastName: last}.DisplayName()
	}
	prev.ExpiresAt = expiresAt
	return &prev, nil
}

// AcceptInvite redeems an invite token for the current user and returns
// the graph it grants access to.
func (p *Postgres) AcceptInvite(ctx context.Context, token string) (string, error) {
	if err := kerrors.ValidateInviteToken(token); err != nil {
		return "", err
	}
	token, _ = kerrors.NormalizeInviteToken(token)

	var graphID *string
	if err := p.db.QueryRow(ctx, acceptSQL, token).Scan(&graphID); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == raiseException {
			return "", kerrors.Wrap(kerrors.ErrCodeInviteInvalid, err, "%s", inviteMessage(pgErr.Message))
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return "", kerrors.New(kerrors.ErrCodeInviteInvalid, "this invite is invalid or has expired")
		}
		return "", remote(err, "could not accept invite")
	}
	if graphID == nil || *graphID == "" {
		return "", kerrors.New(kerrors.ErrCodeInviteInvalid, "this invite is invalid or has expired")
	}
	return *graphID, nil
}

func inviteMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		return "this invite cannot be accepted"
	}
	return msg
}

// remote wraps a failed backend call. There is no retry; the message is
// shown to the user as is.
func remote(err error, format string, args ...any) error {
	code := kerrors.ErrCodeRemoteCall
	if errors.Is(err, context.DeadlineExceeded) {
		code = kerrors.ErrCodeTimeout
	}
	return kerrors.Wrap(code, err, "%s", fmt.Sprintf(format, args...))
}
