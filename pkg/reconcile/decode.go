package reconcile

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/matzehuels/kinship/pkg/feed"
	"github.com/matzehuels/kinship/pkg/store"
	"github.com/matzehuels/kinship/pkg/tree"
)

// ErrMissingID is returned when a row has no id column.
var ErrMissingID = errors.New("row has no id")

// Column names of the backend tables.
const (
	ColID             = "id"
	ColGraphID        = "graph_id"
	ColFirstName      = "first_name"
	ColLastName       = "last_name"
	ColBirthDate      = "birth_date"
	ColDeathDate      = "death_date"
	ColClaimedBy      = "claimed_by"
	ColPositionX      = "position_x"
	ColPositionY      = "position_y"
	ColSource         = "source_id"
	ColTarget         = "target_id"
	ColKind           = "kind"
	ColConversationID = "conversation_id"
	ColAuthorID       = "author_id"
	ColBody           = "body"
	ColCreatedAt      = "created_at"
)

// PersonFromRow decodes a nodes row. The position is set only when both
// coordinates are present and finite.
func PersonFromRow(r feed.Row) (tree.Person, error) {
	id := r.String(ColID)
	if id == "" {
		return tree.Person{}, ErrMissingID
	}
	p := tree.Person{
		ID:        id,
		FirstName: r.String(ColFirstName),
		LastName:  r.String(ColLastName),
		BirthDate: date(r, ColBirthDate),
		DeathDate: date(r, ColDeathDate),
		ClaimedBy: r.String(ColClaimedBy),
	}
	x, okX := r.Float(ColPositionX)
	y, okY := r.Float(ColPositionY)
	if okX && okY && !math.IsNaN(x+y) && !math.IsInf(x+y, 0) {
		p.Position = &tree.Point{X: x, Y: y}
	}
	return p, nil
}

// EdgeFromRow decodes an edges row.
func EdgeFromRow(r feed.Row) (tree.Edge, error) {
	id := r.String(ColID)
	if id == "" {
		return tree.Edge{}, ErrMissingID
	}
	kind, err := tree.ParseKind(r.String(ColKind))
	if err != nil {
		return tree.Edge{}, fmt.Errorf("edge %s: %w", id, err)
	}
	e := tree.Edge{ID: id, Kind: kind, Source: r.String(ColSource), Target: r.String(ColTarget)}
	if err := e.Check(); err != nil {
		return tree.Edge{}, fmt.Errorf("edge %s: %w", id, err)
	}
	return e, nil
}

// MessageFromRow decodes a messages row.
func MessageFromRow(r feed.Row) (store.Message, error) {
	id := r.String(ColID)
	if id == "" {
		return store.Message{}, ErrMissingID
	}
	created, _ := r.Time(ColCreatedAt)
	return store.Message{
		ID:             id,
		ConversationID: r.String(ColConversationID),
		AuthorID:       r.String(ColAuthorID),
		Body:           r.String(ColBody),
		CreatedAt:      created,
	}, nil
}

// date renders a date column as YYYY-MM-DD. Timestamps from the database
// driver are truncated to their date; strings are kept as sent.
func date(r feed.Row, col string) string {
	if t, ok := r[col].(time.Time); ok {
		return t.Format(time.DateOnly)
	}
	return strings.TrimSpace(r.String(col))
}
