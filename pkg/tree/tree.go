package tree

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrInvalidID is returned when a person or edge ID is empty.
	ErrInvalidID = errors.New("id must not be empty")

	// ErrInvalidKind is returned when an edge kind is not one of the
	// known relationship kinds.
	ErrInvalidKind = errors.New("invalid relationship kind")

	// ErrSelfLoop is returned when an edge names the same person as source
	// and target.
	ErrSelfLoop = errors.New("edge source and target must differ")

	// ErrCycle is returned by [Validate] and by store mutations when the
	// parent_child relation would make a person their own ancestor.
	ErrCycle = errors.New("parent_child edges contain a cycle")

	// ErrDanglingEdge is returned by [Validate], and by local edge inserts,
	// when an edge references a person that is not part of the view.
	ErrDanglingEdge = errors.New("edge references unknown person")
)

// Kind distinguishes the two relationship variants stored in a tree.
type Kind int

const (
	// KindParentChild is a directed edge from parent (Source) to child (Target).
	KindParentChild Kind = iota + 1
	// KindPartnership joins two partners. The direction carries no meaning.
	KindPartnership
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindParentChild:
		return "parent_child"
	case KindPartnership:
		return "partnership"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is a known relationship kind.
func (k Kind) Valid() bool { return k == KindParentChild || k == KindPartnership }

// ParseKind converts a wire name into a Kind. Matching ignores case and
// surrounding whitespace.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "parent_child":
		return KindParentChild, nil
	case "partnership":
		return KindPartnership, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	v, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = v
	return nil
}

// Point is a 2-D coordinate in diagram units. Y grows downward.
type Point struct {
	X float64 `json:"x" bson:"x"`
	Y float64 `json:"y" bson:"y"`
}

// Finite reports whether both coordinates are finite numbers.
func (p Point) Finite() bool {
	return !math.IsNaN(p.X) && !math.IsInf(p.X, 0) && !math.IsNaN(p.Y) && !math.IsInf(p.Y, 0)
}

// Person is a node of the genealogical graph.
//
// Position is nil until the person has been placed, either manually by a
// collaborator or by an automatic placement pass.
type Person struct {
	ID        string `json:"id" bson:"id"`
	FirstName string `json:"first_name,omitempty" bson:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty" bson:"last_name,omitempty"`
	BirthDate string `json:"birth_date,omitempty" bson:"birth_date,omitempty"`
	DeathDate string `json:"death_date,omitempty" bson:"death_date,omitempty"`
	ClaimedBy string `json:"claimed_by,omitempty" bson:"claimed_by,omitempty"`
	Position  *Point `json:"position,omitempty" bson:"position,omitempty"`
}

// DisplayName joins first and last name, falling back to the ID.
func (p Person) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(p.FirstName) + " " + strings.TrimSpace(p.LastName))
	if name == "" {
		return p.ID
	}
	return name
}

// Claimed reports whether a user account has claimed this person.
func (p Person) Claimed() bool { return p.ClaimedBy != "" }

// Clone returns a copy of p that shares no memory with it.
func (p Person) Clone() Person {
	if p.Position != nil {
		pos := *p.Position
		p.Position = &pos
	}
	return p
}

// Patch holds a partial update for a person. Nil fields are left unchanged.
// SetPosition with a nil Position clears the placement.
type Patch struct {
	FirstName   *string
	LastName    *string
	BirthDate   *string
	DeathDate   *string
	ClaimedBy   *string
	Position    *Point
	SetPosition bool
}

// Apply returns p with the patch applied.
func (pt Patch) Apply(p Person) Person {
	p = p.Clone()
	if pt.FirstName != nil {
		p.FirstName = *pt.FirstName
	}
	if pt.LastName != nil {
		p.LastName = *pt.LastName
	}
	if pt.BirthDate != nil {
		p.BirthDate = *pt.BirthDate
	}
	if pt.DeathDate != nil {
		p.DeathDate = *pt.DeathDate
	}
	if pt.ClaimedBy != nil {
		p.ClaimedBy = *pt.ClaimedBy
	}
	if pt.SetPosition || pt.Position != nil {
		if pt.Position == nil {
			p.Position = nil
		} else {
			pos := *pt.Position
			p.Position = &pos
		}
	}
	return p
}

// Empty reports whether the patch would change nothing.
func (pt Patch) Empty() bool {
	return pt.FirstName == nil && pt.LastName == nil && pt.BirthDate == nil &&
		pt.DeathDate == nil && pt.ClaimedBy == nil && pt.Position == nil && !pt.SetPosition
}

// Edge is a relationship between two persons.
type Edge struct {
	ID     string `json:"id" bson:"id"`
	Kind   Kind   `json:"kind" bson:"kind"`
	Source string `json:"source" bson:"source"`
	Target string `json:"target" bson:"target"`
}

// Check validates the edge in isolation: non-empty IDs, a known kind and
// distinct endpoints.
func (e Edge) Check() error {
	if e.ID == "" || e.Source == "" || e.Target == "" {
		return ErrInvalidID
	}
	if !e.Kind.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidKind, int(e.Kind))
	}
	if e.Source == e.Target {
		return ErrSelfLoop
	}
	return nil
}

// Touches reports whether the edge names id as source or target.
func (e Edge) Touches(id string) bool { return e.Source == id || e.Target == id }

// Partners returns the endpoints of a partnership edge in sorted order, so
// that A–B and B–A produce the same pair.
func (e Edge) Partners() (string, string) {
	if e.Source <= e.Target {
		return e.Source, e.Target
	}
	return e.Target, e.Source
}
