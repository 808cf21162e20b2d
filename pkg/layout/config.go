package layout

import (
	"fmt"
	"math"
	"strings"
)

// BranchMode selects how the bus height (branchY) of a family is chosen.
type BranchMode int

const (
	// BranchModeFraction places the bus at a fixed fraction of the distance
	// from the hub down to the highest child.
	BranchModeFraction BranchMode = iota
	// BranchModeOffset places the bus a fixed distance below the hub and
	// falls back to the midpoint when that would not fit.
	BranchModeOffset
)

// String returns the config name of the mode.
func (m BranchMode) String() string {
	switch m {
	case BranchModeOffset:
		return "offset"
	default:
		return "fraction"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m BranchMode) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler so the mode can be set
// from TOML and environment variables.
func (m *BranchMode) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "", "fraction":
		*m = BranchModeFraction
	case "offset":
		*m = BranchModeOffset
	default:
		return fmt.Errorf("unknown branch mode %q", b)
	}
	return nil
}

// Default layout settings, in diagram units.
const (
	DefaultHubOffset      = 20
	DefaultBranchFraction = 0.5
	DefaultBranchOffset   = 40
	DefaultTierSpacing    = 160
	DefaultSiblingSpacing = 140
)

// Config controls hub placement, bus height and automatic placement.
type Config struct {
	// HubOffset is the vertical distance between the (lowest) parent and
	// the family hub.
	HubOffset float64 `toml:"hub_offset" validate:"gte=0"`

	BranchMode     BranchMode `toml:"branch_mode"`
	BranchFraction float64    `toml:"branch_fraction" validate:"gt=0,lt=1"`
	BranchOffset   float64    `toml:"branch_offset" validate:"gte=0"`

	// TierSpacing and SiblingSpacing are only used by [Place].
	TierSpacing    float64 `toml:"tier_spacing" validate:"gt=0"`
	SiblingSpacing float64 `toml:"sibling_spacing" validate:"gt=0"`
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		HubOffset:      DefaultHubOffset,
		BranchMode:     BranchModeFraction,
		BranchFraction: DefaultBranchFraction,
		BranchOffset:   DefaultBranchOffset,
		TierSpacing:    DefaultTierSpacing,
		SiblingSpacing: DefaultSiblingSpacing,
	}
}

// BranchY returns the bus height for a hub at hubY whose highest child sits
// at childY. The result lies strictly between the two. It is NaN when either
// input is not finite or the children are not below the hub, which makes the
// router fall back.
func (c Config) BranchY(hubY, childY float64) float64 {
	if !finite(hubY) || !finite(childY) || childY <= hubY {
		return math.NaN()
	}
	switch c.BranchMode {
	case BranchModeOffset:
		if y := hubY + c.BranchOffset; y > hubY && y < childY {
			return y
		}
		return (hubY + childY) / 2
	default:
		f := c.BranchFraction
		if !(f > 0 && f < 1) {
			f = DefaultBranchFraction
		}
		return hubY + (childY-hubY)*f
	}
}

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }
