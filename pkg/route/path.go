package route

import (
	"strconv"
	"strings"

	"github.com/matzehuels/kinship/pkg/tree"
)

// Segment is a polyline. Consecutive points are joined by straight lines.
type Segment []tree.Point

// Path is an ordered set of disjoint polylines.
type Path struct {
	Segments []Segment `json:"segments"`
	// Fallback is set when the path is the generic orthogonal route because
	// family geometry was unavailable.
	Fallback bool `json:"fallback,omitempty"`
}

// Empty reports whether the path draws nothing.
func (p Path) Empty() bool {
	for _, s := range p.Segments {
		if len(compact(s)) > 1 {
			return false
		}
	}
	return true
}

// D renders the path as SVG path data. Axis-aligned steps use the H and V
// commands; each segment starts with an absolute M.
func (p Path) D() string {
	var b strings.Builder
	for _, seg := range p.Segments {
		seg = compact(seg)
		if len(seg) < 2 {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("M")
		writePair(&b, seg[0])
		prev := seg[0]
		for _, pt := range seg[1:] {
			switch {
			case pt.X == prev.X:
				b.WriteString(" V")
				b.WriteString(num(pt.Y))
			case pt.Y == prev.Y:
				b.WriteString(" H")
				b.WriteString(num(pt.X))
			default:
				b.WriteString(" L")
				writePair(&b, pt)
			}
			prev = pt
		}
	}
	return b.String()
}

// Length returns the total drawn length.
func (p Path) Length() float64 {
	var total float64
	for _, seg := range p.Segments {
		for i := 1; i < len(seg); i++ {
			dx, dy := seg[i].X-seg[i-1].X, seg[i].Y-seg[i-1].Y
			if dx < 0 {
				dx = -dx
			}
			if dy < 0 {
				dy = -dy
			}
			total += dx + dy
		}
	}
	return total
}

// Orthogonal reports whether every step is horizontal or vertical.
func (p Path) Orthogonal() bool {
	for _, seg := range p.Segments {
		for i := 1; i < len(seg); i++ {
			if seg[i].X != seg[i-1].X && seg[i].Y != seg[i-1].Y {
				return false
			}
		}
	}
	return true
}

// compact drops consecutive duplicate points.
func compact(seg Segment) Segment {
	out := make(Segment, 0, len(seg))
	for i, pt := range seg {
		if i > 0 && pt == out[len(out)-1] {
			continue
		}
		out = append(out, pt)
	}
	return out
}

func writePair(b *strings.Builder, pt tree.Point) {
	b.WriteString(num(pt.X))
	b.WriteByte(',')
	b.WriteString(num(pt.Y))
}

func num(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
