package svg

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"

	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/layout"
)

// Default card size and margin, in diagram units.
const (
	DefaultCardWidth  = 110.0
	DefaultCardHeight = 44.0
	DefaultMargin     = 24.0
)

// Option configures SVG rendering.
type Option func(*renderer)

type renderer struct {
	style        Style
	cardW, cardH float64
	margin       float64
	title        string
	hideHubs     bool
}

// WithStyle sets the visual style (default [Simple]).
func WithStyle(s Style) Option { return func(r *renderer) { r.style = s } }

// WithCardSize sets the person card size. Non-positive values keep the default.
func WithCardSize(w, h float64) Option {
	return func(r *renderer) {
		if w > 0 {
			r.cardW = w
		}
		if h > 0 {
			r.cardH = h
		}
	}
}

// WithMargin sets the blank border around the drawing.
func WithMargin(m float64) Option { return func(r *renderer) { r.margin = max(0, m) } }

// WithTitle adds a <title> element.
func WithTitle(t string) Option { return func(r *renderer) { r.title = t } }

// WithoutHubs omits the hub dots; connectors still meet at the hub.
func WithoutHubs() Option { return func(r *renderer) { r.hideHubs = true } }

// Render draws a layout. Connectors are drawn first, then hubs, then cards,
// each group in ID order so the output is deterministic.
func Render(l graph.Layout, opts ...Option) []byte {
	r := renderer{style: Simple{}, cardW: DefaultCardWidth, cardH: DefaultCardHeight, margin: DefaultMargin}
	for _, opt := range opts {
		opt(&r)
	}

	minX, minY, w, h := r.viewBox(l)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, `<svg xmlns="http://www.w3.org/2000/svg" viewBox="%.1f %.1f %.1f %.1f" width="%.0f" height="%.0f">`+"\n",
		minX, minY, w, h, w, h)
	if r.title != "" {
		fmt.Fprintf(&buf, "  <title>%s</title>\n", escape(r.title))
	}
	r.style.RenderDefs(&buf)

	conns := slices.Clone(l.Connectors)
	slices.SortFunc(conns, func(a, b graph.Connector) int { return cmp.Compare(a.ID, b.ID) })
	for _, c := range conns {
		r.style.RenderConnector(&buf, c)
	}

	if !r.hideHubs {
		hubs := slices.Clone(l.Hubs)
		slices.SortFunc(hubs, func(a, b layout.Hub) int { return cmp.Compare(a.ID, b.ID) })
		for _, hub := range hubs {
			r.style.RenderHub(&buf, hub)
		}
	}

	for _, c := range r.cards(l) {
		r.style.RenderCard(&buf, c)
	}

	buf.WriteString("</svg>\n")
	return buf.Bytes()
}

func (r renderer) viewBox(l graph.Layout) (x, y, w, h float64) {
	if len(l.Nodes) == 0 && len(l.Hubs) == 0 {
		return 0, 0, 2 * r.margin, 2 * r.margin
	}
	padX := r.cardW/2 + r.margin
	padY := r.cardH/2 + r.margin
	return l.Bounds.MinX - padX, l.Bounds.MinY - padY, l.Bounds.Width() + 2*padX, l.Bounds.Height() + 2*padY
}

func (r renderer) cards(l graph.Layout) []Card {
	out := make([]Card, 0, len(l.Nodes))
	for _, n := range l.Nodes {
		out = append(out, Card{
			ID:      n.ID,
			Label:   n.Label,
			Dates:   dates(n.BirthDate, n.DeathDate),
			Claimed: n.Claimed,
			X:       n.Position.X - r.cardW/2,
			Y:       n.Position.Y - r.cardH/2,
			W:       r.cardW,
			H:       r.cardH,
			CX:      n.Position.X,
			CY:      n.Position.Y,
		})
	}
	slices.SortFunc(out, func(a, b Card) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func dates(birth, death string) string {
	switch {
	case birth == "" && death == "":
		return ""
	case death == "":
		return "* " + birth
	case birth == "":
		return "† " + death
	default:
		return birth + " – " + death
	}
}
