package svg

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/matzehuels/kinship/pkg/graph"
	"github.com/matzehuels/kinship/pkg/layout"
)

// Style defines the visual appearance of a diagram.
// Implementations control how cards, hubs and connectors are drawn.
type Style interface {
	// RenderDefs writes the SVG <defs> and <style> content.
	RenderDefs(buf *bytes.Buffer)
	// RenderConnector writes one routed connector.
	RenderConnector(buf *bytes.Buffer, c graph.Connector)
	// RenderHub writes one family hub.
	RenderHub(buf *bytes.Buffer, h layout.Hub)
	// RenderCard writes one person card.
	RenderCard(buf *bytes.Buffer, c Card)
}

// Card is a person as drawn: a box centered on the person's position.
type Card struct {
	ID         string
	Label      string
	Dates      string
	Claimed    bool
	X, Y, W, H float64 // top-left corner and size
	CX, CY     float64 // center
}

// =============================================================================
// Simple
// =============================================================================

// Simple draws white cards with a thin outline and grey connectors.
// Fallback connectors are dashed.
type Simple struct{}

const simpleCSS = `
    .connector { fill: none; stroke: #555; stroke-width: 1.5; }
    .connector.partnership { stroke: #b03a6f; }
    .connector.fallback { stroke-dasharray: 4 3; }
    .hub { fill: #555; }
    .card rect { fill: #fff; stroke: #333; stroke-width: 1.2; }
    .card.claimed rect { stroke: #1f6feb; stroke-width: 2.4; }
    .card text { font-family: system-ui, sans-serif; fill: #222; text-anchor: middle; }
    .card .dates { fill: #666; }`

func (Simple) RenderDefs(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "  <style>%s\n  </style>\n", simpleCSS)
}

func (Simple) RenderConnector(buf *bytes.Buffer, c graph.Connector) {
	if c.D == "" {
		return
	}
	classes := []string{"connector", c.Role.String()}
	if c.Fallback {
		classes = append(classes, "fallback")
	}
	fmt.Fprintf(buf, `  <path id="%s" class="%s" d="%s"/>`+"\n", escape(c.ID), strings.Join(classes, " "), c.D)
}

func (Simple) RenderHub(buf *bytes.Buffer, h layout.Hub) {
	fmt.Fprintf(buf, `  <circle id="%s" class="hub %s" cx="%.1f" cy="%.1f" r="3"/>`+"\n",
		escape(h.ID), h.Kind, h.Position.X, h.Position.Y)
}

func (Simple) RenderCard(buf *bytes.Buffer, c Card) {
	class := "card"
	if c.Claimed {
		class += " claimed"
	}
	fmt.Fprintf(buf, `  <g id="person-%s" class="%s">`+"\n", escape(c.ID), class)
	fmt.Fprintf(buf, `    <rect x="%.1f" y="%.1f" width="%.1f" height="%.1f" rx="6"/>`+"\n", c.X, c.Y, c.W, c.H)
	size := FontSize(c)
	if c.Dates == "" {
		fmt.Fprintf(buf, `    <text x="%.1f" y="%.1f" font-size="%.1f" dominant-baseline="middle">%s</text>`+"\n",
			c.CX, c.CY, size, escape(TruncateLabel(c.Label, c.W, size)))
	} else {
		fmt.Fprintf(buf, `    <text x="%.1f" y="%.1f" font-size="%.1f">%s</text>`+"\n",
			c.CX, c.CY-2, size, escape(TruncateLabel(c.Label, c.W, size)))
		fmt.Fprintf(buf, `    <text class="dates" x="%.1f" y="%.1f" font-size="%.1f">%s</text>`+"\n",
			c.CX, c.CY+size, size*0.8, escape(c.Dates))
	}
	buf.WriteString("  </g>\n")
}

// =============================================================================
// Mono
// =============================================================================

// Mono is a black-on-white print style without colors.
type Mono struct{ Simple }

const monoCSS = `
    .connector { fill: none; stroke: #000; stroke-width: 1; }
    .connector.fallback { stroke-dasharray: 2 2; }
    .hub { fill: #000; }
    .card rect { fill: none; stroke: #000; stroke-width: 1; }
    .card.claimed rect { stroke-width: 2; }
    .card text { font-family: serif; fill: #000; text-anchor: middle; }`

func (Mono) RenderDefs(buf *bytes.Buffer) {
	fmt.Fprintf(buf, "  <style>%s\n  </style>\n", monoCSS)
}

// =============================================================================
// Text
// =============================================================================

const (
	fontSizeMin   = 8.0
	fontSizeMax   = 14.0
	fontCharWidth = 0.55
	cardTextRatio = 0.9
)

// FontSize picks a size that fits the label on one line of the card.
func FontSize(c Card) float64 {
	n := max(1, len([]rune(c.Label)))
	byWidth := c.W * cardTextRatio / (float64(n) * fontCharWidth)
	return max(fontSizeMin, min(fontSizeMax, byWidth, c.H*0.4))
}

// TruncateLabel shortens label with an ellipsis so it fits width at size.
func TruncateLabel(label string, width, size float64) string {
	fit := int(width * cardTextRatio / (size * fontCharWidth))
	runes := []rune(label)
	if len(runes) <= fit || fit < 2 {
		return label
	}
	return string(runes[:fit-1]) + "…"
}

func escape(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}

var (
	_ Style = Simple{}
	_ Style = Mono{}
)
