package render

import (
	"strconv"
	"strings"

	"github.com/ritzau/node-composer/pkg/geom"
)

// Layout holds the fixed widget geometry shared by the browser and the server.
// Nodes are drawn centred on their position.
type Layout struct {
	NodeWidth    float64 `koanf:"nodewidth" json:"nodeWidth"`
	NodeHeight   float64 `koanf:"nodeheight" json:"nodeHeight"`
	HeaderHeight float64 `koanf:"headerheight" json:"headerHeight"`
	CurveOffset  float64 `koanf:"curveoffset" json:"curveOffset"` // Horizontal pull of connection curves
}

// DefaultLayout matches the browser's stylesheet.
var DefaultLayout = Layout{
	NodeWidth:    320,
	NodeHeight:   240,
	HeaderHeight: 44,
	CurveOffset:  50,
}

// OutputAnchor is where connections leave a node: the middle of its right edge.
func (l Layout) OutputAnchor(pos geom.Point) geom.Point {
	return geom.Point{X: pos.X + l.NodeWidth/2, Y: pos.Y}
}

// InputAnchor is where connections enter a node: the middle of its left edge.
func (l Layout) InputAnchor(pos geom.Point) geom.Point {
	return geom.Point{X: pos.X - l.NodeWidth/2, Y: pos.Y}
}

// Bounds is the node's hit region in world coordinates.
func (l Layout) Bounds(pos geom.Point) geom.Rect {
	return geom.RectAround(pos, l.NodeWidth, l.NodeHeight)
}

// ConnectionPath returns the SVG path of a committed connection between two
// world-space anchors.
func (l Layout) ConnectionPath(from, to geom.Point) string {
	var b strings.Builder
	b.WriteString("M")
	writePoint(&b, from)
	b.WriteString(" C")
	writePoint(&b, geom.Point{X: from.X + l.CurveOffset, Y: from.Y})
	b.WriteString(" ")
	writePoint(&b, geom.Point{X: to.X - l.CurveOffset, Y: to.Y})
	b.WriteString(" ")
	writePoint(&b, to)
	return b.String()
}

// RubberBandPath returns the straight SVG path of an in-progress connection.
func RubberBandPath(start, pointer geom.Point) string {
	var b strings.Builder
	b.WriteString("M")
	writePoint(&b, start)
	b.WriteString(" L")
	writePoint(&b, pointer)
	return b.String()
}

func writePoint(b *strings.Builder, p geom.Point) {
	b.WriteString(strconv.FormatFloat(p.X, 'f', -1, 64))
	b.WriteByte(',')
	b.WriteString(strconv.FormatFloat(p.Y, 'f', -1, 64))
}
