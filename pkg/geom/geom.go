package geom

import (
	"errors"
	"fmt"
)

// Point is a 2-D point or vector. Depending on context it holds screen pixels
// or world units.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Add returns p+q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p-q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p*s.
func (p Point) Scale(s float64) Point {
	return Point{X: p.X * s, Y: p.Y * s}
}

// Size is a width/height pair in screen pixels.
type Size struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// ViewTransform maps world coordinates to screen coordinates as
// screen = world*Scale + (X, Y).
type ViewTransform struct {
	Scale float64 `json:"scale"`
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
}

// Identity is the transform with scale 1 and no offset.
var Identity = ViewTransform{Scale: 1}

// Offset returns the pan offset as a point.
func (t ViewTransform) Offset() Point {
	return Point{X: t.X, Y: t.Y}
}

// Limits bounds the zoom level and sets the per-step zoom factor.
type Limits struct {
	Min    float64 `koanf:"min" json:"min"`
	Max    float64 `koanf:"max" json:"max"`
	Factor float64 `koanf:"factor" json:"factor"`
}

// DefaultLimits are the zoom limits used when nothing is configured.
var DefaultLimits = Limits{Min: 0.2, Max: 2.0, Factor: 1.1}

var ErrInvalidLimits = errors.New("geom: invalid zoom limits")

// Validate reports whether the limits describe a usable zoom range.
func (l Limits) Validate() error {
	if l.Min <= 0 {
		return fmt.Errorf("%w: min must be positive, got %g", ErrInvalidLimits, l.Min)
	}
	if l.Max < l.Min {
		return fmt.Errorf("%w: max %g below min %g", ErrInvalidLimits, l.Max, l.Min)
	}
	if l.Factor <= 1 {
		return fmt.Errorf("%w: factor must be greater than 1, got %g", ErrInvalidLimits, l.Factor)
	}
	return nil
}

// Clamp restricts scale to [Min, Max].
func (l Limits) Clamp(scale float64) float64 {
	if scale < l.Min {
		return l.Min
	}
	if scale > l.Max {
		return l.Max
	}
	return scale
}

// ToWorld converts a screen point to world coordinates.
func ToWorld(screen Point, t ViewTransform) Point {
	return Point{
		X: (screen.X - t.X) / t.Scale,
		Y: (screen.Y - t.Y) / t.Scale,
	}
}

// ToScreen converts a world point to screen coordinates.
func ToScreen(world Point, t ViewTransform) Point {
	return Point{
		X: world.X*t.Scale + t.X,
		Y: world.Y*t.Scale + t.Y,
	}
}

// ZoomAt applies one discrete wheel step anchored at a screen point.
// direction < 0 zooms in (wheel up), direction > 0 zooms out, 0 is a no-op.
// The world point under anchor stays under anchor after the step.
func ZoomAt(anchor Point, direction float64, t ViewTransform, l Limits) ViewTransform {
	if direction == 0 {
		return t
	}

	newScale := t.Scale * l.Factor
	if direction > 0 {
		newScale = t.Scale / l.Factor
	}
	newScale = l.Clamp(newScale)

	ratio := newScale / t.Scale
	return ViewTransform{
		Scale: newScale,
		X:     anchor.X - (anchor.X-t.X)*ratio,
		Y:     anchor.Y - (anchor.Y-t.Y)*ratio,
	}
}

// Pan shifts the view by a raw screen-space delta. Panning is not scaled.
func Pan(t ViewTransform, delta Point) ViewTransform {
	t.X += delta.X
	t.Y += delta.Y
	return t
}

// CenterOn returns t with its offset chosen so that a content box of the given
// size, anchored at the world origin, is centred in the viewport.
func CenterOn(viewport, content Size, t ViewTransform) ViewTransform {
	t.X = (viewport.Width - content.Width*t.Scale) / 2
	t.Y = (viewport.Height - content.Height*t.Scale) / 2
	return t
}

// Rect is an axis-aligned rectangle in world units.
type Rect struct {
	Min Point `json:"min"`
	Max Point `json:"max"`
}

// RectAround returns the rectangle of the given size centred on c.
func RectAround(c Point, width, height float64) Rect {
	return Rect{
		Min: Point{X: c.X - width/2, Y: c.Y - height/2},
		Max: Point{X: c.X + width/2, Y: c.Y + height/2},
	}
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X <= r.Max.X &&
		p.Y >= r.Min.Y && p.Y <= r.Max.Y
}
