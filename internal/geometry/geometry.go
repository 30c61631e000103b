package geometry

import "fmt"

// Point is a 2D vector in screen-pixel coordinates.
type Point struct {
	X float64
	Y float64
}

// Add returns p + q.
func (p Point) Add(q Point) Point {
	return Point{X: p.X + q.X, Y: p.Y + q.Y}
}

// Sub returns p - q.
func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Scale returns p scaled by f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f}
}

// IsZero reports whether both components are zero.
func (p Point) IsZero() bool {
	return p.X == 0 && p.Y == 0
}

func (p Point) String() string {
	return fmt.Sprintf("(%g,%g)", p.X, p.Y)
}

// Axis identifies one screen axis.
type Axis int

const (
	AxisX Axis = iota
	AxisY
)

// Other returns the perpendicular axis.
func (a Axis) Other() Axis {
	if a == AxisX {
		return AxisY
	}
	return AxisX
}

func (a Axis) String() string {
	if a == AxisX {
		return "x"
	}
	return "y"
}

// Component returns the component of p along a.
func (p Point) Component(a Axis) float64 {
	if a == AxisX {
		return p.X
	}
	return p.Y
}

// WithComponent returns p with the component along a replaced by v.
func (p Point) WithComponent(a Axis, v float64) Point {
	if a == AxisX {
		p.X = v
	} else {
		p.Y = v
	}
	return p
}

// Rect is an axis-aligned rectangle stored as center plus half-extents.
// Width is 2*Half.X and height is 2*Half.Y.
type Rect struct {
	Center Point
	Half   Point
}

// RectFromBounds builds a Rect from a top-left corner and a size.
func RectFromBounds(x, y, width, height float64) Rect {
	return Rect{
		Center: Point{X: x + width/2, Y: y + height/2},
		Half:   Point{X: width / 2, Y: height / 2},
	}
}

// RectFromCorners builds a Rect from opposite corners.
func RectFromCorners(min, max Point) Rect {
	return Rect{
		Center: min.Add(max).Scale(0.5),
		Half:   max.Sub(min).Scale(0.5),
	}
}

// Min returns the top-left corner.
func (r Rect) Min() Point {
	return r.Center.Sub(r.Half)
}

// Max returns the bottom-right corner.
func (r Rect) Max() Point {
	return r.Center.Add(r.Half)
}

// Width returns the full width.
func (r Rect) Width() float64 {
	return 2 * r.Half.X
}

// Height returns the full height.
func (r Rect) Height() float64 {
	return 2 * r.Half.Y
}

// IsZero reports whether the rect is the zero rect.
func (r Rect) IsZero() bool {
	return r.Center.IsZero() && r.Half.IsZero()
}

// Translate returns the rect moved by d.
func (r Rect) Translate(d Point) Rect {
	r.Center = r.Center.Add(d)
	return r
}

// Contains reports whether p lies inside the rect, edges inclusive.
func (r Rect) Contains(p Point) bool {
	min, max := r.Min(), r.Max()
	return p.X >= min.X && p.X <= max.X && p.Y >= min.Y && p.Y <= max.Y
}

// Union returns the smallest rect covering both r and s.
func (r Rect) Union(s Rect) Rect {
	if r.IsZero() {
		return s
	}
	if s.IsZero() {
		return r
	}
	rmin, rmax := r.Min(), r.Max()
	smin, smax := s.Min(), s.Max()
	min := Point{X: minf(rmin.X, smin.X), Y: minf(rmin.Y, smin.Y)}
	max := Point{X: maxf(rmax.X, smax.X), Y: maxf(rmax.Y, smax.Y)}
	return RectFromCorners(min, max)
}

// Overlap returns the signed overlap between r and s along axis a.
// Positive values are the length of the shared interval; negative values
// are the gap between the two intervals.
func (r Rect) Overlap(s Rect, a Axis) float64 {
	return minf(r.Max().Component(a), s.Max().Component(a)) -
		maxf(r.Min().Component(a), s.Min().Component(a))
}

// Intersects reports whether the interiors of r and s overlap by more than
// eps on both axes.
func (r Rect) Intersects(s Rect, eps float64) bool {
	return r.Overlap(s, AxisX) > eps && r.Overlap(s, AxisY) > eps
}

func (r Rect) String() string {
	return fmt.Sprintf("{center:%s half:%s}", r.Center, r.Half)
}

// Side identifies one edge of a rectangle.
type Side int

const (
	SideLeft Side = iota
	SideRight
	SideTop
	SideBottom
)

// Sides lists all four sides in a stable order.
var Sides = []Side{SideLeft, SideRight, SideTop, SideBottom}

// Axis returns the axis perpendicular to the side: a left or right edge
// separates rects along X, a top or bottom edge along Y.
func (s Side) Axis() Axis {
	if s == SideLeft || s == SideRight {
		return AxisX
	}
	return AxisY
}

// Opposite returns the facing side.
func (s Side) Opposite() Side {
	switch s {
	case SideLeft:
		return SideRight
	case SideRight:
		return SideLeft
	case SideTop:
		return SideBottom
	default:
		return SideTop
	}
}

func (s Side) String() string {
	switch s {
	case SideLeft:
		return "left"
	case SideRight:
		return "right"
	case SideTop:
		return "top"
	default:
		return "bottom"
	}
}

// Edge returns the coordinate of the given edge along its axis.
func (r Rect) Edge(s Side) float64 {
	switch s {
	case SideLeft:
		return r.Min().X
	case SideRight:
		return r.Max().X
	case SideTop:
		return r.Min().Y
	default:
		return r.Max().Y
	}
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
