// Package resolver finds snap and tab targets for a drag in progress.
// Resolvers are pure over the desktop model: they read bounds and
// z-order, score candidates and report at most one target per call.
package resolver

import (
	"math"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

// Defaults for the snap search.
const (
	DefaultSnapRadius = 30.0
	DefaultMinOverlap = 30.0
	DefaultOverlapEps = 1.0
)

// Policy answers configuration questions the resolver needs while
// validating a target.
type Policy interface {
	// SnapPermitted reports whether the window's configuration allows it
	// to take part in snapping.
	SnapPermitted(id runtime.ID) bool
}

// SnapTarget is a proposed commit action: translate the moving group by
// Offset so its edge meets the target group's. Invalid targets are still
// reported so the preview can render the rejection; they are never
// committed.
type SnapTarget struct {
	Group  *model.SnapGroup
	Active *model.Window
	Offset geometry.Point
	// HalfSize, when set, resizes the moving window before the
	// translation is applied.
	HalfSize *geometry.Point
	Side     geometry.Side
	Valid    bool
}

// SnapResolver scans candidate groups for the best validated edge-to-edge
// alignment.
type SnapResolver struct {
	Radius     float64
	MinOverlap float64
	Eps        float64
}

// NewSnapResolver returns a resolver with default parameters.
func NewSnapResolver() *SnapResolver {
	return &SnapResolver{
		Radius:     DefaultSnapRadius,
		MinOverlap: DefaultMinOverlap,
		Eps:        DefaultOverlapEps,
	}
}

type candidatePair struct {
	group  *model.SnapGroup
	side   geometry.Side
	gap    float64
	ov     float64
	offset geometry.Point
}

// Resolve returns the best snap target for the moving group, or nil.
// active is the member window the user is dragging; cursor is the global
// mouse position used for tie-breaks.
func (r *SnapResolver) Resolve(desktop *model.Desktop, moving *model.SnapGroup, active *model.Window, cursor geometry.Point, policy Policy) *SnapTarget {
	mb := moving.Bounds()
	if mb.Half.IsZero() {
		return nil
	}

	var best *candidatePair
	for _, cand := range desktop.SnapGroups() {
		if cand == moving || cand.Size() == 0 {
			continue
		}
		cb := cand.Bounds()
		if cb.Half.IsZero() {
			continue
		}
		// Candidate filter: bounding boxes within the snap radius,
		// measured edge-to-edge.
		if -mb.Overlap(cb, geometry.AxisX) > r.Radius || -mb.Overlap(cb, geometry.AxisY) > r.Radius {
			continue
		}

		for _, side := range geometry.Sides {
			pair, ok := r.alignEdges(mb, cb, side)
			if !ok {
				continue
			}
			pair.group = cand
			if best == nil || r.better(pair, *best, cursor) {
				p := pair
				best = &p
			}
		}
	}
	if best == nil {
		return nil
	}

	target := &SnapTarget{
		Group:  best.group,
		Active: active,
		Offset: best.offset,
		Side:   best.side,
	}
	target.Valid = r.validate(moving, target, policy)
	return target
}

// alignEdges aligns the given outer edge of the moving box against the
// facing edge of the candidate box.
func (r *SnapResolver) alignEdges(mb, cb geometry.Rect, side geometry.Side) (candidatePair, bool) {
	axis := side.Axis()
	delta := cb.Edge(side.Opposite()) - mb.Edge(side)
	if math.Abs(delta) > r.Radius {
		return candidatePair{}, false
	}

	parallel := axis.Other()
	ov := mb.Overlap(cb, parallel)
	minOv := r.MinOverlap
	if smaller := math.Min(mb.Half.Component(parallel), cb.Half.Component(parallel)) * 2; smaller < minOv {
		minOv = smaller
	}
	if ov < minOv {
		return candidatePair{}, false
	}

	return candidatePair{
		side:   side,
		gap:    math.Abs(delta),
		ov:     ov,
		offset: geometry.Point{}.WithComponent(axis, delta),
	}, true
}

// better ranks a over b: smaller gap wins, then larger parallel overlap,
// then the candidate whose center is closer to the cursor.
func (r *SnapResolver) better(a, b candidatePair, cursor geometry.Point) bool {
	if a.gap != b.gap {
		return a.gap < b.gap
	}
	if a.ov != b.ov {
		return a.ov > b.ov
	}
	return distance(a.group.Bounds().Center, cursor) < distance(b.group.Bounds().Center, cursor)
}

// validate checks whether committing the target would produce a legal
// layout. Invalid targets still preview, in the rejected style.
func (r *SnapResolver) validate(moving *model.SnapGroup, target *SnapTarget, policy Policy) bool {
	for _, w := range moving.Windows() {
		if policy != nil && !policy.SnapPermitted(w.ID()) {
			return false
		}
	}

	for _, tw := range target.Group.Windows() {
		if policy != nil && !policy.SnapPermitted(tw.ID()) {
			return false
		}
		// Never attach against a maximized or minimized window's
		// bounds.
		if tw.State().State != runtime.StateNormal {
			return false
		}
		for _, mw := range moving.Windows() {
			moved := mw.Rect().Translate(target.Offset)
			if moved.Intersects(tw.Rect(), r.Eps) {
				return false
			}
		}
	}

	if r.opposedTabStrips(moving, target) {
		return false
	}
	return true
}

// opposedTabStrips rejects a vertical snap that would stack two tab
// groups with a strip underneath a body; tab strips must remain on top.
func (r *SnapResolver) opposedTabStrips(moving *model.SnapGroup, target *SnapTarget) bool {
	if target.Side.Axis() != geometry.AxisY {
		return false
	}
	movingTabs := containsTabGroup(moving)
	targetTabs := containsTabGroup(target.Group)
	return movingTabs && targetTabs
}

func containsTabGroup(g *model.SnapGroup) bool {
	for _, e := range g.Entities() {
		if _, ok := e.(*model.TabGroup); ok {
			return true
		}
	}
	return false
}

func distance(a, b geometry.Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}
