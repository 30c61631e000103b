package engine

import (
	"context"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/model"
)

// adjacencyEps is the edge-to-edge slack within which two windows count
// as snapped together when rebuilding connectivity.
const adjacencyEps = 1.0

// revalidate reacts to a modification that may have made w ineligible for
// its snap group: minimize, maximize, hide, or a frame toggle. The window
// moves to a singleton group; reverting the modification does not
// auto-resnap.
func (e *Engine) revalidate(ctx context.Context, w *model.Window) {
	if w.TabGroup() != nil {
		// Tab mechanics own their members' visibility; a hidden
		// inactive tab is structural, not a membership violation.
		return
	}
	g := w.SnapGroup()
	if g == nil || g.Size() < 2 {
		return
	}
	if w.Eligible() {
		return
	}
	e.removeAndSplit(ctx, w)
}

// removeAndSplit detaches w into a singleton group and, when the removal
// leaves the remaining members in disconnected islands, splits the group
// along the snap-adjacency graph.
func (e *Engine) removeAndSplit(ctx context.Context, w *model.Window) {
	g := w.SnapGroup()
	if g == nil {
		return
	}
	g.RemoveWindow(w)
	e.splitDisconnected(g)
}

// splitDisconnected partitions g into connected components over the
// snap-adjacency graph and rehomes every component after the first into
// its own group. Windows that end up alone are removed with the full
// leave protocol; larger components move silently since clients still
// see them as grouped.
func (e *Engine) splitDisconnected(g *model.SnapGroup) {
	if g.Size() < 2 {
		return
	}
	comps := components(g.Windows())
	if len(comps) < 2 {
		return
	}

	e.log.Info("snap group split into disconnected subsets",
		"group", g.ID(), "components", len(comps))
	for _, comp := range comps[1:] {
		if len(comp) == 1 {
			g.RemoveWindow(comp[0])
			continue
		}
		fresh := e.desktop.NewSnapGroup()
		for _, w := range comp {
			fresh.Adopt(w)
		}
	}
}

// components runs a union-find-free BFS over the adjacency relation.
func components(windows []*model.Window) [][]*model.Window {
	unvisited := make(map[*model.Window]bool, len(windows))
	for _, w := range windows {
		unvisited[w] = true
	}

	var comps [][]*model.Window
	for _, start := range windows {
		if !unvisited[start] {
			continue
		}
		delete(unvisited, start)
		comp := []*model.Window{start}
		queue := []*model.Window{start}
		for len(queue) > 0 {
			cur := queue[0]
			queue = queue[1:]
			for other := range unvisited {
				if adjacent(cur.Rect(), other.Rect()) {
					delete(unvisited, other)
					comp = append(comp, other)
					queue = append(queue, other)
				}
			}
		}
		comps = append(comps, comp)
	}
	return comps
}

// adjacent reports whether two rects share an edge: touching within
// adjacencyEps on one axis while overlapping on the other.
func adjacent(a, b geometry.Rect) bool {
	gapX := -a.Overlap(b, geometry.AxisX)
	gapY := -a.Overlap(b, geometry.AxisY)
	switch {
	case gapX <= adjacencyEps && gapY <= -adjacencyEps:
		return true
	case gapY <= adjacencyEps && gapX <= -adjacencyEps:
		return true
	default:
		return false
	}
}
