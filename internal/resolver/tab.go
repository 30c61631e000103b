package resolver

import (
	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/model"
)

// TabResolver hit-tests a drag position against existing tab strips.
type TabResolver struct{}

// NewTabResolver returns a tab resolver.
func NewTabResolver() *TabResolver { return &TabResolver{} }

// Resolve returns the tab group whose strip-plus-active-body region
// contains the cursor. Overlapping hits are broken by window z-order:
// the topmost tab group wins. Dropping a window onto its own group is a
// no-op and returns nil.
func (r *TabResolver) Resolve(desktop *model.Desktop, dragging *model.Window, cursor geometry.Point) *model.TabGroup {
	var best *model.TabGroup
	bestRank := -1

	for _, tg := range desktop.TabGroups() {
		active := tg.Active()
		if active == nil || active.State().Hidden {
			continue
		}
		if !tg.Contains(cursor) {
			continue
		}
		if rank := r.rank(desktop, tg); rank > bestRank {
			best = tg
			bestRank = rank
		}
	}

	if best != nil && dragging != nil && best.HasTab(dragging) {
		return nil
	}
	return best
}

// rank scores a tab group by the z-order of its most recently focused
// member; the strip counts too since clicks land on it.
func (r *TabResolver) rank(desktop *model.Desktop, tg *model.TabGroup) int {
	rank := desktop.StackIndex(tg.Strip().ID())
	for _, tab := range tg.Tabs() {
		if i := desktop.StackIndex(tab.ID()); i > rank {
			rank = i
		}
	}
	return rank
}
