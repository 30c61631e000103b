package model

import (
	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/internal/signal"
)

// SnapGroup is a set of managed windows currently snapped together and
// moved as a unit. A group of size 1 is permitted but reports "not
// grouped" to clients.
type SnapGroup struct {
	id      int
	desktop *Desktop
	windows []*Window

	entities []Entity
	root     *Window

	// Cached aggregate bounding box, origin in the root window's frame.
	origin      geometry.Point
	halfSize    geometry.Point
	boundsStale bool

	prevGroup *SnapGroup

	subs map[*Window][3]signal.Handle

	Transform     signal.Signal[TransformEvent]
	Commit        signal.Signal[TransformEvent]
	Modified      signal.Signal[ModifiedEvent]
	WindowAdded   signal.Signal[*Window]
	WindowRemoved signal.Signal[*Window]
}

// ID returns the group's monotonically assigned id.
func (g *SnapGroup) ID() int { return g.id }

// Windows returns the member list in join order.
func (g *SnapGroup) Windows() []*Window { return g.windows }

// Size returns the member count.
func (g *SnapGroup) Size() int { return len(g.windows) }

// Grouped reports whether clients consider the group a real group.
func (g *SnapGroup) Grouped() bool { return len(g.windows) >= 2 }

// Root returns the group's reference window for origin-relative caching.
func (g *SnapGroup) Root() *Window { return g.root }

// PrevGroup returns the group this group split from, used during split
// recovery.
func (g *SnapGroup) PrevGroup() *SnapGroup { return g.prevGroup }

// Entities returns the resolver view of the group: each member window,
// except that a multi-tab tab group appears once in place of its tabs.
func (g *SnapGroup) Entities() []Entity { return g.entities }

// Contains reports membership.
func (g *SnapGroup) Contains(w *Window) bool {
	for _, m := range g.windows {
		if m == w {
			return true
		}
	}
	return false
}

// AddWindow detaches w from its previous group and appends it to g.
// Messages follow the join protocol: both windows learn about the join
// when the group first reaches size 2; later joiners are the only ones
// messaged.
func (g *SnapGroup) AddWindow(w *Window) { g.add(w, false) }

// Adopt is AddWindow without join messages. Tab-group mechanics use it to
// keep tabs in the strip's snap group: the snap membership is structural
// bookkeeping there, not a client-visible grouping.
func (g *SnapGroup) Adopt(w *Window) { g.add(w, true) }

func (g *SnapGroup) add(w *Window, silent bool) {
	if w.snapGroup == g {
		return
	}
	if prev := w.snapGroup; prev != nil {
		w.prevSnapGroup = prev
		prev.detach(w, silent)
	}
	w.snapGroup = g

	g.subscribe(w)
	g.windows = append(g.windows, w)
	g.refreshDerived()

	if !silent {
		if len(g.windows) == 2 {
			g.windows[0].SendMessage(MsgJoinSnapGroup, g.id)
		}
		if len(g.windows) >= 2 {
			w.SendMessage(MsgJoinSnapGroup, g.id)
		}
	}
	g.WindowAdded.Emit(w)
}

// RemoveWindow detaches w into a fresh singleton group, preserving the
// invariant that every window has a snap group.
func (g *SnapGroup) RemoveWindow(w *Window) { g.remove(w, false) }

// RemoveWindowSilent is RemoveWindow without leave messages, used when
// tab-group mechanics restore a tab to a standalone window.
func (g *SnapGroup) RemoveWindowSilent(w *Window) { g.remove(w, true) }

func (g *SnapGroup) remove(w *Window, silent bool) {
	if w.snapGroup != g {
		return
	}
	fresh := g.desktop.newSnapGroup()
	fresh.prevGroup = g
	w.prevSnapGroup = g
	g.detach(w, silent)
	w.snapGroup = fresh
	fresh.subscribe(w)
	fresh.windows = append(fresh.windows, w)
	fresh.refreshDerived()
	fresh.WindowAdded.Emit(w)
}

// detach unsubscribes and removes w without re-homing it. Callers must
// assign a new group immediately. The leave protocol mirrors join: the
// removed window is messaged while the group stays populated, and a
// survivor left alone is messaged because clients now see it ungrouped.
func (g *SnapGroup) detach(w *Window, silent bool) {
	g.unsubscribe(w)
	for i, m := range g.windows {
		if m == w {
			g.windows = append(g.windows[:i], g.windows[i+1:]...)
			break
		}
	}
	w.snapGroup = nil

	if !silent {
		if len(g.windows) >= 1 {
			w.SendMessage(MsgLeaveSnapGroup, g.id)
		}
		if len(g.windows) == 1 {
			g.windows[0].SendMessage(MsgLeaveSnapGroup, g.id)
		}
	}

	g.refreshDerived()
	g.WindowRemoved.Emit(w)

	if len(g.windows) == 0 {
		g.desktop.destroySnapGroup(g)
	}
}

func (g *SnapGroup) subscribe(w *Window) {
	if g.subs == nil {
		g.subs = make(map[*Window][3]signal.Handle)
	}
	ht := w.Transform.Connect(func(ev TransformEvent) {
		g.boundsStale = true
		// Motion propagated through group cohesion is not re-broadcast;
		// only the originator's event fires once per transform.
		if ev.Originated {
			g.Transform.Emit(ev)
		}
	})
	hc := w.Commit.Connect(func(ev TransformEvent) {
		g.boundsStale = true
		g.Commit.Emit(ev)
	})
	hm := w.Modified.Connect(func(ev ModifiedEvent) {
		g.boundsStale = true
		g.Modified.Emit(ev)
	})
	g.subs[w] = [3]signal.Handle{ht, hc, hm}
}

func (g *SnapGroup) unsubscribe(w *Window) {
	if hs, ok := g.subs[w]; ok {
		w.Transform.Disconnect(hs[0])
		w.Commit.Disconnect(hs[1])
		w.Modified.Disconnect(hs[2])
		delete(g.subs, w)
	}
}

// refreshDerived rebuilds entities and the root window and invalidates
// the bounds cache.
func (g *SnapGroup) refreshDerived() {
	g.rebuildEntities()
	g.updateRoot()
	g.boundsStale = true
}

func (g *SnapGroup) rebuildEntities() {
	g.entities = g.entities[:0]
	seen := make(map[*TabGroup]bool)
	for _, w := range g.windows {
		tg := w.tabGroup
		if tg == nil {
			tg = w.stripOf
		}
		if tg != nil && tg.TabCount() >= 2 {
			if !seen[tg] {
				seen[tg] = true
				g.entities = append(g.entities, tg)
			}
			continue
		}
		g.entities = append(g.entities, w)
	}
}

// updateRoot selects windows[0], or the tab strip if that window is a tab
// in a multi-tab tab group. Bounds go stale across a root change because
// the cached origin is root-relative.
func (g *SnapGroup) updateRoot() {
	var root *Window
	if len(g.windows) > 0 {
		root = g.windows[0]
		if tg := root.tabGroup; tg != nil && tg.TabCount() >= 2 {
			root = tg.strip
		}
	}
	if root != g.root {
		g.root = root
		g.boundsStale = true
	}
}

// InvalidateBounds marks the cached bounding box stale.
func (g *SnapGroup) InvalidateBounds() { g.boundsStale = true }

// Bounds returns the aggregate bounding box, recomputing lazily. With two
// or more members the hull covers visible normal-state windows only; a
// sole member contributes its rect regardless.
func (g *SnapGroup) Bounds() geometry.Rect {
	if g.boundsStale {
		g.recomputeBounds()
		g.boundsStale = false
	}
	if g.root == nil {
		return geometry.Rect{}
	}
	return geometry.Rect{
		Center: g.root.state.Rect.Center.Add(g.origin),
		Half:   g.halfSize,
	}
}

func (g *SnapGroup) recomputeBounds() {
	if g.root == nil {
		g.origin = geometry.Point{}
		g.halfSize = geometry.Point{}
		return
	}
	if len(g.windows) == 1 {
		g.origin = geometry.Point{}
		g.halfSize = g.windows[0].state.Rect.Half
		return
	}

	var hull geometry.Rect
	for _, w := range g.windows {
		if w.state.Hidden || w.state.State != runtime.StateNormal {
			continue
		}
		hull = hull.Union(w.state.Rect)
	}
	if hull.IsZero() {
		g.origin = geometry.Point{}
		g.halfSize = geometry.Point{}
		return
	}
	g.origin = hull.Center.Sub(g.root.state.Rect.Center)
	g.halfSize = hull.Half
}
