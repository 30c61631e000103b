// Package model holds the in-memory desktop model: managed windows, snap
// groups, tab groups and the registry tying them together. Everything in
// this package runs on the engine's task loop; there is no internal
// locking.
package model

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/internal/signal"
)

// Desktop is the registry of all managed windows, snap groups and tab
// groups. It enforces id uniqueness and referential invariants; orphaned
// groups are collected on the same turn as the removal that produced
// them.
type Desktop struct {
	log *slog.Logger

	windows map[runtime.ID]*Window
	order   []runtime.ID

	snapGroups []*SnapGroup
	tabGroups  []*TabGroup
	nextGroup  int

	// zorder tracks focus/activation order; the last entry is topmost.
	zorder []runtime.ID

	// Messages carries client events for the IPC layer to fan out.
	Messages signal.Signal[ClientMessage]

	// WindowCreated and WindowRemoved fire after registry changes.
	WindowCreated signal.Signal[*Window]
	WindowRemoved signal.Signal[*Window]
}

// New returns an empty desktop model.
func New(log *slog.Logger) *Desktop {
	if log == nil {
		log = slog.Default()
	}
	return &Desktop{
		log:     log,
		windows: make(map[runtime.ID]*Window),
	}
}

// CreateWindow registers a new managed window in a fresh singleton snap
// group. Duplicate ids are rejected.
func (d *Desktop) CreateWindow(id runtime.ID, state runtime.WindowState, handle runtime.Handle) (*Window, error) {
	if _, exists := d.windows[id]; exists {
		return nil, fmt.Errorf("%w: duplicate window id %s", ErrInvalidState, id)
	}
	w := &Window{
		desktop: d,
		id:      id,
		handle:  handle,
		state:   state,
		ready:   true,
		enabled: true,
	}
	d.windows[id] = w
	d.order = append(d.order, id)
	d.zorder = append(d.zorder, id)

	g := d.newSnapGroup()
	w.snapGroup = g
	g.subscribe(w)
	g.windows = append(g.windows, w)
	g.refreshDerived()

	d.log.Debug("window registered", "window", id, "group", g.id)
	d.WindowCreated.Emit(w)
	return w, nil
}

// Window returns the managed window for id, or an error.
func (d *Desktop) Window(id runtime.ID) (*Window, error) {
	w, ok := d.windows[id]
	if !ok {
		return nil, fmt.Errorf("%w: window %s", ErrNotFound, id)
	}
	return w, nil
}

// Windows returns all managed windows in registration order.
func (d *Desktop) Windows() []*Window {
	out := make([]*Window, 0, len(d.order))
	for _, id := range d.order {
		if w, ok := d.windows[id]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Size returns the managed window count.
func (d *Desktop) Size() int { return len(d.windows) }

// RemoveWindow tears down the window for id: it leaves any tab group,
// then its snap group, and empty groups are destroyed on the same turn.
func (d *Desktop) RemoveWindow(ctx context.Context, id runtime.ID) error {
	w, ok := d.windows[id]
	if !ok {
		return fmt.Errorf("%w: window %s", ErrNotFound, id)
	}

	// The OS window is gone; commands must not be retried against it.
	w.ready = false

	if tg := w.tabGroup; tg != nil {
		if err := tg.RemoveTab(ctx, w); err != nil {
			d.log.Warn("tab removal during teardown failed", "window", id, "error", err)
		}
	}
	if tg := w.stripOf; tg != nil {
		// The strip died out from under its tab group; release the tabs.
		if err := tg.Close(ctx, false); err != nil {
			d.log.Warn("tab group teardown failed", "strip", id, "error", err)
		}
	}
	if g := w.snapGroup; g != nil {
		g.detach(w, false)
	}

	delete(d.windows, id)
	for i, oid := range d.order {
		if oid == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	d.dropFocus(id)

	w.Teardown.Emit(w)
	d.WindowRemoved.Emit(w)
	d.log.Debug("window removed", "window", id)
	return nil
}

func (d *Desktop) newSnapGroup() *SnapGroup {
	d.nextGroup++
	g := &SnapGroup{id: d.nextGroup, desktop: d, boundsStale: true}
	d.snapGroups = append(d.snapGroups, g)
	return g
}

// NewSnapGroup creates and registers an empty snap group. The engine uses
// it as the merge destination while rebuilding memberships.
func (d *Desktop) NewSnapGroup() *SnapGroup { return d.newSnapGroup() }

func (d *Desktop) destroySnapGroup(g *SnapGroup) {
	for i, sg := range d.snapGroups {
		if sg == g {
			d.snapGroups = append(d.snapGroups[:i], d.snapGroups[i+1:]...)
			return
		}
	}
}

// SnapGroups returns every live snap group.
func (d *Desktop) SnapGroups() []*SnapGroup {
	out := make([]*SnapGroup, len(d.snapGroups))
	copy(out, d.snapGroups)
	return out
}

// SnapGroupByID looks a snap group up by id.
func (d *Desktop) SnapGroupByID(id int) (*SnapGroup, error) {
	for _, g := range d.snapGroups {
		if g.id == id {
			return g, nil
		}
	}
	return nil, fmt.Errorf("%w: snap group %d", ErrNotFound, id)
}

// CreateTabGroup registers a tab group around an already-initialized
// strip window. Construction happens after the strip's initial-state
// fetch resolved, so the group never exists half-initialized.
func (d *Desktop) CreateTabGroup(strip *Window, url string) *TabGroup {
	d.nextGroup++
	t := &TabGroup{
		id:            d.nextGroup,
		desktop:       d,
		strip:         strip,
		url:           url,
		restoreBounds: make(map[runtime.ID]geometry.Rect),
	}
	strip.stripOf = t
	d.tabGroups = append(d.tabGroups, t)
	return t
}

func (d *Desktop) removeTabGroup(t *TabGroup) {
	for i, tg := range d.tabGroups {
		if tg == t {
			d.tabGroups = append(d.tabGroups[:i], d.tabGroups[i+1:]...)
			return
		}
	}
}

// TabGroups returns every live tab group.
func (d *Desktop) TabGroups() []*TabGroup {
	out := make([]*TabGroup, len(d.tabGroups))
	copy(out, d.tabGroups)
	return out
}

// TabGroupByID looks a tab group up by id.
func (d *Desktop) TabGroupByID(id int) (*TabGroup, error) {
	for _, t := range d.tabGroups {
		if t.id == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: tab group %d", ErrNotFound, id)
}

// TabGroupOf returns the tab group containing window id as a tab, or an
// error.
func (d *Desktop) TabGroupOf(id runtime.ID) (*TabGroup, error) {
	w, err := d.Window(id)
	if err != nil {
		return nil, err
	}
	if w.tabGroup == nil {
		return nil, fmt.Errorf("%w: window %s is not tabbed", ErrNotFound, id)
	}
	return w.tabGroup, nil
}

// ForEachEntity visits every resolver entity on the desktop: standalone
// windows and multi-tab tab groups, each exactly once.
func (d *Desktop) ForEachEntity(fn func(Entity)) {
	for _, g := range d.snapGroups {
		for _, e := range g.Entities() {
			fn(e)
		}
	}
}

// RecordFocus moves id to the top of the z-order.
func (d *Desktop) RecordFocus(id runtime.ID) {
	d.dropFocus(id)
	d.zorder = append(d.zorder, id)
}

func (d *Desktop) dropFocus(id runtime.ID) {
	for i, zid := range d.zorder {
		if zid == id {
			d.zorder = append(d.zorder[:i], d.zorder[i+1:]...)
			return
		}
	}
}

// StackIndex returns the window's position in the z-order; higher means
// closer to the top. Unknown windows rank lowest.
func (d *Desktop) StackIndex(id runtime.ID) int {
	for i, zid := range d.zorder {
		if zid == id {
			return i
		}
	}
	return -1
}

// invalidateGroupBounds is a nil-safe cache invalidation helper.
func (d *Desktop) invalidateGroupBounds(g *SnapGroup) {
	if g != nil {
		g.InvalidateBounds()
	}
}
