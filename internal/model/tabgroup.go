package model

import (
	"context"
	"fmt"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

// TabGroup is a set of managed windows sharing one tab-strip window. All
// tabs share identical body bounds; only the active tab's body is shown.
// A tab group with fewer than 2 tabs tears itself down.
type TabGroup struct {
	id      int
	desktop *Desktop
	strip   *Window
	tabs    []*Window
	active  *Window

	url  string
	body geometry.Rect

	// Bounds each tab held before it was tabbed, restored on detach.
	restoreBounds map[runtime.ID]geometry.Rect
}

// ID returns the group's monotonically assigned id.
func (t *TabGroup) ID() int { return t.id }

// Strip returns the managed tab-strip window.
func (t *TabGroup) Strip() *Window { return t.strip }

// Tabs returns the ordered tab list.
func (t *TabGroup) Tabs() []*Window { return t.tabs }

// TabIDs returns the ordered tab identities.
func (t *TabGroup) TabIDs() []runtime.ID {
	ids := make([]runtime.ID, len(t.tabs))
	for i, w := range t.tabs {
		ids[i] = w.id
	}
	return ids
}

// Active returns the active tab.
func (t *TabGroup) Active() *Window { return t.active }

// TabCount returns the number of tabs.
func (t *TabGroup) TabCount() int { return len(t.tabs) }

// URL returns the tab-strip UI url.
func (t *TabGroup) URL() string { return t.url }

// Body returns the shared tab body region.
func (t *TabGroup) Body() geometry.Rect { return t.body }

// HasTab reports whether w is one of the tabs.
func (t *TabGroup) HasTab(w *Window) bool {
	for _, tab := range t.tabs {
		if tab == w {
			return true
		}
	}
	return false
}

// EntityID implements Entity.
func (t *TabGroup) EntityID() string { return fmt.Sprintf("tabgroup:%d", t.id) }

// Rect implements Entity: the strip and active body presented as one
// rectangle.
func (t *TabGroup) Rect() geometry.Rect {
	if t.active == nil {
		return t.strip.Rect()
	}
	body := t.active.Rect()
	stripHalf := t.strip.Rect().Half
	return geometry.Rect{
		Center: geometry.Point{X: body.Center.X, Y: body.Center.Y - stripHalf.Y},
		Half:   geometry.Point{X: body.Half.X, Y: body.Half.Y + stripHalf.Y},
	}
}

// Contains implements Entity.
func (t *TabGroup) Contains(p geometry.Point) bool { return t.Rect().Contains(p) }

// AddTab appends w to the tab list, or inserts at index when 0 <= index
// <= len(tabs). The first tab defines the shared body region; later tabs
// are repositioned onto it and hidden unless activated. Adding a tab that
// is already in this group is a no-op; a tab of another group is an
// error.
func (t *TabGroup) AddTab(ctx context.Context, w *Window, index int) error {
	if t.HasTab(w) {
		return nil
	}
	if w.tabGroup != nil {
		return fmt.Errorf("%w: window %s is already tabbed", ErrInvalidState, w.id)
	}
	if w == t.strip {
		return fmt.Errorf("%w: cannot tab the tab strip", ErrInvalidState)
	}

	t.restoreBounds[w.id] = w.Rect()

	if len(t.tabs) == 0 {
		t.body = w.Rect()
	} else if err := w.SetBounds(ctx, t.body); err != nil {
		delete(t.restoreBounds, w.id)
		return err
	}

	w.tabGroup = t
	t.strip.snapGroup.Adopt(w)

	if index < 0 || index > len(t.tabs) {
		index = len(t.tabs)
	}
	t.tabs = append(t.tabs, nil)
	copy(t.tabs[index+1:], t.tabs[index:])
	t.tabs[index] = w

	if t.active == nil {
		t.active = w
		if err := w.Show(ctx); err != nil {
			return err
		}
	} else if err := w.Hide(ctx); err != nil {
		return err
	}

	w.SendMessage(MsgJoinTabGroup, t.id)
	t.refreshMembership()
	return nil
}

// RemoveTab detaches w: its pre-tab bounds are restored, it leaves the
// strip's snap group, and the group collapses if fewer than 2 tabs
// remain.
func (t *TabGroup) RemoveTab(ctx context.Context, w *Window) error {
	idx := -1
	for i, tab := range t.tabs {
		if tab == w {
			idx = i
			break
		}
	}
	if idx == -1 {
		return fmt.Errorf("%w: window %s is not a tab of group %d", ErrNotFound, w.id, t.id)
	}

	t.tabs = append(t.tabs[:idx], t.tabs[idx+1:]...)

	if t.active == w {
		// Next in order; wrap to the previous tab when the last was
		// removed.
		next := idx
		if next >= len(t.tabs) {
			next = len(t.tabs) - 1
		}
		t.active = nil
		if next >= 0 {
			if err := t.SwitchTab(ctx, t.tabs[next]); err != nil {
				return err
			}
		}
	}

	t.detachTab(ctx, w)
	t.refreshMembership()

	if len(t.tabs) < 2 {
		return t.collapse(ctx)
	}
	return nil
}

// SwitchTab makes w the active tab. Switching to the already-active tab
// is a no-op.
func (t *TabGroup) SwitchTab(ctx context.Context, w *Window) error {
	if !t.HasTab(w) {
		return fmt.Errorf("%w: window %s is not a tab of group %d", ErrNotFound, w.id, t.id)
	}
	if t.active == w {
		return nil
	}
	if prev := t.active; prev != nil {
		if err := prev.Hide(ctx); err != nil {
			return err
		}
	}
	t.active = w
	if err := w.Show(ctx); err != nil {
		return err
	}
	if err := w.Handle().BringToFront(ctx); err != nil {
		w.MarkNotReady()
	}
	w.SendMessage(MsgTabActivated, t.id)
	t.desktop.invalidateGroupBounds(t.strip.snapGroup)
	return nil
}

// RealignApps repositions every tab onto the shared body region and the
// strip above it.
func (t *TabGroup) RealignApps(ctx context.Context) error {
	stripHalf := t.strip.Rect().Half
	stripRect := geometry.Rect{
		Center: geometry.Point{
			X: t.body.Center.X,
			Y: t.body.Min().Y - stripHalf.Y,
		},
		Half: geometry.Point{X: t.body.Half.X, Y: stripHalf.Y},
	}
	if err := t.strip.SetBounds(ctx, stripRect); err != nil {
		return err
	}
	for _, tab := range t.tabs {
		if err := tab.SetBounds(ctx, t.body); err != nil {
			return err
		}
	}
	return nil
}

// SetBody moves the shared body region and realigns.
func (t *TabGroup) SetBody(ctx context.Context, body geometry.Rect) error {
	t.body = body
	return t.RealignApps(ctx)
}

// Close tears the group down. With closeApps the tab windows are closed;
// otherwise they are restored as standalone windows.
func (t *TabGroup) Close(ctx context.Context, closeApps bool) error {
	for len(t.tabs) > 0 {
		w := t.tabs[len(t.tabs)-1]
		t.tabs = t.tabs[:len(t.tabs)-1]
		t.detachTab(ctx, w)
		if closeApps {
			if err := w.Handle().Close(ctx, false); err != nil {
				w.MarkNotReady()
			}
		}
	}
	t.active = nil
	return t.destroy(ctx)
}

// detachTab clears membership and restores the window's pre-tab bounds.
func (t *TabGroup) detachTab(ctx context.Context, w *Window) {
	w.tabGroup = nil
	if w.snapGroup != nil {
		w.snapGroup.RemoveWindowSilent(w)
	}
	if prev, ok := t.restoreBounds[w.id]; ok {
		delete(t.restoreBounds, w.id)
		_ = w.SetBounds(ctx, prev)
	}
	_ = w.Show(ctx)
	w.SendMessage(MsgLeaveTabGroup, t.id)
}

// collapse handles the < 2 tabs case: the surviving tab (if any) becomes
// standalone and the strip window is closed.
func (t *TabGroup) collapse(ctx context.Context) error {
	if len(t.tabs) == 1 {
		w := t.tabs[0]
		t.tabs = nil
		t.active = nil
		t.detachTab(ctx, w)
	}
	return t.destroy(ctx)
}

func (t *TabGroup) destroy(ctx context.Context) error {
	t.desktop.removeTabGroup(t)
	strip := t.strip
	if strip != nil {
		strip.stripOf = nil
		if err := strip.Handle().Close(ctx, true); err != nil {
			strip.MarkNotReady()
		}
		// Teardown of the strip's managed window follows from the
		// runtime's closed event; reconciler covers a lost event.
	}
	return nil
}

// refreshMembership rebuilds the owning snap group's entity list and root
// after tab membership changed.
func (t *TabGroup) refreshMembership() {
	if t.strip != nil && t.strip.snapGroup != nil {
		t.strip.snapGroup.refreshDerived()
	}
}
