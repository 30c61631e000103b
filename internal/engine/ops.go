package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/internal/store"
)

// The operations in this file are the engine side of the client API.
// They must run on the engine loop; the IPC, MCP and HTTP surfaces call
// them through Do.

// Undock removes the window from its snap group. A solo window is left
// untouched.
func (e *Engine) Undock(ctx context.Context, id runtime.ID) error {
	w, err := e.desktop.Window(id)
	if err != nil {
		return err
	}
	if g := w.SnapGroup(); g != nil && g.Size() >= 2 {
		e.removeAndSplit(ctx, w)
	}
	return nil
}

// ExplodeGroup dissolves the snap group containing id into singletons.
func (e *Engine) ExplodeGroup(ctx context.Context, id runtime.ID) error {
	w, err := e.desktop.Window(id)
	if err != nil {
		return err
	}
	g := w.SnapGroup()
	if g == nil || g.Size() < 2 {
		return nil
	}
	for _, member := range append([]*model.Window(nil), g.Windows()...) {
		if member.SnapGroup() == g {
			g.RemoveWindow(member)
		}
	}
	return nil
}

// TabInfo describes one tab group to clients.
type TabInfo struct {
	Group  int          `json:"group"`
	Tabs   []runtime.ID `json:"tabs"`
	Active runtime.ID   `json:"active"`
	URL    string       `json:"url"`
}

// GetTabs lists every tab group.
func (e *Engine) GetTabs() []TabInfo {
	groups := e.desktop.TabGroups()
	out := make([]TabInfo, 0, len(groups))
	for _, tg := range groups {
		info := TabInfo{Group: tg.ID(), Tabs: tg.TabIDs(), URL: tg.URL()}
		if a := tg.Active(); a != nil {
			info.Active = a.ID()
		}
		out = append(out, info)
	}
	return out
}

// CreateTabGroup tabs the listed windows together in order. The first
// window's bounds become the shared body region and it becomes the
// active tab.
func (e *Engine) CreateTabGroup(ctx context.Context, ids []runtime.ID) (*model.TabGroup, error) {
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: a tab group needs at least 2 windows", model.ErrInvalidState)
	}
	windows := make([]*model.Window, 0, len(ids))
	for _, id := range ids {
		w, err := e.desktop.Window(id)
		if err != nil {
			return nil, err
		}
		if w.TabGroup() != nil {
			return nil, fmt.Errorf("%w: window %s is already tabbed", model.ErrInvalidState, id)
		}
		r := e.store.Resolve(store.WindowScope(id.UUID, id.Name))
		if !r.Enabled || !r.Tab {
			return nil, fmt.Errorf("%w: %s", model.ErrDisabled, id)
		}
		windows = append(windows, w)
	}

	first := windows[0]
	scope := store.WindowScope(first.ID().UUID, first.ID().Name)
	resolved := e.store.Resolve(scope)

	body := first.Rect()
	tg, err := e.newTabGroup(ctx, body, resolved)
	if err != nil {
		return nil, err
	}
	for _, w := range windows {
		if err := tg.AddTab(ctx, w, -1); err != nil {
			return nil, err
		}
	}
	return tg, nil
}

// newTabGroup creates the strip window above body and registers the tab
// group once the strip's state is known.
func (e *Engine) newTabGroup(ctx context.Context, body geometry.Rect, resolved store.Resolved) (*model.TabGroup, error) {
	height := float64(resolved.TabstripHeight)
	stripRect := geometry.Rect{
		Center: geometry.Point{X: body.Center.X, Y: body.Min().Y - height/2},
		Half:   geometry.Point{X: body.Half.X, Y: height / 2},
	}
	stripID := runtime.ID{UUID: "layouts-service", Name: "tabstrip-" + uuid.NewString()}
	handle, err := e.rt.CreateWindow(ctx, stripID, stripRect, runtime.UtilityOptions{
		URL:         resolved.TabstripURL,
		Frameless:   true,
		AlwaysOnTop: false,
		Opacity:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: tab strip creation: %v", runtime.ErrRuntimeFailure, err)
	}

	// The strip's true bounds come from the runtime after creation; the
	// group is only constructed once that fetch resolved.
	stripBounds, err := handle.Bounds(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: tab strip state fetch: %v", runtime.ErrRuntimeFailure, err)
	}
	stripState := runtime.WindowState{Rect: stripBounds, Frame: false, Opacity: 1}
	strip, err := e.desktop.CreateWindow(stripID, stripState, handle)
	if err != nil {
		return nil, err
	}
	return e.desktop.CreateTabGroup(strip, resolved.TabstripURL), nil
}

// AddTab appends window id to tab group groupID.
func (e *Engine) AddTab(ctx context.Context, groupID int, id runtime.ID) error {
	tg, err := e.desktop.TabGroupByID(groupID)
	if err != nil {
		return err
	}
	w, err := e.desktop.Window(id)
	if err != nil {
		return err
	}
	r := e.store.Resolve(store.WindowScope(id.UUID, id.Name))
	if !r.Enabled || !r.Tab {
		return fmt.Errorf("%w: %s", model.ErrDisabled, id)
	}
	return tg.AddTab(ctx, w, -1)
}

// RemoveTab detaches window id from its tab group.
func (e *Engine) RemoveTab(ctx context.Context, id runtime.ID) error {
	tg, err := e.desktop.TabGroupOf(id)
	if err != nil {
		return err
	}
	w, err := e.desktop.Window(id)
	if err != nil {
		return err
	}
	return tg.RemoveTab(ctx, w)
}

// SwitchTab activates window id inside tab group groupID.
func (e *Engine) SwitchTab(ctx context.Context, groupID int, id runtime.ID) error {
	tg, err := e.desktop.TabGroupByID(groupID)
	if err != nil {
		return err
	}
	w, err := e.desktop.Window(id)
	if err != nil {
		return err
	}
	return tg.SwitchTab(ctx, w)
}

// SetActiveTab activates window id in whatever tab group holds it.
func (e *Engine) SetActiveTab(ctx context.Context, id runtime.ID) error {
	tg, err := e.desktop.TabGroupOf(id)
	if err != nil {
		return err
	}
	w, err := e.desktop.Window(id)
	if err != nil {
		return err
	}
	return tg.SwitchTab(ctx, w)
}

// undoRecord captures the last snap commit so it can be reverted once.
type undoRecord struct {
	windows []runtime.ID
	offset  geometry.Point
}

// Undo reverts the most recent snap commit: the merged windows return to
// their pre-commit positions in a group of their own. It is a one-shot.
func (e *Engine) Undo(ctx context.Context) error {
	undo := e.lastCommit
	if undo == nil {
		return fmt.Errorf("%w: nothing to undo", model.ErrNotFound)
	}
	e.lastCommit = nil

	var restored *model.SnapGroup
	for _, id := range undo.windows {
		w, err := e.desktop.Window(id)
		if err != nil {
			continue
		}
		if restored == nil {
			if g := w.SnapGroup(); g != nil && g.Size() >= 2 {
				g.RemoveWindow(w)
			}
			restored = w.SnapGroup()
		} else {
			restored.AddWindow(w)
		}
		w.ExpectCohesionMove()
		if err := w.MoveTo(ctx, w.Rect().Center.Sub(undo.offset)); err != nil {
			e.log.Warn("undo move failed", "window", id, "error", err)
		}
	}
	return nil
}
