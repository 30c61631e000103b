package x11

import (
	"context"
	"fmt"
	"math"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

// handle implements runtime.Handle for one X window.
type handle struct {
	adapter *Adapter
	win     xproto.Window
	id      runtime.ID
}

func (a *Adapter) handleFor(win xproto.Window) runtime.Handle {
	return &handle{adapter: a, win: win, id: a.idFor(win)}
}

func (h *handle) ID() runtime.ID { return h.id }

func (h *handle) MoveTo(ctx context.Context, pos geometry.Point) error {
	rect, err := h.Bounds(ctx)
	if err != nil {
		return err
	}
	min := pos.Sub(rect.Half)
	return h.wrap("move", h.adapter.moveResize(h.win,
		int(min.X), int(min.Y), int(rect.Width()), int(rect.Height())))
}

func (h *handle) ResizeTo(ctx context.Context, size geometry.Point, anchor runtime.ResizeAnchor) error {
	rect, err := h.Bounds(ctx)
	if err != nil {
		return err
	}
	min := rect.Min()
	x, y := min.X, min.Y
	switch anchor {
	case runtime.AnchorTopRight:
		x = rect.Max().X - size.X
	case runtime.AnchorBottomLeft:
		y = rect.Max().Y - size.Y
	case runtime.AnchorBottomRight:
		x = rect.Max().X - size.X
		y = rect.Max().Y - size.Y
	}
	return h.wrap("resize", h.adapter.moveResize(h.win, int(x), int(y), int(size.X), int(size.Y)))
}

func (h *handle) SetBounds(ctx context.Context, rect geometry.Rect) error {
	min := rect.Min()
	return h.wrap("setBounds", h.adapter.moveResize(h.win,
		int(min.X), int(min.Y), int(rect.Width()), int(rect.Height())))
}

func (h *handle) Show(ctx context.Context) error {
	return h.wrap("show", xproto.MapWindowChecked(h.adapter.xu.Conn(), h.win).Check())
}

func (h *handle) Hide(ctx context.Context) error {
	return h.wrap("hide", xproto.UnmapWindowChecked(h.adapter.xu.Conn(), h.win).Check())
}

func (h *handle) BringToFront(ctx context.Context) error {
	err := xproto.ConfigureWindowChecked(h.adapter.xu.Conn(), h.win,
		xproto.ConfigWindowStackMode, []uint32{xproto.StackModeAbove}).Check()
	return h.wrap("raise", err)
}

// SetOpacity writes _NET_WM_WINDOW_OPACITY; compositing WMs apply it.
func (h *handle) SetOpacity(ctx context.Context, opacity float64) error {
	opacity = math.Max(0, math.Min(1, opacity))
	return h.wrap("opacity", ewmh.WmWindowOpacitySet(h.adapter.xu, h.win, opacity))
}

func (h *handle) Close(ctx context.Context, force bool) error {
	if force {
		return h.wrap("destroy",
			xproto.DestroyWindowChecked(h.adapter.xu.Conn(), h.win).Check())
	}
	return h.wrap("close", ewmh.CloseWindow(h.adapter.xu, h.win))
}

func (h *handle) Bounds(ctx context.Context) (geometry.Rect, error) {
	geom, err := xwindow.New(h.adapter.xu, h.win).DecorGeometry()
	if err != nil {
		return geometry.Rect{}, fmt.Errorf("%w: geometry: %v", runtime.ErrRuntimeFailure, err)
	}
	return geometry.RectFromBounds(
		float64(geom.X()), float64(geom.Y()),
		float64(geom.Width()), float64(geom.Height()),
	), nil
}

func (h *handle) wrap(op string, err error) error {
	if err != nil {
		return fmt.Errorf("%w: %s %s: %v", runtime.ErrRuntimeFailure, op, h.id, err)
	}
	return nil
}

// CreateWindow implements runtime.Runtime: engine-owned utility windows
// (tab strips, drag previews) are plain override-redirect windows; the
// hosted UI is the decorator's concern.
func (a *Adapter) CreateWindow(ctx context.Context, id runtime.ID, rect geometry.Rect, opts runtime.UtilityOptions) (runtime.Handle, error) {
	win, err := xwindow.Generate(a.xu)
	if err != nil {
		return nil, fmt.Errorf("%w: window id allocation: %v", runtime.ErrRuntimeFailure, err)
	}
	min := rect.Min()
	err = win.CreateChecked(a.root,
		int(min.X), int(min.Y), int(rect.Width()), int(rect.Height()),
		xproto.CwOverrideRedirect, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: create window: %v", runtime.ErrRuntimeFailure, err)
	}

	h := &handle{adapter: a, win: win.Id, id: id}
	if opts.Opacity > 0 && opts.Opacity < 1 {
		if err := h.SetOpacity(ctx, opts.Opacity); err != nil {
			a.log.Debug("utility window opacity failed", "window", id, "error", err)
		}
	}
	if opts.AlwaysOnTop {
		_ = h.BringToFront(ctx)
	}
	win.Map()
	return h, nil
}
