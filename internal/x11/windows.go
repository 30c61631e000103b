package x11

import (
	"context"
	"fmt"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil/ewmh"
	"github.com/BurntSushi/xgbutil/icccm"
	"github.com/BurntSushi/xgbutil/xwindow"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

// Windows implements runtime.Runtime: it enumerates the client list and
// wraps each normal window in a handle.
func (a *Adapter) Windows(ctx context.Context) ([]runtime.WindowInfo, error) {
	clients, err := ewmh.ClientListGet(a.xu)
	if err != nil {
		return nil, fmt.Errorf("%w: client list: %v", runtime.ErrRuntimeFailure, err)
	}

	var infos []runtime.WindowInfo
	for _, win := range clients {
		if !a.isNormalWindow(win) {
			continue
		}
		state, err := a.windowState(win)
		if err != nil {
			a.log.Debug("window state fetch failed", "window", win, "error", err)
			continue
		}
		infos = append(infos, runtime.WindowInfo{
			ID:     a.idFor(win),
			State:  state,
			Handle: a.handleFor(win),
		})
	}
	return infos, nil
}

// idFor derives a stable window identity. X has no uuid/name split the
// way a multi-window application runtime does, so the WM_CLASS class
// plays the uuid role and the window id the name role.
func (a *Adapter) idFor(win xproto.Window) runtime.ID {
	uuid := "x11"
	if hints, err := icccm.WmClassGet(a.xu, win); err == nil && hints.Class != "" {
		uuid = hints.Class
	}
	return runtime.ID{UUID: uuid, Name: fmt.Sprintf("0x%x", uint32(win))}
}

// isNormalWindow checks if a window is a normal application window.
func (a *Adapter) isNormalWindow(win xproto.Window) bool {
	types, err := ewmh.WmWindowTypeGet(a.xu, win)
	if err != nil {
		// If we can't determine type, assume it's normal.
		return true
	}
	for _, t := range types {
		if t == "_NET_WM_WINDOW_TYPE_NORMAL" {
			return true
		}
		// Reject desktop, dock, splash, etc.
		if t == "_NET_WM_WINDOW_TYPE_DESKTOP" ||
			t == "_NET_WM_WINDOW_TYPE_DOCK" ||
			t == "_NET_WM_WINDOW_TYPE_SPLASH" ||
			t == "_NET_WM_WINDOW_TYPE_NOTIFICATION" {
			return false
		}
	}
	return len(types) == 0
}

func (a *Adapter) windowState(win xproto.Window) (runtime.WindowState, error) {
	geom, err := xwindow.New(a.xu, win).DecorGeometry()
	if err != nil {
		return runtime.WindowState{}, err
	}
	state := runtime.WindowState{
		Rect: geometry.RectFromBounds(
			float64(geom.X()), float64(geom.Y()),
			float64(geom.Width()), float64(geom.Height()),
		),
		Frame:   true,
		Opacity: 1,
		State:   runtime.StateNormal,
	}

	states, err := ewmh.WmStateGet(a.xu, win)
	if err == nil {
		maxH, maxV := false, false
		for _, s := range states {
			switch s {
			case "_NET_WM_STATE_HIDDEN":
				state.State = runtime.StateMinimized
			case "_NET_WM_STATE_MAXIMIZED_HORZ":
				maxH = true
			case "_NET_WM_STATE_MAXIMIZED_VERT":
				maxV = true
			}
		}
		if maxH && maxV && state.State == runtime.StateNormal {
			state.State = runtime.StateMaximized
		}
	}

	if hints, err := icccm.WmNormalHintsGet(a.xu, win); err == nil {
		state.MinSize = geometry.Point{X: float64(hints.MinWidth), Y: float64(hints.MinHeight)}
		state.MaxSize = geometry.Point{X: float64(hints.MaxWidth), Y: float64(hints.MaxHeight)}
	}
	return state, nil
}

func (a *Adapter) activeWindow() (xproto.Window, error) {
	return ewmh.ActiveWindowGet(a.xu)
}

// unmaximizeWindow removes maximized state from a window before a
// programmatic move or resize; maximized windows ignore geometry
// requests on most WMs.
func (a *Adapter) unmaximizeWindow(win xproto.Window) error {
	states, err := ewmh.WmStateGet(a.xu, win)
	if err != nil {
		return err
	}
	for _, state := range states {
		if state == "_NET_WM_STATE_MAXIMIZED_HORZ" || state == "_NET_WM_STATE_MAXIMIZED_VERT" {
			ewmh.WmStateReq(a.xu, win, 0, state)
		}
	}
	return nil
}

// moveResize moves and resizes a window, preferring EWMH for WM
// compatibility and falling back to direct manipulation.
func (a *Adapter) moveResize(win xproto.Window, x, y, width, height int) error {
	if err := a.unmaximizeWindow(win); err != nil {
		a.log.Debug("unmaximize before move failed", "window", win, "error", err)
	}
	if err := ewmh.MoveresizeWindow(a.xu, win, x, y, width, height); err != nil {
		xwindow.New(a.xu, win).MoveResize(x, y, width, height)
	}
	return nil
}
