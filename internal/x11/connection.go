// Package x11 is the production window-runtime adapter: it maps the
// engine's runtime interface onto an X11 display via xgb/xgbutil. The
// engine itself never sees an X type.
package x11

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/BurntSushi/xgbutil"
	"github.com/BurntSushi/xgbutil/xevent"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

// commitDebounce is how long after the last configure event a transform
// sequence counts as released. X11 has no native drag-commit
// notification, so the adapter synthesizes one.
const commitDebounce = 250 * time.Millisecond

// Adapter implements runtime.Runtime over one X11 connection.
type Adapter struct {
	xu   *xgbutil.XUtil
	root xproto.Window
	log  *slog.Logger

	events chan runtime.Event

	// pendingCommit holds the last transform per window awaiting the
	// debounce-synthesized commit.
	pendingCommit map[xproto.Window]runtime.TransformEvent
	commitTimer   *time.Timer
}

// New connects to the X server.
func New(log *slog.Logger) (*Adapter, error) {
	xu, err := xgbutil.NewConn()
	if err != nil {
		return nil, fmt.Errorf("%w: X connection: %v", runtime.ErrRuntimeFailure, err)
	}
	if log == nil {
		log = slog.Default()
	}
	a := &Adapter{
		xu:            xu,
		root:          xu.RootWin(),
		log:           log,
		events:        make(chan runtime.Event, 256),
		pendingCommit: make(map[xproto.Window]runtime.TransformEvent),
	}
	return a, nil
}

// Close disconnects from the X server.
func (a *Adapter) Close() {
	a.xu.Conn().Close()
}

// Events implements runtime.Runtime.
func (a *Adapter) Events() <-chan runtime.Event { return a.events }

// Serve pumps X events into the runtime event stream until ctx ends.
func (a *Adapter) Serve(ctx context.Context) error {
	if err := a.subscribeRoot(); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		xevent.Quit(a.xu)
	}()
	xevent.Main(a.xu)
	return ctx.Err()
}

// String implements suture's service naming.
func (a *Adapter) String() string { return "x11-adapter" }

// subscribeRoot listens for substructure notifications on the root
// window; per-window interest is added as windows are discovered.
func (a *Adapter) subscribeRoot() error {
	err := xproto.ChangeWindowAttributesChecked(a.xu.Conn(), a.root,
		xproto.CwEventMask, []uint32{
			xproto.EventMaskSubstructureNotify | xproto.EventMaskPropertyChange,
		}).Check()
	if err != nil {
		return fmt.Errorf("%w: root event mask: %v", runtime.ErrRuntimeFailure, err)
	}

	xevent.ConfigureNotifyFun(a.onConfigure).Connect(a.xu, a.root)
	xevent.DestroyNotifyFun(a.onDestroy).Connect(a.xu, a.root)
	xevent.MapNotifyFun(a.onMap).Connect(a.xu, a.root)
	xevent.UnmapNotifyFun(a.onUnmap).Connect(a.xu, a.root)
	xevent.CreateNotifyFun(a.onCreate).Connect(a.xu, a.root)
	xevent.PropertyNotifyFun(a.onRootProperty).Connect(a.xu, a.root)
	return nil
}

func (a *Adapter) onConfigure(xu *xgbutil.XUtil, ev xevent.ConfigureNotifyEvent) {
	rect := geometry.RectFromBounds(float64(ev.X), float64(ev.Y), float64(ev.Width), float64(ev.Height))
	tr := runtime.TransformEvent{
		ID:   a.idFor(ev.Window),
		Kind: runtime.TransformMove | runtime.TransformResize,
		Rect: rect,
	}
	a.emit(tr)
	a.armCommit(ev.Window, tr)
}

// armCommit (re)starts the debounce that synthesizes the commit events.
// One timer is shared by all windows: it fires once configure
// notifications stop arriving on every window, and then commits each
// pending window together.
func (a *Adapter) armCommit(win xproto.Window, tr runtime.TransformEvent) {
	a.pendingCommit[win] = tr
	if a.commitTimer != nil {
		a.commitTimer.Stop()
	}
	a.commitTimer = time.AfterFunc(commitDebounce, func() {
		for _, pending := range a.pendingCommit {
			a.emit(runtime.CommitEvent{ID: pending.ID, Kind: pending.Kind, Rect: pending.Rect})
		}
		a.pendingCommit = make(map[xproto.Window]runtime.TransformEvent)
	})
}

func (a *Adapter) onDestroy(xu *xgbutil.XUtil, ev xevent.DestroyNotifyEvent) {
	a.emit(runtime.ClosedEvent{ID: a.idFor(ev.Window)})
}

func (a *Adapter) onMap(xu *xgbutil.XUtil, ev xevent.MapNotifyEvent) {
	a.emit(runtime.HiddenChangedEvent{ID: a.idFor(ev.Window), Hidden: false})
}

func (a *Adapter) onUnmap(xu *xgbutil.XUtil, ev xevent.UnmapNotifyEvent) {
	a.emit(runtime.HiddenChangedEvent{ID: a.idFor(ev.Window), Hidden: true})
}

func (a *Adapter) onCreate(xu *xgbutil.XUtil, ev xevent.CreateNotifyEvent) {
	if !a.isNormalWindow(ev.Window) {
		return
	}
	state, err := a.windowState(ev.Window)
	if err != nil {
		a.log.Debug("created window state fetch failed", "window", ev.Window, "error", err)
		return
	}
	a.emit(runtime.CreatedEvent{ID: a.idFor(ev.Window), State: state})
}

func (a *Adapter) onRootProperty(xu *xgbutil.XUtil, ev xevent.PropertyNotifyEvent) {
	atomName, err := xproto.GetAtomName(a.xu.Conn(), ev.Atom).Reply()
	if err != nil || atomName.Name != "_NET_ACTIVE_WINDOW" {
		return
	}
	if active, err := a.activeWindow(); err == nil && active != 0 {
		a.emit(runtime.FocusedEvent{ID: a.idFor(active)})
	}
}

func (a *Adapter) emit(ev runtime.Event) {
	select {
	case a.events <- ev:
	default:
		a.log.Warn("runtime event dropped, engine stalled")
	}
}

// Pointer implements runtime.Runtime.
func (a *Adapter) Pointer(ctx context.Context) (geometry.Point, error) {
	reply, err := xproto.QueryPointer(a.xu.Conn(), a.root).Reply()
	if err != nil {
		return geometry.Point{}, fmt.Errorf("%w: query pointer: %v", runtime.ErrRuntimeFailure, err)
	}
	return geometry.Point{X: float64(reply.RootX), Y: float64(reply.RootY)}, nil
}
