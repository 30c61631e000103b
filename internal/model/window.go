package model

import (
	"context"
	"log/slog"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/internal/signal"
)

// Window is the engine's model of one OS window: cached state, lifecycle
// signals and membership pointers. All methods run on the engine loop.
type Window struct {
	desktop *Desktop
	id      runtime.ID
	handle  runtime.Handle
	state   runtime.WindowState

	ready   bool
	enabled bool

	snapGroup     *SnapGroup
	prevSnapGroup *SnapGroup
	tabGroup      *TabGroup
	// stripOf is set on the special window hosting a tab-strip UI.
	stripOf *TabGroup

	// cohesionMoves counts programmatic moves issued by the engine to keep
	// the snap group together. Observed transforms are classified as
	// non-originated while the counter is positive.
	cohesionMoves int

	Modified  signal.Signal[ModifiedEvent]
	Transform signal.Signal[TransformEvent]
	Commit    signal.Signal[TransformEvent]
	Teardown  signal.Signal[*Window]
}

// ID returns the window's identity.
func (w *Window) ID() runtime.ID { return w.id }

// Handle returns the runtime capability for this window.
func (w *Window) Handle() runtime.Handle { return w.handle }

// State returns the cached window state.
func (w *Window) State() runtime.WindowState { return w.state }

// Rect returns the cached bounds.
func (w *Window) Rect() geometry.Rect { return w.state.Rect }

// EntityID implements Entity.
func (w *Window) EntityID() string { return "window:" + w.id.String() }

// Contains implements Entity.
func (w *Window) Contains(p geometry.Point) bool { return w.state.Rect.Contains(p) }

// Ready reports whether runtime commands are still expected to succeed.
func (w *Window) Ready() bool { return w.ready }

// Enabled reports the window's effective engine participation.
func (w *Window) Enabled() bool { return w.enabled }

// SnapGroup returns the owning snap group. Non-nil while the window is
// alive.
func (w *Window) SnapGroup() *SnapGroup { return w.snapGroup }

// PrevSnapGroup returns the group the window left most recently, used for
// re-snap after an aborted move.
func (w *Window) PrevSnapGroup() *SnapGroup { return w.prevSnapGroup }

// TabGroup returns the tab group the window belongs to, or nil.
func (w *Window) TabGroup() *TabGroup { return w.tabGroup }

// Eligible reports whether the window may stay in a multi-window snap
// group: framed, visible, normal state, enabled and ready.
func (w *Window) Eligible() bool {
	return w.ready && w.enabled && w.state.Frame && !w.state.Hidden &&
		w.state.State == runtime.StateNormal
}

// Properties is a partial update applied through ApplyProperties.
type Properties struct {
	Opacity *float64
	Hidden  *bool
}

// ApplyProperties pushes a property delta to the OS window and refreshes
// the cache.
func (w *Window) ApplyProperties(ctx context.Context, delta Properties) error {
	if delta.Opacity != nil {
		err := w.command(ctx, "opacity", func(ctx context.Context) error {
			return w.handle.SetOpacity(ctx, *delta.Opacity)
		})
		if err != nil {
			return err
		}
		w.state.Opacity = *delta.Opacity
	}
	if delta.Hidden != nil {
		if *delta.Hidden {
			return w.Hide(ctx)
		}
		return w.Show(ctx)
	}
	return nil
}

// SendMessage queues a client event for this window.
func (w *Window) SendMessage(kind MessageKind, group int) {
	w.desktop.Messages.Emit(ClientMessage{Window: w.id, Kind: kind, Group: group})
}

// MarkNotReady records a failed runtime command; subsequent commands are
// no-ops. No teardown is scheduled: the window stays registered until the
// runtime reports it closed or the reconciler no longer finds it.
func (w *Window) MarkNotReady() {
	if !w.ready {
		return
	}
	w.ready = false
	w.desktop.log.Warn("window marked not-ready", "window", w.id)
}

// ExpectCohesionMove tells the window that its next observed transform is
// engine-driven group motion rather than user input.
func (w *Window) ExpectCohesionMove() { w.cohesionMoves++ }

// ObserveTransform refreshes the cached rect from a runtime transform
// event and re-emits it, classified by origin.
func (w *Window) ObserveTransform(kind runtime.TransformKind, rect geometry.Rect) TransformEvent {
	prev := w.state.Rect
	w.state.Rect = rect
	originated := w.cohesionMoves == 0
	if !originated {
		w.cohesionMoves--
	}
	ev := TransformEvent{Window: w, Kind: kind, Originated: originated, PrevRect: prev}
	w.Transform.Emit(ev)
	return ev
}

// ObserveCommit refreshes the cached rect from a runtime commit event and
// re-emits it. Commits are never classified as cohesion motion; the
// counter is cleared so a stale expectation cannot leak into the next
// drag.
func (w *Window) ObserveCommit(kind runtime.TransformKind, rect geometry.Rect) TransformEvent {
	prev := w.state.Rect
	w.state.Rect = rect
	w.cohesionMoves = 0
	ev := TransformEvent{Window: w, Kind: kind, Originated: true, PrevRect: prev}
	w.Commit.Emit(ev)
	return ev
}

// ObserveState records a state change and emits Modified.
func (w *Window) ObserveState(state runtime.StateKind) {
	if w.state.State == state {
		return
	}
	w.state.State = state
	w.Modified.Emit(ModifiedEvent{Window: w})
}

// ObserveFrame records a frame toggle and emits Modified.
func (w *Window) ObserveFrame(frame bool) {
	if w.state.Frame == frame {
		return
	}
	w.state.Frame = frame
	w.Modified.Emit(ModifiedEvent{Window: w})
}

// ObserveHidden records a visibility change and emits Modified.
func (w *Window) ObserveHidden(hidden bool) {
	if w.state.Hidden == hidden {
		return
	}
	w.state.Hidden = hidden
	w.Modified.Emit(ModifiedEvent{Window: w})
}

// SetEnabled applies the effective configuration value and emits Modified.
// Memberships are adjusted by the engine's caller, not by this method.
func (w *Window) SetEnabled(enabled bool) {
	if w.enabled == enabled {
		return
	}
	w.enabled = enabled
	w.Modified.Emit(ModifiedEvent{Window: w})
}

// The command wrappers below refresh the cached state optimistically on
// success; the runtime's echo event later confirms the same values.

// MoveTo issues a runtime move; failures mark the window not-ready.
func (w *Window) MoveTo(ctx context.Context, pos geometry.Point) error {
	err := w.command(ctx, "move", func(ctx context.Context) error {
		return w.handle.MoveTo(ctx, pos)
	})
	if err == nil {
		w.state.Rect.Center = pos
		if w.snapGroup != nil {
			w.snapGroup.InvalidateBounds()
		}
	}
	return err
}

// SetBounds issues a runtime bounds change; failures mark the window
// not-ready.
func (w *Window) SetBounds(ctx context.Context, rect geometry.Rect) error {
	err := w.command(ctx, "setBounds", func(ctx context.Context) error {
		return w.handle.SetBounds(ctx, rect)
	})
	if err == nil {
		w.state.Rect = rect
		if w.snapGroup != nil {
			w.snapGroup.InvalidateBounds()
		}
	}
	return err
}

// ResizeTo issues a runtime resize; failures mark the window not-ready.
func (w *Window) ResizeTo(ctx context.Context, size geometry.Point, anchor runtime.ResizeAnchor) error {
	err := w.command(ctx, "resize", func(ctx context.Context) error {
		return w.handle.ResizeTo(ctx, size, anchor)
	})
	if err == nil {
		min := w.state.Rect.Min()
		w.state.Rect = geometry.RectFromBounds(min.X, min.Y, size.X, size.Y)
		if w.snapGroup != nil {
			w.snapGroup.InvalidateBounds()
		}
	}
	return err
}

// Show unhides the OS window.
func (w *Window) Show(ctx context.Context) error {
	err := w.command(ctx, "show", func(ctx context.Context) error {
		return w.handle.Show(ctx)
	})
	if err == nil {
		w.state.Hidden = false
	}
	return err
}

// Hide hides the OS window.
func (w *Window) Hide(ctx context.Context) error {
	err := w.command(ctx, "hide", func(ctx context.Context) error {
		return w.handle.Hide(ctx)
	})
	if err == nil {
		w.state.Hidden = true
	}
	return err
}

func (w *Window) command(ctx context.Context, name string, fn func(context.Context) error) error {
	if !w.ready {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, runtime.DefaultCommandTimeout)
	defer cancel()
	if err := fn(ctx); err != nil {
		w.desktop.log.Error("runtime command failed",
			slog.String("command", name), slog.Any("window", w.id), slog.Any("error", err))
		w.MarkNotReady()
		return err
	}
	return nil
}
