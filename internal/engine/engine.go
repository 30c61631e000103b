// Package engine is the top-level orchestrator: it pumps runtime events
// onto a single task loop, routes drags through the resolvers, commits
// snap and tab actions on release, and keeps group memberships valid as
// windows and configuration change.
package engine

import (
	"context"
	"log/slog"

	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/internal/resolver"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/internal/store"
)

// Config assembles an engine.
type Config struct {
	Runtime runtime.Runtime
	Store   *store.Store
	Logger  *slog.Logger

	// SnapRadius and MinOverlap override the resolver defaults when
	// positive.
	SnapRadius float64
	MinOverlap float64
}

// Engine owns the desktop model and serializes every mutation onto its
// task loop. External surfaces (IPC, MCP, HTTP) call in through Do.
type Engine struct {
	log     *slog.Logger
	rt      runtime.Runtime
	store   *store.Store
	desktop *model.Desktop

	snap *resolver.SnapResolver
	tab  *resolver.TabResolver

	previews *previewPool

	tasks chan func()

	drag     *dragState
	watchers map[runtime.ID]*store.Watcher

	lastCommit *undoRecord
}

// New assembles an engine from cfg. Call Serve to start it.
func New(cfg Config) *Engine {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	st := cfg.Store
	if st == nil {
		st = store.New()
	}
	snap := resolver.NewSnapResolver()
	if cfg.SnapRadius > 0 {
		snap.Radius = cfg.SnapRadius
	}
	if cfg.MinOverlap > 0 {
		snap.MinOverlap = cfg.MinOverlap
	}
	return &Engine{
		log:      log,
		rt:       cfg.Runtime,
		store:    st,
		desktop:  model.New(log),
		snap:     snap,
		tab:      resolver.NewTabResolver(),
		previews: newPreviewPool(cfg.Runtime, log),
		tasks:    make(chan func(), 64),
		watchers: make(map[runtime.ID]*store.Watcher),
	}
}

// Desktop exposes the model for read-side surfaces. Callers outside the
// task loop must go through Do.
func (e *Engine) Desktop() *model.Desktop { return e.desktop }

// Store returns the configuration store.
func (e *Engine) Store() *store.Store { return e.store }

// String implements suture's service naming.
func (e *Engine) String() string { return "layout-engine" }

// Serve runs the engine loop until ctx is cancelled: initial window
// enumeration, preview pool warm-up, then serialized event and task
// dispatch.
func (e *Engine) Serve(ctx context.Context) error {
	if err := e.bootstrap(ctx); err != nil {
		return err
	}

	events := e.rt.Events()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			e.handleEvent(ctx, ev)
			// Coalesce transform bursts: anything already queued is
			// folded into this turn so the resolver only runs against
			// the newest position per window.
			e.drainEvents(ctx, events)
		case fn := <-e.tasks:
			fn()
		}
	}
}

func (e *Engine) bootstrap(ctx context.Context) error {
	infos, err := e.rt.Windows(ctx)
	if err != nil {
		return err
	}
	for _, info := range infos {
		e.registerWindow(ctx, info)
	}
	pool := e.store.Resolve(store.ServiceScope()).PreviewPool
	e.previews.warmUp(ctx, pool)
	e.log.Info("layout engine started", "windows", len(infos), "previewPool", pool)
	return nil
}

// Do runs fn on the engine loop and returns its error. It is the entry
// point for IPC, MCP and HTTP handlers, which run on foreign goroutines.
func (e *Engine) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	done := make(chan error, 1)
	select {
	case e.tasks <- func() { done <- fn(ctx) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) drainEvents(ctx context.Context, events <-chan runtime.Event) {
	pending := make(map[runtime.ID]runtime.TransformEvent)
	var order []runtime.ID

	flush := func() {
		for _, id := range order {
			e.handleEvent(ctx, pending[id])
		}
		pending = make(map[runtime.ID]runtime.TransformEvent)
		order = order[:0]
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				flush()
				return
			}
			if tr, isTransform := ev.(runtime.TransformEvent); isTransform {
				if prev, seen := pending[tr.ID]; seen {
					tr.Kind |= prev.Kind
				} else {
					order = append(order, tr.ID)
				}
				pending[tr.ID] = tr
				continue
			}
			// Non-transform events flush the coalesced state first so
			// per-window ordering is preserved; commits always run
			// after the pending transforms for their window.
			flush()
			e.handleEvent(ctx, ev)
		default:
			flush()
			return
		}
	}
}

func (e *Engine) handleEvent(ctx context.Context, ev runtime.Event) {
	switch ev := ev.(type) {
	case runtime.CreatedEvent:
		e.handleCreated(ctx, ev)
	case runtime.ClosedEvent:
		e.handleClosed(ctx, ev.ID)
	case runtime.FocusedEvent:
		e.desktop.RecordFocus(ev.ID)
	case runtime.TransformEvent:
		if w, err := e.desktop.Window(ev.ID); err == nil {
			tr := w.ObserveTransform(ev.Kind, ev.Rect)
			if tr.Originated {
				e.handleDragStep(ctx, w, tr)
			}
		}
	case runtime.CommitEvent:
		if w, err := e.desktop.Window(ev.ID); err == nil {
			w.ObserveCommit(ev.Kind, ev.Rect)
			e.handleDragCommit(ctx, w)
		}
	case runtime.StateChangedEvent:
		if w, err := e.desktop.Window(ev.ID); err == nil {
			w.ObserveState(ev.State)
			e.revalidate(ctx, w)
		}
	case runtime.FrameChangedEvent:
		if w, err := e.desktop.Window(ev.ID); err == nil {
			w.ObserveFrame(ev.Frame)
			e.revalidate(ctx, w)
		}
	case runtime.HiddenChangedEvent:
		if w, err := e.desktop.Window(ev.ID); err == nil {
			w.ObserveHidden(ev.Hidden)
			e.revalidate(ctx, w)
		}
	}
}

func (e *Engine) handleCreated(ctx context.Context, ev runtime.CreatedEvent) {
	if _, err := e.desktop.Window(ev.ID); err == nil {
		// Engine-created utility windows register themselves before the
		// runtime's created event lands.
		return
	}
	infos, err := e.rt.Windows(ctx)
	if err != nil {
		e.log.Error("window enumeration failed", "error", err)
		return
	}
	for _, info := range infos {
		if info.ID == ev.ID {
			e.registerWindow(ctx, info)
			return
		}
	}
	e.log.Warn("created window vanished before registration", "window", ev.ID)
}

func (e *Engine) registerWindow(ctx context.Context, info runtime.WindowInfo) {
	w, err := e.desktop.CreateWindow(info.ID, info.State, info.Handle)
	if err != nil {
		e.log.Error("window registration failed", "window", info.ID, "error", err)
		return
	}

	scope := store.WindowScope(info.ID.UUID, info.ID.Name)
	w.SetEnabled(e.store.Enabled(scope))

	watcher := e.store.Watch(scope, store.Mask{Enabled: true}, func(c store.Config) {
		enabled := c.Enabled == nil || *c.Enabled
		e.applyEnabled(ctx, info.ID, enabled)
	})
	e.watchers[info.ID] = watcher
}

func (e *Engine) handleClosed(ctx context.Context, id runtime.ID) {
	if e.drag != nil && e.drag.window.ID() == id {
		e.cancelDrag(ctx)
	}
	if watcher, ok := e.watchers[id]; ok {
		watcher.Close()
		delete(e.watchers, id)
	}
	if err := e.desktop.RemoveWindow(ctx, id); err != nil {
		e.log.Debug("close for unmanaged window", "window", id)
	}
}

// applyEnabled reacts to a configuration flip. Disabling removes the
// window from snap and tab groups and bars participation; re-enabling
// only readmits it to its singleton group, re-snap requires a user drag.
func (e *Engine) applyEnabled(ctx context.Context, id runtime.ID, enabled bool) {
	w, err := e.desktop.Window(id)
	if err != nil {
		return
	}
	w.SetEnabled(enabled)
	if enabled {
		return
	}
	if tg := w.TabGroup(); tg != nil {
		if err := tg.RemoveTab(ctx, w); err != nil {
			e.log.Warn("tab removal on disable failed", "window", id, "error", err)
		}
	}
	if g := w.SnapGroup(); g != nil && g.Size() >= 2 {
		e.removeAndSplit(ctx, w)
	}
	e.log.Info("window disabled by configuration", "window", id)
}
