package engine

import (
	"context"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/internal/resolver"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/internal/store"
)

// dragPhase is the per-drag state machine:
// IDLE -> DRAGGING -> PREVIEW_VALID | PREVIEW_INVALID -> COMMIT | CANCEL.
type dragPhase int

const (
	phaseDragging dragPhase = iota
	phasePreviewValid
	phasePreviewInvalid
)

type dragState struct {
	window *model.Window
	group  *model.SnapGroup
	phase  dragPhase

	snapTarget *resolver.SnapTarget
	tabTarget  *model.TabGroup
}

// snapPolicy adapts the store to the resolver's validity checks.
type snapPolicy struct{ store *store.Store }

func (p snapPolicy) SnapPermitted(id runtime.ID) bool {
	r := p.store.Resolve(store.WindowScope(id.UUID, id.Name))
	return r.Enabled && r.Snap
}

// handleDragStep advances the state machine for one originated transform
// of w. Cohesion motion of other members never reaches this point.
func (e *Engine) handleDragStep(ctx context.Context, w *model.Window, tr model.TransformEvent) {
	if !w.Enabled() || !w.Ready() {
		return
	}
	if tr.Kind&runtime.TransformMove == 0 {
		// A pure resize mutates the group's hull but proposes no snap.
		e.propagateResize(w)
		return
	}

	if e.drag != nil && e.drag.window != w {
		// A second simultaneous drag supersedes the first; the old
		// resolver work is discarded.
		e.cancelDrag(ctx)
	}
	if e.drag == nil {
		e.drag = &dragState{window: w, group: w.SnapGroup(), phase: phaseDragging}
	}
	d := e.drag
	d.group = w.SnapGroup()

	e.dragOthers(ctx, d, tr)
	e.resolveTargets(ctx, d)
	e.showPreview(ctx, d)
}

// dragOthers keeps the rest of the snap group glued to the dragged
// window. The runtime echoes these moves back as transforms; marking
// them as cohesion motion keeps them out of the resolver.
func (e *Engine) dragOthers(ctx context.Context, d *dragState, tr model.TransformEvent) {
	if d.group.Size() < 2 {
		return
	}
	delta := tr.Window.Rect().Center.Sub(tr.PrevRect.Center)
	if delta.IsZero() {
		return
	}
	for _, member := range d.group.Windows() {
		if member == d.window {
			continue
		}
		member.ExpectCohesionMove()
		if err := member.MoveTo(ctx, member.Rect().Center.Add(delta)); err != nil {
			e.log.Warn("group cohesion move failed", "window", member.ID(), "error", err)
		}
	}
	d.group.InvalidateBounds()
}

func (e *Engine) propagateResize(w *model.Window) {
	if g := w.SnapGroup(); g != nil {
		g.InvalidateBounds()
	}
}

// resolveTargets runs the tab resolver then the snap resolver for the
// current drag position.
func (e *Engine) resolveTargets(ctx context.Context, d *dragState) {
	d.snapTarget = nil
	d.tabTarget = nil

	cursor, err := e.rt.Pointer(ctx)
	if err != nil {
		e.log.Debug("pointer query failed", "error", err)
		cursor = d.window.Rect().Center
	}

	if e.tabDragEligible(d) {
		d.tabTarget = e.tab.Resolve(e.desktop, d.window, cursor)
		if d.tabTarget != nil && !e.tabTargetPermitted(d.tabTarget) {
			d.tabTarget = nil
		}
	}
	if d.tabTarget == nil {
		d.snapTarget = e.snap.Resolve(e.desktop, d.group, d.window, cursor, snapPolicy{store: e.store})
	}
}

// tabDragEligible limits tab targeting to a lone dragged window whose
// configuration has tabbing on.
func (e *Engine) tabDragEligible(d *dragState) bool {
	if d.group.Size() != 1 || d.window.TabGroup() != nil {
		return false
	}
	id := d.window.ID()
	r := e.store.Resolve(store.WindowScope(id.UUID, id.Name))
	return r.Enabled && r.Tab
}

func (e *Engine) tabTargetPermitted(tg *model.TabGroup) bool {
	id := tg.Strip().ID()
	r := e.store.Resolve(store.WindowScope(id.UUID, id.Name))
	return r.Enabled && r.Tab
}

// showPreview drives the external preview markers for the current
// resolver output.
func (e *Engine) showPreview(ctx context.Context, d *dragState) {
	switch {
	case d.tabTarget != nil:
		d.phase = phasePreviewValid
		e.previews.Show(ctx, []geometry.Rect{d.tabTarget.Rect()}, true)
	case d.snapTarget != nil:
		rects := make([]geometry.Rect, 0, d.group.Size())
		for _, w := range d.group.Windows() {
			rects = append(rects, w.Rect().Translate(d.snapTarget.Offset))
		}
		if d.snapTarget.Valid {
			d.phase = phasePreviewValid
		} else {
			d.phase = phasePreviewInvalid
		}
		e.previews.Show(ctx, rects, d.snapTarget.Valid)
	default:
		d.phase = phaseDragging
		e.previews.Hide(ctx)
	}
}

// handleDragCommit finishes the drag for w on mouse release. A valid tab
// target takes priority over a snap target.
func (e *Engine) handleDragCommit(ctx context.Context, w *model.Window) {
	d := e.drag
	if d == nil || d.window != w {
		return
	}
	e.drag = nil
	e.previews.Hide(ctx)

	switch {
	case d.tabTarget != nil:
		if err := e.commitTab(ctx, d); err != nil {
			e.log.Warn("tab commit failed", "window", w.ID(), "error", err)
		}
	case d.snapTarget != nil && d.snapTarget.Valid:
		if err := e.commitSnap(ctx, d); err != nil {
			e.log.Warn("snap commit aborted", "window", w.ID(), "error", err)
		}
	}
}

// cancelDrag abandons the in-flight drag without committing.
func (e *Engine) cancelDrag(ctx context.Context) {
	if e.drag == nil {
		return
	}
	e.previews.Hide(ctx)
	e.drag = nil
}

// commitTab inserts the dragged window after the hit group's active tab,
// matching where the drop visually lands.
func (e *Engine) commitTab(ctx context.Context, d *dragState) error {
	tg := d.tabTarget
	index := -1
	for i, tab := range tg.Tabs() {
		if tab == tg.Active() {
			index = i + 1
			break
		}
	}
	return tg.AddTab(ctx, d.window, index)
}

// commitSnap translates every window of the moving group by the resolved
// offset, then merges the group into the target. A runtime failure rolls
// the partial merge back so no window is left in a half-joined group.
func (e *Engine) commitSnap(ctx context.Context, d *dragState) error {
	target := d.snapTarget
	moving := d.group

	if target.HalfSize != nil {
		size := target.HalfSize.Scale(2)
		if err := d.window.ResizeTo(ctx, size, runtime.AnchorTopLeft); err != nil {
			return err
		}
	}

	undo := &undoRecord{offset: target.Offset}
	members := append([]*model.Window(nil), moving.Windows()...)
	merged := make([]*model.Window, 0, len(members))
	for _, w := range members {
		w.ExpectCohesionMove()
		if err := w.MoveTo(ctx, w.Rect().Center.Add(target.Offset)); err != nil {
			e.rollbackMerge(ctx, merged, target.Offset)
			return err
		}
		target.Group.AddWindow(w)
		merged = append(merged, w)
		undo.windows = append(undo.windows, w.ID())
	}
	target.Group.InvalidateBounds()
	e.lastCommit = undo
	e.log.Info("snap committed",
		"window", d.window.ID(), "offset", target.Offset, "group", target.Group.ID())
	return nil
}

func (e *Engine) rollbackMoves(ctx context.Context, moved []*model.Window, offset geometry.Point) {
	for _, w := range moved {
		w.ExpectCohesionMove()
		if err := w.MoveTo(ctx, w.Rect().Center.Sub(offset)); err != nil {
			e.log.Error("rollback move failed", "window", w.ID(), "error", err)
		}
	}
}

// rollbackMerge restores the pre-commit grouping using the windows'
// prevSnapGroup pointers.
func (e *Engine) rollbackMerge(ctx context.Context, merged []*model.Window, offset geometry.Point) {
	var restored *model.SnapGroup
	for _, w := range merged {
		prev := w.PrevSnapGroup()
		if restored == nil {
			if prev != nil && prev.Size() > 0 {
				restored = prev
			} else {
				restored = e.desktop.NewSnapGroup()
			}
		}
		restored.AddWindow(w)
	}
	e.rollbackMoves(ctx, merged, offset)
}
