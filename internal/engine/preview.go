package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

const (
	previewUUID         = "layouts-service"
	previewOpacityValid = 0.8
	previewOpacityBad   = 0.35
)

// previewPool keeps pre-allocated preview windows so the first frame of a
// drag does not pay window-creation latency. Previews move between a free
// list and an active list and are never destroyed while the process runs.
type previewPool struct {
	rt  runtime.Runtime
	log *slog.Logger

	free   []runtime.Handle
	active []runtime.Handle
	seq    int
}

func newPreviewPool(rt runtime.Runtime, log *slog.Logger) *previewPool {
	return &previewPool{rt: rt, log: log}
}

// warmUp pre-allocates k preview windows, hidden and parked off-screen.
func (p *previewPool) warmUp(ctx context.Context, k int) {
	for len(p.free)+len(p.active) < k {
		h, err := p.create(ctx)
		if err != nil {
			p.log.Warn("preview warm-up failed", "error", err)
			return
		}
		p.free = append(p.free, h)
	}
}

func (p *previewPool) create(ctx context.Context) (runtime.Handle, error) {
	p.seq++
	id := runtime.ID{UUID: previewUUID, Name: fmt.Sprintf("preview-%d", p.seq)}
	h, err := p.rt.CreateWindow(ctx, id, geometry.RectFromBounds(-1000, -1000, 10, 10), runtime.UtilityOptions{
		Frameless:   true,
		AlwaysOnTop: true,
		Opacity:     previewOpacityValid,
	})
	if err != nil {
		return nil, err
	}
	if err := h.Hide(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Show places one preview marker per rect. Invalid targets render in the
// rejected style by dropping marker opacity.
func (p *previewPool) Show(ctx context.Context, rects []geometry.Rect, valid bool) {
	p.Hide(ctx)
	opacity := previewOpacityValid
	if !valid {
		opacity = previewOpacityBad
	}
	for _, rect := range rects {
		h := p.acquire(ctx)
		if h == nil {
			return
		}
		if err := h.SetBounds(ctx, rect); err != nil {
			p.log.Debug("preview placement failed", "error", err)
			continue
		}
		_ = h.SetOpacity(ctx, opacity)
		_ = h.BringToFront(ctx)
		if err := h.Show(ctx); err != nil {
			p.log.Debug("preview show failed", "error", err)
			continue
		}
		p.active = append(p.active, h)
	}
}

// Hide returns every active preview to the free list.
func (p *previewPool) Hide(ctx context.Context) {
	for _, h := range p.active {
		if err := h.Hide(ctx); err != nil {
			p.log.Debug("preview hide failed", "error", err)
		}
		p.free = append(p.free, h)
	}
	p.active = p.active[:0]
}

func (p *previewPool) acquire(ctx context.Context) runtime.Handle {
	if n := len(p.free); n > 0 {
		h := p.free[n-1]
		p.free = p.free[:n-1]
		return h
	}
	h, err := p.create(ctx)
	if err != nil {
		p.log.Warn("preview allocation failed", "error", err)
		return nil
	}
	return h
}
