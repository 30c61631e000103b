// Package daemon contains the background reconciler that detects drift
// between the desktop model and the window runtime: OS windows that
// vanished without a close event are torn down so orphaned groups do not
// accumulate.
package daemon

import (
	"context"
	"log/slog"
	"time"

	"github.com/pjbroadbent/layouts-service/internal/engine"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

// ReconcilerConfig holds configuration for the reconciler.
type ReconcilerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
}

// Reconciler periodically checks for state drift and corrects it.
type Reconciler struct {
	interval time.Duration
	engine   *engine.Engine
	rt       runtime.Runtime
	logger   *slog.Logger
}

// NewReconciler creates a reconciler over the given engine and runtime.
func NewReconciler(cfg ReconcilerConfig, eng *engine.Engine, rt runtime.Runtime) *Reconciler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		interval: interval,
		engine:   eng,
		rt:       rt,
		logger:   logger,
	}
}

// String implements suture's service naming.
func (r *Reconciler) String() string { return "reconciler" }

// Serve runs the reconciliation loop. Blocks until context is cancelled.
func (r *Reconciler) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("reconciler started", "interval", r.interval)

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("reconciler stopped")
			return ctx.Err()
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// reconcile performs a single reconciliation pass.
func (r *Reconciler) reconcile(ctx context.Context) {
	defer func() {
		if err := recover(); err != nil {
			r.logger.Error("reconciler panic recovered", "error", err)
		}
	}()

	infos, err := r.rt.Windows(ctx)
	if err != nil {
		r.logger.Error("reconciler: failed to list windows", "error", err)
		return
	}
	alive := make(map[runtime.ID]bool, len(infos))
	for _, info := range infos {
		alive[info.ID] = true
	}

	err = r.engine.Do(ctx, func(ctx context.Context) error {
		for _, w := range r.engine.Desktop().Windows() {
			if alive[w.ID()] {
				continue
			}
			r.logger.Warn("reconciler: dropping vanished window", "window", w.ID())
			if err := r.engine.Desktop().RemoveWindow(ctx, w.ID()); err != nil {
				r.logger.Error("reconciler: removal failed", "window", w.ID(), "error", err)
			}
		}
		return nil
	})
	if err != nil {
		r.logger.Error("reconciler pass failed", "error", err)
	}
}
