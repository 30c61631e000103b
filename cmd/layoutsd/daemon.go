package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/phsym/console-slog"
	"github.com/thejerf/suture/v4"

	"github.com/pjbroadbent/layouts-service/internal/api"
	"github.com/pjbroadbent/layouts-service/internal/daemon"
	"github.com/pjbroadbent/layouts-service/internal/engine"
	"github.com/pjbroadbent/layouts-service/internal/ipc"
	"github.com/pjbroadbent/layouts-service/internal/store"
	"github.com/pjbroadbent/layouts-service/internal/x11"
)

type manifestFlags []string

func (m *manifestFlags) String() string { return strings.Join(*m, ",") }

func (m *manifestFlags) Set(v string) error {
	*m = append(*m, v)
	return nil
}

func runDaemon(args []string) int {
	godotenv.Load()

	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var manifests manifestFlags
	fs.Var(&manifests, "config", "configuration manifest (repeatable)")
	httpAddr := fs.String("http", "127.0.0.1:1337", "tab-strip UI listen address (empty disables)")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")
	snapRadius := fs.Float64("snap-radius", 0, "snap radius in pixels (0 = default)")
	reconcile := fs.Duration("reconcile-interval", 10*time.Second, "model drift check interval")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	initLogger(*logLevel)
	log := slog.Default()

	st := store.New()
	for _, path := range manifests {
		m, err := store.LoadManifest(path)
		if err != nil {
			log.Error("manifest load failed", "path", path, "error", err)
			return 1
		}
		if err := st.AddManifest(store.ServiceScope(), m); err != nil {
			log.Error("manifest rejected", "path", path, "error", err)
			return 1
		}
		log.Info("manifest loaded", "path", path, "rules", len(m.Rules))
	}

	adapter, err := x11.New(log)
	if err != nil {
		log.Error("X11 connection failed", "error", err)
		return 1
	}
	defer adapter.Close()

	eng := engine.New(engine.Config{
		Runtime:    adapter,
		Store:      st,
		Logger:     log,
		SnapRadius: *snapRadius,
	})

	ipcServer, err := ipc.NewServer(eng, log, manifests)
	if err != nil {
		log.Error("IPC server setup failed", "error", err)
		return 1
	}

	super := suture.New("layoutsd", suture.Spec{EventHook: sutureEventHook()})
	super.Add(adapter)
	super.Add(eng)
	super.Add(ipcServer)
	super.Add(daemon.NewReconciler(daemon.ReconcilerConfig{
		Interval: *reconcile,
		Logger:   log,
	}, eng, adapter))
	if *httpAddr != "" {
		super.Add(api.NewServer(*httpAddr, eng, log))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Info("shutting down")
		cancel()
	}()

	if err := super.Serve(ctx); err != nil && ctx.Err() == nil {
		log.Error("supervisor exited", "error", err)
		return 1
	}
	return 0
}

func initLogger(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn", "warning":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{
		Level: l,
	})))
}

// sutureEventHook logs supervisor events through slog.
func sutureEventHook() suture.EventHook {
	return func(ei suture.Event) {
		switch e := ei.(type) {
		case suture.EventStopTimeout:
			slog.Info("service failed to terminate in a timely manner",
				slog.String("supervisor", e.SupervisorName), slog.String("service", e.ServiceName))
		case suture.EventServicePanic:
			slog.Warn("caught a service panic")
			slog.Info(e.Stacktrace, slog.String("panic", e.PanicMsg))
		case suture.EventServiceTerminate:
			slog.Error("service failed",
				slog.Any("error", e.Err),
				slog.String("supervisor", e.SupervisorName), slog.String("service", e.ServiceName))
		case suture.EventBackoff:
			slog.Debug("too many service failures, backing off", slog.String("supervisor", e.SupervisorName))
		case suture.EventResume:
			slog.Debug("exiting backoff state", slog.String("supervisor", e.SupervisorName))
		default:
			slog.Warn("unknown supervisor event", "type", int(e.Type()))
		}
	}
}

func fatalf(format string, args ...interface{}) int {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return 1
}
