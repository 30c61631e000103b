// Package api serves the HTTP surface the tab-strip UI consumes: tab
// state per group, tab actions, and a server-sent event stream of client
// events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/pjbroadbent/layouts-service/internal/engine"
	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

// Server is the HTTP API for the tab-strip UI.
type Server struct {
	addr   string
	engine *engine.Engine
	log    *slog.Logger

	mu   sync.Mutex
	subs map[chan model.ClientMessage]struct{}
}

// NewServer creates the HTTP server bound to addr.
func NewServer(addr string, eng *engine.Engine, log *slog.Logger) *Server {
	return &Server{
		addr:   addr,
		engine: eng,
		log:    log,
		subs:   make(map[chan model.ClientMessage]struct{}),
	}
}

// String implements suture's service naming.
func (s *Server) String() string { return "http-api" }

// Serve listens until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	_ = s.engine.Do(ctx, func(context.Context) error {
		s.engine.Desktop().Messages.Connect(s.broadcast)
		return nil
	})

	srv := &http.Server{
		Addr:        s.addr,
		Handler:     s.routes(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	s.log.Info("HTTP API listening", "addr", s.addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return ctx.Err()
	}
	return err
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/tabs", s.handleGetTabs)
	r.Get("/tabs/{group}", s.handleGetGroup)
	r.Post("/tabs/{group}/activate", s.handleActivate)
	r.Get("/events", s.handleEvents)
	return r
}

func (s *Server) broadcast(msg model.ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (s *Server) handleGetTabs(w http.ResponseWriter, r *http.Request) {
	var tabs []engine.TabInfo
	err := s.engine.Do(r.Context(), func(context.Context) error {
		tabs = s.engine.GetTabs()
		return nil
	})
	s.respond(w, tabs, err)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.Atoi(chi.URLParam(r, "group"))
	if err != nil {
		http.Error(w, "bad group id", http.StatusBadRequest)
		return
	}
	var found *engine.TabInfo
	err = s.engine.Do(r.Context(), func(context.Context) error {
		for _, info := range s.engine.GetTabs() {
			if info.Group == groupID {
				info := info
				found = &info
				return nil
			}
		}
		return fmt.Errorf("%w: tab group %d", model.ErrNotFound, groupID)
	})
	s.respond(w, found, err)
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	groupID, err := strconv.Atoi(chi.URLParam(r, "group"))
	if err != nil {
		http.Error(w, "bad group id", http.StatusBadRequest)
		return
	}
	var target runtime.ID
	if err := json.NewDecoder(r.Body).Decode(&target); err != nil {
		http.Error(w, "bad window id", http.StatusBadRequest)
		return
	}
	err = s.engine.Do(r.Context(), func(ctx context.Context) error {
		return s.engine.SwitchTab(ctx, groupID, target)
	})
	s.respond(w, map[string]bool{"ok": err == nil}, err)
}

// handleEvents streams client messages as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan model.ClientMessage, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-ch:
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Kind, data)
			flusher.Flush()
		}
	}
}

func (s *Server) respond(w http.ResponseWriter, data interface{}, err error) {
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, model.ErrNotFound) {
			status = http.StatusNotFound
		}
		http.Error(w, err.Error(), status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Debug("response encode failed", "error", err)
	}
}
