package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pjbroadbent/layouts-service/internal/engine"
	"github.com/pjbroadbent/layouts-service/internal/model"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
	"github.com/pjbroadbent/layouts-service/internal/runtimepath"
	"github.com/pjbroadbent/layouts-service/internal/store"
)

// Server handles IPC requests from clients.
type Server struct {
	socketPath string
	engine     *engine.Engine
	log        *slog.Logger
	startTime  time.Time

	// manifestPaths are re-read on RELOAD.
	manifestPaths []string

	mu   sync.Mutex
	subs map[chan model.ClientMessage]struct{}
}

// NewServer creates the IPC server for an engine.
func NewServer(eng *engine.Engine, log *slog.Logger, manifestPaths []string) (*Server, error) {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		return nil, err
	}
	os.Remove(socketPath)

	return &Server{
		socketPath:    socketPath,
		engine:        eng,
		log:           log,
		startTime:     time.Now(),
		manifestPaths: manifestPaths,
		subs:          make(map[chan model.ClientMessage]struct{}),
	}, nil
}

// String implements suture's service naming.
func (s *Server) String() string { return "ipc-server" }

// Serve listens on the unix socket until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	if err := os.Chmod(s.socketPath, 0600); err != nil {
		listener.Close()
		return err
	}

	// Fan client events out to subscribed connections. The connection
	// happens on the engine loop; broadcast is thread-safe.
	_ = s.engine.Do(ctx, func(context.Context) error {
		s.engine.Desktop().Messages.Connect(s.broadcast)
		return nil
	})

	s.log.Info("IPC server listening", "socket", s.socketPath)

	go func() {
		<-ctx.Done()
		listener.Close()
		os.Remove(s.socketPath)
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.log.Error("IPC accept error", "error", err)
			continue
		}
		go s.handleConnection(ctx, conn)
	}
}

func (s *Server) broadcast(msg model.ClientMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- msg:
		default:
			// A stalled subscriber drops events rather than blocking
			// the engine loop.
		}
	}
}

func (s *Server) subscribe() (chan model.ClientMessage, func()) {
	ch := make(chan model.ClientMessage, 64)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch, func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			return
		}
		req, err := ParseRequest(line)
		if err != nil {
			s.writeResponse(conn, NewErrorResponse(CodeInternal, err.Error()))
			continue
		}

		if req.Command == CommandSubscribe {
			s.streamEvents(ctx, conn)
			return
		}

		resp := s.dispatch(ctx, req)
		if !s.writeResponse(conn, resp) {
			return
		}
	}
}

// streamEvents switches the connection into push mode: one JSON client
// message per line until the peer goes away.
func (s *Server) streamEvents(ctx context.Context, conn net.Conn) {
	ch, cancel := s.subscribe()
	defer cancel()

	if !s.writeResponse(conn, &Response{Status: "OK"}) {
		return
	}
	enc := json.NewEncoder(conn)
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			if err := enc.Encode(msg); err != nil {
				return
			}
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, resp *Response) bool {
	data, err := resp.Marshal()
	if err != nil {
		s.log.Error("IPC response marshal failed", "error", err)
		return false
	}
	data = append(data, '\n')
	if _, err := conn.Write(data); err != nil {
		return false
	}
	return true
}

func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	switch req.Command {
	case CommandGetStatus:
		return s.handleStatus(ctx)
	case CommandReload:
		return s.handleReload(ctx)
	case CommandUndo:
		return s.result(s.engine.Do(ctx, func(ctx context.Context) error {
			return s.engine.Undo(ctx)
		}), nil)
	case CommandUndock:
		var p WindowPayload
		if resp := unmarshalPayload(req, &p); resp != nil {
			return resp
		}
		return s.result(s.engine.Do(ctx, func(ctx context.Context) error {
			return s.engine.Undock(ctx, p.Window)
		}), nil)
	case CommandExplodeGroup:
		var p WindowPayload
		if resp := unmarshalPayload(req, &p); resp != nil {
			return resp
		}
		return s.result(s.engine.Do(ctx, func(ctx context.Context) error {
			return s.engine.ExplodeGroup(ctx, p.Window)
		}), nil)
	case CommandGetTabs:
		var tabs []engine.TabInfo
		err := s.engine.Do(ctx, func(context.Context) error {
			tabs = s.engine.GetTabs()
			return nil
		})
		return s.result(err, tabs)
	case CommandCreateTabGroup:
		var p CreateTabGroupPayload
		if resp := unmarshalPayload(req, &p); resp != nil {
			return resp
		}
		return s.result(s.engine.Do(ctx, func(ctx context.Context) error {
			_, err := s.engine.CreateTabGroup(ctx, p.Windows)
			return err
		}), nil)
	case CommandAddTab:
		var p AddTabPayload
		if resp := unmarshalPayload(req, &p); resp != nil {
			return resp
		}
		return s.result(s.engine.Do(ctx, func(ctx context.Context) error {
			return s.engine.AddTab(ctx, p.Group, p.Window)
		}), nil)
	case CommandRemoveTab:
		var p WindowPayload
		if resp := unmarshalPayload(req, &p); resp != nil {
			return resp
		}
		return s.result(s.engine.Do(ctx, func(ctx context.Context) error {
			return s.engine.RemoveTab(ctx, p.Window)
		}), nil)
	case CommandSwitchTab:
		var p SwitchTabPayload
		if resp := unmarshalPayload(req, &p); resp != nil {
			return resp
		}
		return s.result(s.engine.Do(ctx, func(ctx context.Context) error {
			return s.engine.SwitchTab(ctx, p.Group, p.Window)
		}), nil)
	case CommandSetActiveTab:
		var p WindowPayload
		if resp := unmarshalPayload(req, &p); resp != nil {
			return resp
		}
		return s.result(s.engine.Do(ctx, func(ctx context.Context) error {
			return s.engine.SetActiveTab(ctx, p.Window)
		}), nil)
	case CommandGetSaveInfo:
		var info []engine.TabGroupSave
		err := s.engine.Do(ctx, func(context.Context) error {
			info = s.engine.SaveInfo()
			return nil
		})
		return s.result(err, info)
	case CommandRestore:
		var p RestorePayload
		if resp := unmarshalPayload(req, &p); resp != nil {
			return resp
		}
		var restored int
		err := s.engine.Do(ctx, func(ctx context.Context) error {
			var restoreErr error
			restored, restoreErr = s.engine.Restore(ctx, p.Groups)
			return restoreErr
		})
		return s.result(err, RestoreData{Restored: restored})
	default:
		return NewErrorResponse(CodeInternal, "unknown command: "+string(req.Command))
	}
}

func (s *Server) handleStatus(ctx context.Context) *Response {
	var status StatusData
	err := s.engine.Do(ctx, func(context.Context) error {
		d := s.engine.Desktop()
		status = StatusData{
			WindowCount:    d.Size(),
			SnapGroupCount: len(d.SnapGroups()),
			TabGroupCount:  len(d.TabGroups()),
			UptimeSeconds:  int64(time.Since(s.startTime).Seconds()),
		}
		return nil
	})
	return s.result(err, status)
}

// handleReload re-reads the configuration manifests and replaces the
// service-scope entries, leaving built-in defaults in place.
func (s *Server) handleReload(ctx context.Context) *Response {
	manifests := make([]store.Manifest, 0, len(s.manifestPaths))
	for _, path := range s.manifestPaths {
		m, err := store.LoadManifest(path)
		if err != nil {
			return NewErrorResponse(CodeInvalidScope, err.Error())
		}
		manifests = append(manifests, m)
	}
	err := s.engine.Do(ctx, func(context.Context) error {
		st := s.engine.Store()
		st.RemoveFromSource(store.ServiceScope())
		for _, m := range manifests {
			if err := st.AddManifest(store.ServiceScope(), m); err != nil {
				return err
			}
		}
		return nil
	})
	return s.result(err, nil)
}

func (s *Server) result(err error, data interface{}) *Response {
	if err != nil {
		return NewErrorResponse(errorCode(err), err.Error())
	}
	resp, merr := NewOKResponse(data)
	if merr != nil {
		return NewErrorResponse(CodeInternal, merr.Error())
	}
	return resp
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, model.ErrDisabled):
		return CodeDisabled
	case errors.Is(err, model.ErrInvalidState):
		return CodeInvalidState
	case errors.Is(err, store.ErrInvalidScope):
		return CodeInvalidScope
	case errors.Is(err, runtime.ErrTimeout):
		return CodeTimeout
	case errors.Is(err, runtime.ErrRuntimeFailure):
		return CodeRuntimeFailure
	default:
		return CodeInternal
	}
}

func unmarshalPayload(req *Request, v interface{}) *Response {
	if len(req.Payload) == 0 {
		return NewErrorResponse(CodeInternal, "missing payload for "+string(req.Command))
	}
	if err := json.Unmarshal(req.Payload, v); err != nil {
		return NewErrorResponse(CodeInternal, "bad payload: "+err.Error())
	}
	return nil
}
