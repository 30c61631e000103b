// Package signal provides typed observer sets used to wire the layout
// engine's components together. All connect/disconnect/emit calls must
// happen on the engine's task loop; the type carries no locking of its own.
package signal

// Handle identifies one connected handler.
type Handle int

type entry[T any] struct {
	handle Handle
	fn     func(T)
}

// Signal is an ordered set of handlers for events of type T.
// The zero value is ready to use.
type Signal[T any] struct {
	next    Handle
	entries []entry[T]
}

// Connect registers fn and returns a handle for Disconnect.
// Handlers fire in connection order.
func (s *Signal[T]) Connect(fn func(T)) Handle {
	s.next++
	s.entries = append(s.entries, entry[T]{handle: s.next, fn: fn})
	return s.next
}

// Disconnect removes the handler registered under h. Unknown handles are
// ignored so teardown paths can disconnect unconditionally.
func (s *Signal[T]) Disconnect(h Handle) {
	for i, e := range s.entries {
		if e.handle == h {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return
		}
	}
}

// Emit calls every connected handler with v. Handlers connected during an
// emit do not observe the in-flight event; handlers disconnected during an
// emit are skipped if they have not fired yet.
func (s *Signal[T]) Emit(v T) {
	snapshot := make([]entry[T], len(s.entries))
	copy(snapshot, s.entries)
	for _, e := range snapshot {
		if s.connected(e.handle) {
			e.fn(v)
		}
	}
}

// Len returns the number of connected handlers.
func (s *Signal[T]) Len() int {
	return len(s.entries)
}

func (s *Signal[T]) connected(h Handle) bool {
	for _, e := range s.entries {
		if e.handle == h {
			return true
		}
	}
	return false
}
