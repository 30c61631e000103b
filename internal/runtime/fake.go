package runtime

import (
	"context"
	"fmt"
	"sync"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
)

// Fake is an in-memory Runtime for tests. Windows are plain records;
// commands mutate them synchronously and are recorded for assertions.
type Fake struct {
	mu      sync.Mutex
	windows map[ID]*FakeWindow
	events  chan Event
	pointer geometry.Point

	// FailCommands makes every subsequent handle command return
	// ErrRuntimeFailure.
	FailCommands bool
}

// FakeWindow is the backing record for one fake window.
type FakeWindow struct {
	fake  *Fake
	id    ID
	state WindowState

	Moves   []geometry.Point
	Resizes []geometry.Point
	Closed  bool
}

// NewFake returns an empty fake runtime with a buffered event stream.
func NewFake() *Fake {
	return &Fake{
		windows: make(map[ID]*FakeWindow),
		events:  make(chan Event, 256),
	}
}

// AddWindow registers a window and returns its record. No CreatedEvent is
// emitted; use Announce for that.
func (f *Fake) AddWindow(id ID, rect geometry.Rect) *FakeWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	w := &FakeWindow{
		fake: f,
		id:   id,
		state: WindowState{
			Rect:    rect,
			Frame:   true,
			State:   StateNormal,
			Opacity: 1,
		},
	}
	f.windows[id] = w
	return w
}

// Announce emits a CreatedEvent for a previously added window.
func (f *Fake) Announce(id ID) {
	f.mu.Lock()
	w := f.windows[id]
	f.mu.Unlock()
	if w == nil {
		return
	}
	f.events <- CreatedEvent{ID: id, State: w.state}
}

// SetPointer sets the position returned by Pointer.
func (f *Fake) SetPointer(p geometry.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pointer = p
}

// Emit injects an event into the stream.
func (f *Fake) Emit(e Event) { f.events <- e }

// Drag emits a transform sequence for id ending at rect, without the
// commit. The window's cached rect is updated as a real runtime would.
func (f *Fake) Drag(id ID, rect geometry.Rect) {
	f.setRect(id, rect)
	f.events <- TransformEvent{ID: id, Kind: TransformMove, Rect: rect}
}

// Release emits the commit for a drag ending at rect.
func (f *Fake) Release(id ID, rect geometry.Rect) {
	f.setRect(id, rect)
	f.events <- CommitEvent{ID: id, Kind: TransformMove, Rect: rect}
}

func (f *Fake) setRect(id ID, rect geometry.Rect) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if w, ok := f.windows[id]; ok {
		w.state.Rect = rect
	}
}

// Window returns the record for id, or nil.
func (f *Fake) Window(id ID) *FakeWindow {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows[id]
}

// Windows implements Runtime.
func (f *Fake) Windows(ctx context.Context) ([]WindowInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	infos := make([]WindowInfo, 0, len(f.windows))
	for _, w := range f.windows {
		infos = append(infos, WindowInfo{ID: w.id, State: w.state, Handle: w})
	}
	return infos, nil
}

// Events implements Runtime.
func (f *Fake) Events() <-chan Event { return f.events }

// Pointer implements Runtime.
func (f *Fake) Pointer(ctx context.Context) (geometry.Point, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pointer, nil
}

// CreateWindow implements Runtime.
func (f *Fake) CreateWindow(ctx context.Context, id ID, rect geometry.Rect, opts UtilityOptions) (Handle, error) {
	f.mu.Lock()
	if _, exists := f.windows[id]; exists {
		f.mu.Unlock()
		return nil, fmt.Errorf("%w: window %s already exists", ErrRuntimeFailure, id)
	}
	f.mu.Unlock()
	w := f.AddWindow(id, rect)
	w.state.Frame = !opts.Frameless
	if opts.Opacity > 0 {
		w.state.Opacity = opts.Opacity
	}
	return w, nil
}

func (w *FakeWindow) ID() ID { return w.id }

// State returns a copy of the current fake state.
func (w *FakeWindow) State() WindowState {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	return w.state
}

func (w *FakeWindow) command() error {
	if w.fake.FailCommands || w.Closed {
		return ErrRuntimeFailure
	}
	return nil
}

func (w *FakeWindow) MoveTo(ctx context.Context, pos geometry.Point) error {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if err := w.command(); err != nil {
		return err
	}
	w.state.Rect.Center = pos
	w.Moves = append(w.Moves, pos)
	return nil
}

func (w *FakeWindow) ResizeTo(ctx context.Context, size geometry.Point, anchor ResizeAnchor) error {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if err := w.command(); err != nil {
		return err
	}
	min := w.state.Rect.Min()
	w.state.Rect = geometry.RectFromBounds(min.X, min.Y, size.X, size.Y)
	w.Resizes = append(w.Resizes, size)
	return nil
}

func (w *FakeWindow) SetBounds(ctx context.Context, rect geometry.Rect) error {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if err := w.command(); err != nil {
		return err
	}
	w.state.Rect = rect
	return nil
}

func (w *FakeWindow) Show(ctx context.Context) error {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if err := w.command(); err != nil {
		return err
	}
	w.state.Hidden = false
	return nil
}

func (w *FakeWindow) Hide(ctx context.Context) error {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if err := w.command(); err != nil {
		return err
	}
	w.state.Hidden = true
	return nil
}

func (w *FakeWindow) BringToFront(ctx context.Context) error {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	return w.command()
}

func (w *FakeWindow) SetOpacity(ctx context.Context, opacity float64) error {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if err := w.command(); err != nil {
		return err
	}
	w.state.Opacity = opacity
	return nil
}

func (w *FakeWindow) Close(ctx context.Context, force bool) error {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if err := w.command(); err != nil {
		return err
	}
	w.Closed = true
	delete(w.fake.windows, w.id)
	return nil
}

func (w *FakeWindow) Bounds(ctx context.Context) (geometry.Rect, error) {
	w.fake.mu.Lock()
	defer w.fake.mu.Unlock()
	if err := w.command(); err != nil {
		return geometry.Rect{}, err
	}
	return w.state.Rect, nil
}
