package model

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/pjbroadbent/layouts-service/internal/geometry"
	"github.com/pjbroadbent/layouts-service/internal/runtime"
)

func testDesktop(t *testing.T) (*Desktop, *runtime.Fake) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(log), runtime.NewFake()
}

func addWindow(t *testing.T, d *Desktop, f *runtime.Fake, uuid, name string, rect geometry.Rect) *Window {
	t.Helper()
	id := runtime.ID{UUID: uuid, Name: name}
	fw := f.AddWindow(id, rect)
	w, err := d.CreateWindow(id, fw.State(), fw)
	if err != nil {
		t.Fatalf("create window %s: %v", id, err)
	}
	return w
}

func collectMessages(d *Desktop) *[]ClientMessage {
	var msgs []ClientMessage
	d.Messages.Connect(func(m ClientMessage) { msgs = append(msgs, m) })
	return &msgs
}

func countKind(msgs []ClientMessage, kind MessageKind, id runtime.ID) int {
	n := 0
	for _, m := range msgs {
		if m.Kind == kind && m.Window == id {
			n++
		}
	}
	return n
}

func TestCreateWindowStartsInSingletonGroup(t *testing.T) {
	d, f := testDesktop(t)
	w := addWindow(t, d, f, "app", "w1", geometry.RectFromBounds(0, 0, 100, 100))

	g := w.SnapGroup()
	if g == nil || g.Size() != 1 {
		t.Fatalf("expected singleton snap group, got %v", g)
	}
	if g.Grouped() {
		t.Fatal("singleton group must report not grouped")
	}
	if g.Root() != w {
		t.Fatal("sole window should be root")
	}
}

func TestDuplicateWindowIDRejected(t *testing.T) {
	d, f := testDesktop(t)
	addWindow(t, d, f, "app", "w1", geometry.RectFromBounds(0, 0, 100, 100))

	id := runtime.ID{UUID: "app", Name: "w1"}
	if _, err := d.CreateWindow(id, runtime.WindowState{}, nil); err == nil {
		t.Fatal("expected duplicate id to be rejected")
	}
}

func TestAddWindowMessaging(t *testing.T) {
	d, f := testDesktop(t)
	a := addWindow(t, d, f, "app", "a", geometry.RectFromBounds(0, 0, 100, 100))
	b := addWindow(t, d, f, "app", "b", geometry.RectFromBounds(100, 0, 100, 100))
	c := addWindow(t, d, f, "app", "c", geometry.RectFromBounds(200, 0, 100, 100))
	msgs := collectMessages(d)

	g := a.SnapGroup()
	g.AddWindow(b)
	if countKind(*msgs, MsgJoinSnapGroup, a.ID()) != 1 || countKind(*msgs, MsgJoinSnapGroup, b.ID()) != 1 {
		t.Fatalf("both windows should receive join on 1->2 growth, got %v", *msgs)
	}

	g.AddWindow(c)
	if countKind(*msgs, MsgJoinSnapGroup, c.ID()) != 1 {
		t.Fatal("later joiner should receive join")
	}
	if countKind(*msgs, MsgJoinSnapGroup, a.ID()) != 1 {
		t.Fatal("existing members should not be re-messaged")
	}
	if g.Size() != 3 {
		t.Fatalf("expected size 3, got %d", g.Size())
	}
}

func TestRemoveWindowMessagingAndSingleton(t *testing.T) {
	d, f := testDesktop(t)
	a := addWindow(t, d, f, "app", "a", geometry.RectFromBounds(0, 0, 100, 100))
	b := addWindow(t, d, f, "app", "b", geometry.RectFromBounds(100, 0, 100, 100))
	g := a.SnapGroup()
	g.AddWindow(b)
	msgs := collectMessages(d)

	g.RemoveWindow(b)
	if b.SnapGroup() == nil || b.SnapGroup().Size() != 1 {
		t.Fatal("removed window must land in a singleton group")
	}
	if countKind(*msgs, MsgLeaveSnapGroup, b.ID()) != 1 {
		t.Fatal("removed window should receive leave")
	}
	if countKind(*msgs, MsgLeaveSnapGroup, a.ID()) != 1 {
		t.Fatal("survivor left alone should receive leave")
	}
	if a.SnapGroup() != g || g.Size() != 1 {
		t.Fatal("survivor should remain in the original group")
	}
}

func TestEveryWindowAlwaysInExactlyOneGroup(t *testing.T) {
	d, f := testDesktop(t)
	windows := []*Window{
		addWindow(t, d, f, "app", "a", geometry.RectFromBounds(0, 0, 100, 100)),
		addWindow(t, d, f, "app", "b", geometry.RectFromBounds(100, 0, 100, 100)),
		addWindow(t, d, f, "app", "c", geometry.RectFromBounds(200, 0, 100, 100)),
	}
	g := windows[0].SnapGroup()
	g.AddWindow(windows[1])
	g.AddWindow(windows[2])
	g.RemoveWindow(windows[1])

	for _, w := range windows {
		if w.SnapGroup() == nil {
			t.Fatalf("window %s has no snap group", w.ID())
		}
		found := 0
		for _, sg := range d.SnapGroups() {
			if sg.Contains(w) {
				found++
			}
		}
		if found != 1 {
			t.Fatalf("window %s is in %d groups", w.ID(), found)
		}
	}
}

func TestBoundsHullExcludesHiddenAndNonNormal(t *testing.T) {
	d, f := testDesktop(t)
	a := addWindow(t, d, f, "app", "a", geometry.RectFromBounds(0, 0, 100, 100))
	b := addWindow(t, d, f, "app", "b", geometry.RectFromBounds(100, 0, 100, 100))
	c := addWindow(t, d, f, "app", "c", geometry.RectFromBounds(200, 0, 100, 100))
	g := a.SnapGroup()
	g.AddWindow(b)
	g.AddWindow(c)

	bounds := g.Bounds()
	if bounds.Min() != (geometry.Point{X: 0, Y: 0}) || bounds.Max() != (geometry.Point{X: 300, Y: 100}) {
		t.Fatalf("unexpected hull: %v", bounds)
	}

	c.ObserveState(runtime.StateMinimized)
	bounds = g.Bounds()
	if bounds.Max() != (geometry.Point{X: 200, Y: 100}) {
		t.Fatalf("minimized window should be excluded from hull, got %v", bounds)
	}

	b.ObserveHidden(true)
	bounds = g.Bounds()
	if bounds.Max() != (geometry.Point{X: 100, Y: 100}) {
		t.Fatalf("hidden window should be excluded from hull, got %v", bounds)
	}
}

func TestSingletonBoundsEqualWindowRect(t *testing.T) {
	d, f := testDesktop(t)
	rect := geometry.RectFromBounds(40, 60, 120, 80)
	a := addWindow(t, d, f, "app", "a", rect)

	if got := a.SnapGroup().Bounds(); got != rect {
		t.Fatalf("singleton bounds should equal window rect, got %v want %v", got, rect)
	}
}

func TestBoundsFollowRootAfterGroupMove(t *testing.T) {
	d, f := testDesktop(t)
	a := addWindow(t, d, f, "app", "a", geometry.RectFromBounds(0, 0, 100, 100))
	b := addWindow(t, d, f, "app", "b", geometry.RectFromBounds(100, 0, 100, 100))
	g := a.SnapGroup()
	g.AddWindow(b)
	_ = g.Bounds() // prime the cache

	// The whole group translates by (50, 0): the cached origin stays
	// valid relative to the root.
	a.ObserveTransform(runtime.TransformMove, geometry.RectFromBounds(50, 0, 100, 100))
	b.ObserveTransform(runtime.TransformMove, geometry.RectFromBounds(150, 0, 100, 100))

	bounds := g.Bounds()
	if bounds.Min() != (geometry.Point{X: 50, Y: 0}) || bounds.Max() != (geometry.Point{X: 250, Y: 100}) {
		t.Fatalf("bounds did not follow group move: %v", bounds)
	}
}

func TestTransformDedupOnlyOriginatorRebroadcast(t *testing.T) {
	d, f := testDesktop(t)
	a := addWindow(t, d, f, "app", "a", geometry.RectFromBounds(0, 0, 100, 100))
	b := addWindow(t, d, f, "app", "b", geometry.RectFromBounds(100, 0, 100, 100))
	g := a.SnapGroup()
	g.AddWindow(b)

	var groupEvents int
	g.Transform.Connect(func(TransformEvent) { groupEvents++ })

	a.ObserveTransform(runtime.TransformMove, geometry.RectFromBounds(10, 0, 100, 100))
	b.ExpectCohesionMove()
	b.ObserveTransform(runtime.TransformMove, geometry.RectFromBounds(110, 0, 100, 100))

	if groupEvents != 1 {
		t.Fatalf("group should re-broadcast once per transform, got %d", groupEvents)
	}
}

func TestTabGroupLifecycle(t *testing.T) {
	d, f := testDesktop(t)
	ctx := context.Background()
	x := addWindow(t, d, f, "app", "x", geometry.RectFromBounds(0, 60, 200, 140))
	y := addWindow(t, d, f, "app", "y", geometry.RectFromBounds(300, 60, 200, 140))
	strip := addWindow(t, d, f, "svc", "strip", geometry.RectFromBounds(0, 0, 200, 60))

	tg := d.CreateTabGroup(strip, "http://localhost/tabstrip.html")
	if err := tg.AddTab(ctx, x, -1); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tg.AddTab(ctx, y, -1); err != nil {
		t.Fatalf("add y: %v", err)
	}

	if tg.Active() != x {
		t.Fatal("first tab should be active")
	}
	if x.SnapGroup() != strip.SnapGroup() || y.SnapGroup() != strip.SnapGroup() {
		t.Fatal("tabs must share the strip's snap group")
	}
	if ys := f.Window(y.ID()).State(); !ys.Hidden {
		t.Fatal("inactive tab body should be hidden")
	}
	if got := f.Window(y.ID()).State().Rect; got != tg.Body() {
		t.Fatalf("tab should be repositioned onto the body region, got %v", got)
	}
}

func TestTabGroupEntityRect(t *testing.T) {
	d, f := testDesktop(t)
	ctx := context.Background()
	x := addWindow(t, d, f, "app", "x", geometry.RectFromBounds(0, 60, 200, 140))
	y := addWindow(t, d, f, "app", "y", geometry.RectFromBounds(300, 60, 200, 140))
	strip := addWindow(t, d, f, "svc", "strip", geometry.RectFromBounds(0, 0, 200, 60))
	tg := d.CreateTabGroup(strip, "")
	if err := tg.AddTab(ctx, x, -1); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tg.AddTab(ctx, y, -1); err != nil {
		t.Fatalf("add y: %v", err)
	}

	// Active body center (100,130) half (100,70); strip half y 30.
	rect := tg.Rect()
	if rect.Center != (geometry.Point{X: 100, Y: 100}) {
		t.Fatalf("unexpected entity center: %v", rect.Center)
	}
	if rect.Half != (geometry.Point{X: 100, Y: 100}) {
		t.Fatalf("unexpected entity half size: %v", rect.Half)
	}

	// The entity replaces its tabs in the snap group's entity list.
	entities := strip.SnapGroup().Entities()
	tabGroups := 0
	for _, e := range entities {
		if _, ok := e.(*TabGroup); ok {
			tabGroups++
		}
	}
	if tabGroups != 1 {
		t.Fatalf("expected tab group to appear once among entities, got %d in %d entities", tabGroups, len(entities))
	}
}

func TestSwitchTabIdempotent(t *testing.T) {
	d, f := testDesktop(t)
	ctx := context.Background()
	x := addWindow(t, d, f, "app", "x", geometry.RectFromBounds(0, 60, 200, 140))
	y := addWindow(t, d, f, "app", "y", geometry.RectFromBounds(300, 60, 200, 140))
	strip := addWindow(t, d, f, "svc", "strip", geometry.RectFromBounds(0, 0, 200, 60))
	tg := d.CreateTabGroup(strip, "")
	if err := tg.AddTab(ctx, x, -1); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tg.AddTab(ctx, y, -1); err != nil {
		t.Fatalf("add y: %v", err)
	}
	msgs := collectMessages(d)

	if err := tg.SwitchTab(ctx, y); err != nil {
		t.Fatalf("switch: %v", err)
	}
	if err := tg.SwitchTab(ctx, y); err != nil {
		t.Fatalf("second switch: %v", err)
	}

	if tg.Active() != y {
		t.Fatal("y should be active")
	}
	if countKind(*msgs, MsgTabActivated, y.ID()) != 1 {
		t.Fatal("second switch must be a no-op")
	}
	if f.Window(x.ID()).State().Hidden != true {
		t.Fatal("previous active body should be hidden")
	}
}

func TestAddTabIdempotent(t *testing.T) {
	d, f := testDesktop(t)
	ctx := context.Background()
	x := addWindow(t, d, f, "app", "x", geometry.RectFromBounds(0, 60, 200, 140))
	y := addWindow(t, d, f, "app", "y", geometry.RectFromBounds(300, 60, 200, 140))
	strip := addWindow(t, d, f, "svc", "strip", geometry.RectFromBounds(0, 0, 200, 60))
	tg := d.CreateTabGroup(strip, "")
	if err := tg.AddTab(ctx, x, -1); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tg.AddTab(ctx, y, -1); err != nil {
		t.Fatalf("add y: %v", err)
	}

	if err := tg.AddTab(ctx, y, -1); err != nil {
		t.Fatalf("re-add should be a no-op, got %v", err)
	}
	if tg.TabCount() != 2 {
		t.Fatalf("expected 2 tabs, got %d", tg.TabCount())
	}
}

func TestTabWindowCannotJoinSecondGroup(t *testing.T) {
	d, f := testDesktop(t)
	ctx := context.Background()
	x := addWindow(t, d, f, "app", "x", geometry.RectFromBounds(0, 60, 200, 140))
	y := addWindow(t, d, f, "app", "y", geometry.RectFromBounds(300, 60, 200, 140))
	strip1 := addWindow(t, d, f, "svc", "strip1", geometry.RectFromBounds(0, 0, 200, 60))
	strip2 := addWindow(t, d, f, "svc", "strip2", geometry.RectFromBounds(600, 0, 200, 60))
	tg1 := d.CreateTabGroup(strip1, "")
	tg2 := d.CreateTabGroup(strip2, "")
	if err := tg1.AddTab(ctx, x, -1); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tg1.AddTab(ctx, y, -1); err != nil {
		t.Fatalf("add y: %v", err)
	}

	if err := tg2.AddTab(ctx, y, -1); err == nil {
		t.Fatal("expected error tabbing a window already tabbed elsewhere")
	}
}

func TestTabGroupCollapse(t *testing.T) {
	d, f := testDesktop(t)
	ctx := context.Background()
	xRect := geometry.RectFromBounds(0, 60, 200, 140)
	yRect := geometry.RectFromBounds(300, 60, 200, 140)
	x := addWindow(t, d, f, "app", "x", xRect)
	y := addWindow(t, d, f, "app", "y", yRect)
	strip := addWindow(t, d, f, "svc", "strip", geometry.RectFromBounds(0, 0, 200, 60))
	tg := d.CreateTabGroup(strip, "")
	if err := tg.AddTab(ctx, x, -1); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tg.AddTab(ctx, y, -1); err != nil {
		t.Fatalf("add y: %v", err)
	}
	msgs := collectMessages(d)

	if err := tg.RemoveTab(ctx, x); err != nil {
		t.Fatalf("remove x: %v", err)
	}

	if len(d.TabGroups()) != 0 {
		t.Fatal("group with < 2 tabs must be destroyed")
	}
	if y.TabGroup() != nil {
		t.Fatal("surviving tab should be standalone")
	}
	if got := f.Window(y.ID()).State().Rect; got != yRect {
		t.Fatalf("surviving tab should be restored to pre-tab bounds, got %v", got)
	}
	if y.SnapGroup() == nil || y.SnapGroup().Size() != 1 {
		t.Fatal("surviving tab should be in a singleton snap group")
	}
	if countKind(*msgs, MsgLeaveSnapGroup, y.ID()) != 0 {
		t.Fatal("no snap leave should fire for the survivor of a tab collapse")
	}
	if countKind(*msgs, MsgLeaveTabGroup, y.ID()) != 1 {
		t.Fatal("survivor should receive a tab leave")
	}
	if f.Window(strip.ID()) != nil {
		t.Fatal("strip window should be closed")
	}
}

func TestRemoveActiveTabSelectsNextInOrder(t *testing.T) {
	d, f := testDesktop(t)
	ctx := context.Background()
	a := addWindow(t, d, f, "app", "a", geometry.RectFromBounds(0, 60, 200, 140))
	b := addWindow(t, d, f, "app", "b", geometry.RectFromBounds(300, 60, 200, 140))
	c := addWindow(t, d, f, "app", "c", geometry.RectFromBounds(600, 60, 200, 140))
	strip := addWindow(t, d, f, "svc", "strip", geometry.RectFromBounds(0, 0, 200, 60))
	tg := d.CreateTabGroup(strip, "")
	for _, w := range []*Window{a, b, c} {
		if err := tg.AddTab(ctx, w, -1); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	if err := tg.SwitchTab(ctx, b); err != nil {
		t.Fatalf("switch: %v", err)
	}

	if err := tg.RemoveTab(ctx, b); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if tg.Active() != c {
		t.Fatalf("expected next-in-order c to become active, got %v", tg.Active().ID())
	}

	// Removing c leaves a single tab, so the group collapses.
	if err := tg.RemoveTab(ctx, c); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if len(d.TabGroups()) != 0 {
		t.Fatal("group should have collapsed at 1 tab")
	}
}

func TestWindowTeardownLeavesGroups(t *testing.T) {
	d, f := testDesktop(t)
	ctx := context.Background()
	x := addWindow(t, d, f, "app", "x", geometry.RectFromBounds(0, 60, 200, 140))
	y := addWindow(t, d, f, "app", "y", geometry.RectFromBounds(300, 60, 200, 140))
	strip := addWindow(t, d, f, "svc", "strip", geometry.RectFromBounds(0, 0, 200, 60))
	tg := d.CreateTabGroup(strip, "")
	if err := tg.AddTab(ctx, x, -1); err != nil {
		t.Fatalf("add x: %v", err)
	}
	if err := tg.AddTab(ctx, y, -1); err != nil {
		t.Fatalf("add y: %v", err)
	}

	if err := d.RemoveWindow(ctx, x.ID()); err != nil {
		t.Fatalf("remove window: %v", err)
	}

	if _, err := d.Window(x.ID()); err == nil {
		t.Fatal("window should be gone from the registry")
	}
	if len(d.TabGroups()) != 0 {
		t.Fatal("tab group should collapse when a member window closes")
	}
	for _, g := range d.SnapGroups() {
		if g.Size() == 0 {
			t.Fatal("empty snap group survived teardown")
		}
	}
}

func TestZOrder(t *testing.T) {
	d, f := testDesktop(t)
	a := addWindow(t, d, f, "app", "a", geometry.RectFromBounds(0, 0, 100, 100))
	b := addWindow(t, d, f, "app", "b", geometry.RectFromBounds(0, 0, 100, 100))

	d.RecordFocus(a.ID())
	if d.StackIndex(a.ID()) < d.StackIndex(b.ID()) {
		t.Fatal("focused window should rank above")
	}
	d.RecordFocus(b.ID())
	if d.StackIndex(b.ID()) < d.StackIndex(a.ID()) {
		t.Fatal("focus should move the window to the top")
	}
}
