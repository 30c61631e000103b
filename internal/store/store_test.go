package store

import (
	"errors"
	"testing"
)

func TestScopeCovers(t *testing.T) {
	tests := []struct {
		name   string
		source Scope
		target Scope
		want   bool
	}{
		{"service covers window", ServiceScope(), WindowScope("app", "w1"), true},
		{"desktop covers application", DesktopScope(), ApplicationScope("app"), true},
		{"application covers own window", ApplicationScope("app"), WindowScope("app", "w1"), true},
		{"application does not cover other app", ApplicationScope("app"), WindowScope("other", "w1"), false},
		{"window covers itself", WindowScope("app", "w1"), WindowScope("app", "w1"), true},
		{"window does not cover sibling", WindowScope("app", "w1"), WindowScope("app", "w2"), false},
		{"narrower does not cover broader", WindowScope("app", "w1"), ApplicationScope("app"), false},
	}
	for _, tt := range tests {
		if got := tt.source.Covers(tt.target); got != tt.want {
			t.Fatalf("%s: Covers=%v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestQueryDefaults(t *testing.T) {
	s := New()
	r := s.Resolve(WindowScope("app", "w1"))
	if !r.Enabled || !r.Snap || !r.Tab || !r.Dock {
		t.Fatalf("expected defaults enabled, got %+v", r)
	}
	if r.TabstripHeight != DefaultTabstripHeight {
		t.Fatalf("expected default tabstrip height, got %d", r.TabstripHeight)
	}
}

func TestNarrowerScopeOverrides(t *testing.T) {
	s := New()
	if err := s.Add(DesktopScope(), Config{Enabled: Bool(false)}); err != nil {
		t.Fatalf("add desktop: %v", err)
	}
	if err := s.Add(WindowScope("app", "w1"), Config{Enabled: Bool(true)}); err != nil {
		t.Fatalf("add window: %v", err)
	}

	if s.Enabled(WindowScope("app", "w2")) {
		t.Fatal("desktop-level disable should apply to w2")
	}
	if !s.Enabled(WindowScope("app", "w1")) {
		t.Fatal("window-level enable should override desktop disable")
	}
}

func TestRuleTargetsWindow(t *testing.T) {
	s := New()
	rule := Rule{
		Scope:  RuleScope{Level: LevelWindow, UUID: LiteralPattern("app"), Name: LiteralPattern("w1")},
		Config: Config{Enabled: Bool(false)},
	}
	if err := s.Add(ServiceScope(), Config{}, rule); err != nil {
		t.Fatalf("add: %v", err)
	}

	if s.Enabled(WindowScope("app", "w1")) {
		t.Fatal("rule should disable (app,w1)")
	}
	if !s.Enabled(WindowScope("app", "w2")) {
		t.Fatal("rule should not affect (app,w2)")
	}
	if !s.Enabled(ApplicationScope("app")) {
		t.Fatal("window-level rule should not match an application-level query")
	}
}

func TestRuleRegexAndInvert(t *testing.T) {
	s := New()
	pat, err := RegexPattern("^internal-.*$", "", false)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	rule := Rule{
		Scope:  RuleScope{Level: LevelApplication, UUID: pat},
		Config: Config{Enabled: Bool(false)},
	}
	if err := s.Add(DesktopScope(), Config{}, rule); err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.Enabled(WindowScope("internal-tools", "main")) {
		t.Fatal("regex rule should match internal-tools windows")
	}
	if !s.Enabled(WindowScope("external", "main")) {
		t.Fatal("regex rule should not match external")
	}

	inv, err := RegexPattern("^trusted$", "", true)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	s2 := New()
	if err := s2.Add(DesktopScope(), Config{}, Rule{
		Scope:  RuleScope{Level: LevelApplication, UUID: inv},
		Config: Config{Enabled: Bool(false)},
	}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if !s2.Enabled(WindowScope("trusted", "main")) {
		t.Fatal("inverted rule should skip trusted")
	}
	if s2.Enabled(WindowScope("other", "main")) {
		t.Fatal("inverted rule should match everything but trusted")
	}
}

func TestRuleLevelValidation(t *testing.T) {
	s := New()
	err := s.Add(ApplicationScope("app"), Config{}, Rule{
		Scope:  RuleScope{Level: LevelDesktop},
		Config: Config{Enabled: Bool(false)},
	})
	if !errors.Is(err, ErrInvalidScope) {
		t.Fatalf("expected ErrInvalidScope for broader rule, got %v", err)
	}

	if err := s.Add(ApplicationScope("app"), Config{}, Rule{
		Scope:  RuleScope{Level: LevelWindow, UUID: LiteralPattern("app")},
		Config: Config{Enabled: Bool(false)},
	}); err != nil {
		t.Fatalf("rule at finer level should be accepted: %v", err)
	}
}

func TestQueryMonotoneUnderUnmatchedAddition(t *testing.T) {
	s := New()
	target := WindowScope("app", "w1")
	before := s.Query(target, FullMask())

	if err := s.Add(ServiceScope(), Config{}, Rule{
		Scope:  RuleScope{Level: LevelWindow, UUID: LiteralPattern("other"), Name: LiteralPattern("x")},
		Config: Config{Enabled: Bool(false)},
	}); err != nil {
		t.Fatalf("add: %v", err)
	}

	after := s.Query(target, FullMask())
	if *before.Enabled != *after.Enabled {
		t.Fatal("adding an unmatched rule changed the query result")
	}
}

func TestRemoveFromSource(t *testing.T) {
	s := New()
	if err := s.Add(ApplicationScope("app"), Config{Enabled: Bool(false)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if s.Enabled(WindowScope("app", "w1")) {
		t.Fatal("expected disabled after add")
	}

	s.RemoveFromSource(ApplicationScope("app"))
	if !s.Enabled(WindowScope("app", "w1")) {
		t.Fatal("expected enabled after removal")
	}
}

func TestMaskedQuery(t *testing.T) {
	s := New()
	got := s.Query(WindowScope("app", "w1"), Mask{Enabled: true})
	if got.Enabled == nil || !*got.Enabled {
		t.Fatal("expected enabled leaf populated")
	}
	if got.Features != nil || got.Tabstrip != nil {
		t.Fatal("unmasked subtrees should be absent")
	}

	got = s.Query(WindowScope("app", "w1"), Mask{Tabstrip: &TabstripMask{Height: true}})
	if got.Tabstrip == nil || got.Tabstrip.Height == nil || *got.Tabstrip.Height != DefaultTabstripHeight {
		t.Fatalf("expected tabstrip height populated, got %+v", got.Tabstrip)
	}
	if got.Tabstrip.URL != nil {
		t.Fatal("url leaf was not masked in")
	}
}

func TestWatchFiresOnChange(t *testing.T) {
	s := New()
	target := WindowScope("app", "w1")

	var fired []Config
	w := s.Watch(target, Mask{Enabled: true}, func(c Config) { fired = append(fired, c) })
	defer w.Close()

	// Unrelated change: no fire.
	if err := s.Add(ApplicationScope("other"), Config{Enabled: Bool(false)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(fired) != 0 {
		t.Fatalf("watch fired on unrelated change: %+v", fired)
	}

	if err := s.Add(WindowScope("app", "w1"), Config{Enabled: Bool(false)}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if len(fired) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(fired))
	}
	if fired[0].Enabled == nil || *fired[0].Enabled {
		t.Fatal("expected notification with enabled=false")
	}

	// Removing the source flips it back.
	s.RemoveFromSource(WindowScope("app", "w1"))
	if len(fired) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(fired))
	}
}

func TestParseManifest(t *testing.T) {
	data := []byte(`
service:
  enabled: true
  tabstrip:
    height: 72
rules:
  - scope:
      level: window
      uuid: app
      name: w1
    config:
      enabled: false
  - scope:
      level: application
      uuid:
        expression: "^tool-"
        flags: i
    config:
      features:
        snap: false
`)
	m, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.Service == nil || m.Service.Tabstrip == nil || *m.Service.Tabstrip.Height != 72 {
		t.Fatalf("unexpected service section: %+v", m.Service)
	}
	if len(m.Rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(m.Rules))
	}

	s := New()
	if err := s.AddManifest(ServiceScope(), m); err != nil {
		t.Fatalf("add manifest: %v", err)
	}
	if s.Enabled(WindowScope("app", "w1")) {
		t.Fatal("manifest rule should disable (app,w1)")
	}
	if s.Resolve(WindowScope("TOOL-box", "main")).Snap {
		t.Fatal("case-insensitive regex rule should disable snap for TOOL-box")
	}
	if got := s.Resolve(WindowScope("app", "w2")).TabstripHeight; got != 72 {
		t.Fatalf("expected service tabstrip height 72, got %d", got)
	}
}

func TestParseManifestRejectsUnknownFields(t *testing.T) {
	if _, err := ParseManifest([]byte("service:\n  enabeld: true\n")); err == nil {
		t.Fatal("expected error for unknown field")
	}
}
