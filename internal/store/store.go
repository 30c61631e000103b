// Package store implements the layered, scoped configuration store that
// gates engine participation per window. Entries carry a source scope and
// optional scope-pattern rules; the effective configuration for a target
// scope is the deep merge of every matching entry, broader scopes first.
package store

import (
	"fmt"
	"reflect"
	"sort"
)

// Rule attaches a partial config to a scope pattern inside an entry.
type Rule struct {
	Scope  RuleScope `yaml:"scope" json:"scope"`
	Config Config    `yaml:"config" json:"config"`
}

type entry struct {
	seq    int
	source Scope
	config Config
	rules  []Rule
}

// Watcher observes masked query results for one scope.
type Watcher struct {
	store *Store
	id    int
}

// Close detaches the watcher.
func (w *Watcher) Close() {
	if w.store != nil {
		delete(w.store.watchers, w.id)
		w.store = nil
	}
}

type watcherState struct {
	scope Scope
	mask  Mask
	last  Config
	fn    func(Config)
}

// Store is the configuration store. It is a plain in-process structure;
// mutations happen only through Add and RemoveFromSource, which are
// synchronous and must run on the engine loop.
type Store struct {
	seq      int
	entries  []entry
	watchers map[int]*watcherState
	nextWat  int
}

// New creates a store seeded with the built-in service-scope defaults.
func New() *Store {
	s := &Store{watchers: make(map[int]*watcherState)}
	s.addEntry(ServiceScope(), DefaultConfig(), nil)
	return s
}

// Add inserts an entry from source. Every rule must target the source's
// level or below; a broader rule is rejected with ErrInvalidScope.
func (s *Store) Add(source Scope, cfg Config, rules ...Rule) error {
	for _, r := range rules {
		if r.Scope.Level < source.Level {
			return fmt.Errorf("%w: rule level %s is broader than source %s",
				ErrInvalidScope, r.Scope.Level, source)
		}
	}
	s.addEntry(source, cfg, rules)
	s.notify()
	return nil
}

func (s *Store) addEntry(source Scope, cfg Config, rules []Rule) {
	s.seq++
	s.entries = append(s.entries, entry{
		seq:    s.seq,
		source: source,
		config: cfg,
		rules:  rules,
	})
}

// RemoveFromSource drops every entry added from source. The built-in
// defaults cannot be removed.
func (s *Store) RemoveFromSource(source Scope) {
	kept := s.entries[:0]
	for _, e := range s.entries {
		if e.source == source && e.seq > 1 {
			continue
		}
		kept = append(kept, e)
	}
	s.entries = kept
	s.notify()
}

type contribution struct {
	level Level
	seq   int
	cfg   Config
}

// effective deep-merges every contribution that matches target, in
// ascending priority: broader levels first, insertion order within a
// level.
func (s *Store) effective(target Scope) Config {
	var contribs []contribution
	for _, e := range s.entries {
		if e.source.Covers(target) {
			contribs = append(contribs, contribution{level: e.source.Level, seq: e.seq, cfg: e.config})
		}
		for _, r := range e.rules {
			if r.Scope.Matches(target) {
				contribs = append(contribs, contribution{level: r.Scope.Level, seq: e.seq, cfg: r.Config})
			}
		}
	}
	sort.SliceStable(contribs, func(i, j int) bool {
		if contribs[i].level != contribs[j].level {
			return contribs[i].level < contribs[j].level
		}
		return contribs[i].seq < contribs[j].seq
	})

	var out Config
	for _, c := range contribs {
		merge(&out, c.cfg)
	}
	return out
}

// Query returns the masked effective configuration at scope.
func (s *Store) Query(scope Scope, mask Mask) Config {
	return applyMask(s.effective(scope), mask)
}

// Resolve returns the fully-defaulted effective configuration at scope.
func (s *Store) Resolve(scope Scope) Resolved {
	return resolve(s.effective(scope))
}

// Enabled reports whether the window addressed by scope participates in
// the engine at all.
func (s *Store) Enabled(scope Scope) bool {
	return s.Resolve(scope).Enabled
}

// Watch calls fn whenever the masked query result at scope changes. The
// current result is not delivered immediately.
func (s *Store) Watch(scope Scope, mask Mask, fn func(Config)) *Watcher {
	s.nextWat++
	s.watchers[s.nextWat] = &watcherState{
		scope: scope,
		mask:  mask,
		last:  s.Query(scope, mask),
		fn:    fn,
	}
	return &Watcher{store: s, id: s.nextWat}
}

func (s *Store) notify() {
	for _, w := range s.watchers {
		next := s.Query(w.scope, w.mask)
		if reflect.DeepEqual(next, w.last) {
			continue
		}
		w.last = next
		w.fn(next)
	}
}
