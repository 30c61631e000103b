package store

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrInvalidScope reports a scope or rule that violates the configuration
// hierarchy.
var ErrInvalidScope = errors.New("scope violates configuration hierarchy")

// Level is a depth in the configuration hierarchy. Lower values are
// broader.
type Level int

const (
	LevelService Level = iota
	LevelDesktop
	LevelApplication
	LevelWindow
)

func (l Level) String() string {
	switch l {
	case LevelService:
		return "service"
	case LevelDesktop:
		return "desktop"
	case LevelApplication:
		return "application"
	case LevelWindow:
		return "window"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

// ParseLevel maps a manifest level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "service":
		return LevelService, nil
	case "desktop":
		return LevelDesktop, nil
	case "application":
		return LevelApplication, nil
	case "window":
		return LevelWindow, nil
	default:
		return 0, fmt.Errorf("%w: unknown level %q", ErrInvalidScope, s)
	}
}

// UnmarshalYAML accepts level names.
func (l *Level) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseLevel(s)
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// MarshalYAML emits the level name.
func (l Level) MarshalYAML() (interface{}, error) {
	return l.String(), nil
}

// Scope addresses one node of the configuration hierarchy:
// service < desktop < application(uuid) < window(uuid, name).
type Scope struct {
	Level Level
	UUID  string
	Name  string
}

// ServiceScope is the broadest scope.
func ServiceScope() Scope { return Scope{Level: LevelService} }

// DesktopScope covers everything on the local desktop.
func DesktopScope() Scope { return Scope{Level: LevelDesktop} }

// ApplicationScope covers all windows of one application.
func ApplicationScope(uuid string) Scope {
	return Scope{Level: LevelApplication, UUID: uuid}
}

// WindowScope addresses a single window.
func WindowScope(uuid, name string) Scope {
	return Scope{Level: LevelWindow, UUID: uuid, Name: name}
}

func (s Scope) String() string {
	switch s.Level {
	case LevelApplication:
		return fmt.Sprintf("application(%s)", s.UUID)
	case LevelWindow:
		return fmt.Sprintf("window(%s,%s)", s.UUID, s.Name)
	default:
		return s.Level.String()
	}
}

// Covers reports whether s is broader-than-or-equal to target: the two
// scopes agree on every component s defines, and everything finer is
// wildcarded by s being broader.
func (s Scope) Covers(target Scope) bool {
	if s.Level > target.Level {
		return false
	}
	if s.Level >= LevelApplication && s.UUID != target.UUID {
		return false
	}
	if s.Level >= LevelWindow && s.Name != target.Name {
		return false
	}
	return true
}

// Pattern matches one scope component. It is either a literal string or a
// regular expression with optional inversion. The zero Pattern is a
// wildcard.
type Pattern struct {
	literal string
	hasLit  bool
	re      *regexp.Regexp
	invert  bool
}

// LiteralPattern matches exactly s.
func LiteralPattern(s string) Pattern {
	return Pattern{literal: s, hasLit: true}
}

// RegexPattern compiles expression with the given flags ("i", "s" and "m"
// are recognized) into a Pattern.
func RegexPattern(expression, flags string, invert bool) (Pattern, error) {
	expr := expression
	if mod := regexFlags(flags); mod != "" {
		expr = "(?" + mod + ")" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return Pattern{}, fmt.Errorf("%w: bad pattern %q: %v", ErrInvalidScope, expression, err)
	}
	return Pattern{re: re, invert: invert}, nil
}

func regexFlags(flags string) string {
	var mod strings.Builder
	for _, f := range flags {
		switch f {
		case 'i', 's', 'm':
			mod.WriteRune(f)
		}
	}
	return mod.String()
}

// IsWildcard reports whether the pattern matches any value.
func (p Pattern) IsWildcard() bool {
	return !p.hasLit && p.re == nil
}

// Match reports whether v satisfies the pattern.
func (p Pattern) Match(v string) bool {
	switch {
	case p.hasLit:
		return p.literal == v
	case p.re != nil:
		matched := p.re.MatchString(v)
		if p.invert {
			return !matched
		}
		return matched
	default:
		return true
	}
}

// regexNode is the manifest shape of a regular-expression pattern.
type regexNode struct {
	Expression string `yaml:"expression" json:"expression"`
	Flags      string `yaml:"flags,omitempty" json:"flags,omitempty"`
	Invert     bool   `yaml:"invert,omitempty" json:"invert,omitempty"`
}

// UnmarshalYAML accepts either a scalar literal or a
// {expression, flags, invert} mapping.
func (p *Pattern) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		*p = LiteralPattern(s)
		return nil
	}
	var node regexNode
	if err := value.Decode(&node); err != nil {
		return err
	}
	parsed, err := RegexPattern(node.Expression, node.Flags, node.Invert)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// RuleScope is a pattern over scopes attached to a configuration entry.
type RuleScope struct {
	Level Level   `yaml:"level"`
	UUID  Pattern `yaml:"uuid,omitempty"`
	Name  Pattern `yaml:"name,omitempty"`
}

// Matches reports whether the rule selects target. A rule targets scopes
// at its own level and below, matching the components its patterns name.
func (r RuleScope) Matches(target Scope) bool {
	if r.Level > target.Level {
		return false
	}
	if r.Level >= LevelApplication && !r.UUID.Match(target.UUID) {
		return false
	}
	if r.Level >= LevelWindow && !r.Name.Match(target.Name) {
		return false
	}
	return true
}
