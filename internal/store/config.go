package store

// Config is one partial configuration tree. Leaves are pointers so an
// entry only overrides what it names, the way raw config overlays work in
// layered YAML loading.
type Config struct {
	Enabled  *bool           `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Features *FeaturesConfig `yaml:"features,omitempty" json:"features,omitempty"`
	Tabstrip *TabstripConfig `yaml:"tabstrip,omitempty" json:"tabstrip,omitempty"`
	Preview  *PreviewConfig  `yaml:"preview,omitempty" json:"preview,omitempty"`
}

// FeaturesConfig gates individual engine features.
type FeaturesConfig struct {
	Snap *bool `yaml:"snap,omitempty" json:"snap,omitempty"`
	Tab  *bool `yaml:"tab,omitempty" json:"tab,omitempty"`
	Dock *bool `yaml:"dock,omitempty" json:"dock,omitempty"`
}

// TabstripConfig configures the tab-strip window created for tab groups.
type TabstripConfig struct {
	URL    *string `yaml:"url,omitempty" json:"url,omitempty"`
	Height *int    `yaml:"height,omitempty" json:"height,omitempty"`
}

// PreviewConfig configures the drag-preview window pool.
type PreviewConfig struct {
	PoolSize *int `yaml:"poolSize,omitempty" json:"poolSize,omitempty"`
}

// merge overlays src onto dst: every leaf src defines replaces dst's.
func merge(dst *Config, src Config) {
	if src.Enabled != nil {
		dst.Enabled = boolPtr(*src.Enabled)
	}
	if src.Features != nil {
		if dst.Features == nil {
			dst.Features = &FeaturesConfig{}
		}
		if src.Features.Snap != nil {
			dst.Features.Snap = boolPtr(*src.Features.Snap)
		}
		if src.Features.Tab != nil {
			dst.Features.Tab = boolPtr(*src.Features.Tab)
		}
		if src.Features.Dock != nil {
			dst.Features.Dock = boolPtr(*src.Features.Dock)
		}
	}
	if src.Tabstrip != nil {
		if dst.Tabstrip == nil {
			dst.Tabstrip = &TabstripConfig{}
		}
		if src.Tabstrip.URL != nil {
			dst.Tabstrip.URL = stringPtr(*src.Tabstrip.URL)
		}
		if src.Tabstrip.Height != nil {
			dst.Tabstrip.Height = intPtr(*src.Tabstrip.Height)
		}
	}
	if src.Preview != nil {
		if dst.Preview == nil {
			dst.Preview = &PreviewConfig{}
		}
		if src.Preview.PoolSize != nil {
			dst.Preview.PoolSize = intPtr(*src.Preview.PoolSize)
		}
	}
}

// Mask selects which fields a query populates. It is a parallel tree of
// booleans: a true leaf copies the resolved value, a non-nil subtree
// recurses.
type Mask struct {
	Enabled  bool          `json:"enabled,omitempty"`
	Features *FeaturesMask `json:"features,omitempty"`
	Tabstrip *TabstripMask `json:"tabstrip,omitempty"`
	Preview  *PreviewMask  `json:"preview,omitempty"`
}

// FeaturesMask selects feature leaves.
type FeaturesMask struct {
	Snap bool `json:"snap,omitempty"`
	Tab  bool `json:"tab,omitempty"`
	Dock bool `json:"dock,omitempty"`
}

// TabstripMask selects tab-strip leaves.
type TabstripMask struct {
	URL    bool `json:"url,omitempty"`
	Height bool `json:"height,omitempty"`
}

// PreviewMask selects preview leaves.
type PreviewMask struct {
	PoolSize bool `json:"poolSize,omitempty"`
}

// FullMask selects every recognized field.
func FullMask() Mask {
	return Mask{
		Enabled:  true,
		Features: &FeaturesMask{Snap: true, Tab: true, Dock: true},
		Tabstrip: &TabstripMask{URL: true, Height: true},
		Preview:  &PreviewMask{PoolSize: true},
	}
}

// applyMask walks mask and src in lock-step, copying leaves where the mask
// is true and recursing where it is a subtree.
func applyMask(src Config, mask Mask) Config {
	var out Config
	if mask.Enabled && src.Enabled != nil {
		out.Enabled = boolPtr(*src.Enabled)
	}
	if mask.Features != nil && src.Features != nil {
		f := &FeaturesConfig{}
		if mask.Features.Snap && src.Features.Snap != nil {
			f.Snap = boolPtr(*src.Features.Snap)
		}
		if mask.Features.Tab && src.Features.Tab != nil {
			f.Tab = boolPtr(*src.Features.Tab)
		}
		if mask.Features.Dock && src.Features.Dock != nil {
			f.Dock = boolPtr(*src.Features.Dock)
		}
		if *f != (FeaturesConfig{}) {
			out.Features = f
		}
	}
	if mask.Tabstrip != nil && src.Tabstrip != nil {
		ts := &TabstripConfig{}
		if mask.Tabstrip.URL && src.Tabstrip.URL != nil {
			ts.URL = stringPtr(*src.Tabstrip.URL)
		}
		if mask.Tabstrip.Height && src.Tabstrip.Height != nil {
			ts.Height = intPtr(*src.Tabstrip.Height)
		}
		if *ts != (TabstripConfig{}) {
			out.Tabstrip = ts
		}
	}
	if mask.Preview != nil && src.Preview != nil {
		p := &PreviewConfig{}
		if mask.Preview.PoolSize && src.Preview.PoolSize != nil {
			p.PoolSize = intPtr(*src.Preview.PoolSize)
		}
		if *p != (PreviewConfig{}) {
			out.Preview = p
		}
	}
	return out
}

// Defaults
const (
	DefaultTabstripURL    = "http://localhost:1337/tabstrip/tabstrip.html"
	DefaultTabstripHeight = 60
	DefaultPreviewPool    = 3
)

// DefaultConfig is the complete built-in configuration registered at
// service scope when a store is created.
func DefaultConfig() Config {
	return Config{
		Enabled: boolPtr(true),
		Features: &FeaturesConfig{
			Snap: boolPtr(true),
			Tab:  boolPtr(true),
			Dock: boolPtr(true),
		},
		Tabstrip: &TabstripConfig{
			URL:    stringPtr(DefaultTabstripURL),
			Height: intPtr(DefaultTabstripHeight),
		},
		Preview: &PreviewConfig{
			PoolSize: intPtr(DefaultPreviewPool),
		},
	}
}

// Resolved is the fully-defaulted effective configuration for one scope,
// convenient for engine-side policy checks.
type Resolved struct {
	Enabled        bool
	Snap           bool
	Tab            bool
	Dock           bool
	TabstripURL    string
	TabstripHeight int
	PreviewPool    int
}

func resolve(c Config) Resolved {
	r := Resolved{
		Enabled:        true,
		Snap:           true,
		Tab:            true,
		Dock:           true,
		TabstripURL:    DefaultTabstripURL,
		TabstripHeight: DefaultTabstripHeight,
		PreviewPool:    DefaultPreviewPool,
	}
	if c.Enabled != nil {
		r.Enabled = *c.Enabled
	}
	if c.Features != nil {
		if c.Features.Snap != nil {
			r.Snap = *c.Features.Snap
		}
		if c.Features.Tab != nil {
			r.Tab = *c.Features.Tab
		}
		if c.Features.Dock != nil {
			r.Dock = *c.Features.Dock
		}
	}
	if c.Tabstrip != nil {
		if c.Tabstrip.URL != nil {
			r.TabstripURL = *c.Tabstrip.URL
		}
		if c.Tabstrip.Height != nil {
			r.TabstripHeight = *c.Tabstrip.Height
		}
	}
	if c.Preview != nil && c.Preview.PoolSize != nil {
		r.PreviewPool = *c.Preview.PoolSize
	}
	return r
}

func boolPtr(b bool) *bool       { return &b }
func intPtr(i int) *int          { return &i }
func stringPtr(s string) *string { return &s }

// Bool is a manifest convenience for building partial configs in code.
func Bool(b bool) *bool { return &b }

// Int is a manifest convenience for building partial configs in code.
func Int(i int) *int { return &i }

// String is a manifest convenience for building partial configs in code.
func String(s string) *string { return &s }
