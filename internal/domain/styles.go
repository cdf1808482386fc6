package domain

// Styles maps a CSS property to its value.
type Styles map[string]string

// Clone returns a copy of s (nil stays nil).
func (s Styles) Clone() Styles {
	if s == nil {
		return nil
	}
	out := make(Styles, len(s))
	for k, v := range s {
		out[k] = v
	}
	return out
}

// Merge returns s overlaid with patch. Empty values in patch delete the property.
func (s Styles) Merge(patch Styles) Styles {
	out := s.Clone()
	if out == nil {
		out = Styles{}
	}
	for k, v := range patch {
		if v == "" {
			delete(out, k)
			continue
		}
		out[k] = v
	}
	return out
}

// Breakpoint names a viewport-width bucket.
type Breakpoint string

const (
	BreakpointDesktop Breakpoint = "desktop"
	BreakpointLaptop  Breakpoint = "laptop"
	BreakpointTablet  Breakpoint = "tablet"
	BreakpointMobile  Breakpoint = "mobile"
)

// Breakpoints is ordered widest first.
var Breakpoints = []Breakpoint{BreakpointDesktop, BreakpointLaptop, BreakpointTablet, BreakpointMobile}

func (bp Breakpoint) rank() int {
	for i, b := range Breakpoints {
		if b == bp {
			return i
		}
	}
	return -1
}

// Valid reports whether bp is a known breakpoint.
func (bp Breakpoint) Valid() bool { return bp.rank() >= 0 }

// ResponsiveStyles holds per-breakpoint partial overrides.
type ResponsiveStyles map[Breakpoint]Styles

func (r ResponsiveStyles) Clone() ResponsiveStyles {
	if r == nil {
		return nil
	}
	out := make(ResponsiveStyles, len(r))
	for bp, s := range r {
		out[bp] = s.Clone()
	}
	return out
}

// Resolve overlays base with every override from the widest breakpoint down to
// and including active, so narrower breakpoints win.
func (r ResponsiveStyles) Resolve(base Styles, active Breakpoint) Styles {
	out := base.Clone()
	if out == nil {
		out = Styles{}
	}
	limit := active.rank()
	if limit < 0 {
		return out
	}
	for _, bp := range Breakpoints[:limit+1] {
		for k, v := range r[bp] {
			out[k] = v
		}
	}
	return out
}
