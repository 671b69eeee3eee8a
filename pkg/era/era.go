package era

import (
	"fmt"
	"math"
)

// Coverage bounds every table must span.
const (
	CoverageStart int64 = -5_000_000_000
	CoverageEnd   int64 = 10_000_000_000
)

// Theme is the visual treatment of an era backdrop.
type Theme struct {
	Gradient string `yaml:"gradient" json:"gradient"`
	Image    string `yaml:"image,omitempty" json:"image,omitempty"`
}

// Background returns the CSS background-image value for the theme. An image,
// when set, is layered over the gradient.
func (t Theme) Background() string {
	if t.Image != "" {
		return fmt.Sprintf("url(%s), %s", t.Image, t.Gradient)
	}
	return t.Gradient
}

// Era is a named time interval. StartYear is inclusive, EndYear exclusive.
type Era struct {
	Name      string `yaml:"name" json:"name"`
	StartYear int64  `yaml:"start_year" json:"start_year"`
	EndYear   int64  `yaml:"end_year" json:"end_year"`
	Theme     Theme  `yaml:",inline" json:"theme"`
}

// Contains reports whether year falls inside the era.
func (e Era) Contains(year int64) bool {
	return year >= e.StartYear && year < e.EndYear
}

// Table is an ordered list of eras.
type Table []Era

// Resolve returns the first era containing year. Years outside every era
// resolve to the first era.
func (t Table) Resolve(year int64) Era {
	for _, e := range t {
		if e.Contains(year) {
			return e
		}
	}
	if len(t) == 0 {
		return Era{}
	}
	return t[0]
}

// ResolveFloat resolves a fractional year such as a range midpoint.
func (t Table) ResolveFloat(year float64) Era {
	if math.IsNaN(year) {
		return t.Resolve(math.MinInt64)
	}
	if year >= math.MaxInt64 {
		return t.Resolve(math.MaxInt64)
	}
	if year <= math.MinInt64 {
		return t.Resolve(math.MinInt64)
	}
	return t.Resolve(int64(math.Floor(year)))
}

// Names returns era names in table order.
func (t Table) Names() []string {
	names := make([]string, len(t))
	for i, e := range t {
		names[i] = e.Name
	}
	return names
}

// Validate checks that eras are ordered, non-empty, contiguous and cover
// [CoverageStart, CoverageEnd).
func (t Table) Validate() error {
	if len(t) == 0 {
		return fmt.Errorf("era table is empty")
	}
	if t[0].StartYear > CoverageStart {
		return fmt.Errorf("era table starts at %d, must cover %d", t[0].StartYear, CoverageStart)
	}
	if last := t[len(t)-1]; last.EndYear < CoverageEnd {
		return fmt.Errorf("era table ends at %d, must cover %d", last.EndYear, CoverageEnd)
	}
	seen := make(map[string]bool, len(t))
	for i, e := range t {
		if e.Name == "" {
			return fmt.Errorf("era %d has no name", i)
		}
		if seen[e.Name] {
			return fmt.Errorf("duplicate era name %q", e.Name)
		}
		seen[e.Name] = true
		if e.StartYear >= e.EndYear {
			return fmt.Errorf("era %q is empty: [%d, %d)", e.Name, e.StartYear, e.EndYear)
		}
		if i > 0 && t[i-1].EndYear != e.StartYear {
			return fmt.Errorf("gap or overlap between %q and %q", t[i-1].Name, e.Name)
		}
	}
	return nil
}

func gradient(r, g, b int) string {
	return fmt.Sprintf("radial-gradient(ellipse at center, rgba(%d, %d, %d, 0.3) 0%%, rgba(0, 0, 0, 0.6) 100%%)", r, g, b)
}

// Default returns the built-in backdrop table.
func Default() Table {
	return Table{
		{Name: "Hadean", StartYear: -5_000_000_000, EndYear: -4_000_000_000, Theme: Theme{Gradient: gradient(139, 69, 19)}},
		{Name: "Archean", StartYear: -4_000_000_000, EndYear: -2_500_000_000, Theme: Theme{Gradient: gradient(75, 0, 130)}},
		{Name: "Proterozoic", StartYear: -2_500_000_000, EndYear: -541_000_000, Theme: Theme{Gradient: gradient(0, 100, 0)}},
		{Name: "Paleozoic", StartYear: -541_000_000, EndYear: -252_000_000, Theme: Theme{Gradient: gradient(0, 150, 255)}},
		{Name: "Mesozoic", StartYear: -252_000_000, EndYear: -66_000_000, Theme: Theme{Gradient: gradient(34, 139, 34)}},
		{Name: "Cenozoic", StartYear: -66_000_000, EndYear: -10_000, Theme: Theme{Gradient: gradient(255, 140, 0)}},
		{Name: "Human Era", StartYear: -10_000, EndYear: 2025, Theme: Theme{Gradient: gradient(70, 130, 180)}},
		{Name: "Future", StartYear: 2025, EndYear: 10_000_000_000, Theme: Theme{Gradient: gradient(138, 43, 226)}},
	}
}
