// Package mapview turns GeoJSON feature collections into styled map markers,
// keeps a legend in sync with the colors handed out, and tracks which base and
// overlay layers are attached to a map surface.
package mapview

// SpeciesPalette is the fixed palette handed out to tree species in first-seen
// order. It repeats two colors; assignment still goes strictly by index.
var SpeciesPalette = []string{
	"#FF5733", "#33FF57", "#3357FF", "#FF33A8", "#33FFF5",
	"#FFD133", "#8C33FF", "#FF8C33", "#33FFBD", "#FF3333",
	"#33FF33", "#3333FF", "#FF33FF", "#33FFFF", "#FFFF33",
	"#C733FF", "#FF5733", "#33FFA8", "#A833FF", "#FF33A8",
}

// GerminationStatuses lists the seed lifecycle states in legend order.
var GerminationStatuses = []string{
	"not_germinated",
	"germinating",
	"partially_germinated",
	"fully_germinated",
	"failed",
}

// GerminationColors is the fixed seed legend.
var GerminationColors = map[string]string{
	"not_germinated":       "#8B4513",
	"germinating":          "#9ACD32",
	"partially_germinated": "#32CD32",
	"fully_germinated":     "#228B22",
	"failed":               "#A52A2A",
}

// FallbackColor styles features whose discriminator is empty.
const FallbackColor = "#808080"

// LegendEntry pairs an entity with its assigned color.
type LegendEntry struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// ColorAssigner maps discriminator values to palette colors in first-seen
// order, wrapping around once the palette is exhausted. A value keeps its color
// for the lifetime of the assigner. It is not safe for concurrent use.
type ColorAssigner struct {
	palette []string
	next    int
	order   []string
	colors  map[string]string
}

// NewColorAssigner returns an assigner over palette. An empty palette falls
// back to SpeciesPalette.
func NewColorAssigner(palette []string) *ColorAssigner {
	if len(palette) == 0 {
		palette = SpeciesPalette
	}
	return &ColorAssigner{
		palette: append([]string(nil), palette...),
		colors:  make(map[string]string),
	}
}

// NewGerminationAssigner returns an assigner preloaded with the seed legend.
func NewGerminationAssigner() *ColorAssigner {
	assigner := NewColorAssigner(nil)
	for _, status := range GerminationStatuses {
		assigner.Preassign(status, GerminationColors[status])
	}
	return assigner
}

// Assign returns the color for key, assigning the next palette entry the first
// time key is seen.
func (a *ColorAssigner) Assign(key string) string {
	if color, ok := a.colors[key]; ok {
		return color
	}
	color := a.palette[a.next%len(a.palette)]
	a.next++
	a.colors[key] = color
	a.order = append(a.order, key)
	return color
}

// Preassign pins key to color without consuming a palette slot. It has no
// effect if key already has a color.
func (a *ColorAssigner) Preassign(key, color string) {
	if _, ok := a.colors[key]; ok {
		return
	}
	a.colors[key] = color
	a.order = append(a.order, key)
}

// Lookup returns the assigned color of key without assigning one.
func (a *ColorAssigner) Lookup(key string) (string, bool) {
	color, ok := a.colors[key]
	return color, ok
}

// Len returns the number of assigned keys.
func (a *ColorAssigner) Len() int {
	return len(a.order)
}

// Legend returns every assignment in assignment order.
func (a *ColorAssigner) Legend() []LegendEntry {
	entries := make([]LegendEntry, 0, len(a.order))
	for _, key := range a.order {
		entries = append(entries, LegendEntry{Label: key, Color: a.colors[key]})
	}
	return entries
}

// Reset forgets every assignment, including preassigned ones.
func (a *ColorAssigner) Reset() {
	a.next = 0
	a.order = nil
	a.colors = make(map[string]string)
}
