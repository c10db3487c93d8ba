package mapview

// Bounds is a lat/lng rectangle. The zero value is empty.
type Bounds struct {
	South float64 `json:"south"`
	West  float64 `json:"west"`
	North float64 `json:"north"`
	East  float64 `json:"east"`
	set   bool
}

// Extend grows b to contain lat, lng.
func (b *Bounds) Extend(lat, lng float64) {
	if !b.set {
		b.South, b.North, b.West, b.East = lat, lat, lng, lng
		b.set = true
		return
	}
	b.South = min(b.South, lat)
	b.North = max(b.North, lat)
	b.West = min(b.West, lng)
	b.East = max(b.East, lng)
}

// Empty reports whether no point was added.
func (b Bounds) Empty() bool {
	return !b.set
}

// Contains reports whether lat, lng lies inside b, edges included.
func (b Bounds) Contains(lat, lng float64) bool {
	return b.set && lat >= b.South && lat <= b.North && lng >= b.West && lng <= b.East
}

// Center returns the midpoint as [lat, lng].
func (b Bounds) Center() [2]float64 {
	return [2]float64{(b.South + b.North) / 2, (b.West + b.East) / 2}
}

// Viewport is the visible map region.
type Viewport struct {
	Center [2]float64 `json:"center"`
	Zoom   int        `json:"zoom"`
	Bounds *Bounds    `json:"bounds,omitempty"`
}

// Negros Island default view.
var DefaultViewport = Viewport{Center: [2]float64{10.0, 123.0}, Zoom: 9}

// Fit moves the viewport onto b. An empty b leaves it unchanged.
func (v *Viewport) Fit(b *Bounds) bool {
	if b == nil || b.Empty() {
		return false
	}
	fitted := *b
	v.Bounds = &fitted
	v.Center = b.Center()
	return true
}
