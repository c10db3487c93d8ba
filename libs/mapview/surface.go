package mapview

import "sort"

// MemorySurface is an in-process Surface. It counts attachments so callers can
// check that nothing was stacked twice.
type MemorySurface struct {
	overlays map[string]int
	bases    []BaseLayer
	ops      []string
}

// NewMemorySurface returns an empty surface.
func NewMemorySurface() *MemorySurface {
	return &MemorySurface{overlays: make(map[string]int)}
}

// AddOverlay implements Surface.
func (s *MemorySurface) AddOverlay(name string) {
	s.overlays[name]++
	s.ops = append(s.ops, "add-overlay:"+name)
}

// RemoveOverlay implements Surface.
func (s *MemorySurface) RemoveOverlay(name string) {
	if s.overlays[name] <= 1 {
		delete(s.overlays, name)
	} else {
		s.overlays[name]--
	}
	s.ops = append(s.ops, "remove-overlay:"+name)
}

// HasOverlay implements Surface.
func (s *MemorySurface) HasOverlay(name string) bool {
	return s.overlays[name] > 0
}

// AddBase implements Surface.
func (s *MemorySurface) AddBase(layer BaseLayer) {
	s.bases = append(s.bases, layer)
	s.ops = append(s.ops, "add-base:"+layer.Name)
}

// RemoveBase implements Surface.
func (s *MemorySurface) RemoveBase(layer BaseLayer) {
	for i, attached := range s.bases {
		if attached.Name == layer.Name {
			s.bases = append(s.bases[:i], s.bases[i+1:]...)
			break
		}
	}
	s.ops = append(s.ops, "remove-base:"+layer.Name)
}

// OverlayCount returns how many times name is attached.
func (s *MemorySurface) OverlayCount(name string) int {
	return s.overlays[name]
}

// ActiveOverlays returns the attached overlay names, sorted.
func (s *MemorySurface) ActiveOverlays() []string {
	names := make([]string, 0, len(s.overlays))
	for name := range s.overlays {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bases returns the attached base layers.
func (s *MemorySurface) Bases() []BaseLayer {
	return append([]BaseLayer(nil), s.bases...)
}

// Ops returns the operation log.
func (s *MemorySurface) Ops() []string {
	return append([]string(nil), s.ops...)
}
