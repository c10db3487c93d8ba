package mapview

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownLayer     = errors.New("unknown overlay layer")
	ErrUnknownBaseLayer = errors.New("unknown base layer")
)

// Overlay names.
const (
	OverlayHeatmap   = "heatmap"
	OverlayProtected = "protected"
	OverlayLandUse   = "landuse"
	OverlaySoil      = "soil"
)

// OverlayInfo describes a toggleable overlay.
type OverlayInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Overlays is the fixed overlay set, all inactive on mount.
var Overlays = []OverlayInfo{
	{ID: OverlayHeatmap, Label: "Heatmap"},
	{ID: OverlayProtected, Label: "Protected Areas"},
	{ID: OverlayLandUse, Label: "Land Use"},
	{ID: OverlaySoil, Label: "Soil Type"},
}

// BaseLayer is a tile source that fills the whole map.
type BaseLayer struct {
	Name        string `json:"name"`
	URL         string `json:"url"`
	Attribution string `json:"attribution"`
	Subdomains  string `json:"subdomains,omitempty"`
	MaxZoom     int    `json:"max_zoom"`
}

const osmAttribution = `&copy; <a href="https://www.openstreetmap.org/copyright">OpenStreetMap</a> contributors`

// BaseLayers is the set of tile sources the map can switch between.
var BaseLayers = []BaseLayer{
	{
		Name:        "dark",
		URL:         "https://{s}.basemaps.cartocdn.com/dark_all/{z}/{x}/{y}{r}.png",
		Attribution: osmAttribution + ` &copy; <a href="https://carto.com/attributions">CARTO</a>`,
		Subdomains:  "abcd",
		MaxZoom:     19,
	},
	{
		Name:        "dark-normal",
		URL:         "https://tiles.stadiamaps.com/tiles/alidade_smooth_dark/{z}/{x}/{y}.png",
		Attribution: `&copy; <a href="https://stadiamaps.com/">Stadia Maps</a>, &copy; <a href="https://openmaptiles.org/">OpenMapTiles</a> &copy; <a href="http://openstreetmap.org">OpenStreetMap</a> contributors`,
		MaxZoom:     20,
	},
	{
		Name:        "topographic",
		URL:         "https://{s}.tile.opentopomap.org/{z}/{x}/{y}.png",
		Attribution: `Map data: ` + osmAttribution + `, <a href="http://viewfinderpanoramas.org">SRTM</a> | Map style: &copy; <a href="https://opentopomap.org">OpenTopoMap</a> (<a href="https://creativecommons.org/licenses/by-sa/3.0/">CC-BY-SA</a>)`,
		MaxZoom:     17,
	},
	{
		Name:        "light",
		URL:         "https://{s}.basemaps.cartocdn.com/light_all/{z}/{x}/{y}{r}.png",
		Attribution: osmAttribution + ` &copy; <a href="https://carto.com/attributions">CARTO</a>`,
		Subdomains:  "abcd",
		MaxZoom:     19,
	},
	{
		Name:        "satellite",
		URL:         "https://server.arcgisonline.com/ArcGIS/rest/services/World_Imagery/MapServer/tile/{z}/{y}/{x}",
		Attribution: "Tiles &copy; Esri &mdash; Source: Esri, i-cubed, USDA, USGS, AEX, GeoEye, Getmapping, Aerogrid, IGN, IGP, UPR-EGP, and the GIS User Community",
		MaxZoom:     19,
	},
	{
		Name:        "street",
		URL:         "https://{s}.tile.openstreetmap.org/{z}/{x}/{y}.png",
		Attribution: osmAttribution,
		MaxZoom:     19,
	},
}

// DefaultBaseLayer is attached when a view mounts.
const DefaultBaseLayer = "dark"

// FindBaseLayer looks a base layer up by name.
func FindBaseLayer(name string) (BaseLayer, bool) {
	for _, layer := range BaseLayers {
		if layer.Name == name {
			return layer, true
		}
	}
	return BaseLayer{}, false
}

// Surface is the map the controller attaches layers to.
type Surface interface {
	AddOverlay(name string)
	RemoveOverlay(name string)
	HasOverlay(name string) bool
	AddBase(layer BaseLayer)
	RemoveBase(layer BaseLayer)
}

// LayerController toggles overlays and switches the base layer on a Surface.
// It is not safe for concurrent use.
type LayerController struct {
	surface Surface
	known   map[string]struct{}
	base    *BaseLayer
}

// NewLayerController returns a controller over surface with every overlay
// inactive and no base layer attached.
func NewLayerController(surface Surface) *LayerController {
	known := make(map[string]struct{}, len(Overlays))
	for _, overlay := range Overlays {
		known[overlay.ID] = struct{}{}
	}
	return &LayerController{surface: surface, known: known}
}

// SetLayerActive attaches or detaches an overlay. Repeating a call with the same
// value changes nothing. It reports whether the surface changed.
func (c *LayerController) SetLayerActive(name string, active bool) (bool, error) {
	if _, ok := c.known[name]; !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownLayer, name)
	}
	present := c.surface.HasOverlay(name)
	switch {
	case active && !present:
		c.surface.AddOverlay(name)
		return true, nil
	case !active && present:
		c.surface.RemoveOverlay(name)
		return true, nil
	default:
		return false, nil
	}
}

// Active reports whether an overlay is attached.
func (c *LayerController) Active(name string) bool {
	return c.surface.HasOverlay(name)
}

// SetBaseLayer replaces the current base layer with name, removing the old one
// before adding the new one.
func (c *LayerController) SetBaseLayer(name string) error {
	next, ok := FindBaseLayer(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownBaseLayer, name)
	}
	if c.base != nil {
		if c.base.Name == name {
			return nil
		}
		c.surface.RemoveBase(*c.base)
	}
	c.surface.AddBase(next)
	c.base = &next
	return nil
}

// BaseLayer returns the attached base layer name, or "".
func (c *LayerController) BaseLayer() string {
	if c.base == nil {
		return ""
	}
	return c.base.Name
}
