package gametypes

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RegionNameProperty is the GeoJSON feature property holding the region name.
const RegionNameProperty = "seg"

//go:embed regions.geojson
var defaultRegions []byte

// ErrUnknownRegion is returned when a name is neither a catalog region nor "all".
var ErrUnknownRegion = errors.New("unknown region")

// Region is a named polygon of the game map.
type Region struct {
	Name    string
	Polygon orb.Polygon
}

// DisplayName replaces underscores for presentation.
func (r Region) DisplayName() string {
	return strings.ReplaceAll(r.Name, "_", " ")
}

// Outer returns the outer ring as plain [x, y] vertices.
func (r Region) Outer() [][2]float64 {
	if len(r.Polygon) == 0 {
		return nil
	}
	ring := r.Polygon[0]
	out := make([][2]float64, len(ring))
	for i, p := range ring {
		out[i] = [2]float64{p[0], p[1]}
	}
	return out
}

// RegionCatalog is the set of selectable regions keyed by name.
type RegionCatalog struct {
	regions map[string]Region
}

// DefaultRegions returns the catalog bundled with the module.
func DefaultRegions() *RegionCatalog {
	c, err := ParseRegions(defaultRegions)
	if err != nil {
		panic(fmt.Sprintf("bundled region catalog: %v", err))
	}
	return c
}

// LoadRegions reads a GeoJSON FeatureCollection from disk. An empty path
// returns the bundled catalog.
func LoadRegions(path string) (*RegionCatalog, error) {
	if path == "" {
		return DefaultRegions(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read region catalog: %w", err)
	}
	return ParseRegions(data)
}

// ParseRegions builds a catalog from GeoJSON. Only Polygon features are
// accepted; for a MultiPolygon the first polygon is used.
func ParseRegions(data []byte) (*RegionCatalog, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse region catalog: %w", err)
	}

	c := &RegionCatalog{regions: make(map[string]Region, len(fc.Features))}
	for i, f := range fc.Features {
		name := f.Properties.MustString(RegionNameProperty, "")
		if name == "" {
			return nil, fmt.Errorf("feature %d has no %q property", i, RegionNameProperty)
		}
		if name == RegionAll {
			return nil, fmt.Errorf("feature %d uses reserved region name %q", i, RegionAll)
		}

		var poly orb.Polygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			poly = g
		case orb.MultiPolygon:
			if len(g) > 0 {
				poly = g[0]
			}
		default:
			return nil, fmt.Errorf("region %q: unsupported geometry %s", name, f.Geometry.GeoJSONType())
		}
		if len(poly) == 0 || len(poly[0]) < 3 {
			return nil, fmt.Errorf("region %q: polygon needs at least three vertices", name)
		}
		c.regions[name] = Region{Name: name, Polygon: poly}
	}
	return c, nil
}

// Lookup returns a catalog region.
func (c *RegionCatalog) Lookup(name string) (Region, bool) {
	r, ok := c.regions[name]
	return r, ok
}

// Validate accepts catalog names and "all". Empty selects "all".
func (c *RegionCatalog) Validate(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || name == RegionAll {
		return RegionAll, nil
	}
	if _, ok := c.regions[name]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownRegion, name)
	}
	return name, nil
}

// Names lists the region names in sorted order.
func (c *RegionCatalog) Names() []string {
	names := make([]string, 0, len(c.regions))
	for n := range c.regions {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
