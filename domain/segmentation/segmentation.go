// Package segmentation handles the GeoJSON documents that partition a site
// into regions and bind filter pipelines to them. Geometry is carried by
// paulmach/orb; only polygonal features are meaningful here.
package segmentation

import (
	"encoding/json"
	"fmt"
	"os"
	"reflect"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"github.com/ssciwr/afwizard/domain/dataset"
)

// Property keys written by the binder.
const (
	PropertyPipeline      = "pipeline"
	PropertyPipelineTitle = "pipeline_title"
)

// styleProperty carries transient map styling from interactive sessions
// and is stripped when saving.
const styleProperty = "style"

// Segmentation is a feature collection over a site with an associated
// spatial reference.
type Segmentation struct {
	Collection *geojson.FeatureCollection
	SRS        string
}

// Parse decodes a GeoJSON segmentation document.
func Parse(data []byte, srs string) (*Segmentation, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("parsing segmentation: %w", err)
	}
	normalized, err := dataset.CheckSRS(srs)
	if err != nil {
		return nil, err
	}
	return &Segmentation{Collection: fc, SRS: normalized}, nil
}

// Load reads a segmentation from a .geojson file.
func Load(path, srs string) (*Segmentation, error) {
	if _, err := dataset.EnsureExtension(path, []string{".geojson"}, ""); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading segmentation: %w", err)
	}
	return Parse(data, srs)
}

// Save writes the segmentation to a .geojson file, dropping transient
// style properties.
func (s *Segmentation) Save(path string) error {
	path, err := dataset.EnsureExtension(path, []string{".geojson"}, ".geojson")
	if err != nil {
		return err
	}

	out := geojson.NewFeatureCollection()
	for _, f := range s.Collection.Features {
		clean := geojson.NewFeature(f.Geometry)
		for k, v := range f.Properties {
			if k == styleProperty {
				continue
			}
			clean.Properties[k] = v
		}
		out.Append(clean)
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding segmentation: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing segmentation: %w", err)
	}
	return nil
}

// Classes returns the distinct values of the classification property,
// sorted. Features without the property are ignored.
func (s *Segmentation) Classes(property string) []string {
	seen := map[string]bool{}
	for _, f := range s.Collection.Features {
		if v, ok := stringProperty(f, property); ok {
			seen[v] = true
		}
	}
	classes := make([]string, 0, len(seen))
	for c := range seen {
		classes = append(classes, c)
	}
	sort.Strings(classes)
	return classes
}

// MergeByProperty combines all features sharing a value of the given
// property into one MultiPolygon feature per value. Properties of the
// merged feature are those with identical values across the group.
func (s *Segmentation) MergeByProperty(property string) (*Segmentation, error) {
	var order []string
	groups := map[string][]*geojson.Feature{}
	for _, f := range s.Collection.Features {
		v, ok := stringProperty(f, property)
		if !ok {
			return nil, fmt.Errorf("feature without %q property cannot be merged", property)
		}
		if _, seen := groups[v]; !seen {
			order = append(order, v)
		}
		groups[v] = append(groups[v], f)
	}

	out := geojson.NewFeatureCollection()
	for _, v := range order {
		var mp orb.MultiPolygon
		for _, f := range groups[v] {
			polys, err := polygonsOf(f.Geometry)
			if err != nil {
				return nil, err
			}
			mp = append(mp, polys...)
		}
		merged := geojson.NewFeature(mp)
		merged.Properties = sharedProperties(groups[v])
		out.Append(merged)
	}
	return &Segmentation{Collection: out, SRS: s.SRS}, nil
}

// Split returns one single-feature segmentation per feature, in document
// order. The execution engine processes merged segments one at a time.
func (s *Segmentation) Split() []*Segmentation {
	parts := make([]*Segmentation, 0, len(s.Collection.Features))
	for _, f := range s.Collection.Features {
		fc := geojson.NewFeatureCollection()
		fc.Append(f)
		parts = append(parts, &Segmentation{Collection: fc, SRS: s.SRS})
	}
	return parts
}

// Property returns the named property of the first feature carrying it.
func (s *Segmentation) Property(key string) (string, bool) {
	for _, f := range s.Collection.Features {
		if v, ok := stringProperty(f, key); ok {
			return v, true
		}
	}
	return "", false
}

// PolygonsWKT renders every polygon of every feature as a WKT string, in
// document order. This is the form crop operations consume.
func (s *Segmentation) PolygonsWKT() ([]string, error) {
	var wkts []string
	for _, f := range s.Collection.Features {
		polys, err := polygonsOf(f.Geometry)
		if err != nil {
			return nil, err
		}
		for _, p := range polys {
			wkts = append(wkts, wkt.MarshalString(p))
		}
	}
	return wkts, nil
}

func polygonsOf(g orb.Geometry) ([]orb.Polygon, error) {
	switch geom := g.(type) {
	case orb.Polygon:
		return []orb.Polygon{geom}, nil
	case orb.MultiPolygon:
		return append([]orb.Polygon(nil), geom...), nil
	default:
		return nil, fmt.Errorf("segmentation features must be polygonal, got %T", g)
	}
}

func sharedProperties(features []*geojson.Feature) geojson.Properties {
	props := geojson.Properties{}
	for k, v := range features[0].Properties {
		if k == styleProperty {
			continue
		}
		shared := true
		for _, f := range features[1:] {
			if other, ok := f.Properties[k]; !ok || !reflect.DeepEqual(other, v) {
				shared = false
				break
			}
		}
		if shared {
			props[k] = v
		}
	}
	return props
}

func stringProperty(f *geojson.Feature, key string) (string, bool) {
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return "", false
	}
	switch s := v.(type) {
	case string:
		return s, true
	default:
		return fmt.Sprintf("%v", s), true
	}
}
