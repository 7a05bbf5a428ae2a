package segmentation_test

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/ssciwr/afwizard/domain/filter"
	"github.com/ssciwr/afwizard/domain/segmentation"
)

func square(x, y float64) orb.Polygon {
	return orb.Polygon{orb.Ring{{x, y}, {x + 1, y}, {x + 1, y + 1}, {x, y + 1}, {x, y}}}
}

func siteSegmentation() *segmentation.Segmentation {
	fc := geojson.NewFeatureCollection()
	for i, class := range []string{"forest", "meadow", "forest"} {
		f := geojson.NewFeature(square(float64(i*2), 0))
		f.Properties["class"] = class
		f.Properties["style"] = map[string]any{"color": "green"}
		fc.Append(f)
	}
	return &segmentation.Segmentation{Collection: fc, SRS: "EPSG:25833"}
}

func titled(title string) filter.Pipeline {
	return filter.Pipeline{
		Metadata: filter.Metadata{Title: title, Description: "d", Keywords: []string{"k"}},
		Filters:  []filter.Filter{{Backend: "ground", Type: "filters.slope"}},
	}
}

func TestClasses(t *testing.T) {
	s := siteSegmentation()
	got := s.Classes("class")
	want := []string{"forest", "meadow"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Classes = %v, want %v", got, want)
	}
	if got := s.Classes("missing"); len(got) != 0 {
		t.Errorf("Classes(missing) = %v, want empty", got)
	}
}

func TestBind_StampsHashAndTitle(t *testing.T) {
	s := siteSegmentation()
	p := titled("Forest filtering")

	if err := s.Bind("class", "forest", p); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	stamped := 0
	for _, f := range s.Collection.Features {
		if f.Properties["class"] != "forest" {
			if _, ok := f.Properties[segmentation.PropertyPipeline]; ok {
				t.Error("non-matching feature was stamped")
			}
			continue
		}
		stamped++
		if f.Properties[segmentation.PropertyPipeline] != p.Identity() {
			t.Errorf("pipeline = %v, want %s", f.Properties[segmentation.PropertyPipeline], p.Identity())
		}
		if f.Properties[segmentation.PropertyPipelineTitle] != "Forest filtering" {
			t.Errorf("pipeline_title = %v", f.Properties[segmentation.PropertyPipelineTitle])
		}
	}
	if stamped != 2 {
		t.Errorf("stamped %d features, want 2", stamped)
	}
}

func TestBind_OverwritesPreviousBinding(t *testing.T) {
	s := siteSegmentation()
	first := titled("First")
	second := titled("Second")

	if err := s.Bind("class", "meadow", first); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := s.Bind("class", "meadow", second); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	for _, f := range s.Collection.Features {
		if f.Properties["class"] == "meadow" && f.Properties[segmentation.PropertyPipeline] != second.Identity() {
			t.Error("re-binding must overwrite the previous hash")
		}
	}
}

func TestBind_UnknownClass(t *testing.T) {
	s := siteSegmentation()
	if err := s.Bind("class", "water", titled("x")); err == nil {
		t.Error("expected error for class matching no feature")
	}
}

func TestHashes_RequireFullBinding(t *testing.T) {
	s := siteSegmentation()
	if err := s.Bind("class", "forest", titled("Forest")); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if _, err := s.Hashes(); err == nil {
		t.Error("expected error while meadow is unbound")
	}

	if err := s.Bind("class", "meadow", titled("Meadow")); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	hashes, err := s.Hashes()
	if err != nil {
		t.Fatalf("Hashes: %v", err)
	}
	if len(hashes) != 2 {
		t.Errorf("hashes = %d, want 2", len(hashes))
	}
}

type mapResolver map[string]filter.Pipeline

func (m mapResolver) ResolveHash(hash string) (filter.Pipeline, error) {
	p, ok := m[hash]
	if !ok {
		return filter.Pipeline{}, os.ErrNotExist
	}
	return p, nil
}

func TestResolveAll_AllOrNothing(t *testing.T) {
	s := siteSegmentation()
	forest := titled("Forest")
	meadow := titled("Meadow")
	if err := s.Bind("class", "forest", forest); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := s.Bind("class", "meadow", meadow); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	_, err := s.ResolveAll(mapResolver{forest.Identity(): forest})
	if err == nil {
		t.Fatal("expected failure while meadow hash is unresolvable")
	}

	resolved, err := s.ResolveAll(mapResolver{forest.Identity(): forest, meadow.Identity(): meadow})
	if err != nil {
		t.Fatalf("ResolveAll: %v", err)
	}
	if len(resolved) != 2 {
		t.Errorf("resolved = %d pipelines, want 2", len(resolved))
	}
}

func TestMergeByProperty(t *testing.T) {
	s := siteSegmentation()
	merged, err := s.MergeByProperty("class")
	if err != nil {
		t.Fatalf("MergeByProperty: %v", err)
	}

	if got := len(merged.Collection.Features); got != 2 {
		t.Fatalf("merged features = %d, want 2", got)
	}
	forest := merged.Collection.Features[0]
	if forest.Properties["class"] != "forest" {
		t.Errorf("first merged class = %v, want forest (document order)", forest.Properties["class"])
	}
	mp, ok := forest.Geometry.(orb.MultiPolygon)
	if !ok {
		t.Fatalf("merged geometry = %T, want MultiPolygon", forest.Geometry)
	}
	if len(mp) != 2 {
		t.Errorf("forest polygons = %d, want 2", len(mp))
	}
	if merged.SRS != "EPSG:25833" {
		t.Errorf("SRS = %q", merged.SRS)
	}
}

func TestPolygonsWKT(t *testing.T) {
	s := siteSegmentation()
	wkts, err := s.PolygonsWKT()
	if err != nil {
		t.Fatalf("PolygonsWKT: %v", err)
	}
	if len(wkts) != 3 {
		t.Fatalf("wkts = %d, want 3", len(wkts))
	}
	for _, w := range wkts {
		if !strings.HasPrefix(w, "POLYGON") {
			t.Errorf("wkt %q does not start with POLYGON", w)
		}
	}
}

func TestLoadSave_RoundTripStripsStyle(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "site.geojson")

	s := siteSegmentation()
	if err := s.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := segmentation.Load(path, "EPSG:25833")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(loaded.Collection.Features); got != 3 {
		t.Fatalf("features = %d, want 3", got)
	}
	for _, f := range loaded.Collection.Features {
		if _, ok := f.Properties["style"]; ok {
			t.Error("style property must be stripped on save")
		}
		if _, ok := f.Properties["class"]; !ok {
			t.Error("class property must survive")
		}
	}

	if _, err := segmentation.Load(filepath.Join(dir, "site.json"), ""); err == nil {
		t.Error("expected extension error for .json")
	}
}

func TestParse_BadSRS(t *testing.T) {
	fc := geojson.NewFeatureCollection()
	data, err := fc.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if _, err := segmentation.Parse(data, "utm99"); err == nil {
		t.Error("expected error for invalid SRS")
	}
}
