package registry_test

import (
	"context"
	"testing"

	"github.com/ssciwr/afwizard/core/registry"
	"github.com/ssciwr/afwizard/domain/dataset"
)

type fakeBackend struct {
	id      string
	enabled bool
}

func (b *fakeBackend) Identifier() string { return b.id }
func (b *fakeBackend) Schema() []byte     { return []byte(`{"anyOf": [{"type": "object"}]}`) }
func (b *fakeBackend) Enabled() bool      { return b.enabled }
func (b *fakeBackend) Execute(ctx context.Context, ds dataset.Dataset, cfg map[string]any) (dataset.Dataset, error) {
	return ds, nil
}

func TestRegister_DuplicateIdentifier(t *testing.T) {
	r := registry.New()

	if err := r.Register(&fakeBackend{id: "pdal"}); err != nil {
		t.Fatalf("first Register: %v", err)
	}
	if err := r.Register(&fakeBackend{id: "pdal"}); err == nil {
		t.Error("expected error for duplicate identifier")
	}
	if err := r.Register(&fakeBackend{id: ""}); err == nil {
		t.Error("expected error for empty identifier")
	}
}

func TestBackend_Lookup(t *testing.T) {
	r := registry.New()
	want := &fakeBackend{id: "lastools"}
	if err := r.Register(want); err != nil {
		t.Fatalf("Register: %v", err)
	}

	got, err := r.Backend("lastools")
	if err != nil {
		t.Fatalf("Backend: %v", err)
	}
	if got != want {
		t.Error("Backend returned a different instance")
	}

	if _, err := r.Backend("opals"); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestEnabled_FiltersAndKeepsRegistrationOrder(t *testing.T) {
	r := registry.New()
	for _, b := range []*fakeBackend{
		{id: "pdal", enabled: true},
		{id: "opals", enabled: false},
		{id: "lastools", enabled: true},
	} {
		if err := r.Register(b); err != nil {
			t.Fatalf("Register(%s): %v", b.id, err)
		}
	}

	enabled := r.Enabled()
	if len(enabled) != 2 {
		t.Fatalf("enabled = %d backends, want 2", len(enabled))
	}
	if enabled[0].Identifier() != "pdal" || enabled[1].Identifier() != "lastools" {
		t.Errorf("order = [%s %s], want [pdal lastools]",
			enabled[0].Identifier(), enabled[1].Identifier())
	}
}

func TestAll_SortedByIdentifier(t *testing.T) {
	r := registry.New()
	for _, id := range []string{"pdal", "lastools", "opals"} {
		if err := r.Register(&fakeBackend{id: id}); err != nil {
			t.Fatalf("Register(%s): %v", id, err)
		}
	}

	all := r.All()
	want := []string{"lastools", "opals", "pdal"}
	for i, b := range all {
		if b.Identifier() != want[i] {
			t.Errorf("All()[%d] = %s, want %s", i, b.Identifier(), want[i])
		}
	}
}

func TestUnregister(t *testing.T) {
	r := registry.New()
	if err := r.Register(&fakeBackend{id: "pdal", enabled: true}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Unregister("pdal"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}
	if err := r.Unregister("pdal"); err == nil {
		t.Error("expected error for unknown backend")
	}
	if got := len(r.Enabled()); got != 0 {
		t.Errorf("enabled after unregister = %d, want 0", got)
	}
}
