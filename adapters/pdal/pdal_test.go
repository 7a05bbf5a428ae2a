package pdal_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ssciwr/afwizard/adapters/pdal"
	"github.com/ssciwr/afwizard/adapters/workspace"
	"github.com/ssciwr/afwizard/core/schema"
	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/domain/filter"
	"github.com/ssciwr/afwizard/ports"
)

// alwaysEnabled lets schema composition pick the backend up regardless
// of whether a pdal executable is installed.
type alwaysEnabled struct {
	ports.Backend
}

func (alwaysEnabled) Enabled() bool { return true }

// stubExecutable writes a shell script standing in for the pdal binary.
func stubExecutable(t *testing.T, script string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pdal")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestBackend_SchemaComposes(t *testing.T) {
	b := pdal.NewBackend("pdal", nil, zerolog.Nop())
	u, err := schema.Compose([]ports.Backend{alwaysEnabled{b}})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	variants := u.Variants()
	if len(variants) != 4 {
		t.Fatalf("variants = %d, want 4", len(variants))
	}
	types := make(map[string]bool)
	for _, v := range variants {
		types[v.Type] = true
	}
	for _, typ := range []string{"filters.smrf", "filters.pmf", "filters.csf", "filters.assign"} {
		if !types[typ] {
			t.Errorf("variant %q missing from schema", typ)
		}
	}

	if err := u.Validate(map[string]any{
		"_backend": "pdal",
		"type":     "filters.smrf",
		"slope":    0.2,
	}); err != nil {
		t.Errorf("valid smrf config rejected: %v", err)
	}
	if err := u.Validate(map[string]any{
		"_backend": "pdal",
		"type":     "filters.smrf",
		"slope":    "steep",
	}); err == nil {
		t.Error("non-numeric slope accepted")
	}
}

func TestBackend_Enabled(t *testing.T) {
	if pdal.NewBackend("surely-not-installed-anywhere", nil, zerolog.Nop()).Enabled() {
		t.Error("Enabled() = true for a missing executable")
	}
	stub := stubExecutable(t, "exit 0")
	if !pdal.NewBackend(stub, nil, zerolog.Nop()).Enabled() {
		t.Error("Enabled() = false for an existing executable")
	}
}

func TestBackend_ExecuteRunsPipeline(t *testing.T) {
	ws := workspace.New()
	defer ws.Close()

	// The stub copies the pipeline document next to itself for assertions.
	record := filepath.Join(t.TempDir(), "invocation.json")
	stub := stubExecutable(t, `cp "$2" "`+record+`"`)
	b := pdal.NewBackend(stub, ws, zerolog.Nop())

	ds := dataset.Dataset{Path: "/data/site.las", SRS: "EPSG:25833"}
	out, err := b.Execute(context.Background(), ds, map[string]any{
		"_backend": "pdal",
		"type":     "filters.smrf",
		"slope":    0.2,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if filepath.Ext(out.Path) != ".las" || out.SRS != ds.SRS {
		t.Errorf("Execute() = %+v", out)
	}

	doc, err := os.ReadFile(record)
	if err != nil {
		t.Fatalf("pipeline document not handed to the executable: %v", err)
	}
	for _, fragment := range []string{"readers.las", "filters.smrf", "writers.las", "override_srs"} {
		if !strings.Contains(string(doc), fragment) {
			t.Errorf("pipeline document lacks %q: %s", fragment, doc)
		}
	}
	if strings.Contains(string(doc), "_backend") {
		t.Errorf("pipeline document leaks the composition envelope: %s", doc)
	}
}

func TestBackend_ExecuteReportsToolFailure(t *testing.T) {
	ws := workspace.New()
	defer ws.Close()

	stub := stubExecutable(t, `echo "PDAL: unable to open file" >&2; exit 1`)
	b := pdal.NewBackend(stub, ws, zerolog.Nop())

	_, err := b.Execute(context.Background(), dataset.Dataset{Path: "/data/site.las"}, map[string]any{
		"type": "filters.smrf",
	})
	var backendErr *filter.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Execute() error = %v, want *filter.BackendError", err)
	}
	if backendErr.Backend != "pdal" {
		t.Errorf("Backend = %q", backendErr.Backend)
	}
	if !strings.Contains(backendErr.Output, "unable to open file") {
		t.Errorf("Output = %q, want the tool diagnostics", backendErr.Output)
	}
}

func TestDatasetOps_MergeArguments(t *testing.T) {
	ws := workspace.New()
	defer ws.Close()

	record := filepath.Join(t.TempDir(), "args")
	stub := stubExecutable(t, `echo "$@" > "`+record+`"`)
	ops := pdal.NewDatasetOps(stub, ws, zerolog.Nop())

	parts := []dataset.Dataset{
		{Path: "/tmp/a.las", SRS: "EPSG:25833"},
		{Path: "/tmp/b.las", SRS: "EPSG:25833"},
	}
	out, err := ops.Merge(context.Background(), parts, "/tmp/merged.las")
	if err != nil {
		t.Fatalf("Merge() error = %v", err)
	}
	if out.Path != "/tmp/merged.las" || out.SRS != "EPSG:25833" {
		t.Errorf("Merge() = %+v", out)
	}

	args, err := os.ReadFile(record)
	if err != nil {
		t.Fatal(err)
	}
	want := "merge /tmp/a.las /tmp/b.las /tmp/merged.las"
	if strings.TrimSpace(string(args)) != want {
		t.Errorf("pdal arguments = %q, want %q", strings.TrimSpace(string(args)), want)
	}
}

func TestDatasetOps_CropDocument(t *testing.T) {
	ws := workspace.New()
	defer ws.Close()

	record := filepath.Join(t.TempDir(), "invocation.json")
	stub := stubExecutable(t, `cp "$2" "`+record+`"`)
	ops := pdal.NewDatasetOps(stub, ws, zerolog.Nop())

	_, err := ops.Crop(context.Background(), dataset.Dataset{Path: "/data/site.las"},
		[]string{"POLYGON ((0 0, 1 0, 1 1, 0 0))"}, true)
	if err != nil {
		t.Fatalf("Crop() error = %v", err)
	}
	doc, err := os.ReadFile(record)
	if err != nil {
		t.Fatal(err)
	}
	for _, fragment := range []string{"filters.crop", "POLYGON", `"outside": true`} {
		if !strings.Contains(string(doc), fragment) {
			t.Errorf("crop document lacks %q: %s", fragment, doc)
		}
	}
}
