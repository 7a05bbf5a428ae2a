package opals_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ssciwr/afwizard/adapters/opals"
	"github.com/ssciwr/afwizard/adapters/workspace"
	"github.com/ssciwr/afwizard/core/schema"
	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/domain/filter"
	"github.com/ssciwr/afwizard/ports"
)

// alwaysEnabled lets schema composition pick the backend up regardless
// of whether an OPALS distribution is installed.
type alwaysEnabled struct {
	ports.Backend
}

func (alwaysEnabled) Enabled() bool { return true }

// stubDistribution lays out an OPALS directory whose RobFilter module
// executes the given shell script.
func stubDistribution(t *testing.T, script string) string {
	t.Helper()
	dir := t.TempDir()
	modules := filepath.Join(dir, "opals")
	if err := os.MkdirAll(modules, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(modules, "opalsRobFilter"), []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

func TestBackend_SchemaComposes(t *testing.T) {
	b := opals.NewBackend("", nil, zerolog.Nop())
	u, err := schema.Compose([]ports.Backend{alwaysEnabled{b}})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	variants := u.Variants()
	if len(variants) != 1 || variants[0].Type != "RobFilter" {
		t.Fatalf("variants = %+v, want the RobFilter variant", variants)
	}

	if err := u.Validate(map[string]any{
		"_backend":     "opals",
		"type":         "RobFilter",
		"penetration":  30,
		"searchRadius": 2.5,
	}); err != nil {
		t.Errorf("valid RobFilter config rejected: %v", err)
	}
	if err := u.Validate(map[string]any{
		"_backend":    "opals",
		"type":        "RobFilter",
		"penetration": "deep",
	}); err == nil {
		t.Error("non-integer penetration accepted")
	}
}

func TestBackend_Enabled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the stub distribution ships unix executables")
	}

	if opals.NewBackend("", nil, zerolog.Nop()).Enabled() {
		t.Error("Enabled() = true without a distribution directory")
	}
	if opals.NewBackend(t.TempDir(), nil, zerolog.Nop()).Enabled() {
		t.Error("Enabled() = true without the RobFilter module")
	}
	if !opals.NewBackend(stubDistribution(t, "exit 0"), nil, zerolog.Nop()).Enabled() {
		t.Error("Enabled() = false with the RobFilter module present")
	}
}

func TestBackend_ExecuteBuildsCommandLine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the stub distribution ships unix executables")
	}

	ws := workspace.New()
	defer ws.Close()

	record := filepath.Join(t.TempDir(), "args")

	// The stub records the command line and plays the module by copying
	// the input file to the requested output.
	dir := stubDistribution(t, `echo "$@" > "`+record+`"
in=""; out=""; prev=""
for a in "$@"; do
  case "$prev" in
    -inFile) in="$a";;
    --outFile) out="$a";;
  esac
  prev="$a"
done
cp "$in" "$out"`)

	input := filepath.Join(t.TempDir(), "site.las")
	if err := os.WriteFile(input, []byte("points\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := opals.NewBackend(dir, ws, zerolog.Nop())
	out, err := b.Execute(context.Background(), dataset.Dataset{Path: input, SRS: "EPSG:25833"}, map[string]any{
		"_backend":     "opals",
		"type":         "RobFilter",
		"penetration":  30,
		"searchRadius": 2.5,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out.SRS != "EPSG:25833" {
		t.Errorf("SRS = %q, want the input reference", out.SRS)
	}

	contents, err := os.ReadFile(out.Path)
	if err != nil {
		t.Fatalf("output dataset not written: %v", err)
	}
	if string(contents) != "points\n" {
		t.Errorf("output contents = %q", contents)
	}

	args, err := os.ReadFile(record)
	if err != nil {
		t.Fatal(err)
	}
	want := "-inFile " + input + " --outFile " + out.Path + " --penetration 30 --searchRadius 2.5"
	if strings.TrimSpace(string(args)) != want {
		t.Errorf("command line = %q, want %q", strings.TrimSpace(string(args)), want)
	}
}

func TestBackend_ExecuteRequiresKnownModule(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the stub distribution ships unix executables")
	}

	ws := workspace.New()
	defer ws.Close()

	b := opals.NewBackend(stubDistribution(t, "exit 0"), ws, zerolog.Nop())
	_, err := b.Execute(context.Background(), dataset.Dataset{Path: "/data/site.las"}, map[string]any{
		"type": "TerrainFilter",
	})
	if err == nil || !strings.Contains(err.Error(), "opalsTerrainFilter") {
		t.Errorf("Execute() error = %v, want a missing executable report", err)
	}
}

func TestBackend_ExecuteReportsToolFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the stub distribution ships unix executables")
	}

	ws := workspace.New()
	defer ws.Close()

	dir := stubDistribution(t, `echo "OPALS: invalid parameter"; exit 2`)
	b := opals.NewBackend(dir, ws, zerolog.Nop())

	_, err := b.Execute(context.Background(), dataset.Dataset{Path: "/data/site.las"}, map[string]any{
		"type": "RobFilter",
	})
	var backendErr *filter.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Execute() error = %v, want *filter.BackendError", err)
	}
	if backendErr.Backend != "opals" {
		t.Errorf("Backend = %q", backendErr.Backend)
	}
	if !strings.Contains(backendErr.Output, "invalid parameter") {
		t.Errorf("Output = %q, want the tool diagnostics", backendErr.Output)
	}
}
