package lastools_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ssciwr/afwizard/adapters/lastools"
	"github.com/ssciwr/afwizard/adapters/workspace"
	"github.com/ssciwr/afwizard/core/schema"
	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/domain/filter"
	"github.com/ssciwr/afwizard/ports"
)

// alwaysEnabled lets schema composition pick the backend up regardless
// of whether a LAStools distribution is installed.
type alwaysEnabled struct {
	ports.Backend
}

func (alwaysEnabled) Enabled() bool { return true }

// stubDistribution lays out a LAStools directory with a lasground_new
// executable present.
func stubDistribution(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	bin := filepath.Join(dir, "bin")
	if err := os.MkdirAll(bin, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(bin, "lasground_new64.exe"), []byte("MZ"), 0o755); err != nil {
		t.Fatal(err)
	}
	return dir
}

// stubWine puts a shell script named wine at the front of the PATH.
func stubWine(t *testing.T, script string) {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "wine"), []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir+string(os.PathListSeparator)+os.Getenv("PATH"))
}

func TestBackend_SchemaComposes(t *testing.T) {
	b := lastools.NewBackend("", nil, zerolog.Nop())
	u, err := schema.Compose([]ports.Backend{alwaysEnabled{b}})
	if err != nil {
		t.Fatalf("Compose() error = %v", err)
	}

	variants := u.Variants()
	if len(variants) != 1 || variants[0].Type != "lasground_new" {
		t.Fatalf("variants = %+v, want the lasground_new variant", variants)
	}

	if err := u.Validate(map[string]any{
		"_backend": "lastools",
		"type":     "lasground_new",
		"step":     2.5,
	}); err != nil {
		t.Errorf("valid lasground_new config rejected: %v", err)
	}
	if err := u.Validate(map[string]any{
		"_backend":    "lastools",
		"type":        "lasground_new",
		"granularity": "supersonic",
	}); err == nil {
		t.Error("unknown granularity accepted")
	}
}

func TestBackend_Enabled(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the wine checks do not apply on Windows")
	}

	t.Run("no directory", func(t *testing.T) {
		if lastools.NewBackend("", nil, zerolog.Nop()).Enabled() {
			t.Error("Enabled() = true without a distribution directory")
		}
	})
	t.Run("directory without executable", func(t *testing.T) {
		stubWine(t, "exit 0")
		if lastools.NewBackend(t.TempDir(), nil, zerolog.Nop()).Enabled() {
			t.Error("Enabled() = true without lasground_new")
		}
	})
	t.Run("executable but no wine", func(t *testing.T) {
		dir := stubDistribution(t)
		t.Setenv("PATH", t.TempDir())
		if lastools.NewBackend(dir, nil, zerolog.Nop()).Enabled() {
			t.Error("Enabled() = true without wine on the PATH")
		}
	})
	t.Run("executable and wine", func(t *testing.T) {
		dir := stubDistribution(t)
		stubWine(t, "exit 0")
		if !lastools.NewBackend(dir, nil, zerolog.Nop()).Enabled() {
			t.Error("Enabled() = false with a complete installation")
		}
	})
}

func TestBackend_ExecuteBuildsCommandLine(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the test drives the backend through a wine stub")
	}

	ws := workspace.New()
	defer ws.Close()

	dir := stubDistribution(t)
	record := filepath.Join(t.TempDir(), "args")

	// The stub records the command line and plays lasground_new by
	// copying the input file to the requested output.
	stubWine(t, `echo "$@" > "`+record+`"
in=""; out=""; prev=""
for a in "$@"; do
  case "$prev" in
    -i) in="$a";;
    -o) out="$a";;
  esac
  prev="$a"
done
cp "$in" "$out"`)

	input := filepath.Join(t.TempDir(), "site.las")
	if err := os.WriteFile(input, []byte("points\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	b := lastools.NewBackend(dir, ws, zerolog.Nop())
	out, err := b.Execute(context.Background(), dataset.Dataset{Path: input, SRS: "EPSG:25833"}, map[string]any{
		"_backend":       "lastools",
		"type":           "lasground_new",
		"step":           0.5,
		"granularity":    "extra_fine",
		"compute_height": true,
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
	exe := filepath.Join(dir, "bin", "lasground_new64.exe")
	want := exe + " -step 0.5 -extra_fine -compute_height -i " + input + " -o " + out.Path
	if strings.TrimSpace(string(args)) != want {
		t.Errorf("command line = %q, want %q", strings.TrimSpace(string(args)), want)
	}
}

func TestBackend_ExecuteReportsToolFailure(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("the test drives the backend through a wine stub")
	}

	ws := workspace.New()
	defer ws.Close()

	dir := stubDistribution(t)
	stubWine(t, `echo "lasground_new: license expired" >&2; exit 1`)

	b := lastools.NewBackend(dir, ws, zerolog.Nop())
	_, err := b.Execute(context.Background(), dataset.Dataset{Path: "/data/site.las"}, map[string]any{
		"type": "lasground_new",
	})
	var backendErr *filter.BackendError
	if !errors.As(err, &backendErr) {
		t.Fatalf("Execute() error = %v, want *filter.BackendError", err)
	}
	if backendErr.Backend != "lastools" {
		t.Errorf("Backend = %q", backendErr.Backend)
	}
	if !strings.Contains(backendErr.Output, "license expired") {
		t.Errorf("Output = %q, want the tool diagnostics", backendErr.Output)
	}
}
