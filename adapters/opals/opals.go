// Package opals drives modules of the OPALS laser scanning software as
// a filtering backend. The variant type names the OPALS module, whose
// executable is resolved inside the configured distribution.
package opals

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	_ "embed"

	"github.com/rs/zerolog"

	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/domain/filter"
	"github.com/ssciwr/afwizard/ports"
)

// Identifier is the backend identifier recorded in filter configurations.
const Identifier = "opals"

// probeModule is the module whose executable decides presence.
const probeModule = "RobFilter"

//go:embed schema.json
var schemaJSON []byte

// Backend implements ports.Backend on top of an OPALS distribution.
type Backend struct {
	dir       string
	workspace ports.Workspace
	logger    zerolog.Logger
}

// NewBackend creates the OPALS backend rooted at the given distribution
// directory. An empty dir leaves the backend disabled.
func NewBackend(dir string, ws ports.Workspace, logger zerolog.Logger) *Backend {
	return &Backend{dir: dir, workspace: ws, logger: logger}
}

// Identifier returns "opals".
func (b *Backend) Identifier() string { return Identifier }

// Schema returns the embedded algorithm variant schema.
func (b *Backend) Schema() []byte { return schemaJSON }

// Enabled reports whether the distribution carries the RobFilter module.
func (b *Backend) Enabled() bool {
	if b.dir == "" {
		return false
	}
	_, err := b.moduleExecutable(probeModule)
	return err == nil
}

// Execute runs the OPALS module named by the configuration type over
// the dataset file.
func (b *Backend) Execute(ctx context.Context, ds dataset.Dataset, cfg map[string]any) (dataset.Dataset, error) {
	module, _ := cfg["type"].(string)
	if module == "" {
		return dataset.Dataset{}, fmt.Errorf("filter configuration lacks a module type")
	}
	exe, err := b.moduleExecutable(module)
	if err != nil {
		return dataset.Dataset{}, err
	}

	out, err := b.workspace.TempFile(extensionOf(ds))
	if err != nil {
		return dataset.Dataset{}, err
	}
	args := []string{"-inFile", ds.Path, "--outFile", out}
	args = append(args, configArguments(cfg)...)

	// OPALS modules drop log files into their working directory.
	scratch, cleanup, err := b.workspace.Scratch()
	if err != nil {
		return dataset.Dataset{}, err
	}
	defer cleanup()

	b.logger.Debug().Str("module", module).Strs("args", args).Msg("executing opals module")
	cmd := exec.CommandContext(ctx, exe, args...)
	cmd.Dir = scratch
	output, err := cmd.CombinedOutput()
	if err != nil {
		return dataset.Dataset{}, &filter.BackendError{Backend: Identifier, Output: string(output), Err: err}
	}
	return dataset.Dataset{Path: out, SRS: ds.SRS}, nil
}

// moduleExecutable resolves an OPALS module to its executable under
// <dir>/opals.
func (b *Backend) moduleExecutable(module string) (string, error) {
	name := "opals" + module
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	path := filepath.Join(b.dir, "opals", name)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("OPALS module executable %s not found", path)
	}
	return path, nil
}

// configArguments renders the variant parameters as module options,
// sorted by key so invocations stay reproducible.
func configArguments(cfg map[string]any) []string {
	keys := make([]string, 0, len(cfg))
	for k := range cfg {
		if k == "_backend" || k == "type" {
			continue
		}
		if s, ok := cfg[k].(string); ok && s == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []string
	for _, k := range keys {
		args = append(args, "--"+k)
		args = append(args, stringifyValue(cfg[k])...)
	}
	return args
}

// stringifyValue flattens a parameter value into command line tokens,
// one per element for array-valued options.
func stringifyValue(v any) []string {
	switch val := v.(type) {
	case []any:
		var out []string
		for _, item := range val {
			out = append(out, stringifyValue(item)...)
		}
		return out
	case string:
		return []string{val}
	case bool:
		return []string{strconv.FormatBool(val)}
	case float64:
		return []string{strconv.FormatFloat(val, 'g', -1, 64)}
	case int:
		return []string{strconv.Itoa(val)}
	default:
		return []string{fmt.Sprint(val)}
	}
}

func extensionOf(ds dataset.Dataset) string {
	if ext := filepath.Ext(ds.Path); ext != "" {
		return ext
	}
	return ".las"
}

var _ ports.Backend = (*Backend)(nil)
