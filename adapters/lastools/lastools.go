// Package lastools runs the LAStools lasground_new executable as a
// filtering backend. LAStools ships Windows binaries, so on every other
// platform the invocation is wrapped in wine.
package lastools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"github.com/rs/zerolog"

	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/domain/filter"
	"github.com/ssciwr/afwizard/ports"
)

// Identifier is the backend identifier recorded in filter configurations.
const Identifier = "lastools"

//go:embed schema.json
var schemaJSON []byte

// Backend implements ports.Backend on top of a LAStools distribution.
type Backend struct {
	dir       string
	workspace ports.Workspace
	logger    zerolog.Logger
}

// NewBackend creates the LASTools backend rooted at the given
// distribution directory. An empty dir leaves the backend disabled.
func NewBackend(dir string, ws ports.Workspace, logger zerolog.Logger) *Backend {
	return &Backend{dir: dir, workspace: ws, logger: logger}
}

// Identifier returns "lastools".
func (b *Backend) Identifier() string { return Identifier }

// Schema returns the embedded algorithm variant schema.
func (b *Backend) Schema() []byte { return schemaJSON }

// Enabled reports whether the distribution carries the lasground_new
// executable and, off Windows, whether wine is available to run it.
func (b *Backend) Enabled() bool {
	if b.dir == "" {
		return false
	}
	if _, err := b.executable(); err != nil {
		return false
	}
	if needsWine() {
		if _, err := exec.LookPath("wine"); err != nil {
			return false
		}
	}
	return true
}

// Execute classifies ground points by running lasground_new over the
// dataset file.
func (b *Backend) Execute(ctx context.Context, ds dataset.Dataset, cfg map[string]any) (dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return dataset.Dataset{}, err
	}

	exe, err := b.executable()
	if err != nil {
		return dataset.Dataset{}, err
	}
	args, err := commandArguments(cfg)
	if err != nil {
		return dataset.Dataset{}, err
	}

	out, err := b.workspace.TempFile(".las")
	if err != nil {
		return dataset.Dataset{}, err
	}
	args = append(args, "-i", ds.Path, "-o", out)

	name := exe
	if needsWine() {
		args = append([]string{exe}, args...)
		name = "wine"
	}

	b.logger.Debug().Str("executable", exe).Strs("args", args).Msg("executing lasground_new")
	cmd := exec.CommandContext(ctx, name, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return dataset.Dataset{}, &filter.BackendError{Backend: Identifier, Output: string(output), Err: err}
	}
	return dataset.Dataset{Path: out, SRS: ds.SRS}, nil
}

// executable prefers the 64-bit lasground_new build and falls back to
// the 32-bit one.
func (b *Backend) executable() (string, error) {
	for _, name := range []string{"lasground_new64.exe", "lasground_new.exe"} {
		path := filepath.Join(b.dir, "bin", name)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("lasground_new executable not found under %s", b.dir)
}

func needsWine() bool { return runtime.GOOS != "windows" }

// lasgroundOptions mirrors the lasground_new switches the variant
// schema exposes. Pointer fields distinguish absent parameters from
// explicit zeroes.
type lasgroundOptions struct {
	Step          *float64 `mapstructure:"step"`
	Bulge         *float64 `mapstructure:"bulge"`
	Spike         *float64 `mapstructure:"spike"`
	DownSpike     *float64 `mapstructure:"down_spike"`
	Offset        *float64 `mapstructure:"offset"`
	Granularity   string   `mapstructure:"granularity"`
	ComputeHeight bool     `mapstructure:"compute_height"`
}

// commandArguments translates a wire configuration into the
// lasground_new argument list. The composition envelope and the variant
// discriminator never reach the command line.
func commandArguments(cfg map[string]any) ([]string, error) {
	var opts lasgroundOptions
	if err := mapstructure.Decode(cfg, &opts); err != nil {
		return nil, fmt.Errorf("decoding lasground_new configuration: %w", err)
	}
	return opts.arguments(), nil
}

func (o lasgroundOptions) arguments() []string {
	var args []string
	number := func(flag string, v *float64) {
		if v != nil {
			args = append(args, "-"+flag, strconv.FormatFloat(*v, 'g', -1, 64))
		}
	}
	number("step", o.Step)
	number("bulge", o.Bulge)
	number("spike", o.Spike)
	number("down_spike", o.DownSpike)
	number("offset", o.Offset)
	// Granularity maps onto valueless switches such as -extra_fine.
	if o.Granularity != "" && o.Granularity != "default" {
		args = append(args, "-"+o.Granularity)
	}
	if o.ComputeHeight {
		args = append(args, "-compute_height")
	}
	return args
}

var _ ports.Backend = (*Backend)(nil)
