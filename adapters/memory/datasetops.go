package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/ports"
)

// CropCall records one crop invocation.
type CropCall struct {
	Input    string
	Polygons []string
	Outside  bool
}

// DatasetOps is an in-process implementation of the dataset geometry
// operations. Cropping annotates instead of subsetting; merging
// concatenates the part files.
type DatasetOps struct {
	mu        sync.Mutex
	workspace ports.Workspace
	crops     []CropCall
}

// NewDatasetOps creates in-process dataset operations writing produced
// files into the given workspace.
func NewDatasetOps(ws ports.Workspace) *DatasetOps {
	return &DatasetOps{workspace: ws}
}

// Crops returns the recorded crop invocations in execution order.
func (o *DatasetOps) Crops() []CropCall {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]CropCall(nil), o.crops...)
}

// Crop copies the dataset file and appends a marker line
// "crop:inside:<n>" or "crop:outside:<n>" with the polygon count.
func (o *DatasetOps) Crop(ctx context.Context, ds dataset.Dataset, polygons []string, outside bool) (dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return dataset.Dataset{}, err
	}

	o.mu.Lock()
	o.crops = append(o.crops, CropCall{
		Input:    ds.Path,
		Polygons: append([]string(nil), polygons...),
		Outside:  outside,
	})
	o.mu.Unlock()

	contents, err := os.ReadFile(ds.Path)
	if err != nil {
		return dataset.Dataset{}, fmt.Errorf("reading dataset: %w", err)
	}
	out, err := o.workspace.TempFile(filepath.Ext(ds.Path))
	if err != nil {
		return dataset.Dataset{}, err
	}
	side := "inside"
	if outside {
		side = "outside"
	}
	line := fmt.Sprintf("crop:%s:%d\n", side, len(polygons))
	if err := os.WriteFile(out, append(contents, line...), 0o644); err != nil {
		return dataset.Dataset{}, fmt.Errorf("writing dataset: %w", err)
	}
	return dataset.Dataset{Path: out, SRS: ds.SRS}, nil
}

// Merge concatenates the part files into outPath in the given order.
func (o *DatasetOps) Merge(ctx context.Context, parts []dataset.Dataset, outPath string) (dataset.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return dataset.Dataset{}, err
	}
	if len(parts) == 0 {
		return dataset.Dataset{}, fmt.Errorf("nothing to merge")
	}

	var merged []byte
	for _, part := range parts {
		contents, err := os.ReadFile(part.Path)
		if err != nil {
			return dataset.Dataset{}, fmt.Errorf("reading part: %w", err)
		}
		merged = append(merged, contents...)
	}
	if err := os.WriteFile(outPath, merged, 0o644); err != nil {
		return dataset.Dataset{}, fmt.Errorf("writing merged dataset: %w", err)
	}
	return dataset.Dataset{Path: outPath, SRS: parts[0].SRS}, nil
}

// Rasterize writes a stub raster file recording the resolution.
func (o *DatasetOps) Rasterize(ctx context.Context, ds dataset.Dataset, outPath string, resolution float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	contents := fmt.Sprintf("raster of %s at %g\n", filepath.Base(ds.Path), resolution)
	if err := os.WriteFile(outPath, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("writing raster: %w", err)
	}
	return nil
}

// Ensure interface compliance.
var _ ports.DatasetOps = (*DatasetOps)(nil)
