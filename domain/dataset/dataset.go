// Package dataset provides the opaque handle for point-cloud data files.
// The core never touches point geometry itself; datasets travel through the
// system as file references that backend toolchains consume and produce.
package dataset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Dataset references a point-cloud file together with the spatial reference
// system its coordinates are expressed in (immutable value type).
type Dataset struct {
	Path string
	SRS  string // normalized, e.g. "EPSG:4326" or a WKT string; empty = unknown
}

// PointCloudExtensions are the file extensions accepted for dataset files.
var PointCloudExtensions = []string{".las", ".laz"}

// New constructs a dataset handle after validating the file extension and
// normalizing the spatial reference. The file itself is not opened.
func New(path, srs string) (Dataset, error) {
	checked, err := EnsureExtension(path, PointCloudExtensions, "")
	if err != nil {
		return Dataset{}, err
	}
	normalized, err := CheckSRS(srs)
	if err != nil {
		return Dataset{}, err
	}
	return Dataset{Path: checked, SRS: normalized}, nil
}

// Stem returns the base file name without its extension, used to derive
// output file names.
func (d Dataset) Stem() string {
	base := filepath.Base(d.Path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

var epsgPattern = regexp.MustCompile(`(?i)^epsg:\s*([0-9]+)$`)

// wktKeywords are the top-level node names a WKT spatial reference string
// can start with (both WKT1 and WKT2 spellings).
var wktKeywords = []string{
	"PROJCS", "GEOGCS", "GEOCCS", "COMPD_CS", "LOCAL_CS", "VERT_CS",
	"PROJCRS", "GEOGCRS", "GEODCRS", "COMPOUNDCRS", "VERTCRS", "BOUNDCRS",
}

// CheckSRS validates and normalizes a spatial reference string. EPSG codes
// are reduced to their canonical "EPSG:<code>" form, WKT strings pass
// through unchanged, the empty string stays empty (reference unknown,
// resolved by the data itself). Anything else is rejected.
func CheckSRS(srs string) (string, error) {
	srs = strings.TrimSpace(srs)
	if srs == "" {
		return "", nil
	}
	if m := epsgPattern.FindStringSubmatch(srs); m != nil {
		return "EPSG:" + m[1], nil
	}
	if isWKT(srs) {
		return srs, nil
	}
	return "", fmt.Errorf("invalid spatial reference %q: expected EPSG:<code> or a WKT string", srs)
}

func isWKT(s string) bool {
	upper := strings.ToUpper(s)
	for _, kw := range wktKeywords {
		if strings.HasPrefix(upper, kw+"[") {
			return strings.Count(s, "[") == strings.Count(s, "]")
		}
	}
	return false
}

// EnsureExtension checks the extension of filename against the allowed set,
// appending def when the name has none. def == "" makes the extension
// mandatory. Comparison is case-insensitive; the returned name preserves
// the original spelling.
func EnsureExtension(filename string, allowed []string, def string) (string, error) {
	ext := filepath.Ext(filename)
	if ext == "" {
		if def == "" {
			return "", fmt.Errorf("file name %q has no extension, expected one of %s", filename, strings.Join(allowed, ", "))
		}
		filename += def
		ext = def
	}
	for _, a := range allowed {
		if strings.EqualFold(ext, a) {
			return filename, nil
		}
	}
	return "", fmt.Errorf("unsupported file extension %q for %q, expected one of %s", ext, filename, strings.Join(allowed, ", "))
}
