// Package app wires the domain model into the services a session works
// with: the filter library registry, batch tuning and the execution
// engine.
package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ssciwr/afwizard/core/schema"
	"github.com/ssciwr/afwizard/domain/dataset"
	"github.com/ssciwr/afwizard/domain/filter"
)

// libraryMetaFile is the optional per-directory metadata file of a filter
// library.
const libraryMetaFile = "library.json"

// Library is one registered filter library directory.
type Library struct {
	Path      string // absolute
	Name      string // display name
	Recursive bool
}

// LibraryOptions control how a library is registered.
type LibraryOptions struct {
	Recursive bool
	Name      string // overrides library.json and the directory name
}

// Entry is one pipeline found during library enumeration.
type Entry struct {
	Path     string
	Library  Library
	Pipeline filter.Pipeline
}

// Criteria filter library enumeration. Zero value matches everything.
type Criteria struct {
	Tags          []string // every tag must appear in the keywords
	TitleContains string   // case-insensitive substring
	Backend       string   // pipeline must use this backend
}

// ErrStopEnumeration stops a Walk early without reporting an error.
var ErrStopEnumeration = errors.New("stop enumeration")

// NotFoundError reports that no registered library holds a pipeline with
// the requested identity hash.
type NotFoundError struct {
	Hash string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no pipeline with identity %s in the registered libraries", e.Hash)
}

// AmbiguousIdentityError reports that several pipeline files share the
// requested identity hash, so resolution cannot pick one.
type AmbiguousIdentityError struct {
	Hash  string
	Paths []string
}

func (e *AmbiguousIdentityError) Error() string {
	return fmt.Sprintf("identity %s is ambiguous, found in: %s", e.Hash, strings.Join(e.Paths, ", "))
}

// LibraryRegistry is the session state around filter libraries: the list
// of registered library directories and the current default save target.
// It is created per session with an explicit lifecycle; there is no global
// instance.
type LibraryRegistry struct {
	logger zerolog.Logger
	union  *schema.Union // may be nil, then loads skip backend validation

	mu        sync.RWMutex
	libraries []Library
	current   int
}

// NewLibraryRegistry creates a session registry populated with the
// default libraries. union, when non-nil, is used to validate pipelines
// against the composed backend schema on load and save.
func NewLibraryRegistry(union *schema.Union, logger zerolog.Logger) *LibraryRegistry {
	r := &LibraryRegistry{logger: logger, union: union}
	r.Reset()
	return r
}

// Reset restores the default state: the current working directory plus,
// when it exists, the installed community library. The working directory
// becomes the current save target.
func (r *LibraryRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.libraries = r.libraries[:0]
	r.current = 0

	if cwd, err := os.Getwd(); err == nil {
		r.libraries = append(r.libraries, Library{Path: cwd, Name: "Working directory"})
	}
	if community := CommunityLibraryPath(); community != "" {
		if info, err := os.Stat(community); err == nil && info.IsDir() {
			r.libraries = append(r.libraries, Library{
				Path:      community,
				Name:      "Community library",
				Recursive: true,
			})
		}
	}
}

// CommunityLibraryPath returns the install location of the community
// filter library: $XDG_DATA_HOME/afwizard/library, falling back to
// ~/.local/share/afwizard/library.
func CommunityLibraryPath() string {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "afwizard", "library")
}

// Add registers a library directory. Registering the same directory twice
// is a no-op returning the existing entry.
func (r *LibraryRegistry) Add(path string, opts LibraryOptions) (Library, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Library{}, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Library{}, fmt.Errorf("filter library %s: %w", abs, err)
	}
	if !info.IsDir() {
		return Library{}, fmt.Errorf("filter library %s is not a directory", abs)
	}

	name := opts.Name
	if name == "" {
		meta, err := readLibraryMeta(abs)
		if err != nil {
			return Library{}, err
		}
		name = meta
	}
	if name == "" {
		name = filepath.Base(abs)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, l := range r.libraries {
		if l.Path == abs {
			return l, nil
		}
	}
	lib := Library{Path: abs, Name: name, Recursive: opts.Recursive}
	r.libraries = append(r.libraries, lib)
	r.logger.Debug().Str("path", abs).Str("name", name).Msg("filter library registered")
	return lib, nil
}

// SetCurrent makes a library the default save target, registering (and,
// with create, creating) it as needed. displayName is written into the
// library.json of a newly created library.
func (r *LibraryRegistry) SetCurrent(path string, create bool, displayName string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		if !create {
			return fmt.Errorf("filter library %s: %w", abs, err)
		}
		if err := os.MkdirAll(abs, 0o755); err != nil {
			return fmt.Errorf("creating filter library: %w", err)
		}
		if displayName != "" {
			meta, err := json.MarshalIndent(map[string]string{"name": displayName}, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(abs, libraryMetaFile), meta, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", libraryMetaFile, err)
			}
		}
	}

	if _, err := r.Add(abs, LibraryOptions{Name: displayName}); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, l := range r.libraries {
		if l.Path == abs {
			r.current = i
			return nil
		}
	}
	return fmt.Errorf("filter library %s vanished during registration", abs)
}

// Current returns the default save target library.
func (r *LibraryRegistry) Current() Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current < 0 || r.current >= len(r.libraries) {
		return Library{}
	}
	return r.libraries[r.current]
}

// Libraries returns the registered libraries in registration order.
func (r *LibraryRegistry) Libraries() []Library {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Library(nil), r.libraries...)
}

// Walk enumerates the pipelines of all registered libraries lazily, in
// registration order and directory order within a library, calling fn for
// every entry matching the criteria. Files that are not pipeline
// documents (segmentations, metadata, stray JSON) are skipped. fn may
// return ErrStopEnumeration to stop without error.
func (r *LibraryRegistry) Walk(c Criteria, fn func(Entry) error) error {
	for _, lib := range r.Libraries() {
		if err := r.walkLibrary(lib, c, fn); err != nil {
			if errors.Is(err, ErrStopEnumeration) {
				return nil
			}
			return err
		}
	}
	return nil
}

func (r *LibraryRegistry) walkLibrary(lib Library, c Criteria, fn func(Entry) error) error {
	return filepath.WalkDir(lib.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			r.logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable library entry")
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != lib.Path && !lib.Recursive {
				return fs.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".json" || d.Name() == libraryMetaFile {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			r.logger.Debug().Err(err).Str("path", path).Msg("skipping unreadable file")
			return nil
		}
		p, err := filter.Decode(data, nil)
		if err != nil {
			r.logger.Debug().Err(err).Str("path", path).Msg("skipping non-pipeline file")
			return nil
		}
		if !c.matches(p) {
			return nil
		}
		return fn(Entry{Path: path, Library: lib, Pipeline: p})
	})
}

// List materializes Walk.
func (r *LibraryRegistry) List(c Criteria) ([]Entry, error) {
	var entries []Entry
	err := r.Walk(c, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	return entries, err
}

// Keywords returns the distinct metadata keywords across all registered
// libraries, sorted.
func (r *LibraryRegistry) Keywords() ([]string, error) {
	seen := map[string]bool{}
	err := r.Walk(Criteria{}, func(e Entry) error {
		for _, kw := range e.Pipeline.Metadata.Keywords {
			seen[kw] = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	keywords := make([]string, 0, len(seen))
	for kw := range seen {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	return keywords, nil
}

// ResolveHash locates the pipeline with the given identity hash across
// all registered libraries. Exactly one file must match: none yields a
// NotFoundError, several an AmbiguousIdentityError.
func (r *LibraryRegistry) ResolveHash(hash string) (filter.Pipeline, error) {
	var matches []Entry
	err := r.Walk(Criteria{}, func(e Entry) error {
		if e.Pipeline.Identity() == hash {
			matches = append(matches, e)
		}
		return nil
	})
	if err != nil {
		return filter.Pipeline{}, err
	}

	switch len(matches) {
	case 0:
		return filter.Pipeline{}, &NotFoundError{Hash: hash}
	case 1:
		return r.loadEntry(matches[0])
	default:
		paths := make([]string, 0, len(matches))
		for _, m := range matches {
			paths = append(paths, m.Path)
		}
		return filter.Pipeline{}, &AmbiguousIdentityError{Hash: hash, Paths: paths}
	}
}

// LoadPipeline loads a pipeline by file name, looking relative names up
// in every registered library.
func (r *LibraryRegistry) LoadPipeline(name string) (filter.Pipeline, string, error) {
	name, err := ensureJSON(name)
	if err != nil {
		return filter.Pipeline{}, "", err
	}

	candidates := []string{name}
	if !filepath.IsAbs(name) {
		for _, lib := range r.Libraries() {
			candidates = append(candidates, filepath.Join(lib.Path, name))
		}
	}
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
		p, err := filter.Decode(data, r.union)
		if err != nil {
			return filter.Pipeline{}, "", fmt.Errorf("%s: %w", path, err)
		}
		return p, path, nil
	}
	return filter.Pipeline{}, "", fmt.Errorf("pipeline %q not found in any registered library", name)
}

// SavePipeline writes a pipeline into the current library (relative
// names) or to the given path. Pipelines with thin metadata are saved
// anyway, with a warning, because sharing them is still legitimate.
func (r *LibraryRegistry) SavePipeline(p filter.Pipeline, name string) (string, error) {
	name, err := ensureJSON(name)
	if err != nil {
		return "", err
	}
	if !filepath.IsAbs(name) {
		current := r.Current()
		if current.Path == "" {
			return "", fmt.Errorf("no current filter library to save into")
		}
		name = filepath.Join(current.Path, name)
	}

	if r.union != nil {
		for i, f := range p.Filters {
			if err := validateTemplated(r.union, f); err != nil {
				return "", fmt.Errorf("pipeline step %d: %w", i+1, err)
			}
		}
	}
	if !p.Metadata.Complete() {
		r.logger.Warn().Str("path", name).Msg("saving pipeline with incomplete metadata; consider filling title, description and keywords")
	}

	data, err := filter.Encode(p)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(name, data, 0o644); err != nil {
		return "", fmt.Errorf("writing pipeline: %w", err)
	}
	r.logger.Info().Str("path", name).Str("identity", p.Identity()).Msg("pipeline saved")
	return name, nil
}

// validateTemplated validates a step's wire config the way construction
// does: unresolved parameter targets get their first candidate.
func validateTemplated(u *schema.Union, f filter.Filter) error {
	probe := f.WireConfig()
	for _, p := range f.Params {
		if _, ok := probe[p.TargetKey()]; ok {
			continue
		}
		candidates, err := p.Candidates()
		if err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		if len(candidates) > 0 {
			probe[p.TargetKey()] = candidates[0]
		}
	}
	return u.Validate(probe)
}

func (r *LibraryRegistry) loadEntry(e Entry) (filter.Pipeline, error) {
	if r.union == nil {
		return e.Pipeline, nil
	}
	data, err := os.ReadFile(e.Path)
	if err != nil {
		return filter.Pipeline{}, err
	}
	p, err := filter.Decode(data, r.union)
	if err != nil {
		return filter.Pipeline{}, fmt.Errorf("%s: %w", e.Path, err)
	}
	return p, nil
}

func (c Criteria) matches(p filter.Pipeline) bool {
	if c.TitleContains != "" &&
		!strings.Contains(strings.ToLower(p.Metadata.Title), strings.ToLower(c.TitleContains)) {
		return false
	}
	for _, tag := range c.Tags {
		found := false
		for _, kw := range p.Metadata.Keywords {
			if strings.EqualFold(tag, kw) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if c.Backend != "" {
		for _, b := range p.UsedBackends() {
			if b == c.Backend {
				return true
			}
		}
		return false
	}
	return true
}

func readLibraryMeta(dir string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, libraryMetaFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", err
	}
	var meta struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return "", fmt.Errorf("invalid %s in %s: %w", libraryMetaFile, dir, err)
	}
	return meta.Name, nil
}

func ensureJSON(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("pipeline file name is empty")
	}
	return dataset.EnsureExtension(name, []string{".json"}, ".json")
}

// UpgradeLibrary rewrites every pipeline file directly inside dir at the
// current data model version and returns how many files were rewritten.
// The library metadata file is left alone; a file that does not decode
// as a pipeline aborts the upgrade.
func UpgradeLibrary(dir string, u *schema.Union, logger zerolog.Logger) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return 0, err
	}

	count := 0
	for _, path := range matches {
		if filepath.Base(path) == libraryMetaFile {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return count, err
		}
		p, err := filter.Decode(data, u)
		if err != nil {
			return count, fmt.Errorf("%s: %w", path, err)
		}
		out, err := filter.Encode(p)
		if err != nil {
			return count, fmt.Errorf("%s: %w", path, err)
		}
		if err := os.WriteFile(path, out, 0o644); err != nil {
			return count, err
		}

		count++
		logger.Debug().Str("file", path).Msg("pipeline rewritten at the current data model")
	}
	return count, nil
}
