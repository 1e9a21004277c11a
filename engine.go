package strata

import (
	"bytes"
	"context"
	"crypto/sha256"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/gobwas/glob"
	"github.com/google/uuid"
	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/sirupsen/logrus"

	"github.com/jward/strata/internal/diffgen"
	"github.com/jward/strata/internal/extract"
	"github.com/jward/strata/internal/lang"
	"github.com/jward/strata/internal/preflight"
	"github.com/jward/strata/internal/store"
)

// Engine orchestrates the strata pipeline: file discovery, change
// detection, extraction, attribution, and the temporal operations
// (propose, validate, diff, promote). It holds the single Store handle;
// there is no ambient graph state.
type Engine struct {
	store       *store.Store
	root        string
	languages   map[string]bool // nil means all languages
	excludeSrc  []string
	excludes    []glob.Glob
	useParallel bool
	log         *logrus.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRoot sets the directory entity paths are normalized against.
// Defaults to the current working directory.
func WithRoot(root string) Option {
	return func(e *Engine) {
		e.root = root
	}
}

// WithLanguages restricts which languages the Engine will process.
func WithLanguages(languages ...string) Option {
	return func(e *Engine) {
		e.languages = make(map[string]bool, len(languages))
		for _, l := range languages {
			e.languages[l] = true
		}
	}
}

// WithParallel controls parallel ingestion. When true (default), Ingest
// parses and extracts on a worker pool with a single goroutine committing
// batches. Set to false for serial mode.
func WithParallel(parallel bool) Option {
	return func(e *Engine) {
		e.useParallel = parallel
	}
}

// WithExcludes adds glob patterns (gobwas/glob syntax, matched against
// normalized paths) for files to skip during ingestion.
func WithExcludes(patterns ...string) Option {
	return func(e *Engine) {
		e.excludeSrc = append(e.excludeSrc, patterns...)
	}
}

// WithLogger replaces the Engine's logger. The default logs at warn level
// to stderr.
func WithLogger(log *logrus.Logger) Option {
	return func(e *Engine) {
		e.log = log
	}
}

// New creates an Engine backed by a SQLite database at dbPath.
func New(dbPath string, opts ...Option) (*Engine, error) {
	s, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("strata: open store: %w", err)
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("strata: migrate: %w", err)
	}

	defaultLog := logrus.New()
	defaultLog.SetLevel(logrus.WarnLevel)

	e := &Engine{
		store:       s,
		useParallel: true,
		log:         defaultLog,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.root == "" {
		if wd, err := os.Getwd(); err == nil {
			e.root = wd
		}
	}
	for _, pattern := range e.excludeSrc {
		g, err := glob.Compile(pattern)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("strata: bad exclude pattern %q: %w", pattern, err)
		}
		e.excludes = append(e.excludes, g)
	}
	return e, nil
}

// Close releases the Engine's database resources.
func (e *Engine) Close() error {
	return e.store.Close()
}

// Store returns the underlying Store for direct access.
func (e *Engine) Store() *Store {
	return e.store
}

// FileError records one file that failed during a partial-success ingestion.
type FileError struct {
	Path string
	Err  error
}

func (fe FileError) Error() string {
	return fmt.Sprintf("%s: %s", fe.Path, fe.Err)
}

// IngestReport summarizes one ingestion run. Failed files never block the
// rest; callers inspect Errors for per-file failures and Diagnostics for
// recoverable findings such as attribution ambiguities.
type IngestReport struct {
	BatchID       string
	Ingested      int
	Skipped       int
	EdgesResolved int
	Errors        []FileError
	Diagnostics   []Diagnostic
}

// workItem holds everything extraction needs for one file.
type workItem struct {
	absPath  string
	normPath string
	language string
	content  []byte
	hash     string
}

// Ingest ingests the given file paths. For each file: detect language,
// skip unsupported/filtered/unchanged files, parse, extract entities,
// attribute edges, and merge the batch. After all batches merge, external
// placeholder edges are resolved against the full graph.
func (e *Engine) Ingest(ctx context.Context, paths []string) (*IngestReport, error) {
	report := &IngestReport{BatchID: uuid.NewString()}

	items, err := e.prepareFiles(paths, report)
	if err != nil {
		return nil, err
	}

	if e.useParallel {
		e.ingestParallel(ctx, items, report)
	} else {
		e.ingestSerial(ctx, items, report)
	}

	return report, e.finishIngest(report)
}

// prepareFiles is the serial phase: filtering, reading, and hash checks.
func (e *Engine) prepareFiles(paths []string, report *IngestReport) ([]workItem, error) {
	var items []workItem
	for _, path := range paths {
		item, skip, err := e.prepareFile(path)
		if err != nil {
			e.log.WithFields(logrus.Fields{"path": path, "error": err}).Warn("prepare failed")
			report.Errors = append(report.Errors, FileError{Path: path, Err: err})
			continue
		}
		if skip {
			report.Skipped++
			continue
		}
		items = append(items, item)
	}
	return items, nil
}

func (e *Engine) prepareFile(path string) (workItem, bool, error) {
	language, ok := lang.LanguageForFile(path)
	if !ok {
		return workItem{}, true, nil // unsupported extension
	}
	if e.languages != nil && !e.languages[language] {
		return workItem{}, true, nil // filtered out
	}

	normPath := extract.NormalizePath(e.root, path)
	for _, g := range e.excludes {
		if g.Match(normPath) {
			return workItem{}, true, nil
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return workItem{}, false, fmt.Errorf("read file: %w", err)
	}
	hash := fmt.Sprintf("%x", sha256.Sum256(content))

	existing, err := e.store.FileByPath(normPath)
	if err != nil {
		return workItem{}, false, fmt.Errorf("lookup file: %w", err)
	}
	if existing != nil && existing.Hash == hash {
		return workItem{}, true, nil // unchanged
	}

	return workItem{
		absPath:  path,
		normPath: normPath,
		language: language,
		content:  content,
		hash:     hash,
	}, false, nil
}

// extractFile runs both per-file passes and assembles the merge batch.
func (e *Engine) extractFile(ctx context.Context, item workItem) (*store.Batch, []Diagnostic, error) {
	tree, err := lang.Parse(ctx, item.content, item.language, item.normPath)
	if err != nil {
		return nil, nil, err
	}
	defer tree.Close()

	entities, err := extract.Entities(item.content, item.language, item.normPath, tree)
	if err != nil {
		return nil, nil, fmt.Errorf("extract: %w", err)
	}
	edges, diags := extract.Edges(item.content, item.language, item.normPath, tree, entities)

	return &store.Batch{
		File: store.File{
			Path:         item.normPath,
			Language:     item.language,
			Hash:         item.hash,
			LineCount:    bytes.Count(item.content, []byte{'\n'}) + 1,
			LastIngested: time.Now(),
		},
		Entities: entities,
		Edges:    edges,
	}, diags, nil
}

func (e *Engine) ingestSerial(ctx context.Context, items []workItem, report *IngestReport) {
	for _, item := range items {
		batch, diags, err := e.extractFile(ctx, item)
		if err != nil {
			e.recordFileError(report, item.normPath, err)
			continue
		}
		if err := e.store.MergeBatch(batch); err != nil {
			e.recordFileError(report, item.normPath, err)
			continue
		}
		report.Ingested++
		report.Diagnostics = append(report.Diagnostics, diags...)
	}
}

func (e *Engine) recordFileError(report *IngestReport, path string, err error) {
	e.log.WithFields(logrus.Fields{"path": path, "error": err}).Warn("ingest failed")
	report.Errors = append(report.Errors, FileError{Path: path, Err: err})
}

// finishIngest resolves external edges against the merged graph and
// records run metadata.
func (e *Engine) finishIngest(report *IngestReport) error {
	resolved, err := e.store.ResolveEdges()
	if err != nil {
		return fmt.Errorf("strata: resolve edges: %w", err)
	}
	report.EdgesResolved = resolved

	if err := e.store.SetMetadata("last_ingest_id", report.BatchID); err != nil {
		return fmt.Errorf("strata: record ingest: %w", err)
	}
	if err := e.store.SetMetadata("last_ingest_time", time.Now().UTC().Format(time.RFC3339)); err != nil {
		return fmt.Errorf("strata: record ingest: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"batch":    report.BatchID,
		"ingested": report.Ingested,
		"skipped":  report.Skipped,
		"failed":   len(report.Errors),
		"resolved": resolved,
	}).Debug("ingest finished")
	return nil
}

// skipDirs are directories excluded from directory walks.
var skipDirs = map[string]bool{
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	"target":       true,
}

// IngestDirectory walks root and ingests all files with supported
// extensions. If root is inside a git repository, uses git ls-files to
// respect .gitignore. Falls back to a filesystem walk (skipping hidden
// dirs, dependency dirs, and .gitignore matches) when git is unavailable.
func (e *Engine) IngestDirectory(ctx context.Context, root string) (*IngestReport, error) {
	if e.root == "" {
		e.root = root
	}
	paths, err := e.gitListFiles(root)
	if err != nil {
		paths, err = e.walkListFiles(root)
		if err != nil {
			return nil, err
		}
	}
	return e.Ingest(ctx, paths)
}

// gitListFiles uses git ls-files to discover tracked and untracked (but
// not ignored) files under root, filtered to supported languages.
func (e *Engine) gitListFiles(root string) ([]string, error) {
	cmd := exec.Command("git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("git ls-files: %w", err)
	}

	var paths []string
	for _, line := range strings.Split(stdout.String(), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		absPath := filepath.Join(root, line)
		if _, ok := lang.LanguageForFile(absPath); ok {
			paths = append(paths, absPath)
		}
	}
	return paths, nil
}

// walkListFiles discovers files by walking the filesystem, used as a
// fallback when git is not available. Honors a root-level .gitignore.
func (e *Engine) walkListFiles(root string) ([]string, error) {
	var ignore *gitignore.GitIgnore
	if gi, err := gitignore.CompileIgnoreFile(filepath.Join(root, ".gitignore")); err == nil {
		ignore = gi
	}

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			rel = path
		}
		if d.IsDir() {
			name := d.Name()
			if path != root && (strings.HasPrefix(name, ".") || skipDirs[name]) {
				return filepath.SkipDir
			}
			if ignore != nil && path != root && ignore.MatchesPath(rel) {
				return filepath.SkipDir
			}
			return nil
		}
		if ignore != nil && ignore.MatchesPath(rel) {
			return nil
		}
		if _, ok := lang.LanguageForFile(path); ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk directory: %w", err)
	}
	return paths, nil
}

// Propose records a pending Create, Edit, or Delete for a key. See
// [store.Store.Propose] for the transition rules.
func (e *Engine) Propose(key string, action FutureAction, newCode string, override bool) error {
	return e.store.Propose(key, action, newCode, override)
}

// Revert resets a pending entity back to Unchanged.
func (e *Engine) Revert(key string) error {
	return e.store.Revert(key)
}

// Validate re-parses every pending Create/Edit snippet and returns the
// aggregate per-entity report. Syntax-only; one failure never stops the
// others.
func (e *Engine) Validate(ctx context.Context) (*ValidationReport, error) {
	pending, err := e.store.PendingEntities()
	if err != nil {
		return nil, fmt.Errorf("strata: validate: %w", err)
	}
	return preflight.Validate(ctx, pending), nil
}

// Diff returns the ordered pending change set.
func (e *Engine) Diff() ([]Change, error) {
	return diffgen.Changes(e.store)
}

// PromoteAll commits every pending entity's future state into its current
// state. All-or-nothing relative to a single call.
func (e *Engine) PromoteAll() (*PromoteResult, error) {
	return e.store.PromoteAll()
}

// Entities returns entities matching the predicate filter, ascending by key.
func (e *Engine) Entities(filter string) ([]*Entity, error) {
	return e.store.ReadEntities(filter)
}

// Edges returns edges matching the predicate filter.
func (e *Engine) Edges(filter string) ([]*Edge, error) {
	return e.store.ReadEdges(filter)
}
