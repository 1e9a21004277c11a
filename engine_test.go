package strata

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const greetSource = `package greet

func hello() {
	goodbye()
}

func goodbye() {}

func good_morning() {}

func good_night() {}
`

func newTestEngine(t *testing.T, root string, opts ...Option) *Engine {
	t.Helper()
	quiet := logrus.New()
	quiet.SetOutput(os.Stderr)
	quiet.SetLevel(logrus.ErrorLevel)

	opts = append([]Option{WithRoot(root), WithLogger(quiet)}, opts...)
	e, err := New(filepath.Join(t.TempDir(), "strata.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func functionByName(t *testing.T, e *Engine, name string) *Entity {
	t.Helper()
	entities, err := e.Entities(`name = ` + name + `, kind = function`)
	require.NoError(t, err)
	require.Len(t, entities, 1, "exactly one function named %s", name)
	return entities[0]
}

func TestEngine_IngestProposeDiffPromote(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "greet.go", greetSource)
	e := newTestEngine(t, dir)

	report, err := e.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Empty(t, report.Errors)
	assert.Equal(t, 1, report.Ingested)
	assert.NotEmpty(t, report.BatchID)

	funcs, err := e.Entities("kind = function")
	require.NoError(t, err)
	assert.Len(t, funcs, 4, "hello, goodbye, good_morning, good_night")

	modules, err := e.Entities("kind = module")
	require.NoError(t, err)
	require.Len(t, modules, 1)
	assert.Equal(t, "greet", modules[0].Name)

	hello := functionByName(t, e, "hello")
	goodbye := functionByName(t, e, "goodbye")

	deps, err := e.Edges(`from_key = ` + hello.Key)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, EdgeDependsOn, deps[0].Type)
	assert.Equal(t, goodbye.Key, deps[0].ToKey)

	// Propose an edit on hello and walk the full temporal cycle.
	newBody := "func hello() {\n\tgoodbye()\n\tgood_morning()\n}"
	require.NoError(t, e.Propose(hello.Key, ActionEdit, newBody, false))

	vr, err := e.Validate(context.Background())
	require.NoError(t, err)
	require.Len(t, vr.Results, 1)
	assert.True(t, vr.Results[0].OK)
	assert.Zero(t, vr.Failed())

	changes, err := e.Diff()
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "edit", changes[0].Operation)
	assert.Equal(t, hello.Key, changes[0].Key)
	assert.Equal(t, hello.CurrentCode, changes[0].CurrentCode)
	assert.Equal(t, newBody, changes[0].FutureCode)

	pr, err := e.PromoteAll()
	require.NoError(t, err)
	assert.Equal(t, 1, pr.Edited)

	changes, err = e.Diff()
	require.NoError(t, err)
	assert.Empty(t, changes, "promotion clears the pending set")

	promoted := functionByName(t, e, "hello")
	assert.Equal(t, newBody, promoted.CurrentCode)
	assert.False(t, promoted.Pending())
}

func TestEngine_ReingestUnchangedSkips(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "greet.go", greetSource)
	e := newTestEngine(t, dir)

	first, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Ingested)
	assert.Zero(t, first.Skipped)

	second, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Zero(t, second.Ingested, "same content hash is not reprocessed")
	assert.Equal(t, 1, second.Skipped)
}

func TestEngine_ReingestMovedFunctionSupersedes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "greet.go", greetSource)
	e := newTestEngine(t, dir, WithParallel(false))

	_, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)
	oldKey := functionByName(t, e, "hello").Key

	// Shift hello down by prepending a comment; its span changes, so a new
	// key replaces the stale one.
	writeFile(t, dir, "greet.go", "// greetings\n"+greetSource)
	_, err = e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)

	moved := functionByName(t, e, "hello")
	assert.NotEqual(t, oldKey, moved.Key)

	stale, err := e.Entities(`key = ` + oldKey)
	require.NoError(t, err)
	assert.Empty(t, stale, "old-span key superseded")
}

func TestEngine_PendingSurvivesReingest(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "greet.go", greetSource)
	e := newTestEngine(t, dir, WithParallel(false))

	_, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)

	goodnight := functionByName(t, e, "good_night")
	require.NoError(t, e.Propose(goodnight.Key, ActionDelete, "", false))

	// Touch an unrelated part of the file without moving good_night.
	writeFile(t, dir, "greet.go", greetSource+"\nfunc extra() {}\n")
	_, err = e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)

	again := functionByName(t, e, "good_night")
	assert.Equal(t, goodnight.Key, again.Key)
	assert.Equal(t, ActionDelete, again.FutureAction, "pending state survives re-ingestion")

	require.NoError(t, e.Revert(again.Key))
	reverted := functionByName(t, e, "good_night")
	assert.False(t, reverted.Pending())
}

func TestEngine_ProposeCreateThenRevertRemovesRow(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	e := newTestEngine(t, dir)

	key := EntityKey("go", KindFunction, "fresh", "new.go", 1, 3)
	require.NoError(t, e.Propose(key, ActionCreate, "func fresh() {}", false))

	changes, err := e.Diff()
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, "create", changes[0].Operation)

	require.NoError(t, e.Revert(key))
	rows, err := e.Entities(`key = ` + key)
	require.NoError(t, err)
	assert.Empty(t, rows, "reverted pending-create leaves no row behind")
}

func TestEngine_ValidateCatchesBrokenEdit(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	path := writeFile(t, dir, "greet.go", greetSource)
	e := newTestEngine(t, dir)

	_, err := e.Ingest(context.Background(), []string{path})
	require.NoError(t, err)

	hello := functionByName(t, e, "hello")
	require.NoError(t, e.Propose(hello.Key, ActionEdit, "func hello( {", false))

	vr, err := e.Validate(context.Background())
	require.NoError(t, err)
	require.Len(t, vr.Results, 1)
	assert.False(t, vr.Results[0].OK)
	assert.Equal(t, 1, vr.Failed())
	require.NotNil(t, vr.Results[0].Err)
	assert.NotEmpty(t, vr.Results[0].Err.Message)
}

func TestEngine_CrossFileEdgeResolution(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a := writeFile(t, dir, "caller.go", "package p\n\nfunc caller() {\n\thelper()\n}\n")
	b := writeFile(t, dir, "helper.go", "package p\n\nfunc helper() {}\n")
	e := newTestEngine(t, dir)

	report, err := e.Ingest(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Ingested)
	assert.GreaterOrEqual(t, report.EdgesResolved, 1, "external placeholder re-pointed")

	caller := functionByName(t, e, "caller")
	helper := functionByName(t, e, "helper")

	deps, err := e.Edges(`from_key = ` + caller.Key + `, edge_type = depends_on`)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, helper.Key, deps[0].ToKey)
}

func TestEngine_ExcludesAndLanguageFilter(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, dir, "keep.go", "package p\n\nfunc keep() {}\n")
	writeFile(t, dir, "gen/skip.go", "package gen\n\nfunc skip() {}\n")
	writeFile(t, dir, "note.py", "def noted():\n    pass\n")

	e := newTestEngine(t, dir,
		WithLanguages("go"),
		WithExcludes("gen/**"))

	report, err := e.IngestDirectory(context.Background(), dir)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Ingested)

	funcs, err := e.Entities("kind = function")
	require.NoError(t, err)
	require.Len(t, funcs, 1)
	assert.Equal(t, "keep", funcs[0].Name)
}

func TestEngine_PartialFailureContinues(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	good := writeFile(t, dir, "good.go", "package p\n\nfunc fine() {}\n")
	bad := writeFile(t, dir, "bad.go", "package p\n\nfunc broken( {\n")
	e := newTestEngine(t, dir)

	report, err := e.Ingest(context.Background(), []string{good, bad})
	require.NoError(t, err, "per-file failures do not fail the run")
	assert.Equal(t, 1, report.Ingested)
	require.Len(t, report.Errors, 1)
	assert.Contains(t, report.Errors[0].Path, "bad.go")

	funcs, err := e.Entities("kind = function")
	require.NoError(t, err)
	require.Len(t, funcs, 1)
	assert.Equal(t, "fine", funcs[0].Name)
}
