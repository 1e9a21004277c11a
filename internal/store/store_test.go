package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })
	return s
}

// testEntity builds an Unchanged function entity with a derived key.
func testEntity(name, path string, start, end int) Entity {
	return Entity{
		Key:          EntityKey("go", KindFunction, name, path, start, end),
		Language:     "go",
		Kind:         KindFunction,
		Name:         name,
		Path:         path,
		StartLine:    start,
		EndLine:      end,
		Signature:    "public func " + name + "()",
		CurrentCode:  "func " + name + "() {}",
		CurrentInd:   true,
		FutureInd:    true,
		FutureAction: ActionNone,
	}
}

func testBatch(path string, entities []Entity, edges []Edge) *Batch {
	return &Batch{
		File: File{
			Path:         path,
			Language:     "go",
			Hash:         "hash-" + path,
			LineCount:    100,
			LastIngested: time.Now().Truncate(time.Second),
		},
		Entities: entities,
		Edges:    edges,
	}
}

// =============================================================================
// Schema & Lifecycle
// =============================================================================

func TestMigrate_AllTablesExist(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	for _, table := range []string{"files", "entities", "edges", "metadata"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table,
		).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
		assert.Equal(t, table, name)
	}
}

func TestMigrate_Idempotent(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	require.NoError(t, s.Migrate())
}

func TestMetadata_RoundTrip(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	got, err := s.GetMetadata("missing")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.SetMetadata("last_ingest_id", "abc"))
	require.NoError(t, s.SetMetadata("last_ingest_id", "def")) // upsert

	got, err = s.GetMetadata("last_ingest_id")
	require.NoError(t, err)
	assert.Equal(t, "def", got)
}

func TestFileByPath(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	f, err := s.FileByPath("nope.go")
	require.NoError(t, err)
	assert.Nil(t, f)

	require.NoError(t, s.MergeBatch(testBatch("a.go", []Entity{testEntity("f", "a.go", 1, 2)}, nil)))

	f, err = s.FileByPath("a.go")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "go", f.Language)
	assert.Equal(t, "hash-a.go", f.Hash)
}

// =============================================================================
// Keys
// =============================================================================

func TestEntityKey_Format(t *testing.T) {
	t.Parallel()
	key := EntityKey("go", KindFunction, "hello", "pkg/main.go", 3, 5)
	assert.Equal(t, "go:function:hello:pkg/main.go:3-5", key)
}

func TestEntityKey_SanitizesName(t *testing.T) {
	t.Parallel()
	key := EntityKey("rust", KindFunction, "Vec::new", "lib.rs", 1, 1)
	assert.Equal(t, "rust:function:Vec..new:lib.rs:1-1", key)

	e, err := ParseKey(key)
	require.NoError(t, err)
	assert.Equal(t, "Vec..new", e.Name)
}

func TestParseKey_RoundTrip(t *testing.T) {
	t.Parallel()
	key := EntityKey("python", KindMethod, "run", "src/app.py", 10, 42)
	e, err := ParseKey(key)
	require.NoError(t, err)
	assert.Equal(t, "python", e.Language)
	assert.Equal(t, KindMethod, e.Kind)
	assert.Equal(t, "run", e.Name)
	assert.Equal(t, "src/app.py", e.Path)
	assert.Equal(t, 10, e.StartLine)
	assert.Equal(t, 42, e.EndLine)
}

func TestParseKey_External(t *testing.T) {
	t.Parallel()
	key := ExternalKey("go", KindFunction, "Printf")
	assert.Equal(t, "go:function:Printf:external:0", key)
	assert.True(t, IsExternalKey(key))

	e, err := ParseKey(key)
	require.NoError(t, err)
	assert.Equal(t, ExternalPath, e.Path)
	assert.Zero(t, e.StartLine)

	assert.False(t, IsExternalKey("go:function:f:main.go:1-2"))
}

func TestParseKey_Malformed(t *testing.T) {
	t.Parallel()
	for _, bad := range []string{
		"",
		"go:function",
		"go:function:f:main.go:five-six",
		"go:function:f:main.go:9-3", // end before start
		"go:function:f:main.go:0-3", // lines are 1-based
	} {
		_, err := ParseKey(bad)
		assert.Error(t, err, "key %q should be rejected", bad)
	}
}

// =============================================================================
// Reads
// =============================================================================

func TestPendingEntities_OrderedByKey(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	entities := []Entity{
		testEntity("zeta", "a.go", 1, 2),
		testEntity("alpha", "a.go", 4, 5),
		testEntity("mid", "a.go", 7, 8),
	}
	require.NoError(t, s.MergeBatch(testBatch("a.go", entities, nil)))

	for _, e := range entities {
		require.NoError(t, s.Propose(e.Key, ActionEdit, "func x() {}", false))
	}

	pending, err := s.PendingEntities()
	require.NoError(t, err)
	require.Len(t, pending, 3)
	assert.True(t, pending[0].Key < pending[1].Key)
	assert.True(t, pending[1].Key < pending[2].Key)
}
