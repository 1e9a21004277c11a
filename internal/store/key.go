package store

import (
	"fmt"
	"strconv"
	"strings"
)

// Semantic key format: language:kind:name:normalized_path:start-end.
// The key is the stable identifier used across every interface; two
// re-ingestions of byte-identical source produce byte-identical keys.
// Unresolved external symbols use the reserved placeholder
// language:kind:name:external:0.

// ExternalPath is the reserved path segment for unresolved symbols.
const ExternalPath = "external"

// EntityKey derives the deterministic identity for an entity. The path must
// already be normalized (forward slashes, no colons); the name has colons
// replaced so the key stays parseable from both ends.
func EntityKey(language string, kind EntityKind, name, path string, startLine, endLine int) string {
	return fmt.Sprintf("%s:%s:%s:%s:%d-%d",
		language, kind, sanitizeKeyField(name), path, startLine, endLine)
}

// ExternalKey builds the placeholder key for a symbol with no matching
// entity in the current ingestion scope.
func ExternalKey(language string, kind EntityKind, name string) string {
	return fmt.Sprintf("%s:%s:%s:%s:0", language, kind, sanitizeKeyField(name), ExternalPath)
}

// IsExternalKey reports whether key is an unresolved external placeholder.
func IsExternalKey(key string) bool {
	return strings.HasSuffix(key, ":"+ExternalPath+":0")
}

// sanitizeKeyField makes a name safe for embedding in a key. Colons would
// break field parsing; they appear in names like C++ qualified ids.
func sanitizeKeyField(name string) string {
	return strings.ReplaceAll(name, ":", ".")
}

// ParseKey splits a semantic key back into its components. Language and
// kind are taken from the left, path and line range from the right, so
// names containing separators survive the round trip.
func ParseKey(key string) (*Entity, error) {
	parts := strings.Split(key, ":")
	if len(parts) < 5 {
		return nil, fmt.Errorf("malformed key %q: want language:kind:name:path:start-end", key)
	}

	e := &Entity{
		Key:      key,
		Language: parts[0],
		Kind:     EntityKind(parts[1]),
		Name:     strings.Join(parts[2:len(parts)-2], ":"),
		Path:     parts[len(parts)-2],
	}
	if e.Language == "" || e.Kind == "" || e.Name == "" || e.Path == "" {
		return nil, fmt.Errorf("malformed key %q: empty field", key)
	}

	rangePart := parts[len(parts)-1]
	if e.Path == ExternalPath && rangePart == "0" {
		return e, nil
	}
	start, end, ok := strings.Cut(rangePart, "-")
	if !ok {
		return nil, fmt.Errorf("malformed key %q: bad line range %q", key, rangePart)
	}
	var err error
	if e.StartLine, err = strconv.Atoi(start); err != nil {
		return nil, fmt.Errorf("malformed key %q: bad start line: %w", key, err)
	}
	if e.EndLine, err = strconv.Atoi(end); err != nil {
		return nil, fmt.Errorf("malformed key %q: bad end line: %w", key, err)
	}
	if e.StartLine < 1 || e.EndLine < e.StartLine {
		return nil, fmt.Errorf("malformed key %q: line range out of order", key)
	}
	return e, nil
}
