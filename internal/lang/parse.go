package lang

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
)

// ParseError reports a file that could not be parsed. Line and Col point at
// the first syntax error tree-sitter found, 1-based. Offset is the byte
// offset of the error within the source, useful when the source is a
// snippet rather than a whole file.
type ParseError struct {
	Path    string
	Line    int
	Col     int
	Offset  int
	Message string
}

func (e *ParseError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("parse %s:%d:%d: %s", e.Path, e.Line, e.Col, e.Message)
	}
	return fmt.Sprintf("parse <snippet>:%d:%d: %s", e.Line, e.Col, e.Message)
}

// Parse parses src as the given language and returns the syntax tree.
// A tree whose root contains ERROR or MISSING nodes fails the whole file
// with a *ParseError; there is no partial success below file granularity.
// The caller owns the returned tree and must Close it.
func Parse(ctx context.Context, src []byte, language, path string) (*sitter.Tree, error) {
	grammar, ok := Grammar(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", language)
	}

	parser := sitter.NewParser()
	parser.SetLanguage(grammar)
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if perr := firstSyntaxError(tree.RootNode(), path); perr != nil {
		tree.Close()
		return nil, perr
	}
	return tree, nil
}

// CheckSyntax parses src and reports the first syntax error, if any.
// Used by preflight validation of proposed snippets.
func CheckSyntax(ctx context.Context, src []byte, language string) *ParseError {
	tree, err := Parse(ctx, src, language, "")
	if err != nil {
		if perr, ok := err.(*ParseError); ok {
			return perr
		}
		return &ParseError{Message: err.Error()}
	}
	tree.Close()
	return nil
}

// firstSyntaxError walks the tree depth-first and returns a ParseError for
// the first ERROR or MISSING node, or nil when the tree is clean.
func firstSyntaxError(root *sitter.Node, path string) *ParseError {
	var found *sitter.Node
	var walk func(n *sitter.Node) bool
	walk = func(n *sitter.Node) bool {
		if n.IsError() || n.IsMissing() {
			found = n
			return true
		}
		if !n.HasError() {
			return false // no error anywhere in this subtree
		}
		for i := 0; i < int(n.ChildCount()); i++ {
			if walk(n.Child(i)) {
				return true
			}
		}
		return false
	}
	if !walk(root) {
		return nil
	}

	msg := "syntax error"
	if found.IsMissing() {
		msg = fmt.Sprintf("missing %s", found.Type())
	}
	return &ParseError{
		Path:    path,
		Line:    int(found.StartPoint().Row) + 1,
		Col:     int(found.StartPoint().Column) + 1,
		Offset:  int(found.StartByte()),
		Message: msg,
	}
}
