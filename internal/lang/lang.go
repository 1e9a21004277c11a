// Package lang wraps the tree-sitter grammars and the per-language
// extraction rule tables. It is the only package that touches tree-sitter
// directly; everything above it works with entities and edges.
package lang

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/ruby"
	"github.com/smacker/go-tree-sitter/rust"
	ts "github.com/smacker/go-tree-sitter/typescript/typescript"
)

// extToLanguage maps file extensions to canonical language names.
var extToLanguage = map[string]string{
	".go":   "go",
	".py":   "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".rs":   "rust",
	".java": "java",
	".rb":   "ruby",
}

// langToGrammar maps language names to tree-sitter Language objects.
// Lazily initialized on first call via sync.Once.
var (
	langToGrammar map[string]*sitter.Language
	grammarsOnce  sync.Once
)

func initGrammars() {
	grammarsOnce.Do(func() {
		langToGrammar = map[string]*sitter.Language{
			"go":         golang.GetLanguage(),
			"python":     python.GetLanguage(),
			"javascript": javascript.GetLanguage(),
			"typescript": ts.GetLanguage(),
			"rust":       rust.GetLanguage(),
			"java":       java.GetLanguage(),
			"ruby":       ruby.GetLanguage(),
		}
	})
}

// LanguageForFile returns the canonical language name for a file path based
// on its extension. Returns ("", false) if the extension is not recognized.
func LanguageForFile(path string) (string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	l, ok := extToLanguage[ext]
	return l, ok
}

// Grammar returns the tree-sitter Language for a canonical language name.
// Returns (nil, false) if the language is not supported.
func Grammar(language string) (*sitter.Language, bool) {
	initGrammars()
	l, ok := langToGrammar[language]
	return l, ok
}

// Supported returns the canonical names of all supported languages,
// in no particular order.
func Supported() []string {
	seen := make(map[string]bool, len(extToLanguage))
	var langs []string
	for _, l := range extToLanguage {
		if !seen[l] {
			seen[l] = true
			langs = append(langs, l)
		}
	}
	return langs
}
