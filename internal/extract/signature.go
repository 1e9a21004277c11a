package extract

import (
	"regexp"
	"strings"
	"unicode"

	sitter "github.com/smacker/go-tree-sitter"
)

var whitespaceRe = regexp.MustCompile(`\s+`)

// signatureFor derives the textual interface signature of an entity at
// extraction time: its visibility plus the declaration header (everything
// before the body), whitespace-collapsed. The signature is stored with the
// entity and never re-derived later.
func signatureFor(node *sitter.Node, src []byte, language, name string) string {
	header := declarationHeader(node, src)
	vis := visibilityOf(header, language, name)
	return vis + " " + header
}

// declarationHeader returns the entity's source text up to (not including)
// its body, or the first line when the node has no body field.
func declarationHeader(node *sitter.Node, src []byte) string {
	end := node.EndByte()
	if body := node.ChildByFieldName("body"); body != nil && body.StartByte() > node.StartByte() {
		end = body.StartByte()
	}
	header := string(src[node.StartByte():end])
	if body := node.ChildByFieldName("body"); body == nil {
		if idx := strings.IndexByte(header, '\n'); idx >= 0 {
			header = header[:idx]
		}
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(header, " "))
}

// visibilityOf applies per-language conventions: Go exports by case,
// Python and Ruby hide leading underscores, Rust requires pub, the rest
// look for an explicit modifier and default to public.
func visibilityOf(header, language, name string) string {
	switch language {
	case "go":
		for _, r := range name {
			if unicode.IsUpper(r) {
				return "public"
			}
			return "private"
		}
		return "private"
	case "python", "ruby":
		if strings.HasPrefix(name, "_") {
			return "private"
		}
		return "public"
	case "rust":
		if strings.HasPrefix(header, "pub") {
			return "public"
		}
		return "private"
	default:
		if strings.Contains(header, "private ") {
			return "private"
		}
		if strings.Contains(header, "protected ") {
			return "protected"
		}
		return "public"
	}
}
