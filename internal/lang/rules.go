package lang

import (
	"fmt"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/jward/strata/internal/store"
)

// Rule is one declarative extraction pattern: a tree-sitter query whose
// @def capture is the entity-defining node and whose @name capture is the
// entity's name. Pattern matching semantics come from the tree-sitter
// query engine; this package only declares the shapes.
type Rule struct {
	Kind    store.EntityKind
	Pattern string
}

// RefRule identifies reference/call sites: @call captures the call node,
// @callee captures the referenced name.
type RefRule struct {
	Pattern string
}

// ImplRule captures trait implementations: @name is the implementing type,
// @trait is the implemented trait/interface name, @def the whole clause.
type ImplRule struct {
	Pattern string
}

// RuleSet bundles every declarative pattern for one language.
type RuleSet struct {
	Entities []Rule
	Refs     []RefRule
	Impls    []ImplRule
}

// Rules returns the rule set for a canonical language name.
// Returns (nil, false) for unsupported languages.
func Rules(language string) (*RuleSet, bool) {
	rs, ok := ruleSets[language]
	return rs, ok
}

// Entity rules are ordered roughly most-specific-first, but correctness
// does not depend on order: overlapping captures on the same span are
// deduplicated by kind specificity at merge time.
var ruleSets = map[string]*RuleSet{
	"go": {
		Entities: []Rule{
			{store.KindMethod, `(method_declaration name: (field_identifier) @name) @def`},
			{store.KindFunction, `(function_declaration name: (identifier) @name) @def`},
			{store.KindStruct, `(type_spec name: (type_identifier) @name type: (struct_type)) @def`},
			{store.KindTrait, `(type_spec name: (type_identifier) @name type: (interface_type)) @def`},
			{store.KindTypeAlias, `(type_spec name: (type_identifier) @name) @def`},
			{store.KindTypeAlias, `(type_alias name: (type_identifier) @name) @def`},
		},
		Refs: []RefRule{
			{`(call_expression function: (identifier) @callee) @call`},
			{`(call_expression function: (selector_expression field: (field_identifier) @callee)) @call`},
		},
	},
	"python": {
		Entities: []Rule{
			{store.KindMethod, `(class_definition body: (block (function_definition name: (identifier) @name) @def))`},
			{store.KindMethod, `(class_definition body: (block (decorated_definition (function_definition name: (identifier) @name)) @def))`},
			{store.KindFunction, `(function_definition name: (identifier) @name) @def`},
			{store.KindStruct, `(class_definition name: (identifier) @name) @def`},
		},
		Refs: []RefRule{
			{`(call function: (identifier) @callee) @call`},
			{`(call function: (attribute attribute: (identifier) @callee)) @call`},
		},
	},
	"javascript": {
		Entities: []Rule{
			{store.KindMethod, `(method_definition name: (property_identifier) @name) @def`},
			{store.KindFunction, `(function_declaration name: (identifier) @name) @def`},
			{store.KindStruct, `(class_declaration name: (identifier) @name) @def`},
		},
		Refs: []RefRule{
			{`(call_expression function: (identifier) @callee) @call`},
			{`(call_expression function: (member_expression property: (property_identifier) @callee)) @call`},
		},
	},
	"typescript": {
		Entities: []Rule{
			{store.KindMethod, `(method_definition name: (property_identifier) @name) @def`},
			{store.KindFunction, `(function_declaration name: (identifier) @name) @def`},
			{store.KindStruct, `(class_declaration name: (type_identifier) @name) @def`},
			{store.KindTrait, `(interface_declaration name: (type_identifier) @name) @def`},
			{store.KindEnum, `(enum_declaration name: (identifier) @name) @def`},
			{store.KindTypeAlias, `(type_alias_declaration name: (type_identifier) @name) @def`},
		},
		Refs: []RefRule{
			{`(call_expression function: (identifier) @callee) @call`},
			{`(call_expression function: (member_expression property: (property_identifier) @callee)) @call`},
		},
		Impls: []ImplRule{
			{`(class_declaration name: (type_identifier) @name
			   (class_heritage (implements_clause (type_identifier) @trait))) @def`},
		},
	},
	"rust": {
		Entities: []Rule{
			{store.KindMethod, `(impl_item body: (declaration_list (function_item name: (identifier) @name) @def))`},
			{store.KindFunction, `(function_item name: (identifier) @name) @def`},
			{store.KindStruct, `(struct_item name: (type_identifier) @name) @def`},
			{store.KindEnum, `(enum_item name: (type_identifier) @name) @def`},
			{store.KindTrait, `(trait_item name: (type_identifier) @name) @def`},
			{store.KindImpl, `(impl_item type: (type_identifier) @name) @def`},
			{store.KindTypeAlias, `(type_item name: (type_identifier) @name) @def`},
			{store.KindModule, `(mod_item name: (identifier) @name) @def`},
		},
		Refs: []RefRule{
			{`(call_expression function: (identifier) @callee) @call`},
			{`(call_expression function: (field_expression field: (field_identifier) @callee)) @call`},
			{`(call_expression function: (scoped_identifier name: (identifier) @callee)) @call`},
		},
		Impls: []ImplRule{
			{`(impl_item trait: (type_identifier) @trait type: (type_identifier) @name) @def`},
		},
	},
	"java": {
		Entities: []Rule{
			{store.KindMethod, `(method_declaration name: (identifier) @name) @def`},
			{store.KindStruct, `(class_declaration name: (identifier) @name) @def`},
			{store.KindTrait, `(interface_declaration name: (identifier) @name) @def`},
			{store.KindEnum, `(enum_declaration name: (identifier) @name) @def`},
		},
		Refs: []RefRule{
			{`(method_invocation name: (identifier) @callee) @call`},
		},
		Impls: []ImplRule{
			{`(class_declaration name: (identifier) @name
			   interfaces: (super_interfaces (type_list (type_identifier) @trait))) @def`},
		},
	},
	"ruby": {
		Entities: []Rule{
			{store.KindMethod, `(class (method name: (identifier) @name) @def)`},
			{store.KindFunction, `(method name: (identifier) @name) @def`},
			{store.KindStruct, `(class name: (constant) @name) @def`},
			{store.KindModule, `(module name: (constant) @name) @def`},
		},
		Refs: []RefRule{
			{`(call method: (identifier) @callee) @call`},
		},
	},
}

// Compiled queries are cached per (language, pattern); tree-sitter query
// compilation is not cheap and rule tables are static.
var (
	queryCache   = map[string]*sitter.Query{}
	queryCacheMu sync.Mutex
)

// CompileQuery compiles a tree-sitter query for a language, with caching.
func CompileQuery(language, pattern string) (*sitter.Query, error) {
	grammar, ok := Grammar(language)
	if !ok {
		return nil, fmt.Errorf("unsupported language %q", language)
	}

	cacheKey := language + "\x00" + pattern
	queryCacheMu.Lock()
	defer queryCacheMu.Unlock()
	if q, ok := queryCache[cacheKey]; ok {
		return q, nil
	}
	q, err := sitter.NewQuery([]byte(pattern), grammar)
	if err != nil {
		return nil, fmt.Errorf("compile query for %s: %w", language, err)
	}
	queryCache[cacheKey] = q
	return q, nil
}
