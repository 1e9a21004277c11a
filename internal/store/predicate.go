package store

import (
	"strconv"
	"strings"
)

// Predicate language over entity/edge attributes:
//
//	field = value     equality
//	field != value    inequality
//	field ~ pattern   substring match
//
// Comma-separated comparisons form a conjunction; semicolon-separated
// groups form a disjunction. The parser builds a small AST and rejects
// malformed input with *QueryError before any scan executes; evaluation
// happens in Go over scanned rows, keeping the contract store-agnostic.

type compareOp int

const (
	opEq compareOp = iota
	opNeq
	opMatch
)

type comparison struct {
	field string
	op    compareOp
	value string
}

// Predicate is a parsed filter: a disjunction of conjunctions of comparisons.
// The zero value (no groups) matches everything.
type Predicate struct {
	groups [][]comparison
}

// ParsePredicate parses a predicate string against a set of legal field
// names. An empty string yields a match-all predicate.
func ParsePredicate(input string, fields map[string]bool) (*Predicate, error) {
	p := &Predicate{}
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return p, nil
	}

	for _, groupSrc := range splitOutsideQuotes(trimmed, ';') {
		groupSrc = strings.TrimSpace(groupSrc)
		if groupSrc == "" {
			return nil, &QueryError{Input: input, Message: "empty predicate group"}
		}
		var group []comparison
		for _, cmpSrc := range splitOutsideQuotes(groupSrc, ',') {
			cmp, err := parseComparison(input, cmpSrc, fields)
			if err != nil {
				return nil, err
			}
			group = append(group, cmp)
		}
		p.groups = append(p.groups, group)
	}
	return p, nil
}

// splitOutsideQuotes splits on sep, treating double-quoted runs as opaque so
// quoted values may contain separators.
func splitOutsideQuotes(s string, sep rune) []string {
	var parts []string
	var cur strings.Builder
	inQuote := false
	for _, r := range s {
		switch {
		case r == '"':
			inQuote = !inQuote
			cur.WriteRune(r)
		case r == sep && !inQuote:
			parts = append(parts, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

func parseComparison(input, src string, fields map[string]bool) (comparison, error) {
	src = strings.TrimSpace(src)
	if src == "" {
		return comparison{}, &QueryError{Input: input, Message: "empty comparison"}
	}

	// Operator scan order matters: != must be tried before =.
	var (
		op       compareOp
		fieldSrc string
		valueSrc string
	)
	switch {
	case strings.Contains(src, "!="):
		op = opNeq
		fieldSrc, valueSrc, _ = strings.Cut(src, "!=")
	case strings.Contains(src, "="):
		op = opEq
		fieldSrc, valueSrc, _ = strings.Cut(src, "=")
	case strings.Contains(src, "~"):
		op = opMatch
		fieldSrc, valueSrc, _ = strings.Cut(src, "~")
	default:
		return comparison{}, &QueryError{Input: input,
			Message: "comparison " + strconv.Quote(src) + " has no operator (=, !=, ~)"}
	}

	field := strings.TrimSpace(fieldSrc)
	value := strings.TrimSpace(valueSrc)
	if field == "" {
		return comparison{}, &QueryError{Input: input, Message: "missing field name"}
	}
	if !fields[field] {
		return comparison{}, &QueryError{Input: input, Message: "unknown field " + strconv.Quote(field)}
	}
	// Quoted values pass separators and significant whitespace through.
	if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
		value = value[1 : len(value)-1]
	}
	return comparison{field: field, op: op, value: value}, nil
}

// Match evaluates the predicate against a record's field values.
func (p *Predicate) Match(record map[string]string) bool {
	if len(p.groups) == 0 {
		return true
	}
	for _, group := range p.groups {
		if matchGroup(group, record) {
			return true
		}
	}
	return false
}

func matchGroup(group []comparison, record map[string]string) bool {
	for _, cmp := range group {
		actual := record[cmp.field]
		var ok bool
		switch cmp.op {
		case opEq:
			ok = actual == cmp.value
		case opNeq:
			ok = actual != cmp.value
		case opMatch:
			ok = strings.Contains(actual, cmp.value)
		}
		if !ok {
			return false
		}
	}
	return true
}

// EntityFields is the set of field names legal in entity predicates.
var EntityFields = map[string]bool{
	"key": true, "language": true, "kind": true, "name": true, "path": true,
	"start_line": true, "end_line": true, "signature": true,
	"current_code": true, "future_code": true,
	"current_ind": true, "future_ind": true, "future_action": true,
}

// EdgeFields is the set of field names legal in edge predicates.
var EdgeFields = map[string]bool{
	"from_key": true, "to_key": true, "edge_type": true,
}

// fieldMap flattens an entity into the predicate evaluation form.
// Booleans render as "true"/"false", line numbers as decimal strings.
func (e *Entity) fieldMap() map[string]string {
	return map[string]string{
		"key":           e.Key,
		"language":      e.Language,
		"kind":          string(e.Kind),
		"name":          e.Name,
		"path":          e.Path,
		"start_line":    strconv.Itoa(e.StartLine),
		"end_line":      strconv.Itoa(e.EndLine),
		"signature":     e.Signature,
		"current_code":  e.CurrentCode,
		"future_code":   e.FutureCode,
		"current_ind":   strconv.FormatBool(e.CurrentInd),
		"future_ind":    strconv.FormatBool(e.FutureInd),
		"future_action": string(e.FutureAction),
	}
}

func (e *Edge) fieldMap() map[string]string {
	return map[string]string{
		"from_key":  e.FromKey,
		"to_key":    e.ToKey,
		"edge_type": string(e.Type),
	}
}
