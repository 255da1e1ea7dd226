package rag

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Comparator compares one metadata attribute with a value.
type Comparator string

const (
	CompareEq      Comparator = "eq"
	CompareNe      Comparator = "ne"
	CompareGt      Comparator = "gt"
	CompareGte     Comparator = "gte"
	CompareLt      Comparator = "lt"
	CompareLte     Comparator = "lte"
	CompareContain Comparator = "contain"
	CompareLike    Comparator = "like"
	CompareIn      Comparator = "in"
	CompareNin     Comparator = "nin"
)

// Operator combines child filters.
type Operator string

const (
	OperatorAnd Operator = "and"
	OperatorOr  Operator = "or"
	OperatorNot Operator = "not"
)

// Filter is a node of a metadata filter tree. A node is either an operation
// (Operator + Arguments) or a comparison (Comparator + Attribute + Value).
type Filter struct {
	Operator  Operator `json:"operator,omitempty"`
	Arguments []Filter `json:"arguments,omitempty"`

	Comparator Comparator `json:"comparator,omitempty"`
	Attribute  string     `json:"attribute,omitempty"`
	Value      any        `json:"value,omitempty"`
}

// StructuredQuery is what the filter-construction LLM decides for a user query.
type StructuredQuery struct {
	Query  string  `json:"query"`
	Filter *Filter `json:"filter,omitempty"`
	Limit  int     `json:"limit,omitempty"`
}

// Eq, Gte and the other helpers build comparison nodes.
func Eq(attr string, v any) Filter  { return Filter{Comparator: CompareEq, Attribute: attr, Value: v} }
func Gte(attr string, v any) Filter { return Filter{Comparator: CompareGte, Attribute: attr, Value: v} }
func Lt(attr string, v any) Filter  { return Filter{Comparator: CompareLt, Attribute: attr, Value: v} }
func Contain(attr string, v string) Filter {
	return Filter{Comparator: CompareContain, Attribute: attr, Value: v}
}

// And combines filters with a logical and.
func And(args ...Filter) Filter { return Filter{Operator: OperatorAnd, Arguments: args} }

// Or combines filters with a logical or.
func Or(args ...Filter) Filter { return Filter{Operator: OperatorOr, Arguments: args} }

// Not negates a filter.
func Not(arg Filter) Filter { return Filter{Operator: OperatorNot, Arguments: []Filter{arg}} }

// IsOperation reports whether the node combines children.
func (f Filter) IsOperation() bool { return f.Operator != "" }

// Validate checks the tree against the metadata schema. Attributes outside the
// schema are rejected so that an invented field fails the attempt.
func (f Filter) Validate(schema []AttributeInfo) error {
	if f.IsOperation() {
		switch f.Operator {
		case OperatorAnd, OperatorOr:
			if len(f.Arguments) == 0 {
				return fmt.Errorf("operator %q needs at least one argument", f.Operator)
			}
		case OperatorNot:
			if len(f.Arguments) != 1 {
				return fmt.Errorf("operator not takes exactly one argument, got %d", len(f.Arguments))
			}
		default:
			return fmt.Errorf("unknown operator %q", f.Operator)
		}
		for i, arg := range f.Arguments {
			if err := arg.Validate(schema); err != nil {
				return fmt.Errorf("%s[%d]: %w", f.Operator, i, err)
			}
		}
		return nil
	}

	attr, ok := findAttribute(schema, f.Attribute)
	if !ok {
		return fmt.Errorf("unknown metadata attribute %q", f.Attribute)
	}

	switch f.Comparator {
	case CompareEq, CompareNe:
		if f.Value == nil {
			return fmt.Errorf("comparator %q on %q needs a value", f.Comparator, f.Attribute)
		}
	case CompareGt, CompareGte, CompareLt, CompareLte:
		if attr.Type == AttributeString {
			return fmt.Errorf("comparator %q is not valid for string attribute %q", f.Comparator, f.Attribute)
		}
		if _, ok := metadataNumber(f.Value); !ok {
			return fmt.Errorf("comparator %q on %q needs a numeric value", f.Comparator, f.Attribute)
		}
	case CompareContain, CompareLike:
		if _, ok := f.Value.(string); !ok {
			return fmt.Errorf("comparator %q on %q needs a string value", f.Comparator, f.Attribute)
		}
	case CompareIn, CompareNin:
		if _, ok := f.Value.([]any); !ok {
			return fmt.Errorf("comparator %q on %q needs a list value", f.Comparator, f.Attribute)
		}
	default:
		return fmt.Errorf("unknown comparator %q", f.Comparator)
	}
	return nil
}

// Match evaluates the filter against document metadata. Missing attributes
// never match a comparison.
func (f Filter) Match(metadata map[string]any) bool {
	if f.IsOperation() {
		switch f.Operator {
		case OperatorAnd:
			for _, arg := range f.Arguments {
				if !arg.Match(metadata) {
					return false
				}
			}
			return true
		case OperatorOr:
			for _, arg := range f.Arguments {
				if arg.Match(metadata) {
					return true
				}
			}
			return false
		case OperatorNot:
			return len(f.Arguments) == 1 && !f.Arguments[0].Match(metadata)
		}
		return false
	}

	actual, ok := metadata[f.Attribute]
	if !ok || actual == nil {
		return false
	}

	switch f.Comparator {
	case CompareEq:
		return valuesEqual(actual, f.Value)
	case CompareNe:
		return !valuesEqual(actual, f.Value)
	case CompareGt, CompareGte, CompareLt, CompareLte:
		a, okA := metadataNumber(actual)
		b, okB := metadataNumber(f.Value)
		if !okA || !okB {
			return false
		}
		switch f.Comparator {
		case CompareGt:
			return a > b
		case CompareGte:
			return a >= b
		case CompareLt:
			return a < b
		default:
			return a <= b
		}
	case CompareContain, CompareLike:
		needle, _ := f.Value.(string)
		needle = strings.Trim(strings.ToLower(needle), "%")
		return strings.Contains(strings.ToLower(metadataString(actual)), needle)
	case CompareIn, CompareNin:
		list, _ := f.Value.([]any)
		found := false
		for _, v := range list {
			if valuesEqual(actual, v) {
				found = true
				break
			}
		}
		if f.Comparator == CompareIn {
			return found
		}
		return !found
	}
	return false
}

// valuesEqual compares numerically when both sides look numeric and
// case-insensitively otherwise.
func valuesEqual(a, b any) bool {
	if x, ok := metadataNumber(a); ok {
		if y, ok := metadataNumber(b); ok {
			return x == y
		}
	}
	return strings.EqualFold(strings.TrimSpace(metadataString(a)), strings.TrimSpace(metadataString(b)))
}

// ParseStructuredQuery decodes the JSON produced by the filter-construction LLM.
// The model sometimes wraps the object in a markdown fence; that is stripped.
// A filter of "NO_FILTER" or an empty object means no filter.
func ParseStructuredQuery(raw string) (*StructuredQuery, error) {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	}
	if start, end := strings.Index(text, "{"), strings.LastIndex(text, "}"); start >= 0 && end > start {
		text = text[start : end+1]
	}

	var wire struct {
		Query  string          `json:"query"`
		Filter json.RawMessage `json:"filter"`
		Limit  int             `json:"limit"`
	}
	if err := json.Unmarshal([]byte(text), &wire); err != nil {
		return nil, fmt.Errorf("decode structured query: %w", err)
	}

	sq := &StructuredQuery{Query: strings.TrimSpace(wire.Query), Limit: wire.Limit}
	filterRaw := strings.TrimSpace(string(wire.Filter))
	switch filterRaw {
	case "", "null", "{}", `"NO_FILTER"`:
		return sq, nil
	}

	var f Filter
	if err := json.Unmarshal(wire.Filter, &f); err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}
	sq.Filter = &f
	return sq, nil
}
