package validate

import (
	"context"
	"net/http"
	"strings"
	"sync"
)

// Field is one entry of a Definition: either a leaf validator (Check) or a
// nested definition (Fields). Nesting is only meaningful under Body rules.
// When both are set Check wins.
type Field struct {
	Key    string
	Check  Validator
	Fields Definition
}

// Definition is an ordered list of fields. Declaration order is evaluation
// order.
type Definition []Field

// Key declares a leaf field.
func Key(name string, v Validator) Field {
	return Field{Key: name, Check: v}
}

// Object declares a nested field whose value must itself be an object.
func Object(name string, fields ...Field) Field {
	return Field{Key: name, Fields: Definition(fields)}
}

// Kind selects the part of the request a rule inspects.
type Kind uint8

const (
	KindHeader Kind = iota + 1
	KindQuery
	KindBody
	KindCustom
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindQuery:
		return "query"
	case KindBody:
		return "body"
	case KindCustom:
		return "custom"
	}
	return "unknown"
}

// Predicate validates the whole request.
type Predicate func(ctx context.Context, req *Request) Result

// Rule is one validation step attached to a route.
type Rule struct {
	Kind      Kind
	Fields    Definition
	Predicate Predicate
}

// Header validates request headers. Field keys are matched against
// lower-cased header names.
func Header(fields ...Field) Rule {
	return Rule{Kind: KindHeader, Fields: Definition(fields)}
}

// Query validates URL query parameters.
func Query(fields ...Field) Rule {
	return Rule{Kind: KindQuery, Fields: Definition(fields)}
}

// Body validates the parsed request body, which must be an object.
func Body(fields ...Field) Rule {
	return Rule{Kind: KindBody, Fields: Definition(fields)}
}

// Custom runs a predicate over the whole request.
func Custom(p Predicate) Rule {
	return Rule{Kind: KindCustom, Predicate: p}
}

// Request is the request-scoped view validators see.
type Request struct {
	HTTP    *http.Request
	Headers map[string]any
	Query   map[string]any
	Body    any
	RawBody []byte

	treesOnce sync.Once
	trees     [3]*Tree
}

// NewRequest snapshots headers and query of r. body is the parsed body (or
// Undefined when there is none) and raw the bytes it was parsed from.
func NewRequest(r *http.Request, body any, raw []byte) *Request {
	req := &Request{HTTP: r, Body: body, RawBody: raw}
	if r != nil {
		req.Headers = flatten(r.Header, strings.ToLower)
		req.Query = flatten(r.URL.Query(), nil)
	}
	return req
}

// flatten keeps single values as strings and repeated ones as arrays.
func flatten(values map[string][]string, key func(string) string) map[string]any {
	out := make(map[string]any, len(values))
	for k, vs := range values {
		if key != nil {
			k = key(k)
		}
		if existing, ok := out[k]; ok {
			// canonical and non-canonical spellings of the same header
			out[k] = append(toList(existing), stringsToAny(vs)...)
			continue
		}
		switch len(vs) {
		case 0:
			out[k] = ""
		case 1:
			out[k] = vs[0]
		default:
			out[k] = stringsToAny(vs)
		}
	}
	return out
}

func toList(v any) []any {
	if l, ok := v.([]any); ok {
		return l
	}
	return []any{v}
}

func stringsToAny(vs []string) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func (r *Request) tree(kind Kind) *Tree {
	r.treesOnce.Do(func() {
		r.trees[0] = NewTree(r.Headers)
		r.trees[1] = NewTree(r.Query)
		// References resolve against the decoded body, so duplicate keys
		// yield the same value the field validators see.
		r.trees[2] = NewTree(r.Body)
	})
	switch kind {
	case KindHeader:
		return r.trees[0]
	case KindQuery:
		return r.trees[1]
	default:
		return r.trees[2]
	}
}
