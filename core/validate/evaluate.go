package validate

import (
	"context"
	"errors"
	"fmt"
)

// ErrNestedDefinition is returned when a header or query rule declares a
// nested field.
var ErrNestedDefinition = errors.New("nested fields are only allowed in body rules")

// ErrEmptyField is returned for a field with neither a validator nor
// nested fields.
var ErrEmptyField = errors.New("field has no validator")

// Rejection describes the first failing rule.
type Rejection struct {
	Kind Kind
	// Path is the field key or dotted body path; empty for custom rules and
	// body type failures.
	Path    string
	Message string
}

func (r *Rejection) Error() string { return r.Message }

// Evaluate runs rules in order against req and stops at the first failure.
// A nil Rejection and nil error means the request is accepted. An error means
// evaluation itself broke (bad definition or a panicking validator).
//
// Validators run one at a time in declaration order; later fields may rely on
// earlier ones having narrowed the data.
func Evaluate(ctx context.Context, rules []Rule, req *Request) (rej *Rejection, err error) {
	defer func() {
		if p := recover(); p != nil {
			rej = nil
			err = fmt.Errorf("validator panic: %v", p)
		}
	}()

	for i, rule := range rules {
		switch rule.Kind {
		case KindHeader:
			rej, err = evaluateFlat(ctx, rule, req.Headers, req.tree(KindHeader))
		case KindQuery:
			rej, err = evaluateFlat(ctx, rule, req.Query, req.tree(KindQuery))
		case KindBody:
			rej, err = evaluateBody(ctx, rule, req)
		case KindCustom:
			rej, err = evaluateCustom(ctx, rule, req)
		default:
			err = fmt.Errorf("rule %d: unknown kind %d", i, rule.Kind)
		}
		if err != nil || rej != nil {
			return rej, err
		}
	}
	return nil, nil
}

func evaluateFlat(ctx context.Context, rule Rule, values map[string]any, tree *Tree) (*Rejection, error) {
	for _, f := range rule.Fields {
		if f.Check == nil {
			if f.Fields != nil {
				return nil, fmt.Errorf("%s %q: %w", rule.Kind, f.Key, ErrNestedDefinition)
			}
			return nil, fmt.Errorf("%s %q: %w", rule.Kind, f.Key, ErrEmptyField)
		}
		if res := f.Check(ctx, lookup(values, f.Key), tree); !res.OK() {
			return reject(rule.Kind, f.Key, res, fmt.Sprintf("Invalid %s '%s'!", rule.Kind, f.Key)), nil
		}
	}
	return nil, nil
}

func evaluateBody(ctx context.Context, rule Rule, req *Request) (*Rejection, error) {
	obj, ok := asObject(req.Body)
	if !ok {
		return &Rejection{Kind: KindBody, Message: "Invalid body type!"}, nil
	}
	return walkBody(ctx, rule.Fields, obj, "", req.tree(KindBody))
}

func walkBody(ctx context.Context, def Definition, obj map[string]any, prefix string, tree *Tree) (*Rejection, error) {
	for _, f := range def {
		path := f.Key
		if prefix != "" {
			path = prefix + "." + f.Key
		}
		value := lookup(obj, f.Key)

		switch {
		case f.Check != nil:
			if res := f.Check(ctx, value, tree); !res.OK() {
				return reject(KindBody, path, res, fmt.Sprintf("Invalid body property '%s'!", path)), nil
			}
		case f.Fields != nil:
			child, ok := asObject(value)
			if !ok {
				return &Rejection{Kind: KindBody, Path: path, Message: fmt.Sprintf("Invalid body property '%s'!", path)}, nil
			}
			if rej, err := walkBody(ctx, f.Fields, child, path, tree); err != nil || rej != nil {
				return rej, err
			}
		default:
			return nil, fmt.Errorf("body %q: %w", path, ErrEmptyField)
		}
	}
	return nil, nil
}

func evaluateCustom(ctx context.Context, rule Rule, req *Request) (*Rejection, error) {
	if rule.Predicate == nil {
		return nil, errors.New("custom rule has no predicate")
	}
	if res := rule.Predicate(ctx, req); !res.OK() {
		return reject(KindCustom, "", res, "Invalid request!"), nil
	}
	return nil, nil
}

func reject(kind Kind, path string, res Result, fallback string) *Rejection {
	msg := fallback
	if err := res.Err(); err != nil {
		msg = err.Error()
	}
	return &Rejection{Kind: kind, Path: path, Message: msg}
}

func lookup(values map[string]any, key string) any {
	if v, ok := values[key]; ok {
		return v
	}
	return Undefined
}
