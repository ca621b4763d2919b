package validate

import "context"

// And passes when every validator passes. It stops at the first failing
// result and returns it, so a rejection reason survives.
func And(validators ...Validator) Validator {
	return func(ctx context.Context, value any, tree *Tree) Result {
		for _, v := range validators {
			if res := run(ctx, v, value, tree); !res.OK() {
				return res
			}
		}
		return Pass()
	}
}

// Or runs every validator and passes when at least one passed. Rejections
// count as plain failures and their reasons are dropped.
func Or(validators ...Validator) Validator {
	return func(ctx context.Context, value any, tree *Tree) Result {
		passed := false
		for _, v := range validators {
			if run(ctx, v, value, tree).OK() {
				passed = true
			}
		}
		return Bool(passed)
	}
}

// Not passes when v does not pass, including when v rejects.
func Not(v Validator) Validator {
	return func(ctx context.Context, value any, tree *Tree) Result {
		return Bool(!run(ctx, v, value, tree).OK())
	}
}

// Opt passes for a missing value and otherwise delegates to v.
func Opt(v Validator) Validator {
	return func(ctx context.Context, value any, tree *Tree) Result {
		if IsUndefined(value) {
			return Pass()
		}
		return run(ctx, v, value, tree)
	}
}

// Sub passes for an object that has every listed key, each satisfying its
// validator. Only flat fields are allowed; a nested field fails the value.
func Sub(fields ...Field) Validator {
	return func(ctx context.Context, value any, tree *Tree) Result {
		obj, ok := asObject(value)
		if !ok {
			return Fail()
		}
		for _, f := range fields {
			child, present := obj[f.Key]
			if !present || f.Check == nil {
				return Fail()
			}
			if res := f.Check(ctx, child, tree); !res.OK() {
				return res
			}
		}
		return Pass()
	}
}
