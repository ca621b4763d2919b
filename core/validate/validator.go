// Package validate implements the declarative request validation language:
// composable validator functions, ordered field definitions and the evaluator
// that walks them against a request's headers, query and body.
//
// Validators receive the value under test and the Tree it was taken from, so
// cross-field rules can resolve siblings by dotted path:
//
//	validate.Body(
//		validate.Key("password", validate.And(validate.String(), validate.LenMin(8))),
//		validate.Key("confirm", validate.EqualRef("password")),
//	)
package validate

import (
	"context"
	"errors"
	"fmt"
)

// Undefined is the value passed to validators for a missing key. It is
// distinct from nil, which is an explicit JSON null.
var Undefined any = undefined{}

type undefined struct{}

func (undefined) String() string { return "undefined" }

// IsUndefined reports whether v is the missing-value sentinel.
func IsUndefined(v any) bool {
	_, ok := v.(undefined)
	return ok
}

type outcome uint8

const (
	outcomeFail outcome = iota
	outcomePass
	outcomeReject
)

// Result is the outcome of a single validator: pass, fail, or a rejection
// carrying an error whose message is reported verbatim. The zero value fails.
type Result struct {
	outcome outcome
	err     error
}

// Pass returns a passing result.
func Pass() Result { return Result{outcome: outcomePass} }

// Fail returns a plain failing result.
func Fail() Result { return Result{outcome: outcomeFail} }

// Reject returns a failing result with a specific reason.
func Reject(err error) Result {
	if err == nil {
		err = errors.New("rejected")
	}
	return Result{outcome: outcomeReject, err: err}
}

// Rejectf returns a failing result with a formatted reason.
func Rejectf(format string, args ...any) Result {
	return Reject(fmt.Errorf(format, args...))
}

// Bool converts a predicate outcome into a Result.
func Bool(ok bool) Result {
	if ok {
		return Pass()
	}
	return Fail()
}

// OK reports whether the result passed.
func (r Result) OK() bool { return r.outcome == outcomePass }

// Rejected reports whether the result carries a reason.
func (r Result) Rejected() bool { return r.outcome == outcomeReject }

// Err returns the rejection reason, or nil.
func (r Result) Err() error { return r.err }

func (r Result) String() string {
	switch r.outcome {
	case outcomePass:
		return "pass"
	case outcomeReject:
		return "reject: " + r.err.Error()
	default:
		return "fail"
	}
}

// Validator checks a single value. Long-running validators should honor ctx.
type Validator func(ctx context.Context, value any, tree *Tree) Result

// Func adapts a plain predicate over the value.
func Func(fn func(value any) bool) Validator {
	return func(_ context.Context, value any, _ *Tree) Result {
		return Bool(fn(value))
	}
}

func run(ctx context.Context, v Validator, value any, tree *Tree) Result {
	if v == nil {
		return Fail()
	}
	return v(ctx, value, tree)
}
