// Package request holds the parsed request body for the rest of the route
// table. The body parser layer stores it once; validation and handlers read
// it back.
package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/artpar/modgate/pkg/apierr"
)

// ErrTooLarge is the cause attached when a body exceeds the configured limit.
var ErrTooLarge = errors.New("request body too large")

type bodyKey struct{}

type parsed struct {
	value any
	raw   []byte
}

// WithBody returns a context carrying the parsed body and the JSON bytes it
// came from. raw is nil when the body was not JSON.
func WithBody(ctx context.Context, value any, raw []byte) context.Context {
	return context.WithValue(ctx, bodyKey{}, parsed{value: value, raw: raw})
}

// Body returns the parsed body. Requests without a JSON body yield an empty
// object, so body rules see a plain object with missing keys.
func Body(r *http.Request) any {
	if p, ok := r.Context().Value(bodyKey{}).(parsed); ok {
		return p.value
	}
	return map[string]any{}
}

// RawJSON returns the JSON bytes the body was parsed from, or nil.
func RawJSON(r *http.Request) []byte {
	if p, ok := r.Context().Value(bodyKey{}).(parsed); ok {
		return p.raw
	}
	return nil
}

// Decode unmarshals the JSON body into dst.
func Decode(r *http.Request, dst any) error {
	raw := RawJSON(r)
	if raw == nil {
		return apierr.InvalidBody(errors.New("request has no JSON body"))
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return apierr.InvalidBody(err)
	}
	return nil
}

// Parse reads r's body up to limit bytes and decodes it when the content type
// is JSON. The body is restored on r so later handlers can read it again.
// Errors are *apierr.Error values ready to render.
func Parse(r *http.Request, limit int64) (value any, raw []byte, err error) {
	value = map[string]any{}
	if r.Body == nil || r.Body == http.NoBody {
		return value, nil, nil
	}

	reader := io.Reader(r.Body)
	if limit > 0 {
		reader = io.LimitReader(r.Body, limit+1)
	}
	data, err := io.ReadAll(reader)
	_ = r.Body.Close()
	if err != nil {
		return nil, nil, apierr.InvalidBody(fmt.Errorf("read body: %w", err))
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, nil, apierr.New(http.StatusRequestEntityTooLarge, apierr.CodeInvalidBody, "Request body too large!").WithCause(ErrTooLarge)
	}
	r.Body = io.NopCloser(bytes.NewReader(data))

	if !isJSON(r.Header.Get("Content-Type")) || len(bytes.TrimSpace(data)) == 0 {
		return value, nil, nil
	}

	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, nil, apierr.InvalidBody(err)
	}
	return v, data, nil
}

func isJSON(contentType string) bool {
	if contentType == "" {
		return false
	}
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
