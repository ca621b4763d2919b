package validate

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

// Tree is the top-level value being validated (headers, query or body). It
// resolves dotted paths for cross-field references.
type Tree struct {
	root any

	once sync.Once
	raw  []byte
}

// NewTree wraps a decoded value. Its JSON form is produced on first lookup.
func NewTree(root any) *Tree {
	return &Tree{root: root}
}

// Root returns the wrapped value.
func (t *Tree) Root() any {
	if t == nil {
		return Undefined
	}
	return t.root
}

// Lookup resolves a dotted path ("user.address.city", "items.0") and returns
// Undefined when any segment is missing.
func (t *Tree) Lookup(path string) any {
	if t == nil || path == "" {
		return Undefined
	}
	t.once.Do(func() {
		if IsUndefined(t.root) {
			return
		}
		if b, err := json.Marshal(t.root); err == nil {
			t.raw = b
		}
	})
	if len(t.raw) == 0 {
		return Undefined
	}

	res := gjson.GetBytes(t.raw, escapePath(path))
	if !res.Exists() {
		return Undefined
	}
	return res.Value()
}

const pathSpecials = `\*?|#@!=<>%`

// escapePath keeps every segment literal so keys such as "x-*" are not read
// as gjson wildcards.
func escapePath(path string) string {
	if !strings.ContainsAny(path, pathSpecials) {
		return path
	}
	var b strings.Builder
	b.Grow(len(path) + 4)
	for _, r := range path {
		if strings.ContainsRune(pathSpecials, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
