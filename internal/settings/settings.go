// Package settings holds the hierarchical, read-only project parameters
// that configure an analysis stage and its collaborators.
//
// Keys are addressed with dotted paths ("problem_data.echo_level"). A
// Parameters value is never mutated after it is built; operations that
// produce a different tree return a new value.
package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

var (
	// ErrMissingKey indicates a queried key is absent and has no default.
	ErrMissingKey = errors.New("settings: missing key")

	// ErrWrongType indicates a key holds a value of a different kind.
	ErrWrongType = errors.New("settings: wrong value type")

	// ErrUnknownKey indicates a key that is not accepted by the defaults
	// used for validation.
	ErrUnknownKey = errors.New("settings: unknown key")
)

// Parameters is an immutable nested key-value tree.
type Parameters struct {
	root map[string]any
	path string
}

// New builds a Parameters tree from a decoded document. The input is
// deep-copied and normalized so later changes to data are not observed.
func New(data map[string]any) *Parameters {
	return &Parameters{root: normalizeMap(data)}
}

// Empty returns a tree without keys.
func Empty() *Parameters {
	return &Parameters{root: map[string]any{}}
}

// FromJSON decodes a JSON object.
func FromJSON(data []byte) (*Parameters, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("settings: decode json: %w", err)
	}
	return New(raw), nil
}

// MustJSON is FromJSON for literals in code and tests.
func MustJSON(data string) *Parameters {
	p, err := FromJSON([]byte(data))
	if err != nil {
		panic(err)
	}
	return p
}

// Path returns the dotted location of this tree inside its document root.
func (p *Parameters) Path() string { return p.path }

func (p *Parameters) qualify(key string) string {
	if p.path == "" {
		return key
	}
	return p.path + "." + key
}

func (p *Parameters) lookup(key string) (any, bool) {
	var cur any = p.root
	for _, part := range strings.Split(key, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func (p *Parameters) value(key string) (any, error) {
	v, ok := p.lookup(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, p.qualify(key))
	}
	return v, nil
}

func (p *Parameters) wrongType(key, want string, got any) error {
	return fmt.Errorf("%w: %s is %s, expected %s", ErrWrongType, p.qualify(key), kindOf(got), want)
}

// Has reports whether key is present.
func (p *Parameters) Has(key string) bool {
	_, ok := p.lookup(key)
	return ok
}

// Keys returns the top-level keys in sorted order.
func (p *Parameters) Keys() []string {
	keys := make([]string, 0, len(p.root))
	for k := range p.root {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Get returns the nested object stored at key.
func (p *Parameters) Get(key string) (*Parameters, error) {
	v, err := p.value(key)
	if err != nil {
		return nil, err
	}
	m, ok := v.(map[string]any)
	if !ok {
		return nil, p.wrongType(key, "object", v)
	}
	return &Parameters{root: m, path: p.qualify(key)}, nil
}

// GetOr returns the nested object at key, or an empty tree when absent.
func (p *Parameters) GetOr(key string) (*Parameters, error) {
	if !p.Has(key) {
		return &Parameters{root: map[string]any{}, path: p.qualify(key)}, nil
	}
	return p.Get(key)
}

// Int returns an integer. Floating point values are accepted when they
// have no fractional part.
func (p *Parameters) Int(key string) (int, error) {
	v, err := p.value(key)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok || f != math.Trunc(f) {
		return 0, p.wrongType(key, "integer", v)
	}
	return int(f), nil
}

// Float returns a number.
func (p *Parameters) Float(key string) (float64, error) {
	v, err := p.value(key)
	if err != nil {
		return 0, err
	}
	f, ok := v.(float64)
	if !ok {
		return 0, p.wrongType(key, "number", v)
	}
	return f, nil
}

// String returns a string.
func (p *Parameters) String(key string) (string, error) {
	v, err := p.value(key)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", p.wrongType(key, "string", v)
	}
	return s, nil
}

// Bool returns a boolean.
func (p *Parameters) Bool(key string) (bool, error) {
	v, err := p.value(key)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, p.wrongType(key, "bool", v)
	}
	return b, nil
}

// IntOr returns the integer at key or def when the key is absent.
func (p *Parameters) IntOr(key string, def int) (int, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Int(key)
}

// FloatOr returns the number at key or def when the key is absent.
func (p *Parameters) FloatOr(key string, def float64) (float64, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Float(key)
}

// StringOr returns the string at key or def when the key is absent.
func (p *Parameters) StringOr(key string, def string) (string, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.String(key)
}

// BoolOr returns the boolean at key or def when the key is absent.
func (p *Parameters) BoolOr(key string, def bool) (bool, error) {
	if !p.Has(key) {
		return def, nil
	}
	return p.Bool(key)
}

func (p *Parameters) array(key string) ([]any, error) {
	v, err := p.value(key)
	if err != nil {
		return nil, err
	}
	arr, ok := v.([]any)
	if !ok {
		return nil, p.wrongType(key, "array", v)
	}
	return arr, nil
}

// Objects returns an array of nested objects, in document order.
func (p *Parameters) Objects(key string) ([]*Parameters, error) {
	arr, err := p.array(key)
	if err != nil {
		return nil, err
	}
	out := make([]*Parameters, 0, len(arr))
	for i, v := range arr {
		m, ok := v.(map[string]any)
		if !ok {
			return nil, p.wrongType(fmt.Sprintf("%s[%d]", key, i), "object", v)
		}
		out = append(out, &Parameters{root: m, path: fmt.Sprintf("%s[%d]", p.qualify(key), i)})
	}
	return out, nil
}

// Strings returns an array of strings.
func (p *Parameters) Strings(key string) ([]string, error) {
	arr, err := p.array(key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(arr))
	for i, v := range arr {
		s, ok := v.(string)
		if !ok {
			return nil, p.wrongType(fmt.Sprintf("%s[%d]", key, i), "string", v)
		}
		out = append(out, s)
	}
	return out, nil
}

// Floats returns an array of numbers.
func (p *Parameters) Floats(key string) ([]float64, error) {
	arr, err := p.array(key)
	if err != nil {
		return nil, err
	}
	out := make([]float64, 0, len(arr))
	for i, v := range arr {
		f, ok := v.(float64)
		if !ok {
			return nil, p.wrongType(fmt.Sprintf("%s[%d]", key, i), "number", v)
		}
		out = append(out, f)
	}
	return out, nil
}

// Raw returns a deep copy of the tree as plain Go values.
func (p *Parameters) Raw() map[string]any {
	return normalizeMap(p.root)
}

// MarshalJSON implements json.Marshaler.
func (p *Parameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.root)
}

// PrettyPrintJSON renders the tree as indented JSON.
func (p *Parameters) PrettyPrintJSON() string {
	data, err := json.MarshalIndent(p.root, "", "    ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

// With returns a copy of the tree where key holds value. Intermediate
// objects are created as needed.
func (p *Parameters) With(key string, value any) *Parameters {
	root := normalizeMap(p.root)
	parts := strings.Split(key, ".")
	cur := root
	for _, part := range parts[:len(parts)-1] {
		next, ok := cur[part].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[part] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = normalize(value)
	return &Parameters{root: root, path: p.path}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "bool"
	default:
		return fmt.Sprintf("%T", v)
	}
}
