package settings

import (
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
)

// ValidateAndAssignDefaults checks p against defaults and returns a new
// tree where every key missing from p holds its default value. Keys present
// in p but not in defaults are rejected, as are values whose kind differs
// from the default's. Nested objects are validated recursively; arrays are
// accepted as-is.
func (p *Parameters) ValidateAndAssignDefaults(defaults *Parameters) (*Parameters, error) {
	merged, err := mergeDefaults(p.root, defaults.root, p.path)
	if err != nil {
		return nil, err
	}
	return &Parameters{root: merged, path: p.path}, nil
}

// AddMissing returns a new tree with the keys of defaults that p lacks.
// Unlike ValidateAndAssignDefaults it accepts unknown keys.
func (p *Parameters) AddMissing(defaults *Parameters) *Parameters {
	root := normalizeMap(p.root)
	for k, v := range defaults.root {
		if _, ok := root[k]; !ok {
			root[k] = normalize(v)
		}
	}
	return &Parameters{root: root, path: p.path}
}

func mergeDefaults(given, defaults map[string]any, path string) (map[string]any, error) {
	keys := make([]string, 0, len(given))
	for k := range given {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if _, ok := defaults[k]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownKey, join(path, k))
		}
	}

	out := make(map[string]any, len(defaults))
	for k, def := range defaults {
		val, ok := given[k]
		if !ok {
			out[k] = normalize(def)
			continue
		}
		if kindOf(val) != kindOf(def) && def != nil {
			return nil, fmt.Errorf("%w: %s is %s, expected %s", ErrWrongType, join(path, k), kindOf(val), kindOf(def))
		}
		if sub, isMap := val.(map[string]any); isMap {
			merged, err := mergeDefaults(sub, def.(map[string]any), join(path, k))
			if err != nil {
				return nil, err
			}
			out[k] = merged
			continue
		}
		out[k] = normalize(val)
	}
	return out, nil
}

func join(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

// Decode copies the tree into out, a pointer to a struct tagged with
// `mapstructure` names. Numbers convert to the field's numeric type.
func (p *Parameters) Decode(out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(p.root); err != nil {
		where := p.path
		if where == "" {
			where = "settings"
		}
		return fmt.Errorf("settings: decode %s: %w", where, err)
	}
	return nil
}
