package settings

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/zclconf/go-cty/cty"
	"gopkg.in/yaml.v3"
)

// Load reads a parameters file. The format is chosen by extension:
// .json, .yaml/.yml or .hcl.
func Load(path string) (*Parameters, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FromJSON(data)
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".hcl":
		return FromHCL(path, data)
	default:
		return nil, fmt.Errorf("settings: unsupported file extension %q", filepath.Ext(path))
	}
}

// FromYAML decodes a YAML mapping.
func FromYAML(data []byte) (*Parameters, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("settings: decode yaml: %w", err)
	}
	if raw == nil {
		raw = map[string]any{}
	}
	return New(raw), nil
}

// ToYAML renders the tree as YAML.
func (p *Parameters) ToYAML() ([]byte, error) {
	return yaml.Marshal(p.root)
}

// FromHCL decodes an HCL document written in attribute syntax:
//
//	problem_data = {
//	  echo_level    = 1
//	  parallel_type = "Serial"
//	}
//
// Blocks are not supported; every top-level item must be an attribute.
func FromHCL(filename string, data []byte) (*Parameters, error) {
	file, diags := hclparse.NewParser().ParseHCL(data, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("settings: parse hcl: %w", diags)
	}
	attrs, diags := file.Body.JustAttributes()
	if diags.HasErrors() {
		return nil, fmt.Errorf("settings: parse hcl: %w", diags)
	}

	raw := make(map[string]any, len(attrs))
	for name, attr := range attrs {
		val, diags := attr.Expr.Value(&hcl.EvalContext{})
		if diags.HasErrors() {
			return nil, fmt.Errorf("settings: evaluate %s: %w", name, diags)
		}
		goVal, err := ctyToGo(val)
		if err != nil {
			return nil, fmt.Errorf("settings: convert %s: %w", name, err)
		}
		raw[name] = goVal
	}
	return New(raw), nil
}

func ctyToGo(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}
	if !val.IsKnown() {
		return nil, fmt.Errorf("value is not known")
	}

	ty := val.Type()
	switch {
	case ty == cty.String:
		return val.AsString(), nil
	case ty == cty.Number:
		f, _ := val.AsBigFloat().Float64()
		return f, nil
	case ty == cty.Bool:
		return val.True(), nil
	case ty.IsObjectType() || ty.IsMapType():
		out := make(map[string]any)
		for it := val.ElementIterator(); it.Next(); {
			k, v := it.Element()
			goVal, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out[k.AsString()] = goVal
		}
		return out, nil
	case ty.IsTupleType() || ty.IsListType() || ty.IsSetType():
		out := make([]any, 0, val.LengthInt())
		for it := val.ElementIterator(); it.Next(); {
			_, v := it.Element()
			goVal, err := ctyToGo(v)
			if err != nil {
				return nil, err
			}
			out = append(out, goVal)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported type %s", ty.FriendlyName())
	}
}
