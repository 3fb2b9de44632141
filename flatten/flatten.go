package flatten

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Var is a single flattened variable.
type Var struct {
	Name  string
	Value string
}

// String returns the variable in NAME=value form.
func (v Var) String() string {
	return v.Name + "=" + v.Value
}

// UnsupportedTypeError is returned when a value can't be represented as an
// environment string.
type UnsupportedTypeError struct {
	TypeName string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("type %q not supported", e.TypeName)
}

// UnsupportedType implements the unsupportedType error behavior.
func (e *UnsupportedTypeError) UnsupportedType() (bool, string) {
	return true, e.TypeName
}

// Document parses a YAML or JSON document and flattens it with the given
// prefix. Mapping keys are visited in the order they appear in data.
func Document(data []byte, prefix string) ([]Var, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "failed to parse document")
	}
	// An empty input leaves the node unset, which is flattened as null.
	if doc.Kind == 0 {
		return []Var{{Name: prefix}}, nil
	}
	return flattenNode(&doc, prefix, nil)
}

func flattenNode(n *yaml.Node, prefix string, out []Var) ([]Var, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return append(out, Var{Name: prefix}), nil
		}
		return flattenNode(n.Content[0], prefix, out)

	case yaml.AliasNode:
		return flattenNode(n.Alias, prefix, out)

	case yaml.SequenceNode:
		var err error
		for i, item := range n.Content {
			if out, err = flattenNode(item, join(prefix, strconv.Itoa(i)), out); err != nil {
				return nil, err
			}
		}
		return out, nil

	case yaml.MappingNode:
		var err error
		for i := 0; i+1 < len(n.Content); i += 2 {
			key, val := n.Content[i], n.Content[i+1]
			if key.Kind != yaml.ScalarNode {
				return nil, &UnsupportedTypeError{TypeName: key.ShortTag()}
			}
			if out, err = flattenNode(val, join(prefix, key.Value), out); err != nil {
				return nil, err
			}
		}
		return out, nil

	case yaml.ScalarNode:
		switch tag := n.ShortTag(); tag {
		case "!!str", "!!int", "!!float":
			// Numbers keep their literal document text.
			return append(out, Var{Name: prefix, Value: n.Value}), nil
		case "!!bool":
			var b bool
			if err := n.Decode(&b); err != nil {
				return nil, errors.Wrapf(err, "failed to decode %q as bool", n.Value)
			}
			return append(out, Var{Name: prefix, Value: boolString(b)}), nil
		case "!!null":
			return append(out, Var{Name: prefix}), nil
		default:
			return nil, &UnsupportedTypeError{TypeName: tag}
		}
	}

	return nil, &UnsupportedTypeError{TypeName: fmt.Sprintf("node kind %d", n.Kind)}
}

// Value flattens an already decoded value with the given prefix. Keys of Go
// maps have no document order, so they are visited in sorted order.
func Value(v interface{}, prefix string) ([]Var, error) {
	return flattenValue(v, prefix, nil)
}

func flattenValue(v interface{}, prefix string, out []Var) ([]Var, error) {
	switch t := v.(type) {
	case nil:
		return append(out, Var{Name: prefix}), nil
	case string:
		return append(out, Var{Name: prefix, Value: t}), nil
	case bool:
		return append(out, Var{Name: prefix, Value: boolString(t)}), nil
	case json.Number:
		return append(out, Var{Name: prefix, Value: t.String()}), nil
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return append(out, Var{Name: prefix, Value: fmt.Sprint(t)}), nil
	case float32:
		return append(out, Var{Name: prefix, Value: strconv.FormatFloat(float64(t), 'g', -1, 32)}), nil
	case float64:
		return append(out, Var{Name: prefix, Value: strconv.FormatFloat(t, 'g', -1, 64)}), nil
	case []interface{}:
		var err error
		for i, item := range t {
			if out, err = flattenValue(item, join(prefix, strconv.Itoa(i)), out); err != nil {
				return nil, err
			}
		}
		return out, nil
	case map[string]interface{}:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var err error
		for _, k := range keys {
			if out, err = flattenValue(t[k], join(prefix, k), out); err != nil {
				return nil, err
			}
		}
		return out, nil
	default:
		return nil, &UnsupportedTypeError{TypeName: fmt.Sprintf("%T", v)}
	}
}

// Environ renders the variables in the NAME=value form used by
// exec.Cmd.Env.
func Environ(vars []Var) []string {
	env := make([]string, 0, len(vars))
	for _, v := range vars {
		env = append(env, v.String())
	}
	return env
}

// join builds the child key. The separator is only added to a non-empty
// prefix.
func join(prefix, key string) string {
	if prefix == "" {
		return strings.ToUpper(key)
	}
	return strings.ToUpper(prefix + "_" + key)
}

func boolString(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
