package config

import (
	"fmt"
	"sort"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/satishbabariya/duckql/runtime/types"
)

// TableMapping exposes an external file as a named view.
type TableMapping struct {
	Source  string         `yaml:"source"`
	Options map[string]any `yaml:"options,omitempty"`
}

// UnmarshalYAML accepts either a bare source path or a {source, options}
// object.
func (m *TableMapping) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var source string
		if err := node.Decode(&source); err != nil {
			return err
		}
		*m = TableMapping{Source: source}
		return nil
	}
	type plain TableMapping
	var p plain
	if err := node.Decode(&p); err != nil {
		return err
	}
	*m = TableMapping(p)
	return nil
}

// MarshalYAML writes the short form when there are no options.
func (m TableMapping) MarshalYAML() (any, error) {
	if len(m.Options) == 0 {
		return m.Source, nil
	}
	type plain TableMapping
	return plain(m), nil
}

// SourceOptions converts reader options to values in name order.
func (m TableMapping) SourceOptions() ([]string, []types.Value, error) {
	names := make([]string, 0, len(m.Options))
	for name := range m.Options {
		names = append(names, name)
	}
	sort.Strings(names)
	vals := make([]types.Value, len(names))
	for i, name := range names {
		v, err := types.FromGo(m.Options[name])
		if err != nil {
			return nil, nil, fmt.Errorf("option %s: %w", name, err)
		}
		vals[i] = v
	}
	return names, vals, nil
}

// parseMapping converts a loosely typed config entry.
func parseMapping(name string, raw any) (TableMapping, error) {
	switch r := raw.(type) {
	case string:
		return TableMapping{Source: r}, nil
	case map[string]any:
		m := TableMapping{}
		for k, v := range r {
			switch k {
			case "source":
				s, ok := v.(string)
				if !ok {
					return TableMapping{}, fmt.Errorf("table mapping %s: source must be a string", name)
				}
				m.Source = s
			case "options":
				opts, ok := v.(map[string]any)
				if !ok {
					return TableMapping{}, fmt.Errorf("table mapping %s: options must be a map", name)
				}
				m.Options = opts
			default:
				return TableMapping{}, fmt.Errorf("table mapping %s: unknown key %q", name, k)
			}
		}
		return m, nil
	}
	return TableMapping{}, fmt.Errorf("table mapping %s: expected a path or an object, got %T", name, raw)
}

// LoadMappings reads a standalone YAML file of table mappings.
func LoadMappings(fs afero.Fs, path string) (map[string]TableMapping, error) {
	path, err := homedir.Expand(path)
	if err != nil {
		return nil, err
	}
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read mappings: %w", err)
	}
	var out map[string]TableMapping
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse mappings %s: %w", path, err)
	}
	for name, m := range out {
		if m.Source, err = homedir.Expand(m.Source); err != nil {
			return nil, err
		}
		out[name] = m
	}
	return out, nil
}

// SaveMappings writes mappings as YAML.
func SaveMappings(fs afero.Fs, path string, mappings map[string]TableMapping) error {
	data, err := yaml.Marshal(mappings)
	if err != nil {
		return err
	}
	return afero.WriteFile(fs, path, data, 0o644)
}
