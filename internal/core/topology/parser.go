package topology

import (
	"fmt"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Topology Parsing
// =============================================================================

// Parse decodes a topology document. Values substitutes ${VAR} and
// ${VAR:-default} placeholders before decoding, so one topology file serves
// dev, test and prod with different value sets.
func Parse(data []byte, values map[string]string) (*Topology, error) {
	if len(data) == 0 {
		return nil, ErrEmptyInput
	}

	substituted := SubstituteValues(string(data), values)

	var t Topology
	if err := yaml.Unmarshal([]byte(substituted), &t); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	return &t, nil
}

// UnmarshalYAML decodes a probe, accepting Go duration strings ("5s",
// "500ms") for the timeout field.
func (p *Probe) UnmarshalYAML(node *yaml.Node) error {
	var raw struct {
		Type    ProbeType `yaml:"type"`
		Path    string    `yaml:"path"`
		Port    int       `yaml:"port"`
		Command []string  `yaml:"command"`
		Timeout string    `yaml:"timeout"`
	}
	if err := node.Decode(&raw); err != nil {
		return err
	}

	p.Type = raw.Type
	p.Path = raw.Path
	p.Port = raw.Port
	p.Command = raw.Command
	if raw.Timeout != "" {
		d, err := time.ParseDuration(raw.Timeout)
		if err != nil {
			return fmt.Errorf("%w: probe timeout %q: %v", ErrInvalidProbe, raw.Timeout, err)
		}
		p.Timeout = d
	}
	return nil
}

// =============================================================================
// Value Substitution
// =============================================================================

// valuePlaceholderRegex matches ${VAR} and ${VAR:-default} patterns.
var valuePlaceholderRegex = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// SubstituteValues replaces ${VAR} and ${VAR:-default} placeholders with
// values from the map.
//
// Behavior:
//   - ${VAR} - replaced with values["VAR"] if present, otherwise kept as-is
//   - ${VAR:-default} - replaced with values["VAR"] if present, otherwise "default"
//   - Unmatched text is left unchanged
func SubstituteValues(text string, values map[string]string) string {
	if values == nil {
		values = make(map[string]string)
	}

	return valuePlaceholderRegex.ReplaceAllStringFunc(text, func(match string) string {
		submatch := valuePlaceholderRegex.FindStringSubmatch(match)
		if len(submatch) < 2 {
			return match
		}
		name := submatch[1]
		if val, ok := values[name]; ok {
			return val
		}
		// ${VAR:-default} including the empty-default form ${VAR:-}
		if len(match) > len(name)+3 && match[len(name)+2] == ':' {
			return submatch[2]
		}
		return match
	})
}
