package symbols

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed aliases.yaml
var defaultAliases []byte

// Instrument lists the broker name variants of one logical instrument.
type Instrument struct {
	Priority   []string `yaml:"priority"`
	Alternates []string `yaml:"alternates"`
}

// AliasTable is the loaded symbol variant data.
type AliasTable struct {
	Suffixes    []string              `yaml:"suffixes"`
	Instruments map[string]Instrument `yaml:"instruments"`
}

// LoadAliases reads an alias table from path, or the built-in table when
// path is empty.
func LoadAliases(path string) (*AliasTable, error) {
	data := defaultAliases
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("symbols: read aliases %s: %w", path, err)
		}
		data = b
	}
	return ParseAliases(data)
}

// ParseAliases decodes a YAML alias table.
func ParseAliases(data []byte) (*AliasTable, error) {
	var t AliasTable
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("symbols: parse aliases: %w", err)
	}
	norm := make(map[string]Instrument, len(t.Instruments))
	for k, v := range t.Instruments {
		norm[strings.ToUpper(strings.TrimSpace(k))] = v
	}
	t.Instruments = norm
	return &t, nil
}

// Candidates returns the ordered, de-duplicated probe list for a logical
// symbol.
func (t *AliasTable) Candidates(logical string) []string {
	logical = strings.ToUpper(strings.TrimSpace(logical))
	if logical == "" {
		return nil
	}
	inst := t.Instruments[logical]

	seen := make(map[string]bool)
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	for _, a := range inst.Priority {
		add(a)
	}
	add(logical)
	for _, suf := range t.Suffixes {
		add(logical + suf)
	}
	for _, alt := range inst.Alternates {
		add(alt)
	}
	for _, alt := range inst.Alternates {
		for _, suf := range t.Suffixes {
			add(alt + suf)
		}
	}
	return out
}
