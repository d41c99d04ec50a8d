package field

import (
	_ "embed"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed friendly.yaml
var defaultFriendlyYAML []byte

// OptionSet is the vocabulary of a radio-group field.
type OptionSet struct {
	Label  string   `yaml:"label"`
	Values []string `yaml:"values"`
}

// FriendlyNames maps field names to display labels and vocabularies.
type FriendlyNames struct {
	Labels              map[string]string    `yaml:"labels"`
	Options             map[string]OptionSet `yaml:"options"`
	ItemTypes           []string             `yaml:"item_types"`
	ExceptionalIntegers []string             `yaml:"exceptional_integers"`
}

// ParseFriendlyNames decodes a friendly-name catalog.
func ParseFriendlyNames(data []byte) (*FriendlyNames, error) {
	var fn FriendlyNames
	if err := yaml.Unmarshal(data, &fn); err != nil {
		return nil, eris.Wrap(err, "field: parse friendly names")
	}
	if fn.Labels == nil {
		fn.Labels = map[string]string{}
	}
	if fn.Options == nil {
		fn.Options = map[string]OptionSet{}
	}
	return &fn, nil
}

// DefaultFriendlyNames returns the embedded catalog.
func DefaultFriendlyNames() *FriendlyNames {
	fn, err := ParseFriendlyNames(defaultFriendlyYAML)
	if err != nil {
		panic(err)
	}
	return fn
}

// Label returns the display label of a field, falling back to its name.
func (fn *FriendlyNames) Label(name string) string {
	base, _ := SplitTaxCode(name)
	if set, ok := fn.Options[base]; ok && set.Label != "" {
		return set.Label
	}
	if l, ok := fn.Labels[base]; ok {
		return l
	}
	return base
}
