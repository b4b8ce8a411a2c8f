// Package family loads the per-document-family configuration: keyword sets,
// header aliases, sampling rules and synthetic attribute specs for one report
// year. Vocabulary drifts between years, so each family is data, not code.
package family

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/normalizer"
)

//go:embed families/*.yaml
var embedded embed.FS

// ErrInvalidFamily is returned for configuration that cannot drive a run.
var ErrInvalidFamily = errors.New("invalid family configuration")

// ChoiceConfig is one weighted value.
type ChoiceConfig struct {
	Value  string  `yaml:"value"`
	Weight float32 `yaml:"weight"`
}

// WhenConfig is the predicate of a conditioned choice list. All set fields must
// hold for the rule to apply.
type WhenConfig struct {
	Field    string   `yaml:"field"`
	Equals   string   `yaml:"equals,omitempty"`
	In       []string `yaml:"in,omitempty"`
	Contains string   `yaml:"contains,omitempty"`
	Capital  bool     `yaml:"capital,omitempty"`
	Foreign  bool     `yaml:"foreign,omitempty"`
}

// ConditionConfig replaces an attribute's choices when When holds.
type ConditionConfig struct {
	When    WhenConfig     `yaml:"when"`
	Choices []ChoiceConfig `yaml:"choices"`
}

// AttributeConfig declares one synthetic attribute.
type AttributeConfig struct {
	Field      string            `yaml:"field"`
	Choices    []ChoiceConfig    `yaml:"choices"`
	Conditions []ConditionConfig `yaml:"conditions,omitempty"`
}

// AliasConfig lists accepted header synonyms per column role.
type AliasConfig struct {
	Key        []string `yaml:"key"`
	New        []string `yaml:"new,omitempty"`
	Continuing []string `yaml:"continuing,omitempty"`
	Total      []string `yaml:"total,omitempty"`
	Amount     []string `yaml:"amount,omitempty"`
}

// SampleConfig is min(cap, max(min, total/scale)).
type SampleConfig struct {
	Min   int `yaml:"min"`
	Cap   int `yaml:"cap"`
	Scale int `yaml:"scale"`
}

// CategoryConfig configures one table category.
type CategoryConfig struct {
	Name       string            `yaml:"name"`
	Keywords   []string          `yaml:"keywords"`
	KeyField   string            `yaml:"key_field"`
	Fixed      map[string]string `yaml:"fixed,omitempty"`
	Aliases    AliasConfig       `yaml:"aliases"`
	Positional []string          `yaml:"positional,omitempty"`
	Sample     SampleConfig      `yaml:"sample"`
	Attributes []AttributeConfig `yaml:"attributes,omitempty"`
	// Skip keeps the category for classification but drops its tables
	// before normalization.
	Skip bool `yaml:"skip,omitempty"`
}

// Family is one report year's configuration.
type Family struct {
	Name            string            `yaml:"name"`
	Year            int               `yaml:"year"`
	Seed            int64             `yaml:"seed"`
	Threshold       int               `yaml:"threshold"`
	ContextChars    int               `yaml:"context_chars"`
	Capital         string            `yaml:"capital"`
	DomesticRegions []string          `yaml:"domestic_regions"`
	TotalMarkers    []string          `yaml:"total_markers"`
	Categories      []CategoryConfig  `yaml:"categories"`
	Attributes      []AttributeConfig `yaml:"attributes"`
}

// Names lists the embedded families.
func Names() []string {
	entries, err := embedded.ReadDir("families")
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// Load returns an embedded family by name.
func Load(name string) (*Family, error) {
	data, err := embedded.ReadFile(path.Join("families", name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("%w: unknown family %q (available: %s)", ErrInvalidFamily, name, strings.Join(Names(), ", "))
	}
	return Parse(data)
}

// LoadFile reads a family from disk.
func LoadFile(file string) (*Family, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read family file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a family document.
func Parse(data []byte) (*Family, error) {
	var f Family
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFamily, err)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *Family) applyDefaults() {
	if f.Threshold == 0 {
		f.Threshold = 3
	}
	if f.ContextChars == 0 {
		f.ContextChars = 500
	}
	if len(f.TotalMarkers) == 0 {
		f.TotalMarkers = []string{"total", "total general"}
	}
	if f.Seed == 0 {
		f.Seed = int64(f.Year)
	}
}

// Validate checks categories, fields, weights and sample rules.
func (f *Family) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if f.Name == "" {
		add("name is required")
	}
	if f.Year <= 0 {
		add("year must be positive")
	}
	if len(f.Categories) == 0 {
		add("at least one category is required")
	}

	seen := make(map[dataset.Category]bool)
	for _, c := range f.Categories {
		cat, err := dataset.ParseCategory(c.Name)
		if err != nil {
			add("category: %v", err)
			continue
		}
		if cat == dataset.CategoryOther {
			add("category %q is reserved", c.Name)
		}
		if seen[cat] {
			add("category %q declared twice", c.Name)
		}
		seen[cat] = true

		if len(c.Keywords) == 0 {
			add("category %s: keywords are required", c.Name)
		}
		if c.Skip {
			continue
		}
		if _, err := dataset.ParseField(c.KeyField); err != nil {
			add("category %s: key_field: %v", c.Name, err)
		}
		for name := range c.Fixed {
			if _, err := dataset.ParseField(name); err != nil {
				add("category %s: fixed: %v", c.Name, err)
			}
		}
		if len(c.Aliases.Key) == 0 && len(c.Positional) == 0 {
			add("category %s: key aliases or a positional map are required", c.Name)
		}
		for _, r := range c.Positional {
			if _, err := normalizer.ParseRole(r); err != nil {
				add("category %s: positional: %v", c.Name, err)
			}
		}
		if s := c.Sample; s != (SampleConfig{}) {
			if s.Min < 1 || s.Cap < s.Min || s.Scale < 1 {
				add("category %s: sample needs min >= 1, cap >= min, scale >= 1", c.Name)
			}
		}
		for _, a := range c.Attributes {
			validateAttribute(a, "category "+c.Name, add)
		}
	}

	fields := make(map[string]bool)
	for _, a := range f.Attributes {
		if fields[a.Field] {
			add("attribute %s declared twice", a.Field)
		}
		fields[a.Field] = true
		validateAttribute(a, "attribute", add)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidFamily, strings.Join(problems, "; "))
	}
	return nil
}

func validateAttribute(a AttributeConfig, where string, add func(string, ...any)) {
	field, err := dataset.ParseField(a.Field)
	if err != nil {
		add("%s: %v", where, err)
		return
	}
	if field == dataset.FieldYear {
		add("%s: year cannot be synthesized", where)
	}
	if len(a.Choices) == 0 {
		add("%s %s: choices are required", where, a.Field)
	}
	checkChoices := func(choices []ChoiceConfig) {
		for _, ch := range choices {
			if ch.Weight <= 0 {
				add("%s %s: weight of %q must be positive", where, a.Field, ch.Value)
			}
		}
	}
	checkChoices(a.Choices)
	for _, cond := range a.Conditions {
		if _, err := dataset.ParseField(cond.When.Field); err != nil {
			add("%s %s: condition: %v", where, a.Field, err)
		}
		if len(cond.Choices) == 0 {
			add("%s %s: condition without choices", where, a.Field)
		}
		checkChoices(cond.Choices)
	}
}

// Category returns the configuration of a category.
func (f *Family) Category(c dataset.Category) (CategoryConfig, bool) {
	for _, cc := range f.Categories {
		if cc.Name == string(c) {
			return cc, true
		}
	}
	return CategoryConfig{}, false
}
