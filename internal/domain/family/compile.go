package family

import (
	"strings"

	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/classifier"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/dataset"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/normalizer"
	"github.com/UPT-FAING-EPIS/proyecto-si885-2025-ii-u3-easybeca-u3/internal/domain/sampler"
)

// KeywordSets returns the classifier vocabulary in declaration order.
func (f *Family) KeywordSets() []classifier.KeywordSet {
	sets := make([]classifier.KeywordSet, 0, len(f.Categories))
	for _, c := range f.Categories {
		sets = append(sets, classifier.KeywordSet{
			Category: dataset.Category(c.Name),
			Keywords: c.Keywords,
		})
	}
	return sets
}

// ClassifierOptions returns the classification settings of the family.
func (f *Family) ClassifierOptions() classifier.Options {
	return classifier.Options{
		Threshold:    f.Threshold,
		ContextChars: f.ContextChars,
	}
}

// NormalizerOptions returns the normalization settings of the family.
func (f *Family) NormalizerOptions() normalizer.Options {
	return normalizer.Options{TotalMarkers: f.TotalMarkers}
}

// Schemas returns the normalization schema of every non-skipped category.
// Validate has already rejected unknown fields and roles.
func (f *Family) Schemas() []normalizer.Schema {
	schemas := make([]normalizer.Schema, 0, len(f.Categories))
	for _, c := range f.Categories {
		if c.Skip {
			continue
		}
		keyField, _ := dataset.ParseField(c.KeyField)
		s := normalizer.Schema{
			Category: dataset.Category(c.Name),
			KeyField: keyField,
			Aliases: map[normalizer.Role][]string{
				normalizer.RoleKey:        c.Aliases.Key,
				normalizer.RoleNew:        c.Aliases.New,
				normalizer.RoleContinuing: c.Aliases.Continuing,
				normalizer.RoleTotal:      c.Aliases.Total,
				normalizer.RoleAmount:     c.Aliases.Amount,
			},
		}
		if len(c.Fixed) > 0 {
			s.Fixed = make(map[dataset.Field]string, len(c.Fixed))
			for name, v := range c.Fixed {
				field, _ := dataset.ParseField(name)
				s.Fixed[field] = v
			}
		}
		for _, name := range c.Positional {
			r, _ := normalizer.ParseRole(name)
			s.Positional = append(s.Positional, r)
		}
		schemas = append(schemas, s)
	}
	return schemas
}

// SampleRules returns the configured rule per category. Categories without a
// sample block fall back to sampler.DefaultRule.
func (f *Family) SampleRules() map[dataset.Category]sampler.SampleRule {
	rules := make(map[dataset.Category]sampler.SampleRule)
	for _, c := range f.Categories {
		if c.Sample == (SampleConfig{}) {
			continue
		}
		rules[dataset.Category(c.Name)] = sampler.SampleRule{
			Min:   c.Sample.Min,
			Cap:   c.Sample.Cap,
			Scale: c.Sample.Scale,
		}
	}
	return rules
}

// Specs compiles the attribute declarations, including per-category overrides.
func (f *Family) Specs() sampler.Specs {
	specs := sampler.Specs{Overrides: make(map[dataset.Category][]sampler.AttributeSpec)}
	for _, a := range f.Attributes {
		specs.Default = append(specs.Default, f.compileAttribute(a))
	}
	for _, c := range f.Categories {
		for _, a := range c.Attributes {
			cat := dataset.Category(c.Name)
			specs.Overrides[cat] = append(specs.Overrides[cat], f.compileAttribute(a))
		}
	}
	return specs
}

func (f *Family) compileAttribute(a AttributeConfig) sampler.AttributeSpec {
	field, _ := dataset.ParseField(a.Field)
	spec := sampler.AttributeSpec{
		Field:   field,
		Choices: compileChoices(a.Choices),
	}
	if len(a.Conditions) == 0 {
		return spec
	}

	type rule struct {
		match   func(*dataset.ExpandedRecord) bool
		choices []sampler.Choice
	}
	rules := make([]rule, 0, len(a.Conditions))
	for _, cond := range a.Conditions {
		rules = append(rules, rule{
			match:   f.compileWhen(cond.When),
			choices: compileChoices(cond.Choices),
		})
	}
	spec.Condition = func(row *dataset.ExpandedRecord) ([]sampler.Choice, bool) {
		for _, r := range rules {
			if r.match(row) {
				return r.choices, true
			}
		}
		return nil, false
	}
	return spec
}

func compileChoices(in []ChoiceConfig) []sampler.Choice {
	out := make([]sampler.Choice, len(in))
	for i, c := range in {
		out[i] = sampler.Choice{Value: c.Value, Weight: c.Weight}
	}
	return out
}

// compileWhen builds the predicate of a condition. Comparisons are folded so
// "Junín" and "JUNIN" match the same rule.
func (f *Family) compileWhen(w WhenConfig) func(*dataset.ExpandedRecord) bool {
	field, _ := dataset.ParseField(w.Field)
	equals := dataset.Fold(w.Equals)
	contains := dataset.Fold(w.Contains)
	in := make(map[string]bool, len(w.In))
	for _, v := range w.In {
		in[dataset.Fold(v)] = true
	}
	capital := dataset.Fold(f.Capital)
	domestic := f.domestic()

	return func(row *dataset.ExpandedRecord) bool {
		value := dataset.Fold(row.Get(field).Text)
		if w.Equals != "" && value != equals {
			return false
		}
		if len(in) > 0 && !in[value] {
			return false
		}
		if w.Contains != "" && !strings.Contains(value, contains) {
			return false
		}
		if w.Capital && (capital == "" || value != capital) {
			return false
		}
		if w.Foreign && (value == "" || domestic[value]) {
			return false
		}
		return true
	}
}

func (f *Family) domestic() map[string]bool {
	out := make(map[string]bool, len(f.DomesticRegions))
	for _, r := range f.DomesticRegions {
		out[dataset.Fold(r)] = true
	}
	return out
}
