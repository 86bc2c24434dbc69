package rules

import (
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/escomatch/internal/domain"
)

// RuleLayerConfig is the immutable rule set a matcher is constructed with.
// Several configurations can live side by side in one process.
type RuleLayerConfig struct {
	Dictionary *Dictionary
	Forced     *ForcedRules
	Families   *FamilySet

	// sources holds the raw rule file bytes by name, for fingerprinting.
	sources map[string][]byte
}

// NewRuleLayerConfig assembles a config from already-built parts. Nil parts
// behave as empty. The fingerprint covers a YAML rendering of the parts;
// LoadFiles replaces it with the raw file bytes.
func NewRuleLayerConfig(dict *Dictionary, forced *ForcedRules, families *FamilySet) *RuleLayerConfig {
	c := &RuleLayerConfig{Dictionary: dict, Forced: forced, Families: families}
	c.sources = c.render()
	return c
}

func (c *RuleLayerConfig) render() map[string][]byte {
	out := make(map[string][]byte, 3)
	put := func(name string, v any) {
		if b, err := yaml.Marshal(v); err == nil {
			out[name] = b
		}
	}
	if c.Dictionary != nil && len(c.Dictionary.raw) > 0 {
		put("dictionary", dictionaryFile{Entries: c.Dictionary.raw})
	}
	if rs := c.Forced.Rules(); len(rs) > 0 {
		put("forced", forcedFile{Rules: rs})
	}
	if fs := c.Families.Families(); len(fs) > 0 {
		put("families", familiesFile{Families: fs})
	}
	return out
}

// WriteFingerprint writes the raw rule sources to w in a stable order.
func (c *RuleLayerConfig) WriteFingerprint(w io.Writer) {
	if c == nil {
		return
	}
	names := make([]string, 0, len(c.sources))
	for n := range c.sources {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		_, _ = io.WriteString(w, n)
		_, _ = w.Write([]byte{0})
		_, _ = w.Write(c.sources[n])
		_, _ = w.Write([]byte{0})
	}
}

// Validate runs the integrity pass over dictionary and forced targets.
func (c *RuleLayerConfig) Validate(r Resolver) []domain.DictionaryIntegrityWarning {
	if c == nil {
		return nil
	}
	out := c.Dictionary.Validate(r)
	out = append(out, c.Forced.Validate(r)...)
	return out
}
