package rules

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/isco"
	"github.com/kailas-cloud/escomatch/internal/domain/occupation"
)

// Target names a taxonomy occupation by verbatim preferred label and ISCO code.
type Target struct {
	Label string `yaml:"label" json:"label"`
	ISCO  string `yaml:"isco_code" json:"isco_code"`
}

// DictionaryEntry maps a local job-title variant to a taxonomy occupation.
// Exact entries only fire when the whole cleaned title equals the key.
type DictionaryEntry struct {
	Key    string `yaml:"key" json:"key"`
	Target `yaml:",inline"`
	Exact  bool `yaml:"exact,omitempty" json:"exact,omitempty"`
}

// Resolver is the part of the taxonomy store the rule layer validates against.
type Resolver interface {
	ByLabel(label, isco string) (int, bool)
	HasLabel(label string) bool
	Occupation(i int) occupation.Occupation
}

// Dictionary is the bypass table keyed by normalized title.
type Dictionary struct {
	entries map[string]DictionaryEntry
	// contains-match candidates, longest key first
	phrases []string
	raw     []DictionaryEntry
}

// NewDictionary indexes entries by normalized key. The first entry wins for a
// duplicated key; Validate reports the rest.
func NewDictionary(entries []DictionaryEntry) *Dictionary {
	d := &Dictionary{
		entries: make(map[string]DictionaryEntry, len(entries)),
		raw:     entries,
	}
	for _, e := range entries {
		key := Normalize(e.Key)
		if key == "" {
			continue
		}
		if _, dup := d.entries[key]; dup {
			continue
		}
		d.entries[key] = e
		if !e.Exact {
			d.phrases = append(d.phrases, key)
		}
	}
	sort.Slice(d.phrases, func(i, j int) bool {
		if len(d.phrases[i]) != len(d.phrases[j]) {
			return len(d.phrases[i]) > len(d.phrases[j])
		}
		return d.phrases[i] < d.phrases[j]
	})
	return d
}

// Len returns the number of distinct normalized keys.
func (d *Dictionary) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Lookup matches a cleaned title: an exact normalized match first, otherwise
// the longest key that occurs in the title as a whole phrase.
func (d *Dictionary) Lookup(title string) (DictionaryEntry, bool) {
	if d == nil || len(d.entries) == 0 {
		return DictionaryEntry{}, false
	}
	t := Normalize(title)
	if t == "" {
		return DictionaryEntry{}, false
	}
	if e, ok := d.entries[t]; ok {
		return e, true
	}
	for _, key := range d.phrases {
		if containsPhrase(t, key) {
			return d.entries[key], true
		}
	}
	return DictionaryEntry{}, false
}

// Validate checks every entry against the taxonomy.
func (d *Dictionary) Validate(r Resolver) []domain.DictionaryIntegrityWarning {
	if d == nil {
		return nil
	}
	var out []domain.DictionaryIntegrityWarning
	seen := make(map[string]string, len(d.raw))
	for _, e := range d.raw {
		warn := func(reason string) {
			out = append(out, domain.DictionaryIntegrityWarning{
				Source: "dictionary", Key: e.Key, Label: e.Label, ISCO: e.ISCO, Reason: reason,
			})
		}

		key := Normalize(e.Key)
		if key == "" {
			warn("empty key")
			continue
		}
		if first, dup := seen[key]; dup {
			warn(fmt.Sprintf("duplicate normalized key %q (first defined as %q)", key, first))
			continue
		}
		seen[key] = e.Key

		if reason := checkTarget(r, e.Target); reason != "" {
			warn(reason)
		}
	}
	return out
}

// checkTarget returns the warning reason for t, or "" when it resolves.
func checkTarget(r Resolver, t Target) string {
	if t.Label == "" {
		return "empty label"
	}
	if t.ISCO != "" {
		if _, err := isco.Parse(t.ISCO); err != nil {
			return fmt.Sprintf("invalid isco code: %v", err)
		}
	}
	if !r.HasLabel(t.Label) {
		return "label not in taxonomy"
	}
	if _, ok := ResolveTarget(r, t); !ok {
		row, _ := r.ByLabel(t.Label, "")
		return fmt.Sprintf("isco code does not match taxonomy label (taxonomy has %s)", r.Occupation(row).Code)
	}
	return ""
}

// ResolveTarget finds the taxonomy row for t. A configured code shorter than
// four digits acts as a group prefix.
func ResolveTarget(r Resolver, t Target) (int, bool) {
	return r.ByLabel(t.Label, codePrefix(t.ISCO))
}

func codePrefix(code string) string {
	head, _, _ := strings.Cut(strings.TrimSpace(code), ".")
	if len(head) > isco.Digits {
		head = head[:isco.Digits]
	}
	return head
}
