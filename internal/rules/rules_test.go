package rules

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/isco"
	"github.com/kailas-cloud/escomatch/internal/domain/occupation"
	"github.com/kailas-cloud/escomatch/internal/domain/posting"
)

// fakeResolver is a label index over a fixed occupation list.
type fakeResolver struct {
	occs []occupation.Occupation
}

func (f fakeResolver) ByLabel(label, prefix string) (int, bool) {
	best := -1
	for i, o := range f.occs {
		if o.PreferredLabel != label || (prefix != "" && !o.Code.HasPrefix(prefix)) {
			continue
		}
		if best < 0 || o.Code.Less(f.occs[best].Code) {
			best = i
		}
	}
	return best, best >= 0
}

func (f fakeResolver) HasLabel(label string) bool {
	for _, o := range f.occs {
		if o.PreferredLabel == label {
			return true
		}
	}
	return false
}

func (f fakeResolver) Occupation(i int) occupation.Occupation { return f.occs[i] }

func testResolver() fakeResolver {
	return fakeResolver{occs: []occupation.Occupation{
		{URI: "esco:waiter", PreferredLabel: "Camarero", Code: isco.MustParse("5131")},
		{URI: "esco:seller", PreferredLabel: "vendedor", Code: isco.MustParse("5223")},
		{URI: "esco:intern", PreferredLabel: "becario", Code: isco.MustParse("3343")},
	}}
}

func TestNormalize(t *testing.T) {
	tests := map[string]string{
		"  Mozo/a de SALÓN ":       "mozo a de salon",
		"Pasantía - Programa 2024": "pasantia programa 2024",
		"Niñera":                   "ninera",
		"":                         "",
		"¡¡!!":                     "",
	}
	for in, want := range tests {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDictionary_Lookup(t *testing.T) {
	d := NewDictionary([]DictionaryEntry{
		{Key: "mozo", Target: Target{Label: "Camarero", ISCO: "5131"}},
		{Key: "mozo de almacén", Target: Target{Label: "peón de almacén", ISCO: "9333"}},
		{Key: "cajero", Target: Target{Label: "cajero", ISCO: "5230"}, Exact: true},
	})

	tests := []struct {
		title string
		want  string
		ok    bool
	}{
		{"Mozo", "Camarero", true},
		{"MOZO  ", "Camarero", true},
		{"Mozo para restaurante", "Camarero", true},
		{"Mozo de Almacén zona norte", "peón de almacén", true},
		{"Cajero", "cajero", true},
		{"Cajero bancario", "", false},
		{"Mozos", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		e, ok := d.Lookup(tc.title)
		if ok != tc.ok || e.Label != tc.want {
			t.Errorf("Lookup(%q) = %q %v, want %q %v", tc.title, e.Label, ok, tc.want, tc.ok)
		}
	}
}

func TestDictionary_Validate(t *testing.T) {
	d := NewDictionary([]DictionaryEntry{
		{Key: "mozo", Target: Target{Label: "Camarero", ISCO: "5131"}},
		{Key: "Mozo ", Target: Target{Label: "Camarero", ISCO: "5131"}},
		{Key: "  ", Target: Target{Label: "Camarero", ISCO: "5131"}},
		{Key: "garzon", Target: Target{Label: "camarero", ISCO: "5131"}},
		{Key: "mesero", Target: Target{Label: "Camarero", ISCO: "6130"}},
		{Key: "promotor", Target: Target{Label: "vendedor", ISCO: "52"}},
	})

	warnings := d.Validate(testResolver())
	reasons := make(map[string]string)
	for _, w := range warnings {
		if !errors.Is(w, domain.ErrDictionaryIntegrity) {
			t.Errorf("warning %v does not wrap ErrDictionaryIntegrity", w)
		}
		reasons[w.Key] = w.Reason
	}
	if len(warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %d: %v", len(warnings), warnings)
	}
	for _, key := range []string{"Mozo ", "  ", "garzon", "mesero"} {
		if _, ok := reasons[key]; !ok {
			t.Errorf("missing warning for %q", key)
		}
	}
	if reasons["garzon"] != "label not in taxonomy" {
		t.Errorf("garzon reason = %q", reasons["garzon"])
	}
}

func TestForcedRules_PriorityAndNeverConfirm(t *testing.T) {
	rules, err := NewForcedRules([]ForcedRule{
		{
			ID: "generic-program", Priority: 20,
			When: Condition{All: []string{"pasantía", "programa"}},
			Then: Action{NeverConfirm: true},
		},
		{
			ID: "intern-title", Priority: 10,
			When: Condition{Field: FieldTitle, Any: []string{"pasante", "becario"}},
			Then: Action{Force: &Target{Label: "becario", ISCO: "3343"}},
		},
		{
			ID: "trainee-desc", Priority: 30,
			When: Condition{Field: FieldDescription, Pattern: `\bjoven(es)? profesional(es)?\b`},
			Then: Action{Force: &Target{Label: "vendedor"}, NeverConfirm: true},
		},
	})
	if err != nil {
		t.Fatalf("NewForcedRules: %v", err)
	}
	if rules.Rules()[0].ID != "intern-title" {
		t.Fatalf("rules not ordered by priority: %s first", rules.Rules()[0].ID)
	}

	p := posting.Posting{
		ID:          "p1",
		Title:       "Pasante administrativo",
		Description: "Programa de pasantías para jóvenes profesionales",
	}
	out := rules.Evaluate(p)
	if out.Force == nil || out.Force.ID != "intern-title" {
		t.Fatalf("first forcing rule should win, got %+v", out.Force)
	}
	if !out.NeverConfirm {
		t.Error("never_confirm should be OR-combined across matched rules")
	}
	if len(out.Matched) != 3 {
		t.Errorf("matched = %v", out.Matched)
	}

	out = rules.Evaluate(posting.Posting{ID: "p2", Title: "Vendedor", Description: "venta de seguros"})
	if out.Force != nil || out.NeverConfirm || len(out.Matched) != 0 {
		t.Errorf("unexpected match: %+v", out)
	}
}

func TestForcedRules_FailingPredicateIsNotMatched(t *testing.T) {
	rules, err := NewForcedRules([]ForcedRule{
		NewForcedRule("explodes", 1, func(posting.Posting) (bool, error) {
			var m map[string]int
			m["x"]++ // nil map write panics
			return true, nil
		}, Action{NeverConfirm: true}),
		NewForcedRule("errors", 2, func(posting.Posting) (bool, error) {
			return false, errors.New("malformed input")
		}, Action{NeverConfirm: true}),
		{ID: "bad-hint", Priority: 3, When: Condition{Hints: map[string]string{"salary": "high"}}, Then: Action{NeverConfirm: true}},
		{ID: "ok", Priority: 4, When: Condition{Any: []string{"mozo"}}, Then: Action{Force: &Target{Label: "Camarero", ISCO: "5131"}}},
	})
	if err != nil {
		t.Fatalf("NewForcedRules: %v", err)
	}

	out := rules.Evaluate(posting.Posting{ID: "p9", Title: "Mozo"})
	if len(out.Errors) != 3 {
		t.Fatalf("expected 3 rule errors, got %v", out.Errors)
	}
	for _, e := range out.Errors {
		var re *domain.RuleError
		if !errors.As(e, &re) || re.PostingID != "p9" || !errors.Is(e, domain.ErrRuleEvaluation) {
			t.Errorf("unexpected error value %v", e)
		}
	}
	if out.NeverConfirm {
		t.Error("failed rules must count as not matched")
	}
	if out.Force == nil || out.Force.ID != "ok" {
		t.Error("evaluation should continue past failing rules")
	}
}

func TestForcedRules_Hints(t *testing.T) {
	rules, err := NewForcedRules([]ForcedRule{{
		ID:   "senior-sales",
		When: Condition{Hints: map[string]string{"functional_area": "Ventas", "seniority": "senior"}},
		Then: Action{NeverConfirm: true},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if !rules.Evaluate(posting.Posting{FunctionalArea: "VENTAS", Seniority: "Senior"}).NeverConfirm {
		t.Error("hints should match case-insensitively")
	}
	if rules.Evaluate(posting.Posting{FunctionalArea: "ventas"}).NeverConfirm {
		t.Error("absent hint must not match")
	}
}

func TestNewForcedRules_Invalid(t *testing.T) {
	cases := map[string][]ForcedRule{
		"missing id":  {{When: Condition{Any: []string{"x"}}, Then: Action{NeverConfirm: true}}},
		"no action":   {{ID: "a", When: Condition{Any: []string{"x"}}}},
		"bad pattern": {{ID: "a", When: Condition{Pattern: "("}, Then: Action{NeverConfirm: true}}},
		"empty cond":  {{ID: "a", Then: Action{NeverConfirm: true}}},
		"bad field":   {{ID: "a", When: Condition{Field: "body", Any: []string{"x"}}, Then: Action{NeverConfirm: true}}},
	}
	for name, rs := range cases {
		if _, err := NewForcedRules(rs); !errors.Is(err, domain.ErrInvalidConfig) {
			t.Errorf("%s: expected ErrInvalidConfig, got %v", name, err)
		}
	}
}

func TestFamilies_DetectAndAdjust(t *testing.T) {
	fs, err := NewFamilySet([]Family{
		{
			Name:                "hospitality",
			TitleKeywords:       []string{"mozo", "camarer", "bartender"},
			DescriptionKeywords: []string{"restaurante", "salón", "bandejas"},
			ISCOPrefixes:        []string{"51"},
		},
		{
			Name:          "agriculture",
			TitleKeywords: []string{"peón rural", "cosecha"},
			ISCOPrefixes:  []string{"61", "92"},
		},
	})
	if err != nil {
		t.Fatalf("NewFamilySet: %v", err)
	}

	fams := fs.Detect(posting.Posting{Title: "Mozo"})
	if len(fams) != 1 || fams[0].Name != "hospitality" {
		t.Fatalf("Detect = %v", Names(fams))
	}

	// one description hit is below the default threshold of two
	if got := fs.Detect(posting.Posting{Title: "Ayudante", Description: "trabajo en restaurante"}); len(got) != 0 {
		t.Errorf("single description hit should not classify: %v", Names(got))
	}
	if got := fs.Detect(posting.Posting{Title: "Ayudante", Description: "restaurante, atención del salón"}); len(got) != 1 {
		t.Errorf("two description hits should classify: %v", Names(got))
	}

	adjust := []struct {
		name  string
		fams  []Family
		code  string
		score float64
		want  float64
	}{
		{"agreeing code", fams, "5131", 0.55, 0.6},
		{"disagreeing code", fams, "6130", 0.55, 0.5},
		{"clipped", fams, "5131", 0.99, 1},
		{"no families", nil, "6130", 0.4, 0.4},
	}
	for _, tc := range adjust {
		if got := Adjust(tc.fams, isco.MustParse(tc.code), tc.score); math.Abs(got-tc.want) > 1e-9 {
			t.Errorf("%s: adjusted to %v, want %v", tc.name, got, tc.want)
		}
	}

	all := fs.Families()
	if p := Prefixes(all); len(p) != 3 || p[0] != "51" || p[2] != "92" {
		t.Errorf("Prefixes = %v", p)
	}
}

func TestNewFamilySet_Invalid(t *testing.T) {
	_, err := NewFamilySet([]Family{{Name: "x", TitleKeywords: []string{"a"}, ISCOPrefixes: []string{"5a"}}})
	if !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		path := filepath.Join(dir, name)
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}
		return path
	}

	paths := Paths{
		Dictionary: write("dictionary.yaml", `
entries:
  - key: mozo
    label: Camarero
    isco_code: "5131"
`),
		Forced: write("forced.yaml", `
rules:
  - id: generic-program
    priority: 10
    when:
      all: [pasantia, programa]
    then:
      never_confirm: true
`),
		Families: write("families.yaml", `
families:
  - name: sales
    title_keywords: [vendedor, ventas]
    isco_prefixes: ["52"]
`),
	}

	cfg, err := LoadFiles(paths)
	if err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	if cfg.Dictionary.Len() != 1 || len(cfg.Forced.Rules()) != 1 || len(cfg.Families.Families()) != 1 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if w := cfg.Validate(testResolver()); len(w) != 0 {
		t.Errorf("unexpected warnings: %v", w)
	}

	h1 := sha256.New()
	cfg.WriteFingerprint(h1)

	write("dictionary.yaml", `
entries:
  - key: mozo
    label: Camarero
    isco_code: "5131"
  - key: mesero
    label: Camarero
    isco_code: "5131"
`)
	cfg2, err := LoadFiles(paths)
	if err != nil {
		t.Fatal(err)
	}
	h2 := sha256.New()
	cfg2.WriteFingerprint(h2)
	if bytes.Equal(h1.Sum(nil), h2.Sum(nil)) {
		t.Error("fingerprint should change with rule file contents")
	}
}

func TestLoadFiles_UnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dictionary.yaml")
	if err := os.WriteFile(path, []byte("entries:\n  - key: mozo\n    lable: Camarero\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadFiles(Paths{Dictionary: path}); !errors.Is(err, domain.ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
