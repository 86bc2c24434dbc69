package taxonomy

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/isco"
	"github.com/kailas-cloud/escomatch/internal/domain/occupation"
)

// fallbackLanguage is tried when the requested language has no label.
const fallbackLanguage = "en"

// LoadOptions configures parsing of the taxonomy graph export.
type LoadOptions struct {
	Language string
	Logger   *zap.Logger
}

// LoadFile reads an ESCO graph export from disk.
func LoadFile(path string, opts LoadOptions) ([]occupation.Occupation, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, domain.TaxonomyLoadError("open taxonomy source "+path, err)
	}
	defer f.Close()

	return Load(f, opts)
}

// Load parses a JSON-LD style graph export ({"@graph": [...]}) and returns the
// matchable occupations sorted by URI. Skill and knowledge nodes are only used to
// resolve skill labels. Occupations without a notation are excluded and logged.
func Load(r io.Reader, opts LoadOptions) ([]occupation.Occupation, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	nodes, err := decodeGraph(r)
	if err != nil {
		return nil, domain.TaxonomyLoadError("decode taxonomy graph", err)
	}

	skillLabels := make(map[string]string)
	var occNodes []rawNode
	for _, n := range nodes {
		switch {
		case n.isOccupation():
			occNodes = append(occNodes, n)
		case n.isSkill():
			if label := n.PrefLabel.pick(opts.Language); label != "" {
				skillLabels[n.ID] = label
			}
		}
	}

	seen := make(map[string]struct{}, len(occNodes))
	occupations := make([]occupation.Occupation, 0, len(occNodes))
	excluded := 0

	for _, n := range occNodes {
		if n.ID == "" {
			return nil, domain.TaxonomyLoadError("occupation node without @id", nil)
		}
		if _, dup := seen[n.ID]; dup {
			return nil, domain.TaxonomyLoadError(fmt.Sprintf("duplicate occupation %s", n.ID), nil)
		}
		seen[n.ID] = struct{}{}

		label := n.PrefLabel.pick(opts.Language)
		if label == "" {
			return nil, domain.TaxonomyLoadError(fmt.Sprintf("occupation %s has no preferred label", n.ID), nil)
		}

		notation := strings.TrimSpace(n.Code)
		if notation == "" {
			notation = strings.TrimSpace(n.Notation)
		}
		if notation == "" {
			excluded++
			logger.Warn("Occupation without notation excluded",
				zap.String("uri", n.ID),
				zap.String("label", label),
			)
			continue
		}

		code, err := isco.Parse(notation)
		if err != nil {
			return nil, domain.TaxonomyLoadError(fmt.Sprintf("occupation %s notation", n.ID), err)
		}

		occupations = append(occupations, occupation.Occupation{
			URI:             n.ID,
			PreferredLabel:  label,
			Language:        opts.Language,
			Description:     n.Description.pick(opts.Language),
			Notation:        notation,
			Code:            code,
			EssentialSkills: resolveSkills(n.EssentialSkills, skillLabels),
			OptionalSkills:  resolveSkills(n.OptionalSkills, skillLabels),
		})
	}

	if len(occupations) == 0 {
		return nil, domain.TaxonomyLoadError("taxonomy source contains no matchable occupations", nil)
	}

	sort.Slice(occupations, func(i, j int) bool { return occupations[i].URI < occupations[j].URI })

	logger.Info("Taxonomy loaded",
		zap.Int("occupations", len(occupations)),
		zap.Int("excluded_without_notation", excluded),
		zap.Int("skills", len(skillLabels)),
		zap.String("language", opts.Language),
	)

	return occupations, nil
}

// resolveSkills maps skill URIs to labels; a value that is not a known URI is
// taken as a literal label. Duplicates are dropped, order is preserved.
func resolveSkills(refs []string, labels map[string]string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, 0, len(refs))
	seen := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		label, ok := labels[ref]
		if !ok {
			if strings.Contains(ref, "://") {
				continue
			}
			label = ref
		}
		if _, dup := seen[label]; dup {
			continue
		}
		seen[label] = struct{}{}
		out = append(out, label)
	}
	return out
}

// decodeGraph streams the "@graph" array so large exports are decoded node by node.
func decodeGraph(r io.Reader) ([]rawNode, error) {
	dec := json.NewDecoder(r)

	if err := expectDelim(dec, '{'); err != nil {
		return nil, err
	}

	var nodes []rawNode
	foundGraph := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("read key: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("unexpected token %v", tok)
		}

		if key != "@graph" {
			var skip json.RawMessage
			if err := dec.Decode(&skip); err != nil {
				return nil, fmt.Errorf("skip %q: %w", key, err)
			}
			continue
		}

		foundGraph = true
		if err := expectDelim(dec, '['); err != nil {
			return nil, fmt.Errorf("@graph: %w", err)
		}
		for dec.More() {
			var n rawNode
			if err := dec.Decode(&n); err != nil {
				return nil, fmt.Errorf("node %d: %w", len(nodes), err)
			}
			nodes = append(nodes, n)
		}
		if err := expectDelim(dec, ']'); err != nil {
			return nil, fmt.Errorf("@graph: %w", err)
		}
	}

	if err := expectDelim(dec, '}'); err != nil {
		return nil, err
	}
	if !foundGraph {
		return nil, errors.New("missing @graph")
	}
	return nodes, nil
}

func expectDelim(dec *json.Decoder, want json.Delim) error {
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("expected %q: %w", want, err)
	}
	if d, ok := tok.(json.Delim); !ok || d != want {
		return fmt.Errorf("expected %q, got %v", want, tok)
	}
	return nil
}

// rawNode is one node of the graph export.
type rawNode struct {
	ID              string     `json:"@id"`
	Type            stringList `json:"@type"`
	PrefLabel       langText   `json:"prefLabel"`
	Description     langText   `json:"description"`
	Code            string     `json:"code"`
	Notation        string     `json:"notation"`
	EssentialSkills stringList `json:"hasEssentialSkill"`
	OptionalSkills  stringList `json:"hasOptionalSkill"`
}

func (n rawNode) hasType(suffixes ...string) bool {
	for _, t := range n.Type {
		lt := strings.ToLower(t)
		for _, s := range suffixes {
			if strings.HasSuffix(lt, s) {
				return true
			}
		}
	}
	return false
}

func (n rawNode) isOccupation() bool { return n.hasType("occupation") }

func (n rawNode) isSkill() bool { return n.hasType("skill", "knowledge", "competence") }

// stringList accepts a string, a list of strings, or a list of {"@id": ...} objects.
type stringList []string

func (s *stringList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*s = nil
		return nil
	}
	if b[0] == '"' {
		var one string
		if err := json.Unmarshal(b, &one); err != nil {
			return err
		}
		*s = stringList{one}
		return nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(b, &items); err != nil {
		return fmt.Errorf("expected string or list: %w", err)
	}
	out := make(stringList, 0, len(items))
	for _, item := range items {
		var str string
		if err := json.Unmarshal(item, &str); err == nil {
			out = append(out, str)
			continue
		}
		var ref struct {
			ID string `json:"@id"`
		}
		if err := json.Unmarshal(item, &ref); err != nil {
			return fmt.Errorf("list item: %w", err)
		}
		if ref.ID != "" {
			out = append(out, ref.ID)
		}
	}
	*s = out
	return nil
}

// langText holds language-tagged literals. It accepts {"es": "..."},
// [{"@language": "es", "@value": "..."}] or a bare string (untagged).
type langText map[string]string

func (l *langText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	out := make(langText)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
	case b[0] == '"':
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		out[""] = v
	case b[0] == '{':
		var m map[string]string
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Errorf("language map: %w", err)
		}
		for k, v := range m {
			out[strings.ToLower(k)] = v
		}
	case b[0] == '[':
		var items []struct {
			Language string `json:"@language"`
			Value    string `json:"@value"`
		}
		if err := json.Unmarshal(b, &items); err != nil {
			return fmt.Errorf("language list: %w", err)
		}
		for _, it := range items {
			lang := strings.ToLower(it.Language)
			if _, exists := out[lang]; !exists {
				out[lang] = it.Value
			}
		}
	default:
		return fmt.Errorf("unsupported literal %s", string(b))
	}
	*l = out
	return nil
}

// pick resolves the label for lang, then English, then untagged, then any language (lowest tag).
func (l langText) pick(lang string) string {
	for _, k := range []string{strings.ToLower(lang), fallbackLanguage, ""} {
		if v := strings.TrimSpace(l[k]); v != "" {
			return v
		}
	}
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v := strings.TrimSpace(l[k]); v != "" {
			return v
		}
	}
	return ""
}
