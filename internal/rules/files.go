package rules

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/escomatch/internal/domain"
)

// Paths locates the three rule files. An empty path means "no rules of that kind".
type Paths struct {
	Dictionary string
	Forced     string
	Families   string
}

type dictionaryFile struct {
	Entries []DictionaryEntry `yaml:"entries"`
}

type forcedFile struct {
	Rules []ForcedRule `yaml:"rules"`
}

type familiesFile struct {
	Families []Family `yaml:"families"`
}

// LoadFiles reads and validates the rule files.
func LoadFiles(p Paths) (*RuleLayerConfig, error) {
	sources := make(map[string][]byte, 3)

	read := func(name, path string, into any) error {
		if path == "" {
			return nil
		}
		data, err := os.ReadFile(filepath.Clean(path))
		if err != nil {
			return fmt.Errorf("%w: read %s rules %s: %w", domain.ErrInvalidConfig, name, path, err)
		}
		if err := decodeStrict(data, into); err != nil {
			return fmt.Errorf("%w: parse %s rules %s: %w", domain.ErrInvalidConfig, name, path, err)
		}
		sources[name] = data
		return nil
	}

	var df dictionaryFile
	if err := read("dictionary", p.Dictionary, &df); err != nil {
		return nil, err
	}
	var ff forcedFile
	if err := read("forced", p.Forced, &ff); err != nil {
		return nil, err
	}
	var fam familiesFile
	if err := read("families", p.Families, &fam); err != nil {
		return nil, err
	}

	forced, err := NewForcedRules(ff.Rules)
	if err != nil {
		return nil, err
	}
	families, err := NewFamilySet(fam.Families)
	if err != nil {
		return nil, err
	}

	cfg := NewRuleLayerConfig(NewDictionary(df.Entries), forced, families)
	cfg.sources = sources
	return cfg, nil
}

// decodeStrict rejects unknown keys so typos in rule files fail loudly.
func decodeStrict(data []byte, into any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(into); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}
