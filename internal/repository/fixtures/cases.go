package fixtures

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/escomatch/internal/domain/gold"
)

// LoadCases reads a multi-document YAML gold file. A missing file is an empty set.
func LoadCases(path string) ([]gold.Case, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from config
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open gold cases: %w", err)
	}
	defer func() { _ = f.Close() }()
	return ReadCases(f)
}

// ReadCases decodes one case per YAML document. Empty documents are skipped.
// Cases are returned as authored; validation belongs to the harness.
func ReadCases(r io.Reader) ([]gold.Case, error) {
	dec := yaml.NewDecoder(r)
	var out []gold.Case
	for i := 0; ; i++ {
		var c *gold.Case
		err := dec.Decode(&c)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("gold document #%d: %w", i, err)
		}
		if c == nil {
			continue
		}
		out = append(out, *c)
	}
}

// AppendCase validates c and appends it as a new YAML document. Existing
// documents are never rewritten.
func AppendCase(path string, c gold.Case) error {
	if err := c.Validate(); err != nil {
		return err
	}
	doc, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal gold case: %w", err)
	}

	var buf bytes.Buffer
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		last, err := lastByte(path, info.Size())
		if err != nil {
			return err
		}
		if last != '\n' {
			buf.WriteByte('\n')
		}
	}
	buf.WriteString("---\n")
	buf.Write(doc)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // path comes from config
	if err != nil {
		return fmt.Errorf("open gold cases: %w", err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return fmt.Errorf("append gold case: %w", err)
	}
	return f.Close()
}

func lastByte(path string, size int64) (byte, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from config
	if err != nil {
		return 0, fmt.Errorf("open gold cases: %w", err)
	}
	defer func() { _ = f.Close() }()
	b := make([]byte, 1)
	if _, err := f.ReadAt(b, size-1); err != nil {
		return 0, fmt.Errorf("read gold cases: %w", err)
	}
	return b[0], nil
}
