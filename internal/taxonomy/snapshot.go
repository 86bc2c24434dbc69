package taxonomy

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/kailas-cloud/escomatch/internal/domain"
	"github.com/kailas-cloud/escomatch/internal/domain/occupation"
)

// Snapshot file names inside an index directory.
const (
	metaFile        = "meta.json"
	labelsFile      = "labels.f32"
	descriptionFile = "descriptions.f32"
	skillsFile      = "skills.f32"
)

type snapshotMeta struct {
	Model       string                  `json:"model"`
	Language    string                  `json:"language"`
	Dimensions  int                     `json:"dimensions"`
	BuiltAt     time.Time               `json:"built_at"`
	Occupations []occupation.Occupation `json:"occupations"`
	Skills      []string                `json:"skills"`
}

// Save writes the store to dir as meta.json plus little-endian float32 matrices.
func Save(dir string, s *Store) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index dir: %w", err)
	}

	meta := snapshotMeta{
		Model:       s.model,
		Language:    s.language,
		Dimensions:  s.dims,
		BuiltAt:     time.Now().UTC(),
		Occupations: s.occupations,
		Skills:      s.skillLabels,
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal meta: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, metaFile), func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	}); err != nil {
		return err
	}

	for name, rows := range map[string][][]float32{
		labelsFile:      s.labelVecs,
		descriptionFile: s.descVecs,
		skillsFile:      s.skillVecs,
	} {
		rows := rows
		if err := writeFileAtomic(filepath.Join(dir, name), func(w io.Writer) error {
			return writeMatrix(w, rows)
		}); err != nil {
			return err
		}
	}
	return nil
}

// Open loads a snapshot directory written by Save.
func Open(dir string) (*Store, error) {
	data, err := os.ReadFile(filepath.Join(filepath.Clean(dir), metaFile))
	if err != nil {
		return nil, domain.TaxonomyLoadError("read index meta", err)
	}
	var meta snapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, domain.TaxonomyLoadError("parse index meta", err)
	}

	read := func(name string, rows int) ([][]float32, error) {
		f, err := os.Open(filepath.Join(filepath.Clean(dir), name))
		if err != nil {
			return nil, domain.TaxonomyLoadError("open "+name, err)
		}
		defer f.Close()
		m, err := readMatrix(bufio.NewReader(f), rows, meta.Dimensions)
		if err != nil {
			return nil, domain.TaxonomyLoadError("read "+name, err)
		}
		return m, nil
	}

	labels, err := read(labelsFile, len(meta.Occupations))
	if err != nil {
		return nil, err
	}
	descs, err := read(descriptionFile, len(meta.Occupations))
	if err != nil {
		return nil, err
	}
	skills, err := read(skillsFile, len(meta.Skills))
	if err != nil {
		return nil, err
	}

	return New(Snapshot{
		Model:       meta.Model,
		Language:    meta.Language,
		Occupations: meta.Occupations,
		LabelVecs:   labels,
		DescVecs:    descs,
		SkillLabels: meta.Skills,
		SkillVecs:   skills,
	})
}

func writeFileAtomic(path string, fill func(w io.Writer) error) error {
	tmp := path + ".tmp"
	f, err := os.Create(filepath.Clean(tmp))
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	bw := bufio.NewWriter(f)
	if err := fill(bw); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := bw.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmp, err)
	}
	return nil
}

func writeMatrix(w io.Writer, rows [][]float32) error {
	buf := make([]byte, 4)
	for _, row := range rows {
		for _, f := range row {
			binary.LittleEndian.PutUint32(buf, math.Float32bits(f))
			if _, err := w.Write(buf); err != nil {
				return err
			}
		}
	}
	return nil
}

func readMatrix(r io.Reader, rows, dims int) ([][]float32, error) {
	if rows > 0 && dims <= 0 {
		return nil, fmt.Errorf("invalid dimensions %d", dims)
	}
	out := make([][]float32, rows)
	buf := make([]byte, 4*dims)
	for i := range out {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		row := make([]float32, dims)
		for j := range row {
			row[j] = math.Float32frombits(binary.LittleEndian.Uint32(buf[j*4:]))
		}
		out[i] = row
	}
	var extra [1]byte
	if n, _ := r.Read(extra[:]); n > 0 {
		return nil, fmt.Errorf("trailing data after %d rows", rows)
	}
	return out, nil
}
