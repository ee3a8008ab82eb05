package graph

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects the on-disk encoding of a snapshot.
type Format string

const (
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// Document is the serialized node-link form of a [Snapshot].
type Document struct {
	Name  string `json:"name,omitempty" yaml:"name,omitempty" bson:"name,omitempty"`
	Nodes []Node `json:"nodes" yaml:"nodes" bson:"nodes"`
	Edges []Edge `json:"edges,omitempty" yaml:"edges,omitempty" bson:"edges,omitempty"`
}

// ToDocument converts a snapshot to its serialized form.
func ToDocument(s *Snapshot) Document {
	return Document{Name: s.Name(), Nodes: s.Nodes(), Edges: s.Edges()}
}

// Snapshot validates the document and builds a snapshot from it.
func (d Document) Snapshot() (*Snapshot, error) {
	return NewSnapshot(d.Name, d.Nodes, d.Edges)
}

// FormatForPath picks the encoding from a file extension. Anything that is
// not .yaml or .yml is treated as JSON.
func FormatForPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return FormatJSON
	}
}

// =============================================================================
// Snapshot Serialization API
// =============================================================================

// MarshalSnapshot encodes a snapshot as indented JSON.
func MarshalSnapshot(s *Snapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteSnapshot(s, &buf, FormatJSON); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteSnapshotFile writes a snapshot to path, choosing the encoding from the
// file extension.
func WriteSnapshotFile(s *Snapshot, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return WriteSnapshot(s, f, FormatForPath(path))
}

// WriteSnapshot encodes a snapshot to w.
func WriteSnapshot(s *Snapshot, w io.Writer, format Format) error {
	doc := ToDocument(s)
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("encode: %w", err)
		}
		return nil
	}
}

// ReadSnapshotFile reads a snapshot from path. When the document carries no
// name, the file name without extension is used.
func ReadSnapshotFile(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	doc, err := decode(f, FormatForPath(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if doc.Name == "" {
		base := filepath.Base(path)
		doc.Name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	s, err := doc.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// ReadSnapshot decodes a snapshot from r.
func ReadSnapshot(r io.Reader, format Format) (*Snapshot, error) {
	doc, err := decode(r, format)
	if err != nil {
		return nil, err
	}
	return doc.Snapshot()
}

// ReadSeriesDir reads every .json, .yaml and .yml file of dir as one revision.
// Revisions are ordered by file name, so zero-padded names (rev-001.json)
// sort as expected.
func ReadSeriesDir(dir string) (*Series, error) {
	files, err := SeriesFiles(dir)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrEmptySeries)
	}

	snaps := make([]*Snapshot, 0, len(files))
	for _, f := range files {
		s, err := ReadSnapshotFile(f)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, s)
	}
	return NewSeries(snaps...)
}

// SeriesFiles lists the snapshot files of dir in revision order.
func SeriesFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".json", ".yaml", ".yml":
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	slices.Sort(files)
	return files, nil
}

// =============================================================================
// Internal Implementation
// =============================================================================

func decode(r io.Reader, format Format) (Document, error) {
	var doc Document
	switch format {
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
			return doc, fmt.Errorf("decode: %w", err)
		}
	default:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return doc, fmt.Errorf("decode: %w", err)
		}
	}
	return doc, nil
}
