// Package transfer reads and writes tour export files.
//
// An export is a Document holding tours with their logs embedded. JSON and
// YAML are supported, chosen by file extension. Bare JSON arrays of tours
// (the format written by earlier versions) are accepted on import. JSON
// Lines files carry one tour per line and no envelope.
//
// Imported tours are always new entities: every tour and log id in the file
// is cleared before the tours are handed back.
package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/mod/semver"
	"gopkg.in/yaml.v3"

	"github.com/tourplanner/tp/internal/schema"
)

// CurrentVersion is written into every export.
const CurrentVersion = "v1.1.0"

// ErrUnsupportedVersion is returned for documents with a different major
// format version or a malformed version string.
var ErrUnsupportedVersion = errors.New("unsupported export format version")

// Format is the on-disk encoding.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatJSONL Format = "jsonl"
)

// FormatFromPath picks the format by extension; anything unknown is JSON.
func FormatFromPath(path string) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML
	case ".jsonl", ".ndjson":
		return FormatJSONL
	default:
		return FormatJSON
	}
}

// ParseFormat parses a --format flag value.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "jsonl", "ndjson":
		return FormatJSONL, nil
	default:
		return "", fmt.Errorf("unknown format %q (want json, yaml or jsonl)", s)
	}
}

// Document is the export envelope.
type Document struct {
	FormatVersion string         `json:"format_version" yaml:"format_version"`
	ExportID      string         `json:"export_id,omitempty" yaml:"export_id,omitempty"`
	ExportedAt    time.Time      `json:"exported_at" yaml:"exported_at"`
	Tours         []*schema.Tour `json:"tours" yaml:"tours"`
}

// NewDocument wraps tours in a Document stamped with the current version.
// A nil slice is exported as an empty list.
func NewDocument(tours []*schema.Tour) *Document {
	if tours == nil {
		tours = []*schema.Tour{}
	}
	return &Document{
		FormatVersion: CurrentVersion,
		ExportID:      uuid.NewString(),
		ExportedAt:    time.Now().UTC(),
		Tours:         tours,
	}
}

// Encode writes doc to w in format.
func Encode(w io.Writer, doc *Document, format Format) error {
	switch format {
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	case FormatJSONL:
		enc := json.NewEncoder(w)
		for _, t := range doc.Tours {
			if err := enc.Encode(t); err != nil {
				return fmt.Errorf("failed to encode tour %q: %w", t.Name, err)
			}
		}
		return nil
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode json: %w", err)
		}
		return nil
	}
}

// ExportFile writes tours to path. The format follows the extension unless
// format is set.
func ExportFile(path string, tours []*schema.Tour, format Format) (*Document, error) {
	if format == "" {
		format = FormatFromPath(path)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create export directory: %w", err)
		}
	}

	var buf bytes.Buffer
	doc := NewDocument(tours)
	if err := Encode(&buf, doc, format); err != nil {
		return nil, err
	}

	// Write to a temp file and rename so a failed export never truncates an
	// existing file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0644); err != nil {
		return nil, fmt.Errorf("failed to write export file %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("failed to write export file %s: %w", path, err)
	}
	return doc, nil
}

// Decode parses an export and returns its tours with ids cleared.
func Decode(data []byte, format Format) ([]*schema.Tour, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	var (
		doc   Document
		tours []*schema.Tour
	)
	switch format {
	case FormatYAML:
		var probe yaml.Node
		if err := yaml.Unmarshal(trimmed, &probe); err != nil {
			return nil, fmt.Errorf("failed to parse yaml: %w", err)
		}
		if len(probe.Content) > 0 && probe.Content[0].Kind == yaml.SequenceNode {
			if err := yaml.Unmarshal(trimmed, &tours); err != nil {
				return nil, fmt.Errorf("failed to parse yaml tour list: %w", err)
			}
			break
		}
		if err := yaml.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse yaml document: %w", err)
		}
		if err := checkVersion(doc.FormatVersion); err != nil {
			return nil, err
		}
		tours = doc.Tours
	case FormatJSONL:
		var err error
		if tours, err = decodeJSONL(trimmed); err != nil {
			return nil, err
		}
	default:
		if trimmed[0] == '[' {
			if err := json.Unmarshal(trimmed, &tours); err != nil {
				return nil, fmt.Errorf("failed to parse json tour list: %w", err)
			}
			break
		}
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse json document: %w", err)
		}
		if err := checkVersion(doc.FormatVersion); err != nil {
			return nil, err
		}
		tours = doc.Tours
	}

	out := tours[:0]
	for _, t := range tours {
		if t == nil {
			continue
		}
		resetIDs(t)
		out = append(out, t)
	}
	return out, nil
}

// decodeJSONL reads one tour per line. Blank lines are skipped.
func decodeJSONL(data []byte) ([]*schema.Tour, error) {
	var tours []*schema.Tour
	dec := json.NewDecoder(bytes.NewReader(data))
	for n := 1; ; n++ {
		var t schema.Tour
		if err := dec.Decode(&t); err != nil {
			if errors.Is(err, io.EOF) {
				return tours, nil
			}
			return nil, fmt.Errorf("invalid JSON at record %d: %w", n, err)
		}
		tours = append(tours, &t)
	}
}

// ImportFile reads tours from path. A missing or empty file yields no tours
// and no error.
func ImportFile(path string, format Format) ([]*schema.Tour, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read import file %s: %w", path, err)
	}
	if format == "" {
		format = FormatFromPath(path)
	}
	tours, err := Decode(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tours, nil
}

func checkVersion(v string) error {
	if v == "" {
		// Documents without a version predate versioning.
		return nil
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q is not a semantic version", ErrUnsupportedVersion, v)
	}
	if semver.Major(v) != semver.Major(CurrentVersion) {
		return fmt.Errorf("%w: %s (this build reads %s.x)", ErrUnsupportedVersion, v, semver.Major(CurrentVersion))
	}
	return nil
}

func resetIDs(t *schema.Tour) {
	t.ID = 0
	for _, l := range t.Logs {
		if l == nil {
			continue
		}
		l.ID = 0
		l.TourID = 0
	}
}
