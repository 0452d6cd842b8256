// Package snapshot defines the snapshot document, its on-disk codec and the
// blob stores snapshots are kept in.
package snapshot

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"platform-snapshot/internal/catalog"
	apperrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/store"
)

// FormatV1 tags the current snapshot layout
const FormatV1 = "platform-snapshot/v1"

// Metadata describes where and when a snapshot was taken
type Metadata struct {
	ID          string    `json:"id,omitempty" yaml:"id,omitempty"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Source      string    `json:"source,omitempty" yaml:"source,omitempty"`
	Kinds       []string  `json:"kinds,omitempty" yaml:"kinds,omitempty"`
	RecordCount int       `json:"record_count" yaml:"record_count"`
	Checksum    string    `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}

// Snapshot is an immutable copy of every entity kind. Tables carries rows of
// tables the catalog does not know, kept only so restore can put them back.
type Snapshot struct {
	Format   string                    `json:"format"`
	Metadata Metadata                  `json:"metadata"`
	Data     map[string][]store.Record `json:"data"`
	Tables   map[string][]store.Record `json:"tables,omitempty"`

	// Legacy is set when the document was read from a pre-v1 layout
	Legacy bool `json:"-"`
}

// New wraps data, keyed by kind name, into a v1 snapshot
func New(source string, kinds []string, data map[string][]store.Record) (*Snapshot, error) {
	if data == nil {
		data = map[string][]store.Record{}
	}
	s := &Snapshot{
		Format: FormatV1,
		Metadata: Metadata{
			ID:        uuid.NewString(),
			Timestamp: time.Now().UTC().Truncate(time.Second),
			Source:    source,
			Kinds:     kinds,
		},
		Data: data,
	}
	for _, records := range data {
		s.Metadata.RecordCount += len(records)
	}

	sum, err := s.ComputeChecksum()
	if err != nil {
		return nil, err
	}
	s.Metadata.Checksum = sum
	return s, nil
}

// Records returns the records of kind, nil when the snapshot has none
func (s *Snapshot) Records(kind string) []store.Record {
	return s.Data[kind]
}

// KindNames returns the kinds present in the snapshot, sorted
func (s *Snapshot) KindNames() []string {
	names := make([]string, 0, len(s.Data))
	for k := range s.Data {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// ComputeChecksum hashes the data section. Map keys marshal sorted, so the
// hash does not depend on decode order.
func (s *Snapshot) ComputeChecksum() (string, error) {
	h := sha256.New()
	data, err := json.Marshal(s.Data)
	if err != nil {
		return "", fmt.Errorf("failed to hash snapshot data: %w", err)
	}
	h.Write(data)
	if len(s.Tables) > 0 {
		tables, err := json.Marshal(s.Tables)
		if err != nil {
			return "", fmt.Errorf("failed to hash snapshot tables: %w", err)
		}
		h.Write(tables)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks the stored checksum. Snapshots without one pass.
func (s *Snapshot) Verify() error {
	if s.Metadata.Checksum == "" {
		return nil
	}
	sum, err := s.ComputeChecksum()
	if err != nil {
		return err
	}
	if sum != s.Metadata.Checksum {
		return apperrors.NewValidationError(
			fmt.Sprintf("snapshot %s checksum mismatch", s.Metadata.ID), nil).
			WithContext("expected", s.Metadata.Checksum).
			WithContext("actual", sum)
	}
	return nil
}

// Encode renders the snapshot as indented JSON
func Encode(s *Snapshot) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return data, nil
}

type envelope struct {
	Format   *string                   `json:"format"`
	Metadata *Metadata                 `json:"metadata"`
	Data     map[string][]store.Record `json:"data"`
	Tables   map[string][]store.Record `json:"tables"`
}

// Decode parses a snapshot document. Besides v1 it accepts the untagged
// {metadata, data} envelope and a flat {table: [rows]} map, whose tables are
// mapped to kinds through c. Numbers decode to int64 when integral, float64 otherwise.
func Decode(raw []byte, c *catalog.Catalog) (*Snapshot, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, apperrors.NewValidationError("snapshot is not a JSON object", err)
	}

	var snap *Snapshot
	var err error
	if _, tagged := probe["format"]; tagged || isEnvelope(probe) {
		snap, err = decodeEnvelope(raw)
	} else {
		snap, err = decodeTableMap(raw, c)
	}
	if err != nil {
		return nil, err
	}

	for kind, records := range snap.Data {
		normalizeRecords(records)
		if snap.Data[kind] == nil {
			snap.Data[kind] = []store.Record{}
		}
	}
	for _, rows := range snap.Tables {
		normalizeRecords(rows)
	}
	if snap.Metadata.RecordCount == 0 {
		for _, records := range snap.Data {
			snap.Metadata.RecordCount += len(records)
		}
	}
	return snap, nil
}

// isEnvelope tells the legacy {metadata, data} document from a table map that
// happens to contain a "data" table
func isEnvelope(probe map[string]json.RawMessage) bool {
	data, ok := probe["data"]
	if !ok {
		return false
	}
	trimmed := bytes.TrimSpace(data)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func decodeEnvelope(raw []byte) (*Snapshot, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return nil, apperrors.NewValidationError("snapshot envelope is malformed", err)
	}

	snap := &Snapshot{Format: FormatV1, Data: env.Data, Tables: env.Tables}
	if env.Format == nil {
		snap.Legacy = true
	} else if *env.Format != FormatV1 {
		return nil, apperrors.NewSetupError(fmt.Sprintf("unsupported snapshot format %q", *env.Format), nil)
	}
	if env.Metadata != nil {
		snap.Metadata = *env.Metadata
	}
	if snap.Data == nil {
		snap.Data = map[string][]store.Record{}
	}
	return snap, nil
}

func decodeTableMap(raw []byte, c *catalog.Catalog) (*Snapshot, error) {
	var tables map[string][]store.Record
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&tables); err != nil {
		return nil, apperrors.NewValidationError("snapshot tables must be arrays of rows", err)
	}

	snap := &Snapshot{
		Format: FormatV1,
		Data:   map[string][]store.Record{},
		Legacy: true,
	}
	for table, rows := range tables {
		if c != nil {
			if kind, ok := c.KindForTable(table); ok {
				snap.Data[kind.Name] = rows
				continue
			}
		}
		if snap.Tables == nil {
			snap.Tables = map[string][]store.Record{}
		}
		snap.Tables[table] = rows
	}
	return snap, nil
}

func normalizeRecords(records []store.Record) {
	for _, rec := range records {
		for k, v := range rec {
			rec[k] = normalizeValue(v)
		}
	}
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		for k, inner := range t {
			t[k] = normalizeValue(inner)
		}
		return t
	case []any:
		for i, inner := range t {
			t[i] = normalizeValue(inner)
		}
		return t
	default:
		return v
	}
}
