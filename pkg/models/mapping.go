package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// MappingSchema represents the root of the mapping file.
type MappingSchema struct {
	Entity          string                    `json:"entity" yaml:"entity"`
	SQLTable        string                    `json:"sqlTable" yaml:"sqlTable"`
	MongoCollection string                    `json:"mongoCollection" yaml:"mongoCollection"`
	IDStrategy      IDStrategy                `json:"idStrategy" yaml:"idStrategy"`
	Fields          map[string]FieldConfig    `json:"fields" yaml:"fields"`
	Relations       map[string]RelationConfig `json:"relations,omitempty" yaml:"relations,omitempty"`
	Extraction      ExtractionConfig          `json:"extraction" yaml:"extraction"`
}

type IDStrategy struct {
	SQLField   string `json:"sqlField" yaml:"sqlField"`
	MongoField string `json:"mongoField" yaml:"mongoField"`
	Type       string `json:"type" yaml:"type"`
}

type FieldConfig struct {
	SQLColumn  string `json:"sql" yaml:"sql"`
	MongoField string `json:"mongo" yaml:"mongo"`
	Type       string `json:"type" yaml:"type"`
	Format     string `json:"format,omitempty" yaml:"format,omitempty"`
}

type RelationConfig struct {
	Type          string   `json:"type" yaml:"type"`
	SQLTable      string   `json:"sqlTable,omitempty" yaml:"sqlTable,omitempty"`
	SQLJoinTable  string   `json:"sqlJoinTable,omitempty" yaml:"sqlJoinTable,omitempty"`
	SQLForeignKey string   `json:"sqlForeignKey" yaml:"sqlForeignKey"`
	MongoField    string   `json:"mongoField" yaml:"mongoField"`
	Embedding     string   `json:"embedding" yaml:"embedding"`
	Fields        []string `json:"fields,omitempty" yaml:"fields,omitempty"`
	ReferenceKey  string   `json:"referenceKey,omitempty" yaml:"referenceKey,omitempty"`
}

// ExtractionConfig describes the incremental extraction of one entity.
// Start, End and Enabled seed the cursor the first time a task runs; after
// that the persisted cursor wins.
type ExtractionConfig struct {
	TimeField  string     `json:"timeField" yaml:"timeField"`
	Where      string     `json:"where,omitempty" yaml:"where,omitempty"`
	BatchSize  int        `json:"batchSize,omitempty" yaml:"batchSize,omitempty"`
	Start      *time.Time `json:"start,omitempty" yaml:"start,omitempty"`
	End        *time.Time `json:"end,omitempty" yaml:"end,omitempty"`
	Enabled    *bool      `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Resolution string     `json:"resolution,omitempty" yaml:"resolution,omitempty"`
}

// IsEnabled defaults to true when the mapping does not say otherwise.
func (e ExtractionConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}

// ResolutionDuration parses Resolution, returning zero when unset. It can
// only fill in for a store that reports no resolution; a value coarser than
// the store's is rejected when the extractor is built.
func (e ExtractionConfig) ResolutionDuration() (time.Duration, error) {
	if e.Resolution == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.Resolution)
	if err != nil {
		return 0, fmt.Errorf("invalid resolution %q: %w", e.Resolution, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid resolution %q: negative", e.Resolution)
	}
	return d, nil
}

// LookupField finds a mapped field by mapping key, SQL column or Mongo field.
func (m *MappingSchema) LookupField(name string) (string, FieldConfig, bool) {
	if f, ok := m.Fields[name]; ok {
		return name, f, true
	}
	for key, f := range m.Fields {
		if f.SQLColumn == name || f.MongoField == name {
			return key, f, true
		}
	}
	return "", FieldConfig{}, false
}

// Validate checks the parts of the schema every command relies on.
func (m *MappingSchema) Validate() error {
	if m.Entity == "" {
		return fmt.Errorf("mapping: entity is required")
	}
	if m.IDStrategy.SQLField == "" || m.IDStrategy.MongoField == "" {
		return fmt.Errorf("mapping %s: idStrategy needs sqlField and mongoField", m.Entity)
	}
	if m.Extraction.BatchSize < 0 {
		return fmt.Errorf("mapping %s: extraction.batchSize must not be negative", m.Entity)
	}
	if _, err := m.Extraction.ResolutionDuration(); err != nil {
		return fmt.Errorf("mapping %s: %w", m.Entity, err)
	}
	// Relations are parsed so old mapping files give a clear error instead of
	// silently losing their embedded data.
	if len(m.Relations) > 0 {
		return fmt.Errorf("mapping %s: relations are not supported by incremental extraction", m.Entity)
	}
	return nil
}

func LoadMapping(data []byte) (*MappingSchema, error) {
	var m MappingSchema
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func LoadMappingYAML(data []byte) (*MappingSchema, error) {
	var m MappingSchema
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
