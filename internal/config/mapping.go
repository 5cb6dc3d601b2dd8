package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BartekS5/IDA/pkg/models"
)

// LoadMapping reads and validates a mapping file. Files ending in .yaml or
// .yml are parsed as YAML, anything else as JSON.
func LoadMapping(filePath string) (*models.MappingSchema, error) {
	bytes, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read mapping file '%s': %w", filePath, err)
	}

	var m *models.MappingSchema
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".yaml", ".yml":
		m, err = models.LoadMappingYAML(bytes)
	default:
		m, err = models.LoadMapping(bytes)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse mapping file '%s': %w", filePath, err)
	}

	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
