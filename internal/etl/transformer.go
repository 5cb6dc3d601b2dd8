package etl

import (
	"fmt"
	"sort"

	"github.com/BartekS5/IDA/internal/extract"
	"github.com/BartekS5/IDA/pkg/models"
	"github.com/BartekS5/IDA/pkg/utils"
)

// Transformer maps records between the SQL and Mongo shapes of an entity.
type Transformer struct {
	Config *models.MappingSchema
}

func NewTransformer(config *models.MappingSchema) *Transformer {
	return &Transformer{Config: config}
}

func (t *Transformer) TransformSQLToMongo(sqlRow extract.Record) (map[string]interface{}, error) {
	doc := make(map[string]interface{})

	if idVal, ok := sqlRow[t.Config.IDStrategy.SQLField]; ok {
		doc[t.Config.IDStrategy.MongoField] = idVal
	}

	for _, key := range sortedKeys(t.Config.Fields) {
		fieldCfg := t.Config.Fields[key]
		if val, exists := sqlRow[fieldCfg.SQLColumn]; exists {
			converted, err := utils.ConvertToMongoType(val, fieldCfg)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fieldCfg.SQLColumn, err)
			}
			doc[fieldCfg.MongoField] = converted
		}
	}
	return doc, nil
}

func (t *Transformer) TransformMongoToSQL(mongoDoc extract.Record) (map[string]interface{}, error) {
	row := make(map[string]interface{})

	if idVal, ok := mongoDoc[t.Config.IDStrategy.MongoField]; ok {
		row[t.Config.IDStrategy.SQLField] = idVal
	}

	for _, key := range sortedKeys(t.Config.Fields) {
		fieldCfg := t.Config.Fields[key]
		if val, exists := mongoDoc[fieldCfg.MongoField]; exists {
			converted, err := utils.ConvertToSQLType(val, fieldCfg)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", fieldCfg.MongoField, err)
			}
			row[fieldCfg.SQLColumn] = converted
		}
	}
	return row, nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
