package etl

import (
	"fmt"

	"github.com/BartekS5/IDA/pkg/models"
)

type Validator struct {
	Config *models.MappingSchema
}

func NewValidator(config *models.MappingSchema) *Validator {
	return &Validator{Config: config}
}

// ValidateDocument checks that a Mongo-shaped document carries its ID.
func (v *Validator) ValidateDocument(doc map[string]interface{}) error {
	idField := v.Config.IDStrategy.MongoField
	if val, ok := doc[idField]; !ok || val == nil {
		return fmt.Errorf("missing required ID field: %s", idField)
	}
	return nil
}
