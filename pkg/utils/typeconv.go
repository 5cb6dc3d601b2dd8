package utils

import (
	"fmt"
	"strconv"
	"time"

	"github.com/BartekS5/IDA/pkg/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var dateTimeFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05.9999999",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ConvertToMongoType handles type conversion from SQL/Generic to MongoDB
func ConvertToMongoType(val interface{}, cfg models.FieldConfig) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch cfg.Type {
	case "datetime":
		return ConvertDateTime(val, cfg.Format)
	case "enum", "string":
		return fmt.Sprintf("%v", val), nil
	case "int":
		return ConvertToInt(val)
	default:
		return val, nil
	}
}

// ConvertToSQLType handles type conversion from MongoDB back to SQL
func ConvertToSQLType(val interface{}, cfg models.FieldConfig) (interface{}, error) {
	if val == nil {
		return nil, nil
	}
	switch cfg.Type {
	case "datetime":
		return ConvertDateTime(val, cfg.Format)
	case "int":
		return ConvertToInt(val)
	case "string", "enum":
		return fmt.Sprintf("%v", val), nil
	default:
		return val, nil
	}
}

// ConvertDateTime normalizes the date representations the drivers hand back.
// Values of other types are returned unchanged.
func ConvertDateTime(val interface{}, format string) (interface{}, error) {
	switch v := val.(type) {
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return nil, nil
		}
		return *v, nil
	case primitive.DateTime:
		return v.Time().UTC(), nil
	case string:
		if format != "" && format != "ISO8601" {
			if t, err := time.Parse(format, v); err == nil {
				return t, nil
			}
		}
		for _, f := range dateTimeFormats {
			if t, err := time.Parse(f, v); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("unable to parse datetime: %s", v)
	case []byte:
		return ConvertDateTime(string(v), format)
	default:
		return val, nil
	}
}

// ToTime is ConvertDateTime for callers that need a time.Time.
func ToTime(val interface{}) (time.Time, error) {
	v, err := ConvertDateTime(val, "")
	if err != nil {
		return time.Time{}, err
	}
	t, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("cannot convert %T to time", val)
	}
	return t, nil
}

func ConvertToInt(val interface{}) (int, error) {
	switch v := val.(type) {
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case primitive.DateTime:
		return int(v), nil
	case string:
		return strconv.Atoi(v)
	case []byte:
		return strconv.Atoi(string(v))
	default:
		return 0, fmt.Errorf("cannot convert %T to int", val)
	}
}
