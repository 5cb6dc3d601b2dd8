package etl

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/BartekS5/IDA/internal/extract"
	"github.com/BartekS5/IDA/pkg/logger"
	"github.com/BartekS5/IDA/pkg/models"
	mssql "github.com/microsoft/go-mssqldb"
)

const columnTypeQuery = `
	SELECT DATA_TYPE, DATETIME_PRECISION
	FROM INFORMATION_SCHEMA.COLUMNS
	WHERE TABLE_NAME = @p1 AND COLUMN_NAME = @p2 AND (@p3 = '' OR TABLE_SCHEMA = @p3)`

// SQLSource reads time windows from a SQL Server table.
type SQLSource struct {
	DB     *sql.DB
	Config *models.MappingSchema
	// columnTypes holds the data type of each time column seen by ResolveField.
	columnTypes map[string]string
}

func NewSQLSource(db *sql.DB, config *models.MappingSchema) *SQLSource {
	return &SQLSource{DB: db, Config: config, columnTypes: make(map[string]string)}
}

// ResolveField accepts a mapped datetime field and confirms the column exists
// in the table with a date/time type.
func (s *SQLSource) ResolveField(ctx context.Context, name string) (extract.Field, error) {
	_, f, ok := s.Config.LookupField(name)
	if !ok {
		return extract.Field{}, fmt.Errorf("field %q is not mapped for %s", name, s.Config.Entity)
	}
	if f.Type != "datetime" {
		return extract.Field{}, fmt.Errorf("field %q is mapped as %q, not datetime", name, f.Type)
	}
	if f.SQLColumn == "" {
		return extract.Field{}, fmt.Errorf("field %q has no sql column", name)
	}

	schema, table := splitTableName(s.Config.SQLTable)
	var dataType string
	var precision sql.NullInt64
	err := s.DB.QueryRowContext(ctx, columnTypeQuery, table, f.SQLColumn, schema).Scan(&dataType, &precision)
	if errors.Is(err, sql.ErrNoRows) {
		return extract.Field{}, fmt.Errorf("column %s.%s does not exist", s.Config.SQLTable, f.SQLColumn)
	}
	if err != nil {
		return extract.Field{}, fmt.Errorf("inspect column %s.%s: %w", s.Config.SQLTable, f.SQLColumn, err)
	}

	res, err := sqlTimeResolution(dataType, precision)
	if err != nil {
		return extract.Field{}, fmt.Errorf("column %s.%s: %w", s.Config.SQLTable, f.SQLColumn, err)
	}
	if s.columnTypes == nil {
		s.columnTypes = make(map[string]string)
	}
	s.columnTypes[f.SQLColumn] = strings.ToLower(dataType)
	return extract.Field{Name: name, Column: f.SQLColumn, Resolution: res}, nil
}

// sqlTimeResolution is the smallest step between two stored values of a
// SQL Server date/time type.
func sqlTimeResolution(dataType string, precision sql.NullInt64) (time.Duration, error) {
	switch strings.ToLower(dataType) {
	case "datetime":
		// stored in 1/300 s ticks, so no two values are closer than 3ms
		return time.Millisecond, nil
	case "smalldatetime":
		return time.Minute, nil
	case "date":
		return 24 * time.Hour, nil
	case "datetime2", "datetimeoffset":
		p := int64(7)
		if precision.Valid && precision.Int64 >= 0 && precision.Int64 <= 7 {
			p = precision.Int64
		}
		return time.Duration(math.Pow10(int(9 - p))), nil
	default:
		return 0, fmt.Errorf("type %s is not a date/time type", dataType)
	}
}

func (s *SQLSource) Query(ctx context.Context, q extract.Query) ([]extract.Record, error) {
	query := buildRangeQuery(s.Config.SQLTable, q.Field.Column, s.Config.IDStrategy.SQLField, q.Where)

	dataType := s.columnTypes[q.Field.Column]
	rows, err := s.DB.QueryContext(ctx, query,
		timeParam(dataType, q.From), timeParam(dataType, q.To), q.Offset, q.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanRows(rows)
}

// timeParam binds t in the column's own type where the driver default would
// differ. go-mssqldb sends a plain time.Time as datetimeoffset(7), and a
// datetime value read back from the table may then not compare equal to
// itself.
func timeParam(dataType string, t time.Time) interface{} {
	switch dataType {
	case "datetime", "smalldatetime":
		return mssql.DateTime1(t)
	default:
		return t
	}
}

// buildRangeQuery orders by the id column after the time column so that rows
// sharing a timestamp always page in the same order.
func buildRangeQuery(table, timeColumn, idColumn, where string) string {
	tc := quoteIdent(timeColumn)
	orderBy := tc
	if idColumn != "" && idColumn != timeColumn {
		orderBy += ", " + quoteIdent(idColumn)
	}

	filter := fmt.Sprintf("%s >= @p1 AND %s <= @p2", tc, tc)
	if w := strings.TrimSpace(where); w != "" {
		filter += " AND (" + w + ")"
	}

	return fmt.Sprintf("SELECT * FROM %s WHERE %s ORDER BY %s OFFSET @p3 ROWS FETCH NEXT @p4 ROWS ONLY",
		quoteIdent(table), filter, orderBy)
}

// quoteIdent brackets each dot-separated part of a SQL Server identifier.
func quoteIdent(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		p = strings.TrimSuffix(strings.TrimPrefix(p, "["), "]")
		parts[i] = "[" + strings.ReplaceAll(p, "]", "]]") + "]"
	}
	return strings.Join(parts, ".")
}

func splitTableName(name string) (schema, table string) {
	if i := strings.LastIndex(name, "."); i >= 0 {
		return strings.Trim(name[:i], "[]"), strings.Trim(name[i+1:], "[]")
	}
	return "", strings.Trim(name, "[]")
}

func scanRows(rows *sql.Rows) ([]extract.Record, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []extract.Record
	for rows.Next() {
		columns := make([]interface{}, len(cols))
		columnPointers := make([]interface{}, len(cols))
		for i := range columns {
			columnPointers[i] = &columns[i]
		}
		if err := rows.Scan(columnPointers...); err != nil {
			return nil, err
		}

		m := make(extract.Record, len(cols))
		for i, colName := range cols {
			if b, ok := columns[i].([]byte); ok {
				m[colName] = string(b)
			} else {
				m[colName] = columns[i]
			}
		}
		results = append(results, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// SQLLoader inserts or updates rows in SQL Server from Mongo documents.
type SQLLoader struct {
	DB          *sql.DB
	Config      *models.MappingSchema
	Transformer *Transformer
	Validator   *Validator
	Log         *logger.Logger
}

func NewSQLLoader(db *sql.DB, config *models.MappingSchema, log *logger.Logger) *SQLLoader {
	if log == nil {
		log = logger.Default()
	}
	return &SQLLoader{
		DB:          db,
		Config:      config,
		Transformer: NewTransformer(config),
		Validator:   NewValidator(config),
		Log:         log,
	}
}

func (l *SQLLoader) Load(ctx context.Context, data []extract.Record) error {
	l.Log.Infof("SQL Loader: processing %d records", len(data))

	// Every document is checked before the first write; a rejected one fails
	// the batch so the cursor stays on it.
	rows := make([]map[string]interface{}, 0, len(data))
	for _, doc := range data {
		id := doc[l.Config.IDStrategy.MongoField]
		if err := l.Validator.ValidateDocument(doc); err != nil {
			return fmt.Errorf("document %v: %w", id, err)
		}
		row, err := l.Transformer.TransformMongoToSQL(doc)
		if err != nil {
			return fmt.Errorf("document %v: %w", id, err)
		}
		rows = append(rows, row)
	}

	var inserted, updated int
	for _, row := range rows {
		idVal := row[l.Config.IDStrategy.SQLField]
		delete(row, l.Config.IDStrategy.SQLField)

		var exists int
		checkQuery := fmt.Sprintf("SELECT 1 FROM %s WHERE %s = @p1",
			quoteIdent(l.Config.SQLTable), quoteIdent(l.Config.IDStrategy.SQLField))
		err := l.DB.QueryRowContext(ctx, checkQuery, idVal).Scan(&exists)

		switch {
		case errors.Is(err, sql.ErrNoRows):
			if err := l.insertRow(ctx, row, idVal); err != nil {
				return err
			}
			inserted++
		case err == nil:
			if err := l.updateRow(ctx, row, idVal); err != nil {
				return err
			}
			updated++
		default:
			return fmt.Errorf("error checking row existence: %w", err)
		}
	}

	l.Log.Infof("SQL Loader: inserted %d, updated %d", inserted, updated)
	return nil
}

// insertRow writes the id explicitly, which needs IDENTITY_INSERT when the id
// column is an identity column.
func (l *SQLLoader) insertRow(ctx context.Context, cols map[string]interface{}, idVal interface{}) error {
	colNames := []string{quoteIdent(l.Config.IDStrategy.SQLField)}
	placeholders := []string{"@p1"}
	args := []interface{}{idVal}

	for _, col := range sortedKeys(cols) {
		colNames = append(colNames, quoteIdent(col))
		args = append(args, cols[col])
		placeholders = append(placeholders, fmt.Sprintf("@p%d", len(args)))
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(l.Config.SQLTable), strings.Join(colNames, ", "), strings.Join(placeholders, ", "))

	if _, err := l.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert %v: %w", idVal, err)
	}
	return nil
}

func (l *SQLLoader) updateRow(ctx context.Context, cols map[string]interface{}, idVal interface{}) error {
	if len(cols) == 0 {
		return nil
	}

	var setClauses []string
	var args []interface{}
	for _, col := range sortedKeys(cols) {
		args = append(args, cols[col])
		setClauses = append(setClauses, fmt.Sprintf("%s = @p%d", quoteIdent(col), len(args)))
	}

	args = append(args, idVal)
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = @p%d",
		quoteIdent(l.Config.SQLTable), strings.Join(setClauses, ", "), quoteIdent(l.Config.IDStrategy.SQLField), len(args))

	if _, err := l.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update %v: %w", idVal, err)
	}
	return nil
}
