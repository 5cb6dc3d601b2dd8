package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const jsonMapping = `{
  "entity": "AppUser",
  "sqlTable": "users",
  "mongoCollection": "users",
  "idStrategy": {"sqlField": "id", "mongoField": "_id", "type": "long"},
  "fields": {
    "updatedAt": {"sql": "updated_at", "mongo": "updatedAt", "type": "datetime"}
  },
  "extraction": {
    "timeField": "updatedAt",
    "where": "status = 'ACTIVE'",
    "batchSize": 500,
    "start": "2024-01-01T00:00:00Z",
    "resolution": "1ms"
  }
}`

const yamlMapping = `
entity: AppUser
sqlTable: users
mongoCollection: users
idStrategy:
  sqlField: id
  mongoField: _id
fields:
  updatedAt:
    sql: updated_at
    mongo: updatedAt
    type: datetime
extraction:
  timeField: updatedAt
  end: 2024-02-01T00:00:00Z
  enabled: false
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadMappingJSON(t *testing.T) {
	m, err := LoadMapping(writeFile(t, "mapping.json", jsonMapping))
	require.NoError(t, err)

	assert.Equal(t, "AppUser", m.Entity)
	assert.Equal(t, "updatedAt", m.Extraction.TimeField)
	assert.Equal(t, 500, m.Extraction.BatchSize)
	require.NotNil(t, m.Extraction.Start)
	assert.True(t, m.Extraction.Start.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)))
	assert.Nil(t, m.Extraction.End)
	assert.True(t, m.Extraction.IsEnabled())

	res, err := m.Extraction.ResolutionDuration()
	require.NoError(t, err)
	assert.Equal(t, time.Millisecond, res)
}

func TestLoadMappingYAML(t *testing.T) {
	m, err := LoadMapping(writeFile(t, "mapping.yaml", yamlMapping))
	require.NoError(t, err)

	assert.Equal(t, "updated_at", m.Fields["updatedAt"].SQLColumn)
	require.NotNil(t, m.Extraction.End)
	assert.True(t, m.Extraction.End.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)))
	assert.False(t, m.Extraction.IsEnabled())
}

func TestLoadMappingErrors(t *testing.T) {
	_, err := LoadMapping(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)

	_, err = LoadMapping(writeFile(t, "bad.json", "{"))
	require.Error(t, err)

	_, err = LoadMapping(writeFile(t, "noid.json", `{"entity": "X"}`))
	require.Error(t, err)

	_, err = LoadMapping(writeFile(t, "res.json",
		`{"entity": "X", "idStrategy": {"sqlField": "id", "mongoField": "_id"}, "extraction": {"resolution": "soon"}}`))
	require.Error(t, err)

	_, err = LoadMapping(writeFile(t, "rel.json",
		`{"entity": "X", "idStrategy": {"sqlField": "id", "mongoField": "_id"},
		  "relations": {"orders": {"type": "oneToMany", "sqlTable": "orders", "sqlForeignKey": "user_id", "mongoField": "orders", "embedding": "full"}}}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "relations")
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("SQL_CONNECTION_STRING", "")
	t.Setenv("MONGO_CONNECTION_STRING", "mongodb://localhost")
	_, err := LoadConfig()
	require.Error(t, err)

	t.Setenv("SQL_CONNECTION_STRING", "sqlserver://sa@localhost")
	t.Setenv("MONGO_DATABASE", "")
	t.Setenv("CURSOR_STORE", "mongo")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "mydb", cfg.MongoDatabase)
	assert.Equal(t, "mongo", cfg.CursorStore)
	assert.Equal(t, ".cursors", cfg.CursorDir)
}
