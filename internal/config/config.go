// Package config handles loading of environment settings and mapping files.
package config

import (
	"errors"
	"os"

	"github.com/BartekS5/IDA/internal/cursorstore"
)

// Config holds all configuration for the application,
// typically loaded from environment variables.
type Config struct {
	SQLConnString   string
	MongoConnString string
	MongoDatabase   string
	CursorStore     string
	CursorDir       string
	LogFile         string
	LogLevel        string
}

// LoadConfig loads application settings from environment variables
// (which should be populated by the .env file in main.go).
func LoadConfig() (*Config, error) {
	sqlConn := os.Getenv("SQL_CONNECTION_STRING")
	if sqlConn == "" {
		return nil, errors.New("SQL_CONNECTION_STRING environment variable not set")
	}

	mongoConn := os.Getenv("MONGO_CONNECTION_STRING")
	if mongoConn == "" {
		return nil, errors.New("MONGO_CONNECTION_STRING environment variable not set")
	}

	return LoadStoreConfig(), nil
}

// LoadStoreConfig reads the same variables as LoadConfig without requiring
// the connection strings, for commands that only touch cursors.
func LoadStoreConfig() *Config {
	return &Config{
		SQLConnString:   os.Getenv("SQL_CONNECTION_STRING"),
		MongoConnString: os.Getenv("MONGO_CONNECTION_STRING"),
		MongoDatabase:   getenv("MONGO_DATABASE", mongoDefaultDatabase),
		CursorStore:     getenv("CURSOR_STORE", cursorstore.KindFile),
		CursorDir:       getenv("CURSOR_DIR", cursorstore.DefaultDir),
		LogFile:         os.Getenv("LOG_FILE"),
		LogLevel:        os.Getenv("LOG_LEVEL"),
	}
}

const mongoDefaultDatabase = "mydb"

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
