package db

import (
	"testing"

	"github.com/mltframework/melted/internal/config"
	"github.com/mltframework/melted/internal/models"
)

func TestConnectSQLiteMemoryAndMigrate(t *testing.T) {
	database, err := Connect(config.DatabaseSQLite, ":memory:")
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer Close(database)

	if err := Migrate(database); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if !database.Migrator().HasTable(&models.AsRunEntry{}) {
		t.Fatal("as-run table missing after migrate")
	}
}

func TestConnectRejectsUnknownBackend(t *testing.T) {
	if _, err := Connect(config.DatabaseBackend("oracle"), "x"); err == nil {
		t.Fatal("expected an error for an unknown backend")
	}
}
