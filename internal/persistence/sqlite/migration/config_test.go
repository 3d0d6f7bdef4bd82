package migration

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "modernc.org/sqlite"
)

func TestDefaultSQLiteConfig(t *testing.T) {
	dbPath := "/tmp/test.db"
	config := DefaultSQLiteConfig(dbPath)

	if config.Path != dbPath {
		t.Errorf("Expected Path %s, got %s", dbPath, config.Path)
	}

	if config.BusyTimeout != 30*time.Second {
		t.Errorf("Expected BusyTimeout 30s, got %v", config.BusyTimeout)
	}

	if !config.EnableForeignKeys {
		t.Error("Expected EnableForeignKeys to be true")
	}

	if config.JournalMode != "WAL" {
		t.Errorf("Expected JournalMode WAL, got %s", config.JournalMode)
	}

	if config.Synchronous != "NORMAL" {
		t.Errorf("Expected Synchronous NORMAL, got %s", config.Synchronous)
	}

	if config.CacheSize != -2000 {
		t.Errorf("Expected CacheSize -2000, got %d", config.CacheSize)
	}
}

func TestSQLiteConfig_ValidateConfig(t *testing.T) {
	tests := []struct {
		name        string
		config      SQLiteConfig
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config",
			config: SQLiteConfig{
				Path:              ":memory:",
				BusyTimeout:       30 * time.Second,
				EnableForeignKeys: true,
				JournalMode:       "WAL",
				Synchronous:       "NORMAL",
			},
			expectError: false,
		},
		{
			name:        "empty path",
			config:      SQLiteConfig{Path: ""},
			expectError: true,
			errorMsg:    "Path cannot be empty",
		},
		{
			name: "negative busy timeout",
			config: SQLiteConfig{
				Path:        ":memory:",
				BusyTimeout: -1 * time.Second,
			},
			expectError: true,
			errorMsg:    "BusyTimeout cannot be negative",
		},
		{
			name: "invalid journal mode",
			config: SQLiteConfig{
				Path:        ":memory:",
				JournalMode: "INVALID",
			},
			expectError: true,
			errorMsg:    "invalid journal mode: INVALID",
		},
		{
			name: "invalid synchronous mode",
			config: SQLiteConfig{
				Path:        ":memory:",
				Synchronous: "INVALID",
			},
			expectError: true,
			errorMsg:    "invalid synchronous mode: INVALID",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cm := NewConnectionManager(tt.config)
			err := cm.ValidateConfig()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if err.Error() != tt.errorMsg {
					t.Errorf("Expected error message %q, got %q", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConnectionManager_DSN(t *testing.T) {
	cm := NewConnectionManager(SQLiteConfig{
		Path:              "/data/tickets.db",
		BusyTimeout:       5 * time.Second,
		EnableForeignKeys: true,
		JournalMode:       "WAL",
	})

	dsn := cm.DSN()
	if !strings.HasPrefix(dsn, "/data/tickets.db?") {
		t.Fatalf("Expected DSN to start with the path, got %q", dsn)
	}
	for _, want := range []string{"busy_timeout%285000%29", "foreign_keys%281%29", "journal_mode%28WAL%29"} {
		if !strings.Contains(dsn, want) {
			t.Errorf("Expected DSN to contain %q, got %q", want, dsn)
		}
	}

	bare := NewConnectionManager(SQLiteConfig{Path: "plain.db"})
	if got := bare.DSN(); got != "plain.db" {
		t.Errorf("Expected bare DSN plain.db, got %q", got)
	}
}

func TestConnectionManager_Open_NestedDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	cm := NewConnectionManager(TempFileTestSQLiteConfig(dbPath))

	db, err := cm.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		t.Fatalf("Failed to read foreign_keys: %v", err)
	}
	if foreignKeys != 1 {
		t.Errorf("Expected foreign_keys=1, got %d", foreignKeys)
	}

	if stats := db.Stats(); stats.MaxOpenConnections != 1 {
		t.Errorf("Expected a single connection, got %d", stats.MaxOpenConnections)
	}
}

func TestConnectionManager_Open_InMemory(t *testing.T) {
	cm := NewConnectionManager(InMemoryTestSQLiteConfig())

	db, err := cm.Open(context.Background())
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec("CREATE TABLE probe (id INTEGER PRIMARY KEY)"); err != nil {
		t.Fatalf("Failed to use in-memory database: %v", err)
	}
}

func TestConnectionManager_Open_InvalidConfig(t *testing.T) {
	cm := NewConnectionManager(SQLiteConfig{Path: ""})

	if _, err := cm.Open(context.Background()); err == nil {
		t.Fatal("Expected error for invalid configuration")
	}
}

func TestAllValidJournalModes(t *testing.T) {
	for _, mode := range []string{"DELETE", "TRUNCATE", "PERSIST", "MEMORY", "WAL", "OFF"} {
		cm := NewConnectionManager(SQLiteConfig{Path: ":memory:", JournalMode: mode})
		if err := cm.ValidateConfig(); err != nil {
			t.Errorf("Journal mode %s should be valid, got error: %v", mode, err)
		}
	}
}

func TestAllValidSynchronousModes(t *testing.T) {
	for _, mode := range []string{"OFF", "NORMAL", "FULL", "EXTRA"} {
		cm := NewConnectionManager(SQLiteConfig{Path: ":memory:", Synchronous: mode})
		if err := cm.ValidateConfig(); err != nil {
			t.Errorf("Synchronous mode %s should be valid, got error: %v", mode, err)
		}
	}
}
