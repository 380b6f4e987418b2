package database

import (
	"io/fs"
	"strings"
	"testing"
)

// TestMigrationsFS_UpDownPairs は埋め込まれたマイグレーションファイルが
// up/downのペアで揃っていることを検証する。
func TestMigrationsFS_UpDownPairs(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("failed to read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migration files found")
	}

	ups := make(map[string]bool)
	downs := make(map[string]bool)
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected migration file name: %s", name)
		}
	}

	for base := range ups {
		if !downs[base] {
			t.Errorf("migration %s has no down counterpart", base)
		}
	}
	for base := range downs {
		if !ups[base] {
			t.Errorf("migration %s has no up counterpart", base)
		}
	}
}

// TestMigrationsFS_PurchasesUniqueConstraint は購入テーブルの
// (user_id, song_id)一意制約がスキーマに含まれることを検証する。
// この制約は二重販売防止の最終防衛線であり、失われてはならない。
func TestMigrationsFS_PurchasesUniqueConstraint(t *testing.T) {
	data, err := fs.ReadFile(migrationsFS, "migrations/000003_create_payments.up.sql")
	if err != nil {
		t.Fatalf("failed to read payments migration: %v", err)
	}

	content := string(data)
	if !strings.Contains(content, "UNIQUE (user_id, song_id)") {
		t.Error("purchases table must declare UNIQUE (user_id, song_id)")
	}
}

// TestNewMigrator_InvalidURL_ReturnsError は不正なデータベースURLで
// マイグレータ生成がエラーを返すことを検証する。
func TestNewMigrator_InvalidURL_ReturnsError(t *testing.T) {
	_, err := NewMigrator("not-a-url")
	if err == nil {
		t.Fatal("expected error for invalid database URL")
	}
}
