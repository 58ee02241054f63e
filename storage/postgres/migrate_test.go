package postgres

import (
	"io/fs"
	"testing"
)

func TestMigrateURL(t *testing.T) {
	tests := map[string]string{
		"postgres://u:p@localhost:5432/db?sslmode=disable": "pgx5://u:p@localhost:5432/db?sslmode=disable",
		"postgresql://localhost/db":                        "pgx5://localhost/db",
		"pgx5://localhost/db":                              "pgx5://localhost/db",
	}
	for in, want := range tests {
		if got := migrateURL(in); got != want {
			t.Errorf("migrateURL(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		t.Fatalf("glob: %v", err)
	}
	if len(files) < 2 {
		t.Fatalf("expected up and down migrations, got %v", files)
	}
}
