package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestFiles_Embedded(t *testing.T) {
	names, err := fs.Glob(Files, "*.sql")
	if err != nil {
		t.Fatalf("glob failed: %v", err)
	}
	if len(names) != 3 {
		t.Fatalf("expected 3 migration files, got %d: %v", len(names), names)
	}

	wantTables := []string{"campuses", "api_keys", "apikeys_campus_rights", "data_managers", "user_campus_rights"}
	var all strings.Builder
	for _, name := range names {
		data, err := fs.ReadFile(Files, name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		all.Write(data)
	}
	for _, table := range wantTables {
		if !strings.Contains(all.String(), "CREATE TABLE "+table) && !strings.Contains(all.String(), "CREATE TABLE IF NOT EXISTS "+table) {
			t.Errorf("no migration creates table %s", table)
		}
	}
}
