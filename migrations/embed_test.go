package migrations

import (
	"io/fs"
	"strings"
	"testing"
)

func TestFiles_ContainsCoreSchema(t *testing.T) {
	data, err := fs.ReadFile(Files, "001_patient_core.sql")
	if err != nil {
		t.Fatalf("read embedded migration: %v", err)
	}
	for _, table := range []string{"patient_address", "patient_guardian", "CREATE TABLE IF NOT EXISTS patient ("} {
		if !strings.Contains(string(data), table) {
			t.Errorf("expected schema to define %q", table)
		}
	}
}
