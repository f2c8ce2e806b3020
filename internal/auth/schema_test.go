package auth

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
)

// Columns each store reads or writes, per table. Must stay in sync with the
// queries in postgres.go.
var storeColumns = map[string][]string{
	"users":          {"id", "email", "name", "status", "password_hash", "created_at", "updated_at"},
	"roles":          {"id", "name", "description", "created_at"},
	"user_roles":     {"user_id", "role_id"},
	"refresh_tokens": {"id", "user_id", "token_hash", "expires_at", "created_at", "revoked"},
	"audit_log":      {"id", "occurred_at", "user_id", "action", "entity", "entity_id", "metadata"},
}

// The shipped migration must define every column the store queries; sqlmock
// tests cannot catch drift between the SQL here and the DDL on disk.
func TestMigrationDefinesQueriedColumns(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "ops", "migrations", "sql", "0001_auth_core.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	ddl := string(raw)

	for table, cols := range storeColumns {
		body := tableBody(t, ddl, table)
		for _, col := range cols {
			pattern := regexp.MustCompile(`(?m)^\s*` + regexp.QuoteMeta(col) + `\s`)
			if !pattern.MatchString(body) {
				t.Errorf("store queries column %s.%s but the migration does not define it", table, col)
			}
		}
	}
}

func tableBody(t *testing.T, ddl, table string) string {
	t.Helper()
	marker := "create table if not exists " + table + " ("
	i := strings.Index(ddl, marker)
	if i < 0 {
		t.Fatalf("migration has no DDL for table %s", table)
	}
	rest := ddl[i+len(marker):]
	j := strings.Index(rest, ");")
	if j < 0 {
		t.Fatalf("unterminated DDL for table %s", table)
	}
	return rest[:j]
}
