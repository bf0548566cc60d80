package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestContentMigrationDeclaresReferentialActions(t *testing.T) {
	migrationPath := filepath.Join("..", "..", "db", "migrations", "0002_content.up.sql")
	sqlBytes, err := os.ReadFile(migrationPath)
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	sqlText := string(sqlBytes)

	expectedSnippets := []string{
		"code TEXT NOT NULL UNIQUE",
		"source_id TEXT NOT NULL REFERENCES game_entities(id) ON DELETE CASCADE",
		"CHECK (source_id <> target_id)",
		"UNIQUE (source_id, target_id, relation)",
		"entity_id TEXT REFERENCES game_entities(id) ON DELETE SET NULL",
		"lore_id TEXT NOT NULL REFERENCES lore_entries(id) ON DELETE CASCADE",
		"UNIQUE (lore_id, version)",
		"parent_id TEXT REFERENCES onboarding_cards(id) ON DELETE CASCADE",
	}
	for _, snippet := range expectedSnippets {
		if !strings.Contains(sqlText, snippet) {
			t.Fatalf("expected migration to contain %q", snippet)
		}
	}
	if got := strings.Count(sqlText, "ON DELETE SET NULL"); got != 3 {
		t.Fatalf("expected art, lore and thoughts to null their entity reference, found %d", got)
	}
}
