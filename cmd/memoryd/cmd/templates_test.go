package cmd

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadTemplateTableParsesScenes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "templates.yaml")
	contents := `
scenes:
  greeting:
    - text: "hi {name}"
      emotion_tag: happy
      emotion_intensity: 0.5
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	table, err := loadTemplateTable(path)
	if err != nil {
		t.Fatalf("loadTemplateTable: %v", err)
	}
	templates, ok := table["greeting"]
	if !ok || len(templates) != 1 {
		t.Fatalf("expected one greeting template, got %+v", table)
	}
	if templates[0].Text != "hi {name}" || templates[0].EmotionTag != "happy" {
		t.Fatalf("unexpected template: %+v", templates[0])
	}
}

func TestLoadTemplateTableMissingFileErrors(t *testing.T) {
	if _, err := loadTemplateTable(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
