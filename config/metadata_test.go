package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
)

func TestMetadataFileStoreAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.ixi.metadata")
	file := NewMetadataFile(path)

	value, err := file.Load()
	if err != nil {
		t.Fatalf("Load on missing file failed: %v", err)
	}
	if value != "" {
		t.Fatalf("expected empty uuid on missing file, got %q", value)
	}

	if err := file.Store("XYZ"); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	value, err = file.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if value != "XYZ" {
		t.Fatalf("expected XYZ, got %q", value)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if !strings.HasPrefix(string(raw), "#Report.ixi\n") || !strings.Contains(string(raw), "uuid = XYZ") {
		t.Fatalf("unexpected metadata file contents:\n%s", raw)
	}

	if err := file.Store(" "); err == nil {
		t.Fatalf("expected empty uuid to be rejected")
	}
}

func TestMetadataFileLoadOrCreate(t *testing.T) {
	file := NewMetadataFile(filepath.Join(t.TempDir(), "report.ixi.metadata"))

	generated, stored, err := file.LoadOrCreate()
	if err != nil {
		t.Fatalf("LoadOrCreate failed: %v", err)
	}
	if stored {
		t.Fatalf("expected generated uuid to be unstored")
	}
	if _, err := uuid.Parse(generated); err != nil {
		t.Fatalf("expected a random uuid, got %q: %v", generated, err)
	}
	if _, err := os.Stat(file.Path()); !os.IsNotExist(err) {
		t.Fatalf("expected no file before the uuid is confirmed, got %v", err)
	}

	if err := file.Store(generated); err != nil {
		t.Fatalf("Store failed: %v", err)
	}
	again, stored, err := file.LoadOrCreate()
	if err != nil {
		t.Fatalf("second LoadOrCreate failed: %v", err)
	}
	if !stored || again != generated {
		t.Fatalf("expected stored uuid %q, got %q (stored=%v)", generated, again, stored)
	}
}

func TestMetadataFileReadsJavaPropertiesSyntax(t *testing.T) {
	cases := map[string]string{
		"equals":       "#Report.ixi\nuuid=abc\n",
		"colon":        "! note\nuuid : abc \n",
		"whitespace":   "uuid abc\n",
		"continuation": "uuid = a\\\n    bc\n",
		"escape":       "u\\u0075id=abc\n",
		"expansion":    "uuid=${abc}\n",
	}
	want := map[string]string{"expansion": "${abc}"}

	for name, contents := range cases {
		path := filepath.Join(t.TempDir(), "report.ixi.metadata")
		if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
			t.Fatalf("%s: WriteFile failed: %v", name, err)
		}
		got, err := NewMetadataFile(path).Load()
		if err != nil {
			t.Fatalf("%s: Load failed: %v", name, err)
		}
		expected, ok := want[name]
		if !ok {
			expected = "abc"
		}
		if got != expected {
			t.Fatalf("%s: expected %q, got %q", name, expected, got)
		}
	}
}
