package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvFile_missing(t *testing.T) {
	if err := LoadEnvFile(filepath.Join(t.TempDir(), "nonexistent")); err != nil {
		t.Fatalf("missing file should return nil: %v", err)
	}
}

func TestLoadEnvFile_setsEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("FRNDLY_TEST_A=bar\n# comment\nFRNDLY_TEST_B=quux\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("FRNDLY_TEST_A") != "bar" {
		t.Errorf("FRNDLY_TEST_A = %q", os.Getenv("FRNDLY_TEST_A"))
	}
	if os.Getenv("FRNDLY_TEST_B") != "quux" {
		t.Errorf("FRNDLY_TEST_B = %q", os.Getenv("FRNDLY_TEST_B"))
	}
}

func TestLoadEnvFile_unquote(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(`FRNDLY_TEST_Q="hello world"`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := LoadEnvFile(path); err != nil {
		t.Fatal(err)
	}
	if os.Getenv("FRNDLY_TEST_Q") != "hello world" {
		t.Errorf("FRNDLY_TEST_Q = %q", os.Getenv("FRNDLY_TEST_Q"))
	}
}
