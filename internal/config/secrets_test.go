package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveSecretFromEnv(t *testing.T) {
	t.Setenv("FLOWDECK_TEST_SECRET", "from-env")

	value, err := ResolveSecret("FLOWDECK_TEST_SECRET")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if value != "from-env" {
		t.Errorf("expected 'from-env', got %q", value)
	}
}

func TestResolveSecretFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret")
	if err := os.WriteFile(path, []byte("from-file\n"), 0o600); err != nil {
		t.Fatalf("write secret: %v", err)
	}

	t.Setenv("FLOWDECK_TEST_SECRET", "from-env")
	t.Setenv("FLOWDECK_TEST_SECRET_FILE", path)

	value, err := ResolveSecret("FLOWDECK_TEST_SECRET")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	// The *_FILE variant takes precedence, and whitespace is trimmed.
	if value != "from-file" {
		t.Errorf("expected 'from-file', got %q", value)
	}
}

func TestResolveSecretMissingFile(t *testing.T) {
	t.Setenv("FLOWDECK_TEST_SECRET_FILE", filepath.Join(t.TempDir(), "nope"))

	if _, err := ResolveSecret("FLOWDECK_TEST_SECRET"); err == nil {
		t.Error("expected error for unreadable secret file")
	}
}

func TestResolveSecretUnset(t *testing.T) {
	value, err := ResolveSecret("FLOWDECK_TEST_SECRET_UNSET")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if value != "" {
		t.Errorf("expected empty value, got %q", value)
	}
}
