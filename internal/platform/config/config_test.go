package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestGetEnv(t *testing.T) {
	t.Setenv("HLS_TEST_STR", "value")
	if got := GetEnv("HLS_TEST_STR", "fallback"); got != "value" {
		t.Errorf("GetEnv: got %q", got)
	}
	if got := GetEnv("HLS_TEST_UNSET", "fallback"); got != "fallback" {
		t.Errorf("GetEnv unset: got %q", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	t.Setenv("HLS_TEST_INT", "12")
	t.Setenv("HLS_TEST_BAD_INT", "twelve")
	if got := GetEnvInt("HLS_TEST_INT", 3); got != 12 {
		t.Errorf("GetEnvInt: got %d", got)
	}
	if got := GetEnvInt("HLS_TEST_BAD_INT", 3); got != 3 {
		t.Errorf("GetEnvInt invalid: got %d", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		val  string
		want bool
	}{
		{"true", true},
		{"YES", true},
		{"on", true},
		{"0", false},
		{"no", false},
		{"maybe", true}, // invalid falls back
		{"", true},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			t.Setenv("HLS_TEST_BOOL", tt.val)
			if got := GetEnvBool("HLS_TEST_BOOL", true); got != tt.want {
				t.Errorf("GetEnvBool(%q): got %v want %v", tt.val, got, tt.want)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("HLS_TEST_DUR", "750ms")
	if got := GetEnvDuration("HLS_TEST_DUR", time.Second); got != 750*time.Millisecond {
		t.Errorf("GetEnvDuration: got %v", got)
	}
	t.Setenv("HLS_TEST_DUR", "4")
	if got := GetEnvDuration("HLS_TEST_DUR", time.Second); got != 4*time.Second {
		t.Errorf("GetEnvDuration seconds: got %v", got)
	}
	t.Setenv("HLS_TEST_DUR", "soon")
	if got := GetEnvDuration("HLS_TEST_DUR", time.Second); got != time.Second {
		t.Errorf("GetEnvDuration invalid: got %v", got)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.env")
	if err := os.WriteFile(path, []byte("HLS_TEST_FROM_FILE=loaded\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("HLS_TEST_FROM_FILE") })

	if err := Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := GetEnv("HLS_TEST_FROM_FILE", ""); got != "loaded" {
		t.Errorf("expected value from env file, got %q", got)
	}
	if err := Load(filepath.Join(dir, "missing.env")); err == nil {
		t.Error("expected error for missing file")
	}
}
