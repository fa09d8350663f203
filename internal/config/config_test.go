package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_defaults(t *testing.T) {
	for _, k := range []string{
		"FRNDLY_TUNER_USERNAME", "FRNDLY_TUNER_PASSWORD", "FRNDLY_TUNER_ADDR",
		"FRNDLY_TUNER_GUIDE_DAYS", "FRNDLY_TUNER_REFRESH_INTERVAL",
		"FRNDLY_TUNER_UPSTREAM_TIMEOUT", "FRNDLY_TUNER_CREDENTIALS_FILE",
	} {
		t.Setenv(k, "")
	}
	c := Load()
	if c.Addr != ":8183" {
		t.Errorf("Addr = %q", c.Addr)
	}
	if c.GuideDays != 3 {
		t.Errorf("GuideDays = %d", c.GuideDays)
	}
	if c.RefreshInterval != 30*time.Minute {
		t.Errorf("RefreshInterval = %v", c.RefreshInterval)
	}
	if c.UpstreamTimeout != 15*time.Second {
		t.Errorf("UpstreamTimeout = %v", c.UpstreamTimeout)
	}
	if c.LeaseTTL != 5*time.Minute {
		t.Errorf("LeaseTTL = %v", c.LeaseTTL)
	}
}

func TestLoad_guideDaysClamped(t *testing.T) {
	t.Setenv("FRNDLY_TUNER_GUIDE_DAYS", "99")
	if c := Load(); c.GuideDays != 7 {
		t.Errorf("GuideDays = %d, want 7", c.GuideDays)
	}
	t.Setenv("FRNDLY_TUNER_GUIDE_DAYS", "0")
	if c := Load(); c.GuideDays != 1 {
		t.Errorf("GuideDays = %d, want 1", c.GuideDays)
	}
}

func TestClampDays(t *testing.T) {
	cases := map[int]int{-3: 1, 0: 1, 1: 1, 3: 3, 7: 7, 10: 7}
	for in, want := range cases {
		if got := ClampDays(in); got != want {
			t.Errorf("ClampDays(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestLoad_credentialsFileFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "frndly.credentials.txt")
	if err := os.WriteFile(path, []byte("Username: alice@example.com\nPassword: hunter2\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRNDLY_TUNER_USERNAME", "")
	t.Setenv("FRNDLY_TUNER_PASSWORD", "")
	t.Setenv("FRNDLY_TUNER_CREDENTIALS_FILE", path)
	c := Load()
	if c.Username != "alice@example.com" || c.Password != "hunter2" {
		t.Errorf("credentials = %q / %q", c.Username, c.Password)
	}
}

func TestLoad_envWinsOverCredentialsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.txt")
	if err := os.WriteFile(path, []byte("Username: file-user\nPassword: file-pass\n"), 0600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("FRNDLY_TUNER_USERNAME", "env-user")
	t.Setenv("FRNDLY_TUNER_PASSWORD", "")
	t.Setenv("FRNDLY_TUNER_CREDENTIALS_FILE", path)
	c := Load()
	if c.Username != "env-user" {
		t.Errorf("Username = %q, want env-user", c.Username)
	}
	if c.Password != "file-pass" {
		t.Errorf("Password = %q, want file-pass", c.Password)
	}
}

func TestReadCredentialsFile_missingFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "creds.txt")
	if err := os.WriteFile(path, []byte("Username: only-user\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := readCredentialsFile(path); err == nil {
		t.Error("want error for missing Password")
	}
}
