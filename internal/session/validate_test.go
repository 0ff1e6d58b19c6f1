package session

import (
	"errors"
	"testing"

	"github.com/matheus3301/wpparchive/internal/config"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid simple", "main", false},
		{"valid with numbers", "work123", false},
		{"valid with hyphen", "my-session", false},
		{"valid with underscore", "my_session", false},
		{"valid single char", "a", false},
		{"valid max length", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", false},
		{"empty", "", true},
		{"uppercase", "Main", true},
		{"space", "my session", true},
		{"dot", "my.session", true},
		{"too long", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", true},
		{"special chars", "my@session", true},
		{"slash", "my/session", true},
		{"leading dash", "-session", true},
		{"leading underscore", "_scratch", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateName(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidName) {
				t.Errorf("ValidateName(%q) error %v should wrap ErrInvalidName", tt.input, err)
			}
		})
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(HomeEnv, t.TempDir())
	t.Setenv("WPPARCHIVE_DEFAULT_SESSION", "")

	if got := Resolve("work"); got != "work" {
		t.Errorf("Resolve(work) = %q, want flag value", got)
	}
	if got := Resolve(""); got != DefaultSessionName {
		t.Errorf("Resolve() = %q, want %q", got, DefaultSessionName)
	}

	t.Setenv("WPPARCHIVE_DEFAULT_SESSION", "personal")
	if got := Resolve(""); got != "personal" {
		t.Errorf("Resolve() = %q, want env value", got)
	}
}

func TestResolveFrom(t *testing.T) {
	cfg := config.Default()
	if got := ResolveFrom("", nil); got != DefaultSessionName {
		t.Errorf("ResolveFrom(nil) = %q, want %q", got, DefaultSessionName)
	}
	cfg.DefaultSession = "work"
	if got := ResolveFrom("", cfg); got != "work" {
		t.Errorf("ResolveFrom(cfg) = %q, want work", got)
	}
	if got := ResolveFrom("flag", cfg); got != "flag" {
		t.Errorf("ResolveFrom(flag) = %q, want flag", got)
	}
}
