package version

import (
	"strings"
	"testing"
)

func TestShortCommit(t *testing.T) {
	tests := []struct {
		revision string
		dirty    bool
		want     string
	}{
		{"0123456789abcdef", false, "0123456"},
		{"0123456789abcdef", true, "0123456-dirty"},
		{"abc", false, "abc"},
		{"", false, "unknown"},
		{"unknown", true, "unknown"},
	}
	for _, tt := range tests {
		if got := shortCommit(tt.revision, tt.dirty); got != tt.want {
			t.Errorf("shortCommit(%q, %v) = %v, want %v", tt.revision, tt.dirty, got, tt.want)
		}
	}
}

func TestFull(t *testing.T) {
	if Version == "" {
		t.Error("Version should never be empty after init")
	}
	if Commit == "" {
		t.Error("Commit should never be empty after init")
	}
	if !strings.Contains(Full(), Version) || !strings.Contains(Full(), "commit: "+Commit) {
		t.Errorf("Full() = %v", Full())
	}
}
