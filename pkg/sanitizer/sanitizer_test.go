package sanitizer

import "testing"

func TestTrimAndNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"Ada Lovelace", "Ada Lovelace"},
		{"  Ada   Lovelace  ", "Ada Lovelace"},
		{"Ada\t\nLovelace", "Ada Lovelace"},
	}
	for _, tt := range tests {
		if got := TrimAndNormalize(tt.in); got != tt.want {
			t.Errorf("TrimAndNormalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeDisplayName(t *testing.T) {
	if got := SanitizeDisplayName(" Ada \x00 Lovelace "); got != "Ada Lovelace" {
		t.Errorf("SanitizeDisplayName = %q", got)
	}
}

func TestSanitizeMembershipNumber(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{" ab-1234 ", "AB-1234"},
		{"ab 12!34", "AB1234"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := SanitizeMembershipNumber(tt.in); got != tt.want {
			t.Errorf("SanitizeMembershipNumber(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
