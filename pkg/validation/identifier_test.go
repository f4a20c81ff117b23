package validation

import (
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid identifiers
		{"simple", "specimen1", false},
		{"single char", "a", false},
		{"uuid", "550e8400-e29b-41d4-a716-446655440000", false},
		{"file basename", "cell_07.traced", false},
		{"mixed case", "DG-granule-12", false},
		{"max length", strings128(), false},

		// Invalid identifiers
		{"empty", "", true},
		{"path traversal", "../etc/passwd", true},
		{"key smuggling", "a/result/b", true},
		{"null byte", "abc\x00def", true},
		{"newline", "abc\ndef", true},
		{"spaces", "cell 07", true},
		{"starts with dot", ".hidden", true},
		{"starts with hyphen", "-flag", true},
		{"too long", strings128() + "x", true},
		{"unicode", "cellé", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifier(tt.id)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifier(%q) error = %v, wantErr %v", tt.id, err, tt.wantErr)
			}
		})
	}
}

func strings128() string {
	s := make([]byte, 128)
	for i := range s {
		s[i] = 'a'
	}
	return string(s)
}

func TestValidateIdentifiers(t *testing.T) {
	tests := []struct {
		name    string
		ids     []string
		wantErr bool
	}{
		{"all valid", []string{"a", "b-1", "c.2"}, false},
		{"one invalid", []string{"a", "bad id", "c"}, true},
		{"all invalid", []string{"", " "}, true},
		{"empty slice", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateIdentifiers(tt.ids)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateIdentifiers(%v) error = %v, wantErr %v", tt.ids, err, tt.wantErr)
			}
		})
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	got, err := SanitizeIdentifier("  cell-07  ")
	if err != nil {
		t.Fatalf("SanitizeIdentifier returned error: %v", err)
	}
	if got != "cell-07" {
		t.Errorf("SanitizeIdentifier = %q, want %q", got, "cell-07")
	}

	if _, err := SanitizeIdentifier("   "); err == nil {
		t.Error("SanitizeIdentifier accepted whitespace-only input")
	}
}
