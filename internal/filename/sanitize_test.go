package filename

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitize(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"empty", "", "Unknown"},
		{"whitespace only", " \t\n", "Unknown"},
		{"valid name", "valid_file_name.txt", "valid_file_name.txt"},
		{"path separators", "a/b\\c", "a_b_c"},
		{"traversal", "../../etc", ".._.._etc"},
		{"dots only", "..", "Unknown"},
		{"reserved chars", `x<y>:"z"|?*`, "x_y___z____"},
		{"control chars", "a\x00b\x1fc", "a_b_c"},
		{"reserved device", "con", "_con"},
		{"reserved device upper", "LPT1", "_LPT1"},
		{"not reserved", "CONSOLE", "CONSOLE"},
		{"unicode kept", "Crème brûlée", "Crème brûlée"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Sanitize(tt.input); got != tt.want {
				t.Errorf("Sanitize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestSanitizeLengthCap(t *testing.T) {
	long := strings.Repeat("é", 200) // 400 bytes
	got := Sanitize(long)

	if len(got) > MaxLength {
		t.Fatalf("len(Sanitize) = %d, want <= %d", len(got), MaxLength)
	}
	if !utf8.ValidString(got) {
		t.Errorf("Sanitize split a rune: %q", got)
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		"report.pdf",
		"CON",
		"_CON",
		"a/b/c",
		"...",
		". .",
		"\x7f",
		strings.Repeat("x", 300),
		strings.Repeat("€", 120),
		"nul.txt",
		"Brand: \"Special\" <Edition>",
	}

	for _, in := range inputs {
		once := Sanitize(in)
		twice := Sanitize(once)
		if once != twice {
			t.Errorf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
		if once == "" {
			t.Errorf("Sanitize(%q) returned empty string", in)
		}
	}
}
