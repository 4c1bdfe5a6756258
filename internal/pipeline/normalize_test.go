package pipeline

import "testing"

func TestNormalizeText(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"artifact characters removed", "wait| what; now", "wait what now"},
		{"newlines become spaces", "first line\nsecond line", "first line second line"},
		{"surrounding quotes trimmed", `"Hello there"`, "Hello there"},
		{"curly quotes trimmed", "“Hello there”", "Hello there"},
		{"whitespace collapsed", "too    many   spaces", "too many spaces"},
		{"single word repeat dropped", "stop stop right there", "stop right there"},
		{"phrase repeat dropped", "upside down upside down", "upside down"},
		{"repeat across sentences kept", "Run. Run.", "Run. Run."},
		{"shout token lowercased", "GET OUT of here", "get out of here"},
		{"acronym with period kept", "the U.S. team", "the U.S. team"},
		{"mixed case kept", "McCoy said so", "McCoy said so"},
		{"token with digits kept", "room B42 is locked", "room B42 is locked"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeText(tt.in); got != tt.want {
				t.Errorf("NormalizeText(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestIsJunk(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want bool
	}{
		{"empty", "", true},
		{"whitespace only", "   ", true},
		{"model apology", "I'm sorry, I cannot transcribe this image.", true},
		{"schema echo", "json", true},
		{"misheard schema echo", "Jason", true},
		{"lone punctuation", "!", true},
		{"single letter", "A", false},
		{"real dialogue", "Hello there, friend!", false},
		{"name containing jason", "Jason is here", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsJunk(tt.in); got != tt.want {
				t.Errorf("IsJunk(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripSFXPrefix(t *testing.T) {
	if got := StripSFXPrefix("SFX: boom"); got != "boom" {
		t.Errorf("StripSFXPrefix() = %q, want boom", got)
	}
	if got := StripSFXPrefix("sfx:crash"); got != "crash" {
		t.Errorf("StripSFXPrefix() = %q, want crash", got)
	}
	if got := StripSFXPrefix("FX: whoosh"); got != "whoosh" {
		t.Errorf("StripSFXPrefix() = %q, want whoosh", got)
	}
	if got := StripSFXPrefix("no prefix here"); got != "no prefix here" {
		t.Errorf("StripSFXPrefix() = %q, want unchanged", got)
	}
}
