package language

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"fr", "fr", true},
		{" FR-ci ", "fr", true},
		{"en_GB", "en", true},
		{"dyu", "dyu", true},
		{"bci", "bci", true},
		{"de", "de", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got, ok := Parse(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Parse(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestAllSupported(t *testing.T) {
	for _, c := range All() {
		if !Supported(c) {
			t.Errorf("Supported(%q) = false", c)
		}
	}
}
