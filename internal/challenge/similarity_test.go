package challenge

import "testing"

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b    string
		min     float64
		max     float64
		accept  bool
	}{
		{"adjame", "adjame", 1, 1, true},
		{"", "", 1, 1, true},
		{"", "abc", 0, 0, false},
		{"marche d adjame", "adjame", 0.9, 1, true},
		{"kouassi", "kwasi", 0.5, 0.6, false},
		{"abidjan", "abijan", 0.85, 0.86, true},
		{"yopougon", "cocody", 0, 0.3, false},
	}
	for _, tt := range tests {
		got := Similarity(tt.a, tt.b)
		if got < tt.min || got > tt.max {
			t.Errorf("Similarity(%q, %q) = %v, want in [%v, %v]", tt.a, tt.b, got, tt.min, tt.max)
		}
		if (got >= AcceptThreshold) != tt.accept {
			t.Errorf("Similarity(%q, %q) = %v, accept = %v", tt.a, tt.b, got, tt.accept)
		}
	}
}

func TestSimilarity_Symmetric(t *testing.T) {
	pairs := [][2]string{{"kouadio", "kouame"}, {"ɛɛn", "een"}, {"treichville", "treich"}, {"a", ""}}
	for _, p := range pairs {
		if Similarity(p[0], p[1]) != Similarity(p[1], p[0]) {
			t.Errorf("Similarity not symmetric for %q/%q", p[0], p[1])
		}
	}
}
