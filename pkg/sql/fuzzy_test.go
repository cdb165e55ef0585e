package sql

import "testing"

func TestRatio(t *testing.T) {
	tests := []struct {
		name string
		s1   string
		s2   string
		want int
	}{
		{"identical", "orders", "orders", 100},
		{"one insertion", "ordrs", "orders", 83},
		{"dropped vowel", "totl", "total", 80},
		{"close column", "custmers", "customers", 88},
		{"unrelated", "widgetz", "orders", 28},
		{"empty against value", "", "orders", 0},
		{"both empty", "", "", 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Ratio(tt.s1, tt.s2); got != tt.want {
				t.Errorf("Ratio(%q, %q) = %d, want %d", tt.s1, tt.s2, got, tt.want)
			}
		})
	}
}

func TestRatioIsSymmetric(t *testing.T) {
	pairs := [][2]string{
		{"ordrs", "orders"},
		{"totl", "total"},
		{"a", "abcdef"},
	}
	for _, p := range pairs {
		if ab, ba := Ratio(p[0], p[1]), Ratio(p[1], p[0]); ab != ba {
			t.Errorf("Ratio(%q, %q) = %d but Ratio(%q, %q) = %d", p[0], p[1], ab, p[1], p[0], ba)
		}
	}
}

func TestEditDistance(t *testing.T) {
	tests := []struct {
		s1   string
		s2   string
		want int
	}{
		{"", "", 0},
		{"abc", "", 3},
		{"", "abc", 3},
		{"kitten", "sitting", 3},
		{"ordrs", "orders", 1},
	}

	for _, tt := range tests {
		if got := editDistance(tt.s1, tt.s2); got != tt.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", tt.s1, tt.s2, got, tt.want)
		}
	}
}
