package utils

import "testing"

func TestNumberSet_Contains(t *testing.T) {
	tests := []struct {
		set  string
		n    uint32
		max  uint32
		want bool
	}{
		{"1", 1, 3, true},
		{"1", 2, 3, false},
		{"1:3", 2, 3, true},
		{"2:*", 3, 3, true},
		{"2:*", 1, 3, false},
		{"*", 3, 3, true},
		{"*", 2, 3, false},
		{"1,3", 3, 5, true},
		{"1,3", 2, 5, false},
		{"*:2", 4, 4, true},
		{"1:*", 1, 0, false},
	}

	for _, tt := range tests {
		ns, err := ParseNumberSet(tt.set)
		if err != nil {
			t.Fatalf("ParseNumberSet(%q): %v", tt.set, err)
		}
		if got := ns.Contains(tt.n, tt.max); got != tt.want {
			t.Errorf("%q contains %d (max %d): expected %v, got %v", tt.set, tt.n, tt.max, tt.want, got)
		}
	}
}

func TestParseNumberSet_Invalid(t *testing.T) {
	for _, s := range []string{"", "a", "1:b"} {
		if _, err := ParseNumberSet(s); err == nil {
			t.Errorf("Expected error for %q", s)
		}
	}
}
