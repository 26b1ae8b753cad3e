package registry

import "testing"

func TestNormalizeName(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Jan Novák", "jan novak"},
		{"jan-novak", "jan novak"},
		{"  Petr  ", "petr"},
		{"Řehoř Šťastný", "rehor stastny"},
		{"ALICE", "alice"},
		{"", ""},
	}

	for _, tc := range tests {
		if got := NormalizeName(tc.input); got != tc.expected {
			t.Errorf("NormalizeName(%q) = %q, expected %q", tc.input, got, tc.expected)
		}
	}
}
