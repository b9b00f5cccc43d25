package redis

import "testing"

func TestParseWindowString(t *testing.T) {
	tests := []struct {
		in         string
		start, end uint64
		wantErr    bool
	}{
		{"1000-1249", 1000, 1249, false},
		{"5-5", 5, 5, false},
		{"10-5", 0, 0, true},
		{"abc", 0, 0, true},
		{"1-x", 0, 0, true},
	}
	for _, tt := range tests {
		start, end, err := ParseWindowString(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseWindowString(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (start != tt.start || end != tt.end) {
			t.Errorf("ParseWindowString(%q) = %d-%d, want %d-%d", tt.in, start, end, tt.start, tt.end)
		}
	}
}
