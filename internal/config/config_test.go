package config

import "testing"

func TestParseAPIKeys(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]string
	}{
		{"empty", "", map[string]string{}},
		{"single", "abc=clinic", map[string]string{"abc": "clinic"}},
		{"multiple", "abc=clinic,def=mobile", map[string]string{"abc": "clinic", "def": "mobile"}},
		{"spaces and malformed entries skipped", " abc=clinic , nope ,=x", map[string]string{"abc": "clinic"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{APIKeys: tt.raw}
			got := c.ParseAPIKeys()
			if len(got) != len(tt.want) {
				t.Fatalf("ParseAPIKeys() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("key %q = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}
