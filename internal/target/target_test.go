package target

import "testing"

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"plain https", "https://example.com/article", "https://example.com/article", true},
		{"plain http", "http://example.com/a", "http://example.com/a", true},
		{"surrounding whitespace", "  https://example.com/x \n", "https://example.com/x", true},
		{"tracking params kept", "https://a.example/x?utm_source=feed", "https://a.example/x?utm_source=feed", true},
		{"empty", "", "", false},
		{"whitespace only", "   ", "", false},
		{"no scheme", "example.com/article", "", false},
		{"wrong scheme", "ftp://example.com/file", "", false},
		{"scheme only", "https://", "", false},
		{"not a url", "read this later", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Normalize(tt.raw)
			if ok != tt.ok {
				t.Fatalf("Normalize(%q) ok = %v, want %v", tt.raw, ok, tt.ok)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestDisplayHost(t *testing.T) {
	if got := DisplayHost("https://www.example.com/deep/path"); got != "example.com" {
		t.Errorf("DisplayHost = %q, want example.com", got)
	}
	if got := DisplayHost("https://blog.example.org/x"); got != "blog.example.org" {
		t.Errorf("DisplayHost = %q, want blog.example.org", got)
	}
}
