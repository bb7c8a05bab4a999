package text

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func (n *Normalizer) cached(content string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	_, ok := n.cache[content]
	return ok
}

func TestValidate(t *testing.T) {
	n := NewNormalizer(0, 0)
	tests := []struct {
		name    string
		in      string
		want    string
		wantErr bool
	}{
		{"plain", "hello", "hello", false},
		{"trimmed", "  hi there \n", "hi there", false},
		{"empty", "", "", true},
		{"whitespace only", " \t\n ", "", true},
		{"invalid utf8", "\xff\xfe", "", true},
		{"at limit", strings.Repeat("a", 4000), strings.Repeat("a", 4000), false},
		{"at limit after trim", "  " + strings.Repeat("a", 4000) + "  ", strings.Repeat("a", 4000), false},
		{"over limit", strings.Repeat("a", 4001), "", true},
		{"multibyte at limit", strings.Repeat("é", 4000), strings.Repeat("é", 4000), false},
	}

	for _, tt := range tests {
		got, err := n.Validate(tt.in)
		if tt.wantErr {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				t.Errorf("%s: Validate() err = %v, want *ValidationError", tt.name, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: Validate() unexpected error: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: Validate() = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestNormalize(t *testing.T) {
	n := NewNormalizer(0, 0)
	tests := []struct {
		in, want string
	}{
		{"hello", "hello"},
		{"  hello   world  ", "hello world"},
		{"line one\n\nline two", "line one line two"},
		{"tabs\t\tand nbsp", "tabs and nbsp"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := n.Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer(0, 0)
	inputs := []string{
		"a", "  a  b  ", "\n\tmixed \r\n whitespace\t", "already normal", "   ", "x  y z",
	}
	for _, in := range inputs {
		once := n.Normalize(in)
		if twice := n.Normalize(once); twice != once {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestPreprocess(t *testing.T) {
	n := NewNormalizer(0, 0)
	got, err := n.Preprocess("  see   you\tsoon ")
	if err != nil {
		t.Fatal(err)
	}
	if got != "see you soon" {
		t.Errorf("Preprocess() = %q, want %q", got, "see you soon")
	}

	if _, err := n.Preprocess("   "); err == nil {
		t.Error("Preprocess of blank content should fail")
	}
	if n.CacheLen() != 1 {
		t.Errorf("failed Preprocess should not populate the cache, CacheLen() = %d", n.CacheLen())
	}
}

func TestCacheEvictsOldestInserted(t *testing.T) {
	n := NewNormalizer(3, 0)
	for i := 0; i < 3; i++ {
		n.Normalize(fmt.Sprintf("msg %d", i))
	}
	// A hit does not refresh the entry's position.
	n.Normalize("msg 0")
	n.Normalize("msg 3")

	if n.CacheLen() != 3 {
		t.Fatalf("CacheLen() = %d, want 3", n.CacheLen())
	}
	if n.cached("msg 0") {
		t.Error("oldest inserted entry should have been evicted")
	}
	for _, k := range []string{"msg 1", "msg 2", "msg 3"} {
		if !n.cached(k) {
			t.Errorf("%q should still be cached", k)
		}
	}
}
