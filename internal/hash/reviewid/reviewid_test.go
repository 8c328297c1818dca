package reviewid

import "testing"

func TestNewDeterministic(t *testing.T) {
	t.Parallel()

	a := New("https://example.com/book/x/", "reader", "2023-11-20", "great book")
	b := New("https://example.com/book/x/", "reader", "2023-11-20", "great book")
	if a != b {
		t.Fatalf("same input produced different ids: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Fatalf("expected 16-char id, got %d (%s)", len(a), a)
	}
}

func TestNewDistinguishesFields(t *testing.T) {
	t.Parallel()

	base := New("u", "a", "d", "t")
	if New("u2", "a", "d", "t") == base {
		t.Fatal("book url should change the id")
	}
	if New("u", "a2", "d", "t") == base {
		t.Fatal("author should change the id")
	}
	if New("u", "a", "d2", "t") == base {
		t.Fatal("published date should change the id")
	}
}

func TestNewIgnoresTextBeyondPrefix(t *testing.T) {
	t.Parallel()

	prefix := make([]byte, textPrefixLen)
	for i := range prefix {
		prefix[i] = 'x'
	}
	a := New("u", "a", "d", string(prefix)+" tail one")
	b := New("u", "a", "d", string(prefix)+" another tail")
	if a != b {
		t.Fatal("text beyond the prefix must not affect identity")
	}
}
