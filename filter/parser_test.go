package filter

import (
	"testing"
)

func newState(text string) *parserState {
	return &parserState{text: text, upper: toUpperASCII(text)}
}

func toUpperASCII(s string) string {
	b := []byte(s)
	for i := range b {
		if b[i] >= 'a' && b[i] <= 'z' {
			b[i] -= 'a' - 'A'
		}
	}
	return string(b)
}

func TestNextValueWords(t *testing.T) {
	cases := []struct {
		text  string
		words []string
	}{
		{"name = 'John'", []string{"name", "=", "'John'"}},
		{"  age   >=  18 ", []string{"age", ">", "=", "18"}},
		{"city.name", []string{"city.name"}},
		{"#12:5", []string{"#12:5"}},
		{":param ? :other", []string{":param", "?", ":other"}},
		{"(a = 1 AND b = 2) OR c", []string{"(a = 1 AND b = 2)", "OR", "c"}},
		{"[1, 2, [3, 4]]", []string{"[1, 2, [3, 4]]"}},
		{"tags contains 'go'", []string{"tags", "contains", "'go'"}},
	}

	for _, tc := range cases {
		p := newState(tc.text)
		var got []string
		for {
			_, orig, ok := p.nextValue(true)
			if !ok {
				break
			}
			got = append(got, orig)
		}
		if len(got) != len(tc.words) {
			t.Fatalf("%q: expected %d words %v, got %v", tc.text, len(tc.words), tc.words, got)
		}
		for i := range got {
			if got[i] != tc.words[i] {
				t.Errorf("%q: word %d: expected %q, got %q", tc.text, i, tc.words[i], got[i])
			}
		}
	}
}

func TestNextValueQuoting(t *testing.T) {
	// Escaped quotes do not end the word; the raw text is returned and the
	// value parser decodes it later.
	p := newState(`'it\'s here' rest`)
	_, orig, ok := p.nextValue(true)
	if !ok {
		t.Fatal("expected a word")
	}
	if orig != `'it\'s here'` {
		t.Errorf("expected raw quoted word, got %q", orig)
	}

	_, orig, ok = p.nextValue(true)
	if !ok || orig != "rest" {
		t.Errorf("expected 'rest' after quoted word, got %q", orig)
	}
}

func TestNextValueTrailingBackslash(t *testing.T) {
	// An escaped backslash right before the closing quote must not keep the
	// escape state on.
	p := newState(`'dir\\' next`)
	_, orig, ok := p.nextValue(true)
	if !ok {
		t.Fatal("expected a word")
	}
	if orig != `'dir\\'` {
		t.Errorf("expected %q, got %q", `'dir\\'`, orig)
	}
	_, orig, _ = p.nextValue(true)
	if orig != "next" {
		t.Errorf("expected 'next', got %q", orig)
	}
}

func TestNextValueWordBegin(t *testing.T) {
	p := newState("abc (x = 1)")
	p.nextValue(true)
	if p.wordBegin != 0 {
		t.Errorf("expected wordBegin 0, got %d", p.wordBegin)
	}
	p.nextValue(true)
	if p.wordBegin != 4 {
		t.Errorf("expected wordBegin 4, got %d", p.wordBegin)
	}
}

func TestNextOperatorWord(t *testing.T) {
	cases := []struct {
		text string
		want string
	}{
		{">= 18", ">="},
		{"= 'x'", "="},
		{"contains 5", "CONTAINS"},
		{"containstext(false) 'a'", "CONTAINSTEXT(FALSE)"},
		{"<>3", "<>"},
	}
	for _, tc := range cases {
		p := newState(tc.text)
		got, ok := p.nextOperatorWord()
		if !ok {
			t.Fatalf("%q: expected an operator word", tc.text)
		}
		if got != tc.want {
			t.Errorf("%q: expected %q, got %q", tc.text, tc.want, got)
		}
	}
}

func TestEmbeddedText(t *testing.T) {
	inner, end, err := embeddedText("(a (b) 'c)')", 0)
	if err != nil {
		t.Fatalf("embeddedText failed: %v", err)
	}
	if inner != "a (b) 'c)'" {
		t.Errorf("expected inner text %q, got %q", "a (b) 'c)'", inner)
	}
	if end != 12 {
		t.Errorf("expected end 12, got %d", end)
	}

	if _, _, err := embeddedText("(never closed", 0); err == nil {
		t.Error("expected error for unterminated group")
	}
}

func TestSplitCollection(t *testing.T) {
	items, end, err := splitCollection("[1, 'a, b', [2, 3], f(x, y)] tail", 0)
	if err != nil {
		t.Fatalf("splitCollection failed: %v", err)
	}
	want := []string{"1", "'a, b'", "[2, 3]", "f(x, y)"}
	if len(items) != len(want) {
		t.Fatalf("expected %d items, got %v", len(want), items)
	}
	for i := range want {
		if items[i] != want[i] {
			t.Errorf("item %d: expected %q, got %q", i, want[i], items[i])
		}
	}
	if end != 28 {
		t.Errorf("expected end 28, got %d", end)
	}

	if _, _, err := splitCollection("[1, 2", 0); err == nil {
		t.Error("expected error for unterminated collection")
	}
}

func TestDecodeEncodeString(t *testing.T) {
	if got := decodeString(`a\'b\\c\nd`); got != "a'b\\c\nd" {
		t.Errorf("decodeString: got %q", got)
	}
	if got := encodeString(`a'b\c`); got != `a\'b\\c` {
		t.Errorf("encodeString: got %q", got)
	}
}
