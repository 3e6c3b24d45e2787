package search

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// ---------- tiny io.Reader that always errors ----------
type boomReader struct{}

func (boomReader) Read(_ []byte) (int, error) { return 0, errors.New("boom") }

// ---------- helpers ----------
func writeIndexTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return p
}

const faqDoc = `# Store FAQ

## How long does shipping take?
Standard shipping takes 3 to 5 business days. Express shipping arrives in 1 to 2 days.

## What is your return policy?
You can return any item within 30 days of delivery for a full refund.
Returned items must be unused.

## Which payment methods do you accept?
We accept card, UPI and net banking payments.
`

func TestOptionsAndDefaults(t *testing.T) {
	def := defaultConfig()
	if def.minBodyRunes != 10 || def.stopwords != nil || def.maxDocs != 0 {
		t.Fatalf("defaultConfig unexpected: %#v", def)
	}

	cfg := def
	WithMinBodyRunes(3)(&cfg)
	if cfg.minBodyRunes != 3 {
		t.Fatalf("WithMinBodyRunes failed: %d", cfg.minBodyRunes)
	}
	WithMinBodyRunes(-5)(&cfg) // no-op
	if cfg.minBodyRunes != 3 {
		t.Fatalf("negative minBodyRunes should be ignored")
	}

	WithStopwords([]string{"  The ", "", "An"})(&cfg)
	if _, ok := cfg.stopwords["the"]; !ok {
		t.Fatalf("WithStopwords failed (missing 'the'): %#v", cfg.stopwords)
	}
	cfg2 := def
	WithStopwords(nil)(&cfg2)
	if cfg2.stopwords != nil {
		t.Fatalf("empty stopwords should remain nil")
	}

	WithMaxDocs(2)(&cfg)
	WithMaxDocs(0)(&cfg) // no-op
	if cfg.maxDocs != 2 {
		t.Fatalf("WithMaxDocs failed: %d", cfg.maxDocs)
	}
}

func TestSplitEntries_HeadingsAndParagraphFallback(t *testing.T) {
	entries := splitEntries(faqDoc)
	// "# Store FAQ" has an empty body and is kept here; buildIndex drops it.
	if len(entries) != 4 {
		t.Fatalf("expected 4 sections, got %d: %#v", len(entries), entries)
	}
	if entries[2].Title != "What is your return policy?" {
		t.Fatalf("unexpected title: %q", entries[2].Title)
	}

	plain := splitEntries("First paragraph here.\n\nSecond paragraph here.")
	if len(plain) != 2 || plain[0].Title != "" || plain[1].Body != "Second paragraph here." {
		t.Fatalf("paragraph fallback failed: %#v", plain)
	}
}

func TestLoadFAQ_RanksMatchingQuestionFirst(t *testing.T) {
	p := writeIndexTemp(t, t.TempDir(), "faq.md", faqDoc)

	idx, err := LoadFAQ(p)
	if err != nil {
		t.Fatalf("LoadFAQ: %v", err)
	}
	if idx.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", idx.Len())
	}

	res := idx.TopK("what is the return policy", 2)
	if len(res) == 0 || res[0].Title != "What is your return policy?" {
		t.Fatalf("unexpected ranking: %#v", res)
	}
	if res[0].Score <= 0 || res[0].Score > 1 {
		t.Fatalf("score out of range: %v", res[0].Score)
	}

	if _, err := LoadFAQ(filepath.Join(t.TempDir(), "missing.md")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestNewIndexFromMarkdown_SuccessAndError(t *testing.T) {
	dir := t.TempDir()
	p := writeIndexTemp(t, dir, "doc.md", "Alpha beta gamma.\n\nDelta epsilon zeta.")

	idx, err := NewIndexFromMarkdown(p, WithMinBodyRunes(0))
	if err != nil {
		t.Fatalf("NewIndexFromMarkdown error: %v", err)
	}
	if res := idx.TopK("alpha zeta", 5); len(res) != 2 {
		t.Fatalf("expected 2 results, got %#v", res)
	}

	if _, err := NewIndexFromMarkdown(filepath.Join(dir, "missing.md")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestNewIndexFromReader_ErrorAndSuccess(t *testing.T) {
	if _, err := NewIndexFromReader(boomReader{}); err == nil {
		t.Fatalf("expected read error")
	}
	idx, err := NewIndexFromReader(bytes.NewBufferString("Para one.\n\nPara two two."), WithMinBodyRunes(0))
	if err != nil {
		t.Fatalf("NewIndexFromReader success err: %v", err)
	}
	if out := idx.TopK("two", 3); len(out) != 1 {
		t.Fatalf("expected one result from reader-built index, got %#v", out)
	}
}

func TestBuildIndex_FiltersAndMaxDocs(t *testing.T) {
	entries := []Entry{
		{Title: "empty"},                 // skipped: no body
		{Body: " \t \r  "},               // skipped
		{Body: "short"},                  // filtered by minBodyRunes
		{Body: "The and a and the a"},    // all stopwords -> skipped
		{Title: "Keep", Body: "Keep This Entry"},
		{Body: "Another entry here with words"},
	}
	idx1 := NewIndexFromEntries(entries, WithMinBodyRunes(6), WithStopwords([]string{"the", "and", "a"}))
	if idx1.Len() != 2 {
		t.Fatalf("expected 2 docs, got %d", idx1.Len())
	}

	idx2 := NewIndexFromEntries(entries, WithMinBodyRunes(0), WithMaxDocs(1))
	if idx2.Len() != 1 {
		t.Fatalf("maxDocs cap failed, got %d", idx2.Len())
	}
}

func TestTopK_BranchesAndSorting(t *testing.T) {
	empty := NewIndexFromEntries(nil)
	if res := empty.TopK("anything", 3); res != nil {
		t.Fatalf("empty index should return nil")
	}

	idx := NewIndexFromEntries([]Entry{
		{Body: "apple banana"},
		{Body: "apple banana cherry"},
		{Body: "kiwi"},
	}, WithMinBodyRunes(0), WithStopwords([]string{"the"}))

	if res := idx.TopK("   ", 3); res != nil {
		t.Fatalf("blank query should return nil")
	}
	if res := idx.TopK("the", 3); res != nil {
		t.Fatalf("stopword-only query should return nil")
	}
	if res := idx.TopK("mango", 3); res != nil {
		t.Fatalf("no overlap should return nil")
	}

	res := idx.TopK("apple banana", 0) // k defaults to 3
	if len(res) != 2 {
		t.Fatalf("expected 2 results, got %#v", res)
	}
	if res[0].Snippet != "apple banana" || res[0].Score != 1 {
		t.Fatalf("exact match should rank first: %#v", res)
	}
	if res[1].Score >= res[0].Score {
		t.Fatalf("results not sorted by score: %#v", res)
	}
}

func TestTopK_TieBreaksByLengthThenText(t *testing.T) {
	idx := NewIndexFromEntries([]Entry{
		{Body: "refund zz"},
		{Body: "refund yy"},
		{Body: "refund longer"},
	}, WithMinBodyRunes(0))

	res := idx.TopK("refund", 3)
	if len(res) != 3 {
		t.Fatalf("expected 3 results, got %d", len(res))
	}
	// All share score 1/2; shorter snippets first, then lexical.
	if res[0].Snippet != "refund yy" || res[1].Snippet != "refund zz" || res[2].Snippet != "refund longer" {
		t.Fatalf("unexpected tie-break order: %#v", res)
	}
}

func TestHelpers_TokenizeOverlapWhitespace(t *testing.T) {
	toks := tokenize("Hello, WORLD! abc123 hello", nil)
	for _, w := range []string{"hello", "world", "abc123"} {
		if _, ok := toks[w]; !ok {
			t.Fatalf("missing token %q in %#v", w, toks)
		}
	}
	if tokenize("!!! ...", nil) != nil {
		t.Fatalf("punctuation-only input should yield nil")
	}
	a := map[string]struct{}{"x": {}, "y": {}, "z": {}}
	b := map[string]struct{}{"y": {}}
	if overlap(a, b) != 1 || overlap(b, a) != 1 {
		t.Fatalf("overlap mismatch")
	}
	if got := normalizeWhitespace("  a \t b\r\n c  "); got != "a b c" {
		t.Fatalf("normalizeWhitespace = %q", got)
	}
}
