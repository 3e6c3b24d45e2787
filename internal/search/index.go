// Package search provides the FAQ knowledge base used by the support agent:
// a deterministic, concurrency-safe, in-memory index built from a Markdown
// document of questions and answers.
//
// Each "#"-heading starts an entry; the heading is the entry title and the
// text below it (until the next heading) is the answer. Documents without
// headings fall back to one entry per paragraph.
//
// Scoring uses Jaccard similarity between the query token set and each
// entry's token set: score = |Q ∩ E| / |Q ∪ E|. Title tokens are part of the
// entry set, so a query that restates the question ranks that entry first.
// The index is read-only after construction.
package search

import (
	"bytes"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"
)

// Result is a ranked FAQ entry with its similarity score.
type Result struct {
	Title   string  `json:"title,omitempty"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
}

// Entry is one question/answer pair.
type Entry struct {
	Title string
	Body  string
}

// Index is the minimal interface implemented by all search indices.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// DefaultStopwords are common English function words dropped from queries
// and entries.
var DefaultStopwords = []string{
	"a", "an", "and", "are", "can", "do", "does", "for", "how", "i", "is",
	"it", "my", "of", "on", "or", "the", "to", "what", "when", "where", "you",
}

// ----------------------------------------------------------------------------
// Options

type Option func(*config)

type config struct {
	minBodyRunes int
	stopwords    map[string]struct{}
	maxDocs      int
}

func defaultConfig() config {
	return config{
		minBodyRunes: 10,
		stopwords:    nil,
		maxDocs:      0,
	}
}

// WithMinBodyRunes drops entries whose body is shorter than n runes.
func WithMinBodyRunes(n int) Option {
	return func(c *config) {
		if n >= 0 {
			c.minBodyRunes = n
		}
	}
}

func WithStopwords(words []string) Option {
	return func(c *config) {
		m := make(map[string]struct{}, len(words))
		for _, w := range words {
			w = strings.ToLower(strings.TrimSpace(w))
			if w != "" {
				m[w] = struct{}{}
			}
		}
		if len(m) > 0 {
			c.stopwords = m
		}
	}
}

func WithMaxDocs(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.maxDocs = n
		}
	}
}

// ----------------------------------------------------------------------------
// Implementation

type doc struct {
	title  string
	text   string
	tokens map[string]struct{}
	tLen   int
}

type index struct {
	cfg  config
	docs []doc
}

// LoadFAQ reads the FAQ Markdown at path, flattens tables, and indexes it
// with DefaultStopwords.
func LoadFAQ(path string, opts ...Option) (Index, error) {
	b, err := PrepareMarkdownInMemory(path)
	if err != nil {
		return &index{cfg: defaultConfig()}, err
	}
	opts = append([]Option{WithStopwords(DefaultStopwords)}, opts...)
	return NewIndexFromReader(bytes.NewReader(b), opts...)
}

// NewIndexFromMarkdown builds an Index from the raw Markdown at path.
func NewIndexFromMarkdown(path string, opts ...Option) (Index, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return &index{cfg: defaultConfig(), docs: nil}, err
	}
	return NewIndexFromReader(bytes.NewReader(b), opts...)
}

// NewIndexFromReader builds an Index from UTF-8 Markdown provided by r.
func NewIndexFromReader(r io.Reader, opts ...Option) (Index, error) {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	all, err := io.ReadAll(r)
	if err != nil {
		return &index{cfg: cfg, docs: nil}, err
	}
	return buildIndex(splitEntries(string(all)), cfg), nil
}

// NewIndexFromEntries builds an Index directly from entries.
func NewIndexFromEntries(entries []Entry, opts ...Option) Index {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return buildIndex(entries, cfg)
}

func buildIndex(entries []Entry, cfg config) *index {
	docs := make([]doc, 0, len(entries))
	for _, e := range entries {
		title := strings.TrimSpace(normalizeWhitespace(e.Title))
		body := strings.TrimSpace(normalizeWhitespace(e.Body))
		if body == "" {
			continue
		}
		if cfg.minBodyRunes > 0 && utf8.RuneCountInString(body) < cfg.minBodyRunes {
			continue
		}
		toks := tokenize(title+" "+body, cfg.stopwords)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, doc{title: title, text: body, tokens: toks, tLen: len(toks)})
		if cfg.maxDocs > 0 && len(docs) >= cfg.maxDocs {
			break
		}
	}
	return &index{cfg: cfg, docs: docs}
}

// Len reports the number of indexed entries.
func (i *index) Len() int { return len(i.docs) }

// TopK returns up to k best-matching entries by Jaccard similarity.
func (i *index) TopK(q string, k int) []Result {
	if len(i.docs) == 0 || strings.TrimSpace(q) == "" {
		return nil
	}
	if k <= 0 {
		k = 3
	}
	qTokens := tokenize(q, i.cfg.stopwords)
	if len(qTokens) == 0 {
		return nil
	}
	qLen := len(qTokens)

	type scored struct {
		d        *doc
		score    float64
		lenRunes int
	}

	buf := make([]scored, 0, min(k*4, len(i.docs)))
	for n := range i.docs {
		d := &i.docs[n]
		over := overlap(qTokens, d.tokens)
		if over == 0 {
			continue
		}
		score := float64(over) / float64(qLen+d.tLen-over)
		buf = append(buf, scored{d: d, score: score, lenRunes: utf8.RuneCountInString(d.text)})
	}
	if len(buf) == 0 {
		return nil
	}

	sort.SliceStable(buf, func(a, b int) bool {
		if buf[a].score != buf[b].score {
			return buf[a].score > buf[b].score
		}
		if buf[a].lenRunes != buf[b].lenRunes {
			return buf[a].lenRunes < buf[b].lenRunes
		}
		return buf[a].d.text < buf[b].d.text
	})

	if k > len(buf) {
		k = len(buf)
	}
	out := make([]Result, k)
	for n := 0; n < k; n++ {
		out[n] = Result{Title: buf[n].d.title, Snippet: buf[n].d.text, Score: buf[n].score}
	}
	return out
}

// ----------------------------------------------------------------------------
// Helpers

var (
	wordRE      = regexp.MustCompile(`\p{L}+\p{N}*`)
	headingRE   = regexp.MustCompile(`^#{1,6}\s+(.+?)\s*#*$`)
	paraSplitRE = regexp.MustCompile(`\n\s*\n`)
)

func tokenize(s string, stop map[string]struct{}) map[string]struct{} {
	words := wordRE.FindAllString(strings.ToLower(s), -1)
	if len(words) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(words))
	for _, w := range words {
		if _, skip := stop[w]; skip {
			continue
		}
		out[w] = struct{}{}
	}
	return out
}

func overlap(a, b map[string]struct{}) int {
	if len(a) > len(b) {
		a, b = b, a
	}
	n := 0
	for k := range a {
		if _, ok := b[k]; ok {
			n++
		}
	}
	return n
}

// normalizeWhitespace collapses runs of blanks (including newlines) into a
// single space.
func normalizeWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// splitEntries turns Markdown into entries: one per heading section, or one
// per paragraph when the document has no headings.
func splitEntries(md string) []Entry {
	lines := strings.Split(strings.ReplaceAll(md, "\r\n", "\n"), "\n")

	var (
		out     []Entry
		cur     *Entry
		body    strings.Builder
		preface strings.Builder
	)
	flush := func() {
		if cur != nil {
			cur.Body = body.String()
			out = append(out, *cur)
		}
		body.Reset()
	}
	for _, ln := range lines {
		if m := headingRE.FindStringSubmatch(strings.TrimSpace(ln)); m != nil {
			flush()
			cur = &Entry{Title: m[1]}
			continue
		}
		if cur == nil {
			preface.WriteString(ln)
			preface.WriteByte('\n')
			continue
		}
		body.WriteString(ln)
		body.WriteByte('\n')
	}
	flush()

	if len(out) == 0 {
		for _, p := range paraSplitRE.Split(preface.String(), -1) {
			if t := strings.TrimSpace(p); t != "" {
				out = append(out, Entry{Body: t})
			}
		}
	}
	return out
}
