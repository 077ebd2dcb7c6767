package text

import (
	"errors"
	"strings"
	"unicode/utf8"
)

var (
	ErrInvalidSize    = errors.New("chunk size must be positive")
	ErrInvalidOverlap = errors.New("chunk overlap must be >= 0 and smaller than chunk size")
)

// Measure reports the length of s in the chunker's unit (runes or tokens).
type Measure func(s string) int

// Runes measures text in characters.
func Runes(s string) int { return utf8.RuneCountInString(s) }

// Chunk is one passage produced by Split. The first Overlap bytes of Text repeat
// the end of the previous chunk; Text[Overlap:] is new content.
type Chunk struct {
	Text    string
	Overlap int
}

// Body returns the chunk without the prefix copied from its predecessor.
func (c Chunk) Body() string { return c.Text[c.Overlap:] }

type Chunker struct {
	size    int
	overlap int
	measure Measure
}

func NewChunker(size, overlap int, measure Measure) (*Chunker, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	if overlap < 0 || overlap >= size {
		return nil, ErrInvalidOverlap
	}
	if measure == nil {
		measure = Runes
	}
	return &Chunker{size: size, overlap: overlap, measure: measure}, nil
}

// Measure reports the length of s in the chunker's unit.
func (c *Chunker) Measure(s string) int { return c.measure(s) }

// Split chunks text measured in characters.
func Split(text string, size, overlap int) ([]Chunk, error) {
	c, err := NewChunker(size, overlap, Runes)
	if err != nil {
		return nil, err
	}
	return c.Split(text), nil
}

// Split packs whole sentences into chunks of at most size units. Every chunk after
// the first is seeded with up to overlap units taken from the end of the previous
// chunk. A sentence longer than size is emitted alone, unseeded.
//
// Concatenating Body() of all chunks reproduces text byte for byte.
func (c *Chunker) Split(text string) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if c.measure(text) <= c.size {
		return []Chunk{{Text: text}}
	}

	var chunks []Chunk
	var prefix, body string

	flush := func() {
		chunks = append(chunks, Chunk{Text: prefix + body, Overlap: len(prefix)})
		prefix, body = "", ""
	}

	for _, s := range Sentences(text) {
		if body != "" && c.measure(prefix+body+s) <= c.size {
			body += s
			continue
		}
		if body != "" {
			flush()
		}
		if len(chunks) > 0 {
			prefix = c.seed(chunks[len(chunks)-1].Text, s)
		}
		body = s
	}
	if body != "" {
		flush()
	}
	return chunks
}

// seed returns the longest suffix of prev that fits within overlap and still
// leaves room for next inside size.
func (c *Chunker) seed(prev, next string) string {
	if c.overlap == 0 || c.measure(next) > c.size {
		return ""
	}

	// Byte offsets of rune starts, so suffixes never split a character.
	starts := make([]int, 0, len(prev))
	for i := range prev {
		starts = append(starts, i)
	}

	fits := func(n int) bool {
		if n == 0 {
			return true
		}
		tail := prev[starts[len(starts)-n]:]
		return c.measure(tail) <= c.overlap && c.measure(tail+next) <= c.size
	}

	lo, hi := 0, len(starts)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if fits(mid) {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return ""
	}
	return prev[starts[len(starts)-lo]:]
}

// Sentences segments text at sentence terminators (. ! ? plus closing quotes or
// brackets) followed by whitespace, and at blank lines. The whitespace after a
// boundary stays with the sentence before it, so the segments concatenate back
// to text exactly.
func Sentences(text string) []string {
	var out []string
	start := 0
	i := 0
	for i < len(text) {
		j, ok := boundaryAt(text, i)
		if !ok {
			i++
			continue
		}
		for j < len(text) && isSpace(text[j]) {
			j++
		}
		if j < len(text) && strings.TrimSpace(text[start:j]) != "" {
			out = append(out, text[start:j])
			start = j
		}
		if j == i {
			j++
		}
		i = j
	}
	if start < len(text) {
		out = append(out, text[start:])
	}
	return out
}

// boundaryAt reports whether a sentence ends at byte i. The returned index is
// where the trailing whitespace run begins.
func boundaryAt(text string, i int) (int, bool) {
	switch text[i] {
	case '.', '!', '?':
		j := i + 1
		for j < len(text) && isCloser(text[j]) {
			j++
		}
		return j, j < len(text) && isSpace(text[j])
	case '\n':
		k := i + 1
		for k < len(text) && (text[k] == ' ' || text[k] == '\t' || text[k] == '\r') {
			k++
		}
		return i, k < len(text) && text[k] == '\n'
	}
	return 0, false
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\n' || b == '\t' || b == '\r' || b == '\f' || b == '\v'
}

func isCloser(b byte) bool {
	return b == '"' || b == '\'' || b == ')' || b == ']'
}
