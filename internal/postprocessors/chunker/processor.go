// Package chunker splits page content into overlapping chunks for embedding.
package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
	"github.com/custodia-labs/wikiscope/internal/core/ports/driven"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

var (
	_ driven.Chunker = (*Processor)(nil)
	_ driven.Chunker = (*Fixed)(nil)
)

// Processor splits markdown pages at heading boundaries, then packs whole
// sentences into chunks of at most chunkSize characters. Each chunk records
// the headings above it.
type Processor struct {
	chunkSize int
	overlap   int
}

// Option configures a chunker.
type Option func(*config)

type config struct {
	chunkSize int
	overlap   int
}

// WithChunkSize sets the chunk size in characters.
func WithChunkSize(size int) Option {
	return func(c *config) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithOverlap sets the overlap between chunks in characters.
func WithOverlap(overlap int) Option {
	return func(c *config) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

func buildConfig(opts []Option) config {
	c := config{chunkSize: DefaultChunkSize, overlap: DefaultChunkOverlap}
	for _, opt := range opts {
		opt(&c)
	}
	// Ensure overlap doesn't exceed chunk size
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 4
	}
	return c
}

// New creates a heading-aware chunker with the given options.
func New(opts ...Option) *Processor {
	c := buildConfig(opts)
	return &Processor{chunkSize: c.chunkSize, overlap: c.overlap}
}

// Name returns the chunker name.
func (p *Processor) Name() string {
	return "markdown"
}

// Chunk splits the page into chunks. Empty content produces no chunks.
func (p *Processor) Chunk(page *domain.Page) []domain.Chunk {
	if page == nil || strings.TrimSpace(page.Content) == "" {
		return nil
	}

	var chunks []domain.Chunk
	for _, sec := range splitSections(page.Content) {
		for _, text := range p.pack(splitSentences(sec.body)) {
			chunks = append(chunks, domain.Chunk{
				Index:       len(chunks),
				HeadingPath: sec.path,
				Content:     text,
			})
		}
	}
	return chunks
}

// pack greedily fills chunks with whole sentences. The next chunk starts with
// the trailing sentences of the previous one that fit in the overlap budget.
func (p *Processor) pack(sentences []string) []string {
	var out []string
	var current []string
	size, fresh := 0, 0

	flush := func() {
		if fresh == 0 {
			return
		}
		out = append(out, strings.Join(current, " "))
		fresh = 0

		var carry []string
		carried := 0
		for i := len(current) - 1; i >= 0; i-- {
			n := runeLen(current[i]) + 1
			if carried+n > p.overlap {
				break
			}
			carry = append([]string{current[i]}, carry...)
			carried += n
		}
		current, size = carry, carried
	}

	for _, s := range sentences {
		n := runeLen(s)
		if n > p.chunkSize {
			flush()
			out = append(out, splitFixed(s, p.chunkSize, p.overlap)...)
			current, size = nil, 0
			continue
		}
		if size+n > p.chunkSize {
			flush()
			// Drop carried overlap that would push this sentence over the limit
			for len(current) > 0 && size+n > p.chunkSize {
				size -= runeLen(current[0]) + 1
				current = current[1:]
			}
		}
		current = append(current, s)
		size += n + 1
		fresh++
	}
	flush()
	return out
}

type section struct {
	path []string
	body string
}

// splitSections cuts markdown at ATX headings outside code fences.
func splitSections(content string) []section {
	var sections []section
	var stack []string
	var levels []int
	var body strings.Builder
	inFence := false

	emit := func() {
		if text := strings.TrimSpace(body.String()); text != "" {
			path := append([]string(nil), stack...)
			sections = append(sections, section{path: path, body: text})
		}
		body.Reset()
	}

	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence {
			if level, title, ok := parseHeading(trimmed); ok {
				emit()
				for len(levels) > 0 && levels[len(levels)-1] >= level {
					levels = levels[:len(levels)-1]
					stack = stack[:len(stack)-1]
				}
				levels = append(levels, level)
				stack = append(stack, title)
				continue
			}
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	emit()
	return sections
}

func parseHeading(line string) (int, string, bool) {
	level := 0
	for level < len(line) && line[level] == '#' {
		level++
	}
	if level == 0 || level > 6 || level >= len(line) || line[level] != ' ' {
		return 0, "", false
	}
	title := strings.TrimSpace(strings.TrimRight(line[level:], "#"))
	if title == "" {
		return 0, "", false
	}
	return level, title, true
}

// splitSentences breaks text at sentence ends and blank lines.
func splitSentences(text string) []string {
	var out []string
	for _, para := range strings.Split(text, "\n\n") {
		para = strings.Join(strings.Fields(para), " ")
		start := 0
		for i := 0; i < len(para); i++ {
			c := para[i]
			if (c == '.' || c == '!' || c == '?') && (i+1 == len(para) || para[i+1] == ' ') {
				if s := strings.TrimSpace(para[start : i+1]); s != "" {
					out = append(out, s)
				}
				start = i + 1
			}
		}
		if s := strings.TrimSpace(para[start:]); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// splitFixed cuts text into windows of size runes advancing by size-overlap.
func splitFixed(text string, size, overlap int) []string {
	runes := []rune(text)
	step := size - overlap
	if step <= 0 {
		step = size
	}
	var out []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}

// Fixed splits content into fixed-size character windows, ignoring
// document structure.
type Fixed struct {
	chunkSize int
	overlap   int
}

// NewFixed creates a fixed-window chunker with the given options.
func NewFixed(opts ...Option) *Fixed {
	c := buildConfig(opts)
	return &Fixed{chunkSize: c.chunkSize, overlap: c.overlap}
}

// Name returns the chunker name.
func (f *Fixed) Name() string {
	return "fixed"
}

// Chunk splits the page content into overlapping windows.
func (f *Fixed) Chunk(page *domain.Page) []domain.Chunk {
	if page == nil || strings.TrimSpace(page.Content) == "" {
		return nil
	}
	windows := splitFixed(page.Content, f.chunkSize, f.overlap)
	chunks := make([]domain.Chunk, len(windows))
	for i, w := range windows {
		chunks[i] = domain.Chunk{Index: i, Content: w}
	}
	return chunks
}
