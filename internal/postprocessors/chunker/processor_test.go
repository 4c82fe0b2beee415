package chunker

import (
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/custodia-labs/wikiscope/internal/core/domain"
)

func TestNew(t *testing.T) {
	t.Run("default values", func(t *testing.T) {
		p := New()
		if p.chunkSize != DefaultChunkSize {
			t.Errorf("expected chunkSize %d, got %d", DefaultChunkSize, p.chunkSize)
		}
		if p.overlap != DefaultChunkOverlap {
			t.Errorf("expected overlap %d, got %d", DefaultChunkOverlap, p.overlap)
		}
	})

	t.Run("overlap exceeds chunk size", func(t *testing.T) {
		p := New(WithChunkSize(100), WithOverlap(150))
		if p.overlap >= p.chunkSize {
			t.Error("overlap should be reduced when it exceeds chunk size")
		}
	})

	t.Run("zero values ignored", func(t *testing.T) {
		p := New(WithChunkSize(0), WithOverlap(-1))
		if p.chunkSize != DefaultChunkSize || p.overlap != DefaultChunkOverlap {
			t.Errorf("expected defaults, got %d/%d", p.chunkSize, p.overlap)
		}
	})
}

func TestNames(t *testing.T) {
	if New().Name() != "markdown" {
		t.Errorf("unexpected name %q", New().Name())
	}
	if NewFixed().Name() != "fixed" {
		t.Errorf("unexpected name %q", NewFixed().Name())
	}
}

func TestChunk_EmptyContent(t *testing.T) {
	for _, content := range []string{"", "   \n\t"} {
		if chunks := New().Chunk(&domain.Page{Content: content}); chunks != nil {
			t.Errorf("expected no chunks for %q, got %d", content, len(chunks))
		}
	}
	if chunks := New().Chunk(nil); chunks != nil {
		t.Error("expected no chunks for nil page")
	}
}

func TestChunk_ShortPageIsOneChunk(t *testing.T) {
	page := &domain.Page{Content: "Intro to Python decorators."}

	chunks := New().Chunk(page)

	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "Intro to Python decorators." {
		t.Errorf("unexpected content %q", chunks[0].Content)
	}
	if len(chunks[0].HeadingPath) != 0 {
		t.Errorf("expected no heading path, got %v", chunks[0].HeadingPath)
	}
}

func TestChunk_HeadingPaths(t *testing.T) {
	content := `Preamble text.

# Guide
Top level.

## Install
Run the installer.

### Linux
Use the package.

## Usage
Call the API.

` + "```" + `
# not a heading
` + "```"

	chunks := New().Chunk(&domain.Page{Content: content})

	want := [][]string{
		nil,
		{"Guide"},
		{"Guide", "Install"},
		{"Guide", "Install", "Linux"},
		{"Guide", "Usage"},
	}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, c := range chunks {
		if c.Index != i {
			t.Errorf("chunk %d has index %d", i, c.Index)
		}
		if len(want[i]) == 0 && len(c.HeadingPath) == 0 {
			continue
		}
		if !reflect.DeepEqual(c.HeadingPath, want[i]) {
			t.Errorf("chunk %d: expected path %v, got %v", i, want[i], c.HeadingPath)
		}
	}
	if !strings.Contains(chunks[4].Content, "# not a heading") {
		t.Errorf("fenced heading should stay in the body, got %q", chunks[4].Content)
	}
}

func TestChunk_SplitsAtSentenceBoundaries(t *testing.T) {
	sentence := "This sentence has exactly forty chars."
	var sb strings.Builder
	for i := 0; i < 10; i++ {
		sb.WriteString(sentence)
		sb.WriteString(" ")
	}

	p := New(WithChunkSize(100), WithOverlap(45))
	chunks := p.Chunk(&domain.Page{Content: sb.String()})

	if len(chunks) < 4 {
		t.Fatalf("expected several chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if n := utf8.RuneCountInString(c.Content); n > 100 {
			t.Errorf("chunk %d exceeds size: %d", i, n)
		}
		if !strings.HasSuffix(c.Content, ".") {
			t.Errorf("chunk %d ends mid-sentence: %q", i, c.Content)
		}
		if !strings.HasPrefix(c.Content, "This") {
			t.Errorf("chunk %d starts mid-sentence: %q", i, c.Content)
		}
	}
	// Consecutive chunks share the carried sentence
	for i := 1; i < len(chunks); i++ {
		if !strings.HasPrefix(chunks[i].Content, sentence) {
			t.Errorf("chunk %d should start with overlap", i)
		}
	}
}

func TestChunk_OversizedSentenceIsHardSplit(t *testing.T) {
	long := strings.Repeat("é", 250)

	chunks := New(WithChunkSize(100), WithOverlap(20)).Chunk(&domain.Page{Content: long})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for _, c := range chunks {
		if !utf8.ValidString(c.Content) {
			t.Error("hard split produced invalid UTF-8")
		}
		if utf8.RuneCountInString(c.Content) > 100 {
			t.Error("hard split exceeds chunk size")
		}
	}
}

func TestFixed_Chunk(t *testing.T) {
	content := strings.Repeat("a", 250)

	chunks := NewFixed(WithChunkSize(100), WithOverlap(20)).Chunk(&domain.Page{Content: content})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0].Content) != 100 || len(chunks[2].Content) != 90 {
		t.Errorf("unexpected window sizes %d/%d", len(chunks[0].Content), len(chunks[2].Content))
	}
	if chunks[1].Index != 1 {
		t.Errorf("expected index 1, got %d", chunks[1].Index)
	}
}

func TestParseHeading(t *testing.T) {
	tests := []struct {
		line  string
		level int
		title string
		ok    bool
	}{
		{"# Title", 1, "Title", true},
		{"### Deep ###", 3, "Deep", true},
		{"#NoSpace", 0, "", false},
		{"####### Too deep", 0, "", false},
		{"#", 0, "", false},
		{"plain", 0, "", false},
	}
	for _, tt := range tests {
		level, title, ok := parseHeading(tt.line)
		if level != tt.level || title != tt.title || ok != tt.ok {
			t.Errorf("parseHeading(%q) = %d, %q, %v", tt.line, level, title, ok)
		}
	}
}
