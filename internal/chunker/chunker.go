// Package chunker splits long text into semantically coherent, overlapping
// passages and builds parent/child chunk hierarchies for context recovery.
package chunker

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	defaultChunkSize    = 500
	defaultChunkOverlap = 100
	defaultMinChunkSize = 100
	defaultOverlapUnits = 2
)

var (
	paragraphRe = regexp.MustCompile(`\n\n+`)
	sentenceRe  = regexp.MustCompile(`[^.!?]+[.!?]+`)
)

// Boundary is one semantic unit (a sentence) with character offsets into the
// original text.
type Boundary struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
	End   int    `json:"end"`
}

// Chunker splits text at paragraph and sentence boundaries, falling back to
// fixed-size character windows when no boundaries exist.
type Chunker struct {
	chunkSize    int
	chunkOverlap int
	minChunkSize int
	overlapUnits int
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithChunkSize sets the target characters per chunk.
func WithChunkSize(n int) Option { return func(c *Chunker) { c.chunkSize = n } }

// WithChunkOverlap sets the character overlap for the fixed-window fallback.
func WithChunkOverlap(n int) Option { return func(c *Chunker) { c.chunkOverlap = n } }

// WithMinChunkSize sets the minimum chunk and sentence-fragment size.
func WithMinChunkSize(n int) Option { return func(c *Chunker) { c.minChunkSize = n } }

// WithOverlapUnits sets how many trailing boundary units seed the next chunk.
// The overlap is unit-count based, so its byte size varies with sentence length.
func WithOverlapUnits(n int) Option { return func(c *Chunker) { c.overlapUnits = n } }

// New creates a chunker with the given options applied over defaults.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		chunkSize:    defaultChunkSize,
		chunkOverlap: defaultChunkOverlap,
		minChunkSize: defaultMinChunkSize,
		overlapUnits: defaultOverlapUnits,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// FindSemanticBoundaries splits text on blank-line paragraph breaks, then on
// sentence-ending punctuation within each paragraph. Fragments shorter than
// the minimum chunk size are discarded.
func (c *Chunker) FindSemanticBoundaries(text string) []Boundary {
	if text == "" {
		return nil
	}

	var boundaries []Boundary
	offset := 0
	for _, para := range paragraphRe.Split(text, -1) {
		if strings.TrimSpace(para) != "" {
			sentences := sentenceRe.FindAllString(para, -1)
			if sentences == nil {
				sentences = []string{para}
			}
			for _, sentence := range sentences {
				trimmed := strings.TrimSpace(sentence)
				if len(trimmed) >= c.minChunkSize {
					boundaries = append(boundaries, Boundary{
						Text:  trimmed,
						Start: offset,
						End:   offset + len(trimmed),
					})
				}
				offset += len(sentence)
			}
		}
		offset += 2
	}
	return boundaries
}

// CreateSemanticChunks greedily accumulates boundary units into chunks of at
// most chunkSize characters, seeding each new chunk with the last overlapUnits
// boundary units of the previous one. Texts with no usable boundaries fall
// back to fixed-size character windows.
func (c *Chunker) CreateSemanticChunks(text string, meta ChunkMeta) []*Chunk {
	if text == "" || len(text) <= c.chunkSize {
		return []*Chunk{newTextChunk(text, meta, 0, 0, len(text))}
	}

	boundaries := c.FindSemanticBoundaries(text)
	if len(boundaries) == 0 {
		return c.CreateCharacterChunks(text, meta)
	}

	var chunks []*Chunk
	current := ""
	chunkStart := 0
	var held []Boundary

	for _, boundary := range boundaries {
		grown := current + " " + boundary.Text
		if len(grown) > c.chunkSize && len(current) >= c.minChunkSize {
			chunks = append(chunks, newTextChunk(strings.TrimSpace(current), meta, len(chunks), chunkStart, boundary.Start))

			overlapStart := len(held) - c.overlapUnits
			if overlapStart < 0 {
				overlapStart = 0
			}
			held = held[overlapStart:]
			parts := make([]string, len(held))
			for i, b := range held {
				parts[i] = b.Text
			}
			current = strings.Join(parts, " ")
			if len(held) > 0 {
				chunkStart = held[0].Start
			} else {
				chunkStart = boundary.Start
			}
			grown = current + " " + boundary.Text
		}
		current = grown
		held = append(held, boundary)
	}

	if final := strings.TrimSpace(current); len(final) >= c.minChunkSize {
		chunks = append(chunks, newTextChunk(final, meta, len(chunks), chunkStart, len(text)))
	}
	return chunks
}

// CreateCharacterChunks is the boundary-free fallback: fixed windows of
// chunkSize characters with chunkOverlap characters shared between
// consecutive windows.
func (c *Chunker) CreateCharacterChunks(text string, meta ChunkMeta) []*Chunk {
	var chunks []*Chunk
	start := 0
	for start < len(text) {
		end := start + c.chunkSize
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, newTextChunk(text[start:end], meta, len(chunks), start, end))
		if end >= len(text) {
			break
		}
		start = end - c.chunkOverlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

func newTextChunk(text string, meta ChunkMeta, index, start, end int) *Chunk {
	meta.ChunkIndex = index
	return &Chunk{
		ID:    uuid.New().String()[:8],
		Text:  text,
		Meta:  meta,
		Start: start,
		End:   end,
	}
}
