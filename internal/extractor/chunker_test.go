package extractor

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testChunkConfig() Config {
	cfg := DefaultConfig()
	cfg.ChunkSize = 100
	cfg.ChunkOverlap = 10
	cfg.BoundaryLookBack = 40
	return cfg
}

// reconstruct concatenates chunk texts minus the overlap.
func reconstruct(chunks []chunk, overlap int) string {
	var sb strings.Builder
	for i, c := range chunks {
		if i == 0 {
			sb.WriteString(c.Text)
			continue
		}
		sb.WriteString(c.Text[overlap:])
	}
	return sb.String()
}

func TestSplitChunks_ShortContentSingleChunk(t *testing.T) {
	chunks := splitChunks("short content", nil, testChunkConfig())
	require.Len(t, chunks, 1)
	assert.Equal(t, "short content", chunks[0].Text)
}

func TestSplitChunks_Reconstruction(t *testing.T) {
	cfg := testChunkConfig()

	inputs := []string{
		strings.Repeat("alpha beta gamma delta. ", 40),
		strings.Repeat("paragraph one text here.\n\nparagraph two text here.\n\n", 12),
		strings.Repeat("x", 950), // no boundaries at all
		strings.Repeat("word ", 300),
	}

	for i, content := range inputs {
		t.Run(fmt.Sprintf("input_%d", i), func(t *testing.T) {
			chunks := splitChunks(content, nil, cfg)
			require.Greater(t, len(chunks), 1)
			assert.Equal(t, content, reconstruct(chunks, cfg.ChunkOverlap))
		})
	}
}

func TestSplitChunks_PrefersParagraphBreak(t *testing.T) {
	cfg := testChunkConfig()
	// Paragraph break inside the look-back window before the target cut.
	content := strings.Repeat("a", 70) + "\n\n" + strings.Repeat("b", 200)

	chunks := splitChunks(content, nil, cfg)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "\n\n"),
		"first chunk should end at the paragraph break, got %q", chunks[0].Text)
}

func TestSplitChunks_FallsBackToSentence(t *testing.T) {
	cfg := testChunkConfig()
	content := strings.Repeat("c", 75) + ". " + strings.Repeat("d", 200)

	chunks := splitChunks(content, nil, cfg)
	require.Greater(t, len(chunks), 1)
	assert.True(t, strings.HasSuffix(chunks[0].Text, "."),
		"first chunk should end at the sentence terminator, got %q", chunks[0].Text)
}

func TestSplitChunks_HardCutWithoutBoundaries(t *testing.T) {
	cfg := testChunkConfig()
	content := strings.Repeat("z", 350)

	chunks := splitChunks(content, nil, cfg)
	require.Greater(t, len(chunks), 1)
	assert.Len(t, chunks[0].Text, cfg.ChunkSize)
	assert.Equal(t, content, reconstruct(chunks, cfg.ChunkOverlap))
}

func TestSplitChunks_MultibyteRunesNeverSplit(t *testing.T) {
	cfg := testChunkConfig()

	inputs := []string{
		strings.Repeat("世", 260),                          // 3-byte runes, no boundaries
		strings.Repeat("ß", 175),                          // 2-byte runes, no boundaries
		strings.Repeat("土地所有権証明書 ", 40),                    // CJK with word boundaries
		strings.Repeat("Grundstück Nr. 42 München. ", 20), // mixed ASCII and umlauts
	}

	for i, content := range inputs {
		t.Run(fmt.Sprintf("input_%d", i), func(t *testing.T) {
			chunks := splitChunks(content, nil, cfg)
			require.Greater(t, len(chunks), 1)

			for j, c := range chunks {
				assert.True(t, utf8.ValidString(c.Text),
					"chunk %d cuts through a rune: %q", j, c.Text)
			}

			last := chunks[len(chunks)-1]
			assert.Equal(t, len(content), last.Start+len(last.Text),
				"chunks must still cover the full content")
		})
	}
}

func TestSplitChunks_OverlapIsExact(t *testing.T) {
	cfg := testChunkConfig()
	content := strings.Repeat("word soup for overlap testing. ", 30)

	chunks := splitChunks(content, nil, cfg)
	require.Greater(t, len(chunks), 1)
	for i := 1; i < len(chunks); i++ {
		prevTail := chunks[i-1].Text[len(chunks[i-1].Text)-cfg.ChunkOverlap:]
		assert.Equal(t, prevTail, chunks[i].Text[:cfg.ChunkOverlap])
	}
}

func TestSplitChunks_ImagesDistributedWithoutDuplication(t *testing.T) {
	cfg := testChunkConfig()
	content := strings.Repeat("sentence for the image test. ", 30)
	images := []Image{
		{MediaType: "image/png", Data: []byte{1}},
		{MediaType: "image/png", Data: []byte{2}},
		{MediaType: "image/png", Data: []byte{3}},
	}

	chunks := splitChunks(content, images, cfg)
	total := 0
	for _, c := range chunks {
		total += len(c.Images)
	}
	assert.Equal(t, len(images), total, "every image appears exactly once")
}
