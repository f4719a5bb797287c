package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/veridocs/reviewd/internal/cache"
	"github.com/veridocs/reviewd/internal/llm"
)

// FieldExtractor implements Extractor for one field family.
type FieldExtractor struct {
	family Family
	client llm.Client
	cache  *cache.Cache
	cfg    Config
	logger *zap.Logger
}

// New creates an extractor for the given family.
func New(family Family, client llm.Client, c *cache.Cache, cfg Config, logger *zap.Logger) (*FieldExtractor, error) {
	if client == nil {
		return nil, errors.New("llm client is required")
	}
	if c == nil {
		return nil, errors.New("cache is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if promptFor(family) == "" {
		return nil, fmt.Errorf("unknown extractor family: %s", family)
	}

	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = DefaultConfig().ChunkSize
	}
	if cfg.ChunkOverlap <= 0 {
		cfg.ChunkOverlap = DefaultConfig().ChunkOverlap
	}
	if cfg.BoundaryLookBack <= 0 {
		cfg.BoundaryLookBack = DefaultConfig().BoundaryLookBack
	}
	if cfg.ConfidenceThreshold <= 0 {
		cfg.ConfidenceThreshold = DefaultConfig().ConfidenceThreshold
	}
	if cfg.DedupThreshold <= 0 {
		cfg.DedupThreshold = DefaultConfig().DedupThreshold
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = DefaultConfig().MaxInFlight
	}

	return &FieldExtractor{
		family: family,
		client: client,
		cache:  c,
		cfg:    cfg,
		logger: logger.Named("extractor").With(zap.String("family", string(family))),
	}, nil
}

// Family returns the field family this extractor produces.
func (e *FieldExtractor) Family() Family {
	return e.family
}

// Extract runs chunking, cached parallel dispatch, parsing, the
// confidence filter, and deduplication over one document's content.
func (e *FieldExtractor) Extract(ctx context.Context, content string, images []Image, documentID string) ([]ExtractedField, error) {
	chunks := splitChunks(content, images, e.cfg)
	results := make([][]ExtractedField, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.MaxInFlight)

	for i, ch := range chunks {
		g.Go(func() error {
			fields, err := e.extractChunk(gctx, ch, documentID)
			if err != nil {
				return err
			}
			results[i] = fields
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("extraction aborted for %s: %w", documentID, err)
	}

	var all []ExtractedField
	for _, fields := range results {
		for _, f := range fields {
			if f.Confidence >= e.cfg.ConfidenceThreshold {
				all = append(all, f)
			}
		}
	}

	return dedupe(all, e.family, e.cfg.DedupThreshold), nil
}

// extractChunk resolves one chunk through the cache or the provider.
// Exhausted retries and malformed responses are contained: the chunk
// contributes no fields and no error. Auth and bad-request errors
// surface and abort the batch.
func (e *FieldExtractor) extractChunk(ctx context.Context, ch chunk, documentID string) ([]ExtractedField, error) {
	namespace := "extract:" + string(e.family)
	key := cache.ContentKey(documentID, ch.Text)

	if raw, ok := e.cache.Get(namespace, key); ok {
		var fields []ExtractedField
		if err := json.Unmarshal(raw, &fields); err == nil {
			return fields, nil
		}
		// Corrupt cache entry reads as a miss.
		e.logger.Warn("discarding corrupt cache entry", zap.String("key", key))
	}

	resp, err := e.client.Complete(ctx, llm.Request{
		System:        promptFor(e.family),
		Content:       fmt.Sprintf("Document: %s\n\n%s", documentID, ch.Text),
		Images:        toLLMImages(ch.Images),
		Deterministic: true,
	})
	if err != nil {
		if errors.Is(err, llm.ErrAuth) || errors.Is(err, llm.ErrBadRequest) {
			return nil, err
		}
		e.logger.Warn("chunk call failed, continuing without it",
			zap.String("document_id", documentID),
			zap.Int("chunk_start", ch.Start),
			zap.Error(err))
		return nil, nil
	}

	fields, err := parseFields(resp.Text, documentID)
	if err != nil {
		e.logger.Warn("chunk response failed schema validation",
			zap.String("document_id", documentID),
			zap.Int("chunk_start", ch.Start),
			zap.Error(err))
		return nil, nil
	}

	if raw, err := json.Marshal(fields); err == nil {
		e.cache.Set(namespace, key, raw)
	}

	return fields, nil
}

func toLLMImages(images []Image) []llm.Image {
	if len(images) == 0 {
		return nil
	}
	out := make([]llm.Image, len(images))
	for i, img := range images {
		out[i] = llm.Image{MediaType: img.MediaType, Data: img.Data}
	}
	return out
}

var _ Extractor = (*FieldExtractor)(nil)
