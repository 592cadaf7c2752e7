// Package retriever maintains a similarity-search index over ingested
// guideline documents and serves top-k passage lookups for prompt grounding.
package retriever

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rcm/rcm/internal/llm"
)

// Passage is one retrieval hit. Distance is cosine distance
// (1 - cosine similarity): 0 is identical, 2 is opposite, lower is more
// relevant. Results are always ordered by increasing distance.
type Passage struct {
	Text     string  `json:"text"`
	SourceID string  `json:"source_id"`
	Distance float64 `json:"distance"`
}

var ingestExtensions = map[string]bool{".txt": true, ".md": true, ".pdf": true}

// Retriever pairs a backing store with the gateway's embedding operation.
type Retriever struct {
	store  Store
	client llm.Client
	logger zerolog.Logger
}

func New(store Store, client llm.Client, logger zerolog.Logger) *Retriever {
	return &Retriever{store: store, client: client, logger: logger}
}

// Ingest embeds every text-bearing file under dir as one record per file and
// appends the records to the store. It returns the number ingested.
// Ingestion does not deduplicate: re-running against the same directory
// appends duplicates unless the caller clears the store first.
func (r *Retriever) Ingest(ctx context.Context, dir string) (int, error) {
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && ingestExtensions[strings.ToLower(filepath.Ext(path))] {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk ingest directory %s: %w", dir, err)
	}

	var docs []Document
	var texts []string
	for _, path := range paths {
		content, err := readDocumentText(path)
		if err != nil {
			r.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable document")
			continue
		}
		if strings.TrimSpace(content) == "" {
			continue
		}
		docs = append(docs, Document{Source: path, Content: content})
		texts = append(texts, content)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	embeddings, err := r.client.Embed(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed %d documents: %w", len(texts), err)
	}
	for i := range docs {
		docs[i].Embedding = embeddings[i]
	}

	if err := r.store.Add(ctx, docs); err != nil {
		return 0, err
	}
	r.logger.Info().Int("documents", len(docs)).Str("dir", dir).Msg("ingested guideline documents")
	return len(docs), nil
}

// Query embeds the query text once and returns up to k passages, best match
// first. An empty store yields an empty slice, never an error.
func (r *Retriever) Query(ctx context.Context, text string, k int) ([]Passage, error) {
	if k <= 0 {
		return []Passage{}, nil
	}

	docs, err := r.store.All(ctx)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return []Passage{}, nil
	}

	vectors, err := r.client.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	query := vectors[0]

	passages := make([]Passage, 0, len(docs))
	for _, d := range docs {
		passages = append(passages, Passage{
			Text:     d.Content,
			SourceID: d.Source,
			Distance: cosineDistance(query, d.Embedding),
		})
	}
	sort.SliceStable(passages, func(i, j int) bool {
		return passages[i].Distance < passages[j].Distance
	})

	if len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}

// Count reports how many documents the store holds.
func (r *Retriever) Count(ctx context.Context) (int, error) {
	return r.store.Count(ctx)
}

// Clear drops every stored document.
func (r *Retriever) Clear(ctx context.Context) error {
	return r.store.Clear(ctx)
}

// cosineDistance returns 1 - cosine similarity. Mismatched or zero-length
// vectors rank last (distance 2, the maximum).
func cosineDistance(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 2
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 2
	}
	return 1 - dot/(math.Sqrt(normA)*math.Sqrt(normB))
}

func readTextFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}
