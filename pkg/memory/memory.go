// Package memory stores summaries of completed research sessions in an
// embedded vector database so later queries in the same chat can reuse
// prior findings.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/philippgille/chromem-go"

	"github.com/we11as22/deepresearch/pkg/embedders"
)

// Entry is one recalled research summary.
type Entry struct {
	SessionID string  `json:"session_id"`
	Query     string  `json:"query"`
	Summary   string  `json:"summary"`
	CreatedAt string  `json:"created_at"`
	Score     float64 `json:"score"`
}

// Store persists research summaries per chat.
type Store struct {
	db       *chromem.DB
	embedder embedders.Embedder
}

// NewStore opens or creates the vector database under root. The embedder
// supplies document and query vectors.
func NewStore(root string, embedder embedders.Embedder) (*Store, error) {
	db, err := chromem.NewPersistentDB(filepath.Join(root, "vectors"), false)
	if err != nil {
		return nil, fmt.Errorf("open vector db: %w", err)
	}
	return &Store{db: db, embedder: embedder}, nil
}

func (s *Store) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vectors, err := s.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		return vectors[0], nil
	}
}

func (s *Store) collection(chatID string) (*chromem.Collection, error) {
	return s.db.GetOrCreateCollection("chat_"+chatID, nil, s.embeddingFunc())
}

// SaveResearch records a completed session's query and report summary.
func (s *Store) SaveResearch(ctx context.Context, chatID, sessionID, query, summary string) error {
	if summary == "" {
		return nil
	}
	collection, err := s.collection(chatID)
	if err != nil {
		return fmt.Errorf("open memory collection: %w", err)
	}
	err = collection.AddDocument(ctx, chromem.Document{
		ID:      sessionID,
		Content: query + "\n\n" + summary,
		Metadata: map[string]string{
			"session_id": sessionID,
			"query":      query,
			"created_at": time.Now().UTC().Format(time.RFC3339),
		},
	})
	if err != nil {
		return fmt.Errorf("save research memory: %w", err)
	}
	return nil
}

// SearchRelevant returns up to n prior summaries ranked by similarity.
// Asking for more results than the collection holds is clamped, not an
// error.
func (s *Store) SearchRelevant(ctx context.Context, chatID, query string, n int) ([]Entry, error) {
	collection, err := s.collection(chatID)
	if err != nil {
		return nil, fmt.Errorf("open memory collection: %w", err)
	}

	count := collection.Count()
	if count == 0 {
		return nil, nil
	}
	if n > count {
		n = count
	}
	if n <= 0 {
		n = 1
	}

	results, err := collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query research memory: %w", err)
	}

	entries := make([]Entry, 0, len(results))
	for _, r := range results {
		entries = append(entries, Entry{
			SessionID: r.Metadata["session_id"],
			Query:     r.Metadata["query"],
			Summary:   r.Content,
			CreatedAt: r.Metadata["created_at"],
			Score:     float64(r.Similarity),
		})
	}
	return entries, nil
}
