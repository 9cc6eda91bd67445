package collectors

import (
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"

	"github.com/adalundhe/mosaic/core/fragment"
)

// fragmentDocument is the shape indexed for full-text search.
type fragmentDocument struct {
	ID      string   `json:"id"`
	Kind    string   `json:"kind"`
	Content string   `json:"content"`
	Title   string   `json:"title"`
	Summary string   `json:"summary"`
	Tags    []string `json:"tags"`
}

// SearchHit is one full-text match.
type SearchHit struct {
	FragmentID string
	Score      float64
}

// SearchIndex provides full-text search over fragments, backed by an
// in-memory bleve index. It is rebuilt wholesale by the collector
// after each batch; individual updates go through Index.
type SearchIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewSearchIndex creates an empty in-memory index.
func NewSearchIndex() (*SearchIndex, error) {
	index, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("creating fragment index: %w", err)
	}
	return &SearchIndex{index: index}, nil
}

// Index adds or replaces one fragment.
func (s *SearchIndex) Index(frag *fragment.Fragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Index(frag.ID, toDocument(frag))
}

// Delete removes a fragment from the index.
func (s *SearchIndex) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Delete(id)
}

// Rebuild replaces the whole index with the given fragment set.
func (s *SearchIndex) Rebuild(fragments []*fragment.Fragment) error {
	fresh, err := bleve.NewMemOnly(bleve.NewIndexMapping())
	if err != nil {
		return fmt.Errorf("creating fragment index: %w", err)
	}

	batch := fresh.NewBatch()
	for _, frag := range fragments {
		if err := batch.Index(frag.ID, toDocument(frag)); err != nil {
			return fmt.Errorf("indexing fragment %s: %w", frag.ID, err)
		}
	}
	if err := fresh.Batch(batch); err != nil {
		return fmt.Errorf("applying index batch: %w", err)
	}

	s.mu.Lock()
	old := s.index
	s.index = fresh
	s.mu.Unlock()

	if old != nil {
		old.Close()
	}
	return nil
}

// Query runs a match query over content, title, summary and tags and
// returns up to limit hits, best first.
func (s *SearchIndex) Query(queryText string, limit int) ([]SearchHit, error) {
	queryText = strings.TrimSpace(queryText)
	if queryText == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	query := bleve.NewMatchQuery(queryText)
	req := bleve.NewSearchRequestOptions(query, limit, 0, false)

	s.mu.RLock()
	result, err := s.index.Search(req)
	s.mu.RUnlock()
	if err != nil {
		return nil, fmt.Errorf("searching fragments: %w", err)
	}

	hits := make([]SearchHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, SearchHit{FragmentID: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Count returns the number of indexed fragments.
func (s *SearchIndex) Count() (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.index.DocCount()
}

// Close releases the underlying index.
func (s *SearchIndex) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index.Close()
}

func toDocument(frag *fragment.Fragment) *fragmentDocument {
	return &fragmentDocument{
		ID:      frag.ID,
		Kind:    string(frag.Kind),
		Content: frag.Content,
		Title:   frag.Title,
		Summary: frag.Summary,
		Tags:    frag.Tags,
	}
}
