// internal/sources/content.go
package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"

	apperrors "recommendation-backend/internal/common/errors"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/models"
)

// ContentSimilaritySource wraps the pre-built content index. Similarity is
// served by an Elasticsearch more_like_this query over title, description
// and category; raw _score values are normalized by the response max score.
type ContentSimilaritySource struct {
	es      *elasticsearch.Client
	index   string
	timeout time.Duration
	logger  logger.Logger
}

func NewContentSimilaritySource(es *elasticsearch.Client, index string, timeout time.Duration, log logger.Logger) *ContentSimilaritySource {
	return &ContentSimilaritySource{
		es:      es,
		index:   index,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"source": models.SourceContent}),
	}
}

func (s *ContentSimilaritySource) Name() string {
	return models.SourceContent
}

type esSearchResponse struct {
	Hits struct {
		MaxScore float64 `json:"max_score"`
		Hits     []struct {
			ID    string  `json:"_id"`
			Score float64 `json:"_score"`
		} `json:"hits"`
	} `json:"hits"`
}

// Fetch returns products similar to q.ProductID. An empty or unknown product
// id yields an empty list, not an error (cold start).
func (s *ContentSimilaritySource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	if q.ProductID == "" {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	body := map[string]interface{}{
		"size": q.Limit,
		"query": map[string]interface{}{
			"more_like_this": map[string]interface{}{
				"fields": []string{"title", "description", "category"},
				"like": []map[string]interface{}{
					{"_index": s.index, "_id": q.ProductID},
				},
				"min_term_freq": 1,
				"min_doc_freq":  1,
			},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode similarity query: %w", err)
	}

	res, err := s.es.Search(
		s.es.Search.WithContext(ctx),
		s.es.Search.WithIndex(s.index),
		s.es.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, apperrors.NewSourceUnavailableError(models.SourceContent, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, apperrors.NewSourceUnavailableError(models.SourceContent,
			fmt.Errorf("search status %s", res.Status()))
	}

	var parsed esSearchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode similarity response: %w", err)
	}

	if len(parsed.Hits.Hits) == 0 {
		return nil, nil
	}

	maxScore := parsed.Hits.MaxScore
	if maxScore <= 0 {
		maxScore = 1
	}

	candidates := make([]models.Candidate, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		if hit.ID == q.ProductID {
			continue
		}
		candidates = append(candidates, models.Candidate{
			ProductID: hit.ID,
			Source:    models.SourceContent,
			Score:     clampScore(hit.Score / maxScore),
		})
	}

	return candidates, nil
}
