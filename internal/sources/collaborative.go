// internal/sources/collaborative.go
package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	nethttp "net/http"
	"time"

	apperrors "recommendation-backend/internal/common/errors"
	httpclient "recommendation-backend/internal/common/http"
	"recommendation-backend/internal/common/logger"
	"recommendation-backend/internal/models"
)

// CollaborativeSource wraps the vendor collaborative-filtering service.
type CollaborativeSource struct {
	client  *httpclient.Client
	baseURL string
	apiKey  string
	timeout time.Duration
	logger  logger.Logger
}

func NewCollaborativeSource(baseURL, apiKey string, timeout time.Duration, log logger.Logger) *CollaborativeSource {
	return &CollaborativeSource{
		client:  httpclient.NewClient(timeout),
		baseURL: baseURL,
		apiKey:  apiKey,
		timeout: timeout,
		logger:  log.WithFields(map[string]interface{}{"source": models.SourceCollaborative}),
	}
}

func (s *CollaborativeSource) Name() string {
	return models.SourceCollaborative
}

type collaborativeRequest struct {
	UserID    string `json:"user_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	N         int    `json:"n"`
}

type collaborativeResponse struct {
	Recommendations []struct {
		ID    string  `json:"id"`
		Score float64 `json:"score"`
	} `json:"recommendations"`
}

// Fetch calls the vendor recommend endpoint. Timeouts and non-2xx statuses
// surface as explicit errors so the combiner can degrade to single-source.
func (s *CollaborativeSource) Fetch(ctx context.Context, q Query) ([]models.Candidate, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, err := json.Marshal(collaborativeRequest{
		UserID:    q.UserID,
		ProductID: q.ProductID,
		N:         q.Limit,
	})
	if err != nil {
		return nil, fmt.Errorf("encode recommend request: %w", err)
	}

	req, err := nethttp.NewRequest(nethttp.MethodPost, s.baseURL+"/v1/recommend", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build recommend request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("X-API-Key", s.apiKey)
	}

	res, err := s.client.DoWithContext(ctx, req)
	if err != nil {
		return nil, apperrors.NewSourceUnavailableError(models.SourceCollaborative, err)
	}
	defer res.Body.Close()

	if res.StatusCode != nethttp.StatusOK {
		return nil, apperrors.NewSourceUnavailableError(models.SourceCollaborative,
			fmt.Errorf("status %d", res.StatusCode))
	}

	var parsed collaborativeResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode recommend response: %w", err)
	}

	candidates := make([]models.Candidate, 0, len(parsed.Recommendations))
	for _, rec := range parsed.Recommendations {
		if rec.ID == "" {
			continue
		}
		candidates = append(candidates, models.Candidate{
			ProductID: rec.ID,
			Source:    models.SourceCollaborative,
			Score:     clampScore(rec.Score),
		})
	}

	return candidates, nil
}
