// internal/models/recommendation.go
package models

// Source tags for recommendation candidates.
const (
	SourceContent       = "content"
	SourceCollaborative = "collaborative"
)

// Reason tags attached to every returned recommendation. Fallback reasons
// are always observable; fallback results are never presented as
// primary-source results.
const (
	ReasonHybrid            = "hybrid"
	ReasonContentOnly       = "content_similarity"
	ReasonCollaborativeOnly = "collaborative"
	ReasonPopularFallback   = "popular_fallback"
	ReasonDiverseFallback   = "diverse_fallback"
	ReasonCategoryFallback  = "category_fallback"
)

// Candidate is a scored product suggestion from a single source. Created
// per-request and discarded after combination.
type Candidate struct {
	ProductID string  `json:"product_id"`
	Source    string  `json:"source"`
	Score     float64 `json:"score"` // normalized to [0,1]
}

// CombinedRecommendation is a deduplicated, score-merged candidate.
// At most one entry exists per product id; FinalScore is deterministic
// given the inputs and the content weight.
type CombinedRecommendation struct {
	ProductID  string   `json:"product_id"`
	FinalScore float64  `json:"final_score"`
	Sources    []string `json:"sources"`
	Rank       int      `json:"rank"`
	Reason     string   `json:"reason"`
}

// Request is a recommendation request as received from the routing layer.
type Request struct {
	UserID    string `json:"user_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	// Query is the conversational text, when present; the semantic intent
	// cache key is derived from it.
	Query         string   `json:"query,omitempty"`
	N             int      `json:"n"`
	MarketID      string   `json:"market_id"`
	// ContentWeight overrides the configured default weight when set.
	ContentWeight *float64 `json:"content_weight,omitempty"`
}

// RecommendedProduct is a single enriched entry in the response.
type RecommendedProduct struct {
	ID         string   `json:"id"`
	Title      string   `json:"title,omitempty"`
	Price      float64  `json:"price,omitempty"`
	Currency   string   `json:"currency,omitempty"`
	Score      float64  `json:"score"`
	Sources    []string `json:"sources"`
	Reason     string   `json:"reason"`
	Category   string   `json:"category,omitempty"`
	Incomplete bool     `json:"incomplete,omitempty"`
}

// ResponseMetadata describes how the response was produced, including
// every degradation that occurred along the way.
type ResponseMetadata struct {
	RequestID     string   `json:"request_id"`
	TookMS        int64    `json:"took_ms"`
	Requested     int      `json:"requested"`
	Returned      int      `json:"returned"`
	ExcludedCount int      `json:"excluded_count"`
	FallbackUsed  bool     `json:"fallback_used"`
	CacheHit      bool     `json:"cache_hit"`
	Degraded      []string `json:"degraded,omitempty"`
}

// Response is the full recommendation response.
type Response struct {
	Recommendations []RecommendedProduct `json:"recommendations"`
	Metadata        ResponseMetadata     `json:"metadata"`
}
