package models

import (
	"time"

	"github.com/goccy/go-json"
)

// Modes accepted by POST /recommendations, in the order they are reported to clients.
var Modes = []string{"popular", "balanced", "diverse"}

// AlgorithmOverrides are the ranking strategies an admin may force.
var AlgorithmOverrides = []string{"vector_only", "vector_ranked", "vector_ranked_mmr"}

const (
	DefaultAlgorithm        = "vector_ranked_mmr"
	DefaultEmbeddingModel   = "text-embedding-3-small"
	DefaultEmbeddingVersion = 1
)

// RecommendationRequest is the body of POST /recommendations.
type RecommendationRequest struct {
	Mode                 string   `json:"mode"`
	EventName            *string  `json:"eventName" validate:"omitempty,max=200"`
	EventID              *string  `json:"eventId" validate:"omitempty,max=64"`
	RecipientDescription *string  `json:"recipientDescription" validate:"omitempty,max=2000"`
	RecipientID          *string  `json:"recipientId" validate:"omitempty,max=64"`
	BudgetMin            *int     `json:"budgetMin" validate:"omitempty,gte=0"`
	BudgetMax            *int     `json:"budgetMax" validate:"omitempty,gte=0"`
	FeaturesLike         []string `json:"featuresLike" validate:"max=50,dive,max=200"`
	FeaturesNotLike      []string `json:"featuresNotLike" validate:"max=50,dive,max=200"`
	FeaturesNg           []string `json:"featuresNg" validate:"max=50,dive,max=200"`
	AlgorithmOverride    *string  `json:"algorithmOverride"`
}

// EngineRequest is the payload sent to the recommendation engine.
type EngineRequest struct {
	Mode                 string   `json:"mode"`
	EventID              *string  `json:"eventId"`
	EventName            *string  `json:"eventName"`
	RecipientID          *string  `json:"recipientId"`
	RecipientDescription *string  `json:"recipientDescription"`
	BudgetMin            *int     `json:"budgetMin"`
	BudgetMax            *int     `json:"budgetMax"`
	FeaturesLike         []string `json:"featuresLike"`
	FeaturesNotLike      []string `json:"featuresNotLike"`
	FeaturesNg           []string `json:"featuresNg"`
	AlgorithmOverride    string   `json:"algorithmOverride,omitempty"`
}

type EngineItem struct {
	ItemID      string          `json:"itemId"`
	Rank        int             `json:"rank"`
	Score       float64         `json:"score"`
	VectorScore *float64        `json:"vectorScore"`
	RerankScore *float64        `json:"rerankScore"`
	Reason      json.RawMessage `json:"reason"`

	// Display fields some engine versions return alongside the ranking.
	ItemName     string `json:"itemName"`
	ItemURL      string `json:"itemUrl"`
	AffiliateURL string `json:"affiliateUrl"`
	PriceYen     *int   `json:"priceYen"`
}

type EngineResolved struct {
	Name       string         `json:"name"`
	Params     map[string]any `json:"params"`
	ResolvedBy string         `json:"resolvedBy"`
}

type EngineContext struct {
	ContextText      string    `json:"contextText"`
	EmbeddingModel   string    `json:"embeddingModel"`
	EmbeddingVersion *int      `json:"embeddingVersion"`
	ContextVector    []float32 `json:"contextVector"`
}

// EngineResponse is the engine's answer to an EngineRequest.
type EngineResponse struct {
	RequestID   string         `json:"requestId"`
	Context     EngineContext  `json:"context"`
	Resolved    EngineResolved `json:"resolved"`
	Items       []EngineItem   `json:"items"`
	GeneratedAt string         `json:"generatedAt"`
}

// RankedItem is a bare ranking entry before catalog enrichment.
type RankedItem struct {
	ItemID string
	Rank   int
	Score  float64
	Reason json.RawMessage
}

type EnrichedItem struct {
	ItemID       string          `json:"itemId"`
	Rank         int             `json:"rank"`
	Score        float64         `json:"score"`
	ItemName     string          `json:"itemName"`
	ItemURL      string          `json:"itemUrl"`
	AffiliateURL string          `json:"affiliateUrl"`
	PriceYen     *int            `json:"priceYen"`
	ImageURL     *string         `json:"imageUrl"`
	Reason       json.RawMessage `json:"reason"`
}

type ResolvedAlgorithm struct {
	Name   string         `json:"name"`
	Params map[string]any `json:"params"`
}

// RecommendationResponse is the body returned by POST /recommendations.
type RecommendationResponse struct {
	RecommendationID  string            `json:"recommendationId"`
	ContextID         string            `json:"contextId"`
	Mode              string            `json:"mode"`
	ResolvedAlgorithm ResolvedAlgorithm `json:"resolvedAlgorithm"`
	Items             []EnrichedItem    `json:"items"`
}

// RecommendationHeader is an apl.recommendation row. It is served with the
// column names as keys, which the web client reads directly.
type RecommendationHeader struct {
	ID        string         `json:"id"`
	UserID    *string        `json:"user_id"`
	ContextID string         `json:"context_id"`
	Algorithm string         `json:"algorithm"`
	Params    map[string]any `json:"params"`
	CreatedAt time.Time      `json:"created_at"`
}

// Context is an apl.context row, keyed by column name like RecommendationHeader.
type Context struct {
	ID               string    `json:"id"`
	UserID           *string   `json:"user_id"`
	EventID          *string   `json:"event_id"`
	RecipientID      *string   `json:"recipient_id"`
	BudgetMin        *int      `json:"budget_min"`
	BudgetMax        *int      `json:"budget_max"`
	FeaturesLike     []string  `json:"features_like"`
	FeaturesNotLike  []string  `json:"features_not_like"`
	FeaturesNg       []string  `json:"features_ng"`
	ContextText      string    `json:"context_text"`
	EmbeddingModel   string    `json:"embedding_model"`
	EmbeddingVersion int       `json:"embedding_version"`
	ContextHash      string    `json:"context_hash"`
	CreatedAt        time.Time `json:"created_at"`
}

// RecommendationDetail is the body returned by GET /recommendations/{id}.
type RecommendationDetail struct {
	Header  RecommendationHeader `json:"header"`
	Context *Context             `json:"context"`
	Items   []EnrichedItem       `json:"items"`
}

type RecommendationSummary struct {
	ID        string         `json:"id"`
	ContextID string         `json:"contextId"`
	Algorithm string         `json:"algorithm"`
	Params    map[string]any `json:"params"`
	ItemCount int            `json:"itemCount"`
	CreatedAt time.Time      `json:"createdAt"`
}

// RecommendationList is the body returned by GET /recommendations/list.
type RecommendationList struct {
	Items      []RecommendationSummary `json:"items"`
	Page       int                     `json:"page"`
	PageSize   int                     `json:"pageSize"`
	TotalItems int                     `json:"totalItems"`
	TotalPages int                     `json:"totalPages"`
	HasNext    bool                    `json:"hasNext"`
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}
