package models

import "github.com/goccy/go-json"

// ContextRecord is the deduplicated request input written to apl.context.
type ContextRecord struct {
	UserID           *string
	EventID          *string
	RecipientID      *string
	BudgetMin        *int
	BudgetMax        *int
	FeaturesLike     []string
	FeaturesNotLike  []string
	FeaturesNg       []string
	ContextText      string
	ContextVector    []float32
	EmbeddingModel   string
	EmbeddingVersion int
	ContextHash      string
}

// ItemRecord is one ranked row of apl.recommendation_item.
type ItemRecord struct {
	ItemID      string
	Rank        int
	Score       float64
	VectorScore *float64
	RerankScore *float64
	Reason      json.RawMessage
}

type SaveRecommendationInput struct {
	UserID    *string
	Context   ContextRecord
	Algorithm string
	Params    map[string]any
	Items     []ItemRecord
}

type SavedRecommendation struct {
	ContextID        string
	RecommendationID string
}

// ItemDetail holds the apl.item columns used for display.
type ItemDetail struct {
	ID           string
	Name         *string
	URL          *string
	AffiliateURL *string
}

type ItemImage struct {
	ItemID    string
	URL       *string
	SortOrder int
}

type ItemPrice struct {
	ItemID   string
	PriceYen *int
}
