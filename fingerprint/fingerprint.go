// Package fingerprint derives the dedup key of a recommendation context.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/goccy/go-json"
)

// Input is every field that makes two recommendation requests semantically different.
type Input struct {
	UserID               *string
	EventID              *string
	EventName            *string
	RecipientID          *string
	RecipientDescription *string
	Mode                 string
	BudgetMin            *int
	BudgetMax            *int
	FeaturesLike         []string
	FeaturesNotLike      []string
	FeaturesNg           []string
	EmbeddingModel       string
	EmbeddingVersion     int
	EmbeddingContext     string
}

// canonical fields are declared in key order so the encoding is stable.
type canonical struct {
	BudgetMax            *int     `json:"budgetMax"`
	BudgetMin            *int     `json:"budgetMin"`
	EmbeddingContext     string   `json:"embeddingContext"`
	EmbeddingModel       string   `json:"embeddingModel"`
	EmbeddingVersion     int      `json:"embeddingVersion"`
	EventID              *string  `json:"eventId"`
	EventName            *string  `json:"eventName"`
	FeaturesLike         []string `json:"featuresLike"`
	FeaturesNg           []string `json:"featuresNg"`
	FeaturesNotLike      []string `json:"featuresNotLike"`
	Mode                 string   `json:"mode"`
	RecipientDescription *string  `json:"recipientDescription"`
	RecipientID          *string  `json:"recipientId"`
	UserID               *string  `json:"userId"`
}

// NormalizeFeatures trims every entry, drops empty ones and sorts the rest.
// The result is never nil.
func NormalizeFeatures(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if s := strings.TrimSpace(x); s != "" {
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

// Compute returns the lowercase hex SHA-256 of the canonical form of in.
func Compute(in Input) (string, error) {
	b, err := json.Marshal(canonical{
		BudgetMax:            in.BudgetMax,
		BudgetMin:            in.BudgetMin,
		EmbeddingContext:     in.EmbeddingContext,
		EmbeddingModel:       in.EmbeddingModel,
		EmbeddingVersion:     in.EmbeddingVersion,
		EventID:              in.EventID,
		EventName:            in.EventName,
		FeaturesLike:         NormalizeFeatures(in.FeaturesLike),
		FeaturesNg:           NormalizeFeatures(in.FeaturesNg),
		FeaturesNotLike:      NormalizeFeatures(in.FeaturesNotLike),
		Mode:                 in.Mode,
		RecipientDescription: in.RecipientDescription,
		RecipientID:          in.RecipientID,
		UserID:               in.UserID,
	})
	if err != nil {
		return "", fmt.Errorf("encode context: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
