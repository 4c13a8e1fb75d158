package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func baseInput() Input {
	return Input{
		UserID:           ptr("8c7e5f1a-0000-4000-8000-000000000001"),
		EventName:        ptr("birthday"),
		Mode:             "balanced",
		BudgetMin:        ptr(3000),
		BudgetMax:        ptr(5000),
		FeaturesLike:     []string{"coffee", "books"},
		FeaturesNotLike:  []string{"loud"},
		FeaturesNg:       []string{"alcohol"},
		EmbeddingModel:   "text-embedding-3-small",
		EmbeddingVersion: 1,
		EmbeddingContext: "イベント: birthday / like: coffee, books",
	}
}

func mustCompute(t *testing.T, in Input) string {
	t.Helper()
	h, err := Compute(in)
	require.NoError(t, err)
	return h
}

func TestCompute_DigestShape(t *testing.T) {
	h := mustCompute(t, baseInput())
	assert.Len(t, h, 64)
	assert.Regexp(t, "^[0-9a-f]{64}$", h)
}

func TestCompute_OrderAndWhitespaceInsensitive(t *testing.T) {
	a := baseInput()
	b := baseInput()
	b.FeaturesLike = []string{"  books", "", "coffee  ", "   "}

	assert.Equal(t, mustCompute(t, a), mustCompute(t, b))
}

func TestCompute_NilAndEmptyListsMatch(t *testing.T) {
	a := baseInput()
	a.FeaturesNg = nil
	b := baseInput()
	b.FeaturesNg = []string{" "}

	assert.Equal(t, mustCompute(t, a), mustCompute(t, b))
}

func TestCompute_SensitiveToEveryField(t *testing.T) {
	base := mustCompute(t, baseInput())

	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"mode", func(in *Input) { in.Mode = "diverse" }},
		{"budget min", func(in *Input) { in.BudgetMin = ptr(3001) }},
		{"budget max absent", func(in *Input) { in.BudgetMax = nil }},
		{"feature added", func(in *Input) { in.FeaturesLike = append(in.FeaturesLike, "tea") }},
		{"feature moved between lists", func(in *Input) {
			in.FeaturesLike = []string{"coffee"}
			in.FeaturesNotLike = []string{"loud", "books"}
		}},
		{"feature replaced", func(in *Input) { in.FeaturesNg = []string{"tobacco"} }},
		{"embedding version", func(in *Input) { in.EmbeddingVersion = 2 }},
		{"embedding model", func(in *Input) { in.EmbeddingModel = "text-embedding-3-large" }},
		{"embedding context", func(in *Input) { in.EmbeddingContext = "ギフト" }},
		{"anonymous user", func(in *Input) { in.UserID = nil }},
		{"event id", func(in *Input) { in.EventID = ptr("evt-1") }},
		{"recipient description", func(in *Input) { in.RecipientDescription = ptr("my sister") }},
		{"recipient id", func(in *Input) { in.RecipientID = ptr("rcp-1") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			assert.NotEqual(t, base, mustCompute(t, in))
		})
	}
}

func TestCompute_DoesNotMutateInput(t *testing.T) {
	in := baseInput()
	_ = mustCompute(t, in)
	assert.Equal(t, []string{"coffee", "books"}, in.FeaturesLike)
}

func TestNormalizeFeatures(t *testing.T) {
	assert.Equal(t, []string{}, NormalizeFeatures(nil))
	assert.Equal(t, []string{"a", "b", "c"}, NormalizeFeatures([]string{" c", "a", "", "b "}))
}
