package storage

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func normalizeSQL(q string) string {
	return strings.Join(strings.Fields(q), " ")
}

func TestListItemsSQL_NullScore(t *testing.T) {
	q := normalizeSQL(listItemsSQL)
	assert.Contains(t, q, "COALESCE(score, 0)")
	assert.NotContains(t, q, "rank, score,")
	assert.Contains(t, q, "ORDER BY rank ASC")
}

func TestItemImagesSQL_OrderMatchesSelectedSortOrder(t *testing.T) {
	q := normalizeSQL(itemImagesSQL)
	assert.Contains(t, q, "COALESCE(sort_order, 0) AS sort_order")
	assert.Contains(t, q, "ORDER BY COALESCE(sort_order, 0) ASC, id ASC")
}
