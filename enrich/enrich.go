// Package enrich decorates ranked item ids with catalog display fields.
package enrich

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/amirhf/giftreco/services/api-go/logging"
	"github.com/amirhf/giftreco/services/api-go/metrics"
	"github.com/amirhf/giftreco/services/api-go/models"
)

// Catalog is the read side of the item catalog.
type Catalog interface {
	ItemDetails(ctx context.Context, ids []string) ([]models.ItemDetail, error)
	// ItemImages returns images ordered by ascending sort order.
	ItemImages(ctx context.Context, ids []string) ([]models.ItemImage, error)
	ItemPrices(ctx context.Context, ids []string) ([]models.ItemPrice, error)
}

type Enricher struct {
	catalog Catalog
}

func New(catalog Catalog) *Enricher {
	return &Enricher{catalog: catalog}
}

type detail struct {
	name, url, affiliateURL string
}

// Enrich returns items in their original order with name, URLs, price and the
// first image attached. Lookup failures are logged and leave the fields blank.
func (e *Enricher) Enrich(ctx context.Context, items []models.RankedItem) []models.EnrichedItem {
	out := make([]models.EnrichedItem, len(items))
	for i, it := range items {
		out[i] = models.EnrichedItem{
			ItemID: it.ItemID,
			Rank:   it.Rank,
			Score:  it.Score,
			Reason: it.Reason,
		}
	}

	ids := uniqueIDs(items)
	if len(ids) == 0 {
		return out
	}

	var (
		details map[string]detail
		images  map[string]string
	)
	var g errgroup.Group
	g.Go(func() error {
		rows, err := e.catalog.ItemDetails(ctx, ids)
		if err != nil {
			lookupFailed(ctx, "item", err)
			return nil
		}
		details = detailMap(rows)
		return nil
	})
	g.Go(func() error {
		rows, err := e.catalog.ItemImages(ctx, ids)
		if err != nil {
			lookupFailed(ctx, "item_image", err)
			return nil
		}
		images = firstImages(rows)
		return nil
	})
	_ = g.Wait()

	prices := map[string]*int{}
	if rows, err := e.catalog.ItemPrices(ctx, ids); err != nil {
		lookupFailed(ctx, "item_features", err)
	} else {
		for _, p := range rows {
			prices[p.ItemID] = p.PriceYen
		}
	}

	for i := range out {
		id := out[i].ItemID
		if d, ok := details[id]; ok {
			out[i].ItemName = d.name
			out[i].ItemURL = d.url
			out[i].AffiliateURL = d.affiliateURL
		}
		if url, ok := images[id]; ok {
			u := url
			out[i].ImageURL = &u
		}
		out[i].PriceYen = prices[id]
	}
	return out
}

func uniqueIDs(items []models.RankedItem) []string {
	seen := make(map[string]struct{}, len(items))
	ids := make([]string, 0, len(items))
	for _, it := range items {
		if it.ItemID == "" {
			continue
		}
		if _, ok := seen[it.ItemID]; ok {
			continue
		}
		seen[it.ItemID] = struct{}{}
		ids = append(ids, it.ItemID)
	}
	return ids
}

func detailMap(rows []models.ItemDetail) map[string]detail {
	m := make(map[string]detail, len(rows))
	for _, r := range rows {
		if r.ID == "" {
			continue
		}
		d := detail{name: deref(r.Name), url: deref(r.URL)}
		// affiliate links fall back to the plain item URL
		if r.AffiliateURL != nil {
			d.affiliateURL = *r.AffiliateURL
		} else {
			d.affiliateURL = d.url
		}
		m[r.ID] = d
	}
	return m
}

// firstImages keeps the lowest sort order image per item, the earliest row on ties.
func firstImages(rows []models.ItemImage) map[string]string {
	best := make(map[string]models.ItemImage, len(rows))
	for _, r := range rows {
		if r.ItemID == "" {
			continue
		}
		if cur, ok := best[r.ItemID]; ok && cur.SortOrder <= r.SortOrder {
			continue
		}
		best[r.ItemID] = r
	}
	m := make(map[string]string, len(best))
	for id, r := range best {
		m[id] = deref(r.URL)
	}
	return m
}

func lookupFailed(ctx context.Context, lookup string, err error) {
	metrics.CatalogLookupErrors.WithLabelValues(lookup).Inc()
	logging.Ctx(ctx).Warn().Err(err).Str("lookup", lookup).Msg("catalog lookup failed, leaving fields blank")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
