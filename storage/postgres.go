package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/amirhf/giftreco/services/api-go/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(dbURL string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(context.Background(), config)
	if err != nil {
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

var (
	shared     *PostgresStore
	sharedErr  error
	sharedOnce sync.Once
)

// Shared returns the process-wide store, constructing it on first use.
// Later calls ignore dbURL.
func Shared(dbURL string) (*PostgresStore, error) {
	sharedOnce.Do(func() {
		shared, sharedErr = NewPostgresStore(dbURL)
	})
	return shared, sharedErr
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const upsertContextSQL = `
	INSERT INTO apl.context (
		user_id, event_id, recipient_id, budget_min, budget_max,
		features_like, features_not_like, features_ng,
		context_text, context_vector, embedding_model, embedding_version, context_hash
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (context_hash) DO UPDATE SET
		context_text = EXCLUDED.context_text,
		context_vector = COALESCE(EXCLUDED.context_vector, apl.context.context_vector)
	RETURNING id::text
`

const insertRecommendationSQL = `
	INSERT INTO apl.recommendation (user_id, context_id, algorithm, params)
	VALUES ($1, $2, $3, $4)
	RETURNING id::text
`

const insertItemSQL = `
	INSERT INTO apl.recommendation_item (
		recommendation_id, item_id, rank, score, vector_score, rerank_score, reason
	)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
`

// score is nullable; an unscored row reads as 0.
const listItemsSQL = `
	SELECT item_id::text, rank, COALESCE(score, 0), vector_score, rerank_score, reason
	FROM apl.recommendation_item
	WHERE recommendation_id = $1
	ORDER BY rank ASC
`

// Rows come back in the order enrich picks the first image from: missing
// sort_order counts as 0, ties go to the older row.
const itemImagesSQL = `
	SELECT item_id::text, url, COALESCE(sort_order, 0) AS sort_order
	FROM apl.item_image
	WHERE item_id = ANY($1)
	ORDER BY COALESCE(sort_order, 0) ASC, id ASC
`

// SaveRecommendation upserts the context by hash, then writes the header and its
// items in one transaction. A failure after the upsert leaves the context row.
func (s *PostgresStore) SaveRecommendation(ctx context.Context, in models.SaveRecommendationInput) (models.SavedRecommendation, error) {
	var saved models.SavedRecommendation

	c := in.Context
	var vec *pgvector.Vector
	if len(c.ContextVector) > 0 {
		v := pgvector.NewVector(c.ContextVector)
		vec = &v
	}

	err := s.pool.QueryRow(ctx, upsertContextSQL,
		c.UserID, c.EventID, c.RecipientID, c.BudgetMin, c.BudgetMax,
		nonNil(c.FeaturesLike), nonNil(c.FeaturesNotLike), nonNil(c.FeaturesNg),
		c.ContextText, vec, c.EmbeddingModel, c.EmbeddingVersion, c.ContextHash,
	).Scan(&saved.ContextID)
	if err != nil {
		return saved, fmt.Errorf("upsert context: %w", err)
	}

	params, err := json.Marshal(in.Params)
	if err != nil {
		return saved, fmt.Errorf("encode params: %w", err)
	}

	err = pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, insertRecommendationSQL,
			in.UserID, saved.ContextID, in.Algorithm, params,
		).Scan(&saved.RecommendationID); err != nil {
			return fmt.Errorf("insert recommendation: %w", err)
		}

		if len(in.Items) == 0 {
			return nil
		}
		batch := &pgx.Batch{}
		for _, it := range in.Items {
			batch.Queue(insertItemSQL,
				saved.RecommendationID, it.ItemID, it.Rank, it.Score,
				it.VectorScore, it.RerankScore, nullableJSON(it.Reason),
			)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert recommendation items: %w", err)
		}
		return nil
	})
	if err != nil {
		return models.SavedRecommendation{ContextID: saved.ContextID}, err
	}
	return saved, nil
}

func (s *PostgresStore) GetRecommendationHeader(ctx context.Context, id string) (*models.RecommendationHeader, error) {
	var h models.RecommendationHeader
	var params []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, context_id::text, algorithm, params, created_at
		FROM apl.recommendation
		WHERE id = $1
	`, id).Scan(&h.ID, &h.UserID, &h.ContextID, &h.Algorithm, &params, &h.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get recommendation: %w", err)
	}
	if h.Params, err = decodeParams(params); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListRecommendationItems returns the items of a recommendation by ascending rank.
func (s *PostgresStore) ListRecommendationItems(ctx context.Context, recommendationID string) ([]models.ItemRecord, error) {
	rows, err := s.pool.Query(ctx, listItemsSQL, recommendationID)
	if err != nil {
		return nil, fmt.Errorf("list recommendation items: %w", err)
	}
	defer rows.Close()

	var items []models.ItemRecord
	for rows.Next() {
		var it models.ItemRecord
		var reason []byte
		if err := rows.Scan(&it.ItemID, &it.Rank, &it.Score, &it.VectorScore, &it.RerankScore, &reason); err != nil {
			return nil, err
		}
		it.Reason = reason
		items = append(items, it)
	}
	return items, rows.Err()
}

// GetContext returns nil without error when the context row is gone.
func (s *PostgresStore) GetContext(ctx context.Context, id string) (*models.Context, error) {
	var c models.Context
	err := s.pool.QueryRow(ctx, `
		SELECT id::text, user_id::text, event_id::text, recipient_id::text, budget_min, budget_max,
			features_like, features_not_like, features_ng,
			COALESCE(context_text, ''), COALESCE(embedding_model, ''), COALESCE(embedding_version, 0),
			context_hash, created_at
		FROM apl.context
		WHERE id = $1
	`, id).Scan(
		&c.ID, &c.UserID, &c.EventID, &c.RecipientID, &c.BudgetMin, &c.BudgetMax,
		&c.FeaturesLike, &c.FeaturesNotLike, &c.FeaturesNg,
		&c.ContextText, &c.EmbeddingModel, &c.EmbeddingVersion,
		&c.ContextHash, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get context: %w", err)
	}
	c.FeaturesLike = nonNil(c.FeaturesLike)
	c.FeaturesNotLike = nonNil(c.FeaturesNotLike)
	c.FeaturesNg = nonNil(c.FeaturesNg)
	return &c, nil
}

// ListUserRecommendations returns one page of a user's recommendations, newest
// first, and the user's total count.
func (s *PostgresStore) ListUserRecommendations(ctx context.Context, userID string, offset, limit int) ([]models.RecommendationSummary, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM apl.recommendation WHERE user_id = $1`, userID,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count recommendations: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT r.id::text, r.context_id::text, r.algorithm, r.params, r.created_at,
			(SELECT count(*) FROM apl.recommendation_item i WHERE i.recommendation_id = r.id)
		FROM apl.recommendation r
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list recommendations: %w", err)
	}
	defer rows.Close()

	out := []models.RecommendationSummary{}
	for rows.Next() {
		var r models.RecommendationSummary
		var params []byte
		var created time.Time
		if err := rows.Scan(&r.ID, &r.ContextID, &r.Algorithm, &params, &created, &r.ItemCount); err != nil {
			return nil, 0, err
		}
		r.CreatedAt = created
		if r.Params, err = decodeParams(params); err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

func (s *PostgresStore) ItemDetails(ctx context.Context, ids []string) ([]models.ItemDetail, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, item_name, item_url, affiliate_url
		FROM apl.item
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("item details: %w", err)
	}
	defer rows.Close()

	var out []models.ItemDetail
	for rows.Next() {
		var d models.ItemDetail
		if err := rows.Scan(&d.ID, &d.Name, &d.URL, &d.AffiliateURL); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ItemImages returns images of the given items ordered by sort_order.
func (s *PostgresStore) ItemImages(ctx context.Context, ids []string) ([]models.ItemImage, error) {
	rows, err := s.pool.Query(ctx, itemImagesSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("item images: %w", err)
	}
	defer rows.Close()

	var out []models.ItemImage
	for rows.Next() {
		var img models.ItemImage
		if err := rows.Scan(&img.ItemID, &img.URL, &img.SortOrder); err != nil {
			return nil, err
		}
		out = append(out, img)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ItemPrices(ctx context.Context, ids []string) ([]models.ItemPrice, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT item_id::text, price_yen
		FROM apl.item_features
		WHERE item_id = ANY($1)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("item prices: %w", err)
	}
	defer rows.Close()

	var out []models.ItemPrice
	for rows.Next() {
		var p models.ItemPrice
		if err := rows.Scan(&p.ItemID, &p.PriceYen); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UserRole returns the role on the user's profile, or ErrNotFound without a profile.
func (s *PostgresStore) UserRole(ctx context.Context, userID string) (string, error) {
	var role *string
	err := s.pool.QueryRow(ctx,
		`SELECT role FROM apl.user_profile WHERE id = $1`, userID,
	).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get user role: %w", err)
	}
	if role == nil {
		return "", nil
	}
	return *role, nil
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}

func nullableJSON(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func decodeParams(raw []byte) (map[string]any, error) {
	params := map[string]any{}
	if len(raw) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return params, nil
}
