package api

import (
	"context"
	"errors"
	"math"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/amirhf/giftreco/services/api-go/auth"
	"github.com/amirhf/giftreco/services/api-go/fingerprint"
	"github.com/amirhf/giftreco/services/api-go/logging"
	"github.com/amirhf/giftreco/services/api-go/metrics"
	"github.com/amirhf/giftreco/services/api-go/models"
	"github.com/amirhf/giftreco/services/api-go/reco"
	"github.com/amirhf/giftreco/services/api-go/storage"
	"github.com/amirhf/giftreco/services/api-go/validation"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	// maxPage keeps (page-1)*pageSize+pageSize within int.
	maxPage = math.MaxInt / maxPageSize
)

// Store is the persistence the recommendation endpoints need.
type Store interface {
	SaveRecommendation(ctx context.Context, in models.SaveRecommendationInput) (models.SavedRecommendation, error)
	GetRecommendationHeader(ctx context.Context, id string) (*models.RecommendationHeader, error)
	ListRecommendationItems(ctx context.Context, recommendationID string) ([]models.ItemRecord, error)
	GetContext(ctx context.Context, id string) (*models.Context, error)
	ListUserRecommendations(ctx context.Context, userID string, offset, limit int) ([]models.RecommendationSummary, int, error)
}

// Engine is the external recommendation engine.
type Engine interface {
	Recommend(ctx context.Context, req models.EngineRequest) (*models.EngineResponse, error)
}

type Enricher interface {
	Enrich(ctx context.Context, items []models.RankedItem) []models.EnrichedItem
}

type Handler struct {
	store    Store
	roles    RoleStore
	engine   Engine
	enricher Enricher
	now      func() time.Time
}

func NewHandler(store Store, roles RoleStore, engine Engine, enricher Enricher) *Handler {
	return &Handler{
		store:    store,
		roles:    roles,
		engine:   engine,
		enricher: enricher,
		now:      time.Now,
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{
		Status:    "ok",
		Service:   "api",
		Timestamp: h.now().UTC().Format(time.RFC3339),
	})
}

func (h *Handler) AdminPing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "admin": true})
}

// CreateRecommendation serves both anonymous and authenticated callers; the
// caller's identity, when present, is recorded as the owner.
func (h *Handler) CreateRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := auth.UserFromContext(ctx)

	var req models.RecommendationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondValidation(w, validation.New("body", "json", err.Error()))
		return
	}

	if !slices.Contains(models.Modes, req.Mode) {
		respondError(w, http.StatusBadRequest, "Invalid mode", map[string]any{"allowed": models.Modes})
		return
	}
	if verr := validateRequest(&req); verr != nil {
		respondValidation(w, verr)
		return
	}

	if user == nil && (req.EventID != nil || req.RecipientID != nil) {
		respondError(w, http.StatusUnauthorized, "eventId and recipientId require authentication", nil)
		return
	}

	override := ""
	if req.AlgorithmOverride != nil {
		if !slices.Contains(models.AlgorithmOverrides, *req.AlgorithmOverride) {
			respondError(w, http.StatusBadRequest, "Invalid algorithmOverride", map[string]any{"allowed": models.AlgorithmOverrides})
			return
		}
		if user == nil {
			respondError(w, http.StatusUnauthorized, "algorithmOverride requires authentication", nil)
			return
		}
		admin, err := h.isAdmin(ctx, user.ID)
		if err != nil {
			logging.Ctx(ctx).Error().Err(err).Str("user_id", user.ID).Msg("role lookup failed")
			respondError(w, http.StatusInternalServerError, "Failed to check role", nil)
			return
		}
		if !admin {
			respondError(w, http.StatusForbidden, "algorithmOverride is allowed for ADMIN only", nil)
			return
		}
		override = *req.AlgorithmOverride
	}

	engineReq := models.EngineRequest{
		Mode:                 req.Mode,
		EventID:              req.EventID,
		EventName:            req.EventName,
		RecipientID:          req.RecipientID,
		RecipientDescription: req.RecipientDescription,
		BudgetMin:            req.BudgetMin,
		BudgetMax:            req.BudgetMax,
		FeaturesLike:         cleanFeatures(req.FeaturesLike),
		FeaturesNotLike:      cleanFeatures(req.FeaturesNotLike),
		FeaturesNg:           cleanFeatures(req.FeaturesNg),
		AlgorithmOverride:    override,
	}

	resp, err := h.engine.Recommend(ctx, engineReq)
	if err != nil {
		h.respondEngineError(w, r, err)
		return
	}

	var userID *string
	if user != nil {
		userID = &user.ID
	}

	resolved := resolveAlgorithm(resp.Resolved.Name, override)
	embeddingModel := resp.Context.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = models.DefaultEmbeddingModel
	}
	embeddingVersion := models.DefaultEmbeddingVersion
	if resp.Context.EmbeddingVersion != nil {
		embeddingVersion = *resp.Context.EmbeddingVersion
	}

	hash, err := fingerprint.Compute(fingerprint.Input{
		UserID:               userID,
		EventID:              req.EventID,
		EventName:            req.EventName,
		RecipientID:          req.RecipientID,
		RecipientDescription: req.RecipientDescription,
		Mode:                 req.Mode,
		BudgetMin:            req.BudgetMin,
		BudgetMax:            req.BudgetMax,
		FeaturesLike:         req.FeaturesLike,
		FeaturesNotLike:      req.FeaturesNotLike,
		FeaturesNg:           req.FeaturesNg,
		EmbeddingModel:       embeddingModel,
		EmbeddingVersion:     embeddingVersion,
		EmbeddingContext:     resp.Context.ContextText,
	})
	if err != nil {
		respondInternal(w, r, err, "compute context hash")
		return
	}

	records := make([]models.ItemRecord, len(resp.Items))
	ranked := make([]models.RankedItem, len(resp.Items))
	for i, it := range resp.Items {
		records[i] = models.ItemRecord{
			ItemID:      it.ItemID,
			Rank:        i + 1,
			Score:       it.Score,
			VectorScore: it.VectorScore,
			RerankScore: it.RerankScore,
			Reason:      it.Reason,
		}
		ranked[i] = models.RankedItem{ItemID: it.ItemID, Rank: i + 1, Score: it.Score, Reason: it.Reason}
	}

	saved, err := h.store.SaveRecommendation(ctx, models.SaveRecommendationInput{
		UserID: userID,
		Context: models.ContextRecord{
			UserID:           userID,
			EventID:          req.EventID,
			RecipientID:      req.RecipientID,
			BudgetMin:        req.BudgetMin,
			BudgetMax:        req.BudgetMax,
			FeaturesLike:     fingerprint.NormalizeFeatures(req.FeaturesLike),
			FeaturesNotLike:  fingerprint.NormalizeFeatures(req.FeaturesNotLike),
			FeaturesNg:       fingerprint.NormalizeFeatures(req.FeaturesNg),
			ContextText:      resp.Context.ContextText,
			ContextVector:    resp.Context.ContextVector,
			EmbeddingModel:   embeddingModel,
			EmbeddingVersion: embeddingVersion,
			ContextHash:      hash,
		},
		Algorithm: resolved,
		Params:    headerParams(req.Mode, override, resp.Resolved.Params),
		Items:     records,
	})
	if err != nil {
		respondInternal(w, r, err, "save recommendation")
		return
	}
	metrics.RecommendationsSaved.Inc()

	items := h.enricher.Enrich(ctx, ranked)
	for i := range items {
		applyEngineFallback(&items[i], resp.Items[i])
	}

	resolvedParams := resp.Resolved.Params
	if resolvedParams == nil {
		resolvedParams = map[string]any{}
	}
	writeJSON(w, http.StatusOK, models.RecommendationResponse{
		RecommendationID:  saved.RecommendationID,
		ContextID:         saved.ContextID,
		Mode:              req.Mode,
		ResolvedAlgorithm: models.ResolvedAlgorithm{Name: resolved, Params: resolvedParams},
		Items:             items,
	})
}

func (h *Handler) GetRecommendation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := uuid.Parse(id); err != nil {
		respondError(w, http.StatusNotFound, "Not found", nil)
		return
	}

	header, err := h.store.GetRecommendationHeader(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Not found", nil)
		return
	}
	if err != nil {
		respondInternal(w, r, err, "GET /recommendations/{id}")
		return
	}

	if header.UserID != nil {
		user := auth.UserFromContext(ctx)
		if user == nil {
			respondError(w, http.StatusUnauthorized, "Authentication required", nil)
			return
		}
		if user.ID != *header.UserID {
			respondError(w, http.StatusForbidden, "Forbidden", nil)
			return
		}
	}

	rows, err := h.store.ListRecommendationItems(ctx, id)
	if err != nil {
		respondInternal(w, r, err, "GET /recommendations/{id}")
		return
	}
	recoCtx, err := h.store.GetContext(ctx, header.ContextID)
	if err != nil {
		respondInternal(w, r, err, "GET /recommendations/{id}")
		return
	}

	ranked := make([]models.RankedItem, len(rows))
	for i, row := range rows {
		ranked[i] = models.RankedItem{ItemID: row.ItemID, Rank: row.Rank, Score: row.Score, Reason: row.Reason}
	}

	writeJSON(w, http.StatusOK, models.RecommendationDetail{
		Header:  *header,
		Context: recoCtx,
		Items:   h.enricher.Enrich(ctx, ranked),
	})
}

func (h *Handler) ListRecommendations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user := auth.UserFromContext(ctx)
	if user == nil {
		respondError(w, http.StatusUnauthorized, "Unauthorized", nil)
		return
	}

	page, pageSize := parsePagination(r)
	from := (page - 1) * pageSize

	items, total, err := h.store.ListUserRecommendations(ctx, user.ID, from, pageSize)
	if err != nil {
		respondInternal(w, r, err, "GET /recommendations/list")
		return
	}
	if items == nil {
		items = []models.RecommendationSummary{}
	}

	writeJSON(w, http.StatusOK, models.RecommendationList{
		Items:      items,
		Page:       page,
		PageSize:   pageSize,
		TotalItems: total,
		TotalPages: (total + pageSize - 1) / pageSize,
		HasNext:    from+pageSize < total,
	})
}

func (h *Handler) isAdmin(ctx context.Context, userID string) (bool, error) {
	role, err := h.roles.UserRole(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role == auth.RoleAdmin, nil
}

func (h *Handler) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var up *reco.UpstreamError
	switch {
	case errors.As(err, &up):
		logging.Ctx(r.Context()).Warn().Int("status", up.Status).Msg("reco service error")
		respondError(w, up.Status, "Reco service error", map[string]any{"detail": up.Body})
	case errors.Is(err, reco.ErrNotConfigured):
		respondError(w, http.StatusInternalServerError, "RECO_BASE_URL is not set", nil)
	case errors.Is(err, reco.ErrUnavailable):
		logging.Ctx(r.Context()).Warn().Err(err).Msg("reco service unavailable")
		respondError(w, http.StatusInternalServerError, "Reco service unavailable", nil)
	default:
		respondInternal(w, r, err, "reco call failed")
	}
}

func validateRequest(req *models.RecommendationRequest) *validation.RequestValidationError {
	if verr := validation.ValidateStruct(req); verr != nil {
		return verr
	}
	if req.BudgetMin != nil && req.BudgetMax != nil && *req.BudgetMin > *req.BudgetMax {
		return validation.New("budgetMax", "gtefield", "budgetMax must be greater than or equal to budgetMin")
	}
	return nil
}

func resolveAlgorithm(engineName, override string) string {
	switch {
	case engineName != "":
		return engineName
	case override != "":
		return override
	default:
		return models.DefaultAlgorithm
	}
}

func headerParams(mode, override string, resolved map[string]any) map[string]any {
	params := map[string]any{"mode": mode, "algorithmOverride": nil}
	if override != "" {
		params["algorithmOverride"] = override
	}
	if len(resolved) > 0 {
		params["resolved"] = resolved
	}
	return params
}

// applyEngineFallback fills display fields the catalog could not supply with
// whatever the engine returned for the same item.
func applyEngineFallback(item *models.EnrichedItem, src models.EngineItem) {
	if item.ItemName == "" {
		item.ItemName = src.ItemName
	}
	if item.ItemURL == "" {
		item.ItemURL = src.ItemURL
	}
	if item.AffiliateURL == "" {
		item.AffiliateURL = src.AffiliateURL
	}
	if item.PriceYen == nil {
		item.PriceYen = src.PriceYen
	}
}

// cleanFeatures trims entries and drops empty ones, keeping the caller's order.
func cleanFeatures(xs []string) []string {
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if s := strings.TrimSpace(x); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parsePagination(r *http.Request) (page, pageSize int) {
	page = queryInt(r, "page", 1)
	pageSize = queryInt(r, "pageSize", defaultPageSize)
	page = min(max(page, 1), maxPage)
	pageSize = min(max(pageSize, 1), maxPageSize)
	return page, pageSize
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}
