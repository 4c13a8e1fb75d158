package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"

	"github.com/amirhf/giftreco/services/api-go/auth"
	"github.com/amirhf/giftreco/services/api-go/enrich"
	"github.com/amirhf/giftreco/services/api-go/models"
	"github.com/amirhf/giftreco/services/api-go/storage"
)

func ptr[T any](v T) *T { return &v }

// fakeVerifier maps bearer tokens to user ids.
type fakeVerifier map[string]string

func (f fakeVerifier) Verify(_ context.Context, token string) (*auth.User, error) {
	id, ok := f[token]
	if !ok {
		return nil, auth.ErrInvalidToken
	}
	return &auth.User{ID: id}, nil
}

// fakeRoles maps user ids to roles; a missing id has no profile.
type fakeRoles struct {
	roles map[string]string
	err   error
}

func (f *fakeRoles) UserRole(_ context.Context, userID string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	role, ok := f.roles[userID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return role, nil
}

type fakeEngine struct {
	mu   sync.Mutex
	resp *models.EngineResponse
	err  error
	reqs []models.EngineRequest
}

func (f *fakeEngine) Recommend(_ context.Context, req models.EngineRequest) (*models.EngineResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type listCall struct {
	userID        string
	offset, limit int
}

type fakeStore struct {
	mu sync.Mutex

	saved     []models.SaveRecommendationInput
	saveErr   error
	headers   map[string]*models.RecommendationHeader
	items     map[string][]models.ItemRecord
	contexts  map[string]*models.Context
	summaries []models.RecommendationSummary
	total     int
	listCalls []listCall

	details []models.ItemDetail
	images  []models.ItemImage
	prices  []models.ItemPrice
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		headers:  map[string]*models.RecommendationHeader{},
		items:    map[string][]models.ItemRecord{},
		contexts: map[string]*models.Context{},
	}
}

func (f *fakeStore) SaveRecommendation(_ context.Context, in models.SaveRecommendationInput) (models.SavedRecommendation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return models.SavedRecommendation{}, f.saveErr
	}
	f.saved = append(f.saved, in)
	return models.SavedRecommendation{ContextID: "ctx-1", RecommendationID: "rec-1"}, nil
}

func (f *fakeStore) GetRecommendationHeader(_ context.Context, id string) (*models.RecommendationHeader, error) {
	h, ok := f.headers[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return h, nil
}

func (f *fakeStore) ListRecommendationItems(_ context.Context, id string) ([]models.ItemRecord, error) {
	return f.items[id], nil
}

func (f *fakeStore) GetContext(_ context.Context, id string) (*models.Context, error) {
	return f.contexts[id], nil
}

func (f *fakeStore) ListUserRecommendations(_ context.Context, userID string, offset, limit int) ([]models.RecommendationSummary, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls = append(f.listCalls, listCall{userID: userID, offset: offset, limit: limit})
	return f.summaries, f.total, nil
}

func (f *fakeStore) ItemDetails(_ context.Context, _ []string) ([]models.ItemDetail, error) {
	return f.details, nil
}

func (f *fakeStore) ItemImages(_ context.Context, _ []string) ([]models.ItemImage, error) {
	return f.images, nil
}

func (f *fakeStore) ItemPrices(_ context.Context, _ []string) ([]models.ItemPrice, error) {
	return f.prices, nil
}

type testEnv struct {
	store  *fakeStore
	roles  *fakeRoles
	engine *fakeEngine
	router http.Handler
}

const (
	adminToken = "admin-token"
	userToken  = "user-token"
	otherToken = "other-token"
	ghostToken = "ghost-token"
)

func newTestEnv() *testEnv {
	env := &testEnv{
		store: newFakeStore(),
		roles: &fakeRoles{roles: map[string]string{
			"admin-1": auth.RoleAdmin,
			"user-1":  "USER",
			"other-1": "USER",
		}},
		engine: &fakeEngine{resp: &models.EngineResponse{}},
	}
	verifier := fakeVerifier{
		adminToken: "admin-1",
		userToken:  "user-1",
		otherToken: "other-1",
		ghostToken: "ghost-1",
	}
	h := NewHandler(env.store, env.roles, env.engine, enrich.New(env.store))
	env.router = NewRouter(RouterConfig{
		Handler:     h,
		Verifier:    verifier,
		Roles:       env.roles,
		CORSOrigins: []string{"*"},
	})
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}
