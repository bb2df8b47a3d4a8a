package history

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/contradeploy/internal/deployer"
)

// mockService implements Service for handler tests
type mockService struct {
	deployments map[string]*Deployment
	lastFilter  ListFilter
	lastPage    PaginationParams
}

func newMockService() *mockService {
	return &mockService{deployments: make(map[string]*Deployment)}
}

func (m *mockService) RecordDeployment(ctx context.Context, result *deployer.DeploymentResult) error {
	return nil
}

func (m *mockService) RecordVerification(ctx context.Context, result *deployer.DeploymentResult, outcome *deployer.VerificationOutcome) error {
	return nil
}

func (m *mockService) Get(ctx context.Context, chainID, address string) (*Deployment, error) {
	if err := validateChainID(chainID); err != nil {
		return nil, err
	}
	if d, ok := m.deployments[chainID+"/"+address]; ok {
		return d, nil
	}
	return nil, ErrNotFound
}

func (m *mockService) List(ctx context.Context, filter ListFilter, pagination PaginationParams) (*ListResult, error) {
	m.lastFilter = filter
	m.lastPage = pagination
	var out []Deployment
	for _, d := range m.deployments {
		out = append(out, *d)
	}
	return &ListResult{Deployments: out, HasMore: true, NextCursor: "20"}, nil
}

func setupRouter(svc Service) *chi.Mux {
	r := chi.NewRouter()
	r.Route("/api/v1/deployments", NewHandler(svc).RegisterRoutes)
	return r
}

func TestHandler_Get(t *testing.T) {
	svc := newMockService()
	verifiedAt := time.Date(2026, 3, 1, 12, 5, 0, 0, time.UTC)
	svc.deployments["31337/0x5FbDB2315678afecb367f032d93F642f64180aa3"] = &Deployment{
		ID:       "d-1",
		ChainID:  "31337",
		Address:  "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Contract: "src/Token.sol:Token",
		Verification: &Verification{
			Status:     "verified",
			Provider:   "etherscan",
			VerifiedAt: &verifiedAt,
		},
	}
	router := setupRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deployments/31337/0x5FbDB2315678afecb367f032d93F642f64180aa3", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var got Deployment
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, "src/Token.sol:Token", got.Contract)
	require.NotNil(t, got.Verification)
	assert.Equal(t, "verified", got.Verification.Status)
	assert.True(t, got.Verified())
}

func TestHandler_GetErrors(t *testing.T) {
	router := setupRouter(newMockService())

	tests := []struct {
		name     string
		path     string
		wantCode int
		wantErr  string
	}{
		{"not found", "/api/v1/deployments/1/0x0000000000000000000000000000000000000001", http.StatusNotFound, "NOT_FOUND"},
		{"bad chain", "/api/v1/deployments/mainnet/0x0000000000000000000000000000000000000001", http.StatusBadRequest, "INVALID_REQUEST"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.wantCode, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.Equal(t, tt.wantErr, resp.Error.Code)
		})
	}
}

func TestHandler_List(t *testing.T) {
	svc := newMockService()
	svc.deployments["1/0xa"] = &Deployment{ID: "d-1", ChainID: "1", Address: "0xa"}
	router := setupRouter(svc)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/deployments/?network=sepolia&chain_id=11155111&contract=Token&verified=false&limit=5&cursor=10", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp ListResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Len(t, resp.Data, 1)
	assert.Equal(t, 5, resp.Pagination.Limit)
	assert.True(t, resp.Pagination.HasMore)
	assert.Equal(t, "20", resp.Pagination.NextCursor)

	assert.Equal(t, "sepolia", svc.lastFilter.Network)
	assert.Equal(t, "11155111", svc.lastFilter.ChainID)
	assert.Equal(t, "Token", svc.lastFilter.Contract)
	require.NotNil(t, svc.lastFilter.Verified)
	assert.False(t, *svc.lastFilter.Verified)
	assert.Equal(t, PaginationParams{Limit: 5, Cursor: "10"}, svc.lastPage)
}

func TestHandler_ListEmpty(t *testing.T) {
	router := setupRouter(newMockService())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deployments/", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"data":[]`)
}

func TestHandler_ListBadParams(t *testing.T) {
	router := setupRouter(newMockService())

	for _, query := range []string{"limit=0", "limit=101", "limit=x", "verified=maybe"} {
		t.Run(query, func(t *testing.T) {
			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/deployments/?"+query, nil))
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}
