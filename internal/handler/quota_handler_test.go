package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"rdmquota/internal/auth"
	"rdmquota/internal/domain"
	"rdmquota/internal/service"
)

// Stubs carrying just enough state for the read-side endpoints: one user, one
// default-storage project, one coarse quota row.

type stubProjectStore struct{}

func (stubProjectStore) GetByGUID(_ context.Context, guid string) (*domain.Project, error) {
	if guid != "prj1" {
		return nil, nil
	}
	return &domain.Project{ID: 1, GUID: "prj1", CreatorID: 1}, nil
}

func (stubProjectStore) GetStorageType(_ context.Context, projectID int64) (domain.StorageType, bool, error) {
	return domain.StorageTypeDefault, true, nil
}

func (stubProjectStore) ListOwnedByStorageType(_ context.Context, creatorID int64, storageType domain.StorageType) ([]domain.Project, error) {
	return nil, nil
}

func (stubProjectStore) GetUserByGUID(_ context.Context, guid string) (*domain.User, error) {
	if guid != "usr1" {
		return nil, nil
	}
	return &domain.User{ID: 1, GUID: "usr1"}, nil
}

func (stubProjectStore) GetUserByID(_ context.Context, id int64) (*domain.User, error) {
	return &domain.User{ID: 1, GUID: "usr1"}, nil
}

type stubRegionStore struct{}

func (stubRegionStore) GetByID(_ context.Context, id int64) (*domain.Region, error) {
	return nil, nil
}

func (stubRegionStore) FindByInstitutionAndProvider(_ context.Context, institutionID int64, provider string) (*domain.Region, error) {
	return nil, nil
}

type stubQuotaStore struct{}

func (stubQuotaStore) GetUserStorageQuota(_ context.Context, userID, regionID int64) (*domain.UserStorageQuota, error) {
	return nil, nil
}
func (stubQuotaStore) AddUsedWithDefault(_ context.Context, userID, regionID, delta int64) error {
	return nil
}
func (stubQuotaStore) SubtractSizesClamped(_ context.Context, userID, regionID int64, sizes []int64) error {
	return nil
}
func (stubQuotaStore) UpdateUsedWithCreate(_ context.Context, userID, regionID, size int64, add bool) error {
	return nil
}
func (stubQuotaStore) SetUsedIfExists(_ context.Context, userID, regionID, used int64) (bool, error) {
	return false, nil
}
func (stubQuotaStore) SetMaxQuota(_ context.Context, userID, regionID, maxQuota int64) error {
	return nil
}
func (stubQuotaStore) ListUserStorageQuotas(_ context.Context) ([]domain.UserStorageQuota, error) {
	return nil, nil
}
func (stubQuotaStore) GetUserQuota(_ context.Context, userID int64, storageType domain.StorageType) (*domain.UserQuota, error) {
	return &domain.UserQuota{UserID: userID, StorageType: storageType, MaxQuota: 100, Used: 1234}, nil
}
func (stubQuotaStore) UpsertUserQuotaUsed(_ context.Context, userID int64, storageType domain.StorageType, used int64) error {
	return nil
}

func newTestRouter() http.Handler {
	auth.Init(&auth.Config{SessionSecret: "session-secret", InternalSecret: "internal-secret"})

	projects := stubProjectStore{}
	quotas := stubQuotaStore{}
	catalog := service.NewCatalogService(stubRegionStore{})
	classifier := service.NewClassifierService(projects, nil)
	recalc := service.NewRecalcService(projects, nil, stubRegionStore{}, quotas, 1, zerolog.Nop())
	query := service.NewQueryService(projects, classifier, catalog, quotas, recalc, zerolog.Nop())
	ledger := service.NewLedgerService(projects, nil, nil, quotas, catalog, classifier, nil, 1, zerolog.Nop())

	quotaHandler := NewQuotaHandler(query, recalc)
	eventHandler := NewEventHandler(ledger)

	r := chi.NewRouter()
	r.Route("/v1/quota", func(r chi.Router) {
		r.Get("/{guid}", quotaHandler.GetQuotaInfo)
		r.Get("/{guid}/institutional-storage", quotaHandler.GetInstitutionStorageQuotaInfo)
		r.Put("/institutional-storage/limit", quotaHandler.UpdateStorageMaxQuota)
	})
	r.Route("/internal/v1", func(r chi.Router) {
		r.Get("/quota/{guid}", quotaHandler.GetQuotaInfoInternal)
		r.Post("/quota/recalculate", quotaHandler.Recalculate)
		r.Post("/events", eventHandler.HandleFileEvent)
	})
	return r
}

func doRequest(t *testing.T, router http.Handler, method, target, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestQuotaInfoRequiresAuth(t *testing.T) {
	router := newTestRouter()

	rec := doRequest(t, router, http.MethodGet, "/v1/quota/prj1", "", "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestQuotaInfoResponseShape(t *testing.T) {
	router := newTestRouter()
	token, err := auth.SignToken("usr1")
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}

	rec := doRequest(t, router, http.MethodGet, "/v1/quota/prj1", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var info struct {
		Max  int64 `json:"max"`
		Used int64 `json:"used"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if info.Max != 100*domain.SizeUnit {
		t.Errorf("max = %d, want %d", info.Max, 100*domain.SizeUnit)
	}
	if info.Used != 1234 {
		t.Errorf("used = %d, want 1234", info.Used)
	}
}

func TestQuotaInfoUnknownProject(t *testing.T) {
	router := newTestRouter()
	token, _ := auth.SignToken("usr1")

	rec := doRequest(t, router, http.MethodGet, "/v1/quota/nope", token, "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestInstitutionStorageQuotaRejectsMissingParams(t *testing.T) {
	router := newTestRouter()
	token, _ := auth.SignToken("usr1")

	rec := doRequest(t, router, http.MethodGet, "/v1/quota/prj1/institutional-storage?provider=osfstorage", token, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing path: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, router, http.MethodGet, "/v1/quota/prj1/institutional-storage?path=/x", token, "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing provider: status = %d, want 400", rec.Code)
	}
}

func TestInternalEndpointRejectsSessionToken(t *testing.T) {
	router := newTestRouter()
	token, _ := auth.SignToken("usr1")

	rec := doRequest(t, router, http.MethodGet, "/internal/v1/quota/prj1", token, "")
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestInternalQuotaInfoWithInternalToken(t *testing.T) {
	router := newTestRouter()
	token, _ := auth.SignInternalToken("storage-service")

	rec := doRequest(t, router, http.MethodGet, "/internal/v1/quota/prj1", token, "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestEventEndpointValidation(t *testing.T) {
	router := newTestRouter()
	token, _ := auth.SignInternalToken("storage-service")

	rec := doRequest(t, router, http.MethodPost, "/internal/v1/events", token, "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", rec.Code)
	}

	rec = doRequest(t, router, http.MethodPost, "/internal/v1/events", token, `{"target":"prj1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing event_type: status = %d, want 400", rec.Code)
	}
}

func TestEventEndpointAcceptsUntrackedProvider(t *testing.T) {
	router := newTestRouter()
	token, _ := auth.SignInternalToken("storage-service")

	body := `{"event_type":"file_added","target":"prj1","user":"usr1","payload":{"provider":"github","metadata":{"path":"/x","kind":"file","size":100}}}`
	rec := doRequest(t, router, http.MethodPost, "/internal/v1/events", token, body)
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
}

func TestRecalculateRejectsBadBody(t *testing.T) {
	router := newTestRouter()
	token, _ := auth.SignInternalToken("storage-service")

	rec := doRequest(t, router, http.MethodPost, "/internal/v1/quota/recalculate", token, "nope")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}
