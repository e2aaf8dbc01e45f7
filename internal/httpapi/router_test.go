package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/Mizroch-Management/ocma-sub004/internal/auth"
	"github.com/Mizroch-Management/ocma-sub004/internal/config"
	"github.com/Mizroch-Management/ocma-sub004/internal/credential"
	"github.com/Mizroch-Management/ocma-sub004/internal/executor"
	"github.com/Mizroch-Management/ocma-sub004/internal/job"
	"github.com/Mizroch-Management/ocma-sub004/internal/publisher"
)

type stubPublisher struct{}

func (stubPublisher) Platform() string { return "twitter" }

func (stubPublisher) Publish(ctx context.Context, accessToken string, content publisher.Content) (*publisher.Result, error) {
	_ = ctx
	_ = accessToken
	_ = content
	return &publisher.Result{RemoteID: "remote-1"}, nil
}

type testAPI struct {
	router *gin.Engine
	db     *gorm.DB
	secret string
	opKey  string
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&job.Job{}, &credential.Credential{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}

	opKey := "operator-key-1"
	opHash, err := auth.HashKey(opKey)
	if err != nil {
		t.Fatalf("hash key: %v", err)
	}

	cfg := config.Config{
		JWTSecret:       "test-secret",
		OperatorKeyHash: opHash,
		Platforms: map[string]config.PlatformConfig{
			"twitter": {},
		},
	}

	repo := job.NewRepo(db)
	creds := credential.NewStore(db)

	reg := publisher.NewRegistry()
	reg.Register(stubPublisher{})

	svc := job.NewService(repo, nil, reg.Platforms())
	exec := executor.New(executor.Deps{
		Jobs:        repo,
		Credentials: creds,
		Refresher:   credential.NewRefresher(cfg.Platforms),
		Publishers:  reg,
	})

	return &testAPI{
		router: NewRouter(cfg, svc, exec, creds),
		db:     db,
		secret: cfg.JWTSecret,
		opKey:  opKey,
	}
}

func (a *testAPI) bearer(t *testing.T, tenantID string) string {
	t.Helper()
	tok, err := auth.SignJWT(tenantID, a.secret, time.Hour)
	if err != nil {
		t.Fatalf("sign jwt: %v", err)
	}
	return "Bearer " + tok
}

func (a *testAPI) do(t *testing.T, method, path, authHeader, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var envelope struct {
		Code    int            `json:"code"`
		Message string         `json:"message"`
		Data    map[string]any `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
	return envelope.Data
}

func scheduleBody(at time.Time) string {
	return fmt.Sprintf(`{"kind":"publish","platform":"twitter","payload":{"text":"hi"},"scheduled_for":%q}`, at.Format(time.RFC3339))
}

func TestCreateJob(t *testing.T) {
	a := newTestAPI(t)
	tok := a.bearer(t, "tenant-1")

	w := a.do(t, http.MethodPost, "/jobs", tok, scheduleBody(time.Now().Add(time.Hour)))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	data := decodeData(t, w)
	if data["job_id"] == "" || data["status"] != "pending" {
		t.Fatalf("unexpected data: %v", data)
	}
}

func TestCreateJob_Rejections(t *testing.T) {
	a := newTestAPI(t)
	tok := a.bearer(t, "tenant-1")

	cases := []struct {
		name string
		body string
		want int
	}{
		{"past schedule", scheduleBody(time.Now().Add(-time.Hour)), http.StatusBadRequest},
		{"unknown platform", fmt.Sprintf(`{"kind":"publish","platform":"myspace","payload":{"text":"x"},"scheduled_for":%q}`, time.Now().Add(time.Hour).Format(time.RFC3339)), http.StatusBadRequest},
		{"bad retry config", fmt.Sprintf(`{"kind":"publish","platform":"twitter","payload":{"text":"x"},"scheduled_for":%q,"max_attempts":9}`, time.Now().Add(time.Hour).Format(time.RFC3339)), http.StatusBadRequest},
		{"not json", "not json", http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if w := a.do(t, http.MethodPost, "/jobs", tok, tc.body); w.Code != tc.want {
				t.Fatalf("expected %d, got %d: %s", tc.want, w.Code, w.Body.String())
			}
		})
	}

	if w := a.do(t, http.MethodPost, "/jobs", "", scheduleBody(time.Now().Add(time.Hour))); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}
}

func TestGetJob_TenantScoped(t *testing.T) {
	a := newTestAPI(t)

	w := a.do(t, http.MethodPost, "/jobs", a.bearer(t, "tenant-1"), scheduleBody(time.Now().Add(time.Hour)))
	jobID, _ := decodeData(t, w)["job_id"].(string)
	if jobID == "" {
		t.Fatalf("no job id in %s", w.Body.String())
	}

	w = a.do(t, http.MethodGet, "/jobs/"+jobID, a.bearer(t, "tenant-1"), "")
	if w.Code != http.StatusOK {
		t.Fatalf("owner get: expected 200, got %d", w.Code)
	}
	jv, _ := decodeData(t, w)["job"].(map[string]any)
	if jv["status"] != "pending" || jv["platform"] != "twitter" {
		t.Fatalf("unexpected projection: %v", jv)
	}

	// other tenants must not even learn the job exists
	if w := a.do(t, http.MethodGet, "/jobs/"+jobID, a.bearer(t, "tenant-2"), ""); w.Code != http.StatusNotFound {
		t.Fatalf("foreign get: expected 404, got %d", w.Code)
	}
}

func TestCancelJob(t *testing.T) {
	a := newTestAPI(t)
	tok := a.bearer(t, "tenant-1")

	w := a.do(t, http.MethodPost, "/jobs", tok, scheduleBody(time.Now().Add(time.Hour)))
	jobID, _ := decodeData(t, w)["job_id"].(string)

	if w := a.do(t, http.MethodPost, "/jobs/"+jobID+"/cancel", tok, ""); w.Code != http.StatusOK {
		t.Fatalf("cancel pending: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// cancelled is terminal; a second cancel conflicts
	if w := a.do(t, http.MethodPost, "/jobs/"+jobID+"/cancel", tok, ""); w.Code != http.StatusConflict {
		t.Fatalf("cancel terminal: expected 409, got %d", w.Code)
	}

	if w := a.do(t, http.MethodPost, "/jobs/01MISSING00000000000000000/cancel", tok, ""); w.Code != http.StatusNotFound {
		t.Fatalf("cancel missing: expected 404, got %d", w.Code)
	}
}

func TestPutAccount(t *testing.T) {
	a := newTestAPI(t)
	tok := a.bearer(t, "tenant-1")

	body := `{"access_token":"tok-1","refresh_token":"refresh-1","expires_in":3600}`
	if w := a.do(t, http.MethodPut, "/accounts/twitter", tok, body); w.Code != http.StatusOK {
		t.Fatalf("put account: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w := a.do(t, http.MethodPut, "/accounts/myspace", tok, body); w.Code != http.StatusBadRequest {
		t.Fatalf("unknown platform: expected 400, got %d", w.Code)
	}
	if w := a.do(t, http.MethodPut, "/accounts/twitter", tok, `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing access token: expected 400, got %d", w.Code)
	}
}

func TestSweep_OperatorGuardAndExecution(t *testing.T) {
	a := newTestAPI(t)
	tok := a.bearer(t, "tenant-1")

	// connect the account, then backdate a scheduled job so it is due
	if w := a.do(t, http.MethodPut, "/accounts/twitter", tok, `{"access_token":"tok-1"}`); w.Code != http.StatusOK {
		t.Fatalf("put account: %d", w.Code)
	}
	w := a.do(t, http.MethodPost, "/jobs", tok, scheduleBody(time.Now().Add(time.Minute)))
	jobID, _ := decodeData(t, w)["job_id"].(string)
	if err := a.db.Model(&job.Job{}).Where("id = ?", jobID).
		Update("scheduled_for", time.Now().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("backdate: %v", err)
	}

	// no key, wrong key
	if w := a.do(t, http.MethodPost, "/jobs/sweep", "", ""); w.Code != http.StatusForbidden {
		t.Fatalf("sweep without key: expected 403, got %d", w.Code)
	}
	req := httptest.NewRequest(http.MethodPost, "/jobs/sweep", nil)
	req.Header.Set("X-Operator-Key", "wrong")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("sweep with wrong key: expected 403, got %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/jobs/sweep", nil)
	req.Header.Set("X-Operator-Key", a.opKey)
	rec = httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("sweep: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	data := decodeData(t, rec)
	if data["processed"] != float64(1) {
		t.Fatalf("expected processed=1, got %v", data)
	}

	w = a.do(t, http.MethodGet, "/jobs/"+jobID, tok, "")
	jv, _ := decodeData(t, w)["job"].(map[string]any)
	if jv["status"] != "completed" {
		t.Fatalf("expected completed after sweep, got %v", jv["status"])
	}
}
