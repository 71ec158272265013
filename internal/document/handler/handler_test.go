package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/access"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/handout"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/markdown"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/repository"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/document/service"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/models"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/profiles"
	"github.com/dentalhub/dentalhub/backend/go-services/internal/sessions"
	"github.com/dentalhub/dentalhub/backend/go-services/pkg/middleware"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSessions = map[string]*sessions.Session{
	"doctor":   {UserID: "doc-1", Role: sessions.RoleDoctor, Email: "doctor@test.com", Token: "tok-doctor"},
	"rival":    {UserID: "doc-2", Role: sessions.RoleDoctor, Email: "rival@test.com", Token: "tok-rival"},
	"orphan":   {UserID: "doc-3", Role: sessions.RoleDoctor, Email: "orphan@test.com", Token: "tok-orphan"},
	"patient":  {UserID: "pat-1", Role: sessions.RolePatient, Email: "patient@test.com", Token: "tok-patient"},
	"newcomer": {UserID: "pat-9", Role: sessions.RolePatient, Email: "new@test.com", Token: "tok-newcomer"},
}

// fakeAuth stands in for middleware.AuthMiddleware: X-Test-User picks the session.
func fakeAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess, ok := testSessions[c.GetHeader("X-Test-User")]
		if !ok {
			c.Next()
			return
		}
		s := *sess
		c.Set(middleware.SessionKey, &s)
		c.Set(middleware.ClaimsKey, map[string]interface{}{
			"sub":  s.UserID,
			"name": "Test User",
			"exp":  float64(time.Now().Add(time.Hour).Unix()),
		})
		c.Next()
	}
}

type fakeObjects struct {
	puts map[string][]byte
}

func (f *fakeObjects) Put(ctx context.Context, key string, data []byte, contentType string) error {
	f.puts[key] = data
	return nil
}

func (f *fakeObjects) PresignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	return "https://objects.test/" + key + "?sig=x", nil
}

func seedProfiles(t *testing.T) *profiles.Service {
	t.Helper()
	ctx := context.Background()
	repo := profiles.NewMemoryRepository()
	for _, c := range []string{"clinic-1", "clinic-2"} {
		require.NoError(t, repo.UpsertClinic(ctx, &models.Clinic{ID: c, Name: c}))
	}
	records := []*models.ProfileRecord{
		{ID: "doc-1", Role: "doctor", Email: "doctor@test.com", Doctor: &models.DoctorDetails{ClinicID: "clinic-1"}},
		{ID: "doc-2", Role: "doctor", Email: "rival@test.com", Doctor: &models.DoctorDetails{ClinicID: "clinic-2"}},
		{ID: "doc-3", Role: "doctor", Email: "orphan@test.com", Doctor: &models.DoctorDetails{}},
		{ID: "pat-1", Role: "patient", Email: "patient@test.com", Patient: &models.PatientDetails{InsuranceProvider: "Blue Cross"}},
	}
	for _, r := range records {
		_, err := repo.UpsertProfile(ctx, r)
		require.NoError(t, err)
	}
	return profiles.NewService(repo)
}

type testAPI struct {
	engine  *gin.Engine
	objects *fakeObjects
}

func newTestAPI(t *testing.T, docs service.Repository, withHandouts bool) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)
	authz, err := access.NewAuthorizer()
	require.NoError(t, err)
	if docs == nil {
		docs = service.New(repository.NewMemoryRepo(), nil)
	}
	renderer := markdown.NewRenderer()
	api := &testAPI{engine: gin.New(), objects: &fakeObjects{puts: map[string][]byte{}}}
	deps := Deps{Documents: docs, Profiles: seedProfiles(t), Authorizer: authz, Renderer: renderer}
	if withHandouts {
		deps.Handouts = handout.NewPublisher(api.objects, renderer, time.Hour)
	}
	RegisterDocumentRoutes(api.engine.Group("/", fakeAuth()), deps)
	return api
}

func (a *testAPI) do(t *testing.T, user, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-Test-User", user)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func decodeDoc(t *testing.T, w *httptest.ResponseRecorder) document.Document {
	t.Helper()
	var d document.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d), w.Body.String())
	return d
}

func errorOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return body["error"]
}

func TestDocumentLifecycle(t *testing.T) {
	api := newTestAPI(t, nil, false)

	w := api.do(t, "doctor", http.MethodPost, "/api/documents",
		`{"title":"  Post-Op Care ","content":"# Aftercare\n- rest","category":"instructions","tags":["Surgery"],"clinic_id":"clinic-2","created_by":"someone"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decodeDoc(t, w)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, "Post-Op Care", created.Title)
	assert.Equal(t, "clinic-1", created.ClinicID)
	assert.Equal(t, "doc-1", created.CreatedBy)
	assert.Equal(t, 1, created.Version)
	assert.False(t, created.IsSharedWithPatients)

	w = api.do(t, "doctor", http.MethodGet, "/api/documents/"+created.ID, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decodeDoc(t, w).ID)

	w = api.do(t, "doctor", http.MethodPatch, "/api/documents/"+created.ID, `{"title":"Post-Op Care v2"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decodeDoc(t, w)
	assert.Equal(t, "Post-Op Care v2", updated.Title)
	assert.Equal(t, 2, updated.Version)
	assert.Equal(t, []string{"Surgery"}, updated.Tags)

	// no fields: nothing is written
	w = api.do(t, "doctor", http.MethodPatch, "/api/documents/"+created.ID, `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, decodeDoc(t, w).Version)

	w = api.do(t, "doctor", http.MethodPut, "/api/documents/"+created.ID+"/share", `{"shared":true}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	shared := decodeDoc(t, w)
	assert.True(t, shared.IsSharedWithPatients)
	assert.Equal(t, 2, shared.Version)

	w = api.do(t, "doctor", http.MethodPost, "/api/documents/"+created.ID+"/duplicate", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	dup := decodeDoc(t, w)
	assert.NotEqual(t, created.ID, dup.ID)
	assert.Equal(t, "Post-Op Care v2", dup.Title)
	assert.Equal(t, 1, dup.Version)
	assert.False(t, dup.IsSharedWithPatients)

	w = api.do(t, "doctor", http.MethodGet, "/api/documents?search=surgery", "")
	require.Equal(t, http.StatusOK, w.Code)
	var listed []document.Document
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed, 2)

	w = api.do(t, "doctor", http.MethodGet, "/api/documents/"+created.ID+"/preview", "")
	require.Equal(t, http.StatusOK, w.Code)
	var preview map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.Contains(t, preview["html"], "<h1>Aftercare</h1>")

	w = api.do(t, "doctor", http.MethodDelete, "/api/documents/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)
	w = api.do(t, "doctor", http.MethodDelete, "/api/documents/"+created.ID, "")
	require.Equal(t, http.StatusNoContent, w.Code)

	w = api.do(t, "doctor", http.MethodGet, "/api/documents/"+created.ID, "")
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, document.MsgNotFound, errorOf(t, w))
}

func TestValidationErrors(t *testing.T) {
	api := newTestAPI(t, nil, false)

	w := api.do(t, "doctor", http.MethodPost, "/api/documents", `{"title":"  ","content":"x"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, document.MsgTitleRequired, errorOf(t, w))

	w = api.do(t, "doctor", http.MethodPost, "/api/documents", `{"title":"A","content":""}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, document.MsgContentRequired, errorOf(t, w))

	w = api.do(t, "doctor", http.MethodGet, "/api/documents?category=billing", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, document.MsgInvalidCategory, errorOf(t, w))

	w = api.do(t, "doctor", http.MethodPost, "/api/documents", `{"title":"A","content":"B"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeDoc(t, w).ID

	w = api.do(t, "doctor", http.MethodPatch, "/api/documents/"+id, `{"content":"   "}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, document.MsgContentRequired, errorOf(t, w))

	w = api.do(t, "doctor", http.MethodPut, "/api/documents/"+id+"/share", `{}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClinicIsolation(t *testing.T) {
	api := newTestAPI(t, nil, false)

	w := api.do(t, "doctor", http.MethodPost, "/api/documents", `{"title":"Mine","content":"x"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeDoc(t, w).ID

	for _, tc := range []struct{ method, path, body string }{
		{http.MethodGet, "/api/documents/" + id, ""},
		{http.MethodPatch, "/api/documents/" + id, `{"title":"Theirs"}`},
		{http.MethodDelete, "/api/documents/" + id, ""},
		{http.MethodPost, "/api/documents/" + id + "/duplicate", ""},
		{http.MethodPut, "/api/documents/" + id + "/share", `{"shared":true}`},
	} {
		w = api.do(t, "rival", tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusForbidden, w.Code, tc.method+" "+tc.path)
	}

	w = api.do(t, "rival", http.MethodGet, "/api/documents", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = api.do(t, "orphan", http.MethodGet, "/api/documents", "")
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, profiles.ErrNoClinic.Error(), errorOf(t, w))

	w = api.do(t, "", http.MethodGet, "/api/documents", "")
	require.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, document.MsgNotAuthenticated, errorOf(t, w))
}

func TestPatientSeesSharedDocumentsOnly(t *testing.T) {
	api := newTestAPI(t, nil, false)

	w := api.do(t, "doctor", http.MethodPost, "/api/documents", `{"title":"Brushing","content":"Twice a day"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	id := decodeDoc(t, w).ID

	w = api.do(t, "patient", http.MethodGet, "/api/documents/"+id, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = api.do(t, "doctor", http.MethodPut, "/api/documents/"+id+"/share", `{"shared":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, "patient", http.MethodGet, "/api/documents/"+id, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = api.do(t, "patient", http.MethodGet, "/api/documents/"+id+"/preview", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, "patient", http.MethodPatch, "/api/documents/"+id, `{"title":"x"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(t, "patient", http.MethodGet, "/api/documents", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = api.do(t, "patient", http.MethodPost, "/api/documents", `{"title":"x","content":"y"}`)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestHandout(t *testing.T) {
	disabled := newTestAPI(t, nil, false)
	w := disabled.do(t, "doctor", http.MethodPost, "/api/documents/any/handout", "")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	api := newTestAPI(t, nil, true)
	w = api.do(t, "doctor", http.MethodPost, "/api/documents", `{"title":"Flossing","content":"Daily"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	d := decodeDoc(t, w)

	w = api.do(t, "doctor", http.MethodPost, "/api/documents/"+d.ID+"/handout", "")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, handout.MsgNotShared, errorOf(t, w))

	w = api.do(t, "doctor", http.MethodPut, "/api/documents/"+d.ID+"/share", `{"shared":true}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = api.do(t, "doctor", http.MethodPost, "/api/documents/"+d.ID+"/handout", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var out handout.Handout
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "clinics/clinic-1/documents/"+d.ID+"/v1.html", out.Key)
	assert.Contains(t, out.URL, out.Key)
	assert.Contains(t, string(api.objects.puts[out.Key]), "Flossing")

	// patients may read but not publish
	w = api.do(t, "patient", http.MethodPost, "/api/documents/"+d.ID+"/handout", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

type failingDocs struct {
	service.Repository
}

func (failingDocs) List(ctx context.Context, clinicID string, category document.Category, search string) ([]*document.Document, error) {
	return nil, &document.StoreError{Message: "Failed to fetch documents", Err: errors.New("dial tcp: connection refused")}
}

func TestStoreFailureHidesCause(t *testing.T) {
	api := newTestAPI(t, failingDocs{}, false)
	w := api.do(t, "doctor", http.MethodGet, "/api/documents", "")
	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to fetch documents", errorOf(t, w))
}

func TestMe(t *testing.T) {
	api := newTestAPI(t, nil, false)

	w := api.do(t, "doctor", http.MethodGet, "/api/v1/me", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Role    string                 `json:"role"`
		Profile map[string]interface{} `json:"profile"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "doctor", body.Role)
	assert.Equal(t, "clinic-1", body.Profile["clinic_id"])

	w = api.do(t, "newcomer", http.MethodGet, "/api/v1/me", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "patient", body.Role)
	assert.Equal(t, "Test User", body.Profile["full_name"])

	w = api.do(t, "", http.MethodGet, "/api/v1/me", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLogoutRevokesToken(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sessions.SetRevocationClient(client)
	t.Cleanup(func() { sessions.SetRevocationClient(nil) })

	api := newTestAPI(t, nil, false)
	w := api.do(t, "doctor", http.MethodPost, "/api/v1/logout", "")
	require.Equal(t, http.StatusOK, w.Code)

	revoked, err := sessions.IsTokenRevoked(context.Background(), "tok-doctor")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Greater(t, mr.TTL("dentalhub:revoked:tok-doctor"), 50*time.Minute)
}
