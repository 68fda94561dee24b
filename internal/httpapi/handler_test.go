// internal/httpapi/handler_test.go
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/36JungKwan/place-search-engine-RAG/internal/common/errors"
	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
	"github.com/36JungKwan/place-search-engine-RAG/internal/models"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/cascade"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/constraint"
	"github.com/36JungKwan/place-search-engine-RAG/internal/search/pipeline"
)

type fakeService struct {
	result   pipeline.Result
	err      error
	gotQuery string
	gotSID   string
	gotTopic bool
}

func (f *fakeService) Search(ctx context.Context, query, sessionID string, isNewTopic bool) (pipeline.Result, error) {
	f.gotQuery = query
	f.gotSID = sessionID
	f.gotTopic = isNewTopic
	return f.result, f.err
}

type fakePinger struct{ err error }

func (f fakePinger) Ping(ctx context.Context) error { return f.err }

func setupRouter(t *testing.T, svc SearchService, pg, rds Pinger) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHandler(svc, pg, rds, logger.NewTestLogger(t)).Register(engine)
	return engine
}

func doSearch(engine *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/search", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestSearchEndpointSuccess(t *testing.T) {
	m, err := constraint.New(constraint.Model{Query: "coffee", District: "District 1"})
	require.NoError(t, err)

	svc := &fakeService{result: pipeline.Result{
		Answer: "Try The Still!",
		Places: []models.ScoredPlace{
			{Place: models.Place{ID: 3, Name: "The Still", Address: "12 Ly Tu Trong", PriceRange: "30000 - 70000", OpeningHours: "07:00 - 22:00", Category: "cafe"}, Score: 0.812},
		},
		Constraints: m,
		Stage:       cascade.StageStrict,
	}}

	rec := doSearch(setupRouter(t, svc, fakePinger{}, fakePinger{}),
		`{"query":"coffee in D1","session_id":"s1","is_new_topic":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "coffee in D1", svc.gotQuery)
	assert.Equal(t, "s1", svc.gotSID)
	assert.True(t, svc.gotTopic)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Try The Still!", resp["answer"])

	places, ok := resp["places"].([]interface{})
	require.True(t, ok)
	require.Len(t, places, 1)
	place := places[0].(map[string]interface{})
	assert.Equal(t, "The Still", place["name"])
	assert.Equal(t, "0.81", place["score"])

	debug, ok := resp["debug_constraints"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "District 1", debug["district"])
}

func TestSearchEndpointRejectsMalformedPayload(t *testing.T) {
	svc := &fakeService{}
	engine := setupRouter(t, svc, fakePinger{}, fakePinger{})

	for _, body := range []string{
		`{"session_id":"s1"}`,
		`{"query":"coffee"}`,
		`not json`,
	} {
		rec := doSearch(engine, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "body: %s", body)
	}
	assert.Empty(t, svc.gotQuery, "the service must not run for bad payloads")
}

func TestSearchEndpointMapsStoreFailure(t *testing.T) {
	svc := &fakeService{err: apperrors.NewStoreUnavailableError(errors.New("down"))}

	rec := doSearch(setupRouter(t, svc, fakePinger{}, fakePinger{}),
		`{"query":"coffee","session_id":"s1"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSearchEndpointMapsOverload(t *testing.T) {
	svc := &fakeService{err: apperrors.NewUpstreamOverloadedError("extraction", 5)}

	rec := doSearch(setupRouter(t, svc, fakePinger{}, fakePinger{}),
		`{"query":"coffee","session_id":"s1"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestSearchEndpointEmptyOutcomeIsStill200(t *testing.T) {
	svc := &fakeService{result: pipeline.Result{
		Answer:      "Sorry, nothing matched.",
		Constraints: constraint.Default("unicorn cafe"),
		Stage:       cascade.StageNone,
	}}

	rec := doSearch(setupRouter(t, svc, fakePinger{}, fakePinger{}),
		`{"query":"unicorn cafe","session_id":"s1"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Sorry, nothing matched.", resp["answer"])
	assert.Empty(t, resp["places"])
}

func TestHealthEndpoint(t *testing.T) {
	engine := setupRouter(t, &fakeService{}, fakePinger{}, fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHealthEndpointDegraded(t *testing.T) {
	engine := setupRouter(t, &fakeService{}, fakePinger{err: errors.New("no route")}, fakePinger{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "degraded")
}
