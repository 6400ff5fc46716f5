package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pagemill/crawl-ingest-service/common/config"
	"github.com/pagemill/crawl-ingest-service/common/services"
	"github.com/pagemill/crawl-ingest-service/pipeline"
	"github.com/pagemill/crawl-ingest-service/policy"
	"github.com/pagemill/crawl-ingest-service/transform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStager struct {
	result pipeline.StageResult
	err    error
}

func (f *fakeStager) Run(context.Context) (pipeline.StageResult, error) {
	return f.result, f.err
}

type fakeOrchestrator struct {
	runGUID  string
	startErr error
	resetErr error
	resets   int
}

func (f *fakeOrchestrator) StartRun(context.Context) (string, pipeline.StageResult, error) {
	return f.runGUID, pipeline.StageResult{}, f.startErr
}

func (f *fakeOrchestrator) Reset(context.Context) error {
	f.resets++
	return f.resetErr
}

type fakePageService struct {
	hashes  map[string]string
	nextID  int64
	upserts int
}

func newFakePageService() *fakePageService {
	return &fakePageService{hashes: make(map[string]string), nextID: 1}
}

func (f *fakePageService) ContentHash(_ context.Context, url string) (string, bool, error) {
	h, ok := f.hashes[url]
	return h, ok, nil
}

func (f *fakePageService) Upsert(_ context.Context, params services.UpsertPageParams) (int64, bool, error) {
	f.upserts++
	changed := f.hashes[params.URL] != params.ContentHash
	f.hashes[params.URL] = params.ContentHash
	return f.nextID, changed, nil
}

func (f *fakePageService) ClearTouched(context.Context) (int64, error)            { return 0, nil }
func (f *fakePageService) InsertNewFromCandidates(context.Context) (int64, error) { return 0, nil }
func (f *fakePageService) FlagStaleFromCandidates(context.Context) (int64, error) { return 0, nil }

type fakeArtifactService struct {
	calls int
}

func (f *fakeArtifactService) ReplaceBlocks(context.Context, int64, []transform.Block) error {
	f.calls++
	return nil
}

func (f *fakeArtifactService) ReplaceLinks(context.Context, int64, []transform.Link) error {
	f.calls++
	return nil
}

func (f *fakeArtifactService) ReplaceChunks(context.Context, int64, []transform.Chunk) error {
	f.calls++
	return nil
}

func (f *fakeArtifactService) UpsertChunkVersions(context.Context, int64, []transform.VersionHit) error {
	f.calls++
	return nil
}

func postJSON(t *testing.T, h http.Handler, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDiscoveryEndpoint(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.PgSql.Database = "crawldb"
	stager := &fakeStager{result: pipeline.StageResult{
		SourcesUsed:     2,
		Staged:          41,
		InsertedNew:     10,
		FlaggedExisting: 3,
		ElapsedSec:      1.5,
	}}

	h := NewPipelineHandler(stager, &fakeOrchestrator{}, cfg)
	rec := postJSON(t, h.Router(), "/discovery", map[string]string{})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "crawldb", resp["db"])
	assert.Equal(t, float64(2), resp["sources_used"])
	assert.Equal(t, float64(41), resp["staged"])
	assert.Equal(t, float64(10), resp["inserted_new_pages"])
	assert.Equal(t, float64(3), resp["flagged_existing_pages"])
	assert.Contains(t, resp, "limits")
}

func TestDiscoveryEndpointFailure(t *testing.T) {
	stager := &fakeStager{err: errors.New("bootstrap: connection refused")}

	h := NewPipelineHandler(stager, &fakeOrchestrator{}, config.DefaultConfig())
	rec := postJSON(t, h.Router(), "/discovery", map[string]string{})

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, false, resp["ok"])
	assert.Contains(t, resp["error"], "bootstrap")
}

func TestOrchestrateEndpoint(t *testing.T) {
	orch := &fakeOrchestrator{runGUID: "run-abc"}

	h := NewPipelineHandler(&fakeStager{}, orch, config.DefaultConfig())
	rec := postJSON(t, h.Router(), "/orchestrate", map[string]string{})

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["ok"])
	assert.Equal(t, "run-abc", resp["run_id"])
}

func TestResetEndpoint(t *testing.T) {
	orch := &fakeOrchestrator{}

	h := NewPipelineHandler(&fakeStager{}, orch, config.DefaultConfig())
	rec := postJSON(t, h.Router(), "/reset", map[string]string{})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, orch.resets)
}

func TestFilterEndpoint(t *testing.T) {
	h := NewFilterHandler()

	rec := postJSON(t, h.Router(), "/", FilterParams{
		URL:    "https://docs.example.com/guide",
		Policy: json.RawMessage(`{"base_urls": ["*.example.com"]}`),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "true", rec.Body.String())

	rec = postJSON(t, h.Router(), "/", FilterParams{
		URL:    "https://example.com/guide",
		Policy: json.RawMessage(`{"base_urls": ["*.example.com"]}`),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "false", rec.Body.String())
}

func TestFilterEndpointDebug(t *testing.T) {
	h := NewFilterHandler()

	rec := postJSON(t, h.Router(), "/?debug=1", FilterParams{
		URL:    "https://example.com/pricing",
		Policy: json.RawMessage(`{"exclude_strings": ["/pricing"]}`),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var decision policy.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decision))
	assert.False(t, decision.Allowed)
	assert.Equal(t, policy.ReasonExcludeStrings, decision.Reason)
	assert.Equal(t, []string{"/pricing"}, decision.Matched)
}

func TestFilterEndpointRejectsBadInput(t *testing.T) {
	h := NewFilterHandler()

	rec := postJSON(t, h.Router(), "/", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.Router(), "/", FilterParams{
		URL:    "https://example.com/",
		Policy: json.RawMessage(`{"base_urls": 42}`),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

const ingestHTML = `<html><head><title>Guide</title></head><body>
	<h1>Guide</h1>
	<p>Some intro text for the page.</p>
	<pre>code()</pre>
	<a href="/next">Next</a>
</body></html>`

func TestIngestEndpoint(t *testing.T) {
	pages := newFakePageService()
	artifacts := &fakeArtifactService{}

	h := NewIngestHandler(pages, artifacts, config.DefaultConfig().Chunking)
	rec := postJSON(t, h.Router(), "/", IngestParams{
		URL:        "https://example.com/guide",
		HTML:       ingestHTML,
		HTTPStatus: 200,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.PageID)
	assert.True(t, resp.IsChanged)
	assert.Equal(t, 3, resp.NumBlocks)
	assert.Equal(t, 1, resp.NumLinks)
	assert.Equal(t, 1, resp.NumChunks)

	// All four artifact procedures ran.
	assert.Equal(t, 4, artifacts.calls)
}

func TestIngestEndpointShortCircuitsUnchanged(t *testing.T) {
	pages := newFakePageService()
	artifacts := &fakeArtifactService{}

	h := NewIngestHandler(pages, artifacts, config.DefaultConfig().Chunking)
	params := IngestParams{URL: "https://example.com/guide", HTML: ingestHTML}

	rec := postJSON(t, h.Router(), "/", params)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = postJSON(t, h.Router(), "/", params)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.IsChanged)

	// Artifacts written on the first ingestion only.
	assert.Equal(t, 4, artifacts.calls)
	assert.Equal(t, 2, pages.upserts)
}

func TestIngestEndpointRejectsBadInput(t *testing.T) {
	h := NewIngestHandler(newFakePageService(), &fakeArtifactService{}, config.DefaultConfig().Chunking)

	rec := postJSON(t, h.Router(), "/", IngestParams{HTML: ingestHTML})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postJSON(t, h.Router(), "/", IngestParams{URL: "https://example.com/"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	h := NewHealthHandler(nil)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
}
