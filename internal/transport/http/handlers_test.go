package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"example.com/trackerimport/internal/config"
	"example.com/trackerimport/internal/domain"
	"example.com/trackerimport/internal/importer"
	"example.com/trackerimport/internal/ingest"
	spg "example.com/trackerimport/internal/storage/postgres"
)

type fakeUpdater struct {
	events  []domain.Event
	opts    importer.ImportOptions
	summary *importer.ImportSummary
	err     error
}

func (f *fakeUpdater) Update(_ context.Context, events []domain.Event, opts importer.ImportOptions) (*importer.ImportSummary, error) {
	f.events, f.opts = events, opts
	if f.err != nil {
		return nil, f.err
	}
	if f.summary != nil {
		return f.summary, nil
	}
	return &importer.ImportSummary{Status: importer.ImportStatusSuccess, Updated: len(events)}, nil
}

type fakeQueue struct {
	jobs   []ingest.Job
	result ingest.EnqueueResult
}

func (q *fakeQueue) Enqueue(job ingest.Job) ingest.EnqueueResult {
	q.jobs = append(q.jobs, job)
	return q.result
}

type fakeStats struct {
	counts []spg.StatusCount
	err    error
}

func (f fakeStats) QueryStatusCounts(context.Context, string) ([]spg.StatusCount, error) {
	return f.counts, f.err
}

type fakeDB struct{ err error }

func (f fakeDB) Ready(context.Context) error { return f.err }

var admin = &domain.User{UID: "admin000001", Username: "admin"}

func newServer(up *fakeUpdater, q *fakeQueue) http.Handler {
	deps := &ServerDeps{
		Cfg:     config.Config{MaxBodyBytes: 1 << 20, MaxBulkEvents: 2, RateLimitStatsPerMin: 100},
		Updater: up,
		Queue:   q,
		Stats:   fakeStats{counts: []spg.StatusCount{{Status: "ACTIVE", Count: 3}, {Status: "COMPLETED", Count: 2}}},
		DB:      fakeDB{},
		Auth:    stubAuth{user: admin},
		Logger:  zap.NewNop(),
		Now:     func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
	return deps.Router()
}

func do(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	h := newServer(&fakeUpdater{}, &fakeQueue{})
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code)
	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/readyz", "").Code)
}

func TestPutEvent(t *testing.T) {
	up := &fakeUpdater{}
	h := newServer(up, &fakeQueue{})

	rec := do(h, http.MethodPut, "/api/events/evt00000001", `{"orgUnit":"ou000000001","status":"COMPLETED","completedBy":"nurse"}`)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	require.Len(t, up.events, 1)
	assert.Equal(t, "evt00000001", up.events[0].Event)
	assert.Equal(t, domain.StatusCompleted, up.events[0].Status)
	assert.Same(t, admin, up.opts.User)
	assert.False(t, up.opts.DryRun)

	var summary importer.ImportSummary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Updated)
}

func TestPutEvent_Errors(t *testing.T) {
	h := newServer(&fakeUpdater{}, &fakeQueue{})

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/api/events/evt00000001", `{"event":"other000001","orgUnit":"ou000000001","status":"ACTIVE"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/api/events/evt00000001", `{"orgUnit":"ou000000001"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/api/events/evt00000001", `{"unknown":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/api/events/evt00000001", `{`).Code)

	conflict := &fakeUpdater{summary: &importer.ImportSummary{Status: importer.ImportStatusError, Ignored: 1}}
	h = newServer(conflict, &fakeQueue{})
	assert.Equal(t, http.StatusConflict, do(h, http.MethodPut, "/api/events/evt00000001", `{"orgUnit":"ou000000001","status":"ACTIVE"}`).Code)

	failing := &fakeUpdater{err: errors.New("db down")}
	h = newServer(failing, &fakeQueue{})
	assert.Equal(t, http.StatusInternalServerError, do(h, http.MethodPut, "/api/events/evt00000001", `{"orgUnit":"ou000000001","status":"ACTIVE"}`).Code)
}

func TestPutEventsBulk_Sync(t *testing.T) {
	up := &fakeUpdater{}
	h := newServer(up, &fakeQueue{})

	rec := do(h, http.MethodPut, "/api/events?dryRun=true", `{"events":[{"event":"evt00000001","orgUnit":"ou000000001","status":"ACTIVE"}]}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, up.opts.DryRun)
	assert.Len(t, up.events, 1)

	assert.Equal(t, http.StatusBadRequest, do(h, http.MethodPut, "/api/events", `{"events":[]}`).Code)
	tooMany := `{"events":[{"event":"a"},{"event":"b"},{"event":"c"}]}`
	rec = do(h, http.MethodPut, "/api/events", tooMany)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "max 2 items")
}

func TestPutEventsBulk_Async(t *testing.T) {
	up := &fakeUpdater{}
	q := &fakeQueue{}
	h := newServer(up, q)
	body := `{"events":[{"event":"evt00000001","orgUnit":"ou000000001","status":"SKIPPED"}]}`

	rec := do(h, http.MethodPut, "/api/events?async=true", body)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Nil(t, up.events, "async requests do not run inline")
	require.Len(t, q.jobs, 1)
	assert.Same(t, admin, q.jobs[0].Options.User)

	var resp asyncResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, q.jobs[0].ID, resp.JobID)
	assert.Equal(t, 1, resp.Accepted)

	q.result = ingest.EnqueueDuplicate
	rec = do(h, http.MethodPut, "/api/events?async=true", body)
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Duplicate)

	q.result = ingest.EnqueueFull
	assert.Equal(t, http.StatusServiceUnavailable, do(h, http.MethodPut, "/api/events?async=true", body).Code)
}

func TestGetStats(t *testing.T) {
	h := newServer(&fakeUpdater{}, &fakeQueue{})

	rec := do(h, http.MethodGet, "/api/events/stats?programStage=stage000001", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var resp statsResp
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "stage000001", resp.ProgramStage)
	assert.Equal(t, int64(5), resp.Total)
	assert.Len(t, resp.ByStatus, 2)
}

func TestGetStats_QueryError(t *testing.T) {
	deps := &ServerDeps{
		Cfg:    config.Config{MaxBodyBytes: 1 << 20},
		Stats:  fakeStats{err: fmt.Errorf("query status counts: %w", errors.New("conn refused"))},
		DB:     fakeDB{},
		Auth:   stubAuth{user: admin},
		Logger: zap.NewNop(),
		Now:    time.Now,
	}

	rec := do(deps.Router(), http.MethodGet, "/api/events/stats", "")

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var prob map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &prob))
	assert.Equal(t, "status counts unavailable", prob["detail"])
	assert.NotContains(t, prob, "meta")
}

func TestRouter_UnauthenticatedGets401(t *testing.T) {
	deps := &ServerDeps{
		Cfg:    config.Config{MaxBodyBytes: 1 << 20},
		DB:     fakeDB{},
		Auth:   stubAuth{err: errors.New("nope")},
		Logger: zap.NewNop(),
		Now:    time.Now,
	}
	h := deps.Router()

	rec := do(h, http.MethodPut, "/api/events/evt00000001", `{}`)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var body WebMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Unauthorized", body.Message)

	assert.Equal(t, http.StatusOK, do(h, http.MethodGet, "/healthz", "").Code, "health stays public")
}
