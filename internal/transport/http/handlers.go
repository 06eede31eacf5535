package transporthttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"example.com/trackerimport/internal/auth"
	"example.com/trackerimport/internal/config"
	"example.com/trackerimport/internal/domain"
	"example.com/trackerimport/internal/idempotency"
	"example.com/trackerimport/internal/importer"
	"example.com/trackerimport/internal/ingest"
	"example.com/trackerimport/internal/metrics"
	spg "example.com/trackerimport/internal/storage/postgres"
)

type EventUpdater interface {
	Update(ctx context.Context, events []domain.Event, opts importer.ImportOptions) (*importer.ImportSummary, error)
}

type EventQueue interface {
	Enqueue(job ingest.Job) ingest.EnqueueResult
}

type StatsQuerier interface {
	QueryStatusCounts(ctx context.Context, programStage string) ([]spg.StatusCount, error)
}

type Pinger interface {
	Ready(ctx context.Context) error
}

type ServerDeps struct {
	Cfg     config.Config
	Updater EventUpdater
	Queue   EventQueue
	Stats   StatsQuerier
	DB      Pinger
	Auth    Authenticator
	Logger  *zap.Logger
	Now     func() time.Time
	maxBulk int
	entry   *UnauthorizedEntryPoint
}

const defaultMaxBulkEvents = 1000

func decodeJSONStrict(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func boolParam(r *http.Request, name string) bool {
	v, _ := strconv.ParseBool(r.URL.Query().Get(name))
	return v
}

func (d *ServerDeps) importOptions(r *http.Request) importer.ImportOptions {
	return importer.ImportOptions{
		User:   auth.UserFromContext(r.Context()),
		DryRun: boolParam(r, "dryRun"),
	}
}

func summaryStatus(s *importer.ImportSummary) int {
	if s.Status == importer.ImportStatusError {
		return http.StatusConflict
	}
	return http.StatusOK
}

// --- Health ---

func (d *ServerDeps) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (d *ServerDeps) HandleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := d.DB.Ready(r.Context()); err != nil {
		WriteProblem(w, http.StatusServiceUnavailable, "not ready", "database not reachable", nil)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// --- Events (single) ---

func (d *ServerDeps) HandlePutEvent(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	uid := r.PathValue("uid")

	var ev domain.Event
	if err := decodeJSONStrict(r, &ev); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}
	if ev.Event == "" {
		ev.Event = uid
	} else if ev.Event != uid {
		WriteProblem(w, http.StatusBadRequest, "uid mismatch", "event uid in body does not match the path", nil)
		return
	}
	if errs := domain.ValidateEvent(&ev); len(errs) > 0 {
		prob := map[string][]string{}
		for _, fe := range errs {
			prob[fe.Field] = append(prob[fe.Field], fe.Msg)
		}
		WriteProblem(w, http.StatusBadRequest, "validation failed", "one or more fields are invalid", prob)
		return
	}

	summary, err := d.Updater.Update(r.Context(), []domain.Event{ev}, d.importOptions(r))
	if err != nil {
		d.Logger.Error("event update failed", zap.String("event", uid), zap.Error(err))
		WriteProblem(w, http.StatusInternalServerError, "import error", "event could not be updated", nil)
		return
	}
	metrics.ObserveImport("sync", summary.Updated, summary.Ignored)
	writeJSON(w, summaryStatus(summary), summary)
}

// --- Events (bulk) ---

type bulkReq struct {
	Events []domain.Event `json:"events"`
}

type asyncResp struct {
	JobID     string `json:"job_id"`
	Accepted  int    `json:"accepted_count"`
	Duplicate bool   `json:"duplicate,omitempty"`
}

func (d *ServerDeps) HandlePutEventsBulk(w http.ResponseWriter, r *http.Request) {
	defer DrainBody(r)
	var br bulkReq
	if err := decodeJSONStrict(r, &br); err != nil {
		WriteProblem(w, http.StatusBadRequest, "invalid json", err.Error(), nil)
		return
	}
	maxItems := d.maxBulk
	if maxItems <= 0 {
		maxItems = defaultMaxBulkEvents
	}
	if err := domain.ValidateBulk(br.Events, maxItems); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, domain.ErrBulkTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		WriteProblem(w, status, "validation failed", err.Error(), nil)
		return
	}

	opts := d.importOptions(r)
	if boolParam(r, "async") && !opts.DryRun {
		d.enqueue(w, r, br.Events, opts)
		return
	}

	summary, err := d.Updater.Update(r.Context(), br.Events, opts)
	if err != nil {
		d.Logger.Error("bulk update failed", zap.Int("events", len(br.Events)), zap.Error(err))
		WriteProblem(w, http.StatusInternalServerError, "import error", "events could not be updated", nil)
		return
	}
	metrics.ObserveImport("sync", summary.Updated, summary.Ignored)
	writeJSON(w, summaryStatus(summary), summary)
}

func (d *ServerDeps) enqueue(w http.ResponseWriter, r *http.Request, events []domain.Event, opts importer.ImportOptions) {
	key, src := idempotency.DeriveKey(r.Header.Get(idempotency.Header), domain.UsernameOf(opts.User), events)
	job := ingest.Job{ID: key, Events: events, Options: opts}

	switch d.Queue.Enqueue(job) {
	case ingest.EnqueueFull:
		metrics.ObserveQueueRejected(len(events))
		WriteProblem(w, http.StatusServiceUnavailable, "overloaded", "ingest queue is full, please retry", nil)
		return
	case ingest.EnqueueDuplicate:
		writeJSON(w, http.StatusAccepted, asyncResp{JobID: key, Duplicate: true})
		return
	}
	d.Logger.Info("queued events", zap.String("job", key), zap.String("key_source", string(src)), zap.Int("events", len(events)))
	writeJSON(w, http.StatusAccepted, asyncResp{JobID: key, Accepted: len(events)})
}

// --- Stats ---

type statsResp struct {
	ProgramStage string            `json:"programStage,omitempty"`
	Total        int64             `json:"total"`
	ByStatus     []spg.StatusCount `json:"byStatus"`
}

func (d *ServerDeps) HandleGetStats(w http.ResponseWriter, r *http.Request) {
	stage := strings.TrimSpace(r.URL.Query().Get("programStage"))
	counts, err := d.Stats.QueryStatusCounts(r.Context(), stage)
	if err != nil {
		d.Logger.Error("stats query failed", zap.Error(err))
		WriteProblem(w, http.StatusInternalServerError, "query error", "status counts unavailable", nil)
		return
	}
	resp := statsResp{ProgramStage: stage, ByStatus: counts}
	if resp.ByStatus == nil {
		resp.ByStatus = []spg.StatusCount{}
	}
	for _, c := range counts {
		resp.Total += c.Count
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Router ---

func (d *ServerDeps) Router() http.Handler {
	if d.entry == nil {
		d.entry = NewUnauthorizedEntryPoint(d.Logger.Named("auth"))
	}
	d.maxBulk = d.Cfg.MaxBulkEvents
	requireAuth := RequireAuth(d.Auth, d.entry, d.Logger)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.HandleHealthz)
	mux.HandleFunc("GET /readyz", d.HandleReadyz)
	mux.Handle("GET /metrics/prometheus", metrics.Handler())

	write := func(h http.HandlerFunc) http.Handler {
		var out http.Handler = h
		out = BodyLimit(d.Cfg.MaxBodyBytes)(out)
		out = RequireJSON(out)
		return requireAuth(out)
	}
	mux.Handle("PUT /api/events/{uid}", write(d.HandlePutEvent))
	mux.Handle("PUT /api/events", write(d.HandlePutEventsBulk))

	var stats http.Handler = http.HandlerFunc(d.HandleGetStats)
	stats = RateLimitPerMinute(d.Cfg.RateLimitStatsPerMin, "/api/events/stats", d.Now)(stats)
	stats = requireAuth(stats)
	mux.Handle("GET /api/events/stats", stats)

	return RequestID(AccessLog(d.Logger.Named("http"))(mux))
}
