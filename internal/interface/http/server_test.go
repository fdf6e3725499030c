package http

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sgn-hub/sgn-grade-hub/config"
	"github.com/sgn-hub/sgn-grade-hub/internal/application/run"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	return newTestServerWith(t, Dependencies{})
}

func newTestServerWith(t *testing.T, deps Dependencies) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	return NewServer(cfg, deps)
}

func TestHandleRoot(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "SGN Grade Hub API")
	assert.Contains(t, rec.Body.String(), "/api/v1/runs/concepts")
}

func TestHandleRoot_UnknownPath(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleHealth_NoChecker(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleGetRun_InvalidID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs/not-a-uuid", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_run_id")
}

func TestHandleLaunch_DisabledRunKind(t *testing.T) {
	features := config.LoadFeatureFlags()
	require.NoError(t, features.DisableFeature(config.FeatureRunsOpinions))
	s := newTestServerWith(t, Dependencies{Features: features})

	body := strings.NewReader(`{"username":"professor","password":"segredo1","classroom":"369528","period":"TR2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/opinions", body)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "run_kind_disabled")
}

func TestHandleLaunch_ClassroomOverrideDisablesKind(t *testing.T) {
	features := config.LoadFeatureFlags()
	features.SetClassroomOverride("369528", config.FeatureRunsConcepts, false)
	s := newTestServerWith(t, Dependencies{Features: features})

	body := strings.NewReader(`{"username":"professor","password":"segredo1","classroom":"369528","period":"TR2"}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/concepts", body)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "run_kind_disabled")
}

func TestHandleCancelRun_InvalidID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/not-a-uuid/cancel", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_run_id")
}

func TestHandleCancelRun_UnknownRun(t *testing.T) {
	discard := slog.New(slog.NewTextHandler(io.Discard, nil))
	coord := run.NewRunCoordinator(discard, nil, nil, nil, nil, run.CoordinatorConfig{})
	s := newTestServerWith(t, Dependencies{Coordinator: coord})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/"+uuid.NewString()+"/cancel", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "run_not_found")
}

// listingHistory is an in-memory history store with the listing surface.
type listingHistory struct {
	recs      []run.Record
	classroom string
	limit     int
}

func (h *listingHistory) SaveRun(ctx context.Context, rec run.Record) error {
	h.recs = append(h.recs, rec)
	return nil
}

func (h *listingHistory) GetRun(ctx context.Context, id uuid.UUID) (run.Record, error) {
	for _, r := range h.recs {
		if r.ID == id {
			return r, nil
		}
	}
	return run.Record{}, shared.ErrNotFound
}

func (h *listingHistory) ListRuns(ctx context.Context, classroom string, limit int) ([]run.Record, error) {
	h.classroom = classroom
	h.limit = limit
	return h.recs, nil
}

func TestHandleListRuns(t *testing.T) {
	history := &listingHistory{recs: []run.Record{
		{ID: uuid.New(), Kind: run.KindConcepts, Classroom: "369528", Status: run.StatusCompleted, Tally: "Processados: 3/3 alunos"},
		{ID: uuid.New(), Kind: run.KindOpinions, Classroom: "369528", Status: run.StatusFailed},
	}}
	s := newTestServerWith(t, Dependencies{History: history})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?classroom=369528&limit=20", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "369528", history.classroom)
	assert.Equal(t, 20, history.limit)

	var resp struct {
		Success bool                `json:"success"`
		Data    []runRecordResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "concepts", resp.Data[0].Kind)
	assert.Equal(t, "Processados: 3/3 alunos", resp.Data[0].Tally)
}

func TestHandleListRuns_InvalidLimit(t *testing.T) {
	s := newTestServerWith(t, Dependencies{History: &listingHistory{}})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=0", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid_limit")
}

func TestHandleListRuns_NoHistory(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "history_unavailable")
}

func TestWriteSSE(t *testing.T) {
	var sb strings.Builder

	event := shared.NewProgressEvent(shared.LevelInfo, "Processando: Ana Souza")
	event.Seq = 3
	require.NoError(t, writeSSE(&sb, event))

	out := sb.String()
	assert.True(t, strings.HasPrefix(out, "event: log\n"))
	assert.True(t, strings.HasSuffix(out, "\n\n"))

	dataLine := strings.TrimPrefix(strings.Split(out, "\n")[1], "data: ")
	var decoded shared.ProgressEvent
	require.NoError(t, json.Unmarshal([]byte(dataLine), &decoded))
	assert.Equal(t, 3, decoded.Seq)
	assert.Equal(t, "Processando: Ana Souza", decoded.Message)
}

func TestWriteSSE_TerminalEvent(t *testing.T) {
	var sb strings.Builder

	event := shared.NewTerminalEvent(true, "Concluído: 25 sucesso, 0 falha", "")
	require.NoError(t, writeSSE(&sb, event))

	assert.True(t, strings.HasPrefix(sb.String(), "event: done\n"))
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(3, time.Minute)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"))
	}
	assert.False(t, rl.Allow("10.0.0.1"))

	// Other clients keep their own window
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.10:5555"
	assert.Equal(t, "192.0.2.10", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", getClientIP(req))
}

func TestWriteJSONError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeJSONError(rec, http.StatusConflict, "run_in_progress", "classroom busy")

	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "run_in_progress", resp.Error.Code)
}
