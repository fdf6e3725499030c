package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sgn-hub/sgn-grade-hub/config"
	"github.com/sgn-hub/sgn-grade-hub/internal/application/run"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/grading"
	"github.com/sgn-hub/sgn-grade-hub/internal/domain/shared"
	"github.com/sgn-hub/sgn-grade-hub/internal/infrastructure/messaging"
	"github.com/sgn-hub/sgn-grade-hub/pkg/logger"
	"github.com/sgn-hub/sgn-grade-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// REQUEST / RESPONSE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// runRequest is the JSON payload launching a concept or opinion run.
type runRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Classroom    string `json:"classroom"`
	Period       string `json:"period"`
	DefaultGrade string `json:"default_grade,omitempty"`
	Attitude     string `json:"attitude,omitempty"`
}

func (r runRequest) toInput(kind run.Kind) run.Input {
	return run.Input{
		Kind: kind,
		Credentials: shared.Credentials{
			Username: r.Username,
			Password: r.Password,
		},
		Classroom:    shared.ClassroomCode(r.Classroom),
		Period:       grading.ReferencePeriod(r.Period),
		DefaultGrade: grading.ConceptGrade(r.DefaultGrade),
		Attitude:     grading.Attitude(r.Attitude),
	}
}

// launchResponse is returned on run admission.
type launchResponse struct {
	RunID     string `json:"run_id"`
	EventsURL string `json:"events_url"`
}

// runRecordResponse is the JSON shape of one run history record.
type runRecordResponse struct {
	ID             string     `json:"id"`
	Kind           string     `json:"kind"`
	Classroom      string     `json:"classroom"`
	Period         string     `json:"period"`
	Status         string     `json:"status"`
	Tally          string     `json:"tally,omitempty"`
	Succeeded      int        `json:"succeeded"`
	Failed         int        `json:"failed"`
	Skipped        int        `json:"skipped"`
	Remedial       int        `json:"remedial"`
	Classification string     `json:"classification,omitempty"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
}

func toRecordResponse(rec run.Record) runRecordResponse {
	return runRecordResponse{
		ID:             rec.ID.String(),
		Kind:           rec.Kind.String(),
		Classroom:      rec.Classroom,
		Period:         rec.Period.String(),
		Status:         string(rec.Status),
		Tally:          rec.Tally,
		Succeeded:      rec.Succeeded,
		Failed:         rec.Failed,
		Skipped:        rec.Skipped,
		Remedial:       rec.Remedial,
		Classification: rec.Classification,
		StartedAt:      rec.StartedAt,
		FinishedAt:     rec.FinishedAt,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN LAUNCH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleLaunchConcepts launches a concept submission run.
// POST /api/v1/runs/concepts
func (s *Server) handleLaunchConcepts(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body must be valid JSON")
		return
	}
	s.launch(w, r, req.toInput(run.KindConcepts))
}

// handleLaunchOpinions launches a pedagogical opinion run.
// POST /api/v1/runs/opinions
func (s *Server) handleLaunchOpinions(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_json", "Request body must be valid JSON")
		return
	}
	s.launch(w, r, req.toInput(run.KindOpinions))
}

// handleLaunchConceptsRemedial launches a concept run with remedial
// registration. Multipart: run fields plus the supporting PDF under
// "attachment".
// POST /api/v1/runs/concepts-remedial
func (s *Server) handleLaunchConceptsRemedial(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.config.MaxUploadBytes); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_multipart", "Request must be multipart/form-data")
		return
	}

	req := runRequest{
		Username:     r.FormValue("username"),
		Password:     r.FormValue("password"),
		Classroom:    r.FormValue("classroom"),
		Period:       r.FormValue("period"),
		DefaultGrade: r.FormValue("default_grade"),
		Attitude:     r.FormValue("attitude"),
	}
	input := req.toInput(run.KindConceptsRemedial)

	plan, err := parseRemedialForm(r)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_remedial", err.Error())
		return
	}
	input.Remedial = plan

	s.launch(w, r, input)
}

// parseRemedialForm reads the remedial plan fields and the attachment from
// a parsed multipart form. Dates use the portal's DD/MM/YYYY convention.
func parseRemedialForm(r *http.Request) (*grading.RemedialPlan, error) {
	start, err := timeutil.ParseBRDate(r.FormValue("start"))
	if err != nil {
		return nil, fmt.Errorf("start date must be DD/MM/YYYY: %w", err)
	}
	end, err := timeutil.ParseBRDate(r.FormValue("end"))
	if err != nil {
		return nil, fmt.Errorf("end date must be DD/MM/YYYY: %w", err)
	}

	file, header, err := r.FormFile("attachment")
	if err != nil {
		return nil, errors.New("attachment file is required")
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("could not read attachment: %w", err)
	}

	name := r.FormValue("artifact_name")
	if name == "" {
		name = header.Filename
	}

	return &grading.RemedialPlan{
		Start:        start,
		End:          end,
		Description:  r.FormValue("description"),
		ArtifactName: name,
		Artifact:     content,
	}, nil
}

// launch admits the run and answers 202 with the run ID.
func (s *Server) launch(w http.ResponseWriter, r *http.Request, input run.Input) {
	if s.deps.Features != nil && !s.deps.Features.RunKindEnabled(input.Kind.String(),
		&config.FeatureContext{Classroom: input.Classroom.String()}) {
		writeJSONError(w, http.StatusForbidden, "run_kind_disabled",
			"This run kind is disabled for the classroom")
		return
	}

	id, err := s.deps.Coordinator.Launch(r.Context(), input)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, launchResponse{
		RunID:     id.String(),
		EventsURL: fmt.Sprintf("/api/v1/runs/%s/events", id),
	})
}

// writeRunError maps launch failures to HTTP statuses.
func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrRunInProgress):
		writeJSONError(w, http.StatusConflict, "run_in_progress",
			"A run is already in progress for this classroom")
	case shared.IsValidation(err):
		writeJSONError(w, http.StatusBadRequest, "invalid_input", err.Error())
	default:
		s.logger.Error("run launch failed", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error",
			"Could not launch the run")
	}
}

// handleCancelRun interrupts an in-flight run. The terminal event, with the
// partial tally, still arrives on the run's progress stream.
// POST /api/v1/runs/{id}/cancel
func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_run_id", "Run ID must be a UUID")
		return
	}

	if err := s.deps.Coordinator.Cancel(id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "run_not_found", "No run in flight with this ID")
			return
		}
		s.logger.Error("run cancel failed", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Could not cancel the run")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"run_id": id.String(),
		"status": "cancelling",
	})
}

// ══════════════════════════════════════════════════════════════════════════════
// RUN QUERY HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// runLister is the optional listing surface of a history store.
type runLister interface {
	ListRuns(ctx context.Context, classroom string, limit int) ([]run.Record, error)
}

// handleListRuns returns the most recent run records, optionally filtered
// by classroom.
// GET /api/v1/runs?classroom=369528&limit=20
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	lister, ok := s.deps.History.(runLister)
	if !ok {
		writeJSONError(w, http.StatusNotFound, "history_unavailable", "Run history is not enabled")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			writeJSONError(w, http.StatusBadRequest, "invalid_limit", "limit must be 1-200")
			return
		}
		limit = n
	}

	recs, err := lister.ListRuns(r.Context(), r.URL.Query().Get("classroom"), limit)
	if err != nil {
		s.logger.Error("run listing failed", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Could not list runs")
		return
	}

	out := make([]runRecordResponse, 0, len(recs))
	for _, rec := range recs {
		out = append(out, toRecordResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetRun returns one run history record.
// GET /api/v1/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_run_id", "Run ID must be a UUID")
		return
	}

	if s.deps.History == nil {
		writeJSONError(w, http.StatusNotFound, "run_not_found", "Run history is not enabled")
		return
	}

	rec, err := s.deps.History.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			writeJSONError(w, http.StatusNotFound, "run_not_found", "No run with this ID")
			return
		}
		s.logger.Error("run lookup failed", logger.Err(err))
		writeJSONError(w, http.StatusInternalServerError, "internal_error", "Could not load the run")
		return
	}

	writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS STREAM (SSE)
// ══════════════════════════════════════════════════════════════════════════════

// handleRunEvents streams a run's progress as server-sent events: one "log"
// record per progress line, one final "done" record. Events replay from the
// start of the run, so reconnecting clients lose nothing.
// GET /api/v1/runs/{id}/events
func (s *Server) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_run_id", "Run ID must be a UUID")
		return
	}

	events, cancel, err := s.deps.Streams.Subscribe(id.String())
	if err != nil {
		if errors.Is(err, messaging.ErrStreamNotFound) {
			s.replayFinishedRun(w, r, id)
			return
		}
		writeJSONError(w, http.StatusServiceUnavailable, "stream_unavailable", "Progress stream unavailable")
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming_unsupported", "Streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, open := <-events:
			if !open {
				return
			}
			if err := writeSSE(w, event); err != nil {
				return
			}
			flusher.Flush()
			if event.IsTerminal() {
				return
			}
		}
	}
}

// replayFinishedRun answers an events request for a run whose stream is
// gone: if the history knows its terminal state, a single "done" record is
// emitted so late clients still resolve.
func (s *Server) replayFinishedRun(w http.ResponseWriter, r *http.Request, id uuid.UUID) {
	if s.deps.Features != nil && !s.deps.Features.IsEnabled(config.FeatureRunEventReplay, nil) {
		writeJSONError(w, http.StatusNotFound, "run_not_found", "No live stream for this run")
		return
	}
	if s.deps.History == nil {
		writeJSONError(w, http.StatusNotFound, "run_not_found", "No run with this ID")
		return
	}

	rec, err := s.deps.History.GetRun(r.Context(), id)
	if err != nil {
		writeJSONError(w, http.StatusNotFound, "run_not_found", "No run with this ID")
		return
	}

	message := rec.Tally
	if rec.Status != run.StatusCompleted && message == "" {
		message = "Execução encerrada."
	}
	event := shared.NewTerminalEvent(rec.Status == run.StatusCompleted, message, rec.Classification)
	event.Seq = 1

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_ = writeSSE(w, event)
}

// writeSSE writes one event in SSE wire format.
func writeSSE(w io.Writer, event shared.ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.WireType(), data)
	return err
}
