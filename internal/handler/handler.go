package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"netonboard/internal/codec"
	"netonboard/internal/domain"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// maxWait bounds the ?wait long-poll.
const maxWait = 5 * time.Minute

// JobController runs onboarding jobs
type JobController interface {
	Submit(req domain.OnboardingRequest) (string, error)
	Status(id string) (domain.JobStatus, bool)
	List() []domain.JobStatus
	Cancel(id string) error
	Wait(ctx context.Context, id string) (*domain.OnboardingResult, error)
}

// OnboardingHandler handles onboarding job requests
type OnboardingHandler struct {
	jobs   JobController
	logger *logrus.Entry
}

// NewOnboardingHandler creates a new onboarding handler
func NewOnboardingHandler(jobs JobController, logger *logrus.Entry) *OnboardingHandler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &OnboardingHandler{jobs: jobs, logger: logger}
}

// ErrorResponse is the body of every error reply
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Kind    string `json:"kind,omitempty"`
}

// BatchErrorResponse reports a batch that failed part way; Accepted lists the
// jobs queued before the failure.
type BatchErrorResponse struct {
	ErrorResponse
	Accepted []SubmitResponse `json:"accepted"`
}

// SubmitResponse acknowledges accepted jobs
type SubmitResponse struct {
	ID    string          `json:"id"`
	State domain.JobState `json:"state"`
}

// Submit queues one onboarding request
// POST /api/onboarding
func (h *OnboardingHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req domain.OnboardingRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, "Invalid request body", err.Error(), http.StatusBadRequest)
		return
	}

	id, err := h.jobs.Submit(req)
	if err != nil {
		h.writeDomainError(w, "Invalid onboarding request", err)
		return
	}

	h.logger.WithFields(logrus.Fields{"job_id": id, "address": req.Address}).Info("onboarding job submitted")
	writeJSON(w, SubmitResponse{ID: id, State: domain.StatePending}, http.StatusAccepted)
}

// SubmitBatch queues every request of a batch document
// POST /api/onboarding/batch?format=yaml
func (h *OnboardingHandler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	importer, err := codec.ImporterFor(format)
	if err != nil {
		writeError(w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}

	reqs, err := importer.Parse(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, "Invalid batch", err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.checkBatch(reqs); err != nil {
		h.writeDomainError(w, "Invalid batch", err)
		return
	}

	accepted := make([]SubmitResponse, 0, len(reqs))
	for _, req := range reqs {
		id, err := h.jobs.Submit(req)
		if err != nil {
			h.logger.WithError(err).WithField("accepted", len(accepted)).Warn("onboarding batch partially submitted")
			writeJSON(w, BatchErrorResponse{
				ErrorResponse: ErrorResponse{
					Error:   "Invalid onboarding request " + req.Address,
					Details: err.Error(),
					Kind:    string(domain.KindOf(err)),
				},
				Accepted: accepted,
			}, statusFor(err))
			return
		}
		accepted = append(accepted, SubmitResponse{ID: id, State: domain.StatePending})
	}

	h.logger.WithFields(logrus.Fields{"format": format, "jobs": len(accepted)}).Info("onboarding batch submitted")
	writeJSON(w, accepted, http.StatusAccepted)
}

// checkBatch rejects a batch up front when any entry is invalid or its ID is
// repeated or already taken, so nothing is queued.
func (h *OnboardingHandler) checkBatch(reqs []domain.OnboardingRequest) error {
	seen := make(map[string]bool, len(reqs))
	for i := range reqs {
		req := &reqs[i]
		if err := req.Validate(); err != nil {
			return domain.NewError(domain.KindConfig, fmt.Sprintf("entry %d", i+1), err)
		}
		if req.ID == "" {
			continue
		}
		if seen[req.ID] {
			return domain.Errorf(domain.KindConfig, "entry %d: job id %s repeated in batch", i+1, req.ID)
		}
		if _, exists := h.jobs.Status(req.ID); exists {
			return domain.Errorf(domain.KindConfig, "entry %d: job %s already exists", i+1, req.ID)
		}
		seen[req.ID] = true
	}
	return nil
}

// List returns every job
// GET /api/onboarding
func (h *OnboardingHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.jobs.List(), http.StatusOK)
}

// Get returns one job. With ?wait=<duration> it blocks until the job
// finishes or the duration elapses.
// GET /api/onboarding/{id}
func (h *OnboardingHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if wait := r.URL.Query().Get("wait"); wait != "" {
		d, err := time.ParseDuration(wait)
		if err != nil || d < 0 {
			writeError(w, "Invalid wait", "wait must be a duration such as 30s", http.StatusBadRequest)
			return
		}
		if d > maxWait {
			d = maxWait
		}

		ctx, cancel := context.WithTimeout(r.Context(), d)
		_, err = h.jobs.Wait(ctx, id)
		cancel()
		if err != nil && domain.KindOf(err) == domain.KindConfig {
			writeError(w, "Not found", err.Error(), http.StatusNotFound)
			return
		}
	}

	st, ok := h.jobs.Status(id)
	if !ok {
		writeError(w, "Not found", "job "+id+" not found", http.StatusNotFound)
		return
	}
	writeJSON(w, st, http.StatusOK)
}

// Result renders a finished job's result
// GET /api/onboarding/{id}/result?format=text
func (h *OnboardingHandler) Result(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	st, ok := h.jobs.Status(id)
	if !ok {
		writeError(w, "Not found", "job "+id+" not found", http.StatusNotFound)
		return
	}
	if st.Result == nil {
		writeError(w, "Not finished", "job "+id+" is "+string(st.State), http.StatusConflict)
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}
	exporter, err := codec.ExporterFor(format, false)
	if err != nil {
		writeError(w, "Unsupported format", err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", contentType(format))
	w.WriteHeader(http.StatusOK)
	if err := exporter.Export([]*domain.OnboardingResult{st.Result}, w); err != nil {
		h.logger.WithError(err).WithField("job_id", id).Warn("failed to render result")
	}
}

// Cancel requests cancellation of a job
// DELETE /api/onboarding/{id}
func (h *OnboardingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := h.jobs.Cancel(id); err != nil {
		writeError(w, "Not found", err.Error(), http.StatusNotFound)
		return
	}

	st, _ := h.jobs.Status(id)
	h.logger.WithField("job_id", id).Info("onboarding job cancellation requested")
	writeJSON(w, st, http.StatusAccepted)
}

// Healthz reports liveness
// GET /healthz
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func statusFor(err error) int {
	var oe *domain.OnboardError
	if errors.As(err, &oe) && oe.Kind == domain.KindConfig {
		return http.StatusBadRequest
	}
	return http.StatusInternalServerError
}

func (h *OnboardingHandler) writeDomainError(w http.ResponseWriter, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.WithError(err).Error(message)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := ErrorResponse{Error: message, Details: err.Error(), Kind: string(domain.KindOf(err))}
	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		h.logger.WithError(encErr).Warn("failed to encode error response")
	}
}

func contentType(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "yaml", "ansible-inventory":
		return "application/yaml"
	default:
		return "text/plain; charset=utf-8"
	}
}

func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Warn("failed to encode JSON")
	}
}

func writeError(w http.ResponseWriter, message, details string, statusCode int) {
	writeJSON(w, ErrorResponse{Error: message, Details: details}, statusCode)
}
