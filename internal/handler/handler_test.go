package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netonboard/internal/domain"
)

// fakeJobs records submissions and serves canned statuses.
type fakeJobs struct {
	mu        sync.Mutex
	submitted []domain.OnboardingRequest
	statuses  map[string]domain.JobStatus
	cancelled []string
	// reject makes Submit fail for this address.
	reject string
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{statuses: map[string]domain.JobStatus{}}
}

func (f *fakeJobs) Submit(req domain.OnboardingRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	if req.Address == f.reject {
		return "", domain.Errorf(domain.KindStoreUnavailable, "queue closed")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.submitted = append(f.submitted, req)
	id := "job-" + req.Address
	f.statuses[id] = domain.JobStatus{ID: id, Request: req, State: domain.StatePending}
	return id, nil
}

func (f *fakeJobs) Status(id string) (domain.JobStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.statuses[id]
	return st, ok
}

func (f *fakeJobs) List() []domain.JobStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []domain.JobStatus{}
	for _, st := range f.statuses {
		out = append(out, st)
	}
	return out
}

func (f *fakeJobs) Cancel(id string) error {
	if _, ok := f.Status(id); !ok {
		return domain.Errorf(domain.KindConfig, "job %s not found", id)
	}
	f.mu.Lock()
	f.cancelled = append(f.cancelled, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeJobs) Wait(ctx context.Context, id string) (*domain.OnboardingResult, error) {
	st, ok := f.Status(id)
	if !ok {
		return nil, domain.Errorf(domain.KindConfig, "job %s not found", id)
	}
	return st.Result, nil
}

type fakeCreds struct{ reloaded int }

func (f *fakeCreds) Refs() []string             { return []string{"lab", "core"} }
func (f *fakeCreds) LoadMountedSecrets() error { f.reloaded++; return nil }

func newTestRouter(jobs *fakeJobs, creds *fakeCreds) http.Handler {
	return NewRouter(Routes{
		Onboarding: NewOnboardingHandler(jobs, nil),
		Secrets:    NewSecretsHandler(creds, nil),
	}, nil)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestSubmit(t *testing.T) {
	jobs := newFakeJobs()
	h := newTestRouter(jobs, &fakeCreds{})

	rec := do(t, h, http.MethodPost, "/api/onboarding", `{"address":"192.0.2.10","site":"HQ"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp SubmitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "job-192.0.2.10", resp.ID)
	assert.Equal(t, domain.StatePending, resp.State)
	require.Len(t, jobs.submitted, 1)
	assert.Equal(t, "HQ", jobs.submitted[0].Site)
}

func TestSubmitRejectsBadInput(t *testing.T) {
	h := newTestRouter(newFakeJobs(), &fakeCreds{})

	rec := do(t, h, http.MethodPost, "/api/onboarding", `{"address":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/onboarding", `{"address":"192.0.2.1","colour":"red"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/onboarding", `{"address":"192.0.2.1","port":70000}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "config", resp.Kind)
}

func TestSubmitBatchYAML(t *testing.T) {
	jobs := newFakeJobs()
	h := newTestRouter(jobs, &fakeCreds{})

	body := "defaults:\n  site: HQ\ndevices:\n  - address: 192.0.2.1\n  - address: 192.0.2.2\n"
	rec := do(t, h, http.MethodPost, "/api/onboarding/batch?format=yaml", body)
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp []SubmitResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp, 2)
	assert.Equal(t, "HQ", jobs.submitted[1].Site)

	rec = do(t, h, http.MethodPost, "/api/onboarding/batch?format=csv", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitBatchRejectsDuplicateIDsUpFront(t *testing.T) {
	jobs := newFakeJobs()
	jobs.statuses["taken"] = domain.JobStatus{ID: "taken", State: domain.StateSucceeded}
	h := newTestRouter(jobs, &fakeCreds{})

	body := `[{"id":"a","address":"192.0.2.1"},{"id":"a","address":"192.0.2.2"}]`
	rec := do(t, h, http.MethodPost, "/api/onboarding/batch", body)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "config", resp.Kind)
	assert.Contains(t, resp.Details, "repeated")

	body = `[{"address":"192.0.2.1"},{"id":"taken","address":"192.0.2.2"}]`
	rec = do(t, h, http.MethodPost, "/api/onboarding/batch", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "already exists")

	assert.Empty(t, jobs.submitted)
}

func TestSubmitBatchReportsAcceptedOnFailure(t *testing.T) {
	jobs := newFakeJobs()
	jobs.reject = "192.0.2.2"
	h := newTestRouter(jobs, &fakeCreds{})

	body := `[{"address":"192.0.2.1"},{"address":"192.0.2.2"},{"address":"192.0.2.3"}]`
	rec := do(t, h, http.MethodPost, "/api/onboarding/batch", body)
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp BatchErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "store_unavailable", resp.Kind)
	require.Len(t, resp.Accepted, 1)
	assert.Equal(t, "job-192.0.2.1", resp.Accepted[0].ID)
}

func TestGetAndResult(t *testing.T) {
	jobs := newFakeJobs()
	jobs.statuses["done"] = domain.JobStatus{
		ID:    "done",
		State: domain.StateSucceeded,
		Result: &domain.OnboardingResult{
			RequestID: "done",
			Address:   "192.0.2.10",
			Status:    domain.StateSucceeded,
			Hostname:  "sw1",
			Driver:    "cisco_ios",
			Changes:   []domain.EntityChange{{Kind: domain.KindDevice, Name: "sw1", Action: domain.ActionCreated}},
		},
	}
	jobs.statuses["running"] = domain.JobStatus{ID: "running", State: domain.StateConnecting}
	h := newTestRouter(jobs, &fakeCreds{})

	rec := do(t, h, http.MethodGet, "/api/onboarding/done?wait=1s", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st domain.JobStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "sw1", st.Result.Hostname)

	rec = do(t, h, http.MethodGet, "/api/onboarding/done/result?format=text", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "+ device sw1")

	rec = do(t, h, http.MethodGet, "/api/onboarding/running/result", "")
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/onboarding/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/onboarding/done?wait=forever", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/onboarding", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list []domain.JobStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list, 2)
}

func TestCancel(t *testing.T) {
	jobs := newFakeJobs()
	jobs.statuses["j1"] = domain.JobStatus{ID: "j1", State: domain.StateConnecting}
	h := newTestRouter(jobs, &fakeCreds{})

	rec := do(t, h, http.MethodDelete, "/api/onboarding/j1", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"j1"}, jobs.cancelled)

	rec = do(t, h, http.MethodDelete, "/api/onboarding/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCredentialsAndHealth(t *testing.T) {
	creds := &fakeCreds{}
	h := newTestRouter(newFakeJobs(), creds)

	rec := do(t, h, http.MethodGet, "/api/credentials", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"refs":["core","lab"]}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/credentials/refresh", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, creds.reloaded)

	rec = do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRecoverMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) { panic("boom") })
	h := Chain(panicky, Recover(nil), Logger(nil))

	rec := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
