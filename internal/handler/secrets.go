package handler

import (
	"net/http"
	"sort"

	"github.com/sirupsen/logrus"
)

// CredentialStore is the part of the secrets service exposed over HTTP.
// Secret values never leave the process.
type CredentialStore interface {
	Refs() []string
	LoadMountedSecrets() error
}

// SecretsHandler handles credential reference requests
type SecretsHandler struct {
	svc    CredentialStore
	logger *logrus.Entry
}

// NewSecretsHandler creates a new secrets handler
func NewSecretsHandler(svc CredentialStore, logger *logrus.Entry) *SecretsHandler {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &SecretsHandler{svc: svc, logger: logger}
}

// ListRefs returns the known credential references
// GET /api/credentials
func (h *SecretsHandler) ListRefs(w http.ResponseWriter, r *http.Request) {
	refs := h.svc.Refs()
	sort.Strings(refs)
	writeJSON(w, map[string][]string{"refs": refs}, http.StatusOK)
}

// RefreshMountedSecrets re-reads mounted secret directories
// POST /api/credentials/refresh
func (h *SecretsHandler) RefreshMountedSecrets(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.LoadMountedSecrets(); err != nil {
		h.logger.WithError(err).Error("failed to refresh mounted secrets")
		writeError(w, "Failed to refresh", err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, map[string]string{"status": "refreshed"}, http.StatusOK)
}
