package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"netonboard/internal/metrics"
)

// Routes holds the handlers mounted by NewRouter
type Routes struct {
	Onboarding *OnboardingHandler
	Secrets    *SecretsHandler
	// Events serves the SSE stream; optional.
	Events http.Handler
}

// NewRouter mounts every endpoint and applies middleware and tracing
func NewRouter(routes Routes, logger *logrus.Entry) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/onboarding", routes.Onboarding.Submit)
	mux.HandleFunc("POST /api/onboarding/batch", routes.Onboarding.SubmitBatch)
	mux.HandleFunc("GET /api/onboarding", routes.Onboarding.List)
	mux.HandleFunc("GET /api/onboarding/{id}", routes.Onboarding.Get)
	mux.HandleFunc("GET /api/onboarding/{id}/result", routes.Onboarding.Result)
	mux.HandleFunc("DELETE /api/onboarding/{id}", routes.Onboarding.Cancel)

	if routes.Secrets != nil {
		mux.HandleFunc("GET /api/credentials", routes.Secrets.ListRefs)
		mux.HandleFunc("POST /api/credentials/refresh", routes.Secrets.RefreshMountedSecrets)
	}

	if routes.Events != nil {
		mux.Handle("GET /api/events", routes.Events)
	}

	mux.HandleFunc("GET /healthz", Healthz)
	mux.Handle("GET /metrics", metrics.Handler())

	return Chain(
		otelhttp.NewHandler(mux, "netonboard"),
		Recover(logger),
		Logger(logger),
	)
}
