// Package handler implements the HTTP API of the onboarding service.
//
// # Endpoints
//
//	POST   /api/onboarding               submit one request, 202 with the job
//	POST   /api/onboarding/batch         submit a JSON, YAML or Ansible batch
//	GET    /api/onboarding               list jobs
//	GET    /api/onboarding/{id}          job status; ?wait=30s blocks until done
//	GET    /api/onboarding/{id}/result   rendered result; ?format=text|yaml|json
//	DELETE /api/onboarding/{id}          request cancellation
//	GET    /api/credentials              credential references
//	POST   /api/credentials/refresh      reload mounted secrets
//	GET    /api/events                   job events as Server-Sent Events
//	GET    /healthz                      liveness
//	GET    /metrics                      Prometheus metrics
//
// Error responses return JSON with {error, details, kind} structure. The kind
// is the onboarding error kind when one applies.
package handler
