// Package api hosts the read-only HTTP interface over recorded event runs.
// Notable routes:
//   - GET /healthz for liveness probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /api/runs and /api/runs/{run_id} for run summaries.
//   - GET /api/runs/{run_id}/events for the stored events of one run.
package api
