// Package api hosts the HTTP server, middleware, and REST handlers for operator
// access. Notable routes:
//   - GET /healthz / readyz for Kubernetes probes.
//   - GET /metrics for Prometheus scraping.
//   - POST /v1/cycles/{users,matches} to trigger a crawl cycle on demand.
//   - GET /v1/queues and POST /v1/queues/{name}/clear for queue inspection.
//   - GET /v1/runs and /v1/runs/{run_id} for cycle progress via store.RunRepository.
//   - GET /v1/matches/{match_id}/rankings to score a stored match.
package api
