// Package main hosts the crawler service entrypoint.
//
// Architecture overview:
//   - Queues: two deduplicating FIFO queues (user PUUIDs and match ids) backed by Redis or memory. A participant
//     found in a processed match is re-queued with a 6h rediscovery TTL; match ids are deduplicated permanently.
//   - Cycles: internal/scheduler fires the user cycle (pop one user, queue their recent match ids) and the match
//     cycle (drain up to the request window, fetch detail and timeline in bounded batches, persist ARAM matches,
//     re-queue participants) every interval, with one retry after a failure.
//   - Persistence & fanout: documents land in the `match` and `match_detail` collections (Postgres or memory),
//     optionally mirrored to a blob archive (GCS/local/memory). match.saved and cycle.completed events go to
//     Pub/Sub when a topic is configured.
//   - HTTP API: internal/api.Server exposes probes, metrics, on-demand cycles, queue inspection, run progress and
//     per-match rankings from a model trained by cmd/aramrank.
//   - Observability: zap logs carry run ids and match ids; Prometheus metrics cover upstream requests, throttling,
//     queue sizes and cycles; the progress hub batches cycle events into the run store.
//
// Quick checklist:
//   - Configure env vars: RIOT_API_KEY (or ARAM_RIOT_API_KEY), ARAM_QUEUE_BACKEND=redis with
//     ARAM_QUEUE_REDIS_ADDR, ARAM_STORAGE_BACKEND=postgres with ARAM_DB_DSN, and ARAM_RANKING_MODEL_DIR when
//     rankings should be served.
//   - Run locally: go run ./cmd/aramcrawler -config config.yaml (or rely solely on env overrides and .env).
package main
