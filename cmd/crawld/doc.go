// Package main hosts the crawl job service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, and job management endpoints. A POST /crawl batch is
//     validated, persisted as a queued job record via the JobStore, and its ID appended to the dispatch queue before
//     the 202 response is written.
//   - Queue & worker: job IDs flow through a Redis list (or an in-memory channel for the memory backend) and are
//     consumed by a single worker loop using a timeout-bounded blocking pop. The worker claims a job by stamping it
//     running, drives the engine, and finalizes it completed or failed. Context cancellation and Stop requests end
//     the loop between jobs.
//   - Fetch pipeline: the Colly-based engine visits seed URLs plus a bounded number of discovered links, capped by
//     the job's request budget. Pages whose static body text is too thin are optionally re-rendered through the
//     Chromedp renderer before extraction. Every page outcome streams through the progress sink into the store, so
//     status reads observe partial counts mid-run.
//   - Persistence & expiry: job records are JSON strings and results are append-only lists in Redis, each on its own
//     TTL; the janitor sweeps the job keyspace on an interval and deletes records older than the retention window.
//   - Configuration & plumbing: Viper populates config from env/files; zap provides structured logging; Prometheus
//     metrics are exported via middleware and the /metrics handler.
//
// Operational notes:
//   - Concurrency model: one worker loop per process, per-job parallelism inside the engine; headless renders have
//     their own semaphore inside the renderer. Shutdown drains HTTP first, then waits for the in-flight job.
//   - The worker holds a dedicated Redis connection for its blocking pop so API reads never queue behind it.
//   - Run locally: go run ./cmd/crawld -config config.yaml (or rely solely on CRAWLD_* env overrides); set
//     CRAWLD_STORE_BACKEND=memory to run without Redis.
package main
