// Package api serves the committed knowledge base over HTTP. Routes:
//   - GET /healthz and /readyz for probes.
//   - GET /metrics for Prometheus scraping.
//   - GET /v1/stats, /v1/categories/{category}, /v1/search?q= for reads.
//   - POST /v1/chat for formatted answers and POST /v1/reload to pick up a
//     newly committed artifact.
package api
