// Package api hosts the query service HTTP server. Routes:
//   - POST /chatbot answers {"query": "..."} with answer, sources and contacts.
//   - GET /health and /readyz report "starting" (503) until the runtime is
//     loaded, then "healthy".
//   - GET /healthz is a liveness probe that is always 200.
//   - GET /metrics for Prometheus scraping.
//
// Errors are reported in-band with HTTP 200 unless Config.StrictStatus is set.
package api
