// Package observability provides structured logging and metrics for the
// token authentication API.
//
// Logging is zap-based; metrics are Prometheus collectors registered on an
// explicit registry so that tests and multiple servers never collide.
package observability
