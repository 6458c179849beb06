// Package handlers contains reusable HTTP building blocks for the report
// card API: composite health checks, middleware, request body validation
// and the server-sent events writer used by the mentor chat.
//
// # Health Checks
//
// Critical checks decide readiness; optional checks (database, cache, AI
// provider) only mark the service as degraded, because every optional
// backend has an in-memory or fallback path:
//
//	checker := handlers.NewCompositeHealthChecker("v1")
//	checker.AddCheck("roster", handlers.NewRosterCheck(roster))
//	checker.AddOptionalCheck("database", handlers.NewPingCheck(conn))
//	checker.AddOptionalCheck("cache", handlers.NewPingCheck(cache))
//
// # Request Validation
//
//	var req ChatRequest
//	if err := handlers.DecodeJSON(r, &req); err != nil {
//	    // err is *handlers.ValidationError with per-field messages
//	}
//
// # Streaming
//
//	sse, err := handlers.NewSSEWriter(w)
//	_ = sse.Event("chunk", map[string]string{"text": "..."})
package handlers
