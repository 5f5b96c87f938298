// Package httputil provides the JSON response helpers, request parsing and
// middleware shared by the brace admin API.
//
// Errors are always written as {"error": "...", "code": "..."}, the code
// following the status:
//
//	httputil.WriteNotFound(w, "plugin not found")
//	httputil.WriteConflict(w, err.Error())
//
// Query parameters are read through a Query, which keeps the first error:
//
//	q := httputil.NewQuery(r)
//	limit := q.Int("limit", 100)
//	since := q.Time("since")
//	if err := q.Err(); err != nil {
//		httputil.WriteBadRequest(w, err.Error())
//		return
//	}
//
// Middleware is composed with Chain:
//
//	handler := httputil.Chain(
//		httputil.RequestIDMiddleware,
//		httputil.LoggingMiddleware(logger),
//		httputil.RecoveryMiddleware(logger),
//	)(router)
package httputil
