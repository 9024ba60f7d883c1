package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"
)

// Recovery turns a panic in a catalog, cart or order handler into a 500
// response. The panic is logged with the matched route, the request and
// customer IDs and a stack trace. http.ErrAbortHandler is re-raised.
//
// Recovery runs outermost, so it reads the request ID from the response
// header set by RequestID rather than from the context.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r = withRouteContext(r)
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint
					panic(rec)
				}

				requestID := w.Header().Get(HeaderRequestID)
				if requestID == "" {
					requestID = r.Header.Get(HeaderRequestID)
				}
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.String("route", routePattern(r)),
					zap.String("request_id", requestID),
				}
				if customer := requestCustomer(r); customer != "" {
					fields = append(fields, zap.String("customer_id", customer))
				}
				fields = append(fields, zap.Any("panic", rec), zap.Stack("stack"))
				zctx.From(r.Context()).Error("Handler panicked", fields...)

				w.Header().Set("Connection", "close")
				writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
