package middleware

import (
	"net/http"

	"github.com/S1riyS/memfs9p/server/pkg/logging"
)

const RequestIDHeader = "X-Request-ID"

func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		requestID := logging.GetRequestIDFromCtx(ctx)
		if requestID == "" {
			requestID = r.Header.Get(RequestIDHeader)
		}

		if requestID == "" {
			ctx = logging.MakeContextWithNewRequestID(ctx)
		} else {
			ctx = logging.MakeContextWithRequestID(ctx, requestID)
		}

		w.Header().Set(RequestIDHeader, logging.GetRequestIDFromCtx(ctx))

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
