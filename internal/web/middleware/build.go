package middleware

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/conduit-lang/hierroutes/internal/service"
)

// Builder refreshes the route snapshot
type Builder interface {
	Build(ctx context.Context, useCache bool) error
}

// BuildOnRequest starts a rebuild cycle for every request and makes sure the
// snapshot is current before routing. A failed build is logged and the
// request continues against the previous snapshot.
func BuildOnRequest(b Builder, logger *zap.Logger) Middleware {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := service.WithCycle(r.Context())
			if err := b.Build(ctx, true); err != nil {
				logger.Warn("hierarchy build failed",
					zap.String("request_id", GetRequestID(ctx)),
					zap.Error(err),
				)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
