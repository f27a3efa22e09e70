package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/candleshop/internal/domain/auth"
	"github.com/xenking/candleshop/pkg/httpmiddleware"
)

// Authenticator checks the X-API-Key header against stored key hashes.
type Authenticator struct {
	keys   auth.Repository
	hasher auth.Hasher
}

// NewAuthenticator creates an Authenticator with the given API key
// repository and HMAC pepper.
func NewAuthenticator(keys auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		keys:   keys,
		hasher: auth.NewHasher(pepper),
	}
}

// Require rejects requests without a valid key (401) or whose key lacks
// scope (403). An empty scope only requires a valid key.
func (a *Authenticator) Require(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			key, err := a.hasher.Authenticate(ctx, a.keys, r.Header.Get(httpmiddleware.APIKeyHeader))
			switch {
			case errors.Is(err, auth.ErrKeyNotFound):
				writeError(w, http.StatusUnauthorized, "unauthorized", nil)
				return
			case err != nil:
				zctx.From(ctx).Error("Authenticate API key", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "internal server error", nil)
				return
			}
			if scope != "" && !key.HasScope(scope) {
				writeError(w, http.StatusForbidden, "missing scope "+scope, nil)
				return
			}

			ctx = zctx.Base(ctx, zctx.From(ctx).With(zap.String("api_key_id", key.ID)))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
