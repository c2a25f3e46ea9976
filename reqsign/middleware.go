package reqsign

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/golang-jwt/jwt/v5/request"
	"github.com/programme-lv/pagesforge/httpjson"
	"github.com/programme-lv/pagesforge/logger"
	"github.com/programme-lv/pagesforge/srvcerror"
)

const maxBodyBytes = 16 << 20

type ctxKey string

const ctxClaimsKey ctxKey = "reqsignClaims"

// ClaimsFromContext returns the verified claims put there by Middleware.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(ctxClaimsKey).(*Claims)
	return c
}

// Middleware rejects requests whose token does not verify against the body.
// The body is buffered and handed to the next handler unchanged.
func Middleware(audience string, lookup SecretLookup) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			log := logger.FromContext(r.Context())

			body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
			if err != nil {
				httpjson.HandleError(log, w, srvcerror.ErrInvalidJson().SetDebug(err))
				return
			}
			r.Body.Close()

			token, err := request.BearerExtractor{}.ExtractToken(r)
			if err != nil {
				httpjson.HandleError(log, w, srvcerror.ErrInvalidSignature().SetDebug(err))
				return
			}

			claims, err := Verify(r.Context(), token, body, audience, lookup)
			if errors.Is(err, ErrLookupFailed) {
				httpjson.HandleError(log, w, srvcerror.ErrInternalSE().SetDebug(err))
				return
			}
			if err != nil {
				httpjson.HandleError(log, w, srvcerror.ErrInvalidSignature().SetDebug(err))
				return
			}

			r.Body = io.NopCloser(bytes.NewReader(body))
			ctx := context.WithValue(r.Context(), ctxClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(hfn)
	}
}
