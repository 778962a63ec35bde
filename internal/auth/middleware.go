package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Shivanand-hulikatti/campus-events/internal/apperr"
	"github.com/Shivanand-hulikatti/campus-events/internal/logger"
	"github.com/Shivanand-hulikatti/campus-events/internal/model"
	"github.com/Shivanand-hulikatti/campus-events/internal/repository"
)

type ctxKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor model.Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFrom returns the authenticated actor of ctx, if any.
func ActorFrom(ctx context.Context) (model.Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(model.Actor)
	return a, ok
}

// Authenticator resolves bearer tokens into actors.
type Authenticator struct {
	verifier *Verifier
	users    repository.UserDirectory
	log      logger.Logger
}

// NewAuthenticator builds the middleware. When users is set, tokens of
// blocked accounts are refused.
func NewAuthenticator(v *Verifier, users repository.UserDirectory, l logger.Logger) *Authenticator {
	return &Authenticator{verifier: v, users: users, log: l}
}

// Authenticate attaches the actor of a valid bearer token to the request.
// Requests without a token pass through anonymously; a bad token is refused.
func (a *Authenticator) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "malformed authorization header")
			return
		}

		actor, err := a.verifier.Verify(strings.TrimSpace(token))
		if err != nil {
			a.log.Debug("token rejected", "error", err)
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid or expired token")
			return
		}

		if a.users != nil {
			u, err := a.users.GetUser(r.Context(), actor.UserID)
			switch {
			case err == nil && u.Blocked:
				writeError(w, http.StatusForbidden, string(apperr.KindForbidden), "account is blocked")
				return
			case err != nil && !errors.Is(err, apperr.ErrNotFound):
				a.log.Error("user lookup failed", "user_id", actor.UserID, "error", err)
				writeError(w, http.StatusInternalServerError, "internal", "internal server error")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithActor(r.Context(), actor)))
	})
}

// Require refuses anonymous requests.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := ActorFrom(r.Context()); !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireRole refuses requests whose actor holds none of roles.
func RequireRole(roles ...model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				writeError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, http.StatusForbidden, string(apperr.KindForbidden), "insufficient role")
		})
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(model.ErrorResponse{Error: msg, Code: code})
}
