package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/classforge/enrollment/internal/app/domain/identity"
)

type contextKey string

const actorKey contextKey = "actor"

// AuthConfig controls how the identity middleware resolves callers.
type AuthConfig struct {
	// JWTSecret signs and verifies HMAC bearer tokens.
	JWTSecret string
	// AllowDevHeaders accepts X-User-Id / X-Role instead of a token.
	// Never enable outside local development.
	AllowDevHeaders bool
}

// identityMiddleware resolves the caller into an Actor on the request
// context. Requests without a resolvable identity are rejected before they
// reach any handler.
func (h *handler) identityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, err := h.resolveActor(r)
		if err != nil {
			writeErrorCode(w, http.StatusUnauthorized, "unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey, actor)))
	})
}

func (h *handler) resolveActor(r *http.Request) (identity.Actor, error) {
	if h.auth.AllowDevHeaders {
		if userID := strings.TrimSpace(r.Header.Get("X-User-Id")); userID != "" {
			role := identity.Role(strings.TrimSpace(r.Header.Get("X-Role")))
			if role == "" {
				role = identity.RoleUser
			}
			if !role.Valid() {
				return identity.Actor{}, fmt.Errorf("unknown role %q", role)
			}
			return identity.Actor{UserID: userID, Role: role}, nil
		}
	}

	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return identity.Actor{}, fmt.Errorf("missing credentials")
	}
	if !strings.HasPrefix(raw, "Bearer ") {
		return identity.Actor{}, fmt.Errorf("authorization header must be a bearer token")
	}

	token, err := jwt.Parse(strings.TrimPrefix(raw, "Bearer "), func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(h.auth.JWTSecret), nil
	})
	if err != nil {
		return identity.Actor{}, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity.Actor{}, fmt.Errorf("invalid token claims")
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		userID, _ = claims["sub"].(string)
	}
	if userID == "" {
		return identity.Actor{}, fmt.Errorf("token carries no user id")
	}
	roleClaim, _ := claims["role"].(string)
	role := identity.Role(roleClaim)
	if role == "" {
		role = identity.RoleUser
	}
	if !role.Valid() {
		return identity.Actor{}, fmt.Errorf("unknown role %q", role)
	}
	return identity.Actor{UserID: userID, Role: role}, nil
}

// actorFrom returns the actor placed on the context by identityMiddleware.
func actorFrom(ctx context.Context) identity.Actor {
	actor, _ := ctx.Value(actorKey).(identity.Actor)
	return actor
}
