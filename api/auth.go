/*
auth.go - JWT bearer authentication middleware

PURPOSE:
  Validates HS256 bearer tokens and places the acting user (ID + role)
  on the request context. Role AUTHORIZATION stays in the engine - the
  middleware only authenticates; per-operation role checks live next to
  the operations they guard.

TOKEN CLAIMS:
  sub:  actor ID
  role: "Sales" | "Accountant" | "Manager"

SEE ALSO:
  - billing/service.go: operationRoles, the authorization side
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/warp/billing-engine/billing"
)

type contextKey string

const actorContextKey contextKey = "actor"

// ActorFromContext returns the authenticated actor, if any.
func ActorFromContext(ctx context.Context) (billing.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey).(billing.Actor)
	return actor, ok
}

// AuthMiddleware validates the Authorization header and attaches the
// actor to the request context.
func AuthMiddleware(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, http.StatusUnauthorized, "Authorization header required", nil)
				return
			}

			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				writeError(w, http.StatusUnauthorized, "Invalid Authorization header format", nil)
				return
			}

			claims := jwt.MapClaims{}
			token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
				}
				return []byte(secret), nil
			})
			if err != nil || !token.Valid {
				writeError(w, http.StatusUnauthorized, "Invalid token", err)
				return
			}

			sub, _ := claims["sub"].(string)
			roleStr, _ := claims["role"].(string)
			if sub == "" || roleStr == "" {
				writeError(w, http.StatusUnauthorized, "Token missing sub or role claim", nil)
				return
			}

			actor := billing.Actor{ID: sub, Role: billing.Role(roleStr)}
			ctx := context.WithValue(r.Context(), actorContextKey, actor)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SignToken issues a token for the actor. Used by tests and dev tooling.
func SignToken(secret string, actor billing.Actor, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  actor.ID,
		"role": string(actor.Role),
		"iat":  time.Now().Unix(),
		"exp":  time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}
