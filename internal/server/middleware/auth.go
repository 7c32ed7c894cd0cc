// Package middleware provides HTTP middleware for authentication and authorization.
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is a typed key for context values to avoid collisions.
type ContextKey string

const (
	// orgIDKey is the context key for the authenticated organization ID.
	orgIDKey ContextKey = "orgID"
	// planKey is the context key for the organization's plan claim.
	planKey ContextKey = "plan"
)

// TokenValidator is an interface for validating bearer tokens.
// This allows the middleware to work with any JWT service implementation.
type TokenValidator interface {
	ValidateToken(tokenString string) (OrgClaims, error)
}

// OrgClaims is what the middleware needs from validated token claims.
type OrgClaims interface {
	GetOrgID() uuid.UUID
	GetPlan() string
}

// AuthMiddleware creates middleware that validates bearer tokens and adds the
// organization ID to the request context.
func AuthMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				unauthorized(w)
				return
			}

			claims, err := validator.ValidateToken(tokenString)
			if err != nil {
				unauthorized(w)
				return
			}

			orgID := claims.GetOrgID()
			if orgID == uuid.Nil {
				unauthorized(w)
				return
			}

			ctx := WithOrg(r.Context(), orgID, claims.GetPlan())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken extracts the token from an Authorization header. The scheme
// is matched case-insensitively.
func bearerToken(header string) (string, bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	return parts[1], true
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="reply-drafter"`)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"missing or invalid bearer token"}` + "\n"))
}

// WithOrg returns a context carrying the organization ID and plan.
func WithOrg(ctx context.Context, orgID uuid.UUID, plan string) context.Context {
	ctx = context.WithValue(ctx, orgIDKey, orgID)
	return context.WithValue(ctx, planKey, plan)
}

// GetOrgID extracts the authenticated organization ID from the request context.
func GetOrgID(r *http.Request) (uuid.UUID, error) {
	orgID, ok := r.Context().Value(orgIDKey).(uuid.UUID)
	if !ok {
		return uuid.Nil, fmt.Errorf("organization ID not found in request context")
	}
	return orgID, nil
}

// GetPlan returns the plan claim, or "" when absent.
func GetPlan(r *http.Request) string {
	plan, _ := r.Context().Value(planKey).(string)
	return plan
}
