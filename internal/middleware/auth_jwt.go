package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"vidgen/internal/domain"
)

// TokenClaims are the session claims issued by the web app.
type TokenClaims struct {
	Plan   string `json:"plan,omitempty"`
	Role   string `json:"role,omitempty"`
	Locale string `json:"locale,omitempty"`
	jwt.RegisteredClaims
}

type callerKey struct{}

var errInvalidToken = errors.New("invalid token")

// SignJWT issues an HS256 token. A zero expiry defaults to seven days.
func SignJWT(secret string, claims TokenClaims) (string, error) {
	now := time.Now()
	if claims.IssuedAt == nil {
		claims.IssuedAt = jwt.NewNumericDate(now)
	}
	if claims.ExpiresAt == nil {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(7 * 24 * time.Hour))
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString([]byte(secret))
}

// VerifyJWT parses token and checks its signature and expiry.
func VerifyJWT(secret, token string) (*TokenClaims, error) {
	var claims TokenClaims
	t, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !t.Valid {
		return nil, errInvalidToken
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("missing sub")
	}
	return &claims, nil
}

// Caller maps the claims onto the domain caller.
func (c TokenClaims) Caller() domain.Caller {
	role := domain.UserRole(strings.ToLower(c.Role))
	if role != domain.UserRoleAdmin {
		role = domain.UserRoleUser
	}
	plan := domain.UserPlan(strings.ToLower(c.Plan))
	if plan != domain.UserPlanPro {
		plan = domain.UserPlanFree
	}
	return domain.Caller{UserID: c.Subject, Role: role, Plan: plan}
}

// AuthJWT requires a bearer token and stores the caller in the context.
func AuthJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeUnauthorized(w, "missing authorization")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				writeUnauthorized(w, "invalid authorization")
				return
			}
			claims, err := VerifyJWT(secret, strings.TrimSpace(parts[1]))
			if err != nil {
				writeUnauthorized(w, "invalid token")
				return
			}
			ctx := ContextWithCaller(r.Context(), claims.Caller())
			if claims.Locale != "" {
				ctx = context.WithValue(ctx, LocaleKey, normalizeLocale(claims.Locale))
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}

// CallerFromContext returns the authenticated caller, if any.
func CallerFromContext(ctx context.Context) (domain.Caller, bool) {
	c, ok := ctx.Value(callerKey{}).(domain.Caller)
	return c, ok
}

func UserIDFromContext(ctx context.Context) string {
	c, _ := CallerFromContext(ctx)
	return c.UserID
}

func ContextWithCaller(ctx context.Context, caller domain.Caller) context.Context {
	if strings.TrimSpace(caller.UserID) == "" {
		return ctx
	}
	return context.WithValue(ctx, callerKey{}, caller)
}
