package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// publicPaths lists routes reachable without a bearer token, mirroring
// the teacher's publicPaths map.
var publicPaths = map[string]struct{}{
	"/healthz":        {},
	"/api/auth/login": {},
}

type ctxKey string

const ctxSubjectKey ctxKey = "httpapi.subject"

// Claims is the minimal JWT claim set NoETL tokens carry: a subject
// (the authenticated worker or CLI user) and nothing else, since the
// spec places tenant/role modeling out of scope (§1 Non-goals: auth
// gateway proxies, Auth0 integration).
type Claims struct {
	jwt.RegisteredClaims
}

// JWTValidator abstracts token verification so NewHandler doesn't tie
// the REST surface to one signing scheme.
type JWTValidator interface {
	Validate(token string) (*Claims, error)
}

// HMACValidator validates HS256 tokens signed with a shared secret
// (NOETL_AUTH_JWT_SECRET), the minimal single-key scheme `noetl auth
// login` needs.
type HMACValidator struct {
	secret []byte
}

// NewHMACValidator builds a validator over secret. Returns nil if
// secret is empty, so callers can pass it straight through and get "no
// auth configured" behavior for free.
func NewHMACValidator(secret string) *HMACValidator {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil
	}
	return &HMACValidator{secret: []byte(secret)}
}

func (v *HMACValidator) Validate(token string) (*Claims, error) {
	if v == nil {
		return nil, fmt.Errorf("jwt auth not configured")
	}
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !parsed.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// IssueToken mints a token for subject with the given ttl, the
// counterpart HMACValidator.Validate checks.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// wrapWithAuth enforces a bearer token on every non-public path when
// validator is non-nil; a nil validator leaves the API open, matching
// the spec's own "minimal, no gateway" auth stance for local/dev use.
func wrapWithAuth(next http.Handler, validator JWTValidator) http.Handler {
	if validator == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := publicPaths[r.URL.Path]; ok {
			next.ServeHTTP(w, r)
			return
		}
		token := extractToken(r)
		if token == "" {
			unauthorized(w)
			return
		}
		claims, err := validator.Validate(token)
		if err != nil {
			unauthorized(w)
			return
		}
		ctx := context.WithValue(r.Context(), ctxSubjectKey, claims.Subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func extractToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.Fields(header)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// authLogin implements `noetl auth login` (§6 CLI surface): it trades a
// shared password for a bearer token, the minimal single-user scheme
// the spec's CLI needs without a gateway or Auth0 in front of it.
// Disabled (404) when the orchestrator has no password configured.
func (h *handler) authLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if strings.TrimSpace(h.deps.AuthSecret) == "" || strings.TrimSpace(h.deps.AuthPassword) == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	var payload struct {
		Subject  string `json:"subject"`
		Password string `json:"password"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, err)
		return
	}
	if payload.Password != h.deps.AuthPassword {
		unauthorized(w)
		return
	}

	subject := strings.TrimSpace(payload.Subject)
	if subject == "" {
		subject = "noetlctl"
	}
	ttl := h.deps.AuthTokenTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	token, err := IssueToken(h.deps.AuthSecret, subject, ttl)
	if err != nil {
		writeError(w, fmt.Errorf("issue token: %w", err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"token":      token,
		"expires_in": int(ttl.Seconds()),
	})
}

// unauthorized reports a 401, a transport-level auth failure outside
// the §7 error taxonomy (which has no "unauthenticated" kind) — the
// CLI's exit code 3 maps directly to this status.
func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthenticated"}`))
}
