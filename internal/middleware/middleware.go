package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/time/rate"

	"adte.com/adte/creative-agent/internal/auth"
	"adte.com/adte/creative-agent/internal/metrics"
)

type RateLimiterStore struct {
	mu      sync.Mutex
	clients map[string]*clientLimiter
	limit   rate.Limit
	burst   int
	ttl     time.Duration
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiterStore(limit rate.Limit, burst int, ttl time.Duration) *RateLimiterStore {
	return &RateLimiterStore{
		clients: make(map[string]*clientLimiter),
		limit:   limit,
		burst:   burst,
		ttl:     ttl,
	}
}

func (s *RateLimiterStore) getLimiter(key string) *rate.Limiter {
	now := time.Now()
	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.clients[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	limiter := rate.NewLimiter(s.limit, s.burst)
	s.clients[key] = &clientLimiter{limiter: limiter, lastSeen: now}

	// Clean up old entries
	for k, v := range s.clients {
		if now.Sub(v.lastSeen) > s.ttl {
			delete(s.clients, k)
		}
	}
	return limiter
}

type loggingResponseWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	if !lrw.wroteHeader {
		lrw.status = code
		lrw.wroteHeader = true
	}
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	lrw.wroteHeader = true
	return lrw.ResponseWriter.Write(b)
}

// Flush lets streamed MCP responses through the wrapper.
func (lrw *loggingResponseWriter) Flush() {
	if f, ok := lrw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (lrw *loggingResponseWriter) Unwrap() http.ResponseWriter {
	return lrw.ResponseWriter
}

func LoggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(lrw, r)
			logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"status", lrw.status,
				"duration_ms", time.Since(start).Milliseconds(),
			)
		})
	}
}

// MetricsMiddleware counts requests per route. Routes are the first path
// segment so ids in the path do not create new series.
func MetricsMiddleware(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(lrw, r)
			m.RecordRequest(RouteLabel(r.URL.Path), lrw.status, time.Since(start))
		})
	}
}

// RouteLabel reduces a request path to its first segment.
func RouteLabel(path string) string {
	trimmed := strings.TrimPrefix(path, "/")
	if i := strings.IndexByte(trimmed, '/'); i >= 0 {
		trimmed = trimmed[:i]
	}
	return "/" + trimmed
}

// RecoverMiddleware turns a panicking handler into a 500 response carrying a
// truncated diagnostic.
func RecoverMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
					panic(rec)
				}
				logger.Error("handler panicked",
					"path", r.URL.Path,
					"panic", rec,
					"stack", string(debug.Stack()),
				)
				diagnostic := fmt.Sprint(rec)
				if len(diagnostic) > 500 {
					diagnostic = diagnostic[:500] + "..."
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]string{
					"error":   "Internal server error",
					"code":    "INTERNAL_ERROR",
					"details": diagnostic,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS middleware to allow the AdCP Testing Framework (or any origin) to access our API.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key, Mcp-Session-Id, Mcp-Protocol-Version")
		w.Header().Set("Access-Control-Expose-Headers", "Mcp-Session-Id")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodOptions {
			// Respond to preflight requests quickly
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimit middleware implements per-IP rate limiting
func RateLimitMiddleware(store *RateLimiterStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := clientIPFromRequest(r)
			limiter := store.getLimiter(clientIP)
			if !limiter.Allow() {
				slog.Default().Warn("rate limit exceeded", "client_ip", clientIP, "path", r.URL.Path)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"Rate limit exceeded","code":"RATE_LIMIT_EXCEEDED"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Add request body size limit middleware
func LimitBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

func clientIPFromRequest(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// JWTClaims represents the claims in our JWT tokens (AdCP compliant)
type JWTClaims struct {
	jwt.RegisteredClaims
	Permissions struct {
		Formats   []string `json:"formats,omitempty"`
		Creatives []string `json:"creatives,omitempty"`
	} `json:"permissions,omitempty"`
}

type contextKey string

const (
	ContextKeyClaims contextKey = "jwt_claims"
)

// GetClaimsFromContext retrieves JWT claims from the request context
func GetClaimsFromContext(ctx context.Context) (*JWTClaims, bool) {
	claims, ok := ctx.Value(ContextKeyClaims).(*JWTClaims)
	return claims, ok
}

// sendAuthErrorResponse sends an authentication error response with AdCP-compliant error codes
func sendAuthErrorResponse(w http.ResponseWriter, code string, message string, logger *slog.Logger) {
	w.Header().Set("Content-Type", "application/json")
	statusCode := http.StatusUnauthorized
	if code == "INSUFFICIENT_PERMISSIONS" {
		statusCode = http.StatusForbidden
	}
	w.WriteHeader(statusCode)
	response := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	}
	if err := json.NewEncoder(w).Encode(response); err != nil {
		logger.Error("failed to encode error response", "error", err)
	}
}

// IsPublicPath reports whether path is listed in publicPaths. Entries ending
// in "/" match every path below them.
func IsPublicPath(path string, publicPaths []string) bool {
	for _, p := range publicPaths {
		if path == p || (strings.HasSuffix(p, "/") && p != "/" && strings.HasPrefix(path, p)) {
			return true
		}
	}
	return false
}

// OptionalAuthMiddleware allows public paths to be accessed without authentication
// but still extracts authentication context if credentials are provided
func OptionalAuthMiddleware(authMiddleware func(http.Handler) http.Handler, publicPaths []string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !IsPublicPath(r.URL.Path, publicPaths) {
				authMiddleware(next).ServeHTTP(w, r)
				return
			}

			var authenticatedRequest *http.Request
			captureHandler := http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				authenticatedRequest = req
			})
			captureWriter := &authCaptureWriter{ResponseWriter: w, isPublic: true}
			authMiddleware(captureHandler).ServeHTTP(captureWriter, r)

			switch {
			case captureWriter.authFailed:
				logger.Debug("Optional auth failed for public endpoint, continuing without auth",
					"path", r.URL.Path,
					"hasAuthHeader", r.Header.Get("Authorization") != "",
					"hasAPIKey", r.Header.Get("X-API-Key") != "")
				next.ServeHTTP(w, r)
			case authenticatedRequest != nil:
				next.ServeHTTP(w, authenticatedRequest)
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}

// authCaptureWriter captures authentication failures for public endpoints
type authCaptureWriter struct {
	http.ResponseWriter
	authFailed bool
	isPublic   bool
	written    bool
}

func (w *authCaptureWriter) WriteHeader(code int) {
	if w.isPublic && (code == http.StatusUnauthorized || code == http.StatusForbidden) {
		w.authFailed = true
		return
	}
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *authCaptureWriter) Write(b []byte) (int, error) {
	if w.isPublic && w.authFailed {
		return len(b), nil
	}
	w.written = true
	return w.ResponseWriter.Write(b)
}

// UnifiedAuthMiddleware creates a middleware that validates both JWT tokens and API keys.
// Bearer tokens are rejected when no JWT secret is configured.
func UnifiedAuthMiddleware(jwtSecretKey string, apiKeyStore *auth.APIKeyStore, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Try API Key authentication first
			if apiKey := r.Header.Get("X-API-Key"); apiKey != "" {
				principal, ok := apiKeyStore.GetPrincipal(apiKey)
				if !ok {
					sendAuthErrorResponse(w, "AUTH_INVALID", "Invalid or expired credentials", logger)
					return
				}
				ctx := context.WithValue(r.Context(), auth.ContextKeyPrincipal, principal)
				next.ServeHTTP(w, r.WithContext(ctx))
				return
			}

			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				sendAuthErrorResponse(w, "AUTH_REQUIRED", "Authentication required for this operation", logger)
				return
			}

			tokenParts := strings.Split(authHeader, " ")
			if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
				sendAuthErrorResponse(w, "AUTH_INVALID", "Invalid authorization header format", logger)
				return
			}
			if jwtSecretKey == "" {
				sendAuthErrorResponse(w, "AUTH_INVALID", "Bearer tokens are not accepted by this agent", logger)
				return
			}

			claims := &JWTClaims{}
			token, err := jwt.ParseWithClaims(tokenParts[1], claims, func(token *jwt.Token) (interface{}, error) {
				if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return []byte(jwtSecretKey), nil
			})
			if err != nil {
				logger.Debug("JWT validation failed", "error", err, "path", r.URL.Path)
				sendAuthErrorResponse(w, "AUTH_INVALID", "Invalid or expired credentials", logger)
				return
			}
			if !token.Valid {
				sendAuthErrorResponse(w, "AUTH_INVALID", "Invalid token", logger)
				return
			}

			principal := &auth.Principal{
				PrincipalID: claims.Subject,
				Permissions: make(map[string][]auth.Permission),
			}
			if len(claims.Permissions.Formats) > 0 {
				principal.Permissions[auth.ResourceFormats] = stringSliceToPermissions(claims.Permissions.Formats)
			}
			if len(claims.Permissions.Creatives) > 0 {
				principal.Permissions[auth.ResourceCreatives] = stringSliceToPermissions(claims.Permissions.Creatives)
			}

			ctx := context.WithValue(r.Context(), auth.ContextKeyPrincipal, principal)
			ctx = context.WithValue(ctx, ContextKeyClaims, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermissions rejects requests whose principal lacks the permissions
// registered for operation.
func RequirePermissions(operation string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, _ := auth.GetPrincipalFromContext(r.Context())
			if err := auth.CheckOperationPermissions(principal, operation); err != nil {
				var perr *auth.InsufficientPermissionsError
				if errors.As(err, &perr) {
					logger.Warn("permission denied",
						"principal", principal.PrincipalID,
						"operation", operation,
						"resource", perr.Resource)
					sendAuthErrorResponse(w, "INSUFFICIENT_PERMISSIONS", err.Error(), logger)
					return
				}
				sendAuthErrorResponse(w, "AUTH_REQUIRED", "Authentication required for this operation", logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func stringSliceToPermissions(perms []string) []auth.Permission {
	result := make([]auth.Permission, 0, len(perms))
	for _, p := range perms {
		result = append(result, auth.Permission(p))
	}
	return result
}
