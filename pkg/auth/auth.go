package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/alim08/tradesite/pkg/logger"
	"github.com/alim08/tradesite/pkg/metrics"
	"github.com/alim08/tradesite/pkg/models"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// CookieName is the session cookie set after a successful login.
const CookieName = "tradesite_session"

var (
	ErrNoSession    = errors.New("no session")
	ErrInvalidToken = errors.New("invalid session token")
)

type contextKey struct{}

// Claims represents the session token claims
type Claims struct {
	UserID   string   `json:"user_id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// SessionService issues and checks RS256 session tokens
type SessionService struct {
	privateKey         *rsa.PrivateKey
	publicKey          *rsa.PublicKey
	issuer             string
	audience           string
	expiration         time.Duration
	rememberExpiration time.Duration
	secureCookie       bool
	now                func() time.Time
}

// Config holds session configuration
type Config struct {
	PrivateKeyPath     string
	PublicKeyPath      string
	Issuer             string
	Audience           string
	Expiration         time.Duration
	RememberExpiration time.Duration
	SecureCookie       bool
}

// NewConfig creates a session configuration from environment variables
func NewConfig() *Config {
	return &Config{
		PrivateKeyPath:     getEnvOrDefault("JWT_PRIVATE_KEY_PATH", "keys/private.pem"),
		PublicKeyPath:      getEnvOrDefault("JWT_PUBLIC_KEY_PATH", "keys/public.pem"),
		Issuer:             getEnvOrDefault("JWT_ISSUER", "tradesite"),
		Audience:           getEnvOrDefault("JWT_AUDIENCE", "tradesite-web"),
		Expiration:         getEnvDurationOrDefault("JWT_EXPIRATION", 24*time.Hour),
		RememberExpiration: getEnvDurationOrDefault("JWT_REMEMBER_EXPIRATION", 30*24*time.Hour),
		SecureCookie:       os.Getenv("COOKIE_SECURE") == "true",
	}
}

// NewSessionService loads the key pair named by config
func NewSessionService(config *Config) (*SessionService, error) {
	privateKey, err := loadPrivateKey(config.PrivateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}
	publicKey, err := loadPublicKey(config.PublicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load public key: %w", err)
	}
	return &SessionService{
		privateKey:         privateKey,
		publicKey:          publicKey,
		issuer:             config.Issuer,
		audience:           config.Audience,
		expiration:         config.Expiration,
		rememberExpiration: config.RememberExpiration,
		secureCookie:       config.SecureCookie,
		now:                time.Now,
	}, nil
}

// IssueToken signs a session token for user. rememberMe selects the long
// lifetime. It returns the token and its expiry.
func (s *SessionService) IssueToken(user models.AuthUser, rememberMe bool) (string, time.Time, error) {
	start := time.Now()
	lifetime := s.expiration
	if rememberMe {
		lifetime = s.rememberExpiration
	}
	now := s.now()
	expires := now.Add(lifetime)
	claims := Claims{
		UserID:   user.ID,
		Username: user.Username,
		Email:    user.Email,
		Roles:    user.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   user.ID,
			Audience:  []string{s.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
			NotBefore: jwt.NewNumericDate(now),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(s.privateKey)
	metrics.AuthOperationDuration.WithLabelValues("issue_token", metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AuthErrors.WithLabelValues("issue_token").Inc()
		return "", time.Time{}, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, expires, nil
}

// ValidateToken checks signature, lifetime, issuer and audience
func (s *SessionService) ValidateToken(tokenString string) (*Claims, error) {
	start := time.Now()
	claims, err := s.parse(tokenString)
	metrics.AuthOperationDuration.WithLabelValues("validate_token", metrics.Status(err)).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AuthErrors.WithLabelValues("validate_token").Inc()
		return nil, err
	}
	return claims, nil
}

func (s *SessionService) parse(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.publicKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// SetCookie writes the session cookie.
func (s *SessionService) SetCookie(w http.ResponseWriter, token string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func (s *SessionService) ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.secureCookie,
		SameSite: http.SameSiteLaxMode,
	})
}

// SessionFromRequest validates the request's session cookie.
func (s *SessionService) SessionFromRequest(r *http.Request) (*Claims, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, ErrNoSession
	}
	return s.ValidateToken(cookie.Value)
}

// RequireSession lets requests with a valid session through and adds the
// claims to the context. Others are sent to the login page next to the
// requested one, or get 401 when they asked for JSON.
func (s *SessionService) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.SessionFromRequest(r)
		if err != nil {
			errorType := "invalid_token"
			if errors.Is(err, ErrNoSession) {
				errorType = "missing_cookie"
			} else {
				logger.Log.Warn("session validation failed", zap.Error(err), zap.String("ip", r.RemoteAddr))
				s.ClearCookie(w)
			}
			metrics.AuthMiddlewareErrors.WithLabelValues(errorType).Inc()

			if strings.Contains(r.Header.Get("Accept"), "application/json") {
				http.Error(w, "Authentication required", http.StatusUnauthorized)
				return
			}
			http.Redirect(w, r, "login", http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRole lets through sessions holding any of roles. It answers 401 or
// 403 itself instead of redirecting, so it suits API routes.
func (s *SessionService) RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				var err error
				if claims, err = s.SessionFromRequest(r); err != nil {
					metrics.AuthMiddlewareErrors.WithLabelValues("no_session").Inc()
					http.Error(w, "Authentication required", http.StatusUnauthorized)
					return
				}
			}
			if !claims.HasAnyRole(roles...) {
				logger.Log.Warn("insufficient permissions",
					zap.String("user_id", claims.UserID),
					zap.Strings("user_roles", claims.Roles),
					zap.Strings("required_roles", roles))
				metrics.AuthMiddlewareErrors.WithLabelValues("insufficient_permissions").Inc()
				http.Error(w, "Insufficient permissions", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// WithClaims returns a context carrying claims.
func WithClaims(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, contextKey{}, claims)
}

// ClaimsFromContext extracts session claims from context
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	claims, ok := ctx.Value(contextKey{}).(*Claims)
	return claims, ok
}

// HasRole checks if the user has a specific role
func (c *Claims) HasRole(role string) bool {
	for _, userRole := range c.Roles {
		if userRole == role {
			return true
		}
	}
	return false
}

// HasAnyRole checks if the user has any of the specified roles
func (c *Claims) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if c.HasRole(role) {
			return true
		}
	}
	return false
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
