package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"echvid/internal/accounts"
	"echvid/internal/logging"
	"echvid/internal/services"
)

// Claims are the JWT claims issued at login.
type Claims struct {
	UserID int64  `json:"uid"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// TokenService issues and validates HS256 bearer tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService builds a token service. An empty secret disables login.
func NewTokenService(secret string, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// Issue signs a token for user.
func (s *TokenService) Issue(user *accounts.User) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, services.Wrap(services.ErrConfiguration, "api", "issue token", "api.jwt_secret is not configured", nil)
	}
	now := s.now()
	expires := now.Add(s.ttl)
	claims := &Claims{
		UserID: user.ID,
		Role:   string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", user.ID),
			ExpiresAt: jwt.NewNumericDate(expires),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// Validate parses and verifies a token.
func (s *TokenService) Validate(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, errors.New("token signing is not configured")
	}
	if tokenString == "" {
		return nil, errors.New("token string is empty")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return nil, errors.New("token is not valid")
	}
	return claims, nil
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID int64
	Role   accounts.Role
	// Static is set for callers using paths.api_token.
	Static bool
}

// IsAdmin reports whether the caller may use admin routes.
func (i Identity) IsAdmin() bool {
	return i.Role == accounts.RoleAdmin
}

type identityKey struct{}

func withIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller attached by the auth middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// authenticate accepts either a JWT or the static admin token.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		parts := strings.Fields(r.Header.Get("Authorization"))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		token := parts[1]

		if static := s.cfg.Paths.APIToken; static != "" && subtle.ConstantTimeCompare([]byte(token), []byte(static)) == 1 {
			ctx := withIdentity(r.Context(), Identity{Role: accounts.RoleAdmin, Static: true})
			next.ServeHTTP(w, r.WithContext(ctx))
			return
		}

		claims, err := s.tokens.Validate(token)
		if err != nil {
			s.log(r.Context()).Debug("bearer token rejected", logging.Error(err))
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		ctx := withIdentity(r.Context(), Identity{UserID: claims.UserID, Role: accounts.Role(claims.Role)})
		ctx = services.WithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			s.writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		if !id.IsAdmin() {
			s.writeError(w, http.StatusForbidden, "forbidden", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}
