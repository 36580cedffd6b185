package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"
	"time"

	"celestia/internal/config"
	"celestia/internal/domain"
	"celestia/internal/logging"
	"celestia/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
)

// TokenIssuer signs and verifies HS256 bearer tokens whose subject is a user id.
type TokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(cfg config.APIAuthConfig) *TokenIssuer {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TokenIssuer{
		secret: []byte(cfg.JWTSecret),
		issuer: cfg.Issuer,
		ttl:    ttl,
		now:    time.Now,
	}
}

func (t *TokenIssuer) Issue(userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := t.now()
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		Issuer:    t.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		NotBefore: jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse validates the token and returns its subject.
func (t *TokenIssuer) Parse(raw string) (string, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, opts...)
	if err != nil {
		return "", fmt.Errorf("parse token: %w", err)
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("token has no subject")
	}
	return claims.Subject, nil
}

type UserLookup interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, userID string) (bool, error)
}

// Authenticator resolves the bearer token to a directory user.
type Authenticator struct {
	tokens  *TokenIssuer
	users   UserLookup
	revoked RevocationChecker
	logger  zerolog.Logger
}

func NewAuthenticator(tokens *TokenIssuer, users UserLookup, revoked RevocationChecker, logger *zerolog.Logger) *Authenticator {
	base := *logging.Component(logger, "auth")
	return &Authenticator{tokens: tokens, users: users, revoked: revoked, logger: base}
}

// Middleware rejects requests without a valid token for a known, enabled,
// unrevoked user and stores the caller in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if raw == "" {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := a.tokens.Parse(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid token")
			return
		}

		ctx := r.Context()
		if a.revoked != nil {
			revoked, err := a.revoked.IsRevoked(ctx, userID)
			if err != nil {
				a.logger.Error().Err(err).Str("request_id", requestIDFrom(ctx)).Msg("revocation check failed")
				writeError(w, http.StatusInternalServerError, internalErrorMessage)
				return
			}
			if revoked {
				writeError(w, http.StatusUnauthorized, "credentials revoked")
				return
			}
		}

		user, err := a.users.GetUser(ctx, userID)
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusUnauthorized, "unknown user")
			return
		}
		if err != nil {
			a.logger.Error().Err(err).Str("request_id", requestIDFrom(ctx)).Msg("caller lookup failed")
			writeError(w, http.StatusInternalServerError, internalErrorMessage)
			return
		}
		if user.Disabled {
			writeError(w, http.StatusForbidden, "account disabled")
			return
		}

		next.ServeHTTP(w, r.WithContext(withCaller(ctx, user)))
	})
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

type ctxKey int

const callerKey ctxKey = iota

func withCaller(ctx context.Context, u *models.User) context.Context {
	return context.WithValue(ctx, callerKey, u)
}

func callerFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(callerKey).(*models.User)
	return u
}

func requireApproved(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := callerFrom(r.Context()); u == nil || !u.Approved {
			writeError(w, http.StatusForbidden, "account pending approval")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireRoles(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u := callerFrom(r.Context())
			if u == nil || !slices.Contains(roles, u.Role) {
				writeError(w, http.StatusForbidden, "permission denied")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func requireStaff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if u := callerFrom(r.Context()); u == nil || !u.IsStaff() {
			writeError(w, http.StatusForbidden, "permission denied")
			return
		}
		next.ServeHTTP(w, r)
	})
}
