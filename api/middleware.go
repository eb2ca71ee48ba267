package api

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shaj13/go-guardian/auth"
	"github.com/shaj13/go-guardian/auth/strategies/basic"
	"github.com/shaj13/go-guardian/auth/strategies/bearer"
	"github.com/shaj13/go-guardian/store"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/pawsaarthi/rescue-api/config"
	"github.com/pawsaarthi/rescue-api/databases"
	"github.com/pawsaarthi/rescue-api/lifecycle"
	"github.com/pawsaarthi/rescue-api/models"
)

// DefaultTokenTTL is used when no token lifetime is configured
const DefaultTokenTTL = 7 * 24 * time.Hour

// MiddlewareDB authenticates requests against the users collection
type MiddlewareDB struct {
	DB     databases.UserDatabase
	Secret []byte
	TTL    time.Duration
	Now    func() time.Time

	authenticator auth.Authenticator
	cache         store.Cache
	revoked       store.Cache
}

// TokenResponse is returned when a token is issued
type TokenResponse struct {
	Token     string      `json:"token"`
	ID        string      `json:"_id"`
	Role      models.Role `json:"role"`
	ExpiresAt time.Time   `json:"expiresAt"`
}

// SetupGoGuardian enables basic auth for token issue and bearer auth for
// everything else. Bearer tokens are signed JWTs checked on cache miss.
func (m *MiddlewareDB) SetupGoGuardian() {
	if m.TTL <= 0 {
		m.TTL = DefaultTokenTTL
	}
	if m.Now == nil {
		m.Now = time.Now
	}
	m.authenticator = auth.New()
	m.cache = store.NewFIFO(context.Background(), m.TTL)
	m.revoked = store.NewFIFO(context.Background(), m.TTL)
	basicStrategy := basic.New(m.ValidateUser, m.cache)
	tokenStrategy := bearer.New(m.ValidateToken, m.cache)

	m.authenticator.EnableStrategy(basic.StrategyKey, basicStrategy)
	m.authenticator.EnableStrategy(bearer.CachedStrategyKey, tokenStrategy)
}

// Middleware authenticates the request, loads the user and places the acting
// identity in the request context
func (m *MiddlewareDB) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		info, err := m.authenticator.Authenticate(r)
		if err != nil {
			zap.S().Debugw("unauthorized", "url", r.URL, "error", err)
			unauthorized(w)
			return
		}
		user, err := m.DB.FindByID(r.Context(), info.ID())
		if err != nil {
			if errors.Is(err, databases.ErrNotFound) {
				unauthorized(w)
				return
			}
			config.ErrorStatus("failed to load user", http.StatusInternalServerError, w, err)
			return
		}
		zap.S().Debugw("user authenticated", "userId", user.ID, "role", user.Details.Role)
		ctx := WithActor(r.Context(), lifecycle.ActorFromUser(user))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects actors whose role is not listed
func RequireRole(roles ...models.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := ActorFrom(r.Context())
			if !ok {
				unauthorized(w)
				return
			}
			for _, role := range roles {
				if actor.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			config.ErrorStatus("forbidden", http.StatusForbidden, w,
				fmt.Errorf("this action is not available to %s accounts", actor.Role))
		})
	}
}

// CreateToken issues a JWT to a user authenticated with basic auth
func (m *MiddlewareDB) CreateToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	info, err := m.authenticator.Authenticate(r)
	if err != nil {
		unauthorized(w)
		return
	}
	user, err := m.DB.FindByID(r.Context(), info.ID())
	if err != nil {
		unauthorized(w)
		return
	}

	token, expires, err := IssueToken(m.Secret, user, m.TTL, m.Now())
	if err != nil {
		config.ErrorStatus("failed to issue token", http.StatusInternalServerError, w, err)
		return
	}
	b, _ := json.Marshal(TokenResponse{Token: token, ID: user.ID, Role: user.Details.Role, ExpiresAt: expires})
	_, _ = w.Write(b)
}

// ValidateUser checks an email and password against the stored bcrypt hash
func (m *MiddlewareDB) ValidateUser(ctx context.Context, r *http.Request, email, password string) (auth.Info, error) {
	user, err := m.DB.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("no matching email found")
	}

	usernameHash := sha256.Sum256([]byte(strings.ToLower(email)))
	expectedUsernameHash := sha256.Sum256([]byte(user.Details.Email))
	usernameMatch := subtle.ConstantTimeCompare(usernameHash[:], expectedUsernameHash[:]) == 1

	if err := bcrypt.CompareHashAndPassword([]byte(user.Details.Password), []byte(password)); err != nil {
		return nil, fmt.Errorf("failed to compare password")
	}
	if !usernameMatch {
		return nil, fmt.Errorf("invalid credentials")
	}
	return auth.NewDefaultUser(user.Details.Email, user.ID, []string{user.Details.Role.String()}, nil), nil
}

// ValidateToken verifies a bearer JWT that has not been revoked
func (m *MiddlewareDB) ValidateToken(ctx context.Context, r *http.Request, token string) (auth.Info, error) {
	if _, ok, _ := m.revoked.Load(token, r); ok {
		return nil, fmt.Errorf("token revoked")
	}
	claims, err := ParseToken(m.Secret, token, m.Now())
	if err != nil {
		return nil, err
	}
	return auth.NewDefaultUser(claims.Subject, claims.Subject, []string{claims.Role}, nil), nil
}

// RevokeToken invalidates the bearer token of the request
func (m *MiddlewareDB) RevokeToken(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	token := strings.TrimSpace(strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer "))
	if token == "" {
		config.ErrorStatus("missing bearer token", http.StatusBadRequest, w, nil)
		return
	}
	m.revoked.Store(token, true, r)
	tokenStrategy := m.authenticator.Strategy(bearer.CachedStrategyKey)
	auth.Revoke(tokenStrategy, token, r)
	_, _ = w.Write([]byte(`{"success": true, "message": "token revoked"}`))
}

// AuthenticateToken resolves a raw token outside the Authorization header,
// as sent by websocket clients in the query string
func (m *MiddlewareDB) AuthenticateToken(r *http.Request, token string) (*models.User, error) {
	info, err := m.ValidateToken(r.Context(), r, token)
	if err != nil {
		return nil, err
	}
	return m.DB.FindByID(r.Context(), info.ID())
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error": "unauthorized"}`))
}
