package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	apperrors "enrollment-crm/errors"
	"enrollment-crm/logger"
	"enrollment-crm/models"
	"enrollment-crm/utils"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const revokedKeyPrefix = "revoked:"

// Claims represents the session claims carried by the JWT.
type Claims struct {
	jwt.RegisteredClaims
	Email string          `json:"email"`
	Name  string          `json:"name"`
	Role  models.UserRole `json:"role"`
}

// LoginRequest is the body of POST /api/auth/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Session is a signed token with the user it was issued for.
type Session struct {
	Token     string      `json:"token"`
	ExpiresAt time.Time   `json:"expiresAt"`
	User      models.User `json:"user"`
}

type AuthService struct {
	deps   *Deps
	secret []byte
	ttl    time.Duration
}

func NewAuthService(d *Deps, secret string, ttl time.Duration) *AuthService {
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}
	return &AuthService{deps: d.withDefaults(), secret: []byte(secret), ttl: ttl}
}

var errBadCredentials = apperrors.E(apperrors.Unauthorized, "invalid email or password")

// Login checks the password and issues a session token.
func (s *AuthService) Login(ctx context.Context, req LoginRequest) (Session, error) {
	req.Email = strings.TrimSpace(req.Email)
	if err := utils.ValidateStruct(req); err != nil {
		return Session{}, err
	}

	row, err := s.deps.Store.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if apperrors.IsKind(err, apperrors.NotFound) {
			return Session{}, errBadCredentials
		}
		return Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(row.PasswordHash), []byte(req.Password)); err != nil {
		logger.Warn("Failed login for %s", req.Email)
		return Session{}, errBadCredentials
	}

	user := MapUser(row)
	now := s.deps.Now()
	expires := now.Add(s.ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Email: user.Email,
		Name:  user.Name,
		Role:  user.Role,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return Session{}, apperrors.E(apperrors.Internal, "signing session token", err)
	}

	logger.Info("User %s logged in", user.Email)
	return Session{Token: token, ExpiresAt: expires, User: user}, nil
}

func (s *AuthService) parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.deps.Now))
	if err != nil || !parsed.Valid {
		return nil, apperrors.E(apperrors.Unauthorized, "invalid or expired token")
	}
	return claims, nil
}

// Session validates a token and returns the current state of its user.
func (s *AuthService) Session(ctx context.Context, token string) (models.User, *Claims, error) {
	claims, err := s.parse(token)
	if err != nil {
		return models.User{}, nil, err
	}

	var revoked bool
	if hit, err := s.deps.Cache.Get(ctx, revokedKeyPrefix+claims.ID, &revoked); err != nil {
		logger.Warn("session revocation lookup failed: %v", err)
	} else if hit && revoked {
		return models.User{}, nil, apperrors.E(apperrors.Unauthorized, "session has been revoked")
	}

	row, err := s.deps.Store.GetUser(ctx, claims.Subject)
	if err != nil {
		if apperrors.IsKind(err, apperrors.NotFound) {
			return models.User{}, nil, apperrors.E(apperrors.Unauthorized, "user no longer exists")
		}
		return models.User{}, nil, err
	}
	return MapUser(row), claims, nil
}

// Logout revokes the token until it would have expired anyway.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return err
	}
	ttl := time.Minute
	if claims.ExpiresAt != nil {
		if left := claims.ExpiresAt.Sub(s.deps.Now()); left > 0 {
			ttl = left
		}
	}
	if err := s.deps.Cache.Set(ctx, revokedKeyPrefix+claims.ID, true, ttl); err != nil {
		return apperrors.E(apperrors.Internal, "revoking session", err)
	}
	logger.Info("User %s logged out", claims.Email)
	return nil
}

// HashPassword returns the bcrypt hash stored for a user.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("error hashing password: %w", err)
	}
	return string(hash), nil
}

// MapUser exposes a user row. Missing names fall back to the local part of
// the email; unknown roles read as CONSULTANT.
func MapUser(row models.UserRow) models.User {
	name := strings.TrimSpace(row.Name.String)
	if name == "" {
		if at := strings.Index(row.Email, "@"); at > 0 {
			name = row.Email[:at]
		}
	}
	if name == "" {
		name = utils.DefaultUserName
	}

	role := models.UserRole(strings.ToUpper(strings.TrimSpace(row.Role.String)))
	if !role.IsValid() {
		role = models.RoleConsultant
	}

	return models.User{
		ID:     row.ID,
		Name:   name,
		Email:  row.Email,
		Role:   role,
		Avatar: row.Avatar.String,
	}
}
