package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"pulsehub/internal/dto/req"
	"pulsehub/internal/dto/resp"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	RedisKeyPrefix = "pulsehub:auth:session:"
	Issuer         = "pulsehub-auth-service"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrSessionExpired     = errors.New("session expired")
)

// Credentials of the single operator account allowed on the admin API.
type Credentials struct {
	UserID   string
	Username string
	Password string
	Role     string
}

type AuthService struct {
	redis           *redis.Client
	secret          []byte
	admin           Credentials
	accessTokenTTL  time.Duration
	refreshTokenTTL time.Duration
}

// TokenType separates access from refresh tokens; both share secret and issuer.
type TokenType string

const (
	TokenAccess  TokenType = "access"
	TokenRefresh TokenType = "refresh"
)

type UserClaims struct {
	UserID   string    `json:"uid"`
	Username string    `json:"sub"`
	Role     string    `json:"role"`
	Type     TokenType `json:"typ"`
	jwt.RegisteredClaims
}

func NewAuthService(rdb *redis.Client, secret []byte, admin Credentials, accessTokenTTL, refreshTokenTTL time.Duration) *AuthService {
	return &AuthService{
		redis:           rdb,
		secret:          secret,
		admin:           admin,
		accessTokenTTL:  accessTokenTTL,
		refreshTokenTTL: refreshTokenTTL,
	}
}

// ParseToken validates a token signed by this service and of type want.
func ParseToken(secret []byte, tokenString string, want TokenType) (*UserClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &UserClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(Issuer))
	if err != nil {
		return nil, ErrTokenInvalid
	}
	claims, ok := token.Claims.(*UserClaims)
	if !ok || !token.Valid || claims.Type != want {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

// Login checks the operator credentials and opens a refresh session.
func (s *AuthService) Login(ctx context.Context, r req.LoginRequest) (*resp.TokenResponse, error) {
	userOK := subtle.ConstantTimeCompare([]byte(r.Username), []byte(s.admin.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(r.Password), []byte(s.admin.Password)) == 1
	if s.admin.Password == "" || !userOK || !passOK {
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.issue(ctx, s.admin.UserID, s.admin.Username, s.admin.Role)
	if err != nil {
		return nil, err
	}
	tokens.Operator = &resp.Operator{ID: s.admin.UserID, Name: s.admin.Username, Role: s.admin.Role}
	return tokens, nil
}

// Refresh rotates both tokens. Only the most recently issued refresh token
// of an operator is accepted.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*resp.TokenResponse, error) {
	claims, err := ParseToken(s.secret, refreshToken, TokenRefresh)
	if err != nil {
		return nil, err
	}

	stored, err := s.redis.Get(ctx, RedisKeyPrefix+claims.UserID).Result()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrSessionExpired
	case err != nil:
		return nil, fmt.Errorf("load session: %w", err)
	case stored != refreshToken:
		return nil, ErrTokenInvalid
	}
	return s.issue(ctx, claims.UserID, claims.Username, claims.Role)
}

func (s *AuthService) Logout(ctx context.Context, userID string) error {
	return s.redis.Del(ctx, RedisKeyPrefix+userID).Err()
}

func (s *AuthService) sign(userID, username, role string, typ TokenType, ttl time.Duration, jti string) (string, error) {
	now := time.Now()
	claims := UserClaims{
		UserID:   userID,
		Username: username,
		Role:     role,
		Type:     typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    Issuer,
			ID:        jti,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func (s *AuthService) issue(ctx context.Context, userID, username, role string) (*resp.TokenResponse, error) {
	access, err := s.sign(userID, username, role, TokenAccess, s.accessTokenTTL, "")
	if err != nil {
		return nil, err
	}
	refresh, err := s.sign(userID, username, role, TokenRefresh, s.refreshTokenTTL, uuid.NewString())
	if err != nil {
		return nil, err
	}
	if err := s.redis.Set(ctx, RedisKeyPrefix+userID, refresh, s.refreshTokenTTL).Err(); err != nil {
		return nil, fmt.Errorf("store session: %w", err)
	}
	return &resp.TokenResponse{
		TokenType:    "Bearer",
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresAt:    time.Now().Add(s.accessTokenTTL),
	}, nil
}
