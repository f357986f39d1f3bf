package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"stafftracker/internal/identity"
)

const (
	TokenAccess  = "access"
	TokenRefresh = "refresh"
)

// Claims represents JWT payload.
type Claims struct {
	Role         string `json:"role"`
	DepartmentID string `json:"dept,omitempty"`
	TokenType    string `json:"typ"`
	jwt.RegisteredClaims
}

// Signer issues and validates HS256 tokens.
type Signer struct {
	Issuer     string
	Key        []byte
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	now        func() time.Time
}

// NewSigner creates a signer.
func NewSigner(issuer, key string, accessTTL, refreshTTL time.Duration) *Signer {
	return &Signer{Issuer: issuer, Key: []byte(key), AccessTTL: accessTTL, RefreshTTL: refreshTTL, now: time.Now}
}

func (s *Signer) sign(u identity.User, typ string, exp time.Time) (string, error) {
	claims := Claims{
		Role:         string(u.Role),
		DepartmentID: u.Department(),
		TokenType:    typ,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.Issuer,
			Subject:   u.ID,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(s.now()),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Key)
}

// IssuePair issues signed access and refresh tokens.
func (s *Signer) IssuePair(u identity.User) (identity.Session, error) {
	accessExp := s.now().Add(s.AccessTTL)
	refreshExp := s.now().Add(s.RefreshTTL)

	accessToken, err := s.sign(u, TokenAccess, accessExp)
	if err != nil {
		return identity.Session{}, err
	}
	refreshToken, err := s.sign(u, TokenRefresh, refreshExp)
	if err != nil {
		return identity.Session{}, err
	}

	return identity.Session{
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// Parse validates a token and returns claims.
func (s *Signer) Parse(tokenStr string) (Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return s.Key, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return Claims{}, err
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Claims{}, errors.New("invalid token")
	}
	if s.Issuer != "" && claims.Issuer != s.Issuer {
		return Claims{}, errors.New("issuer mismatch")
	}
	return *claims, nil
}

// ParseRefresh validates a refresh token and returns its subject.
func (s *Signer) ParseRefresh(tokenStr string) (string, error) {
	claims, err := s.Parse(tokenStr)
	if err != nil {
		return "", err
	}
	if claims.TokenType != TokenRefresh {
		return "", errors.New("not a refresh token")
	}
	return claims.Subject, nil
}

// Actor converts access-token claims into the authorization view.
func (c Claims) Actor() identity.Actor {
	return identity.Actor{ID: c.Subject, Role: identity.Role(c.Role), DepartmentID: c.DepartmentID}
}
