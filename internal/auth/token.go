package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("expired token")
)

func IssueToken(secret []byte, claims Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func ParseToken(secret []byte, token string) (Claims, error) {
	var claims Claims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Claims{}, ErrExpiredToken
		}
		return Claims{}, ErrInvalidToken
	}
	if claims.UserID == "" || claims.Role == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Authenticator issues and verifies bearer tokens carrying identity and role.
type Authenticator struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewAuthenticator(secret string, ttl time.Duration) *Authenticator {
	return &Authenticator{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (a *Authenticator) Issue(userID, username, role string) (string, time.Time, error) {
	issuedAt := a.now()
	expiresAt := issuedAt.Add(a.ttl)
	token, err := IssueToken(a.secret, Claims{
		UserID:   userID,
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

func (a *Authenticator) Verify(token string) (Claims, error) {
	return ParseToken(a.secret, token)
}
