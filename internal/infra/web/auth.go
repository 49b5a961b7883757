package web

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ===== Operator tokens =====

type AuthManager struct {
	secret []byte
	ttl    time.Duration
}

func NewAuthManager(secret string, ttl time.Duration) *AuthManager {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &AuthManager{secret: []byte(secret), ttl: ttl}
}

// OperatorClaims scopes a token to a set of gateways; an empty set allows all.
type OperatorClaims struct {
	Role     string   `json:"role"`
	Gateways []string `json:"gateways,omitempty"`
	jwt.RegisteredClaims
}

func (c *OperatorClaims) Allows(gateway string) bool {
	return len(c.Gateways) == 0 || slices.Contains(c.Gateways, strings.ToLower(gateway))
}

func (a *AuthManager) Mint(subject string, gateways ...string) (string, error) {
	now := time.Now()
	scope := make([]string, 0, len(gateways))
	for _, g := range gateways {
		scope = append(scope, strings.ToLower(g))
	}
	claims := OperatorClaims{
		Role:     "operator",
		Gateways: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			Subject:   subject,
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(a.secret)
}

func (a *AuthManager) ParseFromRequest(r *http.Request) (*OperatorClaims, error) {
	// Authorization: Bearer <jwt>
	hdr := r.Header.Get("Authorization")
	if len(hdr) > 7 && strings.EqualFold(hdr[:7], "bearer ") {
		return a.parse(strings.TrimSpace(hdr[7:]))
	}
	return nil, errors.New("missing token")
}

func (a *AuthManager) parse(tok string) (*OperatorClaims, error) {
	claims := &OperatorClaims{}
	tkn, err := jwt.ParseWithClaims(tok, claims, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !tkn.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Role != "operator" {
		return nil, errors.New("invalid role")
	}
	return claims, nil
}
