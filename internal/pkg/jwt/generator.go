// internal/pkg/jwt/generator.go
package jwt

import (
	"crypto/rsa"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/oklog/ulid/v2"
)

// Generator mints identity-provider style tokens. In production the IdP
// signs these; the generator exists for local development and tests.
type Generator struct {
	priv     *rsa.PrivateKey
	issuer   string
	audience string
	Ttl      time.Duration
}

func NewGenerator(priv *rsa.PrivateKey, issuer, audience string, ttl time.Duration) *Generator {
	return &Generator{
		priv:     priv,
		issuer:   issuer,
		audience: audience,
		Ttl:      ttl,
	}
}

// Generate creates a signed token for the given account.
func (g *Generator) Generate(userID int64, roles []string) (string, error) {
	if g.priv == nil {
		return "", fmt.Errorf("jwt generator has nil private key")
	}

	now := time.Now()
	claims := &Claims{
		UserID: userID,
		Roles:  roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    g.issuer,
			Subject:   fmt.Sprintf("%d", userID),
			Audience:  []string{g.audience},
			ExpiresAt: jwt.NewNumericDate(now.Add(g.Ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ID:        ulid.Make().String(),
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	return tok.SignedString(g.priv)
}
