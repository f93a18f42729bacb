package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/jmerrifield20/LandRegistry/internal/model"
)

const tokenTypeAccount = "account"

// AccountClaims are the JWT claims of an account token. The token proves the
// bearer may act as Account on the ledger.
type AccountClaims struct {
	jwt.RegisteredClaims
	Account string `json:"account"`
	Type    string `json:"type"`
}

// AccountTokenIssuer issues and verifies account tokens with a shared HMAC
// secret held by the node operator.
type AccountTokenIssuer struct {
	secret []byte
	issuer string
	ttl    time.Duration
}

// NewAccountTokenIssuer creates an AccountTokenIssuer.
//
//	secret  HMAC key; must be at least 32 bytes.
//	issuer  the "iss" claim value.
//	ttl     token lifetime (default: 24 hours).
func NewAccountTokenIssuer(secret []byte, issuer string, ttl time.Duration) (*AccountTokenIssuer, error) {
	if len(secret) < 32 {
		return nil, errors.New("account token secret must be at least 32 bytes")
	}
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	return &AccountTokenIssuer{secret: secret, issuer: issuer, ttl: ttl}, nil
}

// Issue creates a signed token for account.
func (a *AccountTokenIssuer) Issue(account string) (string, error) {
	account, err := model.NormalizeAccount(account)
	if err != nil {
		return "", err
	}
	now := time.Now().UTC()
	claims := AccountClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    a.issuer,
			Subject:   account,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.ttl)),
			ID:        uuid.New().String(),
		},
		Account: account,
		Type:    tokenTypeAccount,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("sign account token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an account token, returning its claims.
func (a *AccountTokenIssuer) Verify(tokenStr string) (*AccountClaims, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&AccountClaims{},
		func(tok *jwt.Token) (any, error) {
			if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
			}
			return a.secret, nil
		},
		jwt.WithIssuer(a.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("verify account token: %w", err)
	}
	claims, ok := token.Claims.(*AccountClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid account token claims")
	}
	if claims.Type != tokenTypeAccount {
		return nil, fmt.Errorf("not an account token")
	}
	if claims.Account == "" || claims.Account != claims.Subject {
		return nil, fmt.Errorf("account token subject mismatch")
	}
	return claims, nil
}
