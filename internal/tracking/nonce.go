package tracking

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ProductDataAction is the nonce action guarding the add_to_cart data endpoint.
const ProductDataAction = "ga4_product_data"

var ErrInvalidNonce = errors.New("invalid nonce")

type nonceClaims struct {
	Action string `json:"act"`
	jwt.RegisteredClaims
}

// Nonces issues and verifies action-scoped, expiring tokens.
type Nonces struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewNonces creates a nonce issuer. An empty secret gets a random one, which
// invalidates outstanding nonces on restart.
func NewNonces(secret string, ttl time.Duration) (*Nonces, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate nonce secret: %w", err)
		}
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Nonces{secret: key, ttl: ttl, now: time.Now}, nil
}

func (n *Nonces) Create(action string) (string, error) {
	now := n.now()
	claims := nonceClaims{
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(n.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign nonce: %w", err)
	}
	return token, nil
}

// Verify checks the token signature, expiry and action.
func (n *Nonces) Verify(token, action string) error {
	if token == "" {
		return ErrInvalidNonce
	}

	var claims nonceClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return n.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(n.now),
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidNonce, err)
	}
	if claims.Action != action {
		return fmt.Errorf("%w: action mismatch", ErrInvalidNonce)
	}
	return nil
}
