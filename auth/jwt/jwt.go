package jwt

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const (
	keySalt = "local-explorer/session"
	keyInfo = "hs256 signing key"
	keySize = 32
)

type Claims struct {
	RequestLimit int `json:"request_limit"`
	jwt.RegisteredClaims
}

// DeriveKey stretches the configured secret into the HMAC key
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	key := make([]byte, keySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), []byte(keySalt), []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("failed to derive signing key: %w", err)
	}
	return key, nil
}

// Signer issues and verifies HS256 session tokens
type Signer struct {
	key    []byte
	issuer string
	now    func() time.Time
}

func NewSigner(secret, issuer string) (*Signer, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return nil, err
	}
	return &Signer{key: key, issuer: issuer, now: time.Now}, nil
}

// Generate returns a signed token with a fresh id
func (s *Signer) Generate(expiry time.Duration, requestLimit int) (string, *Claims, error) {
	now := s.now()
	claims := &Claims{
		RequestLimit: requestLimit,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.NewString(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", nil, err
	}
	return signed, claims, nil
}

func (s *Signer) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, jwt.ErrTokenInvalidClaims
}
