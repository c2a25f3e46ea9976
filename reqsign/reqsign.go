// Package reqsign authenticates requests between the dispatcher, student
// endpoints and the evaluation API. Each request carries an HS256 JWT in the
// Authorization header. The signing key is derived from the participant's
// shared secret with HKDF, and the token binds the SHA-256 of the body, so the
// secret itself never travels over the wire.
package reqsign

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

const (
	AudienceStudent    = "student-endpoint"
	AudienceEvaluation = "evaluation-api"
)

const hkdfInfo = "pagesforge request signing v1"

// DefaultTTL bounds how long a signed request stays valid.
const DefaultTTL = 5 * time.Minute

var (
	ErrUnknownSubject = errors.New("unknown subject")
	// ErrLookupFailed wraps a SecretLookup failure other than ErrUnknownSubject.
	ErrLookupFailed = errors.New("secret lookup failed")
	ErrBodyMismatch   = errors.New("body hash does not match token")
)

type Claims struct {
	Nonce      string `json:"nonce,omitempty"`
	BodySha256 string `json:"body_sha256"`
	jwt.RegisteredClaims
}

// DeriveKey expands a shared secret into a 32 byte HMAC key.
func DeriveKey(secret string) ([]byte, error) {
	if secret == "" {
		return nil, errors.New("empty secret")
	}
	key := make([]byte, 32)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	return key, nil
}

func BodyHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// Sign returns a token for body, valid for DefaultTTL.
func Sign(secret, subject, audience, nonce string, body []byte) (string, error) {
	return signAt(time.Now(), DefaultTTL, secret, subject, audience, nonce, body)
}

func signAt(now time.Time, ttl time.Duration, secret, subject, audience, nonce string, body []byte) (string, error) {
	key, err := DeriveKey(secret)
	if err != nil {
		return "", err
	}
	claims := &Claims{
		Nonce:      nonce,
		BodySha256: BodyHash(body),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			Audience:  jwt.ClaimStrings{audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(key)
}

// SignRequest sets the Authorization header of req.
func SignRequest(req *http.Request, secret, subject, audience, nonce string, body []byte) error {
	token, err := Sign(secret, subject, audience, nonce, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

// SecretLookup returns the shared secret of a subject or ErrUnknownSubject.
type SecretLookup func(ctx context.Context, subject string) (string, error)

// StaticSecret accepts any subject and always uses the same secret. Student
// endpoints use it since they only know their own secret.
func StaticSecret(secret string) SecretLookup {
	return func(ctx context.Context, subject string) (string, error) {
		return secret, nil
	}
}

// Verify checks the token signature, audience, expiry and body hash.
func Verify(ctx context.Context, tokenStr string, body []byte, audience string, lookup SecretLookup) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(token *jwt.Token) (interface{}, error) {
		c, ok := token.Claims.(*Claims)
		if !ok || c.Subject == "" {
			return nil, ErrUnknownSubject
		}
		secret, err := lookup(ctx, c.Subject)
		if err != nil && !errors.Is(err, ErrUnknownSubject) {
			return nil, fmt.Errorf("%w: %w", ErrLookupFailed, err)
		}
		if err != nil {
			return nil, err
		}
		return DeriveKey(secret)
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(audience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(30*time.Second),
	)
	if err != nil {
		return nil, err
	}
	if claims.BodySha256 != BodyHash(body) {
		return nil, ErrBodyMismatch
	}
	return claims, nil
}
