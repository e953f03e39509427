// Package auth verifies the credential presented at connection handshake.
package auth

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken     = errors.New("missing token")
	ErrInvalidToken     = errors.New("invalid token")
	ErrTokenExpired     = errors.New("token expired")
	ErrInvalidPublicKey = errors.New("invalid Ed25519 public key")
)

// Identity is the authenticated user attached to a connection.
type Identity struct {
	UserID   string
	Username string
}

// Verifier resolves a credential token into an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (Identity, error)
}

// claims mirrors the payload issued by the account service.
type claims struct {
	jwt.RegisteredClaims
	Username string `json:"username"`
	UserID   string `json:"userid"`
}

// JWTVerifier checks tokens signed with either a shared HMAC secret (HS256)
// or an Ed25519 key (EdDSA).
type JWTVerifier struct {
	key     any
	methods []string
	now     func() time.Time
}

// NewHMACVerifier creates a verifier for HS256 tokens.
func NewHMACVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{
		key:     []byte(secret),
		methods: []string{jwt.SigningMethodHS256.Alg()},
		now:     time.Now,
	}
}

// NewEd25519Verifier creates a verifier for EdDSA tokens.
func NewEd25519Verifier(pub ed25519.PublicKey) *JWTVerifier {
	return &JWTVerifier{
		key:     pub,
		methods: []string{jwt.SigningMethodEdDSA.Alg()},
		now:     time.Now,
	}
}

// Verify parses and validates a token. Tokens without a user id are rejected.
func (v *JWTVerifier) Verify(ctx context.Context, token string) (Identity, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Identity{}, ErrMissingToken
	}

	var parsed claims
	_, err := jwt.ParseWithClaims(token, &parsed, func(t *jwt.Token) (any, error) {
		return v.key, nil
	},
		jwt.WithValidMethods(v.methods),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if strings.TrimSpace(parsed.UserID) == "" {
		return Identity{}, fmt.Errorf("%w: userid claim is required", ErrInvalidToken)
	}

	return Identity{UserID: parsed.UserID, Username: parsed.Username}, nil
}

func newClaims(id Identity, ttl time.Duration) claims {
	now := time.Now()
	return claims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Username: id.Username,
		UserID:   id.UserID,
	}
}

// Issue signs an HS256 token for the identity. Production tokens come from
// the account service; this is used by tests and the token tool.
func Issue(secret string, id Identity, ttl time.Duration) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, newClaims(id, ttl)).SignedString([]byte(secret))
}

// IssueEd25519 signs an EdDSA token for the identity.
func IssueEd25519(priv ed25519.PrivateKey, id Identity, ttl time.Duration) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodEdDSA, newClaims(id, ttl)).SignedString(priv)
}

// ValidatePublicKey checks if a base64-encoded string is a valid Ed25519 public key.
func ValidatePublicKey(pubkeyB64 string) (ed25519.PublicKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(pubkeyB64)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64 encoding", ErrInvalidPublicKey)
	}

	if len(decoded) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: must be %d bytes, got %d", ErrInvalidPublicKey, ed25519.PublicKeySize, len(decoded))
	}

	return ed25519.PublicKey(decoded), nil
}
