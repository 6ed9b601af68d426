package oauth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AccessTokenLifetime is how long minted access tokens stay valid.
const AccessTokenLifetime = time.Hour

var (
	// ErrNoSigningSecret indicates the HMAC secret is missing. This is a
	// server configuration problem, not a bad token.
	ErrNoSigningSecret = errors.New("token signing secret is not configured (set MCP_AUTH_SECRET)")

	// ErrInvalidAccessToken covers every verification failure: bad signature,
	// malformed structure, expiry. A single generic error avoids giving
	// callers an oracle for why a token was rejected.
	ErrInvalidAccessToken = errors.New("invalid access token")
)

// AccessClaims is the decoded payload of a verified access token.
type AccessClaims struct {
	ClientID  string
	UserID    string
	Scopes    []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec encodes and verifies JWT access tokens with an HMAC-SHA256
// shared secret. It is stateless: validity is signature plus expiry, so
// individual access tokens cannot be revoked before they expire.
type TokenCodec struct {
	secret []byte
}

// NewTokenCodec creates a codec signing with the given shared secret.
func NewTokenCodec(secret string) *TokenCodec {
	return &TokenCodec{secret: []byte(secret)}
}

// Encode mints a signed access token for the given grant.
func (tc *TokenCodec) Encode(clientID, userID string, scopes []string) (string, error) {
	if len(tc.secret) == 0 {
		return "", ErrNoSigningSecret
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"aud":   clientID,
		"scope": strings.Join(scopes, " "),
		"iat":   now.Unix(),
		"exp":   now.Add(AccessTokenLifetime).Unix(),
	}
	if userID != "" {
		claims["uid"] = userID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(tc.secret)
}

// Decode verifies the token signature, structure and expiry and returns the
// embedded claims. Verification failures all surface as ErrInvalidAccessToken.
func (tc *TokenCodec) Decode(tokenString string) (*AccessClaims, error) {
	if len(tc.secret) == 0 {
		return nil, ErrNoSigningSecret
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		// Validate the signing method to prevent algorithm confusion attacks
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return tc.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidAccessToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidAccessToken
	}

	clientID, ok := claims["aud"].(string)
	if !ok || clientID == "" {
		return nil, ErrInvalidAccessToken
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil, ErrInvalidAccessToken
	}

	decoded := &AccessClaims{
		ClientID:  clientID,
		ExpiresAt: exp.Time,
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		decoded.IssuedAt = iat.Time
	}
	if uid, ok := claims["uid"].(string); ok {
		decoded.UserID = uid
	}
	if scope, ok := claims["scope"].(string); ok && scope != "" {
		decoded.Scopes = strings.Fields(scope)
	}
	return decoded, nil
}
