package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// PKCE (RFC 7636), S256 only. The "plain" method defeats the point of
// binding the code to the verifier and is not supported.

const (
	// PKCEMethodS256 is the only supported code challenge method.
	PKCEMethodS256 = "S256"

	minVerifierLength = 43
	maxVerifierLength = 128
)

var (
	ErrPKCEVerifierRequired     = errors.New("code_verifier is required")
	ErrPKCEVerifierMalformed    = errors.New("code_verifier is malformed")
	ErrPKCEVerificationFailed   = errors.New("code_verifier does not match code_challenge")
	ErrPKCEMethodNotSupported   = errors.New("only the S256 code_challenge_method is supported")
)

// ComputeCodeChallenge derives the S256 challenge for a verifier.
func ComputeCodeChallenge(verifier string) string {
	hash := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(hash[:])
}

// VerifyCodeChallenge checks that verifier hashes to the challenge recorded
// at code issuance. The comparison is constant-time.
func VerifyCodeChallenge(verifier, challenge string) error {
	if verifier == "" {
		return ErrPKCEVerifierRequired
	}
	if len(verifier) < minVerifierLength || len(verifier) > maxVerifierLength {
		return ErrPKCEVerifierMalformed
	}
	for _, c := range verifier {
		if !isUnreservedChar(c) {
			return ErrPKCEVerifierMalformed
		}
	}

	computed := ComputeCodeChallenge(verifier)
	if subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) != 1 {
		return ErrPKCEVerificationFailed
	}
	return nil
}

// isUnreservedChar reports membership in the RFC 7636 unreserved set:
// [A-Z] / [a-z] / [0-9] / "-" / "." / "_" / "~"
func isUnreservedChar(c rune) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}
