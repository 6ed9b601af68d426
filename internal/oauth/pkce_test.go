package oauth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestComputeCodeChallenge(t *testing.T) {
	// Reference vector from RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", ComputeCodeChallenge(verifier))
}

func TestVerifyCodeChallenge(t *testing.T) {
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	challenge := ComputeCodeChallenge(verifier)

	testCases := []struct {
		name      string
		verifier  string
		challenge string
		expected  error
	}{
		{
			name:      "matching verifier passes",
			verifier:  verifier,
			challenge: challenge,
			expected:  nil,
		},
		{
			name:      "empty verifier is required error",
			verifier:  "",
			challenge: challenge,
			expected:  ErrPKCEVerifierRequired,
		},
		{
			name:      "too short verifier is malformed",
			verifier:  "short",
			challenge: challenge,
			expected:  ErrPKCEVerifierMalformed,
		},
		{
			name:      "too long verifier is malformed",
			verifier:  strings.Repeat("a", 129),
			challenge: challenge,
			expected:  ErrPKCEVerifierMalformed,
		},
		{
			name:      "verifier outside the unreserved set is malformed",
			verifier:  strings.Repeat("a", 42) + "!",
			challenge: challenge,
			expected:  ErrPKCEVerifierMalformed,
		},
		{
			name:      "wrong verifier fails verification",
			verifier:  strings.Repeat("a", 43),
			challenge: challenge,
			expected:  ErrPKCEVerificationFailed,
		},
	}

	for _, tt := range testCases {
		t.Run(tt.name, func(t *testing.T) {
			err := VerifyCodeChallenge(tt.verifier, tt.challenge)
			if tt.expected == nil {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, tt.expected)
			}
		})
	}
}

func TestVerifierLengthBoundaries(t *testing.T) {
	challenge43 := ComputeCodeChallenge(strings.Repeat("a", 43))
	assert.NoError(t, VerifyCodeChallenge(strings.Repeat("a", 43), challenge43))

	challenge128 := ComputeCodeChallenge(strings.Repeat("a", 128))
	assert.NoError(t, VerifyCodeChallenge(strings.Repeat("a", 128), challenge128))
}
