package security

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

func HashSecretSHA256(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

func ConstantTimeEqualHex(aHex, bHex string) bool {
	a, err1 := hex.DecodeString(aHex)
	b, err2 := hex.DecodeString(bHex)
	if err1 != nil || err2 != nil {
		return false
	}
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}

// BearerToken extracts the credential of an "Authorization: Bearer <token>"
// header value. ok is false for any other scheme or an empty token.
func BearerToken(header string) (token string, ok bool) {
	scheme, rest, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	return rest, rest != ""
}

// TokenMatches compares a presented API key against the configured one
// without leaking its length or content through timing.
func TokenMatches(presented, expected string) bool {
	if expected == "" {
		return false
	}
	return ConstantTimeEqualHex(HashSecretSHA256(presented), HashSecretSHA256(expected))
}
