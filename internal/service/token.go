package service

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	hostTokenPrefix = "kz_"
	hostTokenBytes  = 24
)

// newHostToken returns a fresh host API token: the kz_ prefix followed by
// 32 URL-safe characters.
func newHostToken() (string, error) {
	buf := make([]byte, hostTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hostTokenPrefix + base64.RawURLEncoding.EncodeToString(buf), nil
}

func wellFormedHostToken(token string) bool {
	body, ok := strings.CutPrefix(token, hostTokenPrefix)
	return ok && base64.RawURLEncoding.EncodedLen(hostTokenBytes) == len(body)
}

// hashToken is the stored form of a host token.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// maskToken keeps the prefix and four characters for audit records.
func maskToken(token string) string {
	if len(token) < len(hostTokenPrefix)+8 {
		return hostTokenPrefix + "****"
	}
	return token[:len(hostTokenPrefix)+4] + "****"
}
