package analytics

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"regexp"
	"strings"
)

const fingerprintLen = 32

var fingerprintPattern = regexp.MustCompile(`^[0-9a-f]{16,64}$`)

// Fingerprint derives the anonymized identity of a recipient within one
// campaign. It cannot be reversed into the address.
func Fingerprint(recipient, campaignKey string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(recipient)) + "|" + campaignKey))
	return hex.EncodeToString(sum[:])[:fingerprintLen]
}

// RequestFingerprint derives a fingerprint from client characteristics for
// hits that carry none. BCC delivery sends one identical body to every
// recipient, so links and pixels cannot embed per-recipient data.
func RequestFingerprint(token, clientIP, userAgent string) string {
	return Fingerprint(clientIP+" "+userAgent, token)
}

// NormalizeFingerprint lower-cases fp and returns "" unless it is 16 to 64
// hex characters.
func NormalizeFingerprint(fp string) string {
	fp = strings.ToLower(strings.TrimSpace(fp))
	if !fingerprintPattern.MatchString(fp) {
		return ""
	}
	return fp
}

// EncodeURL encodes a destination for the url query parameter.
func EncodeURL(raw string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeURL reverses EncodeURL; padded input is accepted too.
func DecodeURL(encoded string) (string, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(encoded, "="))
	if err != nil {
		return "", err
	}
	return string(b), nil
}
