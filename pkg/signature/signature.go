// Package signature provides the hashing and verification primitives
// shared by the payment provider adapters and the auth middleware.
//
// All comparisons are constant-time. MD5 exists only because two legacy
// provider protocols mandate it for their documented signature schemes;
// it is never used beyond reproducing those schemes.
package signature

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// HMACSHA256 returns the hex-encoded HMAC-SHA256 of message under key.
func HMACSHA256(message, key string) string {
	mac := hmac.New(sha256.New, []byte(key))
	_, _ = mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// SHA256 returns the hex-encoded SHA-256 digest of message.
func SHA256(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}

// MD5 returns the hex-encoded MD5 digest of message.
func MD5(message string) string {
	sum := md5.Sum([]byte(message))
	return hex.EncodeToString(sum[:])
}

// VerifyHMACSHA256 recomputes the HMAC-SHA256 of message under key and
// compares it to sig in constant time.
func VerifyHMACSHA256(message, sig, key string) bool {
	expected := HMACSHA256(message, key)
	return Equal(expected, sig)
}

// Equal reports whether two hex or opaque strings match, in constant
// time. Case is normalized first so hex digests compare regardless of
// how the caller encoded them.
func Equal(a, b string) bool {
	return subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(a)),
		[]byte(strings.ToLower(b)),
	) == 1
}

// NewToken returns a cryptographically random opaque identifier used to
// correlate provider-facing transactions.
func NewToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
