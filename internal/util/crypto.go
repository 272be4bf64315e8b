package util

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"

	"golang.org/x/crypto/bcrypt"
)

// HmacSHA256Base64 returns the base64 encoded HMAC-SHA256 of data, the
// format LINE uses for X-Line-Signature.
func HmacSHA256Base64(secret string, data []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(data)
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// MaskUserID keeps the first six characters of a platform user id for logs.
func MaskUserID(userID string) string {
	if len(userID) <= 6 {
		return "******"
	}
	return userID[:6] + "******"
}

// Truncate cuts s to at most maxLen runes and appends "..." when it did.
func Truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
