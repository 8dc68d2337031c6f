package security

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

const (
	// SessionTokenBytes はセッショントークンの乱数バイト長。
	SessionTokenBytes = 32
	// InviteTokenBytes は招待トークンの乱数バイト長。URLに載せるため短めにする。
	InviteTokenBytes = 16
)

// GenerateToken はsizeバイトの乱数をbase64url（パディングなし）で返す。
func GenerateToken(size int) (string, error) {
	if size <= 0 {
		return "", fmt.Errorf("token size must be positive, got %d", size)
	}

	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random token: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken はトークンのSHA-256をbase64urlで返す。
// DBにはトークン本体ではなくこの値を保存する。
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// EqualTokens は定数時間でトークンを比較する。
func EqualTokens(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
