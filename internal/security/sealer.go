package security

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealerInfo = "horo refresh-token sealing v1"

// ErrOpenFailed は復号に失敗した場合のエラー。
var ErrOpenFailed = errors.New("failed to open sealed value")

// Sealer はIdPのリフレッシュトークンをDB保存前に暗号化する。
// XChaCha20-Poly1305を使い、出力はnonce || ciphertext。
type Sealer struct {
	key []byte
}

// NewSealer はsecretからHKDF-SHA256で鍵を導出したSealerを生成する。
func NewSealer(secret string) (*Sealer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("sealer secret must be at least 32 bytes, got %d", len(secret))
	}

	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(secret), nil, []byte(sealerInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	return &Sealer{key: key}, nil
}

// Seal はplaintextを暗号化する。空の入力にはnilを返す。
// additionalDataは復号時に同じ値を渡す必要がある（セッションIDなど）。
func (s *Sealer) Seal(plaintext, additionalData []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, nil
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, additionalData), nil
}

// Open はSealで暗号化した値を復号する。
func (s *Sealer) Open(sealed, additionalData []byte) ([]byte, error) {
	if len(sealed) == 0 {
		return nil, nil
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize()+aead.Overhead() {
		return nil, ErrOpenFailed
	}

	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, additionalData)
	if err != nil {
		return nil, ErrOpenFailed
	}
	return plaintext, nil
}
