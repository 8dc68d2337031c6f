package auth

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/horo/internal/security"
)

const (
	// DefaultStateTTL はOAuth stateの有効期間。
	DefaultStateTTL = 10 * time.Minute

	stateIssuer   = "horo-oauth-state"
	stateAudience = "horo-auth-callback"
)

// StateClaims はOAuth stateに載せる情報。
// RegisteredClaims.IDはリプレイ検出用のnonce。
type StateClaims struct {
	Provider string `json:"prv"`
	ReturnTo string `json:"rt,omitempty"`
	jwt.RegisteredClaims
}

// StateSigner はOAuth stateをHS256署名付きJWTとして発行・検証する。
// サーバー側に状態を持たずにCSRFとプロバイダーの取り違えを防ぐ。
type StateSigner struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewStateSigner はStateSignerを生成する。
func NewStateSigner(secret string, ttl time.Duration) *StateSigner {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateSigner{
		key: []byte(secret),
		ttl: ttl,
		now: time.Now,
	}
}

// Sign は新しいstateを発行する。
func (s *StateSigner) Sign(provider, returnTo string) (string, error) {
	nonce, err := security.GenerateToken(16)
	if err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}

	now := s.now()
	claims := StateClaims{
		Provider: provider,
		ReturnTo: returnTo,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        nonce,
			Issuer:    stateIssuer,
			Audience:  jwt.ClaimStrings{stateAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign state: %w", err)
	}
	return signed, nil
}

// Verify はstateの署名・発行者・有効期限を検証してクレームを返す。
func (s *StateSigner) Verify(state string) (*StateClaims, error) {
	claims := &StateClaims{}
	_, err := jwt.ParseWithClaims(state, claims,
		func(*jwt.Token) (any, error) { return s.key, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(stateIssuer),
		jwt.WithAudience(stateAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid state: %w", err)
	}
	return claims, nil
}

// SanitizeReturnTo はログイン後の遷移先として許可する相対パスを返す。
// 絶対URL、スキーム相対URL、バックスラッシュを含む値は空文字になる。
func SanitizeReturnTo(raw string) string {
	if raw == "" || !strings.HasPrefix(raw, "/") || strings.HasPrefix(raw, "//") || strings.ContainsAny(raw, "\\\r\n") {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return ""
	}
	return u.RequestURI()
}
