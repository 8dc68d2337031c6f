// Package auth はOAuthによるログインとセッションの発行・検証を提供する。
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hitoshi/horo/internal/model"
	"github.com/hitoshi/horo/internal/security"
)

// maxProviderResponseBytes はIdPレスポンスの読み込み上限。
const maxProviderResponseBytes = 1 << 20

// TokenSet はIdPのトークンエンドポイントから得たトークン。
// パッケージ外には公開せず、セッション発行時にのみ参照する。
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// ExternalProfile はIdPから取得したプロフィール。
type ExternalProfile struct {
	Subject   string
	Name      string
	Email     string
	AvatarURL string
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// Name はプロバイダー名を返す。
	Name() model.Provider
	// AuthCodeURL はPKCE付きの認可URLを生成する。
	AuthCodeURL(state, codeChallenge string) string
	// Exchange は認可コードをトークンに交換する。
	Exchange(ctx context.Context, code, codeVerifier string) (*TokenSet, error)
	// FetchProfile はアクセストークンでプロフィールを取得する。
	FetchProfile(ctx context.Context, accessToken string) (*ExternalProfile, error)
}

// NewCodeVerifier はPKCEのcode_verifierを生成する。
func NewCodeVerifier() (string, error) {
	return security.GenerateToken(32)
}

// CodeChallengeS256 はcode_verifierからS256方式のcode_challengeを求める。
func CodeChallengeS256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// doJSON はリクエストを送信し、2xxの場合にレスポンスをoutへデコードする。
func doJSON(client *http.Client, req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxProviderResponseBytes))
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}

func clientOrDefault(c *http.Client) *http.Client {
	if c != nil {
		return c
	}
	return http.DefaultClient
}
