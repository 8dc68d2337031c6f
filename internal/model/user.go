// Package model はドメインモデルを定義する。
package model

import "time"

// Provider はユーザーの認証元を表す。
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderX      Provider = "x"
	ProviderGuest  Provider = "guest"
)

// ParseProvider はログインに使用できるIdP名を解釈する。
// guestはログイン手段ではないため受け付けない。
func ParseProvider(s string) (Provider, bool) {
	switch Provider(s) {
	case ProviderGoogle, ProviderX:
		return Provider(s), true
	default:
		return "", false
	}
}

// User はサービス利用ユーザーを表す。
// ExternalSubjectIDは "<provider>:<subject>" 形式で、IdPアカウントごとに一意。
type User struct {
	ID                string
	ExternalSubjectID string
	Provider          Provider
	Name              string
	Email             string
	AvatarURL         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Session はユーザーのログインセッションを表す。
// トークン本体は保存せず、SHA-256フィンガープリントのみを保持する。
type Session struct {
	ID              string
	UserID          string
	TokenHash       string
	RefreshTokenEnc []byte
	ExpiresAt       time.Time
	CreatedAt       time.Time
}

// IsExpired はnow時点でセッションが失効しているかを返す。
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ExternalSubjectID はproviderとIdP側のsubjectから外部識別子を組み立てる。
func ExternalSubjectID(provider Provider, subject string) string {
	return string(provider) + ":" + subject
}
